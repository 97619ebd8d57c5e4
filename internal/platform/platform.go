// Package platform はホストOSのバージョンと公開ストレージの位置を表す
//
// # 責務
// - OSバージョン（APIレベル）によるスコープドストレージ判定
// - 公開外部ストレージのルートディレクトリの保持
//
// プロセスの生存期間中、OSバージョンは変化しないため Info は起動時に一度だけ作る。
package platform

import (
	"fmt"
	"path/filepath"
)

// Version はホストOSのAPIレベル
type Version int

const (
	// VersionP は直接ファイル書き込みが必要な最後のバージョン
	VersionP Version = 28
	// VersionQ はスコープドストレージ（管理されたメディアコレクション）が使える最初のバージョン
	VersionQ Version = 29
)

// HasScopedStorage はメディアストア経由の保存が使えるかを返す
func (v Version) HasScopedStorage() bool {
	return v >= VersionQ
}

// String はAPIレベルを表示用の文字列にする
func (v Version) String() string {
	return fmt.Sprintf("API %d", int(v))
}

// Info はホストOSの情報
type Info struct {
	Version            Version // APIレベル
	ExternalStorageDir string  // 公開外部ストレージのルート (例: /storage/emulated/0)
}

// NewInfo は新しいInfoを作成する
func NewInfo(version Version, externalStorageDir string) (Info, error) {
	if version <= 0 {
		return Info{}, fmt.Errorf("無効なAPIレベル: %d", version)
	}
	if externalStorageDir == "" {
		return Info{}, fmt.Errorf("外部ストレージのルートが指定されていません")
	}

	abs, err := filepath.Abs(externalStorageDir)
	if err != nil {
		return Info{}, fmt.Errorf("外部ストレージのパス解決に失敗: %w", err)
	}

	return Info{Version: version, ExternalStorageDir: abs}, nil
}
