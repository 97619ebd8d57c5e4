// Package permission は写真保存に必要な実行時権限の判定と要求を行う
//
// # 責務
// - OSバージョンから必要最小限の権限セットを算出する
// - 付与状態を確認し、不足分だけをまとめて1回で要求する
// - 1つでも拒否されたら拒否として扱う（フェイルクローズ）
package permission

import (
	"context"
	"errors"

	"gymcamera/internal/platform"
)

// Permission は実行時権限の識別子
type Permission string

const (
	// Camera はカメラへのアクセス権限
	Camera Permission = "android.permission.CAMERA"
	// WriteExternalStorage は外部ストレージへの書き込み権限（レガシーOSのみ）
	WriteExternalStorage Permission = "android.permission.WRITE_EXTERNAL_STORAGE"
)

// ErrDenied は必要な権限が付与されなかった場合のエラー
var ErrDenied = errors.New("required permissions not granted")

// Required はOSバージョンに必要な権限セットを順序付きで返す
// スコープドストレージが使える場合はカメラ権限のみ。
func Required(v platform.Version) []Permission {
	required := []Permission{Camera}
	if !v.HasScopedStorage() {
		required = append(required, WriteExternalStorage)
	}
	return required
}

// Checker は権限の現在の付与状態を問い合わせる
type Checker interface {
	IsGranted(ctx context.Context, p Permission) (bool, error)
}

// Requester は不足している権限をユーザーに要求する
// 応答があるまでブロックし、権限ごとの付与結果を返す。
type Requester interface {
	Request(ctx context.Context, perms []Permission) (map[Permission]bool, error)
}

// Recorder は要求の結果を記録する
type Recorder interface {
	Record(ctx context.Context, results map[Permission]bool) error
}
