// Package storage は撮影画像の保存先を決める
//
// OSバージョンに応じて2種類の保存方式を使い分ける。
//   - MediaCollectionStrategy: 管理されたメディアコレクションにエントリを確保して書き込む
//   - FilePathStrategy: 公開ストレージ直下の Gymphotos フォルダにファイルとして書き込む
//
// 方式は起動時に Select で1回だけ選ぶ。
package storage

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gymcamera/internal/camera"
	"gymcamera/internal/media"
	"gymcamera/internal/platform"
)

const (
	// FolderName は写真を置く公開フォルダ名
	FolderName = "Gymphotos"
	// MIMEType は保存する画像のMIMEタイプ
	MIMEType = "image/jpeg"

	fileNameLayout = "20060102-150405"
	fileExtension  = ".jpg"
)

// FileName は撮影時刻からファイル名を作る
func FileName(t time.Time) string {
	return t.Format(fileNameLayout) + fileExtension
}

// Kind は保存先の種類
type Kind string

const (
	// KindMediaCollection は管理されたメディアコレクション
	KindMediaCollection Kind = "media_collection"
	// KindFilePath は公開ストレージ上のファイルパス
	KindFilePath Kind = "file_path"
)

// Destination は1回の撮影の保存先。作成後は変更しない
type Destination struct {
	Kind         Kind
	FileName     string
	MIMEType     string
	RelativePath string // KindMediaCollection のときの相対フォルダ
	Path         string // KindFilePath のときの絶対パス
}

// Strategy は保存方式
type Strategy interface {
	// Name は方式名を返す
	Name() string

	// Destination は撮影時刻から保存先を作る
	Destination(now time.Time) (Destination, error)

	// OutputOptions は保存先に書き込むための出力設定を作る
	OutputOptions(dest Destination) (*camera.OutputFileOptions, error)
}

// Select はOSバージョンに応じた保存方式を返す
func Select(info platform.Info, resolver camera.MediaResolver) Strategy {
	if info.Version.HasScopedStorage() {
		return NewMediaCollectionStrategy(resolver)
	}
	return NewFilePathStrategy(info.ExternalStorageDir)
}

// MediaCollectionStrategy はメディアコレクションに保存する
type MediaCollectionStrategy struct {
	resolver   camera.MediaResolver
	collection string
}

// NewMediaCollectionStrategy は新しいMediaCollectionStrategyを作成する
func NewMediaCollectionStrategy(resolver camera.MediaResolver) *MediaCollectionStrategy {
	return &MediaCollectionStrategy{
		resolver:   resolver,
		collection: media.ImagesCollection(media.VolumeExternalPrimary),
	}
}

// Name は方式名を返す
func (s *MediaCollectionStrategy) Name() string {
	return string(KindMediaCollection)
}

// Destination は表示名・MIMEタイプ・相対フォルダを持つ保存先を作る
func (s *MediaCollectionStrategy) Destination(now time.Time) (Destination, error) {
	return Destination{
		Kind:         KindMediaCollection,
		FileName:     FileName(now),
		MIMEType:     MIMEType,
		RelativePath: FolderName,
	}, nil
}

// OutputOptions はコレクションへの出力設定を作る
func (s *MediaCollectionStrategy) OutputOptions(dest Destination) (*camera.OutputFileOptions, error) {
	if dest.Kind != KindMediaCollection {
		return nil, fmt.Errorf("unexpected destination kind: %s", dest.Kind)
	}
	if s.resolver == nil {
		return nil, errors.New("media resolver is not configured")
	}
	return camera.NewMediaStoreOutputOptions(s.resolver, s.collection, media.ContentValues{
		DisplayName:  dest.FileName,
		MIMEType:     dest.MIMEType,
		RelativePath: dest.RelativePath,
	}), nil
}

// FilePathStrategy は公開ストレージの Gymphotos フォルダにファイルとして保存する
type FilePathStrategy struct {
	root string
}

// NewFilePathStrategy は新しいFilePathStrategyを作成する
func NewFilePathStrategy(externalStorageDir string) *FilePathStrategy {
	return &FilePathStrategy{root: externalStorageDir}
}

// Name は方式名を返す
func (s *FilePathStrategy) Name() string {
	return string(KindFilePath)
}

// Dir は保存フォルダのパスを返す
func (s *FilePathStrategy) Dir() string {
	return filepath.Join(s.root, FolderName)
}

// Destination は保存フォルダを用意し、ファイルパスを持つ保存先を作る
// フォルダが既にあれば作り直さない。
func (s *FilePathStrategy) Destination(now time.Time) (Destination, error) {
	dir := s.Dir()
	if err := ensureDir(dir); err != nil {
		return Destination{}, err
	}

	name := FileName(now)
	return Destination{
		Kind:     KindFilePath,
		FileName: name,
		MIMEType: MIMEType,
		Path:     filepath.Join(dir, name),
	}, nil
}

// OutputOptions はファイルへの出力設定を作る
func (s *FilePathStrategy) OutputOptions(dest Destination) (*camera.OutputFileOptions, error) {
	if dest.Kind != KindFilePath {
		return nil, fmt.Errorf("unexpected destination kind: %s", dest.Kind)
	}
	return camera.NewFileOutputOptions(dest.Path), nil
}

func ensureDir(dir string) error {
	info, err := os.Stat(dir)
	if err == nil {
		if !info.IsDir() {
			return fmt.Errorf("保存先がフォルダではありません: %s", dir)
		}
		return nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("保存先フォルダの確認に失敗: %w", err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("保存先フォルダの作成に失敗: %w", err)
	}
	return nil
}

// Outcome は撮影結果をユーザー向けメッセージにしたもの
type Outcome struct {
	Success  bool
	Location string // 保存場所。不明な場合は空
	Reason   string // 失敗理由
}

// OutcomeFromResult は撮影結果から Outcome を作る
func OutcomeFromResult(result camera.CaptureResult) Outcome {
	if result.Err != nil {
		return Outcome{Reason: result.Err.Error()}
	}
	return Outcome{Success: true, Location: locationOf(result.Output.SavedURI)}
}

// Message はトーストに表示する文言を返す
func (o Outcome) Message() string {
	switch {
	case !o.Success:
		return "Save failed: " + o.Reason
	case o.Location == "":
		return "Saved, but URI null (MediaStore)."
	default:
		return "Saved to /" + FolderName + "\n" + o.Location
	}
}

func locationOf(uri *url.URL) string {
	if uri == nil {
		return ""
	}
	return uri.String()
}
