package camera

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"gymcamera/internal/media"
)

// MediaResolver はメディアコレクションにエントリを確保する
type MediaResolver interface {
	Insert(ctx context.Context, collection string, values media.ContentValues) (media.Entry, error)
}

// OutputFileOptions は撮影画像の保存先
// ファイルパスかメディアコレクションのどちらか一方を指す。
type OutputFileOptions struct {
	path       string
	resolver   MediaResolver
	collection string
	values     media.ContentValues
}

// NewFileOutputOptions はファイルパスに保存する出力設定を作成する
// 親ディレクトリは存在している必要がある。
func NewFileOutputOptions(path string) *OutputFileOptions {
	return &OutputFileOptions{path: path}
}

// NewMediaStoreOutputOptions はメディアコレクションに保存する出力設定を作成する
func NewMediaStoreOutputOptions(resolver MediaResolver, collection string, values media.ContentValues) *OutputFileOptions {
	return &OutputFileOptions{
		resolver:   resolver,
		collection: collection,
		values:     values,
	}
}

// OutputFileResults は保存結果
// SavedURI はメディアコレクションが場所を返さなかった場合 nil になる。
type OutputFileResults struct {
	SavedURI *url.URL
}

// save は画像を出力先に書き込む
func (o *OutputFileOptions) save(ctx context.Context, data []byte) (*url.URL, error) {
	if o.resolver != nil {
		return o.saveToMediaStore(ctx, data)
	}
	return o.saveToFile(data)
}

func (o *OutputFileOptions) saveToFile(data []byte) (*url.URL, error) {
	if o.path == "" {
		return nil, errors.New("output path is empty")
	}

	abs, err := filepath.Abs(o.path)
	if err != nil {
		return nil, fmt.Errorf("出力パスの解決に失敗: %w", err)
	}

	// 途中で失敗しても壊れたファイルを残さないよう、一時ファイルから rename する
	tmp, err := os.CreateTemp(filepath.Dir(abs), ".capture-*")
	if err != nil {
		return nil, fmt.Errorf("failed to write or close the file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return nil, fmt.Errorf("failed to write or close the file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return nil, fmt.Errorf("failed to write or close the file: %w", err)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		_ = os.Remove(tmpName)
		return nil, fmt.Errorf("failed to write or close the file: %w", err)
	}

	return &url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}, nil
}

func (o *OutputFileOptions) saveToMediaStore(ctx context.Context, data []byte) (*url.URL, error) {
	entry, err := o.resolver.Insert(ctx, o.collection, o.values)
	if err != nil {
		return nil, fmt.Errorf("failed to insert media entry: %w", err)
	}

	if _, err := entry.Write(data); err != nil {
		_ = entry.Abort(ctx)
		return nil, fmt.Errorf("failed to write or close the file: %w", err)
	}

	uri, err := entry.Commit(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to publish media entry: %w", err)
	}
	return uri, nil
}

// CaptureErrorCode は撮影失敗の種類
type CaptureErrorCode string

const (
	CaptureErrorUnknown       CaptureErrorCode = "unknown"
	CaptureErrorFileIO        CaptureErrorCode = "file_io"
	CaptureErrorCaptureFailed CaptureErrorCode = "capture_failed"
	CaptureErrorCameraClosed  CaptureErrorCode = "camera_closed"
	CaptureErrorInvalidCamera CaptureErrorCode = "invalid_camera"
)

// CaptureError は撮影または保存の失敗
type CaptureError struct {
	Code CaptureErrorCode
	Err  error
}

// Error は原因のメッセージを返す
func (e *CaptureError) Error() string {
	if e.Err == nil {
		return string(e.Code)
	}
	return e.Err.Error()
}

func (e *CaptureError) Unwrap() error {
	return e.Err
}
