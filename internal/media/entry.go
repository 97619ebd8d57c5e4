package media

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

var _ Entry = (*PendingEntry)(nil)

// maxNameAttempts は同名回避の連番の上限
const maxNameAttempts = 1000

// PendingEntry は書き込み中のメディアエントリ
type PendingEntry struct {
	store  *Store
	id     int64
	volume string
	values ContentValues
	dir    string
	file   *os.File
	size   int64
	closed bool
}

// ID はエントリのIDを返す
func (e *PendingEntry) ID() int64 {
	return e.id
}

// Write は画像データを書き込む
func (e *PendingEntry) Write(p []byte) (int, error) {
	if e.closed {
		return 0, ErrEntryClosed
	}
	n, err := e.file.Write(p)
	e.size += int64(n)
	return n, err
}

// Commit は書き込みを確定してエントリを公開する
// インデックスからエントリが消えていた場合、ファイルは残したまま nil のURIを返す。
func (e *PendingEntry) Commit(ctx context.Context) (*url.URL, error) {
	if e.closed {
		return nil, ErrEntryClosed
	}
	e.closed = true

	tempPath := e.file.Name()
	if err := e.file.Sync(); err != nil {
		_ = e.file.Close()
		_ = os.Remove(tempPath)
		return nil, fmt.Errorf("画像データの同期に失敗: %w", err)
	}
	if err := e.file.Close(); err != nil {
		_ = os.Remove(tempPath)
		return nil, fmt.Errorf("一時ファイルのクローズに失敗: %w", err)
	}

	finalPath, err := publishFile(tempPath, e.dir, e.values.DisplayName)
	if err != nil {
		_ = os.Remove(tempPath)
		_, _ = e.store.db.ExecContext(ctx, `DELETE FROM media WHERE id = ?`, e.id)
		return nil, err
	}

	res, err := e.store.db.ExecContext(ctx, `
		UPDATE media SET is_pending = 0, data_path = ?, display_name = ?, size = ?
		WHERE id = ?`,
		finalPath, filepath.Base(finalPath), e.size, e.id)
	if err != nil {
		return nil, fmt.Errorf("メディアエントリの公開に失敗: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("メディアエントリの公開結果の取得に失敗: %w", err)
	}
	if affected == 0 {
		e.store.logger.Warn("公開時にメディアエントリが見つかりません", "id", e.id, "path", finalPath)
		return nil, nil
	}

	e.store.logger.Info("メディアエントリを公開しました", "id", e.id, "path", finalPath, "size", e.size)
	return entryURI(e.volume, e.id), nil
}

// Abort は書き込みを破棄し、エントリと一時ファイルを削除する
func (e *PendingEntry) Abort(ctx context.Context) error {
	if e.closed {
		return nil
	}
	e.closed = true

	_ = e.file.Close()
	removeErr := os.Remove(e.file.Name())
	if removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) {
		return fmt.Errorf("一時ファイルの削除に失敗: %w", removeErr)
	}

	if _, err := e.store.db.ExecContext(ctx, `DELETE FROM media WHERE id = ?`, e.id); err != nil {
		return fmt.Errorf("メディアエントリの削除に失敗: %w", err)
	}
	return nil
}

// publishFile は一時ファイルを表示名で公開する。同名がある場合は連番を付ける
func publishFile(tempPath, dir, displayName string) (string, error) {
	ext := filepath.Ext(displayName)
	base := strings.TrimSuffix(displayName, ext)

	for i := 0; i < maxNameAttempts; i++ {
		name := displayName
		if i > 0 {
			name = fmt.Sprintf("%s (%d)%s", base, i, ext)
		}
		target := filepath.Join(dir, name)

		// Link は既存ファイルを上書きしない
		err := os.Link(tempPath, target)
		if err == nil {
			_ = os.Remove(tempPath)
			return target, nil
		}
		if errors.Is(err, os.ErrExist) {
			continue
		}

		// ハードリンク非対応のファイルシステムでは存在確認してから rename する
		if _, statErr := os.Stat(target); statErr == nil {
			continue
		}
		if err := os.Rename(tempPath, target); err != nil {
			return "", fmt.Errorf("画像ファイルの公開に失敗: %w", err)
		}
		return target, nil
	}

	return "", fmt.Errorf("空いているファイル名が見つかりません: %s", displayName)
}
