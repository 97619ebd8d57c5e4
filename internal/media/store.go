// Package media は管理されたメディアコレクション（共有写真のインデックス）を提供する
//
// # 責務
// - 表示名・MIMEタイプ・相対フォルダから保存先エントリを確保する
// - 書き込み完了時にエントリを公開し、content:// 形式のURIを返す
// - 公開済みエントリの一覧を返す
//
// # 仕様
// - インデックスはSQLite（media テーブル）に保存する
// - 実ファイルは公開ストレージのルート配下 <root>/<relative>/<display name> に置く
// - 同名ファイルが存在する場合は "name (1).jpg" のように連番を付ける
// - 書き込み中のエントリは pending として扱い、一覧には出さない
package media

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gymcamera/internal/logging"
)

const (
	// VolumeExternal は外部ストレージ全体のボリューム名
	VolumeExternal = "external"
	// VolumeExternalPrimary はプライマリ外部ストレージのボリューム名
	VolumeExternalPrimary = "external_primary"

	// Scheme はメディアコレクションのURIスキーム
	Scheme = "content"
	// Authority はメディアコレクションのURIオーソリティ
	Authority = "media"
)

var (
	// ErrInvalidCollection は不正なコレクションURIが指定された場合のエラー
	ErrInvalidCollection = errors.New("invalid media collection")
	// ErrInvalidValues は不正なContentValuesが指定された場合のエラー
	ErrInvalidValues = errors.New("invalid content values")
	// ErrNotFound はエントリが存在しない場合のエラー
	ErrNotFound = errors.New("media entry not found")
	// ErrEntryClosed は確定済み・破棄済みのエントリを操作した場合のエラー
	ErrEntryClosed = errors.New("media entry already closed")
)

// ContentValues はエントリを確保するときのメタデータ
type ContentValues struct {
	DisplayName  string // 表示名（ファイル名）
	MIMEType     string // MIMEタイプ
	RelativePath string // ストレージルートからの相対フォルダ
}

// Item は公開済みのメディアエントリ
type Item struct {
	ID           int64     `json:"id"`
	URI          string    `json:"uri"`
	DisplayName  string    `json:"display_name"`
	MIMEType     string    `json:"mime_type"`
	RelativePath string    `json:"relative_path"`
	Path         string    `json:"-"`
	Size         int64     `json:"size"`
	DateAdded    time.Time `json:"date_added"`
}

// ImagesCollection はボリュームの画像コレクションURIを返す
func ImagesCollection(volume string) string {
	return fmt.Sprintf("%s://%s/%s/images/media", Scheme, Authority, volume)
}

// Store はSQLiteでインデックスされたメディアストア
type Store struct {
	db     *sql.DB
	root   string
	logger *logging.Logger
	now    func() time.Time
}

// NewStore は新しいStoreを作成する
func NewStore(db *sql.DB, root string, logger *logging.Logger) *Store {
	return &Store{
		db:     db,
		root:   root,
		logger: logger.WithComponent("media"),
		now:    time.Now,
	}
}

// Root はストレージのルートディレクトリを返す
func (s *Store) Root() string {
	return s.root
}

// Entry は書き込み中のメディアエントリの操作
type Entry interface {
	io.Writer

	// ID はエントリのIDを返す
	ID() int64

	// Commit は書き込みを確定してエントリを公開する
	Commit(ctx context.Context) (*url.URL, error)

	// Abort は書き込みを破棄する
	Abort(ctx context.Context) error
}

// Insert はコレクションに書き込み中のエントリを確保する
func (s *Store) Insert(ctx context.Context, collection string, values ContentValues) (Entry, error) {
	volume, err := parseCollection(collection)
	if err != nil {
		return nil, err
	}
	if err := validateValues(values); err != nil {
		return nil, err
	}

	dir := filepath.Join(s.root, filepath.FromSlash(values.RelativePath))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("保存先フォルダの作成に失敗: %w", err)
	}

	file, err := os.CreateTemp(dir, ".pending-*"+filepath.Ext(values.DisplayName))
	if err != nil {
		return nil, fmt.Errorf("一時ファイルの作成に失敗: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO media (volume, display_name, mime_type, relative_path, data_path, is_pending, date_added)
		VALUES (?, ?, ?, ?, ?, 1, ?)`,
		volume, values.DisplayName, values.MIMEType, values.RelativePath, file.Name(), s.now().Unix())
	if err != nil {
		_ = file.Close()
		_ = os.Remove(file.Name())
		return nil, fmt.Errorf("メディアエントリの登録に失敗: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		_ = file.Close()
		_ = os.Remove(file.Name())
		return nil, fmt.Errorf("メディアIDの取得に失敗: %w", err)
	}

	s.logger.Debug("メディアエントリを確保しました", "id", id, "display_name", values.DisplayName)

	return &PendingEntry{
		store:  s,
		id:     id,
		volume: volume,
		values: values,
		dir:    dir,
		file:   file,
	}, nil
}

// Recent は公開済みエントリを新しい順に返す
func (s *Store) Recent(ctx context.Context, limit int) ([]Item, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, volume, display_name, mime_type, relative_path, data_path, size, date_added
		FROM media WHERE is_pending = 0
		ORDER BY date_added DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("メディア一覧の取得に失敗: %w", err)
	}
	defer rows.Close()

	items := make([]Item, 0, limit)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// Get はIDで公開済みエントリを取得する
func (s *Store) Get(ctx context.Context, id int64) (Item, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, volume, display_name, mime_type, relative_path, data_path, size, date_added
		FROM media WHERE id = ? AND is_pending = 0`, id)

	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Item{}, ErrNotFound
	}
	return item, err
}

// Prune は実ファイルが失われたエントリと、古い書き込み中エントリをインデックスから取り除く
func (s *Store) Prune(ctx context.Context, pendingTTL time.Duration) (int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, data_path, is_pending, date_added FROM media`)
	if err != nil {
		return 0, fmt.Errorf("メディアインデックスの走査に失敗: %w", err)
	}

	type stale struct {
		id      int64
		path    string
		pending bool
	}
	var targets []stale
	cutoff := s.now().Add(-pendingTTL).Unix()
	for rows.Next() {
		var (
			id        int64
			path      string
			pending   bool
			dateAdded int64
		)
		if err := rows.Scan(&id, &path, &pending, &dateAdded); err != nil {
			rows.Close()
			return 0, fmt.Errorf("メディアインデックスの読み込みに失敗: %w", err)
		}
		if pending {
			if dateAdded < cutoff {
				targets = append(targets, stale{id: id, path: path, pending: true})
			}
			continue
		}
		if _, err := os.Stat(path); os.IsNotExist(err) {
			targets = append(targets, stale{id: id, path: path})
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	for _, t := range targets {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM media WHERE id = ?`, t.id); err != nil {
			return 0, fmt.Errorf("メディアエントリ %d の削除に失敗: %w", t.id, err)
		}
		if t.pending {
			_ = os.Remove(t.path)
		}
	}

	if len(targets) > 0 {
		s.logger.Info("メディアインデックスを整理しました", "removed", len(targets))
	}
	return len(targets), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (Item, error) {
	var (
		item      Item
		volume    string
		dateAdded int64
	)
	if err := row.Scan(&item.ID, &volume, &item.DisplayName, &item.MIMEType,
		&item.RelativePath, &item.Path, &item.Size, &dateAdded); err != nil {
		return Item{}, err
	}
	item.URI = entryURI(volume, item.ID).String()
	item.DateAdded = time.Unix(dateAdded, 0)
	return item, nil
}

// entryURI はエントリのcontent URIを組み立てる
func entryURI(volume string, id int64) *url.URL {
	return &url.URL{
		Scheme: Scheme,
		Host:   Authority,
		Path:   "/" + volume + "/images/media/" + strconv.FormatInt(id, 10),
	}
}

// parseCollection はコレクションURIからボリューム名を取り出す
func parseCollection(collection string) (string, error) {
	u, err := url.Parse(collection)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidCollection, err)
	}
	if u.Scheme != Scheme || u.Host != Authority {
		return "", fmt.Errorf("%w: %s", ErrInvalidCollection, collection)
	}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) != 3 || parts[1] != "images" || parts[2] != "media" || parts[0] == "" {
		return "", fmt.Errorf("%w: %s", ErrInvalidCollection, collection)
	}
	return parts[0], nil
}

// validateValues はContentValuesを検証する
func validateValues(values ContentValues) error {
	if values.DisplayName == "" || strings.ContainsAny(values.DisplayName, `/\`) || strings.HasPrefix(values.DisplayName, ".") {
		return fmt.Errorf("%w: display name %q", ErrInvalidValues, values.DisplayName)
	}
	if !strings.HasPrefix(values.MIMEType, "image/") {
		return fmt.Errorf("%w: mime type %q", ErrInvalidValues, values.MIMEType)
	}

	rel := values.RelativePath
	if rel == "" || filepath.IsAbs(rel) || strings.HasPrefix(rel, "/") {
		return fmt.Errorf("%w: relative path %q", ErrInvalidValues, rel)
	}
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if part == ".." {
			return fmt.Errorf("%w: relative path %q", ErrInvalidValues, rel)
		}
	}
	return nil
}
