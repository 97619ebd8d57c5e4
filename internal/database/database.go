// Package database はSQLiteデータベースの接続とマイグレーションを管理する
//
// メディアコレクションのインデックスと権限の付与状態を保存する。
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gymcamera/internal/logging"

	_ "modernc.org/sqlite"
)

// ErrClosed はクローズ済みのデータベースを使おうとした場合のエラー
var ErrClosed = errors.New("database is closed")

// Config はデータベースの設定
type Config struct {
	Path          string `yaml:"path"`            // データベースファイルのパス (":memory:" も可)
	BusyTimeoutMs int    `yaml:"busy_timeout_ms"` // ロック待ちのタイムアウト
	EnableWAL     bool   `yaml:"enable_wal"`      // WALモードを有効にするか
}

// DefaultConfig はデフォルトのデータベース設定を返す
func DefaultConfig() Config {
	return Config{
		Path:          "./gymcamera.db",
		BusyTimeoutMs: 5000,
		EnableWAL:     true,
	}
}

// Database はSQLite接続をラップする
type Database struct {
	db     *sql.DB
	config Config
	logger *logging.Logger
}

// Open はデータベースを開き、未適用のマイグレーションを適用する
func Open(ctx context.Context, config Config, logger *logging.Logger) (*Database, error) {
	if config.Path != ":memory:" {
		if dir := filepath.Dir(config.Path); dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("データベースディレクトリの作成に失敗: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", buildDSN(config))
	if err != nil {
		return nil, fmt.Errorf("データベースのオープンに失敗: %w", err)
	}

	// modernc sqlite は接続ごとに別DBになるため :memory: では1接続に制限する
	if config.Path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("データベースへの接続に失敗: %w", err)
	}

	database := &Database{db: db, config: config, logger: logger}

	if err := database.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	logger.Info("データベースを開きました", "path", config.Path, "wal", config.EnableWAL)
	return database, nil
}

// DB は内部の *sql.DB を返す
func (d *Database) DB() *sql.DB {
	return d.db
}

// Close はデータベースをクローズする
func (d *Database) Close() error {
	if d.db == nil {
		return ErrClosed
	}
	err := d.db.Close()
	d.db = nil
	return err
}

// buildDSN は設定からDSNを組み立てる
func buildDSN(config Config) string {
	var pragmas []string
	if config.BusyTimeoutMs > 0 {
		pragmas = append(pragmas, fmt.Sprintf("_pragma=busy_timeout(%d)", config.BusyTimeoutMs))
	}
	if config.EnableWAL && config.Path != ":memory:" {
		pragmas = append(pragmas, "_pragma=journal_mode(WAL)")
	}
	pragmas = append(pragmas, "_pragma=foreign_keys(1)")

	path := config.Path
	if path != ":memory:" {
		path = "file:" + path
	}
	return path + "?" + strings.Join(pragmas, "&")
}
