package database

import (
	"context"
	"embed"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migration はスキーママイグレーション1件
type Migration struct {
	Version int64
	Name    string
	SQL     string
}

// loadMigrations は埋め込まれたマイグレーションをバージョン順に返す
func loadMigrations() ([]Migration, error) {
	entries, err := migrationFiles.ReadDir("migrations")
	if err != nil {
		return nil, fmt.Errorf("マイグレーションディレクトリの読み込みに失敗: %w", err)
	}

	seen := make(map[int64]string, len(entries))
	migrations := make([]Migration, 0, len(entries))
	for _, entry := range entries {
		name := strings.TrimSuffix(entry.Name(), ".sql")
		parts := strings.SplitN(name, "_", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("不正なマイグレーションファイル名: %s", entry.Name())
		}

		version, err := strconv.ParseInt(parts[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("マイグレーションのバージョン解析に失敗 %s: %w", entry.Name(), err)
		}
		if prev, ok := seen[version]; ok {
			return nil, fmt.Errorf("マイグレーションのバージョンが重複: %d (%s, %s)", version, prev, parts[1])
		}
		seen[version] = parts[1]

		content, err := migrationFiles.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return nil, fmt.Errorf("マイグレーションの読み込みに失敗 %s: %w", entry.Name(), err)
		}

		migrations = append(migrations, Migration{Version: version, Name: parts[1], SQL: string(content)})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

// migrate は未適用のマイグレーションを順に適用する
func (d *Database) migrate(ctx context.Context) error {
	if _, err := d.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		name    TEXT NOT NULL
	)`); err != nil {
		return fmt.Errorf("schema_migrations の作成に失敗: %w", err)
	}

	migrations, err := loadMigrations()
	if err != nil {
		return err
	}

	for _, m := range migrations {
		var count int
		if err := d.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM schema_migrations WHERE version = ?`, m.Version).Scan(&count); err != nil {
			return fmt.Errorf("マイグレーション状態の取得に失敗: %w", err)
		}
		if count > 0 {
			continue
		}

		tx, err := d.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("トランザクションの開始に失敗: %w", err)
		}
		if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("マイグレーション %d_%s の適用に失敗: %w", m.Version, m.Name, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO schema_migrations (version, name) VALUES (?, ?)`, m.Version, m.Name); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("マイグレーション %d の記録に失敗: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("マイグレーション %d のコミットに失敗: %w", m.Version, err)
		}

		d.logger.Debug("マイグレーションを適用しました", "version", m.Version, "name", m.Name)
	}

	return nil
}
