package permission

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// GrantStore はSQLiteに権限の付与状態を保存する
type GrantStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewGrantStore は新しいGrantStoreを作成する
func NewGrantStore(db *sql.DB) *GrantStore {
	return &GrantStore{db: db, now: time.Now}
}

// IsGranted は権限が付与済みかを返す。記録がなければ未付与
func (s *GrantStore) IsGranted(ctx context.Context, p Permission) (bool, error) {
	var granted bool
	err := s.db.QueryRowContext(ctx,
		`SELECT granted FROM permission_grants WHERE permission = ?`, string(p)).Scan(&granted)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("権限状態の取得に失敗: %w", err)
	}
	return granted, nil
}

// Record は要求結果を保存する
func (s *GrantStore) Record(ctx context.Context, results map[Permission]bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクションの開始に失敗: %w", err)
	}

	now := s.now().Unix()
	for p, granted := range results {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO permission_grants (permission, granted, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(permission) DO UPDATE SET granted = excluded.granted, updated_at = excluded.updated_at`,
			string(p), granted, now); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("権限 %s の保存に失敗: %w", p, err)
		}
	}

	return tx.Commit()
}

// Revoke は権限の記録を削除する
func (s *GrantStore) Revoke(ctx context.Context, p Permission) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM permission_grants WHERE permission = ?`, string(p)); err != nil {
		return fmt.Errorf("権限 %s の削除に失敗: %w", p, err)
	}
	return nil
}
