package permission

import (
	"context"
	"crypto/rand"
	"errors"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	// ErrDialogNotFound は応答対象のダイアログが存在しない場合のエラー
	ErrDialogNotFound = errors.New("permission dialog not found")
	// ErrDialogPending は既に別のダイアログが表示中の場合のエラー
	ErrDialogPending = errors.New("permission dialog already pending")
)

// Dialog は画面に表示中の権限ダイアログ
type Dialog struct {
	ID          string       `json:"id"`
	Permissions []Permission `json:"permissions"`
	CreatedAt   time.Time    `json:"created_at"`
}

// DialogRequester は画面上のモーダルダイアログで権限を要求する
// Request は Respond が呼ばれるかコンテキストが終了するまでブロックする。
type DialogRequester struct {
	mu      sync.Mutex
	pending *Dialog
	answer  chan map[Permission]bool
	onShow  func(Dialog)
	now     func() time.Time
	entropy *ulid.MonotonicEntropy
	idMu    sync.Mutex
}

// NewDialogRequester は新しいDialogRequesterを作成する
// onShow はダイアログ表示時に呼ばれる（nil 可）。
func NewDialogRequester(onShow func(Dialog)) *DialogRequester {
	return &DialogRequester{
		onShow:  onShow,
		now:     time.Now,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

// Request はダイアログを表示して応答を待つ
func (r *DialogRequester) Request(ctx context.Context, perms []Permission) (map[Permission]bool, error) {
	r.mu.Lock()
	if r.pending != nil {
		r.mu.Unlock()
		return nil, ErrDialogPending
	}

	now := r.now()
	dialog := Dialog{
		ID:          r.newID(now),
		Permissions: append([]Permission(nil), perms...),
		CreatedAt:   now,
	}
	answer := make(chan map[Permission]bool, 1)
	r.pending = &dialog
	r.answer = answer
	r.mu.Unlock()

	if r.onShow != nil {
		r.onShow(dialog)
	}

	select {
	case grants := <-answer:
		results := make(map[Permission]bool, len(perms))
		for _, p := range perms {
			results[p] = grants[p]
		}
		return results, nil
	case <-ctx.Done():
		r.mu.Lock()
		if r.pending != nil && r.pending.ID == dialog.ID {
			r.pending = nil
			r.answer = nil
		}
		r.mu.Unlock()
		return nil, ctx.Err()
	}
}

// Pending は表示中のダイアログを返す
func (r *DialogRequester) Pending() (Dialog, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.pending == nil {
		return Dialog{}, false
	}
	return *r.pending, true
}

// Respond はダイアログに応答する。ダイアログは1回だけ応答できる
func (r *DialogRequester) Respond(id string, grants map[Permission]bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.pending == nil || r.pending.ID != id {
		return ErrDialogNotFound
	}

	r.answer <- grants
	r.pending = nil
	r.answer = nil
	return nil
}

func (r *DialogRequester) newID(t time.Time) string {
	r.idMu.Lock()
	defer r.idMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), r.entropy).String()
}
