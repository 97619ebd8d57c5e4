// Package lifecycle は画面の可視期間を表すスコープとメイン実行コンテキストを提供する
//
// # 責務
// - Scope: カメラなどのリソースを画面の生存期間に束縛し、終了時に確実に解放する
// - MainExecutor: UIスレッド相当の単一ゴルーチンで処理を直列に実行する
//
// リソースの束縛は暗黙の登録ではなく、Scope を明示的に渡して行う。
package lifecycle

import (
	"context"
	"sync"
)

// Scope は画面の可視期間を表すハンドル
type Scope struct {
	name      string
	mu        sync.Mutex
	hooks     []*hook
	destroyed bool
	ctx       context.Context
	cancel    context.CancelFunc
}

type hook struct {
	fn      func()
	removed bool
}

// NewScope は新しいScopeを作成する
// 親コンテキストがキャンセルされても Scope は自動では破棄されない。破棄は Destroy で行う。
func NewScope(name string) *Scope {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scope{
		name:   name,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Name はスコープ名を返す
func (s *Scope) Name() string {
	return s.name
}

// Context はスコープ破棄時にキャンセルされるコンテキストを返す
func (s *Scope) Context() context.Context {
	return s.ctx
}

// Done はスコープ破棄時にクローズされるチャンネルを返す
func (s *Scope) Done() <-chan struct{} {
	return s.ctx.Done()
}

// Alive はスコープがまだ破棄されていないかを返す
func (s *Scope) Alive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.destroyed
}

// OnDestroy はスコープ破棄時に実行する解放処理を登録する
// 既に破棄済みの場合は即座に実行する。戻り値の関数で登録を解除できる。
func (s *Scope) OnDestroy(fn func()) (remove func()) {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		fn()
		return func() {}
	}

	h := &hook{fn: fn}
	s.hooks = append(s.hooks, h)
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		h.removed = true
	}
}

// Destroy はスコープを破棄し、登録された解放処理を登録と逆順に1回だけ実行する
func (s *Scope) Destroy() {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return
	}
	s.destroyed = true
	hooks := make([]func(), 0, len(s.hooks))
	for _, h := range s.hooks {
		if !h.removed {
			hooks = append(hooks, h.fn)
		}
	}
	s.hooks = nil
	s.mu.Unlock()

	for i := len(hooks) - 1; i >= 0; i-- {
		hooks[i]()
	}

	s.cancel()
}
