package lifecycle

import (
	"context"
	"sync"
)

// Executor は処理を実行するコンテキスト
type Executor interface {
	// Execute は fn の実行を予約する。実行できない場合は false を返す
	Execute(fn func()) bool
}

// MainExecutor は単一ゴルーチンで投入順に処理を実行する
// CaptureHandle などUI所有の状態はこのエグゼキューター上でのみ読み書きする。
type MainExecutor struct {
	mu      sync.Mutex
	pending []func()
	closed  bool
	signal  chan struct{}
	done    chan struct{}
}

// NewMainExecutor は新しいMainExecutorを作成する
func NewMainExecutor() *MainExecutor {
	return &MainExecutor{
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Execute は fn をキューに追加する
// 実行中の処理から呼んでもブロックしない。
func (e *MainExecutor) Execute(fn func()) bool {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return false
	}
	e.pending = append(e.pending, fn)
	e.mu.Unlock()

	e.wake()
	return true
}

// Run はキューの処理を開始し、Close されるかコンテキストが終了するまでブロックする
func (e *MainExecutor) Run(ctx context.Context) error {
	defer close(e.done)

	for {
		select {
		case <-ctx.Done():
			e.Close()
			return ctx.Err()
		case <-e.signal:
		}

		for {
			e.mu.Lock()
			batch := e.pending
			e.pending = nil
			closed := e.closed
			e.mu.Unlock()

			if len(batch) == 0 {
				if closed {
					return nil
				}
				break
			}
			for _, fn := range batch {
				fn()
			}
		}
	}
}

// Close は新規投入を止める。キューに残った処理は Run が実行してから終了する
func (e *MainExecutor) Close() {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()

	e.wake()
}

// Done は Run が終了したときにクローズされるチャンネルを返す
func (e *MainExecutor) Done() <-chan struct{} {
	return e.done
}

func (e *MainExecutor) wake() {
	select {
	case e.signal <- struct{}{}:
	default:
	}
}

// DirectExecutor は呼び出し元のゴルーチンでそのまま実行する（テスト用）
type DirectExecutor struct{}

// Execute は fn を即座に実行する
func (DirectExecutor) Execute(fn func()) bool {
	fn()
	return true
}
