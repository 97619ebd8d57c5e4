package lifecycle

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScope_DestroyRunsHooksInReverseOnce(t *testing.T) {
	scope := NewScope("main")
	var order []int

	scope.OnDestroy(func() { order = append(order, 1) })
	scope.OnDestroy(func() { order = append(order, 2) })
	scope.OnDestroy(func() { order = append(order, 3) })

	assert.True(t, scope.Alive())
	scope.Destroy()
	scope.Destroy()

	assert.Equal(t, []int{3, 2, 1}, order)
	assert.False(t, scope.Alive())

	select {
	case <-scope.Done():
	default:
		t.Fatal("Done should be closed after Destroy")
	}
	assert.Error(t, scope.Context().Err())
}

func TestScope_RemoveHook(t *testing.T) {
	scope := NewScope("main")
	called := false

	remove := scope.OnDestroy(func() { called = true })
	remove()
	scope.Destroy()

	assert.False(t, called)
}

func TestScope_OnDestroyAfterDestroyRunsImmediately(t *testing.T) {
	scope := NewScope("main")
	scope.Destroy()

	called := false
	scope.OnDestroy(func() { called = true })
	assert.True(t, called)
}

func TestMainExecutor_RunsInOrder(t *testing.T) {
	exec := NewMainExecutor()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = exec.Run(ctx) }()

	var (
		mu    sync.Mutex
		order []int
	)
	var wg sync.WaitGroup
	wg.Add(10)
	for i := 0; i < 10; i++ {
		i := i
		require.True(t, exec.Execute(func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			wg.Done()
		}))
	}
	wg.Wait()

	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, order)
}

func TestMainExecutor_ReentrantExecute(t *testing.T) {
	exec := NewMainExecutor()
	go func() { _ = exec.Run(context.Background()) }()
	defer exec.Close()

	done := make(chan struct{})
	exec.Execute(func() {
		exec.Execute(func() { close(done) })
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("nested Execute did not run")
	}
}

func TestMainExecutor_CloseDrainsAndRejects(t *testing.T) {
	exec := NewMainExecutor()

	ran := 0
	exec.Execute(func() { ran++ })
	exec.Execute(func() { ran++ })
	exec.Close()

	assert.False(t, exec.Execute(func() { ran++ }))

	require.NoError(t, exec.Run(context.Background()))
	assert.Equal(t, 2, ran)

	select {
	case <-exec.Done():
	default:
		t.Fatal("Done should be closed after Run returns")
	}
}

func TestMainExecutor_ContextCancel(t *testing.T) {
	exec := NewMainExecutor()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, exec.Run(ctx), context.Canceled)
	assert.False(t, exec.Execute(func() {}))
}
