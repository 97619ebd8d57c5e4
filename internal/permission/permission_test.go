package permission

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gymcamera/internal/database"
	"gymcamera/internal/logging"
	"gymcamera/internal/platform"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeChecker はテスト用の付与状態
type fakeChecker struct {
	granted  map[Permission]bool
	recorded map[Permission]bool
	err      error
}

func (f *fakeChecker) IsGranted(_ context.Context, p Permission) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.granted[p], nil
}

func (f *fakeChecker) Record(_ context.Context, results map[Permission]bool) error {
	f.recorded = results
	return nil
}

// recordingRequester は要求内容を記録する
type recordingRequester struct {
	calls   [][]Permission
	answers map[Permission]bool
}

func (r *recordingRequester) Request(_ context.Context, perms []Permission) (map[Permission]bool, error) {
	r.calls = append(r.calls, perms)
	return r.answers, nil
}

func TestRequired(t *testing.T) {
	for v := platform.Version(21); v < platform.VersionQ; v++ {
		assert.Equal(t, []Permission{Camera, WriteExternalStorage}, Required(v), "version %d", v)
	}
	for v := platform.VersionQ; v <= 35; v++ {
		assert.Equal(t, []Permission{Camera}, Required(v), "version %d", v)
	}
}

func TestGate_AllGrantedDoesNotPrompt(t *testing.T) {
	checker := &fakeChecker{granted: map[Permission]bool{Camera: true, WriteExternalStorage: true}}
	requester := &recordingRequester{}

	gate := NewGate(28, checker, requester, logging.Discard())
	result, err := gate.Run(context.Background())

	require.NoError(t, err)
	assert.True(t, result.Granted())
	assert.Empty(t, requester.calls)
	assert.Empty(t, result.Requested)
}

func TestGate_RequestsOnlyMissingInOneCall(t *testing.T) {
	checker := &fakeChecker{granted: map[Permission]bool{Camera: true}}
	requester := &recordingRequester{answers: map[Permission]bool{WriteExternalStorage: true}}

	gate := NewGate(28, checker, requester, logging.Discard())
	result, err := gate.Run(context.Background())

	require.NoError(t, err)
	require.Len(t, requester.calls, 1)
	assert.Equal(t, []Permission{WriteExternalStorage}, requester.calls[0])
	assert.True(t, result.Granted())
	assert.Equal(t, map[Permission]bool{WriteExternalStorage: true}, checker.recorded)
}

func TestGate_AnyDenialDenies(t *testing.T) {
	checker := &fakeChecker{granted: map[Permission]bool{}}
	requester := &recordingRequester{answers: map[Permission]bool{Camera: true, WriteExternalStorage: false}}

	gate := NewGate(24, checker, requester, logging.Discard())
	result, err := gate.Run(context.Background())

	require.NoError(t, err)
	assert.False(t, result.Granted())
	assert.Equal(t, []Permission{WriteExternalStorage}, result.Denied)
}

func TestGate_MissingAnswerIsDenial(t *testing.T) {
	checker := &fakeChecker{granted: map[Permission]bool{}}
	requester := &recordingRequester{answers: map[Permission]bool{}}

	gate := NewGate(34, checker, requester, logging.Discard())
	result, err := gate.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []Permission{Camera}, result.Denied)
}

func TestGate_CheckerError(t *testing.T) {
	checker := &fakeChecker{err: errors.New("boom")}
	gate := NewGate(34, checker, &recordingRequester{}, logging.Discard())

	_, err := gate.Run(context.Background())
	assert.Error(t, err)
}

func TestGrantStore(t *testing.T) {
	ctx := context.Background()
	cfg := database.DefaultConfig()
	cfg.Path = filepath.Join(t.TempDir(), "grants.db")
	db, err := database.Open(ctx, cfg, logging.Discard())
	require.NoError(t, err)
	defer db.Close()

	store := NewGrantStore(db.DB())

	granted, err := store.IsGranted(ctx, Camera)
	require.NoError(t, err)
	assert.False(t, granted)

	require.NoError(t, store.Record(ctx, map[Permission]bool{Camera: true, WriteExternalStorage: false}))

	granted, err = store.IsGranted(ctx, Camera)
	require.NoError(t, err)
	assert.True(t, granted)

	granted, err = store.IsGranted(ctx, WriteExternalStorage)
	require.NoError(t, err)
	assert.False(t, granted)

	// 上書き
	require.NoError(t, store.Record(ctx, map[Permission]bool{WriteExternalStorage: true}))
	granted, err = store.IsGranted(ctx, WriteExternalStorage)
	require.NoError(t, err)
	assert.True(t, granted)

	require.NoError(t, store.Revoke(ctx, Camera))
	granted, err = store.IsGranted(ctx, Camera)
	require.NoError(t, err)
	assert.False(t, granted)
}

func TestGrantStore_GateSkipsPromptOnSecondLaunch(t *testing.T) {
	ctx := context.Background()
	cfg := database.DefaultConfig()
	cfg.Path = filepath.Join(t.TempDir(), "grants.db")
	db, err := database.Open(ctx, cfg, logging.Discard())
	require.NoError(t, err)
	defer db.Close()

	store := NewGrantStore(db.DB())
	requester := &recordingRequester{answers: map[Permission]bool{Camera: true}}

	_, err = NewGate(34, store, requester, logging.Discard()).Run(ctx)
	require.NoError(t, err)
	_, err = NewGate(34, store, requester, logging.Discard()).Run(ctx)
	require.NoError(t, err)

	assert.Len(t, requester.calls, 1)
}

func TestStaticRequester(t *testing.T) {
	results, err := NewStaticRequester(true).Request(context.Background(), []Permission{Camera})
	require.NoError(t, err)
	assert.Equal(t, map[Permission]bool{Camera: true}, results)

	results, err = NewStaticRequester(false).Request(context.Background(), []Permission{Camera, WriteExternalStorage})
	require.NoError(t, err)
	assert.False(t, results[Camera])
	assert.False(t, results[WriteExternalStorage])
}

func TestTerminalRequester(t *testing.T) {
	var out strings.Builder
	r := &TerminalRequester{
		in:         strings.NewReader("y\nno\n"),
		out:        &out,
		isTerminal: func() bool { return true },
	}

	results, err := r.Request(context.Background(), []Permission{Camera, WriteExternalStorage})
	require.NoError(t, err)
	assert.True(t, results[Camera])
	assert.False(t, results[WriteExternalStorage])
	assert.Contains(t, out.String(), string(Camera))
}

func TestTerminalRequester_CancelKeepsPendingAnswer(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	r := &TerminalRequester{
		in:         pr,
		out:        &strings.Builder{},
		isTerminal: func() bool { return true },
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := r.Request(ctx, []Permission{Camera})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// キャンセル後に入力された回答は次の要求が受け取る
	go func() {
		_, _ = pw.Write([]byte("yes\n"))
	}()
	results, err := r.Request(context.Background(), []Permission{Camera})
	require.NoError(t, err)
	assert.True(t, results[Camera])
}

func TestTerminalRequester_ClosedInputDenies(t *testing.T) {
	r := &TerminalRequester{
		in:         strings.NewReader("y"),
		out:        &strings.Builder{},
		isTerminal: func() bool { return true },
	}

	results, err := r.Request(context.Background(), []Permission{Camera, WriteExternalStorage})
	require.NoError(t, err)
	assert.True(t, results[Camera])
	assert.False(t, results[WriteExternalStorage])
}

func TestTerminalRequester_NotATerminal(t *testing.T) {
	r := &TerminalRequester{
		in:         strings.NewReader("y\n"),
		out:        &strings.Builder{},
		isTerminal: func() bool { return false },
	}

	results, err := r.Request(context.Background(), []Permission{Camera})
	require.NoError(t, err)
	assert.False(t, results[Camera])
}

func TestDialogRequester_RespondOnce(t *testing.T) {
	shown := make(chan Dialog, 1)
	r := NewDialogRequester(func(d Dialog) { shown <- d })

	type reply struct {
		results map[Permission]bool
		err     error
	}
	done := make(chan reply, 1)
	go func() {
		results, err := r.Request(context.Background(), []Permission{Camera})
		done <- reply{results, err}
	}()

	var dialog Dialog
	select {
	case dialog = <-shown:
	case <-time.After(2 * time.Second):
		t.Fatal("dialog was not shown")
	}

	pending, ok := r.Pending()
	require.True(t, ok)
	assert.Equal(t, dialog.ID, pending.ID)
	assert.Len(t, dialog.ID, 26)

	require.NoError(t, r.Respond(dialog.ID, map[Permission]bool{Camera: true}))
	assert.ErrorIs(t, r.Respond(dialog.ID, map[Permission]bool{Camera: false}), ErrDialogNotFound)

	got := <-done
	require.NoError(t, got.err)
	assert.True(t, got.results[Camera])

	_, ok = r.Pending()
	assert.False(t, ok)
}

func TestDialogRequester_ContextCancel(t *testing.T) {
	r := NewDialogRequester(nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := r.Request(ctx, []Permission{Camera})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	_, ok := r.Pending()
	assert.False(t, ok)
}

func TestDialogRequester_UnknownID(t *testing.T) {
	r := NewDialogRequester(nil)
	assert.ErrorIs(t, r.Respond("missing", nil), ErrDialogNotFound)
}
