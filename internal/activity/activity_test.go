package activity

import (
	"context"
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"gymcamera/internal/camera"
	"gymcamera/internal/database"
	"gymcamera/internal/lifecycle"
	"gymcamera/internal/logging"
	"gymcamera/internal/media"
	"gymcamera/internal/permission"
	"gymcamera/internal/platform"
	"gymcamera/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var captureTime = time.Date(2024, 6, 1, 10, 15, 30, 0, time.Local)

// toastRecorder はトーストを記録する
type toastRecorder struct {
	messages chan string
}

func newToastRecorder() *toastRecorder {
	return &toastRecorder{messages: make(chan string, 16)}
}

func (r *toastRecorder) Toast(message string) {
	r.messages <- message
}

func (r *toastRecorder) next(t *testing.T) string {
	t.Helper()
	select {
	case msg := <-r.messages:
		return msg
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for a toast")
	}
	return ""
}

func (r *toastRecorder) none(t *testing.T, wait time.Duration) {
	t.Helper()
	select {
	case msg := <-r.messages:
		t.Fatalf("Expected no toast, got %q", msg)
	case <-time.After(wait):
	}
}

// stubGate は決まった結果を返す権限ゲート
type stubGate struct {
	result permission.Result
	err    error
}

func (g stubGate) Run(context.Context) (permission.Result, error) {
	return g.result, g.err
}

func grantedGate() stubGate {
	return stubGate{result: permission.Result{Required: []permission.Permission{permission.Camera}}}
}

type harness struct {
	activity *Activity
	toasts   *toastRecorder
	exec     *lifecycle.MainExecutor
	root     string
	store    *media.Store
	provided atomic.Int32
}

type harnessOption func(*Config, *harness)

func withGate(gate PermissionGate) harnessOption {
	return func(cfg *Config, _ *harness) { cfg.Gate = gate }
}

func withVersion(v platform.Version) harnessOption {
	return func(cfg *Config, h *harness) {
		cfg.Platform.Version = v
		cfg.Strategy = storage.Select(cfg.Platform, h.store)
	}
}

func withStrategy(s storage.Strategy) harnessOption {
	return func(cfg *Config, _ *harness) { cfg.Strategy = s }
}

func withDevices(devices ...string) harnessOption {
	return func(cfg *Config, h *harness) {
		future := camera.NewProviderFuture(context.Background(), camera.ProviderConfig{
			Discovery: camera.NewMockDiscovery(devices),
			Settings:  camera.Settings{FPS: 30, Width: 64, Height: 48},
		})
		cfg.Providers = func() *camera.ProviderFuture {
			h.provided.Add(1)
			return future
		}
	}
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()

	dbCfg := database.DefaultConfig()
	dbCfg.Path = filepath.Join(t.TempDir(), "gymcamera.db")
	db, err := database.Open(context.Background(), dbCfg, logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	h := &harness{
		toasts: newToastRecorder(),
		exec:   lifecycle.NewMainExecutor(),
		root:   t.TempDir(),
	}
	h.store = media.NewStore(db.DB(), h.root, logging.Discard())

	info, err := platform.NewInfo(platform.Version(34), h.root)
	require.NoError(t, err)

	cfg := Config{
		Platform: info,
		Gate:     grantedGate(),
		Strategy: storage.Select(info, h.store),
		Executor: h.exec,
		Notifier: h.toasts,
		Clock:    func() time.Time { return captureTime },
		Logger:   logging.Discard(),
	}
	withDevices("/dev/video0")(&cfg, h)
	for _, opt := range opts {
		opt(&cfg, h)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = h.exec.Run(ctx) }()

	h.activity = New(cfg)
	t.Cleanup(func() {
		h.activity.Finish()
		cancel()
		<-h.exec.Done()
	})
	return h
}

// onMain は fn をメインエグゼキューターで実行して完了を待つ
func (h *harness) onMain(t *testing.T, fn func()) {
	t.Helper()
	done := make(chan struct{})
	require.True(t, h.exec.Execute(func() {
		fn()
		close(done)
	}))
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for the main executor")
	}
}

func (h *harness) waitBound(t *testing.T) {
	t.Helper()
	require.Eventually(t, func() bool { return h.activity.Status().Bound }, 5*time.Second, 10*time.Millisecond)
}

func TestActivity_PermissionDeniedFinishes(t *testing.T) {
	gate := stubGate{result: permission.Result{
		Required: []permission.Permission{permission.Camera},
		Denied:   []permission.Permission{permission.Camera},
	}}
	h := newHarness(t, withGate(gate))

	h.activity.OnCreate(context.Background())

	assert.Equal(t, "Required permissions not granted", h.toasts.next(t))
	select {
	case <-h.activity.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("Expected activity to finish")
	}
	assert.False(t, h.activity.Scope().Alive())
	assert.Zero(t, h.provided.Load(), "camera binding must not be attempted")
	assert.True(t, h.activity.Status().Finished)
}

func TestActivity_PermissionErrorFailsClosed(t *testing.T) {
	h := newHarness(t, withGate(stubGate{err: errors.New("grant store unavailable")}))

	h.activity.OnCreate(context.Background())

	assert.Equal(t, "Required permissions not granted", h.toasts.next(t))
	<-h.activity.Done()
	assert.Zero(t, h.provided.Load())
}

func TestActivity_CaptureWithoutHandleIsNoop(t *testing.T) {
	h := newHarness(t)

	// OnCreate 前はハンドルが無い
	h.onMain(t, h.activity.TakePhoto)

	h.toasts.none(t, 200*time.Millisecond)
	_, err := os.Stat(filepath.Join(h.root, "Gymphotos"))
	assert.True(t, os.IsNotExist(err), "no file or folder should be created")
}

func TestActivity_ModernCaptureSavesToMediaCollection(t *testing.T) {
	h := newHarness(t)
	h.activity.OnCreate(context.Background())
	h.waitBound(t)

	require.True(t, h.activity.RequestCapture())

	msg := h.toasts.next(t)
	assert.Equal(t, "Saved to /Gymphotos\ncontent://media/external_primary/images/media/1", msg)

	data, err := os.ReadFile(filepath.Join(h.root, "Gymphotos", "20240601-101530.jpg"))
	require.NoError(t, err)
	assert.NotEmpty(t, data)

	items, err := h.store.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "image/jpeg", items[0].MIMEType)
	assert.Equal(t, "Gymphotos", items[0].RelativePath)
}

func TestActivity_LegacyCaptureSavesToFilePath(t *testing.T) {
	h := newHarness(t, withVersion(platform.VersionP))
	h.activity.OnCreate(context.Background())
	h.waitBound(t)

	want := filepath.Join(h.root, "Gymphotos", "20240601-101530.jpg")

	require.True(t, h.activity.RequestCapture())
	msg := h.toasts.next(t)
	assert.True(t, strings.HasPrefix(msg, "Saved to /Gymphotos\nfile://"), msg)
	assert.True(t, strings.HasSuffix(msg, filepath.ToSlash(want)), msg)
	_, err := os.Stat(want)
	require.NoError(t, err)

	// 2回目は既存フォルダをそのまま使う
	require.True(t, h.activity.RequestCapture())
	assert.True(t, strings.HasPrefix(h.toasts.next(t), "Saved to /Gymphotos\n"))
}

// nilURIResolver は公開時に場所を返さないメディアコレクション
type nilURIResolver struct{}

func (nilURIResolver) Insert(context.Context, string, media.ContentValues) (media.Entry, error) {
	return &nilURIEntry{}, nil
}

type nilURIEntry struct{}

func (*nilURIEntry) Write(p []byte) (int, error)              { return len(p), nil }
func (*nilURIEntry) ID() int64                                { return 1 }
func (*nilURIEntry) Commit(context.Context) (*url.URL, error) { return nil, nil }
func (*nilURIEntry) Abort(context.Context) error              { return nil }

func TestActivity_NilURIIsSuccess(t *testing.T) {
	h := newHarness(t, withStrategy(storage.NewMediaCollectionStrategy(nilURIResolver{})))
	h.activity.OnCreate(context.Background())
	h.waitBound(t)

	require.True(t, h.activity.RequestCapture())
	assert.Equal(t, "Saved, but URI null (MediaStore).", h.toasts.next(t))
}

// failOnceResolver は最初の確保だけ失敗する
type failOnceResolver struct {
	store  *media.Store
	failed atomic.Bool
}

func (r *failOnceResolver) Insert(ctx context.Context, collection string, values media.ContentValues) (media.Entry, error) {
	if r.failed.CompareAndSwap(false, true) {
		return nil, errors.New("volume not mounted")
	}
	return r.store.Insert(ctx, collection, values)
}

func TestActivity_SaveFailureKeepsSessionBound(t *testing.T) {
	h := newHarness(t)
	resolver := &failOnceResolver{store: h.store}
	h.activity.cfg.Strategy = storage.NewMediaCollectionStrategy(resolver)

	h.activity.OnCreate(context.Background())
	h.waitBound(t)

	require.True(t, h.activity.RequestCapture())
	msg := h.toasts.next(t)
	assert.True(t, strings.HasPrefix(msg, "Save failed: "), msg)
	assert.Contains(t, msg, "volume not mounted")
	assert.True(t, h.activity.Status().Bound)

	// 次の撮影は成功する
	require.True(t, h.activity.RequestCapture())
	assert.True(t, strings.HasPrefix(h.toasts.next(t), "Saved to /Gymphotos\n"))
}

func TestActivity_LegacyFolderErrorIsSaveFailure(t *testing.T) {
	h := newHarness(t, withVersion(platform.VersionP))
	require.NoError(t, os.WriteFile(filepath.Join(h.root, "Gymphotos"), []byte("not a dir"), 0644))

	h.activity.OnCreate(context.Background())
	h.waitBound(t)

	require.True(t, h.activity.RequestCapture())
	assert.True(t, strings.HasPrefix(h.toasts.next(t), "Save failed: "))
	assert.True(t, h.activity.Status().Bound)
}

func TestActivity_BindFailure(t *testing.T) {
	h := newHarness(t, withDevices())
	h.activity.OnCreate(context.Background())

	assert.Equal(t, "Camera bind failed: no camera matches the selector", h.toasts.next(t))
	assert.False(t, h.activity.Status().Bound)

	// 画面は残るが撮影は何もしない
	h.onMain(t, h.activity.TakePhoto)
	h.toasts.none(t, 200*time.Millisecond)
	select {
	case <-h.activity.Done():
		t.Fatal("Bind failure must not finish the activity")
	default:
	}
}

func TestActivity_RestartRebinds(t *testing.T) {
	h := newHarness(t)
	h.activity.OnCreate(context.Background())
	h.waitBound(t)

	// 再起動しても前の束縛を解放してから束縛し直す
	h.onMain(t, h.activity.startCamera)
	h.waitBound(t)
	h.toasts.none(t, 200*time.Millisecond)

	require.True(t, h.activity.RequestCapture())
	assert.True(t, strings.HasPrefix(h.toasts.next(t), "Saved to /Gymphotos\n"))
}

func TestActivity_FinishReleasesCamera(t *testing.T) {
	h := newHarness(t)
	h.activity.OnCreate(context.Background())
	h.waitBound(t)

	h.activity.Finish()
	h.activity.Finish()
	assert.False(t, h.activity.Status().Bound)

	h.onMain(t, h.activity.TakePhoto)
	h.toasts.none(t, 200*time.Millisecond)
}
