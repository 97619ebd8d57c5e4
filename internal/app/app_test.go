package app

import (
	"context"
	"fmt"
	"net"
	"path/filepath"
	"testing"
	"time"

	"gymcamera/internal/camera"
	"gymcamera/internal/config"
	"gymcamera/internal/logging"
	"gymcamera/internal/permission"
	"gymcamera/internal/server"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()

	cfg := config.Default()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = freePort(t)
	cfg.Server.Mode = "test"
	cfg.Camera.Mock = true
	cfg.Camera.DefaultWidth = 64
	cfg.Camera.DefaultHeight = 48
	cfg.Platform.APILevel = 34
	cfg.Platform.ExternalStorageDir = filepath.Join(dir, "storage")
	cfg.Database.Path = filepath.Join(dir, "gymcamera.db")
	cfg.Permission.Requester = config.RequesterStatic
	cfg.Permission.GrantAll = true
	require.NoError(t, cfg.Validate())
	return cfg
}

// freePort は空いているポート番号を返す
func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	cfg := testConfig(t)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- Run(ctx, cfg, logging.Discard())
	}()

	time.Sleep(300 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRun_PermissionDeniedFinishes(t *testing.T) {
	// API 28 はカメラと外部ストレージ、API 34 はカメラのみを要求する
	for _, level := range []int{28, 34} {
		t.Run(fmt.Sprintf("API%d", level), func(t *testing.T) {
			cfg := testConfig(t)
			cfg.Platform.APILevel = level
			cfg.Permission.GrantAll = false

			errCh := make(chan error, 1)
			go func() {
				errCh <- Run(context.Background(), cfg, logging.Discard())
			}()

			// 権限が拒否されると画面が終了し、サーバーも止まる
			select {
			case err := <-errCh:
				assert.NoError(t, err)
			case <-time.After(10 * time.Second):
				t.Fatal("Run did not return after permission denial")
			}
		})
	}
}

func TestNewRequester(t *testing.T) {
	events := server.NewEventBroadcaster()

	requester, dialogs := newRequester(config.PermissionConfig{Requester: config.RequesterDialog}, events)
	assert.IsType(t, &permission.DialogRequester{}, requester)
	assert.NotNil(t, dialogs)

	requester, dialogs = newRequester(config.PermissionConfig{Requester: config.RequesterStatic, GrantAll: true}, events)
	assert.IsType(t, &permission.StaticRequester{}, requester)
	assert.Nil(t, dialogs)

	requester, dialogs = newRequester(config.PermissionConfig{Requester: config.RequesterTerminal}, events)
	assert.IsType(t, &permission.TerminalRequester{}, requester)
	assert.Nil(t, dialogs)
}

func TestNewDiscovery(t *testing.T) {
	cfg := testConfig(t)
	assert.IsType(t, &camera.MockDiscovery{}, newDiscovery(cfg))

	cfg.Camera.Mock = false
	assert.IsType(t, &camera.LinuxDiscovery{}, newDiscovery(cfg))
}
