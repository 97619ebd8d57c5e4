package server

import (
	"context"
	"net"
	"testing"
	"time"

	"gymcamera/internal/config"
	"gymcamera/internal/logging"
)

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Host:         "127.0.0.1",
			Port:         0, // ランダムポートを使用
			Mode:         "test",
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 0,
		},
	}
}

func newTestServer(t *testing.T, deps Deps) *Server {
	t.Helper()
	if deps.Controller == nil {
		deps.Controller = newFakeController()
	}
	if deps.Viewfinder == nil {
		deps.Viewfinder = NewViewfinder()
	}
	if deps.Events == nil {
		deps.Events = NewEventBroadcaster()
	}
	if deps.Photos == nil {
		deps.Photos = &fakePhotos{}
	}
	srv := New(testConfig(), deps, logging.Discard())
	t.Cleanup(srv.closeStreams)
	return srv
}

// TestServerStartAndShutdown はサーバーの起動とシャットダウンをテストする
func TestServerStartAndShutdown(t *testing.T) {
	srv := newTestServer(t, Deps{})

	// テスト用のコンテキスト（タイムアウト付き）
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// サーバーを別ゴルーチンで起動
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(ctx)
	}()

	// サーバーが起動するまで少し待つ
	time.Sleep(100 * time.Millisecond)

	// コンテキストをキャンセルしてサーバーを停止
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("サーバーの起動/停止でエラーが発生しました: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("サーバーの停止がタイムアウトしました")
	}
}

// TestServerStopsWhenActivityFinishes は画面の終了でサーバーが止まることをテストする
func TestServerStopsWhenActivityFinishes(t *testing.T) {
	controller := newFakeController()
	srv := newTestServer(t, Deps{Controller: controller})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(context.Background())
	}()

	time.Sleep(100 * time.Millisecond)
	controller.finish()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("サーバーの停止でエラーが発生しました: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("画面の終了後もサーバーが停止しませんでした")
	}

	select {
	case <-srv.closing:
	default:
		t.Error("ストリーミング接続が閉じられていません")
	}
}

// TestServerStartFailure は起動失敗がエラーとして返ることをテストする
func TestServerStartFailure(t *testing.T) {
	// 使用中のポートを指定する
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("ポートの確保に失敗しました: %v", err)
	}
	defer ln.Close()

	cfg := testConfig()
	cfg.Server.Port = ln.Addr().(*net.TCPAddr).Port
	srv := New(cfg, Deps{Controller: newFakeController()}, logging.Discard())

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(context.Background())
	}()

	select {
	case err := <-errCh:
		if err == nil {
			t.Fatal("エラーが期待されましたが、エラーが発生しませんでした")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("起動失敗が返されませんでした")
	}
}
