// Package app は設定からアプリケーション全体を組み立てて実行する
package app

import (
	"context"
	"errors"
	"fmt"

	"gymcamera/internal/activity"
	"gymcamera/internal/api"
	"gymcamera/internal/camera"
	"gymcamera/internal/config"
	"gymcamera/internal/database"
	"gymcamera/internal/lifecycle"
	"gymcamera/internal/logging"
	"gymcamera/internal/media"
	"gymcamera/internal/permission"
	"gymcamera/internal/platform"
	"gymcamera/internal/server"
	"gymcamera/internal/storage"

	"golang.org/x/sync/errgroup"
)

// Run はカメラ画面とHTTPサーバーを起動し、どちらかが終了するまでブロックする
func Run(ctx context.Context, cfg *config.Config, logger *logging.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// OpenAPIドキュメントが壊れていれば起動しない
	if _, err := api.Load(ctx); err != nil {
		return err
	}

	info, err := platform.NewInfo(platform.Version(cfg.Platform.APILevel), cfg.Platform.ExternalStorageDir)
	if err != nil {
		return fmt.Errorf("プラットフォーム情報の作成に失敗: %w", err)
	}

	db, err := database.Open(ctx, cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("データベースの初期化に失敗: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Warn("データベースのクローズに失敗しました", "error", err)
		}
	}()

	store := media.NewStore(db.DB(), info.ExternalStorageDir, logger)
	if n, err := store.Prune(ctx, cfg.Media.PendingTTL); err != nil {
		logger.Warn("確定されていないエントリの削除に失敗しました", "error", err)
	} else if n > 0 {
		logger.Info("確定されていないエントリを削除しました", "count", n)
	}

	events := server.NewEventBroadcaster()
	viewfinder := server.NewViewfinder()

	requester, dialogs := newRequester(cfg.Permission, events)
	gate := permission.NewGate(info.Version, permission.NewGrantStore(db.DB()), requester, logger)

	providerCfg := camera.ProviderConfig{
		Discovery: newDiscovery(cfg),
		Settings: camera.Settings{
			FPS:    cfg.Camera.DefaultFPS,
			Width:  cfg.Camera.DefaultWidth,
			Height: cfg.Camera.DefaultHeight,
		},
		Facings: cfg.Facings(),
		Logger:  logger,
	}

	var captureOpts []camera.ImageCaptureOption
	if cfg.Camera.SerializeCaptures {
		captureOpts = append(captureOpts, camera.WithSerializedCaptures())
	}

	exec := lifecycle.NewMainExecutor()
	strategy := storage.Select(info, store)

	act := activity.New(activity.Config{
		Platform: info,
		Gate:     gate,
		Providers: func() *camera.ProviderFuture {
			return camera.GetInstance(ctx, providerCfg)
		},
		Strategy:   strategy,
		Executor:   exec,
		Notifier:   events,
		Viewfinder: viewfinder,
		Capture:    captureOpts,
		Logger:     logger,
	})

	srv := server.New(cfg, server.Deps{
		Controller: act,
		Viewfinder: viewfinder,
		Events:     events,
		Dialogs:    dialogs,
		Photos:     store,
	}, logger)

	logger.Info("GymCamera を起動します",
		"platform", info.Version.String(),
		"strategy", strategy.Name(),
		"storage", info.ExternalStorageDir,
		"requester", cfg.Permission.Requester,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := exec.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		// サーバーが止まったら画面とメインエグゼキューターも終わらせる
		defer cancel()
		defer act.Finish()
		return srv.Start(gctx)
	})

	act.OnCreate(gctx)

	return g.Wait()
}

// newRequester は設定に応じた権限の要求方法を返す
// ダイアログで要求する場合のみ、画面から応答するための DialogResponder を返す。
func newRequester(cfg config.PermissionConfig, events *server.EventBroadcaster) (permission.Requester, server.DialogResponder) {
	switch cfg.Requester {
	case config.RequesterTerminal:
		return permission.NewTerminalRequester(), nil
	case config.RequesterStatic:
		return permission.NewStaticRequester(cfg.GrantAll), nil
	default:
		dialogs := permission.NewDialogRequester(events.ShowDialog)
		return dialogs, dialogs
	}
}

// newDiscovery は設定に応じたデバイス検出を返す
func newDiscovery(cfg *config.Config) camera.Discovery {
	if cfg.Camera.Mock {
		return camera.NewMockDiscovery(cfg.MockDevices())
	}
	return camera.NewLinuxDiscovery()
}
