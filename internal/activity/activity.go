// Package activity はカメラ画面のコントローラーを提供する
//
// # 責務
// - 起動時に権限ゲートを通し、拒否されたら画面を終了する
// - 権限が揃ったら背面カメラのプレビューと静止画キャプチャを画面のスコープに束縛する
// - 撮影要求を保存方式に渡し、結果をトーストで通知する
//
// 撮影ハンドルはメインエグゼキューター上でのみ読み書きする。
package activity

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"gymcamera/internal/camera"
	"gymcamera/internal/lifecycle"
	"gymcamera/internal/logging"
	"gymcamera/internal/permission"
	"gymcamera/internal/platform"
	"gymcamera/internal/storage"
)

// ユーザーに表示する文言
const (
	MessagePermissionsDenied = "Required permissions not granted"
	messageBindFailedPrefix  = "Camera bind failed: "
)

// Notifier はトースト通知の表示先
type Notifier interface {
	Toast(message string)
}

// PermissionGate は必要な権限を確認・要求する
type PermissionGate interface {
	Run(ctx context.Context) (permission.Result, error)
}

// Config はActivityの依存関係
type Config struct {
	Platform   platform.Info
	Gate       PermissionGate
	Providers  func() *camera.ProviderFuture // プロセス共有のプロバイダー
	Strategy   storage.Strategy
	Executor   lifecycle.Executor
	Notifier   Notifier
	Viewfinder camera.SurfaceProvider
	Capture    []camera.ImageCaptureOption // ImageCapture の追加設定
	Clock      func() time.Time
	Logger     *logging.Logger
}

// Status は画面の状態
type Status struct {
	Platform string `json:"platform"`
	Strategy string `json:"strategy"`
	Bound    bool   `json:"bound"`
	Finished bool   `json:"finished"`
}

// Activity はカメラ画面のコントローラー
type Activity struct {
	cfg    Config
	scope  *lifecycle.Scope
	logger *logging.Logger

	// メインエグゼキューター上でのみ触る
	imageCapture *camera.ImageCapture

	bound      atomic.Bool
	finishOnce sync.Once
	done       chan struct{}
}

// New は新しいActivityを作成する
func New(cfg Config) *Activity {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}
	return &Activity{
		cfg:    cfg,
		scope:  lifecycle.NewScope("main-activity"),
		logger: cfg.Logger.WithComponent("activity"),
		done:   make(chan struct{}),
	}
}

// Scope は画面の可視期間を表すスコープを返す
func (a *Activity) Scope() *lifecycle.Scope {
	return a.scope
}

// OnCreate は権限ゲートを通してからカメラを起動する
// 権限の確認と要求はバックグラウンドで行い、続きはメインエグゼキューターで実行する。
func (a *Activity) OnCreate(ctx context.Context) {
	go func() {
		result, err := a.cfg.Gate.Run(ctx)
		a.post(func() {
			a.onPermissionResult(ctx, result, err)
		})
	}()
}

func (a *Activity) onPermissionResult(ctx context.Context, result permission.Result, err error) {
	if err != nil {
		if ctx.Err() != nil {
			a.logger.Info("権限確認の途中で終了しました")
			a.Finish()
			return
		}
		a.logger.Warn("権限の確認に失敗しました", "error", err)
		a.toast(MessagePermissionsDenied)
		a.Finish()
		return
	}

	if !result.Granted() {
		a.logger.Warn("必要な権限が付与されませんでした", "denied", result.Denied)
		a.toast(MessagePermissionsDenied)
		a.Finish()
		return
	}

	a.startCamera()
}

// startCamera はプロバイダーの取得を待ってからプレビューとキャプチャを束縛する
func (a *Activity) startCamera() {
	future := a.cfg.Providers()
	future.AddListener(func() {
		provider, err := future.Get()
		if err != nil {
			a.onBindFailed(err)
			return
		}

		preview := camera.NewPreview()
		preview.SetSurfaceProvider(a.cfg.Viewfinder)

		opts := append([]camera.ImageCaptureOption{
			camera.WithCaptureMode(camera.CaptureModeMinimizeLatency),
			camera.WithCaptureLogger(a.cfg.Logger),
		}, a.cfg.Capture...)
		imageCapture := camera.NewImageCapture(opts...)

		// 以前の束縛を必ず解放してから束縛し直す
		provider.UnbindAll()
		a.setImageCapture(nil)

		bound, err := provider.BindToLifecycle(a.scope, camera.DefaultBackCamera, preview, imageCapture)
		if err != nil {
			a.onBindFailed(err)
			return
		}

		a.setImageCapture(imageCapture)
		a.logger.Info("カメラを起動しました", "camera", bound.Camera.Name, "strategy", a.cfg.Strategy.Name())
	}, a.cfg.Executor)
}

func (a *Activity) onBindFailed(err error) {
	a.setImageCapture(nil)
	a.logger.Warn("カメラの束縛に失敗しました", "error", err)
	a.toast(messageBindFailedPrefix + err.Error())
}

// RequestCapture は撮影をメインエグゼキューターに投入する
func (a *Activity) RequestCapture() bool {
	return a.post(a.TakePhoto)
}

// TakePhoto は1枚撮影して保存する。メインエグゼキューター上で呼ぶ
// カメラが束縛されていなければ何もしない。
func (a *Activity) TakePhoto() {
	imageCapture := a.imageCapture
	if imageCapture == nil || !a.scope.Alive() {
		a.logger.Debug("カメラが束縛されていないため撮影しません")
		return
	}

	dest, err := a.cfg.Strategy.Destination(a.cfg.Clock())
	if err != nil {
		a.onCaptureResult(camera.CaptureResult{Err: &camera.CaptureError{Code: camera.CaptureErrorFileIO, Err: err}})
		return
	}

	output, err := a.cfg.Strategy.OutputOptions(dest)
	if err != nil {
		a.onCaptureResult(camera.CaptureResult{Err: &camera.CaptureError{Code: camera.CaptureErrorFileIO, Err: err}})
		return
	}

	a.logger.Info("撮影します", "file_name", dest.FileName, "kind", dest.Kind)
	imageCapture.TakePicture(a.scope.Context(), output, a.cfg.Executor, a.onCaptureResult)
}

func (a *Activity) onCaptureResult(result camera.CaptureResult) {
	outcome := storage.OutcomeFromResult(result)
	if !outcome.Success {
		a.logger.Warn("保存に失敗しました", "reason", outcome.Reason)
	}
	a.toast(outcome.Message())
}

// Finish は画面を終了し、スコープに束縛されたカメラを解放する
func (a *Activity) Finish() {
	a.finishOnce.Do(func() {
		a.logger.Info("画面を終了します")
		a.scope.Destroy()
		a.bound.Store(false)
		close(a.done)
	})
}

// Done は画面の終了時にクローズされるチャンネルを返す
func (a *Activity) Done() <-chan struct{} {
	return a.done
}

// Status は画面の状態を返す。どのゴルーチンからでも呼べる
func (a *Activity) Status() Status {
	finished := false
	select {
	case <-a.done:
		finished = true
	default:
	}
	return Status{
		Platform: a.cfg.Platform.Version.String(),
		Strategy: a.cfg.Strategy.Name(),
		Bound:    a.bound.Load(),
		Finished: finished,
	}
}

func (a *Activity) setImageCapture(imageCapture *camera.ImageCapture) {
	a.imageCapture = imageCapture
	a.bound.Store(imageCapture != nil)
}

func (a *Activity) post(fn func()) bool {
	if a.cfg.Executor.Execute(fn) {
		return true
	}
	a.logger.Warn("メインエグゼキューターが終了しています")
	return false
}

func (a *Activity) toast(message string) {
	if a.cfg.Notifier != nil {
		a.cfg.Notifier.Toast(message)
	}
}
