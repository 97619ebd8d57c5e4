package camera

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"gymcamera/internal/lifecycle"
	"gymcamera/internal/logging"

	"github.com/gabriel-vasile/mimetype"
	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/semaphore"
)

// CaptureMode は静止画取得の方針
type CaptureMode int

const (
	// CaptureModeMaximizeQuality は撮影のたびにデバイスから高画質の静止画を取得する
	CaptureModeMaximizeQuality CaptureMode = iota
	// CaptureModeMinimizeLatency はプレビュー中の最新フレームをそのまま使う
	CaptureModeMinimizeLatency
)

func (m CaptureMode) String() string {
	switch m {
	case CaptureModeMinimizeLatency:
		return "minimize_latency"
	default:
		return "maximize_quality"
	}
}

// CaptureResult は1回の撮影の結果。Err が nil なら保存に成功している
type CaptureResult struct {
	Output OutputFileResults
	Err    *CaptureError
}

// ImageCaptureOption は ImageCapture の設定
type ImageCaptureOption func(*ImageCapture)

// WithCaptureMode は取得方針を設定する
func WithCaptureMode(mode CaptureMode) ImageCaptureOption {
	return func(c *ImageCapture) {
		c.mode = mode
	}
}

// WithSerializedCaptures は撮影を1枚ずつ順番に処理する
func WithSerializedCaptures() ImageCaptureOption {
	return func(c *ImageCapture) {
		c.sem = semaphore.NewWeighted(1)
	}
}

// WithCaptureLogger はロガーを設定する
func WithCaptureLogger(logger *logging.Logger) ImageCaptureOption {
	return func(c *ImageCapture) {
		c.logger = logger.WithComponent("image-capture")
	}
}

// ImageCapture は静止画を撮影して保存するユースケース
type ImageCapture struct {
	mode   CaptureMode
	sem    *semaphore.Weighted
	logger *logging.Logger

	mu     sync.RWMutex
	source Source
	camera Camera
}

// NewImageCapture は新しいImageCaptureを作成する
func NewImageCapture(opts ...ImageCaptureOption) *ImageCapture {
	c := &ImageCapture{
		mode:   CaptureModeMaximizeQuality,
		logger: logging.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name はユースケース名を返す
func (c *ImageCapture) Name() string {
	return "image_capture"
}

// Mode は取得方針を返す
func (c *ImageCapture) Mode() CaptureMode {
	return c.mode
}

func (c *ImageCapture) attach(src Source, cam Camera) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.source = src
	c.camera = cam
}

func (c *ImageCapture) detach() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.source = nil
}

// TakePicture は非同期に1枚撮影して output に保存し、結果を exec 上で onResult に1回だけ渡す
// 呼び出し自体はブロックしない。
func (c *ImageCapture) TakePicture(ctx context.Context, output *OutputFileOptions, exec lifecycle.Executor, onResult func(CaptureResult)) {
	requestID := ulid.Make().String()

	go func() {
		uri, err := c.capture(ctx, requestID, output)

		result := CaptureResult{Output: OutputFileResults{SavedURI: uri}, Err: err}
		if err != nil {
			c.logger.Warn("撮影に失敗しました", "request_id", requestID, "code", err.Code, "error", err.Err)
		} else {
			c.logger.Info("撮影画像を保存しました", "request_id", requestID, "uri", uriString(uri))
		}
		if !exec.Execute(func() { onResult(result) }) {
			c.logger.Warn("撮影結果の通知先が終了しています", "request_id", requestID)
		}
	}()
}

func (c *ImageCapture) capture(ctx context.Context, requestID string, output *OutputFileOptions) (*url.URL, *CaptureError) {
	if output == nil {
		return nil, &CaptureError{Code: CaptureErrorFileIO, Err: errors.New("output options are nil")}
	}

	if c.sem != nil {
		if err := c.sem.Acquire(ctx, 1); err != nil {
			return nil, &CaptureError{Code: CaptureErrorCameraClosed, Err: err}
		}
		defer c.sem.Release(1)
	}

	c.mu.RLock()
	src, cam := c.source, c.camera
	c.mu.RUnlock()
	if src == nil {
		return nil, &CaptureError{Code: CaptureErrorCameraClosed, Err: errors.New("camera is closed")}
	}

	c.logger.Debug("撮影を開始します", "request_id", requestID, "camera", cam.Name, "mode", c.mode)

	frame, err := c.grab(ctx, src)
	if err != nil {
		code := CaptureErrorCaptureFailed
		if errors.Is(err, ErrSourceInactive) {
			code = CaptureErrorCameraClosed
		}
		return nil, &CaptureError{Code: code, Err: err}
	}

	if mtype := mimetype.Detect(frame); !mtype.Is("image/jpeg") {
		return nil, &CaptureError{
			Code: CaptureErrorCaptureFailed,
			Err:  fmt.Errorf("unexpected image format: %s", mtype.String()),
		}
	}

	uri, err := output.save(ctx, frame)
	if err != nil {
		return nil, &CaptureError{Code: CaptureErrorFileIO, Err: err}
	}
	return uri, nil
}

// grab は取得方針に従ってJPEGを1枚取得する
func (c *ImageCapture) grab(ctx context.Context, src Source) ([]byte, error) {
	if c.mode == CaptureModeMinimizeLatency {
		frame, err := src.LatestFrame()
		if err == nil {
			return frame, nil
		}
		if !errors.Is(err, ErrNoFrame) {
			return nil, err
		}
		// まだフレームが来ていなければ静止画を取りに行く
	}
	return src.CaptureStill(ctx)
}

func uriString(uri *url.URL) string {
	if uri == nil {
		return "<nil>"
	}
	return uri.String()
}
