package camera

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"sync"
	"time"

	"gymcamera/internal/logging"
)

// FakeSource はテストパターンのJPEGを生成する疑似カメラ
// カメラの無い開発環境とテストで使う。
type FakeSource struct {
	camera Camera
	hub    *frameHub
	logger *logging.Logger

	mu       sync.RWMutex
	status   Status
	startErr error
	stillErr error
	frameNo  int
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewFakeSource は新しいFakeSourceを作成する
func NewFakeSource(cam Camera, logger *logging.Logger) *FakeSource {
	if cam.Width <= 0 {
		cam.Width = 640
	}
	if cam.Height <= 0 {
		cam.Height = 480
	}
	if cam.FPS <= 0 {
		cam.FPS = 10
	}
	return &FakeSource{
		camera: cam,
		hub:    newFrameHub(),
		logger: logger.WithComponent("fake-source"),
		status: StatusInactive,
	}
}

// FailStart は次回以降の Start を指定したエラーで失敗させる
func (s *FakeSource) FailStart(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.startErr = err
}

// FailStill は CaptureStill を指定したエラーで失敗させる
func (s *FakeSource) FailStill(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stillErr = err
}

// Start はフレーム生成を開始する
func (s *FakeSource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.startErr != nil {
		s.status = StatusError
		return s.startErr
	}
	if s.status == StatusActive {
		return nil
	}

	// 開始直後から最新フレームを返せるようにしておく
	first, err := s.renderLocked(75)
	if err != nil {
		return err
	}
	s.hub.publish(first)

	streamCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.wg.Add(1)
	go s.generate(streamCtx)

	s.status = StatusActive
	return nil
}

// Stop はフレーム生成を停止し、購読チャンネルを全てクローズする
func (s *FakeSource) Stop(_ context.Context) error {
	s.mu.Lock()
	if s.status != StatusActive {
		s.status = StatusInactive
		s.mu.Unlock()
		return nil
	}
	s.cancel()
	s.cancel = nil
	s.status = StatusInactive
	s.mu.Unlock()

	s.wg.Wait()
	s.hub.closeAll()
	return nil
}

// Status は現在の状態を返す
func (s *FakeSource) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Subscribe はプレビューフレームの購読を開始する
func (s *FakeSource) Subscribe() (<-chan []byte, func()) {
	return s.hub.subscribe()
}

// LatestFrame は最新フレームのコピーを返す
func (s *FakeSource) LatestFrame() ([]byte, error) {
	if s.Status() != StatusActive {
		return nil, ErrSourceInactive
	}
	return s.hub.latestFrame()
}

// CaptureStill は高画質のテストパターンを1枚生成する
func (s *FakeSource) CaptureStill(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != StatusActive {
		return nil, ErrSourceInactive
	}
	if s.stillErr != nil {
		return nil, s.stillErr
	}
	return s.renderLocked(95)
}

func (s *FakeSource) generate(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(time.Second / time.Duration(s.camera.FPS))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			frame, err := s.renderLocked(75)
			s.mu.Unlock()
			if err != nil {
				s.logger.Error("テストパターンの生成に失敗", "error", err)
				continue
			}
			s.hub.publish(frame)
		}
	}
}

// renderLocked はフレーム番号に応じて動くカラーバーを描画する
func (s *FakeSource) renderLocked(quality int) ([]byte, error) {
	w, h := s.camera.Width, s.camera.Height
	img := image.NewRGBA(image.Rect(0, 0, w, h))

	offset := s.frameNo * 4
	s.frameNo++

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{
				R: uint8((x + offset) * 255 / w),
				G: uint8(y * 255 / h),
				B: 128,
				A: 255,
			})
		}
	}

	// 縦のマーカーを横に流す
	barX := offset % w
	for y := 0; y < h; y++ {
		for x := barX; x < barX+8 && x < w; x++ {
			img.Set(x, y, color.White)
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("JPEGエンコードに失敗: %w", err)
	}
	return buf.Bytes(), nil
}
