package camera

import (
	"context"
	"fmt"
	"sync"

	"gymcamera/internal/logging"
)

// stillQuality は静止画取得時の ffmpeg -q:v
const stillQuality = 2

// USBSource はV4L2 USBカメラの Source 実装
type USBSource struct {
	camera   Camera
	capturer *V4L2Capturer
	hub      *frameHub
	logger   *logging.Logger

	mu     sync.RWMutex
	status Status
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewUSBSource は新しいUSBSourceを作成する
func NewUSBSource(cam Camera, logger *logging.Logger) *USBSource {
	return &USBSource{
		camera:   cam,
		capturer: NewV4L2Capturer(cam.Device, cam.Width, cam.Height, cam.FPS),
		hub:      newFrameHub(),
		logger:   logger.WithComponent("usb-source"),
		status:   StatusInactive,
	}
}

// Start はカメラのテストキャプチャを行ってからストリーミングを開始する
func (s *USBSource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == StatusActive {
		return nil
	}

	if err := s.capturer.TestCapture(ctx); err != nil {
		s.status = StatusError
		return fmt.Errorf("カメラのテストキャプチャに失敗: %w", err)
	}

	// ストリームは呼び出し元のキャンセルではなく Stop で止める
	s.startStreamLocked(context.WithoutCancel(ctx))
	s.status = StatusActive
	s.logger.Info("カメラを開始しました", "device", s.camera.Device)
	return nil
}

// Stop はストリーミングを停止し、購読チャンネルを全てクローズする
func (s *USBSource) Stop(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != StatusActive {
		s.status = StatusInactive
		return nil
	}

	s.stopStreamLocked()
	s.hub.closeAll()
	s.status = StatusInactive
	s.logger.Info("カメラを停止しました", "device", s.camera.Device)
	return nil
}

// Status は現在の状態を返す
func (s *USBSource) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Subscribe はプレビューフレームの購読を開始する
func (s *USBSource) Subscribe() (<-chan []byte, func()) {
	return s.hub.subscribe()
}

// LatestFrame はストリーミング中の最新フレームのコピーを返す
func (s *USBSource) LatestFrame() ([]byte, error) {
	if s.Status() != StatusActive {
		return nil, ErrSourceInactive
	}
	return s.hub.latestFrame()
}

// CaptureStill は高画質の静止画を1枚取得する
// デバイスは同時に1プロセスしか開けないため、取得の間だけストリームを止める。
func (s *USBSource) CaptureStill(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != StatusActive {
		return nil, ErrSourceInactive
	}

	s.stopStreamLocked()
	defer s.startStreamLocked(context.WithoutCancel(ctx))

	frame, err := s.capturer.CaptureFrameAsJPEG(ctx, stillQuality)
	if err != nil {
		return nil, fmt.Errorf("静止画の取得に失敗: %w", err)
	}
	return frame, nil
}

func (s *USBSource) startStreamLocked(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	s.cancel = cancel

	frameChan := make(chan []byte, 10)
	errorChan := make(chan error, 5)

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.capturer.StartStream(ctx, frameChan, errorChan)
	}()
	go func() {
		defer s.wg.Done()
		s.forwardFrames(ctx, frameChan, errorChan)
	}()
}

func (s *USBSource) stopStreamLocked() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.wg.Wait()
}

// forwardFrames はキャプチャからのフレームをハブに流す
func (s *USBSource) forwardFrames(ctx context.Context, frameChan <-chan []byte, errorChan <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-frameChan:
			if !ok {
				return
			}
			s.hub.publish(frame)
		case err := <-errorChan:
			s.logger.Error("ストリーミングエラー", "device", s.camera.Device, "error", err)
		}
	}
}
