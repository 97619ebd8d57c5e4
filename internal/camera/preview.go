package camera

import (
	"sync"
)

// SurfaceProvider はプレビューフレームの描画先
type SurfaceProvider interface {
	Render(frame []byte)
}

// SurfaceProviderFunc は関数を SurfaceProvider として使うためのアダプター
type SurfaceProviderFunc func(frame []byte)

// Render は f(frame) を呼ぶ
func (f SurfaceProviderFunc) Render(frame []byte) {
	f(frame)
}

// Preview はカメラのフレームを描画先に流すユースケース
type Preview struct {
	mu          sync.Mutex
	surface     SurfaceProvider
	unsubscribe func()
	done        chan struct{}
}

// NewPreview は新しいPreviewを作成する
func NewPreview() *Preview {
	return &Preview{}
}

// Name はユースケース名を返す
func (p *Preview) Name() string {
	return "preview"
}

// SetSurfaceProvider は描画先を設定する。束縛中でも差し替えられる
func (p *Preview) SetSurfaceProvider(surface SurfaceProvider) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.surface = surface
}

func (p *Preview) attach(src Source, _ Camera) {
	frames, unsubscribe := src.Subscribe()
	done := make(chan struct{})

	p.mu.Lock()
	p.unsubscribe = unsubscribe
	p.done = done
	p.mu.Unlock()

	go func() {
		defer close(done)
		for frame := range frames {
			if surface := p.currentSurface(); surface != nil {
				surface.Render(frame)
			}
		}
	}()
}

func (p *Preview) detach() {
	p.mu.Lock()
	unsubscribe, done := p.unsubscribe, p.done
	p.unsubscribe, p.done = nil, nil
	p.mu.Unlock()

	if unsubscribe == nil {
		return
	}
	unsubscribe()
	<-done
}

func (p *Preview) currentSurface() SurfaceProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.surface
}
