package server

import (
	"sync"
)

// Viewfinder はプレビューの描画先。受け取ったフレームを接続中のMJPEGクライアントに配る
// camera.SurfaceProvider を実装する。
type Viewfinder struct {
	mu      sync.RWMutex
	latest  []byte
	clients map[chan []byte]struct{}
}

// NewViewfinder は新しいViewfinderを作成する
func NewViewfinder() *Viewfinder {
	return &Viewfinder{
		clients: make(map[chan []byte]struct{}),
	}
}

// Render はフレームを全クライアントに送る。遅いクライアントは古いフレームを捨てる
func (v *Viewfinder) Render(frame []byte) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.latest = frame
	for ch := range v.clients {
		select {
		case ch <- frame:
		default:
			// 古いフレームを捨てて新しいフレームを入れる
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- frame:
			default:
			}
		}
	}
}

// Subscribe はフレームを受け取るチャンネルと購読解除関数を返す
// 既にフレームがあれば最初に最新フレームが届く。
func (v *Viewfinder) Subscribe() (<-chan []byte, func()) {
	ch := make(chan []byte, 2)

	v.mu.Lock()
	if v.latest != nil {
		ch <- v.latest
	}
	v.clients[ch] = struct{}{}
	v.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			v.mu.Lock()
			delete(v.clients, ch)
			v.mu.Unlock()
			close(ch)
		})
	}
	return ch, unsubscribe
}

// Clients は接続中のクライアント数を返す
func (v *Viewfinder) Clients() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.clients)
}
