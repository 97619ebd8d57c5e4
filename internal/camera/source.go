package camera

import (
	"sync"
)

// frameHub はフレームの配信と最新フレームの保持を行う
// USBSource と FakeSource で共通に使う。
type frameHub struct {
	mu     sync.RWMutex
	subs   map[chan []byte]struct{}
	latest []byte
}

func newFrameHub() *frameHub {
	return &frameHub{subs: make(map[chan []byte]struct{})}
}

// publish はフレームを全購読者に配信する。詰まっている購読者には古いフレームを捨てて送る
func (h *frameHub) publish(frame []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.latest = frame
	for ch := range h.subs {
		select {
		case ch <- frame:
		default:
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

// subscribe は購読を開始する。戻り値の関数で解除する
func (h *frameHub) subscribe() (<-chan []byte, func()) {
	ch := make(chan []byte, 2)

	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if _, ok := h.subs[ch]; ok {
				delete(h.subs, ch)
				close(ch)
			}
		})
	}
}

// latestFrame は最新フレームのコピーを返す
func (h *frameHub) latestFrame() ([]byte, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.latest == nil {
		return nil, ErrNoFrame
	}
	frame := make([]byte, len(h.latest))
	copy(frame, h.latest)
	return frame, nil
}

// closeAll は全購読者のチャンネルをクローズし、最新フレームを破棄する
func (h *frameHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.subs {
		close(ch)
	}
	h.subs = make(map[chan []byte]struct{})
	h.latest = nil
}
