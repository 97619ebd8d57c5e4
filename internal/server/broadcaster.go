package server

import (
	"encoding/json"
	"sync"
	"time"

	"gymcamera/internal/permission"
)

// SSEのイベント名
const (
	EventToast      = "toast"
	EventPermission = "permission"
)

// Event はSSEで配信する1件のイベント。Data はJSON文字列
type Event struct {
	Name string
	Data string
}

// ToastEvent はトーストのペイロード
type ToastEvent struct {
	Time string `json:"t"`
	Msg  string `json:"msg"`
}

// EventBroadcaster はトーストと権限ダイアログのイベントを全SSEクライアントに配る
// activity.Notifier を実装する。
type EventBroadcaster struct {
	mu      sync.RWMutex
	clients map[chan Event]struct{}
	now     func() time.Time
}

// NewEventBroadcaster は新しいEventBroadcasterを作成する
func NewEventBroadcaster() *EventBroadcaster {
	return &EventBroadcaster{
		clients: make(map[chan Event]struct{}),
		now:     time.Now,
	}
}

// Subscribe はイベントを受け取るチャンネルと購読解除関数を返す
// 接続が切れたら必ず購読解除関数を呼ぶこと。
func (b *EventBroadcaster) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 64)
	b.mu.Lock()
	b.clients[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.clients, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, unsubscribe
}

// Toast はトーストを配信する
func (b *EventBroadcaster) Toast(message string) {
	b.broadcast(EventToast, ToastEvent{
		Time: b.now().Format(time.RFC3339),
		Msg:  message,
	})
}

// ShowDialog は権限ダイアログの表示を配信する（permission.DialogRequester の onShow 用）
func (b *EventBroadcaster) ShowDialog(dialog permission.Dialog) {
	b.broadcast(EventPermission, dialog)
}

// broadcast は全クライアントに送る。遅いクライアントは取りこぼす
func (b *EventBroadcaster) broadcast(name string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	evt := Event{Name: name, Data: string(data)}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.clients {
		select {
		case ch <- evt:
		default:
		}
	}
}
