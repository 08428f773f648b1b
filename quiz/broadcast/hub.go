package broadcast

import (
	"context"
	"sync"

	"quizserver/metrics"

	"go.uber.org/zap"
)

const DefaultBufferSize = 32

// Message はサブスクライバーに届く1件の通知
type Message struct {
	RoomID uint
	Event  Event
}

// Subscription は接続ごとの受信箱。同じプレイヤーでも接続ごとに別の受信箱になる
type Subscription struct {
	RoomID   uint
	PlayerID uint
	C        <-chan Message

	ch chan Message
}

// Hub はプロセス内のルーム別pub/sub。配信はベストエフォートで、
// 受信箱が一杯のサブスクライバーにはイベントを捨てる。
type Hub struct {
	mu         sync.RWMutex
	rooms      map[uint]map[*Subscription]struct{}
	bufferSize int
	logger     *zap.Logger
}

func NewHub(bufferSize int, logger *zap.Logger) *Hub {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Hub{
		rooms:      make(map[uint]map[*Subscription]struct{}),
		bufferSize: bufferSize,
		logger:     logger,
	}
}

// Subscribe は新しい受信箱を作って返す。購読開始より前のイベントは届かない
func (h *Hub) Subscribe(roomID, playerID uint) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.rooms[roomID]
	if !ok {
		subs = make(map[*Subscription]struct{})
		h.rooms[roomID] = subs
	}
	ch := make(chan Message, h.bufferSize)
	sub := &Subscription{RoomID: roomID, PlayerID: playerID, C: ch, ch: ch}
	subs[sub] = struct{}{}
	return sub
}

// Unsubscribe は受信箱を閉じて削除する。閉じ済みなら何もしない
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.rooms[sub.RoomID]
	if !ok {
		return
	}
	if _, ok := subs[sub]; !ok {
		return
	}
	close(sub.ch)
	delete(subs, sub)
	if len(subs) == 0 {
		delete(h.rooms, sub.RoomID)
	}
}

// UnsubscribePlayer はプレイヤーの全接続の受信箱を閉じる
func (h *Hub) UnsubscribePlayer(roomID, playerID uint) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.rooms[roomID]
	if !ok {
		return
	}
	for sub := range subs {
		if sub.PlayerID == playerID {
			close(sub.ch)
			delete(subs, sub)
		}
	}
	if len(subs) == 0 {
		delete(h.rooms, roomID)
	}
}

// CloseRoom はルームの全受信箱を閉じる
func (h *Hub) CloseRoom(roomID uint) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for sub := range h.rooms[roomID] {
		close(sub.ch)
	}
	delete(h.rooms, roomID)
}

func (h *Hub) SubscriberCount(roomID uint) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

// Deliver はルームの全受信箱に送り、実際に届いた数を返す。ブロックしない。
// 退出イベントの場合は配信後にそのプレイヤーの受信箱を、終了イベントの場合は
// ルームの受信箱をすべて閉じる（閉じた後も未読分は読める）。
func (h *Hub) Deliver(roomID uint, ev Event) int {
	delivered := h.deliver(roomID, ev)
	if left, ok := ev.(PlayerLeft); ok {
		h.UnsubscribePlayer(roomID, left.PlayerID)
	}
	if Terminal(ev) {
		h.CloseRoom(roomID)
	}
	return delivered
}

func (h *Hub) deliver(roomID uint, ev Event) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for sub := range h.rooms[roomID] {
		select {
		case sub.ch <- Message{RoomID: roomID, Event: ev}:
			delivered++
		default:
			metrics.BroadcastFailures.WithLabelValues(ev.Name(), "mailbox_full").Inc()
			h.logger.Warn("Dropped event for slow subscriber",
				zap.Uint("RoomID", roomID),
				zap.Uint("PlayerID", sub.PlayerID),
				zap.String("event", ev.Name()),
			)
		}
	}
	return delivered
}

// Publish はプロセス内のサブスクライバーに直接配信する
func (h *Hub) Publish(_ context.Context, roomID uint, ev Event) error {
	h.Deliver(roomID, ev)
	return nil
}
