package broadcast

import (
	"context"
	"strconv"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const channelPrefix = "quiz:room:"

// RedisRelay は Redis の pub/sub を経由して全サーバープロセスの Hub に配信する。
// 購読管理はローカルの Hub に任せ、Publish だけを差し替える。
type RedisRelay struct {
	*Hub
	rdb    *redis.Client
	logger *zap.Logger
	ready  chan struct{}
}

func NewRedisRelay(hub *Hub, rdb *redis.Client, logger *zap.Logger) *RedisRelay {
	return &RedisRelay{
		Hub:    hub,
		rdb:    rdb,
		logger: logger,
		ready:  make(chan struct{}),
	}
}

func roomChannel(roomID uint) string {
	return channelPrefix + strconv.FormatUint(uint64(roomID), 10)
}

// Publish はイベントをRedisに送る。ローカルへの配信は Run が受け取ってから行う
func (r *RedisRelay) Publish(ctx context.Context, roomID uint, ev Event) error {
	payload, err := Encode(roomID, ev)
	if err != nil {
		return err
	}
	return r.rdb.Publish(ctx, roomChannel(roomID), payload).Err()
}

// Ready は購読が確立すると閉じられる
func (r *RedisRelay) Ready() <-chan struct{} {
	return r.ready
}

// Run は ctx がキャンセルされるまで全ルームのチャンネルを購読し、ローカルの Hub に流す
func (r *RedisRelay) Run(ctx context.Context) error {
	pubsub := r.rdb.PSubscribe(ctx, channelPrefix+"*")
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		r.logger.Error("Failed to subscribe to room channels", zap.Error(err))
		return err
	}
	close(r.ready)
	r.logger.Info("Subscribed to room channels", zap.String("pattern", channelPrefix+"*"))

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			roomID, ev, err := Decode([]byte(msg.Payload))
			if err != nil {
				r.logger.Error("Failed to decode room event", zap.String("channel", msg.Channel), zap.Error(err))
				continue
			}
			r.Hub.Deliver(roomID, ev)
		}
	}
}
