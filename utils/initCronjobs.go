package utils

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// RoomExpirer は放置された待機中ルームをキャンセルする
type RoomExpirer interface {
	ExpireWaitingRooms(ctx context.Context, olderThan time.Duration) (int, error)
}

// CronCleaner は待機中のまま放置されたルームを定期的にキャンセルする。
// 呼び出し側は返されたスケジューラを終了時に Stop する。
func CronCleaner(expirer RoomExpirer, schedule string, olderThan time.Duration, logger *zap.Logger) (*cron.Cron, error) {
	c := cron.New()

	_, err := c.AddFunc(schedule, func() {
		expired, err := expirer.ExpireWaitingRooms(context.Background(), olderThan)
		if err != nil {
			logger.Error("待機中ルームの期限切れ処理に失敗しました", zap.Error(err))
			return
		}
		if expired > 0 {
			logger.Info("待機中ルームをキャンセルしました", zap.Int("rooms_expired", expired))
		}
	})
	if err != nil {
		return nil, err
	}

	c.Start()
	return c, nil
}
