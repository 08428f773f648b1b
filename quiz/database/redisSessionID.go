package database

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	sessionKeyPrefix = "session:"
	sessionTTL       = 24 * time.Hour
)

var ErrSessionNotFound = errors.New("session not found or expired")

// SessionInfo は再接続時にどのルームのどのプレイヤーかを復元するための情報
type SessionInfo struct {
	PlayerID uint `json:"playerID"`
	RoomID   uint `json:"roomID"`
}

// ValidateSessionID はRedisからセッション情報を取り出す
func ValidateSessionID(ctx context.Context, rdb *redis.Client, sessionID string, logger *zap.Logger) (*SessionInfo, error) {
	if sessionID == "" {
		return nil, ErrSessionNotFound
	}

	sessionInfoJSON, err := rdb.Get(ctx, sessionKeyPrefix+sessionID).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		logger.Error("Failed to retrieve session info", zap.Error(err))
		return nil, err
	}

	var info SessionInfo
	if err := json.Unmarshal([]byte(sessionInfoJSON), &info); err != nil {
		logger.Error("Failed to decode session info", zap.Error(err))
		return nil, err
	}
	if info.PlayerID == 0 || info.RoomID == 0 {
		return nil, ErrSessionNotFound
	}
	return &info, nil
}

// GenerateAndStoreSessionID は新しいセッションIDを発行して24時間保存する
func GenerateAndStoreSessionID(ctx context.Context, rdb *redis.Client, info SessionInfo, logger *zap.Logger) (string, error) {
	sessionID := uuid.New().String()

	sessionInfoJSON, err := json.Marshal(info)
	if err != nil {
		logger.Error("Error encoding session info", zap.Error(err))
		return "", err
	}

	if err := rdb.Set(ctx, sessionKeyPrefix+sessionID, sessionInfoJSON, sessionTTL).Err(); err != nil {
		logger.Error("Error storing session info in Redis", zap.Error(err))
		return "", err
	}
	return sessionID, nil
}

// DeleteSessionID は使い終わったセッションを削除する
func DeleteSessionID(ctx context.Context, rdb *redis.Client, sessionID string) error {
	return rdb.Del(ctx, sessionKeyPrefix+sessionID).Err()
}
