package connection

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"quizserver/auth"
	"quizserver/quiz/database"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotMember    = errors.New("player is not a member of the room")
)

// MembershipChecker は参加者かどうかを確認する
type MembershipChecker interface {
	IsMember(ctx context.Context, roomID, playerID uint) (bool, error)
}

// ClientContext はクライアントのセッション情報を保持するための構造体です。
type ClientContext struct {
	PlayerID  uint
	RoomID    uint
	SessionID string // 復元に使った旧セッションID
}

// TokenValidation はリクエストのトークンを検証してプレイヤーIDを返す
func TokenValidation(r *http.Request, logger *zap.Logger) (uint, error) {
	tokenString := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if tokenString == "" {
		// ブラウザのWebSocketはヘッダーを送れない
		tokenString = r.URL.Query().Get("token")
	}

	playerID, err := auth.ParseToken(tokenString)
	if err != nil {
		logger.Warn("Failed to validate token", zap.Error(err))
		return 0, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	return playerID, nil
}

// FetchClientContext はトークンとルームID（またはセッションID）から接続先を決める。
// セッションIDがあればRedisから復元し、トークンのプレイヤーと一致することを確認する。
func FetchClientContext(ctx context.Context, r *http.Request, members MembershipChecker, rdb *redis.Client, logger *zap.Logger) (*ClientContext, error) {
	playerID, err := TokenValidation(r, logger)
	if err != nil {
		return nil, err
	}
	clientContext := &ClientContext{PlayerID: playerID}

	sessionID := r.Header.Get("SessionID")
	if sessionID == "" {
		sessionID = r.URL.Query().Get("sessionId")
	}
	if sessionID != "" && rdb != nil {
		info, err := database.ValidateSessionID(ctx, rdb, sessionID, logger)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
		}
		if info.PlayerID != playerID {
			logger.Warn("Session belongs to another player", zap.Uint("PlayerID", playerID), zap.Uint("SessionPlayerID", info.PlayerID))
			return nil, ErrUnauthorized
		}
		clientContext.RoomID = info.RoomID
		clientContext.SessionID = sessionID
	} else {
		roomID, err := strconv.ParseUint(r.URL.Query().Get("roomId"), 10, 64)
		if err != nil || roomID == 0 {
			return nil, fmt.Errorf("%w: roomId is required", ErrNotMember)
		}
		clientContext.RoomID = uint(roomID)
	}

	member, err := members.IsMember(ctx, clientContext.RoomID, playerID)
	if err != nil {
		logger.Error("Failed to check membership", zap.Error(err))
		return nil, err
	}
	if !member {
		return nil, ErrNotMember
	}
	return clientContext, nil
}
