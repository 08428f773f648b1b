package connection

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"quizserver/auth"
	"quizserver/quiz/database"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memberSet map[[2]uint]bool

func (m memberSet) IsMember(_ context.Context, roomID, playerID uint) (bool, error) {
	return m[[2]uint{roomID, playerID}], nil
}

func request(t *testing.T, target string, playerID uint) *http.Request {
	t.Helper()
	r := httptest.NewRequest(http.MethodGet, target, nil)
	if playerID != 0 {
		token, err := auth.GenerateToken(playerID, time.Hour)
		require.NoError(t, err)
		r.Header.Set("Authorization", "Bearer "+token)
	}
	return r
}

func TestFetchClientContext(t *testing.T) {
	auth.SetSecret("connection-secret")
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	ctx := context.Background()
	logger := zap.NewNop()
	members := memberSet{{5, 1}: true}

	cc, err := FetchClientContext(ctx, request(t, "/ws?roomId=5", 1), members, rdb, logger)
	require.NoError(t, err)
	assert.Equal(t, &ClientContext{PlayerID: 1, RoomID: 5}, cc)

	_, err = FetchClientContext(ctx, request(t, "/ws?roomId=5", 0), members, rdb, logger)
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = FetchClientContext(ctx, request(t, "/ws?roomId=5", 2), members, rdb, logger)
	assert.ErrorIs(t, err, ErrNotMember)

	_, err = FetchClientContext(ctx, request(t, "/ws", 1), members, rdb, logger)
	assert.ErrorIs(t, err, ErrNotMember)

	sessionID, err := database.GenerateAndStoreSessionID(ctx, rdb, database.SessionInfo{PlayerID: 1, RoomID: 5}, logger)
	require.NoError(t, err)
	cc, err = FetchClientContext(ctx, request(t, "/ws?sessionId="+sessionID, 1), members, rdb, logger)
	require.NoError(t, err)
	assert.Equal(t, uint(5), cc.RoomID)
	assert.Equal(t, sessionID, cc.SessionID)

	// 他人のセッションIDは使えない
	_, err = FetchClientContext(ctx, request(t, "/ws?sessionId="+sessionID, 2), members, rdb, logger)
	assert.ErrorIs(t, err, ErrUnauthorized)
}
