package quiz

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"quizserver/auth"
	"quizserver/internal/testdb"
	"quizserver/models"
	"quizserver/quiz/broadcast"
	"quizserver/quiz/session"
	"quizserver/quiz/store"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type wsFixture struct {
	ctrl   *session.Controller
	hub    *broadcast.Hub
	server *httptest.Server
}

func newWSFixture(t *testing.T) *wsFixture {
	t.Helper()
	auth.SetSecret("ws-secret")
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	hub := broadcast.NewHub(16, zap.NewNop())
	ctrl := session.NewController(store.NewGormStore(testdb.Open(t)), hub, zap.NewNop())
	handler := NewWebSocketHandler(ctrl, hub, rdb, nil, zap.NewNop())

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handler.HandleConnections(r.Context(), w, r)
	}))
	t.Cleanup(server.Close)
	return &wsFixture{ctrl: ctrl, hub: hub, server: server}
}

func (f *wsFixture) dial(t *testing.T, roomID, playerID uint) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	token, err := auth.GenerateToken(playerID, time.Hour)
	require.NoError(t, err)
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws?roomId=" + jsonNumber(roomID) + "&token=" + token
	return websocket.DefaultDialer.Dial(url, nil)
}

func jsonNumber(n uint) string {
	b, _ := json.Marshal(n)
	return string(b)
}

func readType(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg struct {
		Type string `json:"type"`
	}
	require.NoError(t, json.Unmarshal(payload, &msg))
	return msg.Type
}

func TestWebSocketRelaysRoomEvents(t *testing.T) {
	f := newWSFixture(t)
	ctx := context.Background()
	room, err := f.ctrl.CreateRoom(ctx, session.CreateRoomRequest{
		Category: models.CategoryScience, CreatorID: 1, GradeBand: 4, Difficulty: models.DifficultyMedium,
	})
	require.NoError(t, err)

	conn, _, err := f.dial(t, room.ID, 1)
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t, "session", readType(t, conn))
	assert.Equal(t, "room_state", readType(t, conn))

	ok, err := f.ctrl.JoinRoom(ctx, room.ID, 2)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "player_joined", readType(t, conn))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ready","ready":true}`)))
	got := []string{readType(t, conn), readType(t, conn)}
	assert.ElementsMatch(t, []string{"ready_ack", "player_ready"}, got)

	cancelled, err := f.ctrl.CancelRoom(ctx, room.ID, 1)
	require.NoError(t, err)
	require.True(t, cancelled)
	assert.Equal(t, "room_cancelled", readType(t, conn))

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}

func TestWebSocketReconnectSkipsEventsBeforeSnapshot(t *testing.T) {
	f := newWSFixture(t)
	ctx := context.Background()
	room, err := f.ctrl.CreateRoom(ctx, session.CreateRoomRequest{
		Category: models.CategoryMath, CreatorID: 1, GradeBand: 3, Difficulty: models.DifficultyEasy,
	})
	require.NoError(t, err)

	first, _, err := f.dial(t, room.ID, 2)
	require.Error(t, err, "not a member yet")
	assert.Nil(t, first)

	// 接続していない間にHTTP経由で参加と準備を繰り返す
	ok, err := f.ctrl.JoinRoom(ctx, room.ID, 2)
	require.NoError(t, err)
	require.True(t, ok)
	for i := 0; i < 5; i++ {
		_, err := f.ctrl.SetReady(ctx, room.ID, 2, i%2 == 0)
		require.NoError(t, err)
	}

	conn, _, err := f.dial(t, room.ID, 2)
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, "session", readType(t, conn))
	assert.Equal(t, "room_state", readType(t, conn))

	// 状態の後に届くのは接続後のイベントだけ
	ok, err = f.ctrl.JoinRoom(ctx, room.ID, 3)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "player_joined", readType(t, conn))

	// 切断すると受信箱も解放される
	conn.Close()
	require.Eventually(t, func() bool {
		return f.hub.SubscriberCount(room.ID) == 0
	}, 3*time.Second, 10*time.Millisecond)
}

func TestWebSocketLeaveRepliesBeforeClosing(t *testing.T) {
	f := newWSFixture(t)
	ctx := context.Background()
	room, err := f.ctrl.CreateRoom(ctx, session.CreateRoomRequest{
		Category: models.CategoryMath, CreatorID: 1, GradeBand: 3, Difficulty: models.DifficultyEasy,
	})
	require.NoError(t, err)
	ok, err := f.ctrl.JoinRoom(ctx, room.ID, 2)
	require.NoError(t, err)
	require.True(t, ok)

	conn, _, err := f.dial(t, room.ID, 2)
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, "session", readType(t, conn))
	assert.Equal(t, "room_state", readType(t, conn))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"leave"}`)))
	got := []string{readType(t, conn), readType(t, conn)}
	assert.ElementsMatch(t, []string{"left", "player_left"}, got)

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}

func TestWebSocketRejectsOutsiders(t *testing.T) {
	f := newWSFixture(t)
	room, err := f.ctrl.CreateRoom(context.Background(), session.CreateRoomRequest{
		Category: models.CategoryMath, CreatorID: 1, GradeBand: 2, Difficulty: models.DifficultyEasy,
	})
	require.NoError(t, err)

	_, resp, err := f.dial(t, room.ID, 99)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws?roomId=1"
	_, resp, err = websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
