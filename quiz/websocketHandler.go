// Package quiz はプレイヤーとのWebSocket接続を扱う。
package quiz

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"quizserver/metrics"
	"quizserver/models"
	"quizserver/quiz/actions"
	"quizserver/quiz/broadcast"
	"quizserver/quiz/connection"
	"quizserver/quiz/database"
	"quizserver/quiz/session"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Subscriber は接続ごとの受信箱を払い出す
type Subscriber interface {
	Subscribe(roomID, playerID uint) *broadcast.Subscription
	Unsubscribe(sub *broadcast.Subscription)
}

// WebSocketHandler はクライアントの接続を受け付け、ルームのイベントを中継する
type WebSocketHandler struct {
	controller *session.Controller
	subscriber Subscriber
	rdb        *redis.Client
	upgrader   websocket.Upgrader
	logger     *zap.Logger
}

func NewWebSocketHandler(controller *session.Controller, subscriber Subscriber, rdb *redis.Client, allowedOrigins []string, logger *zap.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		controller: controller,
		subscriber: subscriber,
		rdb:        rdb,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		logger: logger,
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(allowed) == 0 {
			return true
		}
		for _, o := range allowed {
			if o == "*" || o == origin {
				return true
			}
		}
		return false
	}
}

func marshalReply(reply actions.Reply) []byte {
	payload, _ := json.Marshal(reply)
	return payload
}

// WebSocket接続へのアップグレードを行う関数
func (h *WebSocketHandler) HandleConnections(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	clientContext, err := connection.FetchClientContext(ctx, r, h.controller, h.rdb, h.logger)
	if err != nil {
		switch {
		case errors.Is(err, connection.ErrUnauthorized):
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
		case errors.Is(err, connection.ErrNotMember):
			http.Error(w, "Not a member of the room", http.StatusForbidden)
		default:
			http.Error(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	// 状態を読む前に購読しておく。読んだ後のイベントだけが受信箱に入り、
	// 取りこぼした分は最初に送る状態で補う
	sub := h.subscriber.Subscribe(clientContext.RoomID, clientContext.PlayerID)
	defer h.subscriber.Unsubscribe(sub)

	state, err := h.controller.RoomState(ctx, clientContext.RoomID)
	if err != nil || state == nil {
		http.Error(w, "Failed to load room", http.StatusInternalServerError)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade がエラーレスポンスを書き込み済み
		h.logger.Error("Error upgrading WebSocket", zap.Error(err))
		return
	}

	playerID, roomID := clientContext.PlayerID, clientContext.RoomID
	logger := h.logger.With(zap.Uint("PlayerID", playerID), zap.Uint("RoomID", roomID))
	metrics.ConnectedClients.Inc()
	defer metrics.ConnectedClients.Dec()

	// セッションIDの再発行。旧セッションは削除する
	var sessionID string
	if h.rdb != nil {
		if clientContext.SessionID != "" {
			database.DeleteSessionID(ctx, h.rdb, clientContext.SessionID)
		}
		sessionID, err = database.GenerateAndStoreSessionID(ctx, h.rdb, database.SessionInfo{PlayerID: playerID, RoomID: roomID}, logger)
		if err != nil {
			logger.Error("Failed to generate or store session ID", zap.Error(err))
		}
	}

	greeting := []actions.Reply{
		{Type: "session", Data: map[string]interface{}{"sessionID": sessionID, "playerID": playerID}},
		{Type: "room_state", Data: state},
	}
	for _, reply := range greeting {
		if err := conn.WriteMessage(websocket.TextMessage, marshalReply(reply)); err != nil {
			logger.Info("Client went away during handshake", zap.Error(err))
			conn.Close()
			return
		}
	}

	// 終了済みのルームには状態だけ返して閉じる
	if state.Room.Status == models.RoomStatusCompleted || state.Room.Status == models.RoomStatusCancelled {
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "room closed"))
		conn.Close()
		return
	}

	replies := make(chan []byte, 8)
	done := make(chan struct{})
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		connection.MaintainWebSocketConnection(conn, sub, replies, done, logger)
	}()
	logger.Info("New client connected")

	defer func() {
		close(done)
		<-writerDone
		logger.Info("Client removed")
	}()

	connection.PrepareRead(conn)
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logger.Warn("WebSocket error", zap.Error(err))
			}
			return
		}

		reply, leave := actions.HandleMessage(ctx, h.controller, roomID, playerID, message, logger)
		select {
		case replies <- marshalReply(reply):
		case <-writerDone:
			return
		}
		if leave {
			if sessionID != "" {
				database.DeleteSessionID(ctx, h.rdb, sessionID)
			}
			return
		}
	}
}
