package connection

import (
	"time"

	"quizserver/quiz/broadcast"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	pingPeriod   = 10 * time.Second // 10秒ごとにPingを送信
	pongWait     = 60 * time.Second // 60秒の読み取りデッドライン
	writeTimeout = 10 * time.Second
	closeGrace   = time.Second
)

// PrepareRead は読み取りデッドラインとPongハンドラを設定する
func PrepareRead(conn *websocket.Conn) {
	conn.SetReadLimit(4096)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
}

// MaintainWebSocketConnection は接続への書き込みを一手に引き受ける。
// ルームのイベント、送信元への応答、Pingを送る。受信箱が閉じるか読み取り側が終わったら、
// 積まれている応答を書き出してから接続を閉じる。
func MaintainWebSocketConnection(conn *websocket.Conn, sub *broadcast.Subscription, replies <-chan []byte, done <-chan struct{}, logger *zap.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	write := func(messageType int, payload []byte) bool {
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteMessage(messageType, payload); err != nil {
			logger.Info("Error writing to client", zap.Uint("PlayerID", sub.PlayerID), zap.Error(err))
			return false
		}
		return true
	}

	events := sub.C
	writeEvent := func(msg broadcast.Message) bool {
		payload, err := broadcast.Encode(msg.RoomID, msg.Event)
		if err != nil {
			logger.Error("Failed to encode event", zap.String("event", msg.Event.Name()), zap.Error(err))
			return true
		}
		return write(websocket.TextMessage, payload)
	}

	// 未送信のイベントと応答を書き出してからクローズフレームを送る
	shutdown := func() {
		for {
			select {
			case msg, ok := <-events:
				if !ok {
					events = nil
					continue
				}
				if !writeEvent(msg) {
					return
				}
			case payload := <-replies:
				if !write(websocket.TextMessage, payload) {
					return
				}
			default:
				write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "room closed"))
				return
			}
		}
	}

	var grace <-chan time.Time
	for {
		select {
		case msg, ok := <-events:
			if !ok {
				// ゲーム終了・キャンセル・退出で受信箱が閉じた。処理中の応答を待ってから閉じる
				events = nil
				grace = time.After(closeGrace)
				continue
			}
			if !writeEvent(msg) {
				return
			}
		case payload := <-replies:
			if !write(websocket.TextMessage, payload) {
				return
			}
		case <-ticker.C:
			if !write(websocket.PingMessage, nil) {
				return
			}
		case <-grace:
			shutdown()
			return
		case <-done:
			shutdown()
			return
		}
	}
}
