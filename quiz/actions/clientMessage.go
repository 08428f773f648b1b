package actions

import (
	"context"
	"encoding/json"

	"quizserver/quiz/session"

	"go.uber.org/zap"
)

// Controller はWebSocketから呼び出せるゲーム操作
type Controller interface {
	SetReady(ctx context.Context, roomID, playerID uint, ready bool) (bool, error)
	SubmitAnswer(ctx context.Context, roomID, questionID, playerID uint, answerText string, elapsedMs int64) (*session.AnswerResult, error)
	LeaveGame(ctx context.Context, roomID, playerID uint) (bool, error)
}

// ClientMessage はクライアントから届くメッセージ
type ClientMessage struct {
	Type       string `json:"type"`
	Ready      bool   `json:"ready"`
	QuestionID uint   `json:"questionId"`
	Answer     string `json:"answer"`
	ElapsedMs  int64  `json:"elapsedMs"`
}

// Reply は送信元のクライアントだけに返す応答
type Reply struct {
	Type  string      `json:"type"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

func errorReply(message string) Reply {
	return Reply{Type: "error", Error: message}
}

// HandleMessage はメッセージタイプに応じてゲーム操作を行い、応答を返す。
// leave が true の場合、呼び出し側は接続を閉じる。
func HandleMessage(ctx context.Context, ctrl Controller, roomID, playerID uint, payload []byte, logger *zap.Logger) (reply Reply, leave bool) {
	var msg ClientMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		logger.Warn("Error decoding message", zap.Error(err))
		return errorReply("invalid message"), false
	}

	switch msg.Type {
	case "ready":
		ok, err := ctrl.SetReady(ctx, roomID, playerID, msg.Ready)
		if err != nil {
			logger.Error("Failed to set ready", zap.Error(err))
			return errorReply("internal error"), false
		}
		if !ok {
			return errorReply("cannot change ready state"), false
		}
		return Reply{Type: "ready_ack", Data: map[string]bool{"ready": msg.Ready}}, false

	case "answer":
		result, err := ctrl.SubmitAnswer(ctx, roomID, msg.QuestionID, playerID, msg.Answer, msg.ElapsedMs)
		if err != nil {
			logger.Error("Failed to submit answer", zap.Error(err))
			return errorReply("internal error"), false
		}
		if result == nil {
			return errorReply("answer not accepted"), false
		}
		return Reply{Type: "answer_result", Data: result}, false

	case "leave":
		if _, err := ctrl.LeaveGame(ctx, roomID, playerID); err != nil {
			logger.Error("Failed to leave game", zap.Error(err))
			return errorReply("internal error"), false
		}
		return Reply{Type: "left"}, true

	default:
		logger.Info("Received unknown message type", zap.String("type", msg.Type))
		return errorReply("unknown message type"), false
	}
}
