package screens

import (
	"context"
	"net/http"

	"quizserver/middlewares"
	"quizserver/quiz/session"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type readyRequest struct {
	Ready bool `json:"ready"`
}

type answerRequest struct {
	QuestionID uint   `json:"questionId" binding:"required"`
	Answer     string `json:"answer"`
	ElapsedMs  int64  `json:"elapsedMs"`
}

type nextRequest struct {
	Position int `json:"position" binding:"required"`
}

// ゲームの進行操作はルームの作成者だけが行える
func requireCreator(c *gin.Context, ctrl *session.Controller, logger *zap.Logger, roomID uint) bool {
	state, err := ctrl.RoomState(c.Request.Context(), roomID)
	if err != nil {
		internalError(c, logger, "Failed to load room", err)
		return false
	}
	if state == nil {
		c.JSON(http.StatusNotFound, gin.H{"status": "room_not_found", "error": "room not found"})
		return false
	}
	if state.Room.CreatorID != middlewares.CurrentUserID(c) {
		c.JSON(http.StatusForbidden, gin.H{"status": "not_room_creator", "error": "only the room creator can do this"})
		return false
	}
	return true
}

// 準備完了を切り替える
func PlayerReady(c *gin.Context, ctrl *session.Controller, logger *zap.Logger) {
	roomID, ok := roomIDParam(c)
	if !ok {
		return
	}
	var request readyRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "bind_error", "error": err.Error()})
		return
	}
	updated, err := ctrl.SetReady(c.Request.Context(), roomID, middlewares.CurrentUserID(c), request.Ready)
	if err != nil {
		internalError(c, logger, "Failed to update ready state", err)
		return
	}
	if !updated {
		c.JSON(http.StatusConflict, gin.H{"status": "ready_refused", "error": "cannot change ready state"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "ready": request.Ready})
}

// 作成者専用の操作を共通化する
func creatorAction(c *gin.Context, ctrl *session.Controller, logger *zap.Logger, failure string, action func(ctx context.Context, roomID uint) (interface{}, bool, error)) {
	roomID, ok := roomIDParam(c)
	if !ok {
		return
	}
	if !requireCreator(c, ctrl, logger, roomID) {
		return
	}
	body, done, err := action(c.Request.Context(), roomID)
	if err != nil {
		internalError(c, logger, failure, err)
		return
	}
	if !done {
		c.JSON(http.StatusConflict, gin.H{"status": "refused", "error": failure})
		return
	}
	response := gin.H{"status": "success"}
	if body != nil {
		response["result"] = body
	}
	c.JSON(http.StatusOK, response)
}

// ゲームを開始する
func GameStart(c *gin.Context, ctrl *session.Controller, logger *zap.Logger) {
	creatorAction(c, ctrl, logger, "Failed to start game", func(ctx context.Context, roomID uint) (interface{}, bool, error) {
		started, err := ctrl.StartGame(ctx, roomID)
		return nil, started, err
	})
}

// 次の問題へ進める
func GameNext(c *gin.Context, ctrl *session.Controller, logger *zap.Logger) {
	var request nextRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "bind_error", "error": err.Error()})
		return
	}
	creatorAction(c, ctrl, logger, "Failed to advance question", func(ctx context.Context, roomID uint) (interface{}, bool, error) {
		advanced, err := ctrl.NextQuestion(ctx, roomID, request.Position)
		return nil, advanced, err
	})
}

// ゲームを終了して結果を確定する
func GameEnd(c *gin.Context, ctrl *session.Controller, logger *zap.Logger) {
	creatorAction(c, ctrl, logger, "Failed to end game", func(ctx context.Context, roomID uint) (interface{}, bool, error) {
		result, err := ctrl.EndGame(ctx, roomID)
		if err != nil || result == nil {
			return nil, false, err
		}
		return result, true, nil
	})
}

// 回答を送信する
func AnswerSubmit(c *gin.Context, ctrl *session.Controller, logger *zap.Logger) {
	roomID, ok := roomIDParam(c)
	if !ok {
		return
	}
	var request answerRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "bind_error", "error": err.Error()})
		return
	}
	result, err := ctrl.SubmitAnswer(c.Request.Context(), roomID, request.QuestionID, middlewares.CurrentUserID(c), request.Answer, request.ElapsedMs)
	if err != nil {
		internalError(c, logger, "Failed to submit answer", err)
		return
	}
	if result == nil {
		c.JSON(http.StatusConflict, gin.H{"status": "answer_refused", "error": "answer not accepted"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "result": result})
}
