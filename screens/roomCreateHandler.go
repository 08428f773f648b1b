package screens

import (
	"errors"
	"net/http"
	"strconv"

	"quizserver/middlewares"
	"quizserver/models"
	"quizserver/quiz/session"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// CreateRoomRequest はルーム作成リクエストのボディ
type CreateRoomRequest struct {
	Category   string              `json:"category" binding:"required"`
	GradeBand  int                 `json:"gradeBand" binding:"required"`
	Difficulty string              `json:"difficulty" binding:"required"`
	MaxPlayers int                 `json:"maxPlayers"`
	Settings   models.RoomSettings `json:"settings"`
}

// URLパラメータからルームIDを取り出す。失敗した場合はレスポンスを書き込み済み
func roomIDParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("roomID"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"status": "invalid_room_id", "error": "invalid room id"})
		return 0, false
	}
	return uint(id), true
}

func internalError(c *gin.Context, logger *zap.Logger, message string, err error) {
	logger.Error(message, zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"status": "internal_error", "error": message})
}

// 新しいルームを作成するハンドラー。作成者は自動的に参加する
func RoomCreate(c *gin.Context, ctrl *session.Controller, logger *zap.Logger) {
	var request CreateRoomRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "bind_error", "error": err.Error()})
		return
	}

	room, err := ctrl.CreateRoom(c.Request.Context(), session.CreateRoomRequest{
		Category:   request.Category,
		CreatorID:  middlewares.CurrentUserID(c),
		GradeBand:  request.GradeBand,
		Difficulty: request.Difficulty,
		Settings:   request.Settings,
		MaxPlayers: request.MaxPlayers,
	})
	if errors.Is(err, session.ErrInvalidCategory) || errors.Is(err, session.ErrInvalidSettings) {
		c.JSON(http.StatusBadRequest, gin.H{"status": "invalid_settings", "error": err.Error()})
		return
	}
	if err != nil {
		internalError(c, logger, "Failed to create room", err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"status": "success", "room": room})
}

// ルームの現在の状態を返す
func RoomInfo(c *gin.Context, ctrl *session.Controller, logger *zap.Logger) {
	roomID, ok := roomIDParam(c)
	if !ok {
		return
	}
	state, err := ctrl.RoomState(c.Request.Context(), roomID)
	if err != nil {
		internalError(c, logger, "Failed to load room", err)
		return
	}
	if state == nil {
		c.JSON(http.StatusNotFound, gin.H{"status": "room_not_found", "error": "room not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "state": state})
}

// 作成者が待機中のルームをキャンセルする
func RoomCancel(c *gin.Context, ctrl *session.Controller, logger *zap.Logger) {
	roomID, ok := roomIDParam(c)
	if !ok {
		return
	}
	cancelled, err := ctrl.CancelRoom(c.Request.Context(), roomID, middlewares.CurrentUserID(c))
	if err != nil {
		internalError(c, logger, "Failed to cancel room", err)
		return
	}
	if !cancelled {
		c.JSON(http.StatusConflict, gin.H{"status": "cancel_refused", "error": "room cannot be cancelled"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

// 終了したルームの結果を返す
func RoomResult(c *gin.Context, ctrl *session.Controller, logger *zap.Logger) {
	roomID, ok := roomIDParam(c)
	if !ok {
		return
	}
	result, err := ctrl.Result(c.Request.Context(), roomID)
	if err != nil {
		internalError(c, logger, "Failed to load result", err)
		return
	}
	if result == nil {
		c.JSON(http.StatusNotFound, gin.H{"status": "result_not_found", "error": "result not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "result": result})
}
