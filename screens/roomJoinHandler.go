package screens

import (
	"net/http"

	"quizserver/middlewares"
	"quizserver/quiz/session"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ルームIDを指定して参加する
func RoomJoin(c *gin.Context, ctrl *session.Controller, logger *zap.Logger) {
	roomID, ok := roomIDParam(c)
	if !ok {
		return
	}
	joined, err := ctrl.JoinRoom(c.Request.Context(), roomID, middlewares.CurrentUserID(c))
	if err != nil {
		internalError(c, logger, "Failed to join room", err)
		return
	}
	if !joined {
		c.JSON(http.StatusConflict, gin.H{"status": "join_refused", "error": "room is full, started or missing"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "roomID": roomID})
}

// 参加コードで参加する
func RoomJoinByCode(c *gin.Context, ctrl *session.Controller, logger *zap.Logger) {
	room, err := ctrl.JoinByCode(c.Request.Context(), c.Param("code"), middlewares.CurrentUserID(c))
	if err != nil {
		internalError(c, logger, "Failed to join room by code", err)
		return
	}
	if room == nil {
		c.JSON(http.StatusNotFound, gin.H{"status": "join_refused", "error": "no joinable room for this code"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "room": room})
}

// 退出する
func RoomLeave(c *gin.Context, ctrl *session.Controller, logger *zap.Logger) {
	roomID, ok := roomIDParam(c)
	if !ok {
		return
	}
	left, err := ctrl.LeaveGame(c.Request.Context(), roomID, middlewares.CurrentUserID(c))
	if err != nil {
		internalError(c, logger, "Failed to leave room", err)
		return
	}
	if !left {
		c.JSON(http.StatusConflict, gin.H{"status": "leave_refused", "error": "not an active member"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}
