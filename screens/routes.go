package screens

import (
	"quizserver/middlewares"
	"quizserver/quiz/session"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type handlerFunc func(c *gin.Context, ctrl *session.Controller, logger *zap.Logger)

// RegisterRoutes はルーム操作のHTTPルートを登録する。すべてトークン認証が必要
func RegisterRoutes(router gin.IRouter, ctrl *session.Controller, logger *zap.Logger) {
	bind := func(h handlerFunc) gin.HandlerFunc {
		return func(c *gin.Context) { h(c, ctrl, logger) }
	}

	rooms := router.Group("/rooms", middlewares.AuthRequired(logger))
	rooms.POST("", bind(RoomCreate))
	rooms.POST("/join/:code", bind(RoomJoinByCode))
	rooms.GET("/:roomID", bind(RoomInfo))
	rooms.DELETE("/:roomID", bind(RoomCancel))
	rooms.GET("/:roomID/result", bind(RoomResult))
	rooms.POST("/:roomID/join", bind(RoomJoin))
	rooms.POST("/:roomID/leave", bind(RoomLeave))
	rooms.PUT("/:roomID/ready", bind(PlayerReady))
	rooms.POST("/:roomID/start", bind(GameStart))
	rooms.POST("/:roomID/next", bind(GameNext))
	rooms.POST("/:roomID/end", bind(GameEnd))
	rooms.POST("/:roomID/answers", bind(AnswerSubmit))
}
