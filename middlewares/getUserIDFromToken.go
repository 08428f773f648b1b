package middlewares

import (
	"errors"
	"net/http"
	"strings"

	"quizserver/auth"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// コンテキストに保存するユーザーIDのキー
const UserIDKey = "UserID"

var ErrTokenRequired = errors.New("token is required")

// TokenFromRequest は Authorization ヘッダー、なければ token クエリからトークンを取り出す。
// ブラウザのWebSocketはヘッダーを付けられないためクエリも受け付ける。
func TokenFromRequest(c *gin.Context) string {
	tokenString := c.GetHeader("Authorization")
	// Bearerトークンのプレフィックスを確認し、存在する場合は削除
	tokenString = strings.TrimPrefix(tokenString, "Bearer ")
	if tokenString == "" {
		tokenString = c.Query("token")
	}
	return tokenString
}

// リクエストからJWTトークンを取得し、ユーザーIDを解析して返します。
func GetUserIDFromToken(c *gin.Context, logger *zap.Logger) (uint, error) {
	tokenString := TokenFromRequest(c)
	if tokenString == "" {
		logger.Warn("Token string is empty")
		return 0, ErrTokenRequired
	}

	userID, err := auth.ParseToken(tokenString)
	if err != nil {
		logger.Warn("Failed to parse JWT token", zap.Error(err))
		return 0, err
	}
	return userID, nil
}

// AuthRequired はトークンを検証し、ユーザーIDをコンテキストにセットする
func AuthRequired(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := GetUserIDFromToken(c, logger)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		c.Set(UserIDKey, userID)
		c.Next()
	}
}

// CurrentUserID は AuthRequired がセットしたユーザーIDを返す
func CurrentUserID(c *gin.Context) uint {
	return c.GetUint(UserIDKey)
}
