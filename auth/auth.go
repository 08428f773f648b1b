package auth

import (
	"errors"
	"time"

	"quizserver/models"

	jwt "github.com/dgrijalva/jwt-go"
)

var ErrInvalidToken = errors.New("invalid token")

// JwtKey はトークンの署名に使う鍵。起動時に SetSecret で設定する
var JwtKey []byte

func SetSecret(secret string) {
	JwtKey = []byte(secret)
}

// GenerateToken はユーザーIDを内包したトークンを発行する
func GenerateToken(userID uint, ttl time.Duration) (string, error) {
	claims := &models.MyClaims{
		UserID: userID,
		StandardClaims: jwt.StandardClaims{
			ExpiresAt: time.Now().Add(ttl).Unix(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(JwtKey)
}

// ParseToken はトークンを検証してユーザーIDを返す
func ParseToken(tokenString string) (uint, error) {
	claims := &models.MyClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return JwtKey, nil
	})
	if err != nil {
		return 0, err
	}
	if !token.Valid || claims.UserID == 0 {
		return 0, ErrInvalidToken
	}
	return claims.UserID, nil
}
