package models

import (
	"gorm.io/gorm"
)

// GameAnswer は1プレイヤーの1問に対する回答。追記のみ
type GameAnswer struct {
	gorm.Model
	GameRoomID     uint   `gorm:"not null;index" json:"roomId"`
	GameQuestionID uint   `gorm:"not null;uniqueIndex:idx_question_player" json:"questionId"`
	PlayerID       uint   `gorm:"not null;uniqueIndex:idx_question_player" json:"playerId"`
	AnswerText     string `json:"answerText"`
	IsCorrect      bool   `gorm:"not null" json:"isCorrect"`
	ElapsedMs      int64  `gorm:"not null" json:"elapsedMs"`
	PointsEarned   int    `gorm:"not null" json:"pointsEarned"`
}
