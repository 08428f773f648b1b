package models

import (
	"gorm.io/gorm"
)

// GameResult は終了したルームの結果。ルームごとに1行のみ
type GameResult struct {
	gorm.Model
	GameRoomID      uint         `gorm:"not null;uniqueIndex" json:"roomId"`
	WinnerID        uint         `gorm:"not null" json:"winnerId"`
	FinalScores     map[uint]int `gorm:"serializer:json;type:text" json:"finalScores"`
	XPAwarded       map[uint]int `gorm:"serializer:json;type:text" json:"xpAwarded"`
	TotalQuestions  int          `gorm:"not null" json:"totalQuestions"`
	DurationSeconds int64        `gorm:"not null" json:"durationSeconds"`
}
