package models

import (
	"gorm.io/gorm"
)

const (
	QuestionTypeMultipleChoice = "multiple_choice"
	QuestionTypeFreeText       = "free_text"
)

// GameQuestion はルームに属する1問。開始時に一括で作成され、以後は読み取り専用
type GameQuestion struct {
	gorm.Model
	GameRoomID    uint     `gorm:"not null;uniqueIndex:idx_room_position" json:"roomId"`
	Position      int      `gorm:"not null;uniqueIndex:idx_room_position" json:"position"` // 1始まり
	Text          string   `gorm:"not null" json:"text"`
	QuestionType  string   `gorm:"not null" json:"questionType"`
	Options       []string `gorm:"serializer:json;type:text" json:"options,omitempty"` // 記述式の場合はnil
	CorrectAnswer string   `gorm:"not null" json:"-"`
	BasePoints    int      `gorm:"not null" json:"basePoints"`
	TimeLimit     int      `gorm:"not null" json:"timeLimit"` // 秒
	Subject       string   `json:"subject"`
}
