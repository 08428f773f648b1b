package models

import (
	"time"

	"gorm.io/gorm"
)

// ルームの状態
const (
	RoomStatusWaiting    = "waiting"
	RoomStatusInProgress = "in_progress"
	RoomStatusCompleted  = "completed"
	RoomStatusCancelled  = "cancelled"
)

// ゲームカテゴリ（問題生成器の種類）
const (
	CategoryMath     = "math"
	CategorySpelling = "spelling"
	CategoryScience  = "science"
)

// 難易度
const (
	DifficultyEasy   = "easy"
	DifficultyMedium = "medium"
	DifficultyHard   = "hard"
)

const (
	DefaultTotalQuestions  = 10
	DefaultTimePerQuestion = 30 // 秒
	DefaultMaxPlayers      = 4
)

// RoomSettings はルーム作成時に上書きできる設定値です。
type RoomSettings struct {
	TotalQuestions  int `json:"totalQuestions" validate:"min=1,max=50"`
	TimePerQuestion int `json:"timePerQuestion" validate:"min=5,max=300"` // 秒
}

// WithDefaults はゼロ値の項目にデフォルト値を入れたコピーを返す
func (s RoomSettings) WithDefaults() RoomSettings {
	if s.TotalQuestions == 0 {
		s.TotalQuestions = DefaultTotalQuestions
	}
	if s.TimePerQuestion == 0 {
		s.TimePerQuestion = DefaultTimePerQuestion
	}
	return s
}

// GameRoom モデルの定義
type GameRoom struct {
	gorm.Model
	Category   string       `gorm:"not null" json:"category"`
	CreatorID  uint         `gorm:"not null;index" json:"creatorId"`
	Status     string       `gorm:"not null;index;default:'waiting'" json:"status"`
	MaxPlayers int          `gorm:"not null" json:"maxPlayers"`
	GradeBand  int          `gorm:"not null" json:"gradeBand"`
	Difficulty string       `gorm:"not null" json:"difficulty"`
	Settings   RoomSettings `gorm:"serializer:json;type:text" json:"settings"`
	JoinCode   string       `gorm:"not null;index" json:"joinCode"` // 待機中のルーム内で一意（部分ユニークインデックス）
	StartedAt  *time.Time   `json:"startedAt,omitempty"`
	EndedAt    *time.Time   `json:"endedAt,omitempty"`
}
