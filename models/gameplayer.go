package models

import (
	"time"

	"gorm.io/gorm"
)

// プレイヤーの参加状態
const (
	PlayerStatusJoined   = "joined"
	PlayerStatusReady    = "ready"
	PlayerStatusPlaying  = "playing"
	PlayerStatusFinished = "finished"
	PlayerStatusLeft     = "left"
)

// GamePlayer はルームへの参加記録。(room, player) の組ごとに1行
type GamePlayer struct {
	gorm.Model
	GameRoomID   uint       `gorm:"not null;uniqueIndex:idx_room_player" json:"roomId"`
	PlayerID     uint       `gorm:"not null;uniqueIndex:idx_room_player" json:"playerId"`
	Status       string     `gorm:"not null;default:'joined'" json:"status"`
	Score        int        `gorm:"not null;default:0" json:"score"`
	CorrectCount int        `gorm:"not null;default:0" json:"correctCount"`
	TotalAnswers int        `gorm:"not null;default:0" json:"totalAnswers"`
	Rank         *int       `json:"rank,omitempty"` // ゲーム終了時に一度だけ設定
	FinishedAt   *time.Time `json:"finishedAt,omitempty"`
}

// Active は退出していない参加者かどうか
func (p GamePlayer) Active() bool {
	return p.Status != PlayerStatusLeft
}
