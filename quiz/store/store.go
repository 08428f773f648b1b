package store

import (
	"context"
	"errors"
	"time"

	"quizserver/models"
)

var (
	// ErrNotFound はルーム・問題・参加者・結果が存在しない場合に返す
	ErrNotFound = errors.New("record not found")
	// ErrNotPlaying は回答を記録しようとした参加者がプレイ中でない場合に返す
	ErrNotPlaying = errors.New("player is not playing")
)

// JoinOutcome は参加処理の結果
type JoinOutcome int

const (
	JoinRefused   JoinOutcome = iota // 満員・待機中でない・ルームなし
	Joined                           // 新規参加（または退出済みからの復帰）
	AlreadyMember                    // すでに有効な参加記録がある
)

// Standing は最終順位とXP
type Standing struct {
	PlayerID uint
	Rank     int
	XP       int
}

// Store はルーム・参加者・問題・回答・結果の永続化を行う。
// 競合が起こりうる操作（参加の定員チェック、スコア加算、状態遷移）は
// 実装側で原子的に行う。
type Store interface {
	CreateRoom(ctx context.Context, room *models.GameRoom, creatorID uint) error
	GetRoom(ctx context.Context, roomID uint) (*models.GameRoom, error)
	FindWaitingRoomByCode(ctx context.Context, code string) (*models.GameRoom, error)
	JoinCodeInUse(ctx context.Context, code string) (bool, error)
	ListWaitingRoomsBefore(ctx context.Context, cutoff time.Time) ([]models.GameRoom, error)

	AddPlayer(ctx context.Context, roomID, playerID uint) (JoinOutcome, error)
	GetPlayer(ctx context.Context, roomID, playerID uint) (*models.GamePlayer, error)
	ListPlayers(ctx context.Context, roomID uint) ([]models.GamePlayer, error)
	UpdatePlayerStatus(ctx context.Context, roomID, playerID uint, from []string, to string) (bool, error)

	StartRoom(ctx context.Context, roomID uint, questions []models.GameQuestion, startedAt time.Time) (bool, error)
	GetQuestion(ctx context.Context, roomID, questionID uint) (*models.GameQuestion, error)
	GetQuestionAt(ctx context.Context, roomID uint, position int) (*models.GameQuestion, error)
	ListQuestions(ctx context.Context, roomID uint) ([]models.GameQuestion, error)

	RecordAnswer(ctx context.Context, answer *models.GameAnswer) (*models.GameAnswer, bool, error)

	FinishRoom(ctx context.Context, roomID uint, standings []Standing, result *models.GameResult, endedAt time.Time) (bool, error)
	CancelRoom(ctx context.Context, roomID uint, endedAt time.Time) (bool, error)
	GetResult(ctx context.Context, roomID uint) (*models.GameResult, error)
}
