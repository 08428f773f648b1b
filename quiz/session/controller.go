package session

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"quizserver/metrics"
	"quizserver/models"
	"quizserver/quiz/broadcast"
	"quizserver/quiz/generator"
	"quizserver/quiz/scoring"
	"quizserver/quiz/store"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

var (
	ErrInvalidCategory = errors.New("invalid game category")
	ErrInvalidSettings = errors.New("invalid room settings")
)

const (
	minGradeBand  = 1
	maxGradeBand  = 12
	maxRoomPlayer = 50
)

// Channel はルームへのリアルタイム通知の配信先。
// 受信箱の購読は接続を持つ側（WebSocket）が行う。
type Channel interface {
	Publish(ctx context.Context, roomID uint, ev broadcast.Event) error
}

// CreateRoomRequest はルーム作成のパラメータ
type CreateRoomRequest struct {
	Category   string
	CreatorID  uint
	GradeBand  int
	Difficulty string
	Settings   models.RoomSettings
	MaxPlayers int // 0ならデフォルト
}

// AnswerResult は回答の採点結果
type AnswerResult struct {
	QuestionID   uint `json:"questionId"`
	IsCorrect    bool `json:"isCorrect"`
	PointsEarned int  `json:"pointsEarned"`
	Duplicate    bool `json:"duplicate"` // 既に回答済みで、今回の回答は記録されていない
}

// RoomState は通知を取りこぼしたクライアントが状態を復元するための全体像
type RoomState struct {
	Room      models.GameRoom       `json:"room"`
	Players   []models.GamePlayer   `json:"players"`
	Questions []models.GameQuestion `json:"questions,omitempty"`
}

// Controller はルームの作成から結果確定までを管理する。
// 状態はすべてストアにあり、複数のゴルーチンから同時に使ってよい。
type Controller struct {
	store    store.Store
	channel  Channel
	logger   *zap.Logger
	validate *validator.Validate
	locks    *roomLocks
	now      func() time.Time
	newRand  func() *rand.Rand
}

type Option func(*Controller)

// WithClock は現在時刻の取得方法を差し替える
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithRandSource は問題生成と参加コードに使う乱数生成器を差し替える
func WithRandSource(newRand func() *rand.Rand) Option {
	return func(c *Controller) { c.newRand = newRand }
}

func NewController(st store.Store, channel Channel, logger *zap.Logger, opts ...Option) *Controller {
	c := &Controller{
		store:    st,
		channel:  channel,
		logger:   logger,
		validate: validator.New(),
		locks:    newRoomLocks(),
		now:      time.Now,
		newRand:  generator.NewRandGenerator,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// 通知の失敗はログに残すだけで、呼び出し元の処理は失敗させない
func (c *Controller) publish(ctx context.Context, roomID uint, ev broadcast.Event) {
	if err := c.channel.Publish(ctx, roomID, ev); err != nil {
		metrics.BroadcastFailures.WithLabelValues(ev.Name(), "publish_error").Inc()
		c.logger.Warn("Failed to broadcast event",
			zap.Uint("RoomID", roomID),
			zap.String("event", ev.Name()),
			zap.Error(err),
		)
	}
}

func (c *Controller) validateRoomRequest(req *CreateRoomRequest) error {
	if !generator.IsKnownCategory(req.Category) {
		return fmt.Errorf("%w: %q", ErrInvalidCategory, req.Category)
	}
	if _, ok := generator.DifficultyMultiplier(req.Difficulty); !ok {
		return fmt.Errorf("%w: unknown difficulty %q", ErrInvalidSettings, req.Difficulty)
	}
	if req.GradeBand < minGradeBand || req.GradeBand > maxGradeBand {
		return fmt.Errorf("%w: grade band must be between %d and %d", ErrInvalidSettings, minGradeBand, maxGradeBand)
	}
	if req.MaxPlayers == 0 {
		req.MaxPlayers = models.DefaultMaxPlayers
	}
	if req.MaxPlayers < 1 || req.MaxPlayers > maxRoomPlayer {
		return fmt.Errorf("%w: max players must be between 1 and %d", ErrInvalidSettings, maxRoomPlayer)
	}
	req.Settings = req.Settings.WithDefaults()
	if err := c.validate.Struct(req.Settings); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}
	return nil
}

// CreateRoom は待機中のルームを作成し、作成者を最初の参加者として参加させる
func (c *Controller) CreateRoom(ctx context.Context, req CreateRoomRequest) (*models.GameRoom, error) {
	if err := c.validateRoomRequest(&req); err != nil {
		return nil, err
	}

	code, err := c.allocateJoinCode(ctx, c.newRand())
	if err != nil {
		c.logger.Error("Failed to allocate join code", zap.Error(err))
		return nil, err
	}

	room := &models.GameRoom{
		Category:   req.Category,
		CreatorID:  req.CreatorID,
		Status:     models.RoomStatusWaiting,
		MaxPlayers: req.MaxPlayers,
		GradeBand:  req.GradeBand,
		Difficulty: req.Difficulty,
		Settings:   req.Settings,
		JoinCode:   code,
	}
	// 作成者は常に1人目の参加者。ルームと同じトランザクションで登録する
	if err := c.store.CreateRoom(ctx, room, req.CreatorID); err != nil {
		c.logger.Error("Failed to create game room", zap.Error(err))
		return nil, err
	}
	metrics.RoomsCreated.WithLabelValues(room.Category).Inc()
	metrics.JoinAttempts.WithLabelValues("joined").Inc()
	c.logger.Info("Game room created",
		zap.Uint("RoomID", room.ID),
		zap.Uint("CreatorID", room.CreatorID),
		zap.String("category", room.Category),
		zap.String("joinCode", room.JoinCode),
	)
	c.publish(ctx, room.ID, broadcast.PlayerJoined{PlayerID: req.CreatorID})
	return room, nil
}

// JoinRoom はルームに参加する。満員・待機中でない・ルームが存在しない場合は false。
// 既に参加している場合は行を増やさずに true を返す。
func (c *Controller) JoinRoom(ctx context.Context, roomID, playerID uint) (bool, error) {
	unlock := c.locks.lock(roomID)
	defer unlock()

	outcome, err := c.store.AddPlayer(ctx, roomID, playerID)
	if err != nil {
		c.logger.Error("Failed to add player", zap.Uint("RoomID", roomID), zap.Uint("PlayerID", playerID), zap.Error(err))
		return false, err
	}

	switch outcome {
	case store.AlreadyMember:
		metrics.JoinAttempts.WithLabelValues("rejoined").Inc()
		return true, nil
	case store.Joined:
		metrics.JoinAttempts.WithLabelValues("joined").Inc()
		c.logger.Info("Player joined room", zap.Uint("RoomID", roomID), zap.Uint("PlayerID", playerID))
		c.publish(ctx, roomID, broadcast.PlayerJoined{PlayerID: playerID})
		return true, nil
	default:
		metrics.JoinAttempts.WithLabelValues("refused").Inc()
		return false, nil
	}
}

// JoinByCode は参加コードから待機中のルームを探して参加する。
// 該当するルームがない、または参加できない場合は nil を返す。
func (c *Controller) JoinByCode(ctx context.Context, code string, playerID uint) (*models.GameRoom, error) {
	room, err := c.store.FindWaitingRoomByCode(ctx, NormalizeJoinCode(code))
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	joined, err := c.JoinRoom(ctx, room.ID, playerID)
	if err != nil || !joined {
		return nil, err
	}
	return room, nil
}

// SetReady は joined と ready を切り替える。ゲーム開始の条件にはならない
func (c *Controller) SetReady(ctx context.Context, roomID, playerID uint, ready bool) (bool, error) {
	to := models.PlayerStatusJoined
	if ready {
		to = models.PlayerStatusReady
	}
	ok, err := c.store.UpdatePlayerStatus(ctx, roomID, playerID,
		[]string{models.PlayerStatusJoined, models.PlayerStatusReady}, to)
	if err != nil || !ok {
		return false, err
	}
	c.publish(ctx, roomID, broadcast.PlayerReady{PlayerID: playerID, Ready: ready})
	return true, nil
}

// StartGame は問題を生成して一括登録し、ルームを進行中にする。
// 途中で失敗した場合ルームは待機中のままで、問題も残らない。
func (c *Controller) StartGame(ctx context.Context, roomID uint) (bool, error) {
	unlock := c.locks.lock(roomID)
	defer unlock()

	room, err := c.store.GetRoom(ctx, roomID)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if room.Status != models.RoomStatusWaiting {
		return false, nil
	}

	questions, err := generator.Generate(c.newRand(), generator.Request{
		Category:   room.Category,
		GradeBand:  room.GradeBand,
		Difficulty: room.Difficulty,
		Count:      room.Settings.TotalQuestions,
		TimeLimit:  room.Settings.TimePerQuestion,
	})
	if err != nil {
		c.logger.Error("Failed to generate questions", zap.Uint("RoomID", roomID), zap.Error(err))
		return false, err
	}

	started, err := c.store.StartRoom(ctx, roomID, questions, c.now())
	if err != nil {
		c.logger.Error("Failed to start game", zap.Uint("RoomID", roomID), zap.Error(err))
		return false, err
	}
	if !started {
		return false, nil
	}

	c.logger.Info("Game started", zap.Uint("RoomID", roomID), zap.Int("questions", len(questions)))
	c.publish(ctx, roomID, broadcast.GameStart{RoomID: roomID})
	c.publish(ctx, roomID, broadcast.NextQuestion{QuestionIndex: 1, TimeLimit: questions[0].TimeLimit})
	return true, nil
}

func answersMatch(submitted, correct string) bool {
	return strings.EqualFold(strings.TrimSpace(submitted), strings.TrimSpace(correct))
}

// SubmitAnswer は回答を採点して記録する。進行中でない、問題がルームに属さない、
// プレイヤーがプレイ中でない場合は nil を返す。二重回答は記録済みの結果を Duplicate 付きで返す。
func (c *Controller) SubmitAnswer(ctx context.Context, roomID, questionID, playerID uint, answerText string, elapsedMs int64) (*AnswerResult, error) {
	unlock := c.locks.lock(roomID)
	defer unlock()

	room, err := c.store.GetRoom(ctx, roomID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if room.Status != models.RoomStatusInProgress {
		return nil, nil
	}

	question, err := c.store.GetQuestion(ctx, roomID, questionID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if elapsedMs < 0 {
		elapsedMs = 0
	}
	isCorrect := answersMatch(answerText, question.CorrectAnswer)
	points := scoring.Score(isCorrect, elapsedMs, question.TimeLimit, question.BasePoints)

	answer := &models.GameAnswer{
		GameRoomID:     roomID,
		GameQuestionID: questionID,
		PlayerID:       playerID,
		AnswerText:     answerText,
		IsCorrect:      isCorrect,
		ElapsedMs:      elapsedMs,
		PointsEarned:   points,
	}
	stored, created, err := c.store.RecordAnswer(ctx, answer)
	if errors.Is(err, store.ErrNotPlaying) {
		return nil, nil
	}
	if err != nil {
		c.logger.Error("Failed to record answer", zap.Uint("RoomID", roomID), zap.Uint("PlayerID", playerID), zap.Error(err))
		return nil, err
	}

	result := &AnswerResult{
		QuestionID:   questionID,
		IsCorrect:    stored.IsCorrect,
		PointsEarned: stored.PointsEarned,
		Duplicate:    !created,
	}
	if !created {
		c.logger.Info("Duplicate answer ignored", zap.Uint("RoomID", roomID), zap.Uint("QuestionID", questionID), zap.Uint("PlayerID", playerID))
		return result, nil
	}

	metrics.AnswersScored.WithLabelValues(fmt.Sprint(isCorrect)).Inc()
	c.publish(ctx, roomID, broadcast.AnswerSubmitted{PlayerID: playerID, IsCorrect: isCorrect, PointsEarned: points})
	return result, nil
}

// NextQuestion は指定した番号の問題へ進んだことを通知する
func (c *Controller) NextQuestion(ctx context.Context, roomID uint, position int) (bool, error) {
	room, err := c.store.GetRoom(ctx, roomID)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if room.Status != models.RoomStatusInProgress {
		return false, nil
	}

	question, err := c.store.GetQuestionAt(ctx, roomID, position)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	c.publish(ctx, roomID, broadcast.NextQuestion{QuestionIndex: question.Position, TimeLimit: question.TimeLimit})
	return true, nil
}

// 順位ごとのXP
func xpForRank(rank int) int {
	switch rank {
	case 1:
		return 100
	case 2:
		return 75
	case 3:
		return 50
	default:
		return 25
	}
}

// EndGame は順位とXPを確定し、結果を1件登録してルームを完了にする。
// 全員が回答し終えたかどうかは呼び出し側が判断する。
func (c *Controller) EndGame(ctx context.Context, roomID uint) (*models.GameResult, error) {
	unlock := c.locks.lock(roomID)
	defer unlock()

	room, err := c.store.GetRoom(ctx, roomID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if room.Status != models.RoomStatusInProgress {
		return nil, nil
	}

	players, err := c.store.ListPlayers(ctx, roomID)
	if err != nil {
		return nil, err
	}
	// スコア順に並んでいるので、退出者を除いてそのまま順位を振る
	var standings []store.Standing
	finalScores := make(map[uint]int)
	xpAwarded := make(map[uint]int)
	for _, p := range players {
		if !p.Active() {
			continue
		}
		rank := len(standings) + 1
		xp := xpForRank(rank)
		standings = append(standings, store.Standing{PlayerID: p.PlayerID, Rank: rank, XP: xp})
		finalScores[p.PlayerID] = p.Score
		xpAwarded[p.PlayerID] = xp
	}
	if len(standings) == 0 {
		c.logger.Info("No players to rank, skipping end of game", zap.Uint("RoomID", roomID))
		return nil, nil
	}

	endedAt := c.now()
	var duration int64
	if room.StartedAt != nil {
		duration = int64(endedAt.Sub(*room.StartedAt).Seconds())
	}
	result := &models.GameResult{
		WinnerID:        standings[0].PlayerID,
		FinalScores:     finalScores,
		XPAwarded:       xpAwarded,
		TotalQuestions:  room.Settings.TotalQuestions,
		DurationSeconds: duration,
	}

	finished, err := c.store.FinishRoom(ctx, roomID, standings, result, endedAt)
	if err != nil {
		c.logger.Error("Failed to finalize game", zap.Uint("RoomID", roomID), zap.Error(err))
		return nil, err
	}
	if !finished {
		return nil, nil
	}

	metrics.GamesFinished.WithLabelValues(models.RoomStatusCompleted).Inc()
	c.logger.Info("Game finished",
		zap.Uint("RoomID", roomID),
		zap.Uint("WinnerID", result.WinnerID),
		zap.Int64("durationSeconds", duration),
	)
	c.publish(ctx, roomID, broadcast.GameEnd{FinalScores: finalScores, Winner: result.WinnerID})
	return result, nil
}

// LeaveGame はプレイヤーを退出状態にする。退出通知の配信でそのプレイヤーの接続は閉じる。
// 待機中のルームでは席が空くが、進行中のルームでは補充されない。
func (c *Controller) LeaveGame(ctx context.Context, roomID, playerID uint) (bool, error) {
	unlock := c.locks.lock(roomID)
	defer unlock()

	ok, err := c.store.UpdatePlayerStatus(ctx, roomID, playerID,
		[]string{models.PlayerStatusJoined, models.PlayerStatusReady, models.PlayerStatusPlaying},
		models.PlayerStatusLeft)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	c.logger.Info("Player left room", zap.Uint("RoomID", roomID), zap.Uint("PlayerID", playerID))
	c.publish(ctx, roomID, broadcast.PlayerLeft{PlayerID: playerID})
	return true, nil
}

// CancelRoom は作成者が待機中のルームをキャンセルする
func (c *Controller) CancelRoom(ctx context.Context, roomID, requesterID uint) (bool, error) {
	unlock := c.locks.lock(roomID)
	defer unlock()

	room, err := c.store.GetRoom(ctx, roomID)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if room.CreatorID != requesterID {
		return false, nil
	}
	return c.cancelLocked(ctx, roomID)
}

func (c *Controller) cancelLocked(ctx context.Context, roomID uint) (bool, error) {
	cancelled, err := c.store.CancelRoom(ctx, roomID, c.now())
	if err != nil || !cancelled {
		return false, err
	}
	metrics.GamesFinished.WithLabelValues(models.RoomStatusCancelled).Inc()
	c.logger.Info("Game room cancelled", zap.Uint("RoomID", roomID))
	c.publish(ctx, roomID, broadcast.RoomCancelled{RoomID: roomID})
	return true, nil
}

// ExpireWaitingRooms は olderThan より前に作られ、まだ待機中のルームをキャンセルする
func (c *Controller) ExpireWaitingRooms(ctx context.Context, olderThan time.Duration) (int, error) {
	rooms, err := c.store.ListWaitingRoomsBefore(ctx, c.now().Add(-olderThan))
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, room := range rooms {
		unlock := c.locks.lock(room.ID)
		cancelled, err := c.cancelLocked(ctx, room.ID)
		unlock()
		if err != nil {
			c.logger.Error("Failed to expire waiting room", zap.Uint("RoomID", room.ID), zap.Error(err))
			continue
		}
		if cancelled {
			expired++
		}
	}
	return expired, nil
}

// RoomState はルーム・参加者・（開始後は）問題をまとめて返す。正解は含まない
func (c *Controller) RoomState(ctx context.Context, roomID uint) (*RoomState, error) {
	room, err := c.store.GetRoom(ctx, roomID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	players, err := c.store.ListPlayers(ctx, roomID)
	if err != nil {
		return nil, err
	}

	state := &RoomState{Room: *room, Players: players}
	// 進行中になるまで問題は公開しない
	if room.Status == models.RoomStatusInProgress || room.Status == models.RoomStatusCompleted {
		state.Questions, err = c.store.ListQuestions(ctx, roomID)
		if err != nil {
			return nil, err
		}
	}
	return state, nil
}

// Result は終了したルームの結果を返す。まだなければ nil
func (c *Controller) Result(ctx context.Context, roomID uint) (*models.GameResult, error) {
	result, err := c.store.GetResult(ctx, roomID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	return result, err
}

// IsMember はプレイヤーがルームに有効な参加記録を持つかどうか
func (c *Controller) IsMember(ctx context.Context, roomID, playerID uint) (bool, error) {
	player, err := c.store.GetPlayer(ctx, roomID, playerID)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return player.Active(), nil
}
