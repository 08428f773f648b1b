package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"quizserver/internal/testdb"
	"quizserver/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newRoom(t *testing.T, s *GormStore, maxPlayers int, code string) *models.GameRoom {
	t.Helper()
	room := &models.GameRoom{
		Category:   models.CategoryMath,
		CreatorID:  1,
		Status:     models.RoomStatusWaiting,
		MaxPlayers: maxPlayers,
		GradeBand:  3,
		Difficulty: models.DifficultyEasy,
		Settings:   models.RoomSettings{}.WithDefaults(),
		JoinCode:   code,
	}
	require.NoError(t, s.db.Create(room).Error)
	return room
}

func countActive(t *testing.T, s *GormStore, roomID uint) int {
	t.Helper()
	players, err := s.ListPlayers(context.Background(), roomID)
	require.NoError(t, err)
	n := 0
	for _, p := range players {
		if p.Active() {
			n++
		}
	}
	return n
}

func sampleQuestions(n int) []models.GameQuestion {
	qs := make([]models.GameQuestion, n)
	for i := range qs {
		qs[i] = models.GameQuestion{
			Position:      i + 1,
			Text:          "What is 1 + 1?",
			QuestionType:  models.QuestionTypeMultipleChoice,
			Options:       []string{"1", "2", "3", "4"},
			CorrectAnswer: "2",
			BasePoints:    10,
			TimeLimit:     30,
			Subject:       "arithmetic",
		}
	}
	return qs
}

func TestRoomLookup(t *testing.T) {
	ctx := context.Background()
	s := NewGormStore(testdb.Open(t))
	room := newRoom(t, s, 2, "KQ7PZ2")

	got, err := s.GetRoom(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, room.Settings, got.Settings)

	_, err = s.GetRoom(ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)

	byCode, err := s.FindWaitingRoomByCode(ctx, "KQ7PZ2")
	require.NoError(t, err)
	assert.Equal(t, room.ID, byCode.ID)

	inUse, err := s.JoinCodeInUse(ctx, "KQ7PZ2")
	require.NoError(t, err)
	assert.True(t, inUse)

	_, err = s.FindWaitingRoomByCode(ctx, "NOPE22")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateRoomRegistersCreator(t *testing.T) {
	ctx := context.Background()
	s := NewGormStore(testdb.Open(t))
	room := &models.GameRoom{
		Category:   models.CategoryMath,
		CreatorID:  7,
		Status:     models.RoomStatusWaiting,
		MaxPlayers: 2,
		GradeBand:  3,
		Difficulty: models.DifficultyEasy,
		Settings:   models.RoomSettings{}.WithDefaults(),
		JoinCode:   "CRT8RS",
	}
	require.NoError(t, s.CreateRoom(ctx, room, 7))

	creator, err := s.GetPlayer(ctx, room.ID, 7)
	require.NoError(t, err)
	assert.Equal(t, models.PlayerStatusJoined, creator.Status)

	outcome, err := s.AddPlayer(ctx, room.ID, 7)
	require.NoError(t, err)
	assert.Equal(t, AlreadyMember, outcome)
}

func TestCreateRoomRollsBackWhenCreatorInsertFails(t *testing.T) {
	ctx := context.Background()
	db := testdb.Open(t)
	s := NewGormStore(db)

	require.NoError(t, db.Callback().Create().Before("gorm:create").Register("test:fail_players", func(tx *gorm.DB) {
		if tx.Statement.Schema != nil && tx.Statement.Schema.Table == "game_players" {
			tx.AddError(errors.New("insert failed"))
		}
	}))

	room := &models.GameRoom{
		Category:   models.CategoryMath,
		CreatorID:  1,
		Status:     models.RoomStatusWaiting,
		MaxPlayers: 2,
		GradeBand:  3,
		Difficulty: models.DifficultyEasy,
		Settings:   models.RoomSettings{}.WithDefaults(),
		JoinCode:   "UHRGAQ",
	}
	assert.Error(t, s.CreateRoom(ctx, room, 1))

	// ルーム行も残らず、参加コードも解放されている
	var rooms int64
	require.NoError(t, db.Model(&models.GameRoom{}).Count(&rooms).Error)
	assert.Zero(t, rooms)
	inUse, err := s.JoinCodeInUse(ctx, "UHRGAQ")
	require.NoError(t, err)
	assert.False(t, inUse)
}

func TestListPlayersOrdersTiesByJoinOrder(t *testing.T) {
	ctx := context.Background()
	s := NewGormStore(testdb.Open(t))
	room := newRoom(t, s, 4, "TIES22")
	for _, id := range []uint{5, 6, 7} {
		_, err := s.AddPlayer(ctx, room.ID, id)
		require.NoError(t, err)
	}
	_, err := s.StartRoom(ctx, room.ID, sampleQuestions(2), time.Now())
	require.NoError(t, err)
	questions, err := s.ListQuestions(ctx, room.ID)
	require.NoError(t, err)

	// 6 は正解2問、7 は1問で同点。正解数は並びに影響しない
	answers := []models.GameAnswer{
		{GameRoomID: room.ID, GameQuestionID: questions[0].ID, PlayerID: 6, IsCorrect: true, PointsEarned: 5},
		{GameRoomID: room.ID, GameQuestionID: questions[1].ID, PlayerID: 6, IsCorrect: true, PointsEarned: 5},
		{GameRoomID: room.ID, GameQuestionID: questions[0].ID, PlayerID: 7, IsCorrect: true, PointsEarned: 10},
		{GameRoomID: room.ID, GameQuestionID: questions[0].ID, PlayerID: 5, IsCorrect: true, PointsEarned: 10},
	}
	for i := range answers {
		_, _, err := s.RecordAnswer(ctx, &answers[i])
		require.NoError(t, err)
	}

	players, err := s.ListPlayers(ctx, room.ID)
	require.NoError(t, err)
	order := make([]uint, len(players))
	for i, p := range players {
		order[i] = p.PlayerID
	}
	assert.Equal(t, []uint{5, 6, 7}, order)
}

func TestAddPlayerIdempotentAndCapacity(t *testing.T) {
	ctx := context.Background()
	s := NewGormStore(testdb.Open(t))
	room := newRoom(t, s, 2, "ABCDEF")

	outcome, err := s.AddPlayer(ctx, room.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, Joined, outcome)

	outcome, err = s.AddPlayer(ctx, room.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, AlreadyMember, outcome)

	outcome, err = s.AddPlayer(ctx, room.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, Joined, outcome)

	outcome, err = s.AddPlayer(ctx, room.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, JoinRefused, outcome)

	assert.Equal(t, 2, countActive(t, s, room.ID))

	// 退出すると席が空く
	ok, err := s.UpdatePlayerStatus(ctx, room.ID, 2, []string{models.PlayerStatusJoined, models.PlayerStatusReady}, models.PlayerStatusLeft)
	require.NoError(t, err)
	assert.True(t, ok)
	outcome, err = s.AddPlayer(ctx, room.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, Joined, outcome)

	// 退出したプレイヤーは満員なので戻れない
	outcome, err = s.AddPlayer(ctx, room.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, JoinRefused, outcome)

	_, err = s.AddPlayer(ctx, 12345, 1)
	require.NoError(t, err)
}

// テスト用のSQLiteは接続が1本なので、ここでの同時実行はトランザクション単位で直列になる。
// 確かめているのはトランザクション内の定員チェックまでで、PostgreSQLの行ロックは通らない。
func TestAddPlayerConcurrentRespectsCapacity(t *testing.T) {
	ctx := context.Background()
	s := NewGormStore(testdb.Open(t))
	room := newRoom(t, s, 3, "CONCUR")

	const attempts = 12
	var wg sync.WaitGroup
	var mu sync.Mutex
	joined := 0
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(playerID uint) {
			defer wg.Done()
			outcome, err := s.AddPlayer(ctx, room.ID, playerID)
			assert.NoError(t, err)
			if outcome == Joined {
				mu.Lock()
				joined++
				mu.Unlock()
			}
		}(uint(100 + i))
	}
	wg.Wait()

	assert.Equal(t, 3, joined)
	assert.Equal(t, 3, countActive(t, s, room.ID))
}

func TestStartRoomOnlyOnce(t *testing.T) {
	ctx := context.Background()
	s := NewGormStore(testdb.Open(t))
	room := newRoom(t, s, 4, "START1")
	_, err := s.AddPlayer(ctx, room.ID, 1)
	require.NoError(t, err)

	started, err := s.StartRoom(ctx, room.ID, sampleQuestions(5), time.Now())
	require.NoError(t, err)
	assert.True(t, started)

	started, err = s.StartRoom(ctx, room.ID, sampleQuestions(5), time.Now())
	require.NoError(t, err)
	assert.False(t, started)

	questions, err := s.ListQuestions(ctx, room.ID)
	require.NoError(t, err)
	require.Len(t, questions, 5)
	for i, q := range questions {
		assert.Equal(t, i+1, q.Position)
		assert.Equal(t, []string{"1", "2", "3", "4"}, q.Options)
	}

	player, err := s.GetPlayer(ctx, room.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, models.PlayerStatusPlaying, player.Status)

	got, err := s.GetRoom(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoomStatusInProgress, got.Status)
	assert.NotNil(t, got.StartedAt)

	// 開始後は参加できない
	outcome, err := s.AddPlayer(ctx, room.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, JoinRefused, outcome)
}

func TestStartRoomRollsBackOnQuestionInsertFailure(t *testing.T) {
	ctx := context.Background()
	db := testdb.Open(t)
	s := NewGormStore(db)
	room := newRoom(t, s, 4, "ROLLBK")

	require.NoError(t, db.Callback().Create().Before("gorm:create").Register("test:fail_questions", func(tx *gorm.DB) {
		if tx.Statement.Schema != nil && tx.Statement.Schema.Table == "game_questions" {
			tx.AddError(errors.New("insert failed"))
		}
	}))

	started, err := s.StartRoom(ctx, room.ID, sampleQuestions(3), time.Now())
	assert.Error(t, err)
	assert.False(t, started)

	got, err := s.GetRoom(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoomStatusWaiting, got.Status)
	assert.Nil(t, got.StartedAt)
	questions, err := s.ListQuestions(ctx, room.ID)
	require.NoError(t, err)
	assert.Empty(t, questions)
}

func TestRecordAnswerIncrementsAndRejectsDuplicates(t *testing.T) {
	ctx := context.Background()
	s := NewGormStore(testdb.Open(t))
	room := newRoom(t, s, 4, "ANSWER")
	_, err := s.AddPlayer(ctx, room.ID, 1)
	require.NoError(t, err)
	_, err = s.StartRoom(ctx, room.ID, sampleQuestions(2), time.Now())
	require.NoError(t, err)
	questions, err := s.ListQuestions(ctx, room.ID)
	require.NoError(t, err)

	first := &models.GameAnswer{GameRoomID: room.ID, GameQuestionID: questions[0].ID, PlayerID: 1, AnswerText: "2", IsCorrect: true, ElapsedMs: 5000, PointsEarned: 14}
	stored, created, err := s.RecordAnswer(ctx, first)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, 14, stored.PointsEarned)

	dup := &models.GameAnswer{GameRoomID: room.ID, GameQuestionID: questions[0].ID, PlayerID: 1, AnswerText: "2", IsCorrect: true, ElapsedMs: 100, PointsEarned: 15}
	stored, created, err = s.RecordAnswer(ctx, dup)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, 14, stored.PointsEarned)

	wrong := &models.GameAnswer{GameRoomID: room.ID, GameQuestionID: questions[1].ID, PlayerID: 1, AnswerText: "3", ElapsedMs: 100}
	_, created, err = s.RecordAnswer(ctx, wrong)
	require.NoError(t, err)
	assert.True(t, created)

	player, err := s.GetPlayer(ctx, room.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, 14, player.Score)
	assert.Equal(t, 1, player.CorrectCount)
	assert.Equal(t, 2, player.TotalAnswers)
}

func TestRecordAnswerRequiresPlayingMember(t *testing.T) {
	ctx := context.Background()
	s := NewGormStore(testdb.Open(t))
	room := newRoom(t, s, 4, "NOTPLY")
	_, err := s.StartRoom(ctx, room.ID, sampleQuestions(1), time.Now())
	require.NoError(t, err)
	q, err := s.GetQuestionAt(ctx, room.ID, 1)
	require.NoError(t, err)

	_, _, err = s.RecordAnswer(ctx, &models.GameAnswer{GameRoomID: room.ID, GameQuestionID: q.ID, PlayerID: 9, AnswerText: "2"})
	assert.ErrorIs(t, err, ErrNotPlaying)

	var count int64
	require.NoError(t, s.db.Model(&models.GameAnswer{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestFinishRoomOnce(t *testing.T) {
	ctx := context.Background()
	s := NewGormStore(testdb.Open(t))
	room := newRoom(t, s, 4, "FINISH")
	for _, id := range []uint{1, 2} {
		_, err := s.AddPlayer(ctx, room.ID, id)
		require.NoError(t, err)
	}
	_, err := s.StartRoom(ctx, room.ID, sampleQuestions(1), time.Now())
	require.NoError(t, err)

	standings := []Standing{{PlayerID: 1, Rank: 1, XP: 100}, {PlayerID: 2, Rank: 2, XP: 75}}
	result := &models.GameResult{WinnerID: 1, FinalScores: map[uint]int{1: 10, 2: 0}, XPAwarded: map[uint]int{1: 100, 2: 75}, TotalQuestions: 1}
	done, err := s.FinishRoom(ctx, room.ID, standings, result, time.Now())
	require.NoError(t, err)
	assert.True(t, done)

	done, err = s.FinishRoom(ctx, room.ID, standings, &models.GameResult{}, time.Now())
	require.NoError(t, err)
	assert.False(t, done)

	stored, err := s.GetResult(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, map[uint]int{1: 100, 2: 75}, stored.XPAwarded)

	players, err := s.ListPlayers(ctx, room.ID)
	require.NoError(t, err)
	for _, p := range players {
		assert.Equal(t, models.PlayerStatusFinished, p.Status)
		require.NotNil(t, p.Rank)
		assert.NotNil(t, p.FinishedAt)
	}
}

func TestCancelRoomOnlyWhileWaiting(t *testing.T) {
	ctx := context.Background()
	s := NewGormStore(testdb.Open(t))
	waiting := newRoom(t, s, 2, "CANCL1")
	started := newRoom(t, s, 2, "CANCL2")
	_, err := s.StartRoom(ctx, started.ID, sampleQuestions(1), time.Now())
	require.NoError(t, err)

	ok, err := s.CancelRoom(ctx, waiting.ID, time.Now())
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.CancelRoom(ctx, started.ID, time.Now())
	require.NoError(t, err)
	assert.False(t, ok)

	// キャンセル後は同じコードで新しいルームを作れる
	newRoom(t, s, 2, "CANCL1")
}

func TestListWaitingRoomsBefore(t *testing.T) {
	ctx := context.Background()
	db := testdb.Open(t)
	s := NewGormStore(db)
	old := newRoom(t, s, 2, "OLD111")
	newRoom(t, s, 2, "NEW111")
	require.NoError(t, db.Model(old).Update("created_at", time.Now().Add(-48*time.Hour)).Error)

	rooms, err := s.ListWaitingRoomsBefore(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Equal(t, old.ID, rooms[0].ID)
}
