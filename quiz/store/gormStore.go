package store

import (
	"context"
	"errors"
	"time"

	"quizserver/metrics"
	"quizserver/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore は Store の GORM 実装
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// PostgreSQLではルーム行を FOR UPDATE でロックし、同じルームへの操作を直列化する。
// SQLiteは書き込みトランザクション自体が直列なのでロック句を付けない。
func lockRoom(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "postgres" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}

// CreateRoom はルームと作成者の参加記録を1トランザクションで作成する
func (s *GormStore) CreateRoom(ctx context.Context, room *models.GameRoom, creatorID uint) error {
	defer metrics.RecordDBOperation("create", "game_rooms", time.Now())
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(room).Error; err != nil {
			return err
		}
		creator := models.GamePlayer{
			GameRoomID: room.ID,
			PlayerID:   creatorID,
			Status:     models.PlayerStatusJoined,
		}
		return tx.Create(&creator).Error
	})
}

func (s *GormStore) GetRoom(ctx context.Context, roomID uint) (*models.GameRoom, error) {
	defer metrics.RecordDBOperation("select", "game_rooms", time.Now())
	var room models.GameRoom
	if err := s.db.WithContext(ctx).First(&room, roomID).Error; err != nil {
		return nil, notFound(err)
	}
	return &room, nil
}

func (s *GormStore) FindWaitingRoomByCode(ctx context.Context, code string) (*models.GameRoom, error) {
	defer metrics.RecordDBOperation("select", "game_rooms", time.Now())
	var room models.GameRoom
	err := s.db.WithContext(ctx).
		Where("join_code = ? AND status = ?", code, models.RoomStatusWaiting).
		First(&room).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &room, nil
}

func (s *GormStore) JoinCodeInUse(ctx context.Context, code string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.GameRoom{}).
		Where("join_code = ? AND status = ?", code, models.RoomStatusWaiting).
		Count(&count).Error
	return count > 0, err
}

func (s *GormStore) ListWaitingRoomsBefore(ctx context.Context, cutoff time.Time) ([]models.GameRoom, error) {
	var rooms []models.GameRoom
	err := s.db.WithContext(ctx).
		Where("status = ? AND created_at <= ?", models.RoomStatusWaiting, cutoff).
		Order("id").
		Find(&rooms).Error
	return rooms, err
}

// AddPlayer は定員チェックと参加記録の作成を1トランザクションで行う
func (s *GormStore) AddPlayer(ctx context.Context, roomID, playerID uint) (JoinOutcome, error) {
	defer metrics.RecordDBOperation("join", "game_players", time.Now())
	outcome := JoinRefused
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var room models.GameRoom
		if err := lockRoom(tx).First(&room, roomID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		if room.Status != models.RoomStatusWaiting {
			return nil
		}

		var existing models.GamePlayer
		res := tx.Where("game_room_id = ? AND player_id = ?", roomID, playerID).Limit(1).Find(&existing)
		if res.Error != nil {
			return res.Error
		}
		found := res.RowsAffected > 0
		if found && existing.Active() {
			outcome = AlreadyMember
			return nil
		}

		var active int64
		if err := tx.Model(&models.GamePlayer{}).
			Where("game_room_id = ? AND status <> ?", roomID, models.PlayerStatusLeft).
			Count(&active).Error; err != nil {
			return err
		}
		if active >= int64(room.MaxPlayers) {
			return nil
		}

		if found {
			// 待機中に退出したプレイヤーの復帰
			if err := tx.Model(&existing).Update("status", models.PlayerStatusJoined).Error; err != nil {
				return err
			}
		} else {
			player := models.GamePlayer{
				GameRoomID: roomID,
				PlayerID:   playerID,
				Status:     models.PlayerStatusJoined,
			}
			if err := tx.Create(&player).Error; err != nil {
				return err
			}
		}
		outcome = Joined
		return nil
	})
	if err != nil {
		return JoinRefused, err
	}
	return outcome, nil
}

func (s *GormStore) GetPlayer(ctx context.Context, roomID, playerID uint) (*models.GamePlayer, error) {
	var player models.GamePlayer
	err := s.db.WithContext(ctx).
		Where("game_room_id = ? AND player_id = ?", roomID, playerID).
		First(&player).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &player, nil
}

// ListPlayers はスコアの降順で返す。同点の並びは参加順で固定するだけで、順位付けの規則ではない
func (s *GormStore) ListPlayers(ctx context.Context, roomID uint) ([]models.GamePlayer, error) {
	defer metrics.RecordDBOperation("select", "game_players", time.Now())
	var players []models.GamePlayer
	err := s.db.WithContext(ctx).
		Where("game_room_id = ?", roomID).
		Order("score DESC, id ASC").
		Find(&players).Error
	return players, err
}

// UpdatePlayerStatus は現在の状態が from のいずれかである場合のみ to に更新する
func (s *GormStore) UpdatePlayerStatus(ctx context.Context, roomID, playerID uint, from []string, to string) (bool, error) {
	defer metrics.RecordDBOperation("update", "game_players", time.Now())
	res := s.db.WithContext(ctx).Model(&models.GamePlayer{}).
		Where("game_room_id = ? AND player_id = ? AND status IN ?", roomID, playerID, from).
		Update("status", to)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// StartRoom は waiting→in_progress の遷移、問題の一括登録、参加者のplaying化を
// 1トランザクションで行う。ルームが待機中でなければ何もせず false を返す。
func (s *GormStore) StartRoom(ctx context.Context, roomID uint, questions []models.GameQuestion, startedAt time.Time) (bool, error) {
	defer metrics.RecordDBOperation("start", "game_rooms", time.Now())
	started := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.GameRoom{}).
			Where("id = ? AND status = ?", roomID, models.RoomStatusWaiting).
			Updates(map[string]interface{}{
				"status":     models.RoomStatusInProgress,
				"started_at": startedAt,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}

		for i := range questions {
			questions[i].GameRoomID = roomID
		}
		if err := tx.Create(&questions).Error; err != nil {
			return err
		}

		if err := tx.Model(&models.GamePlayer{}).
			Where("game_room_id = ? AND status IN ?", roomID, []string{models.PlayerStatusJoined, models.PlayerStatusReady}).
			Update("status", models.PlayerStatusPlaying).Error; err != nil {
			return err
		}
		started = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return started, nil
}

func (s *GormStore) GetQuestion(ctx context.Context, roomID, questionID uint) (*models.GameQuestion, error) {
	var question models.GameQuestion
	err := s.db.WithContext(ctx).
		Where("id = ? AND game_room_id = ?", questionID, roomID).
		First(&question).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &question, nil
}

func (s *GormStore) GetQuestionAt(ctx context.Context, roomID uint, position int) (*models.GameQuestion, error) {
	var question models.GameQuestion
	err := s.db.WithContext(ctx).
		Where("game_room_id = ? AND position = ?", roomID, position).
		First(&question).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &question, nil
}

func (s *GormStore) ListQuestions(ctx context.Context, roomID uint) ([]models.GameQuestion, error) {
	var questions []models.GameQuestion
	err := s.db.WithContext(ctx).
		Where("game_room_id = ?", roomID).
		Order("position").
		Find(&questions).Error
	return questions, err
}

// RecordAnswer は回答の追記とプレイヤー集計の加算を1トランザクションで行う。
// 同じ (問題, プレイヤー) の回答が既にあれば何も書かず、既存の回答と false を返す。
func (s *GormStore) RecordAnswer(ctx context.Context, answer *models.GameAnswer) (*models.GameAnswer, bool, error) {
	defer metrics.RecordDBOperation("insert", "game_answers", time.Now())
	var duplicate *models.GameAnswer
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.GameAnswer
		res := tx.Where("game_question_id = ? AND player_id = ?", answer.GameQuestionID, answer.PlayerID).
			Limit(1).Find(&existing)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			duplicate = &existing
			return nil
		}

		if err := tx.Create(answer).Error; err != nil {
			return err
		}

		correct := 0
		if answer.IsCorrect {
			correct = 1
		}
		// 読み出してから書き戻すのではなく、DB上で加算する
		upd := tx.Model(&models.GamePlayer{}).
			Where("game_room_id = ? AND player_id = ? AND status = ?", answer.GameRoomID, answer.PlayerID, models.PlayerStatusPlaying).
			Updates(map[string]interface{}{
				"score":         gorm.Expr("score + ?", answer.PointsEarned),
				"correct_count": gorm.Expr("correct_count + ?", correct),
				"total_answers": gorm.Expr("total_answers + ?", 1),
			})
		if upd.Error != nil {
			return upd.Error
		}
		if upd.RowsAffected == 0 {
			return ErrNotPlaying
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if duplicate != nil {
		return duplicate, false, nil
	}
	return answer, true, nil
}

// FinishRoom は in_progress→completed の遷移、順位の確定、結果の登録を
// 1トランザクションで行う。進行中でなければ false を返す。
func (s *GormStore) FinishRoom(ctx context.Context, roomID uint, standings []Standing, result *models.GameResult, endedAt time.Time) (bool, error) {
	defer metrics.RecordDBOperation("finish", "game_rooms", time.Now())
	finished := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.GameRoom{}).
			Where("id = ? AND status = ?", roomID, models.RoomStatusInProgress).
			Updates(map[string]interface{}{
				"status":   models.RoomStatusCompleted,
				"ended_at": endedAt,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}

		for _, standing := range standings {
			if err := tx.Model(&models.GamePlayer{}).
				Where("game_room_id = ? AND player_id = ?", roomID, standing.PlayerID).
				Updates(map[string]interface{}{
					"rank":        standing.Rank,
					"status":      models.PlayerStatusFinished,
					"finished_at": endedAt,
				}).Error; err != nil {
				return err
			}
		}

		result.GameRoomID = roomID
		if err := tx.Create(result).Error; err != nil {
			return err
		}
		finished = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return finished, nil
}

func (s *GormStore) CancelRoom(ctx context.Context, roomID uint, endedAt time.Time) (bool, error) {
	defer metrics.RecordDBOperation("cancel", "game_rooms", time.Now())
	res := s.db.WithContext(ctx).Model(&models.GameRoom{}).
		Where("id = ? AND status = ?", roomID, models.RoomStatusWaiting).
		Updates(map[string]interface{}{
			"status":   models.RoomStatusCancelled,
			"ended_at": endedAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *GormStore) GetResult(ctx context.Context, roomID uint) (*models.GameResult, error) {
	var result models.GameResult
	if err := s.db.WithContext(ctx).Where("game_room_id = ?", roomID).First(&result).Error; err != nil {
		return nil, notFound(err)
	}
	return &result, nil
}
