package generator

import (
	"errors"
	"fmt"
	"math/rand"
	"time"

	"quizserver/models"
)

var (
	ErrUnknownCategory   = errors.New("unknown game category")
	ErrUnknownDifficulty = errors.New("unknown difficulty")
)

// Request は問題生成の条件
type Request struct {
	Category   string
	GradeBand  int
	Difficulty string
	Count      int
	TimeLimit  int // 秒
}

type generateFunc func(randGen *rand.Rand, req Request, mult int) models.GameQuestion

// カテゴリごとの生成ルール
var generators = map[string]generateFunc{
	models.CategoryMath:     arithmeticQuestion,
	models.CategorySpelling: spellingQuestion,
	models.CategoryScience:  scienceQuestion,
}

// IsKnownCategory はカテゴリに対応する生成器があるかを返す
func IsKnownCategory(category string) bool {
	_, ok := generators[category]
	return ok
}

// DifficultyMultiplier は難易度の倍率（easy=1, medium=2, hard=3）
func DifficultyMultiplier(difficulty string) (int, bool) {
	switch difficulty {
	case models.DifficultyEasy:
		return 1, true
	case models.DifficultyMedium:
		return 2, true
	case models.DifficultyHard:
		return 3, true
	}
	return 0, false
}

// NewRandGenerator はルームごとに使う乱数生成器を作る
func NewRandGenerator() *rand.Rand {
	source := rand.NewSource(time.Now().UnixNano())
	return rand.New(source)
}

// Generate は req.Count 問を生成し、Position を1から順に振って返す。
// 同じルーム内での重複は避けない。
func Generate(randGen *rand.Rand, req Request) ([]models.GameQuestion, error) {
	gen, ok := generators[req.Category]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCategory, req.Category)
	}
	mult, ok := DifficultyMultiplier(req.Difficulty)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDifficulty, req.Difficulty)
	}
	if req.Count <= 0 {
		return nil, fmt.Errorf("question count must be positive, got %d", req.Count)
	}
	if req.GradeBand < 1 {
		req.GradeBand = 1
	}

	questions := make([]models.GameQuestion, 0, req.Count)
	for i := 1; i <= req.Count; i++ {
		q := gen(randGen, req, mult)
		q.Position = i
		questions = append(questions, q)
	}
	return questions, nil
}
