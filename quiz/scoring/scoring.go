package scoring

import "math"

// 最速回答時のボーナス上限（基本点に対する割合）
const maxBonusRate = 0.5

// Score は正誤・経過時間・制限時間・基本点から獲得ポイントを計算する。
// 不正解は0点。正解は経過時間に応じて最大+50%のタイムボーナスが付き、
// 制限時間を過ぎても基本点を下回ることはない。
func Score(isCorrect bool, elapsedMs int64, timeLimitSeconds int, basePoints int) int {
	if !isCorrect {
		return 0
	}
	bonus := TimeBonus(elapsedMs, timeLimitSeconds)
	return int(math.Round(float64(basePoints) * (1 + maxBonusRate*bonus)))
}

// TimeBonus は [0,1] に収めたタイムボーナスの割合を返す
func TimeBonus(elapsedMs int64, timeLimitSeconds int) float64 {
	if timeLimitSeconds <= 0 {
		return 0
	}
	if elapsedMs < 0 {
		elapsedMs = 0
	}
	bonus := 1 - float64(elapsedMs)/float64(timeLimitSeconds*1000)
	return math.Max(0, math.Min(1, bonus))
}
