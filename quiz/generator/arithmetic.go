package generator

import (
	"fmt"
	"math/rand"
	"strconv"

	"quizserver/models"
)

const distractorCount = 3

// 低学年は足し算・引き算のみ、3年生以上で掛け算・割り算を加える
func operationsForGrade(grade int) []string {
	if grade <= 2 {
		return []string{"+", "-"}
	}
	return []string{"+", "-", "×", "÷"}
}

func arithmeticQuestion(randGen *rand.Rand, req Request, mult int) models.GameQuestion {
	ops := operationsForGrade(req.GradeBand)
	op := ops[randGen.Intn(len(ops))]

	addMax := 10 * mult * req.GradeBand
	mulMax := 5 + req.GradeBand*mult

	var a, b, answer int
	switch op {
	case "+":
		a, b = randGen.Intn(addMax+1), randGen.Intn(addMax+1)
		answer = a + b
	case "-":
		a, b = randGen.Intn(addMax+1), randGen.Intn(addMax+1)
		if a < b {
			a, b = b, a // 答えが負にならないように
		}
		answer = a - b
	case "×":
		a, b = randGen.Intn(mulMax)+1, randGen.Intn(mulMax)+1
		answer = a * b
	case "÷":
		// 割り切れるように商と除数から被除数を作る
		b = randGen.Intn(mulMax) + 1
		answer = randGen.Intn(mulMax) + 1
		a = b * answer
	}

	options := make([]string, 0, distractorCount+1)
	options = append(options, strconv.Itoa(answer))
	for _, d := range numericDistractors(randGen, answer, distractorCount) {
		options = append(options, strconv.Itoa(d))
	}
	randGen.Shuffle(len(options), func(i, j int) { options[i], options[j] = options[j], options[i] })

	return models.GameQuestion{
		Text:          fmt.Sprintf("What is %d %s %d?", a, op, b),
		QuestionType:  models.QuestionTypeMultipleChoice,
		Options:       options,
		CorrectAnswer: strconv.Itoa(answer),
		BasePoints:    10 * mult,
		TimeLimit:     req.TimeLimit,
		Subject:       "arithmetic",
	}
}

// numericDistractors は正解の近くにある重複しない非負の誤答を n 個返す
func numericDistractors(randGen *rand.Rand, answer, n int) []int {
	spread := answer/10 + 3
	used := map[int]bool{answer: true}
	result := make([]int, 0, n)

	for attempts := 0; len(result) < n && attempts < 50; attempts++ {
		offset := randGen.Intn(spread) + 1
		if randGen.Intn(2) == 0 {
			offset = -offset
		}
		candidate := answer + offset
		if candidate < 0 || used[candidate] {
			continue
		}
		used[candidate] = true
		result = append(result, candidate)
	}
	// 候補が足りない場合は正解より大きい値で埋める
	for next := answer + 1; len(result) < n; next++ {
		if !used[next] {
			used[next] = true
			result = append(result, next)
		}
	}
	return result
}
