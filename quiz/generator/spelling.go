package generator

import (
	"fmt"
	"math/rand"
	"unicode/utf8"

	"quizserver/models"
)

// 入力に時間がかかる分、制限時間を延長する
const spellingExtraSeconds = 10

// 学年帯ごとの単語帳
var wordBank = []struct {
	maxGrade int
	words    []string
}{
	{2, []string{"cat", "dog", "sun", "tree", "fish", "book", "milk", "bird", "frog", "cake"}},
	{4, []string{"planet", "garden", "bridge", "pencil", "rocket", "castle", "window", "yellow", "jungle", "basket"}},
	{99, []string{"science", "library", "mountain", "elephant", "dinosaur", "umbrella", "adventure", "vegetable", "telescope", "chocolate"}},
}

func wordsForGrade(grade int) []string {
	for _, band := range wordBank {
		if grade <= band.maxGrade {
			return band.words
		}
	}
	return wordBank[len(wordBank)-1].words
}

func spellingQuestion(randGen *rand.Rand, req Request, _ int) models.GameQuestion {
	words := wordsForGrade(req.GradeBand)
	word := words[randGen.Intn(len(words))]

	return models.GameQuestion{
		Text:          fmt.Sprintf("Unscramble the letters to spell the word: %s", scramble(randGen, word)),
		QuestionType:  models.QuestionTypeFreeText,
		CorrectAnswer: word,
		BasePoints:    10 + utf8.RuneCountInString(word),
		TimeLimit:     req.TimeLimit + spellingExtraSeconds,
		Subject:       "spelling",
	}
}

// scramble は文字を並べ替えたヒントを返す。元の単語と同じ並びは避ける
func scramble(randGen *rand.Rand, word string) string {
	letters := []rune(word)
	if len(letters) < 2 {
		return word
	}
	for attempts := 0; attempts < 10; attempts++ {
		randGen.Shuffle(len(letters), func(i, j int) { letters[i], letters[j] = letters[j], letters[i] })
		if string(letters) != word {
			return string(letters)
		}
	}
	// 1文字ずらせば、全て同じ文字でない限り元の単語とは異なる
	rotated := append([]rune(word)[1:], []rune(word)[0])
	return string(rotated)
}
