package generator

import (
	"math/rand"

	"quizserver/models"
)

type scienceItem struct {
	question string
	options  [4]string
	correct  int // options のインデックス
}

var scienceBank = []scienceItem{
	{"Which planet is known as the Red Planet?", [4]string{"Mars", "Venus", "Jupiter", "Mercury"}, 0},
	{"What gas do plants take in from the air?", [4]string{"Oxygen", "Carbon dioxide", "Nitrogen", "Helium"}, 1},
	{"What is the boiling point of water at sea level in Celsius?", [4]string{"90", "50", "100", "120"}, 2},
	{"How many legs does an insect have?", [4]string{"Four", "Eight", "Ten", "Six"}, 3},
	{"What is the closest star to Earth?", [4]string{"The Sun", "Sirius", "Polaris", "Vega"}, 0},
	{"Which part of the plant makes food using sunlight?", [4]string{"Root", "Leaf", "Stem", "Flower"}, 1},
	{"What is frozen water called?", [4]string{"Steam", "Dew", "Ice", "Fog"}, 2},
	{"Which organ pumps blood through the body?", [4]string{"Lungs", "Brain", "Liver", "Heart"}, 3},
	{"What force pulls objects toward the Earth?", [4]string{"Gravity", "Magnetism", "Friction", "Wind"}, 0},
	{"Which animal is a mammal?", [4]string{"Shark", "Dolphin", "Trout", "Octopus"}, 1},
	{"What do bees make?", [4]string{"Milk", "Silk", "Honey", "Wax paper"}, 2},
	{"Which state of matter has a fixed shape?", [4]string{"Gas", "Liquid", "Plasma", "Solid"}, 3},
}

func scienceQuestion(randGen *rand.Rand, req Request, _ int) models.GameQuestion {
	item := scienceBank[randGen.Intn(len(scienceBank))]

	options := make([]string, len(item.options))
	copy(options, item.options[:])
	randGen.Shuffle(len(options), func(i, j int) { options[i], options[j] = options[j], options[i] })

	return models.GameQuestion{
		Text:          item.question,
		QuestionType:  models.QuestionTypeMultipleChoice,
		Options:       options,
		CorrectAnswer: item.options[item.correct],
		BasePoints:    10,
		TimeLimit:     req.TimeLimit,
		Subject:       "science",
	}
}
