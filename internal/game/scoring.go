// Package game holds the pure scoring and ranking rules. Nothing in here
// touches goroutines, clocks or I/O, so every function is trivially
// table-testable.
package game

import (
	"math"

	"github.com/quizarena/quiz-arena-backend/internal/quiz"
)

// PointsPerCorrect is the flat award for a correct answer. There is no
// partial credit and no speed bonus; time spent is recorded for display
// and tie-breaking only.
const PointsPerCorrect = 100

type Result struct {
	IsCorrect bool `json:"is_correct"`
	Points    int  `json:"points"`
}

// Score grades one submitted option against a question.
func Score(q quiz.Question, optionID string) Result {
	if optionID != "" && optionID == q.CorrectOptionID {
		return Result{IsCorrect: true, Points: PointsPerCorrect}
	}
	return Result{}
}

// NormalizedScore maps a correct-answer count onto a 0-100 scale so scores
// stay comparable across quizzes of different length.
func NormalizedScore(correct, totalQuestions int) int {
	if totalQuestions <= 0 {
		return 0
	}
	return int(math.Round(float64(correct) / float64(totalQuestions) * 100))
}
