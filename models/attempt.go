// models/attempt.go
package models

import (
	"time"

	"github.com/google/uuid"
)

type Answer struct {
	QuestionID        uuid.UUID   `json:"questionId"`
	SelectedOptionIDs []uuid.UUID `json:"selectedOptionIds"`
	IsCorrect         bool        `json:"isCorrect"`
	TimeMs            int64       `json:"timeMs,omitempty"`
}

type Attempt struct {
	ID         uuid.UUID `json:"id"`
	UserID     uuid.UUID `json:"user"`
	QuizID     uuid.UUID `json:"quiz"`
	QuizTitle  string    `json:"quizTitle,omitempty"`
	Score      int       `json:"score"`
	MaxScore   int       `json:"maxScore"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
	DurationMs int64     `json:"durationMs"`
	Answers    []Answer  `json:"answers"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Percent is the attempt score rounded down to a whole percentage.
func (a *Attempt) Percent() int {
	if a.MaxScore == 0 {
		return 0
	}
	return a.Score * 100 / a.MaxScore
}
