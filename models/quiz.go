// models/quiz.go
package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	QuizDraft     = "DRAFT"
	QuizPublished = "PUBLISHED"
	QuizArchived  = "ARCHIVED"

	MultipleChoice = "MULTIPLE_CHOICE"
	MultiSelect    = "MULTI_SELECT"
	TrueFalse      = "TRUE_FALSE"

	SourceOpenTDB   = "OPENTDB"
	SourceTriviaAPI = "TRIVIA_API"
	SourceCustom    = "CUSTOM"
)

var ErrUnknownQuestion = errors.New("answer references an unknown question")

type Option struct {
	ID        uuid.UUID `json:"id"`
	Text      string    `json:"text"`
	IsCorrect bool      `json:"isCorrect"`
}

type Question struct {
	ID          uuid.UUID `json:"id"`
	Text        string    `json:"text"`
	Type        string    `json:"type"`
	Order       int       `json:"order"`
	Explanation string    `json:"explanation,omitempty"`
	Options     []Option  `json:"options"`
	Category    string    `json:"category,omitempty"`
	Difficulty  string    `json:"difficulty,omitempty"`
	Source      string    `json:"source,omitempty"`
}

type Quiz struct {
	ID          uuid.UUID  `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Category    string     `json:"category"`
	Difficulty  string     `json:"difficulty"`
	Status      string     `json:"status"`
	CreatedBy   *uuid.UUID `json:"createdBy,omitempty"`
	Questions   []Question `json:"questions"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

func ValidQuizStatus(s string) bool {
	return s == QuizDraft || s == QuizPublished || s == QuizArchived
}

// Normalize fills defaults and assigns ids to questions and options that lack them.
func (q *Quiz) Normalize() {
	q.Title = strings.TrimSpace(q.Title)
	if q.Status == "" {
		q.Status = QuizDraft
	}
	for i := range q.Questions {
		qu := &q.Questions[i]
		if qu.ID == uuid.Nil {
			qu.ID = uuid.New()
		}
		if qu.Type == "" {
			qu.Type = MultipleChoice
		}
		if qu.Order == 0 {
			qu.Order = i + 1
		}
		for j := range qu.Options {
			if qu.Options[j].ID == uuid.Nil {
				qu.Options[j].ID = uuid.New()
			}
		}
	}
}

func (q *Quiz) Validate() error {
	if q.Title == "" {
		return errors.New("title is required")
	}
	if !ValidQuizStatus(q.Status) {
		return fmt.Errorf("invalid status %q", q.Status)
	}
	if len(q.Questions) == 0 {
		return errors.New("at least one question is required")
	}
	for i, qu := range q.Questions {
		if err := qu.Validate(); err != nil {
			return fmt.Errorf("question %d: %w", i+1, err)
		}
	}
	return nil
}

func (qu *Question) Validate() error {
	if strings.TrimSpace(qu.Text) == "" {
		return errors.New("text is required")
	}
	if len(qu.Options) < 2 {
		return errors.New("at least two options are required")
	}
	correct := 0
	for _, o := range qu.Options {
		if strings.TrimSpace(o.Text) == "" {
			return errors.New("option text is required")
		}
		if o.IsCorrect {
			correct++
		}
	}
	if correct == 0 {
		return errors.New("at least one option must be correct")
	}
	switch qu.Type {
	case TrueFalse:
		if len(qu.Options) != 2 || correct != 1 {
			return errors.New("true/false questions need exactly two options and one answer")
		}
	case MultipleChoice:
		if correct != 1 {
			return errors.New("multiple choice questions need exactly one correct option")
		}
	case MultiSelect:
	default:
		return fmt.Errorf("unknown question type %q", qu.Type)
	}
	return nil
}

// Correct reports whether selected is exactly the set of correct options.
func (qu *Question) Correct(selected []uuid.UUID) bool {
	want := make(map[uuid.UUID]bool)
	for _, o := range qu.Options {
		if o.IsCorrect {
			want[o.ID] = true
		}
	}
	got := make(map[uuid.UUID]bool, len(selected))
	for _, id := range selected {
		got[id] = true
	}
	if len(got) != len(want) {
		return false
	}
	for id := range got {
		if !want[id] {
			return false
		}
	}
	return true
}

// Grade marks each answer and returns the score. Only the first answer
// to a question counts; maxScore is always the number of questions.
func (q *Quiz) Grade(answers []Answer) ([]Answer, int, int, error) {
	byID := make(map[uuid.UUID]*Question, len(q.Questions))
	for i := range q.Questions {
		byID[q.Questions[i].ID] = &q.Questions[i]
	}

	seen := make(map[uuid.UUID]bool, len(answers))
	graded := make([]Answer, 0, len(answers))
	score := 0
	for _, a := range answers {
		qu, ok := byID[a.QuestionID]
		if !ok {
			return nil, 0, 0, fmt.Errorf("%w: %s", ErrUnknownQuestion, a.QuestionID)
		}
		if seen[a.QuestionID] {
			continue
		}
		seen[a.QuestionID] = true

		a.IsCorrect = qu.Correct(a.SelectedOptionIDs)
		if a.IsCorrect {
			score++
		}
		graded = append(graded, a)
	}
	return graded, score, len(q.Questions), nil
}
