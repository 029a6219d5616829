package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"quiz-platform/models"

	"github.com/google/uuid"
)

const quizListLimit = 100

type playOption struct {
	ID   uuid.UUID `json:"id"`
	Text string    `json:"text"`
}

type playQuestion struct {
	ID      uuid.UUID    `json:"id"`
	Text    string       `json:"text"`
	Type    string       `json:"type"`
	Order   int          `json:"order"`
	Options []playOption `json:"options"`
}

// playView hides answers from everyone but the quiz author.
type playView struct {
	ID          uuid.UUID      `json:"id"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Category    string         `json:"category"`
	Difficulty  string         `json:"difficulty"`
	Status      string         `json:"status"`
	Questions   []playQuestion `json:"questions"`
	CreatedAt   time.Time      `json:"createdAt"`
}

func playable(q *models.Quiz) playView {
	v := playView{
		ID:          q.ID,
		Title:       q.Title,
		Description: q.Description,
		Category:    q.Category,
		Difficulty:  q.Difficulty,
		Status:      q.Status,
		Questions:   make([]playQuestion, 0, len(q.Questions)),
		CreatedAt:   q.CreatedAt,
	}
	for _, qu := range q.Questions {
		pq := playQuestion{ID: qu.ID, Text: qu.Text, Type: qu.Type, Order: qu.Order}
		for _, o := range qu.Options {
			pq.Options = append(pq.Options, playOption{ID: o.ID, Text: o.Text})
		}
		v.Questions = append(v.Questions, pq)
	}
	return v
}

func isAuthor(q *models.Quiz, r *http.Request) bool {
	id, ok := authIdentity(r)
	return ok && q.CreatedBy != nil && *q.CreatedBy == id.UserID
}

func ListQuizzes(quizzes QuizStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		list, err := quizzes.ListPublishedQuizzes(r.Context(),
			strings.TrimSpace(q.Get("q")), strings.TrimSpace(q.Get("category")), quizListLimit)
		if err != nil {
			serverError(w, r, err)
			return
		}
		items := make([]playView, 0, len(list))
		for i := range list {
			items = append(items, playable(&list[i]))
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	}
}

type CreateQuizRequest struct {
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Category    string            `json:"category"`
	Difficulty  string            `json:"difficulty"`
	Questions   []models.Question `json:"questions"`
}

func CreateQuiz(quizzes QuizStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := caller(w, r)
		if !ok {
			return
		}
		var req CreateQuizRequest
		if !decode(w, r, &req) {
			return
		}

		now := time.Now().UTC()
		author := id.UserID
		quiz := &models.Quiz{
			ID:          uuid.New(),
			Title:       req.Title,
			Description: strings.TrimSpace(req.Description),
			Category:    strings.TrimSpace(req.Category),
			Difficulty:  strings.TrimSpace(req.Difficulty),
			Status:      models.QuizDraft,
			CreatedBy:   &author,
			Questions:   req.Questions,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		quiz.Normalize()
		if err := quiz.Validate(); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		if err := quizzes.CreateQuiz(r.Context(), quiz); err != nil {
			serverError(w, r, err)
			return
		}
		slog.Info("quiz created", "quiz", quiz.ID, "author", author, "questions", len(quiz.Questions))
		writeJSON(w, http.StatusCreated, quiz)
	}
}

// GetQuiz shows published quizzes to anyone and other states to the author.
func GetQuiz(quizzes QuizStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		quizID, ok := pathUUID(w, r, "id", "Quiz not found")
		if !ok {
			return
		}
		quiz, err := quizzes.GetQuiz(r.Context(), quizID)
		if err != nil {
			if isNotFound(err) {
				writeError(w, http.StatusNotFound, "Quiz not found")
				return
			}
			serverError(w, r, err)
			return
		}

		if isAuthor(quiz, r) {
			writeJSON(w, http.StatusOK, quiz)
			return
		}
		if quiz.Status != models.QuizPublished {
			writeError(w, http.StatusNotFound, "Quiz not found")
			return
		}
		writeJSON(w, http.StatusOK, playable(quiz))
	}
}

func UpdateQuizStatus(quizzes QuizStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := caller(w, r); !ok {
			return
		}
		quizID, ok := pathUUID(w, r, "id", "Quiz not found")
		if !ok {
			return
		}
		var req struct {
			Status string `json:"status"`
		}
		if !decode(w, r, &req) {
			return
		}
		status := strings.ToUpper(strings.TrimSpace(req.Status))
		if !models.ValidQuizStatus(status) {
			writeError(w, http.StatusBadRequest, "Status must be DRAFT, PUBLISHED or ARCHIVED")
			return
		}

		quiz, err := quizzes.GetQuiz(r.Context(), quizID)
		if err != nil {
			if isNotFound(err) {
				writeError(w, http.StatusNotFound, "Quiz not found")
				return
			}
			serverError(w, r, err)
			return
		}
		if !isAuthor(quiz, r) {
			writeError(w, http.StatusForbidden, "Only the author can change this quiz")
			return
		}

		if err := quizzes.UpdateQuizStatus(r.Context(), quiz.ID, status); err != nil {
			serverError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"id": quiz.ID, "status": status})
	}
}

type SubmitAttemptRequest struct {
	Answers   []models.Answer `json:"answers"`
	StartedAt *time.Time      `json:"startedAt"`
}

func SubmitAttempt(quizzes QuizStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := caller(w, r)
		if !ok {
			return
		}
		quizID, ok := pathUUID(w, r, "id", "Quiz not found")
		if !ok {
			return
		}
		var req SubmitAttemptRequest
		if !decode(w, r, &req) {
			return
		}

		quiz, err := quizzes.GetQuiz(r.Context(), quizID)
		if err != nil {
			if isNotFound(err) {
				writeError(w, http.StatusNotFound, "Quiz not found")
				return
			}
			serverError(w, r, err)
			return
		}
		if quiz.Status != models.QuizPublished && !isAuthor(quiz, r) {
			writeError(w, http.StatusNotFound, "Quiz not found")
			return
		}

		graded, score, maxScore, err := quiz.Grade(req.Answers)
		if err != nil {
			if errors.Is(err, models.ErrUnknownQuestion) {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			serverError(w, r, err)
			return
		}

		now := time.Now().UTC()
		started := now
		if req.StartedAt != nil && !req.StartedAt.After(now) {
			started = req.StartedAt.UTC()
		}
		attempt := &models.Attempt{
			ID:         uuid.New(),
			UserID:     id.UserID,
			QuizID:     quiz.ID,
			QuizTitle:  quiz.Title,
			Score:      score,
			MaxScore:   maxScore,
			StartedAt:  started,
			FinishedAt: now,
			DurationMs: now.Sub(started).Milliseconds(),
			Answers:    graded,
			CreatedAt:  now,
		}
		if err := quizzes.CreateAttempt(r.Context(), attempt); err != nil {
			serverError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, attempt)
	}
}

func MyAttempts(quizzes QuizStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := caller(w, r)
		if !ok {
			return
		}
		limit, err := queryInt(r, "limit", 0)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive number")
			return
		}
		attempts, err := quizzes.ListAttemptsByUser(r.Context(), id.UserID, limit)
		if err != nil {
			serverError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": attempts})
	}
}
