package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"quiz-platform/models"
	"quiz-platform/services"
)

type TriviaFetcher interface {
	OpenTDB(ctx context.Context, p services.OpenTDBParams) ([]models.Question, error)
	TriviaAPI(ctx context.Context, p services.TriviaAPIParams) ([]models.Question, error)
}

// queryInt parses an integer query parameter, def when it is absent.
func queryInt(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

// questionCount reads amount or limit. An explicit value below one is
// rejected here since the client treats zero as "use the default".
func questionCount(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	n, err := queryInt(r, name, defaultQuestionCount)
	if err != nil {
		writeError(w, http.StatusBadRequest, name+" must be a number")
		return 0, false
	}
	if n < 1 || n > services.MaxQuestions {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("%s must be between 1 and %d", name, services.MaxQuestions))
		return 0, false
	}
	return n, true
}

const defaultQuestionCount = 10

func externalError(w http.ResponseWriter, r *http.Request, source string, err error) {
	var upstream *services.UpstreamError
	switch {
	case errors.Is(err, services.ErrInvalidParams):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &upstream):
		writeJSON(w, http.StatusBadGateway, map[string]any{"error": source + " error", "code": upstream.Code})
	default:
		serverError(w, r, err)
	}
}

func GetOpenTDB(trivia TriviaFetcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		amount, ok := questionCount(w, r, "amount")
		if !ok {
			return
		}
		category, err := queryInt(r, "category", 0)
		if err != nil {
			writeError(w, http.StatusBadRequest, "category must be a number")
			return
		}
		q := r.URL.Query()

		questions, err := trivia.OpenTDB(r.Context(), services.OpenTDBParams{
			Amount:     amount,
			Category:   category,
			Difficulty: q.Get("difficulty"),
			Type:       q.Get("type"),
		})
		if err != nil {
			externalError(w, r, "OpenTDB", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"source":    models.SourceOpenTDB,
			"count":     len(questions),
			"questions": questions,
		})
	}
}

func GetTriviaAPI(trivia TriviaFetcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, ok := questionCount(w, r, "limit")
		if !ok {
			return
		}
		q := r.URL.Query()

		questions, err := trivia.TriviaAPI(r.Context(), services.TriviaAPIParams{
			Limit:      limit,
			Categories: q.Get("categories"),
			Difficulty: q.Get("difficulty"),
		})
		if err != nil {
			externalError(w, r, "The Trivia API", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"source":    models.SourceTriviaAPI,
			"count":     len(questions),
			"questions": questions,
		})
	}
}
