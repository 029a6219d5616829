// handlers/leaderboard.go
package handlers

import (
	"net/http"
	"strconv"

	"quiz-platform/models"
)

const (
	defaultLeaderboardLimit = 50
	maxLeaderboardLimit     = 100
	maxLeaderboardPage      = 10000
)

type LeaderboardResponse struct {
	Entries []models.LeaderboardEntry `json:"entries"`
	Stats   models.LeaderboardStats   `json:"stats"`
	Page    int                       `json:"page"`
	Limit   int                       `json:"limit"`
}

func GetLeaderboard(board LeaderboardStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

		if page < 1 {
			page = 1
		}
		if page > maxLeaderboardPage {
			page = maxLeaderboardPage
		}
		if limit < 1 {
			limit = defaultLeaderboardLimit
		}
		if limit > maxLeaderboardLimit {
			limit = maxLeaderboardLimit
		}

		entries, err := board.Leaderboard(r.Context(), limit, (page-1)*limit)
		if err != nil {
			serverError(w, r, err)
			return
		}
		stats, err := board.LeaderboardStats(r.Context())
		if err != nil {
			serverError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, LeaderboardResponse{
			Entries: entries,
			Stats:   stats,
			Page:    page,
			Limit:   limit,
		})
	}
}
