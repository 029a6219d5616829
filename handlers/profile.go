// handlers/profile.go
package handlers

import (
	"net/http"
	"strings"
	"unicode/utf8"

	"quiz-platform/models"
)

func GetMe(users UserStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := caller(w, r)
		if !ok {
			return
		}

		user, err := users.GetUser(r.Context(), id.UserID)
		if err != nil {
			if isNotFound(err) {
				writeError(w, http.StatusNotFound, "User not found")
				return
			}
			serverError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"user": user})
	}
}

type UpdateProfileRequest struct {
	Name string `json:"name"`
}

func UpdateMe(users UserStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := caller(w, r)
		if !ok {
			return
		}

		var req UpdateProfileRequest
		if !decode(w, r, &req) {
			return
		}
		req.Name = strings.TrimSpace(req.Name)
		if utf8.RuneCountInString(req.Name) > 100 {
			writeError(w, http.StatusBadRequest, "Name must be at most 100 characters")
			return
		}

		if err := users.UpdateUserName(r.Context(), id.UserID, req.Name); err != nil {
			if isNotFound(err) {
				writeError(w, http.StatusNotFound, "User not found")
				return
			}
			serverError(w, r, err)
			return
		}

		user, err := users.GetUser(r.Context(), id.UserID)
		if err != nil {
			serverError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"message": "Profile updated", "user": user})
	}
}

// GetUserProfile is the public view of any user.
func GetUserProfile(users UserStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := pathUUID(w, r, "userId", "User not found")
		if !ok {
			return
		}

		user, err := users.GetUser(r.Context(), userID)
		if err != nil {
			if isNotFound(err) {
				writeError(w, http.StatusNotFound, "User not found")
				return
			}
			serverError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"user": user.Public()})
	}
}

// GetMyStats derives XP, level and achievements from the caller's attempts.
func GetMyStats(quizzes QuizStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := caller(w, r)
		if !ok {
			return
		}

		attempts, err := quizzes.ListAttemptsByUser(r.Context(), id.UserID, 0)
		if err != nil {
			serverError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"stats": models.ComputeStats(attempts)})
	}
}
