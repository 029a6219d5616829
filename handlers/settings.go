// handlers/settings.go
package handlers

import (
	"log/slog"
	"net/http"

	"golang.org/x/crypto/bcrypt"
)

type UpdateSecurityRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// UpdateSecurity changes the caller's password after checking the current one.
func UpdateSecurity(users UserStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := caller(w, r)
		if !ok {
			return
		}

		var req UpdateSecurityRequest
		if !decode(w, r, &req) {
			return
		}
		if req.CurrentPassword == "" || req.NewPassword == "" {
			writeError(w, http.StatusBadRequest, "Current and new password are required")
			return
		}
		if len(req.NewPassword) < 6 {
			writeError(w, http.StatusBadRequest, "Password must be at least 6 characters")
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

		// Mevcut şifreyi kontrol et
		if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.CurrentPassword)); err != nil {
			writeError(w, http.StatusBadRequest, "Current password is incorrect")
			return
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
		if err != nil {
			serverError(w, r, err)
			return
		}
		if err := users.UpdatePassword(r.Context(), user.ID, string(hash)); err != nil {
			serverError(w, r, err)
			return
		}

		slog.Info("password changed", "user", user.ID)
		writeJSON(w, http.StatusOK, map[string]string{"message": "Password updated successfully"})
	}
}
