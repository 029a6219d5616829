package handlers

import (
	"html/template"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"quiz-platform/services"
)

const verificationTTL = 24 * time.Hour

var verifyPageTmpl = template.Must(template.New("verify-page").Parse(`<html>
  <body style="font-family: Arial, sans-serif; text-align: center; padding: 50px;">
    <h2>{{.Title}}</h2>
    <p>{{.Message}}</p>
    <a href="{{.ClientURL}}">Go to QuizNerds</a>
  </body>
</html>`))

func verifyPage(w http.ResponseWriter, status int, clientURL, title, message string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	data := struct{ Title, Message, ClientURL string }{title, message, clientURL}
	if err := verifyPageTmpl.Execute(w, data); err != nil {
		slog.Error("render verification page", "error", err)
	}
}

func VerificationStatus(users UserStore) http.HandlerFunc {
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
		writeJSON(w, http.StatusOK, map[string]any{
			"emailVerified": user.EmailVerified,
			"email":         user.Email,
		})
	}
}

// RequestVerification issues a fresh 24h token and mails the link. Without
// a delivering mailer the token and link are returned to the client.
func RequestVerification(users UserStore, mailer services.Mailer, clientURL string) http.HandlerFunc {
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
		if user.EmailVerified {
			writeError(w, http.StatusBadRequest, "Email already verified")
			return
		}
		if user.Email == "" {
			writeError(w, http.StatusBadRequest, "User email not found")
			return
		}

		token, err := services.NewToken(32)
		if err != nil {
			serverError(w, r, err)
			return
		}
		expires := time.Now().UTC().Add(verificationTTL)
		if err := users.SetVerificationToken(r.Context(), user.ID, token, expires); err != nil {
			serverError(w, r, err)
			return
		}

		link := clientURL + "/verify-email?token=" + url.QueryEscape(token)
		name := user.Name
		if name == "" {
			name = user.Username
		}
		if err := mailer.SendVerification(r.Context(), user.Email, name, link); err != nil {
			// The token is stored; the user can ask again.
			slog.Error("send verification email", "user", user.ID, "error", err)
		}

		resp := map[string]any{"message": "Verification email sent. Please check your inbox."}
		if !mailer.Delivers() {
			resp["token"] = token
			resp["verificationUrl"] = link
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// VerifyEmailLink handles the link from the verification mail.
func VerifyEmailLink(users UserStore, clientURL string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("token")
		if token == "" {
			verifyPage(w, http.StatusBadRequest, clientURL, "Invalid Verification Link", "No verification token provided.")
			return
		}

		ok, err := verifyToken(r, users, token)
		if err != nil {
			serverError(w, r, err)
			return
		}
		if !ok {
			verifyPage(w, http.StatusBadRequest, clientURL, "Invalid or Expired Token",
				"The verification link is invalid or has expired. Please request a new verification email.")
			return
		}
		http.Redirect(w, r, clientURL+"/verification-success", http.StatusFound)
	}
}

func VerifyEmailToken(users UserStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Token string `json:"token"`
		}
		if !decode(w, r, &req) {
			return
		}
		if req.Token == "" {
			writeError(w, http.StatusBadRequest, "Verification token is required")
			return
		}

		ok, err := verifyToken(r, users, req.Token)
		if err != nil {
			serverError(w, r, err)
			return
		}
		if !ok {
			writeError(w, http.StatusBadRequest, "Invalid or expired verification token")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"message":       "Email verified successfully",
			"emailVerified": true,
		})
	}
}

func verifyToken(r *http.Request, users UserStore, token string) (bool, error) {
	user, err := users.FindUserByVerificationToken(r.Context(), token)
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	}
	if !user.VerificationValid(token, time.Now()) {
		return false, nil
	}
	if err := users.MarkEmailVerified(r.Context(), user.ID); err != nil {
		return false, err
	}
	slog.Info("email verified", "user", user.ID)
	return true, nil
}

// SyncVerification lets the client set its own verified flag. Once real
// mail delivery is configured the flag can only change through a token.
func SyncVerification(users UserStore, mailer services.Mailer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := caller(w, r)
		if !ok {
			return
		}
		var req struct {
			EmailVerified *bool `json:"emailVerified"`
		}
		if !decode(w, r, &req) {
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

		if req.EmailVerified != nil && !mailer.Delivers() && *req.EmailVerified != user.EmailVerified {
			if err := users.SetEmailVerified(r.Context(), user.ID, *req.EmailVerified); err != nil {
				serverError(w, r, err)
				return
			}
			user.EmailVerified = *req.EmailVerified
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"message":       "Verification status synced",
			"emailVerified": user.EmailVerified,
		})
	}
}
