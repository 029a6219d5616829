// handlers/auth.go
package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"quiz-platform/auth"
	"quiz-platform/database"
	"quiz-platform/middleware"
	"quiz-platform/models"

	"github.com/google/uuid"
	"github.com/gorilla/sessions"
	"golang.org/x/crypto/bcrypt"
)

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Remember bool   `json:"remember"`
}

type AuthResponse struct {
	Message string            `json:"message"`
	Token   string            `json:"token"`
	User    models.PublicUser `json:"user"`
}

type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

func (req *RegisterRequest) normalize() {
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Name = strings.TrimSpace(req.Name)
}

// validate returns the first failing rule as a client message.
func (req *RegisterRequest) validate() string {
	if n := utf8.RuneCountInString(req.Username); n < 3 || n > 30 {
		return "Username must be between 3 and 30 characters"
	}
	if !validEmail(req.Email) {
		return "Please provide a valid email address"
	}
	if len(req.Password) < 6 {
		return "Password must be at least 6 characters"
	}
	if utf8.RuneCountInString(req.Name) > 100 {
		return "Name must be at most 100 characters"
	}
	return ""
}

func validEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s && strings.Contains(s[strings.LastIndex(s, "@"):], ".")
}

func Register(users UserStore, tokens *auth.Tokens) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RegisterRequest
		if !decode(w, r, &req) {
			return
		}
		req.normalize()
		if msg := req.validate(); msg != "" {
			writeError(w, http.StatusBadRequest, msg)
			return
		}

		existing, err := users.FindUserConflict(r.Context(), req.Username, req.Email)
		switch {
		case err == nil:
			if existing.Email == req.Email {
				writeError(w, http.StatusBadRequest, "Email already registered")
			} else {
				writeError(w, http.StatusBadRequest, "Username already taken")
			}
			return
		case !isNotFound(err):
			serverError(w, r, err)
			return
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			serverError(w, r, err)
			return
		}

		if req.Name == "" {
			req.Name = req.Username
		}

		now := time.Now().UTC()
		user := &models.User{
			ID:           uuid.New(),
			Username:     req.Username,
			Email:        req.Email,
			PasswordHash: string(hash),
			Name:         req.Name,
			Role:         models.RoleUser,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := users.CreateUser(r.Context(), user); err != nil {
			if errors.Is(err, database.ErrDuplicate) {
				writeError(w, http.StatusBadRequest, "Username or email already exists")
				return
			}
			serverError(w, r, err)
			return
		}

		token, err := tokens.Issue(user)
		if err != nil {
			serverError(w, r, err)
			return
		}

		slog.Info("user registered", "user", user.ID, "username", user.Username)
		writeJSON(w, http.StatusCreated, AuthResponse{
			Message: "User registered successfully",
			Token:   token,
			User:    user.Public(),
		})
	}
}

func Login(users UserStore, tokens *auth.Tokens, store sessions.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req LoginRequest
		if !decode(w, r, &req) {
			return
		}
		req.Username = strings.TrimSpace(req.Username)
		if req.Username == "" || req.Password == "" {
			writeError(w, http.StatusBadRequest, "Username and password are required")
			return
		}

		user, err := users.FindUserByLogin(r.Context(), req.Username)
		if err != nil {
			if isNotFound(err) {
				writeError(w, http.StatusUnauthorized, "Invalid username or password")
				return
			}
			serverError(w, r, err)
			return
		}

		// Şifre kontrolü
		if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
			writeError(w, http.StatusUnauthorized, "Invalid username or password")
			return
		}

		token, err := tokens.Issue(user)
		if err != nil {
			serverError(w, r, err)
			return
		}

		// Session oluştur
		if store != nil {
			session, _ := store.Get(r, middleware.SessionName)
			session.Values["authenticated"] = true
			session.Values["user_id"] = user.ID.String()
			session.Values["username"] = user.Username
			session.Values["email"] = user.Email
			if req.Remember {
				session.Options.MaxAge = 86400 * 30
			} else {
				session.Options.MaxAge = 86400
			}
			if err := session.Save(r, w); err != nil {
				slog.Warn("save session", "user", user.ID, "error", err)
			}
		}

		if err := users.UpdateLastLogin(r.Context(), user.ID, time.Now().UTC()); err != nil {
			slog.Warn("update last login", "user", user.ID, "error", err)
		}

		writeJSON(w, http.StatusOK, AuthResponse{
			Message: "Login successful",
			Token:   token,
			User:    user.Public(),
		})
	}
}

func Logout(store sessions.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, _ := store.Get(r, middleware.SessionName)
		session.Values = map[interface{}]interface{}{}
		session.Options.MaxAge = -1
		if err := session.Save(r, w); err != nil {
			slog.Warn("clear session", "error", err)
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
	}
}

func RefreshToken(tokens *auth.Tokens) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Token string `json:"token"`
		}
		if !decode(w, r, &req) {
			return
		}
		if req.Token == "" {
			if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
				req.Token = strings.TrimPrefix(h, "Bearer ")
			}
		}

		token, err := tokens.Refresh(req.Token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Invalid token")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"token": token})
	}
}
