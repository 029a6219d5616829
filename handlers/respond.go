package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"quiz-platform/auth"
	"quiz-platform/database"
	"quiz-platform/middleware"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// serverError logs err and answers with a generic 500.
func serverError(w http.ResponseWriter, r *http.Request, err error) {
	slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	writeError(w, http.StatusInternalServerError, "Server error")
}

// decode reads a JSON body into v. An empty body leaves v untouched.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	writeError(w, http.StatusBadRequest, "Invalid request body")
	return false
}

// caller returns the authenticated identity. Routes behind Auth always
// have one; a missing identity answers 401.
func caller(w http.ResponseWriter, r *http.Request) (auth.Identity, bool) {
	id, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Authentication required")
	}
	return id, ok
}

// matchesCaller accepts an optional client supplied userId, which must
// name the caller when present.
func matchesCaller(w http.ResponseWriter, id auth.Identity, claimed string) bool {
	if claimed == "" || claimed == id.UserID.String() {
		return true
	}
	writeError(w, http.StatusForbidden, "User ID does not match the authenticated user")
	return false
}

func pathUUID(w http.ResponseWriter, r *http.Request, name, notFound string) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)[name])
	if err != nil {
		writeError(w, http.StatusNotFound, notFound)
		return uuid.Nil, false
	}
	return id, true
}

func isNotFound(err error) bool {
	return errors.Is(err, database.ErrNotFound)
}

// authIdentity is the caller on routes where authentication is optional.
func authIdentity(r *http.Request) (auth.Identity, bool) {
	return middleware.IdentityFrom(r.Context())
}
