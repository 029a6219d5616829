// middleware/auth.go
package middleware

import (
	"context"
	"net/http"
	"strings"

	"quiz-platform/auth"

	"github.com/google/uuid"
	"github.com/gorilla/sessions"
)

// SessionName is the cookie session written at login.
const SessionName = "session"

type ctxKey int

const identityKey ctxKey = iota

func WithIdentity(ctx context.Context, id auth.Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFrom returns the caller set by Auth or OptionalAuth.
func IdentityFrom(ctx context.Context) (auth.Identity, bool) {
	id, ok := ctx.Value(identityKey).(auth.Identity)
	return id, ok
}

// identify tries the bearer token first, then the cookie session.
func identify(r *http.Request, tokens *auth.Tokens, store sessions.Store) (auth.Identity, bool) {
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return auth.Identity{}, false
		}
		id, err := tokens.Parse(strings.TrimSpace(parts[1]))
		return id, err == nil
	}

	if store == nil {
		return auth.Identity{}, false
	}
	session, err := store.Get(r, SessionName)
	if err != nil {
		return auth.Identity{}, false
	}
	if ok, _ := session.Values["authenticated"].(bool); !ok {
		return auth.Identity{}, false
	}
	raw, _ := session.Values["user_id"].(string)
	userID, err := uuid.Parse(raw)
	if err != nil {
		return auth.Identity{}, false
	}
	username, _ := session.Values["username"].(string)
	email, _ := session.Values["email"].(string)
	return auth.Identity{UserID: userID, Username: username, Email: email}, true
}

// Auth rejects requests without a valid bearer token or cookie session.
func Auth(tokens *auth.Tokens, store sessions.Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := identify(r, tokens, store)
			if !ok {
				writeError(w, http.StatusUnauthorized, "Authentication required")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// OptionalAuth attaches the caller when credentials are present and valid,
// and lets anonymous requests through.
func OptionalAuth(tokens *auth.Tokens, store sessions.Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if id, ok := identify(r, tokens, store); ok {
				r = r.WithContext(WithIdentity(r.Context(), id))
			}
			next.ServeHTTP(w, r)
		})
	}
}
