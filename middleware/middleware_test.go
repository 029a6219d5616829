package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"quiz-platform/auth"
	"quiz-platform/models"
	"quiz-platform/services"

	"github.com/google/uuid"
	"github.com/gorilla/sessions"
)

func whoami() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := IdentityFrom(r.Context())
		if !ok {
			w.Write([]byte("anonymous"))
			return
		}
		w.Write([]byte(id.Username))
	})
}

func TestAuthBearer(t *testing.T) {
	tokens := auth.NewTokens([]byte("secret"), time.Hour)
	token, err := tokens.Issue(&models.User{ID: uuid.New(), Username: "ada", Email: "ada@example.com"})
	if err != nil {
		t.Fatal(err)
	}
	h := Auth(tokens, nil)(whoami())

	req := httptest.NewRequest(http.MethodGet, "/api/users/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Body.String() != "ada" {
		t.Fatalf("valid token: %d %q", rec.Code, rec.Body.String())
	}

	for _, header := range []string{"", "Bearer nope", "Basic " + token, token} {
		req := httptest.NewRequest(http.MethodGet, "/api/users/me", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("header %q: status %d", header, rec.Code)
		}
		if !strings.Contains(rec.Body.String(), `"error"`) {
			t.Errorf("header %q: body %q", header, rec.Body.String())
		}
	}
}

func TestAuthCookieSession(t *testing.T) {
	tokens := auth.NewTokens([]byte("secret"), time.Hour)
	store := sessions.NewCookieStore([]byte("0123456789abcdef0123456789abcdef"))

	login := httptest.NewRecorder()
	loginReq := httptest.NewRequest(http.MethodPost, "/api/users/login", nil)
	session, _ := store.Get(loginReq, SessionName)
	session.Values["authenticated"] = true
	session.Values["user_id"] = uuid.NewString()
	session.Values["username"] = "bob"
	if err := session.Save(loginReq, login); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/friends", nil)
	for _, c := range login.Result().Cookies() {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	Auth(tokens, store)(whoami()).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Body.String() != "bob" {
		t.Fatalf("cookie session: %d %q", rec.Code, rec.Body.String())
	}
}

func TestOptionalAuth(t *testing.T) {
	tokens := auth.NewTokens([]byte("secret"), time.Hour)
	h := OptionalAuth(tokens, nil)(whoami())

	req := httptest.NewRequest(http.MethodGet, "/api/quizzes", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Body.String() != "anonymous" {
		t.Fatalf("got %d %q", rec.Code, rec.Body.String())
	}
}

func TestRateLimit(t *testing.T) {
	h := RateLimit(services.NewMemoryLimiter(), 2, time.Minute, false)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	codes := []int{}
	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
		req.RemoteAddr = "10.0.0.1:5555"
		last = httptest.NewRecorder()
		h.ServeHTTP(last, req)
		codes = append(codes, last.Code)
	}
	if codes[0] != 200 || codes[1] != 200 || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("codes = %v", codes)
	}
	if last.Header().Get("Retry-After") == "" {
		t.Fatal("missing Retry-After")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.RemoteAddr = "10.0.0.2:5555"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("other client limited: %d", rec.Code)
	}
}

func TestRateLimitIgnoresForwardedHeaders(t *testing.T) {
	h := RateLimit(services.NewMemoryLimiter(), 2, time.Minute, false)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	limited := 0
	for i := 0; i < 20; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
		req.RemoteAddr = "10.0.0.1:5555"
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("198.51.100.%d", i))
		req.Header.Set("X-Real-IP", fmt.Sprintf("198.51.101.%d", i))
		req.Header.Set("CF-Connecting-IP", fmt.Sprintf("198.51.102.%d", i))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code == http.StatusTooManyRequests {
			limited++
		}
	}
	if limited != 18 {
		t.Fatalf("limited %d of 20 requests from one socket, want 18", limited)
	}
}

func TestRealIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:1234"
	if got := RealIP(req, true); got != "192.0.2.1" {
		t.Fatalf("remote addr: %s", got)
	}
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	if got := RealIP(req, false); got != "192.0.2.1" {
		t.Fatalf("untrusted forwarded header used: %s", got)
	}
	if got := RealIP(req, true); got != "203.0.113.7" {
		t.Fatalf("forwarded: %s", got)
	}
	req.Header.Set("X-Real-IP", "not-an-ip")
	if got := RealIP(req, true); got != "203.0.113.7" {
		t.Fatalf("bad x-real-ip should be ignored: %s", got)
	}
}

func TestLoggerAndRecover(t *testing.T) {
	h := Logger(Recover(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatal("missing request id")
	}
	if !strings.Contains(rec.Body.String(), "Server error") {
		t.Fatalf("body = %q", rec.Body.String())
	}
}

func TestSecurityHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	SecurityHeaders(true)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	for _, h := range []string{"X-Content-Type-Options", "Content-Security-Policy", "Strict-Transport-Security"} {
		if rec.Header().Get(h) == "" {
			t.Errorf("missing %s", h)
		}
	}
}
