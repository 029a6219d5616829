package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"quiz-platform/auth"
	"quiz-platform/database"
	"quiz-platform/middleware"
	"quiz-platform/models"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"golang.org/x/crypto/bcrypt"
)

// fakeStore is an in-memory stand-in for *database.Store.
type fakeStore struct {
	mu          sync.Mutex
	users       map[uuid.UUID]*models.User
	requests    map[uuid.UUID]*models.FriendRequest
	friendships map[[2]uuid.UUID]*models.Friendship
	quizzes     map[uuid.UUID]*models.Quiz
	attempts    []models.Attempt
	sessions    map[string]*models.MultiplayerSession

	// conflicts makes that many UpdateSession calls fail with ErrConflict.
	conflicts int
	pingErr   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:       map[uuid.UUID]*models.User{},
		requests:    map[uuid.UUID]*models.FriendRequest{},
		friendships: map[[2]uuid.UUID]*models.Friendship{},
		quizzes:     map[uuid.UUID]*models.Quiz{},
		sessions:    map[string]*models.MultiplayerSession{},
	}
}

func (f *fakeStore) Ping(context.Context) error { return f.pingErr }

// users

func (f *fakeStore) CreateUser(_ context.Context, u *models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.users {
		if existing.Username == u.Username || existing.Email == u.Email {
			return database.ErrDuplicate
		}
	}
	cp := *u
	f.users[u.ID] = &cp
	return nil
}

func (f *fakeStore) GetUser(_ context.Context, id uuid.UUID) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeStore) findUser(match func(*models.User) bool) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if match(u) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, database.ErrNotFound
}

func (f *fakeStore) FindUserByLogin(_ context.Context, login string) (*models.User, error) {
	return f.findUser(func(u *models.User) bool {
		return u.Username == login || u.Email == strings.ToLower(login)
	})
}

func (f *fakeStore) FindUserConflict(_ context.Context, username, email string) (*models.User, error) {
	return f.findUser(func(u *models.User) bool {
		return u.Username == username || u.Email == email
	})
}

func (f *fakeStore) FindUserByVerificationToken(_ context.Context, token string) (*models.User, error) {
	return f.findUser(func(u *models.User) bool {
		return token != "" && u.VerificationToken == token
	})
}

func (f *fakeStore) updateUser(id uuid.UUID, fn func(*models.User)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return database.ErrNotFound
	}
	fn(u)
	return nil
}

func (f *fakeStore) UpdateLastLogin(_ context.Context, id uuid.UUID, at time.Time) error {
	return f.updateUser(id, func(u *models.User) { u.LastLogin = &at })
}

func (f *fakeStore) UpdateUserName(_ context.Context, id uuid.UUID, name string) error {
	return f.updateUser(id, func(u *models.User) { u.Name = name })
}

func (f *fakeStore) UpdatePassword(_ context.Context, id uuid.UUID, hash string) error {
	return f.updateUser(id, func(u *models.User) { u.PasswordHash = hash })
}

func (f *fakeStore) SetVerificationToken(_ context.Context, id uuid.UUID, token string, expires time.Time) error {
	return f.updateUser(id, func(u *models.User) {
		u.VerificationToken = token
		u.VerificationExpires = &expires
	})
}

func (f *fakeStore) MarkEmailVerified(_ context.Context, id uuid.UUID) error {
	return f.updateUser(id, func(u *models.User) {
		u.EmailVerified = true
		u.VerificationToken = ""
		u.VerificationExpires = nil
	})
}

func (f *fakeStore) SetEmailVerified(_ context.Context, id uuid.UUID, verified bool) error {
	return f.updateUser(id, func(u *models.User) { u.EmailVerified = verified })
}

func (f *fakeStore) SearchUsers(_ context.Context, query string, exclude uuid.UUID, limit int) ([]models.PublicUser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	q := strings.ToLower(query)
	var out []models.PublicUser
	for _, u := range f.users {
		if u.ID == exclude {
			continue
		}
		if strings.Contains(strings.ToLower(u.Username), q) ||
			strings.Contains(strings.ToLower(u.Email), q) ||
			strings.Contains(strings.ToLower(u.Name), q) {
			out = append(out, u.Public())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// friends

func (f *fakeStore) GetFriendship(_ context.Context, userID, friendID uuid.UUID) (*models.Friendship, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fs, ok := f.friendships[[2]uuid.UUID{userID, friendID}]
	if !ok {
		return nil, database.ErrNotFound
	}
	cp := *fs
	return &cp, nil
}

func (f *fakeStore) HasPendingRequest(_ context.Context, a, b uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.requests {
		between := (r.RequesterID == a && r.RecipientID == b) || (r.RequesterID == b && r.RecipientID == a)
		if between && r.Status == models.RequestPending {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) CreateFriendRequest(_ context.Context, req *models.FriendRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	reset := false
	for _, r := range f.requests {
		if r.RequesterID == req.RequesterID && r.RecipientID == req.RecipientID {
			r.Status = models.RequestPending
			r.Message = req.Message
			r.UpdatedAt = req.UpdatedAt
			req.ID = r.ID
			reset = true
		}
	}
	if !reset {
		cp := *req
		f.requests[req.ID] = &cp
	}
	key := [2]uuid.UUID{req.RequesterID, req.RecipientID}
	if _, ok := f.friendships[key]; !ok {
		f.friendships[key] = &models.Friendship{
			UserID:      req.RequesterID,
			FriendID:    req.RecipientID,
			Status:      models.RequestPending,
			RequestedBy: req.RequesterID,
			CreatedAt:   req.CreatedAt,
		}
	}
	return nil
}

func (f *fakeStore) GetFriendRequest(_ context.Context, id uuid.UUID) (*models.FriendRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.requests[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (f *fakeStore) ListPendingRequests(_ context.Context, recipient uuid.UUID) ([]models.FriendRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []models.FriendRequest{}
	for _, r := range f.requests {
		if r.RecipientID != recipient || r.Status != models.RequestPending {
			continue
		}
		cp := *r
		if u, ok := f.users[r.RequesterID]; ok {
			pub := u.Public()
			cp.Requester = &pub
		}
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeStore) AcceptFriendRequest(_ context.Context, req *models.FriendRequest, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.requests[req.ID]
	if !ok || r.Status != models.RequestPending {
		return database.ErrConflict
	}
	r.Status = models.RequestAccepted
	r.UpdatedAt = now
	for _, pair := range [][2]uuid.UUID{{r.RequesterID, r.RecipientID}, {r.RecipientID, r.RequesterID}} {
		f.friendships[pair] = &models.Friendship{
			UserID:      pair[0],
			FriendID:    pair[1],
			Status:      models.RequestAccepted,
			RequestedBy: r.RequesterID,
			CreatedAt:   now,
		}
	}
	return nil
}

func (f *fakeStore) DeclineFriendRequest(_ context.Context, req *models.FriendRequest, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.requests[req.ID]
	if !ok || r.Status != models.RequestPending {
		return database.ErrConflict
	}
	r.Status = models.RequestDeclined
	r.UpdatedAt = now
	for _, pair := range [][2]uuid.UUID{{r.RequesterID, r.RecipientID}, {r.RecipientID, r.RequesterID}} {
		if fs, ok := f.friendships[pair]; ok && fs.Status == models.RequestPending {
			delete(f.friendships, pair)
		}
	}
	return nil
}

func (f *fakeStore) ListFriends(_ context.Context, userID uuid.UUID) ([]models.Friend, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []models.Friend{}
	for key, fs := range f.friendships {
		if key[0] != userID || fs.Status != models.RequestAccepted {
			continue
		}
		u := f.users[key[1]]
		out = append(out, models.Friend{
			UserID:   u.ID,
			Username: u.Username,
			Name:     u.Name,
			Email:    u.Email,
			AddedAt:  fs.CreatedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (f *fakeStore) RemoveFriend(_ context.Context, a, b uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.friendships, [2]uuid.UUID{a, b})
	delete(f.friendships, [2]uuid.UUID{b, a})
	for _, r := range f.requests {
		if (r.RequesterID == a && r.RecipientID == b) || (r.RequesterID == b && r.RecipientID == a) {
			r.Status = models.RequestCancelled
		}
	}
	return nil
}

// quizzes and attempts

func cloneQuiz(q *models.Quiz) *models.Quiz {
	b, _ := json.Marshal(q)
	var cp models.Quiz
	_ = json.Unmarshal(b, &cp)
	return &cp
}

func (f *fakeStore) CreateQuiz(_ context.Context, q *models.Quiz) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.quizzes[q.ID] = cloneQuiz(q)
	return nil
}

func (f *fakeStore) GetQuiz(_ context.Context, id uuid.UUID) (*models.Quiz, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	q, ok := f.quizzes[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	return cloneQuiz(q), nil
}

func (f *fakeStore) ListPublishedQuizzes(_ context.Context, search, category string, limit int) ([]models.Quiz, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []models.Quiz{}
	for _, q := range f.quizzes {
		if q.Status != models.QuizPublished {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(q.Title), strings.ToLower(search)) {
			continue
		}
		if category != "" && q.Category != category {
			continue
		}
		out = append(out, *cloneQuiz(q))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) UpdateQuizStatus(_ context.Context, id uuid.UUID, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	q, ok := f.quizzes[id]
	if !ok {
		return database.ErrNotFound
	}
	q.Status = status
	return nil
}

func (f *fakeStore) CreateAttempt(_ context.Context, a *models.Attempt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts = append(f.attempts, *a)
	return nil
}

func (f *fakeStore) ListAttemptsByUser(_ context.Context, userID uuid.UUID, limit int) ([]models.Attempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []models.Attempt{}
	for i := len(f.attempts) - 1; i >= 0; i-- {
		if f.attempts[i].UserID == userID {
			out = append(out, f.attempts[i])
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// leaderboard

func (f *fakeStore) Leaderboard(_ context.Context, limit, offset int) ([]models.LeaderboardEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	byUser := map[uuid.UUID]*models.LeaderboardEntry{}
	for _, a := range f.attempts {
		e, ok := byUser[a.UserID]
		if !ok {
			u := f.users[a.UserID]
			e = &models.LeaderboardEntry{UserID: u.ID, Username: u.Username, Name: u.Name}
			byUser[a.UserID] = e
		}
		e.TotalScore += a.Score
		e.TotalPossible += a.MaxScore
		e.Attempts++
	}
	entries := make([]models.LeaderboardEntry, 0, len(byUser))
	for _, e := range byUser {
		if e.TotalPossible > 0 {
			e.Accuracy = e.TotalScore * 100 / e.TotalPossible
		}
		entries = append(entries, *e)
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.TotalScore != b.TotalScore {
			return a.TotalScore > b.TotalScore
		}
		if a.Attempts != b.Attempts {
			return a.Attempts < b.Attempts
		}
		return a.Username < b.Username
	})
	if offset >= len(entries) {
		return []models.LeaderboardEntry{}, nil
	}
	entries = entries[offset:]
	if len(entries) > limit {
		entries = entries[:limit]
	}
	for i := range entries {
		entries[i].Rank = offset + i + 1
	}
	return entries, nil
}

func (f *fakeStore) LeaderboardStats(context.Context) (models.LeaderboardStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stats := models.LeaderboardStats{TotalUsers: len(f.users), TotalAttempts: len(f.attempts)}
	for _, a := range f.attempts {
		stats.TotalCorrect += a.Score
	}
	return stats, nil
}

// multiplayer sessions

func cloneSession(s *models.MultiplayerSession) *models.MultiplayerSession {
	b, _ := json.Marshal(s)
	var cp models.MultiplayerSession
	_ = json.Unmarshal(b, &cp)
	cp.Version = s.Version
	return &cp
}

func (f *fakeStore) CreateSession(_ context.Context, m *models.MultiplayerSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.sessions[m.SessionCode]; ok {
		return database.ErrDuplicate
	}
	m.Version = 1
	f.sessions[m.SessionCode] = cloneSession(m)
	return nil
}

func (f *fakeStore) GetSession(_ context.Context, code string) (*models.MultiplayerSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[code]
	if !ok {
		return nil, database.ErrNotFound
	}
	return cloneSession(s), nil
}

func (f *fakeStore) UpdateSession(_ context.Context, m *models.MultiplayerSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.sessions[m.SessionCode]
	if !ok {
		return database.ErrNotFound
	}
	if f.conflicts > 0 {
		f.conflicts--
		stored.Version++
		return database.ErrConflict
	}
	if stored.Version != m.Version {
		return database.ErrConflict
	}
	m.Version++
	f.sessions[m.SessionCode] = cloneSession(m)
	return nil
}

func (f *fakeStore) ListOpenSessions(_ context.Context, limit int) ([]*models.MultiplayerSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.MultiplayerSession
	for _, s := range f.sessions {
		if s.Status == models.SessionWaiting && s.Visibility != models.VisibilityPrivate {
			out = append(out, cloneSession(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SessionCode < out[j].SessionCode })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) ListInvitingSessions(_ context.Context, userID uuid.UUID) ([]*models.MultiplayerSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.MultiplayerSession
	for _, s := range f.sessions {
		if s.Status != models.SessionFinished && s.HasPendingInvite(userID) {
			out = append(out, cloneSession(s))
		}
	}
	return out, nil
}

// fakeMailer records the last verification link.
type fakeMailer struct {
	delivers bool
	to       string
	link     string
}

func (m *fakeMailer) Delivers() bool { return m.delivers }

func (m *fakeMailer) SendVerification(_ context.Context, to, _, link string) error {
	m.to, m.link = to, link
	return nil
}

// helpers

func addUser(t *testing.T, f *fakeStore, username, password string) *models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	now := time.Now().UTC()
	u := &models.User{
		ID:           uuid.New(),
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: string(hash),
		Name:         strings.ToUpper(username[:1]) + username[1:],
		Role:         models.RoleUser,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := f.CreateUser(context.Background(), u); err != nil {
		t.Fatal(err)
	}
	return u
}

func identityOf(u *models.User) auth.Identity {
	return auth.Identity{UserID: u.ID, Username: u.Username, Email: u.Email}
}

// request builds a JSON request, optionally as an authenticated user and
// with mux path variables.
func request(t *testing.T, method, target string, body any, as *models.User, vars map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	if as != nil {
		req = req.WithContext(middleware.WithIdentity(req.Context(), identityOf(as)))
	}
	if vars != nil {
		req = mux.SetURLVars(req, vars)
	}
	return req
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status = %d, want %d; body %s", rec.Code, want, rec.Body.String())
	}
}

func expectError(t *testing.T, rec *httptest.ResponseRecorder, status int, msg string) {
	t.Helper()
	expectStatus(t, rec, status)
	if got := decodeBody(t, rec)["error"]; got != msg {
		t.Fatalf("error = %v, want %q", got, msg)
	}
}
