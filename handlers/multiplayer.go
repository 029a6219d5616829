package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"quiz-platform/auth"
	"quiz-platform/database"
	"quiz-platform/models"
	"quiz-platform/services"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

const (
	// mutateAttempts bounds load-mutate-save retries on version conflicts.
	mutateAttempts = 3
	codeAttempts   = 5
	openSessions   = 50
)

// Multiplayer serves /api/multiplayer. Every mutation is pushed to the
// broker so websocket subscribers see it.
type Multiplayer struct {
	Sessions  SessionStore
	Friends   FriendStore
	Broker    services.Broker
	Questions QuestionSource
	ClientURL string

	now     func() time.Time
	newCode func() (string, error)
}

func NewMultiplayer(sessions SessionStore, friends FriendStore, broker services.Broker, questions QuestionSource, clientURL string) *Multiplayer {
	return &Multiplayer{
		Sessions:  sessions,
		Friends:   friends,
		Broker:    broker,
		Questions: questions,
		ClientURL: clientURL,
		now:       func() time.Time { return time.Now().UTC() },
		newCode:   services.NewSessionCode,
	}
}

// sessionView is the wire shape of a session.
type sessionView struct {
	*models.MultiplayerSession
	IsPublic bool `json:"isPublic"`
}

func viewOf(s *models.MultiplayerSession) sessionView {
	return sessionView{MultiplayerSession: s, IsPublic: s.Visibility == models.VisibilityPublic}
}

// SessionEvent is what the broker carries for every session change.
type SessionEvent struct {
	Type    string      `json:"type"`
	Session sessionView `json:"session"`
}

func (m *Multiplayer) publish(ctx context.Context, event string, s *models.MultiplayerSession) {
	payload, err := json.Marshal(SessionEvent{Type: event, Session: viewOf(s)})
	if err != nil {
		slog.Error("encode session event", "code", s.SessionCode, "error", err)
		return
	}
	if err := m.Broker.Publish(ctx, s.SessionCode, payload); err != nil {
		slog.Warn("publish session event", "code", s.SessionCode, "event", event, "error", err)
	}
}

// mutate loads the session, applies fn and saves it, retrying when another
// writer got there first. The saved session is published as event.
// errUnchanged lets a mutation skip the save and the published event.
var errUnchanged = errors.New("session unchanged")

func (m *Multiplayer) mutate(ctx context.Context, code, event string, fn func(s *models.MultiplayerSession, now time.Time) error) (*models.MultiplayerSession, error) {
	for i := 0; i < mutateAttempts; i++ {
		s, err := m.Sessions.GetSession(ctx, code)
		if err != nil {
			return nil, err
		}
		if err := fn(s, m.now()); err != nil {
			if errors.Is(err, errUnchanged) {
				return s, nil
			}
			return s, err
		}

		err = m.Sessions.UpdateSession(ctx, s)
		if errors.Is(err, database.ErrConflict) {
			slog.Debug("session version conflict, retrying", "code", code, "attempt", i+1)
			continue
		}
		if err != nil {
			return nil, err
		}
		m.publish(ctx, event, s)
		return s, nil
	}
	return nil, database.ErrConflict
}

var sessionClientErrors = []error{
	models.ErrSessionStarted,
	models.ErrSessionFull,
	models.ErrAlreadyJoined,
	models.ErrNoQuestions,
	models.ErrSessionNotStarted,
	models.ErrAlreadyAnswered,
	models.ErrInvalidQuestion,
	models.ErrSessionFinished,
}

// sessionError maps store and session rule errors to responses. notHost
// overrides the message for ErrNotHost.
func sessionError(w http.ResponseWriter, r *http.Request, err error, notHost string) {
	switch {
	case isNotFound(err):
		writeError(w, http.StatusNotFound, "Session not found")
	case errors.Is(err, database.ErrConflict):
		writeError(w, http.StatusConflict, "Session was updated by someone else, please retry")
	case errors.Is(err, models.ErrNotHost):
		if notHost == "" {
			notHost = err.Error()
		}
		writeError(w, http.StatusForbidden, notHost)
	case errors.Is(err, models.ErrPlayerNotFound), errors.Is(err, models.ErrNotInvited):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		for _, target := range sessionClientErrors {
			if errors.Is(err, target) {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
		}
		serverError(w, r, err)
	}
}

func sessionCode(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

func displayName(id auth.Identity, requested string) string {
	if name := strings.TrimSpace(requested); name != "" {
		return name
	}
	return id.Username
}

type CreateSessionRequest struct {
	UserID     string             `json:"userId"`
	Username   string             `json:"username"`
	QuizConfig *models.QuizConfig `json:"quizConfig"`
	Visibility string             `json:"visibility"`
	IsPublic   bool               `json:"isPublic"`
	MaxPlayers int                `json:"maxPlayers"`
}

func (m *Multiplayer) Create() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := caller(w, r)
		if !ok {
			return
		}
		var req CreateSessionRequest
		if !decode(w, r, &req) {
			return
		}
		if !matchesCaller(w, id, req.UserID) {
			return
		}

		cfg := models.DefaultQuizConfig()
		if req.QuizConfig != nil {
			cfg = req.QuizConfig.WithDefaults()
		}
		visibility := strings.ToUpper(req.Visibility)
		if visibility == "" && req.IsPublic {
			visibility = models.VisibilityPublic
		}
		if visibility != "" && !models.ValidVisibility(visibility) {
			writeError(w, http.StatusBadRequest, "Invalid visibility")
			return
		}
		if req.MaxPlayers < 0 || req.MaxPlayers > models.MaxPlayersLimit {
			writeError(w, http.StatusBadRequest, "Invalid max players")
			return
		}

		host := models.Player{UserID: id.UserID, Username: displayName(id, req.Username)}
		for i := 0; i < codeAttempts; i++ {
			code, err := m.newCode()
			if err != nil {
				serverError(w, r, err)
				return
			}
			s := models.NewSession(code, host, cfg, visibility, req.MaxPlayers, m.now())
			err = m.Sessions.CreateSession(r.Context(), s)
			if errors.Is(err, database.ErrDuplicate) {
				continue
			}
			if err != nil {
				serverError(w, r, err)
				return
			}

			slog.Info("session created", "code", s.SessionCode, "host", id.UserID, "visibility", s.Visibility)
			writeJSON(w, http.StatusOK, map[string]any{
				"sessionCode": s.SessionCode,
				"sessionId":   s.ID,
				"status":      s.Status,
			})
			return
		}
		serverError(w, r, errors.New("could not allocate a unique session code"))
	}
}

type JoinSessionRequest struct {
	SessionCode string `json:"sessionCode"`
	UserID      string `json:"userId"`
	Username    string `json:"username"`
}

func (m *Multiplayer) Join() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := caller(w, r)
		if !ok {
			return
		}
		var req JoinSessionRequest
		if !decode(w, r, &req) {
			return
		}
		if !matchesCaller(w, id, req.UserID) {
			return
		}
		code := sessionCode(req.SessionCode)
		if code == "" {
			writeError(w, http.StatusBadRequest, "Session code is required")
			return
		}

		player := models.Player{UserID: id.UserID, Username: displayName(id, req.Username)}
		s, err := m.mutate(r.Context(), code, "player_joined", func(s *models.MultiplayerSession, now time.Time) error {
			return s.Join(player, now)
		})
		if err != nil {
			sessionError(w, r, err, "")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"sessionCode": s.SessionCode,
			"players":     s.Players,
			"status":      s.Status,
		})
	}
}

func (m *Multiplayer) Get() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := m.Sessions.GetSession(r.Context(), sessionCode(mux.Vars(r)["code"]))
		if err != nil {
			sessionError(w, r, err, "")
			return
		}
		writeJSON(w, http.StatusOK, viewOf(s))
	}
}

type StartSessionRequest struct {
	UserID    string            `json:"userId"`
	Questions []models.Question `json:"questions"`
}

// prepareQuestions gives client supplied questions ids and a stable order.
func prepareQuestions(qs []models.Question) []models.Question {
	out := make([]models.Question, len(qs))
	for i, q := range qs {
		if q.ID == uuid.Nil {
			q.ID = uuid.New()
		}
		for j := range q.Options {
			if q.Options[j].ID == uuid.Nil {
				q.Options[j].ID = uuid.New()
			}
		}
		q.Order = i + 1
		out[i] = q
	}
	return out
}

func (m *Multiplayer) Start() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := caller(w, r)
		if !ok {
			return
		}
		var req StartSessionRequest
		if !decode(w, r, &req) {
			return
		}
		if !matchesCaller(w, id, req.UserID) {
			return
		}
		code := sessionCode(mux.Vars(r)["code"])
		const notHost = "Only the host can start the session"

		questions := prepareQuestions(req.Questions)
		if len(questions) == 0 && m.Questions != nil {
			s, err := m.Sessions.GetSession(r.Context(), code)
			if err != nil {
				sessionError(w, r, err, notHost)
				return
			}
			if !s.IsHost(id.UserID) {
				sessionError(w, r, models.ErrNotHost, notHost)
				return
			}
			if s.Status != models.SessionWaiting {
				sessionError(w, r, models.ErrSessionStarted, notHost)
				return
			}

			questions, err = m.Questions.Fetch(r.Context(), s.QuizConfig)
			if err != nil {
				var upstream *services.UpstreamError
				switch {
				case errors.Is(err, services.ErrInvalidParams):
					writeError(w, http.StatusBadRequest, err.Error())
				case errors.As(err, &upstream):
					writeJSON(w, http.StatusBadGateway, map[string]any{"error": "Failed to fetch questions", "code": upstream.Code})
				default:
					slog.Error("fetch questions", "code", code, "error", err)
					writeError(w, http.StatusBadGateway, "Failed to fetch questions")
				}
				return
			}
		}

		s, err := m.mutate(r.Context(), code, "session_started", func(s *models.MultiplayerSession, now time.Time) error {
			return s.Start(id.UserID, questions, now)
		})
		if err != nil {
			sessionError(w, r, err, notHost)
			return
		}

		slog.Info("session started", "code", s.SessionCode, "players", len(s.Players), "questions", len(s.Questions))
		writeJSON(w, http.StatusOK, map[string]any{
			"sessionCode": s.SessionCode,
			"status":      s.Status,
			"questions":   s.Questions,
			"startedAt":   s.StartedAt,
		})
	}
}

type AnswerRequest struct {
	UserID        string `json:"userId"`
	QuestionIndex *int   `json:"questionIndex"`
	Answer        string `json:"answer"`
	IsCorrect     bool   `json:"isCorrect"`
}

// gradeAnswer checks answer against the stored question when it names one
// of its options by text or id, and falls back to the client's verdict.
func gradeAnswer(q models.Question, answer string, claimed bool) bool {
	if answer == "" {
		return claimed
	}
	for _, o := range q.Options {
		if o.Text == answer || o.ID.String() == answer {
			return o.IsCorrect
		}
	}
	return claimed
}

func (m *Multiplayer) Answer() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := caller(w, r)
		if !ok {
			return
		}
		var req AnswerRequest
		if !decode(w, r, &req) {
			return
		}
		if !matchesCaller(w, id, req.UserID) {
			return
		}
		if req.QuestionIndex == nil {
			writeError(w, http.StatusBadRequest, models.ErrInvalidQuestion.Error())
			return
		}
		idx := *req.QuestionIndex

		var player models.Player
		_, err := m.mutate(r.Context(), sessionCode(mux.Vars(r)["code"]), "answer_recorded",
			func(s *models.MultiplayerSession, now time.Time) error {
				correct := req.IsCorrect
				if idx >= 0 && idx < len(s.Questions) {
					correct = gradeAnswer(s.Questions[idx], req.Answer, req.IsCorrect)
				}
				var err error
				player, err = s.RecordAnswer(id.UserID, idx, correct, now)
				return err
			})
		if err != nil {
			sessionError(w, r, err, "")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"score":           player.Score,
			"currentQuestion": player.CurrentQuestion,
			"finished":        player.Finished,
		})
	}
}

func (m *Multiplayer) Leaderboard() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := m.Sessions.GetSession(r.Context(), sessionCode(mux.Vars(r)["code"]))
		if err != nil {
			sessionError(w, r, err, "")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"leaderboard": s.Leaderboard()})
	}
}

func (m *Multiplayer) End() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := caller(w, r)
		if !ok {
			return
		}
		_, err := m.mutate(r.Context(), sessionCode(mux.Vars(r)["code"]), "session_ended",
			func(s *models.MultiplayerSession, now time.Time) error {
				ended := s.Status == models.SessionFinished
				if err := s.End(id.UserID, now); err != nil {
					return err
				}
				if ended {
					return errUnchanged
				}
				return nil
			})
		if err != nil {
			sessionError(w, r, err, "Only the host can end the session")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "Session ended successfully"})
	}
}

func (m *Multiplayer) Leave() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := caller(w, r)
		if !ok {
			return
		}
		_, err := m.mutate(r.Context(), sessionCode(mux.Vars(r)["code"]), "player_left",
			func(s *models.MultiplayerSession, now time.Time) error {
				return s.Leave(id.UserID, now)
			})
		if err != nil {
			sessionError(w, r, err, "")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "Left session successfully"})
	}
}

type InviteRequest struct {
	SessionCode string   `json:"sessionCode"`
	UserID      string   `json:"userId"`
	FriendIDs   []string `json:"friendIds"`
}

// Invite sends invitations to accepted friends of the caller; other ids
// are ignored.
func (m *Multiplayer) Invite() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := caller(w, r)
		if !ok {
			return
		}
		var req InviteRequest
		if !decode(w, r, &req) {
			return
		}
		if !matchesCaller(w, id, req.UserID) {
			return
		}
		code := sessionCode(req.SessionCode)
		if code == "" || len(req.FriendIDs) == 0 {
			writeError(w, http.StatusBadRequest, "Session code and friend IDs are required")
			return
		}

		friends, err := m.Friends.ListFriends(r.Context(), id.UserID)
		if err != nil {
			serverError(w, r, err)
			return
		}
		wanted := make(map[string]bool, len(req.FriendIDs))
		for _, f := range req.FriendIDs {
			wanted[strings.ToLower(strings.TrimSpace(f))] = true
		}
		var selected []models.Friend
		for _, f := range friends {
			if wanted[f.UserID.String()] {
				selected = append(selected, f)
			}
		}

		var added int
		_, err = m.mutate(r.Context(), code, "players_invited", func(s *models.MultiplayerSession, now time.Time) error {
			var err error
			added, err = s.Invite(id.UserID, selected, now)
			return err
		})
		if err != nil {
			sessionError(w, r, err, "")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"message": "Invitations sent", "invitedCount": added})
	}
}

func (m *Multiplayer) RespondInvite() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := caller(w, r)
		if !ok {
			return
		}
		var req struct {
			UserID   string `json:"userId"`
			Username string `json:"username"`
			Accept   bool   `json:"accept"`
		}
		if !decode(w, r, &req) {
			return
		}
		if !matchesCaller(w, id, req.UserID) {
			return
		}

		event := "invite_declined"
		if req.Accept {
			event = "player_joined"
		}
		s, err := m.mutate(r.Context(), sessionCode(mux.Vars(r)["code"]), event,
			func(s *models.MultiplayerSession, now time.Time) error {
				return s.RespondInvite(id.UserID, strings.TrimSpace(req.Username), req.Accept, now)
			})
		if err != nil {
			sessionError(w, r, err, "")
			return
		}

		msg := "Invitation declined"
		if req.Accept {
			msg = "Invitation accepted"
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"message":     msg,
			"sessionCode": s.SessionCode,
			"status":      s.Status,
		})
	}
}

type sessionSummary struct {
	SessionCode  string            `json:"sessionCode"`
	HostID       uuid.UUID         `json:"hostId"`
	HostUsername string            `json:"hostUsername"`
	Visibility   string            `json:"visibility"`
	Status       string            `json:"status"`
	PlayerCount  int               `json:"playerCount"`
	MaxPlayers   int               `json:"maxPlayers"`
	QuizConfig   models.QuizConfig `json:"quizConfig"`
	CreatedAt    time.Time         `json:"createdAt"`
	InvitedBy    *uuid.UUID        `json:"invitedBy,omitempty"`
	InvitedAt    *time.Time        `json:"invitedAt,omitempty"`
}

func summarize(s *models.MultiplayerSession) sessionSummary {
	sum := sessionSummary{
		SessionCode: s.SessionCode,
		HostID:      s.HostID,
		Visibility:  s.Visibility,
		Status:      s.Status,
		PlayerCount: len(s.Players),
		MaxPlayers:  s.MaxPlayers,
		QuizConfig:  s.QuizConfig,
		CreatedAt:   s.CreatedAt,
	}
	if host, ok := s.Player(s.HostID); ok {
		sum.HostUsername = host.Username
	}
	return sum
}

// Invites lists sessions with a pending invitation for the caller.
func (m *Multiplayer) Invites() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := caller(w, r)
		if !ok {
			return
		}
		sessions, err := m.Sessions.ListInvitingSessions(r.Context(), id.UserID)
		if err != nil {
			serverError(w, r, err)
			return
		}

		invites := []sessionSummary{}
		for _, s := range sessions {
			for _, inv := range s.InvitedPlayers {
				if inv.UserID != id.UserID || inv.Status != models.InvitePending {
					continue
				}
				sum := summarize(s)
				sum.InvitedBy = &inv.InvitedBy
				sum.InvitedAt = &inv.InvitedAt
				invites = append(invites, sum)
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{"invites": invites})
	}
}

// Public lists joinable sessions: public ones for everybody, friends-only
// ones for friends of the host.
func (m *Multiplayer) Public() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessions, err := m.Sessions.ListOpenSessions(r.Context(), openSessions)
		if err != nil {
			serverError(w, r, err)
			return
		}

		var userID uuid.UUID
		friends := map[uuid.UUID]bool{}
		if id, ok := authIdentity(r); ok {
			userID = id.UserID
			list, err := m.Friends.ListFriends(r.Context(), userID)
			if err != nil {
				serverError(w, r, err)
				return
			}
			for _, f := range list {
				friends[f.UserID] = true
			}
		}

		open := []sessionSummary{}
		for _, s := range sessions {
			if s.VisibleTo(userID, friends) && len(s.Players) < s.MaxPlayers {
				open = append(open, summarize(s))
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{"sessions": open})
	}
}
