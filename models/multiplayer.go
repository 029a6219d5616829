// models/multiplayer.go
package models

import (
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
)

const (
	SessionWaiting    = "WAITING"
	SessionStarting   = "STARTING"
	SessionInProgress = "IN_PROGRESS"
	SessionFinished   = "FINISHED"

	VisibilityPublic      = "PUBLIC"
	VisibilityPrivate     = "PRIVATE"
	VisibilityFriendsOnly = "FRIENDS_ONLY"

	InvitePending  = "PENDING"
	InviteAccepted = "ACCEPTED"
	InviteDeclined = "DECLINED"

	DefaultMaxPlayers = 8
	MaxPlayersLimit   = 32
)

var (
	ErrSessionStarted    = errors.New("Session already started")
	ErrSessionFull       = errors.New("Session is full")
	ErrAlreadyJoined     = errors.New("You are already in this session")
	ErrNotHost           = errors.New("Only the host can do that")
	ErrPlayerNotFound    = errors.New("Player not found in session")
	ErrNoQuestions       = errors.New("Questions are required to start the session")
	ErrSessionNotStarted = errors.New("Session has not started")
	ErrAlreadyAnswered   = errors.New("Question already answered")
	ErrInvalidQuestion   = errors.New("Invalid question index")
	ErrSessionFinished   = errors.New("Session is finished")
	ErrNotInvited        = errors.New("No pending invitation for this session")
)

type Player struct {
	UserID          uuid.UUID `json:"userId"`
	Username        string    `json:"username"`
	Score           int       `json:"score"`
	IsHost          bool      `json:"isHost"`
	JoinedAt        time.Time `json:"joinedAt"`
	CurrentQuestion int       `json:"currentQuestion"`
	Finished        bool      `json:"finished"`
}

type Invite struct {
	UserID    uuid.UUID `json:"userId"`
	Username  string    `json:"username"`
	InvitedBy uuid.UUID `json:"invitedBy"`
	InvitedAt time.Time `json:"invitedAt"`
	Status    string    `json:"status"`
}

type QuizConfig struct {
	Source     string `json:"source"`
	Amount     int    `json:"amount"`
	Difficulty string `json:"difficulty"`
	Category   string `json:"category,omitempty"`
}

func DefaultQuizConfig() QuizConfig {
	return QuizConfig{Source: "opentdb", Amount: 10, Difficulty: "medium"}
}

// WithDefaults fills zero fields from DefaultQuizConfig.
func (c QuizConfig) WithDefaults() QuizConfig {
	d := DefaultQuizConfig()
	if c.Source == "" {
		c.Source = d.Source
	}
	if c.Amount <= 0 {
		c.Amount = d.Amount
	}
	if c.Amount > 50 {
		c.Amount = 50
	}
	if c.Difficulty == "" {
		c.Difficulty = d.Difficulty
	}
	return c
}

type MultiplayerSession struct {
	ID             uuid.UUID  `json:"sessionId"`
	SessionCode    string     `json:"sessionCode"`
	HostID         uuid.UUID  `json:"hostId"`
	Players        []Player   `json:"players"`
	MaxPlayers     int        `json:"maxPlayers"`
	Status         string     `json:"status"`
	Visibility     string     `json:"visibility"`
	QuizConfig     QuizConfig `json:"quizConfig"`
	Questions      []Question `json:"questions"`
	InvitedPlayers []Invite   `json:"invitedPlayers"`
	StartedAt      *time.Time `json:"startedAt"`
	FinishedAt     *time.Time `json:"finishedAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`

	// Version is bumped by the store on every successful save.
	Version int `json:"-"`
}

type LeaderboardRow struct {
	UserID          uuid.UUID `json:"userId"`
	Username        string    `json:"username"`
	Score           int       `json:"score"`
	IsHost          bool      `json:"isHost"`
	Finished        bool      `json:"finished"`
	CurrentQuestion int       `json:"currentQuestion"`
}

func ValidVisibility(v string) bool {
	return v == VisibilityPublic || v == VisibilityPrivate || v == VisibilityFriendsOnly
}

func NewSession(code string, host Player, cfg QuizConfig, visibility string, maxPlayers int, now time.Time) *MultiplayerSession {
	if maxPlayers <= 0 {
		maxPlayers = DefaultMaxPlayers
	}
	if maxPlayers > MaxPlayersLimit {
		maxPlayers = MaxPlayersLimit
	}
	if !ValidVisibility(visibility) {
		visibility = VisibilityPrivate
	}
	host.IsHost = true
	host.JoinedAt = now

	return &MultiplayerSession{
		ID:             uuid.New(),
		SessionCode:    code,
		HostID:         host.UserID,
		Players:        []Player{host},
		MaxPlayers:     maxPlayers,
		Status:         SessionWaiting,
		Visibility:     visibility,
		QuizConfig:     cfg.WithDefaults(),
		Questions:      []Question{},
		InvitedPlayers: []Invite{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func (s *MultiplayerSession) playerIndex(userID uuid.UUID) int {
	for i := range s.Players {
		if s.Players[i].UserID == userID {
			return i
		}
	}
	return -1
}

func (s *MultiplayerSession) Player(userID uuid.UUID) (*Player, bool) {
	i := s.playerIndex(userID)
	if i < 0 {
		return nil, false
	}
	return &s.Players[i], true
}

func (s *MultiplayerSession) IsHost(userID uuid.UUID) bool {
	return s.HostID == userID
}

func (s *MultiplayerSession) Join(p Player, now time.Time) error {
	if s.Status != SessionWaiting {
		return ErrSessionStarted
	}
	if len(s.Players) >= s.MaxPlayers {
		return ErrSessionFull
	}
	if s.playerIndex(p.UserID) >= 0 {
		return ErrAlreadyJoined
	}

	p.IsHost = false
	p.Score = 0
	p.CurrentQuestion = 0
	p.Finished = false
	p.JoinedAt = now
	s.Players = append(s.Players, p)
	s.UpdatedAt = now
	return nil
}

func (s *MultiplayerSession) Start(userID uuid.UUID, questions []Question, now time.Time) error {
	if !s.IsHost(userID) {
		return ErrNotHost
	}
	if s.Status != SessionWaiting {
		return ErrSessionStarted
	}
	if len(questions) == 0 {
		return ErrNoQuestions
	}

	s.Status = SessionInProgress
	s.Questions = questions
	s.StartedAt = &now
	s.UpdatedAt = now
	return nil
}

// RecordAnswer advances a player past questionIndex. Questions may be
// skipped but never answered twice. The session finishes once every
// player has reached the end.
func (s *MultiplayerSession) RecordAnswer(userID uuid.UUID, questionIndex int, isCorrect bool, now time.Time) (Player, error) {
	i := s.playerIndex(userID)
	if i < 0 {
		return Player{}, ErrPlayerNotFound
	}
	if s.Status != SessionInProgress {
		if s.Status == SessionFinished {
			return Player{}, ErrSessionFinished
		}
		return Player{}, ErrSessionNotStarted
	}
	if questionIndex < 0 || questionIndex >= len(s.Questions) {
		return Player{}, ErrInvalidQuestion
	}

	p := &s.Players[i]
	if p.Finished || questionIndex < p.CurrentQuestion {
		return *p, ErrAlreadyAnswered
	}

	if isCorrect {
		p.Score++
	}
	p.CurrentQuestion = questionIndex + 1
	if p.CurrentQuestion >= len(s.Questions) {
		p.Finished = true
	}
	s.UpdatedAt = now

	if s.allFinished() {
		s.finish(now)
	}
	return *p, nil
}

func (s *MultiplayerSession) allFinished() bool {
	if len(s.Players) == 0 {
		return false
	}
	for _, p := range s.Players {
		if !p.Finished {
			return false
		}
	}
	return true
}

func (s *MultiplayerSession) finish(now time.Time) {
	s.Status = SessionFinished
	s.FinishedAt = &now
	s.UpdatedAt = now
}

// Leave removes the player; the oldest remaining player inherits the host
// role. A session nobody is left in is finished.
func (s *MultiplayerSession) Leave(userID uuid.UUID, now time.Time) error {
	i := s.playerIndex(userID)
	if i < 0 {
		return ErrPlayerNotFound
	}
	s.Players = append(s.Players[:i], s.Players[i+1:]...)
	s.UpdatedAt = now

	if len(s.Players) == 0 {
		if s.Status != SessionFinished {
			s.finish(now)
		}
		return nil
	}
	if s.HostID == userID {
		s.HostID = s.Players[0].UserID
		s.Players[0].IsHost = true
	}
	if s.Status == SessionInProgress && s.allFinished() {
		s.finish(now)
	}
	return nil
}

func (s *MultiplayerSession) End(userID uuid.UUID, now time.Time) error {
	if !s.IsHost(userID) {
		return ErrNotHost
	}
	if s.Status == SessionFinished {
		return nil
	}
	s.finish(now)
	return nil
}

// Invite records pending invitations for friends who are neither playing
// nor already invited, returning how many were added.
func (s *MultiplayerSession) Invite(inviterID uuid.UUID, friends []Friend, now time.Time) (int, error) {
	if s.playerIndex(inviterID) < 0 {
		return 0, ErrPlayerNotFound
	}
	if s.Status == SessionFinished {
		return 0, ErrSessionFinished
	}

	added := 0
	for _, f := range friends {
		if s.playerIndex(f.UserID) >= 0 {
			continue
		}
		if j := s.inviteIndex(f.UserID); j >= 0 {
			if s.InvitedPlayers[j].Status == InvitePending {
				continue
			}
			s.InvitedPlayers[j].Status = InvitePending
			s.InvitedPlayers[j].InvitedAt = now
			s.InvitedPlayers[j].InvitedBy = inviterID
			added++
			continue
		}
		s.InvitedPlayers = append(s.InvitedPlayers, Invite{
			UserID:    f.UserID,
			Username:  f.Username,
			InvitedBy: inviterID,
			InvitedAt: now,
			Status:    InvitePending,
		})
		added++
	}
	if added > 0 {
		s.UpdatedAt = now
	}
	return added, nil
}

func (s *MultiplayerSession) inviteIndex(userID uuid.UUID) int {
	for i := range s.InvitedPlayers {
		if s.InvitedPlayers[i].UserID == userID {
			return i
		}
	}
	return -1
}

func (s *MultiplayerSession) HasPendingInvite(userID uuid.UUID) bool {
	i := s.inviteIndex(userID)
	return i >= 0 && s.InvitedPlayers[i].Status == InvitePending
}

// RespondInvite accepts or declines a pending invitation. Accepting joins
// the session; if joining fails the invitation stays pending.
func (s *MultiplayerSession) RespondInvite(userID uuid.UUID, username string, accept bool, now time.Time) error {
	i := s.inviteIndex(userID)
	if i < 0 || s.InvitedPlayers[i].Status != InvitePending {
		return ErrNotInvited
	}
	if accept {
		if username == "" {
			username = s.InvitedPlayers[i].Username
		}
		if err := s.Join(Player{UserID: userID, Username: username}, now); err != nil {
			return err
		}
		s.InvitedPlayers[i].Status = InviteAccepted
	} else {
		s.InvitedPlayers[i].Status = InviteDeclined
	}
	s.UpdatedAt = now
	return nil
}

// Leaderboard orders players by score, keeping join order for ties.
func (s *MultiplayerSession) Leaderboard() []LeaderboardRow {
	rows := make([]LeaderboardRow, 0, len(s.Players))
	for _, p := range s.Players {
		rows = append(rows, LeaderboardRow{
			UserID:          p.UserID,
			Username:        p.Username,
			Score:           p.Score,
			IsHost:          p.IsHost,
			Finished:        p.Finished,
			CurrentQuestion: p.CurrentQuestion,
		})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Score > rows[j].Score
	})
	return rows
}

// VisibleTo reports whether a waiting session may be listed for a user.
func (s *MultiplayerSession) VisibleTo(userID uuid.UUID, friends map[uuid.UUID]bool) bool {
	if s.Status != SessionWaiting {
		return false
	}
	switch s.Visibility {
	case VisibilityPublic:
		return true
	case VisibilityFriendsOnly:
		return s.HostID == userID || friends[s.HostID]
	default:
		return s.HostID == userID || s.HasPendingInvite(userID)
	}
}
