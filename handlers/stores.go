package handlers

import (
	"context"
	"time"

	"quiz-platform/models"

	"github.com/google/uuid"
)

// The interfaces below are satisfied by *database.Store.

type UserStore interface {
	CreateUser(ctx context.Context, u *models.User) error
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	FindUserByLogin(ctx context.Context, login string) (*models.User, error)
	FindUserConflict(ctx context.Context, username, email string) (*models.User, error)
	FindUserByVerificationToken(ctx context.Context, token string) (*models.User, error)
	UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
	UpdateUserName(ctx context.Context, id uuid.UUID, name string) error
	UpdatePassword(ctx context.Context, id uuid.UUID, hash string) error
	SetVerificationToken(ctx context.Context, id uuid.UUID, token string, expires time.Time) error
	MarkEmailVerified(ctx context.Context, id uuid.UUID) error
	SetEmailVerified(ctx context.Context, id uuid.UUID, verified bool) error
	SearchUsers(ctx context.Context, query string, exclude uuid.UUID, limit int) ([]models.PublicUser, error)
}

type FriendStore interface {
	GetFriendship(ctx context.Context, userID, friendID uuid.UUID) (*models.Friendship, error)
	HasPendingRequest(ctx context.Context, a, b uuid.UUID) (bool, error)
	CreateFriendRequest(ctx context.Context, req *models.FriendRequest) error
	GetFriendRequest(ctx context.Context, id uuid.UUID) (*models.FriendRequest, error)
	ListPendingRequests(ctx context.Context, recipient uuid.UUID) ([]models.FriendRequest, error)
	AcceptFriendRequest(ctx context.Context, req *models.FriendRequest, now time.Time) error
	DeclineFriendRequest(ctx context.Context, req *models.FriendRequest, now time.Time) error
	ListFriends(ctx context.Context, userID uuid.UUID) ([]models.Friend, error)
	RemoveFriend(ctx context.Context, a, b uuid.UUID) error
}

type QuizStore interface {
	CreateQuiz(ctx context.Context, q *models.Quiz) error
	GetQuiz(ctx context.Context, id uuid.UUID) (*models.Quiz, error)
	ListPublishedQuizzes(ctx context.Context, search, category string, limit int) ([]models.Quiz, error)
	UpdateQuizStatus(ctx context.Context, id uuid.UUID, status string) error
	CreateAttempt(ctx context.Context, a *models.Attempt) error
	ListAttemptsByUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.Attempt, error)
}

type LeaderboardStore interface {
	Leaderboard(ctx context.Context, limit, offset int) ([]models.LeaderboardEntry, error)
	LeaderboardStats(ctx context.Context) (models.LeaderboardStats, error)
}

type SessionStore interface {
	CreateSession(ctx context.Context, m *models.MultiplayerSession) error
	GetSession(ctx context.Context, code string) (*models.MultiplayerSession, error)
	UpdateSession(ctx context.Context, m *models.MultiplayerSession) error
	ListOpenSessions(ctx context.Context, limit int) ([]*models.MultiplayerSession, error)
	ListInvitingSessions(ctx context.Context, userID uuid.UUID) ([]*models.MultiplayerSession, error)
}

// QuestionSource fetches questions for a multiplayer quiz config.
type QuestionSource interface {
	Fetch(ctx context.Context, cfg models.QuizConfig) ([]models.Question, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}
