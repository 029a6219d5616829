// database/db.go
package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"
)

func Connect(ctx context.Context, url string) (*sql.DB, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Bağlantıyı test et
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxIdleTime(5 * time.Minute)

	slog.Info("database connected")
	return db, nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY,
		username VARCHAR(30) UNIQUE NOT NULL,
		email VARCHAR(254) UNIQUE NOT NULL,
		password_hash VARCHAR(255) NOT NULL,
		name VARCHAR(100) NOT NULL DEFAULT '',
		role VARCHAR(10) NOT NULL DEFAULT 'USER' CHECK (role IN ('USER', 'ADMIN')),
		email_verified BOOLEAN NOT NULL DEFAULT FALSE,
		verification_token VARCHAR(64),
		verification_expires TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		last_login TIMESTAMPTZ
	)`,

	`CREATE TABLE IF NOT EXISTS friend_requests (
		id UUID PRIMARY KEY,
		requester_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		recipient_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		status VARCHAR(10) NOT NULL DEFAULT 'PENDING'
			CHECK (status IN ('PENDING', 'ACCEPTED', 'DECLINED', 'CANCELLED')),
		message TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (requester_id, recipient_id)
	)`,

	`CREATE TABLE IF NOT EXISTS friendships (
		user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		friend_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		status VARCHAR(10) NOT NULL CHECK (status IN ('PENDING', 'ACCEPTED')),
		requested_by UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (user_id, friend_id)
	)`,

	`CREATE TABLE IF NOT EXISTS quizzes (
		id UUID PRIMARY KEY,
		title VARCHAR(200) NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		category VARCHAR(100) NOT NULL DEFAULT '',
		difficulty VARCHAR(20) NOT NULL DEFAULT '',
		status VARCHAR(10) NOT NULL DEFAULT 'DRAFT' CHECK (status IN ('DRAFT', 'PUBLISHED', 'ARCHIVED')),
		created_by UUID REFERENCES users(id) ON DELETE SET NULL,
		questions JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS attempts (
		id UUID PRIMARY KEY,
		user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		quiz_id UUID NOT NULL REFERENCES quizzes(id) ON DELETE CASCADE,
		score INTEGER NOT NULL DEFAULT 0,
		max_score INTEGER NOT NULL DEFAULT 0,
		started_at TIMESTAMPTZ NOT NULL,
		finished_at TIMESTAMPTZ NOT NULL,
		duration_ms BIGINT NOT NULL DEFAULT 0,
		answers JSONB NOT NULL DEFAULT '[]',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS multiplayer_sessions (
		id UUID PRIMARY KEY,
		session_code VARCHAR(6) UNIQUE NOT NULL,
		host_id UUID NOT NULL,
		status VARCHAR(12) NOT NULL DEFAULT 'WAITING'
			CHECK (status IN ('WAITING', 'STARTING', 'IN_PROGRESS', 'FINISHED')),
		visibility VARCHAR(12) NOT NULL DEFAULT 'PRIVATE'
			CHECK (visibility IN ('PUBLIC', 'PRIVATE', 'FRIENDS_ONLY')),
		max_players INTEGER NOT NULL DEFAULT 8,
		quiz_config JSONB NOT NULL,
		players JSONB NOT NULL DEFAULT '[]',
		questions JSONB NOT NULL DEFAULT '[]',
		invited_players JSONB NOT NULL DEFAULT '[]',
		started_at TIMESTAMPTZ,
		finished_at TIMESTAMPTZ,
		version INTEGER NOT NULL DEFAULT 1,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	// İndeksler
	`CREATE INDEX IF NOT EXISTS idx_friend_requests_recipient ON friend_requests(recipient_id, status)`,
	`CREATE INDEX IF NOT EXISTS idx_quizzes_status ON quizzes(status)`,
	`CREATE INDEX IF NOT EXISTS idx_attempts_user_id ON attempts(user_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_waiting ON multiplayer_sessions(status, visibility)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_invites ON multiplayer_sessions USING GIN (invited_players jsonb_path_ops)`,
}

// Migrate creates any missing tables and indexes. It is safe to run on
// every start.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	slog.Info("database schema up to date", "statements", len(schema))
	return nil
}
