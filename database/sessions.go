package database

import (
	"context"
	"database/sql"
	"fmt"

	"quiz-platform/models"

	"github.com/google/uuid"
)

const sessionColumns = `id, session_code, host_id, status, visibility, max_players, quiz_config,
	players, questions, invited_players, started_at, finished_at, version, created_at, updated_at`

func scanSession(row rowScanner) (*models.MultiplayerSession, error) {
	var m models.MultiplayerSession
	var cfg, players, questions, invites []byte
	var started, finished sql.NullTime
	err := row.Scan(&m.ID, &m.SessionCode, &m.HostID, &m.Status, &m.Visibility, &m.MaxPlayers, &cfg,
		&players, &questions, &invites, &started, &finished, &m.Version, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if started.Valid {
		m.StartedAt = &started.Time
	}
	if finished.Valid {
		m.FinishedAt = &finished.Time
	}

	m.Players = []models.Player{}
	m.Questions = []models.Question{}
	m.InvitedPlayers = []models.Invite{}
	for _, col := range []struct {
		raw []byte
		dst any
	}{{cfg, &m.QuizConfig}, {players, &m.Players}, {questions, &m.Questions}, {invites, &m.InvitedPlayers}} {
		if err := fromJSON(col.raw, col.dst); err != nil {
			return nil, err
		}
	}
	return &m, nil
}

type sessionDocs struct {
	cfg, players, questions, invites string
}

func encodeSession(m *models.MultiplayerSession) (sessionDocs, error) {
	var d sessionDocs
	var err error
	if d.cfg, err = toJSON(m.QuizConfig); err != nil {
		return d, err
	}
	if d.players, err = toJSON(m.Players); err != nil {
		return d, err
	}
	if d.questions, err = toJSON(m.Questions); err != nil {
		return d, err
	}
	d.invites, err = toJSON(m.InvitedPlayers)
	return d, err
}

// CreateSession stores a new session at version 1. A taken session code
// yields ErrDuplicate.
func (s *Store) CreateSession(ctx context.Context, m *models.MultiplayerSession) error {
	d, err := encodeSession(m)
	if err != nil {
		return err
	}
	m.Version = 1
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO multiplayer_sessions (`+sessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		m.ID, m.SessionCode, m.HostID, m.Status, m.Visibility, m.MaxPlayers, d.cfg,
		d.players, d.questions, d.invites, m.StartedAt, m.FinishedAt, m.Version, m.CreatedAt, m.UpdatedAt)
	return mapErr("create session", err)
}

func (s *Store) GetSession(ctx context.Context, code string) (*models.MultiplayerSession, error) {
	m, err := scanSession(s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM multiplayer_sessions WHERE session_code = $1`, code))
	return m, mapErr("get session", err)
}

// UpdateSession saves m if nobody else has saved it since it was loaded,
// otherwise it returns ErrConflict. On success m.Version is bumped.
func (s *Store) UpdateSession(ctx context.Context, m *models.MultiplayerSession) error {
	d, err := encodeSession(m)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE multiplayer_sessions
		SET host_id = $1, status = $2, visibility = $3, max_players = $4, quiz_config = $5,
		    players = $6, questions = $7, invited_players = $8, started_at = $9, finished_at = $10,
		    updated_at = $11, version = version + 1
		WHERE id = $12 AND version = $13`,
		m.HostID, m.Status, m.Visibility, m.MaxPlayers, d.cfg,
		d.players, d.questions, d.invites, m.StartedAt, m.FinishedAt,
		m.UpdatedAt, m.ID, m.Version)
	if err != nil {
		return mapErr("update session", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if n == 0 {
		return ErrConflict
	}
	m.Version++
	return nil
}

// ListOpenSessions returns waiting sessions that are public or friends-only,
// newest first. Callers filter friends-only ones with VisibleTo.
func (s *Store) ListOpenSessions(ctx context.Context, limit int) ([]*models.MultiplayerSession, error) {
	return s.listSessions(ctx, `
		SELECT `+sessionColumns+` FROM multiplayer_sessions
		WHERE status = 'WAITING' AND visibility IN ('PUBLIC', 'FRIENDS_ONLY')
		ORDER BY created_at DESC
		LIMIT $1`, limit)
}

// ListInvitingSessions returns unfinished sessions holding a pending
// invitation for userID.
func (s *Store) ListInvitingSessions(ctx context.Context, userID uuid.UUID) ([]*models.MultiplayerSession, error) {
	filter, err := toJSON([]map[string]string{{"userId": userID.String(), "status": models.InvitePending}})
	if err != nil {
		return nil, err
	}
	return s.listSessions(ctx, `
		SELECT `+sessionColumns+` FROM multiplayer_sessions
		WHERE status <> 'FINISHED' AND invited_players @> $1::jsonb
		ORDER BY updated_at DESC`, filter)
}

func (s *Store) listSessions(ctx context.Context, query string, args ...any) ([]*models.MultiplayerSession, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapErr("list sessions", err)
	}
	defer rows.Close()

	sessions := []*models.MultiplayerSession{}
	for rows.Next() {
		m, err := scanSession(rows)
		if err != nil {
			return nil, mapErr("list sessions", err)
		}
		sessions = append(sessions, m)
	}
	return sessions, mapErr("list sessions", rows.Err())
}
