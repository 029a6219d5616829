package database

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"quiz-platform/models"

	"github.com/google/uuid"
)

const userColumns = `id, username, email, password_hash, name, role, email_verified,
	COALESCE(verification_token, ''), verification_expires, created_at, updated_at, last_login`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var u models.User
	var expires, lastLogin sql.NullTime
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Name, &u.Role, &u.EmailVerified,
		&u.VerificationToken, &expires, &u.CreatedAt, &u.UpdatedAt, &lastLogin)
	if err != nil {
		return nil, err
	}
	if expires.Valid {
		u.VerificationExpires = &expires.Time
	}
	if lastLogin.Valid {
		u.LastLogin = &lastLogin.Time
	}
	return &u, nil
}

func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	var token any
	if u.VerificationToken != "" {
		token = u.VerificationToken
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, username, email, password_hash, name, role, email_verified,
			verification_token, verification_expires, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		u.ID, u.Username, u.Email, u.PasswordHash, u.Name, u.Role, u.EmailVerified,
		token, u.VerificationExpires, u.CreatedAt, u.UpdatedAt)
	return mapErr("create user", err)
}

func (s *Store) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	return u, mapErr("get user", err)
}

// FindUserByLogin matches either the username or the email address.
func (s *Store) FindUserByLogin(ctx context.Context, login string) (*models.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = $1 OR email = $2 LIMIT 1`,
		login, strings.ToLower(login)))
	return u, mapErr("find user", err)
}

// FindUserConflict returns a user already holding username or email.
func (s *Store) FindUserConflict(ctx context.Context, username, email string) (*models.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1 OR username = $2 LIMIT 1`, email, username))
	return u, mapErr("find user", err)
}

func (s *Store) FindUserByVerificationToken(ctx context.Context, token string) (*models.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE verification_token = $1`, token))
	return u, mapErr("find user by token", err)
}

func (s *Store) UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET last_login = $1 WHERE id = $2`, at, id)
	if err != nil {
		return mapErr("update last login", err)
	}
	return expectOne(res, "update last login")
}

func (s *Store) UpdateUserName(ctx context.Context, id uuid.UUID, name string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET name = $1, updated_at = NOW() WHERE id = $2`, name, id)
	if err != nil {
		return mapErr("update user", err)
	}
	return expectOne(res, "update user")
}

func (s *Store) UpdatePassword(ctx context.Context, id uuid.UUID, hash string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET password_hash = $1, updated_at = NOW() WHERE id = $2`, hash, id)
	if err != nil {
		return mapErr("update password", err)
	}
	return expectOne(res, "update password")
}

func (s *Store) SetVerificationToken(ctx context.Context, id uuid.UUID, token string, expires time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET verification_token = $1, verification_expires = $2, updated_at = NOW()
		WHERE id = $3`, token, expires, id)
	if err != nil {
		return mapErr("set verification token", err)
	}
	return expectOne(res, "set verification token")
}

// MarkEmailVerified flags the address as verified and clears any pending token.
func (s *Store) MarkEmailVerified(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET email_verified = TRUE, verification_token = NULL,
			verification_expires = NULL, updated_at = NOW()
		WHERE id = $1`, id)
	if err != nil {
		return mapErr("verify email", err)
	}
	return expectOne(res, "verify email")
}

// SearchUsers does a case-insensitive substring match on username, name
// and email, leaving out the caller.
func (s *Store) SearchUsers(ctx context.Context, query string, exclude uuid.UUID, limit int) ([]models.PublicUser, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, username, email, name, email_verified FROM users
		WHERE id <> $1 AND (username ILIKE $2 OR name ILIKE $2 OR email ILIKE $2)
		ORDER BY username
		LIMIT $3`, exclude, likePattern(query), limit)
	if err != nil {
		return nil, mapErr("search users", err)
	}
	defer rows.Close()

	users := []models.PublicUser{}
	for rows.Next() {
		var u models.PublicUser
		if err := rows.Scan(&u.ID, &u.Username, &u.Email, &u.Name, &u.EmailVerified); err != nil {
			return nil, mapErr("search users", err)
		}
		users = append(users, u)
	}
	return users, mapErr("search users", rows.Err())
}

func (s *Store) SetEmailVerified(ctx context.Context, id uuid.UUID, verified bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET email_verified = $1, updated_at = NOW() WHERE id = $2`, verified, id)
	if err != nil {
		return mapErr("set email verified", err)
	}
	return expectOne(res, "set email verified")
}
