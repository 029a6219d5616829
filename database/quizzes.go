package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"quiz-platform/models"

	"github.com/google/uuid"
)

const quizColumns = `id, title, description, category, difficulty, status, created_by, questions, created_at, updated_at`

func scanQuiz(row rowScanner) (*models.Quiz, error) {
	var q models.Quiz
	var createdBy uuid.NullUUID
	var questions []byte
	err := row.Scan(&q.ID, &q.Title, &q.Description, &q.Category, &q.Difficulty, &q.Status,
		&createdBy, &questions, &q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if createdBy.Valid {
		q.CreatedBy = &createdBy.UUID
	}
	q.Questions = []models.Question{}
	if err := fromJSON(questions, &q.Questions); err != nil {
		return nil, err
	}
	return &q, nil
}

func (s *Store) CreateQuiz(ctx context.Context, q *models.Quiz) error {
	questions, err := toJSON(q.Questions)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO quizzes (`+quizColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		q.ID, q.Title, q.Description, q.Category, q.Difficulty, q.Status,
		q.CreatedBy, questions, q.CreatedAt, q.UpdatedAt)
	return mapErr("create quiz", err)
}

func (s *Store) GetQuiz(ctx context.Context, id uuid.UUID) (*models.Quiz, error) {
	q, err := scanQuiz(s.db.QueryRowContext(ctx, `SELECT `+quizColumns+` FROM quizzes WHERE id = $1`, id))
	return q, mapErr("get quiz", err)
}

// ListPublishedQuizzes filters by a title substring and exact category
// when they are non-empty.
func (s *Store) ListPublishedQuizzes(ctx context.Context, search, category string, limit int) ([]models.Quiz, error) {
	where := []string{"status = 'PUBLISHED'"}
	args := []any{}
	if search != "" {
		args = append(args, likePattern(search))
		where = append(where, fmt.Sprintf("title ILIKE $%d", len(args)))
	}
	if category != "" {
		args = append(args, category)
		where = append(where, fmt.Sprintf("category = $%d", len(args)))
	}
	args = append(args, limit)

	query := fmt.Sprintf(`SELECT %s FROM quizzes WHERE %s ORDER BY created_at DESC LIMIT $%d`,
		quizColumns, strings.Join(where, " AND "), len(args))
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapErr("list quizzes", err)
	}
	defer rows.Close()

	quizzes := []models.Quiz{}
	for rows.Next() {
		q, err := scanQuiz(rows)
		if err != nil {
			return nil, mapErr("list quizzes", err)
		}
		quizzes = append(quizzes, *q)
	}
	return quizzes, mapErr("list quizzes", rows.Err())
}

func (s *Store) UpdateQuizStatus(ctx context.Context, id uuid.UUID, status string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE quizzes SET status = $1, updated_at = NOW() WHERE id = $2`, status, id)
	if err != nil {
		return mapErr("update quiz status", err)
	}
	return expectOne(res, "update quiz status")
}

func (s *Store) CreateAttempt(ctx context.Context, a *models.Attempt) error {
	answers, err := toJSON(a.Answers)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO attempts (id, user_id, quiz_id, score, max_score, started_at, finished_at, duration_ms, answers, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		a.ID, a.UserID, a.QuizID, a.Score, a.MaxScore, a.StartedAt, a.FinishedAt, a.DurationMs, answers, a.CreatedAt)
	return mapErr("create attempt", err)
}

// ListAttemptsByUser returns the user's attempts newest first. A limit of
// zero returns all of them.
func (s *Store) ListAttemptsByUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.Attempt, error) {
	var limitArg sql.NullInt64
	if limit > 0 {
		limitArg = sql.NullInt64{Int64: int64(limit), Valid: true}
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.id, a.user_id, a.quiz_id, q.title, a.score, a.max_score,
		       a.started_at, a.finished_at, a.duration_ms, a.answers, a.created_at
		FROM attempts a
		JOIN quizzes q ON q.id = a.quiz_id
		WHERE a.user_id = $1
		ORDER BY a.created_at DESC
		LIMIT $2`, userID, limitArg)
	if err != nil {
		return nil, mapErr("list attempts", err)
	}
	defer rows.Close()

	attempts := []models.Attempt{}
	for rows.Next() {
		var a models.Attempt
		var answers []byte
		if err := rows.Scan(&a.ID, &a.UserID, &a.QuizID, &a.QuizTitle, &a.Score, &a.MaxScore,
			&a.StartedAt, &a.FinishedAt, &a.DurationMs, &answers, &a.CreatedAt); err != nil {
			return nil, mapErr("list attempts", err)
		}
		a.Answers = []models.Answer{}
		if err := fromJSON(answers, &a.Answers); err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	return attempts, mapErr("list attempts", rows.Err())
}

// Leaderboard ranks users by their total score over all attempts.
func (s *Store) Leaderboard(ctx context.Context, limit, offset int) ([]models.LeaderboardEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT u.id, u.username, u.name,
		       COALESCE(SUM(a.score), 0) AS total_score,
		       COALESCE(SUM(a.max_score), 0) AS total_possible,
		       COUNT(a.id) AS attempts
		FROM users u
		JOIN attempts a ON a.user_id = u.id
		GROUP BY u.id, u.username, u.name
		ORDER BY total_score DESC, attempts ASC, u.username ASC
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, mapErr("leaderboard", err)
	}
	defer rows.Close()

	entries := []models.LeaderboardEntry{}
	for rows.Next() {
		var e models.LeaderboardEntry
		if err := rows.Scan(&e.UserID, &e.Username, &e.Name, &e.TotalScore, &e.TotalPossible, &e.Attempts); err != nil {
			return nil, mapErr("leaderboard", err)
		}
		e.Rank = offset + len(entries) + 1
		if e.TotalPossible > 0 {
			e.Accuracy = e.TotalScore * 100 / e.TotalPossible
		}
		entries = append(entries, e)
	}
	return entries, mapErr("leaderboard", rows.Err())
}

func (s *Store) LeaderboardStats(ctx context.Context) (models.LeaderboardStats, error) {
	var st models.LeaderboardStats
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT user_id), COUNT(*), COALESCE(SUM(score), 0) FROM attempts`).
		Scan(&st.TotalUsers, &st.TotalAttempts, &st.TotalCorrect)
	return st, mapErr("leaderboard stats", err)
}
