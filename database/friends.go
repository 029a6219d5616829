package database

import (
	"context"
	"database/sql"
	"time"

	"quiz-platform/models"

	"github.com/google/uuid"
)

func (s *Store) GetFriendship(ctx context.Context, userID, friendID uuid.UUID) (*models.Friendship, error) {
	var f models.Friendship
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, friend_id, status, requested_by, created_at
		FROM friendships WHERE user_id = $1 AND friend_id = $2`, userID, friendID).
		Scan(&f.UserID, &f.FriendID, &f.Status, &f.RequestedBy, &f.CreatedAt)
	if err != nil {
		return nil, mapErr("get friendship", err)
	}
	return &f, nil
}

// HasPendingRequest reports whether a pending request exists in either
// direction between a and b.
func (s *Store) HasPendingRequest(ctx context.Context, a, b uuid.UUID) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM friend_requests
			WHERE status = 'PENDING'
			  AND ((requester_id = $1 AND recipient_id = $2) OR (requester_id = $2 AND recipient_id = $1))
		)`, a, b).Scan(&exists)
	return exists, mapErr("pending request", err)
}

// CreateFriendRequest inserts the request, or resets a stale one for the
// same pair to PENDING, and records the requester's pending friendship.
// req.ID is updated to the stored row's id.
func (s *Store) CreateFriendRequest(ctx context.Context, req *models.FriendRequest) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `
			INSERT INTO friend_requests (id, requester_id, recipient_id, status, message, created_at, updated_at)
			VALUES ($1, $2, $3, 'PENDING', $4, $5, $5)
			ON CONFLICT (requester_id, recipient_id) DO UPDATE
			SET status = 'PENDING', message = EXCLUDED.message, updated_at = EXCLUDED.updated_at
			RETURNING id`,
			req.ID, req.RequesterID, req.RecipientID, req.Message, req.CreatedAt).Scan(&req.ID)
		if err != nil {
			return mapErr("create friend request", err)
		}
		req.Status = models.RequestPending

		_, err = tx.ExecContext(ctx, `
			INSERT INTO friendships (user_id, friend_id, status, requested_by, created_at)
			VALUES ($1, $2, 'PENDING', $1, $3)
			ON CONFLICT (user_id, friend_id) DO NOTHING`,
			req.RequesterID, req.RecipientID, req.CreatedAt)
		return mapErr("create friendship", err)
	})
}

func (s *Store) GetFriendRequest(ctx context.Context, id uuid.UUID) (*models.FriendRequest, error) {
	var r models.FriendRequest
	err := s.db.QueryRowContext(ctx, `
		SELECT id, requester_id, recipient_id, status, message, created_at, updated_at
		FROM friend_requests WHERE id = $1`, id).
		Scan(&r.ID, &r.RequesterID, &r.RecipientID, &r.Status, &r.Message, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, mapErr("get friend request", err)
	}
	return &r, nil
}

// ListPendingRequests returns requests received by recipient, newest first.
func (s *Store) ListPendingRequests(ctx context.Context, recipient uuid.UUID) ([]models.FriendRequest, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.requester_id, r.recipient_id, r.status, r.message, r.created_at, r.updated_at,
		       u.username, u.email, u.name, u.email_verified
		FROM friend_requests r
		JOIN users u ON u.id = r.requester_id
		WHERE r.recipient_id = $1 AND r.status = 'PENDING'
		ORDER BY r.created_at DESC`, recipient)
	if err != nil {
		return nil, mapErr("list friend requests", err)
	}
	defer rows.Close()

	requests := []models.FriendRequest{}
	for rows.Next() {
		var r models.FriendRequest
		var u models.PublicUser
		if err := rows.Scan(&r.ID, &r.RequesterID, &r.RecipientID, &r.Status, &r.Message, &r.CreatedAt, &r.UpdatedAt,
			&u.Username, &u.Email, &u.Name, &u.EmailVerified); err != nil {
			return nil, mapErr("list friend requests", err)
		}
		u.ID = r.RequesterID
		r.Requester = &u
		requests = append(requests, r)
	}
	return requests, mapErr("list friend requests", rows.Err())
}

// AcceptFriendRequest marks the request accepted and stores the friendship
// in both directions.
func (s *Store) AcceptFriendRequest(ctx context.Context, req *models.FriendRequest, now time.Time) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE friend_requests SET status = 'ACCEPTED', updated_at = $1
			WHERE id = $2 AND status = 'PENDING'`, now, req.ID)
		if err != nil {
			return mapErr("accept friend request", err)
		}
		if err := expectOne(res, "accept friend request"); err != nil {
			return ErrConflict
		}

		for _, pair := range [][2]uuid.UUID{{req.RequesterID, req.RecipientID}, {req.RecipientID, req.RequesterID}} {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO friendships (user_id, friend_id, status, requested_by, created_at)
				VALUES ($1, $2, 'ACCEPTED', $3, $4)
				ON CONFLICT (user_id, friend_id) DO UPDATE SET status = 'ACCEPTED'`,
				pair[0], pair[1], req.RequesterID, now)
			if err != nil {
				return mapErr("accept friendship", err)
			}
		}
		req.Status = models.RequestAccepted
		req.UpdatedAt = now
		return nil
	})
}

func (s *Store) DeclineFriendRequest(ctx context.Context, req *models.FriendRequest, now time.Time) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE friend_requests SET status = 'DECLINED', updated_at = $1
			WHERE id = $2 AND status = 'PENDING'`, now, req.ID)
		if err != nil {
			return mapErr("decline friend request", err)
		}
		if err := expectOne(res, "decline friend request"); err != nil {
			return ErrConflict
		}

		_, err = tx.ExecContext(ctx, `
			DELETE FROM friendships
			WHERE status = 'PENDING'
			  AND ((user_id = $1 AND friend_id = $2) OR (user_id = $2 AND friend_id = $1))`,
			req.RequesterID, req.RecipientID)
		if err != nil {
			return mapErr("decline friendship", err)
		}
		req.Status = models.RequestDeclined
		req.UpdatedAt = now
		return nil
	})
}

// ListFriends returns the accepted friends of userID ordered by username.
func (s *Store) ListFriends(ctx context.Context, userID uuid.UUID) ([]models.Friend, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT u.id, u.username, u.name, u.email, f.created_at
		FROM friendships f
		JOIN users u ON u.id = f.friend_id
		WHERE f.user_id = $1 AND f.status = 'ACCEPTED'
		ORDER BY u.username`, userID)
	if err != nil {
		return nil, mapErr("list friends", err)
	}
	defer rows.Close()

	friends := []models.Friend{}
	for rows.Next() {
		var f models.Friend
		if err := rows.Scan(&f.UserID, &f.Username, &f.Name, &f.Email, &f.AddedAt); err != nil {
			return nil, mapErr("list friends", err)
		}
		friends = append(friends, f)
	}
	return friends, mapErr("list friends", rows.Err())
}

// RemoveFriend deletes the friendship in both directions and cancels every
// request between the pair.
func (s *Store) RemoveFriend(ctx context.Context, a, b uuid.UUID) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			DELETE FROM friendships
			WHERE (user_id = $1 AND friend_id = $2) OR (user_id = $2 AND friend_id = $1)`, a, b)
		if err != nil {
			return mapErr("remove friend", err)
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE friend_requests SET status = 'CANCELLED', updated_at = NOW()
			WHERE (requester_id = $1 AND recipient_id = $2) OR (requester_id = $2 AND recipient_id = $1)`, a, b)
		return mapErr("cancel friend requests", err)
	})
}
