// models/friend.go
package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	RequestPending   = "PENDING"
	RequestAccepted  = "ACCEPTED"
	RequestDeclined  = "DECLINED"
	RequestCancelled = "CANCELLED"
)

// Friendship is one direction of a friend link; an accepted friendship
// is stored as two rows.
type Friendship struct {
	UserID      uuid.UUID `json:"userId"`
	FriendID    uuid.UUID `json:"friendId"`
	Status      string    `json:"status"`
	RequestedBy uuid.UUID `json:"requestedBy"`
	CreatedAt   time.Time `json:"createdAt"`
}

type Friend struct {
	UserID   uuid.UUID `json:"userId"`
	Username string    `json:"username"`
	Name     string    `json:"name"`
	Email    string    `json:"email"`
	AddedAt  time.Time `json:"addedAt"`
}

type FriendRequest struct {
	ID          uuid.UUID   `json:"id"`
	RequesterID uuid.UUID   `json:"requesterId"`
	RecipientID uuid.UUID   `json:"recipientId"`
	Requester   *PublicUser `json:"requester,omitempty"`
	Status      string      `json:"status"`
	Message     string      `json:"message"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}
