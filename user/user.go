package user

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID                uuid.UUID `json:"id"`
	Name              string    `json:"name"`
	Email             string    `json:"email"`
	PreferredCurrency string    `json:"preferred_currency"`
	PasswordHash      string    `json:"-"`
	CreatedAt         time.Time `json:"created_at"`
}

// FriendRequest is a pending invitation from one user to another. Accepting it
// makes the friendship mutual; the request rows disappear.
type FriendRequest struct {
	FromID    uuid.UUID `json:"from_id"`
	ToID      uuid.UUID `json:"to_id"`
	CreatedAt time.Time `json:"created_at"`
}

type Repository interface {
	Register(ctx context.Context, email, password string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	VerifyPassword(hashedPassword, password string) error
	UpdateName(ctx context.Context, userID uuid.UUID, name string) error
	UpdateCurrency(ctx context.Context, userID uuid.UUID, currency string) error

	Friends(ctx context.Context, userID uuid.UUID) ([]User, error)
	SendFriendRequest(ctx context.Context, fromID uuid.UUID, toEmail string) error
	AcceptFriendRequest(ctx context.Context, userID, fromID uuid.UUID) error
	IncomingRequests(ctx context.Context, userID uuid.UUID) ([]FriendRequest, error)
	OutgoingRequests(ctx context.Context, userID uuid.UUID) ([]FriendRequest, error)
}
