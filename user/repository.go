package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kswiatek/debttracker/currency"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrEmailExists         = errors.New("email already exists")
	ErrInvalidEmail        = errors.New("invalid email format")
	ErrBlankPassword       = errors.New("password can't be blank")
	ErrUserNotFound        = errors.New("user not found")
	ErrSelfRequest         = errors.New("can't send a friend request to yourself")
	ErrAlreadyFriends      = errors.New("already friends")
	ErrRequestPending      = errors.New("friend request already pending")
	ErrNoPendingRequest    = errors.New("no pending friend request from that user")
	ErrUnsupportedCurrency = errors.New("unsupported currency")
)

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *repository {
	return &repository{db: db}
}

func (r *repository) Register(ctx context.Context, email, password string) (*User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, ErrInvalidEmail
	}

	if password == "" {
		return nil, ErrBlankPassword
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	user := &User{
		ID:                uuid.New(),
		Email:             email,
		PreferredCurrency: "USD",
		PasswordHash:      string(hashedPassword),
		CreatedAt:         time.Now().UTC(),
	}

	query := `INSERT INTO users (id, email, password_hash, preferred_currency, created_at) VALUES ($1, $2, $3, $4, $5)`
	_, err = r.db.ExecContext(ctx, query, user.ID, user.Email, user.PasswordHash, user.PreferredCurrency, user.CreatedAt)
	if err != nil {
		if strings.Contains(err.Error(), "users_email_key") {
			return nil, ErrEmailExists
		}
		return nil, fmt.Errorf("inserting user: %w", err)
	}

	return user, nil
}

func (r *repository) GetByEmail(ctx context.Context, email string) (*User, error) {
	query := `SELECT id, COALESCE(name, ''), email, password_hash, preferred_currency, created_at FROM users WHERE email = $1`
	return r.scanUser(r.db.QueryRowContext(ctx, query, strings.ToLower(strings.TrimSpace(email))))
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	query := `SELECT id, COALESCE(name, ''), email, password_hash, preferred_currency, created_at FROM users WHERE id = $1`
	return r.scanUser(r.db.QueryRowContext(ctx, query, id))
}

func (r *repository) scanUser(row *sql.Row) (*User, error) {
	var user User
	err := row.Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.PasswordHash,
		&user.PreferredCurrency,
		&user.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("querying user: %w", err)
	}
	return &user, nil
}

func (r *repository) VerifyPassword(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}

func (r *repository) UpdateName(ctx context.Context, userID uuid.UUID, name string) error {
	query := `UPDATE users SET name = $1 WHERE id = $2`
	_, err := r.db.ExecContext(ctx, query, name, userID)
	return err
}

// UpdateCurrency sets the display currency used when presenting balances.
func (r *repository) UpdateCurrency(ctx context.Context, userID uuid.UUID, code string) error {
	code = strings.ToUpper(strings.TrimSpace(code))
	if !currency.IsSupported(code) {
		return ErrUnsupportedCurrency
	}
	query := `UPDATE users SET preferred_currency = $1 WHERE id = $2`
	_, err := r.db.ExecContext(ctx, query, code, userID)
	return err
}

func (r *repository) Friends(ctx context.Context, userID uuid.UUID) ([]User, error) {
	query := `SELECT u.id, COALESCE(u.name, ''), u.email, u.password_hash, u.preferred_currency, u.created_at
              FROM users u
              INNER JOIN friendships f ON u.id = f.friend_id
              WHERE f.user_id = $1
              ORDER BY u.email ASC`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var friends []User
	for rows.Next() {
		var friend User
		err := rows.Scan(
			&friend.ID,
			&friend.Name,
			&friend.Email,
			&friend.PasswordHash,
			&friend.PreferredCurrency,
			&friend.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		friends = append(friends, friend)
	}

	return friends, rows.Err()
}

// SendFriendRequest records a pending request from fromID to the user owning
// toEmail. Duplicate and reversed pending requests are rejected so accepting
// stays unambiguous.
func (r *repository) SendFriendRequest(ctx context.Context, fromID uuid.UUID, toEmail string) error {
	to, err := r.GetByEmail(ctx, toEmail)
	if err != nil {
		return err
	}
	if to == nil {
		return ErrUserNotFound
	}
	if to.ID == fromID {
		return ErrSelfRequest
	}

	var exists bool
	err = r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM friendships WHERE user_id = $1 AND friend_id = $2)`,
		fromID, to.ID,
	).Scan(&exists)
	if err != nil {
		return err
	}
	if exists {
		return ErrAlreadyFriends
	}

	err = r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM friend_requests WHERE (from_id = $1 AND to_id = $2) OR (from_id = $2 AND to_id = $1))`,
		fromID, to.ID,
	).Scan(&exists)
	if err != nil {
		return err
	}
	if exists {
		return ErrRequestPending
	}

	query := `INSERT INTO friend_requests (from_id, to_id, created_at) VALUES ($1, $2, $3)`
	_, err = r.db.ExecContext(ctx, query, fromID, to.ID, time.Now().UTC())
	return err
}

// AcceptFriendRequest deletes the pending request and inserts the friendship
// in both directions inside one database transaction.
func (r *repository) AcceptFriendRequest(ctx context.Context, userID, fromID uuid.UUID) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `DELETE FROM friend_requests WHERE from_id = $1 AND to_id = $2`, fromID, userID)
	if err != nil {
		return err
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if deleted == 0 {
		return ErrNoPendingRequest
	}

	now := time.Now().UTC()
	insertFriendship := `INSERT INTO friendships (user_id, friend_id, created_at) VALUES ($1, $2, $3)`
	if _, err := tx.ExecContext(ctx, insertFriendship, userID, fromID, now); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, insertFriendship, fromID, userID, now); err != nil {
		return err
	}

	return tx.Commit()
}

func (r *repository) IncomingRequests(ctx context.Context, userID uuid.UUID) ([]FriendRequest, error) {
	return r.requests(ctx, `SELECT from_id, to_id, created_at FROM friend_requests WHERE to_id = $1 ORDER BY created_at DESC`, userID)
}

func (r *repository) OutgoingRequests(ctx context.Context, userID uuid.UUID) ([]FriendRequest, error) {
	return r.requests(ctx, `SELECT from_id, to_id, created_at FROM friend_requests WHERE from_id = $1 ORDER BY created_at DESC`, userID)
}

func (r *repository) requests(ctx context.Context, query string, userID uuid.UUID) ([]FriendRequest, error) {
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var requests []FriendRequest
	for rows.Next() {
		var request FriendRequest
		if err := rows.Scan(&request.FromID, &request.ToID, &request.CreatedAt); err != nil {
			return nil, err
		}
		requests = append(requests, request)
	}

	return requests, rows.Err()
}

var _ Repository = (*repository)(nil)
