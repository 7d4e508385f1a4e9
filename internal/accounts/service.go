package accounts

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ziplyhq/ziply/internal/auth"
	"github.com/ziplyhq/ziply/internal/validation"
)

var (
	// ErrUserNotFound is returned when no user matches the lookup
	ErrUserNotFound = errors.New("user not found")

	// ErrDuplicateEmail is returned when the email is already registered
	ErrDuplicateEmail = errors.New("email address already registered")
)

const userColumns = `id, email, name, password_hash, is_active, is_staff, is_superuser, date_joined`

// Service provides user account operations
type Service struct {
	pool *pgxpool.Pool
}

// NewService creates a new accounts service
func NewService(pool *pgxpool.Pool) *Service {
	return &Service{pool: pool}
}

// Create creates a user with a normalized email and hashed password.
// Fails with validation.ErrEmailRequired on an empty email and
// ErrDuplicateEmail when the email is already taken.
func (s *Service) Create(ctx context.Context, email, name, password string) (*User, error) {
	return createUser(ctx, s.pool, email, name, password, false)
}

// CreateSuper creates a user with the staff and superuser flags forced on.
func (s *Service) CreateSuper(ctx context.Context, email, name, password string) (*User, error) {
	return createUser(ctx, s.pool, email, name, password, true)
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx, so user creation can
// participate in the composite transactions of the registration and
// invitation workflows.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func createUser(ctx context.Context, q querier, email, name, password string, super bool) (*User, error) {
	email, err := validation.NormalizeEmail(email)
	if err != nil {
		return nil, err
	}

	passwordHash, err := auth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	var user User
	query := `
		INSERT INTO users (id, email, name, password_hash, is_staff, is_superuser)
		VALUES ($1, $2, $3, $4, $5, $5)
		RETURNING ` + userColumns

	err = q.QueryRow(ctx, query, uuid.New(), email, name, passwordHash, super).Scan(
		&user.ID,
		&user.Email,
		&user.Name,
		&user.PasswordHash,
		&user.IsActive,
		&user.IsStaff,
		&user.IsSuperuser,
		&user.DateJoined,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
			return nil, ErrDuplicateEmail
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return &user, nil
}

// GetByEmail retrieves a user by normalized email
func (s *Service) GetByEmail(ctx context.Context, email string) (*User, error) {
	email, err := validation.NormalizeEmail(email)
	if err != nil {
		return nil, ErrUserNotFound
	}

	var user User
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`

	err = s.pool.QueryRow(ctx, query, email).Scan(
		&user.ID,
		&user.Email,
		&user.Name,
		&user.PasswordHash,
		&user.IsActive,
		&user.IsStaff,
		&user.IsSuperuser,
		&user.DateJoined,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return &user, nil
}

// GetByID retrieves a user by ID
func (s *Service) GetByID(ctx context.Context, userID uuid.UUID) (*User, error) {
	var user User
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	err := s.pool.QueryRow(ctx, query, userID).Scan(
		&user.ID,
		&user.Email,
		&user.Name,
		&user.PasswordHash,
		&user.IsActive,
		&user.IsStaff,
		&user.IsSuperuser,
		&user.DateJoined,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return &user, nil
}

// EmailExists reports whether a user with the normalized email exists.
func (s *Service) EmailExists(ctx context.Context, email string) (bool, error) {
	email, err := validation.NormalizeEmail(email)
	if err != nil {
		return false, err
	}

	var exists bool
	err = s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE email = $1)`, email).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check email: %w", err)
	}

	return exists, nil
}
