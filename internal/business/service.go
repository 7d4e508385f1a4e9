package business

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ziplyhq/ziply/internal/validation"
)

var (
	// ErrBusinessNotFound is returned when a business is not found
	ErrBusinessNotFound = errors.New("business not found")

	// ErrBusinessExists is returned when a business name or slug already exists
	ErrBusinessExists = errors.New("business already exists")

	// ErrNotMember is returned when a user is not a member of a business
	ErrNotMember = errors.New("user is not a member of this business")

	// ErrDuplicateMember is returned when the user is already a member
	ErrDuplicateMember = errors.New("user is already a member of this business")
)

const businessColumns = `id, name, slug, owner_id, created_at`

// Service provides business and membership operations
type Service struct {
	pool *pgxpool.Pool
}

// NewService creates a new business service
func NewService(pool *pgxpool.Pool) *Service {
	return &Service{pool: pool}
}

// DeriveSlug builds the business slug from its name and the owning user's ID.
// Deterministic so identically-named businesses of different owners never
// collide.
func DeriveSlug(name string, ownerID uuid.UUID) string {
	return validation.Slugify(fmt.Sprintf("%s-%s", name, ownerID.String()[:8]))
}

// GetByID retrieves a business by ID
func (s *Service) GetByID(ctx context.Context, businessID uuid.UUID) (*Business, error) {
	return getBusiness(ctx, s.pool, `WHERE id = $1`, businessID)
}

// GetBySlug retrieves a business by slug
func (s *Service) GetBySlug(ctx context.Context, slug string) (*Business, error) {
	return getBusiness(ctx, s.pool, `WHERE slug = $1`, slug)
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func getBusiness(ctx context.Context, q querier, where string, arg any) (*Business, error) {
	var b Business
	query := `SELECT ` + businessColumns + ` FROM businesses ` + where

	err := q.QueryRow(ctx, query, arg).Scan(
		&b.ID,
		&b.Name,
		&b.Slug,
		&b.OwnerID,
		&b.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBusinessNotFound
		}
		return nil, fmt.Errorf("failed to get business: %w", err)
	}

	return &b, nil
}

// CreateWithOwnerTx creates a business and its Owner membership inside the
// caller's transaction. The registration workflow supplies the transaction so
// the user, business, and membership become visible together or not at all.
func CreateWithOwnerTx(ctx context.Context, tx pgx.Tx, name string, ownerID uuid.UUID) (*Business, error) {
	var b Business
	query := `
		INSERT INTO businesses (id, name, slug, owner_id)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + businessColumns

	err := tx.QueryRow(ctx, query, uuid.New(), name, DeriveSlug(name, ownerID), ownerID).Scan(
		&b.ID,
		&b.Name,
		&b.Slug,
		&b.OwnerID,
		&b.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
			return nil, ErrBusinessExists
		}
		return nil, fmt.Errorf("failed to create business: %w", err)
	}

	memberQuery := `
		INSERT INTO business_members (business_id, user_id, role)
		VALUES ($1, $2, $3)
	`
	if _, err := tx.Exec(ctx, memberQuery, b.ID, ownerID, RoleOwner); err != nil {
		return nil, fmt.Errorf("failed to create owner membership: %w", err)
	}

	return &b, nil
}

// AddMember adds a user to a business with the given role.
// Fails with ErrDuplicateMember if the membership already exists.
func (s *Service) AddMember(ctx context.Context, businessID, userID uuid.UUID, role Role) (*Member, error) {
	var m Member
	query := `
		INSERT INTO business_members (business_id, user_id, role)
		VALUES ($1, $2, $3)
		RETURNING business_id, user_id, role, joined_at
	`

	err := s.pool.QueryRow(ctx, query, businessID, userID, role).Scan(
		&m.BusinessID,
		&m.UserID,
		&m.Role,
		&m.JoinedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
			return nil, ErrDuplicateMember
		}
		return nil, fmt.Errorf("failed to add member: %w", err)
	}

	return &m, nil
}

// ListMembers retrieves all members of a business with their user details
func (s *Service) ListMembers(ctx context.Context, businessID uuid.UUID) ([]MemberInfo, error) {
	query := `
		SELECT u.email, u.name, m.role, m.joined_at
		FROM business_members m
		INNER JOIN users u ON u.id = m.user_id
		WHERE m.business_id = $1
		ORDER BY m.joined_at ASC
	`

	rows, err := s.pool.Query(ctx, query, businessID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	var members []MemberInfo
	for rows.Next() {
		var member MemberInfo
		if err := rows.Scan(&member.Email, &member.Name, &member.Role, &member.JoinedAt); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, member)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating member rows: %w", err)
	}

	return members, nil
}

// GetMemberRole retrieves a user's role in a business.
// Returns ErrNotMember if the user is not a member.
func (s *Service) GetMemberRole(ctx context.Context, userID, businessID uuid.UUID) (Role, error) {
	var role Role

	query := `
		SELECT role FROM business_members
		WHERE business_id = $1 AND user_id = $2
	`

	err := s.pool.QueryRow(ctx, query, businessID, userID).Scan(&role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotMember
		}
		return "", fmt.Errorf("failed to get member role: %w", err)
	}

	return role, nil
}
