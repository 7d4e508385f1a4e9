package business

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/ziplyhq/ziply/internal/auth"
	"github.com/ziplyhq/ziply/internal/signing"
	"github.com/ziplyhq/ziply/internal/validation"
)

// InviteTokenMaxAge bounds how long after issuance an invitation token
// remains acceptable.
const InviteTokenMaxAge = 24 * time.Hour

// InviteMailer delivers invitation emails out-of-band. Enqueueing must be
// fast and non-blocking; delivery failures are the mailer's to log.
type InviteMailer interface {
	SendInvitation(email, token, businessName, invitedByName string)
}

// InviteService orchestrates the invitation workflow: issuing signed invite
// tokens, validating them for the confirmation page, and accepting them into
// a new user and membership.
type InviteService struct {
	pool   *pgxpool.Pool
	signer *signing.Signer
	mailer InviteMailer
}

// NewInviteService creates a new invitation service
func NewInviteService(pool *pgxpool.Pool, signer *signing.Signer, mailer InviteMailer) *InviteService {
	return &InviteService{pool: pool, signer: signer, mailer: mailer}
}

// InviteDetails is the read-only view of a validated invitation returned to
// the confirmation landing page.
type InviteDetails struct {
	Email        string
	Role         Role
	BusinessID   uuid.UUID
	BusinessName string
}

// CreateInvite issues an invitation for email to join the business at the
// given role, persists it, and enqueues the invitation email. The inviter's
// authority (role >= Manager in this business) is enforced upstream by the
// tenant middleware.
func (s *InviteService) CreateInvite(ctx context.Context, b *Business, inviterID uuid.UUID, inviterName, email string, role Role) (*Invite, error) {
	email, err := validation.NormalizeEmail(email)
	if err != nil {
		return nil, err
	}
	// RFC-quoted local parts can carry the payload separator; a token signed
	// over such an address would never parse back, leaving an invite that
	// occupies the (email, business) slot but cannot be accepted.
	if strings.Contains(email, payloadSep) {
		return nil, validation.ErrEmailInvalid
	}

	if !role.IsValid() {
		return nil, ErrInvalidRole
	}
	if role == RoleOwner {
		return nil, ErrCannotInviteOwner
	}

	// One invite per (email, business). Accepted and pending invites are
	// distinct conditions so the caller gets an accurate message.
	var accepted bool
	err = s.pool.QueryRow(ctx, `
		SELECT is_accepted FROM business_invites
		WHERE email = $1 AND business_id = $2
	`, email, b.ID).Scan(&accepted)
	switch {
	case err == nil && accepted:
		return nil, ErrInviteAlreadyAccepted
	case err == nil:
		return nil, ErrInvitePending
	case !errors.Is(err, pgx.ErrNoRows):
		return nil, fmt.Errorf("failed to check existing invites: %w", err)
	}

	token := s.signer.Sign(FormatInvitePayload(email, b.ID, role))

	var invite Invite
	err = s.pool.QueryRow(ctx, `
		INSERT INTO business_invites (id, email, business_id, role, token, invited_by_user_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, email, business_id, role, token, invited_by_user_id, is_accepted, created_at
	`, uuid.New(), email, b.ID, role, token, inviterID).Scan(
		&invite.ID,
		&invite.Email,
		&invite.BusinessID,
		&invite.Role,
		&invite.Token,
		&invite.InvitedByUserID,
		&invite.IsAccepted,
		&invite.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
			// Lost a race with a concurrent invite for the same pair.
			return nil, ErrInvitePending
		}
		return nil, fmt.Errorf("failed to create invite: %w", err)
	}

	// Fire-and-forget: a failed send never rolls back the invite.
	s.mailer.SendInvitation(email, token, b.Name, inviterName)

	log.Info().
		Str("business_id", b.ID.String()).
		Str("email", email).
		Str("role", string(role)).
		Msg("Invitation created")

	return &invite, nil
}

// ValidateInvite verifies a token's signature and age, parses its claim, and
// checks that a matching unaccepted invite still exists. Read-only: state is
// unchanged. Signature and expiry failures surface as the signing package's
// errors.
func (s *InviteService) ValidateInvite(ctx context.Context, token string) (*InviteDetails, error) {
	payload, err := s.signer.Unsign(token, InviteTokenMaxAge)
	if err != nil {
		return nil, err
	}

	p, err := ParseInvitePayload(payload)
	if err != nil {
		return nil, err
	}

	b, err := getBusiness(ctx, s.pool, `WHERE id = $1`, p.BusinessID)
	if err != nil {
		return nil, err
	}
	if b.ID != p.BusinessID {
		return nil, ErrBusinessNotFound
	}

	var exists bool
	err = s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM business_invites
			WHERE email = $1 AND business_id = $2 AND token = $3 AND NOT is_accepted
		)
	`, p.Email, b.ID, token).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("failed to look up invite: %w", err)
	}
	if !exists {
		return nil, ErrInviteNotFound
	}

	return &InviteDetails{
		Email:        p.Email,
		Role:         p.Role,
		BusinessID:   b.ID,
		BusinessName: b.Name,
	}, nil
}

// AcceptInvite consumes a validated invitation: it creates the user with the
// given password, adds the membership at the role embedded in the token, and
// marks the invite accepted, all in one transaction. The accepted flag is
// re-checked at write time so concurrent acceptances of the same invite
// resolve to exactly one winner; the loser fails with ErrInviteNotFound.
func (s *InviteService) AcceptInvite(ctx context.Context, token, password string) (*InviteDetails, error) {
	details, err := s.ValidateInvite(ctx, token)
	if err != nil {
		return nil, err
	}

	if err := validation.ValidatePassword(password); err != nil {
		return nil, err
	}

	var userExists bool
	err = s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE email = $1)`, details.Email).Scan(&userExists)
	if err != nil {
		return nil, fmt.Errorf("failed to check user: %w", err)
	}
	if userExists {
		return nil, s.classifyExistingUser(ctx, details, token)
	}

	passwordHash, err := auth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	// Display name defaults to the email's local part.
	name := details.Email
	if at := strings.Index(name, "@"); at > 0 {
		name = name[:at]
	}

	var userID uuid.UUID
	err = tx.QueryRow(ctx, `
		INSERT INTO users (id, email, name, password_hash)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, uuid.New(), details.Email, name, passwordHash).Scan(&userID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
			return nil, s.classifyExistingUser(ctx, details, token)
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO business_members (business_id, user_id, role)
		VALUES ($1, $2, $3)
	`, details.BusinessID, userID, details.Role)
	if err != nil {
		return nil, fmt.Errorf("failed to create membership: %w", err)
	}

	tag, err := tx.Exec(ctx, `
		UPDATE business_invites
		SET is_accepted = TRUE
		WHERE email = $1 AND business_id = $2 AND token = $3 AND NOT is_accepted
	`, details.Email, details.BusinessID, token)
	if err != nil {
		return nil, fmt.Errorf("failed to mark invite accepted: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// The invite vanished or was accepted between validation and write.
		return nil, ErrInviteNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.Info().
		Str("business_id", details.BusinessID.String()).
		Str("email", details.Email).
		Str("role", string(details.Role)).
		Msg("Invitation accepted")

	return details, nil
}

// classifyExistingUser decides what an acceptance failure on an
// already-registered email means. If the invite is no longer pending, a
// concurrent acceptance consumed it between this request's validation and
// its write, and the caller gets ErrInviteNotFound rather than a sign-in
// hint for an account that is not theirs. A still-pending invite means the
// address was registered independently, which is ErrUserExists.
func (s *InviteService) classifyExistingUser(ctx context.Context, details *InviteDetails, token string) error {
	var pending bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM business_invites
			WHERE email = $1 AND business_id = $2 AND token = $3 AND NOT is_accepted
		)
	`, details.Email, details.BusinessID, token).Scan(&pending)
	if err != nil {
		return fmt.Errorf("failed to re-check invite: %w", err)
	}
	if !pending {
		return ErrInviteNotFound
	}
	return ErrUserExists
}

// DeleteExpiredPending removes unaccepted invites older than maxAge. Their
// tokens can no longer verify, and the rows would otherwise block
// re-inviting the same email under the (email, business) uniqueness rule.
// Returns the number of invites removed.
func (s *InviteService) DeleteExpiredPending(ctx context.Context, maxAge time.Duration) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM business_invites
		WHERE NOT is_accepted AND created_at < NOW() - $1::interval
	`, fmt.Sprintf("%d seconds", int64(maxAge.Seconds())))
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired invites: %w", err)
	}

	return tag.RowsAffected(), nil
}
