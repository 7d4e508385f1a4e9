package accounts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/ziplyhq/ziply/internal/business"
	"github.com/ziplyhq/ziply/internal/signing"
	"github.com/ziplyhq/ziply/internal/validation"
)

// RegistrationTokenMaxAge bounds how long an email-confirmation token remains
// valid after the confirmation email is requested.
const RegistrationTokenMaxAge = time.Hour

var (
	// ErrEmailTaken is returned at the email-start step when the address is
	// already registered
	ErrEmailTaken = errors.New("user with this email already exists")

	// ErrTokenMismatch is returned when the email inside a verified token
	// differs from the submitted email
	ErrTokenMismatch = errors.New("email does not match the token")
)

// RegistrationMailer delivers the confirmation email out-of-band.
type RegistrationMailer interface {
	SendRegistrationConfirmation(email, token string)
}

// RegistrationService runs the two-phase signup: a confirmation email bound
// to the address, then atomic creation of the user, their business, and the
// Owner membership.
type RegistrationService struct {
	pool     *pgxpool.Pool
	accounts *Service
	signer   *signing.Signer
	mailer   RegistrationMailer
}

// NewRegistrationService creates a new registration service
func NewRegistrationService(pool *pgxpool.Pool, accounts *Service, signer *signing.Signer, mailer RegistrationMailer) *RegistrationService {
	return &RegistrationService{pool: pool, accounts: accounts, signer: signer, mailer: mailer}
}

// StartEmailConfirmation signs a token over the bare email and enqueues the
// confirmation email. Fails with ErrEmailTaken if the address is already
// registered. The send is fire-and-forget.
func (s *RegistrationService) StartEmailConfirmation(ctx context.Context, email string) error {
	email, err := validation.NormalizeEmail(email)
	if err != nil {
		return err
	}

	taken, err := s.accounts.EmailExists(ctx, email)
	if err != nil {
		return err
	}
	if taken {
		return ErrEmailTaken
	}

	token := s.signer.Sign(email)
	s.mailer.SendRegistrationConfirmation(email, token)

	log.Info().Str("email", email).Msg("Registration confirmation email enqueued")
	return nil
}

// RegisterResult is the outcome of a completed registration.
type RegisterResult struct {
	User     *User
	Business *business.Business
}

// Register completes the token-gated signup. It verifies the token, requires
// its embedded email to match the submitted one, and creates the user, the
// business, and the Owner membership in a single transaction so that none of
// them is visible unless all commit. Signature and expiry failures surface
// as the signing package's errors.
func (s *RegistrationService) Register(ctx context.Context, email, name, businessName, password, token string) (*RegisterResult, error) {
	email, err := validation.NormalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if err := validation.ValidatePassword(password); err != nil {
		return nil, err
	}

	emailFromToken, err := s.signer.Unsign(token, RegistrationTokenMaxAge)
	if err != nil {
		return nil, err
	}
	if emailFromToken != email {
		return nil, ErrTokenMismatch
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	user, err := createUser(ctx, tx, email, name, password, false)
	if err != nil {
		return nil, err
	}

	b, err := business.CreateWithOwnerTx(ctx, tx, businessName, user.ID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.Info().
		Str("user_id", user.ID.String()).
		Str("business_id", b.ID.String()).
		Str("slug", b.Slug).
		Msg("User and business registered")

	return &RegisterResult{User: user, Business: b}, nil
}
