package accounts

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ziplyhq/ziply/internal/apperrors"
	"github.com/ziplyhq/ziply/internal/audit"
	"github.com/ziplyhq/ziply/internal/auth"
	"github.com/ziplyhq/ziply/internal/business"
	"github.com/ziplyhq/ziply/internal/signing"
	"github.com/ziplyhq/ziply/internal/validation"
)

// TokenConfig carries what the handlers need to mint session token pairs.
type TokenConfig struct {
	Secret     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// EmailStartRequest is the payload of the email-confirmation step
type EmailStartRequest struct {
	Email string `json:"email"`
}

// HandleEmailStart requests a registration confirmation email
func HandleEmailStart(reg *RegistrationService, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req EmailStartRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid JSON body")
			return
		}

		if err := reg.StartEmailConfirmation(r.Context(), req.Email); err != nil {
			if fields, ok := registrationFieldErrors(err); ok {
				apperrors.WriteFieldErrors(w, r, fields)
				return
			}
			log.Error().Err(err).Msg("Failed to start email confirmation")
			apperrors.WriteInternalError(w, r, "Failed to send confirmation email")
			return
		}

		auditor.Log(r.Context(), audit.LogParams{Action: audit.EventEmailConfirmationSent})

		apperrors.WriteJSON(w, http.StatusOK, map[string]string{
			"message": "Confirmation email sent.",
		})
	}
}

// RegisterRequest is the payload of the token-gated registration step
type RegisterRequest struct {
	Email        string `json:"email"`
	Name         string `json:"name"`
	BusinessName string `json:"business_name"`
	Password     string `json:"password"`
	Token        string `json:"token"`
}

// HandleRegister completes registration and logs the new user in
func HandleRegister(reg *RegistrationService, auditor *audit.Writer, tokens TokenConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RegisterRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid JSON body")
			return
		}

		if fields := requireFields(map[string]string{
			"name":          req.Name,
			"business_name": req.BusinessName,
			"token":         req.Token,
		}); len(fields) > 0 {
			apperrors.WriteFieldErrors(w, r, fields)
			return
		}

		result, err := reg.Register(r.Context(), req.Email, req.Name, req.BusinessName, req.Password, req.Token)
		if err != nil {
			if fields, ok := registrationFieldErrors(err); ok {
				apperrors.WriteFieldErrors(w, r, fields)
				return
			}
			log.Error().Err(err).Msg("Registration failed")
			apperrors.WriteInternalError(w, r, "Failed to create account")
			return
		}

		user := result.User
		pair, err := auth.CreateTokenPair(user.ID, user.Email, user.Name, tokens.Secret, tokens.AccessTTL, tokens.RefreshTTL)
		if err != nil {
			log.Error().Err(err).Msg("Failed to create token pair")
			apperrors.WriteInternalError(w, r, "Failed to create session")
			return
		}

		auditor.Log(r.Context(), audit.LogParams{
			BusinessID:  &result.Business.ID,
			ActorUserID: &user.ID,
			Action:      audit.EventUserRegistered,
			Meta:        map[string]interface{}{"email": user.Email},
		})

		apperrors.WriteJSON(w, http.StatusCreated, map[string]string{
			"message": "User and Business created.",
			"refresh": pair.Refresh,
			"access":  pair.Access,
		})
	}
}

// LoginRequest is the credential login payload
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// HandleLogin verifies credentials and issues a refresh/access token pair
func HandleLogin(svc *Service, auditor *audit.Writer, tokens TokenConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req LoginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid JSON body")
			return
		}

		user, err := svc.GetByEmail(r.Context(), req.Email)
		if err != nil {
			if errors.Is(err, ErrUserNotFound) {
				auditor.Log(r.Context(), audit.LogParams{
					Action: audit.EventLoginFailed,
					Meta:   map[string]interface{}{"email": req.Email},
				})
				apperrors.WriteUnauthorized(w, r, "Invalid email or password")
				return
			}
			log.Error().Err(err).Msg("Failed to look up user")
			apperrors.WriteInternalError(w, r, "Login failed")
			return
		}

		if !user.IsActive || auth.VerifyPassword(user.PasswordHash, req.Password) != nil {
			auditor.Log(r.Context(), audit.LogParams{
				ActorUserID: &user.ID,
				Action:      audit.EventLoginFailed,
			})
			apperrors.WriteUnauthorized(w, r, "Invalid email or password")
			return
		}

		pair, err := auth.CreateTokenPair(user.ID, user.Email, user.Name, tokens.Secret, tokens.AccessTTL, tokens.RefreshTTL)
		if err != nil {
			log.Error().Err(err).Msg("Failed to create token pair")
			apperrors.WriteInternalError(w, r, "Failed to create session")
			return
		}

		log.Info().Str("user_id", user.ID.String()).Msg("User logged in")

		apperrors.WriteJSON(w, http.StatusOK, pair)
	}
}

// RefreshRequest is the token refresh payload
type RefreshRequest struct {
	Refresh string `json:"refresh"`
}

// HandleTokenRefresh exchanges a valid refresh token for a new access token
func HandleTokenRefresh(tokens TokenConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RefreshRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid JSON body")
			return
		}

		claims, err := auth.ValidateToken(req.Refresh, tokens.Secret, auth.TokenTypeRefresh)
		if err != nil {
			apperrors.WriteUnauthorized(w, r, "Invalid or expired refresh token")
			return
		}

		access, err := auth.CreateToken(claims.UserID, claims.Email, claims.Name, auth.TokenTypeAccess, tokens.Secret, tokens.AccessTTL)
		if err != nil {
			log.Error().Err(err).Msg("Failed to create access token")
			apperrors.WriteInternalError(w, r, "Failed to refresh session")
			return
		}

		apperrors.WriteJSON(w, http.StatusOK, map[string]string{
			"access": access,
		})
	}
}

// HandleMe returns the authenticated user's profile
func HandleMe(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := svc.GetByID(r.Context(), auth.GetUserID(r.Context()))
		if err != nil {
			if errors.Is(err, ErrUserNotFound) {
				apperrors.WriteUnauthorized(w, r, "Account no longer exists")
				return
			}
			log.Error().Err(err).Msg("Failed to load profile")
			apperrors.WriteInternalError(w, r, "Failed to load profile")
			return
		}

		apperrors.WriteJSON(w, http.StatusOK, user.Profile())
	}
}

// registrationFieldErrors maps workflow errors onto the field that caused
// them. Returns false for unexpected errors, which surface as 500s.
func registrationFieldErrors(err error) (apperrors.FieldErrors, bool) {
	fields := apperrors.FieldErrors{}

	switch {
	case errors.Is(err, validation.ErrEmailRequired),
		errors.Is(err, validation.ErrEmailInvalid),
		errors.Is(err, validation.ErrEmailTooLong):
		fields.Add("email", err.Error())
	case errors.Is(err, ErrEmailTaken), errors.Is(err, ErrDuplicateEmail):
		fields.Add("email", "User with this email already exists.")
	case errors.Is(err, ErrTokenMismatch):
		fields.Add("email", "Email does not match the token.")
	case errors.Is(err, signing.ErrExpired):
		fields.Add("token", "This token has expired.")
	case errors.Is(err, signing.ErrInvalidSignature):
		fields.Add("token", "Invalid token.")
	case errors.Is(err, validation.ErrPasswordTooShort):
		fields.Add("password", err.Error())
	case errors.Is(err, business.ErrBusinessExists):
		fields.Add("business_name", "A business with this name already exists.")
	default:
		return nil, false
	}

	return fields, true
}

func requireFields(values map[string]string) apperrors.FieldErrors {
	fields := apperrors.FieldErrors{}
	for name, value := range values {
		if value == "" {
			fields.Add(name, "This field is required.")
		}
	}
	if len(fields) == 0 {
		return nil
	}
	return fields
}
