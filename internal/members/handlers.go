// Package members exposes the tenant-scoped membership and invitation HTTP
// surface. All routes except the token-based confirm/accept pair require an
// authenticated member of the business resolved by the tenant middleware.
package members

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/ziplyhq/ziply/internal/apperrors"
	"github.com/ziplyhq/ziply/internal/audit"
	"github.com/ziplyhq/ziply/internal/auth"
	"github.com/ziplyhq/ziply/internal/business"
	"github.com/ziplyhq/ziply/internal/signing"
	"github.com/ziplyhq/ziply/internal/tenantctx"
	"github.com/ziplyhq/ziply/internal/validation"
)

// HandleList returns all members of the resolved business
func HandleList(businesses *business.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b := tenantctx.GetBusiness(r.Context())

		list, err := businesses.ListMembers(r.Context(), b.ID)
		if err != nil {
			log.Error().Err(err).Str("business_id", b.ID.String()).Msg("Failed to list members")
			apperrors.WriteInternalError(w, r, "Failed to list members")
			return
		}

		apperrors.WriteJSON(w, http.StatusOK, list)
	}
}

// InviteRequest is the invitation creation payload
type InviteRequest struct {
	Email string        `json:"email"`
	Role  business.Role `json:"role"`
}

// HandleInvite creates an invitation to the resolved business
func HandleInvite(invites *business.InviteService, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req InviteRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid JSON body")
			return
		}

		b := tenantctx.GetBusiness(r.Context())
		claims := auth.GetClaims(r.Context())

		invite, err := invites.CreateInvite(r.Context(), b, claims.UserID, claims.Name, req.Email, req.Role)
		if err != nil {
			if fields, ok := inviteFieldErrors(err); ok {
				apperrors.WriteFieldErrors(w, r, fields)
				return
			}
			log.Error().Err(err).Str("business_id", b.ID.String()).Msg("Failed to create invite")
			apperrors.WriteInternalError(w, r, "Failed to create invitation")
			return
		}

		auditor.Log(r.Context(), audit.LogParams{
			BusinessID:  &b.ID,
			ActorUserID: &claims.UserID,
			Action:      audit.EventInviteCreated,
			Meta:        map[string]interface{}{"email": invite.Email, "role": string(invite.Role)},
		})

		apperrors.WriteJSON(w, http.StatusCreated, map[string]string{
			"message": "Invitation sent successfully.",
		})
	}
}

// TokenRequest is the payload of the confirm and accept endpoints
type TokenRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

// HandleInviteConfirm validates an invitation token for the landing page
// without consuming it
func HandleInviteConfirm(invites *business.InviteService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req TokenRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid JSON body")
			return
		}

		details, err := invites.ValidateInvite(r.Context(), req.Token)
		if err != nil {
			if fields, ok := inviteFieldErrors(err); ok {
				apperrors.WriteFieldErrors(w, r, fields)
				return
			}
			log.Error().Err(err).Msg("Failed to validate invite")
			apperrors.WriteInternalError(w, r, "Failed to validate invitation")
			return
		}

		apperrors.WriteJSON(w, http.StatusOK, map[string]string{
			"email":         details.Email,
			"role":          string(details.Role),
			"business_name": details.BusinessName,
		})
	}
}

// HandleInviteAccept consumes an invitation, creating the account and
// membership
func HandleInviteAccept(invites *business.InviteService, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req TokenRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid JSON body")
			return
		}

		details, err := invites.AcceptInvite(r.Context(), req.Token, req.Password)
		if err != nil {
			if fields, ok := inviteFieldErrors(err); ok {
				apperrors.WriteFieldErrors(w, r, fields)
				return
			}
			log.Error().Err(err).Msg("Failed to accept invite")
			apperrors.WriteInternalError(w, r, "Failed to accept invitation")
			return
		}

		auditor.Log(r.Context(), audit.LogParams{
			BusinessID: &details.BusinessID,
			Action:     audit.EventInviteAccepted,
			Meta:       map[string]interface{}{"email": details.Email, "role": string(details.Role)},
		})

		apperrors.WriteJSON(w, http.StatusOK, map[string]string{
			"message": "Invitation accepted. Account created.",
		})
	}
}

// inviteFieldErrors maps invitation workflow errors onto the input field that
// caused them. Returns false for unexpected errors, which surface as 500s.
func inviteFieldErrors(err error) (apperrors.FieldErrors, bool) {
	fields := apperrors.FieldErrors{}

	switch {
	case errors.Is(err, validation.ErrEmailRequired),
		errors.Is(err, validation.ErrEmailInvalid),
		errors.Is(err, validation.ErrEmailTooLong):
		fields.Add("email", err.Error())
	case errors.Is(err, business.ErrInviteAlreadyAccepted):
		fields.Add("email", "An invite with this email already exists.")
	case errors.Is(err, business.ErrInvitePending):
		fields.Add("email", "An invite with this email is already pending.")
	case errors.Is(err, business.ErrInvalidRole), errors.Is(err, business.ErrCannotInviteOwner):
		fields.Add("role", "Invalid role specified.")
	case errors.Is(err, signing.ErrExpired):
		fields.Add("token", "This token has expired.")
	case errors.Is(err, signing.ErrInvalidSignature), errors.Is(err, business.ErrInvalidInvitePayload):
		fields.Add("token", "Invalid token.")
	case errors.Is(err, business.ErrBusinessNotFound):
		fields.Add("token", "Business not found.")
	case errors.Is(err, business.ErrInviteNotFound):
		fields.Add("token", "No valid invite found for this token.")
	case errors.Is(err, business.ErrUserExists):
		fields.Add("token", "A user with this email already exists. Please log in instead.")
	case errors.Is(err, validation.ErrPasswordTooShort):
		fields.Add("password", err.Error())
	default:
		return nil, false
	}

	return fields, true
}
