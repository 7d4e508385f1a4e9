// Package audit records account and invitation events for traceability.
// Writes are best-effort: a failed audit write is logged and never fails the
// request that triggered it.
package audit

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

const (
	EventEmailConfirmationSent = "account.email_confirmation_sent"
	EventUserRegistered        = "account.registered"
	EventLoginFailed           = "auth.login_failed"
	EventInviteCreated         = "business.invite_created"
	EventInviteAccepted        = "business.invite_accepted"
)

// Writer provides methods to write audit log entries.
type Writer struct {
	pool *pgxpool.Pool
}

func NewWriter(pool *pgxpool.Pool) *Writer {
	return &Writer{pool: pool}
}

// LogParams contains parameters for logging an audit event.
type LogParams struct {
	BusinessID  *uuid.UUID
	ActorUserID *uuid.UUID
	Action      string
	Meta        map[string]interface{}
}

// Log writes one audit event.
func (w *Writer) Log(ctx context.Context, params LogParams) {
	metaJSON := []byte("{}")
	if params.Meta != nil {
		b, err := json.Marshal(params.Meta)
		if err != nil {
			log.Error().Err(err).Msg("Failed to marshal audit meta")
			return
		}
		metaJSON = b
	}

	query := `
		INSERT INTO audit_log (business_id, actor_user_id, action, meta)
		VALUES ($1, $2, $3, $4)
	`

	_, err := w.pool.Exec(ctx, query, toNullUUID(params.BusinessID), toNullUUID(params.ActorUserID), params.Action, metaJSON)
	if err != nil {
		log.Error().Err(err).Str("action", params.Action).Msg("Failed to write audit log")
		return
	}

	log.Debug().
		Str("action", params.Action).
		Interface("business_id", params.BusinessID).
		Interface("actor_user_id", params.ActorUserID).
		Msg("Audit event logged")
}

func toNullUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}
