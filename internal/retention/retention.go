// Package retention houses the periodic cleanup job for invitation rows.
package retention

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/ziplyhq/ziply/internal/business"
)

// RunInviteSweep deletes unaccepted invites whose tokens have aged past the
// invitation validity window. Such invites can never be accepted, and the
// rows would otherwise block re-inviting the same email to the same
// business. Idempotent - safe to run repeatedly.
func RunInviteSweep(ctx context.Context, invites *business.InviteService) error {
	deleted, err := invites.DeleteExpiredPending(ctx, business.InviteTokenMaxAge)
	if err != nil {
		return fmt.Errorf("invite sweep failed: %w", err)
	}

	log.Info().Int64("deleted", deleted).Msg("Invite sweep completed")
	return nil
}
