// Package tokens declares the server-side repository contract for persisted
// tokens (refresh, reset-password and verify-email).
package tokens

import (
	"context"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/server/models"
)

// Repository stores, consumes and revokes persisted tokens.
//
// Consume and Blacklist are conditional on the record not being blacklisted
// and return common.ErrorNotFound when no row was affected, so that of two
// concurrent callers racing on one token exactly one succeeds.
type Repository interface {
	// Create stores token and fills in its ID and CreatedAt.
	Create(ctx context.Context, token *models.Token) error

	// Find looks a token up by its string. Returns common.ErrorNotFound when absent.
	Find(ctx context.Context, token string) (*models.Token, error)

	// Consume deletes a non-blacklisted token by id.
	Consume(ctx context.Context, id string) error

	// Blacklist flags a non-blacklisted token by id.
	Blacklist(ctx context.Context, id string) error

	// BlacklistByUser flags every token of the given type owned by userID and
	// returns how many were flagged.
	BlacklistByUser(ctx context.Context, userID string, tokenType models.TokenType) (int64, error)

	// DeleteByUser removes every token of the given type owned by userID.
	DeleteByUser(ctx context.Context, userID string, tokenType models.TokenType) (int64, error)

	// DeleteExpired removes every token that expired before the given time.
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}
