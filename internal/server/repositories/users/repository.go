// Package users declares the credential store contract for user accounts.
package users

import (
	"context"

	"github.com/dmitrijs2005/authkeeper/internal/server/models"
)

// Repository persists users. Lookups of a missing user return
// common.ErrorNotFound; a duplicate email on write returns
// common.ErrorEmailTaken.
type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)

	// EmailTaken reports whether another user (id != excludeID) owns email.
	// Pass an empty excludeID to check against every user.
	EmailTaken(ctx context.Context, email string, excludeID string) (bool, error)

	// Update stores name, email, role and the verification flag.
	Update(ctx context.Context, user *models.User) (*models.User, error)
	SetPassword(ctx context.Context, id string, passwordHash string) error
	MarkEmailVerified(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error

	// List returns users ordered by creation time, newest first.
	List(ctx context.Context, limit, offset int) ([]*models.User, error)
	Count(ctx context.Context) (int, error)
}
