// Package users provides the repository for user accounts and their
// external identity-provider links.
package users

import (
	"context"

	"github.com/workpass-app/workpass/internal/server/models"
)

// Repository is the storage contract for users. Lookups return
// common.ErrorNotFound when no row matches.
type Repository interface {
	Find(ctx context.Context, id int64) (*models.User, error)
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	// FindByOpenID resolves a platform account (provider + open id) to the
	// linked user.
	FindByOpenID(ctx context.Context, provider, openID string) (*models.User, error)
	Create(ctx context.Context, user *models.User) (*models.User, error)
	// Link attaches a platform account to an existing user.
	Link(ctx context.Context, userID int64, provider, openID, data string) error
	// CreateWithIdentity creates a user and links the platform account in
	// one transaction, so a first login never leaves an unlinked account.
	CreateWithIdentity(ctx context.Context, user *models.User, provider, openID, data string) (*models.User, error)
}
