// Package refreshtokens provides storage backends for the refresh-token
// rows behind login sessions: one row per session, soft-deleted on logout
// and rotated in place on renewal.
package refreshtokens

import (
	"context"
	"time"

	"github.com/workpass-app/workpass/internal/server/models"
)

// Repository is the storage contract consumed by the auth service.
//
// Find and Renew treat soft-deleted rows as common.ErrorNotFound. Renew
// overwrites hash and issued_at in a single statement; there is no per-row
// locking, concurrent renewals are last-write-wins.
type Repository interface {
	Create(ctx context.Context, userID int64, device, hash string) (*models.UserToken, error)
	Find(ctx context.Context, id int64) (*models.UserToken, error)
	Renew(ctx context.Context, id int64, hash string) (time.Time, error)
	Revoke(ctx context.Context, id int64) error
}
