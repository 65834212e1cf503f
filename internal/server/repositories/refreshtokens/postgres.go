package refreshtokens

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/workpass-app/workpass/internal/common"
	"github.com/workpass-app/workpass/internal/dbx"
	"github.com/workpass-app/workpass/internal/server/models"
)

// PostgresRepository implements Repository over dbx.DBTX (satisfied by
// *sql.DB or *sql.Tx). The statements also run unchanged on SQLite.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a new refresh-token row for userID and returns it with the
// assigned id and issue time.
func (r *PostgresRepository) Create(ctx context.Context, userID int64, device, hash string) (*models.UserToken, error) {
	query := `
		INSERT INTO user_tokens (user_id, device, hash, issued_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`
	rec := &models.UserToken{
		UserID:   userID,
		Device:   device,
		Hash:     hash,
		IssuedAt: time.Now().UTC(),
	}
	err := r.db.QueryRowContext(ctx, query, rec.UserID, rec.Device, rec.Hash, rec.IssuedAt).Scan(&rec.ID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return rec, nil
}

// Find returns the live (not soft-deleted) row with the given id, or
// common.ErrorNotFound.
func (r *PostgresRepository) Find(ctx context.Context, id int64) (*models.UserToken, error) {
	query := `
		SELECT id, user_id, device, hash, issued_at
		FROM user_tokens
		WHERE id = $1 AND deleted_at IS NULL
	`
	rec := &models.UserToken{}
	err := r.db.QueryRowContext(ctx, query, id).
		Scan(&rec.ID, &rec.UserID, &rec.Device, &rec.Hash, &rec.IssuedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return rec, nil
}

// Renew overwrites hash and issued_at in place, invalidating every bearer
// token derived from the previous nonce. Returns the new issue time.
func (r *PostgresRepository) Renew(ctx context.Context, id int64, hash string) (time.Time, error) {
	query := `
		UPDATE user_tokens
		SET hash = $1, issued_at = $2
		WHERE id = $3 AND deleted_at IS NULL
	`
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx, query, hash, now, id)
	if err != nil {
		return time.Time{}, fmt.Errorf("db error: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return time.Time{}, fmt.Errorf("db error: %w", err)
	}
	if affected == 0 {
		return time.Time{}, common.ErrorNotFound
	}
	return now, nil
}

// Revoke soft-deletes the row. Revoking an already revoked or missing row
// is not an error.
func (r *PostgresRepository) Revoke(ctx context.Context, id int64) error {
	query := `
		UPDATE user_tokens
		SET deleted_at = $1
		WHERE id = $2 AND deleted_at IS NULL
	`
	if _, err := r.db.ExecContext(ctx, query, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
