package users

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
// *sql.DB or *sql.Tx). The SQL sticks to the subset shared by PostgreSQL
// and SQLite, so the same repository backs both drivers.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Find(ctx context.Context, id int64) (*models.User, error) {
	query := `
		SELECT id, username, name, avatar, created_at, updated_at
		FROM users
		WHERE id = $1
	`
	return r.scanUser(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	query := `
		SELECT id, username, name, avatar, created_at, updated_at
		FROM users
		WHERE username = $1
	`
	return r.scanUser(r.db.QueryRowContext(ctx, query, username))
}

func (r *PostgresRepository) FindByOpenID(ctx context.Context, provider, openID string) (*models.User, error) {
	query := `
		SELECT u.id, u.username, u.name, u.avatar, u.created_at, u.updated_at
		FROM users u
		JOIN user_identities i ON i.user_id = u.id
		WHERE i.provider = $1 AND i.open_id = $2
	`
	return r.scanUser(r.db.QueryRowContext(ctx, query, provider, openID))
}

func (r *PostgresRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	query := `
		INSERT INTO users (username, name, avatar, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now
	err := r.db.QueryRowContext(ctx, query,
		user.Username, user.Name, user.Avatar, user.CreatedAt, user.UpdatedAt).Scan(&user.ID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return user, nil
}

func (r *PostgresRepository) Link(ctx context.Context, userID int64, provider, openID, data string) error {
	query := `
		INSERT INTO user_identities (user_id, provider, open_id, data)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := r.db.ExecContext(ctx, query, userID, provider, openID, data); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// CreateWithIdentity runs Create and Link inside one transaction when the
// repository is bound to a *sql.DB. On a bare DBTX (already inside a
// transaction) it falls through to sequential calls.
func (r *PostgresRepository) CreateWithIdentity(ctx context.Context, user *models.User, provider, openID, data string) (*models.User, error) {
	db, ok := r.db.(*sql.DB)
	if !ok {
		return r.createAndLink(ctx, r, user, provider, openID, data)
	}

	var created *models.User
	err := dbx.WithTx(ctx, db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		created, err = r.createAndLink(ctx, NewPostgresRepository(tx), user, provider, openID, data)
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (r *PostgresRepository) createAndLink(ctx context.Context, repo *PostgresRepository, user *models.User, provider, openID, data string) (*models.User, error) {
	created, err := repo.Create(ctx, user)
	if err != nil {
		return nil, err
	}
	if err := repo.Link(ctx, created.ID, provider, openID, data); err != nil {
		return nil, err
	}
	return created, nil
}

func (r *PostgresRepository) scanUser(row *sql.Row) (*models.User, error) {
	user := &models.User{}
	err := row.Scan(&user.ID, &user.Username, &user.Name, &user.Avatar, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return user, nil
}
