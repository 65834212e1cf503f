// Package repomanager wires repository implementations to a concrete
// database backend and runs schema migrations via goose.
package repomanager

import (
	"context"
	"database/sql"

	"github.com/workpass-app/workpass/internal/server/repositories/refreshtokens"
	"github.com/workpass-app/workpass/internal/server/repositories/users"
)

type RepositoryManager interface {
	Conn() *sql.DB
	Users() users.Repository
	RefreshTokens() refreshtokens.Repository
	RunMigrations(ctx context.Context) error
	Close() error
}
