// Package repomanager vends the repositories of the reference server and
// runs work against them inside a transaction.
package repomanager

import (
	"context"

	"github.com/dmitrijs2005/tendercrm/internal/server/repositories/rows"
)

type RepositoryManager interface {
	RunMigrations(ctx context.Context) error
	// Rows returns a repository outside of any transaction.
	Rows() rows.Repository
	// InTx runs fn with a repository bound to a single transaction. The
	// transaction commits when fn returns nil.
	InTx(ctx context.Context, fn func(ctx context.Context, repo rows.Repository) error) error
	Close() error
}
