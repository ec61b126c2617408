package repomanager

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/tendercrm/internal/server/repositories/rows"
)

// InMemoryRepositoryManager keeps every table in process memory. InTx
// serializes callers instead of providing rollback.
type InMemoryRepositoryManager struct {
	mu   sync.Mutex
	rows *rows.Memory
}

func NewInMemoryRepositoryManager() *InMemoryRepositoryManager {
	return &InMemoryRepositoryManager{rows: rows.NewMemory()}
}

func (m *InMemoryRepositoryManager) RunMigrations(ctx context.Context) error {
	return nil
}

func (m *InMemoryRepositoryManager) Rows() rows.Repository {
	return m.rows
}

func (m *InMemoryRepositoryManager) InTx(ctx context.Context, fn func(ctx context.Context, repo rows.Repository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(ctx, m.rows)
}

func (m *InMemoryRepositoryManager) Close() error {
	return nil
}
