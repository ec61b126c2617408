package rows

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/dmitrijs2005/tendercrm/internal/common"
	"github.com/dmitrijs2005/tendercrm/internal/entities"
)

// Memory keeps rows in process memory. It backs tests and the server's
// -memory mode.
type Memory struct {
	mu     sync.RWMutex
	tables map[entities.Table]map[string]Row
}

func NewMemory() *Memory {
	m := &Memory{tables: make(map[entities.Table]map[string]Row, len(entities.Tables))}
	for _, t := range entities.Tables {
		m.tables[t] = map[string]Row{}
	}
	return m
}

func (m *Memory) List(ctx context.Context, table entities.Table, order Order) ([]Row, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, err := m.table(table)
	if err != nil {
		return nil, err
	}

	out := make([]Row, 0, len(t))
	for _, r := range t {
		out = append(out, clone(r))
	}
	slices.SortFunc(out, func(a, b Row) int {
		c := 0
		switch order.Column {
		case "created_at":
			c = a.CreatedAt.Compare(b.CreatedAt)
		case "updated_at":
			c = a.UpdatedAt.Compare(b.UpdatedAt)
		}
		if c == 0 {
			c = strings.Compare(a.ID, b.ID)
		}
		if order.Desc {
			c = -c
		}
		return c
	})
	return out, nil
}

func (m *Memory) Get(ctx context.Context, table entities.Table, id string) (Row, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, err := m.table(table)
	if err != nil {
		return Row{}, err
	}
	r, ok := t[id]
	if !ok {
		return Row{}, common.ErrNotFound
	}
	return clone(r), nil
}

func (m *Memory) Insert(ctx context.Context, table entities.Table, row Row) (Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, err := m.table(table)
	if err != nil {
		return Row{}, err
	}
	if _, ok := t[row.ID]; ok {
		return Row{}, fmt.Errorf("%s[%s]: %w", table, row.ID, ErrConflict)
	}
	row = normalize(row)
	t[row.ID] = row
	return clone(row), nil
}

func (m *Memory) Update(ctx context.Context, table entities.Table, row Row) (Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, err := m.table(table)
	if err != nil {
		return Row{}, err
	}
	cur, ok := t[row.ID]
	if !ok {
		return Row{}, common.ErrNotFound
	}
	cur.Data = slices.Clone(row.Data)
	cur.UpdatedAt = row.UpdatedAt.UTC()
	t[row.ID] = cur
	return clone(cur), nil
}

func (m *Memory) Delete(ctx context.Context, table entities.Table, id string) (Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, err := m.table(table)
	if err != nil {
		return Row{}, err
	}
	r, ok := t[id]
	if !ok {
		return Row{}, common.ErrNotFound
	}
	delete(t, id)
	return r, nil
}

func (m *Memory) table(table entities.Table) (map[string]Row, error) {
	t, ok := m.tables[table]
	if !ok {
		return nil, fmt.Errorf("%w: %q", entities.ErrUnknownTable, table)
	}
	return t, nil
}

func normalize(r Row) Row {
	r = clone(r)
	r.CreatedAt = r.CreatedAt.UTC()
	r.UpdatedAt = r.UpdatedAt.UTC()
	return r
}

func clone(r Row) Row {
	r.Data = slices.Clone(r.Data)
	return r
}
