// Package clienttest provides an in-memory client.Client for tests.
package clienttest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/tendercrm/internal/client/client"
	"github.com/dmitrijs2005/tendercrm/internal/entities"
)

// Op names a Client method.
type Op string

const (
	OpSelect Op = "select"
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
	OpPing   Op = "ping"
)

// Memory behaves like the reference server: it assigns ids to inserts that
// have none, fills in missing timestamps and lists rows newest first.
type Memory struct {
	mu    sync.Mutex
	rows  map[entities.Table][]map[string]any
	down  error
	next  map[Op][]error
	calls map[Op]int

	Now func() time.Time
	// Hook, when set, runs before every call outside the lock. Tests use it
	// to block or observe calls.
	Hook func(op Op, table entities.Table)
}

var _ client.Client = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		rows:  make(map[entities.Table][]map[string]any),
		next:  make(map[Op][]error),
		calls: make(map[Op]int),
		Now:   time.Now,
	}
}

// SetOffline makes every call fail with client.ErrUnavailable until
// switched back.
func (m *Memory) SetOffline(offline bool) {
	if offline {
		m.SetError(fmt.Errorf("%w: connection refused", client.ErrUnavailable))
		return
	}
	m.SetError(nil)
}

// SetError makes every call fail with err; nil clears it.
func (m *Memory) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.down = err
}

// FailNext queues err as the result of the next call of op. Queued errors
// are consumed in order.
func (m *Memory) FailNext(op Op, errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next[op] = append(m.next[op], errs...)
}

// Calls reports how many times op was invoked, failed calls included.
func (m *Memory) Calls(op Op) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

// Seed stores entities as they are, bypassing failure injection.
func (m *Memory) Seed(es ...entities.Entity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range es {
		raw, err := json.Marshal(e)
		if err != nil {
			panic(err)
		}
		row := map[string]any{}
		if err := json.Unmarshal(raw, &row); err != nil {
			panic(err)
		}
		m.rows[e.Table()] = append(m.rows[e.Table()], row)
	}
}

// Rows returns the stored rows of table in insertion order.
func (m *Memory) Rows(table entities.Table) []json.RawMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]json.RawMessage, 0, len(m.rows[table]))
	for _, r := range m.rows[table] {
		out = append(out, mustJSON(r))
	}
	return out
}

// Get returns the row with id, or nil.
func (m *Memory) Get(table entities.Table, id string) json.RawMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i := m.index(table, id); i >= 0 {
		return mustJSON(m.rows[table][i])
	}
	return nil
}

func (m *Memory) enter(ctx context.Context, op Op, table entities.Table) error {
	if m.Hook != nil {
		m.Hook(op, table)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[op]++
	if q := m.next[op]; len(q) > 0 {
		m.next[op] = q[1:]
		return q[0]
	}
	if m.down != nil {
		return m.down
	}
	if op != OpPing && !table.Valid() {
		return fmt.Errorf("%w: %q", entities.ErrUnknownTable, table)
	}
	return nil
}

func (m *Memory) Select(ctx context.Context, table entities.Table) ([]json.RawMessage, error) {
	if err := m.enter(ctx, OpSelect, table); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	rows := m.rows[table]
	out := make([]json.RawMessage, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		out = append(out, mustJSON(rows[i]))
	}
	return out, nil
}

func (m *Memory) Insert(ctx context.Context, table entities.Table, raw json.RawMessage) (json.RawMessage, error) {
	if err := m.enter(ctx, OpInsert, table); err != nil {
		return nil, err
	}

	row := map[string]any{}
	if err := json.Unmarshal(raw, &row); err != nil {
		return nil, &client.APIError{StatusCode: 400, Message: err.Error()}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	id, _ := row["id"].(string)
	if id == "" {
		id = uuid.NewString()
		row["id"] = id
	}
	if m.index(table, id) >= 0 {
		return nil, &client.APIError{StatusCode: 409, Code: "23505", Message: "duplicate key value"}
	}
	m.touch(row)
	m.rows[table] = append(m.rows[table], row)
	return mustJSON(row), nil
}

func (m *Memory) Update(ctx context.Context, table entities.Table, id string, patch json.RawMessage) (json.RawMessage, error) {
	if err := m.enter(ctx, OpUpdate, table); err != nil {
		return nil, err
	}

	fields := map[string]any{}
	if err := json.Unmarshal(patch, &fields); err != nil {
		return nil, &client.APIError{StatusCode: 400, Message: err.Error()}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.index(table, id)
	if i < 0 {
		return nil, fmt.Errorf("update %s[%s]: %w", table, id, client.ErrNotFound)
	}
	row := m.rows[table][i]
	for k, v := range fields {
		if k == "id" {
			continue
		}
		row[k] = v
	}
	if _, ok := fields["updated_at"]; !ok {
		delete(row, "updated_at")
	}
	m.touch(row)
	return mustJSON(row), nil
}

func (m *Memory) Delete(ctx context.Context, table entities.Table, id string) error {
	if err := m.enter(ctx, OpDelete, table); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.index(table, id)
	if i < 0 {
		return fmt.Errorf("delete %s[%s]: %w", table, id, client.ErrNotFound)
	}
	rows := m.rows[table]
	m.rows[table] = append(rows[:i:i], rows[i+1:]...)
	return nil
}

func (m *Memory) Ping(ctx context.Context) error {
	return m.enter(ctx, OpPing, "")
}

func (m *Memory) Close() error { return nil }

func (m *Memory) index(table entities.Table, id string) int {
	for i, r := range m.rows[table] {
		if r["id"] == id {
			return i
		}
	}
	return -1
}

func (m *Memory) touch(row map[string]any) {
	now := m.Now().UTC().Format(time.RFC3339Nano)
	for _, k := range []string{"created_at", "updated_at"} {
		if v, _ := row[k].(string); v == "" || v == zeroTime {
			row[k] = now
		}
	}
}

const zeroTime = "0001-01-01T00:00:00Z"

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
