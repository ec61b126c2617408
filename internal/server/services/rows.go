// Package services contains server-side business logic. RowService turns
// PostgREST style requests into validated row writes.
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/tendercrm/internal/entities"
	"github.com/dmitrijs2005/tendercrm/internal/logging"
	"github.com/dmitrijs2005/tendercrm/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/tendercrm/internal/server/repositories/rows"
)

// ErrBadRequest marks payloads that cannot be applied as sent.
var ErrBadRequest = errors.New("bad request")

// RowService provides the table operations of the REST API:
// - List/Get: read rendered rows
// - Insert: validate, assign ids, stamp missing timestamps
// - Update: shallow merge inside a transaction
// - Delete
type RowService struct {
	repomanager repomanager.RepositoryManager
	validator   *entities.Validator
	logger      logging.Logger
	now         func() time.Time
}

func NewRowService(m repomanager.RepositoryManager, logger logging.Logger) *RowService {
	return &RowService{
		repomanager: m,
		validator:   entities.NewValidator(),
		logger:      logger.With("module", "row_service"),
		now:         time.Now,
	}
}

func (s *RowService) List(ctx context.Context, table entities.Table, order rows.Order) ([]json.RawMessage, error) {
	list, err := s.repomanager.Rows().List(ctx, table, order)
	if err != nil {
		return nil, err
	}
	return render(list...)
}

// Get returns common.ErrNotFound when no row has id.
func (s *RowService) Get(ctx context.Context, table entities.Table, id string) (json.RawMessage, error) {
	row, err := s.repomanager.Rows().Get(ctx, table, id)
	if err != nil {
		return nil, err
	}
	return row.Render()
}

// Insert stores every payload in one transaction. A payload without an id
// gets a UUID. Timestamps sent by the client are edit times and are kept;
// missing ones default to the server clock.
func (s *RowService) Insert(ctx context.Context, table entities.Table, payloads []json.RawMessage) ([]json.RawMessage, error) {
	prepared := make([]rows.Row, 0, len(payloads))
	for _, p := range payloads {
		row, err := s.prepareInsert(table, p)
		if err != nil {
			return nil, err
		}
		prepared = append(prepared, row)
	}

	var saved []rows.Row
	err := s.repomanager.InTx(ctx, func(ctx context.Context, repo rows.Repository) error {
		saved = saved[:0]
		for _, row := range prepared {
			out, err := repo.Insert(ctx, table, row)
			if err != nil {
				return err
			}
			saved = append(saved, out)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug(ctx, "rows inserted", "table", table, "count", len(saved))
	return render(saved...)
}

func (s *RowService) prepareInsert(table entities.Table, payload json.RawMessage) (rows.Row, error) {
	e, err := entities.Decode(table, payload)
	if err != nil {
		if errors.Is(err, entities.ErrUnknownTable) {
			return rows.Row{}, err
		}
		return rows.Row{}, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	if err := s.validator.Validate(e); err != nil {
		return rows.Row{}, err
	}
	if e.GetID() == "" {
		e.SetID(uuid.NewString())
	}

	row, err := rows.FromEntity(e)
	if err != nil {
		return rows.Row{}, err
	}
	now := s.now().UTC()
	if row.CreatedAt.IsZero() {
		row.CreatedAt = now
	}
	if row.UpdatedAt.IsZero() {
		row.UpdatedAt = now
	}
	return row, nil
}

// Update overlays patch on the row with id and returns the result, or
// common.ErrNotFound. The id cannot change and created_at is ignored;
// updated_at is taken from the patch when present.
func (s *RowService) Update(ctx context.Context, table entities.Table, id string, patch json.RawMessage) (json.RawMessage, error) {
	if !table.Valid() {
		return nil, fmt.Errorf("%w: %q", entities.ErrUnknownTable, table)
	}

	fields := map[string]any{}
	dec := json.NewDecoder(bytes.NewReader(patch))
	if err := dec.Decode(&fields); err != nil {
		return nil, fmt.Errorf("%w: patch must be a JSON object: %v", ErrBadRequest, err)
	}
	if v, ok := fields["id"]; ok && v != id {
		return nil, fmt.Errorf("%w: id cannot be changed", ErrBadRequest)
	}
	delete(fields, "created_at")
	_, stamped := fields["updated_at"]

	var out json.RawMessage
	err := s.repomanager.InTx(ctx, func(ctx context.Context, repo rows.Repository) error {
		cur, err := repo.Get(ctx, table, id)
		if err != nil {
			return err
		}
		e, err := cur.Entity(table)
		if err != nil {
			return err
		}
		merged, err := entities.Merge(e, fields)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrBadRequest, err)
		}
		if err := s.validator.Validate(merged); err != nil {
			return err
		}

		row, err := rows.FromEntity(merged)
		if err != nil {
			return err
		}
		if !stamped || row.UpdatedAt.IsZero() {
			row.UpdatedAt = s.now().UTC()
		}

		saved, err := repo.Update(ctx, table, row)
		if err != nil {
			return err
		}
		out, err = saved.Render()
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Delete removes the row with id and returns it, or common.ErrNotFound.
func (s *RowService) Delete(ctx context.Context, table entities.Table, id string) (json.RawMessage, error) {
	row, err := s.repomanager.Rows().Delete(ctx, table, id)
	if err != nil {
		return nil, err
	}
	return row.Render()
}

func render(list ...rows.Row) ([]json.RawMessage, error) {
	out := make([]json.RawMessage, 0, len(list))
	for _, r := range list {
		raw, err := r.Render()
		if err != nil {
			return nil, err
		}
		out = append(out, raw)
	}
	return out, nil
}
