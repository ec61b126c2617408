// Package rows stores the synced tables of the reference server. Every table
// has the same shape: an id, the entity payload as a JSON document, and the
// two timestamps the sync client compares.
package rows

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/tendercrm/internal/entities"
)

var (
	// ErrConflict is returned when an insert reuses an existing id.
	ErrConflict = errors.New("row already exists")
	ErrBadOrder = errors.New("invalid order")
)

// Row is one stored record. Data never contains the column fields.
type Row struct {
	ID        string
	Data      json.RawMessage
	CreatedAt time.Time
	UpdatedAt time.Time
}

var columnFields = []string{"id", "created_at", "updated_at"}

// FromEntity splits e into its columns and payload.
func FromEntity(e entities.Entity) (Row, error) {
	raw, err := json.Marshal(e)
	if err != nil {
		return Row{}, err
	}
	fields, err := decodeObject(raw)
	if err != nil {
		return Row{}, err
	}
	for _, k := range columnFields {
		delete(fields, k)
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return Row{}, err
	}

	return Row{
		ID:        e.GetID(),
		Data:      data,
		CreatedAt: e.Created().UTC(),
		UpdatedAt: e.Updated().UTC(),
	}, nil
}

// Render returns the flat representation served by the API: the payload
// with the column fields merged in.
func (r Row) Render() (json.RawMessage, error) {
	fields := map[string]any{}
	if len(bytes.TrimSpace(r.Data)) > 0 {
		var err error
		if fields, err = decodeObject(r.Data); err != nil {
			return nil, fmt.Errorf("row %s: %w", r.ID, err)
		}
	}
	fields["id"] = r.ID
	fields["created_at"] = r.CreatedAt.UTC()
	fields["updated_at"] = r.UpdatedAt.UTC()
	return json.Marshal(fields)
}

// Entity decodes the rendered row as the entity kind stored in table.
func (r Row) Entity(table entities.Table) (entities.Entity, error) {
	raw, err := r.Render()
	if err != nil {
		return nil, err
	}
	return entities.Decode(table, raw)
}

func decodeObject(raw []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	fields := map[string]any{}
	if err := dec.Decode(&fields); err != nil {
		return nil, err
	}
	return fields, nil
}

// Order is a PostgREST style ordering on one column. Ties are broken by id in
// the same direction.
type Order struct {
	Column string
	Desc   bool
}

// DefaultOrder lists newest rows first.
var DefaultOrder = Order{Column: "created_at", Desc: true}

// ParseOrder accepts "<column>[.asc|.desc]" where column is id, created_at or
// updated_at. An empty string yields DefaultOrder.
func ParseOrder(s string) (Order, error) {
	if s == "" {
		return DefaultOrder, nil
	}

	column, dir, _ := strings.Cut(s, ".")
	o := Order{Column: column}
	switch dir {
	case "", "asc":
	case "desc":
		o.Desc = true
	default:
		return Order{}, fmt.Errorf("%w: direction %q", ErrBadOrder, dir)
	}

	switch column {
	case "id", "created_at", "updated_at":
	default:
		return Order{}, fmt.Errorf("%w: column %q", ErrBadOrder, column)
	}
	return o, nil
}

// SQL renders the ORDER BY clause body.
func (o Order) SQL() string {
	dir := "ASC"
	if o.Desc {
		dir = "DESC"
	}
	if o.Column == "id" {
		return "id " + dir
	}
	return o.Column + " " + dir + ", id " + dir
}
