// Package entities defines the closed set of record kinds that the CRM
// keeps in sync: tenders, suppliers and expenses. Client and server share it.
package entities

import (
	"errors"
	"fmt"
)

// ErrUnknownTable is returned for a table name outside the synced set.
var ErrUnknownTable = errors.New("unknown table")

// Table names one entity collection. Values double as SQL table names.
type Table string

const (
	Tenders   Table = "tenders"
	Suppliers Table = "suppliers"
	Expenses  Table = "expenses"
)

// Tables lists every synced table in a stable order.
var Tables = []Table{Tenders, Suppliers, Expenses}

func (t Table) Valid() bool {
	switch t {
	case Tenders, Suppliers, Expenses:
		return true
	}
	return false
}

func (t Table) String() string { return string(t) }

// ParseTable validates s against the known tables.
func ParseTable(s string) (Table, error) {
	t := Table(s)
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownTable, s)
	}
	return t, nil
}
