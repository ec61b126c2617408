package entities

import (
	"encoding/json"
	"fmt"
	"time"
)

// Entity is implemented only by the types in this package, which makes the
// set of kinds flowing through the queue closed and switchable.
type Entity interface {
	Table() Table
	GetID() string
	SetID(id string)
	// Touch stamps UpdatedAt with now and CreatedAt too when it is unset.
	Touch(now time.Time)
	Created() time.Time
	Updated() time.Time
	sealed()
}

// Base carries the columns every synced row has.
type Base struct {
	ID        string    `json:"id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (b *Base) GetID() string      { return b.ID }
func (b *Base) SetID(id string)    { b.ID = id }
func (b *Base) Created() time.Time { return b.CreatedAt }
func (b *Base) Updated() time.Time { return b.UpdatedAt }
func (b *Base) sealed()            {}

func (b *Base) Touch(now time.Time) {
	now = now.UTC()
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	b.UpdatedAt = now
}

// Tender is a bid or contract the company is pursuing.
type Tender struct {
	Base
	Name        string     `json:"name" validate:"required,max=500"`
	Number      string     `json:"number,omitempty" validate:"max=100"`
	Customer    string     `json:"customer,omitempty" validate:"max=500"`
	Status      string     `json:"status,omitempty" validate:"max=50"`
	Amount      float64    `json:"amount,omitempty" validate:"gte=0"`
	Currency    string     `json:"currency,omitempty" validate:"omitempty,len=3"`
	Deadline    *time.Time `json:"deadline,omitempty"`
	Description string     `json:"description,omitempty"`
}

func (*Tender) Table() Table { return Tenders }

// Supplier is a vendor that tenders are fulfilled with.
type Supplier struct {
	Base
	Name          string `json:"name" validate:"required,max=500"`
	TaxID         string `json:"tax_id,omitempty" validate:"max=50"`
	ContactPerson string `json:"contact_person,omitempty" validate:"max=200"`
	Email         string `json:"email,omitempty" validate:"omitempty,email"`
	Phone         string `json:"phone,omitempty" validate:"max=50"`
	Notes         string `json:"notes,omitempty"`
}

func (*Supplier) Table() Table { return Suppliers }

// Expense is money spent, optionally attributed to a tender.
type Expense struct {
	Base
	TenderID    string     `json:"tender_id,omitempty"`
	Category    string     `json:"category,omitempty" validate:"max=100"`
	Description string     `json:"description,omitempty"`
	Amount      float64    `json:"amount" validate:"gte=0"`
	Currency    string     `json:"currency,omitempty" validate:"omitempty,len=3"`
	SpentOn     *time.Time `json:"spent_on,omitempty"`
}

func (*Expense) Table() Table { return Expenses }

// New returns an empty entity of the kind stored in table.
func New(table Table) (Entity, error) {
	switch table {
	case Tenders:
		return &Tender{}, nil
	case Suppliers:
		return &Supplier{}, nil
	case Expenses:
		return &Expense{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownTable, table)
}

// Decode unmarshals raw into the entity kind stored in table.
func Decode(table Table, raw []byte) (Entity, error) {
	e, err := New(table)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, e); err != nil {
		return nil, fmt.Errorf("failed to decode %s row: %w", table, err)
	}
	return e, nil
}

// Reference returns an entity of the given kind carrying only its id, the
// payload queued for deletes.
func Reference(table Table, id string) (Entity, error) {
	e, err := New(table)
	if err != nil {
		return nil, err
	}
	e.SetID(id)
	return e, nil
}

// Merge overlays a shallow patch of JSON fields on e and returns the result
// as a fresh entity of the same kind.
func Merge(e Entity, patch map[string]any) (Entity, error) {
	raw, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}

	fields := map[string]any{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	for k, v := range patch {
		fields[k] = v
	}

	merged, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}
	return Decode(e.Table(), merged)
}
