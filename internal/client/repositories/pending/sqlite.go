package pending

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/tendercrm/internal/client/models"
	"github.com/dmitrijs2005/tendercrm/internal/common"
	"github.com/dmitrijs2005/tendercrm/internal/dbx"
	"github.com/dmitrijs2005/tendercrm/internal/entities"
	"github.com/dmitrijs2005/tendercrm/internal/timex"
)

const selectColumns = `id, table_name, action, record_id, data, timestamp, retries, revision`

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Add(ctx context.Context, ch models.PendingChange) error {
	data, err := encodePayload(ch)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO pending_changes (id, table_name, action, record_id, data, timestamp, retries, revision)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ch.ID, string(ch.Table), string(ch.Action), ch.RecordID, data,
		timex.FormatISO(ch.Timestamp), ch.Retries, ch.Revision)
	if err != nil {
		return fmt.Errorf("failed to add pending change %s: %w", ch.ID, err)
	}
	return nil
}

func (r *SQLiteRepository) List(ctx context.Context) ([]models.PendingChange, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+selectColumns+` FROM pending_changes ORDER BY timestamp ASC, rowid ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending changes: %w", err)
	}
	defer rows.Close()

	result := []models.PendingChange{}
	for rows.Next() {
		ch, err := scanChange(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, ch)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate pending changes: %w", err)
	}
	return result, nil
}

func (r *SQLiteRepository) Get(ctx context.Context, id string) (*models.PendingChange, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM pending_changes WHERE id = ?`, id)
	return scanOne(row, id)
}

func (r *SQLiteRepository) FindByRecord(ctx context.Context, table entities.Table, recordID string) (*models.PendingChange, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM pending_changes
		WHERE table_name = ? AND record_id = ?
		ORDER BY timestamp ASC, rowid ASC LIMIT 1`, string(table), recordID)
	return scanOne(row, string(table)+"/"+recordID)
}

func (r *SQLiteRepository) Replace(ctx context.Context, ch models.PendingChange) error {
	data, err := encodePayload(ch)
	if err != nil {
		return err
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE pending_changes SET action = ?, record_id = ?, data = ?, revision = ?
		WHERE id = ?`,
		string(ch.Action), ch.RecordID, data, ch.Revision, ch.ID)
	if err != nil {
		return fmt.Errorf("failed to replace pending change %s: %w", ch.ID, err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if ra != 1 {
		return fmt.Errorf("pending change %s: %w", ch.ID, common.ErrNotFound)
	}
	return nil
}

func (r *SQLiteRepository) Remove(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM pending_changes WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to remove pending change %s: %w", id, err)
	}
	return nil
}

func (r *SQLiteRepository) RemoveByRecord(ctx context.Context, table entities.Table, recordID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM pending_changes WHERE table_name = ? AND record_id = ?`, string(table), recordID)
	if err != nil {
		return fmt.Errorf("failed to remove pending changes of %s[%s]: %w", table, recordID, err)
	}
	return nil
}

func (r *SQLiteRepository) IncrementRetries(ctx context.Context, id string) (int, error) {
	var retries int
	err := r.db.QueryRowContext(ctx,
		`UPDATE pending_changes SET retries = retries + 1 WHERE id = ? RETURNING retries`, id).Scan(&retries)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("pending change %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to increment retries of %s: %w", id, err)
	}
	return retries, nil
}

func (r *SQLiteRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pending_changes`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count pending changes: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) Clear(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM pending_changes`); err != nil {
		return fmt.Errorf("failed to clear pending changes: %w", err)
	}
	return nil
}

func encodePayload(ch models.PendingChange) (string, error) {
	if ch.Payload == nil {
		return "", fmt.Errorf("pending change %s has no payload", ch.ID)
	}
	if ch.Payload.Table() != ch.Table {
		return "", fmt.Errorf("pending change %s: payload kind %s does not match table %s", ch.ID, ch.Payload.Table(), ch.Table)
	}
	b, err := json.Marshal(ch.Payload)
	if err != nil {
		return "", fmt.Errorf("failed to encode payload of %s: %w", ch.ID, err)
	}
	return string(b), nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOne(row scanner, key string) (*models.PendingChange, error) {
	ch, err := scanChange(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pending change %s: %w", key, err)
	}
	return &ch, nil
}

func scanChange(s scanner) (models.PendingChange, error) {
	var (
		ch             models.PendingChange
		table, action  string
		data, tsString string
	)
	if err := s.Scan(&ch.ID, &table, &action, &ch.RecordID, &data, &tsString, &ch.Retries, &ch.Revision); err != nil {
		return models.PendingChange{}, err
	}

	t, err := entities.ParseTable(table)
	if err != nil {
		return models.PendingChange{}, fmt.Errorf("pending change %s: %w", ch.ID, err)
	}
	ch.Table = t

	ch.Action = models.Action(action)
	if !ch.Action.Valid() {
		return models.PendingChange{}, fmt.Errorf("pending change %s: unknown action %q", ch.ID, action)
	}

	ch.Payload, err = entities.Decode(t, []byte(data))
	if err != nil {
		return models.PendingChange{}, fmt.Errorf("pending change %s: %w", ch.ID, err)
	}

	ch.Timestamp, err = timex.ParseISO(tsString)
	if err != nil {
		return models.PendingChange{}, fmt.Errorf("pending change %s: bad timestamp %q: %w", ch.ID, tsString, err)
	}
	return ch, nil
}
