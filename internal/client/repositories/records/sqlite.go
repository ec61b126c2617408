package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/tendercrm/internal/client/models"
	"github.com/dmitrijs2005/tendercrm/internal/dbx"
	"github.com/dmitrijs2005/tendercrm/internal/entities"
	"github.com/dmitrijs2005/tendercrm/internal/timex"
)

const selectColumns = `id, data, updated_at, synced, deleted`

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db dbx.DBTX
}

// NewSQLiteRepository returns a new SQLiteRepository bound to the given DBTX.
func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func tableName(table entities.Table) (string, error) {
	if !table.Valid() {
		return "", fmt.Errorf("%w: %q", entities.ErrUnknownTable, table)
	}
	return string(table), nil
}

func (r *SQLiteRepository) GetAll(ctx context.Context, table entities.Table) ([]models.Record, error) {
	name, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return r.query(ctx, table, `SELECT `+selectColumns+` FROM `+name+` ORDER BY updated_at DESC, id`)
}

func (r *SQLiteRepository) GetByID(ctx context.Context, table entities.Table, id string) (*models.Record, error) {
	name, err := tableName(table)
	if err != nil {
		return nil, err
	}

	row := r.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM `+name+` WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s[%s]: %w", table, id, err)
	}
	return &rec, nil
}

func (r *SQLiteRepository) Save(ctx context.Context, table entities.Table, rec models.Record) error {
	name, err := tableName(table)
	if err != nil {
		return err
	}
	if rec.ID == "" {
		return fmt.Errorf("failed to save %s record: empty id", table)
	}

	query := `INSERT INTO ` + name + ` (id, data, updated_at, synced, deleted)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET data = excluded.data,
			updated_at = excluded.updated_at,
			synced = excluded.synced,
			deleted = excluded.deleted`

	_, err = r.db.ExecContext(ctx, query,
		rec.ID, string(rec.Data), timex.FormatISO(rec.UpdatedAt), rec.Synced, rec.Deleted)
	if err != nil {
		return fmt.Errorf("failed to upsert %s[%s]: %w", table, rec.ID, err)
	}
	return nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, table entities.Table, id string) error {
	name, err := tableName(table)
	if err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, `DELETE FROM `+name+` WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete %s[%s]: %w", table, id, err)
	}
	return nil
}

func (r *SQLiteRepository) Clear(ctx context.Context, table entities.Table) error {
	name, err := tableName(table)
	if err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, `DELETE FROM `+name); err != nil {
		return fmt.Errorf("failed to clear %s: %w", table, err)
	}
	return nil
}

func (r *SQLiteRepository) GetUnsynced(ctx context.Context, table entities.Table) ([]models.Record, error) {
	name, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return r.query(ctx, table, `SELECT `+selectColumns+` FROM `+name+` WHERE synced = 0 ORDER BY updated_at, id`)
}

func (r *SQLiteRepository) MarkAsSynced(ctx context.Context, table entities.Table, id string) error {
	name, err := tableName(table)
	if err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, `UPDATE `+name+` SET synced = 1 WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to mark %s[%s] as synced: %w", table, id, err)
	}
	return nil
}

func (r *SQLiteRepository) SyncedIDs(ctx context.Context, table entities.Table) ([]string, error) {
	name, err := tableName(table)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, `SELECT id FROM `+name+` WHERE synced = 1`)
	if err != nil {
		return nil, fmt.Errorf("failed to select synced %s ids: %w", table, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan %s id: %w", table, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s ids: %w", table, err)
	}
	return ids, nil
}

func (r *SQLiteRepository) Count(ctx context.Context, table entities.Table) (int, error) {
	name, err := tableName(table)
	if err != nil {
		return 0, err
	}

	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+name).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", table, err)
	}
	return n, nil
}

func (r *SQLiteRepository) query(ctx context.Context, table entities.Table, query string) ([]models.Record, error) {
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to select %s: %w", table, err)
	}
	defer rows.Close()

	result := []models.Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", table, err)
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s rows: %w", table, err)
	}
	return result, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (models.Record, error) {
	var (
		rec       models.Record
		data      string
		updatedAt string
	)
	if err := s.Scan(&rec.ID, &data, &updatedAt, &rec.Synced, &rec.Deleted); err != nil {
		return models.Record{}, err
	}

	ts, err := timex.ParseISO(updatedAt)
	if err != nil {
		return models.Record{}, fmt.Errorf("bad updated_at %q: %w", updatedAt, err)
	}

	rec.Data = []byte(data)
	rec.UpdatedAt = ts
	return rec, nil
}
