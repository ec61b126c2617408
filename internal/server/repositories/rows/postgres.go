package rows

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dmitrijs2005/tendercrm/internal/common"
	"github.com/dmitrijs2005/tendercrm/internal/dbx"
	"github.com/dmitrijs2005/tendercrm/internal/entities"
)

const uniqueViolation = "23505"

const columns = "id, data, created_at, updated_at"

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) List(ctx context.Context, table entities.Table, order Order) ([]Row, error) {
	if !table.Valid() {
		return nil, fmt.Errorf("%w: %q", entities.ErrUnknownTable, table)
	}

	query := fmt.Sprintf(`SELECT %s FROM %s ORDER BY %s`, columns, table, order.SQL())

	rs, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rs.Close()

	var out []Row
	for rs.Next() {
		var row Row
		var data []byte
		if err := rs.Scan(&row.ID, &data, &row.CreatedAt, &row.UpdatedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		row.Data = data
		out = append(out, row)
	}
	if err := rs.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) Get(ctx context.Context, table entities.Table, id string) (Row, error) {
	if !table.Valid() {
		return Row{}, fmt.Errorf("%w: %q", entities.ErrUnknownTable, table)
	}

	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, columns, table)
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) Insert(ctx context.Context, table entities.Table, row Row) (Row, error) {
	if !table.Valid() {
		return Row{}, fmt.Errorf("%w: %q", entities.ErrUnknownTable, table)
	}

	query := fmt.Sprintf(
		`INSERT INTO %s (id, data, created_at, updated_at)
		 VALUES ($1, $2, $3, $4)
		 RETURNING %s`, table, columns)

	out, err := r.scanOne(r.db.QueryRowContext(ctx, query, row.ID, string(row.Data), row.CreatedAt, row.UpdatedAt))
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return Row{}, fmt.Errorf("%s[%s]: %w", table, row.ID, ErrConflict)
	}
	return out, err
}

// Update replaces data and updated_at. created_at is immutable.
func (r *PostgresRepository) Update(ctx context.Context, table entities.Table, row Row) (Row, error) {
	if !table.Valid() {
		return Row{}, fmt.Errorf("%w: %q", entities.ErrUnknownTable, table)
	}

	query := fmt.Sprintf(
		`UPDATE %s SET data = $2, updated_at = $3
		 WHERE id = $1
		 RETURNING %s`, table, columns)

	return r.scanOne(r.db.QueryRowContext(ctx, query, row.ID, string(row.Data), row.UpdatedAt))
}

func (r *PostgresRepository) Delete(ctx context.Context, table entities.Table, id string) (Row, error) {
	if !table.Valid() {
		return Row{}, fmt.Errorf("%w: %q", entities.ErrUnknownTable, table)
	}

	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1 RETURNING %s`, table, columns)
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) scanOne(s *sql.Row) (Row, error) {
	var row Row
	var data []byte
	if err := s.Scan(&row.ID, &data, &row.CreatedAt, &row.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Row{}, common.ErrNotFound
		}
		return Row{}, fmt.Errorf("db error: %w", err)
	}
	row.Data = data
	return row, nil
}
