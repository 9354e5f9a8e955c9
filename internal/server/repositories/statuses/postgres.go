package statuses

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/outofsight/internal/dbx"
	"github.com/dmitrijs2005/outofsight/internal/ledger"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// SeedCatalog makes file_statuses match entries. Safe to run on every start.
func (r *PostgresRepository) SeedCatalog(ctx context.Context, entries []ledger.Entry) error {
	query := `
		INSERT INTO file_statuses (name, description)
		VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET description = EXCLUDED.description`

	for _, e := range entries {
		if _, err := r.db.ExecContext(ctx, query, string(e.Status), e.Description); err != nil {
			return fmt.Errorf("seed status %s: %w", e.Status, err)
		}
	}
	return nil
}

// Append inserts (fileID, status) unless it exists and returns the stored row.
// created is false when the row was already there; the unique constraint
// makes a concurrent duplicate see zero affected rows.
func (r *PostgresRepository) Append(ctx context.Context, fileID string, status ledger.Status) (ledger.Event, bool, error) {
	insert := `
		INSERT INTO file_status_history (file_id, status)
		VALUES ($1, $2)
		ON CONFLICT (file_id, status) DO NOTHING`

	res, err := r.db.ExecContext(ctx, insert, fileID, string(status))
	if err != nil {
		return ledger.Event{}, false, fmt.Errorf("insert status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return ledger.Event{}, false, fmt.Errorf("insert status: %w", err)
	}

	query := `
		SELECT file_id, status, created_at, seq
		FROM file_status_history
		WHERE file_id = $1 AND status = $2`

	var (
		ev ledger.Event
		st string
	)
	if err := r.db.QueryRowContext(ctx, query, fileID, string(status)).Scan(&ev.FileID, &st, &ev.CreatedAt, &ev.Seq); err != nil {
		return ledger.Event{}, false, fmt.Errorf("select status: %w", err)
	}
	ev.Status = ledger.Status(st)
	return ev, n == 1, nil
}

// History returns the file's events ordered by time, then insertion order.
func (r *PostgresRepository) History(ctx context.Context, fileID string) ([]ledger.Event, error) {
	query := `
		SELECT file_id, status, created_at, seq
		FROM file_status_history
		WHERE file_id = $1
		ORDER BY created_at, seq`

	rows, err := r.db.QueryContext(ctx, query, fileID)
	if err != nil {
		return nil, fmt.Errorf("failed to select history: %w", err)
	}
	defer rows.Close()

	var result []ledger.Event
	for rows.Next() {
		var (
			ev ledger.Event
			st string
		)
		if err := rows.Scan(&ev.FileID, &st, &ev.CreatedAt, &ev.Seq); err != nil {
			return nil, err
		}
		ev.Status = ledger.Status(st)
		result = append(result, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
