package files

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/outofsight/internal/common"
	"github.com/dmitrijs2005/outofsight/internal/dbx"
	"github.com/dmitrijs2005/outofsight/internal/ledger"
	"github.com/dmitrijs2005/outofsight/internal/server/models"
)

// PostgresRepository implements file storage over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// currentStatus picks the latest history row per file.
const currentStatus = `
	LEFT JOIN LATERAL (
		SELECT h.status FROM file_status_history h
		WHERE h.file_id = f.id
		ORDER BY h.created_at DESC, h.seq DESC
		LIMIT 1
	) s ON true`

// Create inserts a new file record and fills CreatedAt from the database.
func (r *PostgresRepository) Create(ctx context.Context, file *models.File) error {
	query := `
		INSERT INTO files (id, filename, file_type, size_kb, owner_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`

	err := r.db.QueryRowContext(ctx, query,
		file.ID, file.Filename, file.FileType, file.SizeKB, file.OwnerID).Scan(&file.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert file: %w", err)
	}
	return nil
}

// GetByID returns the file with its current status, or common.ErrorNotFound.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.File, error) {
	query := `
		SELECT f.id, f.filename, f.file_type, f.size_kb, f.owner_id, f.locator, f.created_at, COALESCE(s.status, '')
		FROM files f` + currentStatus + `
		WHERE f.id = $1`

	f, err := scanFile(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select file: %w", err)
	}
	return f, nil
}

// SetLocator stores the object locator. It succeeds only once per file:
// a record that already has a locator is left untouched and an error is
// returned.
func (r *PostgresRepository) SetLocator(ctx context.Context, id string, locator string) error {
	query := `UPDATE files SET locator = $2 WHERE id = $1 AND locator IS NULL`

	res, err := r.db.ExecContext(ctx, query, id, locator)
	if err != nil {
		return fmt.Errorf("failed to set locator: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n != 1 {
		return fmt.Errorf("wrong rows affected count: %d", n)
	}
	return nil
}

// ListByOwner returns the owner's files, oldest first, with current statuses.
func (r *PostgresRepository) ListByOwner(ctx context.Context, ownerID string) ([]*models.File, error) {
	query := `
		SELECT f.id, f.filename, f.file_type, f.size_kb, f.owner_id, f.locator, f.created_at, COALESCE(s.status, '')
		FROM files f` + currentStatus + `
		WHERE f.owner_id = $1
		ORDER BY f.created_at, f.id`

	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to select files: %w", err)
	}
	defer rows.Close()

	var result []*models.File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanFile(row scanner) (*models.File, error) {
	var (
		f       models.File
		locator sql.NullString
		status  string
	)
	if err := row.Scan(&f.ID, &f.Filename, &f.FileType, &f.SizeKB, &f.OwnerID, &locator, &f.CreatedAt, &status); err != nil {
		return nil, err
	}
	if locator.Valid {
		f.Locator = &locator.String
	}
	f.Status = ledger.Status(status)
	return &f, nil
}
