package files

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/outofsight/internal/common"
	"github.com/dmitrijs2005/outofsight/internal/ledger"
	"github.com/dmitrijs2005/outofsight/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

var fileColumns = []string{"id", "filename", "file_type", "size_kb", "owner_id", "locator", "created_at", "status"}

func TestCreate_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`(?s)^\s*INSERT\s+INTO\s+files\b.*RETURNING\s+created_at`).
		WithArgs("f1", "report.pdf", ".pdf", 2.5, "u1").
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(now))

	f := &models.File{ID: "f1", Filename: "report.pdf", FileType: ".pdf", SizeKB: 2.5, OwnerID: "u1"}
	require.NoError(t, repo.Create(context.Background(), f))
	assert.Equal(t, now, f.CreatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`INSERT\s+INTO\s+files`).WillReturnError(errors.New("db down"))

	err := repo.Create(context.Background(), &models.File{ID: "f1"})
	require.Error(t, err)
}

func TestGetByID_Found(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now().UTC()
	mock.ExpectQuery(`(?s)SELECT\s+f\.id.*FROM\s+files\s+f.*LATERAL.*WHERE\s+f\.id\s*=\s*\$1`).
		WithArgs("f1").
		WillReturnRows(sqlmock.NewRows(fileColumns).
			AddRow("f1", "a.txt", ".txt", 1.0, "u1", "s3://b/u1/f1", now, "completed"))

	f, err := repo.GetByID(context.Background(), "f1")
	require.NoError(t, err)
	require.NotNil(t, f.Locator)
	assert.Equal(t, "s3://b/u1/f1", *f.Locator)
	assert.Equal(t, ledger.StatusCompleted, f.Status)
	assert.True(t, f.Located())
}

func TestGetByID_NullLocator(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT`).
		WithArgs("f1").
		WillReturnRows(sqlmock.NewRows(fileColumns).
			AddRow("f1", "a.txt", ".txt", 1.0, "u1", nil, time.Now(), "received"))

	f, err := repo.GetByID(context.Background(), "f1")
	require.NoError(t, err)
	assert.Nil(t, f.Locator)
	assert.False(t, f.Located())
	assert.Equal(t, ledger.StatusReceived, f.Status)
}

func TestGetByID_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT`).WithArgs("nope").WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "nope")
	require.ErrorIs(t, err, common.ErrorNotFound)
}

func TestGetByID_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT`).WithArgs("f1").WillReturnError(errors.New("timeout"))

	_, err := repo.GetByID(context.Background(), "f1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, common.ErrorNotFound)
}

func TestSetLocator(t *testing.T) {
	q := `UPDATE\s+files\s+SET\s+locator\s*=\s*\$2\s+WHERE\s+id\s*=\s*\$1\s+AND\s+locator\s+IS\s+NULL`

	t.Run("ok", func(t *testing.T) {
		repo, mock, db := newRepoWithMock(t)
		defer db.Close()
		mock.ExpectExec(q).WithArgs("f1", "s3://b/k").WillReturnResult(sqlmock.NewResult(0, 1))
		require.NoError(t, repo.SetLocator(context.Background(), "f1", "s3://b/k"))
	})

	t.Run("already set", func(t *testing.T) {
		repo, mock, db := newRepoWithMock(t)
		defer db.Close()
		mock.ExpectExec(q).WithArgs("f1", "s3://b/k").WillReturnResult(sqlmock.NewResult(0, 0))
		require.Error(t, repo.SetLocator(context.Background(), "f1", "s3://b/k"))
	})

	t.Run("exec error", func(t *testing.T) {
		repo, mock, db := newRepoWithMock(t)
		defer db.Close()
		mock.ExpectExec(q).WillReturnError(errors.New("db down"))
		require.Error(t, repo.SetLocator(context.Background(), "f1", "s3://b/k"))
	})

	t.Run("rows affected error", func(t *testing.T) {
		repo, mock, db := newRepoWithMock(t)
		defer db.Close()
		mock.ExpectExec(q).WillReturnResult(sqlmock.NewErrorResult(errors.New("ra")))
		require.Error(t, repo.SetLocator(context.Background(), "f1", "s3://b/k"))
	})
}

func TestListByOwner(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now().UTC()
	mock.ExpectQuery(`(?s)SELECT.*WHERE\s+f\.owner_id\s*=\s*\$1.*ORDER\s+BY`).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows(fileColumns).
			AddRow("f1", "a.txt", ".txt", 1.0, "u1", "s3://b/u1/f1", now, "completed").
			AddRow("f2", "b", "", 0.0, "u1", nil, now, "failed"))

	got, err := repo.ListByOwner(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "f1", got[0].ID)
	assert.Equal(t, ledger.StatusFailed, got[1].Status)
	assert.Nil(t, got[1].Locator)
}

func TestListByOwner_Errors(t *testing.T) {
	t.Run("query", func(t *testing.T) {
		repo, mock, db := newRepoWithMock(t)
		defer db.Close()
		mock.ExpectQuery(`SELECT`).WillReturnError(errors.New("boom"))
		_, err := repo.ListByOwner(context.Background(), "u1")
		require.Error(t, err)
	})

	t.Run("scan", func(t *testing.T) {
		repo, mock, db := newRepoWithMock(t)
		defer db.Close()
		mock.ExpectQuery(`SELECT`).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("f1"))
		_, err := repo.ListByOwner(context.Background(), "u1")
		require.Error(t, err)
	})

	t.Run("rows err", func(t *testing.T) {
		repo, mock, db := newRepoWithMock(t)
		defer db.Close()
		mock.ExpectQuery(`SELECT`).
			WillReturnRows(sqlmock.NewRows(fileColumns).
				AddRow("f1", "a", "", 0.0, "u1", nil, time.Now(), "received").
				RowError(0, errors.New("row broken")))
		_, err := repo.ListByOwner(context.Background(), "u1")
		require.Error(t, err)
	})
}
