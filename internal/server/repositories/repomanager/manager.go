package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/outofsight/internal/dbx"
	"github.com/dmitrijs2005/outofsight/internal/server/repositories/files"
	"github.com/dmitrijs2005/outofsight/internal/server/repositories/statuses"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Files(db dbx.DBTX) files.Repository
	Statuses(db dbx.DBTX) statuses.Repository
}
