package statuses

import (
	"context"

	"github.com/dmitrijs2005/outofsight/internal/ledger"
)

// Repository is the Postgres face of the status ledger.
type Repository interface {
	ledger.Store
	SeedCatalog(ctx context.Context, entries []ledger.Entry) error
}
