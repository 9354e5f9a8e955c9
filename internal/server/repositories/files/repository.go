package files

import (
	"context"

	"github.com/dmitrijs2005/outofsight/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, file *models.File) error
	GetByID(ctx context.Context, id string) (*models.File, error)
	SetLocator(ctx context.Context, id string, locator string) error
	ListByOwner(ctx context.Context, ownerID string) ([]*models.File, error)
}
