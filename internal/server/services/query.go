package services

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/outofsight/internal/common"
	"github.com/dmitrijs2005/outofsight/internal/ledger"
	"github.com/dmitrijs2005/outofsight/internal/server/models"
)

// Get returns a file with its status history. Failed files stay visible so
// callers polling a submitted upload can see the outcome.
func (s *TransferService) Get(ctx context.Context, fileID, ownerID string) (*FileView, error) {
	file, err := s.loadOwned(ctx, fileID, ownerID)
	if err != nil {
		return nil, err
	}
	if file.Status == ledger.StatusDeleted {
		return nil, common.ErrorNotFound
	}

	history, err := s.ledger().History(ctx, file.ID)
	if err != nil {
		return nil, fmt.Errorf("error loading history: %w", err)
	}
	return &FileView{File: file, History: history}, nil
}

// List returns the owner's files, oldest first. Failed and deleted files are
// left out unless includeHidden is set.
func (s *TransferService) List(ctx context.Context, ownerID string, includeHidden bool) ([]*models.File, error) {
	all, err := s.repomanager.Files(s.db).ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("error listing files: %w", err)
	}
	if includeHidden {
		return all, nil
	}

	visible := make([]*models.File, 0, len(all))
	for _, f := range all {
		if !f.Status.Hidden() {
			visible = append(visible, f)
		}
	}
	return visible, nil
}
