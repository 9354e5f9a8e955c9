package services

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/outofsight/internal/common"
	"github.com/dmitrijs2005/outofsight/internal/ledger"
	"github.com/dmitrijs2005/outofsight/internal/metrics"
	"github.com/dmitrijs2005/outofsight/internal/objectstore"
)

// Delete removes a file's object and records deleted. Failed files have no
// object, so only the status is recorded.
func (s *TransferService) Delete(ctx context.Context, fileID, ownerID string) error {
	file, err := s.loadOwned(ctx, fileID, ownerID)
	if err != nil {
		return err
	}
	log := s.logger.With("file_id", file.ID, "owner_id", file.OwnerID)

	switch {
	case file.Status == ledger.StatusDeleted:
		return common.ErrorNotFound
	case file.Status == ledger.StatusFailed:
		if _, err := s.ledger().Advance(ctx, file.ID, ledger.StatusDeleted); err != nil {
			return fmt.Errorf("error recording deletion: %w", err)
		}
		s.count(metrics.OpDelete, metrics.ResultOK)
		log.Info(ctx, "failed file deleted")
		return nil
	case !file.Located():
		return common.ErrObjectNotFound
	}

	loc := objectstore.ParseLocator(*file.Locator).OrBucket(s.config.S3Bucket)
	if _, err := s.store.Delete(ctx, loc.Bucket, loc.Key); err != nil {
		s.count(metrics.OpDelete, metrics.ResultFailed)
		log.Error(ctx, "object deletion failed", "locator", loc.String(), "err", err)
		return err
	}

	if _, err := s.ledger().Advance(ctx, file.ID, ledger.StatusDeleted); err != nil {
		s.count(metrics.OpDelete, metrics.ResultFailed)
		log.Error(ctx, "object deleted but status not recorded", "err", err)
		return fmt.Errorf("error recording deletion: %w", err)
	}

	s.count(metrics.OpDelete, metrics.ResultOK)
	log.Info(ctx, "file deleted", "locator", loc.String())
	return nil
}
