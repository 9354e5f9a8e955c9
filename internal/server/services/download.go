package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dmitrijs2005/outofsight/internal/common"
	"github.com/dmitrijs2005/outofsight/internal/filex"
	"github.com/dmitrijs2005/outofsight/internal/ledger"
	"github.com/dmitrijs2005/outofsight/internal/metrics"
	"github.com/dmitrijs2005/outofsight/internal/objectstore"
	"github.com/dmitrijs2005/outofsight/internal/server/models"
)

// Download writes the stored archive, or its decrypted content when a
// passphrase is given, to sink.
func (s *TransferService) Download(ctx context.Context, req DownloadRequest, sink io.Writer) (*models.File, error) {
	file, err := s.loadOwned(ctx, req.FileID, req.OwnerID)
	if err != nil {
		return nil, err
	}

	switch {
	case file.Status == ledger.StatusDeleted:
		return nil, common.ErrorNotFound
	case file.Status == ledger.StatusFailed && !s.config.AllowFailedDownloads:
		return nil, common.ErrorNotFound
	case !file.Located():
		return nil, common.ErrObjectNotFound
	}

	loc := objectstore.ParseLocator(*file.Locator).OrBucket(s.config.S3Bucket)
	log := s.logger.With("file_id", file.ID, "owner_id", file.OwnerID, "locator", loc.String())

	var n int64
	if req.Passphrase == "" {
		n, err = s.streamArchive(ctx, loc, sink)
	} else {
		n, err = s.streamDecrypted(ctx, file, loc, req.Passphrase, sink)
	}
	if err != nil {
		s.count(metrics.OpDownload, metrics.ResultFailed)
		if errors.Is(err, common.ErrUnsafeArchiveEntry) {
			log.Error(ctx, "unsafe archive entry rejected", "security_event", true, "err", err)
		} else {
			log.Error(ctx, "download failed", "err", err)
		}
		return nil, err
	}

	s.count(metrics.OpDownload, metrics.ResultOK)
	s.bytes.WithLabelValues(metrics.OpDownload).Add(float64(n))
	log.Info(ctx, "file downloaded", "bytes", n, "decrypted", req.Passphrase != "")
	return file, nil
}

func (s *TransferService) streamArchive(ctx context.Context, loc objectstore.Locator, w io.Writer) (int64, error) {
	var n int64
	for chunk, err := range s.store.DownloadStream(ctx, loc.Bucket, loc.Key) {
		if err != nil {
			return n, err
		}
		written, err := w.Write(chunk)
		n += int64(written)
		if err != nil {
			return n, fmt.Errorf("%w: write: %v", common.ErrDownload, err)
		}
	}
	return n, nil
}

func (s *TransferService) streamDecrypted(ctx context.Context, file *models.File, loc objectstore.Locator, passphrase string, w io.Writer) (int64, error) {
	sc, err := filex.NewScratch(s.scratchRoot(), "download-"+file.ID)
	if err != nil {
		return 0, fmt.Errorf("%w: scratch: %v", common.ErrDownload, err)
	}
	defer s.release(ctx, sc)

	archivePath := sc.Path("archive.zip")
	f, err := os.OpenFile(archivePath, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o600)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", common.ErrDownload, err)
	}
	_, err = s.streamArchive(ctx, loc, f)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("%w: %v", common.ErrDownload, cerr)
	}
	if err != nil {
		return 0, err
	}

	outDir, err := sc.Mkdir("out")
	if err != nil {
		return 0, fmt.Errorf("%w: %v", common.ErrDownload, err)
	}
	if _, err := s.codec.Decrypt(archivePath, outDir, passphrase); err != nil {
		return 0, err
	}

	plain, err := os.Open(filepath.Join(outDir, filex.SafeBaseName(file.Filename)))
	if err != nil {
		return 0, fmt.Errorf("%w: archive entry: %v", common.ErrDecryption, err)
	}
	defer plain.Close()

	n, err := io.Copy(w, plain)
	if err != nil {
		return n, fmt.Errorf("%w: write: %v", common.ErrDownload, err)
	}
	return n, nil
}
