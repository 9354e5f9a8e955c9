package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dmitrijs2005/outofsight/internal/common"
	"github.com/dmitrijs2005/outofsight/internal/dbx"
	"github.com/dmitrijs2005/outofsight/internal/filex"
	"github.com/dmitrijs2005/outofsight/internal/ledger"
	"github.com/dmitrijs2005/outofsight/internal/metrics"
	"github.com/dmitrijs2005/outofsight/internal/objectstore"
	"github.com/dmitrijs2005/outofsight/internal/server/models"
)

// staged is an accepted upload waiting for encryption.
type staged struct {
	file       *models.File
	scratch    *filex.Scratch
	plainPath  string
	passphrase string
}

// Upload stores a file synchronously and returns its completed record.
func (s *TransferService) Upload(ctx context.Context, req UploadRequest) (*models.File, error) {
	st, err := s.receive(ctx, req)
	if err != nil {
		return nil, err
	}
	defer s.release(ctx, st.scratch)

	if err := s.process(ctx, st); err != nil {
		return st.file, err
	}
	return st.file, nil
}

// Submit accepts and stages a file, then finishes the pipeline on the worker
// pool. The returned record is in status received; poll Get for progress.
func (s *TransferService) Submit(ctx context.Context, req UploadRequest) (*models.File, error) {
	if s.pool == nil {
		return nil, errors.New("no worker pool configured")
	}

	st, err := s.receive(ctx, req)
	if err != nil {
		return nil, err
	}

	// the job mutates st.file; the caller gets a snapshot
	rec := *st.file

	err = s.pool.Submit("upload "+rec.ID, func(ctx context.Context) error {
		defer s.release(ctx, st.scratch)
		return s.process(ctx, st)
	})
	if err != nil {
		s.release(ctx, st.scratch)
		return nil, s.fail(ctx, st.file, fmt.Errorf("schedule upload: %w", err))
	}

	return &rec, nil
}

// receive checks the declared size, creates the record with its first
// status and stages the body into a private scratch directory.
func (s *TransferService) receive(ctx context.Context, req UploadRequest) (*staged, error) {
	limit := s.config.MaxUploadSize
	if req.DeclaredSize > limit {
		s.count(metrics.OpUpload, metrics.ResultRejected)
		return nil, fmt.Errorf("%w: %d bytes declared, limit %d", common.ErrPayloadTooLarge, req.DeclaredSize, limit)
	}

	file := &models.File{
		ID:       newFileID(),
		Filename: req.Filename,
		FileType: models.FileType(req.Filename),
		SizeKB:   models.SizeKB(max(req.DeclaredSize, 0)),
		OwnerID:  req.OwnerID,
	}

	if err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.Files(tx).Create(ctx, file); err != nil {
			return err
		}
		_, err := ledger.New(s.repomanager.Statuses(tx)).Advance(ctx, file.ID, ledger.StatusReceived)
		return err
	}); err != nil {
		s.count(metrics.OpUpload, metrics.ResultFailed)
		return nil, fmt.Errorf("error creating file record: %w", err)
	}
	file.Status = ledger.StatusReceived

	log := s.logger.With("file_id", file.ID, "owner_id", file.OwnerID)
	log.Info(ctx, "file received", "filename", file.Filename, "declared_bytes", req.DeclaredSize)

	sc, err := filex.NewScratch(s.scratchRoot(), "upload-"+file.ID)
	if err != nil {
		return nil, s.fail(ctx, file, fmt.Errorf("scratch: %w", err))
	}

	inDir, err := sc.Mkdir("in")
	if err != nil {
		s.release(ctx, sc)
		return nil, s.fail(ctx, file, err)
	}

	plain := filepath.Join(inDir, filex.SafeBaseName(req.Filename))
	n, err := filex.WriteLimited(plain, req.Body, limit)
	if err != nil {
		s.release(ctx, sc)
		return nil, s.fail(ctx, file, fmt.Errorf("staging: %w", err))
	}
	if req.DeclaredSize > 0 && n != req.DeclaredSize {
		log.Warn(ctx, "staged size differs from declared size", "declared_bytes", req.DeclaredSize, "staged_bytes", n)
	}
	s.bytes.WithLabelValues(metrics.OpUpload).Add(float64(n))

	return &staged{file: file, scratch: sc, plainPath: plain, passphrase: req.Passphrase}, nil
}

// process encrypts the staged file, uploads the archive and completes the
// record. Any failure records failed and leaves the locator unset.
func (s *TransferService) process(ctx context.Context, st *staged) error {
	file := st.file
	log := s.logger.With("file_id", file.ID, "owner_id", file.OwnerID)
	led := s.ledger()

	if _, err := led.Advance(ctx, file.ID, ledger.StatusProcessing); err != nil {
		// another pipeline already owns this file
		if errors.Is(err, common.ErrInvalidTransition) {
			log.Warn(ctx, "pipeline already started", "err", err)
			return err
		}
		return s.fail(ctx, file, err)
	}
	file.Status = ledger.StatusProcessing

	archivePath := st.scratch.Path("archive.zip")
	if err := s.codec.Encrypt(st.plainPath, archivePath, st.passphrase); err != nil {
		return s.fail(ctx, file, err)
	}

	if _, err := led.Advance(ctx, file.ID, ledger.StatusUploading); err != nil {
		return s.fail(ctx, file, err)
	}
	file.Status = ledger.StatusUploading

	bucket := s.config.S3Bucket
	key := file.OwnerID + "/" + file.ID

	archive, err := os.Open(archivePath)
	if err != nil {
		return s.fail(ctx, file, fmt.Errorf("%w: open archive: %v", common.ErrUpload, err))
	}
	err = s.store.UploadStream(ctx, bucket, key, archive)
	_ = archive.Close()
	if err != nil {
		return s.fail(ctx, file, err)
	}

	locator := objectstore.FormatLocator(bucket, key)
	if err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.Files(tx).SetLocator(ctx, file.ID, locator); err != nil {
			return err
		}
		_, err := ledger.New(s.repomanager.Statuses(tx)).Advance(ctx, file.ID, ledger.StatusCompleted)
		return err
	}); err != nil {
		s.discardObject(ctx, bucket, key)
		return s.fail(ctx, file, fmt.Errorf("error completing file record: %w", err))
	}

	file.Locator = &locator
	file.Status = ledger.StatusCompleted
	s.count(metrics.OpUpload, metrics.ResultOK)
	log.Info(ctx, "file stored", "locator", locator)
	return nil
}

// fail records failed for file and returns cause. It uses a context that
// survives cancellation of ctx so shutdowns still leave a final status.
func (s *TransferService) fail(ctx context.Context, file *models.File, cause error) error {
	s.count(metrics.OpUpload, metrics.ResultFailed)

	rctx := context.WithoutCancel(ctx)
	log := s.logger.With("file_id", file.ID, "owner_id", file.OwnerID)

	if _, err := s.ledger().Advance(rctx, file.ID, ledger.StatusFailed); err != nil {
		log.Error(ctx, "could not record failed status", "err", err, "cause", cause)
	} else {
		file.Status = ledger.StatusFailed
	}

	if errors.Is(cause, common.ErrPayloadTooLarge) {
		log.Warn(ctx, "upload rejected", "err", cause)
	} else {
		log.Error(ctx, "upload failed", "err", cause)
	}
	return cause
}

// discardObject removes an object whose record could not be completed, so
// no unreferenced archive is left behind.
func (s *TransferService) discardObject(ctx context.Context, bucket, key string) {
	if _, err := s.store.Delete(context.WithoutCancel(ctx), bucket, key); err != nil {
		s.logger.Error(ctx, "could not remove orphaned object", "bucket", bucket, "key", key, "err", err)
	}
}
