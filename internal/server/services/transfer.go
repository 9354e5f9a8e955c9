// Package services contains server-side business logic. TransferService
// drives files through the upload, download and delete pipelines.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"

	"github.com/dmitrijs2005/outofsight/internal/common"
	"github.com/dmitrijs2005/outofsight/internal/filex"
	"github.com/dmitrijs2005/outofsight/internal/ledger"
	"github.com/dmitrijs2005/outofsight/internal/logging"
	"github.com/dmitrijs2005/outofsight/internal/metrics"
	"github.com/dmitrijs2005/outofsight/internal/server/config"
	"github.com/dmitrijs2005/outofsight/internal/server/models"
	"github.com/dmitrijs2005/outofsight/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/outofsight/internal/worker"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

// Codec turns staged files into encrypted archives and back.
type Codec interface {
	Encrypt(src, dst, passphrase string) error
	Decrypt(archivePath, outputDir, passphrase string) (string, error)
}

// ObjectStore moves archives to and from the bucket.
type ObjectStore interface {
	UploadStream(ctx context.Context, bucket, key string, r io.Reader) error
	DownloadStream(ctx context.Context, bucket, key string) iter.Seq2[[]byte, error]
	Delete(ctx context.Context, bucket, key string) (bool, error)
}

// Submitter hands background jobs to a worker pool.
type Submitter interface {
	Submit(name string, job worker.Job) error
}

var newFileID = func() string {
	return uuid.NewString()
}

// UploadRequest carries one incoming file.
type UploadRequest struct {
	OwnerID  string
	Filename string
	Body     io.Reader
	// DeclaredSize is the size announced by the caller, in bytes.
	DeclaredSize int64
	Passphrase   string
}

// DownloadRequest selects a file to fetch. An empty Passphrase returns the
// encrypted archive as stored.
type DownloadRequest struct {
	FileID     string
	OwnerID    string
	Passphrase string
}

// FileView is a file record with its status history.
type FileView struct {
	File    *models.File
	History []ledger.Event
}

// TransferService keeps no per-file state; every call works from the
// database, so one instance serves all requests.
type TransferService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	config      *config.Config
	codec       Codec
	store       ObjectStore
	pool        Submitter
	logger      logging.Logger

	transfers *prometheus.CounterVec
	bytes     *prometheus.CounterVec
}

// Option customizes a TransferService.
type Option func(*TransferService)

// WithPool enables Submit.
func WithPool(p Submitter) Option {
	return func(s *TransferService) { s.pool = p }
}

// WithLogger sets the service logger. Records carry module=transfer.
func WithLogger(l logging.Logger) Option {
	return func(s *TransferService) { s.logger = l }
}

// WithMetrics registers the transfer counters on reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(s *TransferService) {
		s.transfers = metrics.NewTransferCounter(reg)
		s.bytes = metrics.NewTransferBytes(reg)
	}
}

// NewTransferService wires the pipeline. Without WithMetrics the counters are
// registered on a private registry; without WithPool Submit is unavailable.
func NewTransferService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config, codec Codec, store ObjectStore, opts ...Option) *TransferService {
	s := &TransferService{
		db:          db,
		repomanager: m,
		config:      cfg,
		codec:       codec,
		store:       store,
		logger:      logging.Discard(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.transfers == nil {
		WithMetrics(prometheus.NewRegistry())(s)
	}
	s.logger = s.logger.With("module", "transfer")
	return s
}

func (s *TransferService) ledger() *ledger.Ledger {
	return ledger.New(s.repomanager.Statuses(s.db))
}

func (s *TransferService) scratchRoot() string {
	if s.config.ScratchRoot == "" {
		return os.TempDir()
	}
	return s.config.ScratchRoot
}

func (s *TransferService) count(op, result string) {
	s.transfers.WithLabelValues(op, result).Inc()
}

// loadOwned fetches a record and checks that ownerID owns it.
func (s *TransferService) loadOwned(ctx context.Context, fileID, ownerID string) (*models.File, error) {
	file, err := s.repomanager.Files(s.db).GetByID(ctx, fileID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("error loading file: %w", err)
	}
	if file.OwnerID != ownerID {
		return nil, common.ErrForbidden
	}
	return file, nil
}

// release removes scratch space, logging instead of failing the call.
func (s *TransferService) release(ctx context.Context, sc *filex.Scratch) {
	if err := sc.Release(); err != nil {
		s.logger.Warn(ctx, "scratch cleanup failed", "dir", sc.Dir(), "err", err)
	}
}
