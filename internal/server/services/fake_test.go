package services

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"io"
	"iter"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/outofsight/internal/common"
	"github.com/dmitrijs2005/outofsight/internal/dbx"
	"github.com/dmitrijs2005/outofsight/internal/ledger"
	"github.com/dmitrijs2005/outofsight/internal/server/config"
	"github.com/dmitrijs2005/outofsight/internal/server/models"
	"github.com/dmitrijs2005/outofsight/internal/server/repositories/files"
	"github.com/dmitrijs2005/outofsight/internal/server/repositories/statuses"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

// memRepo backs both repositories in memory. Transactions are not modelled;
// sqlmock checks that they are opened and closed.
type memRepo struct {
	mu     sync.Mutex
	files  map[string]*models.File
	events map[string][]ledger.Event
	seq    int64

	createErr     error
	setLocatorErr error
	appendErr     map[ledger.Status]error
}

func newMemRepo() *memRepo {
	return &memRepo{
		files:     map[string]*models.File{},
		events:    map[string][]ledger.Event{},
		appendErr: map[ledger.Status]error{},
	}
}

func (r *memRepo) Create(_ context.Context, f *models.File) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	f.CreatedAt = time.Now()
	cp := *f
	r.files[f.ID] = &cp
	return nil
}

func (r *memRepo) GetByID(_ context.Context, id string) (*models.File, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.files[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return r.view(f), nil
}

func (r *memRepo) SetLocator(_ context.Context, id, locator string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.setLocatorErr != nil {
		return r.setLocatorErr
	}
	f, ok := r.files[id]
	if !ok || f.Locator != nil {
		return common.ErrorNotFound
	}
	f.Locator = &locator
	return nil
}

func (r *memRepo) ListByOwner(_ context.Context, ownerID string) ([]*models.File, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.File
	for _, f := range r.files {
		if f.OwnerID == ownerID {
			out = append(out, r.view(f))
		}
	}
	return out, nil
}

func (r *memRepo) SeedCatalog(context.Context, []ledger.Entry) error { return nil }

func (r *memRepo) Append(_ context.Context, fileID string, status ledger.Status) (ledger.Event, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.appendErr[status]; err != nil {
		return ledger.Event{}, false, err
	}
	for _, ev := range r.events[fileID] {
		if ev.Status == status {
			return ev, false, nil
		}
	}
	r.seq++
	ev := ledger.Event{FileID: fileID, Status: status, CreatedAt: time.Now(), Seq: r.seq}
	r.events[fileID] = append(r.events[fileID], ev)
	return ev, true, nil
}

func (r *memRepo) History(_ context.Context, fileID string) ([]ledger.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ledger.Event(nil), r.events[fileID]...), nil
}

func (r *memRepo) view(f *models.File) *models.File {
	cp := *f
	if ev, ok := ledger.Latest(r.events[f.ID]); ok {
		cp.Status = ev.Status
	}
	return &cp
}

func (r *memRepo) statuses(id string) []ledger.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []ledger.Status
	for _, ev := range r.events[id] {
		out = append(out, ev.Status)
	}
	return out
}

// seed stores a file that has already gone through the given statuses.
func (r *memRepo) seed(f *models.File, path ...ledger.Status) {
	r.mu.Lock()
	cp := *f
	r.files[f.ID] = &cp
	r.mu.Unlock()
	for _, st := range path {
		_, _, _ = r.Append(context.Background(), f.ID, st)
	}
}

type fakeRepoManager struct {
	repo *memRepo
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *fakeRepoManager) Files(dbx.DBTX) files.Repository           { return m.repo }
func (m *fakeRepoManager) Statuses(dbx.DBTX) statuses.Repository     { return m.repo }

// fakeCodec writes "passphrase\nname\ncontent" archives.
type fakeCodec struct {
	encErr error
	decErr error

	encrypted []string
}

func (c *fakeCodec) Encrypt(src, dst, passphrase string) error {
	c.encrypted = append(c.encrypted, src)
	if c.encErr != nil {
		return c.encErr
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	body := passphrase + "\n" + filepath.Base(src) + "\n" + string(data)
	return os.WriteFile(dst, []byte(body), 0o600)
}

func (c *fakeCodec) Decrypt(archivePath, outputDir, passphrase string) (string, error) {
	if c.decErr != nil {
		return "", c.decErr
	}
	data, err := os.ReadFile(archivePath)
	if err != nil {
		return "", err
	}
	parts := strings.SplitN(string(data), "\n", 3)
	if len(parts) != 3 || parts[0] != passphrase {
		return "", fmt.Errorf("%w: authentication failed", common.ErrDecryption)
	}
	return outputDir, os.WriteFile(filepath.Join(outputDir, parts[1]), []byte(parts[2]), 0o600)
}

type fakeStore struct {
	mu      sync.Mutex
	objects map[string][]byte

	uploadErr error
	deleteErr error

	uploads int
	deletes int
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: map[string][]byte{}}
}

func (s *fakeStore) UploadStream(_ context.Context, bucket, key string, r io.Reader) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploads++
	if s.uploadErr != nil {
		return s.uploadErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.objects[bucket+"/"+key] = data
	return nil
}

func (s *fakeStore) DownloadStream(_ context.Context, bucket, key string) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		s.mu.Lock()
		data, ok := s.objects[bucket+"/"+key]
		s.mu.Unlock()
		if !ok {
			yield(nil, fmt.Errorf("%w: %s/%s", common.ErrObjectNotFound, bucket, key))
			return
		}
		for len(data) > 0 {
			n := min(4, len(data))
			if !yield(bytes.Clone(data[:n]), nil) {
				return
			}
			data = data[n:]
		}
	}
}

func (s *fakeStore) Delete(_ context.Context, bucket, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletes++
	if s.deleteErr != nil {
		return false, s.deleteErr
	}
	if _, ok := s.objects[bucket+"/"+key]; !ok {
		return false, fmt.Errorf("%w: %s/%s", common.ErrObjectNotFound, bucket, key)
	}
	delete(s.objects, bucket+"/"+key)
	return true, nil
}

func (s *fakeStore) has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects["bucket/"+key]
	return ok
}

type env struct {
	svc   *TransferService
	repo  *memRepo
	store *fakeStore
	codec *fakeCodec
	mock  sqlmock.Sqlmock
	cfg   *config.Config
	reg   *prometheus.Registry
}

func newEnv(t *testing.T, opts ...Option) *env {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	var n int
	prev := newFileID
	newFileID = func() string {
		n++
		return fmt.Sprintf("file-%d", n)
	}
	t.Cleanup(func() { newFileID = prev })

	e := &env{
		repo:  newMemRepo(),
		store: newFakeStore(),
		codec: &fakeCodec{},
		mock:  mock,
		reg:   prometheus.NewRegistry(),
		cfg: &config.Config{
			S3Bucket:      "bucket",
			MaxUploadSize: 1024,
			ScratchRoot:   t.TempDir(),
		},
	}
	opts = append([]Option{WithMetrics(e.reg)}, opts...)
	e.svc = NewTransferService(db, &fakeRepoManager{repo: e.repo}, e.cfg, e.codec, e.store, opts...)
	return e
}

// expectTx queues one committed transaction.
func (e *env) expectTx() {
	e.mock.ExpectBegin()
	e.mock.ExpectCommit()
}

func (e *env) assertScratchEmpty(t *testing.T) {
	t.Helper()
	left, err := os.ReadDir(e.cfg.ScratchRoot)
	require.NoError(t, err)
	require.Empty(t, left, "scratch directories left behind")
}

func strptr(s string) *string { return &s }
