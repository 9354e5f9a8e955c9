// Package filex manages local scratch storage used while a file moves
// through the transfer pipeline.
package filex

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dmitrijs2005/outofsight/internal/common"
)

// EnsureDir creates dir (and parents) if needed and returns its absolute path.
// Relative paths are resolved against the working directory.
func EnsureDir(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("abs %s: %w", dir, err)
	}

	if err := os.MkdirAll(abs, 0o700); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", abs, err)
	}

	return abs, nil
}

// Scratch is a private working directory owned by a single in-flight
// operation. It must be released exactly once by its owner.
type Scratch struct {
	dir string
}

// NewScratch creates a fresh directory under root. The prefix only helps
// operators correlate leftovers with file ids.
func NewScratch(root, prefix string) (*Scratch, error) {
	base, err := EnsureDir(root)
	if err != nil {
		return nil, err
	}

	dir, err := os.MkdirTemp(base, prefix+"-")
	if err != nil {
		return nil, fmt.Errorf("mkdir temp: %w", err)
	}

	return &Scratch{dir: dir}, nil
}

// Dir returns the scratch directory path.
func (s *Scratch) Dir() string { return s.dir }

// Path joins name onto the scratch directory.
func (s *Scratch) Path(name string) string { return filepath.Join(s.dir, name) }

// Mkdir creates a subdirectory of the scratch directory and returns its path.
func (s *Scratch) Mkdir(name string) (string, error) {
	dir := s.Path(name)
	if err := os.Mkdir(dir, 0o700); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", dir, err)
	}
	return dir, nil
}

// Release removes the scratch directory and everything in it.
func (s *Scratch) Release() error {
	if s == nil || s.dir == "" {
		return nil
	}
	return os.RemoveAll(s.dir)
}

// WriteLimited copies r into a new file at path, refusing to store more than
// limit bytes. A source longer than limit yields common.ErrPayloadTooLarge and
// the partial file is removed.
func WriteLimited(path string, r io.Reader, limit int64) (int64, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", path, err)
	}

	n, err := io.Copy(f, io.LimitReader(r, limit+1))
	closeErr := f.Close()

	switch {
	case err != nil:
		err = fmt.Errorf("write %s: %w", path, err)
	case n > limit:
		err = fmt.Errorf("%w: more than %d bytes", common.ErrPayloadTooLarge, limit)
	case closeErr != nil:
		err = fmt.Errorf("close %s: %w", path, closeErr)
	}

	if err != nil {
		_ = os.Remove(path)
		return 0, err
	}

	return n, nil
}

// SafeBaseName reduces name to a single path element usable inside a
// scratch directory.
func SafeBaseName(name string) string {
	base := filepath.Base(filepath.Clean("/" + filepath.ToSlash(name)))
	if base == "/" || base == "." || base == ".." || base == string(filepath.Separator) {
		return "file"
	}
	return base
}
