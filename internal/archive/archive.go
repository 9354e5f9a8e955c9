// Package archive turns a plaintext file into a single-entry zip archive
// whose entry is compressed with zstd and sealed with a passphrase, and
// extracts such archives back without letting entries escape the target
// directory.
package archive

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dmitrijs2005/outofsight/internal/common"
	"github.com/dmitrijs2005/outofsight/internal/cryptox"
	"github.com/klauspost/compress/zstd"
)

// entryComment tags entries written by this codec.
const entryComment = "zstd+aes-256-gcm/argon2id"

// Codec encrypts and decrypts archives. The zero value is not usable; call New.
type Codec struct {
	level zstd.EncoderLevel
}

// New returns a Codec compressing at the given zstd level.
func New(level zstd.EncoderLevel) *Codec {
	return &Codec{level: level}
}

// Encrypt writes dst as a zip archive holding one entry named after the base
// name of src. Any failure removes dst and wraps common.ErrEncryption.
func (c *Codec) Encrypt(src, dst, passphrase string) (err error) {
	if passphrase == "" {
		return fmt.Errorf("%w: empty passphrase", common.ErrEncryption)
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("%w: open source: %v", common.ErrEncryption, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("%w: create archive: %v", common.ErrEncryption, err)
	}

	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("%w: close archive: %v", common.ErrEncryption, cerr)
		}
		if err != nil {
			_ = os.Remove(dst)
		}
	}()

	if err := c.writeArchive(out, in, filepath.Base(src), passphrase); err != nil {
		return fmt.Errorf("%w: %v", common.ErrEncryption, err)
	}

	return nil
}

func (c *Codec) writeArchive(out io.Writer, in io.Reader, name, passphrase string) error {
	zw := zip.NewWriter(out)

	entry, err := zw.CreateHeader(&zip.FileHeader{
		Name:     name,
		Comment:  entryComment,
		Method:   zip.Store,
		Modified: time.Now(),
	})
	if err != nil {
		return err
	}

	sealer, err := cryptox.NewWriter(entry, []byte(passphrase))
	if err != nil {
		return err
	}

	enc, err := zstd.NewWriter(sealer, zstd.WithEncoderLevel(c.level), zstd.WithEncoderConcurrency(1))
	if err != nil {
		return err
	}

	if _, err := io.Copy(enc, in); err != nil {
		_ = enc.Close()
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	if err := sealer.Close(); err != nil {
		return err
	}

	return zw.Close()
}

// Decrypt extracts every entry of archivePath into outputDir and returns
// outputDir. All entry names are validated before anything is written; a
// name resolving outside outputDir aborts with common.ErrUnsafeArchiveEntry.
// A wrong passphrase or a damaged archive yields common.ErrDecryption and
// leaves outputDir as it was. Existing files are never overwritten: an entry
// whose target already exists fails with common.ErrDecryption up front.
func (c *Codec) Decrypt(archivePath, outputDir, passphrase string) (string, error) {
	if passphrase == "" {
		return "", fmt.Errorf("%w: empty passphrase", common.ErrDecryption)
	}

	base, err := resolveDir(outputDir)
	if err != nil {
		return "", fmt.Errorf("%w: output dir: %v", common.ErrDecryption, err)
	}

	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		if errors.Is(err, zip.ErrInsecurePath) {
			if zr != nil {
				_ = zr.Close()
			}
			return "", fmt.Errorf("%w: %v", common.ErrUnsafeArchiveEntry, err)
		}
		return "", fmt.Errorf("%w: open archive: %v", common.ErrDecryption, err)
	}
	defer zr.Close()

	targets := make([]string, len(zr.File))
	seen := make(map[string]struct{}, len(zr.File))
	for i, f := range zr.File {
		target, err := SafeJoin(base, f.Name)
		if err != nil {
			return "", err
		}
		targets[i] = target
		if f.FileInfo().IsDir() {
			continue
		}
		if _, dup := seen[target]; dup {
			return "", fmt.Errorf("%w: duplicate entry %q", common.ErrDecryption, f.Name)
		}
		seen[target] = struct{}{}
		if _, err := os.Lstat(target); err == nil {
			return "", fmt.Errorf("%w: %q already exists in output dir", common.ErrDecryption, f.Name)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: stat %q: %v", common.ErrDecryption, f.Name, err)
		}
	}

	var written []string
	for i, f := range zr.File {
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(targets[i], 0o700); err != nil {
				removeAll(written)
				return "", fmt.Errorf("%w: mkdir: %v", common.ErrDecryption, err)
			}
			continue
		}

		if err := extractEntry(f, targets[i], passphrase); err != nil {
			removeAll(written)
			return "", err
		}
		written = append(written, targets[i])
	}

	return outputDir, nil
}

func extractEntry(f *zip.File, target, passphrase string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o700); err != nil {
		return fmt.Errorf("%w: mkdir: %v", common.ErrDecryption, err)
	}

	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("%w: open entry %q: %v", common.ErrDecryption, f.Name, err)
	}
	defer rc.Close()

	opener, err := cryptox.NewReader(rc, []byte(passphrase))
	if err != nil {
		return err
	}

	dec, err := zstd.NewReader(opener, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrDecryption, err)
	}
	defer dec.Close()

	tmp, err := os.CreateTemp(filepath.Dir(target), ".partial-*")
	if err != nil {
		return fmt.Errorf("%w: temp file: %v", common.ErrDecryption, err)
	}
	tmpName := tmp.Name()

	_, copyErr := io.Copy(tmp, dec)
	closeErr := tmp.Close()
	if copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		_ = os.Remove(tmpName)
		if errors.Is(copyErr, common.ErrDecryption) {
			return copyErr
		}
		return fmt.Errorf("%w: entry %q: %v", common.ErrDecryption, f.Name, copyErr)
	}

	if err := os.Rename(tmpName, target); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: rename: %v", common.ErrDecryption, err)
	}

	return nil
}

// SafeJoin resolves name inside base and rejects names that are absolute or
// climb out of base.
func SafeJoin(base, name string) (string, error) {
	if name == "" || filepath.IsAbs(name) || strings.HasPrefix(name, "/") || strings.Contains(name, `\`) {
		return "", fmt.Errorf("%w: %q", common.ErrUnsafeArchiveEntry, name)
	}

	target, err := filepath.Abs(filepath.Join(base, name))
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", common.ErrUnsafeArchiveEntry, name, err)
	}

	if !strings.HasPrefix(target, base+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", common.ErrUnsafeArchiveEntry, name)
	}

	return target, nil
}

func resolveDir(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}

func removeAll(paths []string) {
	for _, p := range paths {
		_ = os.Remove(p)
	}
}
