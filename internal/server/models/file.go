// Package models defines server-side data models persisted in the database.
package models

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/dmitrijs2005/outofsight/internal/ledger"
)

// File describes an uploaded file. The archive itself lives in object storage.
type File struct {
	ID string
	// Filename is the name the owner uploaded the file under.
	Filename string
	// FileType is the extension including the dot, e.g. ".pdf"; may be empty.
	FileType string
	// SizeKB is the plaintext size in kilobytes (bytes / 1024).
	SizeKB  float64
	OwnerID string

	// Locator is "s3://bucket/key" once the upload completed, nil before.
	Locator   *string
	CreatedAt time.Time

	// Status is the current status, filled by reads that join the history.
	Status ledger.Status
}

// FileType derives the stored type from a file name.
func FileType(name string) string {
	return strings.ToLower(filepath.Ext(name))
}

// SizeKB converts a byte count to kilobytes.
func SizeKB(n int64) float64 {
	return float64(n) / 1024
}

// Located reports whether the archive has been stored.
func (f *File) Located() bool {
	return f.Locator != nil && *f.Locator != ""
}
