// Package ledger keeps the append-only status history of stored files and
// the rules for moving a file from one status to the next.
package ledger

import (
	"time"
)

// Status is the name of a lifecycle stage.
type Status string

const (
	StatusReceived   Status = "received"
	StatusUploading  Status = "uploading"
	StatusUploaded   Status = "uploaded"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusDeleted    Status = "deleted"
)

// Entry is one row of the status catalog.
type Entry struct {
	Status      Status
	Description string
}

var catalog = []Entry{
	{StatusReceived, "File has been received by the server."},
	{StatusProcessing, "File is being encrypted and archived."},
	{StatusUploading, "File is being uploaded to the object store."},
	{StatusUploaded, "File was successfully uploaded to the object store."},
	{StatusCompleted, "File is stored and available for download."},
	{StatusFailed, "File could not be stored."},
	{StatusDeleted, "File was deleted from the object store."},
}

// validTransitions maps the current status to the statuses it may move to.
// The empty status stands for a file without history.
var validTransitions = map[Status]map[Status]bool{
	"":               {StatusReceived: true},
	StatusReceived:   {StatusProcessing: true, StatusFailed: true},
	StatusProcessing: {StatusUploading: true, StatusFailed: true},
	StatusUploading:  {StatusCompleted: true, StatusFailed: true},
	StatusUploaded:   {StatusProcessing: true, StatusCompleted: true, StatusFailed: true},
	StatusCompleted:  {StatusDeleted: true},
	StatusFailed:     {StatusDeleted: true},
	StatusDeleted:    {},
}

// Catalog returns the fixed list of statuses with their descriptions.
func Catalog() []Entry {
	out := make([]Entry, len(catalog))
	copy(out, catalog)
	return out
}

// Lookup finds a status by name.
func Lookup(name string) (Status, bool) {
	for _, e := range catalog {
		if string(e.Status) == name {
			return e.Status, true
		}
	}
	return "", false
}

// Description returns the human readable text for s, or "" for unknown values.
func (s Status) Description() string {
	for _, e := range catalog {
		if e.Status == s {
			return e.Description
		}
	}
	return ""
}

// Terminal reports whether the upload pipeline has finished for a file in s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusDeleted
}

// Hidden reports whether files in s are left out of retrieval and listings.
func (s Status) Hidden() bool {
	return s == StatusFailed || s == StatusDeleted
}

// CanTransition reports whether a file may move from one status to another.
// Pass "" as from for a file that has no history yet.
func CanTransition(from, to Status) bool {
	next, ok := validTransitions[from]
	if !ok {
		return false
	}
	return next[to]
}

// Event is a single entry of a file's status history.
type Event struct {
	FileID    string
	Status    Status
	CreatedAt time.Time
	// Seq is the insertion order, used to break timestamp ties.
	Seq int64
}

// Latest returns the most recent event: the greatest CreatedAt, then the
// greatest Seq. ok is false for an empty slice.
func Latest(events []Event) (latest Event, ok bool) {
	for i, e := range events {
		if i == 0 || e.CreatedAt.After(latest.CreatedAt) ||
			(e.CreatedAt.Equal(latest.CreatedAt) && e.Seq > latest.Seq) {
			latest = e
		}
	}
	return latest, len(events) > 0
}
