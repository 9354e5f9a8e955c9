package ledger

import (
	"context"
	"fmt"
	"slices"

	"github.com/dmitrijs2005/outofsight/internal/common"
)

// Store persists status events.
//
// Append must be idempotent per (fileID, status): when the pair already
// exists it returns the stored event unchanged with created set to false.
// The existence check and the insert must be atomic.
type Store interface {
	Append(ctx context.Context, fileID string, status Status) (ev Event, created bool, err error)
	History(ctx context.Context, fileID string) ([]Event, error)
}

// Ledger records and reads file status history on top of a Store.
type Ledger struct {
	store Store
}

func New(store Store) *Ledger {
	return &Ledger{store: store}
}

// Record appends status to the file's history, or returns the existing
// event when the file already went through it.
func (l *Ledger) Record(ctx context.Context, fileID string, status Status) (Event, error) {
	ev, _, err := l.append(ctx, fileID, status)
	return ev, err
}

func (l *Ledger) append(ctx context.Context, fileID string, status Status) (Event, bool, error) {
	if _, ok := Lookup(string(status)); !ok {
		return Event{}, false, fmt.Errorf("unknown status %q", status)
	}

	ev, created, err := l.store.Append(ctx, fileID, status)
	if err != nil {
		return Event{}, false, fmt.Errorf("record status %s for %s: %w", status, fileID, err)
	}
	return ev, created, nil
}

// History returns the file's events oldest first.
func (l *Ledger) History(ctx context.Context, fileID string) ([]Event, error) {
	events, err := l.store.History(ctx, fileID)
	if err != nil {
		return nil, fmt.Errorf("status history for %s: %w", fileID, err)
	}

	slices.SortStableFunc(events, func(a, b Event) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		switch {
		case a.Seq < b.Seq:
			return -1
		case a.Seq > b.Seq:
			return 1
		}
		return 0
	})

	return events, nil
}

// CurrentStatus returns the status of the most recent event. ok is false when
// the file has no history.
func (l *Ledger) CurrentStatus(ctx context.Context, fileID string) (Status, bool, error) {
	events, err := l.store.History(ctx, fileID)
	if err != nil {
		return "", false, fmt.Errorf("current status for %s: %w", fileID, err)
	}

	ev, ok := Latest(events)
	return ev.Status, ok, nil
}

// Advance moves the file to status to, failing with
// common.ErrInvalidTransition when the current status does not allow it or
// when another caller recorded the same status first. Of two concurrent
// Advance calls that both read the same current status, only one wins.
func (l *Ledger) Advance(ctx context.Context, fileID string, to Status) (Event, error) {
	from, _, err := l.CurrentStatus(ctx, fileID)
	if err != nil {
		return Event{}, err
	}

	if !CanTransition(from, to) {
		return Event{}, fmt.Errorf("%w: %q -> %q", common.ErrInvalidTransition, from, to)
	}

	ev, created, err := l.append(ctx, fileID, to)
	if err != nil {
		return Event{}, err
	}
	if !created {
		return Event{}, fmt.Errorf("%w: %q already recorded for %s", common.ErrInvalidTransition, to, fileID)
	}
	return ev, nil
}
