package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/book-expert/logger"
	"github.com/book-expert/voice-studio/internal/core"
)

// Ledger loads and saves the full record collection of one kind.
type Ledger[R core.Record] struct {
	store SnapshotStore
	kind  core.Kind
	log   *logger.Logger
}

// New creates a ledger for records of type R backed by store.
func New[R core.Record](store SnapshotStore, log *logger.Logger) *Ledger[R] {
	return &Ledger[R]{
		store: store,
		kind:  KindOf[R](),
		log:   log,
	}
}

// Kind returns the record kind this ledger manages.
func (l *Ledger[R]) Kind() core.Kind {
	return l.kind
}

// Load returns the saved records in their saved order. A missing or unparseable snapshot
// yields an empty collection; unparseable data is logged and discarded. Only a failing
// backend read is returned as an error.
func (l *Ledger[R]) Load(ctx context.Context, ownerScope string) ([]R, error) {
	data, err := l.store.ReadSnapshot(ctx, ownerScope, l.kind)
	if err != nil {
		if errors.Is(err, ErrSnapshotNotFound) {
			return []R{}, nil
		}

		return nil, fmt.Errorf("%w: failed to read %s ledger for scope %s: %w",
			core.ErrStorageFailure, l.kind, ownerScope, err)
	}

	records, err := Decode[R](data, ownerScope)
	if err != nil {
		l.log.Warn("Discarding %s ledger for scope %s: %v", l.kind, ownerScope, err)

		return []R{}, nil
	}

	return records, nil
}

// Save overwrites the snapshot with records.
func (l *Ledger[R]) Save(ctx context.Context, ownerScope string, records []R) error {
	data, err := Encode(ownerScope, records)
	if err != nil {
		return fmt.Errorf("%w: %w", core.ErrStorageFailure, err)
	}

	err = l.store.WriteSnapshot(ctx, ownerScope, l.kind, data)
	if err != nil {
		return fmt.Errorf("%w: failed to save %s ledger for scope %s: %w",
			core.ErrStorageFailure, l.kind, ownerScope, err)
	}

	return nil
}

// Purge removes the snapshot entirely.
func (l *Ledger[R]) Purge(ctx context.Context, ownerScope string) error {
	err := l.store.DeleteSnapshot(ctx, ownerScope, l.kind)
	if err != nil {
		return fmt.Errorf("%w: failed to purge %s ledger for scope %s: %w",
			core.ErrStorageFailure, l.kind, ownerScope, err)
	}

	return nil
}
