package library

import (
	"context"
	"fmt"
	"sync"

	"github.com/book-expert/logger"
	"github.com/book-expert/voice-studio/internal/core"
	"github.com/book-expert/voice-studio/internal/ledger"
)

const defaultHydrationWorkers = 8

// State is the process-local lifecycle state of a record.
type State string

const (
	StateLive     State = "live"
	StateOrphaned State = "orphaned"
)

// Entry is a record together with its ephemeral handle. The handle is nil for an orphan.
type Entry[R core.Record] struct {
	Record R
	Handle *Handle
}

// State reports whether the entry is playable.
func (e Entry[R]) State() State {
	if e.Handle.Valid() {
		return StateLive
	}

	return StateOrphaned
}

// Orphaned reports whether the entry has no readable audio.
func (e Entry[R]) Orphaned() bool {
	return e.State() == StateOrphaned
}

// Dehydrate strips the handle, leaving the persistable record.
func Dehydrate[R core.Record](entry Entry[R]) R {
	return entry.Record
}

// DehydrateAll strips the handles of entries, keeping their order.
func DehydrateAll[R core.Record](entries []Entry[R]) []R {
	records := make([]R, 0, len(entries))

	for _, entry := range entries {
		records = append(records, Dehydrate(entry))
	}

	return records
}

// Options tune a Hydrator.
type Options struct {
	// Workers bounds concurrent blob fetches during hydration.
	Workers int
	// OnHydrated observes the outcome of every hydrated record.
	OnHydrated func(kind core.Kind, state State)
}

// Hydrator joins one record kind's ledger with the blob store.
type Hydrator[R core.Record] struct {
	ledger   *ledger.Ledger[R]
	blobs    core.BlobStore
	registry *Registry
	log      *logger.Logger
	workers  int
	observe  func(kind core.Kind, state State)
}

// NewHydrator creates a hydrator for records of type R.
func NewHydrator[R core.Record](
	recordLedger *ledger.Ledger[R],
	blobs core.BlobStore,
	registry *Registry,
	log *logger.Logger,
	opts Options,
) *Hydrator[R] {
	workers := opts.Workers
	if workers <= 0 {
		workers = defaultHydrationWorkers
	}

	return &Hydrator[R]{
		ledger:   recordLedger,
		blobs:    blobs,
		registry: registry,
		log:      log,
		workers:  workers,
		observe:  opts.OnHydrated,
	}
}

// Kind returns the record kind handled by this hydrator.
func (h *Hydrator[R]) Kind() core.Kind {
	return h.ledger.Kind()
}

// Hydrate loads the ledger of scope and resolves every record to Live or Orphaned. Blob
// fetches run concurrently; the result keeps ledger order.
func (h *Hydrator[R]) Hydrate(ctx context.Context, scope string) ([]Entry[R], error) {
	records, err := h.ledger.Load(ctx, scope)
	if err != nil {
		return nil, err
	}

	return h.HydrateRecords(ctx, scope, records)
}

// HydrateRecords resolves already loaded records. On context cancellation every handle
// created so far is released and the context error returned.
func (h *Hydrator[R]) HydrateRecords(ctx context.Context, scope string, records []R) ([]Entry[R], error) {
	entries := make([]Entry[R], len(records))

	var waitGroup sync.WaitGroup

	// Create worker pool to bound concurrent fetches
	workerPool := make(chan struct{}, h.workers)

	for index, record := range records {
		entries[index].Record = record

		waitGroup.Add(1)

		go func(index int, record R) {
			defer waitGroup.Done()

			workerPool <- struct{}{}

			defer func() { <-workerPool }()

			entries[index].Handle = h.fetch(ctx, scope, record)
		}(index, record)
	}

	waitGroup.Wait()

	ctxErr := ctx.Err()
	if ctxErr != nil {
		for _, entry := range entries {
			h.registry.Release(entry.Handle)
		}

		return nil, fmt.Errorf("hydration of %s for scope %s interrupted: %w", h.Kind(), scope, ctxErr)
	}

	for _, entry := range entries {
		if h.observe != nil {
			h.observe(h.Kind(), entry.State())
		}
	}

	return entries, nil
}

func (h *Hydrator[R]) fetch(ctx context.Context, scope string, record R) *Handle {
	key := core.BlobKey(scope, record.RecordID())

	data, found, err := h.blobs.Get(ctx, key)
	if err != nil {
		if ctx.Err() == nil {
			h.log.Error("Failed to fetch audio for %s %s, marking orphaned: %v", h.Kind(), record.RecordID(), err)
		}

		return nil
	}

	if !found {
		h.log.Warn("Orphaned %s %s: no stored audio under '%s'", h.Kind(), record.RecordID(), key)

		return nil
	}

	return h.registry.Create(scope, data)
}

// Attach builds a Live entry for a freshly created record whose bytes are already in hand.
func (h *Hydrator[R]) Attach(scope string, record R, data []byte) Entry[R] {
	return Entry[R]{Record: record, Handle: h.registry.Create(scope, data)}
}

// Release invalidates the entry's handle. The record can be hydrated again later.
func (h *Hydrator[R]) Release(entry Entry[R]) {
	h.registry.Release(entry.Handle)
}

// ReleaseEntries releases the handles of entries and returns how many were live.
func (h *Hydrator[R]) ReleaseEntries(entries []Entry[R]) int {
	released := 0

	for _, entry := range entries {
		if h.registry.Release(entry.Handle) {
			released++
		}
	}

	return released
}

// Persist dehydrates entries and saves them as the scope's full snapshot.
func (h *Hydrator[R]) Persist(ctx context.Context, scope string, entries []Entry[R]) error {
	return h.ledger.Save(ctx, scope, DehydrateAll(entries))
}
