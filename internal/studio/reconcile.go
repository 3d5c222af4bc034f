package studio

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/book-expert/voice-studio/internal/core"
	"github.com/book-expert/voice-studio/internal/library"
)

// ErrListingUnsupported is returned by Reconcile when the blob store cannot list keys.
var ErrListingUnsupported = errors.New("blob store cannot list keys")

// ReconcileReport summarizes a consistency pass over one scope.
type ReconcileReport struct {
	// Orphans are record ids without stored audio.
	Orphans []string `json:"orphans" yaml:"orphans"`
	// PrunedOrphans are orphan records removed from the ledgers.
	PrunedOrphans []string `json:"prunedOrphans" yaml:"prunedOrphans"`
	// LeakedRemoved are blob ids without a record that were deleted.
	LeakedRemoved []string `json:"leakedRemoved" yaml:"leakedRemoved"`
	// LeakedFailed are leaked blob ids whose deletion failed.
	LeakedFailed []string `json:"leakedFailed" yaml:"leakedFailed"`
}

// Reconcile compares the scope's ledgers with its stored blobs. Blobs without a record are
// deleted. Orphan records are reported, and removed from the ledgers when pruneOrphans is set.
func (s *Studio) Reconcile(ctx context.Context, scope string, pruneOrphans bool) (ReconcileReport, error) {
	lister, ok := s.blobs.(core.BlobLister)
	if !ok {
		return ReconcileReport{}, ErrListingUnsupported
	}

	sess, err := s.lock(ctx, scope)
	if err != nil {
		return ReconcileReport{}, err
	}
	defer sess.mu.Unlock()

	keys, err := lister.List(ctx, core.ScopePrefix(scope))
	if err != nil {
		return ReconcileReport{}, fmt.Errorf("%w: failed to list blobs for scope %s: %w", core.ErrStorageFailure, scope, err)
	}

	stored := make(map[string]string, len(keys))

	for _, key := range keys {
		id, owned := core.IDFromBlobKey(scope, key)
		if !owned {
			s.log.Warn("Skipping blob '%s' listed for scope %s: not owned by the scope", key, scope)

			continue
		}

		stored[id] = key
	}

	known := make(map[string]bool, len(sess.clips)+len(sess.voices))
	report := ReconcileReport{}

	for _, entry := range sess.clips {
		known[entry.Record.ID] = true

		if _, ok := stored[entry.Record.ID]; !ok {
			report.Orphans = append(report.Orphans, entry.Record.ID)
		}
	}

	for _, entry := range sess.voices {
		known[entry.Record.ID] = true

		if _, ok := stored[entry.Record.ID]; !ok {
			report.Orphans = append(report.Orphans, entry.Record.ID)
		}
	}

	for _, id := range slices.Sorted(maps.Keys(stored)) {
		if known[id] {
			continue
		}

		key := stored[id]

		s.log.Warn("Removing leaked blob '%s' in scope %s", key, scope)

		deleteErr := s.blobs.Delete(ctx, key)
		if deleteErr != nil {
			s.log.Error("Failed to remove leaked blob '%s': %v", key, deleteErr)
			report.LeakedFailed = append(report.LeakedFailed, id)

			continue
		}

		report.LeakedRemoved = append(report.LeakedRemoved, id)
	}

	s.metrics.LeakedBlobsRemoved(len(report.LeakedRemoved))

	if pruneOrphans && len(report.Orphans) > 0 {
		err = s.pruneOrphans(ctx, sess, scope, stored, &report)
		if err != nil {
			return report, err
		}
	}

	s.log.Info("Reconciled scope %s: %d orphans, %d leaked blobs removed",
		scope, len(report.Orphans), len(report.LeakedRemoved))

	return report, nil
}

// pruneOrphans drops records without stored audio from both ledgers. An id is reported as
// pruned only once its ledger save succeeded. Caller holds sess.mu.
func (s *Studio) pruneOrphans(
	ctx context.Context,
	sess *session,
	scope string,
	stored map[string]string,
	report *ReconcileReport,
) error {
	clips, prunedClips := withoutOrphans(sess.clips, stored)

	err := s.clips.Persist(ctx, scope, clips)
	if err != nil {
		return fmt.Errorf("failed to prune orphaned clips: %w", err)
	}

	sess.clips = clips
	report.PrunedOrphans = append(report.PrunedOrphans, prunedClips...)

	voices, prunedVoices := withoutOrphans(sess.voices, stored)

	err = s.voices.Persist(ctx, scope, voices)
	if err != nil {
		return fmt.Errorf("failed to prune orphaned voices: %w", err)
	}

	sess.voices = voices
	report.PrunedOrphans = append(report.PrunedOrphans, prunedVoices...)

	return nil
}

func withoutOrphans[R core.Record](
	entries []library.Entry[R],
	stored map[string]string,
) ([]library.Entry[R], []string) {
	kept := entries[:0:0]

	var pruned []string

	for _, entry := range entries {
		if _, ok := stored[entry.Record.RecordID()]; ok {
			kept = append(kept, entry)
		} else {
			pruned = append(pruned, entry.Record.RecordID())
		}
	}

	return kept, pruned
}
