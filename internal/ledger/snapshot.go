// Package ledger persists ordered collections of artifact records, one snapshot document
// per (owner scope, record kind) pair.
package ledger

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/book-expert/voice-studio/internal/core"
)

// SnapshotVersion is the document schema version written by Encode.
const SnapshotVersion = 1

var (
	// ErrUnparseable indicates a stored snapshot that cannot be decoded into records.
	ErrUnparseable = errors.New("unparseable ledger snapshot")
	// ErrSnapshotNotFound indicates that nothing was ever saved for the scope and kind.
	ErrSnapshotNotFound = errors.New("ledger snapshot not found")
)

type snapshotHeader struct {
	Version    int             `json:"version"`
	Kind       core.Kind       `json:"kind"`
	OwnerScope string          `json:"ownerScope"`
	Records    json.RawMessage `json:"records"`
}

type snapshotDocument[R core.Record] struct {
	Version    int       `json:"version"`
	Kind       core.Kind `json:"kind"`
	OwnerScope string    `json:"ownerScope"`
	Records    []R       `json:"records"`
}

// KindOf returns the record kind of R.
func KindOf[R core.Record]() core.Kind {
	var zero R

	return zero.RecordKind()
}

// Encode serializes records as a tagged snapshot document.
func Encode[R core.Record](ownerScope string, records []R) ([]byte, error) {
	if records == nil {
		records = []R{}
	}

	doc := snapshotDocument[R]{
		Version:    SnapshotVersion,
		Kind:       KindOf[R](),
		OwnerScope: ownerScope,
		Records:    records,
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s snapshot: %w", doc.Kind, err)
	}

	return data, nil
}

// Decode parses a snapshot document written by Encode. Any structural problem is reported
// as ErrUnparseable: bad JSON, an unknown version, a kind or scope that does not match, and
// records without an id, owned by another scope, or sharing an id.
func Decode[R core.Record](data []byte, ownerScope string) ([]R, error) {
	kind := KindOf[R]()

	var header snapshotHeader

	err := json.Unmarshal(data, &header)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnparseable, err)
	}

	switch {
	case header.Version != SnapshotVersion:
		return nil, fmt.Errorf("%w: unsupported version %d", ErrUnparseable, header.Version)
	case header.Kind != kind:
		return nil, fmt.Errorf("%w: snapshot holds %q, expected %q", ErrUnparseable, header.Kind, kind)
	case header.OwnerScope != ownerScope:
		return nil, fmt.Errorf("%w: snapshot belongs to scope %q", ErrUnparseable, header.OwnerScope)
	case len(header.Records) == 0:
		return nil, fmt.Errorf("%w: missing records", ErrUnparseable)
	}

	var records []R

	err = json.Unmarshal(header.Records, &records)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnparseable, err)
	}

	seen := make(map[string]struct{}, len(records))

	for index, record := range records {
		id := record.RecordID()
		if id == "" {
			return nil, fmt.Errorf("%w: record %d has no id", ErrUnparseable, index)
		}

		if record.Owner() != ownerScope {
			return nil, fmt.Errorf("%w: record %s belongs to scope %q", ErrUnparseable, id, record.Owner())
		}

		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("%w: duplicate record id %s", ErrUnparseable, id)
		}

		seen[id] = struct{}{}
	}

	if records == nil {
		records = []R{}
	}

	return records, nil
}
