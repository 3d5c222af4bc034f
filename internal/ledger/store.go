package ledger

import (
	"context"

	"github.com/book-expert/voice-studio/internal/core"
)

// SnapshotStore persists opaque snapshot documents. ReadSnapshot returns
// ErrSnapshotNotFound when nothing was written for the pair.
type SnapshotStore interface {
	ReadSnapshot(ctx context.Context, ownerScope string, kind core.Kind) ([]byte, error)
	WriteSnapshot(ctx context.Context, ownerScope string, kind core.Kind, data []byte) error
	DeleteSnapshot(ctx context.Context, ownerScope string, kind core.Kind) error
}
