package ledger

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/book-expert/voice-studio/internal/core"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// KVSnapshotStore keeps snapshots in a NATS JetStream key-value bucket. History is one:
// every write replaces the previous snapshot.
type KVSnapshotStore struct {
	bucket string
	kv     nats.KeyValue
}

// NewKVSnapshotStore creates the bucket if needed and binds to it.
func NewKVSnapshotStore(jetstreamContext nats.JetStreamContext, bucketName string) (*KVSnapshotStore, error) {
	kv, err := jetstreamContext.CreateKeyValue(&nats.KeyValueConfig{
		Bucket:      bucketName,
		Description: fmt.Sprintf("Artifact ledgers for the %s bucket.", bucketName),
		History:     1,
		Storage:     nats.FileStorage,
		Replicas:    1,
	})
	if err != nil {
		if !errors.Is(err, jetstream.ErrBucketExists) && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
			return nil, fmt.Errorf("failed to create key-value bucket '%s': %w", bucketName, err)
		}

		kv, err = jetstreamContext.KeyValue(bucketName)
		if err != nil {
			return nil, fmt.Errorf("failed to bind to existing key-value bucket '%s': %w", bucketName, err)
		}
	}

	return &KVSnapshotStore{bucket: bucketName, kv: kv}, nil
}

// ReadSnapshot returns the stored document for the pair.
func (s *KVSnapshotStore) ReadSnapshot(ctx context.Context, ownerScope string, kind core.Kind) ([]byte, error) {
	ctxErr := ctx.Err()
	if ctxErr != nil {
		return nil, ctxErr
	}

	key := kvKey(ownerScope, kind)

	entry, err := s.kv.Get(key)
	if err != nil {
		if errors.Is(err, nats.ErrKeyNotFound) {
			return nil, ErrSnapshotNotFound
		}

		return nil, fmt.Errorf("failed to get key '%s' from bucket '%s': %w", key, s.bucket, err)
	}

	return entry.Value(), nil
}

// WriteSnapshot replaces the stored document for the pair.
func (s *KVSnapshotStore) WriteSnapshot(ctx context.Context, ownerScope string, kind core.Kind, data []byte) error {
	ctxErr := ctx.Err()
	if ctxErr != nil {
		return ctxErr
	}

	key := kvKey(ownerScope, kind)

	_, err := s.kv.Put(key, data)
	if err != nil {
		return fmt.Errorf("failed to put key '%s' to bucket '%s': %w", key, s.bucket, err)
	}

	return nil
}

// DeleteSnapshot removes the stored document for the pair.
func (s *KVSnapshotStore) DeleteSnapshot(ctx context.Context, ownerScope string, kind core.Kind) error {
	ctxErr := ctx.Err()
	if ctxErr != nil {
		return ctxErr
	}

	key := kvKey(ownerScope, kind)

	err := s.kv.Delete(key)
	if err != nil && !errors.Is(err, nats.ErrKeyNotFound) {
		return fmt.Errorf("failed to delete key '%s' from bucket '%s': %w", key, s.bucket, err)
	}

	return nil
}

// kvKey keeps arbitrary scope ids inside the key-value key alphabet.
func kvKey(ownerScope string, kind core.Kind) string {
	return string(kind) + "." + base64.RawURLEncoding.EncodeToString([]byte(ownerScope))
}
