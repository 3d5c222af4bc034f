// Package objectstore provides the blob store backends for recorded and generated audio.
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// NatsObjectStore implements core.BlobStore using a NATS JetStream object store bucket.
type NatsObjectStore struct {
	jetstreamContext nats.JetStreamContext
	bucket           string
	store            nats.ObjectStore
}

// New creates the bucket if needed and binds to it.
func New(jetstreamContext nats.JetStreamContext, bucketName string) (*NatsObjectStore, error) {
	// Use a "create-first" approach.
	store, err := jetstreamContext.CreateObjectStore(&nats.ObjectStoreConfig{
		Bucket:      bucketName,
		Description: fmt.Sprintf("Audio artifacts for the %s bucket.", bucketName),
		TTL:         0,
		MaxBytes:    0,
		Storage:     nats.FileStorage,
		Replicas:    1,
		Placement:   nil,
		Metadata:    nil,
		Compression: false,
	})
	if err != nil {
		if !errors.Is(err, jetstream.ErrBucketExists) && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
			return nil, fmt.Errorf("failed to create object store bucket '%s': %w", bucketName, err)
		}

		// The bucket already exists, bind to it.
		store, err = jetstreamContext.ObjectStore(bucketName)
		if err != nil {
			return nil, fmt.Errorf("failed to bind to existing object store bucket '%s': %w", bucketName, err)
		}
	}

	return &NatsObjectStore{
		jetstreamContext: jetstreamContext,
		bucket:           bucketName,
		store:            store,
	}, nil
}

// Get retrieves an object. A missing object is reported with found == false.
func (n *NatsObjectStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	ctxErr := ctx.Err()
	if ctxErr != nil {
		return nil, false, ctxErr
	}

	obj, err := n.store.Get(key)
	if err != nil {
		if errors.Is(err, nats.ErrObjectNotFound) {
			return nil, false, nil
		}

		return nil, false, fmt.Errorf("failed to get object '%s' from bucket '%s': %w", key, n.bucket, err)
	}

	data, readErr := io.ReadAll(obj)
	closeErr := obj.Close()

	if readErr != nil {
		return nil, false, fmt.Errorf("failed to read object '%s': %w", key, readErr)
	}

	if closeErr != nil {
		return data, true, fmt.Errorf("failed to close object '%s': %w", key, closeErr)
	}

	return data, true, nil
}

// Put stores or overwrites an object.
func (n *NatsObjectStore) Put(ctx context.Context, key string, data []byte) error {
	ctxErr := ctx.Err()
	if ctxErr != nil {
		return ctxErr
	}

	reader := bytes.NewReader(data)

	_, err := n.store.Put(&nats.ObjectMeta{
		Name:        key,
		Description: "",
		Headers:     nil,
		Metadata:    nil,
		Opts:        nil,
	}, reader)
	if err != nil {
		return fmt.Errorf("failed to put object '%s' to bucket '%s': %w", key, n.bucket, err)
	}

	return nil
}

// Delete removes an object. Deleting a missing object is a no-op.
func (n *NatsObjectStore) Delete(ctx context.Context, key string) error {
	ctxErr := ctx.Err()
	if ctxErr != nil {
		return ctxErr
	}

	err := n.store.Delete(key)
	if err != nil && !errors.Is(err, nats.ErrObjectNotFound) {
		return fmt.Errorf("failed to delete object '%s' from bucket '%s': %w", key, n.bucket, err)
	}

	return nil
}

// List returns the names of live objects starting with prefix.
func (n *NatsObjectStore) List(ctx context.Context, prefix string) ([]string, error) {
	ctxErr := ctx.Err()
	if ctxErr != nil {
		return nil, ctxErr
	}

	infos, err := n.store.List()
	if err != nil {
		if errors.Is(err, nats.ErrNoObjectsFound) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to list objects in bucket '%s': %w", n.bucket, err)
	}

	keys := make([]string, 0, len(infos))

	for _, info := range infos {
		if info.Deleted || !strings.HasPrefix(info.Name, prefix) {
			continue
		}

		keys = append(keys, info.Name)
	}

	return keys, nil
}
