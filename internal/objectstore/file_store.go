package objectstore

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	objectsDirName = "objects"
	tmpDirName     = "tmp"
	keySeparator   = "/"

	dirPermissions  = 0o750
	filePermissions = 0o600
)

var (
	// ErrRootRequired is returned when a FileStore is created without a root directory.
	ErrRootRequired = errors.New("file store root is required")
	// ErrInvalidKey is returned for empty keys or keys with empty segments.
	ErrInvalidKey = errors.New("invalid blob key")
)

// FileStore implements core.BlobStore on the local filesystem. Writes land in a temp file
// that is synced and renamed into place, so a reader never sees a partial blob.
type FileStore struct {
	root string
}

// NewFileStore creates the directory layout under root.
func NewFileStore(root string) (*FileStore, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, ErrRootRequired
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve file store root '%s': %w", root, err)
	}

	for _, dir := range []string{objectsDirName, tmpDirName} {
		mkdirErr := os.MkdirAll(filepath.Join(abs, dir), dirPermissions)
		if mkdirErr != nil {
			return nil, fmt.Errorf("failed to create file store directory '%s': %w", dir, mkdirErr)
		}
	}

	return &FileStore{root: abs}, nil
}

// Put stores or overwrites a blob.
func (s *FileStore) Put(ctx context.Context, key string, data []byte) error {
	ctxErr := ctx.Err()
	if ctxErr != nil {
		return ctxErr
	}

	dst, err := s.pathFromKey(key)
	if err != nil {
		return err
	}

	mkdirErr := os.MkdirAll(filepath.Dir(dst), dirPermissions)
	if mkdirErr != nil {
		return fmt.Errorf("failed to create directory for blob '%s': %w", key, mkdirErr)
	}

	tmp, err := os.CreateTemp(filepath.Join(s.root, tmpDirName), "put-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file for blob '%s': %w", key, err)
	}

	tmpPath := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}

	_, writeErr := tmp.Write(data)
	if writeErr != nil {
		cleanup()

		return fmt.Errorf("failed to write blob '%s': %w", key, writeErr)
	}

	syncErr := tmp.Sync()
	if syncErr != nil {
		cleanup()

		return fmt.Errorf("failed to sync blob '%s': %w", key, syncErr)
	}

	closeErr := tmp.Close()
	if closeErr != nil {
		_ = os.Remove(tmpPath)

		return fmt.Errorf("failed to close blob '%s': %w", key, closeErr)
	}

	chmodErr := os.Chmod(tmpPath, filePermissions)
	if chmodErr != nil {
		_ = os.Remove(tmpPath)

		return fmt.Errorf("failed to set permissions on blob '%s': %w", key, chmodErr)
	}

	renameErr := os.Rename(tmpPath, dst)
	if renameErr != nil {
		_ = os.Remove(tmpPath)

		return fmt.Errorf("failed to commit blob '%s': %w", key, renameErr)
	}

	return nil
}

// Get reads a blob. A missing blob is reported with found == false.
func (s *FileStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	ctxErr := ctx.Err()
	if ctxErr != nil {
		return nil, false, ctxErr
	}

	path, err := s.pathFromKey(key)
	if err != nil {
		return nil, false, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}

		return nil, false, fmt.Errorf("failed to read blob '%s': %w", key, err)
	}

	return data, true, nil
}

// Delete removes a blob. Missing blobs are ignored.
func (s *FileStore) Delete(ctx context.Context, key string) error {
	ctxErr := ctx.Err()
	if ctxErr != nil {
		return ctxErr
	}

	path, err := s.pathFromKey(key)
	if err != nil {
		return err
	}

	removeErr := os.Remove(path)
	if removeErr != nil && !errors.Is(removeErr, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete blob '%s': %w", key, removeErr)
	}

	return nil
}

// List returns the keys of stored blobs starting with prefix, sorted.
func (s *FileStore) List(ctx context.Context, prefix string) ([]string, error) {
	ctxErr := ctx.Err()
	if ctxErr != nil {
		return nil, ctxErr
	}

	objectsDir := filepath.Join(s.root, objectsDirName)

	var keys []string

	walkErr := filepath.WalkDir(objectsDir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if entry.IsDir() {
			return nil
		}

		rel, relErr := filepath.Rel(objectsDir, path)
		if relErr != nil {
			return relErr
		}

		key, decodeErr := keyFromPath(rel)
		if decodeErr != nil {
			// Not written by this store.
			return nil
		}

		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}

		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("failed to list blobs under '%s': %w", prefix, walkErr)
	}

	sort.Strings(keys)

	return keys, nil
}

// pathFromKey encodes every key segment so that no key can escape the store root.
func (s *FileStore) pathFromKey(key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("%w: empty key", ErrInvalidKey)
	}

	segments := strings.Split(key, keySeparator)
	encoded := make([]string, 0, len(segments)+2)
	encoded = append(encoded, s.root, objectsDirName)

	for _, segment := range segments {
		if segment == "" {
			return "", fmt.Errorf("%w: '%s' has an empty segment", ErrInvalidKey, key)
		}

		encoded = append(encoded, base64.RawURLEncoding.EncodeToString([]byte(segment)))
	}

	return filepath.Join(encoded...), nil
}

func keyFromPath(rel string) (string, error) {
	segments := strings.Split(filepath.ToSlash(rel), keySeparator)
	decoded := make([]string, 0, len(segments))

	for _, segment := range segments {
		raw, err := base64.RawURLEncoding.DecodeString(segment)
		if err != nil {
			return "", fmt.Errorf("%w: %w", ErrInvalidKey, err)
		}

		decoded = append(decoded, string(raw))
	}

	return strings.Join(decoded, keySeparator), nil
}
