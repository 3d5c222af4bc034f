package objectstore_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/book-expert/voice-studio/internal/objectstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_Contract(t *testing.T) {
	t.Parallel()

	store, err := objectstore.NewFileStore(t.TempDir())
	require.NoError(t, err)

	blobStoreContract(t, store)
}

func TestFileStore_List(t *testing.T) {
	t.Parallel()

	store, err := objectstore.NewFileStore(t.TempDir())
	require.NoError(t, err)

	blobListContract(t, store)
}

func TestFileStore_SurvivesReopen(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	ctx := context.Background()

	store, err := objectstore.NewFileStore(root)
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, "scope/clip-1", []byte("durable")))

	reopened, err := objectstore.NewFileStore(root)
	require.NoError(t, err)

	data, found, err := reopened.Get(ctx, "scope/clip-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("durable"), data)

	leftovers, err := os.ReadDir(filepath.Join(root, "tmp"))
	require.NoError(t, err)
	assert.Empty(t, leftovers, "temp files are renamed into place")
}

func TestFileStore_KeysCannotEscapeRoot(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	ctx := context.Background()

	store, err := objectstore.NewFileStore(root)
	require.NoError(t, err)

	require.NoError(t, store.Put(ctx, "../../etc/passwd", []byte("x")))

	keys, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"../../etc/passwd"}, keys)

	_, statErr := os.Stat(filepath.Join(filepath.Dir(root), "etc"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestFileStore_RejectsInvalidKeys(t *testing.T) {
	t.Parallel()

	store, err := objectstore.NewFileStore(t.TempDir())
	require.NoError(t, err)

	require.ErrorIs(t, store.Put(context.Background(), "", []byte("x")), objectstore.ErrInvalidKey)
	require.ErrorIs(t, store.Put(context.Background(), "scope//id", []byte("x")), objectstore.ErrInvalidKey)

	_, err = objectstore.NewFileStore("  ")
	require.ErrorIs(t, err, objectstore.ErrRootRequired)
}
