// Package local_test tests the local filesystem store.
package local_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/census-pipeline/internal/storage"
	"github.com/JakeFAU/census-pipeline/internal/storage/local"
)

const helloMD5 = "5eb63bbbe01eeed093cb22bb8f5acdc3"

func TestNew(t *testing.T) {
	t.Run("ValidConfig", func(t *testing.T) {
		store, err := local.New(local.Config{BaseDir: t.TempDir()})
		require.NoError(t, err)
		assert.NotNil(t, store)
	})

	t.Run("CreatesMissingDir", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "public")
		_, err := local.New(local.Config{BaseDir: dir})
		require.NoError(t, err)
		assert.DirExists(t, dir)
	})

	t.Run("MissingBaseDir", func(t *testing.T) {
		_, err := local.New(local.Config{})
		assert.Error(t, err)
	})

	t.Run("BaseDirIsNotADirectory", func(t *testing.T) {
		tempFile, err := os.CreateTemp(t.TempDir(), "testfile")
		require.NoError(t, err)
		require.NoError(t, tempFile.Close())

		_, err = local.New(local.Config{BaseDir: tempFile.Name()})
		assert.Error(t, err)
	})
}

func TestHeadAndPut(t *testing.T) {
	tempDir := t.TempDir()
	store, err := local.New(local.Config{BaseDir: tempDir})
	require.NoError(t, err)
	ctx := context.Background()
	key := "lodes/year=2022/geography=tract/origin=home/state=wi/lodes-2022-tract-home-wi.parquet"

	status, err := store.Head(ctx, key, helloMD5)
	require.NoError(t, err)
	assert.Equal(t, storage.Missing, status)

	uri, err := store.Put(ctx, key, []byte("hello world"), helloMD5)
	require.NoError(t, err)
	assert.Equal(t, "file://"+filepath.Join(tempDir, key), uri)

	status, err = store.Head(ctx, key, helloMD5)
	require.NoError(t, err)
	assert.Equal(t, storage.Match, status)

	status, err = store.Head(ctx, key, "0123456789abcdef0123456789abcdef")
	require.NoError(t, err)
	assert.Equal(t, storage.Differs, status)
}

func TestRejectsBadKeys(t *testing.T) {
	store, err := local.New(local.Config{BaseDir: t.TempDir()})
	require.NoError(t, err)

	_, err = store.Put(context.Background(), "", []byte("data"), "")
	require.ErrorIs(t, err, storage.ErrEmptyKey)

	_, err = store.Put(context.Background(), "../escape.txt", []byte("data"), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "path traversal")

	_, err = store.Head(context.Background(), "../../etc/passwd", helloMD5)
	require.Error(t, err)
}
