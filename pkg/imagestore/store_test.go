package imagestore

import (
	"bytes"
	"context"
	"io"
	"os"
	"testing"

	"github.com/opencontainers/go-digest"
	"github.com/stretchr/testify/require"

	"github.com/gimpelhq/gimpel/pkg/logger"
	"github.com/gimpelhq/gimpel/pkg/models"
)

func TestWriteComputesCanonicalDigest(t *testing.T) {
	store, err := New(t.TempDir(), logger.NewTestLogger())
	require.NoError(t, err)

	payload := []byte("module image payload")

	meta, err := store.Write(context.Background(), "ssh-trap", "1.0.0", bytes.NewReader(payload))
	require.NoError(t, err)
	require.Equal(t, digest.FromBytes(payload), meta.Digest)
	require.Equal(t, int64(len(payload)), meta.SizeBytes)
}

func TestWriteLeavesNoTempFile(t *testing.T) {
	dir := t.TempDir()

	store, err := New(dir, logger.NewTestLogger())
	require.NoError(t, err)

	_, err = store.Write(context.Background(), "ssh-trap", "1.0.0", bytes.NewReader([]byte("x")))
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "ssh-trap_1.0.0.img", entries[0].Name())
}

func TestOpenStreamsStoredBytes(t *testing.T) {
	store, err := New(t.TempDir(), logger.NewTestLogger())
	require.NoError(t, err)

	payload := []byte("stream me back")

	_, err = store.Write(context.Background(), "ftp-trap", "0.2.0", bytes.NewReader(payload))
	require.NoError(t, err)

	reader, size, err := store.Open(context.Background(), "ftp-trap", "0.2.0")
	require.NoError(t, err)

	defer func() { require.NoError(t, reader.Close()) }()

	require.Equal(t, int64(len(payload)), size)

	got, err := io.ReadAll(reader)
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestOpenMissingImage(t *testing.T) {
	store, err := New(t.TempDir(), logger.NewTestLogger())
	require.NoError(t, err)

	_, _, err = store.Open(context.Background(), "ghost", "9.9.9")
	require.ErrorIs(t, err, models.ErrImageNotFound)
}

func TestRemoveIsIdempotent(t *testing.T) {
	store, err := New(t.TempDir(), logger.NewTestLogger())
	require.NoError(t, err)

	_, err = store.Write(context.Background(), "ssh-trap", "1.0.0", bytes.NewReader([]byte("x")))
	require.NoError(t, err)

	require.NoError(t, store.Remove(context.Background(), "ssh-trap", "1.0.0"))
	require.NoError(t, store.Remove(context.Background(), "ssh-trap", "1.0.0"))
}
