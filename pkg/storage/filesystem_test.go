package storage

import (
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorageSaveStreamEnforcesLimit(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	ref, n, err := store.SaveStream("documents/u1/id.pdf", strings.NewReader("pdf-bytes"), 64)
	require.NoError(t, err)
	assert.Equal(t, "documents/u1/id.pdf", ref)
	assert.Equal(t, int64(9), n)

	file, err := store.Open(ref)
	require.NoError(t, err)
	body, _ := io.ReadAll(file)
	_ = file.Close()
	assert.Equal(t, "pdf-bytes", string(body))

	_, _, err = store.SaveStream("documents/u1/big.pdf", strings.NewReader(strings.Repeat("x", 100)), 10)
	require.ErrorIs(t, err, ErrTooLarge)
	_, err = store.Open("documents/u1/big.pdf")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLocalStorageRejectsTraversal(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	_, err = store.Save("../escape.txt", []byte("x"))
	require.ErrorIs(t, err, ErrInvalidPath)
	_, err = store.Open("/etc/passwd")
	require.ErrorIs(t, err, ErrInvalidPath)
}

func TestLocalStorageCleanup(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	_, err = store.Save("exports/old.csv", []byte("a"))
	require.NoError(t, err)

	deleted, err := store.CleanupOlderThan(-time.Minute)
	require.NoError(t, err)
	assert.Equal(t, []string{"exports/old.csv"}, deleted)
	_, err = store.Open("exports/old.csv")
	assert.ErrorIs(t, err, os.ErrNotExist)
}
