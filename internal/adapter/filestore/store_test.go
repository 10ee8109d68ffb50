package filestore_test

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/couchcryptid/catastro-tasador/internal/adapter/filestore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSave_CreatesDirAndWritesFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "informes")
	s := filestore.New(dir, slog.Default())

	h, err := s.Save(context.Background(), "Informe_9872023VH5797S0001WX.pdf", []byte("%PDF-1.4"))
	require.NoError(t, err)

	assert.Equal(t, "Informe_9872023VH5797S0001WX.pdf", h.Name)
	assert.Equal(t, filepath.Join(dir, h.Name), h.Path)
	assert.Equal(t, int64(8), h.Size)

	data, err := os.ReadFile(h.Path)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file must not be left behind")
}

func TestSave_Overwrites(t *testing.T) {
	s := filestore.New(t.TempDir(), slog.Default())

	_, err := s.Save(context.Background(), "Informe_A.pdf", []byte("first"))
	require.NoError(t, err)
	h, err := s.Save(context.Background(), "Informe_A.pdf", []byte("second"))
	require.NoError(t, err)

	data, err := os.ReadFile(h.Path)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))
}

func TestSave_RejectsPathInName(t *testing.T) {
	s := filestore.New(t.TempDir(), slog.Default())

	for _, name := range []string{"", "../escape.pdf", "sub/dir.pdf"} {
		_, err := s.Save(context.Background(), name, []byte("x"))
		assert.Error(t, err, name)
	}
}

func TestSave_CanceledContext(t *testing.T) {
	s := filestore.New(t.TempDir(), slog.Default())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Save(ctx, "Informe_A.pdf", []byte("x"))
	require.ErrorIs(t, err, context.Canceled)
}
