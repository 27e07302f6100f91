package filestore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"canvasmith/internal/domain"
	"canvasmith/internal/infra/config"
)

func TestLocal_WriteCreatesParents(t *testing.T) {
	root := t.TempDir()
	s, err := NewLocal(root, 0)
	require.NoError(t, err)

	applied, err := s.Write(context.Background(), "/pages/shop/index.html", "<p>1</p>")
	require.NoError(t, err)
	assert.Equal(t, "/pages/shop/index.html", applied.Path)
	assert.Equal(t, 8, applied.Size)
	assert.Equal(t, filepath.Join(s.Root(), "pages", "shop", "index.html"), applied.Location)

	data, err := os.ReadFile(applied.Location)
	require.NoError(t, err)
	assert.Equal(t, "<p>1</p>", string(data))

	_, err = s.Write(context.Background(), "pages/shop/index.html", "<p>2</p>")
	require.NoError(t, err)
	got, err := s.Read("pages/shop/index.html")
	require.NoError(t, err)
	assert.Equal(t, "<p>2</p>", got)

	entries, err := os.ReadDir(filepath.Join(s.Root(), "pages", "shop"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestLocal_RejectsEscapeAndOversize(t *testing.T) {
	s, err := NewLocal(t.TempDir(), 4)
	require.NoError(t, err)

	_, err = s.Write(context.Background(), "../evil.sh", "x")
	assert.ErrorIs(t, err, domain.ErrPathOutsideSandbox)

	_, err = s.Write(context.Background(), "big.txt", "12345")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = s.Read("missing.txt")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestLocal_CancelledContext(t *testing.T) {
	s, err := NewLocal(t.TempDir(), 0)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Write(ctx, "a.txt", "x")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMemory_WriteAndRead(t *testing.T) {
	m := NewMemory(0)
	ctx := context.Background()

	_, err := m.Write(ctx, "/src/app.js", "a")
	require.NoError(t, err)
	_, err = m.Write(ctx, "src/app.js", "ab")
	require.NoError(t, err)
	_, err = m.Write(ctx, "index.html", "<p/>")
	require.NoError(t, err)

	got, ok := m.Read("src/app.js")
	require.True(t, ok)
	assert.Equal(t, "ab", got)
	assert.Equal(t, []string{"index.html", "src/app.js"}, m.Paths())
	assert.Equal(t, 3, m.Writes())

	_, err = m.Write(ctx, "/", "x")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestNew_SelectsBackend(t *testing.T) {
	s, err := New(config.WorkspaceConfig{Backend: "memory"})
	require.NoError(t, err)
	assert.Equal(t, "memory", s.Name())

	s, err = New(config.WorkspaceConfig{Backend: "local", Root: filepath.Join(t.TempDir(), "ws")})
	require.NoError(t, err)
	assert.Equal(t, "local", s.Name())

	_, err = New(config.WorkspaceConfig{Backend: "s3"})
	assert.Error(t, err)
}
