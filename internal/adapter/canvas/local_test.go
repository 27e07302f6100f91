package canvas

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"canvasmith/internal/domain"
)

func newBackend(t *testing.T) *LocalBackend {
	t.Helper()
	b, err := NewLocalBackend(filepath.Join(t.TempDir(), "canvas"), 0)
	require.NoError(t, err)
	return b
}

func TestLocalBackend_UpsertWritesSegments(t *testing.T) {
	b := newBackend(t)
	ctx := context.Background()

	page := domain.Page{
		Name:      "home",
		Path:      "index.html",
		HTMLBody:  "<h1>Home</h1>",
		CSSBody:   "h1{color:red}",
		JSBody:    "console.log(1)",
		PreviewID: "p-1",
		Position:  &domain.CanvasPosition{X: 1, Y: 2},
	}
	require.NoError(t, b.UpsertPage(ctx, "s1", page))

	info, err := b.Get(ctx, "s1", "p-1")
	require.NoError(t, err)
	assert.Equal(t, "home", info.Name)
	assert.Equal(t, 1, info.Revisions)
	assert.False(t, info.Final)

	doc, err := os.ReadFile(filepath.Join(info.Dir, "index.html"))
	require.NoError(t, err)
	assert.Contains(t, string(doc), "<h1>Home</h1>")
	assert.Contains(t, string(doc), `href="style.css"`)

	css, err := os.ReadFile(filepath.Join(info.Dir, "style.css"))
	require.NoError(t, err)
	assert.Equal(t, "h1{color:red}", string(css))

	page.HTMLBody = "<h1>Home v2</h1>"
	page.Position = nil
	page.Final = true
	require.NoError(t, b.UpsertPage(ctx, "s1", page))

	info, err = b.Get(ctx, "s1", "p-1")
	require.NoError(t, err)
	assert.Equal(t, 2, info.Revisions)
	assert.True(t, info.Final)
	assert.Equal(t, &domain.CanvasPosition{X: 1, Y: 2}, info.Position, "position survives an update without one")
}

func TestLocalBackend_List(t *testing.T) {
	b := newBackend(t)
	ctx := context.Background()

	pages, err := b.List(ctx, "empty")
	require.NoError(t, err)
	assert.Empty(t, pages)

	require.NoError(t, b.UpsertPage(ctx, "s1", domain.Page{Name: "a", PreviewID: "p-a"}))
	require.NoError(t, b.UpsertPage(ctx, "s1", domain.Page{Name: "b", PreviewID: "p-b"}))
	require.NoError(t, b.UpsertPage(ctx, "s2", domain.Page{Name: "c", PreviewID: "p-c"}))

	pages, err = b.List(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.ElementsMatch(t, []string{"a", "b"}, []string{pages[0].Name, pages[1].Name})
}

func TestLocalBackend_Validation(t *testing.T) {
	b, err := NewLocalBackend(t.TempDir(), 8)
	require.NoError(t, err)
	ctx := context.Background()

	err = b.UpsertPage(ctx, "../s", domain.Page{PreviewID: "p"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	err = b.UpsertPage(ctx, "s", domain.Page{PreviewID: ""})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	err = b.UpsertPage(ctx, "s", domain.Page{PreviewID: "p", HTMLBody: "0123456789"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Equal(t, domain.CodePageInvalid, domain.ErrorCodeOf(err))

	_, err = b.Get(ctx, "s", "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, domain.CodePageNotFound, domain.ErrorCodeOf(err))
}
