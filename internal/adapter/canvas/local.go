// Package canvas materializes derived pages for the design canvas.
package canvas

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"canvasmith/internal/domain"
)

// PageInfo is the metadata stored next to each materialized page.
type PageInfo struct {
	Name      string                 `json:"name"`
	Path      string                 `json:"path"`
	PreviewID string                 `json:"preview_id"`
	SessionID string                 `json:"session_id"`
	Position  *domain.CanvasPosition `json:"position,omitempty"`
	Final     bool                   `json:"final"`
	Revisions int                    `json:"revisions"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
	Dir       string                 `json:"-"`
}

// LocalBackend stores pages on the local filesystem.
// Directory structure: <root>/<session_id>/<preview_id>/{index.html,style.css,script.js}
type LocalBackend struct {
	root    string
	maxSize int

	mu sync.Mutex // serializes read-modify-write of metadata
}

// NewLocalBackend creates a page backend rooted at the given directory.
func NewLocalBackend(root string, maxSize int) (*LocalBackend, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve canvas root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o700); err != nil {
		return nil, fmt.Errorf("create canvas root: %w", err)
	}
	return &LocalBackend{root: abs, maxSize: maxSize}, nil
}

func (b *LocalBackend) Name() string { return "local" }

// UpsertPage writes the page's segments and updates its metadata.
func (b *LocalBackend) UpsertPage(ctx context.Context, sessionID string, page domain.Page) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateID("session ID", sessionID); err != nil {
		return err
	}
	if err := validateID("preview ID", page.PreviewID); err != nil {
		return err
	}
	if size := len(page.HTMLBody) + len(page.CSSBody) + len(page.JSBody); b.maxSize > 0 && size > b.maxSize {
		return domain.NewSubSystemError("canvas", "LocalBackend.UpsertPage", domain.ErrInvalidInput,
			fmt.Sprintf("page %q is %d bytes, limit is %d", page.Name, size, b.maxSize))
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	dir := b.pageDir(sessionID, page.PreviewID)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create page dir: %w", err)
	}

	files := map[string]string{
		"index.html": renderDocument(page),
		"style.css":  page.CSSBody,
		"script.js":  page.JSBody,
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
	}

	now := time.Now()
	info := b.readMeta(dir)
	if info.CreatedAt.IsZero() {
		info.CreatedAt = now
	}
	info.Name = page.Name
	info.Path = page.Path
	info.PreviewID = page.PreviewID
	info.SessionID = sessionID
	if page.Position != nil {
		info.Position = page.Position
	}
	info.Final = page.Final
	info.Revisions++
	info.UpdatedAt = now
	return b.writeMeta(dir, info)
}

// Get returns the metadata of one page.
func (b *LocalBackend) Get(_ context.Context, sessionID, previewID string) (*PageInfo, error) {
	if err := validateID("session ID", sessionID); err != nil {
		return nil, err
	}
	if err := validateID("preview ID", previewID); err != nil {
		return nil, err
	}
	dir := b.pageDir(sessionID, previewID)
	if _, err := os.Stat(filepath.Join(dir, "index.html")); err != nil {
		if os.IsNotExist(err) {
			return nil, domain.NewSubSystemError("canvas", "LocalBackend.Get", domain.ErrNotFound,
				fmt.Sprintf("page %q not found", previewID))
		}
		return nil, fmt.Errorf("stat page: %w", err)
	}
	info := b.readMeta(dir)
	info.Dir = dir
	return info, nil
}

// List returns every page of a session, oldest first.
func (b *LocalBackend) List(_ context.Context, sessionID string) ([]PageInfo, error) {
	if err := validateID("session ID", sessionID); err != nil {
		return nil, err
	}
	sessionDir := filepath.Join(b.root, sessionID)
	entries, err := os.ReadDir(sessionDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list pages: %w", err)
	}

	var pages []PageInfo
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(sessionDir, entry.Name())
		if _, err := os.Stat(filepath.Join(dir, "index.html")); err != nil {
			continue
		}
		info := b.readMeta(dir)
		if info.PreviewID == "" {
			info.PreviewID = entry.Name()
		}
		info.SessionID = sessionID
		info.Dir = dir
		pages = append(pages, *info)
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].CreatedAt.Before(pages[j].CreatedAt) })
	return pages, nil
}

func (b *LocalBackend) pageDir(sessionID, previewID string) string {
	return filepath.Join(b.root, sessionID, previewID)
}

func (b *LocalBackend) metaPath(dir string) string {
	return filepath.Join(dir, ".page-meta.json")
}

func (b *LocalBackend) writeMeta(dir string, info *PageInfo) error {
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal page meta: %w", err)
	}
	if err := os.WriteFile(b.metaPath(dir), data, 0o600); err != nil {
		return fmt.Errorf("write page meta: %w", err)
	}
	return nil
}

func (b *LocalBackend) readMeta(dir string) *PageInfo {
	data, err := os.ReadFile(b.metaPath(dir))
	if err != nil {
		return &PageInfo{}
	}
	var info PageInfo
	_ = json.Unmarshal(data, &info)
	return &info
}

// renderDocument wraps the extracted body so the page opens standalone
// with its segments linked back in.
func renderDocument(p domain.Page) string {
	var sb strings.Builder
	sb.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n")
	fmt.Fprintf(&sb, "<title>%s</title>\n", html.EscapeString(p.Name))
	sb.WriteString("<link rel=\"stylesheet\" href=\"style.css\">\n</head>\n<body>\n")
	sb.WriteString(p.HTMLBody)
	sb.WriteString("\n<script src=\"script.js\"></script>\n</body>\n</html>\n")
	return sb.String()
}

func validateID(what, id string) error {
	if id == "" {
		return domain.NewSubSystemError("canvas", "LocalBackend", domain.ErrInvalidInput, what+" cannot be empty")
	}
	if strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") {
		return domain.NewSubSystemError("canvas", "LocalBackend", domain.ErrInvalidInput,
			fmt.Sprintf("invalid %s %q: contains unsafe characters", what, id))
	}
	if len(id) > 128 {
		return domain.NewSubSystemError("canvas", "LocalBackend", domain.ErrInvalidInput,
			fmt.Sprintf("%s too long: %d chars (max 128)", what, len(id)))
	}
	return nil
}
