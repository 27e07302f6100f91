package filestore

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"

	"canvasmith/internal/domain"
)

// Memory keeps file actions in a map keyed by cleaned path.
type Memory struct {
	mu      sync.RWMutex
	files   map[string]string
	writes  int
	maxSize int
}

// NewMemory creates an empty in-memory store. maxSize <= 0 disables the limit.
func NewMemory(maxSize int) *Memory {
	return &Memory{files: make(map[string]string), maxSize: maxSize}
}

func (m *Memory) Name() string { return "memory" }

func (m *Memory) Write(ctx context.Context, p, content string) (*domain.AppliedFile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key, err := cleanKey(p)
	if err != nil {
		return nil, err
	}
	if m.maxSize > 0 && len(content) > m.maxSize {
		return nil, domain.NewDomainError("Memory.Write", domain.ErrInvalidInput,
			fmt.Sprintf("%s is %d bytes, limit is %d", p, len(content), m.maxSize))
	}

	m.mu.Lock()
	m.files[key] = content
	m.writes++
	m.mu.Unlock()

	return &domain.AppliedFile{Path: p, Content: content, Size: len(content), Location: key}, nil
}

// Read returns the content stored at p.
func (m *Memory) Read(p string) (string, bool) {
	key, err := cleanKey(p)
	if err != nil {
		return "", false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.files[key]
	return c, ok
}

// Paths lists stored keys in lexical order.
func (m *Memory) Paths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.files))
	for k := range m.files {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Writes counts every accepted write, including overwrites.
func (m *Memory) Writes() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.writes
}

func cleanKey(p string) (string, error) {
	key := strings.TrimPrefix(path.Clean("/"+p), "/")
	if key == "" || key == "." {
		return "", domain.NewDomainError("Memory.Write", domain.ErrInvalidInput, "empty path")
	}
	return key, nil
}
