package filestore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"canvasmith/internal/domain"
	"canvasmith/internal/security"
)

// Local writes file actions to disk under a sandboxed workspace root.
type Local struct {
	sandbox *security.Sandbox
	maxSize int
}

// NewLocal creates the workspace root if needed and confines writes to it.
// maxSize <= 0 disables the size limit.
func NewLocal(root string, maxSize int) (*Local, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace root: %w", err)
	}
	sb, err := security.NewSandbox(root)
	if err != nil {
		return nil, err
	}
	return &Local{sandbox: sb, maxSize: maxSize}, nil
}

func (s *Local) Name() string { return "local" }

// Root returns the resolved workspace root.
func (s *Local) Root() string { return s.sandbox.Root() }

// Write replaces the content of path, creating parent directories.
func (s *Local) Write(ctx context.Context, path, content string) (*domain.AppliedFile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.maxSize > 0 && len(content) > s.maxSize {
		return nil, domain.NewDomainError("Local.Write", domain.ErrInvalidInput,
			fmt.Sprintf("%s is %d bytes, limit is %d", path, len(content), s.maxSize))
	}
	abs, err := s.sandbox.Resolve(path)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return nil, fmt.Errorf("create parent dir: %w", err)
	}
	if err := writeAtomic(abs, []byte(content)); err != nil {
		return nil, err
	}
	return &domain.AppliedFile{
		Path:     path,
		Content:  content,
		Size:     len(content),
		Location: abs,
	}, nil
}

// Read returns the current content of a workspace file.
func (s *Local) Read(path string) (string, error) {
	abs, err := s.sandbox.Resolve(path)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return "", domain.NewDomainError("Local.Read", domain.ErrNotFound, path)
		}
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(data), nil
}

// writeAtomic writes through a temp file in the same directory so readers
// never observe a half-written intermediate stream.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".canvasmith-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(name, 0o644); err != nil {
		os.Remove(name)
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(name, path); err != nil {
		os.Remove(name)
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}
