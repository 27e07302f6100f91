package runner

import (
	"context"
	"fmt"

	"canvasmith/internal/domain"
)

// FileExecutor writes file actions to the file store and, when a page
// deriver is attached, materializes HTML files as canvas pages.
type FileExecutor struct {
	store domain.FileStore
	pages *PageDeriver
}

// NewFileExecutor creates a file executor. A nil store makes every file
// action a successful no-op, which is how an engine without an attached
// execution environment behaves.
func NewFileExecutor(store domain.FileStore, pages *PageDeriver) *FileExecutor {
	return &FileExecutor{store: store, pages: pages}
}

func (e *FileExecutor) Execute(ctx context.Context, call Call) (Outcome, error) {
	if e.store == nil {
		return Outcome{}, nil
	}
	applied, err := e.write(ctx, call.Action.Target, call.Content)
	if err != nil {
		return Outcome{}, err
	}

	out := Outcome{Output: fmt.Sprintf("wrote %d bytes to %s", applied.Size, applied.Path)}
	if e.pages != nil && IsHTMLPath(applied.Path) {
		page, err := e.pages.Derive(ctx, domain.SessionIDFromContext(ctx), applied, !call.Streaming)
		if err != nil {
			return out, err
		}
		if page != nil {
			out.Output += fmt.Sprintf("; page %s", page.Name)
		}
	}
	return out, nil
}

func (e *FileExecutor) write(ctx context.Context, path, content string) (*domain.AppliedFile, error) {
	if path == "" {
		return nil, domain.NewSubSystemError("action", "FileExecutor.Write", domain.ErrInvalidInput, "file action has no target path")
	}
	if e.store == nil {
		return &domain.AppliedFile{Path: path, Content: content, Size: len(content)}, nil
	}
	applied, err := e.store.Write(ctx, path, content)
	if err != nil {
		return nil, fmt.Errorf("write %s to %s: %w", path, e.store.Name(), err)
	}
	return applied, nil
}
