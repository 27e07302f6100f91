// Package filestore provides the write hook used by file actions.
package filestore

import (
	"fmt"

	"canvasmith/internal/domain"
	"canvasmith/internal/infra/config"
)

// New builds the store selected by cfg.Backend.
func New(cfg config.WorkspaceConfig) (domain.FileStore, error) {
	switch cfg.Backend {
	case "local", "":
		return NewLocal(cfg.Root, cfg.MaxSize)
	case "memory":
		return NewMemory(cfg.MaxSize), nil
	default:
		return nil, fmt.Errorf("unsupported workspace backend: %s", cfg.Backend)
	}
}
