package terminal

import (
	"context"
	"log/slog"
	"sync"

	"canvasmith/internal/domain"
)

// Provider hands out one lazily created Session per engine.
type Provider struct {
	cfg    Config
	bus    domain.EventBus
	logger *slog.Logger

	mu      sync.Mutex
	session *Session
}

// NewProvider creates a provider. Nothing is started until the first
// Session call.
func NewProvider(cfg Config, bus domain.EventBus, logger *slog.Logger) *Provider {
	return &Provider{cfg: cfg, bus: bus, logger: logger}
}

// Session returns the engine's shell session, creating it on first use.
func (p *Provider) Session(ctx context.Context) (domain.CommandSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session == nil {
		s, err := NewSession(p.cfg, p.bus, p.logger)
		if err != nil {
			return nil, err
		}
		p.session = s
	}
	return p.session, nil
}

// Close stops the session if one was created.
func (p *Provider) Close() error {
	p.mu.Lock()
	s := p.session
	p.session = nil
	p.mu.Unlock()
	if s == nil {
		return nil
	}
	return s.Close()
}
