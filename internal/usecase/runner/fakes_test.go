package runner

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"canvasmith/internal/domain"
)

func newTestLogger() *slog.Logger { return slog.Default() }

// recordingStore is an in-memory FileStore that keeps every write.
type recordingStore struct {
	mu     sync.Mutex
	writes []domain.AppliedFile
	files  map[string]string
	err    error
}

func newRecordingStore() *recordingStore {
	return &recordingStore{files: make(map[string]string)}
}

func (s *recordingStore) Name() string { return "recording" }

func (s *recordingStore) Write(_ context.Context, path, content string) (*domain.AppliedFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	f := domain.AppliedFile{Path: path, Content: content, Size: len(content), Location: "mem:" + path}
	s.writes = append(s.writes, f)
	s.files[path] = content
	return &f, nil
}

func (s *recordingStore) Writes() []domain.AppliedFile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.AppliedFile(nil), s.writes...)
}

func (s *recordingStore) File(path string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.files[path]
	return c, ok
}

// fakeSession is a scripted command session.
type fakeSession struct {
	mu       sync.Mutex
	results  map[string]domain.CommandResult
	commands []string
	runIDs   []string
	readyErr error

	// block, when set, makes ExecuteCommand wait until it is closed or the
	// session is interrupted.
	block       chan struct{}
	started     chan struct{}
	interrupted chan struct{}
	once        sync.Once
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		results:     make(map[string]domain.CommandResult),
		started:     make(chan struct{}, 16),
		interrupted: make(chan struct{}),
	}
}

func (s *fakeSession) Script(command string, exitCode int, output string) {
	s.mu.Lock()
	s.results[command] = domain.CommandResult{ExitCode: exitCode, Output: output}
	s.mu.Unlock()
}

func (s *fakeSession) Ready(context.Context) error { return s.readyErr }

func (s *fakeSession) ExecuteCommand(ctx context.Context, runID, command string, onAbort func()) (*domain.CommandResult, error) {
	s.mu.Lock()
	s.commands = append(s.commands, command)
	s.runIDs = append(s.runIDs, runID)
	res, ok := s.results[command]
	block := s.block
	s.mu.Unlock()
	s.started <- struct{}{}

	if block != nil {
		select {
		case <-block:
		case <-s.interrupted:
			onAbort()
			return &domain.CommandResult{ExitCode: 130, Output: "^C"}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if !ok {
		return &domain.CommandResult{ExitCode: 0, Output: fmt.Sprintf("ran %s", command)}, nil
	}
	return &res, nil
}

func (s *fakeSession) Interrupt() error {
	s.once.Do(func() { close(s.interrupted) })
	return nil
}

func (s *fakeSession) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commands...)
}

func (s *fakeSession) RunIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.runIDs...)
}

type fakeProvider struct {
	session *fakeSession
	err     error
}

func (p *fakeProvider) Session(context.Context) (domain.CommandSession, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.session, nil
}

// alertRecorder collects everything a Notifier emits.
type alertRecorder struct {
	mu       sync.Mutex
	alerts   []domain.Alert
	database []domain.DatabaseAlert
	deploy   []domain.DeployAlert
}

func (r *alertRecorder) Notifier() *Notifier {
	return &Notifier{
		OnAlert: func(a domain.Alert) {
			r.mu.Lock()
			r.alerts = append(r.alerts, a)
			r.mu.Unlock()
		},
		OnDatabaseAlert: func(a domain.DatabaseAlert) {
			r.mu.Lock()
			r.database = append(r.database, a)
			r.mu.Unlock()
		},
		OnDeployAlert: func(a domain.DeployAlert) {
			r.mu.Lock()
			r.deploy = append(r.deploy, a)
			r.mu.Unlock()
		},
	}
}

func (r *alertRecorder) Alerts() []domain.Alert {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Alert(nil), r.alerts...)
}

func (r *alertRecorder) DatabaseAlerts() []domain.DatabaseAlert {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.DatabaseAlert(nil), r.database...)
}

func (r *alertRecorder) DeployAlerts() []domain.DeployAlert {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.DeployAlert(nil), r.deploy...)
}

// recordingSink is a PageSink that keeps every upserted page.
type recordingSink struct {
	mu    sync.Mutex
	pages []domain.Page
}

func (s *recordingSink) UpsertPage(_ context.Context, _ string, p domain.Page) error {
	s.mu.Lock()
	s.pages = append(s.pages, p)
	s.mu.Unlock()
	return nil
}

func (s *recordingSink) Pages() []domain.Page {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Page(nil), s.pages...)
}
