// Package terminal runs shell actions in a persistent interactive shell.
package terminal

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"

	"canvasmith/internal/domain"
	"canvasmith/internal/infra/config"
)

const markerPrefix = "__canvasmith_done_"

// Exit codes reported for commands the session stopped itself.
const (
	ExitInterrupted = 130
	ExitTimedOut    = 124
)

// Config holds command session settings.
type Config struct {
	Shell     string
	WorkDir   string
	Env       []string
	Timeout   time.Duration // per command, 0 disables
	OutputMax int           // bytes of output kept per command
}

// FromConfig maps the shell section onto a session config running in workDir.
func FromConfig(c config.ShellConfig, workDir string) Config {
	return Config{
		Shell:     c.Path,
		WorkDir:   workDir,
		Timeout:   c.Timeout,
		OutputMax: c.OutputMax,
	}
}

// CommandEvent is the payload of command.started and command.settled events.
type CommandEvent struct {
	RunID       string `json:"run_id"`
	CommandID   string `json:"command_id"`
	ActionID    string `json:"action_id,omitempty"`
	Command     string `json:"command"`
	ExitCode    int    `json:"exit_code,omitempty"`
	DurationMS  int64  `json:"duration_ms,omitempty"`
	Interrupted bool   `json:"interrupted,omitempty"`
	TimedOut    bool   `json:"timed_out,omitempty"`
	Truncated   bool   `json:"truncated,omitempty"`
}

type marker struct {
	id   string
	code int
}

// proc is one generation of the shell process.
type proc struct {
	cmd      *exec.Cmd
	stdin    io.WriteCloser
	markers  chan marker
	exited   chan struct{} // closed once the process is gone and its output drained
	exitCode int
	killed   atomic.Bool
}

func (p *proc) alive() bool {
	select {
	case <-p.exited:
		return false
	default:
		return true
	}
}

func (p *proc) kill() {
	if p.killed.Swap(true) {
		return
	}
	_ = killProcessGroup(p.cmd)
}

// Session is a persistent shell. Working directory and exported variables
// carry over from one command to the next. Callers must not run commands
// concurrently.
type Session struct {
	cfg    Config
	bus    domain.EventBus
	logger *slog.Logger
	out    *ringBuffer

	mu  sync.Mutex
	cur *proc
}

// NewSession checks the shell binary and returns a session that starts it
// on the first Ready. bus may be nil.
func NewSession(cfg Config, bus domain.EventBus, logger *slog.Logger) (*Session, error) {
	if cfg.Shell == "" {
		cfg.Shell = "/bin/sh"
	}
	if cfg.OutputMax <= 0 {
		cfg.OutputMax = 1024 * 1024
	}
	if _, err := exec.LookPath(cfg.Shell); err != nil {
		return nil, domain.NewSubSystemError("terminal", "NewSession", domain.ErrSessionUnavailable, err.Error())
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		cfg:    cfg,
		bus:    bus,
		logger: logger,
		out:    newRingBuffer(cfg.OutputMax),
	}, nil
}

// Ready starts the shell, or restarts it after it exited or was interrupted.
func (s *Session) Ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur != nil && s.cur.alive() {
		return nil
	}
	p, err := s.start()
	if err != nil {
		return domain.NewSubSystemError("terminal", "Session.Ready", domain.ErrSessionUnavailable, err.Error())
	}
	if s.cur != nil {
		s.logger.Info("shell restarted", "pid", p.cmd.Process.Pid)
	} else {
		s.logger.Debug("shell started", "pid", p.cmd.Process.Pid)
	}
	s.cur = p
	return nil
}

func (s *Session) start() (*proc, error) {
	cmd := exec.Command(s.cfg.Shell)
	cmd.Dir = s.cfg.WorkDir
	cmd.Env = append(os.Environ(), s.cfg.Env...)
	cmd.WaitDelay = time.Second
	setProcessGroup(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", s.cfg.Shell, err)
	}

	p := &proc{
		cmd:     cmd,
		stdin:   stdin,
		markers: make(chan marker, 8),
		exited:  make(chan struct{}),
	}

	waited := make(chan struct{})
	go func() {
		err := cmd.Wait()
		p.exitCode = exitCode(err)
		close(waited)
		pw.Close()
	}()
	go func() {
		s.scan(p, pr)
		<-waited
		close(p.exited)
	}()
	return p, nil
}

// scan splits shell output into completion markers and command output.
func (s *Session) scan(p *proc, r io.Reader) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if m, ok := parseMarker(line); ok {
			select {
			case p.markers <- m:
			default:
				s.logger.Warn("dropping completion marker", "command_id", m.id)
			}
			continue
		}
		s.out.Write([]byte(line))
		s.out.Write([]byte{'\n'})
	}
	if err := sc.Err(); err != nil {
		s.logger.Warn("shell output scan stopped", "error", err)
	}
	_, _ = io.Copy(io.Discard, r)
}

func parseMarker(line string) (marker, bool) {
	rest, ok := strings.CutPrefix(line, markerPrefix)
	if !ok {
		return marker{}, false
	}
	id, codeStr, ok := strings.Cut(rest, "__ ")
	if !ok {
		return marker{}, false
	}
	code, err := strconv.Atoi(strings.TrimSpace(codeStr))
	if err != nil {
		return marker{}, false
	}
	return marker{id: id, code: code}, true
}

// ExecuteCommand runs command in the shell and waits for it to settle.
// When the session stops the command itself (interrupt or timeout) it
// invokes onAbortRequested before returning.
func (s *Session) ExecuteCommand(ctx context.Context, runID, command string, onAbortRequested func()) (*domain.CommandResult, error) {
	s.mu.Lock()
	p := s.cur
	s.mu.Unlock()
	if p == nil || !p.alive() {
		return nil, domain.NewSubSystemError("terminal", "Session.ExecuteCommand", domain.ErrSessionUnavailable, "shell is not running")
	}

	id := ulid.Make().String()
	ev := CommandEvent{
		RunID:     runID,
		CommandID: id,
		ActionID:  domain.ActionIDFromContext(ctx),
		Command:   command,
	}
	s.out.Reset()
	script := fmt.Sprintf("{\n%s\n} </dev/null\nprintf '\\n%s%s__ %%d\\n' \"$?\"\n", command, markerPrefix, id)
	if _, err := io.WriteString(p.stdin, script); err != nil {
		return nil, domain.NewSubSystemError("terminal", "Session.ExecuteCommand", domain.ErrSessionUnavailable, err.Error())
	}

	started := time.Now()
	s.publish(ctx, domain.EventCommandStarted, ev)
	log := s.logger.With("run_id", runID, "command_id", id)
	log.Debug("command started", "command", command)

	var timeout <-chan time.Time
	if s.cfg.Timeout > 0 {
		t := time.NewTimer(s.cfg.Timeout)
		defer t.Stop()
		timeout = t.C
	}

	settle := func(code int) *domain.CommandResult {
		ev.ExitCode = code
		ev.DurationMS = time.Since(started).Milliseconds()
		ev.Truncated = s.out.Truncated()
		s.publish(ctx, domain.EventCommandSettled, ev)
		log.Debug("command settled", "exit_code", code, "duration_ms", ev.DurationMS)
		return &domain.CommandResult{ExitCode: code, Output: strings.TrimRight(s.out.String(), "\n")}
	}

	for {
		select {
		case m := <-p.markers:
			if m.id != id {
				continue
			}
			return settle(m.code), nil

		case <-p.exited:
			select {
			case m := <-p.markers:
				if m.id == id {
					return settle(m.code), nil
				}
			default:
			}
			if p.killed.Load() {
				ev.Interrupted = true
				res := settle(ExitInterrupted)
				if onAbortRequested != nil {
					onAbortRequested()
				}
				return res, nil
			}
			// The command ended the shell itself, e.g. `exit 3`.
			return settle(p.exitCode), nil

		case <-timeout:
			log.Warn("command timed out", "timeout", s.cfg.Timeout)
			p.kill()
			<-p.exited
			ev.TimedOut = true
			res := settle(ExitTimedOut)
			res.Output = strings.TrimLeft(res.Output+"\n", "\n") + fmt.Sprintf("command timed out after %s", s.cfg.Timeout)
			if onAbortRequested != nil {
				onAbortRequested()
			}
			return res, nil

		case <-ctx.Done():
			p.kill()
			<-p.exited
			ev.Interrupted = true
			settle(ExitInterrupted)
			return nil, ctx.Err()
		}
	}
}

// Interrupt kills the shell and whatever it is running. The next Ready
// starts a fresh shell.
func (s *Session) Interrupt() error {
	s.mu.Lock()
	p := s.cur
	s.mu.Unlock()
	if p == nil || !p.alive() {
		return nil
	}
	s.logger.Debug("interrupting shell", "pid", p.cmd.Process.Pid)
	p.kill()
	return nil
}

// Close stops the shell and waits for it to exit.
func (s *Session) Close() error {
	s.mu.Lock()
	p := s.cur
	s.cur = nil
	s.mu.Unlock()
	if p == nil {
		return nil
	}
	_ = p.stdin.Close()
	select {
	case <-p.exited:
	case <-time.After(2 * time.Second):
		p.kill()
		<-p.exited
	}
	return nil
}

func (s *Session) publish(ctx context.Context, t domain.EventType, ev CommandEvent) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(ctx, domain.NewEvent(t, domain.SessionIDFromContext(ctx), ev))
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		if code := ee.ExitCode(); code >= 0 {
			return code
		}
	}
	return 1
}
