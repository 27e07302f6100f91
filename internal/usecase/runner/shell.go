package runner

import (
	"context"
	"strings"

	"canvasmith/internal/domain"
)

// CommandHook inspects a command before it runs and may rewrite or reject it.
type CommandHook func(ctx context.Context, command string) (string, error)

func passThrough(_ context.Context, command string) (string, error) { return command, nil }

// ShellOption configures a ShellExecutor.
type ShellOption func(*ShellExecutor)

// WithCommandHook installs a pre-execution hook. The default passes commands
// through unchanged.
func WithCommandHook(h CommandHook) ShellOption {
	return func(e *ShellExecutor) {
		if h != nil {
			e.hook = h
		}
	}
}

// ShellExecutor runs shell and start actions on the engine's command session.
type ShellExecutor struct {
	sessions domain.SessionProvider
	hook     CommandHook
}

// NewShellExecutor creates an executor drawing sessions from sessions.
func NewShellExecutor(sessions domain.SessionProvider, opts ...ShellOption) *ShellExecutor {
	e := &ShellExecutor{sessions: sessions, hook: passThrough}
	for _, o := range opts {
		o(e)
	}
	return e
}

func (e *ShellExecutor) Execute(ctx context.Context, call Call) (Outcome, error) {
	command := call.Content
	if strings.TrimSpace(command) == "" {
		command = call.Action.Target
	}
	if strings.TrimSpace(command) == "" {
		return Outcome{}, domain.NewSubSystemError("action", "ShellExecutor.Execute", domain.ErrInvalidInput, "empty command")
	}

	sess, err := e.sessions.Session(ctx)
	if err != nil {
		return Outcome{}, domain.NewDomainError("ShellExecutor.Execute", domain.ErrSessionUnavailable, err.Error())
	}
	if err := sess.Ready(ctx); err != nil {
		return Outcome{}, domain.NewDomainError("ShellExecutor.Execute", domain.ErrSessionUnavailable, err.Error())
	}

	command, err = e.hook(ctx, command)
	if err != nil {
		return Outcome{}, domain.WrapOp("command hook", err)
	}
	if call.Abort.Aborted() {
		return Outcome{}, nil
	}

	settled := make(chan struct{})
	defer close(settled)
	go func() {
		select {
		case <-call.Abort.Done():
			_ = sess.Interrupt()
		case <-settled:
		}
	}()

	res, err := sess.ExecuteCommand(ctx, call.RunID, command, call.RequestAbort)
	if call.Abort.Aborted() {
		// The engine records the abort; the result no longer matters.
		return Outcome{}, nil
	}
	if err != nil {
		return Outcome{}, domain.WrapOp("execute command", err)
	}
	if res.ExitCode != 0 {
		diag := ClassifyCommandFailure(command, res.ExitCode, res.Output)
		return Outcome{Output: res.Output}, &domain.CommandError{
			Command:  command,
			ExitCode: res.ExitCode,
			Output:   res.Output,
			Title:    diag.Title,
			Details:  diag.Details,
		}
	}
	return Outcome{Output: res.Output}, nil
}
