package domain

import "context"

// AppliedFile is the result of a file-store write.
type AppliedFile struct {
	Path    string `json:"path"`
	Content string `json:"content"`
	Size    int    `json:"size"`
	// Location is backend specific (absolute disk path, memory key).
	Location string `json:"location,omitempty"`
}

// FileStore is the write hook invoked by file actions.
type FileStore interface {
	Write(ctx context.Context, path, content string) (*AppliedFile, error)
	Name() string
}

// CanvasPosition places a page on the design canvas.
type CanvasPosition struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Page is a renderable page derived from an HTML file action.
type Page struct {
	Name      string          `json:"name"`
	Path      string          `json:"path"`
	HTMLBody  string          `json:"html_body"`
	CSSBody   string          `json:"css_body,omitempty"`
	JSBody    string          `json:"js_body,omitempty"`
	PreviewID string          `json:"preview_id"`
	Position  *CanvasPosition `json:"position,omitempty"` // nil lets the canvas place it
	Final     bool            `json:"final"`
}

// PageSink is the canvas collaborator receiving derived pages.
type PageSink interface {
	UpsertPage(ctx context.Context, sessionID string, page Page) error
}

// CommandResult is what a command session reports when a command settles.
type CommandResult struct {
	ExitCode int    `json:"exit_code"`
	Output   string `json:"output"`
}

// CommandSession is an interactive shell session. It has no internal
// locking; callers must not run commands on it concurrently.
type CommandSession interface {
	// Ready blocks until the session can accept commands.
	Ready(ctx context.Context) error
	// ExecuteCommand runs command and waits for it to settle. onAbortRequested
	// is invoked when the session interrupts the command on its own.
	ExecuteCommand(ctx context.Context, runID, command string, onAbortRequested func()) (*CommandResult, error)
	// Interrupt stops the command currently running, if any.
	Interrupt() error
}

// SessionProvider hands out the command session for an engine.
type SessionProvider interface {
	Session(ctx context.Context) (CommandSession, error)
}

// BuildResult is the outcome of a build.
type BuildResult struct {
	Path     string `json:"path"`
	ExitCode int    `json:"exit_code"`
	Output   string `json:"output"`
}

// Builder performs a project build.
type Builder interface {
	Build(ctx context.Context, abort AbortSignal) (*BuildResult, error)
}
