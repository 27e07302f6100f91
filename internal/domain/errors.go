package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Category sentinels. Pair with NewSubSystemError for subsystem-specific codes.
var (
	ErrNotFound         = fmt.Errorf("not found")
	ErrDuplicate        = fmt.Errorf("duplicate")
	ErrTimeout          = fmt.Errorf("operation timed out")
	ErrPermissionDenied = fmt.Errorf("permission denied")
	ErrDisabled         = fmt.Errorf("disabled")
	ErrInvalidInput     = fmt.Errorf("invalid input")
	ErrUnavailable      = fmt.Errorf("unavailable")
)

// Sentinel errors for the engine.
var (
	ErrUnknownActionKind  = fmt.Errorf("unknown action kind")
	ErrPayloadSealed      = fmt.Errorf("payload is sealed")
	ErrCommandFailed      = fmt.Errorf("command failed")
	ErrSessionUnavailable = fmt.Errorf("command session unavailable")
	ErrBuildFailed        = fmt.Errorf("build failed")
	ErrPathOutsideSandbox = fmt.Errorf("path is outside sandbox boundary")
	ErrConfigLoad         = fmt.Errorf("failed to load configuration")
	ErrHistoryStore       = fmt.Errorf("history store failed")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op        string // operation name (e.g., "Runner.Register")
	Err       error  // underlying sentinel or wrapped error
	Detail    string // human-readable detail
	SubSystem string // subsystem identifier (e.g., "action", "canvas"); used for ErrorCode dispatch
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// NewSubSystemError creates a DomainError tagged with a subsystem for ErrorCode dispatch.
func NewSubSystemError(subsystem, op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail, SubSystem: subsystem}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// CommandError is a classified shell failure. Title and Details are meant
// for direct display and are kept apart from the generic message.
type CommandError struct {
	Command  string
	ExitCode int
	Output   string
	Title    string
	Details  string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s: %s (exit code %d)", e.Title, strings.TrimSpace(e.Command), e.ExitCode)
}

func (e *CommandError) Unwrap() error { return ErrCommandFailed }

// ErrorCode is a machine-parseable error category for monitoring and alerting.
type ErrorCode string

const (
	CodeUnknown            ErrorCode = "UNKNOWN"
	CodeUnknownActionKind  ErrorCode = "UNKNOWN_ACTION_KIND"
	CodePayloadSealed      ErrorCode = "PAYLOAD_SEALED"
	CodeCommandFailed      ErrorCode = "COMMAND_FAILED"
	CodeSessionUnavailable ErrorCode = "SESSION_UNAVAILABLE"
	CodeBuildFailed        ErrorCode = "BUILD_FAILED"
	CodePathOutsideSandbox ErrorCode = "PATH_OUTSIDE_SANDBOX"
	CodeConfigLoad         ErrorCode = "CONFIG_LOAD"
	CodeHistoryStore       ErrorCode = "HISTORY_STORE"

	// Subsystem-specific codes used by subSystemCodeMap.
	CodeActionNotFound ErrorCode = "ACTION_NOT_FOUND"
	CodePageNotFound   ErrorCode = "PAGE_NOT_FOUND"
	CodeActionInvalid  ErrorCode = "ACTION_INVALID"
	CodePageInvalid    ErrorCode = "PAGE_INVALID"

	// Category error codes, used when no subsystem-specific code matches.
	CodeNotFound         ErrorCode = "NOT_FOUND"
	CodeDuplicate        ErrorCode = "DUPLICATE"
	CodeTimeout          ErrorCode = "TIMEOUT"
	CodePermissionDenied ErrorCode = "PERMISSION_DENIED"
	CodeDisabled         ErrorCode = "DISABLED"
	CodeInvalidInput     ErrorCode = "INVALID_INPUT"
	CodeUnavailable      ErrorCode = "UNAVAILABLE"
)

var errorCodeMap = map[error]ErrorCode{
	ErrNotFound:         CodeNotFound,
	ErrDuplicate:        CodeDuplicate,
	ErrTimeout:          CodeTimeout,
	ErrPermissionDenied: CodePermissionDenied,
	ErrDisabled:         CodeDisabled,
	ErrInvalidInput:     CodeInvalidInput,
	ErrUnavailable:      CodeUnavailable,

	ErrUnknownActionKind:  CodeUnknownActionKind,
	ErrPayloadSealed:      CodePayloadSealed,
	ErrCommandFailed:      CodeCommandFailed,
	ErrSessionUnavailable: CodeSessionUnavailable,
	ErrBuildFailed:        CodeBuildFailed,
	ErrPathOutsideSandbox: CodePathOutsideSandbox,
	ErrConfigLoad:         CodeConfigLoad,
	ErrHistoryStore:       CodeHistoryStore,
}

var subSystemCodeMap = map[error]map[string]ErrorCode{
	ErrNotFound: {
		"action": CodeActionNotFound,
		"canvas": CodePageNotFound,
	},
	ErrInvalidInput: {
		"action": CodeActionInvalid,
		"canvas": CodePageInvalid,
	},
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// It unwraps DomainError and uses errors.Is to match sentinel errors.
// Returns CodeUnknown if no matching sentinel is found.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}

	if code, ok := errorCodeMap[err]; ok {
		return code
	}

	var de *DomainError
	if errors.As(err, &de) {
		if code := de.Code(); code != CodeUnknown {
			return code
		}
	}

	for sentinel, code := range errorCodeMap {
		if errors.Is(err, sentinel) {
			return code
		}
	}

	return CodeUnknown
}

// Code returns the ErrorCode for this DomainError's underlying sentinel.
// If SubSystem is set, checks the subSystemCodeMap for a specific code.
func (e *DomainError) Code() ErrorCode {
	if e.SubSystem != "" {
		if subsysMap, ok := subSystemCodeMap[e.Err]; ok {
			if code, ok := subsysMap[e.SubSystem]; ok {
				return code
			}
		}
	}
	if code, ok := errorCodeMap[e.Err]; ok {
		return code
	}
	return CodeUnknown
}
