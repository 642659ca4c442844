package supervisor

import (
	"errors"
	"fmt"
)

// ErrNotStarted is returned by SendCommand before the first successful Start.
var ErrNotStarted = errors.New("voice agent process not started")

// PortConflictError reports a foreign process holding the runner port.
type PortConflictError struct {
	Port   int
	PID    string
	Warned []string
}

func (e *PortConflictError) Error() string {
	return fmt.Sprintf(
		"Port %d is occupied by PID %s, which is not a voice agent process. Stop that process or free the port, then start again.",
		e.Port,
		e.PID,
	)
}

// StartupError reports a worker that exited before the health check.
type StartupError struct {
	Diagnostic string
	ExitCode   int
}

func (e *StartupError) Error() string {
	if e.Diagnostic != "" {
		return fmt.Sprintf("Voice agent crashed on startup:\n%s", e.Diagnostic)
	}
	return fmt.Sprintf("Voice agent process exited immediately (exit code: %d)", e.ExitCode)
}

// WorkerStoppedError reports a worker that died while a command was waiting.
type WorkerStoppedError struct {
	Diagnostic string
	ExitCode   int
}

func (e *WorkerStoppedError) Error() string {
	if e.Diagnostic != "" {
		return fmt.Sprintf("Voice agent process has stopped: %s", e.Diagnostic)
	}
	return fmt.Sprintf("Voice agent process has stopped (exit code: %d)", e.ExitCode)
}
