// Package worker is the child-side entrypoint: it installs the inherited
// pipes, runs the media run-loop, and reports crashes back to the supervisor.
package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	"github.com/rbright/voxmcp/internal/ipc"
	"github.com/rbright/voxmcp/internal/supervisor"
)

// ErrChannelNotInstalled is returned by a zero Channel.
var ErrChannelNotInstalled = errors.New("worker channel not installed")

const crashReportTimeout = time.Second

// Channel is the worker's end of the command and response queues.
type Channel struct {
	requests  *ipc.Consumer
	responses *ipc.Producer
}

// NewChannel wraps the inherited pipe ends.
func NewChannel(requests io.ReadCloser, responses io.WriteCloser, logger *slog.Logger) *Channel {
	return &Channel{
		requests:  ipc.NewConsumer(requests, logger),
		responses: ipc.NewProducer(responses),
	}
}

// ReadRequest blocks until the supervisor sends a command.
func (c *Channel) ReadRequest(ctx context.Context) (ipc.Envelope, error) {
	if c == nil || c.requests == nil {
		return ipc.Envelope{}, ErrChannelNotInstalled
	}
	return c.requests.Get(ctx, 0)
}

// SendResponse enqueues one response.
func (c *Channel) SendResponse(ctx context.Context, env ipc.Envelope) error {
	if c == nil || c.responses == nil {
		return ErrChannelNotInstalled
	}
	return c.responses.Put(ctx, env)
}

// Serve answers requests one at a time until ctx ends or the supervisor
// closes the command pipe.
func (c *Channel) Serve(ctx context.Context, handler ipc.Handler) error {
	if c == nil || c.requests == nil || c.responses == nil {
		return ErrChannelNotInstalled
	}
	return ipc.Serve(ctx, c.requests, c.responses, handler)
}

// ReportStartupError sends the crash sentinel with a short deadline. Failures
// are swallowed: the supervisor falls back to the exit code.
func (c *Channel) ReportStartupError(diag string) {
	ctx, cancel := context.WithTimeout(context.Background(), crashReportTimeout)
	defer cancel()
	_ = c.SendResponse(ctx, ipc.Envelope{Body: ipc.Message{ipc.KeyStartupError: diag}})
}

// Close releases both pipe ends.
func (c *Channel) Close() error {
	if c == nil {
		return nil
	}
	var errs []error
	if c.requests != nil {
		errs = append(errs, c.requests.Close())
	}
	if c.responses != nil {
		errs = append(errs, c.responses.Close())
	}
	return errors.Join(errs...)
}

// RunLoop is the media pipeline. It returns when the worker should exit.
type RunLoop func(ctx context.Context, ch *Channel) error

// Options wires one worker process.
type Options struct {
	// Forwarded becomes os.Args for the run-loop's own flag parsing.
	Forwarded []string
	Logger    *slog.Logger
	// Requests and Responses default to the inherited descriptors 3 and 4.
	Requests  io.ReadCloser
	Responses io.WriteCloser
	// SkipChdir keeps the working directory (tests).
	SkipChdir bool
}

// Run executes loop inside the worker process and returns the exit code.
func Run(ctx context.Context, opts Options, loop RunLoop) int {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	requests, responses := opts.Requests, opts.Responses
	if requests == nil {
		f, err := inherited(supervisor.CommandsFD, "voxmcp-commands")
		if err != nil {
			logger.Error("worker command pipe missing; start the worker through the supervisor", "error", err.Error())
			return 1
		}
		requests = f
	}
	if responses == nil {
		f, err := inherited(supervisor.ResponsesFD, "voxmcp-responses")
		if err != nil {
			logger.Error("worker response pipe missing; start the worker through the supervisor", "error", err.Error())
			return 1
		}
		responses = f
	}

	ch := NewChannel(requests, responses, logger)
	defer func() { _ = ch.Close() }()

	if opts.Forwarded != nil {
		os.Args = append([]string(nil), opts.Forwarded...)
	}
	if !opts.SkipChdir {
		if err := chdirToExecutable(); err != nil {
			logger.Warn("change to executable directory failed", "error", err.Error())
		}
	}

	logger.Info("worker started", "pid", os.Getpid(), "args", os.Args)
	if diag := runGuarded(ctx, ch, loop); diag != "" {
		logger.Error("worker crashed", "error", diag)
		ch.ReportStartupError(diag)
		return 1
	}
	logger.Info("worker finished")
	return 0
}

// runGuarded runs loop and renders any escaping error or panic as
// "<type>: <message>\n<stack>".
func runGuarded(ctx context.Context, ch *Channel, loop RunLoop) (diag string) {
	defer func() {
		if recovered := recover(); recovered != nil {
			diag = fmt.Sprintf("%s: %v\n%s", panicType(recovered), recovered, debug.Stack())
		}
	}()

	if err := loop(ctx, ch); err != nil {
		return fmt.Sprintf("%T: %v\n%s", err, err, debug.Stack())
	}
	return ""
}

func panicType(recovered any) string {
	if err, ok := recovered.(error); ok {
		return fmt.Sprintf("%T", err)
	}
	return "panic"
}

func inherited(fd uintptr, name string) (*os.File, error) {
	f := os.NewFile(fd, name)
	if f == nil {
		return nil, fmt.Errorf("descriptor %d is invalid", fd)
	}
	if _, err := f.Stat(); err != nil {
		return nil, fmt.Errorf("descriptor %d not inherited: %w", fd, err)
	}
	return f, nil
}

func chdirToExecutable() error {
	exe, err := os.Executable()
	if err != nil {
		return err
	}
	return os.Chdir(filepath.Dir(exe))
}
