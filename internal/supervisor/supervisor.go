// Package supervisor owns the worker process lifecycle and the blocking
// request/response channel to it.
package supervisor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/rbright/voxmcp/internal/fsm"
	"github.com/rbright/voxmcp/internal/ipc"
	"github.com/rbright/voxmcp/internal/ports"
	"github.com/rbright/voxmcp/internal/tracing"
)

const (
	DefaultPort         = 7860
	DefaultHealthDelay  = time.Second
	DefaultPollInterval = 500 * time.Millisecond
	DefaultStopTimeout  = time.Second

	// drainGrace bounds how long a dead worker's final frames may take to
	// reach the response buffer.
	drainGrace = 250 * time.Millisecond
)

// Config tunes one Supervisor. Zero values select defaults.
type Config struct {
	Port         int
	Transport    string
	Args         []string
	HealthDelay  time.Duration
	PollInterval time.Duration
	StopTimeout  time.Duration
}

func (c Config) withDefaults() Config {
	if c.Port <= 0 {
		c.Port = DefaultPort
	}
	if c.Args == nil {
		c.Args = append([]string(nil), os.Args...)
	}
	if c.HealthDelay <= 0 {
		c.HealthDelay = DefaultHealthDelay
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = DefaultStopTimeout
	}
	return c
}

// Arbiter clears the runner port before spawn.
type Arbiter interface {
	Arbitrate(ctx context.Context, port int) ports.CleanupResult
}

// Supervisor starts, checks, commands, and stops one worker at a time.
type Supervisor struct {
	cfg     Config
	logger  *slog.Logger
	arbiter Arbiter
	spawner Spawner

	// lifecycle serializes Start and Stop.
	lifecycle sync.Mutex
	// inflight admits one command at a time; responses are correlated by id.
	inflight chan struct{}

	mu        sync.Mutex
	state     fsm.State
	proc      Process
	commands  *ipc.Producer
	responses *ipc.Consumer
}

// New builds a stopped Supervisor. Nil collaborators select production defaults.
func New(cfg Config, logger *slog.Logger, arbiter Arbiter, spawner Spawner) *Supervisor {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if arbiter == nil {
		arbiter = ports.New(ports.Options{Logger: logger})
	}
	if spawner == nil {
		spawner = ExecSpawner{}
	}
	return &Supervisor{
		cfg:      cfg.withDefaults(),
		logger:   logger,
		arbiter:  arbiter,
		spawner:  spawner,
		inflight: make(chan struct{}, 1),
		state:    fsm.StateStopped,
	}
}

// Start replaces any running worker with a freshly spawned one.
func (s *Supervisor) Start(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, tracing.SpanWorkerStart,
		trace.WithAttributes(attribute.String(tracing.AttrTransport, s.cfg.Transport)),
	)
	defer span.End()

	if err := s.start(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	span.SetAttributes(attribute.Int(tracing.AttrWorkerPID, s.Pid()))
	return nil
}

func (s *Supervisor) start(ctx context.Context) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.stopLocked()
	if err := s.transition(fsm.EventStart); err != nil {
		return err
	}

	cleanup := s.arbiter.Arbitrate(ctx, s.cfg.Port)
	if len(cleanup.Killed) > 0 {
		s.logger.Info("killed leftover workers", "port", s.cfg.Port, "pids", cleanup.Killed)
	}
	if !cleanup.PortAvailable {
		_ = s.transition(fsm.EventFail)
		return &PortConflictError{Port: s.cfg.Port, PID: cleanup.Warned[0], Warned: cleanup.Warned}
	}
	if len(cleanup.StalePIDs) > 0 {
		s.logger.Warn("other supervisor processes are running; they may compete for the port",
			"pids", cleanup.StalePIDs,
		)
	}

	cmdR, cmdW, err := os.Pipe()
	if err != nil {
		_ = s.transition(fsm.EventFail)
		return fmt.Errorf("create command pipe: %w", err)
	}
	respR, respW, err := os.Pipe()
	if err != nil {
		_ = cmdR.Close()
		_ = cmdW.Close()
		_ = s.transition(fsm.EventFail)
		return fmt.Errorf("create response pipe: %w", err)
	}

	args := ForwardedArgs(s.cfg.Args, s.cfg.Transport)
	proc, err := s.spawner.Spawn(ctx, SpawnRequest{Args: args, Commands: cmdR, Responses: respW})
	if err != nil {
		_ = cmdW.Close()
		_ = respR.Close()
		_ = s.transition(fsm.EventFail)
		return fmt.Errorf("spawn voice agent: %w", err)
	}

	s.mu.Lock()
	s.proc = proc
	s.commands = ipc.NewProducer(cmdW)
	s.responses = ipc.NewConsumer(respR, s.logger)
	s.mu.Unlock()

	if err := s.transition(fsm.EventSpawned); err != nil {
		return err
	}
	s.logger.Info("voice agent started", "pid", proc.Pid(), "args", args)
	return nil
}

// Stop terminates the worker (SIGTERM, then SIGKILL) and discards its queues.
// Safe to call repeatedly and before Start.
func (s *Supervisor) Stop() {
	_, span := tracer.Start(context.Background(), tracing.SpanWorkerStop)
	defer span.End()

	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	s.stopLocked()
}

func (s *Supervisor) stopLocked() {
	s.mu.Lock()
	proc, commands, responses := s.proc, s.commands, s.responses
	s.proc, s.commands, s.responses = nil, nil, nil
	s.state, _ = fsm.Transition(s.state, fsm.EventStop)
	s.mu.Unlock()

	if proc != nil && proc.Alive() {
		pid := proc.Pid()
		s.logger.Info("stopping voice agent", "pid", pid)
		if err := proc.Terminate(); err != nil {
			s.logger.Warn("terminate voice agent failed", "pid", pid, "error", err.Error())
		}
		if !proc.Wait(s.cfg.StopTimeout) {
			s.logger.Warn("voice agent ignored SIGTERM; killing", "pid", pid)
			if err := proc.Kill(); err != nil {
				s.logger.Warn("kill voice agent failed", "pid", pid, "error", err.Error())
			}
			proc.Wait(s.cfg.StopTimeout)
		}
	}

	if commands != nil {
		_ = commands.Close()
	}
	if responses != nil {
		_ = responses.Close()
	}
}

// CheckHealth waits delay, then reports whether the worker survived startup.
func (s *Supervisor) CheckHealth(ctx context.Context, delay time.Duration) error {
	if delay < 0 {
		delay = s.cfg.HealthDelay
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return ctx.Err()
	}

	proc, _, responses := s.snapshot()
	if proc == nil {
		return ErrNotStarted
	}
	if proc.Alive() {
		return nil
	}

	diag := s.drainStartupError(responses)
	code, _ := proc.ExitCode()
	return &StartupError{Diagnostic: diag, ExitCode: code}
}

// State reports the lifecycle state. A crashed worker still reads as running
// until a command or health check observes the exit.
func (s *Supervisor) State() fsm.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Pid returns the worker pid, or 0 when none is attached.
func (s *Supervisor) Pid() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.proc == nil {
		return 0
	}
	return s.proc.Pid()
}

// Port returns the runner port the worker listens on.
func (s *Supervisor) Port() int {
	return s.cfg.Port
}

func (s *Supervisor) snapshot() (Process, *ipc.Producer, *ipc.Consumer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.proc, s.commands, s.responses
}

func (s *Supervisor) transition(event fsm.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, err := fsm.Transition(s.state, event)
	if err != nil {
		return err
	}
	s.state = next
	return nil
}

// drainStartupError looks through the responses a dead worker left behind for
// its crash diagnostic. Tagged replies to abandoned requests are skipped; the
// first untagged frame decides.
func (s *Supervisor) drainStartupError(responses *ipc.Consumer) string {
	if responses == nil {
		return ""
	}

	timer := time.NewTimer(drainGrace)
	defer timer.Stop()
	select {
	case <-responses.Done():
	case <-timer.C:
	}

	for {
		env, ok := responses.GetNowait()
		if !ok {
			return ""
		}
		if diag, isSentinel := env.Body.StartupError(); isSentinel {
			return diag
		}
		s.logger.Debug("discarding response from dead worker", "id", env.ID, "response", env.Body.Describe())
		if env.ID == "" {
			return ""
		}
	}
}
