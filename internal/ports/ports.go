// Package ports frees the worker's listener port before spawn: it kills
// listeners left behind by earlier workers, reports foreign holders, and
// flags duplicate supervisor processes.
package ports

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const defaultCommandTimeout = 5 * time.Second

// Runner executes one inspection command and returns its stdout.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRunner runs commands from PATH.
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, name, args...).Output()
	if err != nil {
		return out, fmt.Errorf("%s %v failed: %w", name, args, err)
	}
	return out, nil
}

// CleanupResult reports one arbitration pass. Fresh per call.
type CleanupResult struct {
	Killed        []string
	Warned        []string
	PortAvailable bool
	StalePIDs     []string
}

// Options configures an Arbiter. Zero values select production defaults.
type Options struct {
	Runner Runner
	// OwnedMarkers are lowercase substrings that identify our own worker in a
	// process command line. Defaults to the executable base name.
	OwnedMarkers []string
	// SupervisorMarker identifies supervisor processes in `ps aux` output.
	SupervisorMarker string
	// WorkerMarker excludes worker processes from the stale supervisor scan.
	WorkerMarker string
	SelfPID      int
	Timeout      time.Duration
	Logger       *slog.Logger
}

// Arbiter inspects and clears the worker listener port.
type Arbiter struct {
	run              Runner
	ownedMarkers     []string
	supervisorMarker string
	workerMarker     string
	selfPID          string
	timeout          time.Duration
	logger           *slog.Logger
}

// New builds an Arbiter with defaults applied.
func New(opts Options) *Arbiter {
	if opts.Runner == nil {
		opts.Runner = ExecRunner
	}
	name := executableName()
	if len(opts.OwnedMarkers) == 0 {
		opts.OwnedMarkers = []string{name}
	}
	if strings.TrimSpace(opts.SupervisorMarker) == "" {
		opts.SupervisorMarker = name
	}
	if strings.TrimSpace(opts.WorkerMarker) == "" {
		opts.WorkerMarker = " worker"
	}
	if opts.SelfPID <= 0 {
		opts.SelfPID = os.Getpid()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultCommandTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	markers := make([]string, 0, len(opts.OwnedMarkers))
	for _, marker := range opts.OwnedMarkers {
		if marker = strings.ToLower(strings.TrimSpace(marker)); marker != "" {
			markers = append(markers, marker)
		}
	}

	return &Arbiter{
		run:              opts.Runner,
		ownedMarkers:     markers,
		supervisorMarker: opts.SupervisorMarker,
		workerMarker:     opts.WorkerMarker,
		selfPID:          strconv.Itoa(opts.SelfPID),
		timeout:          opts.Timeout,
		logger:           opts.Logger,
	}
}

// Arbitrate kills owned listeners on port, warns about foreign ones, and scans
// for stale supervisors. Inspection failures degrade to "nothing found".
func (a *Arbiter) Arbitrate(ctx context.Context, port int) CleanupResult {
	result := CleanupResult{}

	for _, pid := range a.listeners(ctx, port) {
		commandLine, err := a.output(ctx, "ps", "-p", pid, "-o", "command=")
		if err != nil || strings.TrimSpace(commandLine) == "" {
			a.logger.Warn("port holder could not be inspected", "port", port, "pid", pid)
			result.Warned = append(result.Warned, pid)
			continue
		}

		if !a.owned(commandLine) {
			a.logger.Warn("port occupied by foreign process",
				"port", port,
				"pid", pid,
				"command", strings.TrimSpace(commandLine),
			)
			result.Warned = append(result.Warned, pid)
			continue
		}

		a.logger.Warn("killing leftover worker on port", "port", port, "pid", pid)
		if _, err := a.output(ctx, "kill", "-9", pid); err != nil {
			a.logger.Warn("kill leftover worker failed", "pid", pid, "error", err.Error())
			result.Warned = append(result.Warned, pid)
			continue
		}
		result.Killed = append(result.Killed, pid)
	}

	result.PortAvailable = len(result.Warned) == 0
	result.StalePIDs = a.staleSupervisors(ctx, result.Killed)
	return result
}

// Diagnose describes who holds port, for appending to readiness failures.
func (a *Arbiter) Diagnose(ctx context.Context, port int) string {
	out, err := a.output(ctx, "lsof", "-i", fmt.Sprintf(":%d", port), "-sTCP:LISTEN")
	lines := nonEmptyLines(out)
	if err != nil || len(lines) < 2 {
		return fmt.Sprintf(" Port %d is free; the child process may have crashed. Check logs.", port)
	}

	fields := strings.Fields(lines[1])
	if len(fields) < 2 {
		return fmt.Sprintf(" Port %d is free; the child process may have crashed. Check logs.", port)
	}
	return fmt.Sprintf(" Port %d is in use by PID %s (%s).", port, fields[1], fields[0])
}

// StaleSupervisors lists other supervisor processes without touching them.
func (a *Arbiter) StaleSupervisors(ctx context.Context) []string {
	return a.staleSupervisors(ctx, nil)
}

func (a *Arbiter) listeners(ctx context.Context, port int) []string {
	// lsof exits 1 with empty output when nothing listens.
	out, _ := a.output(ctx, "lsof", "-ti", fmt.Sprintf(":%d", port))
	return uniqueLines(out)
}

func (a *Arbiter) staleSupervisors(ctx context.Context, killed []string) []string {
	out, err := a.output(ctx, "ps", "aux")
	if err != nil {
		a.logger.Debug("stale supervisor scan failed", "error", err.Error())
		return nil
	}

	skip := map[string]struct{}{a.selfPID: {}}
	for _, pid := range killed {
		skip[pid] = struct{}{}
	}

	var stale []string
	for _, line := range nonEmptyLines(out) {
		if !strings.Contains(line, a.supervisorMarker) || strings.Contains(line, a.workerMarker) {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		pid := fields[1]
		if _, ok := skip[pid]; ok {
			continue
		}
		skip[pid] = struct{}{}
		stale = append(stale, pid)
	}
	return stale
}

func (a *Arbiter) owned(commandLine string) bool {
	commandLine = strings.ToLower(commandLine)
	for _, marker := range a.ownedMarkers {
		if strings.Contains(commandLine, marker) {
			return true
		}
	}
	return false
}

func (a *Arbiter) output(ctx context.Context, name string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	out, err := a.run(ctx, name, args...)
	return string(out), err
}

func uniqueLines(raw string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, line := range nonEmptyLines(raw) {
		if _, ok := seen[line]; ok {
			continue
		}
		seen[line] = struct{}{}
		out = append(out, line)
	}
	return out
}

func nonEmptyLines(raw string) []string {
	var out []string
	for _, line := range strings.Split(raw, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

func executableName() string {
	path, err := os.Executable()
	if err != nil {
		return "voxmcp"
	}
	return strings.ToLower(filepath.Base(path))
}
