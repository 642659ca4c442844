package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"
	"time"
)

// Process is a handle on a spawned worker.
type Process interface {
	Pid() int
	Alive() bool
	// ExitCode is valid only once the process has terminated. Signal deaths
	// report the negated signal number.
	ExitCode() (int, bool)
	Terminate() error
	Kill() error
	// Wait blocks until exit or timeout and reports whether the process exited.
	Wait(timeout time.Duration) bool
}

// SpawnRequest carries the worker's inherited pipe ends and forwarded args.
// The Spawner owns Commands and Responses and must close them.
type SpawnRequest struct {
	Args      []string
	Commands  *os.File
	Responses *os.File
}

// Spawner starts a worker process.
type Spawner interface {
	Spawn(ctx context.Context, req SpawnRequest) (Process, error)
}

// Worker descriptors as seen by the child: ExtraFiles start at fd 3.
const (
	CommandsFD  = 3
	ResponsesFD = 4
)

// ExecSpawner re-executes the current binary in worker mode.
type ExecSpawner struct {
	// Executable defaults to os.Executable().
	Executable string
	// Prefix precedes the forwarded args; defaults to "worker --".
	Prefix []string
	// Env is appended to the inherited environment.
	Env []string
	// Output receives worker stdout and stderr; defaults to os.Stderr.
	Output io.Writer
}

func (s ExecSpawner) Spawn(_ context.Context, req SpawnRequest) (Process, error) {
	defer func() {
		_ = req.Commands.Close()
		_ = req.Responses.Close()
	}()

	exe := s.Executable
	if exe == "" {
		resolved, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("resolve executable: %w", err)
		}
		exe = resolved
	}

	prefix := s.Prefix
	if prefix == nil {
		prefix = []string{"worker", "--"}
	}
	output := s.Output
	if output == nil {
		output = os.Stderr
	}

	args := append(append([]string(nil), prefix...), req.Args...)
	cmd := exec.Command(exe, args...)
	cmd.Stdin = nil
	cmd.Stdout = output
	cmd.Stderr = output
	cmd.Env = append(os.Environ(), s.Env...)
	cmd.ExtraFiles = []*os.File{req.Commands, req.Responses}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start worker %s: %w", exe, err)
	}

	proc := &execProcess{cmd: cmd, done: make(chan struct{})}
	go proc.reap()
	return proc, nil
}

type execProcess struct {
	cmd      *exec.Cmd
	done     chan struct{}
	exitCode int
}

func (p *execProcess) reap() {
	defer close(p.done)
	err := p.cmd.Wait()
	p.exitCode = exitCodeOf(p.cmd.ProcessState, err)
}

func (p *execProcess) Pid() int {
	return p.cmd.Process.Pid
}

func (p *execProcess) Alive() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

func (p *execProcess) ExitCode() (int, bool) {
	select {
	case <-p.done:
		return p.exitCode, true
	default:
		return 0, false
	}
}

func (p *execProcess) Terminate() error {
	return p.signal(syscall.SIGTERM)
}

func (p *execProcess) Kill() error {
	return p.signal(syscall.SIGKILL)
}

func (p *execProcess) Wait(timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-p.done:
		return true
	case <-timer.C:
		return false
	}
}

func (p *execProcess) signal(sig os.Signal) error {
	if !p.Alive() {
		return nil
	}
	if err := p.cmd.Process.Signal(sig); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("signal worker %d: %w", p.Pid(), err)
	}
	return nil
}

func exitCodeOf(state *os.ProcessState, err error) int {
	if state == nil {
		if err != nil {
			return -1
		}
		return 0
	}
	if status, ok := state.Sys().(syscall.WaitStatus); ok && status.Signaled() {
		return -int(status.Signal())
	}
	return state.ExitCode()
}
