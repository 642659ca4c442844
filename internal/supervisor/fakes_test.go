package supervisor

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/rbright/voxmcp/internal/ipc"
	"github.com/rbright/voxmcp/internal/ports"
)

type mockArbiter struct {
	mock.Mock
}

func (m *mockArbiter) Arbitrate(ctx context.Context, port int) ports.CleanupResult {
	args := m.Called(ctx, port)
	return args.Get(0).(ports.CleanupResult)
}

func freePort() *mockArbiter {
	arbiter := &mockArbiter{}
	arbiter.On("Arbitrate", mock.Anything, 7860).Return(ports.CleanupResult{PortAvailable: true})
	return arbiter
}

type fakeProcess struct {
	pid        int
	ignoreTerm bool

	mu         sync.Mutex
	done       chan struct{}
	exitCode   int
	exited     bool
	terminated int
	killed     int
	onExit     []func()
}

func newFakeProcess(pid int) *fakeProcess {
	return &fakeProcess{pid: pid, done: make(chan struct{})}
}

func (p *fakeProcess) exit(code int) {
	p.mu.Lock()
	if p.exited {
		p.mu.Unlock()
		return
	}
	p.exited = true
	p.exitCode = code
	hooks := p.onExit
	p.mu.Unlock()

	for _, hook := range hooks {
		hook()
	}
	close(p.done)
}

func (p *fakeProcess) Pid() int { return p.pid }

func (p *fakeProcess) Alive() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

func (p *fakeProcess) ExitCode() (int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitCode, p.exited
}

func (p *fakeProcess) Terminate() error {
	p.mu.Lock()
	p.terminated++
	ignore := p.ignoreTerm
	p.mu.Unlock()
	if !ignore {
		p.exit(-15)
	}
	return nil
}

func (p *fakeProcess) Kill() error {
	p.mu.Lock()
	p.killed++
	p.mu.Unlock()
	p.exit(-9)
	return nil
}

func (p *fakeProcess) Wait(timeout time.Duration) bool {
	select {
	case <-p.done:
		return true
	case <-time.After(timeout):
		return false
	}
}

func (p *fakeProcess) counts() (terminated int, killed int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.terminated, p.killed
}

// workerFunc plays the child side of the pipes.
type workerFunc func(proc *fakeProcess, in *ipc.Consumer, out *ipc.Producer)

type fakeSpawner struct {
	worker     workerFunc
	ignoreTerm bool

	mu    sync.Mutex
	spawn []SpawnRequest
	procs []*fakeProcess
}

func (s *fakeSpawner) Spawn(_ context.Context, req SpawnRequest) (Process, error) {
	s.mu.Lock()
	proc := newFakeProcess(4000 + len(s.procs))
	proc.ignoreTerm = s.ignoreTerm
	s.spawn = append(s.spawn, req)
	s.procs = append(s.procs, proc)
	s.mu.Unlock()

	in := ipc.NewConsumer(req.Commands, nil)
	out := ipc.NewProducer(req.Responses)
	proc.onExit = append(proc.onExit, func() {
		_ = in.Close()
		_ = out.Close()
	})

	go s.worker(proc, in, out)
	return proc, nil
}

func (s *fakeSpawner) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.spawn)
}

func (s *fakeSpawner) lastProc() *fakeProcess {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.procs[len(s.procs)-1]
}

func (s *fakeSpawner) lastArgs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.spawn[len(s.spawn)-1].Args
}

// serveWorker answers every request with handler until the process exits.
func serveWorker(handler ipc.HandlerFunc) workerFunc {
	return func(proc *fakeProcess, in *ipc.Consumer, out *ipc.Producer) {
		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			<-proc.done
			cancel()
		}()
		_ = ipc.Serve(ctx, in, out, handler)
	}
}

// idleWorker stays alive and never answers.
func idleWorker(proc *fakeProcess, _ *ipc.Consumer, _ *ipc.Producer) {
	<-proc.done
}

func newTestSupervisor(arbiter Arbiter, spawner Spawner) *Supervisor {
	return New(Config{
		Args:         []string{"voxmcp"},
		PollInterval: 20 * time.Millisecond,
		StopTimeout:  100 * time.Millisecond,
	}, nil, arbiter, spawner)
}
