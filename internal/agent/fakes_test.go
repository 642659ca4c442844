package agent

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rbright/voxmcp/internal/ipc"
	"github.com/rbright/voxmcp/internal/screen"
	"github.com/rbright/voxmcp/internal/speech"
	"github.com/rbright/voxmcp/internal/worker"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeTransport struct {
	mu         sync.Mutex
	utterances chan speech.Audio
	listenErr  error
	played     []speech.Audio
	playErr    error
	closed     bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{utterances: make(chan speech.Audio, 4)}
}

func (f *fakeTransport) Name() string { return "fake" }

func (f *fakeTransport) Listen(ctx context.Context) (speech.Audio, error) {
	f.mu.Lock()
	err := f.listenErr
	f.mu.Unlock()
	if err != nil {
		return speech.Audio{}, err
	}
	select {
	case u := <-f.utterances:
		return u, nil
	case <-ctx.Done():
		return speech.Audio{}, ctx.Err()
	}
}

func (f *fakeTransport) Play(_ context.Context, clip speech.Audio) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.playErr != nil {
		return f.playErr
	}
	f.played = append(f.played, clip)
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

type fakeSTT struct {
	texts []string
}

func (f *fakeSTT) Transcribe(context.Context, speech.Audio) (string, error) {
	if len(f.texts) == 0 {
		return "", nil
	}
	text := f.texts[0]
	f.texts = f.texts[1:]
	return text, nil
}

type fakeTTS struct {
	mu    sync.Mutex
	texts []string
}

func (f *fakeTTS) Synthesize(_ context.Context, text string) (speech.Audio, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	return speech.Audio{PCM: []int16{1, 2, 3}, SampleRate: 24000}, nil
}

type fakeScreen struct {
	windows  []screen.Window
	selected *int64
	path     string
	err      error
}

func (f *fakeScreen) ListWindows(context.Context) ([]screen.Window, error) {
	return f.windows, f.err
}

func (f *fakeScreen) Select(_ context.Context, id *int64) (*int64, error) {
	f.selected = id
	for _, w := range f.windows {
		if id != nil && w.WindowID == *id {
			return id, nil
		}
	}
	return nil, f.err
}

func (f *fakeScreen) Capture(context.Context) (string, error) {
	if f.path == "" && f.err == nil {
		return "", screen.ErrNoCapture
	}
	return f.path, f.err
}

// pipes connects a worker.Channel to supervisor-side queue ends.
type pipes struct {
	channel   *worker.Channel
	commands  *ipc.Producer
	responses *ipc.Consumer
}

func newPipes(t *testing.T) pipes {
	t.Helper()

	cmdR, cmdW, err := os.Pipe()
	require.NoError(t, err)
	respR, respW, err := os.Pipe()
	require.NoError(t, err)

	p := pipes{
		channel:   worker.NewChannel(cmdR, respW, discardLogger()),
		commands:  ipc.NewProducer(cmdW),
		responses: ipc.NewConsumer(respR, discardLogger()),
	}
	t.Cleanup(func() {
		_ = p.commands.Close()
		_ = p.responses.Close()
		_ = p.channel.Close()
	})
	return p
}
