package worker

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rbright/voxmcp/internal/ipc"
)

func TestZeroChannelReportsNotInstalled(t *testing.T) {
	var ch Channel

	_, err := ch.ReadRequest(context.Background())
	require.ErrorIs(t, err, ErrChannelNotInstalled)

	err = ch.SendResponse(context.Background(), ipc.Envelope{Body: ipc.Message{"ok": true}})
	require.ErrorIs(t, err, ErrChannelNotInstalled)

	require.ErrorIs(t, ch.Serve(context.Background(), nil), ErrChannelNotInstalled)
	require.NoError(t, ch.Close())
}

func TestRunForwardsArgsAndServesRequests(t *testing.T) {
	h := newHarness(t)
	restoreArgs(t)

	exit := make(chan int, 1)
	var seenArgs []string
	go func() {
		exit <- Run(context.Background(), h.options([]string{"voxmcp", "--transport", "local"}), func(ctx context.Context, ch *Channel) error {
			seenArgs = append([]string(nil), os.Args...)
			req, err := ch.ReadRequest(ctx)
			if err != nil {
				return err
			}
			return ch.SendResponse(ctx, ipc.Envelope{ID: req.ID, Body: ipc.Message{"text": "hello"}})
		})
	}()

	require.NoError(t, h.commands.Put(context.Background(), ipc.Envelope{ID: "r1", Body: ipc.Message{"cmd": "listen"}}))
	env, err := h.responses.Get(context.Background(), time.Second)
	require.NoError(t, err)
	require.Equal(t, "r1", env.ID)
	require.Equal(t, "hello", env.Body.String("text"))

	require.Equal(t, 0, <-exit)
	require.Equal(t, []string{"voxmcp", "--transport", "local"}, seenArgs)
}

func TestRunReportsReturnedErrorAsStartupError(t *testing.T) {
	h := newHarness(t)
	restoreArgs(t)

	code := Run(context.Background(), h.options(nil), func(context.Context, *Channel) error {
		return errors.New("no audio device")
	})
	require.Equal(t, 1, code)

	env, err := h.responses.Get(context.Background(), time.Second)
	require.NoError(t, err)
	require.Empty(t, env.ID)
	diag, ok := env.Body.StartupError()
	require.True(t, ok)
	require.Contains(t, diag, "*errors.errorString: no audio device\n")
	require.Contains(t, diag, "goroutine")
}

func TestRunReportsPanicAsStartupError(t *testing.T) {
	h := newHarness(t)
	restoreArgs(t)

	code := Run(context.Background(), h.options(nil), func(context.Context, *Channel) error {
		panic("transport exploded")
	})
	require.Equal(t, 1, code)

	env, err := h.responses.Get(context.Background(), time.Second)
	require.NoError(t, err)
	diag, ok := env.Body.StartupError()
	require.True(t, ok)
	require.Contains(t, diag, "panic: transport exploded\n")
}

func TestRunSwallowsCrashReportFailure(t *testing.T) {
	h := newHarness(t)
	restoreArgs(t)
	require.NoError(t, h.responses.Close())

	code := Run(context.Background(), h.options(nil), func(context.Context, *Channel) error {
		return errors.New("boom")
	})
	require.Equal(t, 1, code)
}

type harness struct {
	commands  *ipc.Producer
	responses *ipc.Consumer
	childIn   *os.File
	childOut  *os.File
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	cmdR, cmdW, err := os.Pipe()
	require.NoError(t, err)
	respR, respW, err := os.Pipe()
	require.NoError(t, err)

	h := &harness{
		commands:  ipc.NewProducer(cmdW),
		responses: ipc.NewConsumer(respR, nil),
		childIn:   cmdR,
		childOut:  respW,
	}
	t.Cleanup(func() {
		_ = h.commands.Close()
		_ = h.responses.Close()
	})
	return h
}

func (h *harness) options(forwarded []string) Options {
	return Options{
		Forwarded: forwarded,
		Requests:  h.childIn,
		Responses: h.childOut,
		SkipChdir: true,
	}
}

func restoreArgs(t *testing.T) {
	t.Helper()
	saved := os.Args
	t.Cleanup(func() { os.Args = saved })
}
