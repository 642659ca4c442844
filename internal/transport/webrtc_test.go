package transport

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rbright/voxmcp/internal/speech"
)

func TestWebRTCWithoutPeer(t *testing.T) {
	tr := NewWebRTC(WebRTCOptions{Logger: discardLogger()})
	require.Equal(t, WebRTC, tr.Name())
	require.False(t, tr.Connected())

	err := tr.Play(context.Background(), speech.Audio{PCM: []int16{1}, SampleRate: 16000})
	require.ErrorIs(t, err, ErrNoPeer)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = tr.Listen(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWebRTCCloseUnblocksListen(t *testing.T) {
	tr := NewWebRTC(WebRTCOptions{Logger: discardLogger()})

	errCh := make(chan error, 1)
	go func() {
		_, err := tr.Listen(context.Background())
		errCh <- err
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, tr.Close())
	require.NoError(t, tr.Close())

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("listen did not return after close")
	}
}

func TestClientPageIsEmbedded(t *testing.T) {
	require.Contains(t, string(ClientPage), "/api/offer")
}
