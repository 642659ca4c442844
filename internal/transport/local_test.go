package transport

import (
	"context"
	"encoding/binary"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rbright/voxmcp/internal/audio"
	"github.com/rbright/voxmcp/internal/speech"
)

type fakeSource struct {
	chunks chan []byte
	once   sync.Once
}

func newFakeSource() *fakeSource {
	return &fakeSource{chunks: make(chan []byte, 64)}
}

func (f *fakeSource) Chunks() <-chan []byte { return f.chunks }

func (f *fakeSource) Stop() error {
	f.once.Do(func() { close(f.chunks) })
	return nil
}

func pcmBytes(level int16, samples int) []byte {
	raw := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		sample := level
		if i%2 == 1 {
			sample = -level
		}
		binary.LittleEndian.PutUint16(raw[i*2:], uint16(sample))
	}
	return raw
}

func testSegmenterConfig() audio.SegmenterConfig {
	return audio.SegmenterConfig{
		SampleRate:  1000,
		Threshold:   0.1,
		StopSilence: 20 * time.Millisecond,
		MinSpeech:   10 * time.Millisecond,
		Preroll:     10 * time.Millisecond,
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLocalListenReturnsNextUtterance(t *testing.T) {
	source := newFakeSource()
	var (
		mu   sync.Mutex
		cues []audio.Cue
	)
	cue := func(_ context.Context, c audio.Cue) error {
		mu.Lock()
		defer mu.Unlock()
		cues = append(cues, c)
		return nil
	}
	tr := newLocal(source, nil, cue, true, testSegmenterConfig(), discardLogger())
	defer tr.Close()

	result := make(chan speech.Audio, 1)
	go func() {
		utterance, err := tr.Listen(context.Background())
		require.NoError(t, err)
		result <- utterance
	}()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(cues) == 1
	}, time.Second, 5*time.Millisecond)

	source.chunks <- pcmBytes(10000, 10)
	source.chunks <- pcmBytes(10000, 10)
	source.chunks <- pcmBytes(0, 10)
	source.chunks <- pcmBytes(0, 10)

	select {
	case utterance := <-result:
		require.Equal(t, 1000, utterance.SampleRate)
		require.Len(t, utterance.PCM, 40)
	case <-time.After(2 * time.Second):
		t.Fatal("listen did not return")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []audio.Cue{audio.CueListen, audio.CueHeard}, cues)
}

func TestLocalListenReportsSourceEnd(t *testing.T) {
	source := newFakeSource()
	tr := newLocal(source, nil, nil, false, testSegmenterConfig(), discardLogger())

	require.NoError(t, source.Stop())
	_, err := tr.Listen(context.Background())
	require.ErrorIs(t, err, ErrDisconnected)
}

func TestLocalListenHonoursContext(t *testing.T) {
	tr := newLocal(newFakeSource(), nil, nil, false, testSegmenterConfig(), discardLogger())
	defer tr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := tr.Listen(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLocalPlayAndClose(t *testing.T) {
	var played []int16
	play := func(_ context.Context, samples []int16, rate int) error {
		require.Equal(t, 24000, rate)
		played = samples
		return nil
	}
	tr := newLocal(newFakeSource(), play, nil, false, testSegmenterConfig(), discardLogger())

	require.NoError(t, tr.Play(context.Background(), speech.Audio{PCM: []int16{1, 2}, SampleRate: 24000}))
	require.Equal(t, []int16{1, 2}, played)
	require.Equal(t, Local, tr.Name())

	require.NoError(t, tr.Close())
	require.NoError(t, tr.Close())
	require.ErrorIs(t, tr.Play(context.Background(), speech.Audio{PCM: []int16{1}}), ErrClosed)
}

func TestUnsupportedErrorMessage(t *testing.T) {
	err := &UnsupportedError{Name: "daily"}
	require.Equal(t, `unsupported transport "daily" (supported: webrtc, local)`, err.Error())
}
