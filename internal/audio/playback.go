package audio

import (
	"context"
	"fmt"
	"sync"

	"github.com/jfreymuth/pulse"
)

// Play writes mono s16 samples at rate to the default Pulse sink and blocks
// until they drain or ctx ends.
func Play(ctx context.Context, samples []int16, rate int, mediaName string) error {
	if len(samples) == 0 {
		return nil
	}

	client, err := newClient("audio-speakers")
	if err != nil {
		return err
	}
	defer client.Close()

	var (
		mu      sync.Mutex
		cursor  int
		stopped bool
	)
	reader := pulse.Int16Reader(func(buf []int16) (int, error) {
		mu.Lock()
		defer mu.Unlock()
		if stopped || cursor >= len(samples) {
			return 0, pulse.EndOfData
		}

		n := copy(buf, samples[cursor:])
		cursor += n
		if cursor >= len(samples) {
			return n, pulse.EndOfData
		}
		return n, nil
	})

	stream, err := client.NewPlayback(
		reader,
		pulse.PlaybackMono,
		pulse.PlaybackSampleRate(rate),
		pulse.PlaybackLatency(0.05),
		pulse.PlaybackMediaName(mediaName),
	)
	if err != nil {
		return fmt.Errorf("create pulse playback stream: %w", err)
	}
	defer stream.Close()

	drained := make(chan struct{})
	stream.Start()
	go func() {
		stream.Drain()
		close(drained)
	}()

	select {
	case <-drained:
	case <-ctx.Done():
		// The reader reports end of data from here on, so Drain returns once
		// the buffered tail has played.
		mu.Lock()
		stopped = true
		mu.Unlock()
		<-drained
		return ctx.Err()
	}

	if err := stream.Error(); err != nil {
		return fmt.Errorf("play stream: %w", err)
	}
	return nil
}
