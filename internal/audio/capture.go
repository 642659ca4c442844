package audio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/jfreymuth/pulse"
	pulseproto "github.com/jfreymuth/pulse/proto"
)

// CaptureRate is the default capture sample rate.
const CaptureRate = 16000

const frameQueueDepth = 128

// frameBytes is 20ms of mono s16 at rate.
func frameBytes(rate int) int {
	return rate / 50 * 2
}

// Capture records one source as fixed 20ms PCM frames.
type Capture struct {
	device Device
	client *pulse.Client
	stream *pulse.RecordStream
	frames *framer
}

// StartCapture opens a mono s16 record stream at rate (CaptureRate when
// rate <= 0). Capture stops when ctx ends.
func StartCapture(ctx context.Context, selected Device, rate int) (*Capture, error) {
	if rate <= 0 {
		rate = CaptureRate
	}
	client, err := newClient("audio-input-microphone")
	if err != nil {
		return nil, err
	}

	source, err := client.SourceByID(selected.ID)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("resolve source %q: %w", selected.ID, err)
	}

	c := &Capture{
		device: selected,
		client: client,
		frames: newFramer(frameBytes(rate), frameQueueDepth),
	}
	stream, err := client.NewRecord(
		pulse.NewWriter(c.frames, pulseproto.FormatInt16LE),
		pulse.RecordSource(source),
		pulse.RecordMono,
		pulse.RecordSampleRate(rate),
		pulse.RecordBufferFragmentSize(uint32(c.frames.size)),
		pulse.RecordMediaName("voxmcp listen"),
	)
	if err != nil {
		_ = c.Stop()
		return nil, fmt.Errorf("create pulse record stream: %w", err)
	}
	c.stream = stream
	stream.Start()

	context.AfterFunc(ctx, func() { _ = c.Stop() })
	return c, nil
}

// Device returns the source being recorded.
func (c *Capture) Device() Device {
	return c.device
}

// Chunks yields frames until Stop. The last frame may be short.
func (c *Capture) Chunks() <-chan []byte {
	return c.frames.out
}

// BytesCaptured reports total bytes accepted from Pulse.
func (c *Capture) BytesCaptured() int64 {
	return c.frames.total.Load()
}

// Stop ends the stream and closes Chunks. Safe to call more than once.
func (c *Capture) Stop() error {
	c.frames.shutdown(func() {
		if c.stream != nil {
			c.stream.Stop()
			c.stream.Close()
		}
		if c.client != nil {
			c.client.Close()
		}
	})
	return nil
}

// framer slices the Pulse byte stream into fixed-size frames.
type framer struct {
	size int
	out  chan []byte
	done chan struct{}

	mu      sync.Mutex
	rest    []byte
	closed  bool
	writers sync.WaitGroup
	total   atomic.Int64
}

func newFramer(size, depth int) *framer {
	return &framer{
		size: size,
		out:  make(chan []byte, depth),
		done: make(chan struct{}),
	}
}

// Write buffers p and emits every complete frame. It returns io.EOF after
// shutdown, which ends the Pulse stream.
func (f *framer) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return 0, io.EOF
	}
	f.writers.Add(1)
	defer f.writers.Done()

	f.rest = append(f.rest, p...)
	var ready [][]byte
	for len(f.rest) >= f.size {
		ready = append(ready, bytes.Clone(f.rest[:f.size]))
		f.rest = f.rest[f.size:]
	}
	f.mu.Unlock()

	f.total.Add(int64(len(p)))
	for _, frame := range ready {
		select {
		case <-f.done:
			return 0, io.EOF
		case f.out <- frame:
		}
	}
	return len(p), nil
}

// shutdown rejects new writes, runs release, waits for writes in flight, then
// emits the partial frame and closes out. Only the first call acts.
func (f *framer) shutdown(release func()) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	close(f.done)
	f.mu.Unlock()

	if release != nil {
		release()
	}
	f.writers.Wait()

	f.mu.Lock()
	rest := f.rest
	f.rest = nil
	f.mu.Unlock()

	if len(rest) > 0 {
		select {
		case f.out <- rest:
		default:
		}
	}
	close(f.out)
}
