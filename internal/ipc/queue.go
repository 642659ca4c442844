package ipc

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"
)

var (
	// ErrTimeout reports that Get found no message within its wait slice.
	ErrTimeout = errors.New("queue get timed out")
	// ErrClosed reports that the queue is drained and its pipe reached end of stream.
	ErrClosed = errors.New("queue closed")
)

// Producer writes envelopes to one pipe end. Writes are serialized.
type Producer struct {
	mu     sync.Mutex
	w      io.WriteCloser
	closed bool
}

// NewProducer wraps the writable end of a pipe.
func NewProducer(w io.WriteCloser) *Producer {
	return &Producer{w: w}
}

// Put enqueues env without blocking the caller past ctx. A write abandoned by
// cancellation still completes in the background so frames never interleave.
func (p *Producer) Put(ctx context.Context, env Envelope) error {
	done := make(chan error, 1)
	go func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.closed {
			done <- ErrClosed
			return
		}
		done <- WriteFrame(p.w, env)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close closes the underlying pipe end. Idempotent.
func (p *Producer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.w.Close()
}

// Consumer reads envelopes from one pipe end into an unbounded in-memory FIFO.
type Consumer struct {
	r      io.ReadCloser
	logger *slog.Logger

	mu     sync.Mutex
	items  []Envelope
	notify chan struct{}
	done   chan struct{}
	err    error

	closeOnce sync.Once
}

// NewConsumer starts the pump goroutine that drains r until end of stream.
func NewConsumer(r io.ReadCloser, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	c := &Consumer{
		r:      r,
		logger: logger,
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go c.pump()
	return c
}

func (c *Consumer) pump() {
	defer close(c.done)

	reader := bufio.NewReader(c.r)
	for {
		env, err := ReadFrame(reader)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			c.mu.Lock()
			c.err = err
			c.mu.Unlock()
			c.logger.Debug("queue pump stopped", "error", err.Error())
			return
		}

		c.mu.Lock()
		c.items = append(c.items, env)
		c.mu.Unlock()

		select {
		case c.notify <- struct{}{}:
		default:
		}
	}
}

// Get pops the oldest envelope, waiting at most timeout. A non-positive timeout
// waits until a message arrives, the queue closes, or ctx ends.
func (c *Consumer) Get(ctx context.Context, timeout time.Duration) (Envelope, error) {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	for {
		if env, ok := c.GetNowait(); ok {
			return env, nil
		}

		select {
		case <-c.done:
			if env, ok := c.GetNowait(); ok {
				return env, nil
			}
			return Envelope{}, ErrClosed
		default:
		}

		select {
		case <-c.notify:
		case <-c.done:
		case <-expired:
			return Envelope{}, ErrTimeout
		case <-ctx.Done():
			return Envelope{}, ctx.Err()
		}
	}
}

// GetNowait pops the oldest envelope if one is buffered.
func (c *Consumer) GetNowait() (Envelope, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.items) == 0 {
		return Envelope{}, false
	}
	env := c.items[0]
	c.items[0] = Envelope{}
	c.items = c.items[1:]
	return env, true
}

// Len reports buffered envelopes.
func (c *Consumer) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Done closes once the pipe reached end of stream and every frame is buffered.
func (c *Consumer) Done() <-chan struct{} {
	return c.done
}

// Err returns the pump failure, if the stream ended with something other than EOF.
func (c *Consumer) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Close closes the read end; the pump exits on its next read.
func (c *Consumer) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.r.Close()
	})
	return err
}
