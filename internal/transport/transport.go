// Package transport moves utterances in and synthesized speech out of the worker.
package transport

import (
	"context"
	"errors"
	"fmt"

	"github.com/rbright/voxmcp/internal/speech"
)

var (
	// ErrDisconnected is returned by Listen when the remote user left.
	ErrDisconnected = errors.New("client disconnected")
	// ErrNoPeer is returned by Play before any client connected.
	ErrNoPeer = errors.New("no client connected")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("transport closed")
)

// Names of the transports the worker can run.
const (
	WebRTC = "webrtc"
	Local  = "local"
)

// Transport carries one conversation.
type Transport interface {
	Name() string
	// Listen blocks until the next complete user utterance.
	Listen(ctx context.Context) (speech.Audio, error)
	// Play blocks until audio has been sent or played.
	Play(ctx context.Context, audio speech.Audio) error
	Close() error
}

// UnsupportedError names a transport the worker has no media implementation for.
type UnsupportedError struct {
	Name string
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("unsupported transport %q (supported: %s, %s)", e.Name, WebRTC, Local)
}

func deliver(ctx context.Context, out chan<- speech.Audio, utterance speech.Audio) bool {
	select {
	case out <- utterance:
		return true
	case <-ctx.Done():
		return false
	}
}
