package transport

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/rbright/voxmcp/internal/audio"
	"github.com/rbright/voxmcp/internal/speech"
)

// Source yields raw little-endian s16 chunks until stopped.
type Source interface {
	Chunks() <-chan []byte
	Stop() error
}

// Player plays mono s16 samples at rate.
type Player func(ctx context.Context, samples []int16, rate int) error

// CuePlayer plays a listening cue.
type CuePlayer func(ctx context.Context, cue audio.Cue) error

// LocalOptions configures the Pulse transport.
type LocalOptions struct {
	Input     string
	Fallback  string
	Cues      bool
	Segmenter audio.SegmenterConfig
	Logger    *slog.Logger
}

// LocalTransport captures from a Pulse source and plays to the default sink.
type LocalTransport struct {
	source Source
	play   Player
	cue    CuePlayer
	cues   bool
	logger *slog.Logger

	ctx        context.Context
	cancel     context.CancelFunc
	utterances chan speech.Audio
	rate       int

	closeOnce sync.Once
	done      chan struct{}
}

// NewLocal selects a capture device and starts recording.
func NewLocal(ctx context.Context, opts LocalOptions) (*LocalTransport, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	selection, err := audio.SelectDevice(ctx, opts.Input, opts.Fallback)
	if err != nil {
		return nil, fmt.Errorf("select audio input: %w", err)
	}
	if selection.Warning != "" {
		logger.Warn(selection.Warning)
	}

	rate := opts.Segmenter.SampleRate
	if rate <= 0 {
		rate = audio.CaptureRate
	}
	capture, err := audio.StartCapture(context.WithoutCancel(ctx), selection.Device, rate)
	if err != nil {
		return nil, err
	}
	logger.Info("capturing audio", "device", selection.Device.ID, "rate", rate)

	play := func(ctx context.Context, samples []int16, rate int) error {
		return audio.Play(ctx, samples, rate, "voxmcp speech")
	}
	opts.Segmenter.SampleRate = rate
	return newLocal(capture, play, audio.PlayCue, opts.Cues, opts.Segmenter, logger), nil
}

func newLocal(source Source, play Player, cue CuePlayer, cues bool, seg audio.SegmenterConfig, logger *slog.Logger) *LocalTransport {
	if seg.SampleRate <= 0 {
		seg.SampleRate = audio.CaptureRate
	}
	ctx, cancel := context.WithCancel(context.Background())
	t := &LocalTransport{
		source:     source,
		play:       play,
		cue:        cue,
		cues:       cues,
		logger:     logger.With("component", "transport.local"),
		ctx:        ctx,
		cancel:     cancel,
		utterances: make(chan speech.Audio, 8),
		rate:       seg.SampleRate,
		done:       make(chan struct{}),
	}
	go t.segment(audio.NewSegmenter(seg))
	return t
}

func (t *LocalTransport) segment(segmenter *audio.Segmenter) {
	defer close(t.done)
	for chunk := range t.source.Chunks() {
		utterance, ok := segmenter.PushBytes(chunk)
		if !ok {
			continue
		}
		if !deliver(t.ctx, t.utterances, speech.Audio{PCM: utterance, SampleRate: t.rate}) {
			return
		}
	}
	if utterance, ok := segmenter.Flush(); ok {
		deliver(t.ctx, t.utterances, speech.Audio{PCM: utterance, SampleRate: t.rate})
	}
}

// Name implements Transport.
func (t *LocalTransport) Name() string { return Local }

// Listen discards utterances heard while idle, plays the listen cue, and waits
// for the next one.
func (t *LocalTransport) Listen(ctx context.Context) (speech.Audio, error) {
	for drained := false; !drained; {
		select {
		case <-t.utterances:
		default:
			drained = true
		}
	}
	t.playCue(ctx, audio.CueListen)

	select {
	case utterance := <-t.utterances:
		t.playCue(ctx, audio.CueHeard)
		return utterance, nil
	case <-t.done:
		select {
		case utterance := <-t.utterances:
			return utterance, nil
		default:
		}
		return speech.Audio{}, ErrDisconnected
	case <-t.ctx.Done():
		return speech.Audio{}, ErrClosed
	case <-ctx.Done():
		t.playCue(context.WithoutCancel(ctx), audio.CueCancel)
		return speech.Audio{}, ctx.Err()
	}
}

func (t *LocalTransport) playCue(ctx context.Context, cue audio.Cue) {
	if !t.cues || t.cue == nil {
		return
	}
	if err := t.cue(ctx, cue); err != nil {
		t.logger.Debug("play cue failed", "error", err)
	}
}

// Play implements Transport.
func (t *LocalTransport) Play(ctx context.Context, clip speech.Audio) error {
	select {
	case <-t.ctx.Done():
		return ErrClosed
	default:
	}
	return t.play(ctx, clip.PCM, clip.SampleRate)
}

// Close stops capture.
func (t *LocalTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		t.cancel()
		err = t.source.Stop()
	})
	return err
}
