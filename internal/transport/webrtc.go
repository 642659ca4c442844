package transport

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/pion/webrtc/v3"
	"github.com/pion/webrtc/v3/pkg/media"
	"gopkg.in/hraban/opus.v2"

	"github.com/rbright/voxmcp/internal/audio"
	"github.com/rbright/voxmcp/internal/speech"
)

const (
	opusRate      = 48000
	opusFrame     = 960 // 20ms @ 48kHz
	maxOpusPacket = 1500
	frameDuration = 20 * time.Millisecond
)

// ClientPage is the browser client served at /client.
//
//go:embed client.html
var ClientPage []byte

// WebRTCOptions configures the browser transport.
type WebRTCOptions struct {
	Segmenter  audio.SegmenterConfig
	ICEServers []string
	Logger     *slog.Logger
}

// WebRTCTransport serves one browser peer at a time. A new offer replaces the
// previous peer.
type WebRTCTransport struct {
	opts   WebRTCOptions
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	utterances chan speech.Audio

	mu      sync.Mutex
	session *peerSession
	changed chan struct{}
	closed  bool

	playMu sync.Mutex
}

type peerSession struct {
	pc    *webrtc.PeerConnection
	track *webrtc.TrackLocalStaticSample
	gone  chan struct{}
	once  sync.Once
}

func (p *peerSession) markGone() {
	p.once.Do(func() { close(p.gone) })
}

// NewWebRTC returns an idle transport waiting for an offer.
func NewWebRTC(opts WebRTCOptions) *WebRTCTransport {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Segmenter.SampleRate <= 0 {
		opts.Segmenter.SampleRate = audio.CaptureRate
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &WebRTCTransport{
		opts:       opts,
		logger:     logger.With("component", "transport.webrtc"),
		ctx:        ctx,
		cancel:     cancel,
		utterances: make(chan speech.Audio, 8),
		changed:    make(chan struct{}),
	}
}

// Name implements Transport.
func (t *WebRTCTransport) Name() string { return WebRTC }

// Offer answers a browser SDP offer and installs the new peer.
func (t *WebRTCTransport) Offer(ctx context.Context, offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	cfg := webrtc.Configuration{}
	if len(t.opts.ICEServers) > 0 {
		cfg.ICEServers = []webrtc.ICEServer{{URLs: t.opts.ICEServers}}
	}

	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("create peer connection: %w", err)
	}

	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: opusRate, Channels: 2},
		"audio",
		"voxmcp",
	)
	if err != nil {
		_ = pc.Close()
		return webrtc.SessionDescription{}, fmt.Errorf("create audio track: %w", err)
	}
	sender, err := pc.AddTrack(track)
	if err != nil {
		_ = pc.Close()
		return webrtc.SessionDescription{}, fmt.Errorf("add audio track: %w", err)
	}
	go drainRTCP(sender)

	session := &peerSession{pc: pc, track: track, gone: make(chan struct{})}

	pc.OnTrack(func(remote *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		if remote.Kind() != webrtc.RTPCodecTypeAudio {
			return
		}
		t.logger.Info("remote audio track", "codec", remote.Codec().MimeType)
		t.decodeLoop(session, remote)
	})
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		t.logger.Info("peer connection state", "state", state.String())
		switch state {
		case webrtc.PeerConnectionStateDisconnected, webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
			session.markGone()
		}
	})

	if err := pc.SetRemoteDescription(offer); err != nil {
		_ = pc.Close()
		return webrtc.SessionDescription{}, fmt.Errorf("set remote description: %w", err)
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		_ = pc.Close()
		return webrtc.SessionDescription{}, fmt.Errorf("create answer: %w", err)
	}
	gathered := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		_ = pc.Close()
		return webrtc.SessionDescription{}, fmt.Errorf("set local description: %w", err)
	}

	select {
	case <-gathered:
	case <-ctx.Done():
		_ = pc.Close()
		return webrtc.SessionDescription{}, ctx.Err()
	}

	if err := t.install(session); err != nil {
		_ = pc.Close()
		return webrtc.SessionDescription{}, err
	}
	return *pc.LocalDescription(), nil
}

func (t *WebRTCTransport) install(session *peerSession) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	if previous := t.session; previous != nil {
		previous.markGone()
		_ = previous.pc.Close()
	}
	t.session = session
	close(t.changed)
	t.changed = make(chan struct{})
	return nil
}

// Connected reports whether a peer is installed and still up.
func (t *WebRTCTransport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.session == nil {
		return false
	}
	select {
	case <-t.session.gone:
		return false
	default:
		return true
	}
}

func (t *WebRTCTransport) decodeLoop(session *peerSession, remote *webrtc.TrackRemote) {
	decoder, err := opus.NewDecoder(opusRate, 1)
	if err != nil {
		t.logger.Error("create opus decoder", "error", err)
		return
	}
	segmenter := audio.NewSegmenter(t.opts.Segmenter)
	frame := make([]int16, 5760) // 120ms @ 48kHz, the largest opus frame
	decodeErrors := 0

	for {
		packet, _, err := remote.ReadRTP()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				t.logger.Debug("read rtp", "error", err)
			}
			session.markGone()
			return
		}

		n, err := decoder.Decode(packet.Payload, frame)
		if err != nil {
			decodeErrors++
			if decodeErrors <= 5 {
				t.logger.Warn("opus decode failed", "error", err, "payload_bytes", len(packet.Payload))
			}
			continue
		}

		pcm := speech.Resample(speech.Audio{PCM: frame[:n], SampleRate: opusRate}, t.opts.Segmenter.SampleRate)
		utterance, ok := segmenter.Push(pcm.PCM)
		if !ok {
			continue
		}
		t.logger.Debug("utterance detected", "samples", len(utterance))
		if !deliver(t.ctx, t.utterances, speech.Audio{PCM: utterance, SampleRate: t.opts.Segmenter.SampleRate}) {
			return
		}
	}
}

// Listen implements Transport.
func (t *WebRTCTransport) Listen(ctx context.Context) (speech.Audio, error) {
	for {
		t.mu.Lock()
		if t.closed {
			t.mu.Unlock()
			return speech.Audio{}, ErrClosed
		}
		var gone <-chan struct{}
		if t.session != nil {
			gone = t.session.gone
		}
		changed := t.changed
		t.mu.Unlock()

		select {
		case utterance := <-t.utterances:
			return utterance, nil
		case <-gone:
			return speech.Audio{}, ErrDisconnected
		case <-changed:
		case <-t.ctx.Done():
			return speech.Audio{}, ErrClosed
		case <-ctx.Done():
			return speech.Audio{}, ctx.Err()
		}
	}
}

// Play encodes audio to opus and paces it onto the outbound track.
func (t *WebRTCTransport) Play(ctx context.Context, clip speech.Audio) error {
	t.mu.Lock()
	session := t.session
	t.mu.Unlock()
	if session == nil {
		return ErrNoPeer
	}

	t.playMu.Lock()
	defer t.playMu.Unlock()

	encoder, err := opus.NewEncoder(opusRate, 1, opus.AppVoIP)
	if err != nil {
		return fmt.Errorf("create opus encoder: %w", err)
	}

	pcm := speech.Resample(clip, opusRate).PCM
	packet := make([]byte, maxOpusPacket)
	frame := make([]int16, opusFrame)
	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()

	for offset := 0; offset < len(pcm); offset += opusFrame {
		n := copy(frame, pcm[offset:])
		clear(frame[n:])

		size, err := encoder.Encode(frame, packet)
		if err != nil {
			return fmt.Errorf("opus encode: %w", err)
		}
		if err := session.track.WriteSample(media.Sample{Data: packet[:size], Duration: frameDuration}); err != nil {
			return fmt.Errorf("write audio sample: %w", err)
		}

		select {
		case <-ticker.C:
		case <-session.gone:
			return ErrDisconnected
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Close tears down the current peer.
func (t *WebRTCTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	session := t.session
	t.session = nil
	t.mu.Unlock()

	t.cancel()
	if session != nil {
		session.markGone()
		return session.pc.Close()
	}
	return nil
}

func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, maxOpusPacket)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}
