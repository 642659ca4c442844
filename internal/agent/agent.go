// Package agent is the worker run-loop: it builds the speech services and
// media transport, serves the runner HTTP endpoints, and answers commands.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/rbright/voxmcp/internal/audio"
	"github.com/rbright/voxmcp/internal/config"
	"github.com/rbright/voxmcp/internal/preset"
	"github.com/rbright/voxmcp/internal/screen"
	"github.com/rbright/voxmcp/internal/speech"
	"github.com/rbright/voxmcp/internal/transport"
	"github.com/rbright/voxmcp/internal/worker"
)

const shutdownTimeout = 2 * time.Second

// TransportFactory builds the named transport.
type TransportFactory func(ctx context.Context, name string) (transport.Transport, error)

// SpeechFactory builds the services for a preset.
type SpeechFactory func(name preset.Name) (speech.Services, error)

// Deps wires the run-loop. Nil fields get production defaults.
type Deps struct {
	Config       config.Config
	Env          preset.Env
	Logger       *slog.Logger
	NewTransport TransportFactory
	NewSpeech    SpeechFactory
	Screen       Screen
	// Args overrides os.Args[1:] (tests).
	Args []string
}

// NewRunLoop returns the worker.RunLoop for deps.
func NewRunLoop(deps Deps) worker.RunLoop {
	return func(ctx context.Context, ch *worker.Channel) error {
		return run(ctx, ch, deps.withDefaults())
	}
}

func (d Deps) withDefaults() Deps {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Env == nil {
		d.Env = os.Getenv
	}
	seg := audio.SegmenterConfig{
		Threshold:   d.Config.Audio.SilenceThreshold,
		StopSilence: time.Duration(d.Config.Audio.StopSilenceMS) * time.Millisecond,
		MinSpeech:   time.Duration(d.Config.Audio.MinSpeechMS) * time.Millisecond,
	}
	if d.NewTransport == nil {
		cfg, logger := d.Config, d.Logger
		d.NewTransport = func(ctx context.Context, name string) (transport.Transport, error) {
			switch name {
			case transport.WebRTC:
				return transport.NewWebRTC(transport.WebRTCOptions{Segmenter: seg, Logger: logger}), nil
			case transport.Local:
				return transport.NewLocal(ctx, transport.LocalOptions{
					Input:     cfg.Audio.Input,
					Fallback:  cfg.Audio.Fallback,
					Cues:      cfg.Audio.Cues,
					Segmenter: seg,
					Logger:    logger,
				})
			default:
				return nil, &transport.UnsupportedError{Name: name}
			}
		}
	}
	if d.NewSpeech == nil {
		env, endpoints, logger := d.Env, d.Config.Speech, d.Logger
		d.NewSpeech = func(name preset.Name) (speech.Services, error) {
			return speech.New(speech.Options{Preset: name, Env: env, Endpoints: endpoints, Logger: logger})
		}
	}
	if d.Screen == nil {
		d.Screen = screen.New(screen.Options{
			CaptureArgv: d.Config.Screen.CaptureCmd.Argv,
			Dir:         d.Config.Screen.CaptureDir,
			Logger:      d.Logger,
		})
	}
	if d.Args == nil {
		d.Args = os.Args[1:]
	}
	return d
}

func run(ctx context.Context, ch *worker.Channel, deps Deps) error {
	logger := deps.Logger

	args, err := ParseArgs(deps.Args, RunnerArgs{
		Transport: deps.Config.Transport,
		Host:      deps.Config.Runner.Host,
		Port:      deps.Config.Runner.Port,
	})
	if err != nil {
		return err
	}

	name, warning := preset.Resolve(deps.Config.VoicePreset)
	if warning != "" {
		logger.Warn(warning)
	}
	logger.Info("voice preset", "preset", name)

	services, err := deps.NewSpeech(name)
	if err != nil {
		return fmt.Errorf("create speech services: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	tr, err := deps.NewTransport(ctx, args.Transport)
	if err != nil {
		return err
	}
	defer func() { _ = tr.Close() }()

	offerer, _ := tr.(Offerer)
	server, err := NewServer(args.Addr(), offerer, func() Status {
		connected := true
		if c, ok := tr.(interface{ Connected() bool }); ok {
			connected = c.Connected()
		}
		return Status{Transport: tr.Name(), Preset: string(name), Connected: connected, PID: os.Getpid()}
	}, logger)
	if err != nil {
		return err
	}
	server.Serve()
	defer func() {
		shutdownCtx, done := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer done()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("runner http shutdown", "error", err)
		}
	}()
	logger.Info("runner listening", "addr", server.Addr(), "transport", tr.Name())

	go func() {
		select {
		case err := <-server.Done():
			if err != nil {
				logger.Error("runner http server exited; stopping worker", "error", err)
			}
			cancel()
		case <-ctx.Done():
		}
	}()

	handler := &Handler{
		Transport: tr,
		Speech:    services,
		Screen:    deps.Screen,
		Logger:    logger,
		Shutdown:  cancel,
	}
	return ch.Serve(ctx, handler)
}
