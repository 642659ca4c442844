// Package app dispatches parsed CLI commands to the MCP server, the worker
// entrypoint, and the diagnostic commands.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/rbright/voxmcp/internal/agent"
	"github.com/rbright/voxmcp/internal/audio"
	"github.com/rbright/voxmcp/internal/cli"
	"github.com/rbright/voxmcp/internal/config"
	"github.com/rbright/voxmcp/internal/doctor"
	"github.com/rbright/voxmcp/internal/logging"
	"github.com/rbright/voxmcp/internal/mcp"
	"github.com/rbright/voxmcp/internal/ports"
	"github.com/rbright/voxmcp/internal/screen"
	"github.com/rbright/voxmcp/internal/supervisor"
	"github.com/rbright/voxmcp/internal/tools"
	"github.com/rbright/voxmcp/internal/tracing"
	"github.com/rbright/voxmcp/internal/version"
	"github.com/rbright/voxmcp/internal/worker"
)

const (
	binaryName         = "voxmcp"
	traceFlushTimeout  = 2 * time.Second
	serverInstructions = "Voice I/O for a coding agent. Call start once, then alternate listen and speak. " +
		"Call stop when the conversation ends."
)

// Runner executes one CLI invocation against injectable streams.
type Runner struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger
	// Spawner overrides how serve starts workers.
	Spawner supervisor.Spawner
	// Ports overrides the port arbiter used by serve, doctor, and ports.
	Ports *ports.Arbiter
	// Screen overrides the windows command backend.
	Screen *screen.Backend
}

func Execute(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	r := Runner{Stdin: stdin, Stdout: stdout, Stderr: stderr}
	return r.Execute(ctx, args)
}

func (r Runner) Execute(ctx context.Context, args []string) int {
	parsed, err := cli.Parse(args)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n\n", err)
		fmt.Fprint(r.Stderr, cli.HelpText(binaryName))
		return 2
	}

	if parsed.ShowHelp {
		fmt.Fprint(r.Stdout, cli.HelpText(binaryName))
		return 0
	}

	if parsed.Command == cli.CommandVersion {
		fmt.Fprintln(r.Stdout, version.String())
		return 0
	}

	configPath := parsed.ConfigPath
	if parsed.Command == cli.CommandWorker {
		configPath = forwardedConfigPath(parsed.WorkerArgs)
	}

	cfgLoaded, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	logFile := "log.jsonl"
	if parsed.Command == cli.CommandWorker {
		logFile = "worker.jsonl"
	}
	logRuntime, err := logging.New(logging.Options{
		FileName: logFile,
		Level:    logging.ParseLevel(cfgLoaded.Config.Log.Level),
		Console:  r.Stderr,
	})
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: setup logging: %v\n", err)
		return 1
	}
	defer func() { _ = logRuntime.Close() }()

	logger := r.Logger
	if logger == nil {
		logger = logRuntime.Logger
	}

	for _, w := range cfgLoaded.Warnings {
		logger.Warn("config warning", "line", w.Line, "message", w.Message)
	}
	if len(cfgLoaded.DotEnv) > 0 {
		logger.Debug("loaded .env", "variables", cfgLoaded.DotEnv)
	}

	provider, err := tracing.NewProvider(ctx, cfgLoaded.Config.Tracing)
	if err != nil {
		logger.Warn("tracing disabled", "error", err.Error())
	} else {
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), traceFlushTimeout)
			defer cancel()
			if err := provider.Shutdown(flushCtx); err != nil {
				logger.Warn("tracing shutdown", "error", err.Error())
			}
		}()
	}

	logger.Info("command start",
		"command", parsed.Command,
		"config", cfgLoaded.Path,
		"log", logRuntime.Path,
	)

	switch parsed.Command {
	case cli.CommandServe:
		return r.commandServe(ctx, parsed, cfgLoaded.Config, logger)
	case cli.CommandWorker:
		return worker.Run(ctx, worker.Options{Forwarded: parsed.WorkerArgs, Logger: logger},
			agent.NewRunLoop(agent.Deps{Config: cfgLoaded.Config, Logger: logger}))
	case cli.CommandDoctor:
		transport := parsed.EffectiveTransport(cfgLoaded.Config.Transport)
		report := doctor.Run(ctx, cfgLoaded, transport, r.arbiter(logger))
		fmt.Fprintln(r.Stdout, report.String())
		if report.OK() {
			return 0
		}
		return 1
	case cli.CommandPorts:
		return r.commandPorts(ctx, cfgLoaded.Config, logger)
	case cli.CommandDevices:
		return r.commandDevices(ctx)
	case cli.CommandWindows:
		return r.commandWindows(ctx, cfgLoaded.Config, logger)
	default:
		fmt.Fprintf(r.Stderr, "error: unsupported command %q\n", parsed.Command)
		return 2
	}
}

func (r Runner) arbiter(logger *slog.Logger) *ports.Arbiter {
	if r.Ports != nil {
		return r.Ports
	}
	return ports.New(ports.Options{Logger: logger})
}

func (r Runner) commandServe(ctx context.Context, parsed cli.Parsed, cfg config.Config, logger *slog.Logger) int {
	transport := parsed.EffectiveTransport(cfg.Transport)
	arbiter := r.arbiter(logger)

	sup := supervisor.New(supervisor.Config{
		Port:         cfg.Runner.Port,
		Transport:    transport,
		HealthDelay:  millis(cfg.Worker.HealthDelayMS),
		PollInterval: millis(cfg.Worker.PollIntervalMS),
		StopTimeout:  millis(cfg.Worker.StopTimeoutMS),
	}, logger, arbiter, r.Spawner)
	defer sup.Stop()

	dispatcher := tools.New(tools.Options{
		Supervisor:  sup,
		Ports:       arbiter,
		Transport:   transport,
		Preset:      cfg.VoicePreset,
		RunnerHost:  cfg.Runner.Host,
		HealthDelay: millis(cfg.Worker.HealthDelayMS),
		Logger:      logger,
	})

	server := mcp.NewServer(binaryName, version.Version,
		mcp.WithInstructions(serverInstructions),
		mcp.WithLogger(logger),
	)
	if err := dispatcher.Register(server); err != nil {
		fmt.Fprintf(r.Stderr, "error: register tools: %v\n", err)
		return 1
	}

	logger.Info("mcp server listening on stdio", "transport", transport, "port", cfg.Runner.Port)
	if err := server.Serve(ctx, r.Stdin, r.Stdout); err != nil {
		logger.Error("mcp server failed", "error", err.Error())
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	logger.Info("mcp server stopped")
	return 0
}

func (r Runner) commandPorts(ctx context.Context, cfg config.Config, logger *slog.Logger) int {
	arbiter := r.arbiter(logger)
	fmt.Fprintln(r.Stdout, strings.TrimSpace(arbiter.Diagnose(ctx, cfg.Runner.Port)))

	stale := arbiter.StaleSupervisors(ctx)
	if len(stale) == 0 {
		fmt.Fprintln(r.Stdout, "No other voxmcp servers running.")
		return 0
	}
	fmt.Fprintf(r.Stdout, "Other voxmcp servers running: %s\n", strings.Join(stale, ", "))
	return 0
}

func (r Runner) commandDevices(ctx context.Context) int {
	devices, err := audio.ListDevices(ctx)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if len(devices) == 0 {
		fmt.Fprintln(r.Stdout, "no audio devices found")
		return 1
	}

	for _, device := range devices {
		defaultMark := " "
		if device.Default {
			defaultMark = "*"
		}
		availability := "yes"
		if !device.Available {
			availability = "no"
		}
		muted := "no"
		if device.Muted {
			muted = "yes"
		}
		fmt.Fprintf(
			r.Stdout,
			"%s id=%s | description=%q | state=%s | available=%s | muted=%s\n",
			defaultMark,
			device.ID,
			device.Description,
			device.State,
			availability,
			muted,
		)
	}

	return 0
}

func (r Runner) commandWindows(ctx context.Context, cfg config.Config, logger *slog.Logger) int {
	backend := r.Screen
	if backend == nil {
		backend = screen.New(screen.Options{
			CaptureArgv: cfg.Screen.CaptureCmd.Argv,
			Dir:         cfg.Screen.CaptureDir,
			Logger:      logger,
		})
	}

	windows, err := backend.ListWindows(ctx)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if len(windows) == 0 {
		fmt.Fprintln(r.Stdout, "no windows found")
		return 0
	}
	for _, w := range windows {
		fmt.Fprintf(r.Stdout, "%d | %s | %q\n", w.WindowID, w.AppName, w.Title)
	}
	return 0
}

// forwardedConfigPath extracts --config from the supervisor argv the worker
// received. forwarded[0] is the supervisor's program name.
func forwardedConfigPath(forwarded []string) string {
	for i := 1; i < len(forwarded)-1; i++ {
		if forwarded[i] == "--config" {
			return forwarded[i+1]
		}
	}
	return ""
}

func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
