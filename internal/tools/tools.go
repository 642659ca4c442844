// Package tools registers the voice MCP tools and translates each call into a
// worker command.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/rbright/voxmcp/internal/ipc"
	"github.com/rbright/voxmcp/internal/mcp"
	"github.com/rbright/voxmcp/internal/preset"
	"github.com/rbright/voxmcp/internal/tracing"
)

var tracer = otel.Tracer("github.com/rbright/voxmcp/internal/tools")

// Supervisor is the worker lifecycle and command channel.
type Supervisor interface {
	Start(ctx context.Context) error
	CheckHealth(ctx context.Context, delay time.Duration) error
	SendCommand(ctx context.Context, cmd string, args map[string]any) (ipc.Message, error)
	Port() int
}

// Diagnoser explains why the runner port is unreachable.
type Diagnoser interface {
	Diagnose(ctx context.Context, port int) string
}

// Options wires a Dispatcher. Zero durations and attempts select defaults.
type Options struct {
	Supervisor Supervisor
	Ports      Diagnoser
	Transport  string
	// Preset is the configured voice preset, the same value the worker resolves.
	// Blank falls back to VOICE_PRESET from Env.
	Preset            string
	RunnerHost        string
	Env               preset.Env
	HealthDelay       time.Duration
	ReadinessAttempts int
	ReadinessInterval time.Duration
	Client            *http.Client
	Logger            *slog.Logger
}

const (
	defaultAttempts = 5
	defaultInterval = time.Second
	noCaptureText   = "No screen capture available."
)

// Dispatcher implements the tool handlers.
type Dispatcher struct {
	supervisor  Supervisor
	ports       Diagnoser
	transport   string
	preset      string
	runnerHost  string
	env         preset.Env
	healthDelay time.Duration
	attempts    int
	interval    time.Duration
	client      *http.Client
	logger      *slog.Logger
}

// New builds a Dispatcher.
func New(opts Options) *Dispatcher {
	d := &Dispatcher{
		supervisor:  opts.Supervisor,
		ports:       opts.Ports,
		transport:   strings.ToLower(strings.TrimSpace(opts.Transport)),
		preset:      opts.Preset,
		runnerHost:  opts.RunnerHost,
		env:         opts.Env,
		healthDelay: opts.HealthDelay,
		attempts:    opts.ReadinessAttempts,
		interval:    opts.ReadinessInterval,
		client:      opts.Client,
		logger:      opts.Logger,
	}
	if d.transport == "" {
		d.transport = "webrtc"
	}
	if d.runnerHost == "" {
		d.runnerHost = "localhost"
	}
	if d.env == nil {
		d.env = os.Getenv
	}
	if d.healthDelay <= 0 {
		d.healthDelay = time.Second
	}
	if d.attempts <= 0 {
		d.attempts = defaultAttempts
	}
	if d.interval <= 0 {
		d.interval = defaultInterval
	}
	if d.client == nil {
		d.client = &http.Client{Timeout: 5 * time.Second}
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	return d
}

type toolFunc func(ctx context.Context, args json.RawMessage) (*mcp.ToolCallResult, error)

// Register adds every tool to server.
func (d *Dispatcher) Register(server *mcp.Server) error {
	for _, def := range d.definitions() {
		if err := server.RegisterTool(def.tool, d.traced(def.tool.Name, def.run)); err != nil {
			return fmt.Errorf("register %s: %w", def.tool.Name, err)
		}
	}
	return nil
}

type definition struct {
	tool mcp.Tool
	run  toolFunc
}

func (d *Dispatcher) definitions() []definition {
	noArgs := func() *mcp.InputSchema { return &mcp.InputSchema{Type: "object"} }
	minText := 1

	return []definition{
		{
			tool: mcp.Tool{
				Name:        "start",
				Description: "Start a new voice agent. Once started, use listen() and speak() to talk to the user. Returns a status line starting with \"ok\" on success, or an error message.",
				InputSchema: noArgs(),
			},
			run: d.start,
		},
		{
			tool: mcp.Tool{
				Name:        "listen",
				Description: "Listen for user speech and return the transcribed text.",
				InputSchema: noArgs(),
			},
			run: d.listen,
		},
		{
			tool: mcp.Tool{
				Name:        "speak",
				Description: "Speak the given text to the user using text-to-speech. Returns true once spoken.",
				InputSchema: &mcp.InputSchema{
					Type: "object",
					Properties: map[string]*mcp.PropertySchema{
						"text": {Type: "string", Description: "Text to speak.", MinLength: &minText},
					},
					Required: []string{"text"},
				},
			},
			run: d.speak,
		},
		{
			tool: mcp.Tool{
				Name:        "list_windows",
				Description: "List open windows visible to the screen capture backend as objects with title, app_name, and window_id. Several windows may belong to one app; ask the user when unsure which one they mean.",
				InputSchema: noArgs(),
			},
			run: d.listWindows,
		},
		{
			tool: mcp.Tool{
				Name:        "screen_capture",
				Description: "Start or switch screen capture to a window (by window_id from list_windows) or the full screen. Returns the window id when found, or null for full screen or an unknown window.",
				InputSchema: &mcp.InputSchema{
					Type: "object",
					Properties: map[string]*mcp.PropertySchema{
						"window_id": {Type: []string{"integer", "null"}, Description: "Window to capture; omit for the full screen."},
					},
				},
			},
			run: d.screenCapture,
		},
		{
			tool: mcp.Tool{
				Name:        "capture_screenshot",
				Description: "Take a look at what is on screen. Screen capture must already be started with screen_capture(). Returns the absolute path to the saved image.",
				InputSchema: noArgs(),
			},
			run: d.captureScreenshot,
		},
		{
			tool: mcp.Tool{
				Name:        "stop",
				Description: "Stop the voice pipeline and clean up resources once the conversation is complete.",
				InputSchema: noArgs(),
			},
			run: d.stop,
		},
	}
}

func (d *Dispatcher) traced(name string, run toolFunc) mcp.ToolHandler {
	return func(ctx context.Context, args json.RawMessage) (*mcp.ToolCallResult, error) {
		ctx, span := tracer.Start(ctx, tracing.SpanPrefixTool+name)
		defer span.End()
		span.SetAttributes(attribute.String(tracing.AttrToolName, name))

		result, err := run(ctx, args)
		switch {
		case err != nil:
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		case result != nil && result.IsError:
			span.SetStatus(codes.Error, "tool returned an error result")
		default:
			span.SetStatus(codes.Ok, "")
		}
		return result, err
	}
}

// start validates the preset, spawns the worker, and waits for readiness.
// Failures are reported as text so the client can relay them to the user.
func (d *Dispatcher) start(ctx context.Context, _ json.RawMessage) (*mcp.ToolCallResult, error) {
	name := d.preset
	if strings.TrimSpace(name) == "" {
		name = d.env(preset.EnvVar)
	}
	cfg := preset.ValidateName(name, d.env)
	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String(tracing.AttrPreset, string(cfg.Name)),
		attribute.String(tracing.AttrTransport, d.transport),
	)
	if !cfg.Valid {
		if len(cfg.MissingKeys) > 0 {
			return mcp.SuccessResult(cfg.Error + ". Set the key or change VOICE_PRESET."), nil
		}
		return mcp.SuccessResult(cfg.Error), nil
	}

	if err := d.supervisor.Start(ctx); err != nil {
		return mcp.SuccessResult(err.Error()), nil
	}
	if err := d.supervisor.CheckHealth(ctx, d.healthDelay); err != nil {
		return mcp.SuccessResult(err.Error()), nil
	}

	readiness, err := d.checkReadiness(ctx, d.transport)
	if err != nil {
		return nil, err
	}
	if strings.HasPrefix(readiness, "ok") {
		readiness = fmt.Sprintf("%s (preset: %s)", readiness, cfg.Name)
	}
	d.logger.Info("voice agent started", "transport", d.transport, "preset", cfg.Name, "status", readiness)
	return mcp.SuccessResult(readiness), nil
}

func (d *Dispatcher) listen(ctx context.Context, _ json.RawMessage) (*mcp.ToolCallResult, error) {
	resp, err := d.supervisor.SendCommand(ctx, "listen", nil)
	if err != nil {
		return nil, err
	}
	if text, failed := resp.ErrorText(); failed {
		return nil, errors.New(text)
	}
	text, ok := resp["text"].(string)
	if !ok {
		return nil, fmt.Errorf("Unexpected response from listen: %s", resp.Describe())
	}
	return mcp.SuccessResult(text), nil
}

func (d *Dispatcher) speak(ctx context.Context, args json.RawMessage) (*mcp.ToolCallResult, error) {
	var p struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(args, &p); err != nil {
		return nil, fmt.Errorf("decode speak arguments: %w", err)
	}
	resp, err := d.supervisor.SendCommand(ctx, "speak", map[string]any{"text": p.Text})
	if err != nil {
		return nil, err
	}
	if text, failed := resp.ErrorText(); failed {
		return nil, errors.New(text)
	}
	return mcp.StructuredResult(true)
}

func (d *Dispatcher) listWindows(ctx context.Context, _ json.RawMessage) (*mcp.ToolCallResult, error) {
	resp, err := d.supervisor.SendCommand(ctx, "list_windows", nil)
	if err != nil {
		return nil, err
	}
	windows, ok := resp["windows"]
	if !ok || windows == nil {
		windows = []any{}
	}
	return mcp.StructuredResult(windows)
}

func (d *Dispatcher) screenCapture(ctx context.Context, args json.RawMessage) (*mcp.ToolCallResult, error) {
	var p struct {
		WindowID *int64 `json:"window_id"`
	}
	if len(args) > 0 {
		if err := json.Unmarshal(args, &p); err != nil {
			return nil, fmt.Errorf("decode screen_capture arguments: %w", err)
		}
	}
	var windowID any
	if p.WindowID != nil {
		windowID = *p.WindowID
	}

	resp, err := d.supervisor.SendCommand(ctx, "screen_capture", map[string]any{"window_id": windowID})
	if err != nil {
		return nil, err
	}
	if text, failed := resp.ErrorText(); failed {
		return nil, errors.New(text)
	}
	return mcp.StructuredResult(resp["window_id"])
}

func (d *Dispatcher) captureScreenshot(ctx context.Context, _ json.RawMessage) (*mcp.ToolCallResult, error) {
	resp, err := d.supervisor.SendCommand(ctx, "capture_screenshot", nil)
	if err != nil {
		return nil, err
	}
	path, ok := resp["path"].(string)
	if !ok {
		return mcp.SuccessResult(noCaptureText), nil
	}
	return mcp.SuccessResult(path), nil
}

func (d *Dispatcher) stop(ctx context.Context, _ json.RawMessage) (*mcp.ToolCallResult, error) {
	if _, err := d.supervisor.SendCommand(ctx, "stop", nil); err != nil {
		return nil, err
	}
	return mcp.StructuredResult(true)
}
