// Package screen lists Hyprland windows and captures screenshots with grim.
package screen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// Window is one capturable toplevel.
type Window struct {
	Title    string `json:"title"`
	AppName  string `json:"app_name"`
	WindowID int64  `json:"window_id"`
}

// ErrNoCapture is returned by Capture before any Select.
var ErrNoCapture = errors.New("screen capture not started")

// Options configures a Backend.
type Options struct {
	Runner Runner
	// CaptureArgv is the screenshot command; the geometry flag and output
	// path are appended.
	CaptureArgv []string
	Dir         string
	Logger      *slog.Logger
}

// Backend tracks the capture target chosen by Select.
type Backend struct {
	run    Runner
	argv   []string
	dir    string
	logger *slog.Logger

	mu      sync.Mutex
	started bool
	target  *client
}

// New returns a Backend with defaults for unset options.
func New(opts Options) *Backend {
	run := opts.Runner
	if run == nil {
		run = ExecRunner
	}
	argv := opts.CaptureArgv
	if len(argv) == 0 {
		argv = []string{"grim"}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{
		run:    run,
		argv:   append([]string(nil), argv...),
		dir:    opts.Dir,
		logger: logger.With("component", "screen"),
	}
}

// ListWindows returns mapped, visible, titled windows.
func (b *Backend) ListWindows(ctx context.Context) ([]Window, error) {
	clients, err := queryClients(ctx, b.run)
	if err != nil {
		return nil, err
	}

	windows := make([]Window, 0, len(clients))
	for _, c := range clients {
		if !c.Mapped || c.Hidden || c.Title == "" {
			continue
		}
		id, ok := windowID(c.Address)
		if !ok {
			continue
		}
		windows = append(windows, Window{Title: c.Title, AppName: c.Class, WindowID: id})
	}
	return windows, nil
}

// Select switches capture to the requested window, or to the full screen when it is
// nil. It returns the selected id, or nil for full screen or an unknown window.
func (b *Backend) Select(ctx context.Context, requested *int64) (*int64, error) {
	if requested == nil {
		b.setTarget(nil)
		return nil, nil
	}

	clients, err := queryClients(ctx, b.run)
	if err != nil {
		return nil, err
	}
	for i := range clients {
		id, ok := windowID(clients[i].Address)
		if ok && id == *requested {
			b.setTarget(&clients[i])
			selected := id
			return &selected, nil
		}
	}

	b.logger.Warn("window not found; capturing full screen", "window_id", *requested)
	b.setTarget(nil)
	return nil, nil
}

func (b *Backend) setTarget(target *client) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.started = true
	b.target = target
}

// Capture writes a PNG of the current target and returns its absolute path.
func (b *Backend) Capture(ctx context.Context) (string, error) {
	b.mu.Lock()
	started, target := b.started, b.target
	b.mu.Unlock()
	if !started {
		return "", ErrNoCapture
	}

	dir := b.dir
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("create capture dir: %w", err)
	}
	file, err := os.CreateTemp(dir, "voxmcp-screenshot-*.png")
	if err != nil {
		return "", fmt.Errorf("create screenshot file: %w", err)
	}
	path := file.Name()
	_ = file.Close()

	args := append([]string(nil), b.argv[1:]...)
	if target != nil {
		args = append(args, "-g", target.geometry())
	}
	args = append(args, path)

	if _, err := b.run(ctx, b.argv[0], args...); err != nil {
		_ = os.Remove(path)
		return "", err
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return path, nil
	}
	return abs, nil
}
