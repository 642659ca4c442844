// Package doctor runs readiness diagnostics for config, credentials, tools,
// audio, speech endpoints, and the runner port.
package doctor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rbright/voxmcp/internal/audio"
	"github.com/rbright/voxmcp/internal/config"
	"github.com/rbright/voxmcp/internal/preset"
)

// Check is one doctor assertion result.
type Check struct {
	Name    string
	Pass    bool
	Message string
}

// Report is the full doctor output contract.
type Report struct {
	Checks []Check
}

// OK returns true when all checks pass.
func (r Report) OK() bool {
	for _, check := range r.Checks {
		if !check.Pass {
			return false
		}
	}
	return true
}

// String renders the report as user-facing text output.
func (r Report) String() string {
	var b strings.Builder
	for _, check := range r.Checks {
		status := "OK"
		if !check.Pass {
			status = "FAIL"
		}
		b.WriteString(fmt.Sprintf("[%s] %s: %s\n", status, check.Name, check.Message))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Diagnoser names the holder of a busy port.
type Diagnoser interface {
	Diagnose(ctx context.Context, port int) string
}

// Run executes environment/config/runtime checks for a loaded config and the
// effective transport.
func Run(ctx context.Context, cfg config.Loaded, transport string, ports Diagnoser) Report {
	checks := []Check{}

	configMsg := fmt.Sprintf("loaded %q", cfg.Path)
	if !cfg.Exists {
		configMsg = fmt.Sprintf("%q not found; using defaults", cfg.Path)
	}
	checks = append(checks, Check{Name: "config", Pass: true, Message: configMsg})

	checks = append(checks, checkPreset(cfg.Config.VoicePreset, os.Getenv))

	for _, bin := range []string{"lsof", "ps", "kill"} {
		checks = append(checks, checkBinary(bin, "port arbitration"))
	}

	checks = append(checks, checkEnv("HYPRLAND_INSTANCE_SIGNATURE", func(v string) bool {
		return strings.TrimSpace(v) != ""
	}, "Hyprland session detected", "HYPRLAND_INSTANCE_SIGNATURE is empty; screen tools are unavailable"))
	checks = append(checks, checkBinary("hyprctl", "window listing"))
	checks = append(checks, checkCommand(cfg.Config.Screen.CaptureCmd.Argv, "screen.capture_cmd"))

	if transport == "local" {
		checks = append(checks, checkAudioSelection(ctx, cfg.Config))
	}

	name, _ := preset.Resolve(cfg.Config.VoicePreset)
	if name == preset.Local || name == preset.Kokoro {
		checks = append(checks,
			checkEndpoint(ctx, "speech.local_stt_url", cfg.Config.Speech.LocalSTTURL),
			checkEndpoint(ctx, "speech.local_tts_url", cfg.Config.Speech.LocalTTSURL),
		)
	}

	checks = append(checks, checkRunnerPort(ctx, cfg.Config.Runner, ports))

	return Report{Checks: checks}
}

// checkPreset validates the configured preset and its credential variables.
func checkPreset(name string, env preset.Env) Check {
	cfg := preset.ValidateName(name, env)
	if !cfg.Valid {
		return Check{Name: "voice_preset", Pass: false, Message: cfg.Error}
	}
	return Check{Name: "voice_preset", Pass: true, Message: fmt.Sprintf("%s (credentials present)", cfg.Name)}
}

// checkEnv validates an environment variable through a caller-supplied predicate.
func checkEnv(name string, predicate func(string) bool, okMsg, failMsg string) Check {
	value := os.Getenv(name)
	if predicate(value) {
		return Check{Name: name, Pass: true, Message: okMsg}
	}
	return Check{Name: name, Pass: false, Message: failMsg}
}

// checkCommand validates that argv contains a runnable command.
func checkCommand(argv []string, name string) Check {
	if len(argv) == 0 {
		return Check{Name: name, Pass: false, Message: "command is empty"}
	}
	return checkBinary(argv[0], fmt.Sprintf("%s command is available", name))
}

// checkBinary validates that a binary exists in PATH.
func checkBinary(bin string, okMsg string) Check {
	path, err := exec.LookPath(bin)
	if err != nil {
		return Check{Name: bin, Pass: false, Message: fmt.Sprintf("binary not found in PATH: %s", bin)}
	}
	return Check{Name: bin, Pass: true, Message: fmt.Sprintf("found at %s (%s)", path, okMsg)}
}

// checkAudioSelection runs live device selection to surface selection/fallback issues.
func checkAudioSelection(ctx context.Context, cfg config.Config) Check {
	selection, err := audio.SelectDevice(ctx, cfg.Audio.Input, cfg.Audio.Fallback)
	if err != nil {
		return Check{Name: "audio.device", Pass: false, Message: err.Error()}
	}
	message := fmt.Sprintf("selected %q", selection.Device.ID)
	if selection.Warning != "" {
		message = message + " (" + selection.Warning + ")"
	}
	return Check{Name: "audio.device", Pass: true, Message: message}
}

// checkEndpoint reports whether a local speech server answers HTTP at all.
// Any status counts as reachable; OpenAI-compatible servers reject bare GETs.
func checkEndpoint(ctx context.Context, name, url string) Check {
	if strings.TrimSpace(url) == "" {
		return Check{Name: name, Pass: false, Message: "url is empty"}
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Check{Name: name, Pass: false, Message: fmt.Sprintf("invalid url: %v", err)}
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return Check{Name: name, Pass: false, Message: fmt.Sprintf("request failed: %v", err)}
	}
	_ = resp.Body.Close()
	if resp.StatusCode >= 500 {
		return Check{Name: name, Pass: false, Message: fmt.Sprintf("HTTP %d from %s", resp.StatusCode, url)}
	}
	return Check{Name: name, Pass: true, Message: fmt.Sprintf("reachable at %s (HTTP %d)", url, resp.StatusCode)}
}

// checkRunnerPort binds the runner address briefly to confirm the worker can.
func checkRunnerPort(ctx context.Context, runner config.RunnerConfig, ports Diagnoser) Check {
	name := fmt.Sprintf("runner.port %d", runner.Port)
	addr := net.JoinHostPort(runner.Host, strconv.Itoa(runner.Port))

	ln, err := net.Listen("tcp", addr)
	if err == nil {
		_ = ln.Close()
		return Check{Name: name, Pass: true, Message: fmt.Sprintf("%s is free", addr)}
	}

	message := err.Error()
	if errors.Is(err, syscall.EADDRINUSE) && ports != nil {
		message = strings.TrimSpace(ports.Diagnose(ctx, runner.Port))
	}
	return Check{Name: name, Pass: false, Message: message}
}
