package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/rbright/voxmcp/internal/emotion"
	"github.com/rbright/voxmcp/internal/ipc"
	"github.com/rbright/voxmcp/internal/screen"
	"github.com/rbright/voxmcp/internal/speech"
	"github.com/rbright/voxmcp/internal/transport"
)

// DisconnectMessage is the listen error reported when the user left.
const DisconnectMessage = "I just disconnected, but I might come back."

// Screen is the window and screenshot backend.
type Screen interface {
	ListWindows(ctx context.Context) ([]screen.Window, error)
	Select(ctx context.Context, windowID *int64) (*int64, error)
	Capture(ctx context.Context) (string, error)
}

// Handler answers supervisor commands.
type Handler struct {
	Transport transport.Transport
	Speech    speech.Services
	Screen    Screen
	Logger    *slog.Logger
	// Shutdown is called after a stop command is acknowledged.
	Shutdown func()
}

// Handle implements ipc.Handler.
func (h *Handler) Handle(ctx context.Context, msg ipc.Message) ipc.Message {
	cmd := msg.Cmd()
	h.Logger.Debug("command received", "cmd", cmd)

	switch cmd {
	case "listen":
		return h.listen(ctx)
	case "speak":
		return h.speak(ctx, msg.String("text"))
	case "list_windows":
		return h.listWindows(ctx)
	case "screen_capture":
		return h.screenCapture(ctx, msg["window_id"])
	case "capture_screenshot":
		return h.captureScreenshot(ctx)
	case "stop":
		if h.Shutdown != nil {
			h.Shutdown()
		}
		return ipc.Message{"ok": true}
	default:
		return errorMessage(fmt.Sprintf("unknown command: %s", cmd))
	}
}

func (h *Handler) listen(ctx context.Context) ipc.Message {
	for {
		utterance, err := h.Transport.Listen(ctx)
		if err != nil {
			if errors.Is(err, transport.ErrDisconnected) {
				return errorMessage(DisconnectMessage)
			}
			return errorMessage(fmt.Sprintf("listen failed: %v", err))
		}

		text, err := h.Speech.STT.Transcribe(ctx, utterance)
		if err != nil {
			return errorMessage(fmt.Sprintf("transcription failed: %v", err))
		}
		if text = strings.TrimSpace(text); text != "" {
			h.Logger.Info("user said", "chars", len(text))
			return ipc.Message{"text": text}
		}
		h.Logger.Debug("empty transcription; still listening", "audio_ms", utterance.DurationMS())
	}
}

func (h *Handler) speak(ctx context.Context, text string) ipc.Message {
	text = emotion.ForPreset(text, string(h.Speech.Preset))
	if text == "" {
		return ipc.Message{"ok": true}
	}

	clip, err := h.Speech.TTS.Synthesize(ctx, text)
	if err != nil {
		return errorMessage(fmt.Sprintf("speech synthesis failed: %v", err))
	}
	if err := h.Transport.Play(ctx, clip); err != nil {
		if errors.Is(err, transport.ErrDisconnected) || errors.Is(err, transport.ErrNoPeer) {
			return errorMessage(DisconnectMessage)
		}
		return errorMessage(fmt.Sprintf("playback failed: %v", err))
	}
	return ipc.Message{"ok": true}
}

func (h *Handler) listWindows(ctx context.Context) ipc.Message {
	windows, err := h.Screen.ListWindows(ctx)
	if err != nil {
		return errorMessage(fmt.Sprintf("list windows failed: %v", err))
	}
	out := make([]map[string]any, 0, len(windows))
	for _, w := range windows {
		out = append(out, map[string]any{
			"title":     w.Title,
			"app_name":  w.AppName,
			"window_id": w.WindowID,
		})
	}
	return ipc.Message{"windows": out}
}

func (h *Handler) screenCapture(ctx context.Context, raw any) ipc.Message {
	var requested *int64
	if raw != nil {
		id, ok := toInt64(raw)
		if !ok {
			return errorMessage(fmt.Sprintf("invalid window_id: %v", raw))
		}
		requested = &id
	}

	selected, err := h.Screen.Select(ctx, requested)
	if err != nil {
		return errorMessage(fmt.Sprintf("screen capture failed: %v", err))
	}
	if selected == nil {
		return ipc.Message{"window_id": nil}
	}
	return ipc.Message{"window_id": *selected}
}

func (h *Handler) captureScreenshot(ctx context.Context) ipc.Message {
	path, err := h.Screen.Capture(ctx)
	if errors.Is(err, screen.ErrNoCapture) {
		return ipc.Message{}
	}
	if err != nil {
		return errorMessage(fmt.Sprintf("screenshot failed: %v", err))
	}
	return ipc.Message{"path": path}
}

func errorMessage(text string) ipc.Message {
	return ipc.Message{ipc.KeyError: text}
}

// toInt64 accepts the numeric shapes a decoded frame can carry.
func toInt64(raw any) (int64, bool) {
	switch v := raw.(type) {
	case float64:
		if v != math.Trunc(v) {
			return 0, false
		}
		return int64(v), true
	case int64:
		return v, true
	case int:
		return int64(v), true
	default:
		return 0, false
	}
}
