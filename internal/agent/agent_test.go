package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/require"

	"github.com/rbright/voxmcp/internal/config"
	"github.com/rbright/voxmcp/internal/ipc"
	"github.com/rbright/voxmcp/internal/preset"
	"github.com/rbright/voxmcp/internal/screen"
	"github.com/rbright/voxmcp/internal/speech"
	"github.com/rbright/voxmcp/internal/transport"
)

func newHandler(tr *fakeTransport, stt *fakeSTT, tts *fakeTTS, scr *fakeScreen, name preset.Name) *Handler {
	return &Handler{
		Transport: tr,
		Speech:    speech.Services{Preset: name, STT: stt, TTS: tts},
		Screen:    scr,
		Logger:    discardLogger(),
	}
}

func TestHandlerListenSkipsEmptyTranscriptions(t *testing.T) {
	tr := newFakeTransport()
	tr.utterances <- speech.Audio{PCM: []int16{1}}
	tr.utterances <- speech.Audio{PCM: []int16{2}}
	h := newHandler(tr, &fakeSTT{texts: []string{"  ", "hello world"}}, &fakeTTS{}, &fakeScreen{}, preset.Groq)

	resp := h.Handle(context.Background(), ipc.Message{"cmd": "listen"})
	require.Equal(t, ipc.Message{"text": "hello world"}, resp)
}

func TestHandlerListenReportsDisconnect(t *testing.T) {
	tr := newFakeTransport()
	tr.listenErr = transport.ErrDisconnected
	h := newHandler(tr, &fakeSTT{}, &fakeTTS{}, &fakeScreen{}, preset.Groq)

	resp := h.Handle(context.Background(), ipc.Message{"cmd": "listen"})
	require.Equal(t, ipc.Message{"error": DisconnectMessage}, resp)
}

func TestHandlerSpeakRewritesMarkupPerPreset(t *testing.T) {
	tests := []struct {
		preset preset.Name
		want   string
	}{
		{preset: preset.Groq, want: "[cheerful] Hi <laugh>"},
		{preset: preset.Cartesia, want: `<emotion value="happy"/>Hi`},
		{preset: preset.Deepgram, want: "Hi"},
	}
	for _, tc := range tests {
		t.Run(string(tc.preset), func(t *testing.T) {
			tr, tts := newFakeTransport(), &fakeTTS{}
			h := newHandler(tr, &fakeSTT{}, tts, &fakeScreen{}, tc.preset)

			resp := h.Handle(context.Background(), ipc.Message{"cmd": "speak", "text": "[cheerful] Hi <laugh>"})
			require.Equal(t, ipc.Message{"ok": true}, resp)
			require.Equal(t, []string{tc.want}, tts.texts)
			require.Len(t, tr.played, 1)
		})
	}
}

func TestHandlerSpeakPlaybackFailure(t *testing.T) {
	tr := newFakeTransport()
	tr.playErr = transport.ErrNoPeer
	h := newHandler(tr, &fakeSTT{}, &fakeTTS{}, &fakeScreen{}, preset.Groq)
	resp := h.Handle(context.Background(), ipc.Message{"cmd": "speak", "text": "hi"})
	require.Equal(t, DisconnectMessage, resp.String("error"))

	tr.playErr = errors.New("sink gone")
	resp = h.Handle(context.Background(), ipc.Message{"cmd": "speak", "text": "hi"})
	require.Equal(t, "playback failed: sink gone", resp.String("error"))
}

func TestHandlerScreenCommands(t *testing.T) {
	scr := &fakeScreen{windows: []screen.Window{{Title: "shell", AppName: "kitty", WindowID: 26}}}
	h := newHandler(newFakeTransport(), &fakeSTT{}, &fakeTTS{}, scr, preset.Groq)
	ctx := context.Background()

	resp := h.Handle(ctx, ipc.Message{"cmd": "list_windows"})
	require.Equal(t, []map[string]any{{"title": "shell", "app_name": "kitty", "window_id": int64(26)}}, resp["windows"])

	resp = h.Handle(ctx, ipc.Message{"cmd": "capture_screenshot"})
	require.Equal(t, ipc.Message{}, resp)

	resp = h.Handle(ctx, ipc.Message{"cmd": "screen_capture", "window_id": float64(26)})
	require.Equal(t, ipc.Message{"window_id": int64(26)}, resp)

	resp = h.Handle(ctx, ipc.Message{"cmd": "screen_capture", "window_id": 99.5})
	require.Contains(t, resp.String("error"), "invalid window_id")

	resp = h.Handle(ctx, ipc.Message{"cmd": "screen_capture"})
	require.True(t, resp.Has("window_id"))
	require.Nil(t, resp["window_id"])
	require.Nil(t, scr.selected)

	scr.path = "/tmp/shot.png"
	resp = h.Handle(ctx, ipc.Message{"cmd": "capture_screenshot"})
	require.Equal(t, ipc.Message{"path": "/tmp/shot.png"}, resp)
}

func TestHandlerUnknownAndStop(t *testing.T) {
	stopped := false
	h := newHandler(newFakeTransport(), &fakeSTT{}, &fakeTTS{}, &fakeScreen{}, preset.Groq)
	h.Shutdown = func() { stopped = true }

	resp := h.Handle(context.Background(), ipc.Message{"cmd": "dance"})
	require.Equal(t, ipc.Message{"error": "unknown command: dance"}, resp)
	require.False(t, stopped)

	resp = h.Handle(context.Background(), ipc.Message{"cmd": "stop"})
	require.Equal(t, ipc.Message{"ok": true}, resp)
	require.True(t, stopped)
}

func freeAddr(t *testing.T) (string, int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return "127.0.0.1", port
}

func TestRunLoopServesCommandsUntilStop(t *testing.T) {
	p := newPipes(t)
	host, port := freeAddr(t)
	tr := newFakeTransport()
	tr.utterances <- speech.Audio{PCM: []int16{1}}

	cfg := config.Default()
	cfg.Runner.Host = host
	cfg.Runner.Port = port

	loop := NewRunLoop(Deps{
		Config: cfg,
		Logger: discardLogger(),
		NewTransport: func(_ context.Context, name string) (transport.Transport, error) {
			require.Equal(t, "local", name)
			return tr, nil
		},
		NewSpeech: func(name preset.Name) (speech.Services, error) {
			require.Equal(t, preset.Groq, name)
			return speech.Services{Preset: name, STT: &fakeSTT{texts: []string{"hello world"}}, TTS: &fakeTTS{}}, nil
		},
		Screen: &fakeScreen{},
		Args:   []string{"--config", "/tmp/x.jsonc", "--transport", "local"},
	})

	done := make(chan error, 1)
	go func() { done <- loop(context.Background(), p.channel) }()

	ask := func(id string, body ipc.Message) ipc.Message {
		require.NoError(t, p.commands.Put(context.Background(), ipc.Envelope{ID: id, Body: body}))
		env, err := p.responses.Get(context.Background(), 2*time.Second)
		require.NoError(t, err)
		require.Equal(t, id, env.ID)
		return env.Body
	}

	require.Equal(t, "hello world", ask("1", ipc.Message{"cmd": "listen"}).String("text"))

	status := getJSON(t, fmt.Sprintf("http://%s:%d/status", host, port))
	require.Equal(t, "fake", status["transport"])
	require.Equal(t, "groq", status["preset"])

	resp, err := http.Get(fmt.Sprintf("http://%s:%d/client", host, port))
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	require.Equal(t, true, ask("2", ipc.Message{"cmd": "stop"})["ok"])

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("run loop did not stop")
	}
	require.True(t, tr.closed)
}

func TestRunLoopFailsOnUnsupportedTransport(t *testing.T) {
	p := newPipes(t)
	loop := NewRunLoop(Deps{
		Config: config.Default(),
		Logger: discardLogger(),
		NewSpeech: func(name preset.Name) (speech.Services, error) {
			return speech.Services{Preset: name}, nil
		},
		Screen: &fakeScreen{},
		Args:   []string{"-d"},
	})

	err := loop(context.Background(), p.channel)
	var unsupported *transport.UnsupportedError
	require.ErrorAs(t, err, &unsupported)
	require.Equal(t, "daily", unsupported.Name)
}

func TestRunLoopFailsWhenSpeechUnavailable(t *testing.T) {
	p := newPipes(t)
	loop := NewRunLoop(Deps{
		Config: config.Default(),
		Logger: discardLogger(),
		Env:    func(string) string { return "" },
		Screen: &fakeScreen{},
		Args:   []string{},
	})

	err := loop(context.Background(), p.channel)
	require.ErrorIs(t, err, speech.ErrNoAPIKey)
}

type fakeOfferer struct{}

func (fakeOfferer) Offer(_ context.Context, offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	if offer.Type != webrtc.SDPTypeOffer {
		return webrtc.SessionDescription{}, errors.New("not an offer")
	}
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "answer:" + offer.SDP}, nil
}

func TestServerWebRTCRoutes(t *testing.T) {
	host, port := freeAddr(t)
	server, err := NewServer(fmt.Sprintf("%s:%d", host, port), fakeOfferer{}, func() Status {
		return Status{Transport: "webrtc", Connected: false}
	}, discardLogger())
	require.NoError(t, err)
	server.Serve()
	defer func() { _ = server.Shutdown(context.Background()) }()
	base := "http://" + server.Addr()

	resp, err := http.Get(base + "/client")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(body), "/api/offer")

	resp, err = http.Post(base+"/api/offer", "application/json", strings.NewReader(`{"sdp":"v=0","type":"offer"}`))
	require.NoError(t, err)
	var answer map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&answer))
	_ = resp.Body.Close()
	require.Equal(t, map[string]string{"sdp": "answer:v=0", "type": "answer"}, answer)

	resp, err = http.Post(base+"/api/offer", "application/json", strings.NewReader(`{"sdp":"v=0","type":"answer"}`))
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	resp, err = http.Post(base+"/api/offer", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestNewServerFailsOnBusyPort(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	_, err = NewServer(ln.Addr().String(), nil, func() Status { return Status{} }, discardLogger())
	require.ErrorContains(t, err, "listen on")
}

func getJSON(t *testing.T, url string) map[string]any {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}
