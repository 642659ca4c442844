package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Transports whose media path has no local HTTP endpoint to poll.
var telephonyTransports = map[string]bool{
	"twilio": true,
	"telnyx": true,
	"plivo":  true,
	"exotel": true,
}

// checkReadiness polls the runner for transport-specific readiness. A
// result starting with "ok" means ready; anything else is a user-facing
// failure.
func (d *Dispatcher) checkReadiness(ctx context.Context, transport string) (string, error) {
	switch transport {
	case "daily":
		base := d.runnerURL()
		return d.poll(ctx, func() (string, bool, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/start", bytes.NewReader([]byte("{}")))
			if err != nil {
				return "", false, err
			}
			req.Header.Set("Content-Type", "application/json")
			resp, err := d.client.Do(req)
			if err != nil {
				return "", false, nil
			}
			defer resp.Body.Close()
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
			if resp.StatusCode != http.StatusOK {
				return fmt.Sprintf("Runner /start returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body))), true, nil
			}
			var payload struct {
				DailyRoom string `json:"dailyRoom"`
			}
			room := "unknown"
			if err := json.Unmarshal(body, &payload); err == nil && payload.DailyRoom != "" {
				room = payload.DailyRoom
			}
			d.logger.Info("bot joined daily room", "room", room)
			return "ok - join room: " + room, true, nil
		})
	case "webrtc":
		base := d.runnerURL()
		return d.poll(ctx, func() (string, bool, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/client", nil)
			if err != nil {
				return "", false, err
			}
			resp, err := d.client.Do(req)
			if err != nil {
				return "", false, nil
			}
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return "", false, nil
			}
			d.logger.Info("webrtc client ready", "url", base+"/client")
			return fmt.Sprintf("ok - open %s/client in your browser", base), true, nil
		})
	case "livekit":
		return "ok - LiveKit transport ready", nil
	default:
		if telephonyTransports[transport] {
			return fmt.Sprintf("ok - %s telephony ready", transport), nil
		}
		return fmt.Sprintf("ok - transport '%s' started", transport), nil
	}
}

// poll runs attempt up to d.attempts times, sleeping d.interval before each.
// attempt returns done=false when the runner is not reachable yet.
func (d *Dispatcher) poll(ctx context.Context, attempt func() (string, bool, error)) (string, error) {
	for i := 0; i < d.attempts; i++ {
		if err := sleepContext(ctx, d.interval); err != nil {
			return "", err
		}
		result, done, err := attempt()
		if err != nil {
			return "", err
		}
		if done {
			return result, nil
		}
		d.logger.Debug("runner not ready yet", "attempt", i+1, "of", d.attempts)
	}
	return fmt.Sprintf("Runner HTTP server did not become available after %d attempts", d.attempts) +
		d.ports.Diagnose(ctx, d.supervisor.Port()), nil
}

func (d *Dispatcher) runnerURL() string {
	return fmt.Sprintf("http://%s:%d", d.runnerHost, d.supervisor.Port())
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
