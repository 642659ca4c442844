package screen

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Runner executes one command and returns its combined output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRunner runs commands with os/exec.
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		trimmed := strings.TrimSpace(string(out))
		if trimmed == "" {
			return nil, fmt.Errorf("%s %v failed: %w", name, args, err)
		}
		return nil, fmt.Errorf("%s %v failed: %w (%s)", name, args, err, trimmed)
	}
	return out, nil
}

type client struct {
	Address string `json:"address"`
	Mapped  bool   `json:"mapped"`
	Hidden  bool   `json:"hidden"`
	At      [2]int `json:"at"`
	Size    [2]int `json:"size"`
	Class   string `json:"class"`
	Title   string `json:"title"`
}

// queryClients decodes `hyprctl -j clients`.
func queryClients(ctx context.Context, run Runner) ([]client, error) {
	output, err := run(ctx, "hyprctl", "-j", "clients")
	if err != nil {
		return nil, err
	}

	var clients []client
	if err := json.Unmarshal(output, &clients); err != nil {
		return nil, fmt.Errorf("decode hyprctl clients json: %w", err)
	}
	for i := range clients {
		clients[i].Address = strings.TrimSpace(clients[i].Address)
		clients[i].Class = strings.TrimSpace(clients[i].Class)
		clients[i].Title = strings.TrimSpace(clients[i].Title)
	}
	return clients, nil
}

// windowID parses a Hyprland address such as "0x55d1c2a0".
func windowID(address string) (int64, bool) {
	trimmed := strings.TrimPrefix(strings.ToLower(address), "0x")
	if trimmed == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(trimmed, 16, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

func (c client) geometry() string {
	return fmt.Sprintf("%d,%d %dx%d", c.At[0], c.At[1], c.Size[0], c.Size[1])
}
