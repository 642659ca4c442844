// Package audio handles Pulse device discovery, capture, playback, listening cues,
// and utterance segmentation.
package audio

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jfreymuth/pulse"
	pulseproto "github.com/jfreymuth/pulse/proto"
)

const clientName = "voxmcp"

// ErrNoDevices is returned when the server reports no input sources.
var ErrNoDevices = errors.New("no audio input devices found")

func newClient(icon string) (*pulse.Client, error) {
	client, err := pulse.NewClient(
		pulse.ClientApplicationName(clientName),
		pulse.ClientApplicationIconName(icon),
	)
	if err != nil {
		return nil, fmt.Errorf("connect pulse server: %w", err)
	}
	return client, nil
}

// Device describes one Pulse input source.
type Device struct {
	ID          string
	Description string
	State       string
	Available   bool
	Muted       bool
	Default     bool
}

// problem names why d cannot record, or "" when it can.
func (d Device) problem() string {
	switch {
	case d.Muted:
		return "muted"
	case !d.Available:
		return "unavailable"
	default:
		return ""
	}
}

// matches compares a lowercase search term against id and description.
func (d Device) matches(term string) bool {
	return strings.Contains(strings.ToLower(d.ID), term) ||
		strings.Contains(strings.ToLower(d.Description), term)
}

// Selection is the source to record from. Warning is set when the fallback
// replaced the preferred input.
type Selection struct {
	Device   Device
	Warning  string
	Fallback bool
}

// ListDevices returns the server's input sources.
func ListDevices(_ context.Context) ([]Device, error) {
	client, err := newClient("audio-input-microphone")
	if err != nil {
		return nil, err
	}
	defer client.Close()

	defaultSource, err := client.DefaultSource()
	if err != nil {
		return nil, fmt.Errorf("read default source: %w", err)
	}

	var reply pulseproto.GetSourceInfoListReply
	if err := client.RawRequest(&pulseproto.GetSourceInfoList{}, &reply); err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}

	devices := make([]Device, 0, len(reply))
	for _, source := range reply {
		if source == nil {
			continue
		}
		devices = append(devices, deviceFromSource(source, defaultSource.ID()))
	}
	return devices, nil
}

func deviceFromSource(source *pulseproto.GetSourceInfoReply, defaultID string) Device {
	return Device{
		ID:          source.SourceName,
		Description: source.Device,
		State:       sourceState(source.State),
		Available:   activePortAvailable(source),
		Muted:       source.Mute,
		Default:     source.SourceName == defaultID,
	}
}

// Preference is the configured audio.input and audio.fallback pair. Empty or
// "default" names the server's default source; anything else is a substring
// of a device id or description.
type Preference struct {
	Input    string
	Fallback string
}

// SelectDevice lists live sources and applies Preference{input, fallback}.
func SelectDevice(ctx context.Context, input string, fallback string) (Selection, error) {
	devices, err := ListDevices(ctx)
	if err != nil {
		return Selection{}, err
	}
	return Preference{Input: input, Fallback: fallback}.Select(devices)
}

// Select picks the input, or the fallback when the input is muted or
// unavailable. A fallback that cannot record either is an error.
func (p Preference) Select(devices []Device) (Selection, error) {
	if len(devices) == 0 {
		return Selection{}, ErrNoDevices
	}

	primary, err := resolveDevice(devices, p.Input, "audio.input")
	if err != nil {
		return Selection{}, err
	}
	reason := primary.problem()
	if reason == "" {
		return Selection{Device: primary}, nil
	}

	backup, err := resolveDevice(devices, p.Fallback, "audio.fallback")
	if err != nil {
		return Selection{}, fmt.Errorf("audio.input %q is %s and no usable fallback: %w", primary.ID, reason, err)
	}
	if why := backup.problem(); why != "" {
		return Selection{}, fmt.Errorf("audio fallback device %q is %s", backup.ID, why)
	}

	return Selection{
		Device:   backup,
		Warning:  fmt.Sprintf("audio.input %q is %s; falling back to %q", primary.ID, reason, backup.ID),
		Fallback: primary.ID != backup.ID,
	}, nil
}

func resolveDevice(devices []Device, name string, setting string) (Device, error) {
	term := strings.ToLower(strings.TrimSpace(name))
	wantDefault := term == "" || term == "default"

	for _, d := range devices {
		if wantDefault && d.Default {
			return d, nil
		}
		if !wantDefault && d.matches(term) {
			return d, nil
		}
	}
	if wantDefault {
		return Device{}, errors.New("default audio source is unavailable")
	}
	return Device{}, fmt.Errorf("%s %q did not match any device", setting, term)
}

var sourceStates = map[uint32]string{0: "running", 1: "idle", 2: "suspended"}

func sourceState(state uint32) string {
	if name, ok := sourceStates[state]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", state)
}

// activePortAvailable treats a source without ports as available. Pulse port
// availability is unknown=0, no=1, yes=2.
func activePortAvailable(source *pulseproto.GetSourceInfoReply) bool {
	if source == nil {
		return false
	}
	for _, port := range source.Ports {
		if port.Name == source.ActivePortName {
			return port.Available != 1
		}
	}
	return true
}
