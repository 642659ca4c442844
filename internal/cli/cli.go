// Package cli parses the voxmcp command line.
package cli

import (
	"errors"
	"fmt"
	"strings"
)

type Command string

const (
	CommandServe   Command = "serve"
	CommandWorker  Command = "worker"
	CommandDoctor  Command = "doctor"
	CommandPorts   Command = "ports"
	CommandDevices Command = "devices"
	CommandWindows Command = "windows"
	CommandVersion Command = "version"
	CommandHelp    Command = "help"
)

var validCommands = map[Command]struct{}{
	CommandServe:   {},
	CommandWorker:  {},
	CommandDoctor:  {},
	CommandPorts:   {},
	CommandDevices: {},
	CommandWindows: {},
	CommandVersion: {},
	CommandHelp:    {},
}

type Parsed struct {
	Command    Command
	ConfigPath string
	Transport  string
	Daily      bool
	ShowHelp   bool
	// WorkerArgs is everything after "--" for the worker command.
	WorkerArgs []string
}

// EffectiveTransport resolves the transport flags over fallback (config/env).
// -d wins only when --transport was not given.
func (p Parsed) EffectiveTransport(fallback string) string {
	switch {
	case p.Transport != "":
		return strings.ToLower(p.Transport)
	case p.Daily:
		return "daily"
	default:
		return strings.ToLower(strings.TrimSpace(fallback))
	}
}

func Parse(args []string) (Parsed, error) {
	parsed := Parsed{Command: CommandServe}
	commandSet := false

	for i := 0; i < len(args); i++ {
		arg := args[i]

		switch arg {
		case "-h", "--help":
			parsed.ShowHelp = true
			parsed.Command = CommandHelp
			commandSet = true
		case "--version":
			parsed.Command = CommandVersion
			commandSet = true
		case "--config":
			i++
			if i >= len(args) {
				return Parsed{}, errors.New("--config requires a path")
			}
			parsed.ConfigPath = args[i]
		case "--transport", "-t":
			i++
			if i >= len(args) || strings.TrimSpace(args[i]) == "" {
				return Parsed{}, fmt.Errorf("%s requires a name", arg)
			}
			parsed.Transport = strings.TrimSpace(args[i])
		case "-d":
			parsed.Daily = true
		case "--":
			if parsed.Command != CommandWorker {
				return Parsed{}, errors.New(`"--" is only valid after the worker command`)
			}
			parsed.WorkerArgs = append([]string{}, args[i+1:]...)
			return parsed, nil
		default:
			if strings.HasPrefix(arg, "-") {
				return Parsed{}, fmt.Errorf("unknown flag: %s", arg)
			}

			cmd := Command(arg)
			if _, ok := validCommands[cmd]; !ok {
				return Parsed{}, fmt.Errorf("unknown command: %s", arg)
			}
			if commandSet {
				return Parsed{}, fmt.Errorf("unexpected argument %q after command %q", arg, parsed.Command)
			}

			parsed.Command = cmd
			parsed.ShowHelp = cmd == CommandHelp
			commandSet = true
		}
	}

	if parsed.Command == CommandWorker && parsed.WorkerArgs == nil {
		return Parsed{}, errors.New(`worker requires "--" followed by the forwarded arguments`)
	}
	return parsed, nil
}

func HelpText(binaryName string) string {
	return fmt.Sprintf(`Usage:
  %[1]s [--config PATH] [--transport NAME | -d] [command]

Commands:
  serve     Run the MCP server on stdio (default)
  doctor    Run configuration and environment checks
  ports     Show who holds the runner port and any stale servers
  devices   List available input devices
  windows   List windows visible to screen capture
  version   Print version information
  help      Show this help

Flags:
  --config PATH      Config file path (default: $XDG_CONFIG_HOME/voxmcp/config.jsonc)
  --transport NAME   Media transport for the voice agent (default: $TRANSPORT or webrtc)
  -d                 Shorthand for --transport daily
  -h, --help         Show help
  --version          Show version
`, binaryName)
}
