package agent

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/pflag"
)

// RunnerArgs are the runner flags the worker reads from its forwarded argv.
type RunnerArgs struct {
	Transport string
	Host      string
	Port      int
}

// ParseArgs reads --transport/-t, -d, --host, and --port. Unknown flags are
// ignored because the worker sees the supervisor's full invocation.
func ParseArgs(args []string, defaults RunnerArgs) (RunnerArgs, error) {
	fs := pflag.NewFlagSet("voxmcp worker", pflag.ContinueOnError)
	fs.ParseErrorsAllowlist = pflag.ParseErrorsAllowlist{UnknownFlags: true}
	fs.SetOutput(io.Discard)

	out := defaults
	fs.StringVarP(&out.Transport, "transport", "t", defaults.Transport, "media transport")
	daily := fs.BoolP("daily", "d", false, "shorthand for --transport daily")
	fs.StringVar(&out.Host, "host", defaults.Host, "runner HTTP host")
	fs.IntVar(&out.Port, "port", defaults.Port, "runner HTTP port")
	fs.String("config", "", "config path (read by the supervisor)")

	if err := fs.Parse(args); err != nil {
		return RunnerArgs{}, fmt.Errorf("parse worker args: %w", err)
	}
	if *daily && !fs.Changed("transport") {
		out.Transport = "daily"
	}
	out.Transport = strings.ToLower(strings.TrimSpace(out.Transport))
	if out.Port <= 0 || out.Port > 65535 {
		return RunnerArgs{}, fmt.Errorf("invalid runner port %d", out.Port)
	}
	return out, nil
}

// Addr is host:port for the HTTP listener.
func (a RunnerArgs) Addr() string {
	return fmt.Sprintf("%s:%d", a.Host, a.Port)
}
