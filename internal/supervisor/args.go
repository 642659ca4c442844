package supervisor

import (
	"slices"
	"strings"
)

// DefaultTransport is used when TRANSPORT is unset.
const DefaultTransport = "webrtc"

// ForwardedArgs appends the transport selector to the supervisor's own
// arguments unless the caller already chose one.
func ForwardedArgs(argv []string, transport string) []string {
	out := append([]string(nil), argv...)

	transport = strings.TrimSpace(transport)
	if transport == "" {
		transport = DefaultTransport
	}

	if transport == "daily" {
		if !slices.Contains(out, "--transport") && !slices.Contains(out, "-d") {
			out = append(out, "-d")
		}
		return out
	}

	if !slices.Contains(out, "--transport") {
		out = append(out, "--transport", transport)
	}
	return out
}
