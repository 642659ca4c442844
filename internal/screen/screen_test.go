package screen

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const clientsJSON = `[
  {"address":"0x1a","mapped":true,"hidden":false,"at":[10,20],"size":[800,600],"class":" kitty ","title":" shell "},
  {"address":"0x2b","mapped":false,"hidden":false,"at":[0,0],"size":[1,1],"class":"ghost","title":"unmapped"},
  {"address":"0x3c","mapped":true,"hidden":true,"at":[0,0],"size":[1,1],"class":"tray","title":"hidden"},
  {"address":"0x4d","mapped":true,"hidden":false,"at":[0,0],"size":[1,1],"class":"bar","title":""},
  {"address":"0xff","mapped":true,"hidden":false,"at":[100,0],"size":[1920,1080],"class":"firefox","title":"Docs"}
]`

func TestListWindowsFiltersAndParsesIDs(t *testing.T) {
	installStub(t, "hyprctl", `
if [[ "${1:-}" == "-j" && "${2:-}" == "clients" ]]; then
  cat <<'JSON'
`+clientsJSON+`
JSON
  exit 0
fi
exit 1
`)

	windows, err := New(Options{}).ListWindows(context.Background())
	require.NoError(t, err)
	require.Equal(t, []Window{
		{Title: "shell", AppName: "kitty", WindowID: 0x1a},
		{Title: "Docs", AppName: "firefox", WindowID: 0xff},
	}, windows)
}

func TestListWindowsSurfacesHyprctlFailure(t *testing.T) {
	installStub(t, "hyprctl", `
echo 'HYPRLAND_INSTANCE_SIGNATURE not set' >&2
exit 1
`)

	_, err := New(Options{}).ListWindows(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "HYPRLAND_INSTANCE_SIGNATURE")
}

func TestCaptureRequiresSelect(t *testing.T) {
	_, err := New(Options{}).Capture(context.Background())
	require.ErrorIs(t, err, ErrNoCapture)
}

func TestSelectAndCaptureWindowGeometry(t *testing.T) {
	argsFile := filepath.Join(t.TempDir(), "grim-args.log")
	t.Setenv("GRIM_ARGS_FILE", argsFile)
	installStub(t, "hyprctl", "cat <<'JSON'\n"+clientsJSON+"\nJSON\n")
	installStub(t, "grim", `
printf '%s\n' "$*" >> "${GRIM_ARGS_FILE}"
for last; do true; done
printf 'png' > "$last"
`)

	dir := t.TempDir()
	backend := New(Options{Dir: dir, CaptureArgv: []string{"grim", "-t", "png"}})

	id := int64(0xff)
	selected, err := backend.Select(context.Background(), &id)
	require.NoError(t, err)
	require.NotNil(t, selected)
	require.Equal(t, id, *selected)

	path, err := backend.Capture(context.Background())
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(path, dir))
	require.True(t, strings.HasSuffix(path, ".png"))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "png", string(data))

	full, err := backend.Select(context.Background(), nil)
	require.NoError(t, err)
	require.Nil(t, full)
	_, err = backend.Capture(context.Background())
	require.NoError(t, err)

	logged, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(logged)), "\n")
	require.Len(t, lines, 2)
	require.True(t, strings.HasPrefix(lines[0], "-t png -g 100,0 1920x1080 "+dir))
	require.True(t, strings.HasPrefix(lines[1], "-t png "+dir))
}

func TestSelectUnknownWindowFallsBackToFullScreen(t *testing.T) {
	installStub(t, "hyprctl", "cat <<'JSON'\n"+clientsJSON+"\nJSON\n")

	id := int64(12345)
	selected, err := New(Options{}).Select(context.Background(), &id)
	require.NoError(t, err)
	require.Nil(t, selected)
}

func TestCaptureFailureRemovesFile(t *testing.T) {
	installStub(t, "grim", "echo 'no wayland display' >&2\nexit 1\n")
	dir := t.TempDir()
	backend := New(Options{Dir: dir})
	_, err := backend.Select(context.Background(), nil)
	require.NoError(t, err)

	_, err = backend.Capture(context.Background())
	require.ErrorContains(t, err, "no wayland display")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestWindowID(t *testing.T) {
	id, ok := windowID("0x55D1C2A0")
	require.True(t, ok)
	require.Equal(t, int64(0x55d1c2a0), id)

	_, ok = windowID("")
	require.False(t, ok)
	_, ok = windowID("0xnothex")
	require.False(t, ok)
}

func installStub(t *testing.T, name string, body string) {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, name)
	script := "#!/usr/bin/env bash\nset -euo pipefail\n" + body + "\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	t.Setenv("PATH", dir+":"+os.Getenv("PATH"))
}
