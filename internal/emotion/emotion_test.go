package emotion

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestStrip(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "[cheerful] Hello there", want: "Hello there"},
		{in: "Well <sigh> okay", want: "Well okay"},
		{in: "[WHISPER]  quiet <Laugh>  now", want: "quiet now"},
		{in: "[angry] stays", want: "[angry] stays"},
		{in: "  plain  ", want: "plain"},
	}
	for _, tc := range tests {
		require.Equal(t, tc.want, Strip(tc.in), tc.in)
	}
}

func TestToCartesia(t *testing.T) {
	require.Equal(t, `<emotion value="happy"/>Hello`, ToCartesia("[cheerful] Hello"))
	require.Equal(t, `<emotion value="calm"/>psst`, ToCartesia("[Whisper] psst"))
	require.Equal(t, `Sure <emotion value="sad"/>fine`, ToCartesia("Sure <sigh> [sad] fine"))
}

func TestForPreset(t *testing.T) {
	text := "[excited] We did it <laugh>"
	require.Equal(t, text, ForPreset(text, "groq"))
	require.Equal(t, `<emotion value="excited"/>We did it`, ForPreset(text, "cartesia"))
	require.Equal(t, "We did it", ForPreset(text, "deepgram"))
	require.Equal(t, "We did it", ForPreset(text, "kokoro"))
}

func TestStripRemovesAllKnownTagsProperty(t *testing.T) {
	tags := []string{"[cheerful]", "[whisper]", "[excited]", "[sad]", "[calm]", "<laugh>", "<chuckle>", "<sigh>", "<gasp>", "<yawn>", "<groan>", "<cough>", "<sniffle>"}
	rapid.Check(t, func(t *rapid.T) {
		words := rapid.SliceOfN(rapid.StringMatching(`[a-z]{1,8}`), 0, 6).Draw(t, "words")
		var b strings.Builder
		for _, word := range words {
			if rapid.Bool().Draw(t, "tag") {
				b.WriteString(rapid.SampledFrom(tags).Draw(t, "which"))
				b.WriteString(" ")
			}
			b.WriteString(word)
			b.WriteString(" ")
		}

		out := Strip(b.String())
		require.Equal(t, strings.Join(words, " "), out)
		require.Equal(t, out, Strip(out))
	})
}
