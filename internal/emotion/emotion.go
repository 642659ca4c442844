// Package emotion rewrites expressive speech markup for the active TTS engine.
package emotion

import (
	"regexp"
	"strings"
)

var (
	bracketTag = regexp.MustCompile(`(?i)\[(cheerful|whisper|excited|sad|calm)\]\s*`)
	soundTag   = regexp.MustCompile(`(?i)<(?:laugh|chuckle|sigh|gasp|yawn|groan|cough|sniffle)>\s*`)
)

// Cartesia has no whisper; calm is the nearest.
var cartesiaEmotion = map[string]string{
	"cheerful": "happy",
	"whisper":  "calm",
	"excited":  "excited",
	"sad":      "sad",
	"calm":     "calm",
}

// Strip removes bracket directions and sound tags.
func Strip(text string) string {
	text = bracketTag.ReplaceAllString(text, "")
	text = soundTag.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// ToCartesia turns bracket directions into <emotion value="..."/> tags and drops
// sound tags, which Cartesia cannot produce.
func ToCartesia(text string) string {
	text = bracketTag.ReplaceAllStringFunc(text, func(match string) string {
		sub := bracketTag.FindStringSubmatch(match)
		if len(sub) < 2 {
			return ""
		}
		value, ok := cartesiaEmotion[strings.ToLower(sub[1])]
		if !ok {
			return ""
		}
		return `<emotion value="` + value + `"/>`
	})
	text = soundTag.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// ForPreset rewrites text for the named preset: groq passes markup through,
// cartesia converts it, everything else strips it.
func ForPreset(text string, preset string) string {
	switch strings.ToLower(strings.TrimSpace(preset)) {
	case "groq":
		return text
	case "cartesia":
		return ToCartesia(text)
	default:
		return Strip(text)
	}
}
