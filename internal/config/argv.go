package config

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

var errDanglingBackslash = errors.New("command ends with a lone backslash")

// parseCommand splits a shell-style command line into a CommandConfig.
//
// Single quotes are literal. Inside double quotes a backslash only escapes
// '"' and '\'. A quoted empty string survives as an empty argument. A line
// starting with '#' is treated as unset.
func parseCommand(raw string) (CommandConfig, error) {
	line := strings.TrimSpace(raw)
	if line == "" || line[0] == '#' {
		return CommandConfig{Raw: raw}, nil
	}

	var (
		argv    []string
		word    strings.Builder
		inWord  bool
		quote   rune
		escaped bool
	)

	for _, r := range line {
		if escaped {
			if quote == '"' && r != '"' && r != '\\' {
				word.WriteRune('\\')
			}
			word.WriteRune(r)
			escaped = false
			continue
		}

		switch {
		case quote == '\'':
			if r == '\'' {
				quote = 0
			} else {
				word.WriteRune(r)
			}
		case r == '\\' && quote != '\'':
			escaped = true
			inWord = true
		case quote == '"':
			if r == '"' {
				quote = 0
			} else {
				word.WriteRune(r)
			}
		case r == '\'' || r == '"':
			quote = r
			inWord = true
		case unicode.IsSpace(r):
			if inWord {
				argv = append(argv, word.String())
				word.Reset()
				inWord = false
			}
		default:
			word.WriteRune(r)
			inWord = true
		}
	}

	switch {
	case escaped:
		return CommandConfig{}, errDanglingBackslash
	case quote != 0:
		return CommandConfig{}, fmt.Errorf("command has an unclosed %c quote", quote)
	}
	if inWord {
		argv = append(argv, word.String())
	}
	return CommandConfig{Raw: raw, Argv: argv}, nil
}

// defaultCommand parses a built-in command line that is known to be valid.
func defaultCommand(raw string) CommandConfig {
	cmd, err := parseCommand(raw)
	if err != nil {
		panic(fmt.Sprintf("built-in command %q: %v", raw, err))
	}
	return cmd
}
