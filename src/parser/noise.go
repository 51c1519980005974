package parser

import (
	"strings"
	"unicode"

	"signalexecutor/src/rules"
)

// LooksLikeNoise is the cheap filter that decides whether a message that tier 1
// could not parse is worth a fallback-service call. It exists specifically to
// avoid paying for extraction on greetings, promotions and emoji spam.
func LooksLikeNoise(text string, cfg rules.Noise) bool {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return true
	}

	if len(strings.Fields(trimmed)) < cfg.MinWords {
		return true
	}

	lower := strings.ToLower(trimmed)
	for _, kw := range cfg.Keywords {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}

	// Pure emoji/number/punctuation content carries no extractable trade.
	if !hasLetter(trimmed) {
		return true
	}

	return false
}

func hasLetter(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) && r < unicode.MaxASCII {
			return true
		}
	}
	return false
}
