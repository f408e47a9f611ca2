// Package hangul provides phonetic-initial (초성) shorthand expansion.
// Caregivers frequently answer with consonant-only tokens ("ㅇㅇ",
// "ㅇㅋ"); every inbound utterance is normalized through ExpandInitials
// before the state machine looks at it.
package hangul

import "strings"

// Shorthand tokens mapped to their conventional full forms. Longer
// tokens are matched before their prefixes.
var initialExpansions = []struct {
	token string
	full  string
}{
	{"ㅇㅇㅇ", "응응"},
	{"ㅇㅇ", "응"},
	{"ㅇㅋ", "오케이"},
	{"ㄱㄹ", "그래"},
	{"ㄱㅊ", "괜찮아"},
	{"ㄴㄴ", "아니"},
	{"ㄱㅅ", "감사해요"},
	{"ㅅㄱ", "수고했어요"},
	{"ㅇ", "응"},
	{"ㄴ", "아니"},
}

// ExpandInitials rewrites whitespace-separated shorthand tokens to
// their full forms. Tokens containing regular syllables are left
// untouched, so mixed answers like "ㅇㅇ 기침도 해요" expand only the
// shorthand part.
func ExpandInitials(utterance string) string {
	fields := strings.Fields(utterance)
	if len(fields) == 0 {
		return utterance
	}

	changed := false
	for i, tok := range fields {
		if !isInitialsOnly(tok) {
			continue
		}
		for _, e := range initialExpansions {
			if tok == e.token {
				fields[i] = e.full
				changed = true
				break
			}
		}
	}

	if !changed {
		return utterance
	}
	return strings.Join(fields, " ")
}

// isInitialsOnly reports whether every rune is a compatibility jamo
// consonant (U+3131..U+314E).
func isInitialsOnly(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < 0x3131 || r > 0x314E {
			return false
		}
	}
	return true
}
