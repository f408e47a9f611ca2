package dialog

import "strings"

// Phrase lists drive the keyword legs of the state machine. Matching is
// substring-based on the initials-expanded utterance, except the 초성
// shorthand tokens, which are matched against the raw utterance.

var terminationPhrases = []string{
	"종료", "그만", "끝", "됐어", "이제 괜찮아", "아니요, 종료할게요",
}

var affirmativePhrases = []string{
	"네", "응", "맞아", "좋아", "해주세요", "분석", "예", "추가할 내용이 있어요",
}

var affirmativeShortTokens = []string{"응", "응응", "오케이", "그래", "괜찮아"}

var affirmativeInitials = []string{"ㅇ", "ㅇㅇ", "ㅇㅋ", "ㄱㄹ", "ㄱㅊ"}

// isAffirmative reports whether the utterance agrees to a proposal.
// raw is the utterance as received, converted its initials-expanded form.
func isAffirmative(raw, converted string) bool {
	for _, phrase := range affirmativePhrases {
		if strings.Contains(converted, phrase) {
			return true
		}
	}
	for _, token := range affirmativeShortTokens {
		if strings.Contains(converted, token) {
			return true
		}
	}
	for _, token := range affirmativeInitials {
		if strings.Contains(raw, token) {
			return true
		}
	}
	return false
}

// isTermination reports whether the utterance asks to end the
// consultation.
func isTermination(utterance string) bool {
	for _, phrase := range terminationPhrases {
		if strings.Contains(utterance, phrase) {
			return true
		}
	}
	return false
}

// isReset reports whether the utterance is one of the reset buttons.
// These match exactly: they arrive as quick-reply payloads, not typed
// text.
func isReset(utterance string) bool {
	return utterance == "다시 검사하기" || utterance == "처음으로"
}

// wantsAnalysis reports whether the utterance explicitly requests the
// analysis run.
func wantsAnalysis(converted string) bool {
	return strings.Contains(converted, "분석해") || strings.Contains(converted, "결과")
}
