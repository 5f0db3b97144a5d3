package optimizer

import (
	"regexp"
	"strconv"
	"strings"
)

var answerPattern = regexp.MustCompile(`-?\d[\d,]*(?:\.\d+)?`)

// ExtractInstruction returns the first InstructionStart/InstructionEnd
// span in text, trimmed. When no complete span exists the whole text is
// returned trimmed and the second result is false, so the caller can log
// the degraded extraction.
func ExtractInstruction(text string) (string, bool) {
	if start := strings.Index(text, InstructionStart); start >= 0 {
		rest := text[start+len(InstructionStart):]
		if end := strings.Index(rest, InstructionEnd); end >= 0 {
			return strings.TrimSpace(rest[:end]), true
		}
	}
	return strings.TrimSpace(text), false
}

// ParseAnswer extracts the final numeric value from an evaluation
// response. Models tend to restate given numbers before concluding, so
// the last number wins. Digit-group commas ("1,234") are stripped before
// parsing. The second result is false when the text holds no number at
// all, which callers treat as an incorrect answer rather than a failure.
func ParseAnswer(text string) (float64, bool) {
	matches := answerPattern.FindAllString(text, -1)
	for i := len(matches) - 1; i >= 0; i-- {
		raw := strings.ReplaceAll(matches[i], ",", "")
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			continue
		}
		return v, true
	}
	return 0, false
}
