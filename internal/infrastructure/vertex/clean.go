package vertex

import (
	"regexp"
	"strings"
)

// Metadata the model echoes back into its own answer text.
var (
	trailingMetadataPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\{"type"\s*:\s*"metadata".*$`),
		regexp.MustCompile(`\{"sessionId"\s*:\s*"[^"]*".*"relatedQuestions".*$`),
		regexp.MustCompile(`\{"sessionId"\s*:\s*"[0-9]+".*$`),
	}
	numericSessionPattern = regexp.MustCompile(`\{"sessionId"\s*:\s*"[0-9]+"`)
)

const literalMetadataMarker = `{"type":"metadata"`

// CleanAnswerText cuts embedded metadata JSON off the end of a final answer.
// Only complete answers should be cleaned; streamed prefixes are left alone.
func CleanAnswerText(text string) string {
	if text == "" {
		return text
	}

	for _, re := range trailingMetadataPatterns {
		if loc := re.FindStringIndex(text); loc != nil {
			text = text[:loc[0]]
			break
		}
	}
	if i := strings.Index(text, literalMetadataMarker); i >= 0 {
		text = text[:i]
	}
	if loc := numericSessionPattern.FindStringIndex(text); loc != nil {
		text = text[:loc[0]]
	}
	return text
}
