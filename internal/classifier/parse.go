package classifier

import (
	"encoding/json"
	"regexp"
	"strings"
	"unicode/utf8"
)

// maxPreview is how many runes of a rejected reply are kept for diagnosis.
const maxPreview = 300

var codeFenceRegex = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*\\n?(.*?)\\n?```")

// extractJSON pulls the first JSON object out of a model reply. Models
// sometimes wrap the object in a code fence or add a sentence around it.
func extractJSON(text string) (string, bool) {
	s := strings.TrimSpace(text)
	if m := codeFenceRegex.FindStringSubmatch(s); m != nil {
		s = strings.TrimSpace(m[1])
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}

// decodeReply extracts and unmarshals the JSON object in text into v.
func decodeReply(text string, v any) error {
	raw, ok := extractJSON(text)
	if !ok {
		return &ClassificationError{Reason: ReasonMalformed, Raw: preview(text)}
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return &ClassificationError{Reason: ReasonMalformed, Raw: preview(text), Err: err}
	}
	return nil
}

func preview(s string) string {
	if utf8.RuneCountInString(s) <= maxPreview {
		return s
	}
	return string([]rune(s)[:maxPreview]) + "..."
}
