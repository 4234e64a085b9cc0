// Package engagement implements the message scoring pipeline: content
// classification, quality scoring and the points engine that turns accepted
// messages into counter updates.
package engagement

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// MinEligibleLength is the minimum trimmed length, in characters, for a
// message to be considered at all.
const MinEligibleLength = 30

// bookKeywords is the topical vocabulary. A single case-insensitive substring
// hit marks the message as book-related.
var bookKeywords = []string{
	"takeaway", "learned", "insight", "chapter", "book", "reading",
	"author", "lesson", "thought", "reflection", "quote", "page",
	"concept", "idea", "philosophy", "principle", "theory",
	"understand", "realize", "discover", "apply", "implement",
}

// reflectionPatterns catch first-person engagement with the material even
// when no topical keyword appears.
var reflectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(i think|i believe|i feel|my opinion|in my view)\b`),
	regexp.MustCompile(`(?i)\b(this reminds me|this makes me think|i realized)\b`),
	regexp.MustCompile(`(?i)\b(the author|the writer|the book says|according to)\b`),
	regexp.MustCompile(`(?i)\b(key takeaway|main point|important lesson)\b`),
}

// IsEligible reports whether a message qualifies as book-club engagement:
// long enough to carry substance, and either using topical vocabulary or
// phrased as a personal reflection. Short acknowledgements ("lol", "nice")
// fail the length gate before any pattern runs.
func IsEligible(content string) bool {
	trimmed := strings.TrimSpace(content)
	if utf8.RuneCountInString(trimmed) < MinEligibleLength {
		return false
	}

	lower := strings.ToLower(trimmed)
	for _, kw := range bookKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}

	for _, re := range reflectionPatterns {
		if re.MatchString(trimmed) {
			return true
		}
	}

	return false
}
