package engagement

import (
	"regexp"
	"unicode/utf8"
)

// MaxQualityScore caps the quality scale.
const MaxQualityScore = 10

// lengthTiers award a point each time the message crosses a size threshold.
var lengthTiers = []int{50, 100, 200, 300}

// qualityPatterns are independent signal families. Each family that matches
// contributes one point, no matter how many times it matches.
var qualityPatterns = []*regexp.Regexp{
	// Connectives suggest structured reasoning.
	regexp.MustCompile(`(?i)\b(because|since|therefore|however|although|while|moreover|furthermore)\b`),
	// Concrete examples ground the takeaway.
	regexp.MustCompile(`(?i)\b(example|instance|experience|situation|case)\b`),
	// Learning vocabulary.
	regexp.MustCompile(`(?i)\b(learn|understand|realize|discover|insight|perspective)\b`),
	// Applying the material.
	regexp.MustCompile(`(?i)\b(apply|implement|use|practice|try)\b`),
	// More than one sentence.
	regexp.MustCompile(`[.!?].*[.!?]`),
	// Quoting the book.
	regexp.MustCompile(`["'].*["']`),
}

// personalReflectionPatterns earn a flat bonus: first-person engagement is
// the strongest quality signal regardless of which lexical families hit.
var personalReflectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(i think|i believe|i feel|my opinion|personally)\b`),
	regexp.MustCompile(`(?i)\b(this reminds me|this makes me think|i realized|i noticed)\b`),
	regexp.MustCompile(`(?i)\b(in my experience|from my perspective|i've found)\b`),
}

// ScoreQuality rates a message on a 1..10 scale. It is a pure function of
// the text: one base point, one per length tier crossed, one per lexical
// pattern family matched, plus two if the message reads as a personal
// reflection, clamped to MaxQualityScore.
func ScoreQuality(content string) int {
	score := 1

	length := utf8.RuneCountInString(content)
	for _, tier := range lengthTiers {
		if length > tier {
			score++
		}
	}

	for _, re := range qualityPatterns {
		if re.MatchString(content) {
			score++
		}
	}

	for _, re := range personalReflectionPatterns {
		if re.MatchString(content) {
			score += 2
			break
		}
	}

	if score > MaxQualityScore {
		score = MaxQualityScore
	}
	return score
}
