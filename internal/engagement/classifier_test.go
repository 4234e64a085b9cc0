package engagement

import "testing"

func TestIsEligibleLengthGate(t *testing.T) {
	// Below 30 characters nothing else matters.
	tests := []struct {
		name    string
		content string
	}{
		{"short acknowledgement", "lol"},
		{"short with keyword", "great book!"},
		{"short reflection", "i think so"},
		{"whitespace padding does not count", "   book   \n\t  "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if IsEligible(tt.content) {
				t.Errorf("IsEligible(%q) = true, want false", tt.content)
			}
		})
	}
}

func TestIsEligibleKeywords(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    bool
	}{
		{
			"keyword match",
			"The third chapter covers deliberate practice in detail and depth",
			true,
		},
		{
			"keyword is case-insensitive",
			"My biggest TAKEAWAY so far has been about consistency over time",
			true,
		},
		{
			"keyword inside a longer word still counts",
			"Rereading that section helped everything click for me today",
			true,
		},
		{
			"long but off-topic",
			"Anyone up for pizza on friday evening after the meeting is over?",
			false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsEligible(tt.content); got != tt.want {
				t.Errorf("IsEligible(%q) = %v, want %v", tt.content, got, tt.want)
			}
		})
	}
}

func TestIsEligibleReflectionPatterns(t *testing.T) {
	// No topical keyword in any of these; the reflection phrasing alone
	// qualifies them.
	tests := []string{
		"I think we should all slow down and savor each section more",
		"This reminds me of a talk on habits my sister gave last year",
		"According to that last passage, most of us mismanage our focus",
		"The main point was that small actions compound into big results",
	}
	for _, content := range tests {
		if !IsEligible(content) {
			t.Errorf("IsEligible(%q) = false, want true", content)
		}
	}
}

func TestIsEligibleUnicodeLength(t *testing.T) {
	// 30 multi-byte runes with a keyword: length is counted in characters,
	// not bytes.
	content := "本のチャプターを読んで学んだことを共有します。みなさんも読んでbook"
	if !IsEligible(content) {
		t.Errorf("IsEligible(%q) = false, want true", content)
	}
}
