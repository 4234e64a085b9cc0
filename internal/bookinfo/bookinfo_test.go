package bookinfo

import "testing"

func TestFallbackInfo(t *testing.T) {
	info := FallbackInfo("Deep Work", "Cal Newport")
	if info.Title != "Deep Work" || info.Author != "Cal Newport" {
		t.Errorf("FallbackInfo() = %+v", info)
	}
	if info.Description == "" || info.Benefits == "" {
		t.Error("fallback is missing description or benefits")
	}
}

func TestFallbackInfoUnknownAuthor(t *testing.T) {
	info := FallbackInfo("Deep Work", "")
	if info.Author != "Unknown Author" {
		t.Errorf("Author = %q, want %q", info.Author, "Unknown Author")
	}
}

func TestDefaultQuestions(t *testing.T) {
	questions := DefaultQuestions()
	if len(questions) != 3 {
		t.Fatalf("got %d questions, want 3", len(questions))
	}
	for i, q := range questions {
		if q == "" {
			t.Errorf("question %d is empty", i)
		}
	}
}

func TestStripCodeFence(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain json", `{"title":"x"}`, `{"title":"x"}`},
		{"json fence", "```json\n{\"title\":\"x\"}\n```", `{"title":"x"}`},
		{"bare fence", "```\n{\"title\":\"x\"}\n```", `{"title":"x"}`},
		{"surrounding whitespace", "  {\"title\":\"x\"}  ", `{"title":"x"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := stripCodeFence(tt.in); got != tt.want {
				t.Errorf("stripCodeFence(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
