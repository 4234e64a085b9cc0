// Package bookinfo talks to an AI text-generation service for book metadata,
// discussion prompts and takeaway scoring. Every operation has a
// deterministic fallback so the bot keeps working when the service is
// unreachable or returns garbage.
package bookinfo

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// BookInfo is the structured metadata the model is asked to produce.
type BookInfo struct {
	Title          string   `json:"title"`
	Author         string   `json:"author"`
	Description    string   `json:"description"`
	Benefits       string   `json:"benefits"`
	Genre          string   `json:"genre"`
	Themes         []string `json:"themes"`
	TargetAudience string   `json:"target_audience"`
	KeyTakeaways   []string `json:"key_takeaways"`
}

// Client wraps the Anthropic API.
type Client struct {
	api    anthropic.Client
	model  anthropic.Model
	logger *slog.Logger
}

func NewClient(apiKey string, logger *slog.Logger) *Client {
	return &Client{
		api:    anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  anthropic.ModelClaudeSonnet4_0,
		logger: logger,
	}
}

// Lookup fetches structured metadata for a book. author may be empty.
func (c *Client) Lookup(ctx context.Context, title, author string) (*BookInfo, error) {
	query := title
	if author != "" {
		query = fmt.Sprintf("%s by %s", title, author)
	}

	prompt := fmt.Sprintf(`Please provide detailed information about the book "%s".

Please respond with a JSON object containing:
{
    "title": "exact book title",
    "author": "author name",
    "description": "brief 2-3 sentence description of the book",
    "benefits": "why this book is beneficial to read - focus on practical benefits, life lessons, and value for personal/professional growth",
    "genre": "book genre",
    "themes": ["list", "of", "main", "themes"],
    "target_audience": "who would benefit most from reading this book",
    "key_takeaways": ["3-4", "key", "takeaways", "readers", "can", "expect"]
}

Make sure the response is valid JSON and focuses on actionable benefits and insights readers can gain.`, query)

	text, err := c.complete(ctx, prompt, 1000, 0.3)
	if err != nil {
		return nil, fmt.Errorf("bookinfo: looking up %q: %w", query, err)
	}

	var info BookInfo
	if err := json.Unmarshal([]byte(stripCodeFence(text)), &info); err != nil {
		return nil, fmt.Errorf("bookinfo: decoding book info for %q: %w", query, err)
	}
	return &info, nil
}

// FallbackInfo is the canned answer used when Lookup fails.
func FallbackInfo(title, author string) *BookInfo {
	if author == "" {
		author = "Unknown Author"
	}
	return &BookInfo{
		Title:          title,
		Author:         author,
		Description:    "A great book that will provide valuable insights and knowledge.",
		Benefits:       "This book offers valuable lessons and perspectives that can enhance personal and professional growth.",
		Genre:          "Unknown",
		Themes:         []string{"Personal Growth", "Learning"},
		TargetAudience: "General readers",
		KeyTakeaways:   []string{"Gain new perspectives", "Learn practical skills", "Broaden knowledge base"},
	}
}

// DiscussionQuestions generates 3-5 questions about a book, optionally
// focused on a topic such as the current chapter.
func (c *Client) DiscussionQuestions(ctx context.Context, bookTitle, topic string) ([]string, error) {
	var prompt string
	if topic != "" {
		prompt = fmt.Sprintf(`Generate 3-5 thought-provoking discussion questions about "%s" from the book "%s". Focus on practical application and personal reflection.`, topic, bookTitle)
	} else {
		prompt = fmt.Sprintf(`Generate 3-5 thought-provoking discussion questions about the book "%s". Focus on key themes, practical applications, and personal reflections.`, bookTitle)
	}

	text, err := c.complete(ctx, prompt, 500, 0.7)
	if err != nil {
		return nil, fmt.Errorf("bookinfo: generating discussion questions: %w", err)
	}

	var questions []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			questions = append(questions, line)
		}
	}
	return questions, nil
}

// DefaultQuestions is the fallback when question generation fails.
func DefaultQuestions() []string {
	return []string{
		"What was the most impactful lesson you learned from this reading?",
		"How can you apply the concepts from this book to your daily life?",
		"What surprised you most about the author's perspective?",
	}
}

// ScoreTakeaway rates a takeaway on the same 1-10 scale as the basic
// scorer. It satisfies the tracker's Scorer interface; any error here makes
// the tracker fall back to deterministic scoring.
func (c *Client) ScoreTakeaway(ctx context.Context, content string) (int, error) {
	prompt := fmt.Sprintf(`Analyze this book takeaway and assign an engagement score from 1-10 based on depth, insight, and thoughtfulness:

User Takeaway: "%s"

Consider:
- Depth of reflection (1-3 points)
- Personal application/connection (1-3 points)
- Insightfulness and original thinking (1-2 points)
- Length and effort put into the response (1-2 points)

Respond with just a number from 1-10.`, content)

	text, err := c.complete(ctx, prompt, 50, 0.1)
	if err != nil {
		return 0, fmt.Errorf("bookinfo: scoring takeaway: %w", err)
	}

	score, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil {
		return 0, fmt.Errorf("bookinfo: unparseable score %q", text)
	}
	if score < 1 {
		score = 1
	}
	if score > 10 {
		score = 10
	}
	return score, nil
}

// SuggestReadingGoals asks for a weekly reading plan. pages may be 0.
func (c *Client) SuggestReadingGoals(ctx context.Context, bookTitle string, pages int) (string, error) {
	lengthContext := ""
	if pages > 0 {
		lengthContext = fmt.Sprintf(" (approximately %d pages)", pages)
	}
	prompt := fmt.Sprintf(`Suggest weekly reading goals and milestones for the book "%s"%s. Keep it practical: 3-4 short bullet points a busy reader can follow.`, bookTitle, lengthContext)

	text, err := c.complete(ctx, prompt, 400, 0.5)
	if err != nil {
		return "", fmt.Errorf("bookinfo: suggesting reading goals: %w", err)
	}
	return strings.TrimSpace(text), nil
}

// complete sends a single-turn prompt and returns the first text block.
func (c *Client) complete(ctx context.Context, prompt string, maxTokens int64, temperature float64) (string, error) {
	msg, err := c.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       c.model,
		MaxTokens:   maxTokens,
		Temperature: anthropic.Float(temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", err
	}

	for _, block := range msg.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", fmt.Errorf("response contained no text")
}

// stripCodeFence unwraps ```json ... ``` markers models sometimes add
// around JSON answers.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
