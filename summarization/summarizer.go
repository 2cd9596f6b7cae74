package summarization

import (
	"context"
	"errors"
	"fmt"
	"go-pulsemap/classifier"
	"go-pulsemap/types"
	"strings"
	"unicode/utf8"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

const maxPromptLength = 15000 // Rough character limit for prompt

var ErrNoAPIKey = errors.New("openai api key is not configured")

// Summarizer asks OpenAI for a short narrative of an incident thread.
type Summarizer struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

// New returns a Summarizer, or ErrNoAPIKey when apiKey is empty.
func New(apiKey, model string, logger *zap.Logger, opts ...func(*openai.ClientConfig)) (*Summarizer, error) {
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	cfg := openai.DefaultConfig(apiKey)
	for _, opt := range opts {
		opt(&cfg)
	}
	if model == "" {
		model = openai.GPT4oMini
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Summarizer{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		logger: logger.Named("summarizer"),
	}, nil
}

// SummarizeThread builds a prompt from the thread's incidents (oldest first) and their updates.
func (s *Summarizer) SummarizeThread(ctx context.Context, incidents []types.EnrichedIncident, updates []types.IncidentUpdate) (string, error) {
	if s == nil {
		return "", ErrNoAPIKey
	}
	if len(incidents) == 0 {
		return "", fmt.Errorf("thread has no incidents")
	}

	prompt := buildPrompt(incidents, updates)
	s.logger.Debug("Requesting thread summary",
		zap.String("thread_id", incidents[0].ThreadID),
		zap.Int("prompt_length", len(prompt)))

	resp, err := s.client.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Model: s.model,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleSystem,
					Content: "You are an assistant that summarizes police incident reports for a public map concisely and neutrally. Answer in Norwegian.",
				},
				{
					Role:    openai.ChatMessageRoleUser,
					Content: prompt,
				},
			},
			MaxTokens:   150,
			N:           1,
			Temperature: 0.3,
		},
	)
	if err != nil {
		return "", fmt.Errorf("openai chat completion error: %w", err)
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("openai returned empty response or choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func buildPrompt(incidents []types.EnrichedIncident, updates []types.IncidentUpdate) string {
	first := incidents[0]

	var b strings.Builder
	fmt.Fprintf(&b, "Category: %s\nLocation: %s, %s\n", first.Category, first.Location, first.District)
	fmt.Fprintf(&b, "Keywords: %s\n\nReports:\n", strings.Join(classifier.ExtractKeywords(first.RawIncident), ", "))
	for _, inc := range incidents {
		fmt.Fprintf(&b, "- %s %s: %s\n", inc.Published.Format("2006-01-02 15:04"), inc.Title, inc.Description)
	}
	if len(updates) > 0 {
		b.WriteString("\nUpdates:\n")
		for _, u := range updates {
			fmt.Fprintf(&b, "- %s: %s\n", u.Timestamp.Format("2006-01-02 15:04"), u.Description)
		}
	}

	body := truncate(b.String(), maxPromptLength)
	return "Summarize the following police reports about one incident. Focus on what happened, where, and the current situation. Provide a concise summary (2-3 sentences maximum):\n\n---\n" +
		body + "---\n\nSummary:"
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
