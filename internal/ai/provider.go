package ai

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/kozaktomas/face-recall/internal/config"
	"github.com/kozaktomas/face-recall/internal/constants"
)

//go:embed prompts/summary_system.txt
var summarySystemPrompt string

//go:embed prompts/summary_user.txt
var summaryUserPrompt string

// NotEnoughData is returned instead of calling a model when the transcript is too short.
const NotEnoughData = "Not enough conversation data to summarize."

// ErrNoAPIKey is returned when a provider is configured without credentials.
var ErrNoAPIKey = errors.New("summarizer API key not configured")

// Summarizer turns a formatted conversation transcript into a short summary.
type Summarizer interface {
	Name() string
	Summarize(ctx context.Context, transcript string) (string, error)

	// Usage tracking.
	GetUsage() *Usage
	ResetUsage()
}

// Usage tracks token usage.
type Usage struct {
	InputTokens  int
	OutputTokens int
	Requests     int
}

func (u *Usage) add(inputTokens, outputTokens int) {
	u.InputTokens += inputTokens
	u.OutputTokens += outputTokens
	u.Requests++
}

// Params are the sampling parameters shared by all providers.
type Params struct {
	Model       string
	Temperature float64
	TopP        float64
	MaxTokens   int
}

// NewSummarizer creates the provider selected by cfg.Provider ("openai" or "gemini").
func NewSummarizer(ctx context.Context, cfg config.SummarizerConfig) (Summarizer, error) {
	params := Params{
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		TopP:        cfg.TopP,
		MaxTokens:   cfg.MaxTokens,
	}

	switch cfg.Provider {
	case "", "openai", "groq":
		if cfg.APIKey == "" {
			return nil, ErrNoAPIKey
		}
		return NewOpenAIProvider(cfg.APIKey, cfg.BaseURL, params), nil
	case "gemini":
		if cfg.GeminiAPIKey == "" {
			return nil, ErrNoAPIKey
		}
		params.Model = cfg.GeminiModel
		p, err := NewGeminiProvider(ctx, cfg.GeminiAPIKey, "", params)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown summarizer provider: %s", cfg.Provider)
	}
}

// buildSummaryPrompt returns the user message for a transcript.
func buildSummaryPrompt(transcript string) string {
	return fmt.Sprintf(summaryUserPrompt, transcript)
}

// systemPrompt returns the embedded system prompt.
func systemPrompt() string {
	return strings.TrimSpace(summarySystemPrompt)
}

// tooShort reports whether a transcript carries too little text to summarize.
func tooShort(transcript string) bool {
	return len(strings.TrimSpace(transcript)) < constants.MinSummaryTextLen
}
