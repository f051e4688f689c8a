package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIProvider summarizes with any OpenAI-compatible chat completions API
// (OpenAI itself, or Groq via its /openai/v1 base URL).
type OpenAIProvider struct {
	client *openai.Client
	params Params
	usage  Usage
}

// NewOpenAIProvider creates a provider. An empty baseURL selects api.openai.com.
func NewOpenAIProvider(apiKey, baseURL string, params Params, opts ...option.RequestOption) *OpenAIProvider {
	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(baseURL))
	}
	reqOpts = append(reqOpts, opts...)

	client := openai.NewClient(reqOpts...)
	return &OpenAIProvider{
		client: &client,
		params: params,
	}
}

func (p *OpenAIProvider) GetUsage() *Usage {
	return &p.usage
}

func (p *OpenAIProvider) ResetUsage() {
	p.usage = Usage{}
}

func (p *OpenAIProvider) Name() string {
	return p.params.Model
}

func (p *OpenAIProvider) Summarize(ctx context.Context, transcript string) (string, error) {
	if tooShort(transcript) {
		return NotEnoughData, nil
	}

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(p.params.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt()),
			openai.UserMessage(buildSummaryPrompt(transcript)),
		},
	}
	if p.params.Temperature > 0 {
		params.Temperature = openai.Float(p.params.Temperature)
	}
	if p.params.TopP > 0 {
		params.TopP = openai.Float(p.params.TopP)
	}
	if p.params.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(p.params.MaxTokens))
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("OpenAI API error: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", errors.New("no response from OpenAI")
	}

	p.usage.add(int(resp.Usage.PromptTokens), int(resp.Usage.CompletionTokens))

	summary := strings.TrimSpace(resp.Choices[0].Message.Content)
	if summary == "" {
		return "", errors.New("empty summary from OpenAI")
	}
	return summary, nil
}
