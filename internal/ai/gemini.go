package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

type GeminiProvider struct {
	client *genai.Client
	params Params
	usage  Usage
}

// NewGeminiProvider creates a provider. baseURL overrides the API endpoint and is
// empty outside tests.
func NewGeminiProvider(ctx context.Context, apiKey, baseURL string, params Params) (*GeminiProvider, error) {
	cc := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiProvider{
		client: client,
		params: params,
	}, nil
}

func (p *GeminiProvider) GetUsage() *Usage {
	return &p.usage
}

func (p *GeminiProvider) ResetUsage() {
	p.usage = Usage{}
}

func (p *GeminiProvider) Name() string {
	return p.params.Model
}

func (p *GeminiProvider) Summarize(ctx context.Context, transcript string) (string, error) {
	if tooShort(transcript) {
		return NotEnoughData, nil
	}

	contents := []*genai.Content{
		genai.NewContentFromText(buildSummaryPrompt(transcript), genai.RoleUser),
	}

	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPrompt(), genai.RoleUser),
	}
	if p.params.Temperature > 0 {
		cfg.Temperature = genai.Ptr(float32(p.params.Temperature))
	}
	if p.params.TopP > 0 {
		cfg.TopP = genai.Ptr(float32(p.params.TopP))
	}
	if p.params.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(p.params.MaxTokens)
	}

	result, err := p.client.Models.GenerateContent(ctx, p.params.Model, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("gemini API error: %w", err)
	}

	if result.UsageMetadata != nil {
		p.usage.add(int(result.UsageMetadata.PromptTokenCount), int(result.UsageMetadata.CandidatesTokenCount))
	}

	summary := strings.TrimSpace(result.Text())
	if summary == "" {
		return "", errors.New("no response from Gemini")
	}
	return summary, nil
}
