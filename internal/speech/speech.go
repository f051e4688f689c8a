// Package speech adapts the external speech-to-text daemon.
package speech

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	defaultSpeechURL = "http://localhost:8010"
	healthTimeout    = 5 * time.Second
)

// Engine produces one recognized utterance per call. CaptureNext may block until
// speech is heard; an empty string means nothing was recognized. Health reports
// whether the audio source can be reached at all.
type Engine interface {
	CaptureNext(ctx context.Context) (string, error)
	Health(ctx context.Context) error
}

// HTTPEngine long-polls the STT daemon's GET /next endpoint.
type HTTPEngine struct {
	baseURL     string
	pollTimeout time.Duration
	client      *http.Client
}

// utteranceResponse is the body of a 200 response from /next
type utteranceResponse struct {
	Text string `json:"text"`
}

// NewHTTPEngine creates an engine for the daemon at baseURL. The daemon holds each
// request for up to pollTimeoutSec seconds waiting for speech.
func NewHTTPEngine(baseURL string, pollTimeoutSec int) *HTTPEngine {
	if baseURL == "" {
		baseURL = defaultSpeechURL
	}
	if pollTimeoutSec <= 0 {
		pollTimeoutSec = 30
	}
	timeout := time.Duration(pollTimeoutSec) * time.Second
	return &HTTPEngine{
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		pollTimeout: timeout,
		// Leave headroom over the server-side hold time.
		client: &http.Client{Timeout: timeout + 5*time.Second},
	}
}

// CaptureNext waits for the next utterance. A 204 response means the poll timed
// out without speech and yields an empty string.
func (e *HTTPEngine) CaptureNext(ctx context.Context) (string, error) {
	q := url.Values{}
	q.Set("timeout", strconv.Itoa(int(e.pollTimeout/time.Second)))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/next?"+q.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return "", nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("STT error (status %d): %s", resp.StatusCode, string(body))
	}

	var utt utteranceResponse
	if err := json.Unmarshal(body, &utt); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	return strings.TrimSpace(utt.Text), nil
}

// Health checks the daemon's GET /health endpoint. It is bounded by a short
// timeout, unlike the long-polling capture requests.
func (e *HTTPEngine) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("STT daemon unhealthy (status %d)", resp.StatusCode)
	}
	return nil
}
