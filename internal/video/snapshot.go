package video

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log"
	"net/http"
	"sync"
	"time"
)

// SnapshotSource reads frames by polling an HTTP endpoint that returns the current
// camera image (IP cameras and most webcam bridges expose one).
type SnapshotSource struct {
	url    string
	client *http.Client
	pacer  *pacer

	mu     sync.Mutex
	seq    uint64
	open   bool
	failed uint64
}

// NewSnapshotSource creates a source polling url at most fps times per second.
func NewSnapshotSource(url string, fps int) *SnapshotSource {
	return &SnapshotSource{
		url:    url,
		client: &http.Client{Timeout: 5 * time.Second},
		pacer:  newPacer(fps),
	}
}

// Open probes the endpoint once; a camera that cannot deliver a first frame is
// reported as unavailable.
func (s *SnapshotSource) Open(ctx context.Context) error {
	if s.url == "" {
		return fmt.Errorf("%w: no snapshot URL configured", ErrDeviceUnavailable)
	}
	if _, err := s.fetch(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	s.mu.Lock()
	s.open = true
	s.mu.Unlock()
	return nil
}

// Read fetches the next frame.
func (s *SnapshotSource) Read(ctx context.Context) (*Frame, bool) {
	s.mu.Lock()
	open := s.open
	s.mu.Unlock()
	if !open || !s.pacer.wait(ctx) {
		return nil, false
	}

	img, err := s.fetch(ctx)
	if err != nil {
		s.mu.Lock()
		s.failed++
		failed := s.failed
		s.mu.Unlock()
		// One line per 100 failures keeps a dead camera from flooding the log.
		if failed%100 == 1 {
			log.Printf("video: snapshot read failed (%d so far): %v", failed, err)
		}
		return nil, false
	}

	s.mu.Lock()
	s.seq++
	seq := s.seq
	s.mu.Unlock()
	return &Frame{Seq: seq, Timestamp: time.Now(), Image: img}, true
}

// Close releases the source.
func (s *SnapshotSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = false
	return nil
}

func (s *SnapshotSource) fetch(ctx context.Context) (image.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("snapshot error (status %d)", resp.StatusCode)
	}

	img, _, err := image.Decode(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}
