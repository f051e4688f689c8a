package session

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kozaktomas/face-recall/internal/facematch"
	"github.com/kozaktomas/face-recall/internal/video"
)

// fakeSource returns the same frame forever once opened.
type fakeSource struct {
	openErr error
	img     image.Image
	seq     atomic.Uint64
	opened  atomic.Bool
	closed  atomic.Bool
	limit   uint64 // 0 = unlimited
}

func newFakeSource() *fakeSource {
	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	for y := 0; y < 48; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 90, A: 255})
		}
	}
	return &fakeSource{img: img}
}

func (s *fakeSource) Open(_ context.Context) error {
	if s.openErr != nil {
		return s.openErr
	}
	s.opened.Store(true)
	return nil
}

func (s *fakeSource) Read(ctx context.Context) (*video.Frame, bool) {
	if !s.opened.Load() || ctx.Err() != nil {
		return nil, false
	}
	n := s.seq.Add(1)
	if s.limit > 0 && n > s.limit {
		return nil, false
	}
	return &video.Frame{Seq: n, Timestamp: time.Now(), Image: s.img}, true
}

func (s *fakeSource) Close() error {
	s.closed.Store(true)
	return nil
}

// fakeDetector returns a fixed list of faces for every frame.
type fakeDetector struct {
	mu    sync.Mutex
	faces []facematch.Face
	err   error
	calls int
}

func (d *fakeDetector) Detect(_ context.Context, _ image.Image) ([]facematch.Face, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.err != nil {
		return nil, d.err
	}
	return d.faces, nil
}

func (d *fakeDetector) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

func (d *fakeDetector) SetFaces(faces []facematch.Face) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.faces = faces
}

func face(embedding ...float32) facematch.Face {
	return facematch.Face{Box: facematch.Box{Left: 5, Top: 5, Right: 30, Bottom: 30}, Embedding: embedding, DetScore: 0.9}
}

// fakeEngine hands out queued utterances and blocks when the queue is empty.
// With silent set it answers every call at once with no speech.
type fakeEngine struct {
	utterances chan string
	err        error
	healthErr  error
	silent     bool
	calls      atomic.Int32
}

func newFakeEngine(texts ...string) *fakeEngine {
	e := &fakeEngine{utterances: make(chan string, len(texts)+1)}
	for _, t := range texts {
		e.utterances <- t
	}
	return e
}

func (e *fakeEngine) CaptureNext(ctx context.Context) (string, error) {
	e.calls.Add(1)
	if e.err != nil {
		return "", e.err
	}
	if e.silent {
		return "", nil
	}
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case text := <-e.utterances:
		return text, nil
	}
}

func (e *fakeEngine) Health(_ context.Context) error {
	return e.healthErr
}

var errBoom = errors.New("boom")

// waitFor polls cond until it holds or the deadline passes.
func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}
