package facematch

import (
	"sync"

	"github.com/kozaktomas/face-recall/internal/constants"
)

// EnrollmentState is the state of an EnrollmentTracker.
type EnrollmentState int

// Tracker lifecycle: Idle -> Accumulating -> Finalized.
const (
	StateIdle EnrollmentState = iota
	StateAccumulating
	StateFinalized
)

func (s EnrollmentState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAccumulating:
		return "accumulating"
	case StateFinalized:
		return "finalized"
	default:
		return "unknown"
	}
}

// EnrollmentTracker accumulates embeddings of unmatched faces until enough samples
// exist to enroll one new identity. Every unknown face feeds the same buffer, in
// detection order; samples are not checked for belonging to the same person.
// At most one identity is enrolled per tracker.
type EnrollmentTracker struct {
	mu         sync.Mutex
	maxSamples int
	dim        int
	state      EnrollmentState
	buffer     [][]float32
}

// NewEnrollmentTracker creates a tracker that finalizes after maxSamples unknown faces.
// A non-positive value selects the default (5).
func NewEnrollmentTracker(maxSamples int) *EnrollmentTracker {
	if maxSamples <= 0 {
		maxSamples = constants.DefaultMaxNewFaces
	}
	return &EnrollmentTracker{
		maxSamples: maxSamples,
		buffer:     make([][]float32, 0, maxSamples),
	}
}

// ExpectDim fixes the embedding length samples must have, usually the catalog's
// dimension. Zero leaves the first accepted sample to decide.
func (t *EnrollmentTracker) ExpectDim(dim int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dim = dim
}

// State returns the current tracker state.
func (t *EnrollmentTracker) State() EnrollmentState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Len returns the number of buffered samples.
func (t *EnrollmentTracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.buffer)
}

// Observe records the embedding of a face that matched nobody. It reports whether
// the buffer is full and the tracker is ready to finalize. Once full, further
// samples are dropped; after finalization Observe is a no-op. A sample whose
// length differs from the expected dimension is dropped so the buffer can
// always be averaged.
func (t *EnrollmentTracker) Observe(embedding []float32) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state == StateFinalized {
		return false
	}
	if !t.acceptsDim(len(embedding)) {
		return len(t.buffer) >= t.maxSamples
	}
	if t.state == StateIdle {
		t.state = StateAccumulating
	}

	if len(t.buffer) < t.maxSamples {
		sample := make([]float32, len(embedding))
		copy(sample, embedding)
		t.buffer = append(t.buffer, sample)
	}
	return len(t.buffer) >= t.maxSamples
}

func (t *EnrollmentTracker) acceptsDim(n int) bool {
	switch {
	case n == 0:
		return false
	case t.dim > 0:
		return n == t.dim
	case len(t.buffer) > 0:
		return n == len(t.buffer[0])
	default:
		return true
	}
}

// Finalize averages the buffered samples and passes the mean to commit. If commit
// succeeds the tracker becomes Finalized. If it fails the tracker stays
// Accumulating with the buffer retained, so the next unknown face retries.
func (t *EnrollmentTracker) Finalize(commit func(mean []float32) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != StateAccumulating || len(t.buffer) < t.maxSamples {
		return nil
	}

	mean, err := MeanEmbedding(t.buffer)
	if err != nil {
		return err
	}
	if err := commit(mean); err != nil {
		return err
	}

	t.state = StateFinalized
	t.buffer = nil
	return nil
}
