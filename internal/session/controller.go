package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kozaktomas/face-recall/internal/config"
	"github.com/kozaktomas/face-recall/internal/constants"
	"github.com/kozaktomas/face-recall/internal/facematch"
	"github.com/kozaktomas/face-recall/internal/imagestore"
	"github.com/kozaktomas/face-recall/internal/overlay"
	"github.com/kozaktomas/face-recall/internal/speech"
	"github.com/kozaktomas/face-recall/internal/video"
)

var (
	// ErrDeviceUnavailable is returned by Start when the camera cannot be opened or
	// the audio source does not answer its health check.
	ErrDeviceUnavailable = video.ErrDeviceUnavailable
	// ErrSessionRunning is returned by Start while another session is active.
	ErrSessionRunning = errors.New("session already running")
)

// IdentityStore is the identity storage used by a session: a catalog read at
// start and one insert per enrollment.
type IdentityStore interface {
	ListIdentities(ctx context.Context) ([]facematch.KnownIdentity, error)
	IdentityInserter
}

// Dependencies are the collaborators of a session.
type Dependencies struct {
	Source        video.Source
	Detector      FaceDetector
	Identities    IdentityStore
	Conversations ConversationLog
	Images        imagestore.Store
	Speech        speech.Engine
	Pipeline      config.PipelineConfig

	// Optional.
	Events  *EventBroadcaster
	Preview *overlay.Preview
	// Quit is a local quit trigger (e.g. a key press); closing it ends the session.
	Quit <-chan struct{}
}

// Result describes a finished session.
type Result struct {
	SessionID string                   `json:"session_id"`
	Outcome   Outcome                  `json:"outcome"`
	Enrolled  *facematch.KnownIdentity `json:"enrolled,omitempty"`
	Frames    uint64                   `json:"frames"`
	Processed uint64                   `json:"processed_frames"`
	StartedAt time.Time                `json:"started_at"`
	EndedAt   time.Time                `json:"ended_at"`
	Error     string                   `json:"error,omitempty"`
}

// Status is a point-in-time view of the controller.
type Status struct {
	Running    bool      `json:"running"`
	SessionID  string    `json:"session_id,omitempty"`
	StartedAt  time.Time `json:"started_at,omitzero"`
	State      *Snapshot `json:"state,omitempty"`
	Enrollment string    `json:"enrollment,omitempty"`
	Catalog    int       `json:"catalog_size"`
	LastResult *Result   `json:"last_result,omitempty"`
}

// runningSession is the bookkeeping of the active session.
type runningSession struct {
	id        string
	state     *State
	tracker   *facematch.EnrollmentTracker
	catalog   int
	startedAt time.Time
}

// Controller runs at most one session at a time.
type Controller struct {
	deps Dependencies

	mu      sync.Mutex
	current *runningSession
	last    *Result
}

// NewController creates a controller.
func NewController(deps Dependencies) *Controller {
	return &Controller{deps: deps}
}

// Start runs a full session and blocks until it ends. Cancelling ctx stops the
// session the same way Stop does.
func (c *Controller) Start(ctx context.Context) (Result, error) {
	_, done, err := c.Begin(ctx)
	if err != nil {
		res := Result{Outcome: OutcomeStopped, Error: err.Error()}
		if errors.Is(err, ErrDeviceUnavailable) {
			res.Outcome = OutcomeDeviceError
		}
		return res, err
	}

	select {
	case res := <-done:
		return res, nil
	case <-ctx.Done():
		c.Stop()
		return <-done, nil
	}
}

// Begin opens the camera, probes the audio source and loads the catalog
// synchronously, then runs the session in the background. The returned channel
// receives the result once.
func (c *Controller) Begin(ctx context.Context) (string, <-chan Result, error) {
	c.mu.Lock()
	if c.current != nil {
		c.mu.Unlock()
		return "", nil, ErrSessionRunning
	}
	rs := &runningSession{
		id:        uuid.NewString(),
		state:     NewState(),
		tracker:   facematch.NewEnrollmentTracker(c.deps.Pipeline.MaxNewFaces),
		startedAt: time.Now(),
	}
	// Reserve the slot before opening the device so Stop can already reach this state.
	c.current = rs
	c.mu.Unlock()

	// fail releases the slot and records why the session never started.
	fail := func(outcome Outcome, err error) error {
		c.mu.Lock()
		if c.current == rs {
			c.current = nil
		}
		c.last = &Result{SessionID: rs.id, Outcome: outcome, StartedAt: rs.startedAt, EndedAt: time.Now(), Error: err.Error()}
		c.mu.Unlock()
		return err
	}

	if err := c.deps.Source.Open(ctx); err != nil {
		log.Printf("session %s: camera unavailable: %v", rs.id, err)
		return "", nil, fail(OutcomeDeviceError, deviceError(err))
	}

	if err := c.deps.Speech.Health(ctx); err != nil {
		log.Printf("session %s: audio source unavailable: %v", rs.id, err)
		c.closeSource(rs.id)
		return "", nil, fail(OutcomeDeviceError, deviceError(fmt.Errorf("audio source: %w", err)))
	}

	identities, err := c.deps.Identities.ListIdentities(ctx)
	if err == nil {
		var catalog *facematch.Catalog
		catalog, err = facematch.NewCatalog(identities)
		if err == nil {
			rs.tracker.ExpectDim(catalog.Dim())
			c.mu.Lock()
			rs.catalog = catalog.Len()
			c.mu.Unlock()
			done := c.launch(ctx, rs, catalog)
			return rs.id, done, nil
		}
	}

	c.closeSource(rs.id)
	return "", nil, fail(OutcomeStopped, fmt.Errorf("load identity catalog: %w", err))
}

func deviceError(err error) error {
	if errors.Is(err, ErrDeviceUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
}

func (c *Controller) closeSource(sessionID string) {
	if err := c.deps.Source.Close(); err != nil {
		log.Printf("session %s: closing camera: %v", sessionID, err)
	}
}

// launch starts the worker and the frame loop goroutines.
func (c *Controller) launch(ctx context.Context, rs *runningSession, catalog *facematch.Catalog) <-chan Result {
	done := make(chan Result, 1)
	// The session outlives the request that started it.
	sessionCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	sampleEvery := c.deps.Pipeline.SampleEvery
	if sampleEvery <= 0 {
		sampleEvery = constants.DefaultSampleEvery
	}

	loop := &FrameLoop{
		sessionID:   rs.id,
		source:      c.deps.Source,
		detector:    c.deps.Detector,
		matcher:     facematch.NewMatcher(c.deps.Pipeline.MatchThreshold),
		catalog:     catalog,
		tracker:     rs.tracker,
		enroller:    NewEnroller(c.deps.Identities, c.deps.Images, c.deps.Pipeline.EnrolledName, c.deps.Pipeline.EnrolledOwner),
		state:       rs.state,
		renderer:    overlay.NewRenderer(),
		preview:     c.deps.Preview,
		events:      c.deps.Events,
		quit:        c.deps.Quit,
		sampleEvery: uint64(sampleEvery),
		idleDelay:   defaultIdleDelay(),
	}
	worker := NewTranscriptionWorker(rs.id, c.deps.Speech, c.deps.Conversations, rs.state, c.deps.Events)

	log.Printf("session %s: started with %d known identities", rs.id, catalog.Len())
	c.deps.Events.SendEvent(Event{
		Type:      EventSessionStarted,
		SessionID: rs.id,
		Data:      map[string]any{"catalog_size": catalog.Len()},
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Run(sessionCtx)
	}()

	go func() {
		outcome, enrolled := loop.Run(sessionCtx)

		// Stop the worker and unblock its in-flight capture.
		rs.state.RequestShutdown()
		cancel()
		wg.Wait()

		c.closeSource(rs.id)

		res := Result{
			SessionID: rs.id,
			Outcome:   outcome,
			Enrolled:  enrolled,
			Frames:    loop.frames,
			Processed: loop.processed,
			StartedAt: rs.startedAt,
			EndedAt:   time.Now(),
		}
		c.recordResult(&res)
		c.mu.Lock()
		if c.current == rs {
			c.current = nil
		}
		c.mu.Unlock()

		log.Printf("session %s: %s after %d frames (%d processed)", rs.id, outcome, res.Frames, res.Processed)
		c.deps.Events.SendEvent(Event{Type: EventSessionStopped, SessionID: rs.id, Message: outcome.String(), Data: res})
		done <- res
		close(done)
	}()

	return done
}

// Stop asks the running session to end and returns without waiting. Calling it
// with no session running, or more than once, does nothing.
func (c *Controller) Stop() bool {
	c.mu.Lock()
	rs := c.current
	c.mu.Unlock()
	if rs == nil {
		return false
	}
	rs.state.RequestShutdown()
	return true
}

// Running reports whether a session is active.
func (c *Controller) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current != nil
}

// Status returns the current controller status.
func (c *Controller) Status() Status {
	c.mu.Lock()
	rs := c.current
	st := Status{LastResult: c.last}
	if rs != nil {
		st.Catalog = rs.catalog
	}
	c.mu.Unlock()

	if rs != nil {
		snap := rs.state.Snapshot()
		st.Running = true
		st.SessionID = rs.id
		st.StartedAt = rs.startedAt
		st.State = &snap
		st.Enrollment = rs.tracker.State().String()
	}
	return st
}

func (c *Controller) recordResult(res *Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last = res
}

