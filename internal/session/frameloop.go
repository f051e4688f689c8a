package session

import (
	"context"
	"fmt"
	"image"
	"log"
	"time"

	"github.com/kozaktomas/face-recall/internal/constants"
	"github.com/kozaktomas/face-recall/internal/facematch"
	"github.com/kozaktomas/face-recall/internal/overlay"
	"github.com/kozaktomas/face-recall/internal/video"
)

// FaceDetector finds faces in a frame and embeds each one, in detection order.
type FaceDetector interface {
	Detect(ctx context.Context, frame image.Image) ([]facematch.Face, error)
}

// Outcome is how a frame loop (and therefore a session) ended.
type Outcome int

// Session outcomes.
const (
	OutcomeStopped Outcome = iota
	OutcomeEnrolled
	OutcomeDeviceError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeStopped:
		return "stopped"
	case OutcomeEnrolled:
		return "enrolled"
	case OutcomeDeviceError:
		return "device_error"
	default:
		return "unknown"
	}
}

// MarshalText renders the outcome as its name in JSON.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// UnmarshalText parses an outcome name.
func (o *Outcome) UnmarshalText(text []byte) error {
	for _, c := range []Outcome{OutcomeStopped, OutcomeEnrolled, OutcomeDeviceError} {
		if c.String() == string(text) {
			*o = c
			return nil
		}
	}
	return fmt.Errorf("unknown outcome %q", text)
}

// FrameLoop reads frames, matches every Nth one against the catalog, drives
// enrollment and renders the overlay. It exits on shutdown, on the local quit
// trigger or after a successful enrollment.
type FrameLoop struct {
	sessionID   string
	source      video.Source
	detector    FaceDetector
	matcher     *facematch.Matcher
	catalog     *facematch.Catalog
	tracker     *facematch.EnrollmentTracker
	enroller    *Enroller
	state       *State
	renderer    *overlay.Renderer
	preview     *overlay.Preview
	events      *EventBroadcaster
	quit        <-chan struct{}
	sampleEvery uint64
	idleDelay   time.Duration

	frames     uint64
	processed  uint64
	lastDrawn  []overlay.Annotation
	lastActive string
}

// Run executes the loop until it exits and returns why. The enrolled identity is
// set only for OutcomeEnrolled.
func (l *FrameLoop) Run(ctx context.Context) (Outcome, *facematch.KnownIdentity) {
	for {
		if l.state.ShutdownRequested() {
			return OutcomeStopped, nil
		}
		select {
		case <-l.quit:
			l.state.RequestShutdown()
			return OutcomeStopped, nil
		case <-ctx.Done():
			l.state.RequestShutdown()
			return OutcomeStopped, nil
		default:
		}

		frame, ok := l.source.Read(ctx)
		if !ok {
			l.idle(ctx)
			continue
		}

		l.frames++
		if l.frames%l.sampleEvery != 0 {
			l.render(frame.Image)
			continue
		}

		enrolled := l.process(ctx, frame.Image)
		l.render(frame.Image)
		if enrolled != nil {
			return OutcomeEnrolled, enrolled
		}
	}
}

// process runs detection and matching on one sampled frame.
func (l *FrameLoop) process(ctx context.Context, frame image.Image) *facematch.KnownIdentity {
	l.processed++

	faces, err := l.detector.Detect(ctx, frame)
	if err != nil {
		log.Printf("session %s: face detection failed on frame %d: %v", l.sessionID, l.frames, err)
		return nil
	}

	annotations := make([]overlay.Annotation, 0, len(faces))
	for _, face := range faces {
		result := l.matcher.Match(face.Embedding, l.catalog)
		annotations = append(annotations, overlay.AnnotationFor(face, result))

		if result.Known() {
			l.bind(result)
			continue
		}

		if !l.tracker.Observe(face.Embedding) {
			continue
		}
		ident, err := l.enroller.Enroll(ctx, l.tracker, frame)
		if err != nil {
			log.Printf("session %s: enrollment failed, keeping %d samples: %v", l.sessionID, l.tracker.Len(), err)
			continue
		}
		if ident != nil {
			log.Printf("session %s: enrolled new identity %s", l.sessionID, ident.ID)
			l.events.SendEvent(Event{
				Type:      EventEnrolled,
				SessionID: l.sessionID,
				Message:   "New face trained and saved",
				Data:      ident,
			})
			l.lastDrawn = annotations
			return ident
		}
	}

	l.lastDrawn = annotations
	return nil
}

// bind publishes the matched identity as the active one.
func (l *FrameLoop) bind(result facematch.MatchResult) {
	ident := result.Identity
	l.state.BindIdentity(ident.ID, ident.OwnerID)
	if ident.ID == l.lastActive {
		return
	}
	l.lastActive = ident.ID
	l.events.SendEvent(Event{
		Type:      EventIdentity,
		SessionID: l.sessionID,
		Message:   result.Label(),
		Data: map[string]any{
			"known_person_id":    ident.ID,
			"patient_id":         ident.OwnerID,
			"name":               ident.DisplayName,
			"distance":           result.Distance,
			"confidence_percent": result.ConfidencePercent,
		},
	})
}

// render draws the last annotations and the current transcript. Failures are
// logged and never stop the loop.
func (l *FrameLoop) render(frame image.Image) {
	if l.renderer == nil || l.preview == nil {
		return
	}
	out, err := l.renderer.Render(frame, l.lastDrawn, l.state.Transcript())
	if err != nil {
		log.Printf("session %s: overlay: %v", l.sessionID, err)
		return
	}
	if err := l.preview.Update(out); err != nil {
		log.Printf("session %s: preview: %v", l.sessionID, err)
	}
}

func (l *FrameLoop) idle(ctx context.Context) {
	timer := time.NewTimer(l.idleDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func defaultIdleDelay() time.Duration {
	return constants.IdleReadDelayMs * time.Millisecond
}
