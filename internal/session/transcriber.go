package session

import (
	"context"
	"log"
	"time"

	"github.com/kozaktomas/face-recall/internal/constants"
	"github.com/kozaktomas/face-recall/internal/database"
	"github.com/kozaktomas/face-recall/internal/speech"
)

// ConversationLog persists transcript entries per (patient, known person) pair.
type ConversationLog interface {
	AppendEntry(ctx context.Context, patientID, knownPersonID string, entry database.TranscriptEntry) error
}

// TranscriptionWorker captures utterances and attributes each one to the identity
// bound at the moment it arrives.
type TranscriptionWorker struct {
	sessionID  string
	engine     speech.Engine
	convs      ConversationLog
	state      *State
	events     *EventBroadcaster
	now        func() time.Time
	errorDelay time.Duration
	idleDelay  time.Duration
}

// NewTranscriptionWorker creates a worker.
func NewTranscriptionWorker(sessionID string, engine speech.Engine, convs ConversationLog, state *State, events *EventBroadcaster) *TranscriptionWorker {
	return &TranscriptionWorker{
		sessionID:  sessionID,
		engine:     engine,
		convs:      convs,
		state:      state,
		events:     events,
		now:        time.Now,
		errorDelay: constants.SpeechErrorDelayMs * time.Millisecond,
		idleDelay:  constants.SpeechIdleDelayMs * time.Millisecond,
	}
}

// Run loops until shutdown is requested or ctx is cancelled. The capture call is
// the only blocking point; shutdown is observed once it returns.
func (w *TranscriptionWorker) Run(ctx context.Context) {
	log.Printf("session %s: listening for speech", w.sessionID)
	for !w.state.ShutdownRequested() {
		text, err := w.engine.CaptureNext(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("session %s: speech capture failed: %v", w.sessionID, err)
			w.pause(ctx, w.errorDelay)
			continue
		}
		if text == "" {
			// A daemon that answers empty polls at once must not spin the worker.
			w.pause(ctx, w.idleDelay)
			continue
		}
		w.Handle(ctx, text)
	}
}

// Handle publishes one utterance and, if an identity is bound, appends it to that
// identity's conversation. It reports whether the entry was persisted.
func (w *TranscriptionWorker) Handle(ctx context.Context, text string) bool {
	w.state.SetTranscript(text)
	identityID, patientID, bound := w.state.Binding()

	w.events.SendEvent(Event{
		Type:      EventTranscript,
		SessionID: w.sessionID,
		Message:   text,
		Data: map[string]any{
			"known_person_id": identityID,
			"patient_id":      patientID,
			"attributed":      bound,
		},
	})

	if !bound {
		return false
	}

	entry := database.TranscriptEntry{Text: text, Timestamp: w.now()}
	if err := w.convs.AppendEntry(ctx, patientID, identityID, entry); err != nil {
		log.Printf("session %s: dropping transcript for %s/%s: %v", w.sessionID, patientID, identityID, err)
		return false
	}
	return true
}

func (w *TranscriptionWorker) pause(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
