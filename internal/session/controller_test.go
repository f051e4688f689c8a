package session

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/kozaktomas/face-recall/internal/config"
	"github.com/kozaktomas/face-recall/internal/database/mock"
	"github.com/kozaktomas/face-recall/internal/facematch"
	"github.com/kozaktomas/face-recall/internal/imagestore"
)

type controllerFixture struct {
	ctrl     *Controller
	source   *fakeSource
	detector *fakeDetector
	engine   *fakeEngine
	store    *mock.MockStore
	dir      string
}

func newControllerFixture(t *testing.T) *controllerFixture {
	t.Helper()
	dir := t.TempDir()
	images, err := imagestore.NewLocal(dir)
	if err != nil {
		t.Fatal(err)
	}
	f := &controllerFixture{
		source:   newFakeSource(),
		detector: &fakeDetector{},
		engine:   newFakeEngine(),
		store:    mock.NewMockStore(),
		dir:      dir,
	}
	f.ctrl = NewController(Dependencies{
		Source:        f.source,
		Detector:      f.detector,
		Identities:    f.store,
		Conversations: f.store,
		Images:        images,
		Speech:        f.engine,
		Pipeline: config.PipelineConfig{
			MatchThreshold: 0.6,
			SampleEvery:    5,
			MaxNewFaces:    5,
		},
	})
	return f
}

func TestController_StopWithoutSession(t *testing.T) {
	f := newControllerFixture(t)
	if f.ctrl.Stop() {
		t.Error("Stop() before Start should report false")
	}
	if f.ctrl.Stop() {
		t.Error("second Stop() should report false")
	}
	if st := f.ctrl.Status(); st.Running || st.LastResult != nil {
		t.Errorf("Status() = %+v", st)
	}
}

func TestController_DeviceUnavailable(t *testing.T) {
	f := newControllerFixture(t)
	f.source.openErr = errBoom

	res, err := f.ctrl.Start(context.Background())
	if !errors.Is(err, ErrDeviceUnavailable) {
		t.Fatalf("Start() error = %v, want ErrDeviceUnavailable", err)
	}
	if res.Outcome != OutcomeDeviceError {
		t.Errorf("outcome = %v", res.Outcome)
	}
	if f.ctrl.Running() {
		t.Error("controller still running after device error")
	}
	if f.engine.calls.Load() != 0 {
		t.Error("worker must not start without a camera")
	}
	if st := f.ctrl.Status(); st.LastResult == nil || st.LastResult.Outcome != OutcomeDeviceError {
		t.Errorf("last result = %+v", st.LastResult)
	}
}

func TestController_CatalogLoadError(t *testing.T) {
	f := newControllerFixture(t)
	f.store.ListError = errBoom

	if _, _, err := f.ctrl.Begin(context.Background()); !errors.Is(err, errBoom) {
		t.Fatalf("Begin() error = %v", err)
	}
	if !f.source.closed.Load() {
		t.Error("camera must be released when the catalog cannot be loaded")
	}
	if f.ctrl.Running() {
		t.Error("controller still running")
	}
	st := f.ctrl.Status()
	if st.LastResult == nil || st.LastResult.Error == "" {
		t.Fatalf("failed start not recorded: %+v", st.LastResult)
	}
	if !strings.Contains(st.LastResult.Error, "load identity catalog") {
		t.Errorf("last result error = %q", st.LastResult.Error)
	}
}

func TestController_AudioUnavailable(t *testing.T) {
	f := newControllerFixture(t)
	f.engine.healthErr = errBoom

	res, err := f.ctrl.Start(context.Background())
	if !errors.Is(err, ErrDeviceUnavailable) {
		t.Fatalf("Start() error = %v, want ErrDeviceUnavailable", err)
	}
	if res.Outcome != OutcomeDeviceError {
		t.Errorf("outcome = %v", res.Outcome)
	}
	if !f.source.closed.Load() {
		t.Error("camera must be released when the audio source is down")
	}
	if f.ctrl.Running() {
		t.Error("controller still running after audio error")
	}
	if f.engine.calls.Load() != 0 {
		t.Error("worker must not start without an audio source")
	}
	if f.detector.Calls() != 0 {
		t.Error("frame loop must not start without an audio source")
	}
	if st := f.ctrl.Status(); st.LastResult == nil || st.LastResult.Outcome != OutcomeDeviceError {
		t.Errorf("last result = %+v", st.LastResult)
	}
}

func TestController_EnrollsExactlyOneIdentity(t *testing.T) {
	f := newControllerFixture(t)
	f.store.AddIdentity(facematch.KnownIdentity{ID: "alice_1", OwnerID: "p1", DisplayName: "Alice", Embedding: []float32{0, 0}})
	f.detector.SetFaces([]facematch.Face{face(3, 4)})

	res, err := f.ctrl.Start(context.Background())
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if res.Outcome != OutcomeEnrolled || res.Enrolled == nil {
		t.Fatalf("result = %+v", res)
	}
	if got := f.store.InsertCalls(); got != 1 {
		t.Errorf("InsertCalls() = %d, want 1", got)
	}
	entries, _ := os.ReadDir(f.dir)
	if len(entries) != 1 {
		t.Errorf("saved images = %d, want 1", len(entries))
	}
	if !f.source.closed.Load() {
		t.Error("camera not closed")
	}
	if f.ctrl.Running() {
		t.Error("controller still running after enrollment")
	}
	if got, _ := f.store.CountIdentities(context.Background()); got != 2 {
		t.Errorf("identities = %d, want 2", got)
	}
}

func TestController_StopEndsBothUnits(t *testing.T) {
	f := newControllerFixture(t)
	f.store.AddIdentity(facematch.KnownIdentity{ID: "alice_1", OwnerID: "p1", DisplayName: "Alice", Embedding: []float32{0, 0}})
	f.detector.SetFaces([]facematch.Face{face(0, 0)})

	id, done, err := f.ctrl.Begin(context.Background())
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if id == "" {
		t.Error("empty session id")
	}

	if _, _, err := f.ctrl.Begin(context.Background()); !errors.Is(err, ErrSessionRunning) {
		t.Errorf("second Begin() error = %v, want ErrSessionRunning", err)
	}

	// Wait until the face is bound, then speak.
	if !waitFor(func() bool {
		st := f.ctrl.Status()
		return st.State != nil && st.State.Bound
	}) {
		t.Fatal("identity never bound")
	}
	f.engine.utterances <- "good morning"
	if !waitFor(func() bool { return f.store.AppendCalls() == 1 }) {
		t.Fatalf("AppendCalls() = %d, want 1", f.store.AppendCalls())
	}

	if !f.ctrl.Stop() {
		t.Error("Stop() should report a running session")
	}
	f.ctrl.Stop()

	select {
	case res := <-done:
		if res.Outcome != OutcomeStopped || res.SessionID != id {
			t.Errorf("result = %+v", res)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("session did not stop")
	}

	if f.ctrl.Running() {
		t.Error("still running after stop")
	}
	if f.ctrl.Stop() {
		t.Error("Stop() after the session ended should report false")
	}
	conv, _ := f.store.GetConversation(context.Background(), "p1", "alice_1")
	if conv == nil || len(conv.Entries) != 1 || conv.Entries[0].Text != "good morning" {
		t.Errorf("conversation = %+v", conv)
	}
}

func TestController_ContextCancelStopsSession(t *testing.T) {
	f := newControllerFixture(t)
	ctx, cancel := context.WithCancel(context.Background())

	events := NewEventBroadcaster()
	ch := events.AddListener()
	f.ctrl.deps.Events = events

	go func() {
		waitFor(func() bool { return f.detector.Calls() > 0 })
		cancel()
	}()

	res, err := f.ctrl.Start(ctx)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if res.Outcome != OutcomeStopped {
		t.Errorf("outcome = %v", res.Outcome)
	}

	var types []string
	for len(ch) > 0 {
		types = append(types, (<-ch).Type)
	}
	if len(types) < 2 || types[0] != EventSessionStarted || types[len(types)-1] != EventSessionStopped {
		t.Errorf("event types = %v", types)
	}
}
