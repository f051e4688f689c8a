package handlers

import (
	"bufio"
	"context"
	"fmt"
	"image"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/kozaktomas/face-recall/internal/overlay"
	"github.com/kozaktomas/face-recall/internal/session"
)

func TestSessionHandler_Start(t *testing.T) {
	tests := []struct {
		name       string
		beginErr   error
		running    bool
		wantStatus int
		wantError  string
	}{
		{name: "starts", wantStatus: http.StatusAccepted},
		{name: "already running", running: true, wantStatus: http.StatusConflict, wantError: "session already running"},
		{name: "camera unavailable", beginErr: fmt.Errorf("%w: probe failed", session.ErrDeviceUnavailable), wantStatus: http.StatusServiceUnavailable, wantError: "could not open camera"},
		{name: "other failure", beginErr: fmt.Errorf("load identity catalog: boom"), wantStatus: http.StatusInternalServerError, wantError: "failed to start session"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := &fakeController{beginErr: tt.beginErr, running: tt.running, sessionID: "sess-1"}
			h := NewSessionHandler(ctrl, nil, nil)

			recorder := httptest.NewRecorder()
			h.Start(recorder, httptest.NewRequest("POST", "/api/v1/session/start", nil))

			assertStatusCode(t, recorder, tt.wantStatus)
			if tt.wantError != "" {
				assertJSONError(t, recorder, tt.wantError)
				return
			}
			var resp StartResponse
			parseJSONResponse(t, recorder, &resp)
			if !resp.Started || resp.SessionID != "sess-1" {
				t.Errorf("response = %+v", resp)
			}
		})
	}
}

func TestSessionHandler_StopIsIdempotent(t *testing.T) {
	ctrl := &fakeController{}
	h := NewSessionHandler(ctrl, nil, nil)

	for i := range 2 {
		recorder := httptest.NewRecorder()
		h.Stop(recorder, httptest.NewRequest("POST", "/api/v1/session/stop", nil))
		assertStatusCode(t, recorder, http.StatusOK)

		var resp map[string]bool
		parseJSONResponse(t, recorder, &resp)
		if !resp["stopped"] || resp["was_running"] {
			t.Errorf("call %d: response = %v", i, resp)
		}
	}
	if ctrl.stops != 2 {
		t.Errorf("stops = %d", ctrl.stops)
	}
}

func TestSessionHandler_Status(t *testing.T) {
	ctrl := &fakeController{running: true, sessionID: "sess-9"}
	h := NewSessionHandler(ctrl, nil, nil)

	recorder := httptest.NewRecorder()
	h.Status(recorder, httptest.NewRequest("GET", "/api/v1/session/status", nil))

	assertStatusCode(t, recorder, http.StatusOK)
	assertContentType(t, recorder, "application/json")
	var st session.Status
	parseJSONResponse(t, recorder, &st)
	if !st.Running || st.SessionID != "sess-9" {
		t.Errorf("status = %+v", st)
	}
}

func TestSessionHandler_Preview(t *testing.T) {
	preview := overlay.NewPreview()
	h := NewSessionHandler(&fakeController{}, nil, preview)

	recorder := httptest.NewRecorder()
	h.Preview(recorder, httptest.NewRequest("GET", "/api/v1/session/preview.jpg", nil))
	assertStatusCode(t, recorder, http.StatusNotFound)

	if err := preview.Update(image.NewRGBA(image.Rect(0, 0, 8, 8))); err != nil {
		t.Fatal(err)
	}
	recorder = httptest.NewRecorder()
	h.Preview(recorder, httptest.NewRequest("GET", "/api/v1/session/preview.jpg", nil))
	assertStatusCode(t, recorder, http.StatusOK)
	assertContentType(t, recorder, "image/jpeg")
	if recorder.Body.Len() == 0 {
		t.Error("empty preview body")
	}
}

func TestSessionHandler_EventsWebsocket(t *testing.T) {
	events := session.NewEventBroadcaster()
	h := NewSessionHandler(&fakeController{sessionID: "sess-1"}, events, nil)

	srv := httptest.NewServer(http.HandlerFunc(h.Events))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))

	var first session.Event
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read status: %v", err)
	}
	if first.Type != "status" {
		t.Errorf("first event = %+v", first)
	}

	// The listener is registered before the status message is written.
	events.SendEvent(session.Event{Type: session.EventTranscript, SessionID: "sess-1", Message: "hello"})

	var ev session.Event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if ev.Type != session.EventTranscript || ev.Message != "hello" {
		t.Errorf("event = %+v", ev)
	}

	conn.Close()
	deadline := time.Now().Add(2 * time.Second)
	for events.ListenerCount() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if n := events.ListenerCount(); n != 0 {
		t.Errorf("listeners after disconnect = %d", n)
	}
}

func TestSessionHandler_EventStream(t *testing.T) {
	events := session.NewEventBroadcaster()
	h := NewSessionHandler(&fakeController{}, events, nil)

	srv := httptest.NewServer(http.HandlerFunc(h.EventStream))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, "GET", srv.URL, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}

	reader := bufio.NewReader(resp.Body)
	line, _ := reader.ReadString('\n')
	if line != "event: status\n" {
		t.Fatalf("first line = %q", line)
	}
	reader.ReadString('\n') // data
	reader.ReadString('\n') // blank

	events.SendEvent(session.Event{Type: session.EventEnrolled, Message: "New face trained and saved"})
	line, _ = reader.ReadString('\n')
	if line != "event: enrolled\n" {
		t.Errorf("event line = %q", line)
	}
	data, _ := reader.ReadString('\n')
	if !strings.Contains(data, "New face trained and saved") {
		t.Errorf("data line = %q", data)
	}
}

func TestSessionHandler_EventsDisabled(t *testing.T) {
	h := NewSessionHandler(&fakeController{}, nil, nil)
	recorder := httptest.NewRecorder()
	h.Events(recorder, httptest.NewRequest("GET", "/api/v1/session/events", nil))
	assertStatusCode(t, recorder, http.StatusNotFound)
}
