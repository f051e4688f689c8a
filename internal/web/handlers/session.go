package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/kozaktomas/face-recall/internal/overlay"
	"github.com/kozaktomas/face-recall/internal/session"
)

// SessionController is the session lifecycle used by the control surface.
type SessionController interface {
	Begin(ctx context.Context) (string, <-chan session.Result, error)
	Stop() bool
	Status() session.Status
}

// SessionHandler handles the live session endpoints
type SessionHandler struct {
	controller SessionController
	events     *session.EventBroadcaster
	preview    *overlay.Preview
	upgrader   websocket.Upgrader
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(controller SessionController, events *session.EventBroadcaster, preview *overlay.Preview) *SessionHandler {
	return &SessionHandler{
		controller: controller,
		events:     events,
		preview:    preview,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// StartResponse is returned when a session starts
type StartResponse struct {
	Started   bool   `json:"started"`
	SessionID string `json:"session_id"`
}

// Start opens the camera, loads the catalog and runs the session in the background.
func (h *SessionHandler) Start(w http.ResponseWriter, r *http.Request) {
	id, _, err := h.controller.Begin(r.Context())
	switch {
	case errors.Is(err, session.ErrSessionRunning):
		respondError(w, http.StatusConflict, "session already running")
		return
	case errors.Is(err, session.ErrDeviceUnavailable):
		respondError(w, http.StatusServiceUnavailable, "could not open camera")
		return
	case err != nil:
		log.Printf("session start failed: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to start session")
		return
	}

	respondJSON(w, http.StatusAccepted, StartResponse{Started: true, SessionID: id})
}

// Stop asks the running session to end. Always succeeds.
func (h *SessionHandler) Stop(w http.ResponseWriter, r *http.Request) {
	running := h.controller.Stop()
	respondJSON(w, http.StatusOK, map[string]bool{
		"stopped":     true,
		"was_running": running,
	})
}

// Status returns the controller status.
func (h *SessionHandler) Status(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.controller.Status())
}

// Preview serves the last rendered overlay frame.
func (h *SessionHandler) Preview(w http.ResponseWriter, r *http.Request) {
	if h.preview == nil {
		respondError(w, http.StatusNotFound, "preview disabled")
		return
	}
	data, updated := h.preview.JPEG()
	if len(data) == 0 {
		respondError(w, http.StatusNotFound, "no frame rendered yet")
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Last-Modified", updated.UTC().Format(http.TimeFormat))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// Events streams session events over a websocket.
func (h *SessionHandler) Events(w http.ResponseWriter, r *http.Request) {
	if h.events == nil {
		respondError(w, http.StatusNotFound, "events disabled")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade: %v", err)
		return
	}
	defer conn.Close()

	eventCh := h.events.AddListener()
	defer h.events.RemoveListener(eventCh)

	// The reader only notices the client going away; clients never send.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := conn.WriteJSON(session.Event{Type: "status", Data: h.controller.Status(), Time: time.Now()}); err != nil {
		return
	}

	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case event, ok := <-eventCh:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(event); err != nil {
				log.Printf("websocket write: %v", err)
				return
			}
		}
	}
}

// EventStream streams session events as server-sent events, for clients without
// websocket support.
func (h *SessionHandler) EventStream(w http.ResponseWriter, r *http.Request) {
	if h.events == nil {
		respondError(w, http.StatusNotFound, "events disabled")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	eventCh := h.events.AddListener()
	defer h.events.RemoveListener(eventCh)

	sendSSEEvent(w, flusher, "status", h.controller.Status())

	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-eventCh:
			if !ok {
				return
			}
			sendSSEEvent(w, flusher, event.Type, event)
		}
	}
}
