package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/face-recall/internal/web/handlers"
	"github.com/kozaktomas/face-recall/internal/web/middleware"
)

func (s *Server) setupRoutes() {
	sessionHandler := handlers.NewSessionHandler(s.deps.Controller, s.deps.Events, s.deps.Preview)
	personsHandler := handlers.NewPersonsHandler(s.deps.Store, s.deps.Images)
	conversationsHandler := handlers.NewConversationsHandler(s.deps.Store, s.deps.Summarizer)
	statsHandler := handlers.NewStatsHandler(s.deps.Store)
	configHandler := handlers.NewConfigHandler(s.config)

	// Health check
	s.router.Get("/api/v1/health", handlers.HealthCheck)

	s.router.Route("/api/v1", func(r chi.Router) {
		// Live session
		r.Post("/session/start", sessionHandler.Start)
		r.Post("/session/stop", sessionHandler.Stop)
		r.Get("/session/status", sessionHandler.Status)
		r.Get("/session/events", sessionHandler.Events)
		r.Get("/session/events/stream", sessionHandler.EventStream)
		r.Get("/session/preview.jpg", sessionHandler.Preview)

		// Known persons
		r.Get("/persons", personsHandler.List)
		r.Put("/persons/owner", personsHandler.AssignOwner)
		r.Get("/persons/{id}", personsHandler.Get)
		r.Get("/persons/{id}/similar", personsHandler.Similar)
		r.Get("/persons/{id}/image", personsHandler.Image)

		// Conversations
		r.Get("/conversations", conversationsHandler.List)
		r.Get("/conversations/summary", conversationsHandler.Summary)

		// Config
		r.Get("/config", configHandler.Get)

		// Stats
		r.Get("/stats", statsHandler.Get)
	})

	s.router.Group(func(r chi.Router) {
		r.Use(middleware.SecurityHeaders())
		r.Get("/", s.serveIndex)
	})
}

// serveIndex serves a minimal page showing the live preview and event feed.
func (s *Server) serveIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`<!DOCTYPE html>
<html>
<head>
    <title>Face Recall</title>
    <style>
        body { font-family: system-ui, sans-serif; margin: 2rem; background: #1a1a2e; color: #eee; }
        h1 { color: #00d9ff; }
        img { max-width: 100%; border: 1px solid #333; }
        pre { background: #2a2a3e; padding: 1rem; height: 12rem; overflow-y: scroll; }
        a { color: #00d9ff; }
    </style>
</head>
<body>
    <h1>Face Recall</h1>
    <p>Start a session with <code>POST /api/v1/session/start</code>. API health: <a href="/api/v1/health">/api/v1/health</a></p>
    <img id="preview" alt="live preview">
    <pre id="events"></pre>
    <script>
        const img = document.getElementById('preview');
        setInterval(() => { img.src = '/api/v1/session/preview.jpg?t=' + Date.now(); }, 500);
        const log = document.getElementById('events');
        const src = new EventSource('/api/v1/session/events/stream');
        ['status', 'session_started', 'identity', 'transcript', 'enrolled', 'session_stopped'].forEach(t =>
            src.addEventListener(t, e => { log.textContent = t + ' ' + e.data + '\n' + log.textContent; }));
    </script>
</body>
</html>`))
}
