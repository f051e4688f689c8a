package handlers

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/kozaktomas/face-recall/internal/database"
)

const statsCacheTTL = 30 * time.Second

// statsCache holds cached stats with expiry
type statsCache struct {
	mu        sync.RWMutex
	data      *StatsResponse
	expiresAt time.Time
}

func (c *statsCache) get() (*StatsResponse, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.data == nil || time.Now().After(c.expiresAt) {
		return nil, false
	}
	return c.data, true
}

func (c *statsCache) set(data *StatsResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = data
	c.expiresAt = time.Now().Add(statsCacheTTL)
}

// StatsSource reports storage counts
type StatsSource interface {
	Stats(ctx context.Context) (database.Stats, error)
}

// StatsHandler handles the stats endpoint
type StatsHandler struct {
	store StatsSource
	cache statsCache
}

// NewStatsHandler creates a new stats handler
func NewStatsHandler(store StatsSource) *StatsHandler {
	return &StatsHandler{store: store}
}

// StatsResponse represents the stats response
type StatsResponse struct {
	KnownPersons  int `json:"known_persons"`
	Conversations int `json:"conversations"`
	Entries       int `json:"transcript_entries"`
}

// Get returns storage counts, cached briefly.
func (h *StatsHandler) Get(w http.ResponseWriter, r *http.Request) {
	if cached, ok := h.cache.get(); ok {
		respondJSON(w, http.StatusOK, cached)
		return
	}

	st, err := h.store.Stats(r.Context())
	if err != nil {
		log.Printf("stats: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}

	resp := &StatsResponse{
		KnownPersons:  st.Identities,
		Conversations: st.Conversations,
		Entries:       st.Entries,
	}
	h.cache.set(resp)
	respondJSON(w, http.StatusOK, resp)
}
