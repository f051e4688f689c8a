package handlers

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/kozaktomas/face-recall/internal/ai"
	"github.com/kozaktomas/face-recall/internal/database"
)

// ConversationsHandler handles transcript log endpoints
type ConversationsHandler struct {
	store      database.ConversationReader
	summarizer ai.Summarizer
	now        func() time.Time
}

// NewConversationsHandler creates a new conversations handler. summarizer may be
// nil, in which case the summary endpoint reports 503.
func NewConversationsHandler(store database.ConversationReader, summarizer ai.Summarizer) *ConversationsHandler {
	return &ConversationsHandler{
		store:      store,
		summarizer: summarizer,
		now:        time.Now,
	}
}

// List returns the conversation of one (patient, person) pair, or all of a
// patient's conversations when known_person_id is omitted.
func (h *ConversationsHandler) List(w http.ResponseWriter, r *http.Request) {
	patientID := r.URL.Query().Get("patient_id")
	personID := r.URL.Query().Get("known_person_id")
	if patientID == "" {
		respondError(w, http.StatusBadRequest, "patient_id is required")
		return
	}

	if personID == "" {
		convs, err := h.store.ListConversations(r.Context(), patientID)
		if err != nil {
			log.Printf("list conversations for %s: %v", sanitizeForLog(patientID), err)
			respondError(w, http.StatusInternalServerError, "failed to list conversations")
			return
		}
		if convs == nil {
			convs = []database.Conversation{}
		}
		respondJSON(w, http.StatusOK, convs)
		return
	}

	conv, err := h.store.GetConversation(r.Context(), patientID, personID)
	if err != nil {
		log.Printf("get conversation %s/%s: %v", sanitizeForLog(patientID), sanitizeForLog(personID), err)
		respondError(w, http.StatusInternalServerError, "failed to get conversation")
		return
	}
	if conv == nil {
		respondError(w, http.StatusNotFound, "no conversation found")
		return
	}
	respondJSON(w, http.StatusOK, conv)
}

// SummaryResponse wraps a summary with a success flag
type SummaryResponse struct {
	Success bool `json:"success"`
	*ai.Summary
}

// Summary summarizes one pair's conversation, for a single ?date= (YYYY-MM-DD) or
// for every day when date is omitted.
func (h *ConversationsHandler) Summary(w http.ResponseWriter, r *http.Request) {
	if h.summarizer == nil {
		respondError(w, http.StatusServiceUnavailable, "summarizer not configured")
		return
	}

	patientID := r.URL.Query().Get("patient_id")
	personID := r.URL.Query().Get("known_person_id")
	if patientID == "" || personID == "" {
		respondError(w, http.StatusBadRequest, "missing required parameters (patient_id, known_person_id)")
		return
	}

	var day time.Time
	if s := r.URL.Query().Get("date"); s != "" {
		var err error
		day, err = ai.ParseDay(s, h.now())
		if errors.Is(err, ai.ErrFutureDate) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid date format, use YYYY-MM-DD")
			return
		}
	}

	conv, err := h.store.GetConversation(r.Context(), patientID, personID)
	if err != nil {
		log.Printf("get conversation %s/%s: %v", sanitizeForLog(patientID), sanitizeForLog(personID), err)
		respondError(w, http.StatusInternalServerError, "failed to get conversation")
		return
	}

	summary, err := ai.SummarizeConversation(r.Context(), h.summarizer, conv, day)
	if err != nil {
		log.Printf("summarize %s/%s: %v", sanitizeForLog(patientID), sanitizeForLog(personID), err)
		respondError(w, http.StatusBadGateway, "failed to generate summary")
		return
	}
	summary.PatientID = patientID
	summary.KnownPersonID = personID

	if summary.MessageCount == 0 {
		summary.Summary = "No conversations found between these users"
		if summary.Date != "" {
			summary.Summary = "No conversations found for " + summary.Date
		}
		respondJSON(w, http.StatusOK, SummaryResponse{Success: false, Summary: summary})
		return
	}
	respondJSON(w, http.StatusOK, SummaryResponse{Success: true, Summary: summary})
}
