package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/face-recall/internal/constants"
	"github.com/kozaktomas/face-recall/internal/database"
	"github.com/kozaktomas/face-recall/internal/facematch"
	"github.com/kozaktomas/face-recall/internal/imagestore"
)

// PersonsHandler handles known-person endpoints
type PersonsHandler struct {
	store  database.IdentityWriter
	images imagestore.Store
}

// NewPersonsHandler creates a new persons handler
func NewPersonsHandler(store database.IdentityWriter, images imagestore.Store) *PersonsHandler {
	return &PersonsHandler{
		store:  store,
		images: images,
	}
}

// PersonResponse is a known person without its embedding
type PersonResponse struct {
	ID        string `json:"known_person_id"`
	PatientID string `json:"patient_id"`
	Name      string `json:"name"`
	ImagePath string `json:"image_path"`
	CreatedAt string `json:"created_at"`
	Dim       int    `json:"embedding_dim"`
}

func toPersonResponse(ident facematch.KnownIdentity) PersonResponse {
	return PersonResponse{
		ID:        ident.ID,
		PatientID: ident.OwnerID,
		Name:      ident.DisplayName,
		ImagePath: ident.ImagePath,
		CreatedAt: ident.CreatedAt.UTC().Format(time.RFC3339),
		Dim:       len(ident.Embedding),
	}
}

// List returns known persons, optionally filtered by ?owner= and ?name=.
func (h *PersonsHandler) List(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")
	name := r.URL.Query().Get("name")

	var (
		identities []facematch.KnownIdentity
		err        error
	)
	if owner != "" {
		identities, err = h.store.ListIdentitiesByOwner(r.Context(), owner)
	} else {
		identities, err = h.store.ListIdentities(r.Context())
	}
	if err != nil {
		log.Printf("list persons: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to list persons")
		return
	}

	out := make([]PersonResponse, 0, len(identities))
	for _, ident := range identities {
		if name != "" && !facematch.NameMatches(name, ident.DisplayName) {
			continue
		}
		out = append(out, toPersonResponse(ident))
	}
	respondJSON(w, http.StatusOK, out)
}

// Get returns one known person.
func (h *PersonsHandler) Get(w http.ResponseWriter, r *http.Request) {
	ident, ok := h.lookup(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, toPersonResponse(*ident))
}

// SimilarResponse lists the nearest known persons to one identity
type SimilarResponse struct {
	ID      string          `json:"known_person_id"`
	Similar []SimilarPerson `json:"similar"`
}

// SimilarPerson is one neighbour in a similarity listing
type SimilarPerson struct {
	PersonResponse
	Distance float64 `json:"distance"`
}

// Similar returns the k known persons closest to {id}.
func (h *PersonsHandler) Similar(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	k := min(queryInt(r, "k", constants.DefaultSimilarLimit), constants.MaxSimilarLimit)

	identities, err := h.store.ListIdentities(r.Context())
	if err != nil {
		log.Printf("list persons: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to list persons")
		return
	}
	catalog, err := facematch.NewCatalog(identities)
	if err != nil {
		log.Printf("build catalog: %v", err)
		respondError(w, http.StatusInternalServerError, "stored identities are inconsistent")
		return
	}

	neighbors, ok := facematch.NewIndex(catalog).SimilarTo(id, k)
	if !ok {
		respondError(w, http.StatusNotFound, "person not found")
		return
	}

	resp := SimilarResponse{ID: id, Similar: make([]SimilarPerson, 0, len(neighbors))}
	for _, n := range neighbors {
		resp.Similar = append(resp.Similar, SimilarPerson{
			PersonResponse: toPersonResponse(n.Identity),
			Distance:       n.Distance,
		})
	}
	respondJSON(w, http.StatusOK, resp)
}

// AssignOwnerRequest is the body of a bulk re-own
type AssignOwnerRequest struct {
	OwnerID string `json:"owner_id"`
}

// AssignOwner re-owns every known person to the given patient.
func (h *PersonsHandler) AssignOwner(w http.ResponseWriter, r *http.Request) {
	var req AssignOwnerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.OwnerID == "" {
		respondError(w, http.StatusBadRequest, "owner_id is required")
		return
	}

	total, err := h.store.CountIdentities(r.Context())
	if err != nil {
		log.Printf("count persons: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to count persons")
		return
	}
	if total == 0 {
		respondError(w, http.StatusNotFound, "no known persons records found to update")
		return
	}

	updated, err := h.store.AssignOwner(r.Context(), req.OwnerID)
	if err != nil {
		log.Printf("assign owner %s: %v", sanitizeForLog(req.OwnerID), err)
		respondError(w, http.StatusInternalServerError, "failed to update known persons")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"owner_id": req.OwnerID,
		"updated":  updated,
		"total":    total,
	})
}

// Image serves the frame captured when the person was enrolled.
func (h *PersonsHandler) Image(w http.ResponseWriter, r *http.Request) {
	ident, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if h.images == nil || ident.ImagePath == "" {
		respondError(w, http.StatusNotFound, "no image stored")
		return
	}

	name := path.Base(filepath.ToSlash(ident.ImagePath))
	rc, err := h.images.Open(r.Context(), name)
	if errors.Is(err, os.ErrNotExist) {
		respondError(w, http.StatusNotFound, "image not found")
		return
	}
	if err != nil {
		log.Printf("open image %s: %v", sanitizeForLog(name), err)
		respondError(w, http.StatusInternalServerError, "failed to open image")
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "image/jpeg")
	w.WriteHeader(http.StatusOK)
	io.Copy(w, rc)
}

// lookup loads {id} and writes a 404/500 when it cannot.
func (h *PersonsHandler) lookup(w http.ResponseWriter, r *http.Request) (*facematch.KnownIdentity, bool) {
	id := chi.URLParam(r, "id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "missing person ID")
		return nil, false
	}
	ident, err := h.store.GetIdentity(r.Context(), id)
	if err != nil {
		log.Printf("get person %s: %v", sanitizeForLog(id), err)
		respondError(w, http.StatusInternalServerError, "failed to get person")
		return nil, false
	}
	if ident == nil {
		respondError(w, http.StatusNotFound, "person not found")
		return nil, false
	}
	return ident, true
}
