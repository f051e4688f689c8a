// Package facematch provides the identity matching and enrollment logic of the live
// session pipeline. Everything here is pure: no I/O, no goroutines.
package facematch

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/kozaktomas/face-recall/internal/constants"
)

var (
	// ErrDuplicateIdentity is returned when two catalog entries share an identity id.
	ErrDuplicateIdentity = errors.New("duplicate identity id")
	// ErrDimensionMismatch is returned when embeddings of different lengths are mixed.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// KnownIdentity is a person the system can recognize. Immutable once created.
type KnownIdentity struct {
	ID          string    `json:"known_person_id"`
	OwnerID     string    `json:"patient_id"`
	DisplayName string    `json:"name"`
	Embedding   []float32 `json:"face_encoding"`
	ImagePath   string    `json:"image_path"`
	CreatedAt   time.Time `json:"created_at"`
}

// Face is a single detected face with its probe embedding.
type Face struct {
	Index     int
	Box       Box
	Embedding []float32
	DetScore  float64
}

// MatchResult is the outcome of matching one probe against the catalog.
// Identity is nil for "Unknown". Distance is the minimum distance seen, or +Inf
// when the catalog was empty.
type MatchResult struct {
	Identity          *KnownIdentity
	Distance          float64
	ConfidencePercent float64
}

// Known reports whether the probe matched a catalog entry.
func (m MatchResult) Known() bool {
	return m.Identity != nil
}

// Label returns the overlay label, e.g. "Alice (70%)" or "Unknown".
func (m MatchResult) Label() string {
	if m.Identity == nil {
		return constants.UnknownLabel
	}
	return fmt.Sprintf("%s (%s%%)", m.Identity.DisplayName, strconv.FormatFloat(m.ConfidencePercent, 'f', -1, 64))
}

// Catalog is the session snapshot of known identities. It is never mutated after
// construction, so concurrent readers need no locking.
type Catalog struct {
	entries []KnownIdentity
	byID    map[string]int
	dim     int
}

// NewCatalog builds a catalog, keeping the input order. Identity ids must be unique
// and all embeddings must share one length.
func NewCatalog(identities []KnownIdentity) (*Catalog, error) {
	c := &Catalog{
		entries: make([]KnownIdentity, 0, len(identities)),
		byID:    make(map[string]int, len(identities)),
	}
	for _, ident := range identities {
		if _, ok := c.byID[ident.ID]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateIdentity, ident.ID)
		}
		if c.dim == 0 {
			c.dim = len(ident.Embedding)
		} else if len(ident.Embedding) != c.dim {
			return nil, fmt.Errorf("%w: %s has %d values, want %d", ErrDimensionMismatch, ident.ID, len(ident.Embedding), c.dim)
		}
		c.byID[ident.ID] = len(c.entries)
		c.entries = append(c.entries, ident)
	}
	return c, nil
}

// Len returns the number of identities in the catalog.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.entries)
}

// Dim returns the embedding length shared by all entries (0 for an empty catalog).
func (c *Catalog) Dim() int {
	if c == nil {
		return 0
	}
	return c.dim
}

// Get returns the identity with the given id.
func (c *Catalog) Get(id string) (KnownIdentity, bool) {
	if c == nil {
		return KnownIdentity{}, false
	}
	i, ok := c.byID[id]
	if !ok {
		return KnownIdentity{}, false
	}
	return c.entries[i], true
}

// Entries returns a copy of the catalog entries in load order.
func (c *Catalog) Entries() []KnownIdentity {
	if c == nil {
		return nil
	}
	out := make([]KnownIdentity, len(c.entries))
	copy(out, c.entries)
	return out
}
