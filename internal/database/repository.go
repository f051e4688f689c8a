package database

import (
	"context"
	"errors"

	"github.com/kozaktomas/face-recall/internal/facematch"
)

// ErrIdentityExists is returned when inserting an identity whose id is already stored.
var ErrIdentityExists = errors.New("identity already exists")

// IdentityReader provides read-only access to known identities
type IdentityReader interface {
	// ListIdentities returns every stored identity, oldest first
	ListIdentities(ctx context.Context) ([]facematch.KnownIdentity, error)
	// GetIdentity retrieves an identity by id, returns nil if not found
	GetIdentity(ctx context.Context, id string) (*facematch.KnownIdentity, error)
	// ListIdentitiesByOwner returns the identities belonging to one owner (patient)
	ListIdentitiesByOwner(ctx context.Context, ownerID string) ([]facematch.KnownIdentity, error)
	// CountIdentities returns the total number of stored identities
	CountIdentities(ctx context.Context) (int, error)
}

// IdentityWriter provides write access to known identities
type IdentityWriter interface {
	IdentityReader

	// InsertIdentity stores a new identity. Returns ErrIdentityExists on id collision.
	InsertIdentity(ctx context.Context, ident facematch.KnownIdentity) error

	// AssignOwner re-owns every stored identity to ownerID and returns how many changed.
	AssignOwner(ctx context.Context, ownerID string) (int64, error)
}

// ConversationReader provides read-only access to transcript logs
type ConversationReader interface {
	// GetConversation returns the log for one (patient, person) pair, nil if none exists
	GetConversation(ctx context.Context, patientID, knownPersonID string) (*Conversation, error)
	// ListConversations returns all logs of a patient
	ListConversations(ctx context.Context, patientID string) ([]Conversation, error)
}

// ConversationWriter provides write access to transcript logs
type ConversationWriter interface {
	ConversationReader

	// AppendEntry adds one entry to the (patient, person) log, creating it when absent.
	// Existing entries are never rewritten.
	AppendEntry(ctx context.Context, patientID, knownPersonID string, entry TranscriptEntry) error
}

// Store is a complete storage backend.
type Store interface {
	IdentityWriter
	ConversationWriter

	// Stats returns row counts for health reporting
	Stats(ctx context.Context) (Stats, error)
	// Close releases the backend's resources
	Close() error
}
