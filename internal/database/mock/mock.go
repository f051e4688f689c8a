// Package mock provides mock implementations of database interfaces for testing.
package mock

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kozaktomas/face-recall/internal/database"
	"github.com/kozaktomas/face-recall/internal/facematch"
)

// MockStore is an in-memory implementation of database.Store
type MockStore struct {
	mu            sync.RWMutex
	identities    map[string]facematch.KnownIdentity
	order         []string
	conversations map[[2]string]*database.Conversation
	appendCalls   int
	insertCalls   int

	// Error injection
	ListError   error
	GetError    error
	InsertError error
	AssignError error
	AppendError error
	ConvError   error
	StatsError  error
}

// NewMockStore creates a new empty mock store
func NewMockStore() *MockStore {
	return &MockStore{
		identities:    make(map[string]facematch.KnownIdentity),
		conversations: make(map[[2]string]*database.Conversation),
	}
}

// AddIdentity seeds an identity without counting as an insert
func (m *MockStore) AddIdentity(ident facematch.KnownIdentity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.identities[ident.ID]; !ok {
		m.order = append(m.order, ident.ID)
	}
	m.identities[ident.ID] = ident
}

// InsertCalls returns how many times InsertIdentity succeeded
func (m *MockStore) InsertCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.insertCalls
}

// AppendCalls returns how many times AppendEntry succeeded
func (m *MockStore) AppendCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.appendCalls
}

// ListIdentities returns identities in insertion order
func (m *MockStore) ListIdentities(ctx context.Context) ([]facematch.KnownIdentity, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]facematch.KnownIdentity, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.identities[id])
	}
	return out, nil
}

// GetIdentity retrieves an identity by id
func (m *MockStore) GetIdentity(ctx context.Context, id string) (*facematch.KnownIdentity, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	ident, ok := m.identities[id]
	if !ok {
		return nil, nil
	}
	return &ident, nil
}

// ListIdentitiesByOwner returns the identities of one owner
func (m *MockStore) ListIdentitiesByOwner(ctx context.Context, ownerID string) ([]facematch.KnownIdentity, error) {
	all, err := m.ListIdentities(ctx)
	if err != nil {
		return nil, err
	}
	var out []facematch.KnownIdentity
	for _, ident := range all {
		if ident.OwnerID == ownerID {
			out = append(out, ident)
		}
	}
	return out, nil
}

// CountIdentities returns the number of identities
func (m *MockStore) CountIdentities(ctx context.Context) (int, error) {
	if m.ListError != nil {
		return 0, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.identities), nil
}

// InsertIdentity stores a new identity
func (m *MockStore) InsertIdentity(ctx context.Context, ident facematch.KnownIdentity) error {
	if m.InsertError != nil {
		return m.InsertError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.identities[ident.ID]; ok {
		return fmt.Errorf("%w: %s", database.ErrIdentityExists, ident.ID)
	}
	m.identities[ident.ID] = ident
	m.order = append(m.order, ident.ID)
	m.insertCalls++
	return nil
}

// AssignOwner re-owns all identities
func (m *MockStore) AssignOwner(ctx context.Context, ownerID string) (int64, error) {
	if m.AssignError != nil {
		return 0, m.AssignError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var changed int64
	for id, ident := range m.identities {
		if ident.OwnerID != ownerID {
			ident.OwnerID = ownerID
			m.identities[id] = ident
			changed++
		}
	}
	return changed, nil
}

// AppendEntry appends a transcript entry
func (m *MockStore) AppendEntry(ctx context.Context, patientID, knownPersonID string, entry database.TranscriptEntry) error {
	if m.AppendError != nil {
		return m.AppendError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := [2]string{patientID, knownPersonID}
	conv, ok := m.conversations[key]
	now := time.Now()
	if !ok {
		conv = &database.Conversation{PatientID: patientID, KnownPersonID: knownPersonID, CreatedAt: now}
		m.conversations[key] = conv
	}
	conv.Entries = append(conv.Entries, entry)
	conv.UpdatedAt = now
	m.appendCalls++
	return nil
}

// GetConversation returns a copy of one conversation
func (m *MockStore) GetConversation(ctx context.Context, patientID, knownPersonID string) (*database.Conversation, error) {
	if m.ConvError != nil {
		return nil, m.ConvError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	conv, ok := m.conversations[[2]string{patientID, knownPersonID}]
	if !ok {
		return nil, nil
	}
	c := copyConversation(conv)
	return &c, nil
}

// ListConversations returns copies of a patient's conversations, sorted by person id
func (m *MockStore) ListConversations(ctx context.Context, patientID string) ([]database.Conversation, error) {
	if m.ConvError != nil {
		return nil, m.ConvError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []database.Conversation
	for key, conv := range m.conversations {
		if key[0] == patientID {
			out = append(out, copyConversation(conv))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].KnownPersonID < out[j].KnownPersonID })
	return out, nil
}

// Stats returns record counts
func (m *MockStore) Stats(ctx context.Context) (database.Stats, error) {
	if m.StatsError != nil {
		return database.Stats{}, m.StatsError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	st := database.Stats{Identities: len(m.identities), Conversations: len(m.conversations)}
	for _, c := range m.conversations {
		st.Entries += len(c.Entries)
	}
	return st, nil
}

// Close is a no-op
func (m *MockStore) Close() error {
	return nil
}

func copyConversation(c *database.Conversation) database.Conversation {
	out := *c
	out.Entries = append([]database.TranscriptEntry(nil), c.Entries...)
	return out
}

var _ database.Store = (*MockStore)(nil)
