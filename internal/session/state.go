// Package session runs a live recognition session: a frame loop that matches and
// enrolls faces and a transcription worker that logs speech for whoever is in frame.
// The two share one State and stop together.
package session

import "sync"

// State is the mutable state shared by the frame loop and the transcription worker.
// Every read and write goes through one mutex.
type State struct {
	mu               sync.Mutex
	transcript       string
	activeIdentityID string
	activePatientID  string
	bound            bool
	shutdown         bool
}

// Snapshot is a consistent copy of State.
type Snapshot struct {
	Transcript        string `json:"transcript"`
	ActiveIdentityID  string `json:"active_identity_id,omitempty"`
	ActivePatientID   string `json:"active_patient_id,omitempty"`
	Bound             bool   `json:"bound"`
	ShutdownRequested bool   `json:"shutdown_requested"`
}

// NewState creates an empty, unbound state.
func NewState() *State {
	return &State{}
}

// SetTranscript records the latest utterance.
func (s *State) SetTranscript(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcript = text
}

// Transcript returns the latest utterance.
func (s *State) Transcript() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transcript
}

// BindIdentity makes identityID (owned by patientID) the active identity.
// The binding stays until another identity is matched.
func (s *State) BindIdentity(identityID, patientID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeIdentityID = identityID
	s.activePatientID = patientID
	s.bound = identityID != "" && patientID != ""
}

// Binding returns the active identity and its patient, and whether both are set.
func (s *State) Binding() (identityID, patientID string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeIdentityID, s.activePatientID, s.bound
}

// RequestShutdown asks both units to stop. Idempotent.
func (s *State) RequestShutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shutdown = true
}

// ShutdownRequested reports whether RequestShutdown was called.
func (s *State) ShutdownRequested() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shutdown
}

// Snapshot returns all fields read under a single lock acquisition.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Transcript:        s.transcript,
		ActiveIdentityID:  s.activeIdentityID,
		ActivePatientID:   s.activePatientID,
		Bound:             s.bound,
		ShutdownRequested: s.shutdown,
	}
}
