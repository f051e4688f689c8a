package database

import (
	"time"
)

// TranscriptEntry is one recognized utterance attributed to a known person.
type TranscriptEntry struct {
	Text      string    `json:"text" msgpack:"text"`
	Timestamp time.Time `json:"timestamp" msgpack:"timestamp"`
}

// Conversation is the transcript log between an owner (patient) and one known person.
// At most one conversation exists per (PatientID, KnownPersonID) pair; entries are
// kept in append order.
type Conversation struct {
	PatientID     string            `json:"patient_id" msgpack:"patient_id"`
	KnownPersonID string            `json:"known_person_id" msgpack:"known_person_id"`
	Entries       []TranscriptEntry `json:"conversations" msgpack:"entries"`
	CreatedAt     time.Time         `json:"created_at" msgpack:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at" msgpack:"updated_at"`
}

// Stats summarizes the contents of a store.
type Stats struct {
	Identities    int `json:"identities"`
	Conversations int `json:"conversations"`
	Entries       int `json:"entries"`
}
