// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

// Face matching constants
const (
	// DefaultMatchThreshold is the maximum Euclidean distance for a probe to be
	// accepted as a known identity. Lower values = stricter matching
	DefaultMatchThreshold = 0.6

	// UnknownLabel is shown for faces without a confident match
	UnknownLabel = "Unknown"
)

// Frame loop constants
const (
	// DefaultSampleEvery is the frame sampling interval; only every Nth frame
	// runs detection and embedding
	DefaultSampleEvery = 5

	// DefaultMaxNewFaces is the number of unknown-face samples buffered before
	// a new identity is enrolled
	DefaultMaxNewFaces = 5

	// IdleReadDelayMs is how long the frame loop waits after a failed read
	// before retrying
	IdleReadDelayMs = 20

	// SpeechErrorDelayMs is the pause after a failed utterance capture before the
	// transcription worker tries again
	SpeechErrorDelayMs = 1000

	// SpeechIdleDelayMs is the pause after a capture that heard nothing
	SpeechIdleDelayMs = 200
)

// Enrollment placeholders
const (
	// DefaultEnrolledName is the display name given to auto-enrolled identities
	DefaultEnrolledName = "NewPerson"

	// DefaultEnrolledOwner is the owner id given to auto-enrolled identities
	DefaultEnrolledOwner = "patient_new"

	// EnrollmentTimeLayout formats the timestamp used in generated ids and image names
	EnrollmentTimeLayout = "20060102_150405"
)

// Search constants
const (
	// DefaultSimilarLimit is the default number of neighbours returned by similar-identity search
	DefaultSimilarLimit = 5

	// HNSWMaxNeighbors (M) is the maximum number of neighbours per node in the catalog index
	HNSWMaxNeighbors = 16
)

// Summary constants
const (
	// MinSummaryTextLen is the minimum transcript length worth summarizing
	MinSummaryTextLen = 10
)

// Event constants
const (
	// EventChannelBuffer is the buffer size for session event listener channels
	EventChannelBuffer = 100
)

// Face service constants
const (
	// FaceServiceMaxSide is the longest image side sent to the face service;
	// larger frames are downscaled and boxes scaled back
	FaceServiceMaxSide = 1280

	// FaceServiceJPEGQuality is the JPEG quality of frames sent for detection
	FaceServiceJPEGQuality = 85
)
