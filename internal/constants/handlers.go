// Package constants provides shared constants used across the codebase.
package constants

// Handler constants
const (
	// MaxSimilarLimit caps the k accepted by the similar-identity endpoint
	MaxSimilarLimit = 50

	// PreviewJPEGQuality is the JPEG quality used for the live preview image
	PreviewJPEGQuality = 80
)
