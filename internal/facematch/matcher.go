package facematch

import (
	"math"

	"github.com/kozaktomas/face-recall/internal/constants"
)

// Matcher finds the nearest known identity under a distance threshold.
type Matcher struct {
	threshold float64
}

// NewMatcher creates a matcher. A non-positive threshold selects the default (0.6).
func NewMatcher(threshold float64) *Matcher {
	if threshold <= 0 {
		threshold = constants.DefaultMatchThreshold
	}
	return &Matcher{threshold: threshold}
}

// Threshold returns the distance below which a match is accepted.
func (m *Matcher) Threshold() float64 {
	return m.threshold
}

// Match compares the probe against every catalog entry and returns the closest one
// when its distance is strictly below the threshold. Ties keep the first entry in
// catalog order. The minimum distance is reported even for "Unknown" results.
func (m *Matcher) Match(probe []float32, catalog *Catalog) MatchResult {
	if catalog.Len() == 0 {
		return MatchResult{Distance: math.Inf(1)}
	}

	best := -1
	bestDistance := math.Inf(1)
	for i := range catalog.entries {
		d := EuclideanDistance(probe, catalog.entries[i].Embedding)
		if d < bestDistance {
			best = i
			bestDistance = d
		}
	}

	if best < 0 || bestDistance >= m.threshold {
		return MatchResult{Distance: bestDistance}
	}

	ident := catalog.entries[best]
	return MatchResult{
		Identity:          &ident,
		Distance:          bestDistance,
		ConfidencePercent: confidencePercent(bestDistance),
	}
}

// Match is a convenience wrapper around Matcher.Match.
func Match(probe []float32, catalog *Catalog, threshold float64) MatchResult {
	return NewMatcher(threshold).Match(probe, catalog)
}
