// Package scoring computes confidence and verification from an event's corroboration state.
// Every function here is pure and safe to call at read time.
package scoring

import "github.com/jonathan/workforce-signals/internal/types"

// Tier is the qualitative band of a confidence score.
type Tier string

// Tier constants
const (
	TierHigh   Tier = "high"
	TierMedium Tier = "medium"
	TierLow    Tier = "low"
)

const (
	verifiedBonus      = 30
	highReliability    = 90
	topReliability     = 95
	solidReliability   = 75
	corroborationBonus = 10

	// VerifyReliability is the per-source reliability that counts toward auto-verification.
	VerifyReliability = highReliability
	// VerifySourceCount is the source count that auto-verifies regardless of reliability.
	VerifySourceCount = 3
)

// Score returns the 0-100 display confidence of an event.
func Score(event *types.StatusEvent) int {
	if event == nil {
		return 0
	}

	score := 0
	if event.Verified {
		score += verifiedBonus
	}

	score += sourceCountPoints(len(event.Sources))

	if len(event.Sources) > 0 {
		score += reliabilityPoints(maxReliability(event.Sources))
	}

	if distinctHighReliability(event.Sources) >= 2 {
		score += corroborationBonus
	}

	return clamp(score, 0, 100)
}

// TierFor maps a score to its qualitative tier.
func TierFor(score int) Tier {
	switch {
	case score >= 80:
		return TierHigh
	case score >= 50:
		return TierMedium
	default:
		return TierLow
	}
}

// Evaluate returns both the score and tier for an event.
func Evaluate(event *types.StatusEvent) (int, Tier) {
	s := Score(event)
	return s, TierFor(s)
}

// ShouldVerify is the merge-time auto-verification predicate.
// It ignores verification and the display weights used by Score.
func ShouldVerify(sources []types.ContributingSource) bool {
	high := 0
	for _, s := range sources {
		if s.Reliability >= VerifyReliability {
			high++
		}
	}
	return high >= 2 || len(sources) >= VerifySourceCount
}

// SingleSourceVerified decides verification for a newly inserted single-source event.
func SingleSourceVerified(reliability int) bool {
	return reliability >= VerifyReliability
}

func sourceCountPoints(n int) int {
	switch {
	case n >= 3:
		return 50
	case n == 2:
		return 40
	case n == 1:
		return 20
	default:
		return 0
	}
}

func reliabilityPoints(r int) int {
	switch {
	case r >= topReliability:
		return 20
	case r >= highReliability:
		return 15
	case r >= solidReliability:
		return 10
	default:
		return 5
	}
}

func maxReliability(sources []types.ContributingSource) int {
	m := 0
	for _, s := range sources {
		if s.Reliability > m {
			m = s.Reliability
		}
	}
	return m
}

// distinctHighReliability counts source names with reliability >= 90.
func distinctHighReliability(sources []types.ContributingSource) int {
	seen := make(map[string]struct{})
	for _, s := range sources {
		if s.Reliability >= highReliability {
			seen[s.Name] = struct{}{}
		}
	}
	return len(seen)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
