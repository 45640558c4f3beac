package temporal

import (
	"math"
	"time"

	"github.com/lancerhq/lancer/pkg/domain"
)

const (
	// freshnessFloor keeps very old results from being zeroed out entirely.
	freshnessFloor = 0.01

	// missingDateScore is the neutral score for results with no publish date.
	missingDateScore = 0.5
)

// FreshnessScore computes an exponential decay score in [0.01, 1.0] for a
// publish date. halfLifeDays controls how fast relevance decays; a result
// exactly one half-life old scores 0.5. Future dates score 1.0 rather than
// being penalized, since slight clock skew is common in feeds.
func FreshnessScore(publishedAt *time.Time, halfLifeDays float64, now time.Time) float64 {
	if publishedAt == nil {
		return missingDateScore
	}
	ageDays := now.Sub(*publishedAt).Hours() / 24
	if ageDays < 0 {
		return 1.0
	}
	if halfLifeDays <= 0 {
		halfLifeDays = 30
	}
	score := math.Exp(-math.Ln2 * ageDays / halfLifeDays)
	if score < freshnessFloor {
		return freshnessFloor
	}
	if score > 1.0 {
		return 1.0
	}
	return score
}

// FreshnessLabel buckets a freshness score into a human-readable tag for
// API responses.
func FreshnessLabel(score float64) string {
	switch {
	case score >= 0.9:
		return "very fresh"
	case score >= 0.7:
		return "fresh"
	case score >= 0.4:
		return "recent"
	case score >= 0.15:
		return "old"
	default:
		return "very old"
	}
}

// AdjustScores applies freshness weighting to candidate scores in place.
// The blend weight is proportional to the query's temporal urgency, capped
// at maxWeight so relevance always dominates recency.
func AdjustScores(candidates []*domain.Candidate, tc domain.TemporalContext, halfLifeDays, maxWeight float64, now time.Time) {
	weight := tc.Urgency * maxWeight
	if weight <= 0 {
		return
	}
	for _, c := range candidates {
		c.Freshness = FreshnessScore(c.PublishedAt, halfLifeDays, now)
		c.FreshnessTag = FreshnessLabel(c.Freshness)
		c.Score = c.Score*(1-weight) + c.Freshness*weight
	}
}
