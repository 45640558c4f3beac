package temporal

import (
	"math"
	"testing"
	"time"

	"github.com/lancerhq/lancer/pkg/domain"
)

func TestFreshnessScoreDecay(t *testing.T) {
	now := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)

	halfLifeOld := now.AddDate(0, 0, -30)
	score := FreshnessScore(&halfLifeOld, 30, now)
	if math.Abs(score-0.5) > 0.001 {
		t.Errorf("score at one half-life = %f, want 0.5", score)
	}

	fresh := now.Add(-1 * time.Hour)
	if s := FreshnessScore(&fresh, 30, now); s < 0.99 {
		t.Errorf("score for hour-old result = %f, want near 1.0", s)
	}

	ancient := now.AddDate(-20, 0, 0)
	if s := FreshnessScore(&ancient, 30, now); s != 0.01 {
		t.Errorf("score for very old result = %f, want floor 0.01", s)
	}
}

func TestFreshnessScoreMissingDate(t *testing.T) {
	now := time.Now()
	if s := FreshnessScore(nil, 30, now); s != 0.5 {
		t.Errorf("score for missing date = %f, want 0.5", s)
	}
}

func TestFreshnessScoreFutureDate(t *testing.T) {
	now := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)
	future := now.AddDate(0, 0, 2)
	if s := FreshnessScore(&future, 30, now); s != 1.0 {
		t.Errorf("score for future date = %f, want 1.0", s)
	}
}

func TestFreshnessLabelBuckets(t *testing.T) {
	cases := []struct {
		score float64
		want  string
	}{
		{0.95, "very fresh"},
		{0.75, "fresh"},
		{0.5, "recent"},
		{0.2, "old"},
		{0.01, "very old"},
	}
	for _, tc := range cases {
		if got := FreshnessLabel(tc.score); got != tc.want {
			t.Errorf("FreshnessLabel(%f) = %q, want %q", tc.score, got, tc.want)
		}
	}
}

func TestAdjustScoresLabelsCandidates(t *testing.T) {
	now := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)
	recent := now.Add(-1 * time.Hour)
	candidates := []*domain.Candidate{
		{URL: "a.example", Score: 0.8, PublishedAt: &recent},
	}

	AdjustScores(candidates, domain.TemporalContext{Intent: domain.IntentCurrent, Urgency: 1.0}, 30, 0.4, now)

	if candidates[0].FreshnessTag != "very fresh" {
		t.Errorf("label = %q, want very fresh", candidates[0].FreshnessTag)
	}
}

func TestAdjustScoresBlendsByUrgency(t *testing.T) {
	now := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)
	recent := now.Add(-1 * time.Hour)
	old := now.AddDate(-5, 0, 0)

	candidates := []*domain.Candidate{
		{URL: "a.example/old", Score: 0.9, PublishedAt: &old},
		{URL: "b.example/new", Score: 0.8, PublishedAt: &recent},
	}

	tc := domain.TemporalContext{Intent: domain.IntentCurrent, Urgency: 1.0}
	AdjustScores(candidates, tc, 30, 0.4, now)

	// With full urgency the fresher, slightly less relevant result should
	// overtake the stale one.
	if candidates[1].Score <= candidates[0].Score {
		t.Errorf("fresh result %f should outrank stale result %f",
			candidates[1].Score, candidates[0].Score)
	}
}

func TestAdjustScoresNoopWithoutUrgency(t *testing.T) {
	now := time.Now()
	old := now.AddDate(-5, 0, 0)
	candidates := []*domain.Candidate{
		{URL: "a.example", Score: 0.9, PublishedAt: &old},
	}

	AdjustScores(candidates, domain.TemporalContext{Urgency: 0}, 30, 0.4, now)

	if candidates[0].Score != 0.9 {
		t.Errorf("score changed to %f, want unchanged 0.9", candidates[0].Score)
	}
}
