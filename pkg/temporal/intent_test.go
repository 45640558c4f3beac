package temporal

import (
	"testing"
	"time"

	"github.com/lancerhq/lancer/pkg/domain"
)

func fixedDetector() *Detector {
	return NewDetectorAt(func() time.Time {
		return time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	})
}

func TestDetectCurrentIntent(t *testing.T) {
	d := fixedDetector()

	queries := []string{
		"latest news on climate policy",
		"bitcoin price today",
		"weather forecast for lisbon today",
		"best laptops 2026",
		"what is the current inflation rate",
		"cotação do dólar hoje",
	}

	for _, q := range queries {
		tc := d.Detect(q)
		if tc.Intent != domain.IntentCurrent {
			t.Errorf("Detect(%q) intent = %s, want current", q, tc.Intent)
		}
		if tc.Urgency <= 0.3 {
			t.Errorf("Detect(%q) urgency = %f, want > 0.3", q, tc.Urgency)
		}
	}
}

func TestDetectHistoricalIntent(t *testing.T) {
	d := fixedDetector()

	queries := []string{
		"history of the roman empire",
		"who invented the telephone",
		"origin of the portuguese language",
		"história do brasil colonial",
	}

	for _, q := range queries {
		tc := d.Detect(q)
		if tc.Intent != domain.IntentHistorical {
			t.Errorf("Detect(%q) intent = %s, want historical", q, tc.Intent)
		}
		if tc.Urgency < 0.1 || tc.Urgency > 0.2 {
			t.Errorf("Detect(%q) urgency = %f, want in [0.1, 0.2]", q, tc.Urgency)
		}
	}
}

func TestDetectNeutralIntent(t *testing.T) {
	d := fixedDetector()

	tc := d.Detect("how does photosynthesis work")
	if tc.Intent != domain.IntentNeutral {
		t.Errorf("intent = %s, want neutral", tc.Intent)
	}
	if tc.Urgency != 0.5 {
		t.Errorf("urgency = %f, want 0.5", tc.Urgency)
	}
}

func TestDetectSingleWeakSignalStaysNeutral(t *testing.T) {
	d := fixedDetector()

	// One entity-pattern hit scores exactly 0.2, below the strict
	// threshold; the query must stay neutral with no freshness filter.
	for _, q := range []string{"weather in paris", "bitcoin price"} {
		tc := d.Detect(q)
		if tc.Intent != domain.IntentNeutral {
			t.Errorf("Detect(%q) intent = %s, want neutral", q, tc.Intent)
		}
		if got := FreshnessParam(tc); got != "" {
			t.Errorf("Detect(%q) freshness = %q, want none", q, got)
		}
	}
}

func TestDetectCurrentYearIsCurrencySignal(t *testing.T) {
	d := fixedDetector()

	tc := d.Detect("typescript frameworks 2026")
	if tc.Intent != domain.IntentCurrent {
		t.Errorf("intent = %s, want current", tc.Intent)
	}

	tc = d.Detect("typescript frameworks 2019")
	if tc.Intent != domain.IntentHistorical {
		t.Errorf("intent = %s, want historical for past year", tc.Intent)
	}
}

func TestDetectUrgencyCapped(t *testing.T) {
	d := fixedDetector()

	tc := d.Detect("latest breaking news right now today live scores")
	if tc.Urgency > 1.0 {
		t.Errorf("urgency = %f, want <= 1.0", tc.Urgency)
	}
}

func TestDetectCurrentDate(t *testing.T) {
	d := fixedDetector()

	tc := d.Detect("anything")
	if tc.CurrentDate != "2026-08-31" {
		t.Errorf("current date = %s, want 2026-08-31", tc.CurrentDate)
	}
}

func TestFreshnessParam(t *testing.T) {
	tests := []struct {
		name string
		tc   domain.TemporalContext
		want string
	}{
		{"neutral", domain.TemporalContext{Intent: domain.IntentNeutral, Urgency: 0.5}, ""},
		{"historical", domain.TemporalContext{Intent: domain.IntentHistorical, Urgency: 0.1}, ""},
		{"mild current", domain.TemporalContext{Intent: domain.IntentCurrent, Urgency: 0.5}, "month"},
		{"strong current", domain.TemporalContext{Intent: domain.IntentCurrent, Urgency: 0.7}, "week"},
		{"urgent", domain.TemporalContext{Intent: domain.IntentCurrent, Urgency: 0.9}, "day"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FreshnessParam(tt.tc); got != tt.want {
				t.Errorf("FreshnessParam() = %q, want %q", got, tt.want)
			}
		})
	}
}
