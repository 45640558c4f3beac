package sources

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lancerhq/lancer/pkg/domain"
)

type fakeSource struct {
	name    string
	results []*domain.Candidate
	err     error
	delay   time.Duration
	calls   int
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Search(ctx context.Context, query string, maxResults int, freshness string) ([]*domain.Candidate, error) {
	f.calls++
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.results, f.err
}

func candidate(source, url, content string) *domain.Candidate {
	return &domain.Candidate{Title: url, URL: url, Content: content, Source: source, Score: 0.5}
}

func TestAggregatorMergesAllSources(t *testing.T) {
	agg := NewAggregator([]domain.SourceClient{
		&fakeSource{name: "tavily", results: []*domain.Candidate{
			candidate("tavily", "https://a.example/one", "a"),
		}},
		&fakeSource{name: "brave", results: []*domain.Candidate{
			candidate("brave", "https://b.example/two", "b"),
		}},
	}, time.Second, nil)

	got, err := agg.Search(context.Background(), "query", 10, "")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(got) != 2 {
		t.Errorf("merged candidates = %d, want 2", len(got))
	}
}

func TestAggregatorTruncatesToMaxResults(t *testing.T) {
	results := make([]*domain.Candidate, 10)
	for i := range results {
		results[i] = candidate("tavily", "https://a.example/"+string(rune('a'+i)), "c")
	}
	agg := NewAggregator([]domain.SourceClient{
		&fakeSource{name: "tavily", results: results},
	}, time.Second, nil)

	got, err := agg.Search(context.Background(), "query", 3, "")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(got) != 3 {
		t.Errorf("candidates = %d, want truncated to 3", len(got))
	}
}

func TestAggregatorTruncationKeepsTrustedSources(t *testing.T) {
	agg := NewAggregator([]domain.SourceClient{
		&fakeSource{name: "duckduckgo", results: []*domain.Candidate{
			candidate("duckduckgo", "https://d.example/one", "d1"),
			candidate("duckduckgo", "https://d.example/two", "d2"),
		}},
		&fakeSource{name: "tavily", results: []*domain.Candidate{
			candidate("tavily", "https://t.example/one", "t1"),
		}},
	}, time.Second, nil)

	got, err := agg.Search(context.Background(), "query", 2, "")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("candidates = %d, want 2", len(got))
	}
	// Priority ordering puts the tavily result first regardless of which
	// source's goroutine finished first.
	if got[0].Source != "tavily" {
		t.Errorf("first candidate from %s, want tavily", got[0].Source)
	}
}

func TestAggregatorToleratesFailingSource(t *testing.T) {
	agg := NewAggregator([]domain.SourceClient{
		&fakeSource{name: "tavily", err: errors.New("api down")},
		&fakeSource{name: "duckduckgo", results: []*domain.Candidate{
			candidate("duckduckgo", "https://a.example/one", "a"),
		}},
	}, time.Second, nil)

	got, err := agg.Search(context.Background(), "query", 10, "")
	if err != nil {
		t.Fatalf("Search() error = %v, want partial results", err)
	}
	if len(got) != 1 {
		t.Errorf("candidates = %d, want 1 from the healthy source", len(got))
	}
}

func TestAggregatorAllSourcesEmpty(t *testing.T) {
	agg := NewAggregator([]domain.SourceClient{
		&fakeSource{name: "tavily", err: errors.New("api down")},
		&fakeSource{name: "brave"},
	}, time.Second, nil)

	_, err := agg.Search(context.Background(), "query", 10, "")
	if !errors.Is(err, domain.ErrNoResults) {
		t.Errorf("Search() error = %v, want ErrNoResults", err)
	}
}

func TestAggregatorBreakerSkipsFailingSource(t *testing.T) {
	failing := &fakeSource{name: "tavily", err: errors.New("api down")}
	healthy := &fakeSource{name: "brave", results: []*domain.Candidate{
		candidate("brave", "https://a.example/one", "a"),
	}}
	agg := NewAggregator([]domain.SourceClient{failing, healthy}, time.Second, nil)

	// Trip the breaker with five consecutive failures.
	for i := 0; i < 5; i++ {
		if _, err := agg.Search(context.Background(), "query", 10, ""); err != nil {
			t.Fatalf("Search() error = %v", err)
		}
	}
	callsBefore := failing.calls

	if _, err := agg.Search(context.Background(), "query", 10, ""); err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if failing.calls != callsBefore {
		t.Errorf("failing source called %d times after trip, want skipped", failing.calls-callsBefore)
	}
	if got := agg.Sources()["tavily"]; got != "open" {
		t.Errorf("breaker state = %s, want open", got)
	}
}

func TestDeduplicatePrefersHigherPrioritySource(t *testing.T) {
	input := []*domain.Candidate{
		candidate("duckduckgo", "https://www.example.com/page/", "short"),
		candidate("tavily", "https://example.com/page", "rich snippet from the api"),
		candidate("brave", "http://example.com/page?utm_source=x", "medium snippet"),
	}

	got := Deduplicate(input)
	if len(got) != 1 {
		t.Fatalf("deduplicated = %d candidates, want 1", len(got))
	}
	if got[0].Source != "tavily" {
		t.Errorf("survivor source = %s, want tavily", got[0].Source)
	}
}

func TestDeduplicateTieBreaksOnContentLength(t *testing.T) {
	input := []*domain.Candidate{
		candidate("brave", "https://example.com/page", "short"),
		candidate("brave", "https://example.com/page/", "much longer description here"),
	}

	got := Deduplicate(input)
	if len(got) != 1 {
		t.Fatalf("deduplicated = %d candidates, want 1", len(got))
	}
	if got[0].Content != "much longer description here" {
		t.Errorf("survivor content = %q, want the longer snippet", got[0].Content)
	}
}

func TestDeduplicateKeepsDistinctURLs(t *testing.T) {
	input := []*domain.Candidate{
		candidate("brave", "https://example.com/page-one", "a"),
		candidate("brave", "https://example.com/page-two", "b"),
	}

	if got := Deduplicate(input); len(got) != 2 {
		t.Errorf("deduplicated = %d candidates, want 2", len(got))
	}
}

func TestAggregatorSourceTimeout(t *testing.T) {
	slow := &fakeSource{name: "tavily", delay: 500 * time.Millisecond, results: []*domain.Candidate{
		candidate("tavily", "https://slow.example/one", "a"),
	}}
	fast := &fakeSource{name: "brave", results: []*domain.Candidate{
		candidate("brave", "https://fast.example/one", "b"),
	}}
	agg := NewAggregator([]domain.SourceClient{slow, fast}, 50*time.Millisecond, nil)

	got, err := agg.Search(context.Background(), "query", 10, "")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(got) != 1 || got[0].Source != "brave" {
		t.Errorf("got %d candidates, want only the fast source's result", len(got))
	}
}
