package sources

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lancerhq/lancer/pkg/domain"
	"github.com/lancerhq/lancer/pkg/observability"
)

// sourcePriority decides which copy of a duplicate URL survives the merge.
// Lower is better. Sources with API-grade snippets outrank scraped ones.
var sourcePriority = map[string]int{
	"tavily":     0,
	"brave":      1,
	"searxng":    2,
	"wikipedia":  3,
	"duckduckgo": 4,
}

// Aggregator fans a query out to every registered source in parallel,
// tolerates per-source failures, and merges the results with URL-based
// deduplication. A failing source contributes nothing; the aggregate only
// errors when no source returns anything.
type Aggregator struct {
	clients       []domain.SourceClient
	breakers      map[string]*CircuitBreaker
	sourceTimeout time.Duration
	logger        *observability.StructuredLogger
	metrics       *observability.Metrics
}

// NewAggregator creates an aggregator over the given sources. metrics may
// be nil.
func NewAggregator(clients []domain.SourceClient, sourceTimeout time.Duration, metrics *observability.Metrics) *Aggregator {
	breakers := make(map[string]*CircuitBreaker, len(clients))
	for _, c := range clients {
		breakers[c.Name()] = DefaultBreaker()
	}
	return &Aggregator{
		clients:       clients,
		breakers:      breakers,
		sourceTimeout: sourceTimeout,
		logger:        observability.NewStructuredLogger("aggregator"),
		metrics:       metrics,
	}
}

// Sources returns the names of registered sources and their breaker states.
func (a *Aggregator) Sources() map[string]string {
	out := make(map[string]string, len(a.clients))
	for _, c := range a.clients {
		out[c.Name()] = a.breakers[c.Name()].State().String()
	}
	return out
}

// Search queries all healthy sources concurrently and returns the merged,
// deduplicated candidates, truncated to maxResults. The merge orders by
// source priority with each source's own ranking preserved.
func (a *Aggregator) Search(ctx context.Context, query string, maxResults int, freshness string) ([]*domain.Candidate, error) {
	if len(a.clients) == 0 {
		return nil, domain.ErrNoResults
	}

	var mu sync.Mutex
	collected := make([]*domain.Candidate, 0, maxResults*len(a.clients))

	g, gctx := errgroup.WithContext(ctx)
	for _, client := range a.clients {
		client := client
		breaker := a.breakers[client.Name()]

		if !breaker.CanExecute() {
			a.logger.Debug(ctx, "source skipped by circuit breaker", map[string]interface{}{
				"source": client.Name(),
			})
			continue
		}

		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(gctx, a.sourceTimeout)
			defer cancel()

			start := time.Now()
			results, err := client.Search(callCtx, query, maxResults, freshness)
			if a.metrics != nil {
				a.metrics.RecordSourceQuery(ctx, client.Name(), time.Since(start).Seconds(), err)
			}

			if err != nil {
				breaker.RecordFailure()
				a.logger.Warn(ctx, "source query failed", map[string]interface{}{
					"source": client.Name(),
					"error":  err.Error(),
				})
				// Source failures degrade the result set, never the request.
				return nil
			}
			breaker.RecordSuccess()

			mu.Lock()
			collected = append(collected, results...)
			mu.Unlock()
			return nil
		})
	}

	// Errors are swallowed per source; Wait only synchronizes.
	_ = g.Wait()

	// Fan-out completion order is arbitrary; restore source-priority order
	// so dedup and truncation favor the trusted sources.
	sort.SliceStable(collected, func(i, j int) bool {
		return priorityOf(collected[i].Source) < priorityOf(collected[j].Source)
	})

	merged := Deduplicate(collected)
	if a.metrics != nil {
		a.metrics.RecordCandidatesMerged(ctx, len(merged))
	}
	if len(merged) == 0 {
		return nil, domain.ErrNoResults
	}
	if maxResults > 0 && len(merged) > maxResults {
		merged = merged[:maxResults]
	}
	return merged, nil
}

// Deduplicate collapses candidates sharing a normalized URL. The survivor
// is the copy from the highest-priority source; on a priority tie the one
// with more snippet text wins. Survivor order follows first appearance.
func Deduplicate(candidates []*domain.Candidate) []*domain.Candidate {
	seen := make(map[string]int, len(candidates))
	out := make([]*domain.Candidate, 0, len(candidates))

	for _, c := range candidates {
		key := domain.NormalizeURL(c.URL)
		if key == "" {
			continue
		}
		idx, ok := seen[key]
		if !ok {
			seen[key] = len(out)
			out = append(out, c)
			continue
		}
		if betterDuplicate(c, out[idx]) {
			out[idx] = c
		}
	}
	return out
}

// betterDuplicate reports whether candidate a should replace b.
func betterDuplicate(a, b *domain.Candidate) bool {
	pa, pb := priorityOf(a.Source), priorityOf(b.Source)
	if pa != pb {
		return pa < pb
	}
	return len(a.Content) > len(b.Content)
}

func priorityOf(source string) int {
	if p, ok := sourcePriority[source]; ok {
		return p
	}
	return len(sourcePriority)
}
