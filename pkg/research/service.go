package research

import (
	"context"
	"strings"
	"time"

	"github.com/lancerhq/lancer/pkg/domain"
	"github.com/lancerhq/lancer/pkg/observability"
	"github.com/lancerhq/lancer/pkg/rerank"
	"github.com/lancerhq/lancer/pkg/sources"
	"github.com/lancerhq/lancer/pkg/temporal"
)

// Service is the one-shot search flow: aggregate, rerank, optionally
// synthesize an answer.
type Service struct {
	aggregator *sources.Aggregator
	pipeline   *rerank.Pipeline
	detector   *temporal.Detector
	synth      *Synthesizer
	scraper    *sources.Scraper

	defaultMaxResults int
	heavyScrapeTop    int

	logger  *observability.StructuredLogger
	metrics *observability.Metrics
}

// NewService wires the search flow. metrics may be nil.
func NewService(aggregator *sources.Aggregator, pipeline *rerank.Pipeline, detector *temporal.Detector, synth *Synthesizer, scraper *sources.Scraper, defaultMaxResults, heavyScrapeTop int, metrics *observability.Metrics) *Service {
	if defaultMaxResults < 1 {
		defaultMaxResults = 10
	}
	if heavyScrapeTop < 1 {
		heavyScrapeTop = 5
	}
	return &Service{
		aggregator:        aggregator,
		pipeline:          pipeline,
		detector:          detector,
		synth:             synth,
		scraper:           scraper,
		defaultMaxResults: defaultMaxResults,
		heavyScrapeTop:    heavyScrapeTop,
		logger:            observability.NewStructuredLogger("search"),
		metrics:           metrics,
	}
}

// retrieve runs detection, aggregation, domain filtering, and reranking.
func (s *Service) retrieve(ctx context.Context, req domain.SearchRequest) ([]*domain.Candidate, domain.TemporalContext, error) {
	tc := s.detector.Detect(req.Query)

	freshness := req.Freshness
	if freshness == "" {
		freshness = temporal.FreshnessParam(tc)
	}

	maxResults := req.MaxResults
	if maxResults < 1 {
		maxResults = s.defaultMaxResults
	}

	candidates, err := s.aggregator.Search(ctx, req.Query, maxResults, freshness)
	if err != nil {
		return nil, tc, err
	}

	candidates = filterDomains(candidates, req.IncludeDomains, req.ExcludeDomains)
	if len(candidates) == 0 {
		return nil, tc, domain.ErrNoResults
	}

	candidates = s.pipeline.Rerank(ctx, req.Query, candidates, tc)
	if len(candidates) > maxResults {
		candidates = candidates[:maxResults]
	}
	return candidates, tc, nil
}

// Search runs the one-shot flow. With IncludeAnswer set, a synthesized
// answer and citations accompany the ranked results; synthesis failure
// degrades to results-only rather than failing the request.
func (s *Service) Search(ctx context.Context, req domain.SearchRequest) (*domain.SearchResponse, error) {
	start := time.Now()
	candidates, tc, err := s.retrieve(ctx, req)
	if err != nil {
		s.record(ctx, "search", "error", start)
		return nil, err
	}

	resp := &domain.SearchResponse{
		Query:           req.Query,
		Results:         candidates,
		TemporalContext: tc,
	}

	if req.IncludeAnswer {
		answer, citations, err := s.synth.Answer(ctx, req.Query, candidates, tc)
		if err != nil {
			s.logger.Warn(ctx, "answer synthesis failed, returning results only", map[string]interface{}{
				"error": err.Error(),
			})
		} else {
			resp.Answer = answer
			resp.Citations = citations
		}
	}

	resp.ProcessingTimeMS = float64(time.Since(start).Milliseconds())
	s.record(ctx, "search", "ok", start)
	return resp, nil
}

// HeavySearch scrapes the top ranked results before synthesis so the
// answer draws on full page bodies instead of snippets.
func (s *Service) HeavySearch(ctx context.Context, req domain.SearchRequest) (*domain.SearchResponse, error) {
	start := time.Now()
	candidates, tc, err := s.retrieve(ctx, req)
	if err != nil {
		s.record(ctx, "heavy", "error", start)
		return nil, err
	}

	s.scraper.Enrich(ctx, candidates, s.heavyScrapeTop)

	resp := &domain.SearchResponse{
		Query:           req.Query,
		Results:         candidates,
		TemporalContext: tc,
	}

	answer, citations, err := s.synth.Answer(ctx, req.Query, candidates, tc)
	if err != nil {
		s.logger.Warn(ctx, "heavy answer synthesis failed, returning results only", map[string]interface{}{
			"error": err.Error(),
		})
	} else {
		resp.Answer = answer
		resp.Citations = citations
	}

	resp.ProcessingTimeMS = float64(time.Since(start).Milliseconds())
	s.record(ctx, "heavy", "ok", start)
	return resp, nil
}

// StreamSearch runs the one-shot flow and emits progress plus answer
// chunks on events. The channel is not closed; a done or error event marks
// the end.
func (s *Service) StreamSearch(ctx context.Context, req domain.SearchRequest, events chan<- domain.StreamEvent) {
	s.stream(ctx, req, events, false)
}

// StreamHeavySearch is the streaming form of HeavySearch: top results are
// scraped for full content before synthesis, and an answer is always
// produced.
func (s *Service) StreamHeavySearch(ctx context.Context, req domain.SearchRequest, events chan<- domain.StreamEvent) {
	req.IncludeAnswer = true
	s.stream(ctx, req, events, true)
}

func (s *Service) stream(ctx context.Context, req domain.SearchRequest, events chan<- domain.StreamEvent, heavy bool) {
	start := time.Now()
	mode := "stream"
	if heavy {
		mode = "heavy_stream"
	}
	send := func(e domain.StreamEvent) {
		select {
		case events <- e:
		case <-ctx.Done():
		}
	}

	send(domain.NewStreamEvent(domain.EventStatus, map[string]interface{}{"phase": "searching"}))

	candidates, tc, err := s.retrieve(ctx, req)
	if err != nil {
		s.record(ctx, mode, "error", start)
		send(domain.NewStreamEvent(domain.EventError, map[string]interface{}{"error": err.Error()}))
		return
	}

	if heavy {
		send(domain.NewStreamEvent(domain.EventStatus, map[string]interface{}{"phase": "scraping"}))
		s.scraper.Enrich(ctx, candidates, s.heavyScrapeTop)
	}

	send(domain.NewStreamEvent(domain.EventResults, map[string]interface{}{
		"results":          candidates,
		"temporal_context": tc,
	}))

	if req.IncludeAnswer {
		ch, citations, err := s.synth.StreamAnswer(ctx, req.Query, candidates, tc)
		if err != nil {
			send(domain.NewStreamEvent(domain.EventError, map[string]interface{}{"error": err.Error()}))
			return
		}
		send(domain.NewStreamEvent(domain.EventAnswerStart, map[string]interface{}{"citations": citations}))
		for chunk := range ch {
			if chunk.Err != nil {
				send(domain.NewStreamEvent(domain.EventError, map[string]interface{}{"error": chunk.Err.Error()}))
				return
			}
			if chunk.Content != "" {
				send(domain.NewStreamEvent(domain.EventAnswerChunk, map[string]interface{}{"content": chunk.Content}))
			}
		}
	}

	s.record(ctx, mode, "ok", start)
	send(domain.NewStreamEvent(domain.EventDone, map[string]interface{}{
		"processing_time_ms": float64(time.Since(start).Milliseconds()),
	}))
}

func (s *Service) record(ctx context.Context, mode, status string, start time.Time) {
	if s.metrics != nil {
		s.metrics.RecordSearchRequest(ctx, mode, status, time.Since(start).Seconds())
	}
}

// filterDomains applies include and exclude host filters. An empty include
// list allows all hosts.
func filterDomains(candidates []*domain.Candidate, include, exclude []string) []*domain.Candidate {
	if len(include) == 0 && len(exclude) == 0 {
		return candidates
	}
	out := candidates[:0]
	for _, c := range candidates {
		host := strings.ToLower(domain.NormalizeURL(c.URL))
		if slash := strings.Index(host, "/"); slash >= 0 {
			host = host[:slash]
		}
		if matchesAny(host, exclude) {
			continue
		}
		if len(include) > 0 && !matchesAny(host, include) {
			continue
		}
		out = append(out, c)
	}
	return out
}

func matchesAny(host string, domains []string) bool {
	for _, d := range domains {
		d = strings.ToLower(strings.TrimPrefix(d, "www."))
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}
