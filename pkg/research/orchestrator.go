package research

import (
	"context"
	"time"

	"github.com/lancerhq/lancer/pkg/config"
	"github.com/lancerhq/lancer/pkg/domain"
	"github.com/lancerhq/lancer/pkg/observability"
	"github.com/lancerhq/lancer/pkg/rerank"
	"github.com/lancerhq/lancer/pkg/sources"
	"github.com/lancerhq/lancer/pkg/temporal"
)

// DimensionFinding is the researched material for one plan dimension.
type DimensionFinding struct {
	Dimension  domain.ResearchDimension `json:"dimension"`
	Candidates []*domain.Candidate      `json:"candidates"`
	SourceText string                   `json:"-"`
}

// Orchestrator runs multi-dimension deep research: plan, then research
// each dimension in priority order, then stream a consolidated report.
// Dimensions run sequentially so each one gets a fair share of the search
// budget and the progress stream stays ordered.
type Orchestrator struct {
	planner    *Planner
	aggregator *sources.Aggregator
	pipeline   *rerank.Pipeline
	detector   *temporal.Detector
	scraper    *sources.Scraper
	synth      *Synthesizer
	cfg        config.ResearchConfig

	logger  *observability.StructuredLogger
	metrics *observability.Metrics
}

// NewOrchestrator wires the deep research flow. metrics may be nil.
func NewOrchestrator(planner *Planner, aggregator *sources.Aggregator, pipeline *rerank.Pipeline, detector *temporal.Detector, scraper *sources.Scraper, synth *Synthesizer, cfg config.ResearchConfig, metrics *observability.Metrics) *Orchestrator {
	return &Orchestrator{
		planner:    planner,
		aggregator: aggregator,
		pipeline:   pipeline,
		detector:   detector,
		scraper:    scraper,
		synth:      synth,
		cfg:        cfg,
		logger:     observability.NewStructuredLogger("research"),
		metrics:    metrics,
	}
}

// Run executes deep research for query, emitting progress on events. The
// channel is not closed by Run; the final event is always done or error.
func (o *Orchestrator) Run(ctx context.Context, query string, events chan<- domain.StreamEvent) {
	start := time.Now()
	send := func(e domain.StreamEvent) {
		select {
		case events <- e:
		case <-ctx.Done():
		}
	}
	fail := func(err error) {
		o.recordRun(ctx, "error")
		send(domain.NewStreamEvent(domain.EventError, map[string]interface{}{"error": err.Error()}))
	}

	tc := o.detector.Detect(query)
	send(domain.NewStreamEvent(domain.EventStatus, map[string]interface{}{"phase": "planning"}))

	plan := o.planner.Plan(ctx, query, tc)
	send(domain.NewStreamEvent(domain.EventPlanReady, map[string]interface{}{"plan": plan}))

	if ctx.Err() != nil {
		fail(ctx.Err())
		return
	}

	// The search budget is split evenly across dimensions; leftovers from
	// the division stay unused rather than skewing early dimensions.
	perDim := o.cfg.MaxTotalSearches / len(plan.Dimensions)
	if perDim < o.cfg.MaxSourcesPerDim {
		perDim = o.cfg.MaxSourcesPerDim
	}

	freshness := temporal.FreshnessParam(tc)
	findings := make([]DimensionFinding, 0, len(plan.Dimensions))
	var citations []domain.Citation
	nextIndex := 1
	scrapeBudget := o.cfg.MaxScrape

	for _, dim := range plan.Dimensions {
		if ctx.Err() != nil {
			fail(ctx.Err())
			return
		}

		send(domain.NewStreamEvent(domain.EventDimensionStart, map[string]interface{}{
			"name":     dim.Name,
			"priority": dim.Priority,
		}))

		candidates, err := o.aggregator.Search(ctx, dim.SearchQuery, perDim, freshness)
		if err != nil {
			// A dry dimension degrades the report, not the run.
			o.logger.Warn(ctx, "dimension search returned nothing", map[string]interface{}{
				"dimension": dim.Name,
				"error":     err.Error(),
			})
			send(domain.NewStreamEvent(domain.EventDimensionComplete, map[string]interface{}{
				"name":    dim.Name,
				"sources": 0,
			}))
			continue
		}

		candidates = o.pipeline.Rerank(ctx, dim.SearchQuery, candidates, tc)
		if len(candidates) > o.cfg.MaxSourcesPerDim {
			candidates = candidates[:o.cfg.MaxSourcesPerDim]
		}

		// High-priority dimensions get the scrape budget first.
		if scrapeBudget > 0 {
			n := scrapeBudget
			if n > len(candidates) {
				n = len(candidates)
			}
			o.scraper.Enrich(ctx, candidates, n)
			scrapeBudget -= n
		}

		sourceText, dimCitations := BuildContext(candidates, nextIndex)
		nextIndex += len(dimCitations)
		citations = append(citations, dimCitations...)

		findings = append(findings, DimensionFinding{
			Dimension:  dim,
			Candidates: candidates,
			SourceText: sourceText,
		})

		send(domain.NewStreamEvent(domain.EventDimensionComplete, map[string]interface{}{
			"name":    dim.Name,
			"sources": len(candidates),
		}))
	}

	if len(findings) == 0 {
		fail(domain.ErrNoResults)
		return
	}

	send(domain.NewStreamEvent(domain.EventResults, map[string]interface{}{
		"citations": citations,
	}))

	ch, err := o.synth.StreamReport(ctx, plan, findings, citations)
	if err != nil {
		fail(err)
		return
	}
	for chunk := range ch {
		if chunk.Err != nil {
			fail(chunk.Err)
			return
		}
		if chunk.Content != "" {
			send(domain.NewStreamEvent(domain.EventReportChunk, map[string]interface{}{
				"content": chunk.Content,
			}))
		}
	}

	o.recordRun(ctx, "ok")
	send(domain.NewStreamEvent(domain.EventDone, map[string]interface{}{
		"dimensions":         len(findings),
		"citations":          len(citations),
		"processing_time_ms": float64(time.Since(start).Milliseconds()),
	}))
}

func (o *Orchestrator) recordRun(ctx context.Context, status string) {
	if o.metrics != nil {
		o.metrics.RecordResearchRun(ctx, status)
	}
}
