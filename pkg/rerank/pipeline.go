package rerank

import (
	"context"
	"sort"
	"time"

	"github.com/lancerhq/lancer/pkg/config"
	"github.com/lancerhq/lancer/pkg/domain"
	"github.com/lancerhq/lancer/pkg/observability"
	"github.com/lancerhq/lancer/pkg/temporal"
)

// Pipeline reorders merged candidates through staged scoring. Stages that
// depend on the external scoring service degrade to the candidates' source
// priors when the service is down; the pipeline itself never fails.
type Pipeline struct {
	cfg     config.RerankConfig
	scorer  domain.ScoringClient
	logger  *observability.StructuredLogger
	metrics *observability.Metrics
	now     func() time.Time
}

// NewPipeline creates a reranking pipeline. scorer may be nil, which
// disables the semantic stages. metrics may be nil.
func NewPipeline(cfg config.RerankConfig, scorer domain.ScoringClient, metrics *observability.Metrics) *Pipeline {
	return &Pipeline{
		cfg:     cfg,
		scorer:  scorer,
		logger:  observability.NewStructuredLogger("rerank"),
		metrics: metrics,
		now:     time.Now,
	}
}

// Rerank scores and sorts candidates for a query, best first. The input
// slice is mutated in place and the (possibly shortened) result returned.
func (p *Pipeline) Rerank(ctx context.Context, query string, candidates []*domain.Candidate, tc domain.TemporalContext) []*domain.Candidate {
	if len(candidates) == 0 {
		return candidates
	}

	candidates = p.bulkFilter(ctx, query, candidates)
	p.pairwiseScore(ctx, query, candidates)

	start := time.Now()
	temporal.AdjustScores(candidates, tc, float64(p.cfg.HalfLifeDays), p.cfg.FreshnessCap, p.now())
	p.recordStage(ctx, "freshness", start)

	start = time.Now()
	for _, c := range candidates {
		c.Authority = AuthorityScore(c.URL)
		c.Score = c.Score*(1-p.cfg.AuthorityWeight) + c.Authority*p.cfg.AuthorityWeight
	}
	p.recordStage(ctx, "authority", start)

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})

	return candidates
}

// bulkFilter trims a large candidate set to the top candidates by embedding
// similarity. It only runs when the set is big enough for the cut to matter
// and passes everything through when the scoring service fails.
func (p *Pipeline) bulkFilter(ctx context.Context, query string, candidates []*domain.Candidate) []*domain.Candidate {
	if p.scorer == nil || len(candidates) <= p.cfg.SemanticMinInput {
		return candidates
	}

	start := time.Now()
	scores, err := p.scorer.BulkScore(ctx, query, documents(candidates))
	p.recordStage(ctx, "bulk_filter", start)
	if err != nil {
		p.logger.Warn(ctx, "bulk filter skipped", map[string]interface{}{
			"error": err.Error(),
		})
		p.recordFallback(ctx, "bulk_filter")
		return candidates
	}

	for i, c := range candidates {
		c.BulkScore = scores[i]
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].BulkScore > candidates[j].BulkScore
	})
	if len(candidates) > p.cfg.SemanticCutoff {
		candidates = candidates[:p.cfg.SemanticCutoff]
	}
	return candidates
}

// pairwiseScore blends precise relevance scores with the source priors.
// On scoring failure the priors stand as-is.
func (p *Pipeline) pairwiseScore(ctx context.Context, query string, candidates []*domain.Candidate) {
	if p.scorer == nil {
		return
	}

	start := time.Now()
	scores, err := p.scorer.PairwiseScore(ctx, query, documents(candidates))
	p.recordStage(ctx, "pairwise", start)
	if err != nil {
		p.logger.Warn(ctx, "pairwise scoring skipped", map[string]interface{}{
			"error": err.Error(),
		})
		p.recordFallback(ctx, "pairwise")
		return
	}

	w := p.cfg.PairwiseWeight
	for i, c := range candidates {
		c.PairwiseScore = scores[i]
		c.Score = scores[i]*w + c.Score*(1-w)
	}
}

func (p *Pipeline) recordStage(ctx context.Context, stage string, start time.Time) {
	if p.metrics != nil {
		p.metrics.RecordRerankStage(ctx, stage, time.Since(start).Seconds())
	}
}

func (p *Pipeline) recordFallback(ctx context.Context, reason string) {
	if p.metrics != nil {
		p.metrics.RecordScoringFallback(ctx, reason)
	}
}

// documents builds the scoring text for each candidate, preferring scraped
// full content over the search snippet.
func documents(candidates []*domain.Candidate) []string {
	docs := make([]string, len(candidates))
	for i, c := range candidates {
		text := c.Content
		if c.FullContent != "" {
			text = c.FullContent
		}
		docs[i] = c.Title + "\n" + text
	}
	return docs
}
