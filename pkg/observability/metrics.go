package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the service-level instruments for the search pipeline
type Metrics struct {
	// Search aggregation
	searchRequests   metric.Int64Counter
	searchDuration   metric.Float64Histogram
	sourceFailures   metric.Int64Counter
	sourceLatency    metric.Float64Histogram
	candidatesMerged metric.Int64Counter

	// Reranking
	rerankDuration   metric.Float64Histogram
	scoringFallbacks metric.Int64Counter

	// Agent and research flows
	agentRuns     metric.Int64Counter
	agentSteps    metric.Int64Counter
	researchRuns  metric.Int64Counter
	scrapeResults metric.Int64Counter

	// LLM usage
	llmRequests metric.Int64Counter
	llmTokens   metric.Int64Counter
	llmDuration metric.Float64Histogram
}

// NewMetrics creates all instruments on the given meter
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.searchRequests, err = meter.Int64Counter(
		"search_requests_total",
		metric.WithDescription("Total number of search requests by mode and status"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create search_requests_total: %w", err)
	}

	m.searchDuration, err = meter.Float64Histogram(
		"search_duration_seconds",
		metric.WithDescription("End-to-end search request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create search_duration_seconds: %w", err)
	}

	m.sourceFailures, err = meter.Int64Counter(
		"source_failures_total",
		metric.WithDescription("Total number of upstream source failures by source"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create source_failures_total: %w", err)
	}

	m.sourceLatency, err = meter.Float64Histogram(
		"source_latency_seconds",
		metric.WithDescription("Upstream source query latency in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create source_latency_seconds: %w", err)
	}

	m.candidatesMerged, err = meter.Int64Counter(
		"candidates_merged_total",
		metric.WithDescription("Total number of candidates surviving deduplication"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create candidates_merged_total: %w", err)
	}

	m.rerankDuration, err = meter.Float64Histogram(
		"rerank_stage_duration_seconds",
		metric.WithDescription("Duration of each reranking stage in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create rerank_stage_duration_seconds: %w", err)
	}

	m.scoringFallbacks, err = meter.Int64Counter(
		"scoring_fallbacks_total",
		metric.WithDescription("Total number of times semantic scoring was skipped or failed over"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create scoring_fallbacks_total: %w", err)
	}

	m.agentRuns, err = meter.Int64Counter(
		"agent_runs_total",
		metric.WithDescription("Total number of agent runs by terminal state"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create agent_runs_total: %w", err)
	}

	m.agentSteps, err = meter.Int64Counter(
		"agent_steps_total",
		metric.WithDescription("Total number of agent state transitions by node"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create agent_steps_total: %w", err)
	}

	m.researchRuns, err = meter.Int64Counter(
		"research_runs_total",
		metric.WithDescription("Total number of deep research runs by status"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create research_runs_total: %w", err)
	}

	m.scrapeResults, err = meter.Int64Counter(
		"scrape_results_total",
		metric.WithDescription("Total number of page scrape attempts by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create scrape_results_total: %w", err)
	}

	m.llmRequests, err = meter.Int64Counter(
		"llm_requests_total",
		metric.WithDescription("Total number of LLM API requests by model and status"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm_requests_total: %w", err)
	}

	m.llmTokens, err = meter.Int64Counter(
		"llm_tokens_total",
		metric.WithDescription("Total number of LLM tokens consumed by direction"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm_tokens_total: %w", err)
	}

	m.llmDuration, err = meter.Float64Histogram(
		"llm_request_duration_seconds",
		metric.WithDescription("LLM API request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm_request_duration_seconds: %w", err)
	}

	return m, nil
}

// RecordSearchRequest records a completed search request
func (m *Metrics) RecordSearchRequest(ctx context.Context, mode, status string, durationSeconds float64) {
	attrs := metric.WithAttributes(
		attribute.String("mode", mode),
		attribute.String("status", status),
	)
	m.searchRequests.Add(ctx, 1, attrs)
	m.searchDuration.Record(ctx, durationSeconds, attrs)
}

// RecordSourceQuery records a single upstream source query
func (m *Metrics) RecordSourceQuery(ctx context.Context, source string, durationSeconds float64, err error) {
	attrs := metric.WithAttributes(attribute.String("source", source))
	m.sourceLatency.Record(ctx, durationSeconds, attrs)
	if err != nil {
		m.sourceFailures.Add(ctx, 1, attrs)
	}
}

// RecordCandidatesMerged records the number of deduplicated candidates
func (m *Metrics) RecordCandidatesMerged(ctx context.Context, count int) {
	m.candidatesMerged.Add(ctx, int64(count))
}

// RecordRerankStage records the duration of one reranking stage
func (m *Metrics) RecordRerankStage(ctx context.Context, stage string, durationSeconds float64) {
	m.rerankDuration.Record(ctx, durationSeconds,
		metric.WithAttributes(attribute.String("stage", stage)))
}

// RecordScoringFallback records a semantic scoring skip or failover
func (m *Metrics) RecordScoringFallback(ctx context.Context, reason string) {
	m.scoringFallbacks.Add(ctx, 1,
		metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordAgentRun records a completed agent run
func (m *Metrics) RecordAgentRun(ctx context.Context, terminalState string) {
	m.agentRuns.Add(ctx, 1,
		metric.WithAttributes(attribute.String("state", terminalState)))
}

// RecordAgentStep records one agent state transition
func (m *Metrics) RecordAgentStep(ctx context.Context, node string) {
	m.agentSteps.Add(ctx, 1,
		metric.WithAttributes(attribute.String("node", node)))
}

// RecordResearchRun records a completed deep research run
func (m *Metrics) RecordResearchRun(ctx context.Context, status string) {
	m.researchRuns.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)))
}

// RecordScrape records a page scrape attempt
func (m *Metrics) RecordScrape(ctx context.Context, outcome string) {
	m.scrapeResults.Add(ctx, 1,
		metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordLLMRequest records a completed LLM API call
func (m *Metrics) RecordLLMRequest(ctx context.Context, model, status string, durationSeconds float64, promptTokens, completionTokens int) {
	attrs := metric.WithAttributes(
		attribute.String("model", model),
		attribute.String("status", status),
	)
	m.llmRequests.Add(ctx, 1, attrs)
	m.llmDuration.Record(ctx, durationSeconds, attrs)
	if promptTokens > 0 {
		m.llmTokens.Add(ctx, int64(promptTokens), metric.WithAttributes(
			attribute.String("model", model),
			attribute.String("direction", "prompt"),
		))
	}
	if completionTokens > 0 {
		m.llmTokens.Add(ctx, int64(completionTokens), metric.WithAttributes(
			attribute.String("model", model),
			attribute.String("direction", "completion"),
		))
	}
}
