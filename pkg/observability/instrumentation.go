package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// StartSearchRequest starts the root span for a search request
func (t *Telemetry) StartSearchRequest(ctx context.Context, mode, query string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "search.request",
		trace.WithAttributes(
			attribute.String("search.mode", mode),
			attribute.Int("search.query_length", len(query)),
		),
	)
}

// InstrumentSource wraps an upstream source query in a span
func (t *Telemetry) InstrumentSource(ctx context.Context, source string, fn func(context.Context) (int, error)) (int, error) {
	ctx, span := t.tracer.Start(ctx, "source.query",
		trace.WithAttributes(attribute.String("source.name", source)),
	)
	defer span.End()

	start := time.Now()
	count, err := fn(ctx)
	duration := time.Since(start)

	span.SetAttributes(
		attribute.Int("source.result_count", count),
		attribute.Float64("source.duration_ms", float64(duration.Milliseconds())),
	)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}

	return count, err
}

// InstrumentRerankStage wraps one reranking stage in a span
func (t *Telemetry) InstrumentRerankStage(ctx context.Context, stage string, candidateCount int, fn func(context.Context) error) error {
	ctx, span := t.tracer.Start(ctx, "rerank."+stage,
		trace.WithAttributes(
			attribute.String("rerank.stage", stage),
			attribute.Int("rerank.candidate_count", candidateCount),
		),
	)
	defer span.End()

	err := fn(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}

	return err
}

// InstrumentAgentNode wraps an agent state handler in a span
func (t *Telemetry) InstrumentAgentNode(ctx context.Context, node string, iteration int, fn func(context.Context) error) error {
	ctx, span := t.tracer.Start(ctx, "agent.node",
		trace.WithAttributes(
			attribute.String("agent.node", node),
			attribute.Int("agent.iteration", iteration),
		),
	)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	span.SetAttributes(
		attribute.Float64("agent.duration_ms", float64(time.Since(start).Milliseconds())),
	)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}

	return err
}

// InstrumentLLMCall wraps an LLM API call in a span
func (t *Telemetry) InstrumentLLMCall(ctx context.Context, model string, fn func(context.Context) (promptTokens, completionTokens int, err error)) error {
	ctx, span := t.tracer.Start(ctx, "llm.call",
		trace.WithAttributes(
			attribute.String("llm.provider", "openrouter"),
			attribute.String("llm.model", model),
		),
	)
	defer span.End()

	start := time.Now()
	promptTokens, completionTokens, err := fn(ctx)
	duration := time.Since(start)

	span.SetAttributes(
		attribute.Int("llm.prompt_tokens", promptTokens),
		attribute.Int("llm.completion_tokens", completionTokens),
		attribute.Float64("llm.duration_ms", float64(duration.Milliseconds())),
	)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}

	return err
}
