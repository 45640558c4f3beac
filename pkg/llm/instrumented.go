package llm

import (
	"context"
	"time"

	"github.com/lancerhq/lancer/pkg/domain"
	"github.com/lancerhq/lancer/pkg/observability"
)

// InstrumentedClient wraps an LLMClient with tracing and metrics.
type InstrumentedClient struct {
	inner     domain.LLMClient
	model     string
	telemetry *observability.Telemetry
	metrics   *observability.Metrics
}

// NewInstrumentedClient decorates an LLM client. metrics may be nil.
func NewInstrumentedClient(inner domain.LLMClient, model string, telemetry *observability.Telemetry, metrics *observability.Metrics) *InstrumentedClient {
	return &InstrumentedClient{
		inner:     inner,
		model:     model,
		telemetry: telemetry,
		metrics:   metrics,
	}
}

// Chat implements domain.LLMClient.
func (c *InstrumentedClient) Chat(ctx context.Context, messages []domain.Message, opts domain.ChatOptions) (*domain.ChatResponse, error) {
	model := c.model
	if opts.Model != "" {
		model = opts.Model
	}

	var resp *domain.ChatResponse
	start := time.Now()
	err := c.telemetry.InstrumentLLMCall(ctx, model, func(ctx context.Context) (int, int, error) {
		var callErr error
		resp, callErr = c.inner.Chat(ctx, messages, opts)
		if callErr != nil {
			return 0, 0, callErr
		}
		return resp.Usage.PromptTokens, resp.Usage.CompletionTokens, nil
	})

	if c.metrics != nil {
		status := "ok"
		promptTokens, completionTokens := 0, 0
		if err != nil {
			status = "error"
		} else {
			promptTokens = resp.Usage.PromptTokens
			completionTokens = resp.Usage.CompletionTokens
		}
		c.metrics.RecordLLMRequest(ctx, model, status, time.Since(start).Seconds(), promptTokens, completionTokens)
	}

	return resp, err
}

// Stream implements domain.LLMClient. Streaming responses report no token
// usage, so only the request count is recorded.
func (c *InstrumentedClient) Stream(ctx context.Context, messages []domain.Message, opts domain.ChatOptions) (<-chan domain.ChatStreamResponse, error) {
	model := c.model
	if opts.Model != "" {
		model = opts.Model
	}

	start := time.Now()
	ch, err := c.inner.Stream(ctx, messages, opts)
	if c.metrics != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}
		c.metrics.RecordLLMRequest(ctx, model, status, time.Since(start).Seconds(), 0, 0)
	}
	return ch, err
}
