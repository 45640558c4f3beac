package domain

import (
	"context"
	"errors"
)

// Error taxonomy. Each class maps to one recovery policy; callers test with
// errors.Is and never branch on message text.
var (
	// ErrNoResults means every source returned nothing. Surfaced to the
	// caller as an explicit empty-result condition, not a failure.
	ErrNoResults = errors.New("no results from any source")

	// ErrScoringUnavailable means the semantic scoring service failed;
	// reranking falls back to prior scores.
	ErrScoringUnavailable = errors.New("scoring service unavailable")

	// ErrPlanParse means LLM output did not decode as the expected
	// structure; recovered via a deterministic fallback.
	ErrPlanParse = errors.New("plan output did not parse")

	// ErrConfig means a required credential or setting is missing.
	// Fatal, surfaced immediately, never retried.
	ErrConfig = errors.New("configuration error")
)

// SourceClient is implemented once per search backend. Search returns nil
// results for "nothing found"; an error means actual transport or auth
// failure, which the aggregator treats as an empty contribution.
type SourceClient interface {
	// Name returns the source tag stamped on returned candidates.
	Name() string

	// Search runs one query. freshness is one of day, week, month, year,
	// any; backends that cannot filter by recency ignore it.
	Search(ctx context.Context, query string, maxResults int, freshness string) ([]*Candidate, error)
}

// ScoringClient scores documents against a query. Both methods must return
// exactly one score per document, each in [0,1].
type ScoringClient interface {
	// BulkScore computes fast similarity scores, suitable for filtering
	// large candidate sets.
	BulkScore(ctx context.Context, query string, documents []string) ([]float64, error)

	// PairwiseScore computes precise (query, document) relevance scores.
	// Slower than BulkScore; call it on a shortlist.
	PairwiseScore(ctx context.Context, query string, documents []string) ([]float64, error)
}

// LLMClient defines the interface for language model completions.
type LLMClient interface {
	// Chat performs a chat completion.
	Chat(ctx context.Context, messages []Message, opts ChatOptions) (*ChatResponse, error)

	// Stream performs a streaming chat completion. The returned channel is
	// closed after the final chunk; it is finite and not restartable.
	Stream(ctx context.Context, messages []Message, opts ChatOptions) (<-chan ChatStreamResponse, error)
}

// Browser is the boundary to a navigable browsing session used by the agent.
// Implementations must release the underlying session when Close is called,
// on every exit path.
type Browser interface {
	// Navigate loads the URL in the session.
	Navigate(ctx context.Context, url string) error

	// Page returns the current page's extracted text and outbound links,
	// with content capped by the implementation.
	Page(ctx context.Context) (*Page, error)

	// Screenshot captures the current viewport.
	Screenshot(ctx context.Context) ([]byte, error)

	// Close releases the session.
	Close() error
}
