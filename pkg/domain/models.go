package domain

import (
	"net/url"
	"strings"
	"time"
)

// TemporalIntent classifies how much recency matters for a query
type TemporalIntent string

const (
	IntentCurrent    TemporalIntent = "current"
	IntentHistorical TemporalIntent = "historical"
	IntentNeutral    TemporalIntent = "neutral"
)

// Candidate represents a single search result as it moves through the
// aggregation and reranking pipeline. Scores are mutated in place by the
// pipeline stages; the candidate's identity is its normalized URL.
type Candidate struct {
	Title         string     `json:"title"`
	URL           string     `json:"url"`
	Content       string     `json:"content"`
	PublishedAt   *time.Time `json:"published_date,omitempty"`
	Source        string     `json:"source"`
	Score         float64    `json:"score"`
	BulkScore     float64    `json:"bulk_score,omitempty"`
	PairwiseScore float64    `json:"pairwise_score,omitempty"`
	Freshness     float64    `json:"freshness_score,omitempty"`
	FreshnessTag  string     `json:"freshness_label,omitempty"`
	Authority     float64    `json:"authority_score,omitempty"`

	// FullContent is populated by the scraper when the full page body was
	// fetched; Scraped reports whether that fetch succeeded.
	FullContent string `json:"full_content,omitempty"`
	Scraped     bool   `json:"scraped,omitempty"`
}

// NormalizeURL reduces a URL to its deduplication identity: scheme and
// leading www. stripped, trailing slash removed, lower-cased. Query strings
// are dropped so tracking parameters don't defeat deduplication.
func NormalizeURL(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" {
		return strings.ToLower(strings.TrimSuffix(raw, "/"))
	}
	host := strings.TrimPrefix(parsed.Host, "www.")
	path := strings.TrimSuffix(parsed.Path, "/")
	return strings.ToLower(host + path)
}

// ResearchDimension is one decomposed aspect of a research query.
// Immutable once produced by planning.
type ResearchDimension struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	SearchQuery string `json:"search_query"`
	Priority    int    `json:"priority"` // 1=high, 2=medium, 3=low
}

// ResearchPlan is the planner's decomposition of a query. Created once per
// research request and read-only thereafter; Dimensions are sorted by
// priority ascending.
type ResearchPlan struct {
	OriginalQuery    string              `json:"original_query"`
	RefinedQuery     string              `json:"refined_query"`
	Dimensions       []ResearchDimension `json:"dimensions"`
	EstimatedSources int                 `json:"estimated_sources"`
}

// TemporalContext carries the intent analysis attached to a search response.
type TemporalContext struct {
	Intent      TemporalIntent `json:"query_temporal_intent"`
	Urgency     float64        `json:"temporal_urgency"`
	CurrentDate string         `json:"current_date"`
}

// Citation references a source by its global 1-based index.
type Citation struct {
	Index int    `json:"index"`
	Title string `json:"title"`
	URL   string `json:"url"`
}

// SearchRequest is the caller-facing search input.
type SearchRequest struct {
	Query          string   `json:"query"`
	MaxResults     int      `json:"max_results,omitempty"`
	Freshness      string   `json:"freshness,omitempty"` // day, week, month, year, any
	IncludeAnswer  bool     `json:"include_answer,omitempty"`
	IncludeDomains []string `json:"include_domains,omitempty"`
	ExcludeDomains []string `json:"exclude_domains,omitempty"`
}

// SearchResponse is the one-shot search output.
type SearchResponse struct {
	Query            string          `json:"query"`
	Answer           string          `json:"answer,omitempty"`
	Results          []*Candidate    `json:"results"`
	Citations        []Citation      `json:"citations,omitempty"`
	TemporalContext  TemporalContext `json:"temporal_context"`
	ProcessingTimeMS float64         `json:"processing_time_ms"`
}

// StreamEventType enumerates the typed events of the progress protocol.
// A stream always terminates with EventDone or EventError.
type StreamEventType string

const (
	EventStatus            StreamEventType = "status"
	EventPlanReady         StreamEventType = "plan_ready"
	EventDimensionStart    StreamEventType = "dimension_start"
	EventDimensionComplete StreamEventType = "dimension_complete"
	EventSearchComplete    StreamEventType = "search_complete"
	EventScrapeComplete    StreamEventType = "scrape_complete"
	EventResults           StreamEventType = "results"
	EventAnswerStart       StreamEventType = "answer_start"
	EventAnswerChunk       StreamEventType = "answer_chunk"
	EventReportChunk       StreamEventType = "report_chunk"
	EventDone              StreamEventType = "done"
	EventError             StreamEventType = "error"
)

// StreamEvent is one typed progress event emitted during a streamed
// operation, in strict chronological order.
type StreamEvent struct {
	Type StreamEventType        `json:"type"`
	Data map[string]interface{} `json:"data,omitempty"`
}

// NewStreamEvent builds an event with the given payload fields.
func NewStreamEvent(t StreamEventType, data map[string]interface{}) StreamEvent {
	return StreamEvent{Type: t, Data: data}
}

// Message represents one turn of an LLM conversation.
type Message struct {
	Role    string `json:"role"` // "system", "user", "assistant"
	Content string `json:"content"`
}

// ChatOptions provides options for chat completions.
type ChatOptions struct {
	Model       string  `json:"model,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
}

// ChatResponse represents a chat completion response.
type ChatResponse struct {
	Content      string     `json:"content"`
	Usage        TokenUsage `json:"usage"`
	FinishReason string     `json:"finish_reason,omitempty"`
}

// ChatStreamResponse represents a streaming chat response chunk.
type ChatStreamResponse struct {
	Content string `json:"content,omitempty"`
	Done    bool   `json:"done"`
	Err     error  `json:"-"`
}

// TokenUsage tracks token consumption.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Page is the content extracted from one navigated URL.
type Page struct {
	URL     string   `json:"url"`
	Title   string   `json:"title,omitempty"`
	Content string   `json:"content"`
	Links   []string `json:"links,omitempty"`
}
