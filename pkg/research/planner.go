// Package research implements the query flows built on the aggregation and
// reranking pipeline: one-shot search with synthesis, heavy search with
// full-page context, and multi-dimension deep research.
package research

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/lancerhq/lancer/pkg/domain"
	"github.com/lancerhq/lancer/pkg/observability"
)

// Planner decomposes a research query into dimensions.
type Planner struct {
	llm           domain.LLMClient
	maxDimensions int
	logger        *observability.StructuredLogger
}

// NewPlanner creates a planner capping plans at maxDimensions. Plans carry
// between two and maxDimensions dimensions.
func NewPlanner(llm domain.LLMClient, maxDimensions int) *Planner {
	if maxDimensions < 2 {
		maxDimensions = 8
	}
	return &Planner{
		llm:           llm,
		maxDimensions: maxDimensions,
		logger:        observability.NewStructuredLogger("planner"),
	}
}

type planJSON struct {
	RefinedQuery string `json:"refined_query"`
	Dimensions   []struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		SearchQuery string `json:"search_query"`
		Priority    int    `json:"priority"`
	} `json:"dimensions"`
}

// Plan asks the model to decompose the query. Any model or parse failure
// yields the deterministic two-dimension fallback plan, never an error.
func (p *Planner) Plan(ctx context.Context, query string, tc domain.TemporalContext) *domain.ResearchPlan {
	prompt := fmt.Sprintf("Query: %s\nToday's date: %s\nTemporal intent: %s", query, tc.CurrentDate, tc.Intent)

	resp, err := p.llm.Chat(ctx, []domain.Message{
		{Role: "system", Content: planPrompt},
		{Role: "user", Content: prompt},
	}, domain.ChatOptions{Temperature: 0.2})
	if err != nil {
		p.logger.Warn(ctx, "planning call failed, using fallback plan", map[string]interface{}{
			"error": err.Error(),
		})
		return p.fallback(query)
	}

	var parsed planJSON
	if err := decodePlanJSON(resp.Content, &parsed); err != nil || len(parsed.Dimensions) == 0 {
		p.logger.Warn(ctx, "plan output did not parse, using fallback plan", nil)
		return p.fallback(query)
	}

	plan := &domain.ResearchPlan{
		OriginalQuery: query,
		RefinedQuery:  parsed.RefinedQuery,
	}
	if plan.RefinedQuery == "" {
		plan.RefinedQuery = query
	}

	for _, d := range parsed.Dimensions {
		if d.SearchQuery == "" {
			continue
		}
		priority := d.Priority
		if priority < 1 || priority > 3 {
			priority = 2
		}
		name := d.Name
		if name == "" {
			name = d.SearchQuery
		}
		plan.Dimensions = append(plan.Dimensions, domain.ResearchDimension{
			Name:        name,
			Description: d.Description,
			SearchQuery: d.SearchQuery,
			Priority:    priority,
		})
		if len(plan.Dimensions) == p.maxDimensions {
			break
		}
	}
	// A usable plan decomposes the query; one dimension is no decomposition
	// at all, so it falls back like a parse failure.
	if len(plan.Dimensions) < 2 {
		return p.fallback(query)
	}

	sort.SliceStable(plan.Dimensions, func(i, j int) bool {
		return plan.Dimensions[i].Priority < plan.Dimensions[j].Priority
	})
	plan.EstimatedSources = len(plan.Dimensions) * 5
	return plan
}

// fallback is the deterministic plan used when the model cannot produce
// one: the query itself plus a background dimension.
func (p *Planner) fallback(query string) *domain.ResearchPlan {
	return &domain.ResearchPlan{
		OriginalQuery: query,
		RefinedQuery:  query,
		Dimensions: []domain.ResearchDimension{
			{
				Name:        "Main Research",
				Description: "Direct investigation of the query",
				SearchQuery: query,
				Priority:    1,
			},
			{
				Name:        "Background",
				Description: "Context and background for the query",
				SearchQuery: query + " background context",
				Priority:    2,
			},
		},
		EstimatedSources: 10,
	}
}

func decodePlanJSON(text string, out interface{}) error {
	trimmed := strings.TrimSpace(text)
	if err := json.Unmarshal([]byte(trimmed), out); err == nil {
		return nil
	}
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start < 0 || end <= start {
		return domain.ErrPlanParse
	}
	if err := json.Unmarshal([]byte(trimmed[start:end+1]), out); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPlanParse, err)
	}
	return nil
}

const planPrompt = `You are a research planner. Decompose the query into 2-8 research dimensions. Reply with JSON only:
{"refined_query": "<cleaned up version of the query>",
 "dimensions": [{"name": "<short name>", "description": "<what this covers>", "search_query": "<web search query>", "priority": 1|2|3}]}
Priority 1 dimensions are essential, 2 useful, 3 optional.`
