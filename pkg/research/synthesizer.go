package research

import (
	"context"
	"fmt"
	"strings"

	"github.com/lancerhq/lancer/pkg/domain"
)

// maxContextChars caps the source material handed to the model so the
// prompt stays inside typical context windows.
const maxContextChars = 48000

// Synthesizer turns ranked candidates into cited prose.
type Synthesizer struct {
	llm domain.LLMClient
}

// NewSynthesizer creates a synthesizer.
func NewSynthesizer(llm domain.LLMClient) *Synthesizer {
	return &Synthesizer{llm: llm}
}

// BuildContext renders candidates as numbered source material. Numbering
// starts at startIndex so multi-dimension runs keep one global citation
// space. Scraped candidates contribute their full content, tagged so the
// model knows which sources it can quote deeply.
func BuildContext(candidates []*domain.Candidate, startIndex int) (string, []domain.Citation) {
	var sb strings.Builder
	citations := make([]domain.Citation, 0, len(candidates))

	for i, c := range candidates {
		index := startIndex + i
		citations = append(citations, domain.Citation{
			Index: index,
			Title: c.Title,
			URL:   c.URL,
		})

		tag := "[SNIPPET]"
		content := c.Content
		if c.Scraped && c.FullContent != "" {
			tag = "[FULL]"
			content = c.FullContent
		}
		fmt.Fprintf(&sb, "[%d] %s (%s) %s\n%s\n\n", index, c.Title, c.URL, tag, content)

		if sb.Len() > maxContextChars {
			break
		}
	}

	text := sb.String()
	if len(text) > maxContextChars {
		text = text[:maxContextChars]
	}
	return text, citations[:len(citations)]
}

// Answer produces a one-shot cited answer from ranked candidates.
func (s *Synthesizer) Answer(ctx context.Context, query string, candidates []*domain.Candidate, tc domain.TemporalContext) (string, []domain.Citation, error) {
	if len(candidates) == 0 {
		return "", nil, domain.ErrNoResults
	}

	sourceText, citations := BuildContext(candidates, 1)
	resp, err := s.llm.Chat(ctx, []domain.Message{
		{Role: "system", Content: answerPrompt(tc)},
		{Role: "user", Content: fmt.Sprintf("Question: %s\n\nSources:\n%s", query, sourceText)},
	}, domain.ChatOptions{Temperature: 0.3})
	if err != nil {
		return "", nil, fmt.Errorf("synthesis failed: %w", err)
	}
	return resp.Content, citations, nil
}

// StreamAnswer streams a cited answer chunk by chunk.
func (s *Synthesizer) StreamAnswer(ctx context.Context, query string, candidates []*domain.Candidate, tc domain.TemporalContext) (<-chan domain.ChatStreamResponse, []domain.Citation, error) {
	if len(candidates) == 0 {
		return nil, nil, domain.ErrNoResults
	}

	sourceText, citations := BuildContext(candidates, 1)
	ch, err := s.llm.Stream(ctx, []domain.Message{
		{Role: "system", Content: answerPrompt(tc)},
		{Role: "user", Content: fmt.Sprintf("Question: %s\n\nSources:\n%s", query, sourceText)},
	}, domain.ChatOptions{Temperature: 0.3})
	if err != nil {
		return nil, nil, fmt.Errorf("streaming synthesis failed: %w", err)
	}
	return ch, citations, nil
}

// StreamReport streams the final deep research report across all
// dimension findings.
func (s *Synthesizer) StreamReport(ctx context.Context, plan *domain.ResearchPlan, findings []DimensionFinding, citations []domain.Citation) (<-chan domain.ChatStreamResponse, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Research query: %s\n\n", plan.OriginalQuery)
	for _, f := range findings {
		fmt.Fprintf(&sb, "## Dimension: %s\n%s\n\nSources:\n%s\n\n", f.Dimension.Name, f.Dimension.Description, f.SourceText)
	}

	text := sb.String()
	if len(text) > maxContextChars {
		text = text[:maxContextChars]
	}

	ch, err := s.llm.Stream(ctx, []domain.Message{
		{Role: "system", Content: reportPrompt},
		{Role: "user", Content: text},
	}, domain.ChatOptions{Temperature: 0.4, MaxTokens: 4096})
	if err != nil {
		return nil, fmt.Errorf("report synthesis failed: %w", err)
	}
	return ch, nil
}

func answerPrompt(tc domain.TemporalContext) string {
	base := `Answer the question using only the numbered sources. Cite with bracketed indices like [1] after each claim. Prefer [FULL] sources for detail. Be direct; do not pad.`
	if tc.Intent == domain.IntentCurrent {
		base += fmt.Sprintf(" Today is %s; prefer the most recent information and mention dates where they matter.", tc.CurrentDate)
	}
	return base
}

const reportPrompt = `Write a structured research report in markdown from the dimension findings below. Use the numbered source indices for citations like [1]. Sections: a short executive summary, one section per dimension, and a conclusions section. Only state what the sources support.`
