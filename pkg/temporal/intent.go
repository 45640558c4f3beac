// Package temporal detects whether a query asks about current or historical
// information and scores result freshness accordingly.
package temporal

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/lancerhq/lancer/pkg/domain"
)

// currencyKeywords signal that the user wants up-to-date information.
var currencyKeywords = []string{
	"latest", "newest", "current", "today", "now", "recent", "recently",
	"breaking", "live", "upcoming", "this week", "this month", "this year",
	"right now", "at the moment", "just released", "just announced",
	// Portuguese
	"mais recente", "recente", "atual", "atualizado", "hoje", "agora",
	"ultimas", "últimas", "ultimo", "último", "neste momento",
	"esta semana", "este mes", "este mês", "este ano",
}

// historyKeywords signal that the user wants information about the past.
var historyKeywords = []string{
	"history", "historical", "origin", "origins", "originally", "founded",
	"invented", "first ever", "evolution of", "timeline of", "back then",
	"in the past", "ancient", "traditional", "classic",
	// Portuguese
	"historia", "história", "historico", "histórico", "origem",
	"fundado", "fundada", "inventado", "antigamente", "no passado", "antigo",
}

// interrogatives that lean toward current-state questions.
var currentInterrogatives = []string{
	"what is the", "what are the", "who is the", "how much is", "how much does",
	"qual é o", "qual é a", "quanto custa", "quem é o", "quem é a",
}

// superlatives often imply a ranking that changes over time.
var superlatives = []string{
	"best", "worst", "top", "biggest", "largest", "fastest", "cheapest",
	"most popular", "highest", "lowest",
	"melhor", "pior", "maior", "menor", "mais rapido", "mais rápido",
	"mais barato", "mais popular",
}

// entityPatterns match subjects whose answers are inherently volatile.
var entityPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(price|prices|cost|stock|share|exchange rate|preço|preços|cotação|cotacao)\b`),
	regexp.MustCompile(`(?i)\b(weather|forecast|temperature|tempo|previsão|previsao|clima)\b`),
	regexp.MustCompile(`(?i)\b(news|headline|headlines|notícia|noticias|notícias|noticia)\b`),
	regexp.MustCompile(`(?i)\b(score|scores|game|match|standings|playoffs|placar|jogo|partida|campeonato)\b`),
	regexp.MustCompile(`(?i)\b(version|release|update|changelog|versão|versao|lançamento|lancamento)\b`),
	regexp.MustCompile(`(?i)\b(gpt-?\d|claude|gemini|llama-?\d|deepseek|mistral)\b`),
}

// Detector classifies the temporal intent of a query.
type Detector struct {
	now func() time.Time
}

// NewDetector creates a Detector using the system clock.
func NewDetector() *Detector {
	return &Detector{now: time.Now}
}

// NewDetectorAt creates a Detector with a fixed clock, for tests.
func NewDetectorAt(now func() time.Time) *Detector {
	return &Detector{now: now}
}

// Detect analyzes a query and returns its temporal context. Detection is
// purely lexical so it runs in microseconds and never blocks the pipeline.
func (d *Detector) Detect(query string) domain.TemporalContext {
	q := strings.ToLower(strings.TrimSpace(query))
	year := d.now().Year()

	var currencyScore, historyScore float64

	for _, kw := range currencyKeywords {
		if strings.Contains(q, kw) {
			currencyScore += 0.3
		}
	}
	// The current year in a query is a currency signal; clearly past years
	// are history signals.
	for y := year; y >= year-1; y-- {
		if strings.Contains(q, strconv.Itoa(y)) {
			currencyScore += 0.3
			break
		}
	}
	for y := year - 2; y >= year-30; y-- {
		if strings.Contains(q, strconv.Itoa(y)) {
			historyScore += 0.3
			break
		}
	}

	for _, kw := range historyKeywords {
		if strings.Contains(q, kw) {
			historyScore += 0.3
		}
	}

	for _, p := range entityPatterns {
		if p.MatchString(q) {
			currencyScore += 0.2
		}
	}

	for _, phrase := range currentInterrogatives {
		if strings.Contains(q, phrase) {
			currencyScore += 0.1
			break
		}
	}

	for _, s := range superlatives {
		if strings.Contains(q, s) {
			currencyScore += 0.15
			break
		}
	}

	currencyScore = minFloat(currencyScore, 1.0)
	historyScore = minFloat(historyScore, 1.0)

	ctx := domain.TemporalContext{
		Intent:      domain.IntentNeutral,
		Urgency:     0.5,
		CurrentDate: d.now().UTC().Format("2006-01-02"),
	}

	// A single weak signal is not enough; the threshold is strict so a
	// lone entity-pattern hit leaves the query neutral.
	switch {
	case currencyScore > historyScore && currencyScore > 0.2:
		ctx.Intent = domain.IntentCurrent
		ctx.Urgency = minFloat(0.3+currencyScore, 1.0)
	case historyScore > currencyScore && historyScore > 0.2:
		ctx.Intent = domain.IntentHistorical
		ctx.Urgency = maxFloat(0.2-historyScore*0.1, 0.1)
	}

	return ctx
}

// FreshnessParam maps a temporal context to the freshness hint understood by
// upstream search providers. Empty means no restriction.
func FreshnessParam(tc domain.TemporalContext) string {
	if tc.Intent != domain.IntentCurrent {
		return ""
	}
	if tc.Urgency >= 0.8 {
		return "day"
	}
	if tc.Urgency >= 0.6 {
		return "week"
	}
	return "month"
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
