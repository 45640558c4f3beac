// Command lancer runs the search aggregation service, either as an HTTP
// API or as a one-shot CLI query.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lancerhq/lancer/pkg/agent"
	"github.com/lancerhq/lancer/pkg/api"
	"github.com/lancerhq/lancer/pkg/browse"
	"github.com/lancerhq/lancer/pkg/config"
	"github.com/lancerhq/lancer/pkg/domain"
	"github.com/lancerhq/lancer/pkg/llm"
	"github.com/lancerhq/lancer/pkg/observability"
	"github.com/lancerhq/lancer/pkg/rerank"
	"github.com/lancerhq/lancer/pkg/research"
	"github.com/lancerhq/lancer/pkg/sources"
	"github.com/lancerhq/lancer/pkg/temporal"
)

func main() {
	var (
		configPath = flag.String("config", "configs/default.yaml", "path to configuration file")
		serve      = flag.Bool("serve", false, "run the HTTP API server")
		query      = flag.String("query", "", "run a one-shot search and print the response")
		deep       = flag.Bool("deep", false, "run the query as deep research")
		agentMode  = flag.Bool("agent", false, "run the query through the agent")
		seedURL    = flag.String("url", "", "seed URL the agent may open first (with -agent)")
		useBrowser = flag.Bool("browser", false, "navigate pages with a headless browser instead of plain HTTP")
	)
	flag.Parse()

	if err := run(*configPath, *serve, *query, *seedURL, *deep, *agentMode, *useBrowser); err != nil {
		fmt.Fprintf(os.Stderr, "lancer: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, serve bool, query, seedURL string, deep, agentMode, useBrowser bool) error {
	cfg := config.LoadOrDefault(configPath)
	observability.SetLogLevel(cfg.Observability.Logging.Level)
	logger := observability.NewStructuredLogger("main")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	telemetry, err := observability.NewTelemetry(ctx, observability.TelemetryConfig{
		ServiceName:     "lancer",
		ServiceVersion:  "0.1.0",
		Environment:     envOr("LANCER_ENV", "development"),
		OTLPEndpoint:    cfg.Observability.Tracing.Endpoint,
		MetricsPort:     cfg.Observability.Metrics.Port,
		TraceSampleRate: cfg.Observability.Tracing.SamplingRate,
	})
	if err != nil {
		return fmt.Errorf("telemetry setup: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = telemetry.Shutdown(shutdownCtx)
	}()

	metrics, err := observability.NewMetrics(telemetry.Meter())
	if err != nil {
		return fmt.Errorf("metrics setup: %w", err)
	}

	// Search sources. Keyless sources always register; keyed ones only
	// with credentials present.
	sourceTimeout := config.GetDuration(cfg.Sources.Timeout, 15*time.Second)
	var clients []domain.SourceClient
	if cfg.Sources.TavilyAPIKey != "" {
		clients = append(clients, sources.NewTavilyClient(cfg.Sources.TavilyAPIKey, cfg.Sources.TavilyDepth, sourceTimeout))
	}
	if cfg.Sources.BraveAPIKey != "" {
		clients = append(clients, sources.NewBraveClient(cfg.Sources.BraveAPIKey, sourceTimeout))
	}
	if cfg.Sources.SearXNGURL != "" {
		clients = append(clients, sources.NewSearXNGClient(cfg.Sources.SearXNGURL, sourceTimeout))
	}
	clients = append(clients,
		sources.NewDuckDuckGoClient(sourceTimeout),
		sources.NewWikipediaClient(sourceTimeout),
	)
	aggregator := sources.NewAggregator(clients, sourceTimeout, metrics)

	var scorer domain.ScoringClient
	if cfg.Scoring.BaseURL != "" {
		scorer = rerank.NewHTTPScoringClient(cfg.Scoring.BaseURL,
			config.GetDuration(cfg.Scoring.Timeout, 20*time.Second))
	}
	pipeline := rerank.NewPipeline(cfg.Rerank, scorer, metrics)

	detector := temporal.NewDetector()
	scraper := sources.NewScraper(sourceTimeout, cfg.Agent.MaxPageChars, 3, metrics)

	var llmClient domain.LLMClient = llm.NewClient(
		cfg.LLM.BaseURL, cfg.LLM.APIKey, cfg.LLM.Model,
		cfg.LLM.Temperature, cfg.LLM.MaxTokens,
		config.GetDuration(cfg.LLM.Timeout, 2*time.Minute),
	)
	llmClient = llm.NewInstrumentedClient(llmClient, cfg.LLM.Model, telemetry, metrics)

	synth := research.NewSynthesizer(llmClient)
	service := research.NewService(aggregator, pipeline, detector, synth, scraper,
		cfg.Sources.MaxResults, cfg.Research.MaxScrape, metrics)
	planner := research.NewPlanner(llmClient, cfg.Research.MaxDimensions)
	orchestrator := research.NewOrchestrator(planner, aggregator, pipeline, detector, scraper, synth,
		cfg.Research, metrics)

	var fetcher agent.Fetcher = browse.NewScrapeFetcher(scraper)
	if useBrowser || cfg.Agent.BrowserRemote != "" {
		browser, err := browse.New(cfg.Agent.BrowserRemote, cfg.Agent.MaxPageChars)
		if err != nil {
			logger.Warn(ctx, "browser unavailable, falling back to http fetcher", map[string]interface{}{
				"error": err.Error(),
			})
		} else {
			defer browser.Close()
			fetcher = browse.NewBrowserFetcher(browser)
		}
	}
	runner := agent.NewRunner(llmClient, aggregator, fetcher, cfg.Agent, telemetry, metrics)
	simple := agent.NewSimpleAgent(llmClient, aggregator, fetcher, 6, cfg.Agent.MaxPageChars)

	if serve || (cfg.API.Enabled && query == "") {
		server := api.NewServer(cfg.API, api.Deps{
			Search:      service,
			Research:    orchestrator,
			Agent:       runner,
			SimpleAgent: simple,
			Aggregator:  aggregator,
		})

		errCh := make(chan error, 1)
		go func() { errCh <- server.Start() }()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
			logger.Info(context.Background(), "shutting down", nil)
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		}
	}

	if query == "" {
		flag.Usage()
		return fmt.Errorf("either -serve or -query is required")
	}

	switch {
	case deep:
		return runDeep(ctx, orchestrator, query)
	case agentMode:
		result, err := runner.RunFrom(ctx, query, seedURL, -1)
		if err != nil {
			return err
		}
		fmt.Println(result.Answer)
		return nil
	default:
		resp, err := service.Search(ctx, domain.SearchRequest{Query: query, IncludeAnswer: true})
		if err != nil {
			return err
		}
		return printJSON(resp)
	}
}

// runDeep streams deep research progress to stderr and the report to
// stdout.
func runDeep(ctx context.Context, orch *research.Orchestrator, query string) error {
	events := make(chan domain.StreamEvent, 64)
	done := make(chan struct{})
	go func() {
		defer close(done)
		orch.Run(ctx, query, events)
	}()

	for {
		select {
		case e := <-events:
			switch e.Type {
			case domain.EventReportChunk:
				fmt.Print(e.Data["content"])
			case domain.EventError:
				return fmt.Errorf("research failed: %v", e.Data["error"])
			case domain.EventDone:
				fmt.Println()
				return nil
			default:
				fmt.Fprintf(os.Stderr, "[%s] %v\n", e.Type, e.Data)
			}
		case <-done:
			// Drain whatever the run buffered before finishing.
			for {
				select {
				case e := <-events:
					if e.Type == domain.EventReportChunk {
						fmt.Print(e.Data["content"])
					}
				default:
					fmt.Println()
					return nil
				}
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func printJSON(v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
