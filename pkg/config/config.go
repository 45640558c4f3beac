package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete application configuration
type Config struct {
	Sources       SourcesConfig       `yaml:"sources"`
	LLM           LLMConfig           `yaml:"llm"`
	Scoring       ScoringConfig       `yaml:"scoring"`
	Rerank        RerankConfig        `yaml:"rerank"`
	Agent         AgentConfig         `yaml:"agent"`
	Research      ResearchConfig      `yaml:"research"`
	API           APIConfig           `yaml:"api"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// SourcesConfig contains per-backend search configuration
type SourcesConfig struct {
	TavilyAPIKey string `yaml:"tavily_api_key,omitempty"`
	TavilyDepth  string `yaml:"tavily_depth"` // "basic" or "advanced"
	BraveAPIKey  string `yaml:"brave_api_key,omitempty"`
	SearXNGURL   string `yaml:"searxng_url,omitempty"`
	Timeout      string `yaml:"timeout"`     // per-source call timeout
	MaxResults   int    `yaml:"max_results"` // default aggregate cap
}

// LLMConfig contains LLM provider configuration
type LLMConfig struct {
	BaseURL     string  `yaml:"base_url"`
	APIKey      string  `yaml:"api_key,omitempty"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	Timeout     string  `yaml:"timeout"`
}

// ScoringConfig points at the embedding/reranker scoring service
type ScoringConfig struct {
	BaseURL string `yaml:"base_url,omitempty"`
	Timeout string `yaml:"timeout"`
}

// RerankConfig carries the pipeline blend weights. The ratios are
// reproducible tuning constants, not derived values, so they live in
// configuration rather than code.
type RerankConfig struct {
	PairwiseWeight   float64 `yaml:"pairwise_weight"`   // precise score share of the blend
	AuthorityWeight  float64 `yaml:"authority_weight"`  // authority share of the final blend
	FreshnessCap     float64 `yaml:"freshness_cap"`     // max share freshness may reach at urgency 1.0
	HalfLifeDays     int     `yaml:"half_life_days"`    // freshness decay half-life
	SemanticCutoff   int     `yaml:"semantic_cutoff"`   // bulk filter keeps this many candidates
	SemanticMinInput int     `yaml:"semantic_min_input"` // bulk filter only runs above this count
}

// AgentConfig contains agent run configuration
type AgentConfig struct {
	Timeout       string `yaml:"timeout"`        // wall-clock budget per run
	StepDelay     string `yaml:"step_delay"`     // settle delay between iterations
	MaxPageChars  int    `yaml:"max_page_chars"` // extract cap
	BrowserRemote string `yaml:"browser_remote,omitempty"`
}

// ResearchConfig contains deep research configuration
type ResearchConfig struct {
	MaxDimensions    int `yaml:"max_dimensions"`
	MaxSourcesPerDim int `yaml:"max_sources_per_dim"`
	MaxTotalSearches int `yaml:"max_total_searches"`
	MaxScrape        int `yaml:"max_scrape"`
}

// APIConfig contains API server configuration
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
	Timeout string `yaml:"timeout"`
}

// ObservabilityConfig contains observability configuration
type ObservabilityConfig struct {
	Tracing TracingConfig `yaml:"tracing"`
	Metrics MetricsConfig `yaml:"metrics"`
	Logging LoggingConfig `yaml:"logging"`
}

// TracingConfig contains tracing configuration
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"sampling_rate"`
	Insecure     bool    `yaml:"insecure"`
}

// MetricsConfig contains metrics configuration
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json", "text"
}

// Load loads configuration from a file
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := &Config{}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	config.applyDefaults()
	config.overrideFromEnv()

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// LoadOrDefault loads configuration from a file or returns default config
func LoadOrDefault(path string) *Config {
	config, err := Load(path)
	if err != nil {
		config = Default()
		config.overrideFromEnv()
	}
	return config
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Sources: SourcesConfig{
			TavilyDepth: "advanced",
			Timeout:     "15s",
			MaxResults:  15,
		},
		LLM: LLMConfig{
			BaseURL:     "https://openrouter.ai/api/v1",
			Model:       "meta-llama/llama-3.3-70b-instruct",
			Temperature: 0.3,
			MaxTokens:   2048,
			Timeout:     "2m",
		},
		Scoring: ScoringConfig{
			Timeout: "20s",
		},
		Rerank: RerankConfig{
			PairwiseWeight:   0.7,
			AuthorityWeight:  0.1,
			FreshnessCap:     0.4,
			HalfLifeDays:     30,
			SemanticCutoff:   15,
			SemanticMinInput: 15,
		},
		Agent: AgentConfig{
			Timeout:      "5m",
			StepDelay:    "2s",
			MaxPageChars: 6000,
		},
		Research: ResearchConfig{
			MaxDimensions:    6,
			MaxSourcesPerDim: 5,
			MaxTotalSearches: 20,
			MaxScrape:        5,
		},
		API: APIConfig{
			Enabled: false,
			Host:    "0.0.0.0",
			Port:    8080,
			Timeout: "3m",
		},
		Observability: ObservabilityConfig{
			Tracing: TracingConfig{
				Enabled:      true,
				Endpoint:     "localhost:4318",
				SamplingRate: 1.0,
				Insecure:     true,
			},
			Metrics: MetricsConfig{
				Enabled: true,
				Port:    2223,
			},
			Logging: LoggingConfig{
				Level:  "info",
				Format: "json",
			},
		},
	}
}

// applyDefaults applies default values to missing fields
func (c *Config) applyDefaults() {
	defaults := Default()

	if c.Sources.Timeout == "" {
		c.Sources.Timeout = defaults.Sources.Timeout
	}
	if c.Sources.MaxResults == 0 {
		c.Sources.MaxResults = defaults.Sources.MaxResults
	}
	if c.Sources.TavilyDepth == "" {
		c.Sources.TavilyDepth = defaults.Sources.TavilyDepth
	}
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = defaults.LLM.BaseURL
	}
	if c.LLM.Model == "" {
		c.LLM.Model = defaults.LLM.Model
	}
	if c.LLM.Temperature == 0 {
		c.LLM.Temperature = defaults.LLM.Temperature
	}
	if c.LLM.MaxTokens == 0 {
		c.LLM.MaxTokens = defaults.LLM.MaxTokens
	}
	if c.LLM.Timeout == "" {
		c.LLM.Timeout = defaults.LLM.Timeout
	}
	if c.Scoring.Timeout == "" {
		c.Scoring.Timeout = defaults.Scoring.Timeout
	}
	if c.Rerank.PairwiseWeight == 0 {
		c.Rerank.PairwiseWeight = defaults.Rerank.PairwiseWeight
	}
	if c.Rerank.AuthorityWeight == 0 {
		c.Rerank.AuthorityWeight = defaults.Rerank.AuthorityWeight
	}
	if c.Rerank.FreshnessCap == 0 {
		c.Rerank.FreshnessCap = defaults.Rerank.FreshnessCap
	}
	if c.Rerank.HalfLifeDays == 0 {
		c.Rerank.HalfLifeDays = defaults.Rerank.HalfLifeDays
	}
	if c.Rerank.SemanticCutoff == 0 {
		c.Rerank.SemanticCutoff = defaults.Rerank.SemanticCutoff
	}
	if c.Rerank.SemanticMinInput == 0 {
		c.Rerank.SemanticMinInput = defaults.Rerank.SemanticMinInput
	}
	if c.Agent.Timeout == "" {
		c.Agent.Timeout = defaults.Agent.Timeout
	}
	if c.Agent.StepDelay == "" {
		c.Agent.StepDelay = defaults.Agent.StepDelay
	}
	if c.Agent.MaxPageChars == 0 {
		c.Agent.MaxPageChars = defaults.Agent.MaxPageChars
	}
	if c.Research.MaxDimensions == 0 {
		c.Research.MaxDimensions = defaults.Research.MaxDimensions
	}
	if c.Research.MaxSourcesPerDim == 0 {
		c.Research.MaxSourcesPerDim = defaults.Research.MaxSourcesPerDim
	}
	if c.Research.MaxTotalSearches == 0 {
		c.Research.MaxTotalSearches = defaults.Research.MaxTotalSearches
	}
	if c.Research.MaxScrape == 0 {
		c.Research.MaxScrape = defaults.Research.MaxScrape
	}
	if c.API.Host == "" {
		c.API.Host = defaults.API.Host
	}
	if c.API.Port == 0 {
		c.API.Port = defaults.API.Port
	}
	if c.API.Timeout == "" {
		c.API.Timeout = defaults.API.Timeout
	}
	if c.Observability.Logging.Level == "" {
		c.Observability.Logging.Level = defaults.Observability.Logging.Level
	}
	if c.Observability.Logging.Format == "" {
		c.Observability.Logging.Format = defaults.Observability.Logging.Format
	}
}

// overrideFromEnv overrides configuration from environment variables
func (c *Config) overrideFromEnv() {
	if key := os.Getenv("TAVILY_API_KEY"); key != "" {
		c.Sources.TavilyAPIKey = key
	}
	if key := os.Getenv("BRAVE_API_KEY"); key != "" {
		c.Sources.BraveAPIKey = key
	}
	if url := os.Getenv("SEARXNG_URL"); url != "" {
		c.Sources.SearXNGURL = url
	}
	if key := os.Getenv("OPENROUTER_API_KEY"); key != "" {
		c.LLM.APIKey = key
	}
	if url := os.Getenv("LLM_BASE_URL"); url != "" {
		c.LLM.BaseURL = url
	}
	if model := os.Getenv("LLM_MODEL"); model != "" {
		c.LLM.Model = model
	}
	if url := os.Getenv("SCORING_SERVICE_URL"); url != "" {
		c.Scoring.BaseURL = url
	}
	if port := os.Getenv("API_PORT"); port != "" {
		if v, err := strconv.Atoi(port); err == nil {
			c.API.Port = v
		}
	}
	if endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); endpoint != "" {
		c.Observability.Tracing.Endpoint = endpoint
	}
}

// validate validates the configuration
func (c *Config) validate() error {
	if c.LLM.BaseURL == "" {
		return fmt.Errorf("llm base_url is required")
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("llm model is required")
	}
	if c.Sources.MaxResults < 1 {
		return fmt.Errorf("sources max_results must be at least 1")
	}
	if c.Rerank.PairwiseWeight < 0 || c.Rerank.PairwiseWeight > 1 {
		return fmt.Errorf("rerank pairwise_weight must be in [0,1]")
	}
	if c.Rerank.FreshnessCap < 0 || c.Rerank.FreshnessCap > 1 {
		return fmt.Errorf("rerank freshness_cap must be in [0,1]")
	}
	if c.Rerank.HalfLifeDays < 1 {
		return fmt.Errorf("rerank half_life_days must be at least 1")
	}
	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		return fmt.Errorf("api port must be between 1 and 65535")
	}
	for name, value := range map[string]string{
		"sources timeout": c.Sources.Timeout,
		"llm timeout":     c.LLM.Timeout,
		"agent timeout":   c.Agent.Timeout,
	} {
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
	}
	return nil
}

// GetDuration parses a duration string, falling back to the given default
// when the string is empty or malformed.
func GetDuration(value string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
