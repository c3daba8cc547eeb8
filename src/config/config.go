package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"credit-observer/src/models"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix for environment overrides, e.g. CREDIT_PORT.
const EnvPrefix = "CREDIT"

// Source types understood by the connector factory.
const (
	SourceYahooChart        = "yahoo_chart"
	SourceYahooFundamentals = "yahoo_fundamentals"
	SourceAlphaVantage      = "alphavantage"
	SourceNewsAPI           = "newsapi"
	SourceSECEdgar          = "secedgar"
)

// -----------------------------------------------------------------------------

// Config wraps models.MConfig and provides business logic methods
type Config struct {
	*models.MConfig
}

// -----------------------------------------------------------------------------

// NewConfig creates a new Config from a YAML file, a sibling .env file and
// CREDIT_* environment variables, in that order of precedence (last wins).
func NewConfig(configPath string) (*Config, error) {
	// 1. Read the YAML file content
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", configPath, err)
	}

	// 2. Unmarshal data into the models struct
	modelConfig := Defaults()
	if err := yaml.Unmarshal(data, modelConfig); err != nil {
		return nil, fmt.Errorf("failed to parse config from YAML: %w", err)
	}

	// 3. Secrets from .env, then environment overrides
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	if err := envconfig.Process(EnvPrefix, modelConfig); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	config := &Config{MConfig: modelConfig}
	config.resolveAPIKeys()

	// 4. Validate the loaded configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// -----------------------------------------------------------------------------

// Defaults returns a configuration with every tunable set. YAML and env
// values are layered on top of it.
func Defaults() *models.MConfig {
	return &models.MConfig{
		Name:      "credit-observer",
		Host:      "0.0.0.0",
		Port:      8080,
		LogLevel:  "info",
		LogFormat: "text",
		Storage: models.MStorageConfig{
			DBType:        "sqlite",
			DBPath:        "credit.db",
			RetentionDays: 365,
		},
		Network: models.MNetworkConfig{
			RequestTimeout: 30,
			UserAgent:      "credit-observer/1.0",
		},
		Ingestion: models.MIngestionConfig{
			MaxAttempts:      4,
			BaseDelayMillis:  500,
			MaxDelayMillis:   30000,
			CycleTimeout:     120,
			DegradeThreshold: 3,
			FailThreshold:    10,
			CleanupSchedule:  "@daily",
		},
		Features: models.MFeatureConfig{
			MarketWindowDays:   30,
			NewsWindowDays:     14,
			NewsHalfLifeHours:  72,
			RSIPeriod:          14,
			MovingAveragePoint: 20,
		},
		Scoring: models.MScoringConfig{
			Trees:               50,
			MaxDepth:            6,
			MinLeaf:             3,
			SampleFraction:      0.8,
			FeatureFraction:     0.7,
			Seed:                42,
			HoldoutFraction:     0.2,
			ModelDir:            "models",
			ScoreSchedule:       "@every 10m",
			RetrainSchedule:     "@every 6h",
			RunTimeout:          300,
			Parallelism:         4,
			ImputationPenalty:   0.5,
			HeuristicConfidence: 0.35,
			MinTrainingSamples:  20,
		},
		Explain: models.MExplainConfig{
			TopK:      5,
			Tolerance: 1e-3,
		},
		Alerts: models.MAlertConfig{
			LowThreshold:    10,
			MediumThreshold: 20,
			HighThreshold:   40,
			Bands:           []float64{580, 670, 740, 750, 800},
		},
		Cache: models.MCacheConfig{
			Addr:       "localhost:6379",
			TTLSeconds: 300,
		},
	}
}

// -----------------------------------------------------------------------------

// resolveAPIKeys fills APIKey from the variable named by APIKeyEnv when the
// YAML leaves the key empty.
func (c *Config) resolveAPIKeys() {
	for i := range c.Ingestion.Sources {
		src := &c.Ingestion.Sources[i]
		if src.APIKey == "" && src.APIKeyEnv != "" {
			src.APIKey = os.Getenv(src.APIKeyEnv)
		}
	}
}

// -----------------------------------------------------------------------------

// Validate performs basic configuration validation
func (c *Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("application name cannot be empty")
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warning", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %q", c.LogLevel)
	}

	if c.Host == "" {
		return fmt.Errorf("server host cannot be empty")
	}
	if c.Port <= 1024 || c.Port > 65535 {
		return fmt.Errorf("invalid server port number: %d (must be between 1025 and 65535)", c.Port)
	}

	// Storage
	switch c.Storage.DBType {
	case "sqlite":
		if c.Storage.DBPath == "" {
			return fmt.Errorf("database path cannot be empty for sqlite")
		}
	case "postgres":
		if c.Storage.DBConnectionString == "" {
			return fmt.Errorf("connection string cannot be empty for postgres")
		}
	default:
		return fmt.Errorf("unsupported database type: %q", c.Storage.DBType)
	}
	if c.Storage.RetentionDays <= 0 {
		return fmt.Errorf("retention days must be greater than 0")
	}

	if c.Network.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be greater than 0")
	}

	// Ingestion
	in := c.Ingestion
	if in.MaxAttempts <= 0 {
		return fmt.Errorf("max attempts must be greater than 0")
	}
	if in.BaseDelayMillis <= 0 || in.MaxDelayMillis < in.BaseDelayMillis {
		return fmt.Errorf("invalid backoff delays: base %dms, max %dms", in.BaseDelayMillis, in.MaxDelayMillis)
	}
	if in.CycleTimeout <= 0 {
		return fmt.Errorf("cycle timeout must be greater than 0")
	}
	if in.DegradeThreshold <= 0 || in.FailThreshold < in.DegradeThreshold {
		return fmt.Errorf("invalid health thresholds: degrade %d, fail %d", in.DegradeThreshold, in.FailThreshold)
	}
	seen := make(map[string]bool)
	for i, src := range in.Sources {
		if src.Name == "" {
			return fmt.Errorf("source %d must have a name", i)
		}
		if seen[src.Name] {
			return fmt.Errorf("duplicate source name '%s'", src.Name)
		}
		seen[src.Name] = true
		switch src.Type {
		case SourceYahooChart, SourceYahooFundamentals, SourceAlphaVantage, SourceNewsAPI, SourceSECEdgar:
		default:
			return fmt.Errorf("source '%s' has unknown type %q", src.Name, src.Type)
		}
		if src.Schedule == "" {
			return fmt.Errorf("source '%s' must have a schedule", src.Name)
		}
		if src.RequestsPerSecond < 0 || src.Burst < 0 {
			return fmt.Errorf("source '%s' has a negative rate limit", src.Name)
		}
	}

	for i, is := range c.Issuers {
		if is.Symbol == "" {
			return fmt.Errorf("issuer %d must have a symbol", i)
		}
	}

	// Features
	f := c.Features
	if f.MarketWindowDays <= 0 || f.NewsWindowDays <= 0 {
		return fmt.Errorf("feature windows must be greater than 0")
	}
	if f.NewsHalfLifeHours <= 0 {
		return fmt.Errorf("news half-life must be greater than 0")
	}
	if f.RSIPeriod < 2 || f.MovingAveragePoint < 2 {
		return fmt.Errorf("rsi period and moving average points must be at least 2")
	}

	// Scoring
	s := c.Scoring
	if s.Trees <= 0 || s.MaxDepth <= 0 || s.MinLeaf <= 0 {
		return fmt.Errorf("trees, max depth and min leaf must be greater than 0")
	}
	if s.SampleFraction <= 0 || s.SampleFraction > 1 || s.FeatureFraction <= 0 || s.FeatureFraction > 1 {
		return fmt.Errorf("sample and feature fractions must be in (0, 1]")
	}
	if s.HoldoutFraction < 0 || s.HoldoutFraction >= 1 {
		return fmt.Errorf("holdout fraction must be in [0, 1)")
	}
	if s.ImputationPenalty < 0 || s.ImputationPenalty > 1 {
		return fmt.Errorf("imputation penalty must be in [0, 1]")
	}
	if s.HeuristicConfidence < 0 || s.HeuristicConfidence > 1 {
		return fmt.Errorf("heuristic confidence must be in [0, 1]")
	}
	if s.Parallelism <= 0 || s.RunTimeout <= 0 {
		return fmt.Errorf("scoring parallelism and run timeout must be greater than 0")
	}

	if c.Explain.TopK <= 0 || c.Explain.Tolerance <= 0 {
		return fmt.Errorf("explain top_k and tolerance must be greater than 0")
	}

	// Alerts
	a := c.Alerts
	if !(0 < a.LowThreshold && a.LowThreshold < a.MediumThreshold && a.MediumThreshold < a.HighThreshold) {
		return fmt.Errorf("alert thresholds must satisfy 0 < low < medium < high")
	}
	for _, b := range a.Bands {
		if b <= models.MinScore || b >= models.MaxScore {
			return fmt.Errorf("alert band %.1f outside score range", b)
		}
	}

	if c.Cache.Enabled && c.Cache.Addr == "" {
		return fmt.Errorf("cache address cannot be empty when cache is enabled")
	}

	return nil
}

// -----------------------------------------------------------------------------

// Source returns the named source configuration.
func (c *Config) Source(name string) (models.MSourceConfig, bool) {
	for _, src := range c.Ingestion.Sources {
		if src.Name == name {
			return src, true
		}
	}
	return models.MSourceConfig{}, false
}

// Symbols returns the configured issuer symbols in configuration order.
func (c *Config) Symbols() []string {
	out := make([]string, 0, len(c.Issuers))
	for _, is := range c.Issuers {
		out = append(out, is.Symbol)
	}
	return out
}

// -----------------------------------------------------------------------------

// Save persists the current configuration to the specified YAML file path
func (c *Config) Save(configPath string) error {
	// 1. Marshal the struct to YAML
	data, err := yaml.Marshal(c.MConfig)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	// 2. Write to file (0644 permissions)
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config to file '%s': %w", configPath, err)
	}

	return nil
}
