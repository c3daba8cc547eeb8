package models

// MConfig Structure
type MConfig struct {
	Name      string           `yaml:"name" envconfig:"NAME"`
	Host      string           `yaml:"host" envconfig:"HOST"`
	Port      int              `yaml:"port" envconfig:"PORT"`
	LogLevel  string           `yaml:"log_level" envconfig:"LOG_LEVEL"`
	LogFormat string           `yaml:"log_format" envconfig:"LOG_FORMAT"`
	LogFile   string           `yaml:"log_file" envconfig:"LOG_FILE"`
	Storage   MStorageConfig   `yaml:"storage" envconfig:"STORAGE"`
	Network   MNetworkConfig   `yaml:"network" envconfig:"NETWORK"`
	Ingestion MIngestionConfig `yaml:"ingestion" envconfig:"INGESTION"`
	Issuers   []MIssuerConfig  `yaml:"issuers" ignored:"true"`
	Features  MFeatureConfig   `yaml:"features" envconfig:"FEATURES"`
	Scoring   MScoringConfig   `yaml:"scoring" envconfig:"SCORING"`
	Explain   MExplainConfig   `yaml:"explain" envconfig:"EXPLAIN"`
	Alerts    MAlertConfig     `yaml:"alerts" envconfig:"ALERTS"`
	Cache     MCacheConfig     `yaml:"cache" envconfig:"CACHE"`
}

type MStorageConfig struct {
	DBType             string `yaml:"db_type" envconfig:"DB_TYPE"`
	DBPath             string `yaml:"db_path" envconfig:"DB_PATH"`
	DBConnectionString string `yaml:"db_connection_string" envconfig:"DB_CONNECTION_STRING"`
	RetentionDays      int    `yaml:"retention_days" envconfig:"RETENTION_DAYS"`
}

type MNetworkConfig struct {
	RequestTimeout int    `yaml:"timeout" envconfig:"TIMEOUT"`
	UserAgent      string `yaml:"user_agent" envconfig:"USER_AGENT"`
}

type MIngestionConfig struct {
	MaxAttempts        int             `yaml:"max_attempts" envconfig:"MAX_ATTEMPTS"`
	BaseDelayMillis    int             `yaml:"base_delay_ms" envconfig:"BASE_DELAY_MS"`
	MaxDelayMillis     int             `yaml:"max_delay_ms" envconfig:"MAX_DELAY_MS"`
	CycleTimeout       int             `yaml:"cycle_timeout" envconfig:"CYCLE_TIMEOUT"`
	DegradeThreshold   int             `yaml:"degrade_threshold" envconfig:"DEGRADE_THRESHOLD"`
	FailThreshold      int             `yaml:"fail_threshold" envconfig:"FAIL_THRESHOLD"`
	RespectMarketHours bool            `yaml:"respect_market_hours" envconfig:"RESPECT_MARKET_HOURS"`
	CleanupSchedule    string          `yaml:"cleanup_schedule" envconfig:"CLEANUP_SCHEDULE"`
	Sources            []MSourceConfig `yaml:"sources" ignored:"true"`
}

// MSourceConfig describes one connector. Type selects the implementation
// (yahoo_chart, yahoo_fundamentals, alphavantage, newsapi, secedgar).
type MSourceConfig struct {
	Name              string   `yaml:"name"`
	Type              string   `yaml:"type"`
	Schedule          string   `yaml:"schedule"`
	Enabled           bool     `yaml:"enabled"`
	Symbols           []string `yaml:"symbols"`
	BaseURL           string   `yaml:"base_url"`
	APIKey            string   `yaml:"api_key"`
	APIKeyEnv         string   `yaml:"api_key_env"`
	RequestsPerSecond float64  `yaml:"requests_per_second"`
	Burst             int      `yaml:"burst"`
	Range             string   `yaml:"range"`
	Interval          string   `yaml:"interval"`
}

type MIssuerConfig struct {
	Symbol   string `yaml:"symbol"`
	Name     string `yaml:"name"`
	Sector   string `yaml:"sector"`
	Industry string `yaml:"industry"`
	CIK      int    `yaml:"cik"`
}

type MFeatureConfig struct {
	MarketWindowDays   int                `yaml:"market_window_days" envconfig:"MARKET_WINDOW_DAYS"`
	NewsWindowDays     int                `yaml:"news_window_days" envconfig:"NEWS_WINDOW_DAYS"`
	NewsHalfLifeHours  float64            `yaml:"news_half_life_hours" envconfig:"NEWS_HALF_LIFE_HOURS"`
	RSIPeriod          int                `yaml:"rsi_period" envconfig:"RSI_PERIOD"`
	MovingAveragePoint int                `yaml:"moving_average_points" envconfig:"MOVING_AVERAGE_POINTS"`
	NeutralDefaults    map[string]float64 `yaml:"neutral_defaults" ignored:"true"`
}

type MScoringConfig struct {
	Trees               int     `yaml:"trees" envconfig:"TREES"`
	MaxDepth            int     `yaml:"max_depth" envconfig:"MAX_DEPTH"`
	MinLeaf             int     `yaml:"min_leaf" envconfig:"MIN_LEAF"`
	SampleFraction      float64 `yaml:"sample_fraction" envconfig:"SAMPLE_FRACTION"`
	FeatureFraction     float64 `yaml:"feature_fraction" envconfig:"FEATURE_FRACTION"`
	Seed                int64   `yaml:"seed" envconfig:"SEED"`
	HoldoutFraction     float64 `yaml:"holdout_fraction" envconfig:"HOLDOUT_FRACTION"`
	ModelDir            string  `yaml:"model_dir" envconfig:"MODEL_DIR"`
	ScoreSchedule       string  `yaml:"score_schedule" envconfig:"SCORE_SCHEDULE"`
	RetrainSchedule     string  `yaml:"retrain_schedule" envconfig:"RETRAIN_SCHEDULE"`
	RunTimeout          int     `yaml:"run_timeout" envconfig:"RUN_TIMEOUT"`
	Parallelism         int     `yaml:"parallelism" envconfig:"PARALLELISM"`
	ImputationPenalty   float64 `yaml:"imputation_penalty" envconfig:"IMPUTATION_PENALTY"`
	HeuristicConfidence float64 `yaml:"heuristic_confidence" envconfig:"HEURISTIC_CONFIDENCE"`
	MinTrainingSamples  int     `yaml:"min_training_samples" envconfig:"MIN_TRAINING_SAMPLES"`
}

type MExplainConfig struct {
	TopK      int     `yaml:"top_k" envconfig:"TOP_K"`
	Tolerance float64 `yaml:"tolerance" envconfig:"TOLERANCE"`
}

type MAlertConfig struct {
	LowThreshold    float64   `yaml:"low_threshold" envconfig:"LOW_THRESHOLD"`
	MediumThreshold float64   `yaml:"medium_threshold" envconfig:"MEDIUM_THRESHOLD"`
	HighThreshold   float64   `yaml:"high_threshold" envconfig:"HIGH_THRESHOLD"`
	Bands           []float64 `yaml:"bands" envconfig:"BANDS"`
}

type MCacheConfig struct {
	Enabled    bool   `yaml:"enabled" envconfig:"ENABLED"`
	Addr       string `yaml:"addr" envconfig:"ADDR"`
	Password   string `yaml:"password" envconfig:"PASSWORD"`
	DB         int    `yaml:"db" envconfig:"DB"`
	TTLSeconds int    `yaml:"ttl_seconds" envconfig:"TTL_SECONDS"`
}
