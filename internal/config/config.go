package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
)

type Config struct {
	App        AppConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Collection CollectionConfig
	Embedding  EmbeddingConfig
	Extraction ExtractionConfig
	Monitoring MonitoringConfig
	Schedule   ScheduleConfig

	// SourcesFile points at the YAML holding source definitions and collection windows.
	SourcesFile string
}

type AppConfig struct {
	AppName     string
	Environment string
	HTTPPort    string
	LogLevel    string
}

type DatabaseConfig struct {
	DBHost     string
	DBPort     string
	DBName     string
	DBUser     string
	DBPassword string
	DBSSLMode  string

	ConnectTimeout  time.Duration
	PoolMaxConns    int32
	PoolMinConns    int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	TTL      time.Duration
}

type CollectionConfig struct {
	ResultsPerSpec      int
	MaxAgeHours         int
	MaxListingsPerRun   int
	FetchTimeout        time.Duration
	BatchIdentifier     string
	Strategy            string
	Focus               []string
	Locations           []string
	DescriptionMaxChars int
}

type EmbeddingConfig struct {
	BaseURL          string
	APIKey           string
	Model            string
	Dimensions       int
	BatchSize        int
	MaxBatchesPerRun int
	RequestTimeout   time.Duration
	PollParallelism  int
}

type ExtractionConfig struct {
	BaseURL           string
	APIKey            string
	Model             string
	RequestsPerSecond float64
	RequestTimeout    time.Duration
	LimitPerRun       int
}

type MonitoringConfig struct {
	WindowHours               int
	MinDailyJobs              int
	MaxMissingCompanyRate     float64
	MaxHoursWithoutCollection int
	MaxDuplicateRate          float64
}

type ScheduleConfig struct {
	EmbedSubmit string
	EmbedPoll   string
	Extract     string
	Dedupe      string
	Health      string
}

var errMissingRequiredEnv = errors.New("missing required environment variables")

// Load reads configuration from the environment, after merging an optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{}

	var missing []string
	req := func(key string) string {
		v := strings.TrimSpace(os.Getenv(key))
		if v == "" {
			missing = append(missing, key)
		}
		return v
	}
	opt := func(key string) string {
		return strings.TrimSpace(os.Getenv(key))
	}
	optDefault := func(key, def string) string {
		if v := opt(key); v != "" {
			return v
		}
		return def
	}

	cfg.App = AppConfig{
		AppName:     req("APP_NAME"),
		Environment: req("APP_ENV"),
		HTTPPort:    optDefault("HTTP_PORT", "8080"),
		LogLevel:    optDefault("LOG_LEVEL", "info"),
	}

	cfg.Database = DatabaseConfig{
		DBHost:          req("DB_HOST"),
		DBPort:          optDefault("DB_PORT", "5432"),
		DBName:          req("DB_NAME"),
		DBUser:          req("DB_USER"),
		DBPassword:      opt("DB_PASSWORD"),
		DBSSLMode:       optDefault("DB_SSL_MODE", "disable"),
		ConnectTimeout:  seconds(opt("DB_CONNECT_TIMEOUT"), 10*time.Second),
		PoolMaxConns:    int32(intOr(opt("DB_POOL_MAX_CONNS"), 10)),
		PoolMinConns:    int32(intOr(opt("DB_POOL_MIN_CONNS"), 0)),
		MaxConnLifetime: seconds(opt("DB_POOL_MAX_CONN_LIFETIME"), time.Hour),
		MaxConnIdleTime: seconds(opt("DB_POOL_MAX_CONN_IDLE_TIME"), 30*time.Minute),
	}

	cfg.Redis = RedisConfig{
		Host:     optDefault("REDIS_HOST", "localhost"),
		Port:     optDefault("REDIS_PORT", "6379"),
		Password: opt("REDIS_PASSWORD"),
		TTL:      seconds(opt("REDIS_TTL"), 600*time.Second),
	}

	cfg.Collection = CollectionConfig{
		ResultsPerSpec:      intOr(opt("MAX_JOBS_PER_SEARCH"), 50),
		MaxAgeHours:         intOr(opt("HOURS_OLD_FILTER"), 48),
		MaxListingsPerRun:   intOr(opt("MAX_JOBS_PER_RUN"), 500),
		FetchTimeout:        seconds(opt("FETCH_TIMEOUT"), 60*time.Second),
		BatchIdentifier:     optDefault("BATCH_IDENTIFIER", "default"),
		Strategy:            optDefault("COLLECTION_STRATEGY", "comprehensive"),
		Focus:               splitList(opt("SEARCH_FOCUS")),
		Locations:           splitList(opt("SEARCH_LOCATIONS")),
		DescriptionMaxChars: intOr(opt("DESCRIPTION_MAX_CHARS"), 2000),
	}

	cfg.Embedding = EmbeddingConfig{
		BaseURL:          optDefault("EMBEDDING_BASE_URL", "https://api.openai.com/v1"),
		APIKey:           opt("OPENAI_API_KEY"),
		Model:            optDefault("EMBEDDING_MODEL", "text-embedding-3-small"),
		Dimensions:       intOr(opt("EMBEDDING_DIMENSIONS"), 1536),
		BatchSize:        intOr(opt("EMBEDDING_BATCH_SIZE"), 500),
		MaxBatchesPerRun: intOr(opt("EMBEDDING_MAX_BATCHES_PER_RUN"), 10),
		RequestTimeout:   seconds(opt("EMBEDDING_TIMEOUT"), 60*time.Second),
		PollParallelism:  intOr(opt("EMBEDDING_POLL_PARALLELISM"), 4),
	}

	cfg.Extraction = ExtractionConfig{
		BaseURL:           optDefault("EXTRACTION_BASE_URL", "https://api.openai.com/v1"),
		APIKey:            opt("OPENAI_API_KEY"),
		Model:             optDefault("EXTRACTION_MODEL", "gpt-4o-mini"),
		RequestsPerSecond: floatOr(opt("EXTRACTION_RPS"), 1),
		RequestTimeout:    seconds(opt("EXTRACTION_TIMEOUT"), 60*time.Second),
		LimitPerRun:       intOr(opt("EXTRACTION_LIMIT"), 200),
	}

	cfg.Monitoring = MonitoringConfig{
		WindowHours:               intOr(opt("MONITOR_WINDOW_HOURS"), 24),
		MinDailyJobs:              intOr(opt("ALERT_MIN_DAILY_JOBS"), 100),
		MaxMissingCompanyRate:     floatOr(opt("ALERT_MAX_MISSING_COMPANY_RATE"), 0.3),
		MaxHoursWithoutCollection: intOr(opt("ALERT_MAX_HOURS_WITHOUT_COLLECTION"), 6),
		MaxDuplicateRate:          floatOr(opt("ALERT_MAX_DUPLICATE_RATE"), 0.1),
	}

	cfg.Schedule = ScheduleConfig{
		EmbedSubmit: optDefault("SCHEDULE_EMBED_SUBMIT", "@every 1h"),
		EmbedPoll:   optDefault("SCHEDULE_EMBED_POLL", "@every 10m"),
		Extract:     optDefault("SCHEDULE_EXTRACT", "@every 30m"),
		Dedupe:      optDefault("SCHEDULE_DEDUPE", "@daily"),
		Health:      optDefault("SCHEDULE_HEALTH", "@every 1h"),
	}

	cfg.SourcesFile = optDefault("SOURCES_FILE", "config/sources.yaml")

	if len(missing) > 0 {
		return Config{}, errors.Wrapf(errMissingRequiredEnv, "%s", strings.Join(missing, ", "))
	}

	if cfg.Monitoring.MaxMissingCompanyRate < 0 || cfg.Monitoring.MaxMissingCompanyRate > 1 {
		return Config{}, errors.New("ALERT_MAX_MISSING_COMPANY_RATE must be between 0 and 1")
	}
	if cfg.Collection.MaxListingsPerRun <= 0 {
		return Config{}, errors.New("MAX_JOBS_PER_RUN must be positive")
	}

	return cfg, nil
}

// IsProduction reports whether the app runs with APP_ENV=production.
func (c AppConfig) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

func intOr(raw string, def int) int {
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

func floatOr(raw string, def float64) float64 {
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return v
}

// seconds parses a whole number of seconds, or a Go duration string like "90s".
func seconds(raw string, def time.Duration) time.Duration {
	if raw == "" {
		return def
	}
	if v, err := strconv.Atoi(raw); err == nil {
		if v <= 0 {
			return def
		}
		return time.Duration(v) * time.Second
	}
	if d, err := time.ParseDuration(raw); err == nil && d > 0 {
		return d
	}
	return def
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
