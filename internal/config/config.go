package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Snapshot backends.
const (
	SnapshotNone     = "none"
	SnapshotHTTP     = "http"
	SnapshotSupabase = "supabase"
	SnapshotSQL      = "sql"
)

// Model backends.
const (
	ModelScorecard = "scorecard"
	ModelHTTP      = "http"
)

// Config holds all application configuration.
// Values come from defaults, an optional config file named by SCORER_CONFIG,
// and environment variables, in increasing precedence.
type Config struct {
	// Server
	Port         int
	LogLevel     string
	MaxBodyBytes int64

	// Feature derivation
	TimezoneName string
	Location     *time.Location

	// HTTP client
	HTTPTimeout time.Duration

	// Resilience
	MaxRetries     int
	InitialBackoff time.Duration
	MaxConcurrency int

	// Cache
	PredictionCacheTTL time.Duration

	// Observability
	OTLPEndpoint string

	// Scoring model
	ModelBackend string
	ModelPath    string
	ModelAPIURL  string

	// Snapshot sources
	SnapshotBackend    string
	AccountAPIURL      string
	TransactionsAPIURL string

	// Supabase
	SupabaseURL        string
	SupabaseAnonKey    string
	SupabaseServiceKey string

	// SQL store
	DatabaseDriver string
	DatabaseURL    string

	// Auth
	APIJWTSecret string

	// CORS
	CORSAllowedOrigins []string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", 8080)
	v.SetDefault("log_level", "info")
	v.SetDefault("max_body_bytes", 1<<20)
	v.SetDefault("timezone", "UTC")
	v.SetDefault("http_timeout", 10*time.Second)
	v.SetDefault("max_retries", 3)
	v.SetDefault("initial_backoff", 100*time.Millisecond)
	v.SetDefault("max_concurrency", 50)
	v.SetDefault("prediction_cache_ttl", 5*time.Minute)
	v.SetDefault("otel_exporter_otlp_endpoint", "")
	v.SetDefault("model_backend", ModelScorecard)
	v.SetDefault("model_path", "configs/scorecard.toml")
	v.SetDefault("model_api_url", "http://localhost:8090")
	v.SetDefault("snapshot_backend", SnapshotNone)
	v.SetDefault("account_api_url", "http://localhost:8081")
	v.SetDefault("transactions_api_url", "http://localhost:8082")
	v.SetDefault("supabase_url", "")
	v.SetDefault("supabase_anon_key", "")
	v.SetDefault("supabase_service_role_key", "")
	v.SetDefault("database_driver", "sqlite3")
	v.SetDefault("database_url", "file:scorer.db")
	v.SetDefault("api_jwt_secret", "")
	v.SetDefault("cors_allowed_origins", "*")
}

// Load reads configuration. Keys are the upper-case environment names
// (PORT, LOG_LEVEL, ...) or their lower-case form in the config file.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path := os.Getenv("SCORER_CONFIG"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}
	v.AutomaticEnv()

	cfg := &Config{
		Port:         v.GetInt("port"),
		LogLevel:     v.GetString("log_level"),
		MaxBodyBytes: v.GetInt64("max_body_bytes"),

		TimezoneName: v.GetString("timezone"),

		HTTPTimeout: v.GetDuration("http_timeout"),

		MaxRetries:     v.GetInt("max_retries"),
		InitialBackoff: v.GetDuration("initial_backoff"),
		MaxConcurrency: v.GetInt("max_concurrency"),

		PredictionCacheTTL: v.GetDuration("prediction_cache_ttl"),

		OTLPEndpoint: v.GetString("otel_exporter_otlp_endpoint"),

		ModelBackend: strings.ToLower(v.GetString("model_backend")),
		ModelPath:    v.GetString("model_path"),
		ModelAPIURL:  strings.TrimRight(v.GetString("model_api_url"), "/"),

		SnapshotBackend:    strings.ToLower(v.GetString("snapshot_backend")),
		AccountAPIURL:      strings.TrimRight(v.GetString("account_api_url"), "/"),
		TransactionsAPIURL: strings.TrimRight(v.GetString("transactions_api_url"), "/"),

		SupabaseURL:        v.GetString("supabase_url"),
		SupabaseAnonKey:    v.GetString("supabase_anon_key"),
		SupabaseServiceKey: v.GetString("supabase_service_role_key"),

		DatabaseDriver: v.GetString("database_driver"),
		DatabaseURL:    v.GetString("database_url"),

		APIJWTSecret: v.GetString("api_jwt_secret"),

		CORSAllowedOrigins: splitList(v.GetString("cors_allowed_origins")),
	}

	loc, err := time.LoadLocation(cfg.TimezoneName)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", cfg.TimezoneName, err)
	}
	cfg.Location = loc

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.ModelBackend {
	case ModelScorecard, ModelHTTP:
	default:
		return fmt.Errorf("invalid MODEL_BACKEND %q", c.ModelBackend)
	}

	switch c.SnapshotBackend {
	case SnapshotNone, SnapshotHTTP, SnapshotSQL:
	case SnapshotSupabase:
		if c.SupabaseURL == "" || c.SupabaseAnonKey == "" {
			return fmt.Errorf("SNAPSHOT_BACKEND=supabase requires SUPABASE_URL and SUPABASE_ANON_KEY")
		}
	default:
		return fmt.Errorf("invalid SNAPSHOT_BACKEND %q", c.SnapshotBackend)
	}

	if c.Port <= 0 {
		return fmt.Errorf("invalid PORT %d", c.Port)
	}
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = 1
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = 1 << 20
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
