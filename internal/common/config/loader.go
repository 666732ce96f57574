// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

func Load() (*Config, error) {
	loadEnvFile()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("../../configs")
	viper.AddConfigPath(".")

	// Enable ENV override like DATABASE_POSTGRES_PASSWORD
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	// Environment-specific overlay, ignored if not present.
	viper.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = viper.MergeInConfig()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if cfg.GenAI.APIKey == "" {
		cfg.GenAI.APIKey = os.Getenv("GEMINI_API_KEY")
	}

	if cfg.Database.Elasticsearch.URL == "" && len(cfg.Database.Elasticsearch.Addresses) > 0 {
		cfg.Database.Elasticsearch.URL = cfg.Database.Elasticsearch.Addresses[0]
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// loadEnvFile loads .env from the working directory or its parents so the
// loader behaves the same from cmd/ binaries and package tests.
func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
		"../../../.env",
	}
	for _, p := range possiblePaths {
		if _, err := os.Stat(p); err == nil {
			_ = godotenv.Load(p)
			return
		}
	}
}

func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "scholarship-pipeline"
	}
	if cfg.App.Environment == "" {
		cfg.App.Environment = "development"
	}
	if cfg.App.MetricsPort == 0 {
		cfg.App.MetricsPort = 9090
	}

	if cfg.Database.Postgres.Port == 0 {
		cfg.Database.Postgres.Port = 5432
	}
	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 20
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 5
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}
	if cfg.Database.Redis.Address == "" {
		cfg.Database.Redis.Address = "localhost:6379"
	}

	if cfg.Pipeline.StageTimeout == 0 {
		cfg.Pipeline.StageTimeout = 120 * time.Second
	}
	if cfg.Pipeline.CheckpointCacheTTL == 0 {
		cfg.Pipeline.CheckpointCacheTTL = 30 * time.Minute
	}

	if cfg.Match.PassThreshold == 0 {
		cfg.Match.PassThreshold = 0.7
	}
	if cfg.Match.GapFloor == 0 {
		cfg.Match.GapFloor = 0.65
	}
	if cfg.Match.MinRelevance == 0 {
		cfg.Match.MinRelevance = 0.1
	}
	if cfg.Match.TopK == 0 {
		cfg.Match.TopK = 3
	}
	if cfg.Match.DistanceScale == 0 {
		cfg.Match.DistanceScale = 2.0
	}
	if cfg.Match.QueryConcurrency == 0 {
		cfg.Match.QueryConcurrency = 4
	}
	if cfg.Match.CacheTTL == 0 {
		cfg.Match.CacheTTL = 10 * time.Minute
	}

	if cfg.Interview.ConfidenceThreshold == 0 {
		cfg.Interview.ConfidenceThreshold = 0.8
	}
	if cfg.Interview.MaxTurns == 0 {
		cfg.Interview.MaxTurns = 8
	}
	if cfg.Interview.FallbackBump == 0 {
		cfg.Interview.FallbackBump = 0.1
	}

	if cfg.GenAI.Model == "" {
		cfg.GenAI.Model = "gemini-2.5-flash"
	}
	if cfg.GenAI.EmbeddingModel == "" {
		cfg.GenAI.EmbeddingModel = "gemini-embedding-001"
	}
	if cfg.GenAI.MaxRetries == 0 {
		cfg.GenAI.MaxRetries = 3
	}
	if cfg.GenAI.RequestTimeout == 0 {
		cfg.GenAI.RequestTimeout = 90 * time.Second
	}

	if cfg.Knowledge.Backend == "" {
		cfg.Knowledge.Backend = "pgvector"
	}
	if cfg.Knowledge.Index == "" {
		cfg.Knowledge.Index = "knowledge-fragments"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "console"
	}
}

func validateConfig(cfg *Config) error {
	if cfg.Match.PassThreshold <= 0 || cfg.Match.PassThreshold > 1 {
		return fmt.Errorf("match.pass_threshold must be in (0,1], got %v", cfg.Match.PassThreshold)
	}
	if cfg.Match.GapFloor <= 0 || cfg.Match.GapFloor > 1 {
		return fmt.Errorf("match.gap_floor must be in (0,1], got %v", cfg.Match.GapFloor)
	}
	if cfg.Interview.ConfidenceThreshold <= 0 || cfg.Interview.ConfidenceThreshold > 1 {
		return fmt.Errorf("interview.confidence_threshold must be in (0,1], got %v", cfg.Interview.ConfidenceThreshold)
	}
	if cfg.Interview.MaxTurns < 1 {
		return fmt.Errorf("interview.max_turns must be positive, got %d", cfg.Interview.MaxTurns)
	}
	if cfg.Interview.FallbackBump >= cfg.Interview.ConfidenceThreshold {
		return fmt.Errorf("interview.fallback_bump must stay below the confidence threshold")
	}
	switch cfg.Knowledge.Backend {
	case "pgvector", "elasticsearch":
	default:
		return fmt.Errorf("knowledge.backend must be pgvector or elasticsearch, got %q", cfg.Knowledge.Backend)
	}
	return nil
}
