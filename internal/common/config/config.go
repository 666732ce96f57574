// internal/common/config/config.go
package config

import (
	"fmt"
	"time"
)

// Config is the main application configuration struct.
type Config struct {
	App           AppConfig          `mapstructure:"app"`
	Database      DatabaseConfig     `mapstructure:"database"`
	Pipeline      PipelineConfig     `mapstructure:"pipeline"`
	Match         MatchConfig        `mapstructure:"match"`
	Interview     InterviewConfig    `mapstructure:"interview"`
	GenAI         GenAIConfig        `mapstructure:"genai"`
	Knowledge     KnowledgeConfig    `mapstructure:"knowledge"`
	Notifications NotificationConfig `mapstructure:"notifications"`
	Logging       LoggingConfig      `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	MetricsPort int    `mapstructure:"metrics_port"`
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type ElasticsearchConfig struct {
	Addresses  []string `mapstructure:"addresses"`
	Username   string   `mapstructure:"username"`
	Password   string   `mapstructure:"password"`
	SSLEnabled bool     `mapstructure:"ssl_enabled"`
	URL        string   `mapstructure:"url"`
}

// GetURL returns the first address or the URL field
func (e ElasticsearchConfig) GetURL() string {
	if e.URL != "" {
		return e.URL
	}
	if len(e.Addresses) > 0 {
		return e.Addresses[0]
	}
	return ""
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// --- Pipeline Configuration ---

// PipelineConfig holds orchestrator-level settings.
type PipelineConfig struct {
	StageTimeout       time.Duration `mapstructure:"stage_timeout"`
	CheckpointCacheTTL time.Duration `mapstructure:"checkpoint_cache_ttl"`
}

// MatchConfig holds the tunables of the match-scoring gate. PassThreshold
// and GapFloor are independent: a low overall score with zero named gaps is
// accepted behavior.
type MatchConfig struct {
	PassThreshold    float64       `mapstructure:"pass_threshold"`
	GapFloor         float64       `mapstructure:"gap_floor"`
	MinRelevance     float64       `mapstructure:"min_relevance"`
	TopK             int           `mapstructure:"top_k"`
	DistanceScale    float64       `mapstructure:"distance_scale"`
	QueryConcurrency int           `mapstructure:"query_concurrency"`
	CacheTTL         time.Duration `mapstructure:"cache_ttl"`
}

// InterviewConfig holds the tunables of the interview state machine.
type InterviewConfig struct {
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold"`
	MaxTurns            int     `mapstructure:"max_turns"`
	FallbackBump        float64 `mapstructure:"fallback_bump"`
}

// GenAIConfig holds settings for the Gemini text-generation service.
type GenAIConfig struct {
	APIKey         string        `mapstructure:"api_key"`
	Model          string        `mapstructure:"model"`
	EmbeddingModel string        `mapstructure:"embedding_model"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// KnowledgeConfig selects and tunes the knowledge base backend.
type KnowledgeConfig struct {
	Backend string `mapstructure:"backend"` // "pgvector" or "elasticsearch"
	Index   string `mapstructure:"index"`   // elasticsearch index name
}

// NotificationConfig holds settings for student notifications.
type NotificationConfig struct {
	Email struct {
		Enabled   bool   `mapstructure:"enabled"`
		FromEmail string `mapstructure:"from_email"`
		ToEmail   string `mapstructure:"to_email"`
	} `mapstructure:"email"`
	SMS struct {
		Enabled bool   `mapstructure:"enabled"`
		ToPhone string `mapstructure:"to_phone"`
	} `mapstructure:"sms"`
	AWS struct {
		Region string `mapstructure:"region"`
	} `mapstructure:"aws"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
