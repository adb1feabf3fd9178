package common

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string        `toml:"environment"` // "development" or "production"
	Server      ServerConfig  `toml:"server"`
	Logging     LoggingConfig `toml:"logging"`
	Storage     StorageConfig `toml:"storage"`
	Qdrant      QdrantConfig  `toml:"qdrant"`
	Gemini      GeminiConfig  `toml:"gemini"`
	Claude      ClaudeConfig  `toml:"claude"`
	Retry       RetryConfig   `toml:"retry"`
	Answer      AnswerConfig  `toml:"answer"`
	History     HistoryConfig `toml:"history"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

type LoggingConfig struct {
	Level      string   `toml:"level"`       // "debug", "info", "warn", "error"
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // Time format for logs (default: "15:04:05.000")
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
	GCSchedule     string `toml:"gc_schedule"`      // Cron schedule for value log GC (default: hourly)
}

// QdrantConfig contains vector index connection and search configuration
type QdrantConfig struct {
	BaseURL        string  `toml:"base_url"`        // Qdrant HTTP endpoint (default: "http://localhost:6333")
	APIKey         string  `toml:"api_key"`         // Optional api-key header value
	Collection     string  `toml:"collection"`      // Collection name holding book chunks
	TopK           int     `toml:"top_k"`           // Maximum passages per query (default: 5)
	ScoreThreshold float64 `toml:"score_threshold"` // Minimum similarity score (default: 0.15)
	Timeout        string  `toml:"timeout"`         // HTTP request timeout as duration string (default: "10s")
	RateLimit      string  `toml:"rate_limit"`      // Minimum interval between index requests (default: "50ms")
}

// GeminiConfig contains Google Gemini API configuration for the primary provider
type GeminiConfig struct {
	APIKey         string  `toml:"api_key"`         // Google Gemini API key
	Model          string  `toml:"model"`           // Generation model (default: "gemini-2.0-flash")
	EmbeddingModel string  `toml:"embedding_model"` // Embedding model (default: "gemini-embedding-001")
	EmbeddingDim   int     `toml:"embedding_dim"`   // Embedding dimensionality (default: 768)
	Timeout        string  `toml:"timeout"`         // Operation timeout as duration string (default: "2m")
	Temperature    float32 `toml:"temperature"`     // Generation temperature (default: 0.2)
}

// ClaudeConfig contains Anthropic Claude API configuration for the fallback provider
type ClaudeConfig struct {
	APIKey      string  `toml:"api_key"`     // Anthropic API key
	Model       string  `toml:"model"`       // Generation model (default: "claude-haiku-3-5-20241022")
	MaxTokens   int     `toml:"max_tokens"`  // Maximum tokens in response (default: 2048)
	Timeout     string  `toml:"timeout"`     // Operation timeout as duration string (default: "2m")
	Temperature float32 `toml:"temperature"` // Generation temperature (default: 0.2)
}

// RetryConfig governs per-provider retry and backoff for generation calls
type RetryConfig struct {
	MaxAttempts    int     `toml:"max_attempts"`    // Attempts per provider before falling over (default: 3)
	InitialBackoff string  `toml:"initial_backoff"` // First backoff delay as duration string (default: "500ms")
	MaxBackoff     string  `toml:"max_backoff"`     // Backoff cap as duration string (default: "8s")
	Multiplier     float64 `toml:"multiplier"`      // Exponential growth factor (default: 2.0)
	Jitter         float64 `toml:"jitter"`          // Jitter fraction applied to each delay (default: 0.25)
}

// AnswerConfig tunes prompt composition and pipeline behavior
type AnswerConfig struct {
	MaxQueryLength    int `toml:"max_query_length"`   // Longest accepted query in characters (default: 4000)
	MaxContextChars   int `toml:"max_context_chars"`  // Character budget for the context block (default: 24000)
	RetrievalAttempts int `toml:"retrieval_attempts"` // Attempts against the vector index per query (default: 3)
}

// HistoryConfig controls exchange persistence and retention
type HistoryConfig struct {
	Enabled       bool `toml:"enabled"`        // Persist completed exchanges (default: true)
	RetentionDays int  `toml:"retention_days"` // Days to keep exchanges before GC (default: 30)
	DefaultLimit  int  `toml:"default_limit"`  // Default page size for history listings (default: 50)
}

// NewDefaultConfig creates a configuration with default values.
// Technical parameters are hardcoded here for production stability.
// Only user-facing settings should be exposed in liber.toml.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8085,
			Host: "localhost",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Output:     []string{"stdout"},
			TimeFormat: "15:04:05.000",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path:       "./data",
				GCSchedule: "0 0 * * * *", // Hourly (cron format with seconds)
			},
		},
		Qdrant: QdrantConfig{
			BaseURL:        "http://localhost:6333",
			Collection:     "book_chunks",
			TopK:           5,
			ScoreThreshold: 0.15,
			Timeout:        "10s",
			RateLimit:      "50ms",
		},
		Gemini: GeminiConfig{
			Model:          "gemini-2.0-flash",
			EmbeddingModel: "gemini-embedding-001",
			EmbeddingDim:   768,
			Timeout:        "2m",
			Temperature:    0.2,
		},
		Claude: ClaudeConfig{
			Model:       "claude-haiku-3-5-20241022",
			MaxTokens:   2048,
			Timeout:     "2m",
			Temperature: 0.2,
		},
		Retry: RetryConfig{
			MaxAttempts:    3,
			InitialBackoff: "500ms",
			MaxBackoff:     "8s",
			Multiplier:     2.0,
			Jitter:         0.25,
		},
		Answer: AnswerConfig{
			MaxQueryLength:    4000,
			MaxContextChars:   24000,
			RetrievalAttempts: 3,
		},
		History: HistoryConfig{
			Enabled:       true,
			RetentionDays: 30,
			DefaultLimit:  50,
		},
	}
}

// LoadFromFiles loads configuration from multiple files with priority: default -> file1 -> file2 -> ... -> env -> CLI
// Later files override earlier files. Priority system: CLI flags > Environment variables > Last config file > ... > First config file > Defaults
func LoadFromFiles(paths ...string) (*Config, error) {
	// Start with defaults
	config := NewDefaultConfig()

	// Load and merge each config file in order (later files override earlier files)
	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		err = toml.Unmarshal(data, config)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	// Apply environment variables (overrides all file configs)
	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	// Environment configuration (highest priority: LIBER_ENV, fallback: GO_ENV)
	if env := os.Getenv("LIBER_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	// Server configuration
	if port := os.Getenv("LIBER_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("LIBER_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	// Logging configuration
	if level := os.Getenv("LIBER_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}

	// Storage configuration
	if badgerPath := os.Getenv("LIBER_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}

	// Qdrant configuration
	if baseURL := os.Getenv("LIBER_QDRANT_URL"); baseURL != "" {
		config.Qdrant.BaseURL = baseURL
	}
	if apiKey := os.Getenv("QDRANT_API_KEY"); apiKey != "" {
		config.Qdrant.APIKey = apiKey
	}
	if apiKey := os.Getenv("LIBER_QDRANT_API_KEY"); apiKey != "" {
		config.Qdrant.APIKey = apiKey // LIBER_ prefix takes priority
	}
	if collection := os.Getenv("LIBER_QDRANT_COLLECTION"); collection != "" {
		config.Qdrant.Collection = collection
	}
	if topK := os.Getenv("LIBER_QDRANT_TOP_K"); topK != "" {
		if k, err := strconv.Atoi(topK); err == nil {
			config.Qdrant.TopK = k
		}
	}
	if threshold := os.Getenv("LIBER_QDRANT_SCORE_THRESHOLD"); threshold != "" {
		if t, err := strconv.ParseFloat(threshold, 64); err == nil {
			config.Qdrant.ScoreThreshold = t
		}
	}

	// Gemini configuration
	if apiKey := os.Getenv("GEMINI_API_KEY"); apiKey != "" {
		config.Gemini.APIKey = apiKey
	}
	if apiKey := os.Getenv("LIBER_GEMINI_API_KEY"); apiKey != "" {
		config.Gemini.APIKey = apiKey // LIBER_ prefix takes priority
	}
	if model := os.Getenv("LIBER_GEMINI_MODEL"); model != "" {
		config.Gemini.Model = model
	}
	if model := os.Getenv("LIBER_GEMINI_EMBEDDING_MODEL"); model != "" {
		config.Gemini.EmbeddingModel = model
	}
	if temperature := os.Getenv("LIBER_GEMINI_TEMPERATURE"); temperature != "" {
		if t, err := strconv.ParseFloat(temperature, 32); err == nil {
			config.Gemini.Temperature = float32(t)
		}
	}

	// Claude configuration
	if apiKey := os.Getenv("ANTHROPIC_API_KEY"); apiKey != "" {
		config.Claude.APIKey = apiKey
	}
	if apiKey := os.Getenv("LIBER_CLAUDE_API_KEY"); apiKey != "" {
		config.Claude.APIKey = apiKey // LIBER_ prefix takes priority
	}
	if model := os.Getenv("LIBER_CLAUDE_MODEL"); model != "" {
		config.Claude.Model = model
	}
	if maxTokens := os.Getenv("LIBER_CLAUDE_MAX_TOKENS"); maxTokens != "" {
		if mt, err := strconv.Atoi(maxTokens); err == nil {
			config.Claude.MaxTokens = mt
		}
	}

	// Retry configuration
	if attempts := os.Getenv("LIBER_RETRY_MAX_ATTEMPTS"); attempts != "" {
		if a, err := strconv.Atoi(attempts); err == nil {
			config.Retry.MaxAttempts = a
		}
	}

	// History configuration
	if enabled := os.Getenv("LIBER_HISTORY_ENABLED"); enabled != "" {
		if e, err := strconv.ParseBool(enabled); err == nil {
			config.History.Enabled = e
		}
	}
	if retention := os.Getenv("LIBER_HISTORY_RETENTION_DAYS"); retention != "" {
		if r, err := strconv.Atoi(retention); err == nil {
			config.History.RetentionDays = r
		}
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config
func ApplyFlagOverrides(config *Config, port int, host string) {
	// Command-line flags have highest priority
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// ParseDuration parses a duration string from config, falling back to the
// given default when the string is empty or invalid.
func ParseDuration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}
