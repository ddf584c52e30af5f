package config

import (
	"os"
	"strconv"
	"time"

	"github.com/mikeboe/deep-search/pkg/research"
)

type Config struct {
	GoogleApiKey   string
	TavilyApiKey   string
	DatabaseURL    string
	MaxConns       int
	ReasoningModel string
	FastModel      string
	ChatModel      string
	LLMProvider    string
	SearchProvider string
	SearchRPS      float64
	Port           string
	ChunkSize      int
	ChunkOverlap   int
	ExcerptRunes   int

	MinResults      int
	MaxResults      int
	MaxRetries      int
	RetryBackoff    time.Duration
	PlanTimeout     time.Duration
	SearchTimeout   time.Duration
	AnalysisTimeout time.Duration
	ReportTimeout   time.Duration
}

func Load() *Config {
	defaults := research.DefaultConfig()
	return &Config{
		GoogleApiKey:   getEnv("GOOGLE_API_KEY", ""),
		TavilyApiKey:   getEnv("TAVILY_API_KEY", ""),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		MaxConns:       getEnvAsInt("DB_MAX_CONNS", 10),
		ReasoningModel: getEnv("REASONING_MODEL", "gemini-2.5-pro"),
		FastModel:      getEnv("FAST_MODEL", "gemini-2.5-flash"),
		ChatModel:      getEnv("CHAT_MODEL", "gemini-2.5-flash"),
		LLMProvider:    getEnv("LLM_PROVIDER", "genai"),
		SearchProvider: getEnv("SEARCH_PROVIDER", "tavily"),
		SearchRPS:      getEnvAsFloat("SEARCH_RPS", 2),
		Port:           getEnv("PORT", "8081"),
		ChunkSize:      getEnvAsInt("CHUNK_SIZE", defaults.ChunkSize),
		ChunkOverlap:   getEnvAsInt("CHUNK_OVERLAP", defaults.ChunkOverlap),
		ExcerptRunes:   getEnvAsInt("EXCERPT_RUNES", defaults.ExcerptRunes),

		MinResults:      getEnvAsInt("MIN_RESULTS", defaults.MinResults),
		MaxResults:      getEnvAsInt("MAX_RESULTS", defaults.MaxResults),
		MaxRetries:      getEnvAsInt("MAX_RETRIES", defaults.MaxRetries),
		RetryBackoff:    getEnvAsDuration("RETRY_BACKOFF", defaults.RetryBackoff),
		PlanTimeout:     getEnvAsDuration("PLAN_TIMEOUT", defaults.PlanTimeout),
		SearchTimeout:   getEnvAsDuration("SEARCH_TIMEOUT", defaults.SearchTimeout),
		AnalysisTimeout: getEnvAsDuration("ANALYSIS_TIMEOUT", defaults.AnalysisTimeout),
		ReportTimeout:   getEnvAsDuration("REPORT_TIMEOUT", defaults.ReportTimeout),
	}
}

// EngineConfig returns the orchestrator settings of the loaded configuration.
func (c *Config) EngineConfig() research.Config {
	return research.Config{
		MinResults:      c.MinResults,
		MaxResults:      c.MaxResults,
		MaxRetries:      c.MaxRetries,
		RetryBackoff:    c.RetryBackoff,
		PlanTimeout:     c.PlanTimeout,
		SearchTimeout:   c.SearchTimeout,
		AnalysisTimeout: c.AnalysisTimeout,
		ReportTimeout:   c.ReportTimeout,
		ChunkSize:       c.ChunkSize,
		ChunkOverlap:    c.ChunkOverlap,
		ExcerptRunes:    c.ExcerptRunes,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration accepts Go durations ("90s") or a plain number of seconds.
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(valueStr); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
