package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mikeboe/deep-search/pkg/research"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("GOOGLE_API_KEY", "")
	t.Setenv("MAX_RESULTS", "")
	t.Setenv("SEARCH_TIMEOUT", "")

	cfg := Load()
	assert.Equal(t, "8081", cfg.Port)
	assert.Equal(t, "genai", cfg.LLMProvider)
	assert.Equal(t, "tavily", cfg.SearchProvider)
	assert.Equal(t, research.DefaultConfig(), cfg.EngineConfig())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("MAX_RESULTS", "8")
	t.Setenv("MIN_RESULTS", "2")
	t.Setenv("SEARCH_TIMEOUT", "45s")
	t.Setenv("PLAN_TIMEOUT", "20")
	t.Setenv("LLM_PROVIDER", "langchain")

	cfg := Load()
	eng := cfg.EngineConfig()
	assert.Equal(t, 8, eng.MaxResults)
	assert.Equal(t, 2, eng.MinResults)
	assert.Equal(t, 45*time.Second, eng.SearchTimeout)
	assert.Equal(t, 20*time.Second, eng.PlanTimeout)
	assert.Equal(t, "langchain", cfg.LLMProvider)
}

func TestGetEnvAsDuration(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  time.Duration
	}{
		{"empty", "", time.Minute},
		{"duration", "1m30s", 90 * time.Second},
		{"seconds", "5", 5 * time.Second},
		{"garbage", "soon", time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_DURATION", tt.value)
			if got := getEnvAsDuration("TEST_DURATION", time.Minute); got != tt.want {
				t.Errorf("getEnvAsDuration() = %v, want %v", got, tt.want)
			}
		})
	}
}
