// Package clients adapts language model SDKs to research.Model.
package clients

import (
	"context"
	"fmt"

	"github.com/mikeboe/deep-search/pkg/config"
	"github.com/mikeboe/deep-search/pkg/research"
)

const (
	ProviderGenAI     = "genai"
	ProviderLangChain = "langchain"
)

// New builds the model adapter named by cfg.LLMProvider. Plans and analyses
// run on the fast model; the report runs on the reasoning model.
func New(ctx context.Context, cfg *config.Config) (research.Model, error) {
	if cfg.GoogleApiKey == "" {
		return nil, fmt.Errorf("GOOGLE_API_KEY is required")
	}
	switch cfg.LLMProvider {
	case ProviderGenAI, "":
		return NewGenAI(ctx, cfg.GoogleApiKey, cfg.FastModel, cfg.ReasoningModel)
	case ProviderLangChain:
		return NewLangChain(ctx, cfg.GoogleApiKey, cfg.FastModel, cfg.ReasoningModel)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLMProvider)
	}
}
