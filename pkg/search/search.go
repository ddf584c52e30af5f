// Package search holds the web search providers used by the research engine.
package search

import (
	"fmt"
	"math"

	"golang.org/x/time/rate"

	"github.com/mikeboe/deep-search/pkg/research"
)

const (
	ProviderTavily = "tavily"
	ProviderArxiv  = "arxiv"
)

// New returns the provider named by name.
func New(name, tavilyKey string, rps float64) (research.SearchProvider, error) {
	switch name {
	case ProviderTavily, "":
		if tavilyKey == "" {
			return nil, fmt.Errorf("TAVILY_API_KEY is required for the tavily provider")
		}
		return NewTavily(tavilyKey, rps), nil
	case ProviderArxiv:
		return NewArxiv(rps), nil
	default:
		return nil, fmt.Errorf("unknown search provider %q", name)
	}
}

// newLimiter allows rps requests per second; zero or less means no limit.
func newLimiter(rps float64) *rate.Limiter {
	if rps <= 0 || math.IsInf(rps, 1) {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(rps), 1)
}
