package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/mikeboe/deep-search/pkg/research"
)

const tavilyURL = "https://api.tavily.com/search"

// Tavily is a research.SearchProvider backed by the Tavily search API.
type Tavily struct {
	APIKey   string
	Endpoint string
	Client   *http.Client
	Limiter  *rate.Limiter
}

func NewTavily(apiKey string, rps float64) *Tavily {
	return &Tavily{
		APIKey:   apiKey,
		Endpoint: tavilyURL,
		Client:   &http.Client{Timeout: 30 * time.Second},
		Limiter:  newLimiter(rps),
	}
}

type tavilyRequest struct {
	Query       string `json:"query"`
	SearchDepth string `json:"search_depth"`
	MaxResults  int    `json:"max_results"`
}

type tavilyResponse struct {
	Results []struct {
		Title   string  `json:"title"`
		URL     string  `json:"url"`
		Content string  `json:"content"`
		Score   float64 `json:"score"`
	} `json:"results"`
}

func (t *Tavily) Search(ctx context.Context, q research.SearchQuery) ([]research.SearchResult, error) {
	if err := t.Limiter.Wait(ctx); err != nil {
		return nil, err
	}

	depth := q.Depth
	if depth == "" {
		depth = research.DepthBasic
	}
	body, err := json.Marshal(tavilyRequest{Query: q.Query, SearchDepth: string(depth), MaxResults: q.MaxResults})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.APIKey)

	resp, err := t.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make API request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		slog.Error("Tavily returned non-200 status code", "status", resp.StatusCode, "body", string(bodyBytes))
		return nil, fmt.Errorf("API returned non-200 status code: %d", resp.StatusCode)
	}

	var parsed tavilyResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	results := make([]research.SearchResult, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		results = append(results, research.SearchResult{Title: r.Title, URL: r.URL, Content: r.Content, Score: r.Score})
	}
	return results, nil
}
