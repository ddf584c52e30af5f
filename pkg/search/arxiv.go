package search

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/mikeboe/deep-search/pkg/research"
)

const arxivURL = "https://export.arxiv.org/api/query"

type arxivEntry struct {
	ID        string      `xml:"id"`
	Title     string      `xml:"title"`
	Summary   string      `xml:"summary"`
	Published string      `xml:"published"`
	Link      []arxivLink `xml:"link"`
}

type arxivLink struct {
	Href string `xml:"href,attr"`
	Type string `xml:"type,attr"`
	Rel  string `xml:"rel,attr"`
}

type arxivFeed struct {
	XMLName xml.Name     `xml:"feed"`
	Entry   []arxivEntry `xml:"entry"`
}

// Arxiv searches arXiv paper abstracts. Results carry a rank-based score
// since the API does not return one.
type Arxiv struct {
	Endpoint string
	Client   *http.Client
	Limiter  *rate.Limiter
}

func NewArxiv(rps float64) *Arxiv {
	return &Arxiv{
		Endpoint: arxivURL,
		Client:   &http.Client{Timeout: 30 * time.Second},
		Limiter:  newLimiter(rps),
	}
}

func (a *Arxiv) Search(ctx context.Context, q research.SearchQuery) ([]research.SearchResult, error) {
	maxResults := q.MaxResults
	if maxResults <= 0 {
		maxResults = 5
	}
	if err := a.Limiter.Wait(ctx); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Add("search_query", "all:"+q.Query)
	params.Add("max_results", strconv.Itoa(maxResults))
	params.Add("start", "0")
	apiURL := a.Endpoint + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	resp, err := a.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make API request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		slog.Error("arXiv returned non-200 status code", "status", resp.StatusCode, "body", string(bodyBytes))
		return nil, fmt.Errorf("API returned non-200 status code: %d", resp.StatusCode)
	}

	var feed arxivFeed
	if err := xml.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, fmt.Errorf("failed to unmarshal XML: %w", err)
	}

	results := make([]research.SearchResult, 0, len(feed.Entry))
	for i, entry := range feed.Entry {
		results = append(results, research.SearchResult{
			Title:   collapse(entry.Title),
			URL:     entryURL(entry),
			Content: collapse(entry.Summary),
			Score:   1 - float64(i)/float64(len(feed.Entry)+1),
		})
	}
	return results, nil
}

// entryURL prefers the abstract page over the PDF link.
func entryURL(e arxivEntry) string {
	var pdf string
	for _, link := range e.Link {
		if link.Rel == "alternate" && link.Href != "" {
			return link.Href
		}
		if link.Type == "application/pdf" {
			pdf = link.Href
		}
	}
	if pdf != "" {
		return pdf
	}
	return strings.TrimSpace(e.ID)
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
