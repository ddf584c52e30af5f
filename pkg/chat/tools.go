package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/adk/agent"
	"google.golang.org/adk/tool"
	"google.golang.org/adk/tool/functiontool"

	"github.com/mikeboe/deep-search/pkg/research"
)

// SearchToolset exposes the web search provider to the chat agent and to
// MCP clients.
type SearchToolset struct {
	Search research.SearchProvider
}

func NewSearchToolset(search research.SearchProvider) *SearchToolset {
	return &SearchToolset{Search: search}
}

func (t *SearchToolset) Name() string {
	return "search_tools"
}

func (t *SearchToolset) Tools(ctx agent.ReadonlyContext) ([]tool.Tool, error) {
	searchTool, err := functiontool.New[WebSearchArgs, WebSearchResp](
		functiontool.Config{
			Name:        "web_search",
			Description: "Search the web and return titled, cited snippets.",
		},
		t.webSearchTool,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create web_search tool: %w", err)
	}
	return []tool.Tool{searchTool}, nil
}

type WebSearchArgs struct {
	Query      string `json:"query" jsonschema:"The search query"`
	MaxResults int    `json:"maxResults,omitempty" jsonschema:"Number of results to return (default 5)"`
	Depth      string `json:"depth,omitempty" jsonschema:"Search depth: basic or advanced"`
}

type WebSearchResp struct {
	Results string `json:"results"`
}

func (t *SearchToolset) webSearchTool(ctx tool.Context, args WebSearchArgs) (WebSearchResp, error) {
	return t.WebSearch(ctx, args)
}

func (t *SearchToolset) WebSearch(ctx context.Context, args WebSearchArgs) (WebSearchResp, error) {
	if strings.TrimSpace(args.Query) == "" {
		return WebSearchResp{}, fmt.Errorf("query is required")
	}
	if args.MaxResults <= 0 {
		args.MaxResults = 5
	}
	depth := research.Depth(args.Depth)
	if depth != research.DepthAdvanced {
		depth = research.DepthBasic
	}

	slog.Info("Web search", "query", args.Query, "maxResults", args.MaxResults, "depth", depth)

	results, err := t.Search.Search(ctx, research.SearchQuery{Query: args.Query, MaxResults: args.MaxResults, Depth: depth})
	if err != nil {
		return WebSearchResp{}, fmt.Errorf("failed to search: %w", err)
	}
	if len(results) == 0 {
		return WebSearchResp{Results: "No results found for query: " + args.Query}, nil
	}

	formatted := make([]string, 0, len(results))
	for i, r := range results {
		var sb strings.Builder
		fmt.Fprintf(&sb, "[%d] %s\n[Source]: %s\n[Content]: %s", i+1, r.Title, r.URL, r.Content)
		formatted = append(formatted, sb.String())
	}
	return WebSearchResp{Results: strings.Join(formatted, "\n\n")}, nil
}
