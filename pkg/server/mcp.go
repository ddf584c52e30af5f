package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/mikeboe/deep-search/pkg/chat"
	"github.com/mikeboe/deep-search/pkg/research"
)

type ResearchViewArgs struct {
	ID string `json:"id" jsonschema:"The run (message) id"`
}

// NewMCPServer exposes web search and stored run views as MCP tools.
// web_search is only registered when a toolset is configured.
func NewMCPServer(svc *Service, tools *chat.SearchToolset) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: "deep-search-mcp", Version: "1.0.0"}, nil)
	if tools != nil {
		mcp.AddTool(server, &mcp.Tool{
			Name:        "web_search",
			Description: "Search the web and return titled, cited snippets.",
		}, webSearchTool(tools))
	}
	mcp.AddTool(server, &mcp.Tool{
		Name:        "research_view",
		Description: "Return the progress view of a deep search run reconstructed from its stored record.",
	}, researchViewTool(svc))
	return server
}

// newMCPHandler serves the streamable HTTP transport. Every call is
// independent, so no sessions are kept between requests.
func newMCPHandler(server *mcp.Server) http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return server
	}, &mcp.StreamableHTTPOptions{Stateless: true})
}

func webSearchTool(tools *chat.SearchToolset) mcp.ToolHandlerFor[chat.WebSearchArgs, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, args chat.WebSearchArgs) (*mcp.CallToolResult, any, error) {
		resp, err := tools.WebSearch(ctx, args)
		if err != nil {
			return errorResult(err), nil, nil
		}
		return textResult(resp.Results), nil, nil
	}
}

func researchViewTool(svc *Service) mcp.ToolHandlerFor[ResearchViewArgs, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, args ResearchViewArgs) (*mcp.CallToolResult, any, error) {
		if args.ID == "" {
			return errorResult(fmt.Errorf("%w: id is required", research.ErrInvalidRequest)), nil, nil
		}
		state, err := svc.View(ctx, args.ID)
		body := viewResponse{Recoverable: true, State: &state}
		switch {
		case errors.Is(err, research.ErrRecoveryUnavailable):
			body = viewResponse{Recoverable: false}
		case err != nil:
			return errorResult(err), nil, nil
		}
		data, err := json.Marshal(body)
		if err != nil {
			return errorResult(fmt.Errorf("failed to marshal view: %w", err)), nil, nil
		}
		return textResult(string(data)), nil, nil
	}
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: text}}}
}

// errorResult reports a tool failure to the caller as tool output, leaving
// protocol errors for malformed calls.
func errorResult(err error) *mcp.CallToolResult {
	res := textResult(err.Error())
	res.IsError = true
	return res
}
