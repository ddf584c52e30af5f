package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"

	"github.com/mikeboe/deep-search/pkg/research"
)

// LangChain implements research.Model on any langchaingo model. The schema
// is rendered into the system prompt and the model runs in JSON mode.
type LangChain struct {
	LLM         llms.Model
	ObjectModel string
	TextModel   string
}

func NewLangChain(ctx context.Context, apiKey, objectModel, textModel string) (*LangChain, error) {
	// See https://ai.google.dev/gemini-api/docs/models/gemini for possible models
	llm, err := googleai.New(ctx, googleai.WithAPIKey(apiKey), googleai.WithDefaultModel(objectModel))
	if err != nil {
		return nil, fmt.Errorf("failed to create googleai client: %w", err)
	}
	return &LangChain{LLM: llm, ObjectModel: objectModel, TextModel: textModel}, nil
}

func (l *LangChain) GenerateObject(ctx context.Context, req research.ObjectRequest) (string, error) {
	system := req.System
	if req.Schema != nil {
		schema, err := json.MarshalIndent(req.Schema, "", "  ")
		if err != nil {
			return "", fmt.Errorf("failed to marshal %s schema: %w", req.Name, err)
		}
		system += "\n\n# Response Format:\nReturn a single JSON object matching this schema:\n" + string(schema)
	}

	resp, err := l.LLM.GenerateContent(ctx, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, system),
		llms.TextParts(llms.ChatMessageTypeHuman, req.Prompt),
	}, llms.WithJSONMode(), llms.WithModel(l.ObjectModel))
	if err != nil {
		return "", fmt.Errorf("llm generation failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("llm returned no choices")
	}
	return stripFence(resp.Choices[0].Content), nil
}

func (l *LangChain) StreamText(ctx context.Context, req research.TextRequest, onChunk func(chunk string) error) (string, error) {
	var sb strings.Builder
	resp, err := l.LLM.GenerateContent(ctx, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, req.System),
		llms.TextParts(llms.ChatMessageTypeHuman, req.Prompt),
	}, llms.WithModel(l.TextModel), llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
		if len(chunk) == 0 {
			return nil
		}
		sb.Write(chunk)
		return onChunk(string(chunk))
	}))
	if err != nil {
		return sb.String(), fmt.Errorf("llm generation failed: %w", err)
	}
	// Some backends ignore the streaming callback; deliver the whole text once.
	if sb.Len() == 0 && len(resp.Choices) > 0 && resp.Choices[0].Content != "" {
		text := resp.Choices[0].Content
		sb.WriteString(text)
		if err := onChunk(text); err != nil {
			return text, err
		}
	}
	return sb.String(), nil
}

// stripFence removes a markdown code fence some models wrap JSON in.
func stripFence(s string) string {
	t := strings.TrimSpace(s)
	if !strings.HasPrefix(t, "```") {
		return s
	}
	t = strings.TrimPrefix(t, "```json")
	t = strings.TrimPrefix(t, "```")
	t = strings.TrimSuffix(t, "```")
	return strings.TrimSpace(t)
}
