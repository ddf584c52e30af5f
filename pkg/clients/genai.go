package clients

import (
	"context"
	"fmt"
	"iter"
	"strings"

	"google.golang.org/genai"

	"github.com/mikeboe/deep-search/pkg/research"
)

// contentGenerator is the part of *genai.Models the adapter uses.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	GenerateContentStream(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error]
}

// GenAI implements research.Model on the Gemini API. Structured output uses
// the native response schema; report text is streamed.
type GenAI struct {
	models      contentGenerator
	ObjectModel string
	TextModel   string
}

func NewGenAI(ctx context.Context, apiKey, objectModel, textModel string) (*GenAI, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GenAI{models: client.Models, ObjectModel: objectModel, TextModel: textModel}, nil
}

func (g *GenAI) GenerateObject(ctx context.Context, req research.ObjectRequest) (string, error) {
	resp, err := g.models.GenerateContent(ctx, g.ObjectModel, userContent(req.Prompt), &genai.GenerateContentConfig{
		SystemInstruction: systemContent(req.System),
		ResponseMIMEType:  "application/json",
		ResponseSchema:    req.Schema,
	})
	if err != nil {
		return "", fmt.Errorf("generate %s: %w", req.Name, err)
	}
	text := responseText(resp)
	if text == "" {
		return "", fmt.Errorf("generate %s: model returned no content", req.Name)
	}
	return text, nil
}

func (g *GenAI) StreamText(ctx context.Context, req research.TextRequest, onChunk func(chunk string) error) (string, error) {
	var sb strings.Builder
	stream := g.models.GenerateContentStream(ctx, g.TextModel, userContent(req.Prompt), &genai.GenerateContentConfig{
		SystemInstruction: systemContent(req.System),
	})
	for resp, err := range stream {
		if err != nil {
			return sb.String(), fmt.Errorf("stream report: %w", err)
		}
		chunk := responseText(resp)
		if chunk == "" {
			continue
		}
		sb.WriteString(chunk)
		if err := onChunk(chunk); err != nil {
			return sb.String(), err
		}
	}
	return sb.String(), nil
}

func userContent(prompt string) []*genai.Content {
	return []*genai.Content{{Role: "user", Parts: []*genai.Part{{Text: prompt}}}}
}

func systemContent(system string) *genai.Content {
	if system == "" {
		return nil
	}
	return &genai.Content{Parts: []*genai.Part{{Text: system}}}
}

// responseText joins the text parts of the first candidate.
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if p != nil && !p.Thought {
			sb.WriteString(p.Text)
		}
	}
	return sb.String()
}
