package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/adk/agent"
	"google.golang.org/adk/agent/llmagent"
	"google.golang.org/adk/model"
	"google.golang.org/adk/model/gemini"
	"google.golang.org/adk/runner"
	"google.golang.org/adk/session"
	"google.golang.org/adk/tool"
	"google.golang.org/genai"

	"github.com/mikeboe/deep-search/pkg/config"
	"github.com/mikeboe/deep-search/pkg/database"
)

const (
	appName   = "deep-search"
	agentName = "deep_search_chat"
	userID    = "user"
)

type Service struct {
	config *config.Config
	DB     *database.PostgresDB
	Client *genai.Client
	Agent  agent.Agent
}

type Conversation struct {
	ID        uuid.UUID `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message is one turn of a conversation. Deep search runs are model messages
// with a research status.
type Message struct {
	ID             uuid.UUID `json:"id"`
	ConversationID uuid.UUID `json:"conversation_id"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	ResearchStatus string    `json:"research_status,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// StreamEvent represents a single event in the chat stream
type StreamEvent struct {
	Type    string      `json:"type"` // "content", "tool_call", "tool_result", "error", "done"
	Payload interface{} `json:"payload"`
}

func NewService(ctx context.Context, db *database.PostgresDB, cfg *config.Config, tools *SearchToolset) (*Service, error) {
	clientCfg := &genai.ClientConfig{APIKey: cfg.GoogleApiKey, Backend: genai.BackendGeminiAPI}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	modelClient, err := gemini.NewModel(ctx, cfg.ChatModel, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create model: %w", err)
	}

	chatAgent, err := llmagent.New(llmagent.Config{
		Name:        agentName,
		Model:       modelClient,
		Description: "A research assistant that answers follow-up questions about deep search reports.",
		Instruction: "You are a helpful research assistant. Earlier model turns may be full research reports with numbered citations; answer follow-up questions from them first. Use the web_search tool when the conversation does not already contain the answer, and cite every source you use as [n] with its URL.",
		Toolsets:    []tool.Toolset{tools},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create agent: %w", err)
	}

	return &Service{
		config: cfg,
		DB:     db,
		Client: client,
		Agent:  chatAgent,
	}, nil
}

func (s *Service) CreateConversation(ctx context.Context) (*Conversation, error) {
	query := `INSERT INTO conversations (id) VALUES ($1) RETURNING id, title, created_at, updated_at`

	conv := &Conversation{}
	err := s.DB.Pool.QueryRow(ctx, query, uuid.New()).Scan(&conv.ID, &conv.Title, &conv.CreatedAt, &conv.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	return conv, nil
}

func (s *Service) ListConversations(ctx context.Context) ([]Conversation, error) {
	rows, err := s.DB.Pool.Query(ctx, `SELECT id, title, created_at, updated_at FROM conversations ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	convs := []Conversation{}
	for rows.Next() {
		var c Conversation
		if err := rows.Scan(&c.ID, &c.Title, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		convs = append(convs, c)
	}
	return convs, rows.Err()
}

func (s *Service) GetHistory(ctx context.Context, conversationID uuid.UUID) ([]Message, error) {
	query := `
		SELECT id, conversation_id, role, content, COALESCE(research_status, ''), created_at
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at ASC
	`
	rows, err := s.DB.Pool.Query(ctx, query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get history: %w", err)
	}
	defer rows.Close()

	msgs := []Message{}
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.ResearchStatus, &m.CreatedAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func (s *Service) SendMessage(ctx context.Context, conversationID uuid.UUID, content string) (iter.Seq2[StreamEvent, error], error) {
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("message content is required")
	}

	userMsgID := uuid.New()
	_, err := s.DB.Pool.Exec(ctx,
		`INSERT INTO messages (id, conversation_id, role, content) VALUES ($1, $2, 'user', $3)`,
		userMsgID, conversationID, content)
	if err != nil {
		return nil, fmt.Errorf("failed to save user message: %w", err)
	}

	history, err := s.GetHistory(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch history: %w", err)
	}

	sessionSvc, err := hydrateSession(ctx, conversationID.String(), history, userMsgID)
	if err != nil {
		return nil, err
	}

	r, err := runner.New(runner.Config{
		AppName:        appName,
		Agent:          s.Agent,
		SessionService: sessionSvc,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create runner: %w", err)
	}

	userContent := &genai.Content{
		Role:  "user",
		Parts: []*genai.Part{{Text: content}},
	}

	return func(yield func(StreamEvent, error) bool) {
		slog.Info("Starting agent run", "conversation_id", conversationID)

		next := r.Run(ctx, userID, conversationID.String(), userContent, agent.RunConfig{
			StreamingMode: agent.StreamingModeSSE,
		})

		var answer strings.Builder
		for event, err := range next {
			if err != nil {
				slog.Error("Agent runner error", "error", err)
				yield(StreamEvent{Type: "error", Payload: err.Error()}, err)
				return
			}
			if !forwardEvent(event, &answer, yield) {
				return
			}
		}

		slog.Info("Agent run completed", "conversation_id", conversationID)
		s.saveAnswer(ctx, conversationID, answer.String())

		yield(StreamEvent{Type: "done", Payload: "done"}, nil)

		if len(history) <= 2 {
			go s.generateTitle(conversationID, content, answer.String())
		}
	}, nil
}

// hydrateSession loads stored turns into a fresh in-memory ADK session.
// The current user message is skipped since the runner appends it.
func hydrateSession(ctx context.Context, sessionID string, history []Message, skip uuid.UUID) (session.Service, error) {
	sessionSvc := session.InMemoryService()
	created, err := sessionSvc.Create(ctx, &session.CreateRequest{
		AppName:   appName,
		UserID:    userID,
		SessionID: sessionID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	for _, msg := range history {
		if msg.ID == skip || msg.Content == "" {
			continue
		}
		role, author := "user", "user"
		if msg.Role == "model" {
			role, author = "model", agentName
		}

		evt := session.NewEvent(uuid.NewString())
		evt.Author = author
		evt.LLMResponse = model.LLMResponse{
			Content: &genai.Content{
				Role:  role,
				Parts: []*genai.Part{{Text: msg.Content}},
			},
		}
		if err := sessionSvc.AppendEvent(ctx, created.Session, evt); err != nil {
			return nil, fmt.Errorf("failed to append history: %w", err)
		}
	}
	return sessionSvc, nil
}

// forwardEvent yields the parts of one agent event and collects its text.
// It reports false when the consumer stopped reading.
func forwardEvent(event *session.Event, answer *strings.Builder, yield func(StreamEvent, error) bool) bool {
	if event == nil || event.LLMResponse.Content == nil {
		return true
	}
	for _, part := range event.LLMResponse.Content.Parts {
		switch {
		case part.Text != "":
			answer.WriteString(part.Text)
			if !yield(StreamEvent{Type: "content", Payload: part.Text}, nil) {
				return false
			}
		case part.FunctionCall != nil:
			slog.Info("Agent tool call", "tool", part.FunctionCall.Name)
			if !yield(StreamEvent{Type: "tool_call", Payload: part.FunctionCall}, nil) {
				return false
			}
		case part.FunctionResponse != nil:
			slog.Info("Agent tool result", "tool", part.FunctionResponse.Name)
			if !yield(StreamEvent{Type: "tool_result", Payload: part.FunctionResponse}, nil) {
				return false
			}
		}
	}
	return true
}

func (s *Service) saveAnswer(ctx context.Context, conversationID uuid.UUID, answer string) {
	_, err := s.DB.Pool.Exec(ctx,
		`INSERT INTO messages (id, conversation_id, role, content) VALUES ($1, $2, 'model', $3)`,
		uuid.New(), conversationID, answer)
	if err != nil {
		slog.Error("Failed to save model message", "error", err)
		return
	}
	_, _ = s.DB.Pool.Exec(ctx, `UPDATE conversations SET updated_at = NOW() WHERE id = $1`, conversationID)
}

func (s *Service) generateTitle(convID uuid.UUID, userMsg, modelMsg string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	prompt := fmt.Sprintf("Generate a short, concise title (max 5 words) for this chat conversation:\nUser: %s\nModel: %s", userMsg, modelMsg)

	resp, err := s.Client.Models.GenerateContent(ctx, s.config.FastModel, []*genai.Content{
		{Role: "user", Parts: []*genai.Part{{Text: prompt}}},
	}, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema: &genai.Schema{
			Type:       genai.TypeObject,
			Properties: map[string]*genai.Schema{"title": {Type: genai.TypeString}},
			Required:   []string{"title"},
		},
	})
	if err != nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		slog.Warn("Title generation failed", "conversation_id", convID, "error", err)
		return
	}

	var rawJSON strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		rawJSON.WriteString(p.Text)
	}
	var respData struct {
		Title string `json:"title"`
	}
	if err := json.Unmarshal([]byte(rawJSON.String()), &respData); err != nil {
		slog.Error("Failed to unmarshal title generation response", "error", err, "raw_json", rawJSON.String())
		return
	}
	if respData.Title == "" {
		return
	}
	if _, err := s.DB.Pool.Exec(ctx, `UPDATE conversations SET title = $2 WHERE id = $1`, convID, respData.Title); err != nil {
		slog.Error("Failed to update conversation title", "error", err)
	}
}
