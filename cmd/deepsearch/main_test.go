package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikeboe/deep-search/pkg/config"
	"github.com/mikeboe/deep-search/pkg/research"
	"github.com/mikeboe/deep-search/pkg/store/memory"
	"github.com/mikeboe/deep-search/pkg/stream"
	"github.com/mikeboe/deep-search/pkg/view"
)

type cannedModel struct{}

func (cannedModel) GenerateObject(ctx context.Context, req research.ObjectRequest) (string, error) {
	if req.Name != "plan" {
		return `{"findings":[],"implications":[],"limitations":[],"key_sources":[]}`, nil
	}
	var p research.ResearchPlan
	for i := 1; i <= research.SearchCount; i++ {
		p.Searches = append(p.Searches, research.SearchSpec{Priority: i, Query: fmt.Sprintf("q%d", i)})
	}
	for i := 1; i <= research.AnalysisCount; i++ {
		p.Analyses = append(p.Analyses, research.AnalysisSpec{Type: fmt.Sprintf("a%d", i), Description: "d", Priority: 1})
	}
	data, err := json.Marshal(p)
	return string(data), err
}

func (cannedModel) StreamText(ctx context.Context, req research.TextRequest, onChunk func(string) error) (string, error) {
	if err := onChunk("# Canned report"); err != nil {
		return "", err
	}
	return "# Canned report", nil
}

type cannedSearch struct{}

func (cannedSearch) Search(ctx context.Context, q research.SearchQuery) ([]research.SearchResult, error) {
	return []research.SearchResult{{Title: q.Query, URL: "https://example.org/" + q.Query, Content: "c", Score: 0.5}}, nil
}

func testApp(store research.Store) *app {
	return &app{
		newModel: func(context.Context, *config.Config) (research.Model, error) { return cannedModel{}, nil },
		newSearch: func(*config.Config) (research.SearchProvider, error) {
			return cannedSearch{}, nil
		},
		openStore: func(context.Context, *config.Config, bool) (research.Store, func(), error) {
			return store, func() {}, nil
		},
	}
}

func execute(a *app, stdin string, args ...string) (string, error) {
	cmd := newRootCmd(a)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRunCommand(t *testing.T) {
	out, err := execute(testApp(memory.New()), "", "run", "--topic", "Coral reefs")
	require.NoError(t, err)
	assert.Contains(t, out, "step  1/12")
	assert.Contains(t, out, "step 12/12 completed")
	assert.Contains(t, out, "# Canned report")
	assert.Contains(t, out, "Run id: ")
}

func TestRunCommandReadsTopicInteractively(t *testing.T) {
	out, err := execute(testApp(memory.New()), "Coral reefs\n", "run", "--frames")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "Enter research topic: "))

	frames, err := stream.NewDecoder(strings.NewReader(strings.TrimPrefix(out, "Enter research topic: "))).ReadAll()
	require.NoError(t, err)
	state := view.Fold(frames)
	assert.Equal(t, research.PhaseComplete, state.Phase)
	assert.Equal(t, "# Canned report", state.ReportText)
}

func TestRunCommandRejectsEmptyTopic(t *testing.T) {
	_, err := execute(testApp(memory.New()), "\n", "run")
	assert.EqualError(t, err, "topic cannot be empty")
}

func TestViewCommand(t *testing.T) {
	store := memory.New()
	runID := uuid.NewString()
	engine := research.NewEngine(research.DefaultConfig(), cannedModel{}, cannedSearch{}, store)
	_, err := engine.Run(context.Background(), research.Request{RunID: runID, Topic: "Coral reefs", SessionID: uuid.NewString()}, nil)
	require.NoError(t, err)

	out, err := execute(testApp(store), "", "view", "--id", runID)
	require.NoError(t, err)
	var state view.State
	require.NoError(t, json.Unmarshal([]byte(out), &state))
	assert.Equal(t, research.PhaseComplete, state.Phase)
	assert.Equal(t, 100, state.Progress)
	assert.Len(t, state.Steps, research.TotalSteps)
	assert.Equal(t, "# Canned report", state.ReportText)
}

func TestViewCommandNothingToRecover(t *testing.T) {
	store := memory.New()
	runID := uuid.NewString()
	now := time.Now()
	require.NoError(t, store.CreateRun(context.Background(), research.Record{ID: runID, SessionID: uuid.NewString(), Topic: "x", CreatedAt: now, UpdatedAt: now}))

	out, err := execute(testApp(store), "", "view", "--id", runID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"recoverable":false}`, out)
}

func TestViewCommandErrors(t *testing.T) {
	_, err := execute(testApp(memory.New()), "", "view", "--id", uuid.NewString())
	assert.True(t, errors.Is(err, research.ErrRunNotFound))

	_, err = execute(testApp(memory.New()), "", "view")
	assert.Error(t, err)
}

func TestOpenStoreRequiresDatabaseForView(t *testing.T) {
	_, _, err := openStore(context.Background(), &config.Config{}, true)
	assert.Error(t, err)

	store, closeStore, err := openStore(context.Background(), &config.Config{}, false)
	require.NoError(t, err)
	defer closeStore()
	assert.IsType(t, &memory.MemoryStore{}, store)
}
