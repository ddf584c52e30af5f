package database

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testcontainers "github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/mikeboe/deep-search/pkg/research"
)

var testDB *PostgresDB

func TestMain(m *testing.M) {
	ctx := context.Background()
	container, err := tcpostgres.Run(
		ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("deepsearch"),
		tcpostgres.WithUsername("deepsearch"),
		tcpostgres.WithPassword("deepsearch"),
		testcontainers.WithWaitStrategy(wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		// No Docker: the store tests skip, everything else still runs.
		fmt.Fprintln(os.Stderr, "start postgres container:", err)
		os.Exit(m.Run())
	}
	code := run(ctx, m, container)
	_ = container.Terminate(ctx)
	os.Exit(code)
}

func run(ctx context.Context, m *testing.M, container *tcpostgres.PostgresContainer) int {
	conn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		fmt.Fprintln(os.Stderr, "connection string:", err)
		return 1
	}
	db, err := NewPostgresDB(ctx, conn, 4)
	if err != nil {
		fmt.Fprintln(os.Stderr, "connect:", err)
		return 1
	}
	defer db.Close()
	if err := db.InitSchema(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "init schema:", err)
		return 1
	}
	// A second pass must be a no-op.
	if err := db.InitSchema(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "re-init schema:", err)
		return 1
	}
	testDB = db
	return m.Run()
}

func requireDB(t *testing.T) *PostgresDB {
	t.Helper()
	if testDB == nil {
		t.Skip("postgres container unavailable")
	}
	return testDB
}

func newRecord(sessionID string, created time.Time) research.Record {
	return research.Record{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Topic:     "Solid state batteries",
		Depth:     research.DepthAdvanced,
		Status:    research.PhasePlanning,
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func TestRunStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewRunStore(requireDB(t))
	rec := newRecord(uuid.NewString(), time.Now().UTC())

	require.NoError(t, store.CreateRun(ctx, rec))

	got, err := store.GetRun(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.SessionID, got.SessionID)
	assert.Equal(t, research.DepthAdvanced, got.Depth)
	assert.Equal(t, research.PhasePlanning, got.Status)
	assert.Nil(t, got.Plan)
	assert.Nil(t, got.PlanLinks)

	plan := research.ResearchPlan{
		ID:       "plan-1",
		Searches: []research.SearchSpec{{Priority: 1, Query: "electrolytes"}},
		Analyses: []research.AnalysisSpec{{Type: "trends", Description: "d", Priority: 1}},
	}
	snap := research.NewSnapshot(plan.ID, time.Now().UTC()).WithCompletionRate(5)
	require.NoError(t, store.SavePlan(ctx, rec.ID, plan, snap, 5))

	snap = snap.WithSearch(research.SearchLinkRecord{
		Query:       "electrolytes",
		Priority:    1,
		Links:       []research.LinkRecord{{Title: "a", URL: "https://a.example/x", Relevance: 0.7, Domain: "a.example"}},
		ResultCount: 1,
		Status:      research.StatusCompleted,
	}).WithCompletionRate(14)
	require.NoError(t, store.SaveSnapshot(ctx, rec.ID, snap, research.PhaseSearching, 14))

	got, err = store.GetRun(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, research.PhaseSearching, got.Status)
	assert.Equal(t, 14, got.Progress)
	require.NotNil(t, got.Plan)
	assert.Equal(t, plan.Searches, got.Plan.Searches)
	require.NotNil(t, got.PlanLinks)
	assert.Equal(t, 1, got.PlanLinks.TotalLinks)
	assert.Equal(t, []string{"a.example"}, got.PlanLinks.UniqueDomains)

	sources := []research.Source{{Title: "a", URL: "https://a.example/x"}}
	require.NoError(t, store.CompleteRun(ctx, rec.ID, snap.WithCompletionRate(100), "# Report", sources))
	got, err = store.GetRun(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, research.PhaseComplete, got.Status)
	assert.Equal(t, 100, got.Progress)
	assert.Equal(t, "# Report", got.Content)
	assert.Equal(t, sources, got.CitationSources)
	assert.Equal(t, 100, got.PlanLinks.CompletionRate)
}

func TestRunStoreFailRun(t *testing.T) {
	ctx := context.Background()
	store := NewRunStore(requireDB(t))
	rec := newRecord(uuid.NewString(), time.Now().UTC())
	require.NoError(t, store.CreateRun(ctx, rec))

	require.NoError(t, store.FailRun(ctx, rec.ID, "Planning failed"))
	got, err := store.GetRun(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, research.PhaseError, got.Status)
	assert.Equal(t, "Planning failed", got.Error)
}

func TestRunStoreNotFound(t *testing.T) {
	ctx := context.Background()
	store := NewRunStore(requireDB(t))

	_, err := store.GetRun(ctx, uuid.NewString())
	assert.ErrorIs(t, err, research.ErrRunNotFound)
	_, err = store.GetRun(ctx, "not-a-uuid")
	assert.ErrorIs(t, err, research.ErrRunNotFound)
	assert.ErrorIs(t, store.FailRun(ctx, uuid.NewString(), "x"), research.ErrRunNotFound)
	assert.Error(t, store.CreateRun(ctx, research.Record{ID: "bad", SessionID: uuid.NewString()}))
}

func TestRunStoreListRuns(t *testing.T) {
	ctx := context.Background()
	store := NewRunStore(requireDB(t))
	session := uuid.NewString()
	base := time.Now().UTC().Truncate(time.Second)

	older := newRecord(session, base.Add(-time.Minute))
	newer := newRecord(session, base)
	require.NoError(t, store.CreateRun(ctx, older))
	require.NoError(t, store.CreateRun(ctx, newer))
	require.NoError(t, store.CreateRun(ctx, newRecord(uuid.NewString(), base)))

	// Plain chat messages of the same conversation are not runs.
	_, err := store.DB.Pool.Exec(ctx, `INSERT INTO messages (conversation_id, role, content) VALUES ($1, 'user', 'hi')`, session)
	require.NoError(t, err)

	runs, err := store.ListRuns(ctx, session)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, newer.ID, runs[0].ID)
	assert.Equal(t, older.ID, runs[1].ID)

	_, err = store.ListRuns(ctx, "nope")
	assert.Error(t, err)
}

func TestLogStore(t *testing.T) {
	ctx := context.Background()
	db := requireDB(t)
	runs := NewRunStore(db)
	logs := NewLogStore(db)

	rec := newRecord(uuid.NewString(), time.Now().UTC())
	require.NoError(t, runs.CreateRun(ctx, rec))
	runID := uuid.MustParse(rec.ID)

	meta, err := json.Marshal(map[string]string{"phase": "planning"})
	require.NoError(t, err)
	now := time.Now().UTC()
	require.NoError(t, logs.InsertLog(ctx, runID, now, "INFO", "Starting planning phase", meta))
	require.NoError(t, logs.InsertLog(ctx, runID, now.Add(time.Second), "ERROR", "Search failed", nil))

	entries, err := logs.GetRunLogs(ctx, runID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "Starting planning phase", entries[0].Message)
	assert.JSONEq(t, `{"phase":"planning"}`, string(entries[0].Metadata))
	assert.Equal(t, "ERROR", entries[1].Level)
	assert.JSONEq(t, `{}`, string(entries[1].Metadata))

	empty, err := logs.GetRunLogs(ctx, uuid.New())
	require.NoError(t, err)
	assert.Empty(t, empty)
}
