package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikeboe/deep-search/pkg/research"
)

func record(id, session string, created time.Time) research.Record {
	return research.Record{ID: id, SessionID: session, Topic: "topic " + id, CreatedAt: created, UpdatedAt: created}
}

func TestRunLifecycle(t *testing.T) {
	ctx := context.Background()
	store := New()
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	store.now = func() time.Time { return fixed }

	require.NoError(t, store.CreateRun(ctx, record("r1", "s1", fixed.Add(-time.Hour))))

	got, err := store.GetRun(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, research.PhasePlanning, got.Status)

	plan := research.ResearchPlan{ID: "p", Searches: []research.SearchSpec{{Priority: 1, Query: "q"}}}
	snap := research.NewSnapshot("p", fixed)
	require.NoError(t, store.SavePlan(ctx, "r1", plan, snap, 5))

	snap = snap.WithSearch(research.SearchLinkRecord{Query: "q", Priority: 1, Links: []research.LinkRecord{{URL: "https://a.example"}}, Status: research.StatusCompleted})
	require.NoError(t, store.SaveSnapshot(ctx, "r1", snap, research.PhaseSearching, 14))

	got, err = store.GetRun(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, research.PhaseSearching, got.Status)
	assert.Equal(t, 14, got.Progress)
	assert.Equal(t, 1, got.PlanLinks.TotalLinks)
	assert.Equal(t, "p", got.Plan.ID)
	assert.Equal(t, fixed, got.UpdatedAt)

	sources := []research.Source{{Title: "a", URL: "https://a.example"}}
	require.NoError(t, store.CompleteRun(ctx, "r1", snap.WithCompletionRate(100), "report", sources))
	got, err = store.GetRun(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, research.PhaseComplete, got.Status)
	assert.Equal(t, 100, got.Progress)
	assert.Equal(t, "report", got.Content)
	assert.Equal(t, sources, got.CitationSources)

	require.NoError(t, store.FailRun(ctx, "r1", "late failure"))
	got, err = store.GetRun(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, research.PhaseError, got.Status)
	assert.Equal(t, "late failure", got.Error)
}

func TestUnknownRun(t *testing.T) {
	ctx := context.Background()
	store := New()

	_, err := store.GetRun(ctx, "missing")
	assert.ErrorIs(t, err, research.ErrRunNotFound)
	assert.ErrorIs(t, store.FailRun(ctx, "missing", "x"), research.ErrRunNotFound)
	assert.ErrorIs(t, store.SaveSnapshot(ctx, "missing", research.ResearchSnapshot{}, research.PhaseSearching, 0), research.ErrRunNotFound)
}

func TestCreateRunRejectsDuplicate(t *testing.T) {
	ctx := context.Background()
	store := New()
	require.NoError(t, store.CreateRun(ctx, record("r1", "s1", time.Now())))
	assert.Error(t, store.CreateRun(ctx, record("r1", "s1", time.Now())))
}

func TestRecordsAreCopied(t *testing.T) {
	ctx := context.Background()
	store := New()
	require.NoError(t, store.CreateRun(ctx, record("r1", "s1", time.Now())))

	snap := research.NewSnapshot("p", time.Now()).WithSearch(research.SearchLinkRecord{Query: "q", Links: []research.LinkRecord{{URL: "u"}}})
	require.NoError(t, store.SaveSnapshot(ctx, "r1", snap, research.PhaseSearching, 14))
	snap.Searches[0].Query = "mutated by caller"

	first, err := store.GetRun(ctx, "r1")
	require.NoError(t, err)
	first.PlanLinks.Searches[0].Links[0].URL = "mutated by reader"

	second, err := store.GetRun(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "q", second.PlanLinks.Searches[0].Query)
	assert.Equal(t, "u", second.PlanLinks.Searches[0].Links[0].URL)
}

func TestListRuns(t *testing.T) {
	ctx := context.Background()
	store := New()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.CreateRun(ctx, record("old", "s1", base)))
	require.NoError(t, store.CreateRun(ctx, record("new", "s1", base.Add(time.Minute))))
	require.NoError(t, store.CreateRun(ctx, record("other", "s2", base.Add(2*time.Minute))))

	runs, err := store.ListRuns(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "new", runs[0].ID)
	assert.Equal(t, "old", runs[1].ID)

	all, err := store.ListRuns(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	none, err := store.ListRuns(ctx, "s3")
	require.NoError(t, err)
	assert.Empty(t, none)
}
