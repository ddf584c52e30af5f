package view

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikeboe/deep-search/pkg/research"
)

func legacyPlan() *research.ResearchPlan {
	p := &research.ResearchPlan{ID: "plan-1"}
	for i := 1; i <= research.SearchCount; i++ {
		p.Searches = append(p.Searches, research.SearchSpec{Priority: i, Query: fmt.Sprintf("q%d", i)})
	}
	for i := 1; i <= research.AnalysisCount; i++ {
		p.Analyses = append(p.Analyses, research.AnalysisSpec{Type: fmt.Sprintf("a%d", i), Description: "d", Priority: 1})
	}
	return p
}

func TestReconstructUnavailable(t *testing.T) {
	empty := research.NewSnapshot("plan-1", t0)
	tests := []struct {
		name string
		rec  research.Record
	}{
		{name: "nothing stored", rec: research.Record{Status: research.PhasePlanning}},
		{name: "plan without searches", rec: research.Record{Status: research.PhaseSearching, Plan: legacyPlan(), PlanLinks: &empty}},
		{name: "unfinished legacy record", rec: research.Record{Status: research.PhaseAnalyzing, Plan: legacyPlan(), Progress: 70}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Reconstruct(tt.rec)
			assert.ErrorIs(t, err, research.ErrRecoveryUnavailable)
		})
	}
}

func TestReconstructUpgradesLegacyRecord(t *testing.T) {
	sources := []research.Source{{Title: "a", URL: "https://a.example"}, {Title: "b", URL: "https://b.example"}}
	rec := research.Record{
		ID:              "run",
		Topic:           "Fusion",
		Status:          research.PhaseComplete,
		Plan:            legacyPlan(),
		Content:         "# Fusion",
		CitationSources: sources,
		CreatedAt:       t0,
		UpdatedAt:       t0,
	}

	s, err := Reconstruct(rec)
	require.NoError(t, err)
	assert.Equal(t, 100, s.Progress)
	assert.Equal(t, research.PhaseComplete, s.Phase)
	assert.Equal(t, "# Fusion", s.ReportText)
	assert.Equal(t, sources, s.Sources)
	require.Len(t, s.Steps, research.TotalSteps)
	for i, u := range s.Steps {
		assert.Equal(t, i+1, u.Step)
		assert.Equal(t, research.StatusCompleted, u.Status)
		assert.Equal(t, t0, u.Timestamp)
	}
	assert.Equal(t, "Searching: q1", s.Steps[1].Title)
	assert.Equal(t, 0, *s.Steps[1].Data.ResultCount)
	assert.Equal(t, 2, *s.Steps[11].Data.SourceCount)
}

func TestReconstructReportStep(t *testing.T) {
	snap := research.NewSnapshot("plan-1", t0)
	for i := 1; i <= research.SearchCount; i++ {
		snap = snap.WithSearch(research.SearchLinkRecord{Query: fmt.Sprintf("q%d", i), Priority: i, Links: []research.LinkRecord{}, Status: research.StatusCompleted})
	}
	withAnalyses := func(failLast bool) research.ResearchSnapshot {
		s := snap
		for i := 0; i < research.AnalysisCount; i++ {
			status := research.StatusCompleted
			if failLast && i == research.AnalysisCount-1 {
				status = research.StatusError
			}
			s = s.WithAnalysis(research.AnalysisLinkRecord{Type: fmt.Sprintf("a%d", i+1), KeySources: []research.LinkRecord{}, Status: status})
		}
		return s.WithCompletionRate(95)
	}

	tests := []struct {
		name     string
		status   research.Phase
		snap     research.ResearchSnapshot
		wantStep bool
		want     research.StepStatus
	}{
		{name: "reporting", status: research.PhaseReporting, snap: withAnalyses(false), wantStep: true, want: research.StatusRunning},
		{name: "report failed", status: research.PhaseError, snap: withAnalyses(false), wantStep: true, want: research.StatusError},
		{name: "analysis failed", status: research.PhaseError, snap: withAnalyses(true)},
		{name: "search failed mid-run", status: research.PhaseError, snap: snap.WithCompletionRate(70)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Reconstruct(research.Record{Status: tt.status, Plan: legacyPlan(), PlanLinks: &tt.snap, Error: "boom"})
			require.NoError(t, err)
			last := s.Steps[len(s.Steps)-1]
			if !tt.wantStep {
				assert.NotEqual(t, research.ReportStep, last.Step)
				return
			}
			assert.Equal(t, research.ReportStep, last.Step)
			assert.Equal(t, tt.want, last.Status)
		})
	}
}

func TestReconstructFailedRunShowsComplete(t *testing.T) {
	snap := research.NewSnapshot("p", t0).
		WithSearch(research.SearchLinkRecord{Query: "q1", Priority: 1, Links: []research.LinkRecord{}, Status: research.StatusError}).
		WithCompletionRate(14)
	s, err := Reconstruct(research.Record{Status: research.PhaseError, PlanLinks: &snap, Error: "Search failed"})
	require.NoError(t, err)
	assert.Equal(t, research.PhaseComplete, s.Phase)
	assert.Equal(t, "Search failed", s.Error)
	assert.Equal(t, 14, s.Progress)
	require.Len(t, s.Steps, 1)
	assert.Equal(t, research.StatusError, s.Steps[0].Status)
	assert.Nil(t, s.Plan)
}
