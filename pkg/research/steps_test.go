package research

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResultCount(t *testing.T) {
	tests := []struct {
		priority int
		want     int
	}{
		{1, 10},
		{2, 8},
		{3, 6},
		{4, 4},
		{5, 3},
		{0, 10},
		{9, 3},
	}
	for _, tt := range tests {
		if got := ResultCount(tt.priority, 3, 10); got != tt.want {
			t.Errorf("ResultCount(%d) = %d, want %d", tt.priority, got, tt.want)
		}
	}
}

func TestProgressMilestones(t *testing.T) {
	var search, analysis []int
	for n := 1; n <= SearchCount; n++ {
		search = append(search, SearchProgress(n))
	}
	for n := 1; n <= AnalysisCount; n++ {
		analysis = append(analysis, AnalysisProgress(n))
	}
	assert.Equal(t, []int{14, 28, 42, 56, 70}, search)
	assert.Equal(t, []int{75, 80, 85, 90, 95}, analysis)
	assert.Less(t, PlanningProgress, search[0])
}

func TestStepNumbering(t *testing.T) {
	assert.Equal(t, 2, SearchStep(0))
	assert.Equal(t, 6, SearchStep(SearchCount-1))
	assert.Equal(t, 7, AnalysisStep(0))
	assert.Equal(t, 11, AnalysisStep(AnalysisCount-1))
	assert.Equal(t, TotalSteps, ReportStep)

	tests := []struct {
		step int
		want Phase
	}{
		{1, PhasePlanning},
		{2, PhaseSearching},
		{6, PhaseSearching},
		{7, PhaseAnalyzing},
		{11, PhaseAnalyzing},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, PhaseForStep(tt.step), "step %d", tt.step)
	}
}

func TestStepUpdates(t *testing.T) {
	plan := ResearchPlan{Searches: make([]SearchSpec, 5), Analyses: make([]AnalysisSpec, 5)}

	running := PlanningStepUpdate("Qubits", &plan, StatusRunning)
	assert.Nil(t, running.Data)
	done := PlanningStepUpdate("Qubits", &plan, StatusCompleted)
	assert.Equal(t, 5, *done.Data.SearchCount)
	assert.Equal(t, 5, *done.Data.AnalysisCount)
	assert.Equal(t, `Creating a research plan for "Qubits"`, done.Description)

	s := SearchStepUpdate(1, SearchSpec{Priority: 2, Query: "error correction"}, StatusRunning)
	assert.Equal(t, 3, s.Step)
	assert.Equal(t, "Searching: error correction", s.Title)

	r := ReportStepUpdate(StatusCompleted, 7)
	assert.Equal(t, 7, *r.Data.SourceCount)
	assert.Nil(t, ReportStepUpdate(StatusRunning, 0).Data)
}

func TestStepDataKeepsTopSources(t *testing.T) {
	rec := SearchLinkRecord{Query: "q", ResultCount: 7}
	for i := 0; i < 7; i++ {
		rec.Links = append(rec.Links, LinkRecord{Title: "t", URL: "u", Relevance: float64(i)})
	}
	data := SearchStepData(rec)
	assert.Len(t, data.Sources, TopSearchSources)
	assert.Equal(t, 7, *data.ResultCount)

	ad := AnalysisStepData(AnalysisLinkRecord{Type: "trends", FindingsCount: 2, KeySources: rec.Links[:2]})
	assert.Len(t, ad.KeySources, 2)
	assert.Equal(t, "trends", ad.AnalysisType)
}

func TestPlanValidate(t *testing.T) {
	valid := func() ResearchPlan {
		p := ResearchPlan{}
		for i := 1; i <= 5; i++ {
			p.Searches = append(p.Searches, SearchSpec{Priority: i, Query: "q"})
			p.Analyses = append(p.Analyses, AnalysisSpec{Type: "t", Description: "d", Priority: i})
		}
		return p
	}

	tests := []struct {
		name   string
		mutate func(p *ResearchPlan)
		ok     bool
	}{
		{"valid", func(p *ResearchPlan) {}, true},
		{"four searches", func(p *ResearchPlan) { p.Searches = p.Searches[:4] }, false},
		{"six analyses", func(p *ResearchPlan) { p.Analyses = append(p.Analyses, p.Analyses[0]) }, false},
		{"empty query", func(p *ResearchPlan) { p.Searches[2].Query = " " }, false},
		{"priority zero", func(p *ResearchPlan) { p.Searches[0].Priority = 0 }, false},
		{"priority six", func(p *ResearchPlan) { p.Analyses[0].Priority = 6 }, false},
		{"empty type", func(p *ResearchPlan) { p.Analyses[4].Type = "" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid()
			tt.mutate(&p)
			err := p.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
