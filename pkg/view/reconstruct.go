package view

import (
	"github.com/mikeboe/deep-search/pkg/research"
)

// Reconstruct rebuilds the view of a run from its stored record alone. The
// result matches what folding the run's live frames produces, except for step
// timestamps. It returns research.ErrRecoveryUnavailable when the record holds
// no search or analysis records.
func Reconstruct(rec research.Record) (State, error) {
	snap, ok := snapshotOf(rec)
	if !ok || snap.IsEmpty() {
		return State{}, research.ErrRecoveryUnavailable
	}

	s := Initial()
	ts := rec.UpdatedAt

	if rec.Plan != nil {
		plan := *rec.Plan
		s.Plan = &plan
		u := research.PlanningStepUpdate(rec.Topic, &plan, research.StatusCompleted)
		u.Timestamp = ts
		s.Steps = append(s.Steps, u)
	}

	for i, sr := range snap.Searches {
		u := research.SearchStepUpdate(i, research.SearchSpec{Priority: sr.Priority, Query: sr.Query}, statusOr(sr.Status))
		u.Data = research.SearchStepData(sr)
		u.Timestamp = ts
		s.Steps = append(s.Steps, u)
	}

	for i, ar := range snap.Analyses {
		u := research.AnalysisStepUpdate(i, research.AnalysisSpec{Type: ar.Type, Description: ar.Description}, statusOr(ar.Status))
		u.Data = research.AnalysisStepData(ar)
		u.Timestamp = ts
		s.Steps = append(s.Steps, u)
	}

	if u, ok := reportStep(rec, snap); ok {
		u.Timestamp = ts
		s.Steps = append(s.Steps, u)
	}

	s.Progress = clamp(snap.CompletionRate)
	s.Phase = rec.Status
	if s.Phase == research.PhaseError {
		s.Phase = research.PhaseComplete
	}
	if s.Phase == "" {
		s.Phase = research.PhasePlanning
	}
	s.ReportText = rec.Content
	if len(rec.CitationSources) > 0 {
		s.Sources = append([]research.Source{}, rec.CitationSources...)
	}
	s.Error = rec.Error
	return s, nil
}

// snapshotOf returns the record's snapshot. Records written before plan
// links were persisted only carry the plan; a finished one is upgraded to a
// snapshot with one empty record per planned step. Unfinished legacy records
// are not recoverable since their progress would be a guess.
func snapshotOf(rec research.Record) (research.ResearchSnapshot, bool) {
	if rec.PlanLinks != nil {
		return rec.PlanLinks.Clone(), true
	}
	if rec.Plan == nil || rec.Status != research.PhaseComplete {
		return research.ResearchSnapshot{}, false
	}
	snap := research.NewSnapshot(rec.Plan.ID, rec.CreatedAt)
	for _, spec := range rec.Plan.Searches {
		snap = snap.WithSearch(research.SearchLinkRecord{Query: spec.Query, Priority: spec.Priority, Links: []research.LinkRecord{}, Status: research.StatusCompleted})
	}
	for _, spec := range rec.Plan.Analyses {
		snap = snap.WithAnalysis(research.AnalysisLinkRecord{Type: spec.Type, Description: spec.Description, KeySources: []research.LinkRecord{}, Status: research.StatusCompleted})
	}
	rate := rec.Progress
	if rec.Content != "" {
		rate = 100
	}
	return snap.WithCompletionRate(rate), true
}

// reportStep returns the report step a live observer holds for rec. It exists
// once every analysis succeeded: running while reporting, error when the
// report failed, completed once the content is stored.
func reportStep(rec research.Record, snap research.ResearchSnapshot) (research.StepUpdate, bool) {
	switch {
	case rec.Status == research.PhaseComplete && rec.Content != "":
		return research.ReportStepUpdate(research.StatusCompleted, len(rec.CitationSources)), true
	case rec.Status == research.PhaseReporting:
		return research.ReportStepUpdate(research.StatusRunning, 0), true
	case rec.Status == research.PhaseError && analysesDone(snap):
		return research.ReportStepUpdate(research.StatusError, 0), true
	}
	return research.StepUpdate{}, false
}

func analysesDone(snap research.ResearchSnapshot) bool {
	if len(snap.Analyses) != research.AnalysisCount {
		return false
	}
	for _, ar := range snap.Analyses {
		if ar.Status == research.StatusError {
			return false
		}
	}
	return true
}

func statusOr(s research.StepStatus) research.StepStatus {
	if s == "" {
		return research.StatusCompleted
	}
	return s
}
