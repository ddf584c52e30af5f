package research

import (
	"fmt"
	"math"
)

// PlanningProgress is reported once the plan is in place.
const PlanningProgress = 5

// Number of links attached to a step payload.
const (
	TopSearchSources   = 5
	TopAnalysisSources = 3
)

// SearchStep returns the step number of the i-th search (0-based).
func SearchStep(i int) int { return FirstSearchStep + i }

// AnalysisStep returns the step number of the i-th analysis (0-based).
func AnalysisStep(i int) int { return FirstAnalysisStep + i }

// PhaseForStep maps a step number to the phase a step_start moves observers into.
func PhaseForStep(step int) Phase {
	switch {
	case step == PlanningStep:
		return PhasePlanning
	case step >= FirstSearchStep && step < FirstAnalysisStep:
		return PhaseSearching
	default:
		return PhaseAnalyzing
	}
}

// SearchProgress is the overall progress after the n-th search completed (1-based).
func SearchProgress(n int) int {
	return int(math.Round(float64(n) / float64(SearchCount) * 70))
}

// AnalysisProgress is the overall progress after the n-th analysis completed (1-based).
func AnalysisProgress(n int) int {
	return int(math.Round(70 + float64(n)/float64(AnalysisCount)*25))
}

// ResultCount maps a priority to a requested result count: priority 1 asks
// for the most, every step down asks for two fewer, bounded by [min, max].
func ResultCount(priority, min, max int) int {
	n := max - 2*(priority-1)
	if n < min {
		n = min
	}
	if n > max {
		n = max
	}
	return n
}

type stepText struct {
	Title       string
	Description string
}

func planningText(topic string) stepText {
	return stepText{
		Title:       "Planning research",
		Description: fmt.Sprintf("Creating a research plan for %q", topic),
	}
}

func searchText(spec SearchSpec) stepText {
	return stepText{
		Title:       fmt.Sprintf("Searching: %s", spec.Query),
		Description: fmt.Sprintf("Web search (priority %d)", spec.Priority),
	}
}

func analysisText(spec AnalysisSpec) stepText {
	return stepText{
		Title:       fmt.Sprintf("Analyzing: %s", spec.Type),
		Description: spec.Description,
	}
}

func reportText() stepText {
	return stepText{
		Title:       "Writing report",
		Description: "Synthesizing findings into a cited report",
	}
}

// PlanningStepUpdate and the helpers below build the step rows shared by the
// live stream and reconstruction, so both render identically.
func PlanningStepUpdate(topic string, plan *ResearchPlan, status StepStatus) StepUpdate {
	t := planningText(topic)
	u := StepUpdate{Step: PlanningStep, Title: t.Title, Description: t.Description, Status: status}
	if plan != nil && status == StatusCompleted {
		u.Data = &StepData{SearchCount: intPtr(len(plan.Searches)), AnalysisCount: intPtr(len(plan.Analyses))}
	}
	return u
}

func SearchStepUpdate(i int, spec SearchSpec, status StepStatus) StepUpdate {
	t := searchText(spec)
	return StepUpdate{Step: SearchStep(i), Title: t.Title, Description: t.Description, Status: status}
}

func AnalysisStepUpdate(i int, spec AnalysisSpec, status StepStatus) StepUpdate {
	t := analysisText(spec)
	return StepUpdate{Step: AnalysisStep(i), Title: t.Title, Description: t.Description, Status: status}
}

func ReportStepUpdate(status StepStatus, sourceCount int) StepUpdate {
	t := reportText()
	u := StepUpdate{Step: ReportStep, Title: t.Title, Description: t.Description, Status: status}
	if status == StatusCompleted {
		u.Data = &StepData{SourceCount: intPtr(sourceCount)}
	}
	return u
}

// SearchStepData is the payload of a completed search step.
func SearchStepData(rec SearchLinkRecord) *StepData {
	return &StepData{
		Query:       rec.Query,
		ResultCount: intPtr(rec.ResultCount),
		Sources:     topRefs(rec.Links, TopSearchSources),
	}
}

// AnalysisStepData is the payload of a completed analysis step.
func AnalysisStepData(rec AnalysisLinkRecord) *StepData {
	return &StepData{
		AnalysisType:  rec.Type,
		FindingsCount: intPtr(rec.FindingsCount),
		KeySources:    topRefs(rec.KeySources, TopAnalysisSources),
	}
}

func topRefs(links []LinkRecord, n int) []SourceRef {
	if len(links) < n {
		n = len(links)
	}
	refs := make([]SourceRef, 0, n)
	for _, l := range links[:n] {
		refs = append(refs, SourceRef{Title: l.Title, URL: l.URL, Relevance: l.Relevance})
	}
	return refs
}

func intPtr(n int) *int { return &n }
