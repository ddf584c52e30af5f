package research

import (
	"fmt"
	"strings"
	"time"
)

// Step numbers are fixed by phase and never depend on search results.
const (
	PlanningStep      = 1
	FirstSearchStep   = 2
	FirstAnalysisStep = 7
	ReportStep        = 12
	TotalSteps        = 12

	SearchCount   = 5
	AnalysisCount = 5
)

// Phase is the coarse-grained state of a run.
type Phase string

const (
	PhasePlanning  Phase = "planning"
	PhaseSearching Phase = "searching"
	PhaseAnalyzing Phase = "analyzing"
	PhaseReporting Phase = "reporting"
	PhaseComplete  Phase = "complete"
	// PhaseError is only ever persisted. Observers see a failed run as complete.
	PhaseError Phase = "error"
)

type StepStatus string

const (
	StatusPending   StepStatus = "pending"
	StatusRunning   StepStatus = "running"
	StatusCompleted StepStatus = "completed"
	StatusError     StepStatus = "error"
)

// Depth only changes how rich the search provider's results are.
type Depth string

const (
	DepthBasic    Depth = "basic"
	DepthAdvanced Depth = "advanced"
)

// SearchSpec is one planned query. Priority 1 is the most important.
type SearchSpec struct {
	Priority int    `json:"priority"`
	Query    string `json:"query"`
}

type AnalysisSpec struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Priority    int    `json:"priority"`
}

// ResearchPlan is produced once by the planning step and read-only afterwards.
type ResearchPlan struct {
	ID       string         `json:"id,omitempty"`
	Searches []SearchSpec   `json:"searches"`
	Analyses []AnalysisSpec `json:"analyses"`
}

// Validate checks the shape the planning schema asks for.
func (p ResearchPlan) Validate() error {
	if len(p.Searches) != SearchCount {
		return fmt.Errorf("plan must contain exactly %d searches, got %d", SearchCount, len(p.Searches))
	}
	if len(p.Analyses) != AnalysisCount {
		return fmt.Errorf("plan must contain exactly %d analyses, got %d", AnalysisCount, len(p.Analyses))
	}
	for i, s := range p.Searches {
		if strings.TrimSpace(s.Query) == "" {
			return fmt.Errorf("search %d has an empty query", i+1)
		}
		if s.Priority < 1 || s.Priority > 5 {
			return fmt.Errorf("search %d priority %d out of range 1..5", i+1, s.Priority)
		}
	}
	for i, a := range p.Analyses {
		if strings.TrimSpace(a.Type) == "" {
			return fmt.Errorf("analysis %d has an empty type", i+1)
		}
		if a.Priority < 1 || a.Priority > 5 {
			return fmt.Errorf("analysis %d priority %d out of range 1..5", i+1, a.Priority)
		}
	}
	return nil
}

// SourceRef is the trimmed link shape carried in step payloads.
type SourceRef struct {
	Title     string  `json:"title"`
	URL       string  `json:"url"`
	Relevance float64 `json:"relevance,omitempty"`
}

// StepData is the payload attached to a step on completion. Search steps fill
// Query/ResultCount/Sources, analysis steps fill AnalysisType/FindingsCount/KeySources.
type StepData struct {
	Query         string      `json:"query,omitempty"`
	ResultCount   *int        `json:"resultCount,omitempty"`
	Sources       []SourceRef `json:"sources,omitempty"`
	AnalysisType  string      `json:"analysisType,omitempty"`
	FindingsCount *int        `json:"findingsCount,omitempty"`
	KeySources    []SourceRef `json:"keySources,omitempty"`
	SearchCount   *int        `json:"searchCount,omitempty"`
	AnalysisCount *int        `json:"analysisCount,omitempty"`
	SourceCount   *int        `json:"sourceCount,omitempty"`
}

// StepUpdate is identified by Step, never by position in a list.
type StepUpdate struct {
	Step        int        `json:"step"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      StepStatus `json:"status"`
	Timestamp   time.Time  `json:"timestamp"`
	Data        *StepData  `json:"data,omitempty"`
}

// Source is one entry of the final citation list.
type Source struct {
	Title     string  `json:"title"`
	URL       string  `json:"url"`
	Relevance float64 `json:"relevance,omitempty"`
}

// SearchResult is the normalized output of a SearchProvider.
type SearchResult struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score,omitempty"`
}

type SearchQuery struct {
	Query      string
	MaxResults int
	Depth      Depth
}

// Finding is one analysis insight.
type Finding struct {
	Insight     string   `json:"insight"`
	Evidence    string   `json:"evidence"`
	Confidence  float64  `json:"confidence"`
	SourceLinks []string `json:"source_links"`
}

type KeySource struct {
	Title     string  `json:"title"`
	URL       string  `json:"url"`
	Relevance float64 `json:"relevance"`
}

// AnalysisResult is the structured output of one analysis step.
type AnalysisResult struct {
	Findings     []Finding   `json:"findings"`
	Implications []string    `json:"implications"`
	Limitations  []string    `json:"limitations"`
	KeySources   []KeySource `json:"key_sources"`
}

// Validate rejects results that decoded but miss required fields. Empty
// lists are fine; absent ones mean the model ignored the schema.
func (a AnalysisResult) Validate() error {
	if a.Findings == nil {
		return fmt.Errorf("analysis has no findings field")
	}
	if a.KeySources == nil {
		return fmt.Errorf("analysis has no key_sources field")
	}
	for i, f := range a.Findings {
		if f.Confidence < 0 || f.Confidence > 1 {
			return fmt.Errorf("finding %d: confidence %.2f out of range [0,1]", i+1, f.Confidence)
		}
	}
	return nil
}

// Record is the durable row of one run, keyed by the run (message) id.
type Record struct {
	ID              string            `json:"id"`
	SessionID       string            `json:"session_id"`
	Topic           string            `json:"topic"`
	Depth           Depth             `json:"depth"`
	Plan            *ResearchPlan     `json:"research_plan,omitempty"`
	PlanLinks       *ResearchSnapshot `json:"research_plan_links,omitempty"`
	Status          Phase             `json:"research_status"`
	Progress        int               `json:"research_progress"`
	Content         string            `json:"content"`
	CitationSources []Source          `json:"citation_sources,omitempty"`
	Error           string            `json:"research_error,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// Request starts a run. RunID lets a caller pick the record id up front so it
// can reattach later; it is generated when empty.
type Request struct {
	RunID     string `json:"messageId,omitempty"`
	Topic     string `json:"topic"`
	SessionID string `json:"sessionId"`
	Depth     Depth  `json:"depth,omitempty"`
}

func (r Request) Validate() error {
	if strings.TrimSpace(r.Topic) == "" {
		return fmt.Errorf("%w: topic is required", ErrInvalidRequest)
	}
	if strings.TrimSpace(r.SessionID) == "" {
		return fmt.Errorf("%w: sessionId is required", ErrInvalidRequest)
	}
	switch r.Depth {
	case "", DepthBasic, DepthAdvanced:
	default:
		return fmt.Errorf("%w: depth must be basic or advanced", ErrInvalidRequest)
	}
	return nil
}

// Result is what a finished run hands back to its caller.
type Result struct {
	RunID    string
	Report   string
	Sources  []Source
	Snapshot ResearchSnapshot
}
