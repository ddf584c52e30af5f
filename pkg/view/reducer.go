// Package view folds research frames, or a stored record, into what an
// observer displays. State is always derived and never persisted.
package view

import (
	"github.com/mikeboe/deep-search/pkg/research"
)

// State is the live view of one run.
type State struct {
	Progress   int                    `json:"progress"`
	Phase      research.Phase         `json:"phase"`
	Steps      []research.StepUpdate  `json:"steps"`
	ReportText string                 `json:"reportText"`
	Sources    []research.Source      `json:"sources"`
	Plan       *research.ResearchPlan `json:"plan,omitempty"`
	TotalSteps int                    `json:"totalSteps"`
	Error      string                 `json:"error,omitempty"`
}

// Initial is the state before any frame arrived.
func Initial() State {
	return State{Phase: research.PhasePlanning, Steps: []research.StepUpdate{}, Sources: []research.Source{}, TotalSteps: research.TotalSteps}
}

// Fold applies frames in order to the initial state.
func Fold(frames []research.Frame) State {
	s := Initial()
	for _, f := range frames {
		s = Apply(s, f)
	}
	return s
}

// Apply returns the state after one frame. It never modifies s; frames of
// unknown type leave the state unchanged.
func Apply(s State, f research.Frame) State {
	switch d := f.Data.(type) {
	case research.StepStartData:
		next := s.clone()
		u := research.StepUpdate{
			Step:        d.Step,
			Title:       d.Title,
			Description: d.Description,
			Status:      research.StatusRunning,
			Timestamp:   f.Timestamp,
		}
		next.Steps = upsertStep(next.Steps, u)
		next.Phase = research.PhaseForStep(d.Step)
		return next

	case research.StepCompleteData:
		next := s.clone()
		status := d.Status
		if status == "" {
			status = research.StatusCompleted
		}
		u := research.StepUpdate{
			Step:        d.Step,
			Title:       d.Title,
			Description: d.Description,
			Status:      status,
			Timestamp:   f.Timestamp,
			Data:        d.Data,
		}
		if i := indexOfStep(next.Steps, d.Step); i >= 0 {
			prev := next.Steps[i]
			if u.Title == "" {
				u.Title = prev.Title
			}
			if u.Description == "" {
				u.Description = prev.Description
			}
			if u.Data == nil {
				u.Data = prev.Data
			}
		}
		next.Steps = upsertStep(next.Steps, u)
		return next

	case research.ResearchPlanData:
		if s.Plan != nil {
			return s
		}
		next := s.clone()
		plan := d.Plan
		next.Plan = &plan
		if d.TotalSteps > 0 {
			next.TotalSteps = d.TotalSteps
		}
		return next

	case research.ProgressData:
		next := s.clone()
		next.Progress = clamp(d.Progress)
		return next

	case research.StatusChangeData:
		next := s.clone()
		next.Phase = d.Status
		if next.Phase == research.PhaseError {
			next.Phase = research.PhaseComplete
		}
		return next

	case research.ReportChunkData:
		next := s.clone()
		next.ReportText += d.Chunk
		return next

	case research.ReportCompleteData:
		next := s.clone()
		next.ReportText = d.FullReport
		next.Sources = append([]research.Source{}, d.Sources...)
		next.Progress = 100
		next.Phase = research.PhaseComplete
		return next

	case research.ErrorData:
		next := s.clone()
		next.Error = d.Message
		next.Phase = research.PhaseComplete
		if i := indexOfStep(next.Steps, d.Step); d.Step != 0 && i >= 0 && next.Steps[i].Status == research.StatusRunning {
			next.Steps[i].Status = research.StatusError
		}
		return next

	default:
		return s
	}
}

func (s State) clone() State {
	out := s
	out.Steps = append([]research.StepUpdate{}, s.Steps...)
	out.Sources = append([]research.Source{}, s.Sources...)
	return out
}

func indexOfStep(steps []research.StepUpdate, step int) int {
	for i, u := range steps {
		if u.Step == step {
			return i
		}
	}
	return -1
}

// upsertStep replaces the entry with the same step number, or inserts u
// keeping the list ordered by step number.
func upsertStep(steps []research.StepUpdate, u research.StepUpdate) []research.StepUpdate {
	if i := indexOfStep(steps, u.Step); i >= 0 {
		steps[i] = u
		return steps
	}
	pos := len(steps)
	for i, existing := range steps {
		if existing.Step > u.Step {
			pos = i
			break
		}
	}
	steps = append(steps, research.StepUpdate{})
	copy(steps[pos+1:], steps[pos:])
	steps[pos] = u
	return steps
}

func clamp(n int) int {
	if n < 0 {
		return 0
	}
	if n > 100 {
		return 100
	}
	return n
}
