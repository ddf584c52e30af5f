package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mikeboe/deep-search/pkg/research"
)

// MemoryStore keeps research records in process. Values are copied on the
// way in and out, so a reader always holds a point-in-time copy.
type MemoryStore struct {
	mu   sync.RWMutex
	runs map[string]research.Record
	now  func() time.Time
}

func New() *MemoryStore {
	return &MemoryStore{runs: map[string]research.Record{}, now: time.Now}
}

func (m *MemoryStore) CreateRun(ctx context.Context, rec research.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[rec.ID]; ok {
		return fmt.Errorf("research run %s already exists", rec.ID)
	}
	if rec.Status == "" {
		rec.Status = research.PhasePlanning
	}
	m.runs[rec.ID] = cloneRecord(rec)
	return nil
}

func (m *MemoryStore) SavePlan(ctx context.Context, runID string, plan research.ResearchPlan, snap research.ResearchSnapshot, progress int) error {
	return m.update(runID, func(rec *research.Record) {
		p := clonePlan(plan)
		rec.Plan = &p
		s := snap.Clone()
		rec.PlanLinks = &s
		rec.Progress = progress
	})
}

func (m *MemoryStore) SaveSnapshot(ctx context.Context, runID string, snap research.ResearchSnapshot, status research.Phase, progress int) error {
	return m.update(runID, func(rec *research.Record) {
		s := snap.Clone()
		rec.PlanLinks = &s
		rec.Status = status
		rec.Progress = progress
	})
}

func (m *MemoryStore) CompleteRun(ctx context.Context, runID string, snap research.ResearchSnapshot, content string, sources []research.Source) error {
	return m.update(runID, func(rec *research.Record) {
		s := snap.Clone()
		rec.PlanLinks = &s
		rec.Status = research.PhaseComplete
		rec.Progress = 100
		rec.Content = content
		rec.CitationSources = append([]research.Source{}, sources...)
	})
}

func (m *MemoryStore) FailRun(ctx context.Context, runID string, message string) error {
	return m.update(runID, func(rec *research.Record) {
		rec.Status = research.PhaseError
		rec.Error = message
	})
}

func (m *MemoryStore) GetRun(ctx context.Context, runID string) (*research.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.runs[runID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", research.ErrRunNotFound, runID)
	}
	cloned := cloneRecord(rec)
	return &cloned, nil
}

// ListRuns returns the runs of a session, newest first.
func (m *MemoryStore) ListRuns(ctx context.Context, sessionID string) ([]research.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	results := []research.Record{}
	for _, rec := range m.runs {
		if sessionID != "" && rec.SessionID != sessionID {
			continue
		}
		results = append(results, cloneRecord(rec))
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].CreatedAt.After(results[j].CreatedAt)
	})
	return results, nil
}

func (m *MemoryStore) update(runID string, fn func(rec *research.Record)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.runs[runID]
	if !ok {
		return fmt.Errorf("%w: %s", research.ErrRunNotFound, runID)
	}
	fn(&rec)
	rec.UpdatedAt = m.now()
	m.runs[runID] = rec
	return nil
}

func clonePlan(p research.ResearchPlan) research.ResearchPlan {
	p.Searches = append([]research.SearchSpec{}, p.Searches...)
	p.Analyses = append([]research.AnalysisSpec{}, p.Analyses...)
	return p
}

func cloneRecord(rec research.Record) research.Record {
	if rec.Plan != nil {
		p := clonePlan(*rec.Plan)
		rec.Plan = &p
	}
	if rec.PlanLinks != nil {
		s := rec.PlanLinks.Clone()
		rec.PlanLinks = &s
	}
	if rec.CitationSources != nil {
		rec.CitationSources = append([]research.Source{}, rec.CitationSources...)
	}
	return rec
}
