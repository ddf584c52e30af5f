package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mikeboe/deep-search/pkg/research"
)

// RunStore persists research runs as model messages. Every write is a single
// UPDATE of one row, so readers never observe a half-written snapshot.
type RunStore struct {
	DB *PostgresDB
}

func NewRunStore(db *PostgresDB) *RunStore {
	return &RunStore{DB: db}
}

const runColumns = `id, conversation_id, COALESCE(research_topic, ''), COALESCE(research_depth, ''),
	research_plan, research_plan_links, COALESCE(research_status, ''), research_progress,
	content, citation_sources, COALESCE(research_error, ''), created_at, updated_at`

func (s *RunStore) CreateRun(ctx context.Context, rec research.Record) error {
	runID, err := uuid.Parse(rec.ID)
	if err != nil {
		return fmt.Errorf("invalid run id %q: %w", rec.ID, err)
	}
	sessionID, err := uuid.Parse(rec.SessionID)
	if err != nil {
		return fmt.Errorf("invalid session id %q: %w", rec.SessionID, err)
	}

	tx, err := s.DB.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `INSERT INTO conversations (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`, sessionID); err != nil {
		return fmt.Errorf("failed to ensure conversation: %w", err)
	}

	query := `
		INSERT INTO messages (id, conversation_id, role, content, research_topic, research_depth,
			research_status, research_progress, created_at, updated_at)
		VALUES ($1, $2, 'model', '', $3, $4, $5, 0, $6, $6)
	`
	if _, err := tx.Exec(ctx, query, runID, sessionID, rec.Topic, string(rec.Depth), string(rec.Status), rec.CreatedAt); err != nil {
		return fmt.Errorf("failed to create research run: %w", err)
	}
	return tx.Commit(ctx)
}

func (s *RunStore) SavePlan(ctx context.Context, runID string, plan research.ResearchPlan, snap research.ResearchSnapshot, progress int) error {
	planJSON, err := json.Marshal(plan)
	if err != nil {
		return fmt.Errorf("failed to marshal plan: %w", err)
	}
	snapJSON, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	return s.exec(ctx, runID, `
		UPDATE messages
		SET research_plan = $2, research_plan_links = $3, research_progress = $4, updated_at = NOW()
		WHERE id = $1
	`, planJSON, snapJSON, progress)
}

func (s *RunStore) SaveSnapshot(ctx context.Context, runID string, snap research.ResearchSnapshot, status research.Phase, progress int) error {
	snapJSON, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	return s.exec(ctx, runID, `
		UPDATE messages
		SET research_plan_links = $2, research_status = $3, research_progress = $4, updated_at = NOW()
		WHERE id = $1
	`, snapJSON, string(status), progress)
}

func (s *RunStore) CompleteRun(ctx context.Context, runID string, snap research.ResearchSnapshot, content string, sources []research.Source) error {
	snapJSON, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	sourcesJSON, err := json.Marshal(sources)
	if err != nil {
		return fmt.Errorf("failed to marshal sources: %w", err)
	}
	return s.exec(ctx, runID, `
		UPDATE messages
		SET research_plan_links = $2, research_status = $3, research_progress = 100,
			content = $4, citation_sources = $5, updated_at = NOW()
		WHERE id = $1
	`, snapJSON, string(research.PhaseComplete), content, sourcesJSON)
}

func (s *RunStore) FailRun(ctx context.Context, runID string, message string) error {
	return s.exec(ctx, runID, `
		UPDATE messages
		SET research_status = $2, research_error = $3, updated_at = NOW()
		WHERE id = $1
	`, string(research.PhaseError), message)
}

func (s *RunStore) GetRun(ctx context.Context, runID string) (*research.Record, error) {
	id, err := uuid.Parse(runID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", research.ErrRunNotFound, runID)
	}
	row := s.DB.Pool.QueryRow(ctx, `SELECT `+runColumns+` FROM messages WHERE id = $1 AND research_status IS NOT NULL`, id)
	rec, err := scanRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", research.ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get research run: %w", err)
	}
	return rec, nil
}

// ListRuns returns the research runs of a conversation, newest first.
func (s *RunStore) ListRuns(ctx context.Context, sessionID string) ([]research.Record, error) {
	id, err := uuid.Parse(sessionID)
	if err != nil {
		return nil, fmt.Errorf("invalid session id %q: %w", sessionID, err)
	}
	rows, err := s.DB.Pool.Query(ctx, `
		SELECT `+runColumns+`
		FROM messages
		WHERE conversation_id = $1 AND research_status IS NOT NULL
		ORDER BY created_at DESC
		LIMIT 50
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list research runs: %w", err)
	}
	defer rows.Close()

	runs := []research.Record{}
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return runs, nil
}

func (s *RunStore) exec(ctx context.Context, runID, query string, args ...any) error {
	id, err := uuid.Parse(runID)
	if err != nil {
		return fmt.Errorf("%w: %s", research.ErrRunNotFound, runID)
	}
	tag, err := s.DB.Pool.Exec(ctx, query, append([]any{id}, args...)...)
	if err != nil {
		return fmt.Errorf("failed to update research run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", research.ErrRunNotFound, runID)
	}
	return nil
}

func scanRun(row pgx.Row) (*research.Record, error) {
	var (
		rec                          research.Record
		id, sessionID                uuid.UUID
		depth, status                string
		planJSON, linksJSON, srcJSON []byte
		createdAt, updatedAt         time.Time
	)
	err := row.Scan(&id, &sessionID, &rec.Topic, &depth, &planJSON, &linksJSON, &status,
		&rec.Progress, &rec.Content, &srcJSON, &rec.Error, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	rec.ID = id.String()
	rec.SessionID = sessionID.String()
	rec.Depth = research.Depth(depth)
	rec.Status = research.Phase(status)
	rec.CreatedAt = createdAt
	rec.UpdatedAt = updatedAt

	if len(planJSON) > 0 {
		var plan research.ResearchPlan
		if err := json.Unmarshal(planJSON, &plan); err != nil {
			return nil, fmt.Errorf("failed to unmarshal research plan: %w", err)
		}
		rec.Plan = &plan
	}
	if len(linksJSON) > 0 {
		var snap research.ResearchSnapshot
		if err := json.Unmarshal(linksJSON, &snap); err != nil {
			return nil, fmt.Errorf("failed to unmarshal research snapshot: %w", err)
		}
		rec.PlanLinks = &snap
	}
	if len(srcJSON) > 0 {
		if err := json.Unmarshal(srcJSON, &rec.CitationSources); err != nil {
			return nil, fmt.Errorf("failed to unmarshal citation sources: %w", err)
		}
	}
	return &rec, nil
}
