package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/mikeboe/deep-search/pkg/database"
	"github.com/mikeboe/deep-search/pkg/research"
	"github.com/mikeboe/deep-search/pkg/stream"
	"github.com/mikeboe/deep-search/pkg/view"
)

// RunStore is the durable store the service reads runs back from.
type RunStore interface {
	research.Store
	ListRuns(ctx context.Context, sessionID string) ([]research.Record, error)
}

// LogStore serves persisted run logs. It may be nil when runs are kept in
// memory.
type LogStore interface {
	LogSink
	GetRunLogs(ctx context.Context, runID uuid.UUID) ([]database.LogEntry, error)
}

var ErrLogsUnavailable = errors.New("run logs are not persisted")

type Service struct {
	Engine *research.Engine
	Store  RunStore
	Logs   LogStore

	wg sync.WaitGroup
}

func NewService(engine *research.Engine, store RunStore, logs LogStore) *Service {
	return &Service{Engine: engine, Store: store, Logs: logs}
}

// StartRun validates req and runs it in the background. The returned queue
// carries the run's frames; the run continues when its consumer detaches.
func (s *Service) StartRun(req research.Request) (string, *stream.Queue, error) {
	if err := req.Validate(); err != nil {
		return "", nil, err
	}
	if _, err := uuid.Parse(req.SessionID); err != nil {
		return "", nil, fmt.Errorf("%w: sessionId must be a uuid", research.ErrInvalidRequest)
	}
	if req.RunID == "" {
		req.RunID = uuid.NewString()
	}
	runID, err := uuid.Parse(req.RunID)
	if err != nil {
		return "", nil, fmt.Errorf("%w: messageId must be a uuid", research.ErrInvalidRequest)
	}

	engine := *s.Engine
	engine.Logger = s.runLogger(runID)

	q := stream.NewQueue()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer q.Close()
		if _, err := engine.Run(context.Background(), req, q); err != nil {
			engine.Logger.Error("Research run failed", "error", err)
		}
	}()
	return req.RunID, q, nil
}

// Wait blocks until every started run has finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) runLogger(runID uuid.UUID) *slog.Logger {
	base := s.Engine.Logger
	if base == nil {
		base = slog.Default()
	}
	if s.Logs == nil {
		return base
	}
	return slog.New(NewDBLogHandler(s.Logs, runID, base.Handler()))
}

func (s *Service) GetRun(ctx context.Context, id string) (*research.Record, error) {
	return s.Store.GetRun(ctx, id)
}

func (s *Service) ListRuns(ctx context.Context, sessionID string) ([]research.Record, error) {
	return s.Store.ListRuns(ctx, sessionID)
}

// View reconstructs the observer state of a stored run.
func (s *Service) View(ctx context.Context, id string) (view.State, error) {
	rec, err := s.Store.GetRun(ctx, id)
	if err != nil {
		return view.State{}, err
	}
	return view.Reconstruct(*rec)
}

func (s *Service) GetRunLogs(ctx context.Context, id uuid.UUID) ([]database.LogEntry, error) {
	if s.Logs == nil {
		return nil, ErrLogsUnavailable
	}
	return s.Logs.GetRunLogs(ctx, id)
}
