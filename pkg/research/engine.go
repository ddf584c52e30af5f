package research

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"github.com/mikeboe/deep-search/pkg/splitter"
)

// SearchProvider runs one web search and returns normalized results.
type SearchProvider interface {
	Search(ctx context.Context, q SearchQuery) ([]SearchResult, error)
}

// ObjectRequest asks a model for a JSON document matching Schema.
type ObjectRequest struct {
	Name   string
	System string
	Prompt string
	Schema *genai.Schema
}

type TextRequest struct {
	System string
	Prompt string
}

// Model is the language model collaborator. StreamText calls onChunk for
// every fragment as soon as it arrives and returns the full text.
type Model interface {
	GenerateObject(ctx context.Context, req ObjectRequest) (string, error)
	StreamText(ctx context.Context, req TextRequest, onChunk func(chunk string) error) (string, error)
}

// Store persists the durable record of a run. Every write replaces the
// record's fields in one step so concurrent readers see a consistent row.
type Store interface {
	CreateRun(ctx context.Context, rec Record) error
	SavePlan(ctx context.Context, runID string, plan ResearchPlan, snap ResearchSnapshot, progress int) error
	SaveSnapshot(ctx context.Context, runID string, snap ResearchSnapshot, status Phase, progress int) error
	CompleteRun(ctx context.Context, runID string, snap ResearchSnapshot, content string, sources []Source) error
	FailRun(ctx context.Context, runID string, message string) error
	GetRun(ctx context.Context, runID string) (*Record, error)
}

// Emitter receives frames in the order the engine produces them. Emit must
// not block on slow or absent consumers.
type Emitter interface {
	Emit(f Frame)
}

// EmitterFunc adapts a function to an Emitter.
type EmitterFunc func(f Frame)

func (fn EmitterFunc) Emit(f Frame) { fn(f) }

// Config holds runtime configuration of the engine.
type Config struct {
	MinResults      int
	MaxResults      int
	MaxRetries      int
	RetryBackoff    time.Duration
	PlanTimeout     time.Duration
	SearchTimeout   time.Duration
	AnalysisTimeout time.Duration
	ReportTimeout   time.Duration
	ChunkSize       int
	ChunkOverlap    int
	ExcerptRunes    int
}

func DefaultConfig() Config {
	return Config{
		MinResults:      3,
		MaxResults:      10,
		MaxRetries:      3,
		RetryBackoff:    time.Second,
		PlanTimeout:     60 * time.Second,
		SearchTimeout:   30 * time.Second,
		AnalysisTimeout: 90 * time.Second,
		ReportTimeout:   5 * time.Minute,
		ChunkSize:       1000,
		ChunkOverlap:    200,
		ExcerptRunes:    1200,
	}
}

// Engine sequences planning, five searches, five analyses and the report.
// One Run never has two adapter calls in flight.
type Engine struct {
	Config Config
	Search SearchProvider
	Model  Model
	Store  Store
	Logger *slog.Logger
	Now    func() time.Time
	NewID  func() string

	splitter *splitter.TextSplitter
}

func NewEngine(cfg Config, model Model, search SearchProvider, store Store) *Engine {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 1000
	}
	if cfg.ChunkOverlap < 0 || cfg.ChunkOverlap >= cfg.ChunkSize {
		cfg.ChunkOverlap = 0
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 1
	}
	if cfg.MinResults <= 0 {
		cfg.MinResults = 1
	}
	if cfg.MaxResults < cfg.MinResults {
		cfg.MaxResults = cfg.MinResults
	}
	return &Engine{
		Config:   cfg,
		Search:   search,
		Model:    model,
		Store:    store,
		Logger:   slog.Default(),
		Now:      time.Now,
		NewID:    uuid.NewString,
		splitter: splitter.NewRecursiveCharacterTextSplitter(cfg.ChunkSize, cfg.ChunkOverlap),
	}
}

func (e *Engine) excerpt(text string) string {
	return e.splitter.Excerpt(text, e.Config.ExcerptRunes)
}

// Run executes one research run to completion or error. Frames go to out,
// and every store write happens before the frame that announces it. The
// caller decides cancellation through ctx; the HTTP layer hands in a context
// detached from the request, so a closed stream does not stop the run.
func (e *Engine) Run(ctx context.Context, req Request, out Emitter) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.Depth == "" {
		req.Depth = DepthBasic
	}
	if req.RunID == "" {
		req.RunID = e.NewID()
	}
	if out == nil {
		out = EmitterFunc(func(Frame) {})
	}

	r := &run{
		engine: e,
		req:    req,
		out:    out,
		logger: e.Logger.With("run_id", req.RunID, "topic", req.Topic),
	}
	return r.execute(ctx)
}

type searchOutcome struct {
	spec    SearchSpec
	results []SearchResult
}

type analysisOutcome struct {
	spec   AnalysisSpec
	result AnalysisResult
}

// run is the per-execution state. The snapshot is not kept here: each phase
// takes the current snapshot and returns the next one.
type run struct {
	engine   *Engine
	req      Request
	out      Emitter
	logger   *slog.Logger
	progress int
}

func (r *run) emit(data EventData) {
	r.out.Emit(NewFrame(data, r.engine.Now()))
}

func (r *run) emitStepStart(u StepUpdate) {
	r.emit(StepStartData{Step: u.Step, Title: u.Title, Description: u.Description, Status: StatusRunning})
}

func (r *run) emitStepComplete(u StepUpdate) {
	r.emit(StepCompleteData{Step: u.Step, Title: u.Title, Description: u.Description, Status: u.Status, Data: u.Data})
}

func (r *run) setProgress(p int) {
	if p > r.progress {
		r.progress = p
	}
	r.emit(ProgressData{Progress: r.progress})
}

func (r *run) execute(ctx context.Context) (*Result, error) {
	e := r.engine
	now := e.Now()
	err := e.Store.CreateRun(ctx, Record{
		ID:        r.req.RunID,
		SessionID: r.req.SessionID,
		Topic:     r.req.Topic,
		Depth:     r.req.Depth,
		Status:    PhasePlanning,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		err = fmt.Errorf("failed to create research record: %w", err)
		r.logger.Error("Persisting run failed", "error", err)
		r.emit(ErrorData{Message: "Could not start research: the run could not be saved."})
		return nil, err
	}
	r.logger.Info("Starting research run", "depth", r.req.Depth)

	r.emitStepStart(PlanningStepUpdate(r.req.Topic, nil, StatusRunning))
	r.emit(StatusChangeData{Status: PhasePlanning})

	plan, err := r.plan(ctx)
	if err != nil {
		return nil, r.fail(ctx, PlanningStep, err)
	}

	snap := NewSnapshot(plan.ID, e.Now()).WithCompletionRate(PlanningProgress)
	if err := e.Store.SavePlan(ctx, r.req.RunID, plan, snap, PlanningProgress); err != nil {
		return nil, r.fail(ctx, PlanningStep, fmt.Errorf("failed to persist plan: %w", err))
	}
	r.emit(ResearchPlanData{Plan: plan, TotalSteps: TotalSteps})
	r.emitStepComplete(PlanningStepUpdate(r.req.Topic, &plan, StatusCompleted))
	r.setProgress(PlanningProgress)

	snap, searches, err := r.searchPhase(ctx, plan, snap)
	if err != nil {
		return nil, r.fail(ctx, r.failedStep(err), err)
	}

	snap, analyses, err := r.analysisPhase(ctx, plan, snap, searches)
	if err != nil {
		return nil, r.fail(ctx, r.failedStep(err), err)
	}

	return r.reportPhase(ctx, snap, searches, analyses)
}

// --- Phase Implementations ---

func (r *run) plan(ctx context.Context) (ResearchPlan, error) {
	e := r.engine
	r.logger.Info("Starting planning phase")

	var plan ResearchPlan
	_, err := e.generateWithRetry(ctx, r.logger, e.Config.PlanTimeout, ObjectRequest{
		Name:   "plan",
		System: planSystemPrompt,
		Prompt: planPrompt(r.req.Topic),
		Schema: PlanSchema(),
	}, func(content string) error {
		// Reset for retry
		plan = ResearchPlan{}
		if err := json.Unmarshal([]byte(content), &plan); err != nil {
			return fmt.Errorf("json parse error: %w", err)
		}
		return plan.Validate()
	})
	if err != nil {
		return ResearchPlan{}, fmt.Errorf("%w: %w", ErrPlanningFailure, err)
	}

	plan.ID = e.NewID()
	r.logger.Info("Generated plan", "plan_id", plan.ID, "searches", len(plan.Searches), "analyses", len(plan.Analyses))
	return plan, nil
}

func (r *run) searchPhase(ctx context.Context, plan ResearchPlan, snap ResearchSnapshot) (ResearchSnapshot, []searchOutcome, error) {
	e := r.engine
	r.logger.Info("Starting search phase")

	if err := e.Store.SaveSnapshot(ctx, r.req.RunID, snap, PhaseSearching, r.progress); err != nil {
		return snap, nil, &stepError{step: FirstSearchStep, err: fmt.Errorf("failed to persist research state: %w", err)}
	}

	outcomes := make([]searchOutcome, 0, len(plan.Searches))
	for i, spec := range plan.Searches {
		r.emitStepStart(SearchStepUpdate(i, spec, StatusRunning))

		rec, results := r.search(ctx, spec)
		progress := SearchProgress(i + 1)
		snap = snap.WithSearch(rec).WithCompletionRate(progress)
		if err := e.Store.SaveSnapshot(ctx, r.req.RunID, snap, PhaseSearching, progress); err != nil {
			return snap, nil, &stepError{step: SearchStep(i), err: fmt.Errorf("failed to persist search %d: %w", i+1, err)}
		}
		outcomes = append(outcomes, searchOutcome{spec: spec, results: results})

		u := SearchStepUpdate(i, spec, rec.Status)
		u.Data = SearchStepData(rec)
		r.emitStepComplete(u)
		r.setProgress(progress)
	}
	return snap, outcomes, nil
}

// search never fails the run. An adapter error is recorded on the step and
// the run moves on with zero results for this query.
func (r *run) search(ctx context.Context, spec SearchSpec) (SearchLinkRecord, []SearchResult) {
	e := r.engine
	maxResults := ResultCount(spec.Priority, e.Config.MinResults, e.Config.MaxResults)

	callCtx, cancel := withTimeout(ctx, e.Config.SearchTimeout)
	results, err := e.Search.Search(callCtx, SearchQuery{Query: spec.Query, MaxResults: maxResults, Depth: r.req.Depth})
	cancel()

	rec := SearchLinkRecord{
		Query:    spec.Query,
		Priority: spec.Priority,
		Links:    []LinkRecord{},
		Status:   StatusCompleted,
	}
	if err != nil {
		r.logger.Error("Search failed", "query", spec.Query, "error", fmt.Errorf("%w: %w", ErrSearchFailure, err))
		rec.Status = StatusError
		return rec, nil
	}

	if len(results) > maxResults {
		results = results[:maxResults]
	}
	foundAt := e.Now()
	for _, res := range results {
		rec.Links = append(rec.Links, LinkRecord{
			Title:     res.Title,
			URL:       res.URL,
			Relevance: res.Score,
			Domain:    DomainOf(res.URL),
			FoundAt:   foundAt,
		})
	}
	rec.ResultCount = len(results)
	r.logger.Info("Search complete", "query", spec.Query, "requested", maxResults, "count", rec.ResultCount)
	return rec, results
}

type stepError struct {
	step int
	err  error
}

func (e *stepError) Error() string { return e.err.Error() }
func (e *stepError) Unwrap() error { return e.err }

func (r *run) failedStep(err error) int {
	var se *stepError
	if errors.As(err, &se) {
		return se.step
	}
	return 0
}

func (r *run) analysisPhase(ctx context.Context, plan ResearchPlan, snap ResearchSnapshot, searches []searchOutcome) (ResearchSnapshot, []analysisOutcome, error) {
	e := r.engine
	r.logger.Info("Starting analysis phase")

	if err := e.Store.SaveSnapshot(ctx, r.req.RunID, snap, PhaseAnalyzing, r.progress); err != nil {
		return snap, nil, fmt.Errorf("failed to persist research state: %w", err)
	}

	corpus := e.corpus(searches)
	outcomes := make([]analysisOutcome, 0, len(plan.Analyses))
	for i, spec := range plan.Analyses {
		step := AnalysisStep(i)
		r.emitStepStart(AnalysisStepUpdate(i, spec, StatusRunning))

		result, err := r.analyze(ctx, spec, corpus)
		if err != nil {
			// A failed analysis is recorded and then ends the run, so the
			// report never cites a partial set of findings.
			rec := AnalysisLinkRecord{Type: spec.Type, Description: spec.Description, KeySources: []LinkRecord{}, Status: StatusError}
			snap = snap.WithAnalysis(rec)
			if perr := e.Store.SaveSnapshot(ctx, r.req.RunID, snap, PhaseAnalyzing, r.progress); perr != nil {
				r.logger.Error("Failed to persist failed analysis", "error", perr)
			}
			u := AnalysisStepUpdate(i, spec, StatusError)
			u.Data = AnalysisStepData(rec)
			r.emitStepComplete(u)
			return snap, nil, &stepError{step: step, err: err}
		}

		rec := r.analysisRecord(spec, result)
		progress := AnalysisProgress(i + 1)
		snap = snap.WithAnalysis(rec).WithCompletionRate(progress)
		if err := e.Store.SaveSnapshot(ctx, r.req.RunID, snap, PhaseAnalyzing, progress); err != nil {
			return snap, nil, &stepError{step: step, err: fmt.Errorf("failed to persist analysis %d: %w", i+1, err)}
		}
		outcomes = append(outcomes, analysisOutcome{spec: spec, result: result})

		u := AnalysisStepUpdate(i, spec, StatusCompleted)
		u.Data = AnalysisStepData(rec)
		r.emitStepComplete(u)
		r.setProgress(progress)
	}
	return snap, outcomes, nil
}

func (r *run) analyze(ctx context.Context, spec AnalysisSpec, corpus string) (AnalysisResult, error) {
	e := r.engine
	var result AnalysisResult
	_, err := e.generateWithRetry(ctx, r.logger, e.Config.AnalysisTimeout, ObjectRequest{
		Name:   "analysis:" + spec.Type,
		System: analysisSystemPrompt,
		Prompt: analysisPrompt(r.req.Topic, spec, corpus),
		Schema: AnalysisSchema(),
	}, func(content string) error {
		result = AnalysisResult{}
		if err := json.Unmarshal([]byte(content), &result); err != nil {
			return fmt.Errorf("json parse error: %w", err)
		}
		return result.Validate()
	})
	if err != nil {
		return AnalysisResult{}, fmt.Errorf("%w: %s: %w", ErrAnalysisFailure, spec.Type, err)
	}
	r.logger.Info("Analysis complete", "type", spec.Type, "findings", len(result.Findings))
	return result, nil
}

func (r *run) analysisRecord(spec AnalysisSpec, result AnalysisResult) AnalysisLinkRecord {
	foundAt := r.engine.Now()
	rec := AnalysisLinkRecord{
		Type:          spec.Type,
		Description:   spec.Description,
		KeySources:    []LinkRecord{},
		FindingsCount: len(result.Findings),
		Status:        StatusCompleted,
	}
	for _, ks := range result.KeySources {
		if strings.TrimSpace(ks.URL) == "" {
			continue
		}
		rec.KeySources = append(rec.KeySources, LinkRecord{
			Title:     ks.Title,
			URL:       ks.URL,
			Relevance: clampUnit(ks.Relevance),
			Domain:    DomainOf(ks.URL),
			FoundAt:   foundAt,
		})
	}
	return rec
}

func (r *run) reportPhase(ctx context.Context, snap ResearchSnapshot, searches []searchOutcome, analyses []analysisOutcome) (*Result, error) {
	e := r.engine
	r.logger.Info("Compiling final report")

	if err := e.Store.SaveSnapshot(ctx, r.req.RunID, snap, PhaseReporting, r.progress); err != nil {
		return nil, r.fail(ctx, ReportStep, fmt.Errorf("failed to persist research state: %w", err))
	}
	r.emitStepStart(ReportStepUpdate(StatusRunning, 0))
	r.emit(StatusChangeData{Status: PhaseReporting})

	sources := CollectSources(snap)

	callCtx, cancel := withTimeout(ctx, e.Config.ReportTimeout)
	defer cancel()

	var streamed strings.Builder
	full, err := e.Model.StreamText(callCtx, TextRequest{
		System: reportSystemPrompt,
		Prompt: reportPrompt(r.req.Topic, e.corpus(searches), analyses, sources),
	}, func(chunk string) error {
		if chunk == "" {
			return nil
		}
		streamed.WriteString(chunk)
		r.emit(ReportChunkData{Chunk: chunk})
		return nil
	})
	if err != nil {
		return nil, r.fail(ctx, ReportStep, fmt.Errorf("%w: %w", ErrReportFailure, err))
	}
	if full == "" {
		full = streamed.String()
	}

	snap = snap.WithCompletionRate(100)
	if err := e.Store.CompleteRun(ctx, r.req.RunID, snap, full, sources); err != nil {
		return nil, r.fail(ctx, ReportStep, fmt.Errorf("failed to persist report: %w", err))
	}

	r.emitStepComplete(ReportStepUpdate(StatusCompleted, len(sources)))
	r.setProgress(100)
	r.emit(ReportCompleteData{FullReport: full, Sources: sources})
	r.emit(StatusChangeData{Status: PhaseComplete})

	r.logger.Info("Research run complete", "report_length", len(full), "sources", len(sources))
	return &Result{RunID: r.req.RunID, Report: full, Sources: sources, Snapshot: snap}, nil
}

// fail records the terminal error and emits the single error frame of the
// run. State already persisted is left in place.
func (r *run) fail(ctx context.Context, step int, err error) error {
	r.logger.Error("Research run failed", "step", step, "error", err)
	msg := userMessage(err)
	// The run context may be the reason for the failure; the failure itself
	// still has to be recorded.
	if ferr := r.engine.Store.FailRun(context.WithoutCancel(ctx), r.req.RunID, msg); ferr != nil {
		r.logger.Error("Failed to persist run failure", "error", ferr)
	}
	r.emit(ErrorData{Message: msg, Step: step})
	return err
}

// userMessage is the error text shown to observers. The sentinel's own text
// is replaced by its display prefix rather than repeated.
func userMessage(err error) string {
	prefix, sentinel := "Research failed", error(nil)
	switch {
	case errors.Is(err, ErrPlanningFailure):
		prefix, sentinel = "Research planning failed", ErrPlanningFailure
	case errors.Is(err, ErrAnalysisFailure):
		prefix, sentinel = "Analysis failed", ErrAnalysisFailure
	case errors.Is(err, ErrReportFailure):
		prefix, sentinel = "Report generation failed", ErrReportFailure
	}
	detail := err.Error()
	if sentinel != nil {
		detail = strings.TrimPrefix(detail, sentinel.Error())
		detail = strings.TrimPrefix(detail, ": ")
	}
	if detail == "" {
		return prefix
	}
	return prefix + ": " + detail
}

// generateWithRetry asks the model for a structured object and validates it.
// Each attempt gets its own timeout; a timeout counts as a failed attempt.
func (e *Engine) generateWithRetry(ctx context.Context, logger *slog.Logger, timeout time.Duration, req ObjectRequest, validator func(string) error) (string, error) {
	var lastErr error

	for i := 0; i < e.Config.MaxRetries; i++ {
		if i > 0 {
			logger.Warn("Retrying LLM generation", "request", req.Name, "attempt", i+1, "last_error", lastErr)
			if err := sleepContext(ctx, e.Config.RetryBackoff*time.Duration(i)); err != nil {
				return "", err
			}
		}

		callCtx, cancel := withTimeout(ctx, timeout)
		content, err := e.Model.GenerateObject(callCtx, req)
		cancel()
		if err != nil {
			lastErr = fmt.Errorf("llm generation failed: %w", err)
			continue
		}

		if err := validator(content); err != nil {
			lastErr = fmt.Errorf("validation failed: %w", err)
			continue
		}

		return content, nil
	}

	return "", fmt.Errorf("operation failed after %d attempts: %w", e.Config.MaxRetries, lastErr)
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func clampUnit(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
