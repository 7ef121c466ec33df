package cases

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/casecare/casecare/internal/platform/metrics"
)

// ValidationError reports a malformed client input and the offending field.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Service orchestrates the case lifecycle: it creates cases, detaches the
// analysis task, and drives status transitions.
type Service struct {
	repo      Repository
	generator InsightGenerator
	logger    zerolog.Logger
	metrics   *metrics.Metrics

	// sem bounds concurrent outbound analysis calls; wg lets shutdown
	// drain in-flight analyses.
	sem *semaphore.Weighted
	wg  sync.WaitGroup
}

func NewService(repo Repository, generator InsightGenerator, logger zerolog.Logger, m *metrics.Metrics, maxConcurrent int64) *Service {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Service{
		repo:      repo,
		generator: generator,
		logger:    logger,
		metrics:   m,
		sem:       semaphore.NewWeighted(maxConcurrent),
	}
}

// CreateCase validates the input, persists the case with status pending, and
// kicks off the analysis task. The returned case is what the caller sees
// immediately; analysis outcome is observed by polling GetCase.
func (s *Service) CreateCase(ctx context.Context, input *CreateCaseInput) (*Case, error) {
	if input.Title == "" {
		return nil, &ValidationError{Field: "title", Message: "title is required"}
	}
	if input.PatientName == "" {
		return nil, &ValidationError{Field: "patientName", Message: "patientName is required"}
	}
	if input.PatientAge != nil && *input.PatientAge < 0 {
		return nil, &ValidationError{Field: "patientAge", Message: "patientAge must be non-negative"}
	}

	cs := &Case{
		Title:         input.Title,
		PatientName:   input.PatientName,
		PatientAge:    input.PatientAge,
		ClinicalNotes: input.ClinicalNotes,
		Transcript:    input.Transcript,
		AudioURL:      input.AudioURL,
	}
	if err := s.repo.CreateCase(ctx, cs); err != nil {
		return nil, fmt.Errorf("create case: %w", err)
	}

	// Detached: the response path never waits on analysis, so the task
	// gets its own context rather than the request's.
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.analyze(context.Background(), cs.ID)
	}()

	return cs, nil
}

func (s *Service) GetCase(ctx context.Context, id uuid.UUID) (*CaseWithInsight, error) {
	return s.repo.GetCase(ctx, id)
}

func (s *Service) ListCases(ctx context.Context) ([]*Case, error) {
	return s.repo.ListCases(ctx)
}

func (s *Service) DeleteCase(ctx context.Context, id uuid.UUID) error {
	return s.repo.DeleteCase(ctx, id)
}

// Wait blocks until all in-flight analysis tasks finish. Called on shutdown
// so detached work is not cut off mid-write.
func (s *Service) Wait() {
	s.wg.Wait()
}

// advanceStatus applies one guarded lifecycle transition. It refuses moves
// the state machine does not permit, which also protects terminal states.
func (s *Service) advanceStatus(ctx context.Context, id uuid.UUID, next Status) (*Case, error) {
	cur, err := s.repo.GetCase(ctx, id)
	if err != nil {
		return nil, err
	}
	if !cur.Status.CanTransition(next) {
		return nil, fmt.Errorf("illegal status transition %s -> %s", cur.Status, next)
	}
	return s.repo.UpdateCaseStatus(ctx, id, next)
}

// analyze runs the single analysis attempt for one case. Every failure is
// absorbed here and recorded as a failed status; nothing propagates to any
// request path.
func (s *Service) analyze(ctx context.Context, id uuid.UUID) {
	log := s.logger.With().Str("case_id", id.String()).Logger()

	if err := s.sem.Acquire(ctx, 1); err != nil {
		log.Error().Err(err).Msg("failed to acquire analysis slot")
		return
	}
	defer s.sem.Release(1)

	start := time.Now()
	defer func() {
		s.metrics.AnalysisDuration.Observe(time.Since(start).Seconds())
	}()

	cs, err := s.advanceStatus(ctx, id, StatusAnalyzing)
	if err != nil {
		// Case deleted before the task started, or an illegal
		// transition. Either way there is nothing to analyze.
		log.Warn().Err(err).Msg("analysis aborted before start")
		return
	}

	data, err := s.generator.Generate(ctx, cs)
	if err != nil {
		log.Error().Err(err).Msg("insight generation failed")
		s.fail(ctx, id)
		return
	}

	// Re-check the case still exists: it may have been deleted while the
	// external call was in flight, and an insight must never be written
	// for a deleted case.
	if _, err := s.repo.GetCase(ctx, id); err != nil {
		log.Warn().Err(err).Msg("case gone before insight write, dropping result")
		return
	}

	ins := &Insight{
		CaseID:     id,
		Summary:    data.Summary,
		BlindSpots: data.BlindSpots,
		Questions:  data.Questions,
	}
	if data.OriginalLanguage != "" {
		ins.OriginalLanguage = &data.OriginalLanguage
	}
	if ins.BlindSpots == nil {
		ins.BlindSpots = []string{}
	}
	if ins.Questions == nil {
		ins.Questions = []string{}
	}

	if err := s.repo.CreateInsight(ctx, ins); err != nil {
		log.Error().Err(err).Msg("insight persistence failed")
		s.fail(ctx, id)
		return
	}

	if _, err := s.advanceStatus(ctx, id, StatusCompleted); err != nil {
		log.Error().Err(err).Msg("failed to mark case completed")
		return
	}

	s.metrics.AnalysesTotal.WithLabelValues(string(StatusCompleted)).Inc()
	log.Info().Msg("case analysis completed")
}

func (s *Service) fail(ctx context.Context, id uuid.UUID) {
	if _, err := s.advanceStatus(ctx, id, StatusFailed); err != nil {
		s.logger.Error().Err(err).Str("case_id", id.String()).Msg("failed to mark case failed")
		return
	}
	s.metrics.AnalysesTotal.WithLabelValues(string(StatusFailed)).Inc()
}
