// Package submission scores a questionnaire when an assessment is submitted
// and queues the follow-up policy evaluation.
package submission

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"sengol/internal/domain"
	"sengol/internal/metrics"
	"sengol/internal/ports"
	"sengol/internal/scoring"
)

var tracer = otel.Tracer("sengol.services.submission")

// ErrNotFound is returned when the assessment does not exist in scope.
var ErrNotFound = ports.ErrNotFound

type Options struct {
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

type Service struct {
	assessments ports.AssessmentRepository
	jobs        ports.JobRepository
	log         *slog.Logger
	metrics     *metrics.Metrics
}

func New(assessments ports.AssessmentRepository, jobs ports.JobRepository, opts Options) *Service {
	s := &Service{assessments: assessments, jobs: jobs, log: opts.Logger, metrics: opts.Metrics}
	if s.log == nil {
		s.log = slog.Default()
	}
	return s
}

// Submit scores the assessment, stores the scores merged over the previous
// ones and marks it submitted. Scoring problems are logged and counted but
// never fail the call; only a failure to mark the assessment submitted does.
func (s *Service) Submit(ctx context.Context, scope domain.Scope, assessmentID string) (domain.SubmissionResult, error) {
	ctx, span := tracer.Start(ctx, "submission.Submit")
	defer span.End()
	span.SetAttributes(attribute.String("assessment.id", assessmentID))

	a, err := s.assessments.Get(ctx, scope, assessmentID)
	if err != nil {
		span.RecordError(err)
		return domain.SubmissionResult{}, fmt.Errorf("load assessment %s: %w", assessmentID, err)
	}
	prior := a.Scores
	stored := prior

	computed, err := s.score(ctx, scope, assessmentID)
	if err != nil {
		s.metrics.ScoringFailed()
		s.log.Error("scoring failed, keeping stored scores",
			"assessment_id", assessmentID, "account_id", scope.AccountID, "error", err)
		span.RecordError(err)
	} else {
		merged := computed.Merge(prior)
		if err := s.assessments.SaveScores(ctx, scope, assessmentID, merged); err != nil {
			s.metrics.ScoringFailed()
			s.log.Error("store scores failed, keeping stored scores",
				"assessment_id", assessmentID, "account_id", scope.AccountID, "error", err)
			span.RecordError(err)
		} else {
			stored = merged
		}
	}

	if err := s.assessments.MarkSubmitted(ctx, scope, assessmentID); err != nil {
		span.SetStatus(codes.Error, "mark submitted")
		return domain.SubmissionResult{}, fmt.Errorf("mark assessment %s submitted: %w", assessmentID, err)
	}

	res := domain.SubmissionResult{Scores: stored}
	if s.jobs != nil {
		jobID, err := s.jobs.Enqueue(ctx, scope, assessmentID, nil)
		if err != nil {
			s.log.Warn("enqueue policy evaluation failed", "assessment_id", assessmentID, "error", err)
		} else {
			res.EvaluationJobID = jobID
		}
	}
	s.log.Info("assessment submitted",
		"assessment_id", assessmentID,
		"account_id", scope.AccountID,
		"risk", intOrNil(stored.RiskScore),
		"compliance", intOrNil(stored.ComplianceScore),
		"composite", intOrNil(stored.SengolScore))
	return res, nil
}

// score never panics into the caller; a panic in a payload handler becomes
// an error like any other scoring failure.
func (s *Service) score(ctx context.Context, scope domain.Scope, assessmentID string) (scores domain.AssessmentScores, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scoring panic: %v", r)
		}
	}()

	data, err := s.assessments.Questionnaire(ctx, scope, assessmentID)
	if err != nil {
		return domain.AssessmentScores{}, fmt.Errorf("load questionnaire: %w", err)
	}
	questions, qIssues := scoring.NormalizeQuestions(data.Questions)
	var responses []domain.Response
	var rIssues []*scoring.DataError
	if len(data.Responses) > 0 {
		responses, rIssues, err = scoring.DecodeResponses(data.Responses)
		if err != nil {
			return domain.AssessmentScores{}, err
		}
	}
	s.report(assessmentID, append(qIssues, rIssues...))
	return scoring.Assess(questions, responses), nil
}

func (s *Service) report(assessmentID string, issues []*scoring.DataError) {
	if len(issues) == 0 {
		return
	}
	s.metrics.DataIssue(len(issues))
	for _, is := range issues {
		s.log.Warn("dropped questionnaire item", "assessment_id", assessmentID, "question_id", is.QuestionID, "reason", is.Reason)
	}
}

// Latest returns the stored scores of an assessment.
func (s *Service) Latest(ctx context.Context, scope domain.Scope, assessmentID string) (domain.AssessmentScores, error) {
	a, err := s.assessments.Get(ctx, scope, assessmentID)
	if err != nil {
		return domain.AssessmentScores{}, err
	}
	return a.Scores, nil
}

func intOrNil(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}
