// Package evaluation fans policies out over the condition evaluator and
// records violations for the ones that fire.
package evaluation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"sengol/internal/domain"
	"sengol/internal/metrics"
	"sengol/internal/policy"
	"sengol/internal/ports"
)

var tracer = otel.Tracer("sengol.services.evaluation")

const (
	DefaultMaxConcurrency = 16
	DefaultBatchTimeout   = 30 * time.Second
)

// ErrBatchTimeout is returned with a partial domain.BatchResult when the batch
// deadline passes before every policy was reached.
var ErrBatchTimeout = errors.New("policy evaluation batch timed out")

// PersistenceError wraps a failed violation write for one policy.
type PersistenceError struct {
	PolicyID     string
	AssessmentID string
	Err          error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("record violation for policy %s on assessment %s: %v", e.PolicyID, e.AssessmentID, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

type Options struct {
	Interpretation policy.Interpretation
	// MaxConcurrency caps simultaneous policy evaluations; <=0 means DefaultMaxConcurrency.
	MaxConcurrency int
	// BatchTimeout is the overall deadline of EvaluateAll; <=0 means DefaultBatchTimeout.
	BatchTimeout time.Duration
	Logger       *slog.Logger
	Metrics      *metrics.Metrics
	Clock        func() time.Time
}

type Service struct {
	policies   ports.PolicyRepository
	violations ports.ViolationStore
	interp     policy.Interpretation
	limit      int
	timeout    time.Duration
	log        *slog.Logger
	metrics    *metrics.Metrics
	now        func() time.Time
}

func New(policies ports.PolicyRepository, violations ports.ViolationStore, opts Options) *Service {
	s := &Service{
		policies:   policies,
		violations: violations,
		interp:     opts.Interpretation,
		limit:      opts.MaxConcurrency,
		timeout:    opts.BatchTimeout,
		log:        opts.Logger,
		metrics:    opts.Metrics,
		now:        opts.Clock,
	}
	if s.interp == "" {
		s.interp = policy.InterpretViolation
	}
	if s.limit <= 0 {
		s.limit = DefaultMaxConcurrency
	}
	if s.timeout <= 0 {
		s.timeout = DefaultBatchTimeout
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// EvaluateAll evaluates every non-archived policy in scope (or the given
// subset) against snap and opens violations for the ones that fire.
//
// Per-policy failures are reported in the result, never returned. The
// returned error is non-nil only when the policies could not be loaded, or
// wraps ErrBatchTimeout alongside a partial result when the deadline left
// policies unstarted or cut off their violation writes.
func (s *Service) EvaluateAll(ctx context.Context, scope domain.Scope, assessmentID string, snap domain.Snapshot, policyIDs []string) (domain.BatchResult, error) {
	ctx, span := tracer.Start(ctx, "evaluation.EvaluateAll", trace.WithAttributes(
		attribute.String("assessment.id", assessmentID),
		attribute.Int("policy.subset", len(policyIDs)),
	))
	defer span.End()

	start := s.now()
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	defs, err := s.policies.ListEvaluable(ctx, scope, policyIDs)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "load policies")
		return domain.BatchResult{}, fmt.Errorf("load policies: %w", err)
	}

	reached := make([]*domain.PolicyOutcome, len(defs))
	var g errgroup.Group
	g.SetLimit(s.limit)
	for i, def := range defs {
		if ctx.Err() != nil {
			break
		}
		i, def := i, def
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			out := s.evaluatePolicy(ctx, scope, assessmentID, snap, def)
			reached[i] = &out
			return nil
		})
	}
	_ = g.Wait()

	res := domain.BatchResult{
		AssessmentID:  assessmentID,
		TotalPolicies: len(defs),
		Results:       make([]domain.PolicyOutcome, 0, len(defs)),
		EvaluatedAt:   s.now().UTC(),
	}
	// interrupted counts policies whose write was cut off by the batch context
	interrupted := 0
	for _, out := range reached {
		if out == nil {
			continue
		}
		if errors.Is(out.Cause, context.DeadlineExceeded) || errors.Is(out.Cause, context.Canceled) {
			interrupted++
		}
		switch out.Outcome {
		case domain.OutcomeViolated:
			res.ViolatedCount++
		case domain.OutcomeEvaluated:
			res.PassedCount++
		default:
			res.ErrorCount++
		}
		res.Results = append(res.Results, *out)
	}
	incomplete := len(res.Results) < len(defs) || interrupted > 0
	res.TimedOut = incomplete && errors.Is(ctx.Err(), context.DeadlineExceeded)

	s.metrics.ObserveBatch(s.now().Sub(start), res.TimedOut)
	span.SetAttributes(
		attribute.Int("policy.total", res.TotalPolicies),
		attribute.Int("policy.violated", res.ViolatedCount),
		attribute.Int("policy.errors", res.ErrorCount),
	)

	if res.TimedOut {
		s.log.Warn("policy evaluation batch timed out",
			"assessment_id", assessmentID,
			"reached", len(res.Results),
			"interrupted", interrupted,
			"total", len(defs),
			"timeout", s.timeout)
		span.SetStatus(codes.Error, "timeout")
		return res, fmt.Errorf("assessment %s: %w", assessmentID, ErrBatchTimeout)
	}
	if err := ctx.Err(); err != nil && incomplete {
		span.SetStatus(codes.Error, "canceled")
		return res, fmt.Errorf("assessment %s: %w", assessmentID, err)
	}
	return res, nil
}

func (s *Service) evaluatePolicy(ctx context.Context, scope domain.Scope, assessmentID string, snap domain.Snapshot, def policy.Definition) domain.PolicyOutcome {
	out := domain.PolicyOutcome{PolicyID: def.ID, Severity: def.Severity, State: domain.StatePending}

	if err := policy.ValidateDefinition(def); err != nil {
		out.State = domain.StateInvalid
		s.fail(&out, assessmentID, err)
		return out
	}

	res := policy.EvaluateAs(def.Conditions, snap, s.interp)
	out.State = domain.StateEvaluated
	out.Violated = res.Violated
	out.Evidence = res.Evidence

	if !res.Violated {
		out.State = domain.StateNoViolation
		out.Outcome = domain.OutcomeEvaluated
		s.metrics.ObservePolicy(string(out.Outcome))
		return out
	}

	rec, created, err := s.violations.UpsertOpen(ctx, ports.ViolationWrite{
		AccountID:    scope.AccountID,
		PolicyID:     def.ID,
		AssessmentID: assessmentID,
		Severity:     def.Severity,
		Evidence:     res.Evidence,
	})
	if err != nil {
		out.State = domain.StateRecordFailed
		s.fail(&out, assessmentID, &PersistenceError{PolicyID: def.ID, AssessmentID: assessmentID, Err: err})
		return out
	}

	out.State = domain.StateViolationRecorded
	out.Outcome = domain.OutcomeViolated
	out.ViolationID = rec.ID
	out.NewViolation = created
	if created {
		s.metrics.ViolationCreated()
	}
	s.metrics.ObservePolicy(string(out.Outcome))
	return out
}

func (s *Service) fail(out *domain.PolicyOutcome, assessmentID string, err error) {
	out.Outcome = domain.OutcomeError
	out.Error = err.Error()
	out.Cause = err
	s.metrics.ObservePolicy(string(out.Outcome))
	s.log.Warn("policy evaluation failed",
		"policy_id", out.PolicyID,
		"assessment_id", assessmentID,
		"state", out.State,
		"error", err)
}

// EvaluateOne evaluates a single policy without recording a violation.
// Invalid definitions return a *policy.ValidationError.
func (s *Service) EvaluateOne(ctx context.Context, scope domain.Scope, policyID string, snap domain.Snapshot) (domain.SingleResult, error) {
	ctx, span := tracer.Start(ctx, "evaluation.EvaluateOne", trace.WithAttributes(attribute.String("policy.id", policyID)))
	defer span.End()

	def, err := s.policies.Get(ctx, scope, policyID)
	if err != nil {
		span.RecordError(err)
		return domain.SingleResult{}, fmt.Errorf("load policy %s: %w", policyID, err)
	}
	if err := policy.ValidateDefinition(def); err != nil {
		span.RecordError(err)
		return domain.SingleResult{}, err
	}
	res := policy.EvaluateAs(def.Conditions, snap, s.interp)
	return domain.SingleResult{
		PolicyID:   def.ID,
		Violated:   res.Violated,
		Violations: res.Evidence,
		Severity:   def.Severity,
	}, nil
}
