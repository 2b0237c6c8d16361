package ports

import (
	"context"

	"sengol/internal/domain"
)

// EvaluationJob asks for all policies of an account to be evaluated against
// one assessment.
type EvaluationJob struct {
	ID           string
	AccountID    string
	AssessmentID string
	PolicyIDs    []string
}

// JobRepository supports enqueuing, claiming and finishing evaluation jobs.
type JobRepository interface {
	Enqueue(ctx context.Context, scope domain.Scope, assessmentID string, policyIDs []string) (jobID string, err error)
	ClaimNext(ctx context.Context) (job EvaluationJob, found bool, err error)
	MarkCompleted(ctx context.Context, jobID string, summary string) error
	MarkFailed(ctx context.Context, jobID string, reason string) error
}
