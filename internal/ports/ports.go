package ports

import (
	"context"

	"sengol/internal/domain"
)

// Submissions scores submitted assessments and serves their latest scores.
type Submissions interface {
	Submit(ctx context.Context, scope domain.Scope, assessmentID string) (domain.SubmissionResult, error)
	Latest(ctx context.Context, scope domain.Scope, assessmentID string) (domain.AssessmentScores, error)
}

// Evaluator runs policies against an assessment snapshot.
type Evaluator interface {
	EvaluateAll(ctx context.Context, scope domain.Scope, assessmentID string, snap domain.Snapshot, policyIDs []string) (domain.BatchResult, error)
	EvaluateOne(ctx context.Context, scope domain.Scope, policyID string, snap domain.Snapshot) (domain.SingleResult, error)
}
