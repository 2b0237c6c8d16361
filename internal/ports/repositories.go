package ports

import (
	"context"
	"encoding/json"

	"sengol/internal/domain"
	"sengol/internal/policy"
)

// ErrNotFound is returned by repositories when the requested row is missing.
var ErrNotFound = errString("not found")

type errString string

func (e errString) Error() string { return string(e) }

// PolicyRepository loads policy definitions for an account.
type PolicyRepository interface {
	// ListEvaluable returns the non-archived policies in scope. When ids is
	// non-empty only those policies are returned (still excluding archived).
	ListEvaluable(ctx context.Context, scope domain.Scope, ids []string) ([]policy.Definition, error)
	Get(ctx context.Context, scope domain.Scope, policyID string) (policy.Definition, error)
}

// ViolationWrite is a request to open a violation for a (policy, assessment) pair.
type ViolationWrite struct {
	AccountID    string
	PolicyID     string
	AssessmentID string
	Severity     domain.Severity
	Evidence     []domain.EvidenceEntry
}

// ViolationStore persists violation records.
type ViolationStore interface {
	// UpsertOpen atomically creates an OPEN violation unless an OPEN or
	// ACKNOWLEDGED one already exists for the pair. created reports which
	// happened; rec is the new or the existing record.
	UpsertOpen(ctx context.Context, w ViolationWrite) (rec domain.ViolationRecord, created bool, err error)
}

// QuestionnaireData is the raw stored questionnaire of one assessment. The
// payloads keep whatever field names the questionnaire step wrote.
type QuestionnaireData struct {
	Questions []map[string]any
	Responses json.RawMessage
}

// AssessmentRepository reads assessments and records submission results.
type AssessmentRepository interface {
	Get(ctx context.Context, scope domain.Scope, assessmentID string) (domain.Assessment, error)
	Questionnaire(ctx context.Context, scope domain.Scope, assessmentID string) (QuestionnaireData, error)
	SaveScores(ctx context.Context, scope domain.Scope, assessmentID string, scores domain.AssessmentScores) error
	MarkSubmitted(ctx context.Context, scope domain.Scope, assessmentID string) error
}
