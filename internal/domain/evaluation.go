package domain

import "time"

// Outcome is the per-policy verdict reported in a batch.
type Outcome string

const (
	OutcomeEvaluated Outcome = "evaluated"
	OutcomeViolated  Outcome = "violated"
	OutcomeError     Outcome = "error"
)

// PolicyState tracks one policy through a batch:
// PENDING -> EVALUATED -> VIOLATION_RECORDED | NO_VIOLATION | RECORD_FAILED.
// INVALID is terminal for definitions that fail validation.
type PolicyState string

const (
	StatePending           PolicyState = "PENDING"
	StateEvaluated         PolicyState = "EVALUATED"
	StateViolationRecorded PolicyState = "VIOLATION_RECORDED"
	StateNoViolation       PolicyState = "NO_VIOLATION"
	StateRecordFailed      PolicyState = "RECORD_FAILED"
	StateInvalid           PolicyState = "INVALID"
)

// Terminal reports whether no further transition happens within the batch.
func (s PolicyState) Terminal() bool {
	switch s {
	case StateViolationRecorded, StateNoViolation, StateRecordFailed, StateInvalid:
		return true
	}
	return false
}

// PolicyOutcome is the per-policy entry of a batch.
type PolicyOutcome struct {
	PolicyID     string          `json:"policyId"`
	Outcome      Outcome         `json:"outcome"`
	State        PolicyState     `json:"state"`
	Severity     Severity        `json:"severity"`
	Violated     bool            `json:"violated"`
	ViolationID  string          `json:"violationId,omitempty"`
	NewViolation bool            `json:"newViolation,omitempty"`
	Evidence     []EvidenceEntry `json:"evidence,omitempty"`
	Error        string          `json:"error,omitempty"`

	// Cause is the error behind an OutcomeError entry. It is not serialized.
	Cause error `json:"-"`
}

// Err returns the underlying error of an OutcomeError entry.
func (o PolicyOutcome) Err() error { return o.Cause }

// BatchResult is the output of evaluating every policy of an account
// against one assessment.
type BatchResult struct {
	AssessmentID  string          `json:"assessmentId"`
	TotalPolicies int             `json:"totalPolicies"`
	ViolatedCount int             `json:"violatedCount"`
	PassedCount   int             `json:"passedCount"`
	ErrorCount    int             `json:"errorCount"`
	TimedOut      bool            `json:"timedOut,omitempty"`
	Results       []PolicyOutcome `json:"results"`
	EvaluatedAt   time.Time       `json:"evaluatedAt"`
}

// SingleResult is the output of evaluating one policy without recording.
type SingleResult struct {
	PolicyID   string          `json:"policyId"`
	Violated   bool            `json:"violated"`
	Violations []EvidenceEntry `json:"violations"`
	Severity   Severity        `json:"severity"`
}

// SubmissionResult is what a submit call returns. EvaluationJobID is empty
// when the evaluation job could not be queued.
type SubmissionResult struct {
	Scores          AssessmentScores `json:"scores"`
	EvaluationJobID string           `json:"evaluationJobId,omitempty"`
}
