package domain

import "time"

// Severity is the ordinal classification attached to a policy and copied
// onto its violations.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

var severityRank = map[Severity]int{
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// Rank orders severities; unknown values rank 0.
func (s Severity) Rank() int { return severityRank[s] }

type PolicyStatus string

const (
	PolicyDraft    PolicyStatus = "DRAFT"
	PolicyActive   PolicyStatus = "ACTIVE"
	PolicyInactive PolicyStatus = "INACTIVE"
	PolicyArchived PolicyStatus = "ARCHIVED"
)

type ViolationStatus string

const (
	ViolationOpen         ViolationStatus = "OPEN"
	ViolationAcknowledged ViolationStatus = "ACKNOWLEDGED"
	ViolationResolved     ViolationStatus = "RESOLVED"
	ViolationDismissed    ViolationStatus = "DISMISSED"
)

// Blocking reports whether a violation in this status prevents a new OPEN
// record for the same (policy, assessment) pair.
func (s ViolationStatus) Blocking() bool {
	return s == ViolationOpen || s == ViolationAcknowledged
}

// EvidenceEntry records one visited leaf condition.
type EvidenceEntry struct {
	Field         string `json:"field"`
	Operator      string `json:"operator"`
	ExpectedValue any    `json:"expectedValue"`
	ActualValue   any    `json:"actualValue"`
	Result        bool   `json:"result"`
}

type ViolationRecord struct {
	ID           string
	AccountID    string
	PolicyID     string
	AssessmentID string
	Severity     Severity
	Status       ViolationStatus
	Evidence     []EvidenceEntry
	DetectedAt   time.Time
}
