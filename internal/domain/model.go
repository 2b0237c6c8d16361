package domain

import "time"

// Core domain models shared by scoring, policy evaluation and the adapters.
// Wire payloads are normalized into these shapes before any computation.

// ScoreDomain selects which aggregate the weighted scorer produces.
type ScoreDomain string

const (
	DomainRisk       ScoreDomain = "risk"
	DomainCompliance ScoreDomain = "compliance"
)

// ResponseStatus is the questionnaire answer state of a single question.
type ResponseStatus string

const (
	StatusAddressed          ResponseStatus = "addressed"
	StatusPartiallyAddressed ResponseStatus = "partially_addressed"
	StatusNotAddressed       ResponseStatus = "not_addressed"
	StatusNotApplicable      ResponseStatus = "not_applicable"
)

// Question is a catalog entry. Weight is the raw stored weight: either a
// 0-1 fraction or a 0-10 importance scale.
type Question struct {
	ID       string
	Weight   float64
	Category string
}

// Response is the canonical answer to a question. RiskOverride and
// ComplianceOverride carry explicit numeric scores when the payload had them.
type Response struct {
	QuestionID         string
	Status             ResponseStatus
	RiskOverride       *float64
	ComplianceOverride *float64
}

// AssessmentScores is the stored score set of an assessment. Every field is
// nullable; a nil never replaces a previously stored value.
type AssessmentScores struct {
	RiskScore       *int    `json:"riskScore"`
	ComplianceScore *int    `json:"complianceScore"`
	SengolScore     *int    `json:"sengolScore"`
	LetterGrade     *string `json:"letterGrade"`
}

// Merge returns s with every nil field filled from prior.
func (s AssessmentScores) Merge(prior AssessmentScores) AssessmentScores {
	out := s
	if out.RiskScore == nil {
		out.RiskScore = prior.RiskScore
	}
	if out.ComplianceScore == nil {
		out.ComplianceScore = prior.ComplianceScore
	}
	// composite and grade travel together
	if out.SengolScore == nil {
		out.SengolScore = prior.SengolScore
		out.LetterGrade = prior.LetterGrade
	}
	return out
}

// Empty reports whether no score is set.
func (s AssessmentScores) Empty() bool {
	return s.RiskScore == nil && s.ComplianceScore == nil && s.SengolScore == nil && s.LetterGrade == nil
}

// Snapshot is the flat, read-only attribute bag a policy is evaluated against.
type Snapshot map[string]any

// Lookup returns the value for field. A key that is missing or holds nil is
// reported absent.
func (s Snapshot) Lookup(field string) (any, bool) {
	if s == nil {
		return nil, false
	}
	v, ok := s[field]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

type Assessment struct {
	ID          string
	AccountID   string
	Status      string // draft|submitted
	SubmittedAt *time.Time
	Attributes  map[string]any
	Scores      AssessmentScores
}

// Scope carries the request-scoped identifiers used only to scope persistence.
type Scope struct {
	AccountID string
	UserID    string
}
