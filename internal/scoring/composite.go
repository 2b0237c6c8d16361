package scoring

import "sengol/internal/domain"

const (
	riskHealthWeight = 0.6
	complianceWeight = 0.4
)

// Grade thresholds, inclusive lower bounds, highest first.
var gradeBands = []struct {
	min   int
	grade string
}{
	{90, "A"},
	{80, "B"},
	{70, "C"},
	{60, "D"},
}

// CompositeResult is the blended headline score and its letter grade.
// Both are nil when either input is missing.
type CompositeResult struct {
	Score *int
	Grade *string
}

// Composite blends inverted risk (risk health) with compliance.
func Composite(risk, compliance *int) CompositeResult {
	if risk == nil || compliance == nil {
		return CompositeResult{}
	}
	health := float64(100 - *risk)
	score := roundScore(health*riskHealthWeight + float64(*compliance)*complianceWeight)
	return CompositeResult{Score: score, Grade: GradeFor(score)}
}

// GradeFor maps a composite score onto A..F; nil maps to nil.
func GradeFor(score *int) *string {
	if score == nil {
		return nil
	}
	g := "F"
	for _, b := range gradeBands {
		if *score >= b.min {
			g = b.grade
			break
		}
	}
	return &g
}

// Assess runs both domain passes and the composite over one questionnaire.
func Assess(questions []domain.Question, responses []domain.Response) domain.AssessmentScores {
	risk := Score(questions, responses, domain.DomainRisk)
	compliance := Score(questions, responses, domain.DomainCompliance)
	c := Composite(risk, compliance)
	return domain.AssessmentScores{
		RiskScore:       risk,
		ComplianceScore: compliance,
		SengolScore:     c.Score,
		LetterGrade:     c.Grade,
	}
}
