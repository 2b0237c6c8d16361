// Package scoring turns questionnaire responses into risk, compliance and
// composite scores. Everything here is pure: inputs are never mutated and the
// same inputs always produce the same output.
package scoring

import (
	"math"

	"sengol/internal/domain"
)

// Risk baselines per status. Compliance uses 100 minus the risk baseline.
var riskBaseline = map[domain.ResponseStatus]float64{
	domain.StatusAddressed:          20,
	domain.StatusPartiallyAddressed: 50,
	domain.StatusNotAddressed:       80,
}

// NormalizeWeight maps a raw weight onto [0,1]. Values above 1 are read as a
// 0-10 importance scale.
func NormalizeWeight(raw float64) float64 {
	if math.IsNaN(raw) || raw <= 0 {
		return 0
	}
	if raw > 1 {
		return math.Min(raw/10, 1.0)
	}
	return math.Min(raw, 1.0)
}

// ResponseScore returns the score a response contributes to the given domain
// and whether it contributes at all. not_applicable never contributes.
func ResponseScore(r domain.Response, d domain.ScoreDomain) (float64, bool) {
	if r.Status == domain.StatusNotApplicable {
		return 0, false
	}
	base, hasBase := riskBaseline[r.Status]
	switch d {
	case domain.DomainCompliance:
		if r.ComplianceOverride != nil {
			return *r.ComplianceOverride, true
		}
		if hasBase {
			return 100 - base, true
		}
	default:
		if r.RiskOverride != nil {
			return *r.RiskOverride, true
		}
		if hasBase {
			return base, true
		}
	}
	return 0, false
}

// Score computes the weighted aggregate for one domain.
//
// Responses are weighted by the normalized weight of their catalog question.
// When no usable response carries weight (empty catalog, zero weights, or
// unknown questions) the result falls back to the unweighted mean of the
// usable scores. Nil means nothing was usable.
func Score(questions []domain.Question, responses []domain.Response, d domain.ScoreDomain) *int {
	weights := make(map[string]float64, len(questions))
	for _, q := range questions {
		weights[q.ID] = NormalizeWeight(q.Weight)
	}

	var weightedSum, totalWeight, plainSum float64
	var usable int
	for _, r := range responses {
		s, ok := ResponseScore(r, d)
		if !ok {
			continue
		}
		usable++
		plainSum += s
		if w := weights[r.QuestionID]; w > 0 {
			weightedSum += s * w
			totalWeight += w
		}
	}

	switch {
	case totalWeight > 0:
		return roundScore(weightedSum / totalWeight)
	case usable > 0:
		return roundScore(plainSum / float64(usable))
	default:
		return nil
	}
}

// roundHalfUp rounds .5 away from zero for the non-negative range scores live in.
func roundHalfUp(v float64) int {
	return int(math.Floor(v + 0.5))
}

func roundScore(v float64) *int {
	n := roundHalfUp(v)
	if n < 0 {
		n = 0
	}
	if n > 100 {
		n = 100
	}
	return &n
}
