package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sengol/internal/domain"
)

func ptr[T any](v T) *T { return &v }

func TestScoreWeightedExample(t *testing.T) {
	questions := []domain.Question{{ID: "q1", Weight: 0.8}, {ID: "q2", Weight: 0.4}}
	responses := []domain.Response{
		{QuestionID: "q1", Status: domain.StatusNotAddressed},
		{QuestionID: "q2", Status: domain.StatusAddressed},
	}

	got := Score(questions, responses, domain.DomainRisk)
	require.NotNil(t, got)
	assert.Equal(t, 60, *got)
}

func TestScoreComplianceInvertsBaseline(t *testing.T) {
	questions := []domain.Question{{ID: "q1", Weight: 0.8}, {ID: "q2", Weight: 0.4}}
	responses := []domain.Response{
		{QuestionID: "q1", Status: domain.StatusNotAddressed},
		{QuestionID: "q2", Status: domain.StatusAddressed},
	}

	// (20*0.8 + 80*0.4) / 1.2 = 40
	got := Score(questions, responses, domain.DomainCompliance)
	require.NotNil(t, got)
	assert.Equal(t, 40, *got)
}

func TestScoreImportanceScaleWeights(t *testing.T) {
	questions := []domain.Question{{ID: "q1", Weight: 8}, {ID: "q2", Weight: 4}, {ID: "q3", Weight: 25}}
	responses := []domain.Response{
		{QuestionID: "q1", Status: domain.StatusNotAddressed},
		{QuestionID: "q2", Status: domain.StatusAddressed},
	}
	got := Score(questions, responses, domain.DomainRisk)
	require.NotNil(t, got)
	assert.Equal(t, 60, *got)

	assert.Equal(t, 1.0, NormalizeWeight(25))
	assert.Equal(t, 0.8, NormalizeWeight(8))
	assert.Equal(t, 0.5, NormalizeWeight(0.5))
	assert.Equal(t, 1.0, NormalizeWeight(1))
	assert.Equal(t, 0.0, NormalizeWeight(-3))
}

func TestScoreOverrides(t *testing.T) {
	questions := []domain.Question{{ID: "q1", Weight: 1}, {ID: "q2", Weight: 1}}
	responses := []domain.Response{
		{QuestionID: "q1", Status: domain.StatusAddressed, RiskOverride: ptr(90.0), ComplianceOverride: ptr(35.0)},
		{QuestionID: "q2", Status: domain.StatusAddressed},
	}

	risk := Score(questions, responses, domain.DomainRisk)
	require.NotNil(t, risk)
	assert.Equal(t, 55, *risk) // (90+20)/2

	compliance := Score(questions, responses, domain.DomainCompliance)
	require.NotNil(t, compliance)
	assert.Equal(t, 58, *compliance) // (35+80)/2 = 57.5 rounds up
}

func TestScoreNotApplicableExcluded(t *testing.T) {
	questions := []domain.Question{{ID: "q1", Weight: 1}, {ID: "q2", Weight: 1}}
	withNA := []domain.Response{
		{QuestionID: "q1", Status: domain.StatusPartiallyAddressed},
		{QuestionID: "q2", Status: domain.StatusNotApplicable, RiskOverride: ptr(100.0)},
	}
	withoutNA := withNA[:1]

	assert.Equal(t, Score(questions, withoutNA, domain.DomainRisk), Score(questions, withNA, domain.DomainRisk))
	assert.Equal(t, 50, *Score(questions, withNA, domain.DomainRisk))

	onlyNA := []domain.Response{{QuestionID: "q2", Status: domain.StatusNotApplicable}}
	assert.Nil(t, Score(questions, onlyNA, domain.DomainRisk))
}

func TestScoreUnweightedFallback(t *testing.T) {
	responses := []domain.Response{
		{QuestionID: "q1", RiskOverride: ptr(10.0)},
		{QuestionID: "q2", RiskOverride: ptr(40.0)},
		{QuestionID: "q3", RiskOverride: ptr(75.0)},
	}

	got := Score(nil, responses, domain.DomainRisk)
	require.NotNil(t, got)
	assert.Equal(t, 42, *got) // 125/3 = 41.67

	zeroWeights := []domain.Question{{ID: "q1", Weight: 0}, {ID: "q2", Weight: 0}}
	assert.Equal(t, got, Score(zeroWeights, responses, domain.DomainRisk))
}

func TestScoreNothingUsable(t *testing.T) {
	assert.Nil(t, Score(nil, nil, domain.DomainRisk))
	assert.Nil(t, Score([]domain.Question{{ID: "q1", Weight: 1}}, nil, domain.DomainCompliance))
	assert.Nil(t, Score(nil, []domain.Response{{QuestionID: "q1"}}, domain.DomainRisk))
}

func TestScoreBoundedAndPure(t *testing.T) {
	questions := []domain.Question{{ID: "a", Weight: 0.3}, {ID: "b", Weight: 7}, {ID: "c", Weight: 0}}
	statuses := []domain.ResponseStatus{
		domain.StatusAddressed, domain.StatusPartiallyAddressed, domain.StatusNotAddressed, domain.StatusNotApplicable, "",
	}
	for _, sa := range statuses {
		for _, sb := range statuses {
			for _, override := range []*float64{nil, ptr(0.0), ptr(100.0)} {
				responses := []domain.Response{
					{QuestionID: "a", Status: sa, RiskOverride: override},
					{QuestionID: "b", Status: sb},
					{QuestionID: "c", Status: domain.StatusAddressed, ComplianceOverride: override},
				}
				before := append([]domain.Response(nil), responses...)
				for _, d := range []domain.ScoreDomain{domain.DomainRisk, domain.DomainCompliance} {
					got := Score(questions, responses, d)
					if got != nil {
						assert.GreaterOrEqual(t, *got, 0)
						assert.LessOrEqual(t, *got, 100)
					}
					assert.Equal(t, got, Score(questions, responses, d))
				}
				assert.Equal(t, before, responses)
			}
		}
	}
}

func TestRoundHalfUp(t *testing.T) {
	assert.Equal(t, 3, roundHalfUp(2.5))
	assert.Equal(t, 2, roundHalfUp(2.49))
	assert.Equal(t, 0, roundHalfUp(0))
	assert.Equal(t, 100, roundHalfUp(99.5))
}

func TestCompositeExample(t *testing.T) {
	got := Composite(ptr(60), ptr(70))
	require.NotNil(t, got.Score)
	require.NotNil(t, got.Grade)
	assert.Equal(t, 52, *got.Score)
	assert.Equal(t, "F", *got.Grade)
}

func TestCompositeMissingInput(t *testing.T) {
	assert.Equal(t, CompositeResult{}, Composite(nil, ptr(70)))
	assert.Equal(t, CompositeResult{}, Composite(ptr(60), nil))
	assert.Equal(t, CompositeResult{}, Composite(nil, nil))
}

func TestCompositeMonotonic(t *testing.T) {
	for risk := 0; risk <= 100; risk += 5 {
		prev := -1
		for compliance := 0; compliance <= 100; compliance++ {
			s := *Composite(ptr(risk), ptr(compliance)).Score
			assert.GreaterOrEqual(t, s, prev, "risk=%d compliance=%d", risk, compliance)
			prev = s
		}
	}
	for compliance := 0; compliance <= 100; compliance += 5 {
		prev := 101
		for risk := 0; risk <= 100; risk++ {
			s := *Composite(ptr(risk), ptr(compliance)).Score
			assert.LessOrEqual(t, s, prev, "risk=%d compliance=%d", risk, compliance)
			prev = s
		}
	}
}

func TestGradeBoundaries(t *testing.T) {
	cases := map[int]string{100: "A", 90: "A", 89: "B", 80: "B", 79: "C", 70: "C", 69: "D", 60: "D", 59: "F", 0: "F"}
	for score, want := range cases {
		got := GradeFor(ptr(score))
		require.NotNil(t, got)
		assert.Equal(t, want, *got, "score %d", score)
	}
	assert.Nil(t, GradeFor(nil))
}

func TestAssess(t *testing.T) {
	questions := []domain.Question{{ID: "q1", Weight: 0.8}, {ID: "q2", Weight: 0.4}}
	responses := []domain.Response{
		{QuestionID: "q1", Status: domain.StatusNotAddressed},
		{QuestionID: "q2", Status: domain.StatusAddressed},
	}
	got := Assess(questions, responses)
	assert.Equal(t, 60, *got.RiskScore)
	assert.Equal(t, 40, *got.ComplianceScore)
	// health 40*0.6 + 40*0.4 = 40
	assert.Equal(t, 40, *got.SengolScore)
	assert.Equal(t, "F", *got.LetterGrade)

	empty := Assess(nil, nil)
	assert.True(t, empty.Empty())
}
