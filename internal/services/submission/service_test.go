package submission

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sengol/internal/adapters/memory"
	"sengol/internal/domain"
	"sengol/internal/metrics"
	"sengol/internal/ports"
)

var scope = domain.Scope{AccountID: "acct-1", UserID: "user-1"}

func intp(v int) *int       { return &v }
func strp(v string) *string { return &v }

var questions = []map[string]any{
	{"id": "q1", "finalWeight": 1.0},
	{"id": "q2", "weight": 0.5},
}

func newService(t *testing.T, store *memory.Store) (*Service, *metrics.Metrics, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	m := metrics.New(prometheus.NewRegistry())
	svc := New(store.Assessments(), store, Options{
		Logger:  slog.New(slog.NewJSONHandler(&buf, nil)),
		Metrics: m,
	})
	return svc, m, &buf
}

func TestSubmitScoresAndEnqueues(t *testing.T) {
	store := memory.NewStore()
	store.PutAssessment(domain.Assessment{ID: "a-1", AccountID: scope.AccountID, Status: "draft"}, questions,
		json.RawMessage(`[{"questionId":"q1","status":"addressed"},{"questionId":"q2","status":"not_addressed"}]`))
	svc, _, _ := newService(t, store)

	res, err := svc.Submit(context.Background(), scope, "a-1")
	require.NoError(t, err)

	// risk: (20*1 + 80*0.5) / 1.5 = 40; compliance: (80*1 + 20*0.5) / 1.5 = 60
	require.NotNil(t, res.Scores.RiskScore)
	assert.Equal(t, 40, *res.Scores.RiskScore)
	assert.Equal(t, 60, *res.Scores.ComplianceScore)
	// 0.6*(100-40) + 0.4*60 = 60
	assert.Equal(t, 60, *res.Scores.SengolScore)
	assert.Equal(t, "D", *res.Scores.LetterGrade)
	assert.NotEmpty(t, res.EvaluationJobID)

	a, err := store.Assessments().Get(context.Background(), scope, "a-1")
	require.NoError(t, err)
	assert.Equal(t, "submitted", a.Status)
	assert.Equal(t, res.Scores, a.Scores)

	status, _, ok := store.JobStatus(res.EvaluationJobID)
	require.True(t, ok)
	assert.Equal(t, "queued", status)
}

func TestSubmitKeepsPriorScoresWhenNothingScorable(t *testing.T) {
	store := memory.NewStore()
	prior := domain.AssessmentScores{
		RiskScore: intp(30), ComplianceScore: intp(70), SengolScore: intp(70), LetterGrade: strp("C"),
	}
	store.PutAssessment(domain.Assessment{ID: "a-1", AccountID: scope.AccountID, Scores: prior}, nil,
		json.RawMessage(`[{"questionId":"q1","status":"not_applicable"}]`))
	svc, _, _ := newService(t, store)

	res, err := svc.Submit(context.Background(), scope, "a-1")
	require.NoError(t, err)
	assert.Equal(t, prior, res.Scores)

	a, _ := store.Assessments().Get(context.Background(), scope, "a-1")
	assert.Equal(t, prior, a.Scores)
	assert.Equal(t, "submitted", a.Status)
}

func TestSubmitMalformedResponsesStillSubmits(t *testing.T) {
	store := memory.NewStore()
	prior := domain.AssessmentScores{RiskScore: intp(40)}
	store.PutAssessment(domain.Assessment{ID: "a-1", AccountID: scope.AccountID, Scores: prior}, questions,
		json.RawMessage(`{not json`))
	svc, m, logs := newService(t, store)

	res, err := svc.Submit(context.Background(), scope, "a-1")
	require.NoError(t, err)
	assert.Equal(t, prior, res.Scores)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ScoringFailures))
	assert.Contains(t, logs.String(), "scoring failed")

	a, _ := store.Assessments().Get(context.Background(), scope, "a-1")
	assert.Equal(t, "submitted", a.Status)
}

func TestSubmitReportsDroppedItems(t *testing.T) {
	store := memory.NewStore()
	store.PutAssessment(domain.Assessment{ID: "a-1", AccountID: scope.AccountID}, questions,
		json.RawMessage(`[{"questionId":"q1","status":"addressed"},{"questionId":"q2","status":"maybe"}]`))
	svc, m, logs := newService(t, store)

	res, err := svc.Submit(context.Background(), scope, "a-1")
	require.NoError(t, err)
	assert.Equal(t, 20, *res.Scores.RiskScore)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DataIssues))
	assert.Contains(t, logs.String(), "dropped questionnaire item")
}

type failingScores struct {
	ports.AssessmentRepository
}

func (failingScores) SaveScores(context.Context, domain.Scope, string, domain.AssessmentScores) error {
	return errors.New("disk full")
}

func TestSubmitSurvivesScoreWriteFailure(t *testing.T) {
	store := memory.NewStore()
	prior := domain.AssessmentScores{RiskScore: intp(10)}
	store.PutAssessment(domain.Assessment{ID: "a-1", AccountID: scope.AccountID, Scores: prior}, questions,
		json.RawMessage(`{"q1":"addressed"}`))
	m := metrics.New(prometheus.NewRegistry())
	svc := New(failingScores{store.Assessments()}, store, Options{Metrics: m})

	res, err := svc.Submit(context.Background(), scope, "a-1")
	require.NoError(t, err)
	assert.Equal(t, prior, res.Scores)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ScoringFailures))

	a, _ := store.Assessments().Get(context.Background(), scope, "a-1")
	assert.Equal(t, "submitted", a.Status)
}

type failingJobs struct{ ports.JobRepository }

func (failingJobs) Enqueue(context.Context, domain.Scope, string, []string) (string, error) {
	return "", errors.New("queue down")
}

func TestSubmitEnqueueFailureIsNotFatal(t *testing.T) {
	store := memory.NewStore()
	store.PutAssessment(domain.Assessment{ID: "a-1", AccountID: scope.AccountID}, questions,
		json.RawMessage(`{"q1":"addressed"}`))
	svc := New(store.Assessments(), failingJobs{store}, Options{})

	res, err := svc.Submit(context.Background(), scope, "a-1")
	require.NoError(t, err)
	assert.Empty(t, res.EvaluationJobID)
	assert.NotNil(t, res.Scores.RiskScore)
}

func TestSubmitUnknownAssessment(t *testing.T) {
	svc, _, _ := newService(t, memory.NewStore())
	_, err := svc.Submit(context.Background(), scope, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLatest(t *testing.T) {
	store := memory.NewStore()
	store.PutAssessment(domain.Assessment{ID: "a-1", AccountID: scope.AccountID, Scores: domain.AssessmentScores{RiskScore: intp(12)}}, nil, nil)
	svc, _, _ := newService(t, store)

	got, err := svc.Latest(context.Background(), scope, "a-1")
	require.NoError(t, err)
	assert.Equal(t, 12, *got.RiskScore)

	_, err = svc.Latest(context.Background(), domain.Scope{AccountID: "other"}, "a-1")
	assert.ErrorIs(t, err, ErrNotFound)
}
