package evalrunner

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sengol/internal/adapters/memory"
	"sengol/internal/domain"
	"sengol/internal/policy"
	"sengol/internal/ports"
	"sengol/internal/services/evaluation"
)

var scope = domain.Scope{AccountID: "acct-1"}

func seeded(t *testing.T) (*memory.Store, Evaluator) {
	t.Helper()
	store := memory.NewStore()
	store.PutPolicy(scope.AccountID, policy.Definition{
		ID: "p-finance", Severity: domain.SeverityHigh, Status: domain.PolicyActive,
		Conditions: policy.And(policy.Leaf("industry", policy.Equals, "Finance")),
	})
	store.PutPolicy(scope.AccountID, policy.Definition{
		ID: "p-low-score", Severity: domain.SeverityMedium, Status: domain.PolicyActive,
		Conditions: policy.And(policy.Leaf("sengolScore", policy.LessThan, 50)),
	})
	score := 40
	store.PutAssessment(domain.Assessment{
		ID: "a-1", AccountID: scope.AccountID,
		Attributes: map[string]any{"industry": "Finance"},
		Scores:     domain.AssessmentScores{SengolScore: &score},
	}, nil, nil)
	return store, Evaluator{Assessments: store.Assessments(), Policies: evaluation.New(store, store, evaluation.Options{})}
}

func TestEvaluatorProcess(t *testing.T) {
	store, ev := seeded(t)
	summary, err := ev.Process(context.Background(), ports.EvaluationJob{ID: "j", AccountID: scope.AccountID, AssessmentID: "a-1"})
	require.NoError(t, err)
	assert.Equal(t, "2 policies: 2 violated, 0 passed, 0 errors", summary)
	assert.Len(t, store.Violations(), 2)

	_, err = ev.Process(context.Background(), ports.EvaluationJob{ID: "j", AccountID: scope.AccountID, AssessmentID: "missing"})
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestRunDrainsQueue(t *testing.T) {
	store, ev := seeded(t)
	ok, err := store.Enqueue(context.Background(), scope, "a-1", []string{"p-finance"})
	require.NoError(t, err)
	bad, err := store.Enqueue(context.Background(), scope, "missing", nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		Run(ctx, store, ev, 2, 5*time.Millisecond, nil)
		close(done)
	}()

	require.Eventually(t, func() bool {
		s1, _, _ := store.JobStatus(ok)
		s2, _, _ := store.JobStatus(bad)
		return s1 == "completed" && s2 == "failed"
	}, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-done

	_, note, _ := store.JobStatus(ok)
	assert.Equal(t, "1 policies: 1 violated, 0 passed, 0 errors", note)
	_, note, _ = store.JobStatus(bad)
	assert.Contains(t, note, "not found")
}

func TestRunDisabled(t *testing.T) {
	store, ev := seeded(t)
	id, err := store.Enqueue(context.Background(), scope, "a-1", nil)
	require.NoError(t, err)
	Run(context.Background(), store, ev, 0, time.Millisecond, nil)
	status, _, _ := store.JobStatus(id)
	assert.Equal(t, "queued", status)
}

type timedOut struct{}

func (timedOut) EvaluateAll(context.Context, domain.Scope, string, domain.Snapshot, []string) (domain.BatchResult, error) {
	res := domain.BatchResult{TotalPolicies: 3, PassedCount: 1, TimedOut: true, Results: make([]domain.PolicyOutcome, 1)}
	return res, evaluation.ErrBatchTimeout
}

func TestTimedOutBatchFailsJobWithSummary(t *testing.T) {
	store, ev := seeded(t)
	ev.Policies = timedOut{}
	id, err := store.Enqueue(context.Background(), scope, "a-1", nil)
	require.NoError(t, err)
	job, _, _ := store.ClaimNext(context.Background())

	finish(context.Background(), store, ev, job, slog.New(slog.NewTextHandler(io.Discard, nil)))

	status, note, _ := store.JobStatus(id)
	assert.Equal(t, "failed", status)
	assert.Contains(t, note, "timed out after 1")
}

type stalledViolations struct{}

func (stalledViolations) UpsertOpen(ctx context.Context, _ ports.ViolationWrite) (domain.ViolationRecord, bool, error) {
	<-ctx.Done()
	return domain.ViolationRecord{}, false, ctx.Err()
}

func TestDeadlineDuringWritesFailsJob(t *testing.T) {
	store, ev := seeded(t)
	ev.Policies = evaluation.New(store, stalledViolations{}, evaluation.Options{
		MaxConcurrency: 16,
		BatchTimeout:   30 * time.Millisecond,
	})
	id, err := store.Enqueue(context.Background(), scope, "a-1", nil)
	require.NoError(t, err)
	job, _, _ := store.ClaimNext(context.Background())

	finish(context.Background(), store, ev, job, slog.New(slog.NewTextHandler(io.Discard, nil)))

	status, note, _ := store.JobStatus(id)
	assert.Equal(t, "failed", status)
	assert.Contains(t, note, "timed out")
}
