package memory

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sengol/internal/domain"
	"sengol/internal/policy"
	"sengol/internal/ports"
)

var scope = domain.Scope{AccountID: "acct-1", UserID: "user-1"}

func def(id string, status domain.PolicyStatus) policy.Definition {
	return policy.Definition{
		ID:         id,
		Severity:   domain.SeverityHigh,
		Status:     status,
		Conditions: policy.And(policy.Leaf("industry", policy.Equals, "Finance")),
	}
}

func TestListEvaluableSkipsArchivedAndOtherAccounts(t *testing.T) {
	s := NewStore()
	s.PutPolicy(scope.AccountID, def("b", domain.PolicyActive))
	s.PutPolicy(scope.AccountID, def("a", domain.PolicyDraft))
	s.PutPolicy(scope.AccountID, def("z", domain.PolicyArchived))
	s.PutPolicy("acct-2", def("c", domain.PolicyActive))

	got, err := s.ListEvaluable(context.Background(), scope, nil)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "b", got[1].ID)

	got, err = s.ListEvaluable(context.Background(), scope, []string{"b", "z", "c"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].ID)

	_, err = s.Get(context.Background(), scope, "c")
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestUpsertOpenIsIdempotentWhileBlocking(t *testing.T) {
	s := NewStore()
	w := ports.ViolationWrite{AccountID: "acct-1", PolicyID: "p", AssessmentID: "a", Severity: domain.SeverityLow}

	first, created, err := s.UpsertOpen(context.Background(), w)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, domain.ViolationOpen, first.Status)

	again, created, err := s.UpsertOpen(context.Background(), w)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, again.ID)

	require.True(t, s.SetViolationStatus(first.ID, domain.ViolationAcknowledged))
	_, created, _ = s.UpsertOpen(context.Background(), w)
	assert.False(t, created)

	require.True(t, s.SetViolationStatus(first.ID, domain.ViolationResolved))
	next, created, err := s.UpsertOpen(context.Background(), w)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, first.ID, next.ID)
	assert.Len(t, s.Violations(), 2)
}

func TestUpsertOpenConcurrent(t *testing.T) {
	s := NewStore()
	w := ports.ViolationWrite{AccountID: "acct-1", PolicyID: "p", AssessmentID: "a"}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, _ = s.UpsertOpen(context.Background(), w)
		}()
	}
	wg.Wait()
	assert.Len(t, s.Violations(), 1)
}

func TestAssessmentLifecycle(t *testing.T) {
	s := NewStore()
	repo := s.Assessments()
	s.PutAssessment(domain.Assessment{ID: "a-1", AccountID: "acct-1", Status: "draft"},
		[]map[string]any{{"id": "q1", "weight": 1.0}},
		json.RawMessage(`[{"questionId":"q1","status":"addressed"}]`))

	_, err := repo.Get(context.Background(), domain.Scope{AccountID: "acct-2"}, "a-1")
	assert.ErrorIs(t, err, ports.ErrNotFound)

	q, err := repo.Questionnaire(context.Background(), scope, "a-1")
	require.NoError(t, err)
	assert.Len(t, q.Questions, 1)

	risk := 20
	require.NoError(t, repo.SaveScores(context.Background(), scope, "a-1", domain.AssessmentScores{RiskScore: &risk}))
	require.NoError(t, repo.MarkSubmitted(context.Background(), scope, "a-1"))

	a, err := repo.Get(context.Background(), scope, "a-1")
	require.NoError(t, err)
	assert.Equal(t, "submitted", a.Status)
	require.NotNil(t, a.SubmittedAt)
	assert.Equal(t, 20, *a.Scores.RiskScore)
}

func TestJobQueue(t *testing.T) {
	s := NewStore()
	id, err := s.Enqueue(context.Background(), scope, "a-1", []string{"p"})
	require.NoError(t, err)

	job, found, err := s.ClaimNext(context.Background())
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, id, job.ID)
	assert.Equal(t, []string{"p"}, job.PolicyIDs)

	_, found, _ = s.ClaimNext(context.Background())
	assert.False(t, found)

	require.NoError(t, s.MarkCompleted(context.Background(), id, "0 violated"))
	status, note, ok := s.JobStatus(id)
	require.True(t, ok)
	assert.Equal(t, "completed", status)
	assert.Equal(t, "0 violated", note)

	assert.ErrorIs(t, s.MarkFailed(context.Background(), "nope", "x"), ports.ErrNotFound)
}
