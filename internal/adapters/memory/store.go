// Package memory implements the repository ports in process. It backs the
// offline CLI and the service tests.
package memory

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"sengol/internal/domain"
	"sengol/internal/policy"
	"sengol/internal/ports"
)

type Store struct {
	mu sync.Mutex

	policies    map[string]map[string]policy.Definition // account -> policy id -> def
	violations  []domain.ViolationRecord
	assessments map[string]*assessmentRow
	jobs        []*jobRow
	now         func() time.Time
}

type assessmentRow struct {
	domain.Assessment
	questionnaire ports.QuestionnaireData
}

type jobRow struct {
	ports.EvaluationJob
	status string // queued|running|completed|failed
	note   string
}

func NewStore() *Store {
	return &Store{
		policies:    make(map[string]map[string]policy.Definition),
		assessments: make(map[string]*assessmentRow),
		now:         time.Now,
	}
}

// PutPolicy stores def for the account, replacing any policy with the same id.
func (s *Store) PutPolicy(accountID string, def policy.Definition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.policies[accountID] == nil {
		s.policies[accountID] = make(map[string]policy.Definition)
	}
	s.policies[accountID][def.ID] = def
}

// ListEvaluable returns policies sorted by id so batches are reproducible.
func (s *Store) ListEvaluable(ctx context.Context, scope domain.Scope, ids []string) ([]policy.Definition, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	account := s.policies[scope.AccountID]
	var out []policy.Definition
	if len(ids) > 0 {
		for _, id := range ids {
			if def, ok := account[id]; ok && !def.Archived() {
				out = append(out, def)
			}
		}
		return out, nil
	}
	for _, def := range account {
		if !def.Archived() {
			out = append(out, def)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) Get(ctx context.Context, scope domain.Scope, policyID string) (policy.Definition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	def, ok := s.policies[scope.AccountID][policyID]
	if !ok {
		return policy.Definition{}, ports.ErrNotFound
	}
	return def, nil
}

// UpsertOpen holds the store lock across the check and the insert, which is
// what makes it atomic.
func (s *Store) UpsertOpen(ctx context.Context, w ports.ViolationWrite) (domain.ViolationRecord, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.ViolationRecord{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range s.violations {
		if v.AccountID == w.AccountID && v.PolicyID == w.PolicyID && v.AssessmentID == w.AssessmentID && v.Status.Blocking() {
			return v, false, nil
		}
	}
	rec := domain.ViolationRecord{
		ID:           uuid.NewString(),
		AccountID:    w.AccountID,
		PolicyID:     w.PolicyID,
		AssessmentID: w.AssessmentID,
		Severity:     w.Severity,
		Status:       domain.ViolationOpen,
		Evidence:     append([]domain.EvidenceEntry(nil), w.Evidence...),
		DetectedAt:   s.now().UTC(),
	}
	s.violations = append(s.violations, rec)
	return rec, true, nil
}

// SetViolationStatus moves a violation through its lifecycle.
func (s *Store) SetViolationStatus(id string, status domain.ViolationStatus) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.violations {
		if s.violations[i].ID == id {
			s.violations[i].Status = status
			return true
		}
	}
	return false
}

// Violations returns a copy of every stored violation.
func (s *Store) Violations() []domain.ViolationRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.ViolationRecord(nil), s.violations...)
}

// PutAssessment stores an assessment together with its raw questionnaire.
func (s *Store) PutAssessment(a domain.Assessment, questions []map[string]any, responses json.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assessments[a.ID] = &assessmentRow{
		Assessment:    a,
		questionnaire: ports.QuestionnaireData{Questions: questions, Responses: responses},
	}
}

func (s *Store) row(scope domain.Scope, id string) (*assessmentRow, error) {
	row, ok := s.assessments[id]
	if !ok || row.AccountID != scope.AccountID {
		return nil, ports.ErrNotFound
	}
	return row, nil
}

func (s *Store) GetAssessment(ctx context.Context, scope domain.Scope, assessmentID string) (domain.Assessment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, err := s.row(scope, assessmentID)
	if err != nil {
		return domain.Assessment{}, err
	}
	return row.Assessment, nil
}

func (s *Store) Questionnaire(ctx context.Context, scope domain.Scope, assessmentID string) (ports.QuestionnaireData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, err := s.row(scope, assessmentID)
	if err != nil {
		return ports.QuestionnaireData{}, err
	}
	return row.questionnaire, nil
}

func (s *Store) SaveScores(ctx context.Context, scope domain.Scope, assessmentID string, scores domain.AssessmentScores) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, err := s.row(scope, assessmentID)
	if err != nil {
		return err
	}
	row.Scores = scores
	return nil
}

func (s *Store) MarkSubmitted(ctx context.Context, scope domain.Scope, assessmentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, err := s.row(scope, assessmentID)
	if err != nil {
		return err
	}
	now := s.now().UTC()
	row.Status = "submitted"
	row.SubmittedAt = &now
	return nil
}

// Assessments adapts the store to ports.AssessmentRepository, whose Get
// collides with the policy repository's Get.
func (s *Store) Assessments() ports.AssessmentRepository { return assessments{s} }

type assessments struct{ *Store }

func (a assessments) Get(ctx context.Context, scope domain.Scope, id string) (domain.Assessment, error) {
	return a.GetAssessment(ctx, scope, id)
}

func (s *Store) Enqueue(ctx context.Context, scope domain.Scope, assessmentID string, policyIDs []string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job := &jobRow{
		EvaluationJob: ports.EvaluationJob{
			ID:           uuid.NewString(),
			AccountID:    scope.AccountID,
			AssessmentID: assessmentID,
			PolicyIDs:    append([]string(nil), policyIDs...),
		},
		status: "queued",
	}
	s.jobs = append(s.jobs, job)
	return job.ID, nil
}

func (s *Store) ClaimNext(ctx context.Context) (ports.EvaluationJob, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range s.jobs {
		if j.status == "queued" {
			j.status = "running"
			return j.EvaluationJob, true, nil
		}
	}
	return ports.EvaluationJob{}, false, nil
}

func (s *Store) MarkCompleted(ctx context.Context, jobID string, summary string) error {
	return s.finish(jobID, "completed", summary)
}

func (s *Store) MarkFailed(ctx context.Context, jobID string, reason string) error {
	return s.finish(jobID, "failed", reason)
}

func (s *Store) finish(jobID, status, note string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range s.jobs {
		if j.ID == jobID {
			j.status = status
			j.note = note
			return nil
		}
	}
	return ports.ErrNotFound
}

// JobStatus returns the status and note of a job.
func (s *Store) JobStatus(jobID string) (status, note string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range s.jobs {
		if j.ID == jobID {
			return j.status, j.note, true
		}
	}
	return "", "", false
}
