// Package evalrunner drains the evaluation job queue in the background.
package evalrunner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"sengol/internal/domain"
	"sengol/internal/ports"
	"sengol/internal/services/evaluation"
	"sengol/internal/snapshot"
)

// JobProcessor performs the work of one evaluation job and returns a short
// summary for the job row.
type JobProcessor interface {
	Process(ctx context.Context, job ports.EvaluationJob) (string, error)
}

// BatchEvaluator is the part of the evaluation service the runner drives.
type BatchEvaluator interface {
	EvaluateAll(ctx context.Context, scope domain.Scope, assessmentID string, snap domain.Snapshot, policyIDs []string) (domain.BatchResult, error)
}

// Evaluator loads the assessment snapshot and runs the policy batch.
type Evaluator struct {
	Assessments ports.AssessmentRepository
	Policies    BatchEvaluator
}

func (e Evaluator) Process(ctx context.Context, job ports.EvaluationJob) (string, error) {
	scope := domain.Scope{AccountID: job.AccountID}
	a, err := e.Assessments.Get(ctx, scope, job.AssessmentID)
	if err != nil {
		return "", fmt.Errorf("load assessment %s: %w", job.AssessmentID, err)
	}
	res, err := e.Policies.EvaluateAll(ctx, scope, job.AssessmentID, snapshot.FromAssessment(a), job.PolicyIDs)
	return Summary(res), err
}

// Summary renders the counts of a batch for the job row.
func Summary(res domain.BatchResult) string {
	s := fmt.Sprintf("%d policies: %d violated, %d passed, %d errors",
		res.TotalPolicies, res.ViolatedCount, res.PassedCount, res.ErrorCount)
	if res.TimedOut {
		s += fmt.Sprintf(" (timed out after %d)", len(res.Results))
	}
	return s
}

// Run starts worker goroutines that claim jobs and process them. It returns
// once ctx is done and every in-flight job has finished.
func Run(ctx context.Context, repo ports.JobRepository, processor JobProcessor, concurrency int, pollInterval time.Duration, log *slog.Logger) {
	if concurrency < 1 {
		return
	}
	if log == nil {
		log = slog.Default()
	}
	jobsCh := make(chan ports.EvaluationJob, concurrency)

	// dispatcher loop
	go func() {
		defer close(jobsCh)
		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for {
					job, found, err := repo.ClaimNext(ctx)
					if err != nil {
						if ctx.Err() == nil {
							log.Error("job claim failed", "error", err)
						}
						break
					}
					if !found {
						break
					}
					select {
					case jobsCh <- job:
					case <-ctx.Done():
						// claimed but never started; release it as failed so it is visible
						_ = repo.MarkFailed(context.WithoutCancel(ctx), job.ID, "shutdown before start")
						return
					}
				}
			}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			for job := range jobsCh {
				finish(ctx, repo, processor, job, log.With("worker", idx))
			}
		}(i)
	}
	wg.Wait()
}

func finish(ctx context.Context, repo ports.JobRepository, processor JobProcessor, job ports.EvaluationJob, log *slog.Logger) {
	summary, err := processor.Process(ctx, job)
	// job bookkeeping must land even when the batch ran into shutdown
	bctx := context.WithoutCancel(ctx)
	if err != nil {
		reason := err.Error()
		if errors.Is(err, evaluation.ErrBatchTimeout) && summary != "" {
			reason = summary + ": " + reason
		}
		if mErr := repo.MarkFailed(bctx, job.ID, reason); mErr != nil {
			log.Error("mark job failed", "job_id", job.ID, "error", mErr)
		}
		log.Warn("evaluation job failed", "job_id", job.ID, "assessment_id", job.AssessmentID, "error", err)
		return
	}
	if err := repo.MarkCompleted(bctx, job.ID, summary); err != nil {
		log.Error("mark job completed", "job_id", job.ID, "error", err)
		return
	}
	log.Info("evaluation job completed", "job_id", job.ID, "assessment_id", job.AssessmentID, "summary", summary)
}
