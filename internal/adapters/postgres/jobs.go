package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"sengol/internal/domain"
	"sengol/internal/ports"
)

func (db *DB) Enqueue(ctx context.Context, scope domain.Scope, assessmentID string, policyIDs []string) (string, error) {
	if policyIDs == nil {
		policyIDs = []string{}
	}
	id := uuid.NewString()
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO evaluation_jobs (id, account_id, assessment_id, policy_ids)
		VALUES ($1, $2, $3, $4)
	`, id, scope.AccountID, assessmentID, policyIDs)
	if err != nil {
		return "", err
	}
	return id, nil
}

// ClaimNext selects the next queued job using SKIP LOCKED and marks it running.
func (db *DB) ClaimNext(ctx context.Context) (job ports.EvaluationJob, found bool, err error) {
	err = db.withTx(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			SELECT id::text, account_id, assessment_id, policy_ids FROM evaluation_jobs
			WHERE status = 'queued'
			ORDER BY queued_at
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		`).Scan(&job.ID, &job.AccountID, &job.AssessmentID, &job.PolicyIDs)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			UPDATE evaluation_jobs SET status = 'running', started_at = now(), attempts = attempts + 1 WHERE id = $1
		`, job.ID); err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil {
		return ports.EvaluationJob{}, false, err
	}
	return job, found, nil
}

func (db *DB) MarkCompleted(ctx context.Context, jobID string, summary string) error {
	return db.finishJob(ctx, jobID, "completed", summary)
}

func (db *DB) MarkFailed(ctx context.Context, jobID string, reason string) error {
	return db.finishJob(ctx, jobID, "failed", reason)
}

func (db *DB) finishJob(ctx context.Context, jobID, status, note string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	tag, err := db.Pool.Exec(ctx, `
		UPDATE evaluation_jobs SET status = $2, note = $3, finished_at = now() WHERE id = $1
	`, jobID, status, note)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ports.ErrNotFound
	}
	return nil
}
