package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"sengol/internal/domain"
	"sengol/internal/ports"
)

// upsertAttempts bounds the insert/select loop in UpsertOpen. A second pass
// is only needed when the blocking row was resolved between the two queries.
const upsertAttempts = 3

// UpsertOpen relies on the partial unique index over blocking statuses: the
// insert either wins or hits the existing OPEN/ACKNOWLEDGED row.
func (db *DB) UpsertOpen(ctx context.Context, w ports.ViolationWrite) (domain.ViolationRecord, bool, error) {
	evidence, err := encodeEvidence(w.Evidence)
	if err != nil {
		return domain.ViolationRecord{}, false, err
	}

	for attempt := 0; attempt < upsertAttempts; attempt++ {
		rec := domain.ViolationRecord{
			ID:           uuid.NewString(),
			AccountID:    w.AccountID,
			PolicyID:     w.PolicyID,
			AssessmentID: w.AssessmentID,
			Severity:     w.Severity,
			Status:       domain.ViolationOpen,
			Evidence:     w.Evidence,
		}
		err := db.Pool.QueryRow(ctx, `
			INSERT INTO violations (id, account_id, policy_id, assessment_id, severity, status, evidence)
			VALUES ($1, $2, $3, $4, $5, 'OPEN', $6::jsonb)
			ON CONFLICT (account_id, policy_id, assessment_id) WHERE status IN ('OPEN', 'ACKNOWLEDGED')
			DO NOTHING
			RETURNING detected_at
		`, rec.ID, w.AccountID, w.PolicyID, w.AssessmentID, string(w.Severity), evidence).Scan(&rec.DetectedAt)
		if err == nil {
			return rec, true, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return domain.ViolationRecord{}, false, err
		}

		existing, err := db.blockingViolation(ctx, w)
		if err == nil {
			return existing, false, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return domain.ViolationRecord{}, false, err
		}
	}
	return domain.ViolationRecord{}, false, fmt.Errorf("upsert violation for policy %s: contention after %d attempts", w.PolicyID, upsertAttempts)
}

func (db *DB) blockingViolation(ctx context.Context, w ports.ViolationWrite) (domain.ViolationRecord, error) {
	var (
		rec      domain.ViolationRecord
		severity string
		status   string
		evidence []byte
		detected time.Time
	)
	err := db.Pool.QueryRow(ctx, `
		SELECT id::text, severity, status, evidence, detected_at FROM violations
		WHERE account_id = $1 AND policy_id = $2 AND assessment_id = $3
		  AND status IN ('OPEN', 'ACKNOWLEDGED')
	`, w.AccountID, w.PolicyID, w.AssessmentID).Scan(&rec.ID, &severity, &status, &evidence, &detected)
	if err != nil {
		return domain.ViolationRecord{}, err
	}
	rec.AccountID = w.AccountID
	rec.PolicyID = w.PolicyID
	rec.AssessmentID = w.AssessmentID
	rec.Severity = domain.Severity(severity)
	rec.Status = domain.ViolationStatus(status)
	rec.DetectedAt = detected
	rec.Evidence, err = decodeEvidence(evidence)
	return rec, err
}

func encodeEvidence(ev []domain.EvidenceEntry) (string, error) {
	if ev == nil {
		ev = []domain.EvidenceEntry{}
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return "", fmt.Errorf("encode evidence: %w", err)
	}
	return string(data), nil
}

func decodeEvidence(data []byte) ([]domain.EvidenceEntry, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var ev []domain.EvidenceEntry
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("decode evidence: %w", err)
	}
	return ev, nil
}
