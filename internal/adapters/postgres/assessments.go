package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"sengol/internal/domain"
	"sengol/internal/ports"
)

// Assessments returns the assessment repository backed by db.
func (db *DB) Assessments() ports.AssessmentRepository { return assessments{db} }

type assessments struct{ db *DB }

func (a assessments) Get(ctx context.Context, scope domain.Scope, assessmentID string) (domain.Assessment, error) {
	var (
		out       domain.Assessment
		submitted *time.Time
		attrs     []byte
	)
	err := a.db.Pool.QueryRow(ctx, `
		SELECT id, account_id, status, submitted_at, attributes,
		       risk_score, compliance_score, sengol_score, letter_grade
		FROM assessments WHERE id = $1 AND account_id = $2
	`, assessmentID, scope.AccountID).Scan(
		&out.ID, &out.AccountID, &out.Status, &submitted, &attrs,
		&out.Scores.RiskScore, &out.Scores.ComplianceScore, &out.Scores.SengolScore, &out.Scores.LetterGrade,
	)
	if err != nil {
		return domain.Assessment{}, notFound(err)
	}
	out.SubmittedAt = submitted
	if out.Attributes, err = decodeAttributes(attrs); err != nil {
		return domain.Assessment{}, fmt.Errorf("assessment %s: %w", assessmentID, err)
	}
	return out, nil
}

func (a assessments) Questionnaire(ctx context.Context, scope domain.Scope, assessmentID string) (ports.QuestionnaireData, error) {
	var questions, responses []byte
	err := a.db.Pool.QueryRow(ctx, `
		SELECT questions, responses FROM assessments WHERE id = $1 AND account_id = $2
	`, assessmentID, scope.AccountID).Scan(&questions, &responses)
	if err != nil {
		return ports.QuestionnaireData{}, notFound(err)
	}
	var out ports.QuestionnaireData
	if len(questions) > 0 {
		if err := json.Unmarshal(questions, &out.Questions); err != nil {
			return ports.QuestionnaireData{}, fmt.Errorf("decode questions: %w", err)
		}
	}
	out.Responses = responses
	return out, nil
}

func (a assessments) SaveScores(ctx context.Context, scope domain.Scope, assessmentID string, s domain.AssessmentScores) error {
	tag, err := a.db.Pool.Exec(ctx, `
		UPDATE assessments
		SET risk_score = $3, compliance_score = $4, sengol_score = $5, letter_grade = $6, updated_at = now()
		WHERE id = $1 AND account_id = $2
	`, assessmentID, scope.AccountID, s.RiskScore, s.ComplianceScore, s.SengolScore, s.LetterGrade)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ports.ErrNotFound
	}
	return nil
}

func (a assessments) MarkSubmitted(ctx context.Context, scope domain.Scope, assessmentID string) error {
	tag, err := a.db.Pool.Exec(ctx, `
		UPDATE assessments SET status = 'submitted', submitted_at = now(), updated_at = now()
		WHERE id = $1 AND account_id = $2
	`, assessmentID, scope.AccountID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ports.ErrNotFound
	}
	return nil
}

func decodeAttributes(data []byte) (map[string]any, error) {
	attrs := map[string]any{}
	if len(data) == 0 {
		return attrs, nil
	}
	if err := json.Unmarshal(data, &attrs); err != nil {
		return nil, fmt.Errorf("decode attributes: %w", err)
	}
	return attrs, nil
}
