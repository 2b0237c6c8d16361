package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"sengol/internal/domain"
	"sengol/internal/policy"
)

const policyColumns = `id, name, description, severity, status, conditions`

// listEvaluableQuery builds the policy listing for an account, narrowed to
// ids when any are given. Archived policies are never returned.
func listEvaluableQuery(accountID string, ids []string) (string, []any) {
	var b strings.Builder
	b.WriteString(`SELECT ` + policyColumns + ` FROM policies WHERE account_id = $1 AND status <> 'ARCHIVED'`)
	args := []any{accountID}
	if len(ids) > 0 {
		b.WriteString(` AND id = ANY($2)`)
		args = append(args, ids)
	}
	b.WriteString(` ORDER BY id`)
	return b.String(), args
}

func (db *DB) ListEvaluable(ctx context.Context, scope domain.Scope, ids []string) ([]policy.Definition, error) {
	q, args := listEvaluableQuery(scope.AccountID, ids)
	rows, err := db.Pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []policy.Definition
	for rows.Next() {
		def, err := scanDefinition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, def)
	}
	return out, rows.Err()
}

func (db *DB) Get(ctx context.Context, scope domain.Scope, policyID string) (policy.Definition, error) {
	row := db.Pool.QueryRow(ctx, `SELECT `+policyColumns+` FROM policies WHERE account_id = $1 AND id = $2`, scope.AccountID, policyID)
	def, err := scanDefinition(row)
	if err != nil {
		return policy.Definition{}, notFound(err)
	}
	return def, nil
}

// UpsertPolicy stores def for the account, replacing an existing definition
// with the same id.
func (db *DB) UpsertPolicy(ctx context.Context, accountID string, def policy.Definition) error {
	conditions, err := json.Marshal(def.Conditions)
	if err != nil {
		return fmt.Errorf("encode conditions of %s: %w", def.ID, err)
	}
	status := def.Status
	if status == "" {
		status = domain.PolicyActive
	}
	_, err = db.Pool.Exec(ctx, `
		INSERT INTO policies (account_id, id, name, description, severity, status, conditions)
		VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb)
		ON CONFLICT (account_id, id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			severity = EXCLUDED.severity,
			status = EXCLUDED.status,
			conditions = EXCLUDED.conditions,
			updated_at = now()
	`, accountID, def.ID, def.Name, def.Description, string(def.Severity), string(status), string(conditions))
	return err
}

// scanDefinition reads one policy row. A stored tree that no longer parses
// still yields a definition; validation reports it during evaluation.
func scanDefinition(row pgx.Row) (policy.Definition, error) {
	var (
		def        policy.Definition
		severity   string
		status     string
		conditions []byte
	)
	if err := row.Scan(&def.ID, &def.Name, &def.Description, &severity, &status, &conditions); err != nil {
		return policy.Definition{}, err
	}
	def.Severity = domain.Severity(severity)
	def.Status = domain.PolicyStatus(status)
	def.Conditions = decodeConditions(conditions)
	return def, nil
}

func decodeConditions(data []byte) *policy.Group {
	g, err := policy.ParseConditions(data)
	if err != nil {
		return nil
	}
	return g
}
