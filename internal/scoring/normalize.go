package scoring

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"sengol/internal/domain"
)

// DataError describes a question or response payload that could not be used.
// It is never fatal: the offending item is dropped and scoring continues.
type DataError struct {
	QuestionID string
	Reason     string
}

func (e *DataError) Error() string {
	if e.QuestionID == "" {
		return "scoring data: " + e.Reason
	}
	return fmt.Sprintf("scoring data: question %s: %s", e.QuestionID, e.Reason)
}

// Field aliases seen in stored payloads, in priority order.
var (
	questionIDKeys   = []string{"id", "questionId", "question_id"}
	weightKeys       = []string{"finalWeight", "weight", "final_weight"}
	categoryKeys     = []string{"category", "domain"}
	responseIDKeys   = []string{"questionId", "question_id", "id"}
	statusKeys       = []string{"status", "responseStatus"}
	riskScoreKeys    = []string{"riskScore", "risk_score", "score"}
	userScoreKeys    = []string{"userScore", "user_score", "complianceScore"}
	statusSeparators = strings.NewReplacer("-", "_", " ", "_")
)

// NormalizeQuestions maps raw question payloads onto domain.Question. Items
// without an id are dropped and reported.
func NormalizeQuestions(raw []map[string]any) ([]domain.Question, []*DataError) {
	out := make([]domain.Question, 0, len(raw))
	var issues []*DataError
	for i, item := range raw {
		id := firstString(item, questionIDKeys)
		if id == "" {
			issues = append(issues, &DataError{Reason: fmt.Sprintf("question #%d has no id", i)})
			continue
		}
		q := domain.Question{ID: id, Category: firstString(item, categoryKeys)}
		if w, ok := firstNumber(item, weightKeys); ok {
			q.Weight = w
		}
		out = append(out, q)
	}
	return out, issues
}

// NormalizeResponses maps raw response payloads onto domain.Response.
//
// raw may be a list of response objects or an object keyed by question id.
// Keyed objects are emitted in sorted key order so the result is stable.
// A value in a keyed object may also be a bare status string.
func NormalizeResponses(raw any) ([]domain.Response, []*DataError) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case []map[string]any:
		items := make([]any, len(v))
		for i := range v {
			items[i] = v[i]
		}
		return normalizeList(items)
	case []any:
		return normalizeList(v)
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var out []domain.Response
		var issues []*DataError
		for _, k := range keys {
			var item map[string]any
			switch entry := v[k].(type) {
			case map[string]any:
				item = entry
			case string:
				item = map[string]any{"status": entry}
			default:
				issues = append(issues, &DataError{QuestionID: k, Reason: "response is neither an object nor a status"})
				continue
			}
			r, err := normalizeResponse(item, k)
			if err != nil {
				issues = append(issues, err)
				continue
			}
			out = append(out, r)
		}
		return out, issues
	default:
		return nil, []*DataError{{Reason: fmt.Sprintf("unsupported responses payload %T", raw)}}
	}
}

func normalizeList(items []any) ([]domain.Response, []*DataError) {
	out := make([]domain.Response, 0, len(items))
	var issues []*DataError
	for i, it := range items {
		item, ok := it.(map[string]any)
		if !ok {
			issues = append(issues, &DataError{Reason: fmt.Sprintf("response #%d is not an object", i)})
			continue
		}
		r, err := normalizeResponse(item, "")
		if err != nil {
			issues = append(issues, err)
			continue
		}
		out = append(out, r)
	}
	return out, issues
}

func normalizeResponse(item map[string]any, key string) (domain.Response, *DataError) {
	id := firstString(item, responseIDKeys)
	if id == "" {
		id = key
	}
	if id == "" {
		return domain.Response{}, &DataError{Reason: "response has no question id"}
	}
	r := domain.Response{QuestionID: id}
	if v, ok := firstNumber(item, riskScoreKeys); ok {
		c := clampScore(v)
		r.RiskOverride = &c
	}
	if v, ok := firstNumber(item, userScoreKeys); ok {
		c := clampScore(v)
		r.ComplianceOverride = &c
	}

	raw := firstString(item, statusKeys)
	status, known := ParseStatus(raw)
	if !known {
		if r.RiskOverride == nil && r.ComplianceOverride == nil {
			return domain.Response{}, &DataError{QuestionID: id, Reason: fmt.Sprintf("unknown status %q", raw)}
		}
		status = ""
	}
	r.Status = status
	return r, nil
}

// ParseStatus folds case and separators and reports whether the status is one
// of the four known values.
func ParseStatus(raw string) (domain.ResponseStatus, bool) {
	s := domain.ResponseStatus(statusSeparators.Replace(strings.ToLower(strings.TrimSpace(raw))))
	switch s {
	case domain.StatusAddressed, domain.StatusPartiallyAddressed, domain.StatusNotAddressed, domain.StatusNotApplicable:
		return s, true
	case "partial":
		return domain.StatusPartiallyAddressed, true
	case "n/a", "na":
		return domain.StatusNotApplicable, true
	}
	return "", false
}

// DecodeQuestions parses a JSON array of question objects.
func DecodeQuestions(data []byte) ([]domain.Question, []*DataError, error) {
	var raw []map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, nil, fmt.Errorf("decode questions: %w", err)
	}
	qs, issues := NormalizeQuestions(raw)
	return qs, issues, nil
}

// DecodeResponses parses either a JSON array of responses or an object keyed
// by question id.
func DecodeResponses(data []byte) ([]domain.Response, []*DataError, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, nil, fmt.Errorf("decode responses: %w", err)
	}
	rs, issues := NormalizeResponses(raw)
	return rs, issues, nil
}

func firstString(item map[string]any, keys []string) string {
	for _, k := range keys {
		switch v := item[k].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		case int:
			return strconv.Itoa(v)
		}
	}
	return ""
}

func firstNumber(item map[string]any, keys []string) (float64, bool) {
	for _, k := range keys {
		if f, ok := toFloat(item[k]); ok {
			return f, true
		}
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		x, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = x
	case string:
		x, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		f = x
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func clampScore(v float64) float64 {
	return math.Min(100, math.Max(0, v))
}
