// Package policy holds the declarative condition trees attached to policies
// and the evaluator that decides whether an assessment snapshot violates them.
//
// Trees are validated once when a policy is loaded (Validate). Evaluation is
// total and side-effect free: missing attributes evaluate to false instead of
// failing, and the same tree and snapshot always produce the same Result.
package policy

import (
	"fmt"

	"sengol/internal/domain"
)

// Interpretation selects what a matching tree means.
type Interpretation string

const (
	// InterpretViolation: the tree describes the violating state; a match fires.
	InterpretViolation Interpretation = "violation"
	// InterpretCompliance: the tree describes the compliant state; a miss fires.
	InterpretCompliance Interpretation = "compliance"
)

// ParseInterpretation accepts "violation" (also the empty string) or "compliance".
func ParseInterpretation(s string) (Interpretation, error) {
	switch Interpretation(s) {
	case "", InterpretViolation:
		return InterpretViolation, nil
	case InterpretCompliance:
		return InterpretCompliance, nil
	}
	return "", fmt.Errorf("unknown policy interpretation %q", s)
}

// Result is the verdict for one tree against one snapshot.
type Result struct {
	// Matched is the boolean value of the root group.
	Matched  bool
	Violated bool
	// Evidence lists every leaf actually visited, in evaluation order.
	Evidence []domain.EvidenceEntry
}

// Evaluate reads the tree as the violating condition.
func Evaluate(root *Group, snap domain.Snapshot) Result {
	return EvaluateAs(root, snap, InterpretViolation)
}

// EvaluateAs evaluates root against snap under the given interpretation.
// A nil root never fires.
func EvaluateAs(root *Group, snap domain.Snapshot, interp Interpretation) Result {
	res := Result{Evidence: make([]domain.EvidenceEntry, 0)}
	if root == nil {
		return res
	}
	res.Matched = evalNode(root, snap, &res.Evidence)
	if interp == InterpretCompliance {
		res.Violated = !res.Matched
	} else {
		res.Violated = res.Matched
	}
	return res
}

func evalNode(n Node, snap domain.Snapshot, ev *[]domain.EvidenceEntry) bool {
	switch v := n.(type) {
	case *Group:
		return evalGroup(v, snap, ev)
	case *Condition:
		return evalLeaf(v, snap, ev)
	}
	return false
}

func evalGroup(g *Group, snap domain.Snapshot, ev *[]domain.EvidenceEntry) bool {
	switch g.Op {
	case OpAnd:
		for _, c := range g.Children {
			if !evalNode(c, snap, ev) {
				return false
			}
		}
		return true
	case OpOr:
		for _, c := range g.Children {
			if evalNode(c, snap, ev) {
				return true
			}
		}
		return false
	case OpNot:
		// arity is enforced by Validate
		if len(g.Children) != 1 {
			return false
		}
		return !evalNode(g.Children[0], snap, ev)
	}
	return false
}

func evalLeaf(c *Condition, snap domain.Snapshot, ev *[]domain.EvidenceEntry) bool {
	actual, present := snap.Lookup(c.Field)
	result := false
	if fn, ok := leafOps[c.Operator]; ok {
		result = fn(actual, present, c.Value)
	}
	*ev = append(*ev, domain.EvidenceEntry{
		Field:         c.Field,
		Operator:      string(c.Operator),
		ExpectedValue: c.Value,
		ActualValue:   actual,
		Result:        result,
	})
	return result
}
