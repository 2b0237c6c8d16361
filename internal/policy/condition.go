package policy

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"sengol/internal/domain"
)

// LogicalOp combines the children of a Group.
type LogicalOp string

const (
	OpAnd LogicalOp = "AND"
	OpOr  LogicalOp = "OR"
	OpNot LogicalOp = "NOT"
)

// Operator is a leaf comparison.
type Operator string

const (
	Equals       Operator = "EQUALS"
	NotEquals    Operator = "NOT_EQUALS"
	Contains     Operator = "CONTAINS"
	NotContains  Operator = "NOT_CONTAINS"
	ContainsAny  Operator = "CONTAINS_ANY"
	ContainsAll  Operator = "CONTAINS_ALL"
	RegexMatch   Operator = "REGEX_MATCH"
	GreaterThan  Operator = "GREATER_THAN"
	LessThan     Operator = "LESS_THAN"
	GreaterEqual Operator = "GREATER_EQUAL"
	LessEqual    Operator = "LESS_EQUAL"
	In           Operator = "IN"
	NotIn        Operator = "NOT_IN"
	Exists       Operator = "EXISTS"
	NotExists    Operator = "NOT_EXISTS"
)

// Operators lists every leaf operator in declaration order.
func Operators() []Operator {
	return []Operator{
		Equals, NotEquals, Contains, NotContains, ContainsAny, ContainsAll, RegexMatch,
		GreaterThan, LessThan, GreaterEqual, LessEqual, In, NotIn, Exists, NotExists,
	}
}

// Node is either a *Group or a *Condition.
type Node interface {
	node()
}

// Group is a boolean combination of child nodes, evaluated in order.
type Group struct {
	Op       LogicalOp
	Children []Node
}

// Condition is a leaf test of one snapshot attribute.
type Condition struct {
	Field    string
	Operator Operator
	Value    any
}

func (*Group) node()     {}
func (*Condition) node() {}

// And, Or and Not build groups; they are mostly useful in tests and seeds.
func And(children ...Node) *Group { return &Group{Op: OpAnd, Children: children} }
func Or(children ...Node) *Group  { return &Group{Op: OpOr, Children: children} }
func Not(child Node) *Group       { return &Group{Op: OpNot, Children: []Node{child}} }

// Leaf builds a condition.
func Leaf(field string, op Operator, value any) *Condition {
	return &Condition{Field: field, Operator: op, Value: value}
}

// Definition is a stored policy.
type Definition struct {
	ID          string              `json:"id" yaml:"id" validate:"required"`
	Name        string              `json:"name,omitempty" yaml:"name,omitempty"`
	Description string              `json:"description,omitempty" yaml:"description,omitempty"`
	Severity    domain.Severity     `json:"severity" yaml:"severity" validate:"required,oneof=LOW MEDIUM HIGH CRITICAL"`
	Status      domain.PolicyStatus `json:"status,omitempty" yaml:"status,omitempty" validate:"omitempty,oneof=DRAFT ACTIVE INACTIVE ARCHIVED"`
	Conditions  *Group              `json:"conditions" yaml:"conditions" validate:"required"`
}

// Archived reports whether the policy is excluded from evaluation runs.
func (d Definition) Archived() bool {
	return d.Status == domain.PolicyArchived
}

// rawNode is the wire shape shared by JSON and YAML:
//
//	{operator: AND, conditions: [{field: industry, operator: EQUALS, value: Healthcare}]}
type rawNode struct {
	Operator   string    `json:"operator" yaml:"operator"`
	Field      string    `json:"field,omitempty" yaml:"field,omitempty"`
	Value      any       `json:"value" yaml:"value"`
	Conditions []rawNode `json:"conditions,omitempty" yaml:"conditions,omitempty"`
}

func isLogical(op string) bool {
	switch LogicalOp(op) {
	case OpAnd, OpOr, OpNot:
		return true
	}
	return false
}

func (r rawNode) toNode() Node {
	op := strings.ToUpper(strings.TrimSpace(r.Operator))
	if r.Field == "" && (isLogical(op) || len(r.Conditions) > 0) {
		g := &Group{Op: LogicalOp(op), Children: make([]Node, 0, len(r.Conditions))}
		for _, c := range r.Conditions {
			g.Children = append(g.Children, c.toNode())
		}
		return g
	}
	return &Condition{Field: strings.TrimSpace(r.Field), Operator: Operator(op), Value: r.Value}
}

func toRaw(n Node) rawNode {
	switch v := n.(type) {
	case *Group:
		r := rawNode{Operator: string(v.Op), Conditions: make([]rawNode, 0, len(v.Children))}
		for _, c := range v.Children {
			r.Conditions = append(r.Conditions, toRaw(c))
		}
		return r
	case *Condition:
		return rawNode{Operator: string(v.Operator), Field: v.Field, Value: v.Value}
	}
	return rawNode{}
}

// groupFromRaw wraps a bare leaf root into a single-child AND.
func groupFromRaw(r rawNode) *Group {
	switch n := r.toNode().(type) {
	case *Group:
		return n
	default:
		return And(n)
	}
}

// ParseConditions decodes a JSON condition tree. A top-level array is read as
// an implicit AND.
func ParseConditions(data []byte) (*Group, error) {
	var g Group
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

func (g *Group) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var list []rawNode
		if err := json.Unmarshal(data, &list); err != nil {
			return fmt.Errorf("decode conditions: %w", err)
		}
		*g = *groupFromRaw(rawNode{Operator: string(OpAnd), Conditions: list})
		return nil
	}
	var r rawNode
	if err := json.Unmarshal(data, &r); err != nil {
		return fmt.Errorf("decode conditions: %w", err)
	}
	*g = *groupFromRaw(r)
	return nil
}

func (g *Group) MarshalJSON() ([]byte, error) {
	return json.Marshal(toRaw(g))
}

func (g *Group) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.SequenceNode {
		var list []rawNode
		if err := value.Decode(&list); err != nil {
			return fmt.Errorf("decode conditions: %w", err)
		}
		*g = *groupFromRaw(rawNode{Operator: string(OpAnd), Conditions: list})
		return nil
	}
	var r rawNode
	if err := value.Decode(&r); err != nil {
		return fmt.Errorf("decode conditions: %w", err)
	}
	*g = *groupFromRaw(r)
	return nil
}

func (g *Group) MarshalYAML() (any, error) {
	return toRaw(g), nil
}
