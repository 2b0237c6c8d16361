package policy

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// MaxDepth bounds condition nesting.
const MaxDepth = 32

var (
	ErrUnknownOperator = errors.New("unknown operator")
	ErrNotArity        = errors.New("NOT requires exactly one child")
	ErrMalformed       = errors.New("malformed condition")
)

// ValidationError reports a malformed policy definition. It is raised when a
// policy is loaded, never while evaluating an already validated one.
type ValidationError struct {
	PolicyID string
	Path     string
	Reason   string
	Err      error
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString("invalid policy")
	if e.PolicyID != "" {
		b.WriteString(" " + e.PolicyID)
	}
	if e.Path != "" {
		b.WriteString(" at " + e.Path)
	}
	b.WriteString(": " + e.Reason)
	return b.String()
}

func (e *ValidationError) Unwrap() error { return e.Err }

// definitionValidate checks struct tags on Definition.
var definitionValidate = validator.New()

// ValidateDefinition checks the policy's own fields and then its condition tree.
func ValidateDefinition(d Definition) error {
	if err := definitionValidate.Struct(d); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return &ValidationError{
				PolicyID: d.ID,
				Path:     strings.ToLower(fe.Field()),
				Reason:   fmt.Sprintf("failed %q check (got %v)", fe.Tag(), fe.Value()),
				Err:      ErrMalformed,
			}
		}
		return &ValidationError{PolicyID: d.ID, Reason: err.Error(), Err: ErrMalformed}
	}
	if err := Validate(d.Conditions); err != nil {
		var ve *ValidationError
		if errors.As(err, &ve) {
			ve.PolicyID = d.ID
		}
		return err
	}
	return nil
}

// Validate checks a condition tree: known operators, NOT arity, leaf fields
// and values, and compilable regular expressions.
func Validate(root *Group) error {
	if root == nil {
		return &ValidationError{Path: "conditions", Reason: "missing condition group", Err: ErrMalformed}
	}
	return validateNode(root, "conditions", 1)
}

func validateNode(n Node, path string, depth int) error {
	if depth > MaxDepth {
		return &ValidationError{Path: path, Reason: fmt.Sprintf("nesting deeper than %d", MaxDepth), Err: ErrMalformed}
	}
	switch v := n.(type) {
	case *Group:
		if v == nil {
			return &ValidationError{Path: path, Reason: "nil group", Err: ErrMalformed}
		}
		switch v.Op {
		case OpAnd, OpOr:
		case OpNot:
			if len(v.Children) != 1 {
				return &ValidationError{
					Path:   path,
					Reason: fmt.Sprintf("NOT has %d children", len(v.Children)),
					Err:    ErrNotArity,
				}
			}
		default:
			return &ValidationError{Path: path, Reason: fmt.Sprintf("unknown group operator %q", v.Op), Err: ErrUnknownOperator}
		}
		for i, c := range v.Children {
			if err := validateNode(c, fmt.Sprintf("%s.conditions[%d]", path, i), depth+1); err != nil {
				return err
			}
		}
		return nil
	case *Condition:
		if v == nil {
			return &ValidationError{Path: path, Reason: "nil condition", Err: ErrMalformed}
		}
		return validateLeaf(v, path)
	default:
		return &ValidationError{Path: path, Reason: "empty node", Err: ErrMalformed}
	}
}

func validateLeaf(c *Condition, path string) error {
	if !c.Operator.Known() {
		return &ValidationError{Path: path, Reason: fmt.Sprintf("unknown operator %q", c.Operator), Err: ErrUnknownOperator}
	}
	if strings.TrimSpace(c.Field) == "" {
		return &ValidationError{Path: path, Reason: "condition has no field", Err: ErrMalformed}
	}
	if !c.Operator.NeedsValue() {
		return nil
	}
	if c.Value == nil {
		return &ValidationError{Path: path, Reason: fmt.Sprintf("%s requires a value", c.Operator), Err: ErrMalformed}
	}
	switch c.Operator {
	case RegexMatch:
		pattern, ok := c.Value.(string)
		if !ok {
			return &ValidationError{Path: path, Reason: "REGEX_MATCH value must be a string", Err: ErrMalformed}
		}
		if _, err := regexp.Compile(pattern); err != nil {
			return &ValidationError{Path: path, Reason: fmt.Sprintf("invalid pattern: %v", err), Err: err}
		}
	case GreaterThan, LessThan, GreaterEqual, LessEqual:
		if _, ok := numeric(c.Value); !ok {
			return &ValidationError{Path: path, Reason: fmt.Sprintf("%s value must be numeric", c.Operator), Err: ErrMalformed}
		}
	}
	return nil
}
