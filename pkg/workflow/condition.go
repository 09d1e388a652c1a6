package workflow

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Condition is a parsed dependency condition: <operand> <op> <operand>,
// where an operand is either the keyword `result` (the serialized
// dependency output) or a literal, optionally quoted.
type Condition struct {
	Left  operand
	Op    string
	Right operand
}

type operand struct {
	isResult bool
	literal  string
}

// ConditionError reports an expression outside the supported grammar.
// Only `==` and `!=` are recognized; anything richer is rejected at
// validation time rather than silently misread.
type ConditionError struct {
	Expression string
	Reason     string
}

func (e *ConditionError) Error() string {
	return fmt.Sprintf("workflow: invalid condition %q: %s", e.Expression, e.Reason)
}

// ParseCondition parses a condition expression. An empty expression parses
// to nil, which always evaluates true.
func ParseCondition(expr string) (*Condition, error) {
	trimmed := strings.TrimSpace(expr)
	if trimmed == "" {
		return nil, nil
	}

	var op string
	var idx int
	eqIdx := strings.Index(trimmed, "==")
	neIdx := strings.Index(trimmed, "!=")

	switch {
	case eqIdx >= 0 && (neIdx < 0 || eqIdx < neIdx):
		op, idx = "==", eqIdx
	case neIdx >= 0:
		op, idx = "!=", neIdx
	default:
		return nil, &ConditionError{Expression: expr, Reason: "expected == or !="}
	}

	left, err := parseOperand(trimmed[:idx], expr)
	if err != nil {
		return nil, err
	}
	right, err := parseOperand(trimmed[idx+2:], expr)
	if err != nil {
		return nil, err
	}

	return &Condition{Left: left, Op: op, Right: right}, nil
}

func parseOperand(raw, expr string) (operand, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return operand{}, &ConditionError{Expression: expr, Reason: "missing operand"}
	}

	if trimmed == "result" {
		return operand{isResult: true}, nil
	}

	if len(trimmed) >= 2 {
		first, last := trimmed[0], trimmed[len(trimmed)-1]
		if (first == '\'' && last == '\'') || (first == '"' && last == '"') {
			return operand{literal: trimmed[1 : len(trimmed)-1]}, nil
		}
	}

	return operand{literal: trimmed}, nil
}

// Eval evaluates the condition against a completed dependency output. A
// nil condition is true.
func (c *Condition) Eval(output interface{}) bool {
	if c == nil {
		return true
	}

	left := c.Left.resolve(output)
	right := c.Right.resolve(output)

	if c.Op == "==" {
		return left == right
	}
	return left != right
}

// EvalCondition parses and evaluates an expression in one step.
func EvalCondition(expr string, output interface{}) (bool, error) {
	cond, err := ParseCondition(expr)
	if err != nil {
		return false, err
	}
	return cond.Eval(output), nil
}

func (o operand) resolve(output interface{}) string {
	if o.isResult {
		return serializeResult(output)
	}
	return o.literal
}

// serializeResult renders the dependency output for comparison: strings
// compare by value, everything else by compact JSON.
func serializeResult(output interface{}) string {
	switch v := output.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(encoded)
	}
}
