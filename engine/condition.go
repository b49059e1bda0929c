package engine

import (
	"fmt"
	"strings"

	"github.com/orchehq/orchepy/model"
)

// EvaluateCondition tests a simple or complex condition against a case. AND
// short-circuits on the first false leaf, OR on the first true one; an
// evaluation error from any leaf propagates.
func EvaluateCondition(cond *model.Condition, c *model.Case) (bool, error) {
	if cond == nil {
		return false, fmt.Errorf("condition is missing")
	}

	if !cond.IsComplex() {
		return evaluateSimple(cond.Field, cond.Operator, cond.Value, c)
	}

	switch cond.Operator {
	case model.LogicalAnd:
		for _, leaf := range cond.Conditions {
			ok, err := evaluateSimple(leaf.Field, leaf.Operator, leaf.Value, c)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil
	case model.LogicalOr:
		for _, leaf := range cond.Conditions {
			ok, err := evaluateSimple(leaf.Field, leaf.Operator, leaf.Value, c)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	default:
		return false, fmt.Errorf("unsupported logical operator: %s", cond.Operator)
	}
}

func evaluateSimple(field, operator string, expected any, c *model.Case) (bool, error) {
	actual, err := caseFieldValue(field, c)
	if err != nil {
		return false, err
	}

	switch operator {
	case "==", "=":
		return jsonEqual(actual, expected), nil
	case "!=":
		return !jsonEqual(actual, expected), nil
	case ">", "<", ">=", "<=":
		a, aok := asFloat(actual)
		b, bok := asFloat(expected)
		if !aok || !bok {
			return false, fmt.Errorf("cannot compare non-numeric values with %s", operator)
		}
		switch operator {
		case ">":
			return a > b, nil
		case "<":
			return a < b, nil
		case ">=":
			return a >= b, nil
		default:
			return a <= b, nil
		}
	case "contains":
		s, ok := actual.(string)
		if !ok {
			return false, fmt.Errorf("contains operator requires string actual value")
		}
		substr, ok := expected.(string)
		if !ok {
			return false, fmt.Errorf("contains operator requires string expected value")
		}
		return strings.Contains(s, substr), nil
	default:
		return false, fmt.Errorf("unsupported operator: %s", operator)
	}
}

// caseFieldValue resolves a dotted field path against a case. The first
// segment selects the root; further segments drill into the data document.
func caseFieldValue(field string, c *model.Case) (any, error) {
	parts := strings.Split(field, ".")

	switch parts[0] {
	case "data":
		var current any = c.Data
		for _, part := range parts[1:] {
			obj, ok := current.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("field %q not found", field)
			}
			current, ok = obj[part]
			if !ok {
				return nil, fmt.Errorf("field %q not found", field)
			}
		}
		return current, nil
	case "status":
		return string(c.Status), nil
	case "current_phase":
		return c.CurrentPhase, nil
	case "previous_phase":
		if c.PreviousPhase == nil {
			return nil, nil
		}
		return *c.PreviousPhase, nil
	default:
		return nil, fmt.Errorf("unsupported field path: %s", field)
	}
}
