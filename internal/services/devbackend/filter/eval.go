package filter

import (
	"cmp"
	"fmt"
	"time"

	expr "google.golang.org/genproto/googleapis/api/expr/v1alpha1"
)

// Resolver returns a record's value for a field name.
type Resolver func(name string) (any, bool)

// MapResolver resolves fields from a record keyed by column name. time.Time
// values resolve to Unix milliseconds to match timestamp literals.
func MapResolver(schema Schema, record map[string]any) Resolver {
	return func(name string) (any, bool) {
		column, ok := schema.column(name)
		if !ok {
			return nil, false
		}
		value, ok := record[column]
		if at, isTime := value.(time.Time); isTime {
			return at.UTC().UnixMilli(), ok
		}
		return value, ok
	}
}

// Evaluate reports whether a record matches a parsed expression. A nil
// expression matches every record.
func Evaluate(e *expr.Expr, resolve Resolver) (bool, error) {
	if e == nil {
		return true, nil
	}
	call, ok := e.ExprKind.(*expr.Expr_CallExpr)
	if !ok {
		return false, fmt.Errorf("unsupported expression type: %T", e.ExprKind)
	}
	return evalCall(call.CallExpr, resolve)
}

func evalCall(call *expr.Expr_Call, resolve Resolver) (bool, error) {
	switch call.Function {
	case "_&&_", "AND":
		if len(call.Args) != 2 {
			return false, fmt.Errorf("AND requires 2 arguments")
		}
		left, err := Evaluate(call.Args[0], resolve)
		if err != nil || !left {
			return false, err
		}
		return Evaluate(call.Args[1], resolve)
	case "_||_", "OR":
		if len(call.Args) != 2 {
			return false, fmt.Errorf("OR requires 2 arguments")
		}
		left, err := Evaluate(call.Args[0], resolve)
		if err != nil || left {
			return left, err
		}
		return Evaluate(call.Args[1], resolve)
	case "NOT", "!_", "-":
		if len(call.Args) != 1 {
			return false, fmt.Errorf("NOT requires 1 argument")
		}
		inner, err := Evaluate(call.Args[0], resolve)
		return !inner, err
	}
	op, ok := comparisonOp(call.Function)
	if !ok {
		return false, fmt.Errorf("unsupported function: %s", call.Function)
	}
	return evalCompare(call.Args, resolve, op)
}

func evalCompare(args []*expr.Expr, resolve Resolver, op string) (bool, error) {
	if len(args) != 2 {
		return false, fmt.Errorf("comparison requires 2 arguments")
	}
	field, err := extractFieldName(args[0])
	if err != nil {
		return false, err
	}
	left, ok := resolve(field)
	if !ok {
		return false, fmt.Errorf("unknown field: %s", field)
	}
	right, err := extractValue(args[1])
	if err != nil {
		return false, err
	}
	if left == nil {
		// SQL semantics: NULL never satisfies a comparison.
		return false, nil
	}

	result, err := compareValues(left, right)
	if err != nil {
		return false, err
	}
	switch op {
	case "=":
		return result == 0, nil
	case "!=":
		return result != 0, nil
	case "<":
		return result < 0, nil
	case "<=":
		return result <= 0, nil
	case ">":
		return result > 0, nil
	case ">=":
		return result >= 0, nil
	default:
		return false, fmt.Errorf("unsupported operator: %s", op)
	}
}

func compareValues(left, right any) (int, error) {
	switch l := left.(type) {
	case string:
		r, ok := right.(string)
		if !ok {
			return 0, fmt.Errorf("type mismatch: string vs %T", right)
		}
		return cmp.Compare(l, r), nil
	case bool:
		r, ok := right.(bool)
		if !ok {
			return 0, fmt.Errorf("type mismatch: bool vs %T", right)
		}
		return compareBools(l, r), nil
	}
	l, ok := toFloat(left)
	if !ok {
		return 0, fmt.Errorf("unsupported value type: %T", left)
	}
	r, ok := toFloat(right)
	if !ok {
		return 0, fmt.Errorf("type mismatch: number vs %T", right)
	}
	return cmp.Compare(l, r), nil
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	default:
		return 0, false
	}
}

func compareBools(left, right bool) int {
	switch {
	case left == right:
		return 0
	case !left:
		return -1
	default:
		return 1
	}
}
