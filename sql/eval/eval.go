// Package eval implements the value-level semantics of CokeDB's operators:
// arithmetic with Integer/Float promotion, tri-valued comparison and
// boolean logic, and LIKE pattern matching. It has no notion of rows or
// plans, so both the optimizer's constant folding and the executor's
// expression evaluation share one implementation of operator semantics.
package eval

import (
	"math"

	"github.com/untoldecay/cokedb/catalog"
	"github.com/untoldecay/cokedb/errs"
	"github.com/untoldecay/cokedb/sql/ast"
)

// Infix evaluates a binary operator over two already-computed operand
// values.
func Infix(op ast.InfixOp, l, r catalog.Value) (catalog.Value, error) {
	switch op {
	case ast.OpAnd:
		return evalAnd(l, r), nil
	case ast.OpOr:
		return evalOr(l, r), nil
	case ast.OpEq:
		return compareOp(l, r, func(c int) bool { return c == 0 })
	case ast.OpNeq:
		return compareOp(l, r, func(c int) bool { return c != 0 })
	case ast.OpLt:
		return compareOp(l, r, func(c int) bool { return c < 0 })
	case ast.OpLe:
		return compareOp(l, r, func(c int) bool { return c <= 0 })
	case ast.OpGt:
		return compareOp(l, r, func(c int) bool { return c > 0 })
	case ast.OpGe:
		return compareOp(l, r, func(c int) bool { return c >= 0 })
	case ast.OpLike:
		return evalLike(l, r)
	case ast.OpAdd:
		return arith(l, r, '+')
	case ast.OpSub:
		return arith(l, r, '-')
	case ast.OpMul:
		return arith(l, r, '*')
	case ast.OpDiv:
		return arith(l, r, '/')
	case ast.OpMod:
		return arith(l, r, '%')
	case ast.OpPow:
		return arith(l, r, '^')
	default:
		return catalog.Value{}, errs.Evaluationf("unsupported operator %q", op)
	}
}

// Prefix evaluates a unary prefix operator.
func Prefix(op ast.PrefixOp, v catalog.Value) (catalog.Value, error) {
	switch op {
	case ast.OpPos:
		if !isNumeric(v) {
			if v.IsNull() {
				return catalog.Null(), nil
			}
			return catalog.Value{}, errs.Evaluationf("unary + requires a numeric operand")
		}
		return v, nil
	case ast.OpNeg:
		if v.IsNull() {
			return catalog.Null(), nil
		}
		switch v.Kind {
		case catalog.KindInteger:
			if v.Int == math.MinInt64 {
				return catalog.Value{}, errs.Arithmeticf("integer overflow negating %d", v.Int)
			}
			return catalog.Int(-v.Int), nil
		case catalog.KindFloat:
			return catalog.Float(-v.Flt), nil
		default:
			return catalog.Value{}, errs.Evaluationf("unary - requires a numeric operand")
		}
	case ast.OpNot:
		return logicalNot(v), nil
	default:
		return catalog.Value{}, errs.Evaluationf("unsupported prefix operator %q", op)
	}
}

// Postfix evaluates a unary postfix operator: `!` (logical negation) or
// the tri-value-collapsing `IS NULL` / `IS NOT NULL` tests.
func Postfix(op ast.PostfixOp, v catalog.Value) (catalog.Value, error) {
	switch op {
	case ast.OpFactorial:
		return logicalNot(v), nil
	case ast.OpIsNull:
		return catalog.Bool(v.IsNull()), nil
	case ast.OpIsNotNull:
		return catalog.Bool(!v.IsNull()), nil
	default:
		return catalog.Value{}, errs.Evaluationf("unsupported postfix operator %q", op)
	}
}

func logicalNot(v catalog.Value) catalog.Value {
	if v.IsNull() {
		return catalog.Null()
	}
	return catalog.Bool(!v.Bool)
}

// evalAnd/evalOr implement SQL's tri-valued AND/OR (NULL behaves as
// "unknown": FALSE AND NULL is FALSE, TRUE OR NULL is TRUE, otherwise
// NULL propagates).
func evalAnd(l, r catalog.Value) catalog.Value {
	if !l.IsNull() && !l.Bool {
		return catalog.Bool(false)
	}
	if !r.IsNull() && !r.Bool {
		return catalog.Bool(false)
	}
	if l.IsNull() || r.IsNull() {
		return catalog.Null()
	}
	return catalog.Bool(true)
}

func evalOr(l, r catalog.Value) catalog.Value {
	if !l.IsNull() && l.Bool {
		return catalog.Bool(true)
	}
	if !r.IsNull() && r.Bool {
		return catalog.Bool(true)
	}
	if l.IsNull() || r.IsNull() {
		return catalog.Null()
	}
	return catalog.Bool(false)
}

func compareOp(l, r catalog.Value, pred func(int) bool) (catalog.Value, error) {
	if l.IsNull() || r.IsNull() {
		return catalog.Null(), nil
	}
	return catalog.Bool(pred(catalog.Compare(l, r))), nil
}

func isNumeric(v catalog.Value) bool {
	return v.Kind == catalog.KindInteger || v.Kind == catalog.KindFloat
}

// arith implements the six arithmetic operators with Integer->Float
// promotion on mixed operands. Division and modulo by zero raise
// Arithmetic; non-numeric operands (including the undefined string `+`)
// raise Evaluation.
func arith(l, r catalog.Value, op byte) (catalog.Value, error) {
	if l.IsNull() || r.IsNull() {
		return catalog.Null(), nil
	}
	if !isNumeric(l) || !isNumeric(r) {
		return catalog.Value{}, errs.Evaluationf("arithmetic requires numeric operands, got %s and %s", l.String(), r.String())
	}
	if l.Kind == catalog.KindInteger && r.Kind == catalog.KindInteger {
		return intArith(l.Int, r.Int, op)
	}
	return floatArith(l.AsFloat64(), r.AsFloat64(), op)
}

func intArith(a, b int64, op byte) (catalog.Value, error) {
	switch op {
	case '+':
		if catalog.AddOverflows(a, b) {
			return catalog.Value{}, errs.Arithmeticf("integer overflow: %d + %d", a, b)
		}
		return catalog.Int(a + b), nil
	case '-':
		if catalog.SubOverflows(a, b) {
			return catalog.Value{}, errs.Arithmeticf("integer overflow: %d - %d", a, b)
		}
		return catalog.Int(a - b), nil
	case '*':
		if catalog.MulOverflows(a, b) {
			return catalog.Value{}, errs.Arithmeticf("integer overflow: %d * %d", a, b)
		}
		return catalog.Int(a * b), nil
	case '/':
		if b == 0 {
			return catalog.Value{}, errs.Arithmeticf("division by zero")
		}
		return catalog.Int(a / b), nil
	case '%':
		if b == 0 {
			return catalog.Value{}, errs.Arithmeticf("division by zero")
		}
		return catalog.Int(a % b), nil
	case '^':
		return floatArith(float64(a), float64(b), op)
	default:
		return catalog.Value{}, errs.Evaluationf("unsupported arithmetic operator %q", op)
	}
}

func floatArith(a, b float64, op byte) (catalog.Value, error) {
	switch op {
	case '+':
		return catalog.Float(a + b), nil
	case '-':
		return catalog.Float(a - b), nil
	case '*':
		return catalog.Float(a * b), nil
	case '/':
		if b == 0 {
			return catalog.Value{}, errs.Arithmeticf("division by zero")
		}
		return catalog.Float(a / b), nil
	case '%':
		if b == 0 {
			return catalog.Value{}, errs.Arithmeticf("division by zero")
		}
		return catalog.Float(math.Mod(a, b)), nil
	case '^':
		return catalog.Float(math.Pow(a, b)), nil
	default:
		return catalog.Value{}, errs.Evaluationf("unsupported arithmetic operator %q", op)
	}
}

func evalLike(l, r catalog.Value) (catalog.Value, error) {
	if l.IsNull() || r.IsNull() {
		return catalog.Null(), nil
	}
	if l.Kind != catalog.KindString || r.Kind != catalog.KindString {
		return catalog.Value{}, errs.Evaluationf("LIKE requires string operands")
	}
	return catalog.Bool(Like(l.Str, r.Str)), nil
}

// Like implements SQL LIKE matching: `%` matches any run of characters,
// `_` matches exactly one, and a backslash escapes the following
// character (including itself).
func Like(s, pattern string) bool {
	return likeMatch(s, pattern)
}

func likeMatch(s, pattern string) bool {
	var sr, pr []rune = []rune(s), []rune(pattern)
	return likeMatchRunes(sr, pr)
}

func likeMatchRunes(s, p []rune) bool {
	if len(p) == 0 {
		return len(s) == 0
	}
	switch p[0] {
	case '%':
		// Try matching zero or more leading characters of s against the
		// rest of the pattern.
		for i := 0; i <= len(s); i++ {
			if likeMatchRunes(s[i:], p[1:]) {
				return true
			}
		}
		return false
	case '_':
		if len(s) == 0 {
			return false
		}
		return likeMatchRunes(s[1:], p[1:])
	case '\\':
		if len(p) < 2 {
			return false
		}
		if len(s) == 0 || s[0] != p[1] {
			return false
		}
		return likeMatchRunes(s[1:], p[2:])
	default:
		if len(s) == 0 || s[0] != p[0] {
			return false
		}
		return likeMatchRunes(s[1:], p[1:])
	}
}

