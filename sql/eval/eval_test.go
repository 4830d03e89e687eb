package eval

import (
	"testing"

	"github.com/untoldecay/cokedb/catalog"
	"github.com/untoldecay/cokedb/errs"
	"github.com/untoldecay/cokedb/sql/ast"
)

func TestInfixArithmeticPromotion(t *testing.T) {
	v, err := Infix(ast.OpDiv, catalog.Float(5), catalog.Int(2))
	if err != nil {
		t.Fatal(err)
	}
	if v.Kind != catalog.KindFloat || v.Flt != 2.5 {
		t.Fatalf("got %v, want 2.5", v)
	}
}

func TestInfixIntegerDivideByZero(t *testing.T) {
	_, err := Infix(ast.OpDiv, catalog.Int(1), catalog.Int(0))
	if !errsArithmetic(err) {
		t.Fatalf("expected Arithmetic error, got %v", err)
	}
}

func TestInfixIntegerOverflow(t *testing.T) {
	_, err := Infix(ast.OpAdd, catalog.Int(1<<62), catalog.Int(1<<62))
	if !errsArithmetic(err) {
		t.Fatalf("expected Arithmetic error, got %v", err)
	}
}

func TestInfixStringArithmeticIsEvaluationError(t *testing.T) {
	_, err := Infix(ast.OpAdd, catalog.String("a"), catalog.String("b"))
	if err == nil {
		t.Fatal("expected error for string +")
	}
}

func TestInfixNullPropagates(t *testing.T) {
	v, err := Infix(ast.OpAdd, catalog.Null(), catalog.Int(1))
	if err != nil || !v.IsNull() {
		t.Fatalf("got %v, err=%v, want NULL", v, err)
	}
}

func TestTriValuedAnd(t *testing.T) {
	cases := []struct {
		l, r catalog.Value
		want catalog.Value
	}{
		{catalog.Bool(false), catalog.Null(), catalog.Bool(false)},
		{catalog.Bool(true), catalog.Null(), catalog.Null()},
		{catalog.Null(), catalog.Null(), catalog.Null()},
		{catalog.Bool(true), catalog.Bool(true), catalog.Bool(true)},
	}
	for _, c := range cases {
		got, err := Infix(ast.OpAnd, c.l, c.r)
		if err != nil {
			t.Fatal(err)
		}
		if got.IsNull() != c.want.IsNull() || (!got.IsNull() && got.Bool != c.want.Bool) {
			t.Errorf("AND(%v,%v) = %v, want %v", c.l, c.r, got, c.want)
		}
	}
}

func TestTriValuedOr(t *testing.T) {
	got, err := Infix(ast.OpOr, catalog.Bool(true), catalog.Null())
	if err != nil || got.IsNull() || !got.Bool {
		t.Fatalf("got %v, err=%v, want TRUE", got, err)
	}
}

func TestIsNullNeverYieldsNull(t *testing.T) {
	v, err := Postfix(ast.OpIsNull, catalog.Null())
	if err != nil || v.IsNull() || !v.Bool {
		t.Fatalf("got %v, err=%v, want TRUE", v, err)
	}
	v2, err := Postfix(ast.OpIsNotNull, catalog.Int(1))
	if err != nil || v2.IsNull() || !v2.Bool {
		t.Fatalf("got %v, err=%v, want TRUE", v2, err)
	}
}

func TestLikeWildcardsAndEscape(t *testing.T) {
	cases := []struct {
		s, p string
		want bool
	}{
		{"hello", "h%", true},
		{"hello", "h_llo", true},
		{"hello", "h_lo", false},
		{"100%", `100\%`, true},
		{"100x", `100\%`, false},
		{"", "%", true},
	}
	for _, c := range cases {
		if got := Like(c.s, c.p); got != c.want {
			t.Errorf("Like(%q,%q) = %v, want %v", c.s, c.p, got, c.want)
		}
	}
}

func TestCompareOperators(t *testing.T) {
	v, err := Infix(ast.OpLt, catalog.Int(1), catalog.Int(2))
	if err != nil || v.IsNull() || !v.Bool {
		t.Fatalf("got %v, err=%v", v, err)
	}
}

func errsArithmetic(err error) bool {
	return errs.Is(err, errs.Arithmetic)
}
