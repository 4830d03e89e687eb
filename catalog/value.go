// Package catalog implements C3: it encodes tables, rows, and indexes onto
// an mvcc.Txn and enforces schema invariants (type checks, NOT NULL,
// UNIQUE, primary-key presence and uniqueness).
package catalog

import (
	"fmt"
	"math"
	"strings"
)

// Type is a column's declared SQL type.
type Type int

const (
	TypeBool Type = iota
	TypeInteger
	TypeFloat
	TypeString
)

func (t Type) String() string {
	switch t {
	case TypeBool:
		return "BOOL"
	case TypeInteger:
		return "INTEGER"
	case TypeFloat:
		return "FLOAT"
	case TypeString:
		return "STRING"
	default:
		return "UNKNOWN"
	}
}

// ValueKind tags a Value's dynamic variant.
type ValueKind int

const (
	KindNull ValueKind = iota
	KindBool
	KindInteger
	KindFloat
	KindString
)

// Value is the tagged scalar used throughout the query engine.
type Value struct {
	Kind ValueKind
	Bool bool
	Int  int64
	Flt  float64
	Str  string
}

func Null() Value               { return Value{Kind: KindNull} }
func Bool(b bool) Value         { return Value{Kind: KindBool, Bool: b} }
func Int(i int64) Value         { return Value{Kind: KindInteger, Int: i} }
func Float(f float64) Value     { return Value{Kind: KindFloat, Flt: f} }
func String(s string) Value     { return Value{Kind: KindString, Str: s} }

func (v Value) IsNull() bool { return v.Kind == KindNull }

// AsFloat64 returns the numeric value of an Integer or Float as float64.
// Callers must check Kind first; it panics on a non-numeric Value.
func (v Value) AsFloat64() float64 {
	switch v.Kind {
	case KindInteger:
		return float64(v.Int)
	case KindFloat:
		return v.Flt
	default:
		panic(fmt.Sprintf("AsFloat64 on non-numeric value kind %d", v.Kind))
	}
}

func (v Value) String() string {
	switch v.Kind {
	case KindNull:
		return "NULL"
	case KindBool:
		return fmt.Sprintf("%t", v.Bool)
	case KindInteger:
		return fmt.Sprintf("%d", v.Int)
	case KindFloat:
		return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%f", v.Flt), "0"), ".")
	case KindString:
		return v.Str
	default:
		return "?"
	}
}

// typeOf reports the declared Type a Value's kind corresponds to; it is
// undefined (and unused) for KindNull, which is valid for any nullable
// column.
func (v Value) typeOf() Type {
	switch v.Kind {
	case KindBool:
		return TypeBool
	case KindInteger:
		return TypeInteger
	case KindFloat:
		return TypeFloat
	case KindString:
		return TypeString
	default:
		return TypeString
	}
}

// orderRank gives Value's variant its place in Null < Bool < Integer/Float
// < String.
func (v Value) orderRank() int {
	switch v.Kind {
	case KindNull:
		return 0
	case KindBool:
		return 1
	case KindInteger, KindFloat:
		return 2
	case KindString:
		return 3
	default:
		return 4
	}
}

// Compare orders two Values: Null < Bool < numeric < String, numerics
// compare across Integer/Float, Nulls compare equal to each other (used
// for ORDER BY / GROUP BY / index ordering, not for tri-valued SQL
// equality).
func Compare(a, b Value) int {
	ra, rb := a.orderRank(), b.orderRank()
	if ra != rb {
		return ra - rb
	}
	switch a.Kind {
	case KindNull:
		return 0
	case KindBool:
		if a.Bool == b.Bool {
			return 0
		}
		if !a.Bool {
			return -1
		}
		return 1
	case KindInteger, KindFloat:
		af, bf := a.AsFloat64(), b.AsFloat64()
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	case KindString:
		return strings.Compare(a.Str, b.Str)
	default:
		return 0
	}
}

// Equal is grouping/ordering equality: unlike SQL `=`, two Nulls are equal.
func Equal(a, b Value) bool { return Compare(a, b) == 0 }

// AddOverflows, SubOverflows, and MulOverflows report whether integer
// addition, subtraction, or multiplication of a and b overflows int64;
// the executor's Arithmetic error for integer overflow relies on these
// rather than letting Go wrap silently.
func AddOverflows(a, b int64) bool {
	sum := a + b
	return ((a > 0 && b > 0 && sum < 0) || (a < 0 && b < 0 && sum > 0))
}

func SubOverflows(a, b int64) bool {
	diff := a - b
	return ((a > 0 && b < 0 && diff < 0) || (a < 0 && b > 0 && diff > 0))
}

func MulOverflows(a, b int64) bool {
	if a == 0 || b == 0 {
		return false
	}
	p := a * b
	return p/b != a || (a == -1 && b == math.MinInt64) || (b == -1 && a == math.MinInt64)
}
