package optimize

import (
	"github.com/untoldecay/cokedb/sql/ast"
	"github.com/untoldecay/cokedb/sql/eval"
	"github.com/untoldecay/cokedb/sql/plan"
)

// foldPlan constant-folds every expression attached to node and its
// descendants.
func foldPlan(node plan.Node) plan.Node {
	if node == nil {
		return nil
	}
	switch n := node.(type) {
	case *plan.Scan:
		n.Filter = foldExpr(n.Filter)
		return n
	case *plan.Filter:
		n.Child = foldPlan(n.Child)
		n.Expr = foldExpr(n.Expr)
		return n
	case *plan.Projection:
		n.Child = foldPlan(n.Child)
		for i := range n.Items {
			n.Items[i].Expr = foldExpr(n.Items[i].Expr)
		}
		return n
	case *plan.Aggregate:
		n.Child = foldPlan(n.Child)
		for i := range n.GroupBy {
			n.GroupBy[i] = foldExpr(n.GroupBy[i])
		}
		for i := range n.Aggregates {
			n.Aggregates[i].Arg = foldExpr(n.Aggregates[i].Arg)
		}
		return n
	case *plan.Order:
		n.Child = foldPlan(n.Child)
		for i := range n.Keys {
			n.Keys[i].Expr = foldExpr(n.Keys[i].Expr)
		}
		return n
	case *plan.Limit:
		n.Child = foldPlan(n.Child)
		n.N = foldExpr(n.N)
		return n
	case *plan.Offset:
		n.Child = foldPlan(n.Child)
		n.N = foldExpr(n.N)
		return n
	case *plan.NestedLoopJoin:
		n.Left = foldPlan(n.Left)
		n.Right = foldPlan(n.Right)
		n.Predicate = foldExpr(n.Predicate)
		return n
	case *plan.HashJoin:
		n.Left = foldPlan(n.Left)
		n.Right = foldPlan(n.Right)
		n.Residual = foldExpr(n.Residual)
		return n
	case *plan.Update:
		n.Child = foldPlan(n.Child)
		for i := range n.Assignments {
			n.Assignments[i].Value = foldExpr(n.Assignments[i].Value)
		}
		return n
	case *plan.Delete:
		n.Child = foldPlan(n.Child)
		return n
	case *plan.Insert:
		for r := range n.Rows {
			for c := range n.Rows[r] {
				n.Rows[r][c] = foldExpr(n.Rows[r][c])
			}
		}
		return n
	default:
		return node
	}
}

// foldExpr recursively folds pure (literal-only) subtrees to a single
// Literal, implementing Null propagation per SQL tri-valued logic via
// the shared eval semantics.
func foldExpr(e ast.Expr) ast.Expr {
	if e == nil {
		return nil
	}
	switch n := e.(type) {
	case *ast.Prefix:
		operand := foldExpr(n.Operand)
		n.Operand = operand
		if lit, ok := operand.(*ast.Literal); ok {
			if v, err := eval.Prefix(n.Op, lit.Value); err == nil {
				return &ast.Literal{Value: v, Offset: n.Offset}
			}
		}
		return n
	case *ast.Postfix:
		operand := foldExpr(n.Operand)
		n.Operand = operand
		if lit, ok := operand.(*ast.Literal); ok {
			if v, err := eval.Postfix(n.Op, lit.Value); err == nil {
				return &ast.Literal{Value: v, Offset: n.Offset}
			}
		}
		return n
	case *ast.Infix:
		left := foldExpr(n.Left)
		right := foldExpr(n.Right)
		n.Left, n.Right = left, right
		litL, okL := left.(*ast.Literal)
		litR, okR := right.(*ast.Literal)
		if okL && okR {
			if v, err := eval.Infix(n.Op, litL.Value, litR.Value); err == nil {
				return &ast.Literal{Value: v, Offset: n.Offset}
			}
		}
		return n
	case *ast.Call:
		for i := range n.Args {
			n.Args[i] = foldExpr(n.Args[i])
		}
		return n
	default:
		return e
	}
}
