package optimize

import (
	"github.com/untoldecay/cokedb/sql/ast"
	"github.com/untoldecay/cokedb/sql/plan"
)

// pushdownPlan implements rule 2: a Filter directly above a join is split
// on top-level AND conjuncts; conjuncts referencing only one side migrate
// into a Filter (or a fused Scan filter) on that side, conjuncts
// referencing both sides stay attached as a join predicate.
func pushdownPlan(node plan.Node) plan.Node {
	switch n := node.(type) {
	case *plan.Filter:
		n.Child = pushdownPlan(n.Child)
		if join, ok := n.Child.(*plan.NestedLoopJoin); ok {
			return pushdownIntoJoin(join, n.Expr)
		}
		return n
	case *plan.Projection:
		if n.Child != nil {
			n.Child = pushdownPlan(n.Child)
		}
		return n
	case *plan.Aggregate:
		n.Child = pushdownPlan(n.Child)
		return n
	case *plan.Order:
		n.Child = pushdownPlan(n.Child)
		return n
	case *plan.Limit:
		n.Child = pushdownPlan(n.Child)
		return n
	case *plan.Offset:
		n.Child = pushdownPlan(n.Child)
		return n
	case *plan.NestedLoopJoin:
		n.Left = pushdownPlan(n.Left)
		n.Right = pushdownPlan(n.Right)
		return n
	case *plan.HashJoin:
		n.Left = pushdownPlan(n.Left)
		n.Right = pushdownPlan(n.Right)
		return n
	case *plan.Update:
		n.Child = pushdownPlan(n.Child)
		return n
	case *plan.Delete:
		n.Child = pushdownPlan(n.Child)
		return n
	default:
		return node
	}
}

func pushdownIntoJoin(join *plan.NestedLoopJoin, expr ast.Expr) plan.Node {
	leftTables := map[string]bool{}
	tableRefs(join.Left, leftTables)
	rightTables := map[string]bool{}
	tableRefs(join.Right, rightTables)

	var leftParts, rightParts, bothParts []ast.Expr
	for _, c := range splitConjuncts(expr) {
		refs := map[string]bool{}
		exprTables(c, refs)
		switch {
		case len(refs) == 0:
			leftParts = append(leftParts, c)
		case subsetOf(refs, leftTables):
			leftParts = append(leftParts, c)
		case subsetOf(refs, rightTables):
			rightParts = append(rightParts, c)
		default:
			bothParts = append(bothParts, c)
		}
	}

	if len(leftParts) > 0 {
		join.Left = pushFilterIntoChild(join.Left, joinConjuncts(leftParts))
	}
	if len(rightParts) > 0 {
		join.Right = pushFilterIntoChild(join.Right, joinConjuncts(rightParts))
	}
	if len(bothParts) > 0 {
		extra := joinConjuncts(bothParts)
		if join.Predicate != nil {
			join.Predicate = &ast.Infix{Op: ast.OpAnd, Left: join.Predicate, Right: extra}
		} else {
			join.Predicate = extra
		}
	}
	return join
}

func pushFilterIntoChild(child plan.Node, expr ast.Expr) plan.Node {
	switch c := child.(type) {
	case *plan.Scan:
		if c.Filter != nil {
			c.Filter = &ast.Infix{Op: ast.OpAnd, Left: c.Filter, Right: expr}
		} else {
			c.Filter = expr
		}
		return c
	case *plan.NestedLoopJoin:
		return pushdownIntoJoin(c, expr)
	default:
		return &plan.Filter{Child: child, Expr: expr}
	}
}
