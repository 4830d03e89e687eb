package optimize

import (
	"github.com/untoldecay/cokedb/sql/ast"
	"github.com/untoldecay/cokedb/sql/plan"
)

// equiJoinPlan implements rule 3: a join predicate of the form
// `left.col = right.col` promotes a NestedLoopJoin to a HashJoin, with
// remaining conjuncts kept as a residual filter atop it.
func equiJoinPlan(node plan.Node) plan.Node {
	switch n := node.(type) {
	case *plan.Filter:
		n.Child = equiJoinPlan(n.Child)
		return n
	case *plan.Projection:
		if n.Child != nil {
			n.Child = equiJoinPlan(n.Child)
		}
		return n
	case *plan.Aggregate:
		n.Child = equiJoinPlan(n.Child)
		return n
	case *plan.Order:
		n.Child = equiJoinPlan(n.Child)
		return n
	case *plan.Limit:
		n.Child = equiJoinPlan(n.Child)
		return n
	case *plan.Offset:
		n.Child = equiJoinPlan(n.Child)
		return n
	case *plan.NestedLoopJoin:
		n.Left = equiJoinPlan(n.Left)
		n.Right = equiJoinPlan(n.Right)
		return tryHashJoin(n)
	case *plan.HashJoin:
		n.Left = equiJoinPlan(n.Left)
		n.Right = equiJoinPlan(n.Right)
		return n
	case *plan.Update:
		n.Child = equiJoinPlan(n.Child)
		return n
	case *plan.Delete:
		n.Child = equiJoinPlan(n.Child)
		return n
	default:
		return node
	}
}

func tryHashJoin(n *plan.NestedLoopJoin) plan.Node {
	if n.Predicate == nil || n.Kind == plan.Cross {
		return n
	}
	leftTables := map[string]bool{}
	tableRefs(n.Left, leftTables)
	rightTables := map[string]bool{}
	tableRefs(n.Right, rightTables)

	conjuncts := splitConjuncts(n.Predicate)
	for i, c := range conjuncts {
		infix, ok := c.(*ast.Infix)
		if !ok || infix.Op != ast.OpEq {
			continue
		}
		lc, lok := infix.Left.(*ast.Column)
		rc, rok := infix.Right.(*ast.Column)
		if !lok || !rok || lc.Table == "" || rc.Table == "" {
			continue
		}
		var leftCol, rightCol ast.Expr
		if leftTables[lc.Table] && rightTables[rc.Table] {
			leftCol, rightCol = lc, rc
		} else if leftTables[rc.Table] && rightTables[lc.Table] {
			leftCol, rightCol = rc, lc
		} else {
			continue
		}
		residual := joinConjuncts(append(append([]ast.Expr{}, conjuncts[:i]...), conjuncts[i+1:]...))
		return &plan.HashJoin{
			Left:     n.Left,
			Right:    n.Right,
			LeftCol:  leftCol,
			RightCol: rightCol,
			Kind:     n.Kind,
			Residual: residual,
			Cols:     n.Cols,
		}
	}
	return n
}

// propagateJoinPredicates implements rule 4: for a HashJoin's equi-column
// pair `a = b`, a const equality filter on one side (`a = const`) pushed
// down by rule 2 is mirrored as `b = const` on the opposite side, which a
// later pass (or a repeat of index rewriting) can turn into a lookup.
func propagateJoinPredicates(node plan.Node) plan.Node {
	switch n := node.(type) {
	case *plan.Filter:
		n.Child = propagateJoinPredicates(n.Child)
		return n
	case *plan.Projection:
		if n.Child != nil {
			n.Child = propagateJoinPredicates(n.Child)
		}
		return n
	case *plan.Aggregate:
		n.Child = propagateJoinPredicates(n.Child)
		return n
	case *plan.Order:
		n.Child = propagateJoinPredicates(n.Child)
		return n
	case *plan.Limit:
		n.Child = propagateJoinPredicates(n.Child)
		return n
	case *plan.Offset:
		n.Child = propagateJoinPredicates(n.Child)
		return n
	case *plan.HashJoin:
		n.Left = propagateJoinPredicates(n.Left)
		n.Right = propagateJoinPredicates(n.Right)
		propagateHashJoin(n)
		return n
	case *plan.NestedLoopJoin:
		n.Left = propagateJoinPredicates(n.Left)
		n.Right = propagateJoinPredicates(n.Right)
		return n
	case *plan.Update:
		n.Child = propagateJoinPredicates(n.Child)
		return n
	case *plan.Delete:
		n.Child = propagateJoinPredicates(n.Child)
		return n
	default:
		return node
	}
}

func propagateHashJoin(n *plan.HashJoin) {
	lc, lok := n.LeftCol.(*ast.Column)
	rc, rok := n.RightCol.(*ast.Column)
	if !lok || !rok {
		return
	}
	if lit, ok := findConstEquality(scanFilterOf(n.Left), lc); ok {
		addEqualityFilter(n.Right, rc, lit)
	}
	if lit, ok := findConstEquality(scanFilterOf(n.Right), rc); ok {
		addEqualityFilter(n.Left, lc, lit)
	}
}

func scanFilterOf(node plan.Node) ast.Expr {
	switch n := node.(type) {
	case *plan.Scan:
		return n.Filter
	case *plan.Filter:
		return n.Expr
	default:
		return nil
	}
}

func findConstEquality(expr ast.Expr, col *ast.Column) (*ast.Literal, bool) {
	if expr == nil {
		return nil, false
	}
	for _, c := range splitConjuncts(expr) {
		infix, ok := c.(*ast.Infix)
		if !ok || infix.Op != ast.OpEq {
			continue
		}
		if lcol, ok := infix.Left.(*ast.Column); ok && sameColumn(lcol, col) {
			if lit, ok := infix.Right.(*ast.Literal); ok {
				return lit, true
			}
		}
		if rcol, ok := infix.Right.(*ast.Column); ok && sameColumn(rcol, col) {
			if lit, ok := infix.Left.(*ast.Literal); ok {
				return lit, true
			}
		}
	}
	return nil, false
}

func sameColumn(a, b *ast.Column) bool {
	return a.Name == b.Name && (a.Table == "" || b.Table == "" || a.Table == b.Table)
}

func addEqualityFilter(node plan.Node, col *ast.Column, lit *ast.Literal) {
	eq := &ast.Infix{Op: ast.OpEq, Left: col, Right: lit}
	switch n := node.(type) {
	case *plan.Scan:
		if n.Filter != nil {
			n.Filter = &ast.Infix{Op: ast.OpAnd, Left: n.Filter, Right: eq}
		} else {
			n.Filter = eq
		}
	case *plan.Filter:
		n.Expr = &ast.Infix{Op: ast.OpAnd, Left: n.Expr, Right: eq}
	}
}
