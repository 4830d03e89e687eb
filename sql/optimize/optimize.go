// Package optimize implements CokeDB's rule-based optimizer: a fixed
// sequence of rewrite passes over a plan.Node tree, each run once to a
// fixed point.
package optimize

import (
	"github.com/untoldecay/cokedb/sql/ast"
	"github.com/untoldecay/cokedb/sql/plan"
)

// Optimize runs the five passes, in order, over node: constant folding,
// predicate pushdown, equi-join discovery, join-predicate propagation,
// and index/key rewriting.
func Optimize(cat plan.TableSchema, node plan.Node) (plan.Node, error) {
	node = foldPlan(node)
	node = pushdownPlan(node)
	node = equiJoinPlan(node)
	node = propagateJoinPredicates(node)
	node, err := rewriteIndexLookups(cat, node)
	if err != nil {
		return nil, err
	}
	return node, nil
}

func children(n plan.Node) []plan.Node {
	switch v := n.(type) {
	case *plan.Filter:
		return []plan.Node{v.Child}
	case *plan.Projection:
		if v.Child == nil {
			return nil
		}
		return []plan.Node{v.Child}
	case *plan.Aggregate:
		return []plan.Node{v.Child}
	case *plan.Order:
		return []plan.Node{v.Child}
	case *plan.Limit:
		return []plan.Node{v.Child}
	case *plan.Offset:
		return []plan.Node{v.Child}
	case *plan.NestedLoopJoin:
		return []plan.Node{v.Left, v.Right}
	case *plan.HashJoin:
		return []plan.Node{v.Left, v.Right}
	case *plan.Update:
		return []plan.Node{v.Child}
	case *plan.Delete:
		return []plan.Node{v.Child}
	default:
		return nil
	}
}

// tableRefs collects the table aliases a subtree reads from, used to
// decide which side of a join a predicate conjunct belongs to.
func tableRefs(n plan.Node, out map[string]bool) {
	switch v := n.(type) {
	case *plan.Scan:
		out[v.Alias] = true
	case *plan.IndexLookup:
		out[v.Alias] = true
	case *plan.KeyLookup:
		out[v.Alias] = true
	default:
		for _, c := range children(n) {
			if c != nil {
				tableRefs(c, out)
			}
		}
	}
}

func exprTables(e ast.Expr, out map[string]bool) {
	switch n := e.(type) {
	case *ast.Column:
		if n.Table != "" {
			out[n.Table] = true
		}
	case *ast.Prefix:
		exprTables(n.Operand, out)
	case *ast.Postfix:
		exprTables(n.Operand, out)
	case *ast.Infix:
		exprTables(n.Left, out)
		exprTables(n.Right, out)
	case *ast.Call:
		for _, a := range n.Args {
			exprTables(a, out)
		}
	}
}

func subsetOf(a, b map[string]bool) bool {
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}

// splitConjuncts decomposes a top-level AND expression into its
// conjuncts.
func splitConjuncts(e ast.Expr) []ast.Expr {
	infix, ok := e.(*ast.Infix)
	if !ok || infix.Op != ast.OpAnd {
		return []ast.Expr{e}
	}
	return append(splitConjuncts(infix.Left), splitConjuncts(infix.Right)...)
}

func joinConjuncts(parts []ast.Expr) ast.Expr {
	if len(parts) == 0 {
		return nil
	}
	out := parts[0]
	for _, p := range parts[1:] {
		out = &ast.Infix{Op: ast.OpAnd, Left: out, Right: p}
	}
	return out
}
