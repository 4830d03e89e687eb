package optimize

import (
	"github.com/untoldecay/cokedb/sql/ast"
	"github.com/untoldecay/cokedb/sql/plan"
)

// rewriteIndexLookups implements rule 5: a pushed-down Filter over a Scan
// whose expression is a disjunction/equality on the primary key becomes a
// KeyLookup; on an indexed column it becomes an IndexLookup. Any residual
// conjunct is preserved on the lookup node and applied by the executor as
// if by a Filter on top.
func rewriteIndexLookups(cat plan.TableSchema, node plan.Node) (plan.Node, error) {
	switch n := node.(type) {
	case *plan.Filter:
		child, err := rewriteIndexLookups(cat, n.Child)
		if err != nil {
			return nil, err
		}
		n.Child = child
		if scan, ok := child.(*plan.Scan); ok {
			rewritten, err := tryRewriteScan(cat, scan, n.Expr)
			if err != nil {
				return nil, err
			}
			if rewritten != nil {
				return rewritten, nil
			}
		}
		return n, nil
	case *plan.Scan:
		if n.Filter == nil {
			return n, nil
		}
		rewritten, err := tryRewriteScan(cat, n, n.Filter)
		if err != nil {
			return nil, err
		}
		if rewritten != nil {
			return rewritten, nil
		}
		return n, nil
	case *plan.Projection:
		if n.Child != nil {
			child, err := rewriteIndexLookups(cat, n.Child)
			if err != nil {
				return nil, err
			}
			n.Child = child
		}
		return n, nil
	case *plan.Aggregate:
		child, err := rewriteIndexLookups(cat, n.Child)
		if err != nil {
			return nil, err
		}
		n.Child = child
		return n, nil
	case *plan.Order:
		child, err := rewriteIndexLookups(cat, n.Child)
		if err != nil {
			return nil, err
		}
		n.Child = child
		return n, nil
	case *plan.Limit:
		child, err := rewriteIndexLookups(cat, n.Child)
		if err != nil {
			return nil, err
		}
		n.Child = child
		return n, nil
	case *plan.Offset:
		child, err := rewriteIndexLookups(cat, n.Child)
		if err != nil {
			return nil, err
		}
		n.Child = child
		return n, nil
	case *plan.NestedLoopJoin:
		left, err := rewriteIndexLookups(cat, n.Left)
		if err != nil {
			return nil, err
		}
		right, err := rewriteIndexLookups(cat, n.Right)
		if err != nil {
			return nil, err
		}
		n.Left, n.Right = left, right
		return n, nil
	case *plan.HashJoin:
		left, err := rewriteIndexLookups(cat, n.Left)
		if err != nil {
			return nil, err
		}
		right, err := rewriteIndexLookups(cat, n.Right)
		if err != nil {
			return nil, err
		}
		n.Left, n.Right = left, right
		return n, nil
	case *plan.Update:
		child, err := rewriteIndexLookups(cat, n.Child)
		if err != nil {
			return nil, err
		}
		n.Child = child
		return n, nil
	case *plan.Delete:
		child, err := rewriteIndexLookups(cat, n.Child)
		if err != nil {
			return nil, err
		}
		n.Child = child
		return n, nil
	default:
		return node, nil
	}
}

func tryRewriteScan(cat plan.TableSchema, scan *plan.Scan, predicate ast.Expr) (plan.Node, error) {
	t, err := cat.GetTable(scan.Table)
	if err != nil {
		return nil, err
	}
	pkName := t.Columns[t.PKIndex()].Name
	indexed := map[string]bool{}
	for _, ci := range t.IndexedColumns() {
		indexed[t.Columns[ci].Name] = true
	}

	conjuncts := splitConjuncts(predicate)
	for i, c := range conjuncts {
		colName, ok := detectEqualityColumn(c)
		if !ok {
			continue
		}
		values, ok := extractEqualityValues(c, colName)
		if !ok {
			continue
		}
		residual := joinConjuncts(append(append([]ast.Expr{}, conjuncts[:i]...), conjuncts[i+1:]...))
		if colName == pkName {
			return &plan.KeyLookup{Table: scan.Table, Alias: scan.Alias, Keys: values, Residual: residual, Cols: scan.Cols}, nil
		}
		if indexed[colName] {
			return &plan.IndexLookup{Table: scan.Table, Alias: scan.Alias, Column: colName, Values: values, Residual: residual, Cols: scan.Cols}, nil
		}
	}
	return nil, nil
}

// detectEqualityColumn reports the single column name an equality or
// OR-chain-of-equalities conjunct is entirely about, e.g. `id = 1` or
// `id = 1 OR id = 2`.
func detectEqualityColumn(e ast.Expr) (string, bool) {
	infix, ok := e.(*ast.Infix)
	if !ok {
		return "", false
	}
	switch infix.Op {
	case ast.OpEq:
		if c, ok := infix.Left.(*ast.Column); ok {
			if _, ok2 := infix.Right.(*ast.Literal); ok2 {
				return c.Name, true
			}
		}
		if c, ok := infix.Right.(*ast.Column); ok {
			if _, ok2 := infix.Left.(*ast.Literal); ok2 {
				return c.Name, true
			}
		}
		return "", false
	case ast.OpOr:
		lname, lok := detectEqualityColumn(infix.Left)
		rname, rok := detectEqualityColumn(infix.Right)
		if lok && rok && lname == rname {
			return lname, true
		}
		return "", false
	default:
		return "", false
	}
}

func extractEqualityValues(e ast.Expr, col string) ([]ast.Expr, bool) {
	infix, ok := e.(*ast.Infix)
	if !ok {
		return nil, false
	}
	switch infix.Op {
	case ast.OpEq:
		if c, ok := infix.Left.(*ast.Column); ok && c.Name == col {
			if lit, ok2 := infix.Right.(*ast.Literal); ok2 {
				return []ast.Expr{lit}, true
			}
		}
		if c, ok := infix.Right.(*ast.Column); ok && c.Name == col {
			if lit, ok2 := infix.Left.(*ast.Literal); ok2 {
				return []ast.Expr{lit}, true
			}
		}
		return nil, false
	case ast.OpOr:
		lv, lok := extractEqualityValues(infix.Left, col)
		rv, rok := extractEqualityValues(infix.Right, col)
		if lok && rok {
			return append(lv, rv...), true
		}
		return nil, false
	default:
		return nil, false
	}
}
