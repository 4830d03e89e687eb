package exec

import (
	"fmt"
	"strings"

	"github.com/untoldecay/cokedb/sql/ast"
	"github.com/untoldecay/cokedb/sql/plan"
)

// Explain renders node's plan tree in indented textual form — the same
// tree Execute would drive — for the EXPLAIN statement.
func Explain(node plan.Node) string {
	var b strings.Builder
	explainNode(&b, node, 0)
	return b.String()
}

func explainNode(b *strings.Builder, node plan.Node, depth int) {
	indent := strings.Repeat("  ", depth)
	switch n := node.(type) {
	case nil:
		fmt.Fprintf(b, "%s(no source)\n", indent)
	case *plan.Scan:
		fmt.Fprintf(b, "%sScan %s", indent, n.Table)
		if n.Alias != "" && n.Alias != n.Table {
			fmt.Fprintf(b, " AS %s", n.Alias)
		}
		if n.Filter != nil {
			fmt.Fprintf(b, " filter=%s", exprString(n.Filter))
		}
		b.WriteString("\n")
	case *plan.KeyLookup:
		fmt.Fprintf(b, "%sKeyLookup %s keys=%d", indent, n.Table, len(n.Keys))
		if n.Residual != nil {
			fmt.Fprintf(b, " residual=%s", exprString(n.Residual))
		}
		b.WriteString("\n")
	case *plan.IndexLookup:
		fmt.Fprintf(b, "%sIndexLookup %s.%s values=%d", indent, n.Table, n.Column, len(n.Values))
		if n.Residual != nil {
			fmt.Fprintf(b, " residual=%s", exprString(n.Residual))
		}
		b.WriteString("\n")
	case *plan.Filter:
		fmt.Fprintf(b, "%sFilter %s\n", indent, exprString(n.Expr))
		explainNode(b, n.Child, depth+1)
	case *plan.Projection:
		fmt.Fprintf(b, "%sProjection\n", indent)
		if n.Child != nil {
			explainNode(b, n.Child, depth+1)
		}
	case *plan.NestedLoopJoin:
		fmt.Fprintf(b, "%sNestedLoopJoin kind=%s", indent, joinKindString(n.Kind))
		if n.Predicate != nil {
			fmt.Fprintf(b, " on=%s", exprString(n.Predicate))
		}
		b.WriteString("\n")
		explainNode(b, n.Left, depth+1)
		explainNode(b, n.Right, depth+1)
	case *plan.HashJoin:
		fmt.Fprintf(b, "%sHashJoin kind=%s %s=%s", indent, joinKindString(n.Kind), exprString(n.LeftCol), exprString(n.RightCol))
		if n.Residual != nil {
			fmt.Fprintf(b, " residual=%s", exprString(n.Residual))
		}
		b.WriteString("\n")
		explainNode(b, n.Left, depth+1)
		explainNode(b, n.Right, depth+1)
	case *plan.Aggregate:
		fmt.Fprintf(b, "%sAggregate group_by=%d aggregates=%d\n", indent, len(n.GroupBy), len(n.Aggregates))
		explainNode(b, n.Child, depth+1)
	case *plan.Order:
		fmt.Fprintf(b, "%sOrder keys=%d\n", indent, len(n.Keys))
		explainNode(b, n.Child, depth+1)
	case *plan.Limit:
		fmt.Fprintf(b, "%sLimit %s\n", indent, exprString(n.N))
		explainNode(b, n.Child, depth+1)
	case *plan.Offset:
		fmt.Fprintf(b, "%sOffset %s\n", indent, exprString(n.N))
		explainNode(b, n.Child, depth+1)
	case *plan.Insert:
		fmt.Fprintf(b, "%sInsert %s rows=%d\n", indent, n.Table, len(n.Rows))
	case *plan.Update:
		fmt.Fprintf(b, "%sUpdate %s\n", indent, n.Table)
		explainNode(b, n.Child, depth+1)
	case *plan.Delete:
		fmt.Fprintf(b, "%sDelete %s\n", indent, n.Table)
		explainNode(b, n.Child, depth+1)
	case *plan.CreateTable:
		fmt.Fprintf(b, "%sCreateTable %s\n", indent, n.Table.Name)
	case *plan.DropTable:
		fmt.Fprintf(b, "%sDropTable %s\n", indent, n.Table)
	default:
		fmt.Fprintf(b, "%s%T\n", indent, node)
	}
}

// exprString renders an expression tree to a compact, readable form for
// EXPLAIN output; it is not a SQL-round-trippable unparse.
func exprString(e ast.Expr) string {
	switch n := e.(type) {
	case nil:
		return ""
	case *ast.Literal:
		return n.Value.String()
	case *ast.Column:
		if n.Table != "" {
			return n.Table + "." + n.Name
		}
		return n.Name
	case *ast.Star:
		return "*"
	case *ast.Prefix:
		return string(n.Op) + exprString(n.Operand)
	case *ast.Postfix:
		return exprString(n.Operand) + " " + string(n.Op)
	case *ast.Infix:
		return fmt.Sprintf("(%s %s %s)", exprString(n.Left), n.Op, exprString(n.Right))
	case *ast.Call:
		args := make([]string, len(n.Args))
		for i, a := range n.Args {
			args[i] = exprString(a)
		}
		return n.Name + "(" + strings.Join(args, ", ") + ")"
	default:
		return fmt.Sprintf("%v", e)
	}
}

func joinKindString(k plan.JoinKind) string {
	switch k {
	case plan.Inner:
		return "inner"
	case plan.Left:
		return "left"
	case plan.Right:
		return "right"
	default:
		return "cross"
	}
}
