package plan

import (
	"fmt"

	"github.com/untoldecay/cokedb/catalog"
	"github.com/untoldecay/cokedb/errs"
	"github.com/untoldecay/cokedb/sql/ast"
)

var aggFuncNames = map[string]AggFunc{
	"count":   AggCount,
	"sum":     AggSum,
	"avg":     AggAvg,
	"average": AggAvg,
	"min":     AggMin,
	"max":     AggMax,
}

// Build turns a parsed statement into an initial (unoptimized) plan tree,
// following a fixed build order: FROM, then Filter(WHERE), Aggregate,
// Filter(HAVING), Projection, Order, Offset, Limit.
func Build(cat TableSchema, stmt ast.Statement) (Node, error) {
	switch s := stmt.(type) {
	case *ast.SelectStmt:
		return buildSelect(cat, s)
	case *ast.InsertStmt:
		return buildInsert(cat, s)
	case *ast.UpdateStmt:
		return buildUpdate(cat, s)
	case *ast.DeleteStmt:
		return buildDelete(cat, s)
	case *ast.CreateTableStmt:
		return buildCreateTable(s)
	case *ast.DropTableStmt:
		return &DropTable{Table: s.Table}, nil
	case *ast.ExplainStmt:
		return Build(cat, s.Stmt)
	default:
		return nil, errUnsupported("unsupported statement %T", stmt)
	}
}

func buildSelect(cat TableSchema, s *ast.SelectStmt) (Node, error) {
	var node Node
	var err error
	if len(s.From) > 0 {
		node, err = buildFrom(cat, s.From)
		if err != nil {
			return nil, err
		}
	}

	if s.Where != nil {
		if node == nil {
			return nil, errs.Parsef(0, "WHERE requires a FROM clause")
		}
		node = &Filter{Child: node, Expr: s.Where}
	}

	groupExprs, aggs, rewrite := collectAggregation(s)
	if len(groupExprs) > 0 || len(aggs) > 0 {
		if node == nil {
			return nil, errs.Parsef(0, "aggregation requires a FROM clause")
		}
		cols := make(Schema, 0, len(groupExprs)+len(aggs))
		for i, g := range groupExprs {
			cols = append(cols, Column{Name: groupColName(i, g)})
		}
		for _, a := range aggs {
			cols = append(cols, Column{Name: a.Alias})
		}
		node = &Aggregate{Child: node, GroupBy: groupExprs, Aggregates: aggs, Cols: cols}
	}

	if s.Having != nil {
		node = &Filter{Child: node, Expr: rewrite(s.Having)}
	}

	items := make([]ProjectItem, 0, len(s.Projection))
	cols := make(Schema, 0, len(s.Projection))
	for _, p := range s.Projection {
		if p.Star {
			if node == nil {
				return nil, errs.Parsef(0, "SELECT * requires a FROM clause")
			}
			for _, c := range node.Schema() {
				items = append(items, ProjectItem{Expr: &ast.Column{Name: c.Name}})
				cols = append(cols, c)
			}
			continue
		}
		e := rewrite(p.Expr)
		name := p.Alias
		if name == "" {
			name = exprDisplayName(p.Expr)
		}
		items = append(items, ProjectItem{Expr: e, Alias: p.Alias})
		cols = append(cols, Column{Name: name})
	}
	if node == nil {
		node = &Projection{Items: items, Cols: cols}
	} else {
		node = &Projection{Child: node, Items: items, Cols: cols}
	}

	if len(s.OrderBy) > 0 {
		keys := make([]OrderKey, len(s.OrderBy))
		for i, o := range s.OrderBy {
			keys[i] = OrderKey{Expr: rewrite(o.Expr), Dir: o.Dir}
		}
		node = &Order{Child: node, Keys: keys}
	}
	if s.Offset != nil {
		node = &Offset{Child: node, N: s.Offset}
	}
	if s.Limit != nil {
		node = &Limit{Child: node, N: s.Limit}
	}
	return node, nil
}

func groupColName(i int, e ast.Expr) string {
	if c, ok := e.(*ast.Column); ok {
		return c.Name
	}
	return fmt.Sprintf("group%d", i)
}

// collectAggregation scans the SELECT's projection and HAVING clause for
// aggregate function calls and GROUP BY expressions, returning a rewrite
// function that replaces matching subexpressions (by structural equality)
// with a reference to the corresponding Aggregate output column.
func collectAggregation(s *ast.SelectStmt) ([]ast.Expr, []AggExpr, func(ast.Expr) ast.Expr) {
	groupExprs := append([]ast.Expr(nil), s.GroupBy...)
	var aggs []AggExpr

	findAgg := func(name string) (AggFunc, bool) {
		f, ok := aggFuncNames[name]
		return f, ok
	}

	var rewrite func(e ast.Expr) ast.Expr
	rewrite = func(e ast.Expr) ast.Expr {
		if e == nil {
			return nil
		}
		for i, g := range groupExprs {
			if exprEqual(e, g) {
				return &ast.Column{Name: groupColName(i, g)}
			}
		}
		if call, ok := e.(*ast.Call); ok {
			if fn, ok := findAgg(call.Name); ok {
				var arg ast.Expr
				if len(call.Args) == 1 {
					if _, isStar := call.Args[0].(*ast.Star); !isStar {
						arg = call.Args[0]
					}
				}
				for _, a := range aggs {
					if a.Func == fn && exprEqual(a.Arg, arg) {
						return &ast.Column{Name: a.Alias}
					}
				}
				alias := fmt.Sprintf("__agg%d", len(aggs))
				aggs = append(aggs, AggExpr{Func: fn, Arg: arg, Alias: alias})
				return &ast.Column{Name: alias}
			}
		}
		switch n := e.(type) {
		case *ast.Prefix:
			return &ast.Prefix{Op: n.Op, Operand: rewrite(n.Operand), Offset: n.Offset}
		case *ast.Postfix:
			return &ast.Postfix{Op: n.Op, Operand: rewrite(n.Operand), Offset: n.Offset}
		case *ast.Infix:
			return &ast.Infix{Op: n.Op, Left: rewrite(n.Left), Right: rewrite(n.Right), Offset: n.Offset}
		case *ast.Call:
			args := make([]ast.Expr, len(n.Args))
			for i, a := range n.Args {
				args[i] = rewrite(a)
			}
			return &ast.Call{Name: n.Name, Args: args, Offset: n.Offset}
		default:
			return e
		}
	}

	// Pre-scan projection and HAVING so every aggregate call is registered
	// even if rewrite() is invoked on them in a different order later.
	for _, p := range s.Projection {
		if !p.Star {
			rewrite(p.Expr)
		}
	}
	if s.Having != nil {
		rewrite(s.Having)
	}
	for _, o := range s.OrderBy {
		rewrite(o.Expr)
	}

	return groupExprs, aggs, rewrite
}

// exprEqual reports structural equality of two expression trees, used to
// match a GROUP BY expression or a repeated aggregate call against its
// occurrences elsewhere in the statement.
func exprEqual(a, b ast.Expr) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch x := a.(type) {
	case *ast.Column:
		y, ok := b.(*ast.Column)
		return ok && x.Table == y.Table && x.Name == y.Name
	case *ast.Literal:
		y, ok := b.(*ast.Literal)
		return ok && catalog.Equal(x.Value, y.Value)
	case *ast.Star:
		_, ok := b.(*ast.Star)
		return ok
	case *ast.Prefix:
		y, ok := b.(*ast.Prefix)
		return ok && x.Op == y.Op && exprEqual(x.Operand, y.Operand)
	case *ast.Postfix:
		y, ok := b.(*ast.Postfix)
		return ok && x.Op == y.Op && exprEqual(x.Operand, y.Operand)
	case *ast.Infix:
		y, ok := b.(*ast.Infix)
		return ok && x.Op == y.Op && exprEqual(x.Left, y.Left) && exprEqual(x.Right, y.Right)
	case *ast.Call:
		y, ok := b.(*ast.Call)
		if !ok || x.Name != y.Name || len(x.Args) != len(y.Args) {
			return false
		}
		for i := range x.Args {
			if !exprEqual(x.Args[i], y.Args[i]) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func buildFrom(cat TableSchema, refs []ast.TableRef) (Node, error) {
	var node Node
	for i, ref := range refs {
		t, err := cat.GetTable(ref.Table)
		if err != nil {
			return nil, err
		}
		alias := ref.Alias
		if alias == "" {
			alias = ref.Table
		}
		scan := &Scan{Table: ref.Table, Alias: alias, Cols: scanSchema(alias, t)}
		if i == 0 {
			node = scan
			continue
		}
		node = &NestedLoopJoin{
			Left:      node,
			Right:     scan,
			Predicate: ref.On,
			Kind:      fromASTJoinKind(ref.Join),
			Cols:      joinSchema(node.Schema(), scan.Schema()),
		}
	}
	return node, nil
}

func buildInsert(cat TableSchema, s *ast.InsertStmt) (Node, error) {
	if _, err := cat.GetTable(s.Table); err != nil {
		return nil, err
	}
	return &Insert{Table: s.Table, Columns: s.Columns, Rows: s.Rows}, nil
}

func buildUpdate(cat TableSchema, s *ast.UpdateStmt) (Node, error) {
	t, err := cat.GetTable(s.Table)
	if err != nil {
		return nil, err
	}
	var child Node = &Scan{Table: s.Table, Alias: s.Table, Cols: scanSchema(s.Table, t)}
	if s.Where != nil {
		child = &Filter{Child: child, Expr: s.Where}
	}
	assigns := make([]Assignment, len(s.Assignments))
	for i, a := range s.Assignments {
		assigns[i] = Assignment{Column: a.Column, Value: a.Value}
	}
	return &Update{Child: child, Table: s.Table, Assignments: assigns}, nil
}

func buildDelete(cat TableSchema, s *ast.DeleteStmt) (Node, error) {
	t, err := cat.GetTable(s.Table)
	if err != nil {
		return nil, err
	}
	var child Node = &Scan{Table: s.Table, Alias: s.Table, Cols: scanSchema(s.Table, t)}
	if s.Where != nil {
		child = &Filter{Child: child, Expr: s.Where}
	}
	return &Delete{Child: child, Table: s.Table}, nil
}

func buildCreateTable(s *ast.CreateTableStmt) (Node, error) {
	cols := make([]catalog.Column, len(s.Columns))
	for i, c := range s.Columns {
		var def catalog.Expr
		if c.Default != nil {
			def = constExprAdapter{c.Default}
		}
		cols[i] = catalog.Column{
			Name:       c.Name,
			Type:       c.Type,
			PrimaryKey: c.PrimaryKey,
			Unique:     c.Unique,
			Indexed:    c.Indexed,
			Nullable:   !c.NotNull && !c.PrimaryKey,
			Default:    def,
		}
	}
	t, err := catalog.NewTable(s.Table, cols)
	if err != nil {
		return nil, err
	}
	return &CreateTable{Table: t}, nil
}

// constExprAdapter lets a CREATE TABLE column default (an ast.Expr; the
// parser accepts any expression after DEFAULT) satisfy catalog.Expr
// without importing sql/exec from catalog. Only Literal nodes are valid
// here: EvalConst rejects anything else, and catalog.NewTable calls it
// and reports that as a Schema error.
type constExprAdapter struct {
	e ast.Expr
}

func (c constExprAdapter) EvalConst() (catalog.Value, error) {
	lit, ok := c.e.(*ast.Literal)
	if !ok {
		return catalog.Value{}, errs.Schemaf("DEFAULT must be a constant literal")
	}
	return lit.Value, nil
}
