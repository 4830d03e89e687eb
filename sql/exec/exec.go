// Package exec implements C8: a Volcano-style pull executor that drives an
// optimized sql/plan tree against a catalog.Catalog bound to one mvcc.Txn.
// Every read-side operator implements next() -> Row | EndOfStream | Error
// via the RowIter interface (io.EOF stands in for EndOfStream, following the
// same convention as bufio.Scanner/sql.Rows); INSERT/UPDATE/DELETE/DDL run
// eagerly and report an affected-row count instead.
package exec

import (
	"context"
	"io"

	"github.com/untoldecay/cokedb/catalog"
	"github.com/untoldecay/cokedb/errs"
	"github.com/untoldecay/cokedb/sql/plan"
)

// RowIter pulls one row at a time from a plan subtree. Next returns io.EOF
// once exhausted; any other error aborts the stream.
type RowIter interface {
	Next(ctx context.Context) (catalog.Row, error)
}

// FuncRegistry resolves a scalar SQL function call that isn't a builtin
// aggregate (those never reach row-context evaluation; the planner rewrites
// them away). CokeDB's production registry is udf.Registry, backing
// wazero-hosted WASM scalar functions; it is injected rather than imported
// directly so this package stays independent of the WASM runtime.
type FuncRegistry interface {
	Call(ctx context.Context, name string, args []catalog.Value) (catalog.Value, bool, error)
}

// Executor drives plan trees against one transaction's catalog view.
type Executor struct {
	cat   *catalog.Catalog
	funcs FuncRegistry
}

// New binds an Executor to cat. funcs may be nil, in which case any
// non-aggregate function call is an Evaluation error.
func New(cat *catalog.Catalog, funcs FuncRegistry) *Executor {
	return &Executor{cat: cat, funcs: funcs}
}

// Result is the outcome of executing one statement's plan.
type Result struct {
	Columns  []string
	Rows     []catalog.Row
	Affected int64
}

// Execute drives node to completion: a SELECT-shaped tree is fully drained
// into Result.Rows, while INSERT/UPDATE/DELETE/CREATE TABLE/DROP TABLE run
// their side effects and report Result.Affected.
func (ex *Executor) Execute(ctx context.Context, node plan.Node) (*Result, error) {
	switch n := node.(type) {
	case *plan.Insert:
		return ex.execInsert(ctx, n)
	case *plan.Update:
		return ex.execUpdate(ctx, n)
	case *plan.Delete:
		return ex.execDelete(ctx, n)
	case *plan.CreateTable:
		return ex.execCreateTable(ctx, n)
	case *plan.DropTable:
		return ex.execDropTable(ctx, n)
	default:
		it, err := ex.build(ctx, node)
		if err != nil {
			return nil, err
		}
		rows, err := materialize(ctx, it)
		if err != nil {
			return nil, err
		}
		schema := node.Schema()
		cols := make([]string, len(schema))
		for i, c := range schema {
			cols[i] = c.Name
		}
		return &Result{Columns: cols, Rows: rows}, nil
	}
}

func materialize(ctx context.Context, it RowIter) ([]catalog.Row, error) {
	var rows []catalog.Row
	for {
		row, err := it.Next(ctx)
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
}

func (ex *Executor) execInsert(ctx context.Context, n *plan.Insert) (*Result, error) {
	t, err := ex.cat.GetTable(ctx, n.Table)
	if err != nil {
		return nil, err
	}

	var targetCols []int
	if len(n.Columns) > 0 {
		targetCols = make([]int, len(n.Columns))
		for i, name := range n.Columns {
			ci := t.ColumnIndex(name)
			if ci < 0 {
				return nil, errs.Schemaf("table %s: unknown column %s", n.Table, name)
			}
			targetCols[i] = ci
		}
	}

	var affected int64
	for _, values := range n.Rows {
		row := make(catalog.Row, len(t.Columns))
		for i, c := range t.Columns {
			if c.Default != nil {
				v, err := c.Default.EvalConst()
				if err != nil {
					return nil, err
				}
				row[i] = v
			} else {
				row[i] = catalog.Null()
			}
		}

		switch {
		case targetCols != nil:
			if len(values) != len(targetCols) {
				return nil, errs.Schemaf("table %s: INSERT column/value count mismatch", n.Table)
			}
			for j, expr := range values {
				v, err := ex.eval(ctx, rowContext{}, expr)
				if err != nil {
					return nil, err
				}
				row[targetCols[j]] = v
			}
		default:
			if len(values) != len(t.Columns) {
				return nil, errs.Schemaf("table %s: INSERT expects %d values, got %d", n.Table, len(t.Columns), len(values))
			}
			for j, expr := range values {
				v, err := ex.eval(ctx, rowContext{}, expr)
				if err != nil {
					return nil, err
				}
				row[j] = v
			}
		}

		if err := ex.cat.InsertRow(ctx, t, row); err != nil {
			return nil, err
		}
		affected++
	}
	return &Result{Affected: affected}, nil
}

func (ex *Executor) execUpdate(ctx context.Context, n *plan.Update) (*Result, error) {
	t, err := ex.cat.GetTable(ctx, n.Table)
	if err != nil {
		return nil, err
	}
	it, err := ex.build(ctx, n.Child)
	if err != nil {
		return nil, err
	}
	schema := n.Child.Schema()
	rows, err := materialize(ctx, it)
	if err != nil {
		return nil, err
	}

	pkIdx := t.PKIndex()
	var affected int64
	for _, row := range rows {
		pk := row[pkIdx]
		newRow := append(catalog.Row{}, row...)
		for _, a := range n.Assignments {
			ci := t.ColumnIndex(a.Column)
			if ci < 0 {
				return nil, errs.Schemaf("table %s: unknown column %s", n.Table, a.Column)
			}
			v, err := ex.eval(ctx, rowContext{schema, row}, a.Value)
			if err != nil {
				return nil, err
			}
			newRow[ci] = v
		}
		if err := ex.cat.UpdateRow(ctx, t, pk, newRow); err != nil {
			return nil, err
		}
		affected++
	}
	return &Result{Affected: affected}, nil
}

func (ex *Executor) execDelete(ctx context.Context, n *plan.Delete) (*Result, error) {
	t, err := ex.cat.GetTable(ctx, n.Table)
	if err != nil {
		return nil, err
	}
	it, err := ex.build(ctx, n.Child)
	if err != nil {
		return nil, err
	}
	rows, err := materialize(ctx, it)
	if err != nil {
		return nil, err
	}

	pkIdx := t.PKIndex()
	var affected int64
	for _, row := range rows {
		if err := ex.cat.DeleteRow(ctx, t, row[pkIdx]); err != nil {
			return nil, err
		}
		affected++
	}
	return &Result{Affected: affected}, nil
}

func (ex *Executor) execCreateTable(ctx context.Context, n *plan.CreateTable) (*Result, error) {
	if err := ex.cat.CreateTable(ctx, n.Table); err != nil {
		return nil, err
	}
	return &Result{}, nil
}

func (ex *Executor) execDropTable(ctx context.Context, n *plan.DropTable) (*Result, error) {
	if err := ex.cat.DropTable(ctx, n.Table); err != nil {
		return nil, err
	}
	return &Result{}, nil
}
