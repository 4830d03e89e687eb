package exec

import (
	"context"
	"io"
	"sort"

	"github.com/untoldecay/cokedb/catalog"
	"github.com/untoldecay/cokedb/errs"
	"github.com/untoldecay/cokedb/sql/ast"
	"github.com/untoldecay/cokedb/sql/plan"
)

// build turns a read-side plan subtree into a driveable RowIter.
func (ex *Executor) build(ctx context.Context, node plan.Node) (RowIter, error) {
	switch n := node.(type) {
	case nil:
		return &singleRowIter{}, nil
	case *plan.Scan:
		return ex.buildScan(ctx, n)
	case *plan.KeyLookup:
		return ex.buildKeyLookup(ctx, n)
	case *plan.IndexLookup:
		return ex.buildIndexLookup(ctx, n)
	case *plan.Filter:
		return ex.buildFilter(ctx, n)
	case *plan.Projection:
		return ex.buildProjection(ctx, n)
	case *plan.NestedLoopJoin:
		return ex.buildNestedLoopJoin(ctx, n)
	case *plan.HashJoin:
		return ex.buildHashJoin(ctx, n)
	case *plan.Aggregate:
		return ex.buildAggregate(ctx, n)
	case *plan.Order:
		return ex.buildOrder(ctx, n)
	case *plan.Limit:
		return ex.buildLimit(ctx, n)
	case *plan.Offset:
		return ex.buildOffset(ctx, n)
	default:
		return nil, errs.Internalf("exec: unsupported plan node %T", node)
	}
}

// sliceIter replays an already-materialized row set.
type sliceIter struct {
	rows []catalog.Row
	idx  int
}

func (it *sliceIter) Next(ctx context.Context) (catalog.Row, error) {
	if it.idx >= len(it.rows) {
		return nil, io.EOF
	}
	row := it.rows[it.idx]
	it.idx++
	return row, nil
}

// singleRowIter yields exactly one empty row, then EndOfStream. It stands in
// for a FROM-less SELECT (e.g. `SELECT 1+1;`), whose Projection has no
// Child.
type singleRowIter struct{ done bool }

func (it *singleRowIter) Next(ctx context.Context) (catalog.Row, error) {
	if it.done {
		return nil, io.EOF
	}
	it.done = true
	return catalog.Row{}, nil
}

// --- Scan ---

type scanIter struct {
	ex     *Executor
	schema plan.Schema
	filter ast.Expr
	rows   []catalog.Row
	idx    int
}

func (ex *Executor) buildScan(ctx context.Context, n *plan.Scan) (RowIter, error) {
	t, err := ex.cat.GetTable(ctx, n.Table)
	if err != nil {
		return nil, err
	}
	rows, err := ex.cat.ScanRows(ctx, t)
	if err != nil {
		return nil, err
	}
	return &scanIter{ex: ex, schema: n.Cols, filter: n.Filter, rows: rows}, nil
}

func (it *scanIter) Next(ctx context.Context) (catalog.Row, error) {
	for it.idx < len(it.rows) {
		row := it.rows[it.idx]
		it.idx++
		if it.filter != nil {
			v, err := it.ex.eval(ctx, rowContext{it.schema, row}, it.filter)
			if err != nil {
				return nil, err
			}
			if !truthy(v) {
				continue
			}
		}
		return row, nil
	}
	return nil, io.EOF
}

// --- KeyLookup / IndexLookup ---

func (ex *Executor) buildKeyLookup(ctx context.Context, n *plan.KeyLookup) (RowIter, error) {
	t, err := ex.cat.GetTable(ctx, n.Table)
	if err != nil {
		return nil, err
	}
	var rows []catalog.Row
	for _, keyExpr := range n.Keys {
		key, err := ex.eval(ctx, rowContext{}, keyExpr)
		if err != nil {
			return nil, err
		}
		row, ok, err := ex.cat.GetRow(ctx, t, key)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if n.Residual != nil {
			v, err := ex.eval(ctx, rowContext{n.Cols, row}, n.Residual)
			if err != nil {
				return nil, err
			}
			if !truthy(v) {
				continue
			}
		}
		rows = append(rows, row)
	}
	return &sliceIter{rows: rows}, nil
}

func (ex *Executor) buildIndexLookup(ctx context.Context, n *plan.IndexLookup) (RowIter, error) {
	t, err := ex.cat.GetTable(ctx, n.Table)
	if err != nil {
		return nil, err
	}
	var rows []catalog.Row
	for _, valExpr := range n.Values {
		val, err := ex.eval(ctx, rowContext{}, valExpr)
		if err != nil {
			return nil, err
		}
		matches, err := ex.cat.ScanIndex(ctx, t, n.Column, val)
		if err != nil {
			return nil, err
		}
		for _, row := range matches {
			if n.Residual != nil {
				v, err := ex.eval(ctx, rowContext{n.Cols, row}, n.Residual)
				if err != nil {
					return nil, err
				}
				if !truthy(v) {
					continue
				}
			}
			rows = append(rows, row)
		}
	}
	return &sliceIter{rows: rows}, nil
}

// --- Filter ---

type filterIter struct {
	ex     *Executor
	child  RowIter
	schema plan.Schema
	expr   ast.Expr
}

func (ex *Executor) buildFilter(ctx context.Context, n *plan.Filter) (RowIter, error) {
	child, err := ex.build(ctx, n.Child)
	if err != nil {
		return nil, err
	}
	return &filterIter{ex: ex, child: child, schema: n.Child.Schema(), expr: n.Expr}, nil
}

func (it *filterIter) Next(ctx context.Context) (catalog.Row, error) {
	for {
		row, err := it.child.Next(ctx)
		if err != nil {
			return nil, err
		}
		v, err := it.ex.eval(ctx, rowContext{it.schema, row}, it.expr)
		if err != nil {
			return nil, err
		}
		if truthy(v) {
			return row, nil
		}
	}
}

// --- Projection ---

type projIter struct {
	ex          *Executor
	child       RowIter
	childSchema plan.Schema
	items       []plan.ProjectItem
}

func (ex *Executor) buildProjection(ctx context.Context, n *plan.Projection) (RowIter, error) {
	var child RowIter
	var childSchema plan.Schema
	if n.Child != nil {
		c, err := ex.build(ctx, n.Child)
		if err != nil {
			return nil, err
		}
		child = c
		childSchema = n.Child.Schema()
	} else {
		child = &singleRowIter{}
	}
	return &projIter{ex: ex, child: child, childSchema: childSchema, items: n.Items}, nil
}

func (it *projIter) Next(ctx context.Context) (catalog.Row, error) {
	row, err := it.child.Next(ctx)
	if err != nil {
		return nil, err
	}
	out := make(catalog.Row, len(it.items))
	for i, item := range it.items {
		v, err := it.ex.eval(ctx, rowContext{it.childSchema, row}, item.Expr)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// --- Joins ---

func nullRow(n int) catalog.Row {
	row := make(catalog.Row, n)
	for i := range row {
		row[i] = catalog.Null()
	}
	return row
}

func combineRows(driveIsLeft bool, drive, inner catalog.Row) catalog.Row {
	out := make(catalog.Row, 0, len(drive)+len(inner))
	if driveIsLeft {
		out = append(out, drive...)
		out = append(out, inner...)
	} else {
		out = append(out, inner...)
		out = append(out, drive...)
	}
	return out
}

// nestedLoopJoinIter implements every JoinKind uniformly: it streams a
// "drive" side (the side whose unmatched rows survive as null-padded for
// Left/Right) and scans a fully materialized "inner" side per drive row.
// Cross/Inner never null-pad (outer=false); the drive/inner assignment
// flips for Right so the combined row still comes out in left-then-right
// column order.
type nestedLoopJoinIter struct {
	ex          *Executor
	drive       RowIter
	inner       []catalog.Row
	innerWidth  int
	cols        plan.Schema
	predicate   ast.Expr
	driveIsLeft bool
	outer       bool

	curDrive    catalog.Row
	haveDrive   bool
	driveMatch  bool
	innerIdx    int
}

func (ex *Executor) buildNestedLoopJoin(ctx context.Context, n *plan.NestedLoopJoin) (RowIter, error) {
	leftIter, err := ex.build(ctx, n.Left)
	if err != nil {
		return nil, err
	}
	rightIter, err := ex.build(ctx, n.Right)
	if err != nil {
		return nil, err
	}

	if n.Kind == plan.Right {
		leftRows, err := materialize(ctx, leftIter)
		if err != nil {
			return nil, err
		}
		return &nestedLoopJoinIter{
			ex: ex, drive: rightIter, inner: leftRows, innerWidth: len(n.Left.Schema()),
			cols: n.Cols, predicate: n.Predicate, driveIsLeft: false, outer: true,
		}, nil
	}
	rightRows, err := materialize(ctx, rightIter)
	if err != nil {
		return nil, err
	}
	return &nestedLoopJoinIter{
		ex: ex, drive: leftIter, inner: rightRows, innerWidth: len(n.Right.Schema()),
		cols: n.Cols, predicate: n.Predicate, driveIsLeft: true, outer: n.Kind == plan.Left,
	}, nil
}

func (it *nestedLoopJoinIter) Next(ctx context.Context) (catalog.Row, error) {
	for {
		if !it.haveDrive {
			row, err := it.drive.Next(ctx)
			if err != nil {
				return nil, err
			}
			it.curDrive = row
			it.haveDrive = true
			it.driveMatch = false
			it.innerIdx = 0
		}
		for it.innerIdx < len(it.inner) {
			irow := it.inner[it.innerIdx]
			it.innerIdx++
			combined := combineRows(it.driveIsLeft, it.curDrive, irow)
			if it.predicate == nil {
				it.driveMatch = true
				return combined, nil
			}
			v, err := it.ex.eval(ctx, rowContext{it.cols, combined}, it.predicate)
			if err != nil {
				return nil, err
			}
			if truthy(v) {
				it.driveMatch = true
				return combined, nil
			}
		}
		matched := it.driveMatch
		it.haveDrive = false
		if !matched && it.outer {
			return combineRows(it.driveIsLeft, it.curDrive, nullRow(it.innerWidth)), nil
		}
	}
}

// hashJoinIter mirrors nestedLoopJoinIter's drive/inner framework but probes
// a hash bucket (keyed by the equi-join column's encoded value) instead of
// scanning every inner row. Null never matches Null: rows whose key is Null
// never enter a bucket and never probe one.
type hashJoinIter struct {
	ex           *Executor
	drive        RowIter
	driveSchema  plan.Schema
	driveKeyExpr ast.Expr
	innerWidth   int
	buckets      map[string][]catalog.Row
	residual     ast.Expr
	cols         plan.Schema
	driveIsLeft  bool
	outer        bool

	curDrive   catalog.Row
	haveDrive  bool
	driveMatch bool
	candidates []catalog.Row
	candIdx    int
}

func bucketRows(ex *Executor, ctx context.Context, rows []catalog.Row, schema plan.Schema, keyExpr ast.Expr) (map[string][]catalog.Row, error) {
	buckets := make(map[string][]catalog.Row)
	for _, row := range rows {
		v, err := ex.eval(ctx, rowContext{schema, row}, keyExpr)
		if err != nil {
			return nil, err
		}
		if v.IsNull() {
			continue
		}
		key := string(catalog.EncodeKeyValue(v))
		buckets[key] = append(buckets[key], row)
	}
	return buckets, nil
}

func (ex *Executor) buildHashJoin(ctx context.Context, n *plan.HashJoin) (RowIter, error) {
	leftIter, err := ex.build(ctx, n.Left)
	if err != nil {
		return nil, err
	}
	rightIter, err := ex.build(ctx, n.Right)
	if err != nil {
		return nil, err
	}

	if n.Kind == plan.Right {
		leftRows, err := materialize(ctx, leftIter)
		if err != nil {
			return nil, err
		}
		buckets, err := bucketRows(ex, ctx, leftRows, n.Left.Schema(), n.LeftCol)
		if err != nil {
			return nil, err
		}
		return &hashJoinIter{
			ex: ex, drive: rightIter, driveSchema: n.Right.Schema(), driveKeyExpr: n.RightCol,
			innerWidth: len(n.Left.Schema()), buckets: buckets, residual: n.Residual,
			cols: n.Cols, driveIsLeft: false, outer: true,
		}, nil
	}

	rightRows, err := materialize(ctx, rightIter)
	if err != nil {
		return nil, err
	}
	buckets, err := bucketRows(ex, ctx, rightRows, n.Right.Schema(), n.RightCol)
	if err != nil {
		return nil, err
	}
	return &hashJoinIter{
		ex: ex, drive: leftIter, driveSchema: n.Left.Schema(), driveKeyExpr: n.LeftCol,
		innerWidth: len(n.Right.Schema()), buckets: buckets, residual: n.Residual,
		cols: n.Cols, driveIsLeft: true, outer: n.Kind == plan.Left,
	}, nil
}

func (it *hashJoinIter) Next(ctx context.Context) (catalog.Row, error) {
	for {
		if !it.haveDrive {
			row, err := it.drive.Next(ctx)
			if err != nil {
				return nil, err
			}
			it.curDrive = row
			it.haveDrive = true
			it.driveMatch = false
			it.candIdx = 0

			key, err := it.ex.eval(ctx, rowContext{it.driveSchema, row}, it.driveKeyExpr)
			if err != nil {
				return nil, err
			}
			if key.IsNull() {
				it.candidates = nil
			} else {
				it.candidates = it.buckets[string(catalog.EncodeKeyValue(key))]
			}
		}
		for it.candIdx < len(it.candidates) {
			irow := it.candidates[it.candIdx]
			it.candIdx++
			combined := combineRows(it.driveIsLeft, it.curDrive, irow)
			if it.residual != nil {
				v, err := it.ex.eval(ctx, rowContext{it.cols, combined}, it.residual)
				if err != nil {
					return nil, err
				}
				if !truthy(v) {
					continue
				}
			}
			it.driveMatch = true
			return combined, nil
		}
		matched := it.driveMatch
		it.haveDrive = false
		if !matched && it.outer {
			return combineRows(it.driveIsLeft, it.curDrive, nullRow(it.innerWidth)), nil
		}
	}
}

// --- Order ---

func (ex *Executor) buildOrder(ctx context.Context, n *plan.Order) (RowIter, error) {
	child, err := ex.build(ctx, n.Child)
	if err != nil {
		return nil, err
	}
	schema := n.Child.Schema()
	rows, err := materialize(ctx, child)
	if err != nil {
		return nil, err
	}

	keys := make([][]catalog.Value, len(rows))
	for i, row := range rows {
		k := make([]catalog.Value, len(n.Keys))
		for j, oc := range n.Keys {
			v, err := ex.eval(ctx, rowContext{schema, row}, oc.Expr)
			if err != nil {
				return nil, err
			}
			k[j] = v
		}
		keys[i] = k
	}

	idx := make([]int, len(rows))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		i, j := idx[a], idx[b]
		for k, oc := range n.Keys {
			c := catalog.Compare(keys[i][k], keys[j][k])
			if c == 0 {
				continue
			}
			if oc.Dir == ast.Desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})

	out := make([]catalog.Row, len(rows))
	for i, j := range idx {
		out[i] = rows[j]
	}
	return &sliceIter{rows: out}, nil
}

// --- Limit / Offset ---

type limitIter struct {
	child     RowIter
	remaining int64
}

func (ex *Executor) buildLimit(ctx context.Context, n *plan.Limit) (RowIter, error) {
	child, err := ex.build(ctx, n.Child)
	if err != nil {
		return nil, err
	}
	v, err := ex.eval(ctx, rowContext{}, n.N)
	if err != nil {
		return nil, err
	}
	if v.Kind != catalog.KindInteger {
		return nil, errs.Evaluationf("LIMIT requires an integer")
	}
	return &limitIter{child: child, remaining: v.Int}, nil
}

func (it *limitIter) Next(ctx context.Context) (catalog.Row, error) {
	if it.remaining <= 0 {
		return nil, io.EOF
	}
	row, err := it.child.Next(ctx)
	if err != nil {
		return nil, err
	}
	it.remaining--
	return row, nil
}

type offsetIter struct {
	child   RowIter
	toSkip  int64
	skipped bool
}

func (ex *Executor) buildOffset(ctx context.Context, n *plan.Offset) (RowIter, error) {
	child, err := ex.build(ctx, n.Child)
	if err != nil {
		return nil, err
	}
	v, err := ex.eval(ctx, rowContext{}, n.N)
	if err != nil {
		return nil, err
	}
	if v.Kind != catalog.KindInteger {
		return nil, errs.Evaluationf("OFFSET requires an integer")
	}
	return &offsetIter{child: child, toSkip: v.Int}, nil
}

func (it *offsetIter) Next(ctx context.Context) (catalog.Row, error) {
	if !it.skipped {
		it.skipped = true
		for i := int64(0); i < it.toSkip; i++ {
			if _, err := it.child.Next(ctx); err != nil {
				return nil, err
			}
		}
	}
	return it.child.Next(ctx)
}
