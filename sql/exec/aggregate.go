package exec

import (
	"context"

	"github.com/untoldecay/cokedb/catalog"
	"github.com/untoldecay/cokedb/errs"
	"github.com/untoldecay/cokedb/sql/plan"
)

// aggAccumulator folds one aggregate function's input values. sum/avg track
// an int64 accumulator until a Float input (or an int64 overflow) forces a
// promotion to float64, mirroring sql/eval's arithmetic promotion rule.
type aggAccumulator struct {
	fn       plan.AggFunc
	count    int64
	sumInt   int64
	sumFloat float64
	isFloat  bool
	min, max catalog.Value
	hasExtr  bool
}

func newAggAccumulator(fn plan.AggFunc) *aggAccumulator { return &aggAccumulator{fn: fn} }

// add folds one input value. isStar is set only for count(*), whose "value"
// doesn't exist — count(*) counts rows, not non-Null values.
func (a *aggAccumulator) add(v catalog.Value, isStar bool) error {
	if a.fn == plan.AggCount {
		if isStar || !v.IsNull() {
			a.count++
		}
		return nil
	}
	if v.IsNull() {
		return nil // every other aggregate ignores Null inputs
	}
	switch a.fn {
	case plan.AggSum, plan.AggAvg:
		switch v.Kind {
		case catalog.KindInteger:
			if a.isFloat {
				a.sumFloat += float64(v.Int)
			} else if catalog.AddOverflows(a.sumInt, v.Int) {
				a.isFloat = true
				a.sumFloat = float64(a.sumInt) + float64(v.Int)
			} else {
				a.sumInt += v.Int
			}
		case catalog.KindFloat:
			if !a.isFloat {
				a.isFloat = true
				a.sumFloat = float64(a.sumInt)
			}
			a.sumFloat += v.Flt
		default:
			return errs.Evaluationf("aggregate requires a numeric input")
		}
		a.count++
	case plan.AggMin:
		if !a.hasExtr || catalog.Compare(v, a.min) < 0 {
			a.min = v
		}
		a.hasExtr = true
	case plan.AggMax:
		if !a.hasExtr || catalog.Compare(v, a.max) > 0 {
			a.max = v
		}
		a.hasExtr = true
	}
	return nil
}

func (a *aggAccumulator) finalize() catalog.Value {
	switch a.fn {
	case plan.AggCount:
		return catalog.Int(a.count)
	case plan.AggSum:
		if a.isFloat {
			return catalog.Float(a.sumFloat)
		}
		return catalog.Int(a.sumInt)
	case plan.AggAvg:
		if a.count == 0 {
			return catalog.Null()
		}
		if !a.isFloat {
			return catalog.Int(a.sumInt / a.count)
		}
		return catalog.Float(a.sumFloat / float64(a.count))
	case plan.AggMin:
		if !a.hasExtr {
			return catalog.Null()
		}
		return a.min
	case plan.AggMax:
		if !a.hasExtr {
			return catalog.Null()
		}
		return a.max
	default:
		return catalog.Null()
	}
}

type aggGroup struct {
	keys []catalog.Value
	accs []*aggAccumulator
}

func (ex *Executor) buildAggregate(ctx context.Context, n *plan.Aggregate) (RowIter, error) {
	var child RowIter
	var schema plan.Schema
	if n.Child != nil {
		c, err := ex.build(ctx, n.Child)
		if err != nil {
			return nil, err
		}
		child = c
		schema = n.Child.Schema()
	} else {
		child = &singleRowIter{}
	}
	rows, err := materialize(ctx, child)
	if err != nil {
		return nil, err
	}

	groups := make(map[string]*aggGroup)
	var order []string

	newGroup := func(keys []catalog.Value) *aggGroup {
		g := &aggGroup{keys: keys, accs: make([]*aggAccumulator, len(n.Aggregates))}
		for i, a := range n.Aggregates {
			g.accs[i] = newAggAccumulator(a.Func)
		}
		return g
	}

	for _, row := range rows {
		keyVals := make([]catalog.Value, len(n.GroupBy))
		for i, g := range n.GroupBy {
			v, err := ex.eval(ctx, rowContext{schema, row}, g)
			if err != nil {
				return nil, err
			}
			keyVals[i] = v
		}
		groupKey := encodeGroupKey(keyVals)
		g, ok := groups[groupKey]
		if !ok {
			g = newGroup(keyVals)
			groups[groupKey] = g
			order = append(order, groupKey)
		}
		for i, a := range n.Aggregates {
			if a.Arg == nil {
				if err := g.accs[i].add(catalog.Value{}, true); err != nil {
					return nil, err
				}
				continue
			}
			v, err := ex.eval(ctx, rowContext{schema, row}, a.Arg)
			if err != nil {
				return nil, err
			}
			if err := g.accs[i].add(v, false); err != nil {
				return nil, err
			}
		}
	}

	// An aggregate query with no GROUP BY always reports one row, even over
	// zero input rows.
	if len(order) == 0 && len(n.GroupBy) == 0 && len(n.Aggregates) > 0 {
		g := newGroup(nil)
		groups[""] = g
		order = append(order, "")
	}

	out := make([]catalog.Row, 0, len(order))
	for _, k := range order {
		g := groups[k]
		row := make(catalog.Row, 0, len(g.keys)+len(g.accs))
		row = append(row, g.keys...)
		for _, acc := range g.accs {
			row = append(row, acc.finalize())
		}
		out = append(out, row)
	}
	return &sliceIter{rows: out}, nil
}

func encodeGroupKey(vals []catalog.Value) string {
	var buf []byte
	for _, v := range vals {
		buf = append(buf, catalog.EncodeKeyValue(v)...)
	}
	return string(buf)
}
