package exec

import (
	"context"

	"github.com/untoldecay/cokedb/catalog"
	"github.com/untoldecay/cokedb/errs"
	"github.com/untoldecay/cokedb/sql/ast"
	"github.com/untoldecay/cokedb/sql/eval"
	"github.com/untoldecay/cokedb/sql/plan"
)

// rowContext resolves ast.Column references against one already-produced
// row and the schema that describes it. An empty rowContext (no schema, no
// row) is valid for evaluating expressions known to be constant, such as a
// KeyLookup key or an INSERT value list.
type rowContext struct {
	schema plan.Schema
	row    catalog.Row
}

func (rc rowContext) resolve(col *ast.Column) (catalog.Value, error) {
	idx := -1
	matches := 0
	for i, c := range rc.schema {
		if c.Name != col.Name {
			continue
		}
		if col.Table != "" && c.Table != "" && c.Table != col.Table {
			continue
		}
		idx = i
		matches++
	}
	if matches == 0 {
		return catalog.Value{}, errs.Evaluationf("unknown column %q", col.Name)
	}
	if matches > 1 && col.Table == "" {
		return catalog.Value{}, errs.Evaluationf("ambiguous column reference %q", col.Name)
	}
	return rc.row[idx], nil
}

// eval evaluates e against rc, delegating every operator's value-level
// semantics to sql/eval and resolving only the row-shaped parts (Column,
// Call) itself.
func (ex *Executor) eval(ctx context.Context, rc rowContext, e ast.Expr) (catalog.Value, error) {
	switch n := e.(type) {
	case nil:
		return catalog.Null(), nil
	case *ast.Literal:
		return n.Value, nil
	case *ast.Column:
		return rc.resolve(n)
	case *ast.Star:
		return catalog.Value{}, errs.Internalf("exec: unexpanded * in expression position")
	case *ast.Prefix:
		v, err := ex.eval(ctx, rc, n.Operand)
		if err != nil {
			return catalog.Value{}, err
		}
		return eval.Prefix(n.Op, v)
	case *ast.Postfix:
		v, err := ex.eval(ctx, rc, n.Operand)
		if err != nil {
			return catalog.Value{}, err
		}
		return eval.Postfix(n.Op, v)
	case *ast.Infix:
		l, err := ex.eval(ctx, rc, n.Left)
		if err != nil {
			return catalog.Value{}, err
		}
		r, err := ex.eval(ctx, rc, n.Right)
		if err != nil {
			return catalog.Value{}, err
		}
		return eval.Infix(n.Op, l, r)
	case *ast.Call:
		return ex.evalCall(ctx, rc, n)
	default:
		return catalog.Value{}, errs.Internalf("exec: unsupported expression %T", e)
	}
}

func (ex *Executor) evalCall(ctx context.Context, rc rowContext, call *ast.Call) (catalog.Value, error) {
	args := make([]catalog.Value, len(call.Args))
	for i, a := range call.Args {
		v, err := ex.eval(ctx, rc, a)
		if err != nil {
			return catalog.Value{}, err
		}
		args[i] = v
	}
	if ex.funcs != nil {
		if v, ok, err := ex.funcs.Call(ctx, call.Name, args); err != nil {
			return catalog.Value{}, err
		} else if ok {
			return v, nil
		}
	}
	return catalog.Value{}, errs.Evaluationf("unknown function %q", call.Name)
}

// truthy reports whether v is the SQL TRUE value; NULL and FALSE are both
// not-true, matching the tri-valued filter semantics used by WHERE/HAVING/
// join predicates.
func truthy(v catalog.Value) bool {
	return v.Kind == catalog.KindBool && v.Bool
}
