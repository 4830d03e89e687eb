// Package udf hosts scalar SQL user-defined functions as WASM modules via
// tetratelabs/wazero, invoked from the executor's Function expression node
// (sql/exec.FuncRegistry) alongside CokeDB's builtin functions and
// aggregates.
//
// The calling convention is deliberately narrow: a UDF module exports one
// function per registered name taking and returning float64 (wazero's
// api.ValueType_F64), since every CokeDB Value that makes sense to hand a
// numeric kernel (Integer, Float) round-trips losslessly enough through
// float64 for the scalar-math use case this exists for (e.g. a custom
// rounding or statistical function a built-in registry wouldn't have).
// Bool/String/Null arguments are not supported and are an Evaluation
// error, not silently coerced.
package udf

import (
	"context"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/untoldecay/cokedb/catalog"
	"github.com/untoldecay/cokedb/errs"
)

// Registry loads and invokes WASM-hosted scalar functions. It satisfies
// sql/exec.FuncRegistry.
type Registry struct {
	runtime wazero.Runtime
	modules map[string]api.Module // function name -> owning module
}

// NewRegistry creates an empty registry bound to a fresh wazero runtime.
// Callers must call Close when done to release the runtime's resources.
func NewRegistry(ctx context.Context) (*Registry, error) {
	rt := wazero.NewRuntime(ctx)
	return &Registry{runtime: rt, modules: make(map[string]api.Module)}, nil
}

// Register loads a compiled WASM module (wasmBytes) and makes every
// f64(f64...) -> f64 function it exports callable under its export name.
// A name collision with an already-registered function is an error.
func (r *Registry) Register(ctx context.Context, wasmBytes []byte) error {
	mod, err := r.runtime.Instantiate(ctx, wasmBytes)
	if err != nil {
		return errs.Internalf("udf: instantiating module: %v", err)
	}
	for name := range mod.ExportedFunctionDefinitions() {
		if _, exists := r.modules[name]; exists {
			return errs.Schemaf("udf: function %s already registered", name)
		}
		r.modules[name] = mod
	}
	return nil
}

// Call invokes a registered UDF by name with args, converting each
// argument to float64 and the single f64 result back to catalog.Float.
// ok is false when name isn't a registered UDF (the caller should then
// try its builtin registry, or report Evaluation: unknown function).
func (r *Registry) Call(ctx context.Context, name string, args []catalog.Value) (catalog.Value, bool, error) {
	mod, ok := r.modules[name]
	if !ok {
		return catalog.Value{}, false, nil
	}
	fn := mod.ExportedFunction(name)
	if fn == nil {
		return catalog.Value{}, false, errs.Internalf("udf: %s missing from its module after registration", name)
	}

	params := make([]uint64, len(args))
	for i, a := range args {
		f, err := asFloat64(a)
		if err != nil {
			return catalog.Value{}, true, err
		}
		params[i] = api.EncodeF64(f)
	}

	results, err := fn.Call(ctx, params...)
	if err != nil {
		return catalog.Value{}, true, errs.Evaluationf("udf: calling %s: %v", name, err)
	}
	if len(results) != 1 {
		return catalog.Value{}, true, errs.Internalf("udf: %s returned %d results, want 1", name, len(results))
	}
	return catalog.Float(api.DecodeF64(results[0])), true, nil
}

// Close releases the wazero runtime and every module it holds.
func (r *Registry) Close(ctx context.Context) error {
	return r.runtime.Close(ctx)
}

func asFloat64(v catalog.Value) (float64, error) {
	switch v.Kind {
	case catalog.KindInteger, catalog.KindFloat:
		return v.AsFloat64(), nil
	default:
		return 0, errs.Evaluationf("udf: argument kind %d is not numeric", v.Kind)
	}
}
