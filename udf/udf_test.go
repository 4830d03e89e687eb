package udf

import (
	"context"
	"testing"

	"github.com/untoldecay/cokedb/catalog"
)

// incModule is a hand-assembled minimal WASM module exporting one
// function, "inc", of type (f64) -> f64 computing x + 1.0. It exists so
// Registry can be exercised without a WASM toolchain in the build.
var incModule = []byte{
	0x00, 0x61, 0x73, 0x6D, // magic "\0asm"
	0x01, 0x00, 0x00, 0x00, // version 1

	// type section: one type, (f64) -> (f64)
	0x01, 0x06, 0x01, 0x60, 0x01, 0x7C, 0x01, 0x7C,

	// function section: function 0 uses type 0
	0x03, 0x02, 0x01, 0x00,

	// export section: export function 0 as "inc"
	0x07, 0x07, 0x01, 0x03, 0x69, 0x6E, 0x63, 0x00, 0x00,

	// code section: local.get 0; f64.const 1.0; f64.add; end
	0x0A, 0x10, 0x01, 0x0E, 0x00,
	0x20, 0x00,
	0x44, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0xF0, 0x3F,
	0xA0,
	0x0B,
}

func TestRegistryCallsWASMFunction(t *testing.T) {
	ctx := context.Background()
	reg, err := NewRegistry(ctx)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	defer reg.Close(ctx)

	if err := reg.Register(ctx, incModule); err != nil {
		t.Fatalf("Register: %v", err)
	}

	result, ok, err := reg.Call(ctx, "inc", []catalog.Value{catalog.Float(41.0)})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if !ok {
		t.Fatal("expected inc to be found")
	}
	if result.AsFloat64() != 42.0 {
		t.Fatalf("inc(41.0) = %v, want 42.0", result.AsFloat64())
	}
}

func TestRegistryUnknownFunction(t *testing.T) {
	ctx := context.Background()
	reg, err := NewRegistry(ctx)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	defer reg.Close(ctx)

	_, ok, err := reg.Call(ctx, "nope", nil)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if ok {
		t.Fatal("expected ok=false for an unregistered function")
	}
}

func TestRegistryRejectsNonNumericArgument(t *testing.T) {
	ctx := context.Background()
	reg, err := NewRegistry(ctx)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	defer reg.Close(ctx)
	if err := reg.Register(ctx, incModule); err != nil {
		t.Fatalf("Register: %v", err)
	}

	_, ok, err := reg.Call(ctx, "inc", []catalog.Value{catalog.String("x")})
	if !ok {
		t.Fatal("expected ok=true once the function is found")
	}
	if err == nil {
		t.Fatal("expected an Evaluation error for a non-numeric argument")
	}
}
