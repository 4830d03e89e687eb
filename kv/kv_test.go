package kv

import (
	"context"
	"testing"
)

func TestMemoryStoreGetSetDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if _, ok, err := s.Get(ctx, []byte("a")); err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}

	if err := s.Set(ctx, []byte("a"), []byte("1")); err != nil {
		t.Fatalf("set: %v", err)
	}
	v, ok, err := s.Get(ctx, []byte("a"))
	if err != nil || !ok || string(v) != "1" {
		t.Fatalf("expected (1,true), got (%s,%v,%v)", v, ok, err)
	}

	if err := s.Delete(ctx, []byte("a")); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, err := s.Get(ctx, []byte("a")); err != nil || ok {
		t.Fatalf("expected miss after delete, got ok=%v err=%v", ok, err)
	}
}

func TestMemoryStoreScanPrefixOrder(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	keys := []string{"b/2", "a/1", "a/3", "a/2", "c/1"}
	for _, k := range keys {
		if err := s.Set(ctx, []byte(k), []byte(k)); err != nil {
			t.Fatalf("set %s: %v", k, err)
		}
	}

	it, err := s.ScanPrefix(ctx, []byte("a/"))
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	defer it.Close()

	var got []string
	for it.Next() {
		got = append(got, string(it.Pair().Key))
	}
	want := []string{"a/1", "a/2", "a/3"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestMemoryStoreScanRange(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	for _, k := range []string{"k1", "k2", "k3", "k4"} {
		_ = s.Set(ctx, []byte(k), []byte(k))
	}
	it, err := s.ScanRange(ctx, []byte("k2"), []byte("k4"))
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	defer it.Close()
	var got []string
	for it.Next() {
		got = append(got, string(it.Pair().Key))
	}
	if len(got) != 2 || got[0] != "k2" || got[1] != "k3" {
		t.Fatalf("got %v, want [k2 k3]", got)
	}
}

func TestMemoryStoreWriteBatchAtomicity(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	_ = s.Set(ctx, []byte("x"), []byte("old"))

	var b Batch
	b.Set([]byte("x"), []byte("new"))
	b.Set([]byte("y"), []byte("1"))
	b.Delete([]byte("z"))

	if err := s.WriteBatch(ctx, b); err != nil {
		t.Fatalf("batch: %v", err)
	}
	v, ok, _ := s.Get(ctx, []byte("x"))
	if !ok || string(v) != "new" {
		t.Fatalf("x = %s, want new", v)
	}
	v, ok, _ = s.Get(ctx, []byte("y"))
	if !ok || string(v) != "1" {
		t.Fatalf("y = %s, want 1", v)
	}
}
