package mvcc

import (
	"context"
	"testing"

	"github.com/untoldecay/cokedb/errs"
	"github.com/untoldecay/cokedb/kv"
)

func newEngine() *Engine {
	return New(kv.NewMemoryStore())
}

func TestBeginAssignsMonotonicIDs(t *testing.T) {
	ctx := context.Background()
	e := newEngine()

	t1, err := e.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	t2, err := e.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if t2.ID() <= t1.ID() {
		t.Fatalf("expected monotonic ids, got %d then %d", t1.ID(), t2.ID())
	}
}

func TestRepeatableReadSnapshot(t *testing.T) {
	ctx := context.Background()
	e := newEngine()

	setup, _ := e.Begin(ctx)
	if err := setup.Put(ctx, []byte("k"), []byte("v1")); err != nil {
		t.Fatal(err)
	}
	if err := setup.Commit(ctx); err != nil {
		t.Fatal(err)
	}

	reader, _ := e.Begin(ctx)
	v, ok, err := reader.Get(ctx, []byte("k"))
	if err != nil || !ok || string(v) != "v1" {
		t.Fatalf("first read = (%s,%v,%v), want v1", v, ok, err)
	}

	writer, _ := e.Begin(ctx)
	if err := writer.Put(ctx, []byte("k"), []byte("v2")); err != nil {
		t.Fatal(err)
	}
	if err := writer.Commit(ctx); err != nil {
		t.Fatal(err)
	}

	// reader's snapshot was frozen at begin and must still see v1.
	v, ok, err = reader.Get(ctx, []byte("k"))
	if err != nil || !ok || string(v) != "v1" {
		t.Fatalf("repeatable read = (%s,%v,%v), want v1", v, ok, err)
	}

	fresh, _ := e.Begin(ctx)
	v, ok, err = fresh.Get(ctx, []byte("k"))
	if err != nil || !ok || string(v) != "v2" {
		t.Fatalf("fresh txn read = (%s,%v,%v), want v2", v, ok, err)
	}
}

func TestRollbackLeavesNoTrace(t *testing.T) {
	ctx := context.Background()
	e := newEngine()

	setup, _ := e.Begin(ctx)
	_ = setup.Put(ctx, []byte("k"), []byte("v1"))
	_ = setup.Commit(ctx)

	a, _ := e.Begin(ctx)
	_ = a.Put(ctx, []byte("k"), []byte("v2"))
	if err := a.Rollback(ctx); err != nil {
		t.Fatal(err)
	}

	fresh, _ := e.Begin(ctx)
	v, ok, err := fresh.Get(ctx, []byte("k"))
	if err != nil || !ok || string(v) != "v1" {
		t.Fatalf("after rollback = (%s,%v,%v), want v1", v, ok, err)
	}
}

func TestWriteConflictFirstWriterWins(t *testing.T) {
	ctx := context.Background()
	e := newEngine()

	setup, _ := e.Begin(ctx)
	_ = setup.Put(ctx, []byte("k"), []byte("v1"))
	_ = setup.Commit(ctx)

	a, _ := e.Begin(ctx)
	b, _ := e.Begin(ctx)

	if err := a.Put(ctx, []byte("k"), []byte("from-a")); err != nil {
		t.Fatalf("a's write should succeed: %v", err)
	}
	err := b.Put(ctx, []byte("k"), []byte("from-b"))
	if err == nil {
		t.Fatal("expected b's write to conflict")
	}
	if !errs.Is(err, errs.Serialization) {
		t.Fatalf("expected Serialization error, got %v", err)
	}

	if err := a.Commit(ctx); err != nil {
		t.Fatal(err)
	}
	if err := b.Rollback(ctx); err != nil {
		t.Fatal(err)
	}

	fresh, _ := e.Begin(ctx)
	v, ok, err := fresh.Get(ctx, []byte("k"))
	if err != nil || !ok || string(v) != "from-a" {
		t.Fatalf("after conflict resolution = (%s,%v,%v), want from-a", v, ok, err)
	}
}

func TestDeleteIsTombstoned(t *testing.T) {
	ctx := context.Background()
	e := newEngine()

	a, _ := e.Begin(ctx)
	_ = a.Put(ctx, []byte("k"), []byte("v1"))
	_ = a.Commit(ctx)

	b, _ := e.Begin(ctx)
	if err := b.Delete(ctx, []byte("k")); err != nil {
		t.Fatal(err)
	}
	_ = b.Commit(ctx)

	c, _ := e.Begin(ctx)
	_, ok, err := c.Get(ctx, []byte("k"))
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected key to read as absent after delete")
	}
}

func TestScanPrefixMergesDistinctKeysAtLatestVisibleVersion(t *testing.T) {
	ctx := context.Background()
	e := newEngine()

	a, _ := e.Begin(ctx)
	_ = a.Put(ctx, []byte("row/1"), []byte("a"))
	_ = a.Put(ctx, []byte("row/2"), []byte("b"))
	_ = a.Commit(ctx)

	b, _ := e.Begin(ctx)
	_ = b.Put(ctx, []byte("row/1"), []byte("a2"))
	_ = b.Commit(ctx)

	r, _ := e.Begin(ctx)
	results, err := r.ScanPrefix(ctx, []byte("row/"))
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2: %+v", len(results), results)
	}
	if string(results[0].Key) != "row/1" || string(results[0].Value) != "a2" {
		t.Fatalf("unexpected first result: %+v", results[0])
	}
	if string(results[1].Key) != "row/2" || string(results[1].Value) != "b" {
		t.Fatalf("unexpected second result: %+v", results[1])
	}
}

func TestDoubleCommitFails(t *testing.T) {
	ctx := context.Background()
	e := newEngine()
	tx, _ := e.Begin(ctx)
	if err := tx.Commit(ctx); err != nil {
		t.Fatal(err)
	}
	if err := tx.Commit(ctx); !errs.Is(err, errs.Transaction) {
		t.Fatalf("expected Transaction error on double commit, got %v", err)
	}
}
