// Package kv defines the ordered byte-key/byte-value store that the MVCC
// engine is built on. Keys are opaque byte slices with a total
// lexicographic order; values are opaque byte slices. Implementations must
// support atomic multi-key batches since MVCC commit, rollback, and index
// maintenance all depend on all-or-nothing writes.
package kv

import "context"

// Pair is one (key, value) result from a scan.
type Pair struct {
	Key   []byte
	Value []byte
}

// Store is the ordered key-value contract consumed by the MVCC engine.
// Scans are ascending by key and must be fully drained or explicitly closed
// before the underlying transaction they borrow from ends.
type Store interface {
	Get(ctx context.Context, key []byte) ([]byte, bool, error)
	Set(ctx context.Context, key, value []byte) error
	Delete(ctx context.Context, key []byte) error

	// ScanPrefix returns entries whose key starts with prefix, ascending.
	ScanPrefix(ctx context.Context, prefix []byte) (Iterator, error)
	// ScanRange returns entries in [start, end), ascending.
	ScanRange(ctx context.Context, start, end []byte) (Iterator, error)

	// WriteBatch applies every operation in b atomically: either all of
	// them apply or none do.
	WriteBatch(ctx context.Context, b Batch) error

	Close() error
}

// Iterator is a lazy ascending sequence of key-value pairs. Callers must
// call Close when done, even after an error or early break.
type Iterator interface {
	// Next advances the iterator and reports whether a pair is available.
	Next() bool
	// Pair returns the current pair; valid only after Next returns true.
	Pair() Pair
	// Err returns the first error encountered, if any.
	Err() error
	Close() error
}

// OpKind distinguishes a batch operation.
type OpKind int

const (
	OpSet OpKind = iota
	OpDelete
)

// Op is a single operation inside a Batch.
type Op struct {
	Kind  OpKind
	Key   []byte
	Value []byte // unused for OpDelete
}

// Batch is an ordered list of operations applied atomically by WriteBatch.
type Batch []Op

// Set appends a set operation.
func (b *Batch) Set(key, value []byte) {
	*b = append(*b, Op{Kind: OpSet, Key: key, Value: value})
}

// Delete appends a delete operation.
func (b *Batch) Delete(key []byte) {
	*b = append(*b, Op{Kind: OpDelete, Key: key})
}

// collectAll drains an iterator into a slice and closes it, for a caller
// inside this package that needs a scan's whole result eagerly.
func collectAll(it Iterator) ([]Pair, error) {
	defer it.Close()
	var out []Pair
	for it.Next() {
		out = append(out, it.Pair())
	}
	return out, it.Err()
}
