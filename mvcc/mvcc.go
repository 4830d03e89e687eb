// Package mvcc wraps an ordered kv.Store and turns it into a snapshot-
// isolated, multi-version transactional store: a four-partition keyspace
// (next txn id, active txn set, per-txn write log, and versioned records),
// first-writer-wins conflict detection, and repeatable-read visibility
// frozen at Begin.
package mvcc

import (
	"bytes"
	"context"
	"encoding/binary"
	"sort"
	"sync"

	"github.com/untoldecay/cokedb/errs"
	"github.com/untoldecay/cokedb/kv"
)

// Keyspace tag bytes. Each partition's key always starts with its tag so
// the four partitions never overlap under lexicographic order.
const (
	tagNextTxnID byte = 0x01
	tagActiveTxn byte = 0x02
	tagTxnUpdate byte = 0x03
	tagRecord    byte = 0x04
)

var nextTxnIDKey = []byte{tagNextTxnID}

// tombstone is the sentinel value written for a deleted user key.
var tombstone = []byte{0x00, 't', 'o', 'm', 'b'}

func encodeUint64(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func decodeUint64(b []byte) uint64 {
	return binary.BigEndian.Uint64(b)
}

// activeTxnKey/record/update key layouts keep the encoded id first so scans
// stay ordered and prefix-scoped to one transaction or one user key.

func activeTxnKey(id uint64) []byte {
	return append([]byte{tagActiveTxn}, encodeUint64(id)...)
}

func txnUpdateKey(id uint64, userKey []byte) []byte {
	k := make([]byte, 0, 1+8+len(userKey))
	k = append(k, tagTxnUpdate)
	k = append(k, encodeUint64(id)...)
	k = append(k, userKey...)
	return k
}

func txnUpdatePrefix(id uint64) []byte {
	return append([]byte{tagTxnUpdate}, encodeUint64(id)...)
}

// recordKey encodes Record(userKey, version). The version is stored with
// bits flipped so ascending byte order gives descending version order,
// letting "latest visible version" scans walk forward instead of needing a
// reverse iterator.
func recordKey(userKey []byte, version uint64) []byte {
	k := make([]byte, 0, 1+len(userKey)+1+8)
	k = append(k, tagRecord)
	k = append(k, userKey...)
	k = append(k, 0x00) // separator so no user key is a prefix of another's records
	k = append(k, encodeUint64(^version)...)
	return k
}

func recordUserKeyPrefix(userKey []byte) []byte {
	k := make([]byte, 0, 1+len(userKey)+1)
	k = append(k, tagRecord)
	k = append(k, userKey...)
	k = append(k, 0x00)
	return k
}

func decodeRecordVersion(key []byte) uint64 {
	return ^decodeUint64(key[len(key)-8:])
}

// decodeRecordUserKey extracts the user key portion of a Record(...) key.
func decodeRecordUserKey(key []byte) []byte {
	return key[1 : len(key)-9] // strip tag byte, separator, and 8-byte version
}

// ActiveSet is the frozen set of transaction ids that were in-flight when a
// transaction began; their writes must stay invisible for its lifetime.
type ActiveSet map[uint64]struct{}

func (s ActiveSet) has(id uint64) bool {
	_, ok := s[id]
	return ok
}

func encodeActiveSet(s ActiveSet) []byte {
	ids := make([]uint64, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	b := make([]byte, 8*len(ids))
	for i, id := range ids {
		binary.BigEndian.PutUint64(b[i*8:], id)
	}
	return b
}

func decodeActiveSet(b []byte) ActiveSet {
	s := make(ActiveSet, len(b)/8)
	for i := 0; i+8 <= len(b); i += 8 {
		s[binary.BigEndian.Uint64(b[i:])] = struct{}{}
	}
	return s
}

// Txn is an immutable handle to an in-flight MVCC transaction: an id, the
// snapshot's active set, and a reference to the store it was opened
// against. It is not a smart handle — the caller is responsible for Commit
// or Rollback, and must treat a dropped handle as a rollback. mu is the
// owning Engine's lock, shared so a write's check-and-set stays atomic
// with respect to every other session's Begin/write.
type Txn struct {
	id     uint64
	active ActiveSet
	store  kv.Store
	mu     *sync.Mutex
	done   bool
}

// ID returns the transaction's monotonically-assigned id.
func (t *Txn) ID() uint64 { return t.id }

// Engine turns a raw ordered kv.Store into an MVCC-transactional store.
// mu serializes the compound read-then-write sequences (Begin's
// read-and-increment of NextTxnId, and a write's maxVersion-check-then-set)
// that the underlying kv.Store only locks individually: a single global
// lock across these sequences is what keeps concurrent sessions from
// minting duplicate txn ids or both winning a write conflict.
type Engine struct {
	mu    sync.Mutex
	store kv.Store
}

// New wraps store with MVCC bookkeeping.
func New(store kv.Store) *Engine {
	return &Engine{store: store}
}

// Begin atomically reads-and-increments NextTxnId, snapshots the current
// active set, registers itself as active, and returns the handle. The
// read-and-increment and the active-set snapshot are held under e.mu so
// two concurrent Begin calls can never mint the same txn id.
func (e *Engine) Begin(ctx context.Context) (*Txn, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	raw, ok, err := e.store.Get(ctx, nextTxnIDKey)
	if err != nil {
		return nil, errs.Storagef("mvcc: reading next txn id: %v", err)
	}
	var next uint64 = 1
	if ok {
		next = decodeUint64(raw) + 1
	}

	active, err := e.readActiveSet(ctx)
	if err != nil {
		return nil, err
	}

	var b kv.Batch
	b.Set(nextTxnIDKey, encodeUint64(next))
	b.Set(activeTxnKey(next), encodeActiveSet(active))
	if err := e.store.WriteBatch(ctx, b); err != nil {
		return nil, errs.Storagef("mvcc: beginning txn: %v", err)
	}

	return &Txn{id: next, active: active, store: e.store, mu: &e.mu}, nil
}

func (e *Engine) readActiveSet(ctx context.Context) (ActiveSet, error) {
	it, err := e.store.ScanPrefix(ctx, []byte{tagActiveTxn})
	if err != nil {
		return nil, errs.Storagef("mvcc: scanning active txns: %v", err)
	}
	defer it.Close()

	active := make(ActiveSet)
	for it.Next() {
		p := it.Pair()
		id := decodeUint64(p.Key[1:])
		active[id] = struct{}{}
	}
	if err := it.Err(); err != nil {
		return nil, errs.Storagef("mvcc: scanning active txns: %v", err)
	}
	return active, nil
}

// visible reports whether version v was committed-and-visible to a
// transaction (id, active): v <= id, v is not in the active set (i.e.
// wasn't concurrent/in-flight at Begin), and v != id unless the record
// IS this transaction's own write.
func visible(v, id uint64, active ActiveSet) bool {
	if v > id {
		return false
	}
	if v == id {
		return true // a txn always sees its own writes
	}
	return !active.has(v)
}

// Commit removes ActiveTxn(id) and all TxnUpdate(id,*) entries atomically.
// Record versions remain as permanent history.
func (t *Txn) Commit(ctx context.Context) error {
	if t.done {
		return errs.Transactionf("mvcc: transaction %d already concluded", t.id)
	}
	updates, err := collectUpdateKeys(ctx, t.store, t.id)
	if err != nil {
		return err
	}

	var b kv.Batch
	b.Delete(activeTxnKey(t.id))
	for _, u := range updates {
		b.Delete(u)
	}
	if err := t.store.WriteBatch(ctx, b); err != nil {
		return errs.Storagef("mvcc: committing txn %d: %v", t.id, err)
	}
	t.done = true
	return nil
}

// Rollback deletes every Record this transaction wrote, its TxnUpdate
// entries, and its ActiveTxn entry, atomically.
func (t *Txn) Rollback(ctx context.Context) error {
	if t.done {
		return errs.Transactionf("mvcc: transaction %d already concluded", t.id)
	}
	updates, err := collectUpdateKeys(ctx, t.store, t.id)
	if err != nil {
		return err
	}

	var b kv.Batch
	for _, u := range updates {
		userKey := u[1+8:] // strip tag + encoded id
		b.Delete(recordKey(userKey, t.id))
		b.Delete(u)
	}
	b.Delete(activeTxnKey(t.id))
	if err := t.store.WriteBatch(ctx, b); err != nil {
		return errs.Storagef("mvcc: rolling back txn %d: %v", t.id, err)
	}
	t.done = true
	return nil
}

func collectUpdateKeys(ctx context.Context, store kv.Store, id uint64) ([][]byte, error) {
	it, err := store.ScanPrefix(ctx, txnUpdatePrefix(id))
	if err != nil {
		return nil, errs.Storagef("mvcc: scanning txn updates: %v", err)
	}
	defer it.Close()

	var keys [][]byte
	for it.Next() {
		keys = append(keys, append([]byte(nil), it.Pair().Key...))
	}
	if err := it.Err(); err != nil {
		return nil, errs.Storagef("mvcc: scanning txn updates: %v", err)
	}
	return keys, nil
}

// Get returns the latest version of userKey visible to t, or ok=false if
// absent or tombstoned.
func (t *Txn) Get(ctx context.Context, userKey []byte) ([]byte, bool, error) {
	it, err := t.store.ScanPrefix(ctx, recordUserKeyPrefix(userKey))
	if err != nil {
		return nil, false, errs.Storagef("mvcc: get %x: %v", userKey, err)
	}
	defer it.Close()

	for it.Next() {
		p := it.Pair()
		v := decodeRecordVersion(p.Key)
		if !visible(v, t.id, t.active) {
			continue
		}
		if bytes.Equal(p.Value, tombstone) {
			return nil, false, nil
		}
		return p.Value, true, nil
	}
	if err := it.Err(); err != nil {
		return nil, false, errs.Storagef("mvcc: get %x: %v", userKey, err)
	}
	return nil, false, nil
}

// Put writes a new version of userKey within this transaction. It fails
// with a Serialization error if a concurrent or future writer already
// committed or is still active at a version that would make this write
// unsafe to apply (first-writer-wins).
func (t *Txn) Put(ctx context.Context, userKey, value []byte) error {
	return t.write(ctx, userKey, value)
}

// Delete writes a tombstone version of userKey within this transaction,
// subject to the same conflict rule as Put.
func (t *Txn) Delete(ctx context.Context, userKey []byte) error {
	return t.write(ctx, userKey, tombstone)
}

func (t *Txn) write(ctx context.Context, userKey, value []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	vmax, found, err := t.maxVersion(ctx, userKey)
	if err != nil {
		return err
	}
	if found && (vmax > t.id || t.active.has(vmax)) {
		return errs.Serializationf("mvcc: write conflict on key %x", userKey)
	}

	var b kv.Batch
	b.Set(recordKey(userKey, t.id), value)
	b.Set(txnUpdateKey(t.id, userKey), nil)
	if err := t.store.WriteBatch(ctx, b); err != nil {
		return errs.Storagef("mvcc: writing %x: %v", userKey, err)
	}
	return nil
}

func (t *Txn) maxVersion(ctx context.Context, userKey []byte) (uint64, bool, error) {
	it, err := t.store.ScanPrefix(ctx, recordUserKeyPrefix(userKey))
	if err != nil {
		return 0, false, errs.Storagef("mvcc: scanning versions of %x: %v", userKey, err)
	}
	defer it.Close()

	if it.Next() {
		return decodeRecordVersion(it.Pair().Key), true, nil
	}
	return 0, false, it.Err()
}

// ScanPrefixResult is one visible, non-tombstoned user key/value pair.
type ScanPrefixResult struct {
	Key   []byte
	Value []byte
}

// ScanPrefix merge-walks the distinct user keys under prefix and yields the
// latest version visible to t for each, skipping tombstones.
func (t *Txn) ScanPrefix(ctx context.Context, prefix []byte) ([]ScanPrefixResult, error) {
	full := append([]byte{tagRecord}, prefix...)
	return t.scanRecordSpace(ctx, full, nextPrefixEnd(full))
}

// ScanRange merge-walks distinct user keys in [start, end) the same way.
func (t *Txn) ScanRange(ctx context.Context, start, end []byte) ([]ScanPrefixResult, error) {
	full := append([]byte{tagRecord}, start...)
	var fullEnd []byte
	if end != nil {
		fullEnd = append([]byte{tagRecord}, end...)
	}
	return t.scanRecordSpace(ctx, full, fullEnd)
}

func nextPrefixEnd(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] != 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}

// scanRecordSpace walks Record(...) entries in [start,end) under the
// tagRecord partition and, for each distinct user key, picks the latest
// version visible to t (the iterator yields versions descending per key
// because of the bit-flipped encoding, so the first visible hit wins).
func (t *Txn) scanRecordSpace(ctx context.Context, start, end []byte) ([]ScanPrefixResult, error) {
	it, err := t.store.ScanRange(ctx, start, end)
	if err != nil {
		return nil, errs.Storagef("mvcc: scanning: %v", err)
	}
	defer it.Close()

	var out []ScanPrefixResult
	var curKey []byte
	resolved := false

	for it.Next() {
		p := it.Pair()
		uk := decodeRecordUserKey(p.Key)
		if curKey == nil || !bytes.Equal(uk, curKey) {
			curKey = append([]byte(nil), uk...)
			resolved = false
		}
		if resolved {
			continue
		}
		v := decodeRecordVersion(p.Key)
		if !visible(v, t.id, t.active) {
			continue
		}
		resolved = true
		if bytes.Equal(p.Value, tombstone) {
			continue
		}
		out = append(out, ScanPrefixResult{Key: curKey, Value: append([]byte(nil), p.Value...)})
	}
	if err := it.Err(); err != nil {
		return nil, errs.Storagef("mvcc: scanning: %v", err)
	}
	return out, nil
}

