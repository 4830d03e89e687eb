package kv

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/gofrs/flock"
	_ "github.com/ncruces/go-sqlite3/driver" // registers "sqlite3" with database/sql
	_ "github.com/ncruces/go-sqlite3/embed"  // statically links the sqlite3 library
)

// SQLiteStore is an on-disk Ordered KV backend. It persists the raw
// key/value records CokeDB writes through a single table and relies on
// SQLite's own B-tree index for the ordering ScanPrefix/ScanRange need,
// rather than reaching for a different storage model than MemoryStore.
//
// Durability of this backend is incidental (whatever the embedded SQLite
// library gives a single-file database); the query/transaction core still
// treats the KV layer as in-memory-unless-otherwise-noted, and this type
// is the "otherwise noted" case.
type SQLiteStore struct {
	db   *sql.DB
	lock *flock.Flock
	path string
}

// OpenFile opens (creating if absent) a SQLite-backed Store at path,
// holding an advisory file lock for the lifetime of the store so two
// processes never open the same file concurrently.
func OpenFile(path string) (*SQLiteStore, error) {
	lock := flock.New(path + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("kv: locking %s: %w", path, err)
	}
	if !locked {
		return nil, fmt.Errorf("kv: %s is already open by another process", path)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("kv: opening %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // single-writer; SQLite serializes anyway

	const ddl = `CREATE TABLE IF NOT EXISTS kv (k BLOB PRIMARY KEY, v BLOB NOT NULL)`
	if _, err := db.Exec(ddl); err != nil {
		_ = db.Close()
		_ = lock.Unlock()
		return nil, fmt.Errorf("kv: creating schema: %w", err)
	}

	return &SQLiteStore{db: db, lock: lock, path: path}, nil
}

func (s *SQLiteStore) Get(ctx context.Context, key []byte) ([]byte, bool, error) {
	var v []byte
	err := s.db.QueryRowContext(ctx, `SELECT v FROM kv WHERE k = ?`, key).Scan(&v)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (s *SQLiteStore) Set(ctx context.Context, key, value []byte) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO kv (k, v) VALUES (?, ?)
		ON CONFLICT(k) DO UPDATE SET v = excluded.v`, key, value)
	return err
}

func (s *SQLiteStore) Delete(ctx context.Context, key []byte) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE k = ?`, key)
	return err
}

func (s *SQLiteStore) ScanPrefix(ctx context.Context, prefix []byte) (Iterator, error) {
	upper := prefixUpperBound(prefix)
	if upper == nil {
		rows, err := s.db.QueryContext(ctx, `SELECT k, v FROM kv WHERE k >= ? ORDER BY k`, prefix)
		if err != nil {
			return nil, err
		}
		return &sqlRowsIterator{rows: rows}, nil
	}
	rows, err := s.db.QueryContext(ctx, `SELECT k, v FROM kv WHERE k >= ? AND k < ? ORDER BY k`, prefix, upper)
	if err != nil {
		return nil, err
	}
	return &sqlRowsIterator{rows: rows}, nil
}

func (s *SQLiteStore) ScanRange(ctx context.Context, start, end []byte) (Iterator, error) {
	if end == nil {
		rows, err := s.db.QueryContext(ctx, `SELECT k, v FROM kv WHERE k >= ? ORDER BY k`, start)
		if err != nil {
			return nil, err
		}
		return &sqlRowsIterator{rows: rows}, nil
	}
	rows, err := s.db.QueryContext(ctx, `SELECT k, v FROM kv WHERE k >= ? AND k < ? ORDER BY k`, start, end)
	if err != nil {
		return nil, err
	}
	return &sqlRowsIterator{rows: rows}, nil
}

func (s *SQLiteStore) WriteBatch(ctx context.Context, b Batch) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, op := range b {
		switch op.Kind {
		case OpSet:
			if _, err := tx.ExecContext(ctx, `INSERT INTO kv (k, v) VALUES (?, ?)
				ON CONFLICT(k) DO UPDATE SET v = excluded.v`, op.Key, op.Value); err != nil {
				return err
			}
		case OpDelete:
			if _, err := tx.ExecContext(ctx, `DELETE FROM kv WHERE k = ?`, op.Key); err != nil {
				return err
			}
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) Close() error {
	err := s.db.Close()
	if uerr := s.lock.Unlock(); err == nil {
		err = uerr
	}
	return err
}

// prefixUpperBound returns the smallest key that is strictly greater than
// every key with the given prefix, or nil if the prefix is all 0xff bytes
// (meaning there is no finite upper bound; caller should scan to the end).
func prefixUpperBound(prefix []byte) []byte {
	upper := append([]byte(nil), prefix...)
	for i := len(upper) - 1; i >= 0; i-- {
		if upper[i] != 0xff {
			upper[i]++
			return upper[:i+1]
		}
	}
	return nil
}

type sqlRowsIterator struct {
	rows *sql.Rows
	pair Pair
	err  error
}

func (it *sqlRowsIterator) Next() bool {
	if it.err != nil || !it.rows.Next() {
		return false
	}
	var k, v []byte
	if err := it.rows.Scan(&k, &v); err != nil {
		it.err = err
		return false
	}
	it.pair = Pair{Key: k, Value: v}
	return true
}

func (it *sqlRowsIterator) Pair() Pair { return it.pair }

func (it *sqlRowsIterator) Err() error {
	if it.err != nil {
		return it.err
	}
	return it.rows.Err()
}

func (it *sqlRowsIterator) Close() error { return it.rows.Close() }
