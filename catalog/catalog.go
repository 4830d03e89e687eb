package catalog

import (
	"context"

	"github.com/untoldecay/cokedb/errs"
	"github.com/untoldecay/cokedb/mvcc"
)

// Key layout, byte-tagged so the three spaces never collide with each
// other or with MVCC's own keyspace (mvcc.go's tags occupy 0x01-0x04;
// catalog uses a disjoint range starting at 0x10):
//
//	Table(name)                       -> serialized schema
//	Row(table, pk_value)              -> serialized row
//	Index(table, col, value, pk_value)-> empty marker
const (
	tagTable byte = 0x10
	tagRow   byte = 0x11
	tagIndex byte = 0x12
)

func tableKey(name string) []byte {
	return append([]byte{tagTable}, name...)
}

func rowKey(table string, pk Value) []byte {
	k := []byte{tagRow}
	k = append(k, table...)
	k = append(k, 0x00)
	k = append(k, EncodeKeyValue(pk)...)
	return k
}

func rowPrefix(table string) []byte {
	return append(append([]byte{tagRow}, table...), 0x00)
}

func indexKey(table, col string, val, pk Value) []byte {
	k := []byte{tagIndex}
	k = append(k, table...)
	k = append(k, 0x00)
	k = append(k, col...)
	k = append(k, 0x00)
	k = append(k, EncodeKeyValue(val)...)
	k = append(k, 0x00)
	k = append(k, EncodeKeyValue(pk)...)
	return k
}

func indexPrefix(table, col string, val Value) []byte {
	k := []byte{tagIndex}
	k = append(k, table...)
	k = append(k, 0x00)
	k = append(k, col...)
	k = append(k, 0x00)
	k = append(k, EncodeKeyValue(val)...)
	k = append(k, 0x00)
	return k
}

// Catalog is a view of the schema and row/index data for one transaction.
type Catalog struct {
	txn *mvcc.Txn
}

// New creates a Catalog bound to txn. All operations run within that
// transaction's snapshot and write set.
func New(txn *mvcc.Txn) *Catalog {
	return &Catalog{txn: txn}
}

// CreateTable stores a new table's schema. Fails with Schema if a table of
// that name already exists.
func (c *Catalog) CreateTable(ctx context.Context, t *Table) error {
	key := tableKey(t.Name)
	if _, ok, err := c.txn.Get(ctx, key); err != nil {
		return err
	} else if ok {
		return errs.Schemaf("table %s already exists", t.Name)
	}
	return c.txn.Put(ctx, key, EncodeSchema(t))
}

// DropTable removes a table's schema and all its rows and index entries.
func (c *Catalog) DropTable(ctx context.Context, name string) error {
	t, err := c.GetTable(ctx, name)
	if err != nil {
		return err
	}

	rows, err := c.txn.ScanPrefix(ctx, rowPrefix(name))
	if err != nil {
		return err
	}
	for _, r := range rows {
		row, err := DecodeRow(r.Value)
		if err != nil {
			return err
		}
		if err := c.removeIndexEntries(ctx, t, row); err != nil {
			return err
		}
		if err := c.txn.Delete(ctx, r.Key); err != nil {
			return err
		}
	}
	return c.txn.Delete(ctx, tableKey(name))
}

// GetTable loads a table's schema, or Schema-errors if it doesn't exist.
func (c *Catalog) GetTable(ctx context.Context, name string) (*Table, error) {
	raw, ok, err := c.txn.Get(ctx, tableKey(name))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errs.Schemaf("unknown table %s", name)
	}
	return DecodeSchema(raw)
}

// ListTables returns every table name, ascending.
func (c *Catalog) ListTables(ctx context.Context) ([]string, error) {
	results, err := c.txn.ScanPrefix(ctx, []byte{tagTable})
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(results))
	for _, r := range results {
		names = append(names, string(r.Key[1:]))
	}
	return names, nil
}

// InsertRow validates row against table's schema, checks PK/UNIQUE
// constraints, writes the row, and maintains every secondary index.
func (c *Catalog) InsertRow(ctx context.Context, t *Table, row Row) error {
	if err := t.Validate(row); err != nil {
		return err
	}
	pk := row[t.PKIndex()]
	rk := rowKey(t.Name, pk)
	if _, ok, err := c.txn.Get(ctx, rk); err != nil {
		return err
	} else if ok {
		return errs.DuplicateKey(t.Name, pk)
	}

	for _, ci := range t.IndexedColumns() {
		col := t.Columns[ci]
		if col.Unique {
			if dup, err := c.indexHasOtherPK(ctx, t, col, row[ci], pk); err != nil {
				return err
			} else if dup {
				return errs.Constraintf("table %s: unique violation on column %s", t.Name, col.Name)
			}
		}
	}

	if err := c.txn.Put(ctx, rk, EncodeRow(row)); err != nil {
		return err
	}
	return c.addIndexEntries(ctx, t, row)
}

// UpdateRow replaces the row at pk with newRow, maintaining indexes for
// any changed indexed column. pk must already be present.
func (c *Catalog) UpdateRow(ctx context.Context, t *Table, pk Value, newRow Row) error {
	if err := t.Validate(newRow); err != nil {
		return err
	}
	if !Equal(newRow[t.PKIndex()], pk) {
		return errs.Constraintf("table %s: UPDATE may not change the primary key", t.Name)
	}

	rk := rowKey(t.Name, pk)
	raw, ok, err := c.txn.Get(ctx, rk)
	if err != nil {
		return err
	}
	if !ok {
		return errs.Schemaf("table %s: row %v not found", t.Name, pk)
	}
	oldRow, err := DecodeRow(raw)
	if err != nil {
		return err
	}

	for _, ci := range t.IndexedColumns() {
		col := t.Columns[ci]
		if col.Unique && !Equal(oldRow[ci], newRow[ci]) {
			if dup, err := c.indexHasOtherPK(ctx, t, col, newRow[ci], pk); err != nil {
				return err
			} else if dup {
				return errs.Constraintf("table %s: unique violation on column %s", t.Name, col.Name)
			}
		}
	}

	if err := c.removeIndexEntries(ctx, t, oldRow); err != nil {
		return err
	}
	if err := c.txn.Put(ctx, rk, EncodeRow(newRow)); err != nil {
		return err
	}
	return c.addIndexEntries(ctx, t, newRow)
}

// DeleteRow removes the row at pk and its index entries.
func (c *Catalog) DeleteRow(ctx context.Context, t *Table, pk Value) error {
	rk := rowKey(t.Name, pk)
	raw, ok, err := c.txn.Get(ctx, rk)
	if err != nil {
		return err
	}
	if !ok {
		return errs.Schemaf("table %s: row %v not found", t.Name, pk)
	}
	row, err := DecodeRow(raw)
	if err != nil {
		return err
	}
	if err := c.removeIndexEntries(ctx, t, row); err != nil {
		return err
	}
	return c.txn.Delete(ctx, rk)
}

// GetRow fetches one row by primary key.
func (c *Catalog) GetRow(ctx context.Context, t *Table, pk Value) (Row, bool, error) {
	raw, ok, err := c.txn.Get(ctx, rowKey(t.Name, pk))
	if err != nil || !ok {
		return nil, ok, err
	}
	row, err := DecodeRow(raw)
	return row, true, err
}

// ScanRows returns every visible row of t, ascending by primary key.
func (c *Catalog) ScanRows(ctx context.Context, t *Table) ([]Row, error) {
	results, err := c.txn.ScanPrefix(ctx, rowPrefix(t.Name))
	if err != nil {
		return nil, err
	}
	rows := make([]Row, 0, len(results))
	for _, r := range results {
		row, err := DecodeRow(r.Value)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// ScanIndex returns every row whose indexed column col has value val.
func (c *Catalog) ScanIndex(ctx context.Context, t *Table, col string, val Value) ([]Row, error) {
	ci := t.ColumnIndex(col)
	if ci < 0 {
		return nil, errs.Schemaf("table %s: unknown column %s", t.Name, col)
	}
	entries, err := c.txn.ScanPrefix(ctx, indexPrefix(t.Name, col, val))
	if err != nil {
		return nil, err
	}
	var rows []Row
	for _, e := range entries {
		pk, _, err := decodeValue(e.Key[len(indexPrefix(t.Name, col, val)):])
		if err != nil {
			return nil, err
		}
		row, ok, err := c.GetRow(ctx, t, pk)
		if err != nil {
			return nil, err
		}
		if ok {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

func (c *Catalog) addIndexEntries(ctx context.Context, t *Table, row Row) error {
	for _, ci := range t.IndexedColumns() {
		if row[ci].IsNull() {
			continue // NULL never participates in an index lookup
		}
		col := t.Columns[ci]
		pk := row[t.PKIndex()]
		if err := c.txn.Put(ctx, indexKey(t.Name, col.Name, row[ci], pk), []byte{1}); err != nil {
			return err
		}
	}
	return nil
}

func (c *Catalog) removeIndexEntries(ctx context.Context, t *Table, row Row) error {
	for _, ci := range t.IndexedColumns() {
		if row[ci].IsNull() {
			continue
		}
		col := t.Columns[ci]
		pk := row[t.PKIndex()]
		if err := c.txn.Delete(ctx, indexKey(t.Name, col.Name, row[ci], pk)); err != nil {
			return err
		}
	}
	return nil
}

// indexHasOtherPK reports whether the index on col/val already has an
// entry for a primary key other than excludePK (used for UNIQUE checks).
func (c *Catalog) indexHasOtherPK(ctx context.Context, t *Table, col Column, val Value, excludePK Value) (bool, error) {
	prefix := indexPrefix(t.Name, col.Name, val)
	entries, err := c.txn.ScanPrefix(ctx, prefix)
	if err != nil {
		return false, err
	}
	for _, e := range entries {
		pk, _, err := decodeValue(e.Key[len(prefix):])
		if err != nil {
			return false, err
		}
		if !Equal(pk, excludePK) {
			return true, nil
		}
	}
	return false, nil
}
