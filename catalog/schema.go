package catalog

import "github.com/untoldecay/cokedb/errs"

// Column describes one column of a Table.
type Column struct {
	Name       string
	Type       Type
	PrimaryKey bool
	Unique     bool
	Indexed    bool
	Nullable   bool
	Default    Expr // nil if no default; must be constant-foldable, checked at CreateTable
}

// Expr is the minimal interface catalog needs from the expression package
// to evaluate a column default without importing the sql packages (which
// in turn depend on catalog for Value/Table). The production
// implementation is sql/plan's constExprAdapter, which only accepts a
// literal AST node: DEFAULT expressions are grammatically restricted to
// constants.
type Expr interface {
	EvalConst() (Value, error)
}

// Table is the ordered list of Columns for one table, with resolved
// indexes into that list cached for the primary key and every indexed
// column.
type Table struct {
	Name    string
	Columns []Column

	pkIndex      int   // -1 if no primary key (never valid per invariants, but defensive)
	indexedCols  []int // column indexes with Indexed or Unique set
}

// Row is an ordered tuple of Values, one per Table column.
type Row []Value

// NewTable validates and constructs a Table, caching column indexes. It
// enforces the structural invariants: at most one primary key; primary
// key implies NOT NULL and unique and is not separately "indexed"; unique
// implies indexed; default must type-match its column.
func NewTable(name string, columns []Column) (*Table, error) {
	t := &Table{Name: name, Columns: columns, pkIndex: -1}

	seen := make(map[string]bool, len(columns))
	for i := range t.Columns {
		c := &t.Columns[i]
		if seen[c.Name] {
			return nil, errs.Schemaf("table %s: duplicate column %s", name, c.Name)
		}
		seen[c.Name] = true

		if c.PrimaryKey {
			if t.pkIndex != -1 {
				return nil, errs.Schemaf("table %s: more than one primary key column", name)
			}
			if c.Indexed {
				return nil, errs.Schemaf("table %s: primary key column %s must not also be marked indexed", name, c.Name)
			}
			c.Unique = true
			c.Nullable = false
			t.pkIndex = i
		}
		if c.Unique {
			c.Indexed = true
		}
		if c.Indexed && !c.PrimaryKey {
			t.indexedCols = append(t.indexedCols, i)
		}
		if c.Default != nil {
			v, err := c.Default.EvalConst()
			if err != nil {
				return nil, errs.Schemaf("table %s: column %s default: %v", name, c.Name, err)
			}
			if !valueMatchesType(v, c.Type, c.Nullable) {
				return nil, errs.Schemaf("table %s: column %s default type mismatch", name, c.Name)
			}
		}
	}
	if t.pkIndex == -1 {
		return nil, errs.Schemaf("table %s: requires exactly one primary key column", name)
	}
	return t, nil
}

// PKIndex returns the resolved column index of the primary key.
func (t *Table) PKIndex() int { return t.pkIndex }

// IndexedColumns returns the resolved column indexes of every secondary
// indexed/unique column (excluding the primary key, which is not
// separately indexed).
func (t *Table) IndexedColumns() []int { return t.indexedCols }

// ColumnIndex returns the resolved index of the named column, or -1.
func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

func valueMatchesType(v Value, t Type, nullable bool) bool {
	if v.IsNull() {
		return nullable
	}
	return v.typeOf() == t
}

// Validate checks a candidate Row against the table's column types and
// NOT NULL constraints (UNIQUE/PK duplication is checked by the storage
// layer, which can probe the index).
func (t *Table) Validate(row Row) error {
	if len(row) != len(t.Columns) {
		return errs.Schemaf("table %s: expected %d columns, got %d", t.Name, len(t.Columns), len(row))
	}
	for i, c := range t.Columns {
		v := row[i]
		if v.IsNull() {
			if !c.Nullable {
				return errs.Constraintf("table %s: column %s is NOT NULL", t.Name, c.Name)
			}
			continue
		}
		if v.typeOf() != c.Type {
			return errs.Schemaf("table %s: column %s expected %s, got %s", t.Name, c.Name, c.Type, v.typeOf())
		}
	}
	return nil
}
