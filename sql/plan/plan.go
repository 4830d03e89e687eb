// Package plan builds and represents the Volcano-style logical operator
// tree that CokeDB's optimizer rewrites and its executor drives.
package plan

import (
	"github.com/untoldecay/cokedb/catalog"
	"github.com/untoldecay/cokedb/errs"
	"github.com/untoldecay/cokedb/sql/ast"
)

// Column describes one output column of a plan node: a display name and,
// where statically known (a direct copy of a table column), its type.
// Build leaves Type at its zero value for computed and aggregate output
// columns; Type is never used for evaluation.
type Column struct {
	Name  string
	Table string // originating alias, empty for computed/aggregate output
	Type  catalog.Type
}

// Schema is a plan node's ordered output column list.
type Schema []Column

// Node is one operator in the plan tree. Every node reports its
// (already-resolved) output Schema; trees are immutable once built.
type Node interface {
	Schema() Schema
	planNode()
}

// Scan streams every visible row of Table, optionally dropping rows that
// fail a fused Filter predicate (installed by the optimizer).
type Scan struct {
	Table  string
	Alias  string
	Filter ast.Expr
	Cols   Schema
}

func (s *Scan) Schema() Schema { return s.Cols }
func (*Scan) planNode()        {}

// IndexLookup fetches rows via a secondary index on Column for each of
// Values, installed by the optimizer's index-rewriting rule.
type IndexLookup struct {
	Table    string
	Alias    string
	Column   string
	Values   []ast.Expr
	Residual ast.Expr
	Cols     Schema
}

func (l *IndexLookup) Schema() Schema { return l.Cols }
func (*IndexLookup) planNode()        {}

// KeyLookup fetches rows by primary key, installed by the optimizer's
// key-rewriting rule.
type KeyLookup struct {
	Table    string
	Alias    string
	Keys     []ast.Expr
	Residual ast.Expr
	Cols     Schema
}

func (l *KeyLookup) Schema() Schema { return l.Cols }
func (*KeyLookup) planNode()        {}

// Filter drops child rows for which Expr does not evaluate to TRUE.
type Filter struct {
	Child Node
	Expr  ast.Expr
}

func (f *Filter) Schema() Schema { return f.Child.Schema() }
func (*Filter) planNode()        {}

// ProjectItem is one projection-list entry.
type ProjectItem struct {
	Expr  ast.Expr
	Alias string
}

// Projection evaluates Items against each child row.
type Projection struct {
	Child Node
	Items []ProjectItem
	Cols  Schema
}

func (p *Projection) Schema() Schema { return p.Cols }
func (*Projection) planNode()        {}

// JoinKind is the kind of a two-child join.
type JoinKind int

const (
	Cross JoinKind = iota
	Inner
	Left
	Right
)

func fromASTJoinKind(k ast.JoinKind) JoinKind {
	switch k {
	case ast.JoinInner:
		return Inner
	case ast.JoinLeft:
		return Left
	case ast.JoinRight:
		return Right
	default:
		return Cross
	}
}

// NestedLoopJoin pairs every Left row with every Right row (the executor
// materializes Right once and rescans it per outer row), keeping pairs
// where Predicate is TRUE (or all
// pairs if Predicate is nil, i.e. a cross join).
type NestedLoopJoin struct {
	Left, Right Node
	Predicate   ast.Expr
	Kind        JoinKind
	Cols        Schema
}

func (j *NestedLoopJoin) Schema() Schema { return j.Cols }
func (*NestedLoopJoin) planNode()        {}

// HashJoin is an equi-join: Left/RightCol name the join columns on each
// side. Installed by the optimizer's equi-join-discovery rule.
type HashJoin struct {
	Left, Right       Node
	LeftCol, RightCol ast.Expr
	Kind              JoinKind
	Residual          ast.Expr
	Cols              Schema
}

func (j *HashJoin) Schema() Schema { return j.Cols }
func (*HashJoin) planNode()        {}

// AggFunc names a supported aggregate function.
type AggFunc int

const (
	AggCount AggFunc = iota
	AggSum
	AggAvg
	AggMin
	AggMax
)

// AggExpr is one aggregate computed by an Aggregate node. Arg is nil for
// count(*).
type AggExpr struct {
	Func  AggFunc
	Arg   ast.Expr
	Alias string // synthesized output column name
}

// Aggregate groups child rows by GroupBy and computes one row per group
// with Aggregates' accumulated values appended after the group columns.
// With an empty GroupBy and at least one aggregate, it always emits
// exactly one row.
type Aggregate struct {
	Child      Node
	GroupBy    []ast.Expr
	Aggregates []AggExpr
	Cols       Schema
}

func (a *Aggregate) Schema() Schema { return a.Cols }
func (*Aggregate) planNode()        {}

// OrderKey is one ORDER BY entry.
type OrderKey struct {
	Expr ast.Expr
	Dir  ast.SortDir
}

// Order buffers and stably sorts all child rows by Keys.
type Order struct {
	Child Node
	Keys  []OrderKey
}

func (o *Order) Schema() Schema { return o.Child.Schema() }
func (*Order) planNode()        {}

// Limit and Offset are simple row counters over Child.
type Limit struct {
	Child Node
	N     ast.Expr
}

func (l *Limit) Schema() Schema { return l.Child.Schema() }
func (*Limit) planNode()        {}

type Offset struct {
	Child Node
	N     ast.Expr
}

func (o *Offset) Schema() Schema { return o.Child.Schema() }
func (*Offset) planNode()        {}

// Insert evaluates Rows' literal/default expressions and writes them to
// Table.
type Insert struct {
	Table   string
	Columns []string
	Rows    [][]ast.Expr
}

func (*Insert) Schema() Schema { return nil }
func (*Insert) planNode()      {}

// Assignment is one `col = expr` in an UPDATE's SET clause.
type Assignment struct {
	Column string
	Value  ast.Expr
}

// Update drives Child to collect primary keys, then mutates each row
// within the current transaction.
type Update struct {
	Child       Node
	Table       string
	Assignments []Assignment
}

func (*Update) Schema() Schema { return nil }
func (*Update) planNode()      {}

// Delete drives Child to collect primary keys, then removes each row.
type Delete struct {
	Child Node
	Table string
}

func (*Delete) Schema() Schema { return nil }
func (*Delete) planNode()      {}

// CreateTable and DropTable are DDL plan leaves.
type CreateTable struct {
	Table *catalog.Table
}

func (*CreateTable) Schema() Schema { return nil }
func (*CreateTable) planNode()      {}

type DropTable struct {
	Table string
}

func (*DropTable) Schema() Schema { return nil }
func (*DropTable) planNode()      {}

// TableSchema resolves a table name to a catalog.Table, for use while
// building a plan; aliases are handled by the builder, not here.
type TableSchema interface {
	GetTable(name string) (*catalog.Table, error)
}

func exprDisplayName(e ast.Expr) string {
	switch n := e.(type) {
	case *ast.Column:
		return n.Name
	case *ast.Call:
		return n.Name
	case *ast.Literal:
		return "?column?"
	default:
		return "?column?"
	}
}

func scanSchema(alias string, t *catalog.Table) Schema {
	cols := make(Schema, len(t.Columns))
	for i, c := range t.Columns {
		cols[i] = Column{Name: c.Name, Table: alias, Type: c.Type}
	}
	return cols
}

func joinSchema(left, right Schema) Schema {
	cols := make(Schema, 0, len(left)+len(right))
	cols = append(cols, left...)
	cols = append(cols, right...)
	return cols
}

// errUnsupported is returned for AST shapes the builder does not (yet)
// recognize; the parser's grammar should already have ruled most of
// these out, so this is a defensive Internal error, not user-facing.
func errUnsupported(format string, args ...any) error {
	return errs.Internalf("plan: "+format, args...)
}
