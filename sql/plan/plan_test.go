package plan

import (
	"testing"

	"github.com/untoldecay/cokedb/catalog"
	"github.com/untoldecay/cokedb/sql/parser"
)

type fakeCatalog map[string]*catalog.Table

func (f fakeCatalog) GetTable(name string) (*catalog.Table, error) {
	t, ok := f[name]
	if !ok {
		return nil, &testNotFoundError{name}
	}
	return t, nil
}

type testNotFoundError struct{ name string }

func (e *testNotFoundError) Error() string { return "no such table: " + e.name }

func mustTable(t *testing.T, name string, cols []catalog.Column) *catalog.Table {
	t.Helper()
	tbl, err := catalog.NewTable(name, cols)
	if err != nil {
		t.Fatal(err)
	}
	return tbl
}

func studentCatalog(t *testing.T) fakeCatalog {
	return fakeCatalog{
		"student": mustTable(t, "student", []catalog.Column{
			{Name: "id", Type: catalog.TypeInteger, PrimaryKey: true},
			{Name: "name", Type: catalog.TypeString},
			{Name: "year", Type: catalog.TypeInteger},
			{Name: "sex", Type: catalog.TypeBool, Indexed: true},
		}),
		"grade": mustTable(t, "grade", []catalog.Column{
			{Name: "id", Type: catalog.TypeInteger, PrimaryKey: true},
			{Name: "course", Type: catalog.TypeString},
			{Name: "grade", Type: catalog.TypeFloat},
		}),
	}
}

func buildFromSQL(t *testing.T, cat fakeCatalog, sql string) Node {
	t.Helper()
	stmt, err := parser.Parse(sql)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	node, err := Build(cat, stmt)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return node
}

func TestBuildSelectWithWhereAndOrder(t *testing.T) {
	cat := studentCatalog(t)
	node := buildFromSQL(t, cat, `SELECT id, name FROM student WHERE year >= 2001 ORDER BY id ASC;`)
	order, ok := node.(*Order)
	if !ok {
		t.Fatalf("got %T, want *Order", node)
	}
	proj, ok := order.Child.(*Projection)
	if !ok {
		t.Fatalf("order child = %T, want *Projection", order.Child)
	}
	filter, ok := proj.Child.(*Filter)
	if !ok {
		t.Fatalf("projection child = %T, want *Filter", proj.Child)
	}
	if _, ok := filter.Child.(*Scan); !ok {
		t.Fatalf("filter child = %T, want *Scan", filter.Child)
	}
}

func TestBuildJoinChain(t *testing.T) {
	cat := studentCatalog(t)
	node := buildFromSQL(t, cat, `SELECT * FROM student JOIN grade ON student.id = grade.id;`)
	proj := node.(*Projection)
	join, ok := proj.Child.(*NestedLoopJoin)
	if !ok {
		t.Fatalf("got %T, want *NestedLoopJoin", proj.Child)
	}
	if join.Kind != Inner || join.Predicate == nil {
		t.Fatalf("join = %+v", join)
	}
	if len(join.Schema()) != 7 {
		t.Fatalf("join schema len = %d, want 7", len(join.Schema()))
	}
}

func TestBuildAggregate(t *testing.T) {
	cat := studentCatalog(t)
	node := buildFromSQL(t, cat, `SELECT count(*), sum(year) FROM student GROUP BY sex;`)
	proj := node.(*Projection)
	agg, ok := proj.Child.(*Aggregate)
	if !ok {
		t.Fatalf("got %T, want *Aggregate", proj.Child)
	}
	if len(agg.GroupBy) != 1 || len(agg.Aggregates) != 2 {
		t.Fatalf("agg = %+v", agg)
	}
	if agg.Aggregates[0].Func != AggCount || agg.Aggregates[1].Func != AggSum {
		t.Fatalf("agg funcs = %+v", agg.Aggregates)
	}
}

func TestBuildInsertUpdateDelete(t *testing.T) {
	cat := studentCatalog(t)
	ins := buildFromSQL(t, cat, `INSERT INTO student (id, name, year, sex) VALUES (1, "a", 2001, true);`)
	if _, ok := ins.(*Insert); !ok {
		t.Fatalf("got %T, want *Insert", ins)
	}
	upd := buildFromSQL(t, cat, `UPDATE student SET name = "b" WHERE id = 1;`)
	updNode, ok := upd.(*Update)
	if !ok {
		t.Fatalf("got %T, want *Update", upd)
	}
	if _, ok := updNode.Child.(*Filter); !ok {
		t.Fatalf("update child = %T, want *Filter", updNode.Child)
	}
	del := buildFromSQL(t, cat, `DELETE FROM student WHERE id = 1;`)
	if _, ok := del.(*Delete); !ok {
		t.Fatalf("got %T, want *Delete", del)
	}
}

func TestBuildCreateDropTable(t *testing.T) {
	cat := studentCatalog(t)
	stmt, err := parser.Parse(`CREATE TABLE t (id INTEGER PRIMARY KEY);`)
	if err != nil {
		t.Fatal(err)
	}
	node, err := Build(cat, stmt)
	if err != nil {
		t.Fatal(err)
	}
	ct, ok := node.(*CreateTable)
	if !ok || ct.Table.Name != "t" {
		t.Fatalf("got %+v", node)
	}

	stmt2, _ := parser.Parse(`DROP TABLE student;`)
	node2, err := Build(cat, stmt2)
	if err != nil {
		t.Fatal(err)
	}
	if dt, ok := node2.(*DropTable); !ok || dt.Table != "student" {
		t.Fatalf("got %+v", node2)
	}
}

func TestExplainBuildsWrappedStatement(t *testing.T) {
	cat := studentCatalog(t)
	stmt, err := parser.Parse(`EXPLAIN SELECT * FROM student;`)
	if err != nil {
		t.Fatal(err)
	}
	node, err := Build(cat, stmt)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := node.(*Projection); !ok {
		t.Fatalf("got %T, want *Projection (explain transparently builds inner stmt)", node)
	}
}
