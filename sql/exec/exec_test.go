package exec

import (
	"context"
	"testing"

	"github.com/untoldecay/cokedb/catalog"
	"github.com/untoldecay/cokedb/errs"
	"github.com/untoldecay/cokedb/kv"
	"github.com/untoldecay/cokedb/mvcc"
	"github.com/untoldecay/cokedb/sql/optimize"
	"github.com/untoldecay/cokedb/sql/parser"
	"github.com/untoldecay/cokedb/sql/plan"
)

// catSchema adapts a context-bound catalog.Catalog to plan.TableSchema,
// which the planner calls during Build/Optimize without threading a ctx of
// its own.
type catSchema struct {
	ctx context.Context
	cat *catalog.Catalog
}

func (c catSchema) GetTable(name string) (*catalog.Table, error) {
	return c.cat.GetTable(c.ctx, name)
}

type testEnv struct {
	ctx context.Context
	cat *catalog.Catalog
	ex  *Executor
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	eng := mvcc.New(kv.NewMemoryStore())
	txn, err := eng.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	cat := catalog.New(txn)
	return &testEnv{ctx: ctx, cat: cat, ex: New(cat, nil)}
}

func (e *testEnv) run(t *testing.T, sql string) *Result {
	t.Helper()
	stmt, err := parser.Parse(sql)
	if err != nil {
		t.Fatalf("parse %q: %v", sql, err)
	}
	node, err := plan.Build(catSchema{e.ctx, e.cat}, stmt)
	if err != nil {
		t.Fatalf("build %q: %v", sql, err)
	}
	node, err = optimize.Optimize(catSchema{e.ctx, e.cat}, node)
	if err != nil {
		t.Fatalf("optimize %q: %v", sql, err)
	}
	res, err := e.ex.Execute(e.ctx, node)
	if err != nil {
		t.Fatalf("execute %q: %v", sql, err)
	}
	return res
}

func (e *testEnv) mustFail(t *testing.T, sql string) error {
	t.Helper()
	stmt, err := parser.Parse(sql)
	if err != nil {
		return err
	}
	node, err := plan.Build(catSchema{e.ctx, e.cat}, stmt)
	if err != nil {
		return err
	}
	node, err = optimize.Optimize(catSchema{e.ctx, e.cat}, node)
	if err != nil {
		return err
	}
	_, err = e.ex.Execute(e.ctx, node)
	if err == nil {
		t.Fatalf("execute %q: expected error, got none", sql)
	}
	return err
}

func setupStudentGrade(t *testing.T, env *testEnv) {
	t.Helper()
	env.run(t, `CREATE TABLE student (id INTEGER PRIMARY KEY, name STRING, year INTEGER, sex BOOL INDEX);`)
	env.run(t, `CREATE TABLE grade (id INTEGER PRIMARY KEY, course STRING, grade FLOAT);`)
	env.run(t, `INSERT INTO student VALUES (1, "Ann", 2001, true), (2, "Bo", 1999, false), (3, "Cy", 2001, true);`)
	env.run(t, `INSERT INTO grade VALUES (1, "Math", 3.5), (2, "Bio", 2.0);`)
}

func TestConstantSelectNoFrom(t *testing.T) {
	env := newTestEnv(t)
	res := env.run(t, `SELECT (1.0+4)/2 AS res;`)
	if len(res.Rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(res.Rows))
	}
	v := res.Rows[0][0]
	if v.Kind != catalog.KindFloat || v.Flt != 2.5 {
		t.Fatalf("got %v, want 2.5", v)
	}
}

func TestInsertAndScanWithFilter(t *testing.T) {
	env := newTestEnv(t)
	setupStudentGrade(t, env)

	res := env.run(t, `SELECT name FROM student WHERE year >= 2001 ORDER BY name;`)
	if len(res.Rows) != 2 {
		t.Fatalf("rows = %d, want 2: %+v", len(res.Rows), res.Rows)
	}
	if res.Rows[0][0].Str != "Ann" || res.Rows[1][0].Str != "Cy" {
		t.Fatalf("unexpected order: %+v", res.Rows)
	}
}

func TestKeyLookupByPrimaryKey(t *testing.T) {
	env := newTestEnv(t)
	setupStudentGrade(t, env)

	res := env.run(t, `SELECT name FROM student WHERE id = 2;`)
	if len(res.Rows) != 1 || res.Rows[0][0].Str != "Bo" {
		t.Fatalf("got %+v, want [[Bo]]", res.Rows)
	}
}

func TestIndexLookupOnIndexedColumn(t *testing.T) {
	env := newTestEnv(t)
	setupStudentGrade(t, env)

	res := env.run(t, `SELECT name FROM student WHERE sex = true ORDER BY name;`)
	if len(res.Rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(res.Rows))
	}
}

func TestInnerJoinViaHashJoin(t *testing.T) {
	env := newTestEnv(t)
	setupStudentGrade(t, env)

	res := env.run(t, `SELECT student.name, grade.course FROM student JOIN grade ON student.id = grade.id ORDER BY student.name;`)
	if len(res.Rows) != 2 {
		t.Fatalf("rows = %d, want 2: %+v", len(res.Rows), res.Rows)
	}
	if res.Rows[0][0].Str != "Ann" || res.Rows[0][1].Str != "Math" {
		t.Fatalf("unexpected row: %+v", res.Rows[0])
	}
}

func TestLeftJoinNullPadsUnmatched(t *testing.T) {
	env := newTestEnv(t)
	setupStudentGrade(t, env)

	res := env.run(t, `SELECT student.name, grade.course FROM student LEFT JOIN grade ON student.id = grade.id ORDER BY student.name;`)
	if len(res.Rows) != 3 {
		t.Fatalf("rows = %d, want 3: %+v", len(res.Rows), res.Rows)
	}
	// Cy (id=3) has no matching grade row.
	var cyCourse catalog.Value
	for _, r := range res.Rows {
		if r[0].Str == "Cy" {
			cyCourse = r[1]
		}
	}
	if !cyCourse.IsNull() {
		t.Fatalf("expected NULL course for Cy, got %v", cyCourse)
	}
}

func TestAggregateGroupBy(t *testing.T) {
	env := newTestEnv(t)
	setupStudentGrade(t, env)

	res := env.run(t, `SELECT year, count(*) AS n FROM student GROUP BY year ORDER BY year;`)
	if len(res.Rows) != 2 {
		t.Fatalf("rows = %d, want 2: %+v", len(res.Rows), res.Rows)
	}
	if res.Rows[0][0].Int != 1999 || res.Rows[0][1].Int != 1 {
		t.Fatalf("unexpected row: %+v", res.Rows[0])
	}
	if res.Rows[1][0].Int != 2001 || res.Rows[1][1].Int != 2 {
		t.Fatalf("unexpected row: %+v", res.Rows[1])
	}
}

func TestAverageOfIntegersStaysInteger(t *testing.T) {
	env := newTestEnv(t)
	env.run(t, `CREATE TABLE student (id INTEGER PRIMARY KEY, name STRING, year INTEGER, sex BOOL INDEX);`)
	env.run(t, `INSERT INTO student VALUES (1, "Ann", 2001, true), (2, "Bo", 2002, true), (3, "Cy", 2003, false), (4, "Dee", 2003, false);`)

	res := env.run(t, `SELECT count(*) AS n, average(2023-year) AS avg_age, sum(2023-year) AS sum_age FROM student GROUP BY student.sex ORDER BY sum_age;`)
	if len(res.Rows) != 2 {
		t.Fatalf("rows = %d, want 2: %+v", len(res.Rows), res.Rows)
	}
	for _, row := range res.Rows {
		avg, sum := row[1], row[2]
		if avg.Kind != catalog.KindInteger {
			t.Fatalf("average of integer inputs should stay Integer, got %v", avg)
		}
		if sum.Kind != catalog.KindInteger {
			t.Fatalf("sum of integer inputs should stay Integer, got %v", sum)
		}
	}
	// sex=false group: 2023-2003 twice, sum 40, avg 20.
	if res.Rows[0][1].Int != 20 || res.Rows[0][2].Int != 40 {
		t.Fatalf("unexpected row: %+v", res.Rows[0])
	}
	// sex=true group: 2023-2001 and 2023-2002, sum 43, avg floors to 21.
	if res.Rows[1][1].Int != 21 || res.Rows[1][2].Int != 43 {
		t.Fatalf("unexpected row: %+v", res.Rows[1])
	}
}

func TestAggregateWithoutGroupByAlwaysEmitsOneRow(t *testing.T) {
	env := newTestEnv(t)
	env.run(t, `CREATE TABLE student (id INTEGER PRIMARY KEY, name STRING, year INTEGER, sex BOOL INDEX);`)

	res := env.run(t, `SELECT count(*) AS n FROM student;`)
	if len(res.Rows) != 1 || res.Rows[0][0].Int != 0 {
		t.Fatalf("got %+v, want one row with n=0", res.Rows)
	}
}

func TestAverageAggregateAlias(t *testing.T) {
	env := newTestEnv(t)
	setupStudentGrade(t, env)

	res := env.run(t, `SELECT average(grade) AS avg_grade FROM grade;`)
	if len(res.Rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(res.Rows))
	}
	if res.Rows[0][0].Flt != 2.75 {
		t.Fatalf("got %v, want 2.75", res.Rows[0][0])
	}
}

func TestUpdateAndDelete(t *testing.T) {
	env := newTestEnv(t)
	setupStudentGrade(t, env)

	res := env.run(t, `UPDATE student SET year = 2002 WHERE id = 2;`)
	if res.Affected != 1 {
		t.Fatalf("affected = %d, want 1", res.Affected)
	}
	check := env.run(t, `SELECT year FROM student WHERE id = 2;`)
	if check.Rows[0][0].Int != 2002 {
		t.Fatalf("got %v, want 2002", check.Rows[0][0])
	}

	del := env.run(t, `DELETE FROM student WHERE id = 1;`)
	if del.Affected != 1 {
		t.Fatalf("affected = %d, want 1", del.Affected)
	}
	remaining := env.run(t, `SELECT id FROM student;`)
	if len(remaining.Rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(remaining.Rows))
	}
}

func TestLimitOffset(t *testing.T) {
	env := newTestEnv(t)
	setupStudentGrade(t, env)

	res := env.run(t, `SELECT name FROM student ORDER BY name LIMIT 1 OFFSET 1;`)
	if len(res.Rows) != 1 || res.Rows[0][0].Str != "Bo" {
		t.Fatalf("got %+v, want [[Bo]]", res.Rows)
	}
}

func TestDivideByZeroIsArithmeticError(t *testing.T) {
	env := newTestEnv(t)
	err := env.mustFail(t, `SELECT 1/0;`)
	if !errsIsArithmetic(err) {
		t.Fatalf("got %v, want Arithmetic error", err)
	}
}

func errsIsArithmetic(err error) bool { return errs.Is(err, errs.Arithmetic) }

func TestExplainRendersPlanTree(t *testing.T) {
	env := newTestEnv(t)
	setupStudentGrade(t, env)

	stmt, err := parser.Parse(`EXPLAIN SELECT name FROM student WHERE id = 1;`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	node, err := plan.Build(catSchema{env.ctx, env.cat}, stmt)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	node, err = optimize.Optimize(catSchema{env.ctx, env.cat}, node)
	if err != nil {
		t.Fatalf("optimize: %v", err)
	}
	out := Explain(node)
	if out == "" {
		t.Fatal("expected non-empty EXPLAIN output")
	}
}
