package parser

import (
	"testing"

	"github.com/untoldecay/cokedb/sql/ast"
)

func mustParse(t *testing.T, sql string) ast.Statement {
	t.Helper()
	stmt, err := Parse(sql)
	if err != nil {
		t.Fatalf("parse %q: %v", sql, err)
	}
	return stmt
}

func TestParseSimpleSelect(t *testing.T) {
	stmt := mustParse(t, `SELECT id, name FROM student WHERE year >= 2001 AND sex ORDER BY id ASC;`)
	sel, ok := stmt.(*ast.SelectStmt)
	if !ok {
		t.Fatalf("got %T, want *ast.SelectStmt", stmt)
	}
	if len(sel.Projection) != 2 {
		t.Fatalf("projection len = %d, want 2", len(sel.Projection))
	}
	if len(sel.From) != 1 || sel.From[0].Table != "student" {
		t.Fatalf("from = %+v", sel.From)
	}
	if sel.Where == nil {
		t.Fatal("expected WHERE clause")
	}
	if len(sel.OrderBy) != 1 || sel.OrderBy[0].Dir != ast.Asc {
		t.Fatalf("order by = %+v", sel.OrderBy)
	}
}

func TestParseArithmeticPrecedence(t *testing.T) {
	// (1.0+4)/2 should parse as Div(Infix(Add(1.0,4)), 2) once parenthesized.
	stmt := mustParse(t, `SELECT (1.0+4)/2 AS res;`)
	sel := stmt.(*ast.SelectStmt)
	item := sel.Projection[0]
	if item.Alias != "res" {
		t.Fatalf("alias = %q", item.Alias)
	}
	div, ok := item.Expr.(*ast.Infix)
	if !ok || div.Op != ast.OpDiv {
		t.Fatalf("top expr = %+v, want Div infix", item.Expr)
	}
	add, ok := div.Left.(*ast.Infix)
	if !ok || add.Op != ast.OpAdd {
		t.Fatalf("left of div = %+v, want Add infix", div.Left)
	}
}

func TestParseOperatorPrecedenceWithoutParens(t *testing.T) {
	// 1 + 2 * 3 should parse as Add(1, Mul(2,3)).
	stmt := mustParse(t, `SELECT 1 + 2 * 3;`)
	sel := stmt.(*ast.SelectStmt)
	add, ok := sel.Projection[0].Expr.(*ast.Infix)
	if !ok || add.Op != ast.OpAdd {
		t.Fatalf("got %+v, want top-level Add", sel.Projection[0].Expr)
	}
	mul, ok := add.Right.(*ast.Infix)
	if !ok || mul.Op != ast.OpMul {
		t.Fatalf("right of add = %+v, want Mul", add.Right)
	}
}

func TestParsePowerIsRightAssociative(t *testing.T) {
	// 2 ^ 3 ^ 2 should parse as Pow(2, Pow(3,2)).
	stmt := mustParse(t, `SELECT 2 ^ 3 ^ 2;`)
	sel := stmt.(*ast.SelectStmt)
	outer, ok := sel.Projection[0].Expr.(*ast.Infix)
	if !ok || outer.Op != ast.OpPow {
		t.Fatalf("got %+v", sel.Projection[0].Expr)
	}
	inner, ok := outer.Right.(*ast.Infix)
	if !ok || inner.Op != ast.OpPow {
		t.Fatalf("right of outer pow = %+v, want nested Pow", outer.Right)
	}
}

func TestParseAndOrPrecedence(t *testing.T) {
	// a OR b AND c should parse as Or(a, And(b,c)).
	stmt := mustParse(t, `SELECT * FROM t WHERE a OR b AND c;`)
	sel := stmt.(*ast.SelectStmt)
	or, ok := sel.Where.(*ast.Infix)
	if !ok || or.Op != ast.OpOr {
		t.Fatalf("where = %+v, want Or", sel.Where)
	}
	and, ok := or.Right.(*ast.Infix)
	if !ok || and.Op != ast.OpAnd {
		t.Fatalf("right of or = %+v, want And", or.Right)
	}
}

func TestParseIsNullPostfix(t *testing.T) {
	stmt := mustParse(t, `SELECT * FROM t WHERE name IS NOT NULL;`)
	sel := stmt.(*ast.SelectStmt)
	post, ok := sel.Where.(*ast.Postfix)
	if !ok || post.Op != ast.OpIsNotNull {
		t.Fatalf("where = %+v, want IS NOT NULL postfix", sel.Where)
	}
}

func TestParseQualifiedColumnAndFunctionCall(t *testing.T) {
	stmt := mustParse(t, `SELECT count(*), student.name FROM student GROUP BY student.sex;`)
	sel := stmt.(*ast.SelectStmt)
	call, ok := sel.Projection[0].Expr.(*ast.Call)
	if !ok || call.Name != "count" {
		t.Fatalf("got %+v", sel.Projection[0].Expr)
	}
	if len(call.Args) != 1 {
		t.Fatalf("count args = %+v", call.Args)
	}
	if _, ok := call.Args[0].(*ast.Star); !ok {
		t.Fatalf("count arg = %+v, want Star", call.Args[0])
	}
	col, ok := sel.Projection[1].Expr.(*ast.Column)
	if !ok || col.Table != "student" || col.Name != "name" {
		t.Fatalf("got %+v", sel.Projection[1].Expr)
	}
}

func TestParseJoinWithOn(t *testing.T) {
	stmt := mustParse(t, `SELECT * FROM student JOIN grade ON student.id = grade.student_id;`)
	sel := stmt.(*ast.SelectStmt)
	if len(sel.From) != 2 {
		t.Fatalf("from = %+v", sel.From)
	}
	if sel.From[1].Join != ast.JoinInner || sel.From[1].On == nil {
		t.Fatalf("join ref = %+v", sel.From[1])
	}
}

func TestParseCrossJoinByComma(t *testing.T) {
	stmt := mustParse(t, `SELECT * FROM a, b;`)
	sel := stmt.(*ast.SelectStmt)
	if len(sel.From) != 2 || sel.From[1].Join != ast.JoinCross {
		t.Fatalf("from = %+v", sel.From)
	}
}

func TestParseInsert(t *testing.T) {
	stmt := mustParse(t, `INSERT INTO student (id, name) VALUES (1, "xiaoming"), (2, "xiaohong");`)
	ins, ok := stmt.(*ast.InsertStmt)
	if !ok {
		t.Fatalf("got %T", stmt)
	}
	if ins.Table != "student" || len(ins.Columns) != 2 || len(ins.Rows) != 2 {
		t.Fatalf("got %+v", ins)
	}
}

func TestParseUpdate(t *testing.T) {
	stmt := mustParse(t, `UPDATE grade SET grade = 77.0 WHERE id = 1;`)
	upd, ok := stmt.(*ast.UpdateStmt)
	if !ok {
		t.Fatalf("got %T", stmt)
	}
	if upd.Table != "grade" || len(upd.Assignments) != 1 || upd.Where == nil {
		t.Fatalf("got %+v", upd)
	}
}

func TestParseDelete(t *testing.T) {
	stmt := mustParse(t, `DELETE FROM student WHERE id = 3;`)
	del, ok := stmt.(*ast.DeleteStmt)
	if !ok || del.Table != "student" || del.Where == nil {
		t.Fatalf("got %+v", stmt)
	}
}

func TestParseCreateTable(t *testing.T) {
	stmt := mustParse(t, `CREATE TABLE student (id INTEGER PRIMARY KEY, name STRING NOT NULL, sex BOOL INDEX);`)
	ct, ok := stmt.(*ast.CreateTableStmt)
	if !ok || ct.Table != "student" || len(ct.Columns) != 3 {
		t.Fatalf("got %+v", stmt)
	}
	if !ct.Columns[0].PrimaryKey {
		t.Fatalf("id column = %+v, want PrimaryKey", ct.Columns[0])
	}
	if !ct.Columns[1].NotNull {
		t.Fatalf("name column = %+v, want NotNull", ct.Columns[1])
	}
	if !ct.Columns[2].Indexed {
		t.Fatalf("sex column = %+v, want Indexed", ct.Columns[2])
	}
}

func TestParseDropTable(t *testing.T) {
	stmt := mustParse(t, `DROP TABLE student;`)
	if dt, ok := stmt.(*ast.DropTableStmt); !ok || dt.Table != "student" {
		t.Fatalf("got %+v", stmt)
	}
}

func TestParseExplainWrapsStatement(t *testing.T) {
	stmt := mustParse(t, `EXPLAIN SELECT * FROM student;`)
	ex, ok := stmt.(*ast.ExplainStmt)
	if !ok {
		t.Fatalf("got %T", stmt)
	}
	if _, ok := ex.Stmt.(*ast.SelectStmt); !ok {
		t.Fatalf("wrapped stmt = %T", ex.Stmt)
	}
}

func TestParseTransactionControl(t *testing.T) {
	cases := map[string]ast.Statement{
		"BEGIN;":             &ast.BeginStmt{},
		"BEGIN TRANSACTION;": &ast.BeginStmt{},
		"COMMIT;":            &ast.CommitStmt{},
		"ROLLBACK;":          &ast.RollbackStmt{},
	}
	for sql := range cases {
		mustParse(t, sql)
	}
}

func TestParseTrailingGarbageErrors(t *testing.T) {
	_, err := Parse(`SELECT 1; garbage`)
	if err == nil {
		t.Fatal("expected error for trailing garbage")
	}
}

func TestParseUnexpectedTokenErrors(t *testing.T) {
	_, err := Parse(`SELECT FROM;`)
	if err == nil {
		t.Fatal("expected parse error")
	}
}
