package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

const testSchemaTOML = `
[[table]]
name = "student"

  [[table.column]]
  name = "id"
  type = "integer"
  primary_key = true

  [[table.column]]
  name = "name"
  type = "string"

  [[table.column]]
  name = "year"
  type = "integer"
  default_int = 2000

[[table]]
name = "grade"

  [[table.column]]
  name = "id"
  type = "integer"
  primary_key = true

  [[table.column]]
  name = "grade"
  type = "float"
  nullable = true
`

func TestLoadSchemaFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "schema.toml")
	if err := os.WriteFile(path, []byte(testSchemaTOML), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	ctx := context.Background()
	cat := New(newTxn(t))
	if err := LoadSchemaFile(ctx, cat, path); err != nil {
		t.Fatalf("LoadSchemaFile: %v", err)
	}

	names, err := cat.ListTables(ctx)
	if err != nil {
		t.Fatalf("ListTables: %v", err)
	}
	if len(names) != 2 || names[0] != "grade" || names[1] != "student" {
		t.Fatalf("unexpected table list: %v", names)
	}

	student, err := cat.GetTable(ctx, "student")
	if err != nil {
		t.Fatalf("GetTable student: %v", err)
	}
	yearCol := student.Columns[student.ColumnIndex("year")]
	if yearCol.Default == nil {
		t.Fatal("expected year column to have a default")
	}
	v, err := yearCol.Default.EvalConst()
	if err != nil {
		t.Fatalf("EvalConst: %v", err)
	}
	if v.Int != 2000 {
		t.Fatalf("default year = %v, want 2000", v.Int)
	}

	if err := cat.InsertRow(ctx, student, Row{Int(1), String("xiaoming"), Int(2001)}); err != nil {
		t.Fatalf("insert: %v", err)
	}
}

func TestLoadSchemaFileDuplicateTable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "schema.toml")
	const doc = `
[[table]]
name = "student"
  [[table.column]]
  name = "id"
  type = "integer"
  primary_key = true

[[table]]
name = "student"
  [[table.column]]
  name = "id"
  type = "integer"
  primary_key = true
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	ctx := context.Background()
	cat := New(newTxn(t))
	if err := LoadSchemaFile(ctx, cat, path); err == nil {
		t.Fatal("expected a Schema error for duplicate table definitions")
	}
}
