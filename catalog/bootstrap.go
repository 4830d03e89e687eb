package catalog

import (
	"context"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/untoldecay/cokedb/errs"
)

// tomlColumn is one [[table.column]] block. At most one Default* field
// may be set; it becomes the column's constant DEFAULT expression via
// ConstExpr.
type tomlColumn struct {
	Name       string `toml:"name"`
	Type       string `toml:"type"`
	PrimaryKey bool   `toml:"primary_key"`
	Unique     bool   `toml:"unique"`
	Indexed    bool   `toml:"indexed"`
	Nullable   bool   `toml:"nullable"`

	DefaultBool   *bool    `toml:"default_bool"`
	DefaultInt    *int64   `toml:"default_int"`
	DefaultFloat  *float64 `toml:"default_float"`
	DefaultString *string  `toml:"default_string"`
}

// tomlTable is one [[table]] block.
type tomlTable struct {
	Name   string       `toml:"name"`
	Column []tomlColumn `toml:"column"`
}

// schemaFile is the TOML shape LoadSchemaFile decodes: one [[table]] block
// per table, one [[table.column]] block per column. This is the
// declarative alternative to hand-written CREATE TABLE statements, used
// to seed a fresh database before the first client connects.
type schemaFile struct {
	Table []tomlTable `toml:"table"`
}

// parseType maps a TOML type name (case-sensitive, matching the SQL
// keyword spelling) to a catalog.Type, treating "char"/"double" as the
// same aliases the parser accepts.
func parseType(name string) (Type, error) {
	switch name {
	case "bool", "BOOL":
		return TypeBool, nil
	case "integer", "INTEGER":
		return TypeInteger, nil
	case "float", "double", "FLOAT", "DOUBLE":
		return TypeFloat, nil
	case "string", "char", "STRING", "CHAR":
		return TypeString, nil
	default:
		return 0, errs.Schemaf("bootstrap: unknown column type %q", name)
	}
}

func (c tomlColumn) defaultExpr() Expr {
	switch {
	case c.DefaultBool != nil:
		return ConstExpr(Bool(*c.DefaultBool))
	case c.DefaultInt != nil:
		return ConstExpr(Int(*c.DefaultInt))
	case c.DefaultFloat != nil:
		return ConstExpr(Float(*c.DefaultFloat))
	case c.DefaultString != nil:
		return ConstExpr(String(*c.DefaultString))
	default:
		return nil
	}
}

// LoadSchemaFile reads a declarative TOML schema-bootstrap file and
// creates every table it describes in cat, in file order. It is meant to
// run once against a freshly opened (empty) catalog; an existing table of
// the same name is a Schema error, same as a duplicate CREATE TABLE.
func LoadSchemaFile(ctx context.Context, cat *Catalog, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return errs.Storagef("bootstrap: reading %s: %v", path, err)
	}

	var sf schemaFile
	if _, err := toml.Decode(string(raw), &sf); err != nil {
		return errs.Schemaf("bootstrap: parsing %s: %v", path, err)
	}

	for _, tbl := range sf.Table {
		columns := make([]Column, 0, len(tbl.Column))
		for _, c := range tbl.Column {
			typ, err := parseType(c.Type)
			if err != nil {
				return err
			}
			columns = append(columns, Column{
				Name:       c.Name,
				Type:       typ,
				PrimaryKey: c.PrimaryKey,
				Unique:     c.Unique,
				Indexed:    c.Indexed,
				Nullable:   c.Nullable,
				Default:    c.defaultExpr(),
			})
		}
		t, err := NewTable(tbl.Name, columns)
		if err != nil {
			return err
		}
		if err := cat.CreateTable(ctx, t); err != nil {
			return err
		}
	}
	return nil
}
