// Package parser implements CokeDB's SQL parser: a top-level statement
// dispatcher plus a precedence-climbing expression parser over a fixed
// nine-level operator table.
package parser

import (
	"github.com/untoldecay/cokedb/catalog"
	"github.com/untoldecay/cokedb/errs"
	"github.com/untoldecay/cokedb/sql/ast"
	"github.com/untoldecay/cokedb/sql/token"
)

// Parser consumes a token stream and produces one ast.Statement.
type Parser struct {
	lex  *token.Lexer
	cur  token.Token
	peek token.Token
}

// New creates a Parser over sql text, priming its two-token lookahead.
func New(sql string) (*Parser, error) {
	p := &Parser{lex: token.New(sql)}
	if err := p.advance(); err != nil {
		return nil, err
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Parser) advance() error {
	p.cur = p.peek
	tok, err := p.lex.Next()
	if err != nil {
		return err
	}
	p.peek = tok
	return nil
}

// Parse parses exactly one statement (an optional trailing `;` is
// consumed) and reports a Parse error if trailing garbage remains.
func Parse(sql string) (ast.Statement, error) {
	p, err := New(sql)
	if err != nil {
		return nil, err
	}
	stmt, err := p.parseStatement()
	if err != nil {
		return nil, err
	}
	if p.cur.Kind == token.SEMICOLON {
		if err := p.advance(); err != nil {
			return nil, err
		}
	}
	if p.cur.Kind != token.EOF {
		return nil, errs.Parsef(p.cur.Offset, "unexpected trailing token %q", p.cur.Literal)
	}
	return stmt, nil
}

func (p *Parser) expect(k token.Kind) (token.Token, error) {
	if p.cur.Kind != k {
		return token.Token{}, errs.Parsef(p.cur.Offset, "expected %s, got %q", token.Name(k), p.cur.Literal)
	}
	tok := p.cur
	if err := p.advance(); err != nil {
		return token.Token{}, err
	}
	return tok, nil
}

func (p *Parser) parseStatement() (ast.Statement, error) {
	switch p.cur.Kind {
	case token.SELECT:
		return p.parseSelect()
	case token.INSERT:
		return p.parseInsert()
	case token.UPDATE:
		return p.parseUpdate()
	case token.DELETE:
		return p.parseDelete()
	case token.CREATE:
		return p.parseCreateTable()
	case token.DROP:
		return p.parseDropTable()
	case token.EXPLAIN:
		if err := p.advance(); err != nil {
			return nil, err
		}
		inner, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		return &ast.ExplainStmt{Stmt: inner}, nil
	case token.BEGIN:
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.cur.Kind == token.TRANSACTION {
			if err := p.advance(); err != nil {
				return nil, err
			}
		}
		return &ast.BeginStmt{}, nil
	case token.COMMIT:
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &ast.CommitStmt{}, nil
	case token.ROLLBACK:
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &ast.RollbackStmt{}, nil
	default:
		return nil, errs.Parsef(p.cur.Offset, "unexpected token %q at start of statement", p.cur.Literal)
	}
}

// ---- SELECT ----

func (p *Parser) parseSelect() (*ast.SelectStmt, error) {
	if _, err := p.expect(token.SELECT); err != nil {
		return nil, err
	}
	stmt := &ast.SelectStmt{}

	items, err := p.parseSelectList()
	if err != nil {
		return nil, err
	}
	stmt.Projection = items

	if p.cur.Kind == token.FROM {
		if err := p.advance(); err != nil {
			return nil, err
		}
		refs, err := p.parseFromList()
		if err != nil {
			return nil, err
		}
		stmt.From = refs
	}

	if p.cur.Kind == token.WHERE {
		if err := p.advance(); err != nil {
			return nil, err
		}
		w, err := p.parseExpr(1)
		if err != nil {
			return nil, err
		}
		stmt.Where = w
	}

	if p.cur.Kind == token.GROUP {
		if err := p.advance(); err != nil {
			return nil, err
		}
		if _, err := p.expect(token.BY); err != nil {
			return nil, err
		}
		exprs, err := p.parseExprList()
		if err != nil {
			return nil, err
		}
		stmt.GroupBy = exprs
	}

	if p.cur.Kind == token.HAVING {
		if err := p.advance(); err != nil {
			return nil, err
		}
		h, err := p.parseExpr(1)
		if err != nil {
			return nil, err
		}
		stmt.Having = h
	}

	if p.cur.Kind == token.ORDER {
		if err := p.advance(); err != nil {
			return nil, err
		}
		if _, err := p.expect(token.BY); err != nil {
			return nil, err
		}
		items, err := p.parseOrderList()
		if err != nil {
			return nil, err
		}
		stmt.OrderBy = items
	}

	if p.cur.Kind == token.LIMIT {
		if err := p.advance(); err != nil {
			return nil, err
		}
		e, err := p.parseExpr(1)
		if err != nil {
			return nil, err
		}
		stmt.Limit = e
	}

	if p.cur.Kind == token.OFFSET {
		if err := p.advance(); err != nil {
			return nil, err
		}
		e, err := p.parseExpr(1)
		if err != nil {
			return nil, err
		}
		stmt.Offset = e
	}

	return stmt, nil
}

func (p *Parser) parseSelectList() ([]ast.SelectItem, error) {
	var items []ast.SelectItem
	for {
		item, err := p.parseSelectItem()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
		if p.cur.Kind != token.COMMA {
			break
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
	}
	return items, nil
}

func (p *Parser) parseSelectItem() (ast.SelectItem, error) {
	if p.cur.Kind == token.STAR {
		off := p.cur.Offset
		if err := p.advance(); err != nil {
			return ast.SelectItem{}, err
		}
		return ast.SelectItem{Star: true, Expr: &ast.Star{Offset: off}}, nil
	}
	e, err := p.parseExpr(1)
	if err != nil {
		return ast.SelectItem{}, err
	}
	item := ast.SelectItem{Expr: e}
	if p.cur.Kind == token.AS {
		if err := p.advance(); err != nil {
			return ast.SelectItem{}, err
		}
		name, err := p.expect(token.IDENT)
		if err != nil {
			return ast.SelectItem{}, err
		}
		item.Alias = name.Literal
	}
	return item, nil
}

func (p *Parser) parseFromList() ([]ast.TableRef, error) {
	var refs []ast.TableRef
	first, err := p.parseTableRef(ast.JoinCross, nil)
	if err != nil {
		return nil, err
	}
	refs = append(refs, first)

	for {
		switch p.cur.Kind {
		case token.COMMA:
			if err := p.advance(); err != nil {
				return nil, err
			}
			ref, err := p.parseTableRef(ast.JoinCross, nil)
			if err != nil {
				return nil, err
			}
			refs = append(refs, ref)
		case token.JOIN, token.INNER, token.LEFT, token.RIGHT, token.OUTER:
			kind := ast.JoinInner
			switch p.cur.Kind {
			case token.LEFT:
				kind = ast.JoinLeft
				if err := p.advance(); err != nil {
					return nil, err
				}
				if p.cur.Kind == token.OUTER {
					if err := p.advance(); err != nil {
						return nil, err
					}
				}
			case token.RIGHT:
				kind = ast.JoinRight
				if err := p.advance(); err != nil {
					return nil, err
				}
				if p.cur.Kind == token.OUTER {
					if err := p.advance(); err != nil {
						return nil, err
					}
				}
			case token.INNER:
				if err := p.advance(); err != nil {
					return nil, err
				}
			}
			if _, err := p.expect(token.JOIN); err != nil {
				return nil, err
			}
			ref, err := p.parseTableRefNoJoin()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(token.ON); err != nil {
				return nil, err
			}
			onExpr, err := p.parseExpr(1)
			if err != nil {
				return nil, err
			}
			ref.Join = kind
			ref.On = onExpr
			refs = append(refs, ref)
		default:
			return refs, nil
		}
	}
}

func (p *Parser) parseTableRef(kind ast.JoinKind, on ast.Expr) (ast.TableRef, error) {
	ref, err := p.parseTableRefNoJoin()
	if err != nil {
		return ast.TableRef{}, err
	}
	ref.Join = kind
	ref.On = on
	return ref, nil
}

func (p *Parser) parseTableRefNoJoin() (ast.TableRef, error) {
	name, err := p.expect(token.IDENT)
	if err != nil {
		return ast.TableRef{}, err
	}
	ref := ast.TableRef{Table: name.Literal}
	if p.cur.Kind == token.AS {
		if err := p.advance(); err != nil {
			return ast.TableRef{}, err
		}
		alias, err := p.expect(token.IDENT)
		if err != nil {
			return ast.TableRef{}, err
		}
		ref.Alias = alias.Literal
	} else if p.cur.Kind == token.IDENT {
		ref.Alias = p.cur.Literal
		if err := p.advance(); err != nil {
			return ast.TableRef{}, err
		}
	}
	return ref, nil
}

func (p *Parser) parseOrderList() ([]ast.OrderItem, error) {
	var items []ast.OrderItem
	for {
		e, err := p.parseExpr(1)
		if err != nil {
			return nil, err
		}
		dir := ast.Asc
		if p.cur.Kind == token.ASC {
			if err := p.advance(); err != nil {
				return nil, err
			}
		} else if p.cur.Kind == token.DESC {
			dir = ast.Desc
			if err := p.advance(); err != nil {
				return nil, err
			}
		}
		items = append(items, ast.OrderItem{Expr: e, Dir: dir})
		if p.cur.Kind != token.COMMA {
			break
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
	}
	return items, nil
}

func (p *Parser) parseExprList() ([]ast.Expr, error) {
	var exprs []ast.Expr
	for {
		e, err := p.parseExpr(1)
		if err != nil {
			return nil, err
		}
		exprs = append(exprs, e)
		if p.cur.Kind != token.COMMA {
			break
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
	}
	return exprs, nil
}

// ---- INSERT / UPDATE / DELETE ----

func (p *Parser) parseInsert() (*ast.InsertStmt, error) {
	if _, err := p.expect(token.INSERT); err != nil {
		return nil, err
	}
	if _, err := p.expect(token.INTO); err != nil {
		return nil, err
	}
	name, err := p.expect(token.IDENT)
	if err != nil {
		return nil, err
	}
	stmt := &ast.InsertStmt{Table: name.Literal}

	if p.cur.Kind == token.LPAREN {
		if err := p.advance(); err != nil {
			return nil, err
		}
		for {
			col, err := p.expect(token.IDENT)
			if err != nil {
				return nil, err
			}
			stmt.Columns = append(stmt.Columns, col.Literal)
			if p.cur.Kind == token.COMMA {
				if err := p.advance(); err != nil {
					return nil, err
				}
				continue
			}
			break
		}
		if _, err := p.expect(token.RPAREN); err != nil {
			return nil, err
		}
	}

	if _, err := p.expect(token.VALUES); err != nil {
		return nil, err
	}
	for {
		row, err := p.parseValueTuple()
		if err != nil {
			return nil, err
		}
		stmt.Rows = append(stmt.Rows, row)
		if p.cur.Kind == token.COMMA {
			if err := p.advance(); err != nil {
				return nil, err
			}
			continue
		}
		break
	}
	return stmt, nil
}

func (p *Parser) parseValueTuple() ([]ast.Expr, error) {
	if _, err := p.expect(token.LPAREN); err != nil {
		return nil, err
	}
	exprs, err := p.parseExprList()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.RPAREN); err != nil {
		return nil, err
	}
	return exprs, nil
}

func (p *Parser) parseUpdate() (*ast.UpdateStmt, error) {
	if _, err := p.expect(token.UPDATE); err != nil {
		return nil, err
	}
	name, err := p.expect(token.IDENT)
	if err != nil {
		return nil, err
	}
	stmt := &ast.UpdateStmt{Table: name.Literal}
	if _, err := p.expect(token.SET); err != nil {
		return nil, err
	}
	for {
		col, err := p.expect(token.IDENT)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(token.EQ); err != nil {
			return nil, err
		}
		val, err := p.parseExpr(1)
		if err != nil {
			return nil, err
		}
		stmt.Assignments = append(stmt.Assignments, ast.Assignment{Column: col.Literal, Value: val})
		if p.cur.Kind == token.COMMA {
			if err := p.advance(); err != nil {
				return nil, err
			}
			continue
		}
		break
	}
	if p.cur.Kind == token.WHERE {
		if err := p.advance(); err != nil {
			return nil, err
		}
		w, err := p.parseExpr(1)
		if err != nil {
			return nil, err
		}
		stmt.Where = w
	}
	return stmt, nil
}

func (p *Parser) parseDelete() (*ast.DeleteStmt, error) {
	if _, err := p.expect(token.DELETE); err != nil {
		return nil, err
	}
	if _, err := p.expect(token.FROM); err != nil {
		return nil, err
	}
	name, err := p.expect(token.IDENT)
	if err != nil {
		return nil, err
	}
	stmt := &ast.DeleteStmt{Table: name.Literal}
	if p.cur.Kind == token.WHERE {
		if err := p.advance(); err != nil {
			return nil, err
		}
		w, err := p.parseExpr(1)
		if err != nil {
			return nil, err
		}
		stmt.Where = w
	}
	return stmt, nil
}

// ---- CREATE TABLE / DROP TABLE ----

func (p *Parser) parseCreateTable() (*ast.CreateTableStmt, error) {
	if _, err := p.expect(token.CREATE); err != nil {
		return nil, err
	}
	if _, err := p.expect(token.TABLE); err != nil {
		return nil, err
	}
	name, err := p.expect(token.IDENT)
	if err != nil {
		return nil, err
	}
	stmt := &ast.CreateTableStmt{Table: name.Literal}
	if _, err := p.expect(token.LPAREN); err != nil {
		return nil, err
	}
	for {
		col, err := p.parseColumnDef()
		if err != nil {
			return nil, err
		}
		stmt.Columns = append(stmt.Columns, col)
		if p.cur.Kind == token.COMMA {
			if err := p.advance(); err != nil {
				return nil, err
			}
			continue
		}
		break
	}
	if _, err := p.expect(token.RPAREN); err != nil {
		return nil, err
	}
	return stmt, nil
}

func (p *Parser) parseColumnDef() (ast.ColumnDef, error) {
	name, err := p.expect(token.IDENT)
	if err != nil {
		return ast.ColumnDef{}, err
	}
	def := ast.ColumnDef{Name: name.Literal}

	typ, err := p.parseColumnType()
	if err != nil {
		return ast.ColumnDef{}, err
	}
	def.Type = typ

	for {
		switch p.cur.Kind {
		case token.PRIMARY:
			if err := p.advance(); err != nil {
				return ast.ColumnDef{}, err
			}
			if _, err := p.expect(token.KEY); err != nil {
				return ast.ColumnDef{}, err
			}
			def.PrimaryKey = true
		case token.UNIQUE:
			if err := p.advance(); err != nil {
				return ast.ColumnDef{}, err
			}
			def.Unique = true
		case token.INDEX:
			if err := p.advance(); err != nil {
				return ast.ColumnDef{}, err
			}
			def.Indexed = true
		case token.NOT:
			if err := p.advance(); err != nil {
				return ast.ColumnDef{}, err
			}
			if _, err := p.expect(token.NULL); err != nil {
				return ast.ColumnDef{}, err
			}
			def.NotNull = true
		case token.DEFAULT:
			if err := p.advance(); err != nil {
				return ast.ColumnDef{}, err
			}
			e, err := p.parseExpr(1)
			if err != nil {
				return ast.ColumnDef{}, err
			}
			def.Default = e
		default:
			return def, nil
		}
	}
}

// parseColumnType maps a type keyword to a catalog.Type, treating CHAR as
// an alias for String and DOUBLE as an alias for Float.
func (p *Parser) parseColumnType() (catalog.Type, error) {
	switch p.cur.Kind {
	case token.BOOL:
		if err := p.advance(); err != nil {
			return 0, err
		}
		return catalog.TypeBool, nil
	case token.INTEGER:
		if err := p.advance(); err != nil {
			return 0, err
		}
		return catalog.TypeInteger, nil
	case token.FLOAT, token.DOUBLE:
		if err := p.advance(); err != nil {
			return 0, err
		}
		return catalog.TypeFloat, nil
	case token.STRINGTYPE, token.CHAR:
		if err := p.advance(); err != nil {
			return 0, err
		}
		return catalog.TypeString, nil
	default:
		return 0, errs.Parsef(p.cur.Offset, "expected a column type, got %q", p.cur.Literal)
	}
}

func (p *Parser) parseDropTable() (*ast.DropTableStmt, error) {
	if _, err := p.expect(token.DROP); err != nil {
		return nil, err
	}
	if _, err := p.expect(token.TABLE); err != nil {
		return nil, err
	}
	name, err := p.expect(token.IDENT)
	if err != nil {
		return nil, err
	}
	return &ast.DropTableStmt{Table: name.Literal}, nil
}
