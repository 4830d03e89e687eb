package parser

import (
	"strconv"
	"strings"

	"github.com/untoldecay/cokedb/catalog"
	"github.com/untoldecay/cokedb/errs"
	"github.com/untoldecay/cokedb/sql/ast"
	"github.com/untoldecay/cokedb/sql/token"
)

// Precedence levels (1 = lowest, 9 = highest).
const (
	precLowest   = 1
	precOr       = 1
	precAnd      = 2
	precEquality = 3
	precRelational = 4
	precAdditive = 5
	precMultiplicative = 6
	precPower    = 7
	precPostfix  = 8
	precPrefix   = 9
)

type infixInfo struct {
	op         ast.InfixOp
	prec       int
	rightAssoc bool
}

func infixFor(k token.Kind) (infixInfo, bool) {
	switch k {
	case token.OR:
		return infixInfo{ast.OpOr, precOr, false}, true
	case token.AND:
		return infixInfo{ast.OpAnd, precAnd, false}, true
	case token.EQ:
		return infixInfo{ast.OpEq, precEquality, false}, true
	case token.NEQ:
		return infixInfo{ast.OpNeq, precEquality, false}, true
	case token.LIKE:
		return infixInfo{ast.OpLike, precEquality, false}, true
	case token.LT:
		return infixInfo{ast.OpLt, precRelational, false}, true
	case token.LE:
		return infixInfo{ast.OpLe, precRelational, false}, true
	case token.GT:
		return infixInfo{ast.OpGt, precRelational, false}, true
	case token.GE:
		return infixInfo{ast.OpGe, precRelational, false}, true
	case token.PLUS:
		return infixInfo{ast.OpAdd, precAdditive, false}, true
	case token.MINUS:
		return infixInfo{ast.OpSub, precAdditive, false}, true
	case token.STAR:
		return infixInfo{ast.OpMul, precMultiplicative, false}, true
	case token.SLASH:
		return infixInfo{ast.OpDiv, precMultiplicative, false}, true
	case token.PERCENT:
		return infixInfo{ast.OpMod, precMultiplicative, false}, true
	case token.CARET:
		return infixInfo{ast.OpPow, precPower, true}, true
	default:
		return infixInfo{}, false
	}
}

// parseExpr parses an expression whose outermost operator has precedence
// at least minPrec, via precedence climbing over the table in infixFor.
func (p *Parser) parseExpr(minPrec int) (ast.Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		info, ok := infixFor(p.cur.Kind)
		if !ok || info.prec < minPrec {
			return left, nil
		}
		offset := p.cur.Offset
		if err := p.advance(); err != nil {
			return nil, err
		}
		nextMin := info.prec + 1
		if info.rightAssoc {
			nextMin = info.prec
		}
		right, err := p.parseExpr(nextMin)
		if err != nil {
			return nil, err
		}
		left = &ast.Infix{Op: info.op, Left: left, Right: right, Offset: offset}
	}
}

// parseUnary parses a prefix chain (+, -, NOT binding at precedence 9) and
// then applies any postfix operators (!, IS [NOT] NULL, precedence 8) to
// the whole result, so prefix binds tighter than postfix: `-x IS NULL`
// parses as `(-x) IS NULL`, not `-(x IS NULL)`.
func (p *Parser) parseUnary() (ast.Expr, error) {
	node, err := p.parsePrefix()
	if err != nil {
		return nil, err
	}
	return p.parsePostfix(node)
}

// parsePrefix handles the prefix operators, recursing at the same
// precedence level so chained prefixes (`- -x`, `NOT NOT p`) parse
// right-associatively.
func (p *Parser) parsePrefix() (ast.Expr, error) {
	var op ast.PrefixOp
	switch p.cur.Kind {
	case token.PLUS:
		op = ast.OpPos
	case token.MINUS:
		op = ast.OpNeg
	case token.NOT:
		op = ast.OpNot
	default:
		return p.parsePrimary()
	}
	offset := p.cur.Offset
	if err := p.advance(); err != nil {
		return nil, err
	}
	operand, err := p.parsePrefix()
	if err != nil {
		return nil, err
	}
	return &ast.Prefix{Op: op, Operand: operand, Offset: offset}, nil
}

// parsePostfix applies any trailing postfix operators to node.
func (p *Parser) parsePostfix(node ast.Expr) (ast.Expr, error) {
	for {
		switch p.cur.Kind {
		case token.BANG:
			offset := p.cur.Offset
			if err := p.advance(); err != nil {
				return nil, err
			}
			node = &ast.Postfix{Op: ast.OpFactorial, Operand: node, Offset: offset}
		case token.IS:
			offset := p.cur.Offset
			if err := p.advance(); err != nil {
				return nil, err
			}
			op := ast.OpIsNull
			if p.cur.Kind == token.NOT {
				op = ast.OpIsNotNull
				if err := p.advance(); err != nil {
					return nil, err
				}
			}
			if _, err := p.expect(token.NULL); err != nil {
				return nil, err
			}
			node = &ast.Postfix{Op: op, Operand: node, Offset: offset}
		default:
			return node, nil
		}
	}
}

func (p *Parser) parsePrimary() (ast.Expr, error) {
	switch p.cur.Kind {
	case token.NUMBER:
		lit := p.cur.Literal
		offset := p.cur.Offset
		if err := p.advance(); err != nil {
			return nil, err
		}
		v, err := parseNumber(lit, offset)
		if err != nil {
			return nil, err
		}
		return &ast.Literal{Value: v, Offset: offset}, nil
	case token.STRING:
		lit := p.cur.Literal
		offset := p.cur.Offset
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &ast.Literal{Value: catalog.String(lit), Offset: offset}, nil
	case token.TRUE:
		offset := p.cur.Offset
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &ast.Literal{Value: catalog.Bool(true), Offset: offset}, nil
	case token.FALSE:
		offset := p.cur.Offset
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &ast.Literal{Value: catalog.Bool(false), Offset: offset}, nil
	case token.NULL:
		offset := p.cur.Offset
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &ast.Literal{Value: catalog.Null(), Offset: offset}, nil
	case token.LPAREN:
		if err := p.advance(); err != nil {
			return nil, err
		}
		e, err := p.parseExpr(precLowest)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(token.RPAREN); err != nil {
			return nil, err
		}
		return e, nil
	case token.STAR:
		offset := p.cur.Offset
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &ast.Star{Offset: offset}, nil
	case token.IDENT:
		return p.parseIdentOrCall()
	default:
		return nil, errs.Parsef(p.cur.Offset, "unexpected token %q in expression", p.cur.Literal)
	}
}

func (p *Parser) parseIdentOrCall() (ast.Expr, error) {
	first := p.cur
	if err := p.advance(); err != nil {
		return nil, err
	}

	if p.cur.Kind == token.LPAREN {
		if err := p.advance(); err != nil {
			return nil, err
		}
		call := &ast.Call{Name: first.Literal, Offset: first.Offset}
		if p.cur.Kind == token.STAR {
			starOffset := p.cur.Offset
			if err := p.advance(); err != nil {
				return nil, err
			}
			call.Args = append(call.Args, &ast.Star{Offset: starOffset})
		} else if p.cur.Kind != token.RPAREN {
			args, err := p.parseExprList()
			if err != nil {
				return nil, err
			}
			call.Args = args
		}
		if _, err := p.expect(token.RPAREN); err != nil {
			return nil, err
		}
		return call, nil
	}

	if p.cur.Kind == token.DOT {
		if err := p.advance(); err != nil {
			return nil, err
		}
		col, err := p.expect(token.IDENT)
		if err != nil {
			return nil, err
		}
		return &ast.Column{Table: first.Literal, Name: col.Literal, Offset: first.Offset}, nil
	}

	return &ast.Column{Name: first.Literal, Offset: first.Offset}, nil
}

func parseNumber(lit string, offset int) (catalog.Value, error) {
	if strings.Contains(lit, ".") {
		f, err := strconv.ParseFloat(lit, 64)
		if err != nil {
			return catalog.Value{}, errs.Lexf(offset, "invalid float literal %q", lit)
		}
		return catalog.Float(f), nil
	}
	n, err := strconv.ParseInt(lit, 10, 64)
	if err != nil {
		return catalog.Value{}, errs.Lexf(offset, "invalid integer literal %q", lit)
	}
	return catalog.Int(n), nil
}
