package query

import (
	"fmt"

	oderrors "github.com/ministore/objectdb/objectdb/errors"
	"github.com/ministore/objectdb/objectdb/schema"
)

// Filter is one parsed clause. Operands are kept as text until the
// attribute kind is known.
type Filter struct {
	Name string
	Expr QExpr
}

// Typed converts the textual operands using kind. Patterns of like and
// regexp stay strings.
func (f Filter) Typed(kind schema.Kind) (QExpr, error) {
	if f.Expr.Op == OpLike || f.Expr.Op == OpRegexp {
		return f.Expr, nil
	}
	return f.Expr.Map(func(v any) (any, error) {
		s, ok := v.(string)
		if !ok {
			return v, nil
		}
		out, err := schema.ParseValue(kind, s)
		if err != nil {
			return nil, oderrors.TypeMismatch(f.Name, "cannot parse %q as %s", s, kind)
		}
		return out, nil
	})
}

// Parse parses a conjunction of clauses:
//
//	year>=2000 AND title~"%cat%" AND genre in (drama, comedy) AND rating:1..5
func Parse(input string) ([]Filter, error) {
	tokens, err := Lex(input)
	if err != nil {
		return nil, oderrors.Wrap(oderrors.KindQueryRejected, "lex filter", err)
	}
	p := &parser{tokens: tokens}
	filters, err := p.parseFilters()
	if err != nil {
		return nil, oderrors.Wrap(oderrors.KindQueryRejected, "parse filter", err)
	}
	return filters, nil
}

type parser struct {
	tokens []Token
	pos    int
}

func (p *parser) parseFilters() ([]Filter, error) {
	var out []Filter
	if p.match(TokEOF) {
		return out, nil
	}
	for {
		f, err := p.parseFilter()
		if err != nil {
			return nil, err
		}
		out = append(out, f)
		if p.match(TokEOF) {
			return out, nil
		}
		if !p.match(TokAnd) {
			return nil, fmt.Errorf("expected AND, got %v", p.current().Kind)
		}
		p.advance()
	}
}

func (p *parser) parseFilter() (Filter, error) {
	if !p.match(TokIdent) {
		return Filter{}, fmt.Errorf("expected attribute name, got %v", p.current().Kind)
	}
	name := p.current().Value
	p.advance()

	tok := p.current()
	p.advance()

	var op Op
	switch tok.Kind {
	case TokEq:
		op = OpEq
	case TokNe:
		op = OpNe
	case TokLt:
		op = OpLt
	case TokLte:
		op = OpLte
	case TokGt:
		op = OpGt
	case TokGte:
		op = OpGte
	case TokTilde:
		op = OpLike
	case TokDoubleTilde:
		op = OpRegexp
	case TokColon:
		lo, err := p.expectValue()
		if err != nil {
			return Filter{}, err
		}
		if !p.match(TokDotDot) {
			return Filter{}, fmt.Errorf("expected '..' in range for %s", name)
		}
		p.advance()
		hi, err := p.expectValue()
		if err != nil {
			return Filter{}, err
		}
		return Filter{Name: name, Expr: Range(lo, hi)}, nil
	case TokNot:
		if !p.match(TokIn) {
			return Filter{}, fmt.Errorf("expected IN after NOT")
		}
		p.advance()
		vals, err := p.parseList()
		if err != nil {
			return Filter{}, err
		}
		return Filter{Name: name, Expr: NotIn(vals...)}, nil
	case TokIn:
		vals, err := p.parseList()
		if err != nil {
			return Filter{}, err
		}
		return Filter{Name: name, Expr: In(vals...)}, nil
	default:
		return Filter{}, fmt.Errorf("expected operator after %s, got %v", name, tok.Kind)
	}

	v, err := p.expectValue()
	if err != nil {
		return Filter{}, err
	}
	return Filter{Name: name, Expr: QExpr{Op: op, Operand: v}}, nil
}

func (p *parser) parseList() ([]any, error) {
	if !p.match(TokLParen) {
		return nil, fmt.Errorf("expected '(', got %v", p.current().Kind)
	}
	p.advance()
	var vals []any
	for !p.match(TokRParen) {
		v, err := p.expectValue()
		if err != nil {
			return nil, err
		}
		vals = append(vals, v)
		if p.match(TokComma) {
			p.advance()
			continue
		}
		if !p.match(TokRParen) {
			return nil, fmt.Errorf("expected ',' or ')', got %v", p.current().Kind)
		}
	}
	p.advance()
	if vals == nil {
		vals = []any{}
	}
	return vals, nil
}

func (p *parser) current() Token {
	if p.pos < len(p.tokens) {
		return p.tokens[p.pos]
	}
	return Token{Kind: TokEOF}
}

func (p *parser) advance() {
	if p.pos < len(p.tokens) {
		p.pos++
	}
}

func (p *parser) match(kind TokenKind) bool {
	return p.current().Kind == kind
}

func (p *parser) expectValue() (string, error) {
	switch p.current().Kind {
	case TokString, TokIdent, TokNumber:
		v := p.current().Value
		p.advance()
		return v, nil
	}
	return "", fmt.Errorf("expected value, got %v", p.current().Kind)
}
