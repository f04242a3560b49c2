package query

import (
	"fmt"
	"reflect"

	oderrors "github.com/ministore/objectdb/objectdb/errors"
)

// Op is a comparison operator of a QExpr.
type Op string

const (
	OpEq     Op = "="
	OpNe     Op = "!="
	OpLt     Op = "<"
	OpLte    Op = "<="
	OpGt     Op = ">"
	OpGte    Op = ">="
	OpIn     Op = "in"
	OpNotIn  Op = "not in"
	OpRange  Op = "range"
	OpLike   Op = "like"
	OpRegexp Op = "regexp"
)

func (o Op) Valid() bool {
	switch o {
	case OpEq, OpNe, OpLt, OpLte, OpGt, OpGte, OpIn, OpNotIn, OpRange, OpLike, OpRegexp:
		return true
	}
	return false
}

// QExpr is an operator applied to an operand. For OpIn and OpNotIn the
// operand is a slice; for OpRange it is a two element slice of inclusive
// bounds.
type QExpr struct {
	Op      Op
	Operand any
}

func Eq(v any) QExpr         { return QExpr{Op: OpEq, Operand: v} }
func Ne(v any) QExpr         { return QExpr{Op: OpNe, Operand: v} }
func Lt(v any) QExpr         { return QExpr{Op: OpLt, Operand: v} }
func Lte(v any) QExpr        { return QExpr{Op: OpLte, Operand: v} }
func Gt(v any) QExpr         { return QExpr{Op: OpGt, Operand: v} }
func Gte(v any) QExpr        { return QExpr{Op: OpGte, Operand: v} }
func In(vs ...any) QExpr     { return QExpr{Op: OpIn, Operand: vs} }
func NotIn(vs ...any) QExpr  { return QExpr{Op: OpNotIn, Operand: vs} }
func Range(lo, hi any) QExpr { return QExpr{Op: OpRange, Operand: []any{lo, hi}} }
func Like(p string) QExpr    { return QExpr{Op: OpLike, Operand: p} }
func Regexp(p string) QExpr  { return QExpr{Op: OpRegexp, Operand: p} }

func (q QExpr) String() string {
	return fmt.Sprintf("%s %v", q.Op, q.Operand)
}

// Operands returns the operand as a flat list. Scalar operators yield one
// element.
func (q QExpr) Operands() []any {
	switch q.Op {
	case OpIn, OpNotIn, OpRange:
		ops, _ := toSlice(q.Operand)
		return ops
	}
	return []any{q.Operand}
}

// Validate checks operator and operand shape.
func (q QExpr) Validate() error {
	if !q.Op.Valid() {
		return oderrors.QueryRejected("unknown operator %q", string(q.Op))
	}
	switch q.Op {
	case OpIn, OpNotIn:
		if _, ok := toSlice(q.Operand); !ok {
			return oderrors.QueryRejected("operator %q requires a sequence operand, got %T", string(q.Op), q.Operand)
		}
	case OpRange:
		ops, _ := toSlice(q.Operand)
		if len(ops) != 2 {
			return oderrors.QueryRejected("range requires exactly two operands, got %d", len(ops))
		}
		if ops[0] == nil || ops[1] == nil {
			return oderrors.QueryRejected("range bounds must not be nil")
		}
	case OpLike, OpRegexp:
		if _, ok := q.Operand.(string); !ok {
			return oderrors.QueryRejected("operator %q requires a string pattern, got %T", string(q.Op), q.Operand)
		}
	default:
		if q.Operand == nil && q.Op != OpEq && q.Op != OpNe {
			return oderrors.QueryRejected("operator %q requires a non-nil operand", string(q.Op))
		}
	}
	return nil
}

// Map returns a copy with every operand passed through fn.
func (q QExpr) Map(fn func(any) (any, error)) (QExpr, error) {
	switch q.Op {
	case OpIn, OpNotIn, OpRange:
		src, _ := toSlice(q.Operand)
		out := make([]any, len(src))
		for i, v := range src {
			m, err := fn(v)
			if err != nil {
				return q, err
			}
			out[i] = m
		}
		return QExpr{Op: q.Op, Operand: out}, nil
	}
	m, err := fn(q.Operand)
	if err != nil {
		return q, err
	}
	return QExpr{Op: q.Op, Operand: m}, nil
}

// toSlice flattens any slice value other than []byte into []any.
func toSlice(v any) ([]any, bool) {
	switch x := v.(type) {
	case []any:
		return x, true
	case []byte, string, nil:
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}
