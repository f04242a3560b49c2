package planner

import (
	"fmt"
	"strings"

	oderrors "github.com/ministore/objectdb/objectdb/errors"
	"github.com/ministore/objectdb/objectdb/query"
	"github.com/ministore/objectdb/objectdb/schema"
	"github.com/ministore/objectdb/objectdb/storage"
	"github.com/ministore/objectdb/objectdb/storage/sqlbuilder"
)

// Predicate restricts one column of an object table. Attr is a SEARCHABLE
// attribute or "id".
type Predicate struct {
	Attr string
	Expr query.QExpr
}

var idDef = schema.AttributeDef{Kind: schema.KindInt, Flags: schema.AttrIndexed}

// column resolves the SQL operand for attr and reports whether operands
// must be lowercased to match it.
func column(d storage.Dialect, t *schema.ObjectType, attr string) (string, schema.AttributeDef, bool, error) {
	if attr == storage.ColID {
		return d.Quote(storage.ColID), idDef, false, nil
	}
	def, ok := t.Attr(attr)
	if !ok {
		return "", def, false, oderrors.UnknownAttribute(t.Name, attr)
	}
	if !def.Searchable() {
		return "", def, false, oderrors.QueryRejected("attribute %q of type %q is not searchable", attr, t.Name)
	}
	if !def.IgnoreCase() {
		return d.Quote(attr), def, false, nil
	}
	if def.HasShadow() {
		return d.Quote(storage.ShadowColumn(attr)), def, true, nil
	}
	return "LOWER(" + d.Quote(attr) + ")", def, true, nil
}

// Condition compiles one predicate into a boolean SQL fragment, allocating
// its arguments on b.
func Condition(d storage.Dialect, b *sqlbuilder.Builder, t *schema.ObjectType, p Predicate) (string, error) {
	if err := p.Expr.Validate(); err != nil {
		return "", err
	}
	col, def, lower, err := column(d, t, p.Attr)
	if err != nil {
		return "", err
	}
	return compare(d, b, col, p.Attr, def, lower, p.Expr)
}

func compare(d storage.Dialect, b *sqlbuilder.Builder, col, attr string, def schema.AttributeDef, lower bool, e query.QExpr) (string, error) {
	switch e.Op {
	case query.OpLike:
		pattern := e.Operand.(string)
		if lower {
			pattern = strings.ToLower(pattern)
		}
		return fmt.Sprintf("%s LIKE %s", col, b.Arg(pattern)), nil
	case query.OpRegexp:
		pattern := e.Operand.(string)
		if lower {
			pattern = "(?i)" + pattern
		}
		return fmt.Sprintf("%s %s %s", col, d.RegexpOp, b.Arg(pattern)), nil
	}

	expr, err := e.Map(func(v any) (any, error) {
		if v == nil {
			return nil, nil
		}
		cv, err := schema.CheckValue(attr, def, v)
		if err != nil {
			return nil, err
		}
		if s, ok := cv.(string); ok && lower {
			cv = strings.ToLower(s)
		}
		return schema.ColumnValue(def, cv), nil
	})
	if err != nil {
		return "", err
	}

	switch expr.Op {
	case query.OpEq:
		if expr.Operand == nil {
			return col + " IS NULL", nil
		}
		return fmt.Sprintf("%s = %s", col, b.Arg(expr.Operand)), nil
	case query.OpNe:
		if expr.Operand == nil {
			return col + " IS NOT NULL", nil
		}
		return fmt.Sprintf("%s != %s", col, b.Arg(expr.Operand)), nil
	case query.OpLt, query.OpLte, query.OpGt, query.OpGte:
		return fmt.Sprintf("%s %s %s", col, string(expr.Op), b.Arg(expr.Operand)), nil
	case query.OpIn, query.OpNotIn:
		vals := nonNil(expr.Operands())
		if len(vals) == 0 {
			if expr.Op == query.OpIn {
				return "1=0", nil
			}
			return "1=1", nil
		}
		if expr.Op == query.OpIn {
			return fmt.Sprintf("%s IN %s", col, b.List(vals)), nil
		}
		return fmt.Sprintf("%s NOT IN %s", col, b.List(vals)), nil
	case query.OpRange:
		ops := expr.Operands()
		return fmt.Sprintf("%s BETWEEN %s AND %s", col, b.Arg(ops[0]), b.Arg(ops[1])), nil
	}
	return "", oderrors.QueryRejected("unsupported operator %q", string(expr.Op))
}

func nonNil(vals []any) []any {
	out := vals[:0:0]
	for _, v := range vals {
		if v != nil {
			out = append(out, v)
		}
	}
	return out
}

// ParentCondition restricts parent_type and optionally parent_id.
func ParentCondition(d storage.Dialect, b *sqlbuilder.Builder, typeID int64, id *query.QExpr) (string, error) {
	cond := fmt.Sprintf("%s = %s", d.Quote(storage.ColParentType), b.Arg(typeID))
	if id == nil {
		return cond, nil
	}
	if err := id.Validate(); err != nil {
		return "", err
	}
	idCond, err := compare(d, b, d.Quote(storage.ColParentID), storage.ColParentID, idDef, false, *id)
	if err != nil {
		return "", err
	}
	return cond + " AND " + idCond, nil
}
