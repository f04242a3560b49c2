package planner

import (
	"fmt"
	"strings"

	oderrors "github.com/ministore/objectdb/objectdb/errors"
	"github.com/ministore/objectdb/objectdb/query"
	"github.com/ministore/objectdb/objectdb/schema"
	"github.com/ministore/objectdb/objectdb/storage"
)

// ParentFilter restricts rows to children of objects of one type. A nil ID
// accepts any parent of that type.
type ParentFilter struct {
	TypeID int64
	ID     *query.QExpr
}

// Select describes one relational read over a single object table.
type Select struct {
	Type *schema.ObjectType
	// Columns are selected in order. They must be implicit columns,
	// SEARCHABLE attributes or shadow columns of the type.
	Columns []string
	Preds   []Predicate
	Parent  *ParentFilter
	// IDs restricts rows to these ids when RestrictIDs is set. An empty
	// restriction matches nothing.
	IDs         []int64
	RestrictIDs bool
	Distinct    bool
	Limit       int
}

// BuildSelect renders s as a parameterized statement.
func BuildSelect(d storage.Dialect, s *Select) (string, []any, error) {
	if s.Type == nil {
		return "", nil, oderrors.New(oderrors.KindUnknownType, "select without object type")
	}
	if len(s.Columns) == 0 {
		return "", nil, oderrors.QueryRejected("select without columns")
	}
	b := d.Builder()

	cols := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		if !knownColumn(s.Type, c) {
			return "", nil, oderrors.UnknownAttribute(s.Type.Name, c)
		}
		cols[i] = d.Quote(c)
	}

	var where []string
	if s.RestrictIDs {
		if len(s.IDs) == 0 {
			where = append(where, "1=0")
		} else {
			where = append(where, fmt.Sprintf("%s IN %s", d.Quote(storage.ColID), b.Int64List(s.IDs)))
		}
	}
	if s.Parent != nil {
		cond, err := ParentCondition(d, b, s.Parent.TypeID, s.Parent.ID)
		if err != nil {
			return "", nil, err
		}
		where = append(where, cond)
	}
	for _, p := range s.Preds {
		cond, err := Condition(d, b, s.Type, p)
		if err != nil {
			return "", nil, err
		}
		where = append(where, cond)
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	if s.Distinct {
		sb.WriteString("DISTINCT ")
	}
	sb.WriteString(strings.Join(cols, ", "))
	sb.WriteString(" FROM ")
	sb.WriteString(d.Quote(storage.ObjectTable(s.Type.Name)))
	if len(where) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(where, " AND "))
	}
	if !s.Distinct {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(d.Quote(storage.ColID))
	}
	if s.Limit > 0 {
		sb.WriteString(" LIMIT ")
		sb.WriteString(b.Arg(s.Limit))
	}
	return sb.String(), b.Args(), nil
}

func knownColumn(t *schema.ObjectType, col string) bool {
	switch col {
	case storage.ColID, storage.ColParentType, storage.ColParentID, storage.ColBlob:
		return true
	}
	if a, ok := t.Attrs[col]; ok {
		return a.Searchable()
	}
	if base, ok := strings.CutSuffix(col, "__lower"); ok {
		a, ok := t.Attrs[base]
		return ok && a.HasShadow()
	}
	return false
}
