package ops

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	oderrors "github.com/ministore/objectdb/objectdb/errors"
	"github.com/ministore/objectdb/objectdb/planner"
	"github.com/ministore/objectdb/objectdb/schema"
	"github.com/ministore/objectdb/objectdb/storage"
)

// FetchRequest is a relational read over one object type.
type FetchRequest struct {
	Type        *schema.ObjectType
	Preds       []planner.Predicate
	Parent      *planner.ParentFilter
	IDs         []int64
	RestrictIDs bool
	// Attrs projects the result. Nil selects every attribute; names the
	// type does not define are ignored.
	Attrs    []string
	Distinct bool
	Limit    int
}

type projection struct {
	searchable []string
	simple     map[string]bool
}

func project(t *schema.ObjectType, attrs []string) projection {
	p := projection{simple: map[string]bool{}}
	if attrs == nil {
		p.searchable = t.SearchableInOrder()
		for name, a := range t.Attrs {
			if a.Simple() {
				p.simple[name] = true
			}
		}
		return p
	}
	seen := map[string]bool{}
	for _, name := range attrs {
		a, ok := t.Attrs[name]
		if !ok || seen[name] {
			continue
		}
		seen[name] = true
		if a.Searchable() {
			p.searchable = append(p.searchable, name)
		} else {
			p.simple[name] = true
		}
	}
	sort.Strings(p.searchable)
	return p
}

// Fetch runs the request and materializes records. Distinct requests
// return records without id or parent.
func Fetch(ctx context.Context, env *Env, req *FetchRequest) ([]*Record, error) {
	t := req.Type
	p := project(t, req.Attrs)

	var cols []string
	if req.Distinct {
		if len(p.simple) > 0 {
			return nil, oderrors.QueryRejected("distinct over SIMPLE attributes of type %q is not supported", t.Name)
		}
		if len(p.searchable) == 0 {
			return nil, oderrors.QueryRejected("distinct requires at least one searchable attribute")
		}
		cols = append(cols, p.searchable...)
	} else {
		cols = append(cols, storage.ColID, storage.ColParentType, storage.ColParentID)
		cols = append(cols, p.searchable...)
		if len(p.simple) > 0 {
			cols = append(cols, storage.ColBlob)
		}
	}

	sel := &planner.Select{
		Type:     t,
		Columns:  cols,
		Preds:    req.Preds,
		Parent:   req.Parent,
		Distinct: req.Distinct,
		Limit:    req.Limit,
	}
	if !req.RestrictIDs {
		return fetchSelect(ctx, env, sel, p)
	}

	ids := append([]int64(nil), req.IDs...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	sel.RestrictIDs = true
	if len(ids) == 0 {
		return nil, nil
	}
	var out []*Record
	for _, chunk := range chunks(ids, idChunk) {
		sel.IDs = chunk
		if req.Limit > 0 {
			sel.Limit = req.Limit - len(out)
		}
		recs, err := fetchSelect(ctx, env, sel, p)
		if err != nil {
			return nil, err
		}
		out = append(out, recs...)
		if req.Limit > 0 && len(out) >= req.Limit {
			break
		}
	}
	return out, nil
}

func fetchSelect(ctx context.Context, env *Env, sel *planner.Select, p projection) ([]*Record, error) {
	t := sel.Type
	stmt, args, err := planner.BuildSelect(env.Dialect, sel)
	if err != nil {
		return nil, err
	}
	rows, err := env.Q.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", t.Name, err)
	}
	defer rows.Close()

	wantSimple := func(name string) bool { return p.simple[name] }

	var out []*Record
	for rows.Next() {
		var (
			id       int64
			pt, pid  sql.NullInt64
			pickle   []byte
			dest     []any
			rawAttrs = make([]any, len(p.searchable))
		)
		if !sel.Distinct {
			dest = append(dest, &id, &pt, &pid)
		}
		for i := range rawAttrs {
			dest = append(dest, &rawAttrs[i])
		}
		if !sel.Distinct && len(p.simple) > 0 {
			dest = append(dest, &pickle)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", t.Name, err)
		}

		rec := &Record{Type: t, ID: id, Attrs: map[string]any{}}
		rec.ParentTypeID, rec.ParentID = scanParent(pt, pid)
		for i, name := range p.searchable {
			v, err := schema.FromColumn(t.Attrs[name], rawAttrs[i])
			if err != nil {
				return nil, fmt.Errorf("column %s.%s: %w", t.Name, name, err)
			}
			if v != nil {
				rec.Attrs[name] = v
			}
		}
		if len(pickle) > 0 {
			simple, err := env.Codec.Decode(pickle, wantSimple)
			if err != nil {
				return nil, fmt.Errorf("decode %s %d: %w", t.Name, id, err)
			}
			for k, v := range simple {
				rec.Attrs[k] = v
			}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Exists returns the subset of ids present in the type's table.
func Exists(ctx context.Context, env *Env, t *schema.ObjectType, ids []int64) ([]int64, error) {
	d := env.Dialect
	var out []int64
	for _, chunk := range chunks(ids, idChunk) {
		b := d.Builder()
		stmt := fmt.Sprintf("SELECT %[1]s FROM %[2]s WHERE %[1]s IN %[3]s",
			d.Quote(storage.ColID), d.Quote(storage.ObjectTable(t.Name)), b.Int64List(chunk))
		got, err := queryIDs(ctx, env, stmt, b.Args())
		if err != nil {
			return nil, err
		}
		out = append(out, got...)
	}
	return out, nil
}

func queryIDs(ctx context.Context, env *Env, stmt string, args []any) ([]int64, error) {
	rows, err := env.Q.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
