package ops

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	oderrors "github.com/ministore/objectdb/objectdb/errors"
	"github.com/ministore/objectdb/objectdb/schema"
	"github.com/ministore/objectdb/objectdb/storage"
	"github.com/ministore/objectdb/objectdb/terms"
)

// Ref names an object by type name and id.
type Ref struct {
	Type string
	ID   int64
}

// PrepareAttrs checks every attribute against the type and returns
// canonical values. Nil values are kept so updates can remove attributes.
func PrepareAttrs(t *schema.ObjectType, attrs map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(attrs))
	for name, v := range attrs {
		def, ok := t.Attr(name)
		if !ok {
			return nil, oderrors.UnknownAttribute(t.Name, name)
		}
		cv, err := schema.CheckValue(name, def, v)
		if err != nil {
			return nil, err
		}
		out[name] = cv
	}
	return out, nil
}

// ResolveParent maps a parent reference to its type id.
func ResolveParent(env *Env, parent *Ref) (typeID, id int64, err error) {
	if parent == nil {
		return 0, 0, nil
	}
	pt, ok := env.Schema.Type(parent.Type)
	if !ok {
		return 0, 0, oderrors.UnknownType(parent.Type)
	}
	return pt.ID, parent.ID, nil
}

func nullableParent(typeID, id int64) (any, any) {
	if typeID == 0 {
		return nil, nil
	}
	return typeID, id
}

// rowValues splits canonical attrs into native column values and the
// encoded SIMPLE blob.
func rowValues(env *Env, t *schema.ObjectType, attrs map[string]any) (cols []string, vals []any, err error) {
	simple := map[string]any{}
	for _, name := range t.SearchableInOrder() {
		def := t.Attrs[name]
		v := attrs[name]
		cols = append(cols, name)
		vals = append(vals, schema.ColumnValue(def, v))
		if def.HasShadow() {
			cols = append(cols, storage.ShadowColumn(name))
			vals = append(vals, lowerOrNil(v))
		}
	}
	for name, v := range attrs {
		if t.Attrs[name].Simple() && v != nil {
			simple[name] = v
		}
	}
	encoded, err := env.Codec.Encode(simple)
	if err != nil {
		return nil, nil, fmt.Errorf("encode simple attributes: %w", err)
	}
	cols = append(cols, storage.ColBlob)
	vals = append(vals, nullBytes(encoded))
	return cols, vals, nil
}

func lowerOrNil(v any) any {
	if s, ok := v.(string); ok {
		return strings.ToLower(s)
	}
	return nil
}

func nullBytes(b []byte) any {
	if b == nil {
		return nil
	}
	return b
}

// Insert adds one object and its postings. attrs must come from
// PrepareAttrs.
func Insert(ctx context.Context, env *Env, t *schema.ObjectType, parentTypeID, parentID int64, attrs map[string]any) (int64, error) {
	d := env.Dialect

	// 1. Insert the hybrid row
	cols, vals, err := rowValues(env, t, attrs)
	if err != nil {
		return 0, err
	}
	pt, pid := nullableParent(parentTypeID, parentID)
	cols = append(cols, storage.ColParentType, storage.ColParentID)
	vals = append(vals, pt, pid)

	b := d.Builder()
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = d.Quote(c)
	}
	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s RETURNING %s",
		d.Quote(storage.ObjectTable(t.Name)), strings.Join(quoted, ", "), b.List(vals), d.Quote(storage.ColID))
	var id int64
	if err := env.Q.QueryRowContext(ctx, stmt, b.Args()...).Scan(&id); err != nil {
		return 0, fmt.Errorf("insert object: %w", err)
	}

	// 2. Score and write postings per inverted index
	for _, index := range t.InvertedIndexes() {
		if _, err := env.Q.ExecContext(ctx, env.SQL.AddObjectCount, 1, index); err != nil {
			return 0, fmt.Errorf("increment object_count: %w", err)
		}
		if err := writePostings(ctx, env, t, index, id, attrs); err != nil {
			return 0, err
		}
	}
	return id, nil
}

// scoreObject runs the term scorer over every attribute of t feeding index.
func scoreObject(env *Env, t *schema.ObjectType, index string, attrs map[string]any) (map[string]float64, error) {
	def, ok := env.Schema.Index(index)
	if !ok {
		return nil, oderrors.UnknownIndex(index)
	}
	var sources []terms.Source
	for _, name := range t.IndexSources(index) {
		a := t.Attrs[name]
		if v := attrs[name]; v != nil {
			sources = append(sources, terms.Source{Value: v, Coeff: a.Coefficient(), Split: a.Split})
		}
	}
	return terms.Score(def, sources), nil
}

func writePostings(ctx context.Context, env *Env, t *schema.ObjectType, index string, id int64, attrs map[string]any) error {
	scores, err := scoreObject(env, t, index, attrs)
	if err != nil {
		return err
	}
	if len(scores) == 0 {
		return nil
	}
	d := env.Dialect
	termsTable := d.Quote(storage.TermsTable(index))
	upsert := fmt.Sprintf(`INSERT INTO %[1]s (term, term_lower, global_count) VALUES (%[2]s, %[3]s, 1)
		ON CONFLICT (term_lower) DO UPDATE SET global_count = %[1]s.global_count + 1
		RETURNING id`, termsTable, d.Param(1), d.Param(2))
	posting := fmt.Sprintf("INSERT INTO %s (rank, term_id, object_type, object_id, frequency) VALUES (%s, %s, %s, %s, %s)",
		d.Quote(storage.PostingsTable(index)), d.Param(1), d.Param(2), d.Param(3), d.Param(4), d.Param(5))

	// Sorted for a stable term id assignment.
	words := make([]string, 0, len(scores))
	for w := range scores {
		words = append(words, w)
	}
	sort.Strings(words)
	for _, w := range words {
		score := scores[w]
		var termID int64
		if err := env.Q.QueryRowContext(ctx, upsert, w, strings.ToLower(w)).Scan(&termID); err != nil {
			return fmt.Errorf("upsert term %q: %w", w, err)
		}
		if _, err := env.Q.ExecContext(ctx, posting, terms.Rank(score), termID, t.ID, id, score); err != nil {
			return fmt.Errorf("insert posting: %w", err)
		}
	}
	return nil
}

// removePostings drops every posting of the given objects from index and
// decrements the global count of each referenced term once per object,
// never below zero. Terms reaching zero are left for Sweep.
func removePostings(ctx context.Context, env *Env, index string, typeID int64, ids []int64) error {
	d := env.Dialect
	postings := d.Quote(storage.PostingsTable(index))
	termsTable := d.Quote(storage.TermsTable(index))
	for _, chunk := range chunks(ids, idChunk) {
		b := d.Builder()
		where := fmt.Sprintf("object_type = %s AND object_id IN %s", b.Arg(typeID), b.Int64List(chunk))

		rows, err := env.Q.QueryContext(ctx,
			fmt.Sprintf("SELECT term_id, COUNT(*) FROM %s WHERE %s GROUP BY term_id", postings, where), b.Args()...)
		if err != nil {
			return fmt.Errorf("load postings: %w", err)
		}
		counts := map[int64]int64{}
		for rows.Next() {
			var termID, n int64
			if err := rows.Scan(&termID, &n); err != nil {
				rows.Close()
				return fmt.Errorf("scan posting: %w", err)
			}
			counts[termID] = n
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return err
		}
		rows.Close()

		dec := fmt.Sprintf("UPDATE %s SET global_count = CASE WHEN global_count > %s THEN global_count - %s ELSE 0 END WHERE id = %s",
			termsTable, d.Param(1), d.Param(1), d.Param(2))
		for termID, n := range counts {
			if _, err := env.Q.ExecContext(ctx, dec, n, termID); err != nil {
				return fmt.Errorf("decrement global_count: %w", err)
			}
		}
		if _, err := env.Q.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE %s", postings, where), b.Args()...); err != nil {
			return fmt.Errorf("delete postings: %w", err)
		}
	}
	return nil
}

// Update merges attrs into the stored object. A nil value removes the
// attribute. parent is applied when non-nil. Postings are rebuilt only for
// inverted indexes fed by a changed attribute.
func Update(ctx context.Context, env *Env, t *schema.ObjectType, id int64, parent *Ref, attrs map[string]any) error {
	// 1. Load the complete current object
	cur, err := loadFull(ctx, env, t, id)
	if err != nil {
		return err
	}
	if cur == nil {
		return oderrors.NotFound(t.Name, id)
	}

	// 2. Merge
	merged := make(map[string]any, len(cur.Attrs)+len(attrs))
	for k, v := range cur.Attrs {
		merged[k] = v
	}
	changed := map[string]bool{}
	simpleChanged := false
	for k, v := range attrs {
		if v == nil {
			delete(merged, k)
		} else {
			merged[k] = v
		}
		changed[k] = true
		if t.Attrs[k].Simple() {
			simpleChanged = true
		}
	}

	// 3. Rewrite the changed columns
	d := env.Dialect
	b := d.Builder()
	var sets []string
	for _, name := range t.SearchableInOrder() {
		if !changed[name] {
			continue
		}
		def := t.Attrs[name]
		sets = append(sets, fmt.Sprintf("%s = %s", d.Quote(name), b.Arg(schema.ColumnValue(def, merged[name]))))
		if def.HasShadow() {
			sets = append(sets, fmt.Sprintf("%s = %s", d.Quote(storage.ShadowColumn(name)), b.Arg(lowerOrNil(merged[name]))))
		}
	}
	if simpleChanged {
		simple := map[string]any{}
		for k, v := range merged {
			if t.Attrs[k].Simple() {
				simple[k] = v
			}
		}
		encoded, err := env.Codec.Encode(simple)
		if err != nil {
			return fmt.Errorf("encode simple attributes: %w", err)
		}
		sets = append(sets, fmt.Sprintf("%s = %s", d.Quote(storage.ColBlob), b.Arg(nullBytes(encoded))))
	}
	if parent != nil {
		// A zero Ref detaches the object.
		var ptID, pid int64
		if parent.Type != "" {
			if ptID, pid, err = ResolveParent(env, parent); err != nil {
				return err
			}
		}
		pt, pv := nullableParent(ptID, pid)
		sets = append(sets,
			fmt.Sprintf("%s = %s", d.Quote(storage.ColParentType), b.Arg(pt)),
			fmt.Sprintf("%s = %s", d.Quote(storage.ColParentID), b.Arg(pv)))
	}
	if len(sets) > 0 {
		stmt := fmt.Sprintf("UPDATE %s SET %s WHERE %s = %s",
			d.Quote(storage.ObjectTable(t.Name)), strings.Join(sets, ", "), d.Quote(storage.ColID), b.Arg(id))
		if _, err := env.Q.ExecContext(ctx, stmt, b.Args()...); err != nil {
			return fmt.Errorf("update object: %w", err)
		}
	}

	// 4. Re-score affected inverted indexes
	for _, index := range t.InvertedIndexes() {
		affected := false
		for _, src := range t.IndexSources(index) {
			if changed[src] {
				affected = true
				break
			}
		}
		if !affected {
			continue
		}
		if err := removePostings(ctx, env, index, t.ID, []int64{id}); err != nil {
			return err
		}
		if err := writePostings(ctx, env, t, index, id, merged); err != nil {
			return err
		}
	}
	return nil
}

// loadFull reads every attribute of one object. It returns nil when the
// object does not exist.
func loadFull(ctx context.Context, env *Env, t *schema.ObjectType, id int64) (*Record, error) {
	recs, err := Fetch(ctx, env, &FetchRequest{Type: t, IDs: []int64{id}, RestrictIDs: true})
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, nil
	}
	return recs[0], nil
}

// scanParent converts nullable parent columns.
func scanParent(pt, pid sql.NullInt64) (int64, int64) {
	if !pt.Valid || !pid.Valid {
		return 0, 0
	}
	return pt.Int64, pid.Int64
}
