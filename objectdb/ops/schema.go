package ops

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/ministore/objectdb/objectdb/schema"
	"github.com/ministore/objectdb/objectdb/storage"
)

func execAll(ctx context.Context, env *Env, stmts []string) error {
	for _, stmt := range stmts {
		if _, err := env.Q.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%s: %w", firstLine(stmt), err)
		}
	}
	return nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// CreateInvertedIndexTables creates the terms and postings tables.
func CreateInvertedIndexTables(ctx context.Context, env *Env, name string) error {
	return execAll(ctx, env, storage.InvertedIndexDDL(env.Dialect, name))
}

// CreateType creates the object table of a new type with all its indexes.
func CreateType(ctx context.Context, env *Env, t *schema.ObjectType) error {
	d := env.Dialect
	stmts := append([]string{storage.CreateObjectTable(d, storage.ObjectTable(t.Name), t)}, storage.ObjectTableIndexes(d, t)...)
	return execAll(ctx, env, stmts)
}

// AddIndexes creates multi-column indexes on an existing table.
func AddIndexes(ctx context.Context, env *Env, t *schema.ObjectType, indexes [][]string) error {
	stmts := make([]string, len(indexes))
	for i, ix := range indexes {
		stmts[i] = storage.MultiColumnIndex(env.Dialect, t, ix)
	}
	return execAll(ctx, env, stmts)
}

// RebuildType copies the table of old into a table shaped for t, swaps the
// two and reconciles postings of every inverted index whose sources
// changed. Columns new to t start out NULL; new shadow columns are filled
// from their base column.
func RebuildType(ctx context.Context, env *Env, old, t *schema.ObjectType) error {
	d := env.Dialect
	table := storage.ObjectTable(t.Name)
	tmp := table + "__rebuild"

	have := map[string]bool{}
	for _, c := range storage.ObjectColumns(old) {
		have[c] = true
	}
	var cols, exprs []string
	for _, c := range storage.ObjectColumns(t) {
		switch {
		case have[c]:
			cols = append(cols, d.Quote(c))
			exprs = append(exprs, d.Quote(c))
		case strings.HasSuffix(c, "__lower") && have[strings.TrimSuffix(c, "__lower")]:
			cols = append(cols, d.Quote(c))
			exprs = append(exprs, "LOWER("+d.Quote(strings.TrimSuffix(c, "__lower"))+")")
		}
	}

	// 1. Create, copy, swap
	stmts := []string{
		storage.CreateObjectTable(d, tmp, t),
		fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s",
			d.Quote(tmp), strings.Join(cols, ", "), strings.Join(exprs, ", "), d.Quote(table)),
		"DROP TABLE " + d.Quote(table),
		fmt.Sprintf("ALTER TABLE %s RENAME TO %s", d.Quote(tmp), d.Quote(table)),
	}
	if d.SyncSequence != "" {
		stmts = append(stmts, fmt.Sprintf(d.SyncSequence, d.Quote(table), table))
	}

	// 2. Recreate indexes on the renamed table
	stmts = append(stmts, storage.ObjectTableIndexes(d, t)...)
	if err := execAll(ctx, env, stmts); err != nil {
		return fmt.Errorf("rebuild %s: %w", t.Name, err)
	}
	env.Log.Info("rebuilt object table", zap.String("type", t.Name), zap.Int("columns", len(cols)))

	// 3. Postings
	return Reindex(ctx, env, old, t)
}

// Reindex brings the postings of t's objects in line with t's inverted
// index sources. Indexes whose sources are unchanged are left alone.
func Reindex(ctx context.Context, env *Env, old, t *schema.ObjectType) error {
	oldIdx, newIdx := stringSet(old.InvertedIndexes()), stringSet(t.InvertedIndexes())
	var touched []string
	for _, name := range union(oldIdx, newIdx) {
		if oldIdx[name] && newIdx[name] && sameSources(old, t, name) {
			continue
		}
		touched = append(touched, name)
	}
	if len(touched) == 0 {
		return nil
	}

	recs, err := Fetch(ctx, env, &FetchRequest{Type: t})
	if err != nil {
		return err
	}
	ids := make([]int64, len(recs))
	for i, r := range recs {
		ids[i] = r.ID
	}

	for _, name := range touched {
		if oldIdx[name] {
			if err := removePostings(ctx, env, name, t.ID, ids); err != nil {
				return err
			}
		}
		switch {
		case oldIdx[name] && !newIdx[name]:
			if _, err := env.Q.ExecContext(ctx, env.SQL.AddObjectCount, -len(ids), name); err != nil {
				return fmt.Errorf("decrement object_count: %w", err)
			}
		case !oldIdx[name] && newIdx[name]:
			if _, err := env.Q.ExecContext(ctx, env.SQL.AddObjectCount, len(ids), name); err != nil {
				return fmt.Errorf("increment object_count: %w", err)
			}
		}
		if !newIdx[name] {
			continue
		}
		for _, r := range recs {
			if err := writePostings(ctx, env, t, name, r.ID, r.Attrs); err != nil {
				return err
			}
		}
		env.Log.Info("reindexed objects", zap.String("type", t.Name), zap.String("index", name), zap.Int("objects", len(recs)))
	}
	return nil
}

func sameSources(old, t *schema.ObjectType, index string) bool {
	a, b := old.IndexSources(index), t.IndexSources(index)
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] || !old.Attrs[a[i]].Equal(t.Attrs[b[i]]) {
			return false
		}
	}
	return true
}

func stringSet(xs []string) map[string]bool {
	m := make(map[string]bool, len(xs))
	for _, x := range xs {
		m[x] = true
	}
	return m
}

func union(a, b map[string]bool) []string {
	var out []string
	for k := range a {
		out = append(out, k)
	}
	for k := range b {
		if !a[k] {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
