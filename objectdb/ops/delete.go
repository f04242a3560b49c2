package ops

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/ministore/objectdb/objectdb/schema"
	"github.com/ministore/objectdb/objectdb/storage"
)

// Delete removes the given objects and, recursively, every object whose
// parent is a deleted object. It returns the number of rows removed.
// Missing ids are ignored. Visited keys are tracked so a parent cycle
// terminates.
func Delete(ctx context.Context, env *Env, keys []Key) (int, error) {
	visited := map[Key]bool{}
	pending := groupByType(keys)
	total := 0

	for len(pending) > 0 {
		next := map[int64][]int64{}
		for _, typeID := range sortedTypeIDs(pending) {
			t, ok := env.Schema.TypeByID(typeID)
			if !ok {
				continue
			}
			var ids []int64
			for _, id := range pending[typeID] {
				k := Key{TypeID: typeID, ID: id}
				if !visited[k] {
					visited[k] = true
					ids = append(ids, id)
				}
			}
			if len(ids) == 0 {
				continue
			}

			// 1. Keep only rows that exist
			existing, err := Exists(ctx, env, t, ids)
			if err != nil {
				return total, fmt.Errorf("load %s ids: %w", t.Name, err)
			}
			if len(existing) == 0 {
				continue
			}

			// 2. Drop postings and adjust per-index object counts
			for _, index := range t.InvertedIndexes() {
				if err := removePostings(ctx, env, index, t.ID, existing); err != nil {
					return total, err
				}
				if _, err := env.Q.ExecContext(ctx, env.SQL.AddObjectCount, -len(existing), index); err != nil {
					return total, fmt.Errorf("decrement object_count: %w", err)
				}
			}

			// 3. Delete the rows
			if err := deleteRows(ctx, env, t, existing); err != nil {
				return total, err
			}
			total += len(existing)
			env.Log.Debug("deleted objects", zap.String("type", t.Name), zap.Int("count", len(existing)))

			// 4. Queue children of every type
			for _, child := range env.Schema.Types() {
				kids, err := children(ctx, env, child, t.ID, existing)
				if err != nil {
					return total, err
				}
				next[child.ID] = append(next[child.ID], kids...)
			}
		}
		for typeID, ids := range next {
			if len(ids) == 0 {
				delete(next, typeID)
			}
		}
		pending = next
	}
	return total, nil
}

func deleteRows(ctx context.Context, env *Env, t *schema.ObjectType, ids []int64) error {
	d := env.Dialect
	for _, chunk := range chunks(ids, idChunk) {
		b := d.Builder()
		stmt := fmt.Sprintf("DELETE FROM %s WHERE %s IN %s",
			d.Quote(storage.ObjectTable(t.Name)), d.Quote(storage.ColID), b.Int64List(chunk))
		if _, err := env.Q.ExecContext(ctx, stmt, b.Args()...); err != nil {
			return fmt.Errorf("delete %s: %w", t.Name, err)
		}
	}
	return nil
}

func children(ctx context.Context, env *Env, t *schema.ObjectType, parentType int64, parentIDs []int64) ([]int64, error) {
	d := env.Dialect
	var out []int64
	for _, chunk := range chunks(parentIDs, idChunk) {
		b := d.Builder()
		stmt := fmt.Sprintf("SELECT %s FROM %s WHERE %s = %s AND %s IN %s",
			d.Quote(storage.ColID), d.Quote(storage.ObjectTable(t.Name)),
			d.Quote(storage.ColParentType), b.Arg(parentType),
			d.Quote(storage.ColParentID), b.Int64List(chunk))
		ids, err := queryIDs(ctx, env, stmt, b.Args())
		if err != nil {
			return nil, fmt.Errorf("load children of %s: %w", t.Name, err)
		}
		out = append(out, ids...)
	}
	return out, nil
}

func groupByType(keys []Key) map[int64][]int64 {
	out := map[int64][]int64{}
	for _, k := range keys {
		out[k.TypeID] = append(out[k.TypeID], k.ID)
	}
	return out
}

func sortedTypeIDs(m map[int64][]int64) []int64 {
	ids := make([]int64, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
