package objectdb

import (
	"context"
	"sort"

	"go.uber.org/zap"

	oderrors "github.com/ministore/objectdb/objectdb/errors"
	"github.com/ministore/objectdb/objectdb/ops"
	"github.com/ministore/objectdb/objectdb/schema"
)

// registry is the in-memory copy of the types and inverted_indexes tables.
// It is only changed after the backing statements succeeded.
type registry struct {
	types   map[string]*schema.ObjectType
	byID    map[int64]*schema.ObjectType
	indexes map[string]schema.InvertedIndexDef
}

func newRegistry() *registry {
	return &registry{
		types:   map[string]*schema.ObjectType{},
		byID:    map[int64]*schema.ObjectType{},
		indexes: map[string]schema.InvertedIndexDef{},
	}
}

func (r *registry) Type(name string) (*schema.ObjectType, bool) {
	t, ok := r.types[name]
	return t, ok
}

func (r *registry) TypeByID(id int64) (*schema.ObjectType, bool) {
	t, ok := r.byID[id]
	return t, ok
}

// Types returns every type ordered by id.
func (r *registry) Types() []*schema.ObjectType {
	out := make([]*schema.ObjectType, 0, len(r.byID))
	for _, t := range r.byID {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *registry) Index(name string) (schema.InvertedIndexDef, bool) {
	d, ok := r.indexes[name]
	return d, ok
}

func (r *registry) hasIndex(name string) bool {
	_, ok := r.indexes[name]
	return ok
}

func (r *registry) indexNames() []string {
	names := make([]string, 0, len(r.indexes))
	for name := range r.indexes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *registry) putType(t *schema.ObjectType) {
	r.types[t.Name] = t
	r.byID[t.ID] = t
}

func (r *registry) load(ctx context.Context, env *ops.Env) error {
	rows, err := env.Q.QueryContext(ctx, env.SQL.ListTypes)
	if err != nil {
		return wrapSQL("list types", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id    int64
			name  string
			attrs string
		)
		if err := rows.Scan(&id, &name, &attrs); err != nil {
			return wrapSQL("scan type", err)
		}
		t, err := schema.DecodeType(id, name, []byte(attrs))
		if err != nil {
			return err
		}
		r.putType(t)
	}
	if err := rows.Err(); err != nil {
		return wrapSQL("list types", err)
	}

	irows, err := env.Q.QueryContext(ctx, env.SQL.ListIndexes)
	if err != nil {
		return wrapSQL("list inverted indexes", err)
	}
	defer irows.Close()
	for irows.Next() {
		var (
			def    schema.InvertedIndexDef
			minLen int64
			maxLen int64
			ignore string
		)
		if err := irows.Scan(&def.Name, &minLen, &maxLen, &ignore, &def.ObjectCount); err != nil {
			return wrapSQL("scan inverted index", err)
		}
		def.Min, def.Max = int(minLen), int(maxLen)
		if def.Ignore, err = schema.DecodeIgnore(ignore); err != nil {
			return err
		}
		r.indexes[def.Name] = def
	}
	return wrapSQL("list inverted indexes", irows.Err())
}

// RegisterObjectType creates the type or extends its stored definition.
// Attributes and multi-column indexes only grow. Adding or changing a
// SEARCHABLE or inverted-index attribute rebuilds the object table and
// reindexes the affected objects; other additions are applied in place.
// Registering an unchanged definition does nothing.
func (db *DB) RegisterObjectType(ctx context.Context, name string, indexes [][]string, attrs map[string]AttributeDef) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	existing := db.reg.types[name]
	plan, err := schema.PlanRegistration(existing, name, indexes, attrs, db.reg.hasIndex)
	if err != nil {
		return err
	}
	t := plan.Type
	if err := schema.CheckAttributeNames(t, db.reg.hasIndex); err != nil {
		return err
	}
	if plan.Change == schema.ChangeNone {
		// Splitters are not persisted; keep the ones supplied now.
		db.reg.putType(t)
		return nil
	}

	encoded, err := schema.EncodeType(t)
	if err != nil {
		return err
	}

	err = db.withSavepoint(ctx, func(env *ops.Env) error {
		switch plan.Change {
		case schema.ChangeCreate:
			if err := env.Q.QueryRowContext(ctx, env.SQL.InsertType, name, string(encoded)).Scan(&t.ID); err != nil {
				return wrapSQL("insert type", err)
			}
			if err := ops.CreateType(ctx, env, t); err != nil {
				return wrapSQL("create object table", err)
			}
			return nil
		case schema.ChangeInPlace:
			if err := ops.AddIndexes(ctx, env, t, plan.NewIndexes); err != nil {
				return wrapSQL("add indexes", err)
			}
		case schema.ChangeRebuild:
			if err := ops.RebuildType(ctx, env, existing, t); err != nil {
				return wrapSQL("rebuild object table", err)
			}
		}
		if _, err := env.Q.ExecContext(ctx, env.SQL.UpdateType, string(encoded), t.ID); err != nil {
			return wrapSQL("update type", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if plan.Change == schema.ChangeRebuild {
		db.metrics.TableRebuilds.Inc()
	}
	db.reg.putType(t)
	db.log.Info("registered object type",
		zap.String("type", name),
		zap.Int64("type_id", t.ID),
		zap.Stringer("change", plan.Change),
		zap.Int("attributes", len(t.Attrs)))
	return nil
}

// RegisterInvertedIndex creates the named index or replaces its definition.
// Postings written under a previous definition are not rescored.
func (db *DB) RegisterInvertedIndex(ctx context.Context, name string, def InvertedIndexDef) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if err := schema.CheckIndexName(name, db.reg.Types()); err != nil {
		return err
	}
	if def.Min < 0 || def.Max < 0 || (def.Max > 0 && def.Min > def.Max) {
		return oderrors.Schema("inverted index %q: invalid term length bounds %d..%d", name, def.Min, def.Max)
	}
	def.Name = name

	old, exists := db.reg.indexes[name]
	if exists {
		def.ObjectCount = old.ObjectCount
		if old.SameDefinition(def) {
			db.reg.indexes[name] = def
			return nil
		}
	}

	ignore, err := schema.EncodeIgnore(def.Ignore)
	if err != nil {
		return err
	}
	err = db.withSavepoint(ctx, func(env *ops.Env) error {
		if _, err := env.Q.ExecContext(ctx, env.SQL.UpsertIndex, name, def.Min, def.Max, ignore); err != nil {
			return wrapSQL("store inverted index", err)
		}
		if exists {
			return nil
		}
		if err := ops.CreateInvertedIndexTables(ctx, env, name); err != nil {
			return wrapSQL("create inverted index tables", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	db.reg.indexes[name] = def
	if exists {
		db.log.Warn("inverted index redefined, existing postings keep their old scores",
			zap.String("index", name),
			zap.Int("min", def.Min),
			zap.Int("max", def.Max),
			zap.Int("ignore", len(def.Ignore)))
	} else {
		db.log.Info("registered inverted index", zap.String("index", name))
	}
	return nil
}

// ObjectTypes returns copies of the registered types ordered by id.
func (db *DB) ObjectTypes() []ObjectType {
	db.mu.Lock()
	defer db.mu.Unlock()

	types := db.reg.Types()
	out := make([]ObjectType, len(types))
	for i, t := range types {
		out[i] = *t.Clone()
	}
	return out
}

// InvertedIndexes returns the registered indexes ordered by name, with
// ObjectCount read from the store.
func (db *DB) InvertedIndexes(ctx context.Context) ([]InvertedIndexDef, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	names := db.reg.indexNames()
	out := make([]InvertedIndexDef, len(names))
	err := db.withSavepoint(ctx, func(env *ops.Env) error {
		for i, name := range names {
			def := db.reg.indexes[name]
			if err := env.Q.QueryRowContext(ctx, env.SQL.GetObjectCount, name).Scan(&def.ObjectCount); err != nil {
				return wrapSQL("read object count", err)
			}
			out[i] = def
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
