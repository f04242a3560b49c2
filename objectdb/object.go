package objectdb

import (
	"context"

	"go.uber.org/zap"

	oderrors "github.com/ministore/objectdb/objectdb/errors"
	"github.com/ministore/objectdb/objectdb/ops"
	"github.com/ministore/objectdb/objectdb/schema"
)

func (db *DB) lookupType(name string) (*schema.ObjectType, error) {
	t, ok := db.reg.types[name]
	if !ok {
		return nil, oderrors.UnknownType(name)
	}
	return t, nil
}

func opsRef(r *ObjectRef) *ops.Ref {
	if r == nil {
		return nil
	}
	return &ops.Ref{Type: r.Type, ID: r.ID}
}

func (db *DB) toObject(rec *ops.Record, score float64) *Object {
	o := &Object{Type: rec.Type.Name, ID: rec.ID, Attrs: Attrs(rec.Attrs), Score: score}
	if rec.ParentTypeID != 0 {
		if pt, ok := db.reg.byID[rec.ParentTypeID]; ok {
			o.Parent = &ObjectRef{Type: pt.Name, ID: rec.ParentID}
		}
	}
	return o
}

// Add stores a new object of the named type and returns it with its
// assigned id. parent may be nil.
func (db *DB) Add(ctx context.Context, typeName string, parent *ObjectRef, attrs Attrs) (*Object, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	obj, err := db.add(ctx, typeName, parent, attrs)
	if err != nil {
		return nil, err
	}
	db.metrics.ObjectsAdded.Inc()
	return obj, nil
}

// add validates and inserts under its own savepoint. Callers hold db.mu.
func (db *DB) add(ctx context.Context, typeName string, parent *ObjectRef, attrs Attrs) (*Object, error) {
	t, err := db.lookupType(typeName)
	if err != nil {
		return nil, err
	}
	values, err := ops.PrepareAttrs(t, attrs)
	if err != nil {
		return nil, err
	}

	obj := &Object{Type: t.Name, Attrs: Attrs{}}
	err = db.withSavepoint(ctx, func(env *ops.Env) error {
		ptID, pid, err := ops.ResolveParent(env, opsRef(parent))
		if err != nil {
			return err
		}
		obj.ID, err = ops.Insert(ctx, env, t, ptID, pid, values)
		return wrapSQL("add object", err)
	})
	if err != nil {
		return nil, err
	}

	if parent != nil {
		obj.Parent = &ObjectRef{Type: parent.Type, ID: parent.ID}
	}
	for k, v := range values {
		if v != nil {
			obj.Attrs[k] = v
		}
	}
	return obj, nil
}

// Update merges attrs into the stored object. An attribute set to nil is
// removed. A nil parent keeps the current parent; a zero ObjectRef detaches
// the object. Postings are rebuilt only for inverted indexes fed by a
// changed attribute.
func (db *DB) Update(ctx context.Context, ref ObjectRef, parent *ObjectRef, attrs Attrs) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	t, err := db.lookupType(ref.Type)
	if err != nil {
		return err
	}
	values, err := ops.PrepareAttrs(t, attrs)
	if err != nil {
		return err
	}

	err = db.withSavepoint(ctx, func(env *ops.Env) error {
		return wrapSQL("update object", ops.Update(ctx, env, t, ref.ID, opsRef(parent), values))
	})
	if err != nil {
		return err
	}
	db.metrics.ObjectsUpdated.Inc()
	return nil
}

// Delete removes the object and all of its descendants. It returns the
// number of objects removed, which is zero when ref does not exist.
func (db *DB) Delete(ctx context.Context, ref ObjectRef) (int, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	t, err := db.lookupType(ref.Type)
	if err != nil {
		return 0, err
	}
	return db.deleteKeys(ctx, []ops.Key{{TypeID: t.ID, ID: ref.ID}})
}

// DeleteByQuery removes every object q matches, with descendants.
func (db *DB) DeleteByQuery(ctx context.Context, q Query) (int, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if q.Distinct {
		return 0, oderrors.QueryRejected("delete does not accept distinct")
	}
	var keys []ops.Key
	err := db.withSavepoint(ctx, func(env *ops.Env) error {
		hits, err := db.query(ctx, env, &q, true)
		if err != nil {
			return err
		}
		for _, h := range hits {
			keys = append(keys, h.rec.Key())
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}
	return db.deleteKeys(ctx, keys)
}

func (db *DB) deleteKeys(ctx context.Context, keys []ops.Key) (int, error) {
	var n int
	err := db.withSavepoint(ctx, func(env *ops.Env) error {
		var err error
		n, err = ops.Delete(ctx, env, keys)
		return wrapSQL("delete objects", err)
	})
	if err != nil {
		return 0, err
	}
	db.metrics.ObjectsDeleted.Add(float64(n))
	db.log.Debug("delete finished", zap.Int("requested", len(keys)), zap.Int("deleted", n))
	return n, nil
}
