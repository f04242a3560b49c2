package objectdb

import (
	"context"

	oderrors "github.com/ministore/objectdb/objectdb/errors"
	"github.com/ministore/objectdb/objectdb/ops"
)

type batchOpKind int

const (
	batchAdd batchOpKind = iota
	batchDelete
)

type batchOp struct {
	kind   batchOpKind
	typ    string
	parent *ObjectRef
	attrs  Attrs
	ref    ObjectRef
}

// Batch queues adds and deletes that Apply runs as one unit.
type Batch struct {
	ops []batchOp
}

func NewBatch() *Batch {
	return &Batch{}
}

func (b *Batch) Add(typeName string, parent *ObjectRef, attrs Attrs) error {
	if typeName == "" {
		return oderrors.New(oderrors.KindUnknownType, "object type cannot be empty")
	}
	b.ops = append(b.ops, batchOp{kind: batchAdd, typ: typeName, parent: parent, attrs: attrs})
	return nil
}

func (b *Batch) Delete(ref ObjectRef) error {
	if ref.Type == "" {
		return oderrors.New(oderrors.KindUnknownType, "object type cannot be empty")
	}
	b.ops = append(b.ops, batchOp{kind: batchDelete, ref: ref})
	return nil
}

func (b *Batch) Len() int {
	return len(b.ops)
}

func (b *Batch) Empty() bool {
	return len(b.ops) == 0
}

// Apply runs the queued operations in order. Either all of them take effect
// or none does. It returns the number of objects added plus deleted.
func (db *DB) Apply(ctx context.Context, b *Batch) (int, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if b == nil || b.Empty() {
		return 0, nil
	}

	var added, deleted int
	err := db.withSavepoint(ctx, func(env *ops.Env) error {
		for _, op := range b.ops {
			t, err := db.lookupType(opType(op))
			if err != nil {
				return err
			}
			switch op.kind {
			case batchAdd:
				values, err := ops.PrepareAttrs(t, op.attrs)
				if err != nil {
					return err
				}
				ptID, pid, err := ops.ResolveParent(env, opsRef(op.parent))
				if err != nil {
					return err
				}
				if _, err := ops.Insert(ctx, env, t, ptID, pid, values); err != nil {
					return wrapSQL("add object", err)
				}
				added++
			case batchDelete:
				n, err := ops.Delete(ctx, env, []ops.Key{{TypeID: t.ID, ID: op.ref.ID}})
				if err != nil {
					return wrapSQL("delete objects", err)
				}
				deleted += n
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	db.metrics.ObjectsAdded.Add(float64(added))
	db.metrics.ObjectsDeleted.Add(float64(deleted))
	return added + deleted, nil
}

func opType(op batchOp) string {
	if op.kind == batchDelete {
		return op.ref.Type
	}
	return op.typ
}
