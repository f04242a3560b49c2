package ops

import (
	"go.uber.org/zap"

	"github.com/ministore/objectdb/objectdb/blob"
	"github.com/ministore/objectdb/objectdb/schema"
	"github.com/ministore/objectdb/objectdb/storage"
)

// Registry is the read side of the schema owned by the store handle.
type Registry interface {
	Type(name string) (*schema.ObjectType, bool)
	TypeByID(id int64) (*schema.ObjectType, bool)
	Types() []*schema.ObjectType
	Index(name string) (schema.InvertedIndexDef, bool)
}

// Env carries the handles every operation needs. Q is the store's open
// transaction; callers hold the store lock for the duration of a call.
type Env struct {
	Q       storage.Queryer
	Dialect storage.Dialect
	SQL     storage.SQL
	Codec   blob.Codec
	Schema  Registry
	Log     *zap.Logger
}

// Key identifies an object across all types.
type Key struct {
	TypeID int64
	ID     int64
}

// Record is one materialized object row.
type Record struct {
	Type *schema.ObjectType
	ID   int64
	// ParentTypeID is zero when the object has no parent.
	ParentTypeID int64
	ParentID     int64
	Attrs        map[string]any
}

func (r *Record) Key() Key { return Key{TypeID: r.Type.ID, ID: r.ID} }

// idChunk bounds the number of ids bound into a single IN list.
const idChunk = 500

func chunks(ids []int64, n int) [][]int64 {
	var out [][]int64
	for len(ids) > n {
		out = append(out, ids[:n])
		ids = ids[n:]
	}
	if len(ids) > 0 {
		out = append(out, ids)
	}
	return out
}
