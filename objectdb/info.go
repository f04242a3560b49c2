package objectdb

import (
	"context"

	"github.com/ministore/objectdb/objectdb/ops"
)

// Info reports backend details, per-type object counts and per-index term
// statistics.
func (db *DB) Info(ctx context.Context) (*Info, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	info := &Info{
		Backend: db.adapter.Backend(),
		StoreID: db.adapter.StoreID(),
		Version: Version,
		Objects: map[string]int64{},
		Indexes: map[string]IndexInfo{},
	}
	err := db.withSavepoint(ctx, func(env *ops.Env) error {
		st, err := ops.CollectStats(ctx, env)
		if err != nil {
			return wrapSQL("collect stats", err)
		}
		for name, n := range st.Objects {
			info.Objects[name] = n
		}
		for name, is := range st.Indexes {
			info.Indexes[name] = IndexInfo(is)
		}
		info.SizeBytes, err = db.adapter.Size(ctx, env.Q)
		return wrapSQL("store size", err)
	})
	if err != nil {
		return nil, err
	}
	return info, nil
}
