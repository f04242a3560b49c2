package objectdb

import (
	"context"
	"database/sql"
	stderrors "errors"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/ministore/objectdb/objectdb/blob"
	oderrors "github.com/ministore/objectdb/objectdb/errors"
	"github.com/ministore/objectdb/objectdb/ops"
	"github.com/ministore/objectdb/objectdb/storage"
)

// DB is an open object store. All methods are safe for concurrent use; they
// are serialized by one lock held for the whole logical operation.
//
// Work accumulates in one long-lived transaction that is only made durable
// by Commit (or Close). Every operation runs under a savepoint, so a failed
// call leaves no partial changes behind.
type DB struct {
	mu      sync.Mutex
	adapter storage.Adapter
	db      *sql.DB
	tx      *sql.Tx
	reg     *registry
	codec   blob.Codec
	metrics *Metrics
	log     *zap.Logger
}

// Open connects to the store, creates the metadata tables when missing and
// loads the registered types and inverted indexes.
func Open(ctx context.Context, adapter storage.Adapter, opts Options) (*DB, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	reg := opts.Registerer
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	metrics, err := newMetrics(reg)
	if err != nil {
		return nil, oderrors.Wrap(oderrors.KindIO, "register metrics", err)
	}

	conn, err := adapter.Connect(ctx)
	if err != nil {
		return nil, oderrors.Wrap(oderrors.KindIO, "connect to database", err)
	}
	if err := adapter.Init(ctx, conn); err != nil {
		conn.Close()
		return nil, wrapSQL("initialize store", err)
	}

	db := &DB{
		adapter: adapter,
		db:      conn,
		reg:     newRegistry(),
		codec:   opts.Codec,
		metrics: metrics,
		log:     log.Named("objectdb"),
	}

	err = db.withSavepoint(ctx, func(env *ops.Env) error {
		if err := db.checkVersion(ctx, env); err != nil {
			return err
		}
		return db.reg.load(ctx, env)
	})
	if err == nil {
		err = db.commit()
	}
	if err != nil {
		db.rollback()
		conn.Close()
		adapter.Close()
		return nil, err
	}

	db.log.Info("opened store",
		zap.String("backend", string(adapter.Backend())),
		zap.String("store", adapter.StoreID()),
		zap.Int("types", len(db.reg.types)),
		zap.Int("indexes", len(db.reg.indexes)))
	return db, nil
}

// checkVersion stamps a fresh store and refuses foreign or incompatible ones.
func (db *DB) checkVersion(ctx context.Context, env *ops.Env) error {
	want := strconv.Itoa(Version)

	var magic string
	err := env.Q.QueryRowContext(ctx, env.SQL.GetMeta, metaMagicKey).Scan(&magic)
	switch {
	case stderrors.Is(err, sql.ErrNoRows):
		var n int
		if err := env.Q.QueryRowContext(ctx, "SELECT COUNT(*) FROM types").Scan(&n); err != nil {
			return wrapSQL("inspect store", err)
		}
		if n > 0 {
			return oderrors.Schema("database holds types but no objectdb marker")
		}
		if _, err := env.Q.ExecContext(ctx, env.SQL.SetMeta, metaMagicKey, metaMagic); err != nil {
			return wrapSQL("write store marker", err)
		}
		if _, err := env.Q.ExecContext(ctx, env.SQL.SetMeta, metaVersionKey, want); err != nil {
			return wrapSQL("write store version", err)
		}
		return nil
	case err != nil:
		return wrapSQL("read store marker", err)
	case magic != metaMagic:
		return oderrors.Schema("database is not an objectdb store (marker %q)", magic)
	}

	var have string
	if err := env.Q.QueryRowContext(ctx, env.SQL.GetMeta, metaVersionKey).Scan(&have); err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return oderrors.VersionMismatch("none", want)
		}
		return wrapSQL("read store version", err)
	}
	if have != want {
		return oderrors.VersionMismatch(have, want)
	}
	return nil
}

// Close commits pending work and releases the connection.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.db == nil {
		return nil
	}
	err := db.commit()
	if err != nil {
		db.rollback()
	}
	if cerr := db.db.Close(); cerr != nil && err == nil {
		err = oderrors.Wrap(oderrors.KindIO, "close database", cerr)
	}
	db.db = nil
	if aerr := db.adapter.Close(); aerr != nil && err == nil {
		err = oderrors.Wrap(oderrors.KindIO, "close adapter", aerr)
	}
	return err
}

// Commit makes all work since the previous commit durable.
func (db *DB) Commit(ctx context.Context) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.commit()
}

// Metrics returns the collectors of this handle.
func (db *DB) Metrics() *Metrics { return db.metrics }

func (db *DB) commit() error {
	if db.tx == nil {
		return nil
	}
	tx := db.tx
	db.tx = nil
	if err := tx.Commit(); err != nil {
		return wrapSQL("commit", err)
	}
	return nil
}

func (db *DB) rollback() {
	if db.tx == nil {
		return
	}
	if err := db.tx.Rollback(); err != nil && !stderrors.Is(err, sql.ErrTxDone) {
		db.log.Warn("rollback failed", zap.Error(err))
	}
	db.tx = nil
}

// begin opens the long-lived transaction on first use. It outlives the
// context of the call that opened it.
func (db *DB) begin(ctx context.Context) (*sql.Tx, error) {
	if db.db == nil {
		return nil, oderrors.New(oderrors.KindIO, "store is closed")
	}
	if db.tx != nil {
		return db.tx, nil
	}
	tx, err := db.db.BeginTx(context.WithoutCancel(ctx), nil)
	if err != nil {
		return nil, wrapSQL("begin transaction", err)
	}
	db.tx = tx
	return tx, nil
}

func (db *DB) env(q storage.Queryer) *ops.Env {
	return &ops.Env{
		Q:       q,
		Dialect: db.adapter.Dialect(),
		SQL:     db.adapter.SQL(),
		Codec:   db.codec,
		Schema:  db.reg,
		Log:     db.log,
	}
}

// withSavepoint runs fn inside a savepoint of the long-lived transaction.
// The savepoint is rolled back when fn fails. Callers hold db.mu.
func (db *DB) withSavepoint(ctx context.Context, fn func(env *ops.Env) error) error {
	tx, err := db.begin(ctx)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "SAVEPOINT "+savepointName); err != nil {
		return wrapSQL("open savepoint", err)
	}

	if err := fn(db.env(tx)); err != nil {
		bg := context.WithoutCancel(ctx)
		if _, rbErr := tx.ExecContext(bg, "ROLLBACK TO SAVEPOINT "+savepointName); rbErr != nil {
			db.log.Error("savepoint rollback failed, discarding uncommitted work", zap.Error(rbErr))
			db.rollback()
			return err
		}
		if _, relErr := tx.ExecContext(bg, "RELEASE SAVEPOINT "+savepointName); relErr != nil {
			db.log.Warn("savepoint release failed", zap.Error(relErr))
		}
		return err
	}

	if _, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT "+savepointName); err != nil {
		return wrapSQL("release savepoint", err)
	}
	return nil
}

// Vacuum removes terms no object references any more, commits, and lets
// the backend reclaim space.
func (db *DB) Vacuum(ctx context.Context) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	var swept int64
	err := db.withSavepoint(ctx, func(env *ops.Env) error {
		for _, name := range db.reg.indexNames() {
			n, err := ops.Sweep(ctx, env, name)
			if err != nil {
				return wrapSQL("sweep terms", err)
			}
			swept += n
		}
		return nil
	})
	if err != nil {
		return err
	}
	if err := db.commit(); err != nil {
		return err
	}
	if err := db.adapter.Optimize(ctx, db.db); err != nil {
		return wrapSQL("optimize", err)
	}
	db.log.Info("vacuumed store", zap.Int64("terms_removed", swept))
	return nil
}
