package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/ministore/objectdb/objectdb/storage"
)

const (
	DriverModernc = "sqlite"

	busyTimeoutMS = 5000
)

type Adapter struct {
	Path       string
	DriverName string
}

func New(path string) *Adapter {
	return &Adapter{Path: path, DriverName: DriverModernc}
}

// NewWithDriver selects the database/sql driver. "sqlite3" and DriverMattn
// both resolve to the cgo driver.
func NewWithDriver(path, driver string) *Adapter {
	if driver == "sqlite3" {
		driver = DriverMattn
	}
	return &Adapter{Path: path, DriverName: driver}
}

func (a *Adapter) Backend() storage.Backend { return storage.BackendSQLite }

func (a *Adapter) Dialect() storage.Dialect { return Dialect }

func (a *Adapter) StoreID() string { return a.Path }

func (a *Adapter) SQL() storage.SQL { return SQLTemplates }

func (a *Adapter) dsn() string {
	sep := "?"
	if strings.Contains(a.Path, "?") {
		sep = "&"
	}
	switch a.DriverName {
	case DriverMattn:
		return fmt.Sprintf("%s%s_busy_timeout=%d", a.Path, sep, busyTimeoutMS)
	default:
		return fmt.Sprintf("%s%s_pragma=busy_timeout(%d)", a.Path, sep, busyTimeoutMS)
	}
}

func (a *Adapter) Connect(ctx context.Context) (*sql.DB, error) {
	switch a.DriverName {
	case DriverMattn:
		registerMattn()
	case DriverModernc:
		if err := registerModernc(); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open(a.DriverName, a.dsn())
	if err != nil {
		return nil, err
	}
	// One writer, and an in-memory database lives on a single connection.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func (a *Adapter) Close() error {
	return nil
}

func (a *Adapter) Init(ctx context.Context, db *sql.DB) error {
	_, _ = db.ExecContext(ctx, "PRAGMA journal_mode=WAL;")
	_, _ = db.ExecContext(ctx, "PRAGMA synchronous=NORMAL;")
	for _, stmt := range storage.BaseDDL(Dialect) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (a *Adapter) Optimize(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, "VACUUM"); err != nil {
		return err
	}
	_, _ = db.ExecContext(ctx, "ANALYZE")
	return nil
}

func (a *Adapter) Size(ctx context.Context, q storage.Queryer) (int64, error) {
	var pages, pageSize int64
	if err := q.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pages); err != nil {
		return 0, err
	}
	if err := q.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize); err != nil {
		return 0, err
	}
	return pages * pageSize, nil
}
