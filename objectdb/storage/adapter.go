package storage

import (
	"context"
	"database/sql"

	"github.com/ministore/objectdb/objectdb/storage/sqlbuilder"
)

type Backend string

const (
	BackendSQLite   Backend = "sqlite"
	BackendPostgres Backend = "postgres"
)

// Adapter abstracts database-specific operations
type Adapter interface {
	Backend() Backend
	Dialect() Dialect
	StoreID() string

	Connect(ctx context.Context) (*sql.DB, error)
	Close() error

	// Init applies session settings and creates the base tables if missing.
	Init(ctx context.Context, db *sql.DB) error
	// Optimize reclaims space. It runs outside any transaction.
	Optimize(ctx context.Context, db *sql.DB) error
	// Size reports the on-disk footprint in bytes.
	Size(ctx context.Context, q Queryer) (int64, error)

	SQL() SQL
}

// SQL holds the fixed statements over the metadata tables. Statements over
// per-type and per-index tables are generated through Dialect.
type SQL struct {
	GetMeta string
	SetMeta string

	ListTypes  string
	InsertType string
	UpdateType string

	ListIndexes    string
	UpsertIndex    string
	AddObjectCount string
	SetObjectCount string
	GetObjectCount string
}

// Queryer is satisfied by *sql.DB, *sql.Tx and *sql.Conn.
type Queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Dialect holds the per-backend SQL vocabulary. All generated statements
// go through it so that only identifiers validated by the schema package
// are ever formatted into SQL text.
type Dialect struct {
	Placeholder sqlbuilder.PlaceholderStyle

	IntType   string
	FloatType string
	TextType  string
	BlobType  string
	BoolType  string

	// PrimaryKey is the column definition of an auto-assigned id.
	PrimaryKey string
	// RegexpOp is the infix operator for the regexp QExpr.
	RegexpOp string
	// SyncSequence, when set, realigns the id sequence of a table after
	// rows were copied in with explicit ids. %[1]s is the quoted table
	// name, %[2]s the bare one.
	SyncSequence string
}

func (d Dialect) Builder() *sqlbuilder.Builder {
	return sqlbuilder.New(d.Placeholder)
}

// Param is the n-th numbered placeholder.
func (d Dialect) Param(n int) string {
	return sqlbuilder.Positional(d.Placeholder, n)
}

// Quote wraps an identifier in double quotes. Identifiers reaching this
// point match ^[A-Za-z_][A-Za-z0-9_]*$.
func (d Dialect) Quote(ident string) string {
	return `"` + ident + `"`
}
