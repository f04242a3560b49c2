package sqlite

import (
	"database/sql"
	"sync"

	"github.com/mattn/go-sqlite3"
)

// DriverMattn is the cgo driver with regexp installed on connect.
const DriverMattn = "objectdb_sqlite3"

var mattnOnce sync.Once

func registerMattn() {
	mattnOnce.Do(func() {
		sql.Register(DriverMattn, &sqlite3.SQLiteDriver{
			ConnectHook: func(conn *sqlite3.SQLiteConn) error {
				return conn.RegisterFunc("regexp", func(pattern, value any) (int64, error) {
					return match(pattern, value)
				}, true)
			},
		})
	})
}
