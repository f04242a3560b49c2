package postgres

import (
	"github.com/ministore/objectdb/objectdb/storage"
	"github.com/ministore/objectdb/objectdb/storage/sqlbuilder"
)

// Booleans are stored as 0/1 like on SQLite so that both backends scan the
// same column values.
var Dialect = storage.Dialect{
	Placeholder: sqlbuilder.PlaceholderDollar,
	IntType:     "BIGINT",
	FloatType:   "DOUBLE PRECISION",
	TextType:    "TEXT",
	BlobType:    "BYTEA",
	BoolType:    "SMALLINT",
	PrimaryKey:  "BIGSERIAL PRIMARY KEY",
	RegexpOp:    "~",

	SyncSequence: `SELECT setval(pg_get_serial_sequence('%[2]s', 'id'), COALESCE((SELECT MAX(id) FROM %[1]s), 0) + 1, false)`,
}

var SQLTemplates = storage.SQL{
	GetMeta: "SELECT value FROM meta WHERE key = $1",
	SetMeta: "INSERT INTO meta(key,value) VALUES($1,$2) ON CONFLICT(key) DO UPDATE SET value=EXCLUDED.value",

	ListTypes:  "SELECT id, name, attrs_json FROM types ORDER BY id",
	InsertType: "INSERT INTO types(name, attrs_json) VALUES($1, $2) RETURNING id",
	UpdateType: "UPDATE types SET attrs_json = $1 WHERE id = $2",

	ListIndexes: "SELECT name, min_len, max_len, ignore_json, object_count FROM inverted_indexes ORDER BY name",
	UpsertIndex: `INSERT INTO inverted_indexes(name, min_len, max_len, ignore_json, object_count)
	        VALUES($1, $2, $3, $4, 0)
	        ON CONFLICT(name) DO UPDATE
	          SET min_len=EXCLUDED.min_len,
	              max_len=EXCLUDED.max_len,
	              ignore_json=EXCLUDED.ignore_json`,
	AddObjectCount: "UPDATE inverted_indexes SET object_count = GREATEST(object_count + $1::bigint, 0) WHERE name = $2",
	SetObjectCount: "UPDATE inverted_indexes SET object_count = $1 WHERE name = $2",
	GetObjectCount: "SELECT object_count FROM inverted_indexes WHERE name = $1",
}

const sizeQuery = `SELECT COALESCE(SUM(pg_total_relation_size(c.oid)), 0)::bigint
	FROM pg_class c JOIN pg_namespace n ON n.oid = c.relnamespace
	WHERE n.nspname = $1 AND c.relkind = 'r'`
