package sqlite

import (
	"github.com/ministore/objectdb/objectdb/storage"
	"github.com/ministore/objectdb/objectdb/storage/sqlbuilder"
)

var Dialect = storage.Dialect{
	Placeholder: sqlbuilder.PlaceholderQuestion,
	IntType:     "INTEGER",
	FloatType:   "REAL",
	TextType:    "TEXT",
	BlobType:    "BLOB",
	BoolType:    "INTEGER",
	PrimaryKey:  "INTEGER PRIMARY KEY AUTOINCREMENT",
	RegexpOp:    "REGEXP",
}

var SQLTemplates = storage.SQL{
	GetMeta: "SELECT value FROM meta WHERE key = ?1",
	SetMeta: "INSERT INTO meta(key,value) VALUES(?1,?2) ON CONFLICT(key) DO UPDATE SET value=excluded.value",

	ListTypes:  "SELECT id, name, attrs_json FROM types ORDER BY id",
	InsertType: "INSERT INTO types(name, attrs_json) VALUES(?1, ?2) RETURNING id",
	UpdateType: "UPDATE types SET attrs_json = ?1 WHERE id = ?2",

	ListIndexes: "SELECT name, min_len, max_len, ignore_json, object_count FROM inverted_indexes ORDER BY name",
	UpsertIndex: `INSERT INTO inverted_indexes(name, min_len, max_len, ignore_json, object_count)
		VALUES(?1, ?2, ?3, ?4, 0)
		ON CONFLICT(name) DO UPDATE SET min_len=excluded.min_len, max_len=excluded.max_len, ignore_json=excluded.ignore_json`,
	AddObjectCount: "UPDATE inverted_indexes SET object_count = CASE WHEN object_count + ?1 > 0 THEN object_count + ?1 ELSE 0 END WHERE name = ?2",
	SetObjectCount: "UPDATE inverted_indexes SET object_count = ?1 WHERE name = ?2",
	GetObjectCount: "SELECT object_count FROM inverted_indexes WHERE name = ?1",
}
