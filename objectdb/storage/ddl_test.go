package storage_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ministore/objectdb/objectdb/schema"
	"github.com/ministore/objectdb/objectdb/storage"
	"github.com/ministore/objectdb/objectdb/storage/postgres"
	"github.com/ministore/objectdb/objectdb/storage/sqlite"
)

func docType() *schema.ObjectType {
	return &schema.ObjectType{
		Name: "doc",
		Attrs: map[string]schema.AttributeDef{
			"title":  {Kind: schema.KindText, Flags: schema.AttrIndexedIgnoreCase},
			"rating": {Kind: schema.KindInt, Flags: schema.AttrIndexed},
			"draft":  {Kind: schema.KindBool, Flags: schema.AttrSearchable},
			"body":   {Kind: schema.KindText, Flags: schema.AttrSimple},
		},
		Indexes: [][]string{{"rating", "draft"}},
	}
}

func TestObjectColumns(t *testing.T) {
	assert.Equal(t,
		[]string{"id", "parent_type", "parent_id", "pickle", "draft", "rating", "title", "title__lower"},
		storage.ObjectColumns(docType()))
}

func TestCreateObjectTable(t *testing.T) {
	stmt := storage.CreateObjectTable(sqlite.Dialect, "objects_doc", docType())
	assert.Contains(t, stmt, `CREATE TABLE "objects_doc"`)
	assert.Contains(t, stmt, `"id" INTEGER PRIMARY KEY AUTOINCREMENT`)
	assert.Contains(t, stmt, `"rating" INTEGER`)
	assert.Contains(t, stmt, `"title__lower" TEXT`)
	assert.NotContains(t, stmt, `"body"`)

	stmt = storage.CreateObjectTable(postgres.Dialect, "objects_doc", docType())
	assert.Contains(t, stmt, `"id" BIGSERIAL PRIMARY KEY`)
	assert.Contains(t, stmt, `"draft" SMALLINT`)
	assert.Contains(t, stmt, `"pickle" BYTEA`)
}

func TestObjectTableIndexes(t *testing.T) {
	stmts := storage.ObjectTableIndexes(sqlite.Dialect, docType())
	require.Len(t, stmts, 4)
	assert.Contains(t, stmts[0], `("parent_type", "parent_id")`)
	joined := strings.Join(stmts, "\n")
	assert.Contains(t, joined, `"idx_objects_doc_rating"`)
	assert.Contains(t, joined, `"idx_objects_doc_title__lower" ON "objects_doc" ("title__lower")`)
	assert.Contains(t, joined, `"idx_objects_doc__rating_draft" ON "objects_doc" ("rating", "draft")`)
	assert.NotContains(t, joined, `("draft")`)
}

func TestInvertedIndexDDL(t *testing.T) {
	stmts := storage.InvertedIndexDDL(postgres.Dialect, "words")
	require.Len(t, stmts, 4)
	assert.Contains(t, stmts[0], `"ivtidx_words_terms"`)
	assert.Contains(t, stmts[0], "term_lower TEXT NOT NULL UNIQUE")
	assert.Contains(t, stmts[1], `"ivtidx_words_terms_map"`)
	assert.Contains(t, stmts[1], "frequency DOUBLE PRECISION NOT NULL")
	assert.Contains(t, stmts[1], "PRIMARY KEY (term_id, object_type, object_id)")
}

func TestDialectParams(t *testing.T) {
	assert.Equal(t, "$3", postgres.Dialect.Param(3))
	assert.Equal(t, `"a"`, sqlite.Dialect.Quote("a"))

	b := postgres.Dialect.Builder()
	assert.Equal(t, "$1", b.Arg(10))
	assert.Equal(t, []any{10}, b.Args())
}
