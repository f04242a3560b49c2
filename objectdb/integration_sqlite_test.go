package objectdb_test

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ministore/objectdb/objectdb"
	"github.com/ministore/objectdb/objectdb/blob"
	"github.com/ministore/objectdb/objectdb/query"
	"github.com/ministore/objectdb/objectdb/storage/sqlite"
)

func openAt(t *testing.T, path string, opts objectdb.Options) *objectdb.DB {
	t.Helper()
	db, err := objectdb.Open(context.Background(), sqlite.New(path), opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// newStore opens a fresh store with an inverted index "keywords", a "doc"
// type and a "note" type whose objects hang below docs or other notes.
func newStore(t *testing.T) (*objectdb.DB, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "objects.db")
	db := openAt(t, path, objectdb.DefaultOptions())
	registerSchema(t, db)
	return db, path
}

func registerSchema(t *testing.T, db *objectdb.DB) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, db.RegisterInvertedIndex(ctx, "keywords", objectdb.InvertedIndexDef{Min: 2, Max: 30}))
	require.NoError(t, db.RegisterObjectType(ctx, "doc", nil, map[string]objectdb.AttributeDef{
		"title":  {Kind: objectdb.KindText, Flags: objectdb.AttrIndexedIgnoreCase},
		"rating": {Kind: objectdb.KindInt, Flags: objectdb.AttrIndexed},
		"body":   {Kind: objectdb.KindText, Flags: objectdb.FlagSimple | objectdb.FlagInvertedIndex, InvertedIndex: "keywords"},
		"tags":   {Kind: objectdb.KindStrings, Flags: objectdb.FlagSimple | objectdb.FlagInvertedIndex, InvertedIndex: "keywords"},
		"data":   {Kind: objectdb.KindBlob, Flags: objectdb.AttrSimple},
	}))
	require.NoError(t, db.RegisterObjectType(ctx, "note", nil, map[string]objectdb.AttributeDef{
		"text": {Kind: objectdb.KindText, Flags: objectdb.FlagSimple | objectdb.FlagInvertedIndex, InvertedIndex: "keywords"},
	}))
}

func addDoc(t *testing.T, db *objectdb.DB, attrs objectdb.Attrs) *objectdb.Object {
	t.Helper()
	o, err := db.Add(context.Background(), "doc", nil, attrs)
	require.NoError(t, err)
	return o
}

func ids(objs []*objectdb.Object) []int64 {
	out := make([]int64, len(objs))
	for i, o := range objs {
		out[i] = o.ID
	}
	return out
}

func search(t *testing.T, db *objectdb.DB, typeName, words string) []*objectdb.Object {
	t.Helper()
	got, err := db.Query(context.Background(), objectdb.Query{
		Type:    typeName,
		Filters: map[string]any{"keywords": words},
	})
	require.NoError(t, err)
	return got
}

func TestAndSemantics_SQLite(t *testing.T) {
	db, _ := newStore(t)

	o1 := addDoc(t, db, objectdb.Attrs{"body": "the cat sat"})
	o2 := addDoc(t, db, objectdb.Attrs{"body": "the dog sat"})
	o3 := addDoc(t, db, objectdb.Attrs{"body": "cat and dog"})

	assert.Equal(t, []int64{o3.ID}, ids(search(t, db, "doc", "cat dog")))
	assert.Equal(t, []int64{o1.ID, o2.ID}, ids(search(t, db, "doc", "sat")))
	assert.Empty(t, search(t, db, "doc", "elephant"))
	assert.Empty(t, search(t, db, "doc", "cat elephant"))

	// Terms shorter than the index minimum vanish from the query.
	assert.Empty(t, search(t, db, "doc", "a"))
}

func TestRankedOrder_SQLite(t *testing.T) {
	db, _ := newStore(t)

	weak := addDoc(t, db, objectdb.Attrs{"body": "apple banana cherry dates"})
	strong := addDoc(t, db, objectdb.Attrs{"body": "apple apple apple banana"})

	got := search(t, db, "doc", "apple")
	require.Len(t, got, 2)
	assert.Equal(t, strong.ID, got[0].ID)
	assert.Equal(t, weak.ID, got[1].ID)
	assert.Greater(t, got[0].Score, got[1].Score)
	assert.Greater(t, got[1].Score, 0.0)

	// A list of terms is searched like the split string.
	got, err := db.Query(context.Background(), objectdb.Query{
		Type:    "doc",
		Filters: map[string]any{"keywords": []string{"Banana", "dates"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{weak.ID}, ids(got))
}

func TestSearchAcrossTypes_SQLite(t *testing.T) {
	db, _ := newStore(t)
	ctx := context.Background()

	d := addDoc(t, db, objectdb.Attrs{"body": "shared word"})
	n, err := db.Add(ctx, "note", &objectdb.ObjectRef{Type: "doc", ID: d.ID}, objectdb.Attrs{"text": "shared"})
	require.NoError(t, err)

	got := search(t, db, "", "shared")
	require.Len(t, got, 2)
	refs := []objectdb.ObjectRef{got[0].Ref(), got[1].Ref()}
	assert.ElementsMatch(t, []objectdb.ObjectRef{d.Ref(), n.Ref()}, refs)
	// The note holds only the shared term, so it ranks first.
	assert.Equal(t, "note", got[0].Type)

	got = search(t, db, "note", "shared")
	require.Len(t, got, 1)
	require.NotNil(t, got[0].Parent)
	assert.Equal(t, d.Ref(), *got[0].Parent)
}

func TestRoundTrip_SQLite(t *testing.T) {
	db, _ := newStore(t)

	obj := addDoc(t, db, objectdb.Attrs{
		"title":  "Hello World",
		"rating": 5,
		"body":   "some body text",
		"tags":   []string{"red", "green"},
		"data":   []byte{0x01, 0x02, 0x03},
	})
	require.NotZero(t, obj.ID)
	assert.Equal(t, int64(5), obj.Attrs["rating"])

	got, err := db.Query(context.Background(), objectdb.Query{
		Type:    "doc",
		Filters: map[string]any{"id": obj.ID},
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, obj.ID, got[0].ID)
	assert.Equal(t, "doc", got[0].Type)
	assert.Nil(t, got[0].Parent)
	assert.Equal(t, obj.Attrs, got[0].Attrs)
	assert.Zero(t, got[0].Score)
}

func TestRelationalFilters_SQLite(t *testing.T) {
	db, _ := newStore(t)
	ctx := context.Background()

	a := addDoc(t, db, objectdb.Attrs{"title": "Hello World", "rating": 1})
	b := addDoc(t, db, objectdb.Attrs{"title": "Goodbye", "rating": 3})
	c := addDoc(t, db, objectdb.Attrs{"title": "hello again", "rating": 5})
	d := addDoc(t, db, objectdb.Attrs{"rating": 7})

	cases := []struct {
		name    string
		filters map[string]any
		want    []int64
	}{
		{"ignore case equality", map[string]any{"title": "HELLO WORLD"}, []int64{a.ID}},
		{"like", map[string]any{"title": query.Like("hello%")}, []int64{a.ID, c.ID}},
		{"regexp", map[string]any{"title": query.Regexp("^GOOD")}, []int64{b.ID}},
		{"range", map[string]any{"rating": query.Range(2, 5)}, []int64{b.ID, c.ID}},
		{"greater", map[string]any{"rating": query.Gt(3)}, []int64{c.ID, d.ID}},
		{"in", map[string]any{"rating": query.In(1, 7)}, []int64{a.ID, d.ID}},
		{"empty in", map[string]any{"rating": query.In()}, []int64{}},
		{"is null", map[string]any{"title": nil}, []int64{d.ID}},
		{"not null", map[string]any{"title": query.Ne(nil)}, []int64{a.ID, b.ID, c.ID}},
		{"id", map[string]any{"id": query.In(b.ID, d.ID)}, []int64{b.ID, d.ID}},
		{"combined", map[string]any{"title": query.Like("%o%"), "rating": query.Lte(3)}, []int64{a.ID, b.ID}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := db.Query(ctx, objectdb.Query{Type: "doc", Filters: tc.filters})
			require.NoError(t, err)
			assert.Equal(t, tc.want, append([]int64{}, ids(got)...))
		})
	}
}

func TestProjectionDistinctLimit_SQLite(t *testing.T) {
	db, _ := newStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		addDoc(t, db, objectdb.Attrs{"title": "same", "rating": i, "body": "text"})
	}

	got, err := db.Query(ctx, objectdb.Query{Type: "doc", Attrs: []string{"title"}})
	require.NoError(t, err)
	require.Len(t, got, 5)
	assert.Equal(t, objectdb.Attrs{"title": "same"}, got[0].Attrs)

	got, err = db.Query(ctx, objectdb.Query{Type: "doc", Attrs: []string{"id"}})
	require.NoError(t, err)
	require.Len(t, got, 5)
	assert.Empty(t, got[0].Attrs)

	got, err = db.Query(ctx, objectdb.Query{Type: "doc", Limit: 2})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = db.Query(ctx, objectdb.Query{Type: "doc", Attrs: []string{"title"}, Distinct: true})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "same", got[0].Attrs["title"])

	_, err = db.Query(ctx, objectdb.Query{Type: "doc", Attrs: []string{"body"}, Distinct: true})
	assert.True(t, objectdb.IsKind(err, objectdb.ErrQueryRejected), "got %v", err)
}

func TestParentFilter_SQLite(t *testing.T) {
	db, _ := newStore(t)
	ctx := context.Background()

	d1 := addDoc(t, db, objectdb.Attrs{"title": "one"})
	d2 := addDoc(t, db, objectdb.Attrs{"title": "two"})
	n1, err := db.Add(ctx, "note", &objectdb.ObjectRef{Type: "doc", ID: d1.ID}, objectdb.Attrs{"text": "first"})
	require.NoError(t, err)
	n2, err := db.Add(ctx, "note", &objectdb.ObjectRef{Type: "doc", ID: d2.ID}, objectdb.Attrs{"text": "second"})
	require.NoError(t, err)
	_, err = db.Add(ctx, "note", nil, objectdb.Attrs{"text": "orphan"})
	require.NoError(t, err)

	got, err := db.Query(ctx, objectdb.Query{Type: "note", Parent: &objectdb.ParentFilter{Type: "doc", ID: d1.ID}})
	require.NoError(t, err)
	assert.Equal(t, []int64{n1.ID}, ids(got))

	got, err = db.Query(ctx, objectdb.Query{Type: "note", Parent: &objectdb.ParentFilter{Type: "doc"}})
	require.NoError(t, err)
	assert.Equal(t, []int64{n1.ID, n2.ID}, ids(got))

	got, err = db.Query(ctx, objectdb.Query{Type: "note", Parent: &objectdb.ParentFilter{Type: "doc", ID: query.Gt(d1.ID)}})
	require.NoError(t, err)
	assert.Equal(t, []int64{n2.ID}, ids(got))
}

func TestUpdate_SQLite(t *testing.T) {
	db, _ := newStore(t)
	ctx := context.Background()

	d1 := addDoc(t, db, objectdb.Attrs{"title": "first"})
	obj := addDoc(t, db, objectdb.Attrs{"title": "Original", "body": "red fish", "rating": 2})

	require.NoError(t, db.Update(ctx, obj.Ref(), nil, objectdb.Attrs{"body": "blue fish", "rating": nil}))

	// Old postings are gone, new ones are in place.
	assert.Empty(t, search(t, db, "doc", "red"))
	assert.Equal(t, []int64{obj.ID}, ids(search(t, db, "doc", "blue")))
	assert.Equal(t, []int64{obj.ID}, ids(search(t, db, "doc", "fish")))

	terms, err := db.InvertedIndexTerms(ctx, "keywords", nil, "")
	require.NoError(t, err)
	assert.ElementsMatch(t, []objectdb.TermCount{{Term: "blue", Count: 1}, {Term: "fish", Count: 1}}, terms)

	got, err := db.Query(ctx, objectdb.Query{Type: "doc", Filters: map[string]any{"id": obj.ID}})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, objectdb.Attrs{"title": "Original", "body": "blue fish"}, got[0].Attrs)

	// Re-parent, then detach.
	require.NoError(t, db.Update(ctx, obj.Ref(), &objectdb.ObjectRef{Type: "doc", ID: d1.ID}, nil))
	got, err = db.Query(ctx, objectdb.Query{Type: "doc", Parent: &objectdb.ParentFilter{Type: "doc", ID: d1.ID}})
	require.NoError(t, err)
	assert.Equal(t, []int64{obj.ID}, ids(got))

	require.NoError(t, db.Update(ctx, obj.Ref(), &objectdb.ObjectRef{}, nil))
	got, err = db.Query(ctx, objectdb.Query{Type: "doc", Filters: map[string]any{"id": obj.ID}})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Nil(t, got[0].Parent)

	err = db.Update(ctx, objectdb.ObjectRef{Type: "doc", ID: 9999}, nil, objectdb.Attrs{"title": "x"})
	assert.True(t, objectdb.IsKind(err, objectdb.ErrNotFound), "got %v", err)
}

func TestDeleteCascadeAndTermCounts_SQLite(t *testing.T) {
	db, _ := newStore(t)
	ctx := context.Background()

	root := addDoc(t, db, objectdb.Attrs{"body": "zebra stripes"})
	other := addDoc(t, db, objectdb.Attrs{"body": "zebra"})
	n1, err := db.Add(ctx, "note", &objectdb.ObjectRef{Type: "doc", ID: root.ID}, objectdb.Attrs{"text": "child stripes"})
	require.NoError(t, err)
	_, err = db.Add(ctx, "note", &objectdb.ObjectRef{Type: "note", ID: n1.ID}, objectdb.Attrs{"text": "grandchild"})
	require.NoError(t, err)

	terms, err := db.InvertedIndexTerms(ctx, "keywords", nil, "zeb")
	require.NoError(t, err)
	assert.Equal(t, []objectdb.TermCount{{Term: "zebra", Count: 2}}, terms)

	n, err := db.Delete(ctx, root.Ref())
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	notes, err := db.Query(ctx, objectdb.Query{Type: "note"})
	require.NoError(t, err)
	assert.Empty(t, notes)

	terms, err = db.InvertedIndexTerms(ctx, "keywords", nil, "")
	require.NoError(t, err)
	assert.Equal(t, []objectdb.TermCount{{Term: "zebra", Count: 1}}, terms)
	assert.Equal(t, []int64{other.ID}, ids(search(t, db, "", "zebra")))
	assert.Empty(t, search(t, db, "", "stripes"))

	// Deleting again is a no-op.
	n, err = db.Delete(ctx, root.Ref())
	require.NoError(t, err)
	assert.Zero(t, n)

	info, err := db.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), info.Objects["doc"])
	assert.Equal(t, int64(0), info.Objects["note"])
	kw := info.Indexes["keywords"]
	assert.Equal(t, int64(1), kw.ObjectCount)
	assert.Equal(t, int64(1), kw.LiveTerms)
	assert.Equal(t, int64(1), kw.Postings)
	assert.Greater(t, kw.Terms, kw.LiveTerms)

	require.NoError(t, db.Vacuum(ctx))
	info, err = db.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), info.Indexes["keywords"].Terms)
	assert.Greater(t, info.SizeBytes, int64(0))

	assert.Equal(t, 3.0, testutil.ToFloat64(db.Metrics().ObjectsDeleted))
}

func TestDeleteByQuery_SQLite(t *testing.T) {
	db, _ := newStore(t)
	ctx := context.Background()

	keep := addDoc(t, db, objectdb.Attrs{"rating": 1})
	drop := addDoc(t, db, objectdb.Attrs{"rating": 5})
	addDoc(t, db, objectdb.Attrs{"rating": 9})
	_, err := db.Add(ctx, "note", &objectdb.ObjectRef{Type: "doc", ID: drop.ID}, objectdb.Attrs{"text": "bye"})
	require.NoError(t, err)

	n, err := db.DeleteByQuery(ctx, objectdb.Query{Type: "doc", Filters: map[string]any{"rating": query.Gte(5)}})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	got, err := db.Query(ctx, objectdb.Query{})
	require.NoError(t, err)
	assert.Equal(t, []int64{keep.ID}, ids(got))
}

func TestTermsAssociated_SQLite(t *testing.T) {
	db, _ := newStore(t)
	ctx := context.Background()

	addDoc(t, db, objectdb.Attrs{"body": "go rust zig"})
	addDoc(t, db, objectdb.Attrs{"body": "go rust"})
	addDoc(t, db, objectdb.Attrs{"body": "go python"})

	got, err := db.InvertedIndexTerms(ctx, "keywords", []string{"GO"}, "")
	require.NoError(t, err)
	assert.Equal(t, []objectdb.TermCount{
		{Term: "rust", Count: 2},
		{Term: "python", Count: 1},
		{Term: "zig", Count: 1},
	}, got)

	got, err = db.InvertedIndexTerms(ctx, "keywords", []string{"go", "rust"}, "z")
	require.NoError(t, err)
	assert.Equal(t, []objectdb.TermCount{{Term: "zig", Count: 1}}, got)

	_, err = db.InvertedIndexTerms(ctx, "missing", nil, "")
	assert.True(t, objectdb.IsKind(err, objectdb.ErrUnknownIndex), "got %v", err)
}

func TestSchemaEvolution_SQLite(t *testing.T) {
	db, path := newStore(t)
	ctx := context.Background()

	obj := addDoc(t, db, objectdb.Attrs{"title": "Kept", "rating": 4, "body": "evolve"})

	// Re-registering the same definition is a no-op.
	registerSchema(t, db)
	assert.Zero(t, testutil.ToFloat64(db.Metrics().TableRebuilds))

	// SIMPLE additions and new multi-column indexes apply in place.
	require.NoError(t, db.RegisterObjectType(ctx, "doc", [][]string{{"title", "rating"}}, map[string]objectdb.AttributeDef{
		"extra": {Kind: objectdb.KindInt, Flags: objectdb.AttrSimple},
	}))
	assert.Zero(t, testutil.ToFloat64(db.Metrics().TableRebuilds))

	// A new SEARCHABLE attribute rebuilds the table and keeps the rows.
	require.NoError(t, db.RegisterObjectType(ctx, "doc", nil, map[string]objectdb.AttributeDef{
		"author": {Kind: objectdb.KindText, Flags: objectdb.AttrIndexedIgnoreCase},
	}))
	assert.Equal(t, 1.0, testutil.ToFloat64(db.Metrics().TableRebuilds))

	got, err := db.Query(ctx, objectdb.Query{Type: "doc", Filters: map[string]any{"author": nil}})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, obj.Attrs, got[0].Attrs)
	assert.Equal(t, []int64{obj.ID}, ids(search(t, db, "doc", "evolve")))

	// New ids continue after the copied ones.
	next := addDoc(t, db, objectdb.Attrs{"author": "Ann", "extra": 1})
	assert.Greater(t, next.ID, obj.ID)
	got, err = db.Query(ctx, objectdb.Query{Type: "doc", Filters: map[string]any{"author": "ANN"}})
	require.NoError(t, err)
	assert.Equal(t, []int64{next.ID}, ids(got))

	// Kind changes and simple/searchable conversions are refused.
	err = db.RegisterObjectType(ctx, "doc", nil, map[string]objectdb.AttributeDef{
		"rating": {Kind: objectdb.KindFloat, Flags: objectdb.AttrIndexed},
	})
	assert.True(t, objectdb.IsKind(err, objectdb.ErrSchema), "got %v", err)
	err = db.RegisterObjectType(ctx, "doc", nil, map[string]objectdb.AttributeDef{
		"data": {Kind: objectdb.KindBlob, Flags: objectdb.AttrSearchable},
	})
	assert.True(t, objectdb.IsKind(err, objectdb.ErrSchema), "got %v", err)

	// The evolved schema survives a reopen.
	require.NoError(t, db.Close())
	db = openAt(t, path, objectdb.DefaultOptions())
	var doc objectdb.ObjectType
	for _, ot := range db.ObjectTypes() {
		if ot.Name == "doc" {
			doc = ot
		}
	}
	require.Contains(t, doc.Attrs, "author")
	require.Contains(t, doc.Attrs, "extra")
	assert.Equal(t, [][]string{{"title", "rating"}}, doc.Indexes)
	defs, err := db.InvertedIndexes(ctx)
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, 2, defs[0].Min)
}

func TestInvertedIndexRedefinition_SQLite(t *testing.T) {
	db, _ := newStore(t)
	ctx := context.Background()

	obj := addDoc(t, db, objectdb.Attrs{"body": "of mice"})
	require.NoError(t, db.RegisterInvertedIndex(ctx, "keywords", objectdb.InvertedIndexDef{Min: 3}))

	// Existing postings keep their old terms.
	assert.Equal(t, []int64{obj.ID}, ids(search(t, db, "doc", "mice")))
	fresh := addDoc(t, db, objectdb.Attrs{"body": "of men"})
	assert.Equal(t, []int64{fresh.ID}, ids(search(t, db, "doc", "men")))

	terms, err := db.InvertedIndexTerms(ctx, "keywords", nil, "of")
	require.NoError(t, err)
	assert.Equal(t, []objectdb.TermCount{{Term: "of", Count: 1}}, terms)

	err = db.RegisterInvertedIndex(ctx, "title", objectdb.InvertedIndexDef{})
	assert.True(t, objectdb.IsKind(err, objectdb.ErrSchema), "got %v", err)
}

func TestErrors_SQLite(t *testing.T) {
	db, _ := newStore(t)
	ctx := context.Background()

	_, err := db.Add(ctx, "missing", nil, nil)
	assert.True(t, objectdb.IsKind(err, objectdb.ErrUnknownType), "got %v", err)

	_, err = db.Add(ctx, "doc", nil, objectdb.Attrs{"nope": 1})
	assert.True(t, objectdb.IsKind(err, objectdb.ErrUnknownAttribute), "got %v", err)

	_, err = db.Add(ctx, "doc", nil, objectdb.Attrs{"rating": "high"})
	assert.True(t, objectdb.IsKind(err, objectdb.ErrTypeMismatch), "got %v", err)

	_, err = db.Add(ctx, "note", &objectdb.ObjectRef{Type: "missing", ID: 1}, nil)
	assert.True(t, objectdb.IsKind(err, objectdb.ErrUnknownType), "got %v", err)

	err = db.RegisterObjectType(ctx, "bad", nil, map[string]objectdb.AttributeDef{
		"id": {Kind: objectdb.KindInt, Flags: objectdb.AttrSearchable},
	})
	assert.True(t, objectdb.IsKind(err, objectdb.ErrSchema), "got %v", err)

	err = db.RegisterObjectType(ctx, "bad", nil, map[string]objectdb.AttributeDef{
		"both": {Kind: objectdb.KindInt, Flags: objectdb.FlagSimple | objectdb.FlagSearchable},
	})
	assert.True(t, objectdb.IsKind(err, objectdb.ErrSchema), "got %v", err)

	err = db.RegisterObjectType(ctx, "bad", nil, map[string]objectdb.AttributeDef{
		"words": {Kind: objectdb.KindText, Flags: objectdb.FlagSimple | objectdb.FlagInvertedIndex, InvertedIndex: "unregistered"},
	})
	assert.True(t, objectdb.IsKind(err, objectdb.ErrSchema), "got %v", err)

	_, err = db.Query(ctx, objectdb.Query{Type: "doc", Filters: map[string]any{"body": "x"}})
	assert.True(t, objectdb.IsKind(err, objectdb.ErrQueryRejected), "got %v", err)

	_, err = db.Query(ctx, objectdb.Query{Type: "doc", Filters: map[string]any{"nope": 1}})
	assert.True(t, objectdb.IsKind(err, objectdb.ErrUnknownAttribute), "got %v", err)

	_, err = db.Query(ctx, objectdb.Query{Type: "doc", Filters: map[string]any{"rating": query.QExpr{Op: query.OpRange, Operand: []any{1}}}})
	assert.True(t, objectdb.IsKind(err, objectdb.ErrQueryRejected), "got %v", err)

	// Failed calls leave nothing behind.
	got, err := db.Query(ctx, objectdb.Query{})
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Len(t, db.ObjectTypes(), 2)
}

func TestBatch_SQLite(t *testing.T) {
	db, _ := newStore(t)
	ctx := context.Background()

	victim := addDoc(t, db, objectdb.Attrs{"title": "victim"})

	b := objectdb.NewBatch()
	require.NoError(t, b.Add("doc", nil, objectdb.Attrs{"title": "a", "body": "batch word"}))
	require.NoError(t, b.Add("doc", nil, objectdb.Attrs{"title": "b"}))
	require.NoError(t, b.Delete(victim.Ref()))
	n, err := db.Apply(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	got, err := db.Query(ctx, objectdb.Query{Type: "doc"})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Len(t, search(t, db, "doc", "batch"), 1)

	// One bad operation rolls back the whole batch.
	bad := objectdb.NewBatch()
	require.NoError(t, bad.Add("doc", nil, objectdb.Attrs{"title": "c"}))
	require.NoError(t, bad.Add("doc", nil, objectdb.Attrs{"rating": "nope"}))
	_, err = db.Apply(ctx, bad)
	assert.True(t, objectdb.IsKind(err, objectdb.ErrTypeMismatch), "got %v", err)

	got, err = db.Query(ctx, objectdb.Query{Type: "doc"})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, 3.0, testutil.ToFloat64(db.Metrics().ObjectsAdded))
}

func TestPersistenceAndVersion_SQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "objects.db")
	ctx := context.Background()

	db := openAt(t, path, objectdb.DefaultOptions())
	registerSchema(t, db)
	obj := addDoc(t, db, objectdb.Attrs{"title": "durable", "body": "persisted words"})
	require.NoError(t, db.Commit(ctx))
	require.NoError(t, db.Close())

	db = openAt(t, path, objectdb.DefaultOptions())
	assert.Equal(t, []int64{obj.ID}, ids(search(t, db, "doc", "persisted")))
	require.NoError(t, db.Close())

	raw, err := sql.Open(sqlite.DriverModernc, path)
	require.NoError(t, err)
	_, err = raw.Exec("UPDATE meta SET value = '99' WHERE key = 'objectdb_version'")
	require.NoError(t, err)
	require.NoError(t, raw.Close())

	_, err = objectdb.Open(ctx, sqlite.New(path), objectdb.DefaultOptions())
	assert.True(t, objectdb.IsKind(err, objectdb.ErrVersionMismatch), "got %v", err)
}

func TestForeignDatabase_SQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "foreign.db")

	raw, err := sql.Open(sqlite.DriverModernc, path)
	require.NoError(t, err)
	_, err = raw.Exec("CREATE TABLE meta (key TEXT PRIMARY KEY, value TEXT NOT NULL)")
	require.NoError(t, err)
	_, err = raw.Exec("INSERT INTO meta(key, value) VALUES ('objectdb_magic', 'something-else')")
	require.NoError(t, err)
	require.NoError(t, raw.Close())

	_, err = objectdb.Open(context.Background(), sqlite.New(path), objectdb.DefaultOptions())
	assert.True(t, objectdb.IsKind(err, objectdb.ErrSchema), "got %v", err)
}

func TestCompressedBlob_SQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "objects.db")
	opts := objectdb.DefaultOptions()
	opts.Codec = blob.Codec{Compression: blob.CompressionZSTD, MinSize: 16}

	db := openAt(t, path, opts)
	registerSchema(t, db)
	long := strings.Repeat("compressible text ", 200)
	obj := addDoc(t, db, objectdb.Attrs{"body": long, "data": []byte(long)})
	require.NoError(t, db.Close())

	db = openAt(t, path, opts)
	got, err := db.Query(context.Background(), objectdb.Query{Type: "doc", Filters: map[string]any{"id": obj.ID}})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, long, got[0].Attrs["body"])
	assert.Equal(t, []byte(long), got[0].Attrs["data"])
}

func TestRegisterFreshTypes_SQLite(t *testing.T) {
	db, _ := newStore(t)
	ctx := context.Background()

	// Types registered into an empty store are created, never rebuilt.
	assert.Zero(t, testutil.ToFloat64(db.Metrics().TableRebuilds))
	names := []string{}
	for _, ot := range db.ObjectTypes() {
		names = append(names, ot.Name)
	}
	assert.Equal(t, []string{"doc", "note"}, names)

	require.NoError(t, db.RegisterObjectType(ctx, "memo", [][]string{{"subject", "priority"}}, map[string]objectdb.AttributeDef{
		"subject":  {Kind: objectdb.KindText, Flags: objectdb.AttrIndexedIgnoreCase},
		"priority": {Kind: objectdb.KindInt, Flags: objectdb.AttrIndexed},
		"text":     {Kind: objectdb.KindText, Flags: objectdb.FlagSimple | objectdb.FlagInvertedIndex, InvertedIndex: "keywords"},
	}))
	assert.Zero(t, testutil.ToFloat64(db.Metrics().TableRebuilds))

	memo, err := db.Add(ctx, "memo", nil, objectdb.Attrs{"subject": "Lunch", "priority": 2, "text": "sandwich order"})
	require.NoError(t, err)
	got, err := db.Query(ctx, objectdb.Query{Type: "memo", Filters: map[string]any{"subject": "LUNCH", "keywords": "sandwich"}})
	require.NoError(t, err)
	assert.Equal(t, []int64{memo.ID}, ids(got))
}

func TestInvertedIndexObjectCount_SQLite(t *testing.T) {
	db, _ := newStore(t)
	ctx := context.Background()

	count := func() int64 {
		t.Helper()
		defs, err := db.InvertedIndexes(ctx)
		require.NoError(t, err)
		require.Len(t, defs, 1)
		return defs[0].ObjectCount
	}
	assert.Equal(t, int64(0), count())

	a := addDoc(t, db, objectdb.Attrs{"body": "first"})
	addDoc(t, db, objectdb.Attrs{"body": "second"})
	_, err := db.Add(ctx, "note", nil, objectdb.Attrs{"text": "third"})
	require.NoError(t, err)
	assert.Equal(t, int64(3), count())

	n, err := db.Delete(ctx, a.Ref())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, int64(2), count())
}

// searchPasses returns the sum and count of the search pass histogram.
func searchPasses(t *testing.T, reg *prometheus.Registry) (float64, uint64) {
	t.Helper()
	mfs, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() == "objectdb_search_passes" {
			h := mf.GetMetric()[0].GetHistogram()
			return h.GetSampleSum(), h.GetSampleCount()
		}
	}
	t.Fatal("objectdb_search_passes not gathered")
	return 0, 0
}

func TestRankedSearchAtScale_SQLite(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	opts := objectdb.DefaultOptions()
	opts.Registerer = reg
	db := openAt(t, filepath.Join(t.TempDir(), "scale.db"), opts)

	require.NoError(t, db.RegisterInvertedIndex(ctx, "words", objectdb.InvertedIndexDef{Min: 2}))
	require.NoError(t, db.RegisterObjectType(ctx, "item", nil, map[string]objectdb.AttributeDef{
		"n":    {Kind: objectdb.KindInt, Flags: objectdb.AttrIndexed},
		"text": {Kind: objectdb.KindText, Flags: objectdb.FlagSimple | objectdb.FlagInvertedIndex, InvertedIndex: "words"},
	}))

	const total = 1200
	vocabulary := []string{"common", "mid", "rare", "lonely"}
	contains := map[string]func(n int) bool{
		"common": func(int) bool { return true },
		"mid":    func(n int) bool { return n%3 == 0 },
		"rare":   func(n int) bool { return n%97 == 0 },
		"lonely": func(n int) bool { return n%97 == 1 },
	}
	// Padding spreads the per-object scores over several rank buckets.
	for n := 0; n < total; n++ {
		var words []string
		for _, w := range vocabulary {
			if contains[w](n) {
				words = append(words, w)
			}
		}
		for i := 0; i < n%9; i++ {
			words = append(words, "pad")
		}
		_, err := db.Add(ctx, "item", nil, objectdb.Attrs{"n": n, "text": strings.Join(words, " ")})
		require.NoError(t, err)
	}
	require.NoError(t, db.Commit(ctx))

	expected := func(q string) map[int64]bool {
		out := map[int64]bool{}
		for n := 0; n < total; n++ {
			all := true
			for _, w := range strings.Fields(q) {
				all = all && contains[w](n)
			}
			if all {
				out[int64(n)] = true
			}
		}
		return out
	}

	// The most common term outgrows the first window.
	got, err := db.Query(ctx, objectdb.Query{Filters: map[string]any{"words": "common"}})
	require.NoError(t, err)
	assert.Len(t, got, total)
	sum, cnt := searchPasses(t, reg)
	assert.Equal(t, uint64(1), cnt)
	assert.Greater(t, sum, 1.0)

	queries := []string{"rare", "mid", "common", "mid common", "common mid", "rare mid common", "rare lonely"}
	for _, q := range queries {
		want := expected(q)
		for _, limit := range []int{0, 1, 5, 50} {
			t.Run(fmt.Sprintf("%s/limit=%d", q, limit), func(t *testing.T) {
				got, err := db.Query(ctx, objectdb.Query{Limit: limit, Filters: map[string]any{"words": q}})
				require.NoError(t, err)

				seen := map[int64]bool{}
				for _, o := range got {
					n, ok := o.Attrs["n"].(int64)
					require.True(t, ok)
					assert.True(t, want[n], "object %d does not contain all of %q", n, q)
					seen[n] = true
				}
				if limit == 0 {
					assert.Equal(t, want, seen)
				} else {
					assert.Len(t, got, min(limit, len(want)))
				}
				for i := 1; i < len(got); i++ {
					assert.GreaterOrEqual(t, got[i-1].Score, got[i].Score)
				}
			})
		}
	}

	sum, cnt = searchPasses(t, reg)
	assert.Greater(t, sum, float64(cnt))
}
