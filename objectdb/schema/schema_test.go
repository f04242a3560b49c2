package schema

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	oderrors "github.com/ministore/objectdb/objectdb/errors"
)

func indexes(names ...string) IndexLookup {
	set := map[string]bool{}
	for _, n := range names {
		set[n] = true
	}
	return func(name string) bool { return set[name] }
}

func movieAttrs() map[string]AttributeDef {
	return map[string]AttributeDef{
		"title":    {Kind: KindText, Flags: AttrIndexedIgnoreCase | FlagInvertedIndex, InvertedIndex: "keywords"},
		"year":     {Kind: KindInt, Flags: AttrIndexed},
		"notes":    {Kind: KindText, Flags: AttrSimple},
		"tags":     {Kind: KindStrings, Flags: AttrSimple | FlagInvertedIndex, InvertedIndex: "keywords"},
		"rating":   {Kind: KindFloat, Flags: AttrSearchable},
		"payload":  {Kind: KindBlob, Flags: AttrSimple},
		"watched":  {Kind: KindBool, Flags: AttrSearchable},
	}
}

func TestPlanCreate(t *testing.T) {
	plan, err := PlanRegistration(nil, "movie", [][]string{{"year", "rating"}}, movieAttrs(), indexes("keywords"))
	require.NoError(t, err)
	assert.Equal(t, ChangeCreate, plan.Change)
	assert.Equal(t, []string{"rating", "title", "watched", "year"}, plan.Type.SearchableInOrder())
	assert.Equal(t, []string{"keywords"}, plan.Type.InvertedIndexes())
	assert.Equal(t, []string{"tags", "title"}, plan.Type.IndexSources("keywords"))
	assert.True(t, plan.Type.Attrs["title"].HasShadow())
	assert.True(t, plan.Type.HasSimple())
}

func TestPlanIdempotent(t *testing.T) {
	plan, err := PlanRegistration(nil, "movie", [][]string{{"year", "rating"}}, movieAttrs(), indexes("keywords"))
	require.NoError(t, err)
	existing := plan.Type
	existing.ID = 7

	again, err := PlanRegistration(existing, "movie", [][]string{{"year", "rating"}}, movieAttrs(), indexes("keywords"))
	require.NoError(t, err)
	assert.Equal(t, ChangeNone, again.Change)
	assert.Empty(t, again.NewIndexes)
	assert.Equal(t, int64(7), again.Type.ID)
}

func TestPlanAdditive(t *testing.T) {
	base, err := PlanRegistration(nil, "movie", nil, movieAttrs(), indexes("keywords"))
	require.NoError(t, err)

	// New SIMPLE attribute and a new multi-column index: no rebuild.
	plan, err := PlanRegistration(base.Type, "movie", [][]string{{"year"}}, map[string]AttributeDef{
		"comment": {Kind: KindText, Flags: AttrSimple},
	}, indexes("keywords"))
	require.NoError(t, err)
	assert.Equal(t, ChangeInPlace, plan.Change)
	assert.Equal(t, [][]string{{"year"}}, plan.NewIndexes)
	// Omitted attributes are kept.
	assert.Contains(t, plan.Type.Attrs, "title")
	assert.Contains(t, plan.Type.Attrs, "comment")

	// New SEARCHABLE attribute: rebuild.
	plan, err = PlanRegistration(base.Type, "movie", nil, map[string]AttributeDef{
		"director": {Kind: KindText, Flags: AttrSearchable},
	}, indexes("keywords"))
	require.NoError(t, err)
	assert.Equal(t, ChangeRebuild, plan.Change)

	// Altering a SEARCHABLE attribute: rebuild.
	plan, err = PlanRegistration(base.Type, "movie", nil, map[string]AttributeDef{
		"rating": {Kind: KindFloat, Flags: AttrIndexed},
	}, indexes("keywords"))
	require.NoError(t, err)
	assert.Equal(t, ChangeRebuild, plan.Change)
}

func TestPlanRejects(t *testing.T) {
	base, err := PlanRegistration(nil, "movie", nil, movieAttrs(), indexes("keywords"))
	require.NoError(t, err)

	cases := map[string]struct {
		existing *ObjectType
		indexes  [][]string
		attrs    map[string]AttributeDef
	}{
		"reserved":          {attrs: map[string]AttributeDef{"id": {Kind: KindInt, Flags: AttrSimple}}},
		"double underscore": {attrs: map[string]AttributeDef{"a__lower": {Kind: KindText, Flags: AttrSimple}}},
		"both modes":        {attrs: map[string]AttributeDef{"a": {Kind: KindText, Flags: FlagSimple | FlagSearchable}}},
		"no mode":           {attrs: map[string]AttributeDef{"a": {Kind: KindText}}},
		"indexed simple":    {attrs: map[string]AttributeDef{"a": {Kind: KindText, Flags: FlagSimple | FlagIndexed}}},
		"unknown index":     {attrs: map[string]AttributeDef{"a": {Kind: KindText, Flags: AttrSimple | FlagInvertedIndex, InvertedIndex: "nope"}}},
		"inverted int":      {attrs: map[string]AttributeDef{"a": {Kind: KindInt, Flags: AttrSimple | FlagInvertedIndex, InvertedIndex: "keywords"}}},
		"searchable list":   {attrs: map[string]AttributeDef{"a": {Kind: KindStrings, Flags: AttrSearchable}}},
		"bad index ref":     {indexes: [][]string{{"notes"}}, existing: base.Type},
		"missing index ref": {indexes: [][]string{{"ghost"}}},
		"simple to search":  {existing: base.Type, attrs: map[string]AttributeDef{"notes": {Kind: KindText, Flags: AttrSearchable}}},
		"search to simple":  {existing: base.Type, attrs: map[string]AttributeDef{"year": {Kind: KindInt, Flags: AttrSimple}}},
		"kind change":       {existing: base.Type, attrs: map[string]AttributeDef{"year": {Kind: KindFloat, Flags: AttrIndexed}}},
		"bad name":          {attrs: map[string]AttributeDef{"9lives": {Kind: KindText, Flags: AttrSimple}}},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := PlanRegistration(c.existing, "movie", c.indexes, c.attrs, indexes("keywords"))
			require.Error(t, err)
			assert.True(t, oderrors.IsKind(err, oderrors.KindSchema), "got %v", err)
		})
	}
}

func TestInvertedIndexDefaultsToAttributeName(t *testing.T) {
	def, err := ValidateAttribute("keywords", AttributeDef{Kind: KindText, Flags: AttrSimple | FlagInvertedIndex}, indexes("keywords"))
	require.NoError(t, err)
	assert.Equal(t, "keywords", def.InvertedIndex)
}

func TestCheckIndexName(t *testing.T) {
	types := []*ObjectType{{Name: "movie", Attrs: map[string]AttributeDef{
		"title":    {Kind: KindText, Flags: AttrSearchable},
		"keywords": {Kind: KindText, Flags: AttrSimple | FlagInvertedIndex, InvertedIndex: "keywords"},
	}}}
	assert.NoError(t, CheckIndexName("keywords", types))
	assert.NoError(t, CheckIndexName("people", types))
	assert.Error(t, CheckIndexName("title", types))
	assert.Error(t, CheckIndexName("limit", types))
}

func TestTypeJSONRoundTrip(t *testing.T) {
	w := 2.5
	attrs := movieAttrs()
	a := attrs["title"]
	a.Weight = &w
	attrs["title"] = a
	typ := &ObjectType{ID: 3, Name: "movie", Attrs: attrs, Indexes: [][]string{{"year", "rating"}}}

	b, err := EncodeType(typ)
	require.NoError(t, err)
	var raw map[string]any
	require.NoError(t, json.Unmarshal(b, &raw))
	assert.Contains(t, string(b), `"flags":"searchable|indexed|ignore_case|inverted_index"`)

	got, err := DecodeType(3, "movie", b)
	require.NoError(t, err)
	assert.Equal(t, typ.Indexes, got.Indexes)
	for name, def := range typ.Attrs {
		assert.True(t, def.Equal(got.Attrs[name]), name)
	}
}

func TestFlagsParse(t *testing.T) {
	f, err := ParseFlags("searchable|indexed, inverted_index")
	require.NoError(t, err)
	assert.Equal(t, AttrIndexed|FlagInvertedIndex, f)
	_, err = ParseFlags("fast")
	assert.Error(t, err)
}

func TestCheckValue(t *testing.T) {
	v, err := CheckValue("year", AttributeDef{Kind: KindInt}, 1999)
	require.NoError(t, err)
	assert.Equal(t, int64(1999), v)

	v, err = CheckValue("rating", AttributeDef{Kind: KindFloat}, 3)
	require.NoError(t, err)
	assert.Equal(t, 3.0, v)

	v, err = CheckValue("tags", AttributeDef{Kind: KindStrings}, []any{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, v)

	v, err = CheckValue("n", AttributeDef{Kind: KindInt}, json.Number("12"))
	require.NoError(t, err)
	assert.Equal(t, int64(12), v)

	for _, c := range []struct {
		kind Kind
		v    any
	}{
		{KindInt, "1999"}, {KindInt, 1.5}, {KindText, 3}, {KindBool, 1}, {KindBlob, 4}, {KindStrings, "a"}, {KindInt, uint64(1 << 63)},
	} {
		_, err := CheckValue("a", AttributeDef{Kind: c.kind}, c.v)
		assert.True(t, oderrors.IsKind(err, oderrors.KindTypeMismatch), "%s %v: %v", c.kind, c.v, err)
	}
}

func TestFromColumn(t *testing.T) {
	v, err := FromColumn(AttributeDef{Kind: KindBool}, int64(1))
	require.NoError(t, err)
	assert.Equal(t, true, v)
	v, err = FromColumn(AttributeDef{Kind: KindText}, []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, "x", v)
	_, err = FromColumn(AttributeDef{Kind: KindInt}, "x")
	assert.Error(t, err)
	assert.Equal(t, int64(0), ColumnValue(AttributeDef{Kind: KindBool}, false))
}
