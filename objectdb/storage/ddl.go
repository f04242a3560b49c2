package storage

import (
	"fmt"
	"strings"

	"github.com/ministore/objectdb/objectdb/schema"
)

const (
	ColID         = "id"
	ColParentType = "parent_type"
	ColParentID   = "parent_id"
	ColBlob       = "pickle"
)

func ObjectTable(typeName string) string { return "objects_" + typeName }
func TermsTable(index string) string     { return "ivtidx_" + index + "_terms" }
func PostingsTable(index string) string  { return "ivtidx_" + index + "_terms_map" }

// ShadowColumn is the lowercase copy kept for IGNORE_CASE+INDEXED attributes.
func ShadowColumn(attr string) string { return attr + "__lower" }

// BaseDDL creates the metadata tables.
func BaseDDL(d Dialect) []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS meta (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS types (
	id %s,
	name TEXT NOT NULL UNIQUE,
	attrs_json TEXT NOT NULL
)`, d.PrimaryKey),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS inverted_indexes (
	name TEXT PRIMARY KEY,
	min_len %[1]s NOT NULL DEFAULT 0,
	max_len %[1]s NOT NULL DEFAULT 0,
	ignore_json TEXT NOT NULL DEFAULT '[]',
	object_count %[1]s NOT NULL DEFAULT 0
)`, d.IntType),
	}
}

func (d Dialect) columnType(k schema.Kind) string {
	switch k {
	case schema.KindInt:
		return d.IntType
	case schema.KindFloat:
		return d.FloatType
	case schema.KindBlob:
		return d.BlobType
	case schema.KindBool:
		return d.BoolType
	default:
		return d.TextType
	}
}

// ObjectColumns lists the native columns of a type's table in order,
// implicit columns first.
func ObjectColumns(t *schema.ObjectType) []string {
	cols := []string{ColID, ColParentType, ColParentID, ColBlob}
	for _, name := range t.SearchableInOrder() {
		cols = append(cols, name)
		if t.Attrs[name].HasShadow() {
			cols = append(cols, ShadowColumn(name))
		}
	}
	return cols
}

// CreateObjectTable returns the CREATE TABLE statement for t under table.
func CreateObjectTable(d Dialect, table string, t *schema.ObjectType) string {
	defs := []string{
		d.Quote(ColID) + " " + d.PrimaryKey,
		d.Quote(ColParentType) + " " + d.IntType,
		d.Quote(ColParentID) + " " + d.IntType,
		d.Quote(ColBlob) + " " + d.BlobType,
	}
	for _, name := range t.SearchableInOrder() {
		a := t.Attrs[name]
		defs = append(defs, d.Quote(name)+" "+d.columnType(a.Kind))
		if a.HasShadow() {
			defs = append(defs, d.Quote(ShadowColumn(name))+" "+d.TextType)
		}
	}
	return fmt.Sprintf("CREATE TABLE %s (\n\t%s\n)", d.Quote(table), strings.Join(defs, ",\n\t"))
}

// ObjectTableIndexes returns every index statement for the type's table:
// parent lookup, single-column INDEXED attributes and multi-column indexes.
func ObjectTableIndexes(d Dialect, t *schema.ObjectType) []string {
	table := ObjectTable(t.Name)
	stmts := []string{
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s, %s)",
			d.Quote("idx_"+table+"_parent"), d.Quote(table), d.Quote(ColParentType), d.Quote(ColParentID)),
	}
	for _, name := range t.SearchableInOrder() {
		a := t.Attrs[name]
		if !a.Indexed() {
			continue
		}
		col := name
		if a.HasShadow() {
			col = ShadowColumn(name)
		}
		stmts = append(stmts, fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)",
			d.Quote("idx_"+table+"_"+col), d.Quote(table), d.Quote(col)))
	}
	for _, ix := range t.Indexes {
		stmts = append(stmts, MultiColumnIndex(d, t, ix))
	}
	return stmts
}

// MultiColumnIndex returns the statement for one multi-column index.
func MultiColumnIndex(d Dialect, t *schema.ObjectType, cols []string) string {
	table := ObjectTable(t.Name)
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = d.Quote(c)
	}
	return fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)",
		d.Quote("idx_"+table+"__"+strings.Join(cols, "_")), d.Quote(table), strings.Join(quoted, ", "))
}

// InvertedIndexDDL creates the terms and postings tables of an index.
func InvertedIndexDDL(d Dialect, index string) []string {
	terms, postings := TermsTable(index), PostingsTable(index)
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id %s,
	term TEXT NOT NULL,
	term_lower TEXT NOT NULL UNIQUE,
	global_count %s NOT NULL DEFAULT 0
)`, d.Quote(terms), d.PrimaryKey, d.IntType),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	rank %[2]s NOT NULL,
	term_id %[2]s NOT NULL,
	object_type %[2]s NOT NULL,
	object_id %[2]s NOT NULL,
	frequency %[3]s NOT NULL,
	PRIMARY KEY (term_id, object_type, object_id)
)`, d.Quote(postings), d.IntType, d.FloatType),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (term_id, rank, object_type, object_id)",
			d.Quote("idx_"+postings+"_term_rank"), d.Quote(postings)),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (object_type, object_id)",
			d.Quote("idx_"+postings+"_object"), d.Quote(postings)),
	}
}
