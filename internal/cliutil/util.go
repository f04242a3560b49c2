package cliutil

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/ministore/objectdb/objectdb"
	oderrors "github.com/ministore/objectdb/objectdb/errors"
	"github.com/ministore/objectdb/objectdb/query"
	"github.com/ministore/objectdb/objectdb/schema"
)

type OutputFormat string

const (
	FormatPretty OutputFormat = "pretty"
	FormatJSON   OutputFormat = "json"
)

func ParseOutputFormat(s string) OutputFormat {
	switch OutputFormat(s) {
	case FormatPretty, FormatJSON:
		return OutputFormat(s)
	default:
		return FormatPretty
	}
}

func PrintJSON(w io.Writer, v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Fprintln(w, string(b))
}

// MultiString collects a repeatable flag.
type MultiString []string

func (m *MultiString) String() string { return strings.Join(*m, ",") }
func (m *MultiString) Set(v string) error {
	*m = append(*m, v)
	return nil
}

// SplitList splits a comma separated flag value, dropping empty items.
func SplitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ParseRef parses "type:id".
func ParseRef(s string) (objectdb.ObjectRef, error) {
	typ, id, ok := strings.Cut(s, ":")
	if !ok || typ == "" {
		return objectdb.ObjectRef{}, fmt.Errorf("invalid object reference %q (want type:id)", s)
	}
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return objectdb.ObjectRef{}, fmt.Errorf("invalid object id in %q: %w", s, err)
	}
	return objectdb.ObjectRef{Type: typ, ID: n}, nil
}

// FindType returns the registered type called name.
func FindType(db *objectdb.DB, name string) (*objectdb.ObjectType, error) {
	for _, t := range db.ObjectTypes() {
		if t.Name == name {
			return &t, nil
		}
	}
	return nil, oderrors.UnknownType(name)
}

// ParseSets converts k=v pairs into attributes of t. A bare key sets a
// boolean attribute to true.
func ParseSets(t *objectdb.ObjectType, sets []string) (objectdb.Attrs, error) {
	attrs := make(objectdb.Attrs, len(sets))
	for _, kv := range sets {
		k, v, ok := strings.Cut(kv, "=")
		def, known := t.Attr(k)
		if !known {
			return nil, fmt.Errorf("type %s has no attribute %q", t.Name, k)
		}
		if !ok {
			if def.Kind != schema.KindBool {
				return nil, fmt.Errorf("attribute %s needs a value", k)
			}
			attrs[k] = true
			continue
		}
		val, err := schema.ParseValue(def.Kind, v)
		if err != nil {
			return nil, fmt.Errorf("attribute %s: %w", k, err)
		}
		attrs[k] = val
	}
	return attrs, nil
}

// ParseWhere parses a filter expression into query filters. Operands are
// typed using the attribute kind found on typeName, or on the first
// registered type that declares the attribute when typeName is empty.
func ParseWhere(db *objectdb.DB, typeName, expr string) (map[string]any, error) {
	filters, err := query.Parse(expr)
	if err != nil {
		return nil, err
	}
	types := db.ObjectTypes()
	out := make(map[string]any, len(filters))
	for _, f := range filters {
		if _, dup := out[f.Name]; dup {
			return nil, fmt.Errorf("attribute %s is filtered twice", f.Name)
		}
		kind, ok := attrKind(types, typeName, f.Name)
		if !ok {
			return nil, fmt.Errorf("no registered type has attribute %q", f.Name)
		}
		typed, err := f.Typed(kind)
		if err != nil {
			return nil, err
		}
		out[f.Name] = typed
	}
	return out, nil
}

func attrKind(types []objectdb.ObjectType, typeName, attr string) (schema.Kind, bool) {
	if attr == "id" {
		return schema.KindInt, true
	}
	for i := range types {
		if typeName != "" && types[i].Name != typeName {
			continue
		}
		if def, ok := types[i].Attr(attr); ok {
			return def.Kind, true
		}
	}
	return 0, false
}

// ParseTerms parses "index=words" pairs into search filters.
func ParseTerms(pairs []string) (map[string]any, error) {
	out := make(map[string]any, len(pairs))
	for _, p := range pairs {
		name, words, ok := strings.Cut(p, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid terms %q (want index=words)", p)
		}
		out[name] = words
	}
	return out, nil
}
