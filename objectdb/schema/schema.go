package schema

import (
	"fmt"
	"sort"
	"strings"
)

// Kind is the declared data kind of an attribute.
type Kind uint8

const (
	KindInt Kind = iota + 1
	KindFloat
	KindBlob
	KindText
	KindBool
	// KindStrings is a discrete sequence of terms. It is only storable in the
	// blob and is used as an inverted index source without splitting.
	KindStrings
)

var kindNames = map[Kind]string{
	KindInt:     "int",
	KindFloat:   "float",
	KindBlob:    "blob",
	KindText:    "text",
	KindBool:    "bool",
	KindStrings: "strings",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

func (k Kind) Valid() bool {
	_, ok := kindNames[k]
	return ok
}

func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if strings.EqualFold(name, s) {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown data kind %q", s)
}

func (k Kind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("invalid data kind %d", uint8(k))
	}
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(b []byte) error {
	v, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// Flags is the capability set of an attribute.
type Flags uint8

const (
	FlagSimple Flags = 1 << iota
	FlagSearchable
	FlagIndexed
	FlagIgnoreCase
	FlagInvertedIndex
)

const (
	AttrSimple            = FlagSimple
	AttrSearchable        = FlagSearchable
	AttrIndexed           = FlagSearchable | FlagIndexed
	AttrIgnoreCase        = FlagSearchable | FlagIgnoreCase
	AttrIndexedIgnoreCase = FlagSearchable | FlagIndexed | FlagIgnoreCase
)

var flagNames = []struct {
	flag Flags
	name string
}{
	{FlagSimple, "simple"},
	{FlagSearchable, "searchable"},
	{FlagIndexed, "indexed"},
	{FlagIgnoreCase, "ignore_case"},
	{FlagInvertedIndex, "inverted_index"},
}

func (f Flags) Has(x Flags) bool { return f&x == x }

func (f Flags) String() string {
	var parts []string
	for _, fn := range flagNames {
		if f.Has(fn.flag) {
			parts = append(parts, fn.name)
		}
	}
	return strings.Join(parts, "|")
}

// ParseFlags parses a "|" or "," separated list such as "searchable|indexed".
func ParseFlags(s string) (Flags, error) {
	var f Flags
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == '|' || r == ',' || r == ' ' }) {
		found := false
		for _, fn := range flagNames {
			if strings.EqualFold(fn.name, part) {
				f |= fn.flag
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown attribute flag %q", part)
		}
	}
	return f, nil
}

func (f Flags) MarshalText() ([]byte, error) { return []byte(f.String()), nil }

func (f *Flags) UnmarshalText(b []byte) error {
	v, err := ParseFlags(string(b))
	if err != nil {
		return err
	}
	*f = v
	return nil
}

// SplitFunc breaks raw text into terms.
type SplitFunc func(string) []string

// AttributeDef describes one attribute of an object type.
type AttributeDef struct {
	Kind          Kind     `json:"kind"`
	Flags         Flags    `json:"flags"`
	InvertedIndex string   `json:"inverted_index,omitempty"`
	Weight        *float64 `json:"weight,omitempty"`

	// Split overrides the inverted index splitter for this attribute. It is
	// not persisted and must be supplied again after reopening.
	Split SplitFunc `json:"-"`
}

func (a AttributeDef) Simple() bool     { return a.Flags.Has(FlagSimple) }
func (a AttributeDef) Searchable() bool { return a.Flags.Has(FlagSearchable) }
func (a AttributeDef) Indexed() bool    { return a.Flags.Has(FlagIndexed) }
func (a AttributeDef) IgnoreCase() bool { return a.Flags.Has(FlagIgnoreCase) }
func (a AttributeDef) Inverted() bool   { return a.Flags.Has(FlagInvertedIndex) }

// HasShadow reports whether the attribute keeps a lowercase shadow column.
func (a AttributeDef) HasShadow() bool {
	return a.Searchable() && a.IgnoreCase() && a.Indexed()
}

// Coefficient is the scorer weight applied to this attribute's terms.
func (a AttributeDef) Coefficient() float64 {
	if a.Weight == nil {
		return 1.0
	}
	return *a.Weight
}

// Equal compares the persisted part of two definitions.
func (a AttributeDef) Equal(b AttributeDef) bool {
	if a.Kind != b.Kind || a.Flags != b.Flags || a.InvertedIndex != b.InvertedIndex {
		return false
	}
	return a.Coefficient() == b.Coefficient()
}

// ObjectType is a registered object schema.
type ObjectType struct {
	ID      int64
	Name    string
	Attrs   map[string]AttributeDef
	Indexes [][]string
}

func (t *ObjectType) Attr(name string) (AttributeDef, bool) {
	a, ok := t.Attrs[name]
	return a, ok
}

// SearchableInOrder returns SEARCHABLE attribute names sorted by name, which
// is also their column order in the backing table.
func (t *ObjectType) SearchableInOrder() []string {
	var names []string
	for name, a := range t.Attrs {
		if a.Searchable() {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func (t *ObjectType) HasSimple() bool {
	for _, a := range t.Attrs {
		if a.Simple() {
			return true
		}
	}
	return false
}

// InvertedIndexes returns the distinct index names fed by this type.
func (t *ObjectType) InvertedIndexes() []string {
	seen := map[string]bool{}
	var names []string
	for _, a := range t.Attrs {
		if a.Inverted() && !seen[a.InvertedIndex] {
			seen[a.InvertedIndex] = true
			names = append(names, a.InvertedIndex)
		}
	}
	sort.Strings(names)
	return names
}

// IndexSources returns the attributes feeding the named inverted index.
func (t *ObjectType) IndexSources(index string) []string {
	var names []string
	for name, a := range t.Attrs {
		if a.Inverted() && a.InvertedIndex == index {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func (t *ObjectType) Clone() *ObjectType {
	c := &ObjectType{ID: t.ID, Name: t.Name, Attrs: make(map[string]AttributeDef, len(t.Attrs))}
	for k, v := range t.Attrs {
		c.Attrs[k] = v
	}
	for _, ix := range t.Indexes {
		c.Indexes = append(c.Indexes, append([]string(nil), ix...))
	}
	return c
}

// InvertedIndexDef is a registered inverted index.
type InvertedIndexDef struct {
	Name   string   `json:"name"`
	Min    int      `json:"min,omitempty"`
	Max    int      `json:"max,omitempty"`
	Ignore []string `json:"ignore,omitempty"`

	// Split is the default splitter for the index; nil means the
	// non-alphanumeric boundary splitter.
	Split SplitFunc `json:"-"`

	// ObjectCount is the stored count when the definition was read.
	ObjectCount int64 `json:"-"`
}

// SameDefinition compares bounds and the case-insensitive ignore set.
func (d InvertedIndexDef) SameDefinition(o InvertedIndexDef) bool {
	if d.Min != o.Min || d.Max != o.Max {
		return false
	}
	a, b := d.IgnoreSet(), o.IgnoreSet()
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}

// IgnoreSet returns the lowercased stop terms.
func (d InvertedIndexDef) IgnoreSet() map[string]struct{} {
	set := make(map[string]struct{}, len(d.Ignore))
	for _, t := range d.Ignore {
		set[strings.ToLower(t)] = struct{}{}
	}
	return set
}
