package schema

import (
	"regexp"
	"sort"
	"strings"

	oderrors "github.com/ministore/objectdb/objectdb/errors"
)

var validNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Reserved names are implicit columns or keys interpreted by Query.
var reservedNames = map[string]bool{
	"id":          true,
	"type":        true,
	"parent":      true,
	"parent_type": true,
	"parent_id":   true,
	"pickle":      true,
	"limit":       true,
	"attrs":       true,
	"distinct":    true,
	"score":       true,
}

func IsReserved(name string) bool { return reservedNames[strings.ToLower(name)] }

// ValidateName checks a type, attribute or index name.
func ValidateName(what, name string) error {
	if !validNameRe.MatchString(name) {
		return oderrors.Schema("invalid %s name %q (must match %s)", what, name, validNameRe.String())
	}
	return nil
}

// IndexLookup reports whether an inverted index is registered.
type IndexLookup func(name string) bool

// ValidateAttribute checks a single definition and returns it normalized.
func ValidateAttribute(name string, def AttributeDef, indexExists IndexLookup) (AttributeDef, error) {
	if err := ValidateName("attribute", name); err != nil {
		return def, err
	}
	if IsReserved(name) {
		return def, oderrors.Schema("attribute name %q is reserved", name)
	}
	// "__" is used for derived column names such as title__lower.
	if strings.Contains(name, "__") {
		return def, oderrors.Schema("attribute name %q must not contain \"__\"", name)
	}
	if !def.Kind.Valid() {
		return def, oderrors.Schema("attribute %q has invalid data kind", name)
	}
	if def.Simple() == def.Searchable() {
		return def, oderrors.Schema("attribute %q must be exactly one of simple or searchable", name)
	}
	if (def.Indexed() || def.IgnoreCase()) && !def.Searchable() {
		return def, oderrors.Schema("attribute %q: indexed and ignore_case require searchable", name)
	}
	if def.Searchable() && def.Kind == KindStrings {
		return def, oderrors.Schema("attribute %q: strings kind can only be stored as simple", name)
	}
	if def.IgnoreCase() && def.Kind != KindText {
		return def, oderrors.Schema("attribute %q: ignore_case requires text kind", name)
	}
	if def.Inverted() {
		if def.InvertedIndex == "" {
			def.InvertedIndex = name
		}
		if def.Kind != KindText && def.Kind != KindStrings {
			return def, oderrors.Schema("attribute %q: inverted index source must be text or strings, got %s", name, def.Kind)
		}
		if indexExists == nil || !indexExists(def.InvertedIndex) {
			return def, oderrors.Schema("attribute %q references unregistered inverted index %q", name, def.InvertedIndex)
		}
	} else if def.InvertedIndex != "" {
		return def, oderrors.Schema("attribute %q names inverted index %q without the inverted_index flag", name, def.InvertedIndex)
	}
	if def.Weight != nil && *def.Weight <= 0 {
		return def, oderrors.Schema("attribute %q: weight must be positive", name)
	}
	return def, nil
}

type Change int

const (
	ChangeNone Change = iota
	ChangeCreate
	ChangeInPlace
	ChangeRebuild
)

func (c Change) String() string {
	switch c {
	case ChangeCreate:
		return "create"
	case ChangeInPlace:
		return "in_place"
	case ChangeRebuild:
		return "rebuild"
	default:
		return "none"
	}
}

// Plan is the outcome of diffing a registration against the stored type.
type Plan struct {
	Change Change
	// Type is the merged definition to persist. Its ID is zero for new types.
	Type *ObjectType
	// NewIndexes lists multi-column indexes that do not exist yet.
	NewIndexes [][]string
}

// PlanRegistration validates a registration and merges it with existing,
// which may be nil. Attributes and indexes only grow: anything present in
// existing but absent from the request is kept.
func PlanRegistration(existing *ObjectType, name string, indexes [][]string, attrs map[string]AttributeDef, indexExists IndexLookup) (*Plan, error) {
	if err := ValidateName("object type", name); err != nil {
		return nil, err
	}

	merged := &ObjectType{Name: name, Attrs: map[string]AttributeDef{}}
	if existing != nil {
		merged = existing.Clone()
	}

	plan := &Plan{Change: ChangeNone, Type: merged}
	if existing == nil {
		plan.Change = ChangeCreate
	}
	// A new type is created with its full column set.
	escalate := func(c Change) {
		if existing != nil && c > plan.Change {
			plan.Change = c
		}
	}

	names := make([]string, 0, len(attrs))
	for n := range attrs {
		names = append(names, n)
	}
	sort.Strings(names)

	for _, attrName := range names {
		def, err := ValidateAttribute(attrName, attrs[attrName], indexExists)
		if err != nil {
			return nil, err
		}
		old, ok := merged.Attrs[attrName]
		if !ok {
			merged.Attrs[attrName] = def
			if def.Searchable() || def.Inverted() {
				escalate(ChangeRebuild)
			} else {
				escalate(ChangeInPlace)
			}
			continue
		}
		if old.Simple() != def.Simple() {
			return nil, oderrors.Schema("attribute %q of type %q cannot be converted between simple and searchable", attrName, name)
		}
		if old.Kind != def.Kind {
			return nil, oderrors.Schema("attribute %q of type %q cannot change data kind from %s to %s", attrName, name, old.Kind, def.Kind)
		}
		if !old.Equal(def) {
			if old.Searchable() || old.Inverted() || def.Inverted() {
				escalate(ChangeRebuild)
			} else {
				escalate(ChangeInPlace)
			}
		}
		merged.Attrs[attrName] = def
	}

	have := map[string]bool{}
	for _, ix := range merged.Indexes {
		have[strings.Join(ix, ",")] = true
	}
	for _, ix := range indexes {
		if len(ix) == 0 {
			return nil, oderrors.Schema("type %q: empty multi-column index", name)
		}
		for _, col := range ix {
			a, ok := merged.Attrs[col]
			if !ok || !a.Searchable() {
				return nil, oderrors.Schema("type %q: multi-column index references non-searchable attribute %q", name, col)
			}
		}
		key := strings.Join(ix, ",")
		if have[key] {
			continue
		}
		have[key] = true
		cols := append([]string(nil), ix...)
		merged.Indexes = append(merged.Indexes, cols)
		plan.NewIndexes = append(plan.NewIndexes, cols)
		escalate(ChangeInPlace)
	}

	return plan, nil
}

// CheckIndexName rejects an inverted index name that collides with an
// attribute not feeding that same index.
func CheckIndexName(name string, types []*ObjectType) error {
	if err := ValidateName("inverted index", name); err != nil {
		return err
	}
	if IsReserved(name) {
		return oderrors.Schema("inverted index name %q is reserved", name)
	}
	for _, t := range types {
		a, ok := t.Attrs[name]
		if !ok {
			continue
		}
		if !a.Inverted() || a.InvertedIndex != name {
			return oderrors.Schema("inverted index %q collides with attribute of type %q", name, t.Name)
		}
	}
	return nil
}

// CheckAttributeNames rejects attributes named like a registered index they
// do not feed, since both share the query key space.
func CheckAttributeNames(t *ObjectType, indexExists IndexLookup) error {
	for name, a := range t.Attrs {
		if indexExists != nil && indexExists(name) && (!a.Inverted() || a.InvertedIndex != name) {
			return oderrors.Schema("attribute %q of type %q collides with inverted index %q", name, t.Name, name)
		}
	}
	return nil
}
