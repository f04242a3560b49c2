package objectdb

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/ministore/objectdb/objectdb/blob"
	"github.com/ministore/objectdb/objectdb/query"
	"github.com/ministore/objectdb/objectdb/schema"
	"github.com/ministore/objectdb/objectdb/storage"
)

type (
	Kind             = schema.Kind
	Flags            = schema.Flags
	AttributeDef     = schema.AttributeDef
	ObjectType       = schema.ObjectType
	InvertedIndexDef = schema.InvertedIndexDef
	SplitFunc        = schema.SplitFunc
	QExpr            = query.QExpr
)

const (
	KindInt     = schema.KindInt
	KindFloat   = schema.KindFloat
	KindBlob    = schema.KindBlob
	KindText    = schema.KindText
	KindBool    = schema.KindBool
	KindStrings = schema.KindStrings

	FlagSimple        = schema.FlagSimple
	FlagSearchable    = schema.FlagSearchable
	FlagIndexed       = schema.FlagIndexed
	FlagIgnoreCase    = schema.FlagIgnoreCase
	FlagInvertedIndex = schema.FlagInvertedIndex

	AttrSimple            = schema.AttrSimple
	AttrSearchable        = schema.AttrSearchable
	AttrIndexed           = schema.AttrIndexed
	AttrIgnoreCase        = schema.AttrIgnoreCase
	AttrIndexedIgnoreCase = schema.AttrIndexedIgnoreCase
)

// Attrs maps attribute names to values.
type Attrs map[string]any

// ObjectRef names one object.
type ObjectRef struct {
	Type string
	ID   int64
}

// ParentFilter restricts a query to children of objects of Type. ID is nil
// (any parent of that type), an int64, or a QExpr over parent ids.
type ParentFilter struct {
	Type string
	ID   any
}

// Query describes a read or a delete-by-query.
type Query struct {
	// Type restricts the query to one object type; empty means all.
	Type   string
	Parent *ParentFilter
	// Attrs projects the result; empty returns every attribute.
	Attrs    []string
	Distinct bool
	// Limit bounds the merged result; zero means unbounded.
	Limit int
	// Filters keys are attribute names, "id", or inverted index names.
	// Attribute values are literals (equality) or QExpr; index values are
	// a query string or []string of terms.
	Filters map[string]any
}

// Object is a materialized query result.
type Object struct {
	Type   string
	ID     int64
	Parent *ObjectRef
	Attrs  Attrs
	// Score is set when an inverted index search took part.
	Score float64
}

// Ref returns the object's reference.
func (o *Object) Ref() ObjectRef { return ObjectRef{Type: o.Type, ID: o.ID} }

// TermCount is a term with the number of objects containing it.
type TermCount struct {
	Term  string
	Count int64
}

// IndexInfo summarizes one inverted index.
type IndexInfo struct {
	Terms       int64
	LiveTerms   int64
	Postings    int64
	ObjectCount int64
}

// Info summarizes the store.
type Info struct {
	Backend storage.Backend
	StoreID string
	Version int
	// SizeBytes is the on-disk footprint reported by the backend.
	SizeBytes int64
	Objects   map[string]int64
	Indexes   map[string]IndexInfo
}

// Options configures a store handle.
type Options struct {
	Logger *zap.Logger
	// Registerer receives the store metrics. Nil uses a private registry.
	Registerer prometheus.Registerer
	// Codec encodes SIMPLE attributes. The zero value stores them
	// uncompressed.
	Codec blob.Codec
}

func DefaultOptions() Options {
	return Options{
		Logger: zap.NewNop(),
		Codec:  blob.DefaultCodec(),
	}
}
