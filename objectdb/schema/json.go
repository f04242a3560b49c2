package schema

import (
	"encoding/json"

	oderrors "github.com/ministore/objectdb/objectdb/errors"
)

// storedType is the persisted form of an ObjectType. encoding/json sorts map
// keys, so equal definitions always encode to equal bytes.
type storedType struct {
	Attrs   map[string]AttributeDef `json:"attrs"`
	Indexes [][]string              `json:"indexes,omitempty"`
}

// EncodeType serializes attribute and multi-column index metadata.
func EncodeType(t *ObjectType) ([]byte, error) {
	b, err := json.Marshal(storedType{Attrs: t.Attrs, Indexes: t.Indexes})
	if err != nil {
		return nil, oderrors.Wrap(oderrors.KindSchema, "encode type metadata", err)
	}
	return b, nil
}

// DecodeType restores an ObjectType from its persisted metadata.
func DecodeType(id int64, name string, b []byte) (*ObjectType, error) {
	var st storedType
	if err := json.Unmarshal(b, &st); err != nil {
		return nil, oderrors.Wrap(oderrors.KindSchema, "decode metadata of type "+name, err)
	}
	if st.Attrs == nil {
		st.Attrs = map[string]AttributeDef{}
	}
	return &ObjectType{ID: id, Name: name, Attrs: st.Attrs, Indexes: st.Indexes}, nil
}

func EncodeIgnore(terms []string) (string, error) {
	if len(terms) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(terms)
	if err != nil {
		return "", oderrors.Wrap(oderrors.KindSchema, "encode ignore list", err)
	}
	return string(b), nil
}

func DecodeIgnore(s string) ([]string, error) {
	if s == "" {
		return nil, nil
	}
	var terms []string
	if err := json.Unmarshal([]byte(s), &terms); err != nil {
		return nil, oderrors.Wrap(oderrors.KindSchema, "decode ignore list", err)
	}
	return terms, nil
}
