package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	oderrors "github.com/ministore/objectdb/objectdb/errors"
)

// CheckValue verifies that v matches the declared kind and returns it in
// canonical form: int64, float64, []byte, string, bool or []string.
// A nil value is passed through.
func CheckValue(attr string, def AttributeDef, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	mismatch := func() error {
		return oderrors.TypeMismatch(attr, "expected %s, got %T", def.Kind, v)
	}
	switch def.Kind {
	case KindInt:
		switch x := v.(type) {
		case int:
			return int64(x), nil
		case int8:
			return int64(x), nil
		case int16:
			return int64(x), nil
		case int32:
			return int64(x), nil
		case int64:
			return x, nil
		case uint8:
			return int64(x), nil
		case uint16:
			return int64(x), nil
		case uint32:
			return int64(x), nil
		case uint:
			if uint64(x) > math.MaxInt64 {
				return nil, oderrors.TypeMismatch(attr, "integer %d overflows int64", x)
			}
			return int64(x), nil
		case uint64:
			if x > math.MaxInt64 {
				return nil, oderrors.TypeMismatch(attr, "integer %d overflows int64", x)
			}
			return int64(x), nil
		case json.Number:
			n, err := x.Int64()
			if err != nil {
				return nil, oderrors.TypeMismatch(attr, "expected int, got %q", x.String())
			}
			return n, nil
		}
		return nil, mismatch()
	case KindFloat:
		switch x := v.(type) {
		case float64:
			return x, nil
		case float32:
			return float64(x), nil
		case int:
			return float64(x), nil
		case int64:
			return float64(x), nil
		case int32:
			return float64(x), nil
		case json.Number:
			f, err := x.Float64()
			if err != nil {
				return nil, oderrors.TypeMismatch(attr, "expected float, got %q", x.String())
			}
			return f, nil
		}
		return nil, mismatch()
	case KindBool:
		if b, ok := v.(bool); ok {
			return b, nil
		}
		return nil, mismatch()
	case KindText:
		if s, ok := v.(string); ok {
			return s, nil
		}
		return nil, mismatch()
	case KindBlob:
		switch x := v.(type) {
		case []byte:
			return x, nil
		case string:
			return []byte(x), nil
		}
		return nil, mismatch()
	case KindStrings:
		switch x := v.(type) {
		case []string:
			return x, nil
		case []any:
			out := make([]string, 0, len(x))
			for _, e := range x {
				s, ok := e.(string)
				if !ok {
					return nil, oderrors.TypeMismatch(attr, "expected strings, element is %T", e)
				}
				out = append(out, s)
			}
			return out, nil
		}
		return nil, mismatch()
	}
	return nil, mismatch()
}

// ColumnValue converts a canonical value into its native column form.
func ColumnValue(def AttributeDef, v any) any {
	if b, ok := v.(bool); ok && def.Kind == KindBool {
		if b {
			return int64(1)
		}
		return int64(0)
	}
	return v
}

// FromColumn converts a value scanned from a native column back into
// canonical form.
func FromColumn(def AttributeDef, raw any) (any, error) {
	if raw == nil {
		return nil, nil
	}
	switch def.Kind {
	case KindInt:
		switch x := raw.(type) {
		case int64:
			return x, nil
		case int32:
			return int64(x), nil
		case int16:
			return int64(x), nil
		case int:
			return int64(x), nil
		case float64:
			return int64(x), nil
		}
	case KindFloat:
		switch x := raw.(type) {
		case float64:
			return x, nil
		case float32:
			return float64(x), nil
		case int64:
			return float64(x), nil
		}
	case KindBool:
		switch x := raw.(type) {
		case bool:
			return x, nil
		case int64:
			return x != 0, nil
		case int32:
			return x != 0, nil
		case int16:
			return x != 0, nil
		}
	case KindText:
		switch x := raw.(type) {
		case string:
			return x, nil
		case []byte:
			return string(x), nil
		}
	case KindBlob:
		switch x := raw.(type) {
		case []byte:
			return append([]byte(nil), x...), nil
		case string:
			return []byte(x), nil
		}
	}
	return nil, fmt.Errorf("column value %T does not decode as %s", raw, def.Kind)
}

// ParseValue parses a textual literal into the canonical form for kind.
func ParseValue(kind Kind, s string) (any, error) {
	switch kind {
	case KindInt:
		return strconv.ParseInt(s, 10, 64)
	case KindFloat:
		return strconv.ParseFloat(s, 64)
	case KindBool:
		return strconv.ParseBool(s)
	case KindText:
		return s, nil
	case KindBlob:
		return []byte(s), nil
	case KindStrings:
		if s == "" {
			return []string{}, nil
		}
		return strings.Split(s, ","), nil
	}
	return nil, fmt.Errorf("unknown data kind %d", kind)
}
