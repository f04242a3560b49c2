package sqlite

import (
	"database/sql/driver"
	"fmt"
	"regexp"
	"sync"

	msqlite "modernc.org/sqlite"
)

// SQLite parses REGEXP but ships no implementation; "X REGEXP Y" calls
// regexp(Y, X). Compiled patterns are cached for the life of the process.
var patterns sync.Map

func compile(pattern string) (*regexp.Regexp, error) {
	if re, ok := patterns.Load(pattern); ok {
		return re.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	patterns.Store(pattern, re)
	return re, nil
}

func match(pattern, value any) (int64, error) {
	if value == nil || pattern == nil {
		return 0, nil
	}
	p, err := asString(pattern)
	if err != nil {
		return 0, err
	}
	v, err := asString(value)
	if err != nil {
		return 0, err
	}
	re, err := compile(p)
	if err != nil {
		return 0, err
	}
	if re.MatchString(v) {
		return 1, nil
	}
	return 0, nil
}

func asString(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case []byte:
		return string(x), nil
	case int64, float64:
		return fmt.Sprint(x), nil
	}
	return "", fmt.Errorf("regexp: unsupported operand %T", v)
}

var registerOnce sync.Once
var registerErr error

// registerModernc installs regexp on every modernc connection opened
// afterwards.
func registerModernc() error {
	registerOnce.Do(func() {
		registerErr = msqlite.RegisterDeterministicScalarFunction("regexp", 2,
			func(_ *msqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
				return match(args[0], args[1])
			})
	})
	return registerErr
}
