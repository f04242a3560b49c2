package sqlbuilder

import "strings"

type PlaceholderStyle int

const (
	PlaceholderQuestion PlaceholderStyle = iota
	PlaceholderDollar
)

// Builder allocates placeholders in order and collects their arguments.
type Builder struct {
	Style PlaceholderStyle
	args  []any
}

func New(style PlaceholderStyle) *Builder {
	return &Builder{Style: style, args: make([]any, 0)}
}

func (b *Builder) Arg(v any) string {
	b.args = append(b.args, v)
	switch b.Style {
	case PlaceholderDollar:
		return "$" + itoa(len(b.args))
	default:
		return "?"
	}
}

// List returns "(p1, p2, ...)" for vals. Callers must not pass an empty
// slice.
func (b *Builder) List(vals []any) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = b.Arg(v)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// Int64List is List for id slices.
func (b *Builder) Int64List(ids []int64) string {
	vals := make([]any, len(ids))
	for i, id := range ids {
		vals[i] = id
	}
	return b.List(vals)
}

// Positional returns the n-th (1-based) numbered placeholder, for
// statements that bind the same argument more than once.
func Positional(style PlaceholderStyle, n int) string {
	if style == PlaceholderDollar {
		return "$" + itoa(n)
	}
	return "?" + itoa(n)
}

func (b *Builder) Args() []any { return b.args }
func (b *Builder) Len() int    { return len(b.args) }

// itoa converts int to string without fmt overhead
func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [32]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + (n % 10))
		n /= 10
	}
	return string(buf[i:])
}
