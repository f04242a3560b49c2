package commands

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/ministore/objectdb/internal/cliopt"
	"github.com/ministore/objectdb/internal/cliutil"
	"github.com/ministore/objectdb/objectdb"
)

func RunQuery(g cliopt.GlobalOptions, argv []string) int {
	fs := newFlagSet("query")
	var typeName, where, parentArg, attrs, format string
	var terms cliutil.MultiString
	var limit int
	var distinct bool
	fs.StringVar(&typeName, "type", "", "object type (default: all types)")
	fs.StringVar(&typeName, "t", "", "object type (default: all types)")
	fs.Var(&terms, "terms", "search index=words (repeatable)")
	fs.StringVar(&where, "where", "", "filter expression")
	fs.StringVar(&where, "w", "", "filter expression")
	fs.StringVar(&parentArg, "parent", "", "parent type, or type:id")
	fs.StringVar(&attrs, "attrs", "", "attributes to return: a,b")
	fs.BoolVar(&distinct, "distinct", false, "drop duplicate rows")
	fs.IntVar(&limit, "limit", 0, "limit (default from config)")
	fs.StringVar(&format, "format", "pretty", "format: pretty|json")
	if err := fs.Parse(argv); err != nil {
		return 2
	}

	ctx := background()
	s, err := cliutil.Open(ctx, g)
	if err != nil {
		return fail(err)
	}
	defer s.Close()

	q := objectdb.Query{
		Type:     typeName,
		Attrs:    cliutil.SplitList(attrs),
		Distinct: distinct,
		Limit:    s.Config.ClampLimit(limit),
	}
	if where != "" {
		if q.Filters, err = cliutil.ParseWhere(s.DB, typeName, where); err != nil {
			return fail(err)
		}
	}
	if len(terms) > 0 {
		searches, err := cliutil.ParseTerms(terms)
		if err != nil {
			return usage(err.Error())
		}
		if q.Filters == nil {
			q.Filters = make(map[string]any, len(searches))
		}
		for name, words := range searches {
			if _, dup := q.Filters[name]; dup {
				return usage(fmt.Sprintf("%s is used both as attribute and index", name))
			}
			q.Filters[name] = words
		}
	}
	if parentArg != "" {
		if q.Parent, err = parseParentFilter(parentArg); err != nil {
			return usage(err.Error())
		}
	}

	start := time.Now()
	objs, err := s.DB.Query(ctx, q)
	if err != nil {
		return fail(err)
	}
	printObjects(cliutil.ParseOutputFormat(format), objs, time.Since(start))
	return 0
}

func parseParentFilter(s string) (*objectdb.ParentFilter, error) {
	if !strings.Contains(s, ":") {
		return &objectdb.ParentFilter{Type: s}, nil
	}
	ref, err := cliutil.ParseRef(s)
	if err != nil {
		return nil, err
	}
	return &objectdb.ParentFilter{Type: ref.Type, ID: ref.ID}, nil
}

type objectView struct {
	Type   string         `json:"type"`
	ID     int64          `json:"id,omitempty"`
	Parent string         `json:"parent,omitempty"`
	Score  float64        `json:"score,omitempty"`
	Attrs  map[string]any `json:"attrs"`
}

func viewOf(o *objectdb.Object) objectView {
	v := objectView{Type: o.Type, ID: o.ID, Score: o.Score, Attrs: o.Attrs}
	if o.Parent != nil {
		v.Parent = fmt.Sprintf("%s:%d", o.Parent.Type, o.Parent.ID)
	}
	return v
}

func printObjects(fmtOut cliutil.OutputFormat, objs []*objectdb.Object, dur time.Duration) {
	switch fmtOut {
	case cliutil.FormatJSON:
		out := make([]objectView, 0, len(objs))
		for _, o := range objs {
			out = append(out, viewOf(o))
		}
		cliutil.PrintJSON(os.Stdout, out)
	default:
		fmt.Fprintf(os.Stdout, "Found %d objects in %dms\n", len(objs), dur.Milliseconds())
		for _, o := range objs {
			var b strings.Builder
			fmt.Fprintf(&b, "- %s:%d", o.Type, o.ID)
			if o.Parent != nil {
				fmt.Fprintf(&b, " parent=%s:%d", o.Parent.Type, o.Parent.ID)
			}
			if o.Score != 0 {
				fmt.Fprintf(&b, " score=%.3f", o.Score)
			}
			keys := make([]string, 0, len(o.Attrs))
			for k := range o.Attrs {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(&b, " %s=%s", k, formatValue(o.Attrs[k]))
			}
			fmt.Fprintln(os.Stdout, b.String())
		}
	}
}

func formatValue(v any) string {
	switch x := v.(type) {
	case []byte:
		return fmt.Sprintf("<%d bytes>", len(x))
	case string:
		return fmt.Sprintf("%q", x)
	case []string:
		return "[" + strings.Join(x, ",") + "]"
	default:
		return fmt.Sprint(x)
	}
}
