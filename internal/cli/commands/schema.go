package commands

import (
	"fmt"
	"os"

	"github.com/ministore/objectdb/internal/cliopt"
	"github.com/ministore/objectdb/internal/cliutil"
	"github.com/ministore/objectdb/objectdb"
)

// RunSchema dispatches "schema apply" and "schema show".
func RunSchema(g cliopt.GlobalOptions, argv []string) int {
	if len(argv) == 0 {
		return usage("usage: objectdb schema apply|show")
	}
	switch argv[0] {
	case "apply":
		return runSchemaApply(g, argv[1:])
	case "show":
		return runSchemaShow(g, argv[1:])
	default:
		return usage(fmt.Sprintf("unknown schema subcommand: %s", argv[0]))
	}
}

// runSchemaApply registers the inverted indexes and object types declared
// in the config file. Indexes go first so attributes can reference them.
func runSchemaApply(g cliopt.GlobalOptions, argv []string) int {
	fs := newFlagSet("schema apply")
	if err := fs.Parse(argv); err != nil {
		return 2
	}
	if g.ConfigPath == "" {
		return usage("schema apply needs --config")
	}

	ctx := background()
	s, err := cliutil.Open(ctx, g)
	if err != nil {
		return fail(err)
	}
	defer s.Close()

	for _, name := range s.Config.IndexNames() {
		def := s.Config.Indexes[name].Definition(name)
		if err := s.DB.RegisterInvertedIndex(ctx, name, def); err != nil {
			return fail(err)
		}
	}
	for _, name := range s.Config.TypeNames() {
		tc := s.Config.Types[name]
		attrs, err := tc.Definitions()
		if err != nil {
			return fail(err)
		}
		if err := s.DB.RegisterObjectType(ctx, name, tc.Indexes, attrs); err != nil {
			return fail(err)
		}
	}
	if err := s.Close(); err != nil {
		return fail(err)
	}
	fmt.Fprintf(os.Stdout, "applied %d indexes, %d types\n", len(s.Config.Indexes), len(s.Config.Types))
	return 0
}

type schemaView struct {
	Indexes []objectdb.InvertedIndexDef `json:"indexes"`
	Types   []typeView                  `json:"types"`
}

type typeView struct {
	ID         int64               `json:"id"`
	Name       string              `json:"name"`
	Attributes map[string]attrView `json:"attributes"`
	Indexes    [][]string          `json:"indexes,omitempty"`
}

type attrView struct {
	Kind          string  `json:"kind"`
	Flags         string  `json:"flags"`
	InvertedIndex string  `json:"inverted_index,omitempty"`
	Weight        float64 `json:"weight,omitempty"`
}

func runSchemaShow(g cliopt.GlobalOptions, argv []string) int {
	fs := newFlagSet("schema show")
	if err := fs.Parse(argv); err != nil {
		return 2
	}

	ctx := background()
	s, err := cliutil.Open(ctx, g)
	if err != nil {
		return fail(err)
	}
	defer s.Close()

	indexes, err := s.DB.InvertedIndexes(ctx)
	if err != nil {
		return fail(err)
	}
	out := schemaView{Indexes: indexes}
	for _, t := range s.DB.ObjectTypes() {
		tv := typeView{ID: t.ID, Name: t.Name, Attributes: make(map[string]attrView, len(t.Attrs)), Indexes: t.Indexes}
		for name, a := range t.Attrs {
			av := attrView{Kind: a.Kind.String(), Flags: a.Flags.String(), InvertedIndex: a.InvertedIndex}
			if a.Inverted() {
				av.Weight = a.Coefficient()
			}
			tv.Attributes[name] = av
		}
		out.Types = append(out.Types, tv)
	}
	cliutil.PrintJSON(os.Stdout, out)
	return 0
}
