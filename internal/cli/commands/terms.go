package commands

import (
	"fmt"
	"os"

	"github.com/ministore/objectdb/internal/cliopt"
	"github.com/ministore/objectdb/internal/cliutil"
)

// RunTerms lists the terms of an inverted index, optionally only those
// co-occurring with every --assoc term.
func RunTerms(g cliopt.GlobalOptions, argv []string) int {
	fs := newFlagSet("terms")
	var indexName, assoc, prefix, format string
	fs.StringVar(&indexName, "index", "", "inverted index")
	fs.StringVar(&indexName, "i", "", "inverted index")
	fs.StringVar(&assoc, "assoc", "", "associated terms: a,b")
	fs.StringVar(&prefix, "prefix", "", "term prefix")
	fs.StringVar(&format, "format", "pretty", "format: pretty|json")
	if err := fs.Parse(argv); err != nil {
		return 2
	}
	if indexName == "" {
		return usage("missing --index")
	}

	ctx := background()
	s, err := cliutil.Open(ctx, g)
	if err != nil {
		return fail(err)
	}
	defer s.Close()

	terms, err := s.DB.InvertedIndexTerms(ctx, indexName, cliutil.SplitList(assoc), prefix)
	if err != nil {
		return fail(err)
	}
	switch cliutil.ParseOutputFormat(format) {
	case cliutil.FormatJSON:
		cliutil.PrintJSON(os.Stdout, terms)
	default:
		for _, t := range terms {
			fmt.Fprintf(os.Stdout, "%-24s %d\n", t.Term, t.Count)
		}
	}
	return 0
}
