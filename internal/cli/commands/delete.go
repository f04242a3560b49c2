package commands

import (
	"fmt"
	"os"

	"github.com/ministore/objectdb/internal/cliopt"
	"github.com/ministore/objectdb/internal/cliutil"
	"github.com/ministore/objectdb/objectdb"
)

// RunDelete deletes one object by reference, or every object of a type
// matching a filter. Children are deleted with their parents.
func RunDelete(g cliopt.GlobalOptions, argv []string) int {
	fs := newFlagSet("delete")
	var refArg, typeName, where string
	fs.StringVar(&refArg, "ref", "", "object type:id")
	fs.StringVar(&refArg, "r", "", "object type:id")
	fs.StringVar(&typeName, "type", "", "object type")
	fs.StringVar(&typeName, "t", "", "object type")
	fs.StringVar(&where, "where", "", "filter expression")
	fs.StringVar(&where, "w", "", "filter expression")
	if err := fs.Parse(argv); err != nil {
		return 2
	}
	if (refArg == "") == (typeName == "") {
		return usage("provide either --ref or --type")
	}

	ctx := background()
	s, err := cliutil.Open(ctx, g)
	if err != nil {
		return fail(err)
	}
	defer s.Close()

	var n int
	if refArg != "" {
		ref, err := cliutil.ParseRef(refArg)
		if err != nil {
			return usage(err.Error())
		}
		n, err = s.DB.Delete(ctx, ref)
		if err != nil {
			return fail(err)
		}
	} else {
		q := objectdb.Query{Type: typeName}
		if where != "" {
			if q.Filters, err = cliutil.ParseWhere(s.DB, typeName, where); err != nil {
				return fail(err)
			}
		}
		n, err = s.DB.DeleteByQuery(ctx, q)
		if err != nil {
			return fail(err)
		}
	}
	if err := s.Close(); err != nil {
		return fail(err)
	}
	fmt.Fprintf(os.Stdout, "deleted %d\n", n)
	return 0
}
