package commands

import (
	"fmt"
	"os"

	"github.com/ministore/objectdb/internal/cliopt"
	"github.com/ministore/objectdb/internal/cliutil"
	"github.com/ministore/objectdb/objectdb"
)

// RunUpdate replaces the attributes given with --set. --parent moves the
// object; "--parent none" detaches it.
func RunUpdate(g cliopt.GlobalOptions, argv []string) int {
	fs := newFlagSet("update")
	var refArg, parentRef string
	var sets cliutil.MultiString
	fs.StringVar(&refArg, "ref", "", "object type:id")
	fs.StringVar(&refArg, "r", "", "object type:id")
	fs.StringVar(&parentRef, "parent", "", "new parent type:id, or none")
	fs.Var(&sets, "set", "set k=v (repeatable)")
	if err := fs.Parse(argv); err != nil {
		return 2
	}
	if refArg == "" {
		return usage("missing --ref")
	}
	ref, err := cliutil.ParseRef(refArg)
	if err != nil {
		return usage(err.Error())
	}

	var parent *objectdb.ObjectRef
	switch parentRef {
	case "":
	case "none":
		parent = &objectdb.ObjectRef{}
	default:
		p, err := cliutil.ParseRef(parentRef)
		if err != nil {
			return usage(err.Error())
		}
		parent = &p
	}

	ctx := background()
	s, err := cliutil.Open(ctx, g)
	if err != nil {
		return fail(err)
	}
	defer s.Close()

	t, err := cliutil.FindType(s.DB, ref.Type)
	if err != nil {
		return fail(err)
	}
	attrs, err := cliutil.ParseSets(t, sets)
	if err != nil {
		return usage(err.Error())
	}
	if err := s.DB.Update(ctx, ref, parent, attrs); err != nil {
		return fail(err)
	}
	if err := s.Close(); err != nil {
		return fail(err)
	}
	fmt.Fprintln(os.Stdout, "updated")
	return 0
}
