package commands

import (
	"os"

	"github.com/ministore/objectdb/internal/cliopt"
	"github.com/ministore/objectdb/internal/cliutil"
)

func RunInfo(g cliopt.GlobalOptions, argv []string) int {
	fs := newFlagSet("info")
	if err := fs.Parse(argv); err != nil {
		return 2
	}
	ctx := background()
	s, err := cliutil.Open(ctx, g)
	if err != nil {
		return fail(err)
	}
	defer s.Close()

	info, err := s.DB.Info(ctx)
	if err != nil {
		return fail(err)
	}
	cliutil.PrintJSON(os.Stdout, info)
	return 0
}
