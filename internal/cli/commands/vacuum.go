package commands

import (
	"fmt"
	"os"

	"github.com/ministore/objectdb/internal/cliopt"
	"github.com/ministore/objectdb/internal/cliutil"
)

// RunVacuum drops unused terms and compacts the store.
func RunVacuum(g cliopt.GlobalOptions, argv []string) int {
	fs := newFlagSet("vacuum")
	if err := fs.Parse(argv); err != nil {
		return 2
	}
	ctx := background()
	s, err := cliutil.Open(ctx, g)
	if err != nil {
		return fail(err)
	}
	defer s.Close()

	if err := s.DB.Vacuum(ctx); err != nil {
		return fail(err)
	}
	fmt.Fprintln(os.Stdout, "vacuumed")
	return 0
}
