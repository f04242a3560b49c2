package cli

import (
	"flag"
	"fmt"
	"os"

	"github.com/ministore/objectdb/internal/cli/commands"
	"github.com/ministore/objectdb/internal/cliopt"
)

// Execute runs the CLI and returns an exit code.
func Execute(argv []string) int {
	globalFS := flag.NewFlagSet("objectdb", flag.ContinueOnError)
	globalFS.SetOutput(os.Stderr)
	g := cliopt.DefaultGlobalOptions()
	cliopt.BindGlobalFlags(globalFS, &g)

	if err := globalFS.Parse(argv); err != nil {
		// flag package already printed the error
		return 2
	}

	args := globalFS.Args()
	if len(args) == 0 {
		PrintRootHelp(os.Stdout)
		return 0
	}

	verb := args[0]
	rest := args[1:]

	switch verb {
	case "--help", "-h", "help":
		PrintRootHelp(os.Stdout)
		return 0
	case "schema":
		return commands.RunSchema(g, rest)
	case "add":
		return commands.RunAdd(g, rest)
	case "update":
		return commands.RunUpdate(g, rest)
	case "delete":
		return commands.RunDelete(g, rest)
	case "query":
		return commands.RunQuery(g, rest)
	case "terms":
		return commands.RunTerms(g, rest)
	case "info":
		return commands.RunInfo(g, rest)
	case "vacuum":
		return commands.RunVacuum(g, rest)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", verb)
		PrintRootHelp(os.Stderr)
		return 2
	}
}
