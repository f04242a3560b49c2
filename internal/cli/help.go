package cli

import "io"

const rootHelp = `objectdb: embedded object store with ranked inverted-index search

USAGE
  objectdb [global flags] <command> [args]

GLOBAL FLAGS
  --config, -c <file.yaml>
  --backend sqlite|postgres
  --db <file.db>
  --sqlite-driver sqlite|sqlite3
  --pg-dsn <dsn>
  --pg-schema <schema>
  --log-level debug|info|warn|error

COMMANDS
  schema apply|show
  add     --type T [--parent T:id] (--set k=v ... | --json | --import file)
  update  --ref T:id [--parent T:id|none] --set k=v ...
  delete  --ref T:id | --type T [--where expr]
  query   [--type T] [--terms index=words] [--where expr] [--parent T[:id]]
          [--attrs a,b] [--distinct] [--limit n] [--format pretty|json]
  terms   --index I [--assoc a,b] [--prefix p]
  info
  vacuum

WHERE EXPRESSIONS
  year>=2000 AND title~"%cat%" AND genre in (drama, comedy) AND rating:1..5

Run "objectdb <command> --help" for command flags.
`

func PrintRootHelp(w io.Writer) {
	_, _ = io.WriteString(w, rootHelp)
}
