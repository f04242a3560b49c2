package cliopt

import "flag"

// GlobalOptions are parsed once at the CLI root and passed to subcommands.
// Non-empty values override the matching config file settings.
//
// NOTE: This is a separate package to avoid import cycles between the root
// command router and per-command code.
type GlobalOptions struct {
	ConfigPath string

	Backend        string
	DBPath         string
	SQLiteDriver   string
	PostgresDSN    string
	PostgresSchema string

	LogLevel string
}

func DefaultGlobalOptions() GlobalOptions {
	return GlobalOptions{}
}

func BindGlobalFlags(fs *flag.FlagSet, g *GlobalOptions) {
	fs.StringVar(&g.ConfigPath, "config", g.ConfigPath, "YAML config file")
	fs.StringVar(&g.ConfigPath, "c", g.ConfigPath, "YAML config file")

	fs.StringVar(&g.Backend, "backend", g.Backend, "backend: sqlite|postgres")

	fs.StringVar(&g.DBPath, "db", g.DBPath, "sqlite database file")
	fs.StringVar(&g.SQLiteDriver, "sqlite-driver", g.SQLiteDriver, "sqlite driver: sqlite|sqlite3")

	fs.StringVar(&g.PostgresDSN, "pg-dsn", g.PostgresDSN, "postgres DSN")
	fs.StringVar(&g.PostgresSchema, "pg-schema", g.PostgresSchema, "postgres schema")

	fs.StringVar(&g.LogLevel, "log-level", g.LogLevel, "log level: debug|info|warn|error")
}
