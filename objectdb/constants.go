package objectdb

const (
	// Version is the on-disk layout version. Stores written with another
	// version are refused.
	Version = 1

	metaMagicKey   = "objectdb_magic"
	metaMagic      = "objectdb"
	metaVersionKey = "objectdb_version"

	savepointName = "objectdb_op"
)
