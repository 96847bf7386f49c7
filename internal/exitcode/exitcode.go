package exitcode

const (
	Success         = 0
	UsageError      = 1
	ValidationError = 2
	DBConnError     = 3
	CatalogError    = 4
	MigrationError  = 5
	PartialSuccess  = 6
)
