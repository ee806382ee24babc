package ports

import "context"

// Row is one record returned by a Driver.
type Row = map[string]any

// Result is what Driver.Execute returns: rows for queries, an affected count otherwise.
type Result struct {
	Rows     []Row
	Affected int64
}

// InsertOptions tunes Driver.Insert conflict handling.
type InsertOptions struct {
	DedupColumns     []string
	IgnoreOnConflict bool
}

// Driver is the minimal storage contract used by the db way.
type Driver interface {
	Select(ctx context.Context, table string, columns []string, predicate string, args ...any) ([]Row, error)
	Execute(ctx context.Context, sql string, args ...any) (Result, error)
	Insert(ctx context.Context, table string, values [][]any, columns []string, opts InsertOptions) (int64, error)
}

// DriverResolver looks up a Driver by logical connection name.
type DriverResolver interface {
	Driver(name string) (Driver, bool)
}
