package db

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	"github.com/DJune12138/Collection3/internal/domain"
	"github.com/DJune12138/Collection3/internal/ports"
)

// Dialect selects placeholder and conflict syntax.
type Dialect int

const (
	Postgres Dialect = iota
	MySQL
)

// DialectFor maps a database/sql driver name to its Dialect.
func DialectFor(driverName string) (Dialect, bool) {
	switch driverName {
	case "postgres", "pgx":
		return Postgres, true
	case "mysql":
		return MySQL, true
	default:
		return 0, false
	}
}

func (d Dialect) placeholder(n int) string {
	if d == MySQL {
		return "?"
	}
	return fmt.Sprintf("$%d", n)
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

func checkIdent(op string, names ...string) error {
	for _, n := range names {
		if !identRe.MatchString(n) {
			return domain.Errorf(domain.KindValidationFailure, op, "invalid identifier %q", n)
		}
	}
	return nil
}

// SQLDriver implements ports.Driver over a database/sql pool.
type SQLDriver struct {
	db      *sql.DB
	dialect Dialect
}

var _ ports.Driver = (*SQLDriver)(nil)

func NewSQLDriver(db *sql.DB, dialect Dialect) *SQLDriver {
	return &SQLDriver{db: db, dialect: dialect}
}

// DB exposes the underlying pool.
func (d *SQLDriver) DB() *sql.DB { return d.db }

func (d *SQLDriver) Close() error { return d.db.Close() }

// Select reads columns of table filtered by predicate. The predicate is raw
// SQL and must use the dialect's placeholders for args.
func (d *SQLDriver) Select(ctx context.Context, table string, columns []string, predicate string, args ...any) ([]ports.Row, error) {
	if err := checkIdent("select", table); err != nil {
		return nil, err
	}
	if err := checkIdent("select", columns...); err != nil {
		return nil, err
	}

	cols := "*"
	if len(columns) > 0 {
		cols = strings.Join(columns, ", ")
	}
	q := "SELECT " + cols + " FROM " + table
	if predicate != "" {
		q += " WHERE " + predicate
	}

	rows, err := d.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRows(rows)
}

// Execute runs sql. Statements that produce rows return them, others return
// the affected count.
func (d *SQLDriver) Execute(ctx context.Context, query string, args ...any) (ports.Result, error) {
	if returnsRows(query) {
		rows, err := d.db.QueryContext(ctx, query, args...)
		if err != nil {
			return ports.Result{}, err
		}
		defer rows.Close()
		out, err := scanRows(rows)
		if err != nil {
			return ports.Result{}, err
		}
		return ports.Result{Rows: out, Affected: int64(len(out))}, nil
	}

	res, err := d.db.ExecContext(ctx, query, args...)
	if err != nil {
		return ports.Result{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return ports.Result{}, err
	}
	return ports.Result{Affected: n}, nil
}

func returnsRows(query string) bool {
	q := strings.ToUpper(strings.TrimSpace(query))
	for _, p := range []string{"SELECT", "WITH", "SHOW", "DESCRIBE", "DESC ", "EXPLAIN", "VALUES"} {
		if strings.HasPrefix(q, p) {
			return true
		}
	}
	return strings.Contains(q, " RETURNING ")
}

// Insert writes values in one multi-row statement. With IgnoreOnConflict,
// rows conflicting on DedupColumns (or any unique key) are skipped; with only
// DedupColumns set, conflicting rows are updated in place.
func (d *SQLDriver) Insert(ctx context.Context, table string, values [][]any, columns []string, opts ports.InsertOptions) (int64, error) {
	if len(values) == 0 {
		return 0, nil
	}
	q, args, err := d.buildInsert(table, values, columns, opts)
	if err != nil {
		return 0, err
	}
	res, err := d.db.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (d *SQLDriver) buildInsert(table string, values [][]any, columns []string, opts ports.InsertOptions) (string, []any, error) {
	const op = "insert"
	if len(columns) == 0 {
		return "", nil, domain.Missing(op, "columns")
	}
	if err := checkIdent(op, table); err != nil {
		return "", nil, err
	}
	if err := checkIdent(op, columns...); err != nil {
		return "", nil, err
	}
	if err := checkIdent(op, opts.DedupColumns...); err != nil {
		return "", nil, err
	}

	var b strings.Builder
	if d.dialect == MySQL && opts.IgnoreOnConflict {
		b.WriteString("INSERT IGNORE INTO ")
	} else {
		b.WriteString("INSERT INTO ")
	}
	b.WriteString(table)
	b.WriteString(" (")
	b.WriteString(strings.Join(columns, ", "))
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(values)*len(columns))
	for i, row := range values {
		if len(row) != len(columns) {
			return "", nil, domain.Errorf(domain.KindTypeMismatch, op, "row %d has %d values for %d columns", i, len(row), len(columns))
		}
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString("(")
		for j := range row {
			if j > 0 {
				b.WriteString(",")
			}
			b.WriteString(d.dialect.placeholder(len(args) + j + 1))
		}
		b.WriteString(")")
		args = append(args, row...)
	}

	b.WriteString(d.conflictClause(columns, opts))
	return b.String(), args, nil
}

func (d *SQLDriver) conflictClause(columns []string, opts ports.InsertOptions) string {
	switch d.dialect {
	case MySQL:
		if opts.IgnoreOnConflict || len(opts.DedupColumns) == 0 {
			return ""
		}
		sets := updateSet(columns, opts.DedupColumns, func(c string) string { return c + " = VALUES(" + c + ")" })
		if sets == "" {
			return ""
		}
		return " ON DUPLICATE KEY UPDATE " + sets
	default:
		target := ""
		if len(opts.DedupColumns) > 0 {
			target = " (" + strings.Join(opts.DedupColumns, ", ") + ")"
		}
		if opts.IgnoreOnConflict {
			return " ON CONFLICT" + target + " DO NOTHING"
		}
		if target == "" {
			return ""
		}
		sets := updateSet(columns, opts.DedupColumns, func(c string) string { return c + " = EXCLUDED." + c })
		if sets == "" {
			return " ON CONFLICT" + target + " DO NOTHING"
		}
		return " ON CONFLICT" + target + " DO UPDATE SET " + sets
	}
}

func updateSet(columns, keys []string, assign func(string) string) string {
	skip := make(map[string]bool, len(keys))
	for _, k := range keys {
		skip[k] = true
	}
	var sets []string
	for _, c := range columns {
		if !skip[c] {
			sets = append(sets, assign(c))
		}
	}
	return strings.Join(sets, ", ")
}

func scanRows(rows *sql.Rows) ([]ports.Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []ports.Row
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(ports.Row, len(cols))
		for i, c := range cols {
			if b, ok := vals[i].([]byte); ok {
				row[c] = string(b)
				continue
			}
			row[c] = vals[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
