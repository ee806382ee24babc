package db

import (
	"context"
	"strings"

	"github.com/DJune12138/Collection3/internal/app/keylock"
	"github.com/DJune12138/Collection3/internal/domain"
	"github.com/DJune12138/Collection3/internal/ports"
)

// Operations accepted in the db_type parameter.
const (
	TypeSelect  = "select"
	TypeExecute = "execute"
	TypeInsert  = "insert"
)

// Runner executes db-way requests against drivers resolved by name or
// injected through db_object.
type Runner struct {
	resolver ports.DriverResolver
	locks    *keylock.Map
}

func NewRunner(resolver ports.DriverResolver) *Runner {
	return &Runner{resolver: resolver, locks: &keylock.Map{}}
}

// Run performs one db-way request. The payload is []ports.Row for select,
// ports.Result for execute and the affected count for insert.
func (r *Runner) Run(ctx context.Context, params map[string]any) (any, error) {
	const op = "db"
	p := domain.Params(params)

	dbType, ok, err := p.String("db_type")
	if err != nil {
		return nil, err
	}
	if !ok {
		dbType = TypeSelect
		if _, hasSQL := params["sql"]; hasSQL {
			dbType = TypeExecute
		}
	}

	var run func(ports.Driver) (any, error)
	switch strings.ToLower(dbType) {
	case TypeSelect:
		run, err = r.selectCall(ctx, p)
	case TypeExecute:
		run, err = r.executeCall(ctx, p)
	case TypeInsert:
		run, err = r.insertCall(ctx, p)
	default:
		return nil, domain.Unsupported(op, "db_type", dbType, TypeSelect, TypeExecute, TypeInsert)
	}
	if err != nil {
		return nil, err
	}

	d, err := r.driver(p)
	if err != nil {
		return nil, err
	}
	key, _, err := p.String("serialize_key")
	if err != nil {
		return nil, err
	}

	unlock := r.locks.Lock(key)
	defer unlock()
	return run(d)
}

func (r *Runner) driver(p domain.Params) (ports.Driver, error) {
	if obj, ok := p["db_object"]; ok && obj != nil {
		d, ok := obj.(ports.Driver)
		if !ok {
			return nil, domain.Errorf(domain.KindTypeMismatch, "db", "db_object is %T, not a driver", obj)
		}
		return d, nil
	}
	name, ok, err := p.String("db_name")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.Missing("db", "db_name", "db_object")
	}
	if r.resolver == nil {
		return nil, domain.Errorf(domain.KindMissingParameter, "db", "no connection registered as %q", name)
	}
	d, ok := r.resolver.Driver(name)
	if !ok {
		return nil, domain.Errorf(domain.KindMissingParameter, "db", "no connection registered as %q", name)
	}
	return d, nil
}

func (r *Runner) selectCall(ctx context.Context, p domain.Params) (func(ports.Driver) (any, error), error) {
	table, ok, err := p.String("table")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.Missing("db_select", "table")
	}
	columns, _, err := p.Strings("columns")
	if err != nil {
		return nil, err
	}
	predicate, _, err := p.String("predicate")
	if err != nil {
		return nil, err
	}
	args, _, err := p.Slice("args")
	if err != nil {
		return nil, err
	}
	return func(d ports.Driver) (any, error) {
		return d.Select(ctx, table, columns, predicate, args...)
	}, nil
}

func (r *Runner) executeCall(ctx context.Context, p domain.Params) (func(ports.Driver) (any, error), error) {
	query, ok, err := p.String("sql")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.Missing("db_execute", "sql")
	}
	args, _, err := p.Slice("args")
	if err != nil {
		return nil, err
	}
	return func(d ports.Driver) (any, error) {
		return d.Execute(ctx, query, args...)
	}, nil
}

func (r *Runner) insertCall(ctx context.Context, p domain.Params) (func(ports.Driver) (any, error), error) {
	table, ok, err := p.String("table")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.Missing("db_insert", "table")
	}
	columns, ok, err := p.Strings("columns")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.Missing("db_insert", "columns")
	}
	values, err := rowsParam(p["values"])
	if err != nil {
		return nil, err
	}
	dedup, _, err := p.Strings("dedup_columns")
	if err != nil {
		return nil, err
	}
	ignore, _, err := p.Bool("ignore_on_conflict")
	if err != nil {
		return nil, err
	}
	opts := ports.InsertOptions{DedupColumns: dedup, IgnoreOnConflict: ignore}
	return func(d ports.Driver) (any, error) {
		return d.Insert(ctx, table, values, columns, opts)
	}, nil
}

func rowsParam(v any) ([][]any, error) {
	switch rows := v.(type) {
	case nil:
		return nil, domain.Missing("db_insert", "values")
	case [][]any:
		return rows, nil
	case []any:
		out := make([][]any, 0, len(rows))
		for i, r := range rows {
			row, ok := r.([]any)
			if !ok {
				return nil, domain.Errorf(domain.KindTypeMismatch, "db_insert", "values[%d] is %T, not a row", i, r)
			}
			out = append(out, row)
		}
		return out, nil
	default:
		return nil, domain.Errorf(domain.KindTypeMismatch, "db_insert", "values is %T, not a list of rows", v)
	}
}
