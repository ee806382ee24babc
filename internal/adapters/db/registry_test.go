package db

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DJune12138/Collection3/internal/domain"
	"github.com/DJune12138/Collection3/internal/ports"
)

func TestRegistryRejectsDuplicateSettings(t *testing.T) {
	r := NewRegistry()
	defer r.Close()

	conn := Conn{Driver: "postgres", DSN: "postgres://collector@localhost:5432/metrics?sslmode=disable"}
	require.NoError(t, r.Open("main", conn))

	err := r.Open("main_copy", conn)
	assert.True(t, errors.Is(err, ErrDuplicateConnection))
	assert.Contains(t, err.Error(), "main")

	err = r.Open("main", Conn{Driver: "pgx", DSN: "postgres://other@localhost:5432/metrics"})
	assert.True(t, errors.Is(err, ErrDuplicateName))

	require.NoError(t, r.Open("orders", Conn{Driver: "mysql", DSN: "collector:secret@tcp(localhost:3306)/orders"}))
	assert.Equal(t, []string{"main", "orders"}, r.Names())

	d, ok := r.Driver("orders")
	require.True(t, ok)
	assert.Equal(t, MySQL, d.(*SQLDriver).dialect)
}

func TestRegistryValidatesConn(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, domain.KindUnknownParameter, domain.KindOf(r.Open("x", Conn{Driver: "oracle", DSN: "x"})))
	assert.Equal(t, domain.KindMissingParameter, domain.KindOf(r.Open("x", Conn{Driver: "mysql"})))
}

func TestFingerprintDependsOnBothFields(t *testing.T) {
	a := Conn{Driver: "postgres", DSN: "dsn"}
	assert.Equal(t, a.Fingerprint(), Conn{Driver: "postgres", DSN: "dsn"}.Fingerprint())
	assert.NotEqual(t, a.Fingerprint(), Conn{Driver: "pgx", DSN: "dsn"}.Fingerprint())
	assert.NotEqual(t, Conn{Driver: "ab", DSN: "c"}.Fingerprint(), Conn{Driver: "a", DSN: "bc"}.Fingerprint())
}

type fakeDriver struct {
	mu      sync.Mutex
	calls   []string
	active  int
	peak    int
	hold    time.Duration
	lastOpt ports.InsertOptions
}

func (f *fakeDriver) enter(name string) func() {
	f.mu.Lock()
	f.calls = append(f.calls, name)
	f.active++
	if f.active > f.peak {
		f.peak = f.active
	}
	f.mu.Unlock()
	time.Sleep(f.hold)
	return func() {
		f.mu.Lock()
		f.active--
		f.mu.Unlock()
	}
}

func (f *fakeDriver) Select(_ context.Context, table string, _ []string, _ string, _ ...any) ([]ports.Row, error) {
	defer f.enter("select " + table)()
	return []ports.Row{{"table": table}}, nil
}

func (f *fakeDriver) Execute(_ context.Context, sql string, _ ...any) (ports.Result, error) {
	defer f.enter("execute")()
	return ports.Result{Affected: 1}, nil
}

func (f *fakeDriver) Insert(_ context.Context, table string, values [][]any, _ []string, opts ports.InsertOptions) (int64, error) {
	defer f.enter("insert " + table)()
	f.mu.Lock()
	f.lastOpt = opts
	f.mu.Unlock()
	return int64(len(values)), nil
}

func TestRunnerOperations(t *testing.T) {
	fake := &fakeDriver{}
	r := NewRegistry()
	require.NoError(t, r.Register("main", fake))
	run := NewRunner(r)
	ctx := context.Background()

	got, err := run.Run(ctx, map[string]any{"db_name": "main", "table": "users"})
	require.NoError(t, err)
	assert.Equal(t, []ports.Row{{"table": "users"}}, got)

	got, err = run.Run(ctx, map[string]any{"db_name": "main", "sql": "DELETE FROM t"})
	require.NoError(t, err)
	assert.Equal(t, ports.Result{Affected: 1}, got)

	got, err = run.Run(ctx, map[string]any{
		"db_type":            "insert",
		"db_object":          fake,
		"table":              "orders",
		"columns":            []string{"id", "v"},
		"values":             []any{[]any{1, "a"}, []any{2, "b"}},
		"dedup_columns":      "id",
		"ignore_on_conflict": true,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), got)
	assert.Equal(t, ports.InsertOptions{DedupColumns: []string{"id"}, IgnoreOnConflict: true}, fake.lastOpt)
}

func TestRunnerParameterErrors(t *testing.T) {
	run := NewRunner(NewRegistry())
	tests := []struct {
		name   string
		params map[string]any
		kind   domain.Kind
	}{
		{"missing sql and table", map[string]any{"db_name": "main"}, domain.KindMissingParameter},
		{"missing sql for execute", map[string]any{"db_type": "execute"}, domain.KindMissingParameter},
		{"unknown db_type", map[string]any{"db_type": "upsert"}, domain.KindUnknownParameter},
		{"no driver", map[string]any{"table": "t"}, domain.KindMissingParameter},
		{"unregistered name", map[string]any{"table": "t", "db_name": "ghost"}, domain.KindMissingParameter},
		{"db_object not a driver", map[string]any{"table": "t", "db_object": "main"}, domain.KindTypeMismatch},
		{"insert without values", map[string]any{"db_type": "insert", "table": "t", "columns": "a"}, domain.KindMissingParameter},
		{"insert bad row", map[string]any{"db_type": "insert", "table": "t", "columns": "a", "values": []any{1}}, domain.KindTypeMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run.Run(context.Background(), tt.params)
			assert.Equal(t, tt.kind, domain.KindOf(err), "%v", err)
		})
	}
}

func TestRunnerSerializeKey(t *testing.T) {
	fake := &fakeDriver{hold: 5 * time.Millisecond}
	run := NewRunner(nil)

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := run.Run(context.Background(), map[string]any{"db_object": fake, "table": "t", "serialize_key": "t"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, fake.peak)
	assert.Len(t, fake.calls, 6)
}
