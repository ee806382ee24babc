package db

import (
	"context"
	"fmt"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/DJune12138/Collection3/internal/domain"
	"github.com/DJune12138/Collection3/internal/ports"
)

func TestSQLDriverInsertPostgresIgnoreOnConflict(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	d := NewSQLDriver(db, Postgres)

	expectedQuery := regexp.QuoteMeta("INSERT INTO orders (id, amount) VALUES ($1,$2),($3,$4) ON CONFLICT (id) DO NOTHING")
	mock.ExpectExec(expectedQuery).
		WithArgs(1, 9.5, 2, 3.0).
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := d.Insert(context.Background(), "orders", [][]any{{1, 9.5}, {2, 3.0}}, []string{"id", "amount"},
		ports.InsertOptions{DedupColumns: []string{"id"}, IgnoreOnConflict: true})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 affected rows, got %d", n)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSQLDriverInsertMySQL(t *testing.T) {
	tests := []struct {
		name  string
		opts  ports.InsertOptions
		query string
	}{
		{"ignore", ports.InsertOptions{IgnoreOnConflict: true}, "INSERT IGNORE INTO t (k, v) VALUES (?,?)"},
		{"upsert", ports.InsertOptions{DedupColumns: []string{"k"}}, "INSERT INTO t (k, v) VALUES (?,?) ON DUPLICATE KEY UPDATE v = VALUES(v)"},
		{"plain", ports.InsertOptions{}, "INSERT INTO t (k, v) VALUES (?,?)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, args, err := NewSQLDriver(nil, MySQL).buildInsert("t", [][]any{{"a", 1}}, []string{"k", "v"}, tt.opts)
			if err != nil {
				t.Fatalf("build: %v", err)
			}
			if q != tt.query {
				t.Fatalf("expected %q, got %q", tt.query, q)
			}
			if len(args) != 2 {
				t.Fatalf("expected 2 args, got %d", len(args))
			}
		})
	}
}

func TestSQLDriverPostgresUpsert(t *testing.T) {
	q, _, err := NewSQLDriver(nil, Postgres).buildInsert("t", [][]any{{"a", 1}}, []string{"k", "v"},
		ports.InsertOptions{DedupColumns: []string{"k"}})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	want := "INSERT INTO t (k, v) VALUES ($1,$2) ON CONFLICT (k) DO UPDATE SET v = EXCLUDED.v"
	if q != want {
		t.Fatalf("expected %q, got %q", want, q)
	}
}

func TestSQLDriverInsertRejectsBadInput(t *testing.T) {
	d := NewSQLDriver(nil, Postgres)

	_, _, err := d.buildInsert("t", [][]any{{1}}, []string{"a", "b"}, ports.InsertOptions{})
	if domain.KindOf(err) != domain.KindTypeMismatch {
		t.Fatalf("expected type mismatch for short row, got %v", err)
	}
	_, _, err = d.buildInsert("t; DROP TABLE x", [][]any{{1}}, []string{"a"}, ports.InsertOptions{})
	if domain.KindOf(err) != domain.KindValidationFailure {
		t.Fatalf("expected validation failure for bad identifier, got %v", err)
	}
}

func TestSQLDriverInsertNoRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	n, err := NewSQLDriver(db, Postgres).Insert(context.Background(), "t", nil, []string{"a"}, ports.InsertOptions{})
	if err != nil || n != 0 {
		t.Fatalf("expected no-op insert, got %d, %v", n, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSQLDriverSelect(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	rows := sqlmock.NewRows([]string{"id", "name"}).
		AddRow(1, []byte("alpha")).
		AddRow(2, []byte("beta"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name FROM users WHERE id > $1")).
		WithArgs(0).
		WillReturnRows(rows)

	got, err := NewSQLDriver(db, Postgres).Select(context.Background(), "users", []string{"id", "name"}, "id > $1", 0)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if len(got) != 2 || got[1]["name"] != "beta" {
		t.Fatalf("unexpected rows: %v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSQLDriverExecute(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	d := NewSQLDriver(db, MySQL)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE t SET a = ?")).
		WithArgs(1).
		WillReturnResult(sqlmock.NewResult(0, 4))
	res, err := d.Execute(context.Background(), "UPDATE t SET a = ?", 1)
	if err != nil {
		t.Fatalf("execute update: %v", err)
	}
	if res.Affected != 4 || res.Rows != nil {
		t.Fatalf("unexpected result: %+v", res)
	}

	mock.ExpectQuery("(?i)" + regexp.QuoteMeta("SELECT COUNT(*) AS n FROM t")).
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(7))
	res, err = d.Execute(context.Background(), "select COUNT(*) AS n FROM t")
	if err != nil {
		t.Fatalf("execute query: %v", err)
	}
	if len(res.Rows) != 1 || fmt.Sprint(res.Rows[0]["n"]) != "7" {
		t.Fatalf("unexpected rows: %+v", res.Rows)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
