// Package db implements the db way over database/sql pools registered under
// logical connection names.
package db

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/cespare/xxhash/v2"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	"go.uber.org/multierr"

	"github.com/DJune12138/Collection3/internal/domain"
	"github.com/DJune12138/Collection3/internal/ports"
)

// Conn describes one logical connection.
type Conn struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// Fingerprint identifies the connection settings.
func (c Conn) Fingerprint() uint64 {
	h := xxhash.New()
	_, _ = h.WriteString(c.Driver)
	_, _ = h.Write([]byte{0})
	_, _ = h.WriteString(c.DSN)
	return h.Sum64()
}

var (
	// ErrDuplicateConnection is returned when two names share identical settings.
	ErrDuplicateConnection = errors.New("connection settings already registered")
	// ErrDuplicateName is returned when a name is registered twice.
	ErrDuplicateName = errors.New("connection name already registered")
)

// Registry maps connection names to drivers. It is built once at startup and
// passed to the downloader.
type Registry struct {
	mu           sync.RWMutex
	drivers      map[string]ports.Driver
	fingerprints map[uint64]string
	closers      []io.Closer
	open         func(driver, dsn string) (*sql.DB, error)
}

var _ ports.DriverResolver = (*Registry)(nil)

func NewRegistry() *Registry {
	return &Registry{
		drivers:      make(map[string]ports.Driver),
		fingerprints: make(map[uint64]string),
		open:         sql.Open,
	}
}

// Open creates a pool for c and registers it under name. A second
// connection with the same driver and DSN is rejected so callers reuse the
// first name instead of opening a parallel pool.
func (r *Registry) Open(name string, c Conn) error {
	dialect, ok := DialectFor(c.Driver)
	if !ok {
		return domain.Unsupported("db_open", "driver", c.Driver, "postgres", "pgx", "mysql")
	}
	if c.DSN == "" {
		return domain.Missing("db_open", "dsn")
	}

	fp := c.Fingerprint()
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.drivers[name]; dup {
		return fmt.Errorf("%s: %w", name, ErrDuplicateName)
	}
	if first, dup := r.fingerprints[fp]; dup {
		return fmt.Errorf("%s duplicates %s: %w", name, first, ErrDuplicateConnection)
	}

	pool, err := r.open(c.Driver, c.DSN)
	if err != nil {
		return fmt.Errorf("open %s: %w", name, err)
	}
	d := NewSQLDriver(pool, dialect)
	r.drivers[name] = d
	r.fingerprints[fp] = name
	r.closers = append(r.closers, d)
	return nil
}

// Register adds an existing driver under name.
func (r *Registry) Register(name string, d ports.Driver) error {
	if name == "" || d == nil {
		return domain.Missing("db_register", "name", "driver")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.drivers[name]; dup {
		return fmt.Errorf("%s: %w", name, ErrDuplicateName)
	}
	r.drivers[name] = d
	return nil
}

func (r *Registry) Driver(name string) (ports.Driver, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.drivers[name]
	return d, ok
}

// Names returns the registered connection names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.drivers))
	for n := range r.drivers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Close closes every pool opened by the registry.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var errs error
	for _, c := range r.closers {
		errs = multierr.Append(errs, c.Close())
	}
	r.closers = nil
	return errs
}
