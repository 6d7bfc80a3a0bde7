// Package sqldb wraps the user's own database: connection setup per driver,
// schema introspection for prompt grounding, and execution of generated
// queries.
package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"  // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3"     // SQLite driver
)

const (
	DriverMySQL    = "mysql"
	DriverPostgres = "pgx"
	DriverSQLite   = "sqlite3"
)

// Params holds user-supplied connection settings from the connect action.
type Params struct {
	Driver   string `json:"driver"`
	Host     string `json:"host"`
	Port     string `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
}

// ConnectError covers everything that prevents talking to the database:
// bad settings, unreachable host, dropped connection. Its message is for
// the server log; user-facing text comes from the error classifier.
type ConnectError struct {
	Err error
}

func (e *ConnectError) Error() string { return "database connection failed: " + e.Err.Error() }
func (e *ConnectError) Unwrap() error { return e.Err }

// ExecError is the engine rejecting a query. The engine message is safe to
// show to the user alongside the syntax hint.
type ExecError struct {
	Query string
	Err   error
}

func (e *ExecError) Error() string { return e.Err.Error() }
func (e *ExecError) Unwrap() error { return e.Err }

// Conn is an established connection to the user's database, created once
// per connect action and reused for every turn of the session.
type Conn struct {
	db     *sql.DB
	driver string
}

func Connect(ctx context.Context, p Params) (*Conn, error) {
	dsn, err := buildDSN(p)
	if err != nil {
		return nil, &ConnectError{Err: err}
	}

	db, err := sql.Open(p.Driver, dsn)
	if err != nil {
		return nil, &ConnectError{Err: err}
	}
	if err = db.PingContext(ctx); err != nil {
		db.Close()
		return nil, &ConnectError{Err: err}
	}
	return &Conn{db: db, driver: p.Driver}, nil
}

// NewConn wraps an already-open handle. Used by tests.
func NewConn(db *sql.DB, driver string) *Conn {
	return &Conn{db: db, driver: driver}
}

func (c *Conn) Close() error {
	return c.db.Close()
}

// Dialect returns the human-readable engine name used in prompts.
func (c *Conn) Dialect() string {
	switch c.driver {
	case DriverPostgres:
		return "PostgreSQL"
	case DriverSQLite:
		return "SQLite"
	default:
		return "MySQL"
	}
}

func buildDSN(p Params) (string, error) {
	switch p.Driver {
	case DriverMySQL:
		cfg := mysql.NewConfig()
		cfg.User = p.User
		cfg.Passwd = p.Password
		cfg.Net = "tcp"
		cfg.Addr = net.JoinHostPort(p.Host, p.Port)
		cfg.DBName = p.Database
		cfg.ParseTime = true
		return cfg.FormatDSN(), nil
	case DriverPostgres:
		u := url.URL{
			Scheme: "postgres",
			User:   url.UserPassword(p.User, p.Password),
			Host:   net.JoinHostPort(p.Host, p.Port),
			Path:   "/" + p.Database,
		}
		return u.String(), nil
	case DriverSQLite:
		if strings.TrimSpace(p.Database) == "" {
			return "", fmt.Errorf("sqlite connection requires a database path")
		}
		return p.Database, nil
	default:
		return "", fmt.Errorf("unsupported driver %q", p.Driver)
	}
}
