package duck

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	_ "github.com/duckdb/duckdb-go/v2"
)

type DB interface {
	Catalog() string
	Schema() string
	Close() error
	Conn(ctx context.Context) (Connection, error)
}

type Connection interface {
	DB() DB
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
	Close() error
}

// EngineConfig configures the embedded DuckDB engine.
type EngineConfig struct {
	Logger *slog.Logger

	// Path is the database file; empty keeps the database in memory for the run.
	Path string

	// S3 enables the httpfs/aws extensions and installs a scoped secret. Required when
	// any input or output URI is s3://.
	S3 *S3Config

	// Threads caps DuckDB worker threads; zero leaves DuckDB's default.
	Threads int

	// MemoryLimit is passed to SET memory_limit (e.g. "4GB"); empty leaves the default.
	MemoryLimit string
}

func (c *EngineConfig) Validate() error {
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	if c.Threads < 0 {
		return errors.New("threads must be non-negative")
	}
	if c.S3 != nil {
		if err := c.S3.Validate(); err != nil {
			return fmt.Errorf("invalid S3 config: %w", err)
		}
	}
	return nil
}

// Engine is the columnar query engine every stage runs against. Tables created on one
// connection are visible to all others, which is how row-sets move between stages.
type Engine struct {
	log     *slog.Logger
	db      *sql.DB
	catalog string
	schema  string
}

type engineConn struct {
	conn    *sql.Conn
	db      *Engine
	writeMu sync.Mutex // serializes all write operations
}

func NewEngine(ctx context.Context, cfg EngineConfig) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	db, err := sql.Open("duckdb", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	settings := []string{}
	if cfg.Threads > 0 {
		settings = append(settings, fmt.Sprintf("SET threads = %d", cfg.Threads))
	}
	if cfg.MemoryLimit != "" {
		settings = append(settings, fmt.Sprintf("SET memory_limit = %s", QuoteLiteral(cfg.MemoryLimit)))
	}
	for _, stmt := range settings {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", stmt, err)
		}
	}

	if cfg.S3 != nil {
		for _, ext := range []string{"httpfs", "aws"} {
			if _, err := db.ExecContext(ctx, fmt.Sprintf("INSTALL '%s'", ext)); err != nil {
				db.Close()
				return nil, fmt.Errorf("failed to install extension %s: %w", ext, err)
			}
			if _, err := db.ExecContext(ctx, fmt.Sprintf("LOAD '%s'", ext)); err != nil {
				db.Close()
				return nil, fmt.Errorf("failed to load extension %s: %w", ext, err)
			}
		}
		if _, err := db.ExecContext(ctx, cfg.S3.secretSQL()); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create S3 secret: %w", err)
		}
		cfg.Logger.Info("configured S3 storage", "endpoint", cfg.S3.Endpoint, "region", cfg.S3.Region)
	}

	row := db.QueryRowContext(ctx, "SELECT current_database() AS catalog, current_schema() AS schema")
	var catalog, schema string
	if err := row.Scan(&catalog, &schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to get current database and schema: %w", err)
	}

	return &Engine{
		log:     cfg.Logger,
		db:      db,
		catalog: catalog,
		schema:  schema,
	}, nil
}

func (e *Engine) Catalog() string {
	return e.catalog
}

func (e *Engine) Schema() string {
	return e.schema
}

func (e *Engine) Close() error {
	return e.db.Close()
}

func (e *Engine) Conn(ctx context.Context) (Connection, error) {
	conn, err := e.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open connection: %w", err)
	}
	if _, err := conn.ExecContext(ctx, "USE "+QuoteIdent(e.catalog)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to use database: %w", err)
	}
	if _, err := conn.ExecContext(ctx, "SET schema = "+QuoteLiteral(e.schema)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to set schema: %w", err)
	}
	return &engineConn{
		conn: conn,
		db:   e,
	}, nil
}

func (c *engineConn) DB() DB {
	return c.db
}

func (c *engineConn) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	return c.conn.ExecContext(ctx, query, args...)
}

func (c *engineConn) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return c.conn.QueryContext(ctx, query, args...)
}

func (c *engineConn) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return c.conn.QueryRowContext(ctx, query, args...)
}

func (c *engineConn) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	return c.conn.BeginTx(ctx, opts)
}

func (c *engineConn) Close() error {
	return c.conn.Close()
}
