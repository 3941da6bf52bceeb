package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

const defaultDBName = "capline.db"

type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
)

type Config struct {
	Workspace string
	Dialect   Dialect
	// Path overrides the sqlite file location.
	Path string
	// DSN is required for postgres.
	DSN    string
	Logger *log.Logger
}

// DB is a connection that remembers its dialect for placeholder rendering.
type DB struct {
	*sql.DB
	Dialect Dialect
}

func dbPath(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, ".capline", defaultDBName)
}

// EnsureWorkspace creates the .capline directory if missing.
func EnsureWorkspace(workspace string) (string, error) {
	if workspace == "" {
		workspace = "."
	}
	path := filepath.Join(workspace, ".capline")
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", err
	}
	return path, nil
}

// Path returns the default sqlite path for the workspace.
func Path(workspace string) string {
	return dbPath(workspace)
}

// Open connects to the configured dialect and pings it.
func Open(ctx context.Context, cfg Config) (*DB, error) {
	dialect := Dialect(strings.ToLower(strings.TrimSpace(string(cfg.Dialect))))
	if dialect == "" {
		dialect = SQLite
	}
	var driverName, dsn string
	switch dialect {
	case SQLite:
		driverName = "sqlite"
		path := cfg.Path
		if path == "" {
			if _, err := EnsureWorkspace(cfg.Workspace); err != nil {
				return nil, fmt.Errorf("create workspace: %w", err)
			}
			path = dbPath(cfg.Workspace)
		} else if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite directory: %w", err)
		}
		dsn = fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", path)
	case Postgres:
		driverName = "pgx"
		dsn = strings.TrimSpace(cfg.DSN)
		if dsn == "" {
			return nil, errors.New("postgres archive requires CAPLINE_POSTGRES_DSN")
		}
	default:
		return nil, fmt.Errorf("unsupported archive dialect %q", cfg.Dialect)
	}

	conn, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", dialect, err)
	}
	if dialect == SQLite {
		conn.SetMaxOpenConns(1)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping %s database: %w", dialect, err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	logger.Printf("database: dialect=%s", dialect)
	return &DB{DB: conn, Dialect: dialect}, nil
}

// Bind renders the placeholder for the pos-th argument (1-based).
func (d *DB) Bind(pos int) string {
	if d.Dialect == Postgres {
		return "$" + strconv.Itoa(pos)
	}
	return "?"
}

// Rebind rewrites ? placeholders for the connection's dialect.
func (d *DB) Rebind(query string) string {
	if d.Dialect != Postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString(d.Bind(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// InsertQuery builds an INSERT statement with dialect placeholders.
func (d *DB) InsertQuery(table string, cols []string) string {
	ph := make([]string, len(cols))
	for i := range cols {
		ph[i] = d.Bind(i + 1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(cols, ", "), strings.Join(ph, ", "))
}
