package dbpool

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/denisenkom/go-mssqldb" // mssql dialect driver registration
	_ "github.com/lib/pq"                // postgres dialect driver registration
)

// Dialect selects the database/sql driver name and placeholder style a
// SQLConfig connects with.
type Dialect string

const (
	Postgres Dialect = "postgres"
	MSSQL    Dialect = "sqlserver"
)

// SQLConfig mirrors the routing core's Postgres client config, widened
// to also address MSSQL, the DLR back-end the reference implementation
// targets most directly.
type SQLConfig struct {
	Dialect  Dialect
	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string // postgres only; ignored for MSSQL

	ConnectTimeout time.Duration
}

func (c SQLConfig) dsn() string {
	switch c.Dialect {
	case MSSQL:
		return fmt.Sprintf("sqlserver://%s:%s@%s:%d?database=%s",
			c.User, c.Password, c.Host, c.Port, c.Database)
	default:
		sslmode := c.SSLMode
		if sslmode == "" {
			sslmode = "disable"
		}
		return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
			c.Host, c.Port, c.Database, c.User, c.Password, sslmode)
	}
}

// sqlDriver opens one *sql.DB per handle (database/sql pools internally,
// but the spec's explicit pool layer still owns the consume/produce
// discipline and the liveness probe above it).
type sqlDriver struct {
	cfg SQLConfig
}

// NewSQLDriver returns a Driver (and SQLDriver) backed by database/sql,
// dialect-selected by cfg.Dialect.
func NewSQLDriver(cfg SQLConfig) SQLDriver {
	return &sqlDriver{cfg: cfg}
}

func (d *sqlDriver) Open(ctx context.Context) (Handle, error) {
	driverName := "postgres"
	if d.cfg.Dialect == MSSQL {
		driverName = "sqlserver"
	}
	db, err := sql.Open(driverName, d.cfg.dsn())
	if err != nil {
		return nil, err
	}
	timeout := d.cfg.ConnectTimeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func (d *sqlDriver) Close(h Handle) error {
	return h.(*sql.DB).Close()
}

func (d *sqlDriver) Check(h Handle) bool {
	db := h.(*sql.DB)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return db.PingContext(ctx) == nil
}

func (d *sqlDriver) Select(ctx context.Context, h Handle, stmt string, binds []any) ([]map[string]any, error) {
	db := h.(*sql.DB)
	rows, err := db.QueryContext(ctx, stmt, binds...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []map[string]any
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(cols))
		for i, c := range cols {
			row[c] = vals[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (d *sqlDriver) Update(ctx context.Context, h Handle, stmt string, binds []any) (int64, error) {
	db := h.(*sql.DB)
	res, err := db.ExecContext(ctx, stmt, binds...)
	if err != nil {
		return -1, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return -1, nil
	}
	return n, nil
}
