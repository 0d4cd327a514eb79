package dlr

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kannel-go/smsbox/internal/dbpool"
)

// SQLFields names the columns the SQL store reads and writes, mirroring
// the reference implementation's externally-provisioned schema
// assumption — the store never creates or migrates a table.
type SQLFields struct {
	Table       string
	SMSC        string
	Timestamp   string
	Source      string
	Destination string
	Service     string
	URL         string
	Mask        string
	BoxCID      string
	Status      string
}

// DefaultSQLFields is the column layout used when none is configured.
var DefaultSQLFields = SQLFields{
	Table: "dlr", SMSC: "smsc", Timestamp: "ts", Source: "source",
	Destination: "destination", Service: "service", URL: "url",
	Mask: "mask", BoxCID: "boxc_id", Status: "status",
}

type sqlStore struct {
	pool    *dbpool.Pool
	driver  dbpool.SQLDriver
	dialect dbpool.Dialect
	fields  SQLFields
	log     *zap.Logger
	events  *EventPublisher // may be nil
}

// NewSQLStore builds a Store over pool, which must have been created
// with an SQLDriver (passed separately since the pool only knows the
// narrower Driver interface).
func NewSQLStore(pool *dbpool.Pool, driver dbpool.SQLDriver, dialect dbpool.Dialect, fields SQLFields, log *zap.Logger, events *EventPublisher) Store {
	return &sqlStore{pool: pool, driver: driver, dialect: dialect, fields: fields, log: log, events: events}
}

func (s *sqlStore) withHandle(ctx context.Context, op string, fn func(h dbpool.Handle) error) {
	h, err := s.pool.Consume(ctx)
	if err != nil {
		s.log.Warn("dlr: pool exhausted", zap.String("op", op), zap.Error(err))
		return
	}
	defer s.pool.Produce(h)
	if err := fn(h); err != nil {
		s.log.Warn("dlr: back-end error", zap.String("op", op), zap.Error(err))
	}
}

func (s *sqlStore) Add(ctx context.Context, e *Entry) error {
	if e.SMSC == "" || e.Timestamp == "" {
		return fmt.Errorf("dlr: smsc and timestamp are required")
	}
	f := s.fields
	stmt := fmt.Sprintf(
		"INSERT INTO %s (%s,%s,%s,%s,%s,%s,%s,%s,%s) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,0)",
		f.Table, f.SMSC, f.Timestamp, f.Source, f.Destination, f.Service, f.URL, f.Mask, f.BoxCID, f.Status)
	binds := []any{e.SMSC, e.Timestamp, e.Source, e.Destination, e.Service, e.URL, e.Mask, e.BoxCID}
	s.withHandle(ctx, "add", func(h dbpool.Handle) error {
		_, err := s.driver.Update(ctx, h, stmt, binds)
		return err
	})
	return nil
}

func (s *sqlStore) Get(ctx context.Context, smsc, ts, dst string) (*Entry, bool) {
	f := s.fields
	stmt := fmt.Sprintf("SELECT %s,%s,%s,%s,%s,%s,%s,%s FROM %s WHERE %s=$1 AND %s=$2",
		f.SMSC, f.Timestamp, f.Source, f.Destination, f.Service, f.URL, f.Mask, f.Status,
		f.Table, f.SMSC, f.Timestamp)
	binds := []any{smsc, ts}
	if dst != "" {
		stmt += fmt.Sprintf(" AND %s LIKE $3", f.Destination)
		binds = append(binds, "%"+dst)
	}
	stmt += " LIMIT 1"

	var found *Entry
	s.withHandle(ctx, "get", func(h dbpool.Handle) error {
		rows, err := s.driver.Select(ctx, h, stmt, binds)
		if err != nil || len(rows) == 0 {
			return err
		}
		r := rows[0]
		found = &Entry{
			SMSC:        fmt.Sprint(r[f.SMSC]),
			Timestamp:   fmt.Sprint(r[f.Timestamp]),
			Source:      fmt.Sprint(r[f.Source]),
			Destination: fmt.Sprint(r[f.Destination]),
			Service:     fmt.Sprint(r[f.Service]),
			URL:         fmt.Sprint(r[f.URL]),
			Mask:        intOf(r[f.Mask]),
			Status:      intOf(r[f.Status]),
		}
		return nil
	})
	return found, found != nil
}

func (s *sqlStore) Update(ctx context.Context, smsc, ts, dst string, status int) {
	f := s.fields
	where := fmt.Sprintf("%s=$2 AND %s=$3", f.SMSC, f.Timestamp)
	binds := []any{status, smsc, ts}
	if dst != "" {
		where += fmt.Sprintf(" AND %s LIKE $4", f.Destination)
		binds = append(binds, "%"+dst)
	}
	stmt := s.atMostOneUpdate(fmt.Sprintf("UPDATE %s SET %s=$1 WHERE %s", f.Table, f.Status, where))
	s.withHandle(ctx, "update", func(h dbpool.Handle) error {
		_, err := s.driver.Update(ctx, h, stmt, binds)
		if err == nil && s.events != nil {
			s.events.PublishStatusChange(ctx, smsc, ts, dst, status)
		}
		return err
	})
}

func (s *sqlStore) Remove(ctx context.Context, smsc, ts, dst string) {
	f := s.fields
	where := fmt.Sprintf("%s=$1 AND %s=$2", f.SMSC, f.Timestamp)
	binds := []any{smsc, ts}
	if dst != "" {
		where += fmt.Sprintf(" AND %s LIKE $3", f.Destination)
		binds = append(binds, "%"+dst)
	}
	stmt := s.atMostOneUpdate(fmt.Sprintf("DELETE FROM %s WHERE %s", f.Table, where))
	s.withHandle(ctx, "remove", func(h dbpool.Handle) error {
		_, err := s.driver.Update(ctx, h, stmt, binds)
		return err
	})
}

func (s *sqlStore) Messages(ctx context.Context) int64 {
	var n int64 = -1
	stmt := fmt.Sprintf("SELECT COUNT(*) AS c FROM %s", s.fields.Table)
	s.withHandle(ctx, "messages", func(h dbpool.Handle) error {
		rows, err := s.driver.Select(ctx, h, stmt, nil)
		if err != nil {
			return err
		}
		if len(rows) == 1 {
			switch v := rows[0]["c"].(type) {
			case int64:
				n = v
			case int32:
				n = int64(v)
			}
		}
		return nil
	})
	return n
}

func (s *sqlStore) Flush(ctx context.Context) error {
	var outerErr error
	s.withHandle(ctx, "flush", func(h dbpool.Handle) error {
		_, err := s.driver.Update(ctx, h, fmt.Sprintf("DELETE FROM %s", s.fields.Table), nil)
		outerErr = err
		return err
	})
	return outerErr
}

// atMostOneUpdate brackets stmt so it affects at most one row, matching
// the reference implementation's SET ROWCOUNT 1 discipline on MSSQL and
// an equivalent row-limited subquery on Postgres.
func (s *sqlStore) atMostOneUpdate(stmt string) string {
	if s.dialect == dbpool.MSSQL {
		return "SET ROWCOUNT 1; " + stmt + "; SET ROWCOUNT 0;"
	}
	// Postgres has no ROWCOUNT knob; emulate "at most one" by rewriting
	// the predicate to target a single ctid selected under the same
	// WHERE clause. Cheap for the small, indexed (smsc, ts) match this
	// store always performs.
	return rewriteToSingleCtid(stmt)
}
