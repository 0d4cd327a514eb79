package dlr

import (
	"context"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/kannel-go/smsbox/internal/dbpool"
)

type fakeSQLDriver struct {
	rows      []map[string]any
	lastStmt  string
	lastBinds []any
	updateErr error
	affected  int64
}

func (d *fakeSQLDriver) Open(ctx context.Context) (dbpool.Handle, error) { return "handle", nil }
func (d *fakeSQLDriver) Close(h dbpool.Handle) error                     { return nil }
func (d *fakeSQLDriver) Check(h dbpool.Handle) bool                      { return true }

func (d *fakeSQLDriver) Select(ctx context.Context, h dbpool.Handle, stmt string, binds []any) ([]map[string]any, error) {
	d.lastStmt, d.lastBinds = stmt, binds
	return d.rows, nil
}

func (d *fakeSQLDriver) Update(ctx context.Context, h dbpool.Handle, stmt string, binds []any) (int64, error) {
	d.lastStmt, d.lastBinds = stmt, binds
	return d.affected, d.updateErr
}

func newTestStore(t *testing.T, dialect dbpool.Dialect, driver *fakeSQLDriver) *sqlStore {
	t.Helper()
	pool, err := dbpool.New(context.Background(), testDriverAdapter{driver}, 1)
	if err != nil {
		t.Fatalf("dbpool.New: %v", err)
	}
	return &sqlStore{pool: pool, driver: driver, dialect: dialect, fields: DefaultSQLFields, log: zap.NewNop()}
}

// testDriverAdapter lets fakeSQLDriver (an SQLDriver) satisfy dbpool.Driver
// for pool construction.
type testDriverAdapter struct{ d *fakeSQLDriver }

func (a testDriverAdapter) Open(ctx context.Context) (dbpool.Handle, error) { return a.d.Open(ctx) }
func (a testDriverAdapter) Close(h dbpool.Handle) error                     { return a.d.Close(h) }
func (a testDriverAdapter) Check(h dbpool.Handle) bool                      { return a.d.Check(h) }

func TestSQLStoreUpdateBracketsAtMostOneMSSQL(t *testing.T) {
	d := &fakeSQLDriver{}
	s := newTestStore(t, dbpool.MSSQL, d)
	s.Update(context.Background(), "S", "T", "1234", 2)
	if !strings.Contains(d.lastStmt, "SET ROWCOUNT 1") {
		t.Fatalf("expected ROWCOUNT bracket, got %q", d.lastStmt)
	}
	if !strings.Contains(d.lastStmt, "LIKE $4") {
		t.Fatalf("expected suffix match on destination, got %q", d.lastStmt)
	}
}

func TestSQLStoreUpdateRewritesCtidPostgres(t *testing.T) {
	d := &fakeSQLDriver{}
	s := newTestStore(t, dbpool.Postgres, d)
	s.Update(context.Background(), "S", "T", "", 2)
	if !strings.Contains(d.lastStmt, "ctid = (SELECT ctid FROM") {
		t.Fatalf("expected ctid single-row rewrite, got %q", d.lastStmt)
	}
	if strings.Contains(d.lastStmt, "LIKE") {
		t.Fatalf("dst empty should not add a LIKE clause: %q", d.lastStmt)
	}
}

func TestSQLStoreGetReturnsNoMatch(t *testing.T) {
	d := &fakeSQLDriver{rows: nil}
	s := newTestStore(t, dbpool.Postgres, d)
	e, ok := s.Get(context.Background(), "S", "T", "")
	if ok || e != nil {
		t.Fatalf("expected no match, got %+v", e)
	}
}

func TestSQLStoreGetReturnsMatch(t *testing.T) {
	d := &fakeSQLDriver{rows: []map[string]any{{
		"smsc": "S", "ts": "T", "source": "src", "destination": "dst",
		"service": "svc", "url": "u", "mask": 1, "status": 0,
	}}}
	s := newTestStore(t, dbpool.Postgres, d)
	e, ok := s.Get(context.Background(), "S", "T", "")
	if !ok || e.SMSC != "S" || e.Source != "src" {
		t.Fatalf("got %+v", e)
	}
}

// TestSQLStoreGetCopiesMaskAndStatus guards the round trip spec.md §8
// scenario 4 requires: a status written by Update must come back out of
// Get, not be left at its zero value regardless of what is stored.
func TestSQLStoreGetCopiesMaskAndStatus(t *testing.T) {
	d := &fakeSQLDriver{rows: []map[string]any{{
		"smsc": "S", "ts": "T", "source": "src", "destination": "dst",
		"service": "svc", "url": "u", "mask": int64(3), "status": int64(2),
	}}}
	s := newTestStore(t, dbpool.Postgres, d)
	e, ok := s.Get(context.Background(), "S", "T", "")
	if !ok {
		t.Fatal("expected a match")
	}
	if e.Mask != 3 || e.Status != 2 {
		t.Fatalf("expected mask=3 status=2, got mask=%d status=%d", e.Mask, e.Status)
	}
}

func TestSQLStoreAddRequiresKey(t *testing.T) {
	d := &fakeSQLDriver{}
	s := newTestStore(t, dbpool.Postgres, d)
	if err := s.Add(context.Background(), &Entry{}); err == nil {
		t.Fatal("expected error for missing smsc/ts")
	}
}

func TestRewriteToSingleCtidPreservesPredicate(t *testing.T) {
	got := rewriteToSingleCtid("DELETE FROM dlr WHERE smsc=$1 AND ts=$2")
	want := "DELETE FROM dlr WHERE ctid = (SELECT ctid FROM dlr WHERE smsc=$1 AND ts=$2 LIMIT 1)"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
