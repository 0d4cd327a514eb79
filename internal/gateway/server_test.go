package gateway

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/kannel-go/smsbox/internal/counters"
	"github.com/kannel-go/smsbox/internal/dlr"
	"github.com/kannel-go/smsbox/internal/urltrans"
)

type fakeStore struct {
	entries map[string]*dlr.Entry
}

func (f *fakeStore) key(smsc, ts string) string { return smsc + "|" + ts }

func (f *fakeStore) Add(ctx context.Context, e *dlr.Entry) error {
	f.entries[f.key(e.SMSC, e.Timestamp)] = e
	return nil
}
func (f *fakeStore) Get(ctx context.Context, smsc, ts, dst string) (*dlr.Entry, bool) {
	e, ok := f.entries[f.key(smsc, ts)]
	return e, ok
}
func (f *fakeStore) Update(ctx context.Context, smsc, ts, dst string, status int) {
	if e, ok := f.entries[f.key(smsc, ts)]; ok {
		e.Status = status
	}
}
func (f *fakeStore) Remove(ctx context.Context, smsc, ts, dst string) {
	delete(f.entries, f.key(smsc, ts))
}
func (f *fakeStore) Messages(ctx context.Context) int64 { return int64(len(f.entries)) }
func (f *fakeStore) Flush(ctx context.Context) error {
	f.entries = map[string]*dlr.Entry{}
	return nil
}

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	translations := urltrans.NewList([]*urltrans.Translation{
		{Name: "ping", Keyword: "ping", Type: urltrans.Text, MaxMessages: 255},
	})
	store := &fakeStore{entries: map[string]*dlr.Entry{
		"smsc1|ts1": {SMSC: "smsc1", Timestamp: "ts1", Destination: "12345", Status: 1},
	}}
	hub := NewHub(zap.NewNop())
	s, err := NewServer(translations, store, &counters.Outstanding{}, hub, Config{}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	ts := httptest.NewServer(s.Router())
	t.Cleanup(ts.Close)
	return s, ts
}

func TestGraphQLTranslationsQuery(t *testing.T) {
	_, ts := newTestServer(t)
	r, err := httpGet(ts.URL + "/admin/graphql?query=" + urlEncode(`{translations{name}}`))
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	if !strings.Contains(r, `"name":"ping"`) {
		t.Fatalf("response missing ping translation: %s", r)
	}
}

func TestGraphQLDLREntryQuery(t *testing.T) {
	_, ts := newTestServer(t)
	q := `{dlrEntry(smsc:"smsc1",timestamp:"ts1"){status,destination}}`
	r, err := httpGet(ts.URL + "/admin/graphql?query=" + urlEncode(q))
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	if !strings.Contains(r, `"status":1`) {
		t.Fatalf("response missing dlr entry: %s", r)
	}
}

func TestHealthzReportsOK(t *testing.T) {
	_, ts := newTestServer(t)
	r, err := httpGet(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	if !strings.Contains(r, `"status":"ok"`) {
		t.Fatalf("unexpected body: %s", r)
	}
}

func TestStatsReportsCounts(t *testing.T) {
	_, ts := newTestServer(t)
	r, err := httpGet(ts.URL + "/admin/stats")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	var stats map[string]any
	if err := json.Unmarshal([]byte(r), &stats); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if stats["translations"].(float64) != 1 || stats["dlrMessages"].(float64) != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestHubPublishReachesWebSocketClient(t *testing.T) {
	s, ts := newTestServer(t)
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/admin/events"

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Give the server goroutine time to register the client before
	// publishing, since registration happens after the upgrade.
	time.Sleep(50 * time.Millisecond)
	s.hub.Publish(Event{Kind: "mo", Detail: map[string]any{"from": "+1"}, Time: time.Now()})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	var got Event
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal event: %v", err)
	}
	if got.Kind != "mo" {
		t.Fatalf("unexpected event: %+v", got)
	}
}
