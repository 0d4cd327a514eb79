package obey

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kannel-go/smsbox/internal/bearerbox"
	"github.com/kannel-go/smsbox/internal/counters"
	"github.com/kannel-go/smsbox/internal/msg"
	"github.com/kannel-go/smsbox/internal/urltrans"
)

type echoHandler struct{}

func (echoHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Kannel-From", "SERVICE")
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("hello"))
}

func newTestRouter(t *testing.T, translations *urltrans.List, cfg Config) (*Router, *bearerbox.Link) {
	t.Helper()
	a, b := net.Pipe()
	t.Cleanup(func() { a.Close(); b.Close() })

	serverSide := newLinkForTest(b)
	clientSide := newLinkForTest(a)

	r := NewRouter(translations, clientSide, nil, &counters.Catenation{}, &counters.Outstanding{}, zap.NewNop(), cfg)
	return r, serverSide
}

// newLinkForTest wraps one half of a net.Pipe as a Link, avoiding a
// real TCP listener in these tests.
func newLinkForTest(nc net.Conn) *bearerbox.Link {
	return bearerbox.NewFromConn(nc, bearerbox.JSONCodec)
}

func readNext(t *testing.T, l *bearerbox.Link) *bearerbox.Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	m, err := l.ReadMessage(ctx)
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	return m
}

func TestFixedTextService(t *testing.T) {
	translations := urltrans.NewList([]*urltrans.Translation{
		{Name: "ping", Keyword: "ping", Type: urltrans.Text, Pattern: "pong", MaxMessages: 255},
	})
	r, server := newTestRouter(t, translations, Config{})

	mo := &msg.Message{Sender: "+1", Receiver: "+2", MsgData: []byte("ping"), ID: "abc", Time: time.Now()}
	r.obeyRequest(context.Background(), mo)

	first := readNext(t, server)
	second := readNext(t, server)

	var ack, mt *bearerbox.Message
	for _, m := range []*bearerbox.Message{first, second} {
		if m.Message.SMSType == msg.Ack {
			ack = m
		} else {
			mt = m
		}
	}
	if ack == nil || ack.Message.ID != "abc" {
		t.Fatalf("missing or mismatched ack: %+v", ack)
	}
	if mt == nil || mt.Message.Sender != "+2" || mt.Message.Receiver != "+1" || string(mt.Message.MsgData) != "pong" {
		t.Fatalf("unexpected MT message: %+v", mt)
	}
}

func TestSelfLoopGuardDropsMessage(t *testing.T) {
	translations := urltrans.NewList(nil)
	r, server := newTestRouter(t, translations, Config{})
	mo := &msg.Message{Sender: "+1", Receiver: "+1", MsgData: []byte("x")}
	r.obeyRequest(context.Background(), mo)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := server.ReadMessage(ctx); err == nil {
		t.Fatal("expected no message written for a self-loop")
	}
}

func TestGetURLServiceWithXKannelHeaders(t *testing.T) {
	ts := httptest.NewServer(echoHandler{})
	defer ts.Close()

	translations := urltrans.NewList([]*urltrans.Translation{
		{Name: "echo", Keyword: "echo", Type: urltrans.GetURL, Pattern: ts.URL, MaxMessages: 255, AcceptXKannelHeaders: true},
	})
	r, server := newTestRouter(t, translations, Config{})
	go RunResultLoop(context.Background(), r)

	mo := &msg.Message{Sender: "+1", Receiver: "+2", MsgData: []byte("echo"), ID: "x", Time: time.Now()}
	r.obeyRequest(context.Background(), mo)

	var mt *bearerbox.Message
	for i := 0; i < 2; i++ {
		m := readNext(t, server)
		if m.Message.SMSType != msg.Ack {
			mt = m
		}
	}
	if mt == nil {
		t.Fatal("expected an eventual MT reply from the GET service")
	}
	if mt.Message.Sender != "SERVICE" || string(mt.Message.MsgData) != "hello" {
		t.Fatalf("got %+v", mt.Message)
	}
}
