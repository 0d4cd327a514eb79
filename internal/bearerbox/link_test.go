package bearerbox

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/kannel-go/smsbox/internal/msg"
)

func pipeLinks(t *testing.T) (*Link, *Link) {
	t.Helper()
	a, b := net.Pipe()
	return newLink(a, JSONCodec), newLink(b, JSONCodec)
}

func TestWriteThenReadRoundTrip(t *testing.T) {
	client, server := pipeLinks(t)
	defer client.Close()
	defer server.Close()

	want := &Message{Kind: KindSMS, Message: &msg.Message{Sender: "+1", Receiver: "+2", MsgData: []byte("hi")}}

	errCh := make(chan error, 1)
	go func() { errCh <- client.WriteMessage(want) }()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	got, err := server.ReadMessage(ctx)
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
	if got.Kind != KindSMS || got.Message.Sender != "+1" || string(got.Message.MsgData) != "hi" {
		t.Fatalf("got %+v", got)
	}
}

func TestAdminShutdownClassified(t *testing.T) {
	client, server := pipeLinks(t)
	defer client.Close()
	defer server.Close()

	go client.WriteMessage(&Message{Kind: KindAdminShutdown})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	got, err := server.ReadMessage(ctx)
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if got.Kind != KindAdminShutdown {
		t.Fatalf("got kind %v, want KindAdminShutdown", got.Kind)
	}
}

func TestReadMessageAfterCloseReturnsErrClosed(t *testing.T) {
	client, server := pipeLinks(t)
	defer client.Close()
	server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := server.ReadMessage(ctx); err != ErrClosed {
		t.Fatalf("got %v, want ErrClosed", err)
	}
}

func TestWriteMessageAfterCloseReturnsErrClosed(t *testing.T) {
	client, server := pipeLinks(t)
	defer server.Close()
	client.Close()

	if err := client.WriteMessage(&Message{Kind: KindSMS, Message: &msg.Message{}}); err != ErrClosed {
		t.Fatalf("got %v, want ErrClosed", err)
	}
}
