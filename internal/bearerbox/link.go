// Package bearerbox implements the link to the upstream bearer
// multiplexer process: a single TCP connection with a blocking read
// producer and a thread-safe writer, the Go translation of the routing
// core's read_message()/write_message() pair.
package bearerbox

import (
	"context"
	"errors"
	"net"
	"sync"
)

// ErrClosed is returned by WriteMessage and ReadMessage once the link
// has been closed.
var ErrClosed = errors.New("bearerbox: link closed")

// Link owns a single TCP connection to bearerbox. A background readLoop
// goroutine decodes incoming frames and feeds them to ReadMessage;
// WriteMessage serializes concurrent writers behind one mutex, since any
// obey worker or the result loop may write a reply at any time.
type Link struct {
	conn  net.Conn
	codec Codec

	writeMu sync.Mutex

	incoming chan incomingMsg
	done     chan struct{}
	closeMu  sync.Mutex
	closed   bool
}

type incomingMsg struct {
	m   *Message
	err error
}

// Dial connects to addr and starts the background read loop.
func Dial(ctx context.Context, addr string, codec Codec) (*Link, error) {
	d := &net.Dialer{}
	nc, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return newLink(nc, codec), nil
}

func newLink(nc net.Conn, codec Codec) *Link {
	if codec == nil {
		codec = JSONCodec
	}
	l := &Link{
		conn:     nc,
		codec:    codec,
		incoming: make(chan incomingMsg, 64),
		done:     make(chan struct{}),
	}
	go l.readLoop()
	return l
}

func (l *Link) readLoop() {
	defer close(l.incoming)
	for {
		raw, err := readFrame(l.conn)
		if err != nil {
			select {
			case l.incoming <- incomingMsg{err: err}:
			default:
			}
			return
		}
		m, err := l.codec.Decode(raw)
		if err != nil {
			l.incoming <- incomingMsg{err: err}
			continue
		}
		l.incoming <- incomingMsg{m: classify(m)}
	}
}

// ReadMessage blocks until the next message arrives, ctx is done, or the
// link is closed (in which case it returns ErrClosed — the Go
// equivalent of the original returning null on shutdown).
func (l *Link) ReadMessage(ctx context.Context) (*Message, error) {
	select {
	case im, ok := <-l.incoming:
		if !ok {
			return nil, ErrClosed
		}
		if im.err != nil {
			select {
			case <-l.done:
				return nil, ErrClosed
			default:
			}
		}
		return im.m, im.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-l.done:
		return nil, ErrClosed
	}
}

// WriteMessage is safe to call concurrently from any worker.
func (l *Link) WriteMessage(m *Message) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	select {
	case <-l.done:
		return ErrClosed
	default:
	}

	raw, err := l.codec.Encode(m)
	if err != nil {
		return err
	}
	return writeFrame(l.conn, raw)
}

// Close shuts the connection down; a blocked ReadMessage unblocks with
// ErrClosed.
func (l *Link) Close() error {
	l.closeMu.Lock()
	defer l.closeMu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	close(l.done)
	return l.conn.Close()
}
