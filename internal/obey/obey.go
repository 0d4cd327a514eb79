// Package obey implements the MO request-obey loop (C6) and the
// asynchronous HTTP result loop (C7): together they consume mobile
// originated messages, dispatch them to a configured service, and turn
// the eventual reply — immediate or from an HTTP round trip — into one
// or more mobile-terminated messages handed back to bearerbox.
package obey

import (
	"context"
	"net/http"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kannel-go/smsbox/internal/bearerbox"
	"github.com/kannel-go/smsbox/internal/counters"
	"github.com/kannel-go/smsbox/internal/msg"
	"github.com/kannel-go/smsbox/internal/split"
	"github.com/kannel-go/smsbox/internal/urltrans"
)

// Config carries the cross-message settings the routing core reads from
// its global configuration group.
type Config struct {
	GlobalSender           string
	ReplyCouldNotFetch     string
	ReplyCouldNotRepresent string
	UserAgent              string
}

// Router owns the shared state the obey loop and the result loop both
// need: the translation table, the bearerbox link, the HTTP client used
// for get-url/post-url services, and the table of in-flight requests
// remembered between C6 firing a request and C7 consuming its reply.
type Router struct {
	translations *urltrans.List
	link         *bearerbox.Link
	httpClient   *http.Client
	cat          *counters.Catenation
	outstanding  *counters.Outstanding
	log          *zap.Logger
	cfg          Config

	pendingMu sync.Mutex
	pending   map[string]pendingRequest

	results chan httpResult
}

type pendingRequest struct {
	skeleton    *msg.Message
	translation *urltrans.Translation
}

type httpResult struct {
	correlationID string
	statusCode    int
	contentType   string
	body          []byte
	headers       http.Header
	err           error
}

// NewRouter builds a Router. httpClient may be nil to use a default
// client with a sane timeout.
func NewRouter(translations *urltrans.List, link *bearerbox.Link, httpClient *http.Client, cat *counters.Catenation, outstanding *counters.Outstanding, log *zap.Logger, cfg Config) *Router {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Router{
		translations: translations,
		link:         link,
		httpClient:   httpClient,
		cat:          cat,
		outstanding:  outstanding,
		log:          log,
		cfg:          cfg,
		pending:      make(map[string]pendingRequest),
		results:      make(chan httpResult, 256),
	}
}

// RunObeyWorkers starts n goroutines (default 1), each draining mo until
// it is closed or ctx is done.
func RunObeyWorkers(ctx context.Context, r *Router, mo <-chan *msg.Message, n int) *sync.WaitGroup {
	if n <= 0 {
		n = 1
	}
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			for {
				select {
				case m, ok := <-mo:
					if !ok {
						return
					}
					r.obeyRequest(ctx, m)
				case <-ctx.Done():
					return
				}
			}
		}()
	}
	return &wg
}

// obeyRequest implements C6's per-message state machine.
func (r *Router) obeyRequest(ctx context.Context, m *msg.Message) {
	if m.Sender == "" || m.Receiver == "" {
		r.log.Info("obey: dropping message with empty sender or receiver")
		return
	}
	if m.Sender == m.Receiver {
		r.log.Info("obey: dropping self-loop message", zap.String("address", m.Sender))
		return
	}

	ack := &msg.Message{SMSType: msg.Ack, ID: m.ID, Time: m.Time}
	defer r.writeAck(ack)

	t, _ := r.translations.Find(string(m.MsgData), m.SMSCID)

	// The reply skeleton's addresses are swapped unconditionally at this
	// point, whether or not a translation was found — preserving the
	// original's behavior of addressing its "Request failed" error reply
	// with the post-swap pair, so it goes back to the original sender.
	reply := m.Clone()
	reply.SMSType = msg.MTReply
	reply.Sender = replySender(t, r.cfg.GlobalSender, m.Receiver)
	reply.Receiver = m.Sender
	reply.Service = ""
	if t != nil {
		reply.Service = t.Name
	}

	if t == nil {
		r.sendFailure(ctx, reply)
		return
	}

	switch t.Type {
	case urltrans.Text:
		reply.MsgData = []byte(urltrans.Expand(t.Pattern, t, m))
		r.sendMessage(ctx, reply, t)

	case urltrans.File:
		data, err := os.ReadFile(urltrans.Expand(t.Pattern, t, m))
		if err != nil {
			r.log.Warn("obey: failed reading file service payload", zap.Error(err))
			r.sendFailure(ctx, reply)
			return
		}
		reply.MsgData = data
		r.sendMessage(ctx, reply, t)

	case urltrans.GetURL:
		r.fireGet(ctx, t, m, reply)

	case urltrans.PostURL:
		r.firePost(ctx, t, m, reply)

	case urltrans.SendSMS:
		r.log.Info("obey: sendsms translation invalid for MO message", zap.String("service", t.Name))
		r.sendFailure(ctx, reply)

	default:
		r.sendFailure(ctx, reply)
	}
}

func replySender(t *urltrans.Translation, globalSender, fallback string) string {
	if t != nil && t.FakedSender != "" {
		return t.FakedSender
	}
	if globalSender != "" {
		return globalSender
	}
	return fallback
}

func (r *Router) sendFailure(ctx context.Context, reply *msg.Message) {
	reply.MsgData = []byte("Request failed")
	r.sendMessageRaw(ctx, reply, split.Options{MaxMessages: 1, MaxOctets: split.DefaultMaxOctets})
}

// sendMessage applies the C4 split engine per t's configuration and
// writes every resulting part to bearerbox.
func (r *Router) sendMessage(ctx context.Context, reply *msg.Message, t *urltrans.Translation) {
	if len(reply.MsgData) == 0 && t.OmitEmpty {
		return
	}
	opts := split.Options{
		Header:        []byte(t.Header),
		Footer:        []byte(t.Footer),
		NonLastSuffix: []byte(t.SplitSuffix),
		SplitChars:    []byte(t.SplitChars),
		Catenate:      t.Concatenation,
		MaxMessages:   t.MaxMessages,
		MaxOctets:     split.DefaultMaxOctets,
		Seq:           r.cat.Next(),
	}
	r.sendMessageRaw(ctx, reply, opts)
}

func (r *Router) sendMessageRaw(ctx context.Context, reply *msg.Message, opts split.Options) {
	if opts.MaxMessages == 0 {
		return
	}
	parts := split.Split(reply, opts)
	for _, p := range parts {
		if err := r.link.WriteMessage(&bearerbox.Message{Kind: bearerbox.KindSMS, Message: p}); err != nil {
			r.log.Warn("obey: failed writing MT part to bearerbox", zap.Error(err))
			return
		}
	}
}

func (r *Router) writeAck(ack *msg.Message) {
	if err := r.link.WriteMessage(&bearerbox.Message{Kind: bearerbox.KindSMS, Message: ack}); err != nil {
		r.log.Warn("obey: failed writing ack to bearerbox", zap.Error(err))
	}
}
