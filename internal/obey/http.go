package obey

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/kannel-go/smsbox/internal/counters"
	"github.com/kannel-go/smsbox/internal/msg"
	"github.com/kannel-go/smsbox/internal/urltrans"
)

// remember stores the reply skeleton and translation under a fresh
// correlation id, to be retrieved when the HTTP result loop observes the
// matching response.
func (r *Router) remember(reply *msg.Message, t *urltrans.Translation) string {
	id := counters.NewCorrelationID()
	r.pendingMu.Lock()
	r.pending[id] = pendingRequest{skeleton: reply, translation: t}
	r.pendingMu.Unlock()
	return id
}

func (r *Router) recall(id string) (pendingRequest, bool) {
	r.pendingMu.Lock()
	defer r.pendingMu.Unlock()
	p, ok := r.pending[id]
	if ok {
		delete(r.pending, id)
	}
	return p, ok
}

func (r *Router) fireGet(ctx context.Context, t *urltrans.Translation, m, reply *msg.Message) {
	url := urltrans.Expand(t.Pattern, t, m)
	id := r.remember(reply, t)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		r.log.Warn("obey: building GET request failed", zap.Error(err))
		r.recall(id)
		r.sendFailure(ctx, reply)
		return
	}
	req.Header.Set("User-Agent", r.userAgent())
	if t.SendSender {
		req.Header.Set("X-Kannel-From", m.Sender)
	}
	r.fire(id, req)
}

func (r *Router) firePost(ctx context.Context, t *urltrans.Translation, m, reply *msg.Message) {
	url := urltrans.Expand(t.Pattern, t, m)
	id := r.remember(reply, t)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(m.MsgData))
	if err != nil {
		r.log.Warn("obey: building POST request failed", zap.Error(err))
		r.recall(id)
		r.sendFailure(ctx, reply)
		return
	}
	req.Header.Set("User-Agent", r.userAgent())
	if m.Flag8Bit {
		req.Header.Set("Content-Type", "application/octet-stream")
	} else {
		req.Header.Set("Content-Type", "text/plain")
	}
	for k, vs := range buildXKannelHeaders(m, t.SendSender) {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	r.fire(id, req)
}

func (r *Router) userAgent() string {
	if r.cfg.UserAgent != "" {
		return r.cfg.UserAgent
	}
	return "smsbox-obey/1.0"
}

// fire issues req asynchronously, tracking it in the outstanding-request
// gauge, and publishes the outcome to the result loop.
func (r *Router) fire(correlationID string, req *http.Request) {
	r.outstanding.Inc()
	go func() {
		defer r.outstanding.Dec()
		resp, err := r.httpClient.Do(req)
		if err != nil {
			r.results <- httpResult{correlationID: correlationID, err: err}
			return
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			r.results <- httpResult{correlationID: correlationID, err: err}
			return
		}
		r.results <- httpResult{
			correlationID: correlationID,
			statusCode:    resp.StatusCode,
			contentType:   resp.Header.Get("Content-Type"),
			body:          body,
			headers:       resp.Header,
		}
	}()
}
