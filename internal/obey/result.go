package obey

import (
	"context"
	"html"
	"mime"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
)

// htmlTagPattern strips markup for htmlToText's best-effort rendering;
// it does not understand script/style bodies or malformed markup, only
// well-formed tags.
var htmlTagPattern = regexp.MustCompile(`<[^>]*>`)

// RunResultLoop consumes completed HTTP requests fired by the obey loop
// until ctx is done. There is exactly one of these per Router, matching
// the single dedicated result thread in the concurrency model.
func RunResultLoop(ctx context.Context, r *Router) {
	for {
		select {
		case res := <-r.results:
			r.handleResult(res)
		case <-ctx.Done():
			return
		}
	}
}

func (r *Router) handleResult(res httpResult) {
	pending, ok := r.recall(res.correlationID)
	if !ok {
		r.log.Warn("obey: result for unknown correlation id", zap.String("id", res.correlationID))
		return
	}
	reply := pending.skeleton
	t := pending.translation
	reply.Time = time.Now()

	if res.err != nil {
		reply.MsgData = []byte(r.cfg.ReplyCouldNotFetch)
		r.sendMessage(context.Background(), reply, t)
		return
	}
	if res.statusCode != 200 {
		reply.MsgData = []byte(r.cfg.ReplyCouldNotFetch)
		r.sendMessage(context.Background(), reply, t)
		return
	}

	mediaType, _, err := mime.ParseMediaType(res.contentType)
	if err != nil {
		mediaType = strings.TrimSpace(strings.SplitN(res.contentType, ";", 2)[0])
	}

	octets := false
	switch mediaType {
	case "text/html", "text/vnd.wap.wml":
		trimmed := trimPrefixSuffix(string(res.body), t.Prefix, t.Suffix)
		reply.MsgData = []byte(stripBlanks(htmlToText(trimmed)))
	case "text/plain":
		reply.MsgData = []byte(stripBlanks(string(res.body)))
	case "application/octet-stream":
		reply.MsgData = res.body
		octets = true
	default:
		reply.MsgData = []byte(r.cfg.ReplyCouldNotRepresent)
	}

	if mediaType == "text/html" || mediaType == "text/vnd.wap.wml" || mediaType == "text/plain" || mediaType == "application/octet-stream" {
		overrides := parseXKannelHeaders(res.headers, func(field string, err error) {
			r.log.Info("obey: dropping malformed X-Kannel header", zap.String("field", field), zap.Error(err))
		})
		if t.AcceptXKannelHeaders {
			overrides.apply(reply)
		} else if headerSetNonEmpty(res.headers) {
			r.log.Info("obey: ignoring X-Kannel-* response headers, translation does not accept them", zap.String("service", t.Name))
		}
	}

	if octets && !t.AssumePlainText {
		reply.Flag8Bit = true
	}

	r.sendMessage(context.Background(), reply, t)
}

// trimPrefixSuffix drops everything up to and including the first
// occurrence of prefix, then everything from the first following
// occurrence of suffix on, matching the original body-trimming rule for
// HTML/WML responses.
func trimPrefixSuffix(body, prefix, suffix string) string {
	if prefix != "" {
		if idx := strings.Index(body, prefix); idx >= 0 {
			body = body[idx+len(prefix):]
		}
	}
	if suffix != "" {
		if idx := strings.Index(body, suffix); idx >= 0 {
			body = body[:idx]
		}
	}
	return body
}

func stripBlanks(s string) string {
	return strings.TrimSpace(s)
}

// htmlToText renders an HTML/WML fragment down to plain text: tags are
// dropped and entities are unescaped. This is a best-effort stand-in,
// not a full parser — it does not special-case <script>/<style> bodies
// or insert line breaks for block-level tags.
func htmlToText(body string) string {
	return html.UnescapeString(htmlTagPattern.ReplaceAllString(body, ""))
}

func headerSetNonEmpty(h map[string][]string) bool {
	for k := range h {
		if strings.HasPrefix(strings.ToLower(k), "x-kannel-") {
			return true
		}
	}
	return false
}

