package ingress

import (
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kannel-go/smsbox/internal/bearerbox"
	"github.com/kannel-go/smsbox/internal/msg"
	"github.com/kannel-go/smsbox/internal/split"
	"github.com/kannel-go/smsbox/internal/urltrans"
)

func (s *Server) handleSendsms(w http.ResponseWriter, r *http.Request) {
	t, err := s.authenticate(r)
	if err != nil {
		writeText(w, http.StatusForbidden, "Authorization failed for sendsms")
		return
	}

	params, status, diag := s.parseSendsmsParams(r)
	if diag != "" {
		writeText(w, status, diag)
		return
	}

	m, diag := s.buildMessage(t, params)
	if diag != "" {
		writeText(w, http.StatusBadRequest, diag)
		return
	}

	s.dispatch(t, m)
	s.log.Info("ingress: sendsms accepted",
		zap.String("service", t.Username),
		zap.String("to", m.Receiver))
	writeText(w, http.StatusAccepted, "Sent.")
}

// sendsmsParams is the union of the GET query parameters and the POST
// X-Kannel-* headers the two entry points accept.
type sendsmsParams struct {
	from, to, text, smsc, charset string
	udh                           []byte
	hasUDH                        bool
	flash, mwi, mwimessages       int
	unicode, validity, deferred   int
	dlrMask                       int
	dlrID                         string
}

func (s *Server) parseSendsmsParams(r *http.Request) (sendsmsParams, int, string) {
	if r.Method == http.MethodPost && r.Header.Get("X-Kannel-To") != "" {
		return s.parseXKannelParams(r)
	}
	return s.parseQueryParams(r)
}

func (s *Server) parseQueryParams(r *http.Request) (sendsmsParams, int, string) {
	q := r.URL.Query()
	var p sendsmsParams
	p.from = q.Get("from")
	p.to = q.Get("to")
	p.text = q.Get("text")
	p.smsc = q.Get("smsc")
	p.charset = q.Get("charset")
	p.dlrID = q.Get("dlrid")

	if udh := q.Get("udh"); udh != "" {
		decoded, err := decodeUDH(udh)
		if err != nil {
			return p, http.StatusBadRequest, "UDH field misformed, rejected"
		}
		p.udh, p.hasUDH = decoded, true
	}

	var err error
	if p.flash, err = atoiDefault(q.Get("flash")); err != nil {
		return p, http.StatusBadRequest, "Flash field misformed, rejected"
	}
	if p.mwi, err = atoiDefault(q.Get("mwi")); err != nil {
		return p, http.StatusBadRequest, "MWI field misformed, rejected"
	}
	if p.mwimessages, err = atoiDefault(q.Get("mwimessages")); err != nil {
		return p, http.StatusBadRequest, "MWIMessages field misformed, rejected"
	}
	if p.unicode, err = atoiDefault(q.Get("unicode")); err != nil {
		return p, http.StatusBadRequest, "Unicode field misformed, rejected"
	}
	if p.validity, err = atoiDefault(q.Get("validity")); err != nil {
		return p, http.StatusBadRequest, "Validity field misformed, rejected"
	}
	if p.deferred, err = atoiDefault(q.Get("deferred")); err != nil {
		return p, http.StatusBadRequest, "Deferred field misformed, rejected"
	}
	if p.dlrMask, err = atoiDefault(q.Get("dlrmask")); err != nil {
		p.dlrMask = 0
	}

	if p.to == "" {
		return p, http.StatusBadRequest, "Wrong sendsms args, rejected"
	}
	return p, 0, ""
}

func (s *Server) parseXKannelParams(r *http.Request) (sendsmsParams, int, string) {
	var p sendsmsParams
	h := r.Header
	p.from = h.Get("X-Kannel-From")
	p.to = h.Get("X-Kannel-To")
	p.smsc = h.Get("X-Kannel-SMSC")
	p.dlrID = h.Get("X-Kannel-DLR-ID")

	if body, err := io.ReadAll(r.Body); err == nil {
		switch mediaType(r.Header.Get("Content-Type")) {
		case "application/octet-stream":
			p.text = string(body)
		default:
			p.text = string(body)
		}
	}

	if udh := h.Get("X-Kannel-UDH"); udh != "" {
		decoded, err := decodeUDH(udh)
		if err != nil {
			return p, http.StatusBadRequest, "UDH field misformed, rejected"
		}
		p.udh, p.hasUDH = decoded, true
	}

	var err error
	if p.flash, err = atoiDefault(h.Get("X-Kannel-Flash")); err != nil {
		return p, http.StatusBadRequest, "Flash field misformed, rejected"
	}
	if p.mwi, err = atoiDefault(h.Get("X-Kannel-MWI")); err != nil {
		return p, http.StatusBadRequest, "MWI field misformed, rejected"
	}
	if p.mwimessages, err = atoiDefault(h.Get("X-Kannel-MWI-Messages")); err != nil {
		return p, http.StatusBadRequest, "MWIMessages field misformed, rejected"
	}
	if p.unicode, err = atoiDefault(h.Get("X-Kannel-Unicode")); err != nil {
		return p, http.StatusBadRequest, "Unicode field misformed, rejected"
	}
	if p.validity, err = atoiDefault(h.Get("X-Kannel-Validity")); err != nil {
		return p, http.StatusBadRequest, "Validity field misformed, rejected"
	}
	if p.deferred, err = atoiDefault(h.Get("X-Kannel-Deferred")); err != nil {
		return p, http.StatusBadRequest, "Deferred field misformed, rejected"
	}
	if p.dlrMask, err = atoiDefault(h.Get("X-Kannel-DLR-Mask")); err != nil {
		p.dlrMask = 0
	}

	if p.to == "" {
		return p, http.StatusBadRequest, "Insufficient headers, rejected"
	}
	return p, 0, ""
}

// buildMessage validates params against t and global policy, returning a
// fully populated MT message, or a non-empty diagnostic on the first
// violation (mirroring the fixed check order of the original handler).
func (s *Server) buildMessage(t *urltrans.Translation, p sendsmsParams) (*msg.Message, string) {
	if p.hasUDH && (len(p.udh) == 0 || int(p.udh[0]) != len(p.udh)-1) {
		return nil, "UDH field misformed, rejected"
	}
	if strings.IndexFunc(p.to, func(r rune) bool {
		return !strings.ContainsRune(s.numberChars(), r)
	}) >= 0 {
		return nil, "Garbage 'to' field, rejected."
	}
	if len(t.WhiteList) > 0 && !urltrans.ListMatches(p.to, t.WhiteList) {
		return nil, "Number is not in white-list."
	}
	if len(t.BlackList) > 0 && urltrans.ListMatches(p.to, t.BlackList) {
		return nil, "Number is in black-list."
	}
	if len(s.cfg.WhiteList) > 0 && !urltrans.ListMatches(p.to, s.cfg.WhiteList) {
		return nil, "Number is not in global white-list."
	}
	if len(s.cfg.BlackList) > 0 && urltrans.ListMatches(p.to, s.cfg.BlackList) {
		return nil, "Number is in global black-list."
	}

	sender := resolveSender(t, p.from, s.cfg.GlobalSender)
	if sender == "" {
		return nil, "Sender missing and no global set, rejected"
	}

	if p.flash < 0 || p.flash > 1 {
		return nil, "Flash field misformed, rejected"
	}
	if p.mwi < 0 || p.mwi > 8 {
		return nil, "MWI field misformed, rejected"
	}
	if p.mwimessages < 0 || p.mwimessages > msg.MaxMWIMessages {
		return nil, "MWIMessages field misformed, rejected"
	}
	if p.flash != 0 && p.mwi != 0 {
		return nil, "Flash and MWI fields present, rejected"
	}
	if p.unicode < 0 || p.unicode > 1 {
		return nil, "Unicode field misformed, rejected"
	}
	if p.validity < 0 {
		return nil, "Validity field misformed, rejected"
	}
	if p.deferred < 0 {
		return nil, "Deferred field misformed, rejected"
	}

	binary := (p.hasUDH && p.charset == "") || p.unicode == 1

	m := &msg.Message{
		SMSType:     msg.MTPush,
		Service:     t.Name,
		Receiver:    p.to,
		Sender:      sender,
		MsgData:     []byte(p.text),
		SMSCID:      resolveSMSC(t, p.smsc),
		FlagFlash:   p.flash == 1,
		FlagMWI:     p.mwi,
		MWIMessages: p.mwimessages,
		FlagUnicode: p.unicode == 1,
		Flag8Bit:    binary,
		Validity:    p.validity,
		Deferred:    p.deferred,
		DLRMask:     p.dlrMask,
		DLRID:       p.dlrID,
		DLRKeyword:  "DLR",
		Time:        time.Now(),
	}
	if p.hasUDH {
		m.FlagUDH = true
		m.UDHData = p.udh
	}
	if err := m.Validate(); err != nil {
		return nil, err.Error()
	}
	return m, ""
}

func resolveSender(t *urltrans.Translation, from, globalSender string) string {
	if t.FakedSender != "" {
		return t.FakedSender
	}
	if from != "" {
		return from
	}
	return globalSender
}

func resolveSMSC(t *urltrans.Translation, smsc string) string {
	if t.ForcedSMSC != "" {
		return t.ForcedSMSC
	}
	if smsc != "" {
		return smsc
	}
	return t.DefaultSMSC
}

func (s *Server) numberChars() string {
	if s.cfg.NumberChars != "" {
		return s.cfg.NumberChars
	}
	return "0123456789 +-()."
}

func (s *Server) dispatch(t *urltrans.Translation, m *msg.Message) {
	if len(m.MsgData) == 0 && t.OmitEmpty {
		return
	}
	if t.MaxMessages == 0 {
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
		Seq:           s.cat.Next(),
	}
	for _, part := range split.Split(m, opts) {
		if err := s.link.WriteMessage(&bearerbox.Message{Kind: bearerbox.KindSMS, Message: part}); err != nil {
			s.log.Warn("ingress: failed writing MT part to bearerbox", zap.Error(err))
			return
		}
	}
}

func decodeUDH(s string) ([]byte, error) {
	return hex.DecodeString(s)
}

func atoiDefault(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("not an integer: %q", s)
	}
	return n, nil
}

func mediaType(contentType string) string {
	if idx := strings.IndexByte(contentType, ';'); idx >= 0 {
		contentType = contentType[:idx]
	}
	return strings.TrimSpace(contentType)
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	io.WriteString(w, body)
}
