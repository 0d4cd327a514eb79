package obey

import (
	"encoding/hex"
	"net/http"
	"strconv"
	"strings"

	"github.com/kannel-go/smsbox/internal/msg"
)

const kannelTimeLayout = "2006-01-02 15:04:05"

// buildXKannelHeaders serializes m's relevant flags into the X-Kannel-*
// request headers a post-url service receives, matching the header set
// documented for the async result path (the two directions share the
// same vocabulary).
func buildXKannelHeaders(m *msg.Message, sendSender bool) http.Header {
	h := http.Header{}
	if sendSender {
		h.Set("X-Kannel-From", m.Sender)
	}
	h.Set("X-Kannel-To", m.Receiver)
	if m.SMSCID != "" {
		h.Set("X-Kannel-SMSC", m.SMSCID)
	}
	if len(m.UDHData) > 0 {
		h.Set("X-Kannel-UDH", hex.EncodeToString(m.UDHData))
	}
	if m.DLRID != "" {
		h.Set("X-Kannel-DLR-ID", m.DLRID)
	}
	if m.DLRMask != 0 {
		h.Set("X-Kannel-DLR-Mask", strconv.Itoa(m.DLRMask))
	}
	if m.FlagFlash {
		h.Set("X-Kannel-Flash", "1")
	}
	if m.FlagMWI != 0 {
		h.Set("X-Kannel-MWI", strconv.Itoa(m.FlagMWI))
		h.Set("X-Kannel-MWI-Messages", strconv.Itoa(m.MWIMessages))
	}
	if m.FlagUnicode {
		h.Set("X-Kannel-Unicode", "1")
	}
	if m.Validity != 0 {
		h.Set("X-Kannel-Validity", strconv.Itoa(m.Validity))
	}
	if m.Deferred != 0 {
		h.Set("X-Kannel-Deferred", strconv.Itoa(m.Deferred))
	}
	if !m.Time.IsZero() {
		h.Set("X-Kannel-Time", m.Time.UTC().Format(kannelTimeLayout))
	}
	return h
}

// xKannelOverrides is the subset of reply-skeleton fields the async
// result loop may overwrite from a service's response headers.
type xKannelOverrides struct {
	From, To       string
	hasFrom, hasTo bool

	UDH    []byte
	hasUDH bool

	DLRID      string
	hasDLRID   bool
	DLRMask    int
	hasDLRMask bool

	Flash    bool
	hasFlash bool

	MWI            int
	hasMWI         bool
	MWIMessages    int
	hasMWIMessages bool

	Unicode    bool
	hasUnicode bool

	Validity, Deferred       int
	hasValidity, hasDeferred bool
}

// parseXKannelHeaders extracts overrides from h, logging and dropping
// any value that fails to parse (e.g. invalid hex in X-Kannel-UDH)
// rather than failing the whole response.
func parseXKannelHeaders(h http.Header, log func(field string, err error)) xKannelOverrides {
	var o xKannelOverrides
	get := func(name string) (string, bool) {
		for k, v := range h {
			if strings.EqualFold(k, name) && len(v) > 0 {
				return v[0], true
			}
		}
		return "", false
	}

	if v, ok := get("X-Kannel-From"); ok {
		o.From, o.hasFrom = v, true
	}
	if v, ok := get("X-Kannel-To"); ok {
		o.To, o.hasTo = v, true
	}
	if v, ok := get("X-Kannel-UDH"); ok {
		decoded, err := hex.DecodeString(v)
		if err != nil {
			log("X-Kannel-UDH", err)
		} else {
			o.UDH, o.hasUDH = decoded, true
		}
	}
	if v, ok := get("X-Kannel-DLR-ID"); ok {
		o.DLRID, o.hasDLRID = v, true
	}
	if v, ok := get("X-Kannel-DLR-Mask"); ok {
		if n, err := strconv.Atoi(v); err != nil {
			log("X-Kannel-DLR-Mask", err)
		} else {
			o.DLRMask, o.hasDLRMask = n, true
		}
	}
	if v, ok := get("X-Kannel-Flash"); ok {
		o.Flash, o.hasFlash = v == "1", true
	}
	if v, ok := get("X-Kannel-MWI"); ok {
		if n, err := strconv.Atoi(v); err != nil {
			log("X-Kannel-MWI", err)
		} else {
			o.MWI, o.hasMWI = n, true
		}
	}
	if v, ok := get("X-Kannel-MWI-Messages"); ok {
		if n, err := strconv.Atoi(v); err != nil {
			log("X-Kannel-MWI-Messages", err)
		} else {
			o.MWIMessages, o.hasMWIMessages = n, true
		}
	}
	if v, ok := get("X-Kannel-Unicode"); ok {
		o.Unicode, o.hasUnicode = v == "1", true
	}
	if v, ok := get("X-Kannel-Validity"); ok {
		if n, err := strconv.Atoi(v); err != nil {
			log("X-Kannel-Validity", err)
		} else {
			o.Validity, o.hasValidity = n, true
		}
	}
	if v, ok := get("X-Kannel-Deferred"); ok {
		if n, err := strconv.Atoi(v); err != nil {
			log("X-Kannel-Deferred", err)
		} else {
			o.Deferred, o.hasDeferred = n, true
		}
	}
	return o
}

// apply overwrites reply's fields with every override o carries.
func (o xKannelOverrides) apply(reply *msg.Message) {
	if o.hasFrom {
		reply.Sender = o.From
	}
	if o.hasTo {
		reply.Receiver = o.To
	}
	if o.hasUDH {
		reply.UDHData = o.UDH
		reply.FlagUDH = true
	}
	if o.hasDLRID {
		reply.DLRID = o.DLRID
	}
	if o.hasDLRMask {
		reply.DLRMask = o.DLRMask
	}
	if o.hasFlash {
		reply.FlagFlash = o.Flash
	}
	if o.hasMWI {
		reply.FlagMWI = o.MWI
	}
	if o.hasMWIMessages {
		reply.MWIMessages = o.MWIMessages
	}
	if o.hasUnicode {
		reply.FlagUnicode = o.Unicode
	}
	if o.hasValidity {
		reply.Validity = o.Validity
	}
	if o.hasDeferred {
		reply.Deferred = o.Deferred
	}
}
