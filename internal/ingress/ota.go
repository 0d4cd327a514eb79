package ingress

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/kannel-go/smsbox/internal/msg"
)

// OTAConfig is one named `otaconfig` provisioning group: the set of
// values baked into the WAP-OTA bytecode template.
type OTAConfig struct {
	Name        string
	Bearer      byte
	IP          string
	Connection  byte
	Phone       string
	Auth        byte
	User        string
	Passwd      string
	CallType    byte
	Speed       string
	URL         string
	Description string
}

const (
	ConnTemp     byte = 0x60
	ConnCont     byte = 0x61
	ConnSecTemp  byte = 0x62
	ConnSecCont  byte = 0x63
	AuthNormal   byte = 0x70
	AuthSecure   byte = 0x71
	BearerData   byte = 0x45
	CallISDN     byte = 0x73
	Speed9600    = "6B"
	Speed14400   = "6C"
)

func (s *Server) handleSendota(w http.ResponseWriter, r *http.Request) {
	t, err := s.authenticate(r)
	if err != nil {
		writeText(w, http.StatusForbidden, "Authorization failed for sendsms")
		return
	}

	q := r.URL.Query()
	to := q.Get("to")
	otaID := q.Get("otaid")
	if to == "" || otaID == "" {
		writeText(w, http.StatusBadRequest, "Wrong sendsms args, rejected")
		return
	}

	cfg, ok := s.cfg.OTA[otaID]
	if !ok {
		writeText(w, http.StatusBadRequest, "Unknown OTA configuration, rejected")
		return
	}

	udh := otaUDH()
	body := buildOTABytecode(cfg)

	m := &msg.Message{
		SMSType:  msg.MTPush,
		Service:  t.Name,
		Receiver: to,
		Sender:   resolveSender(t, q.Get("from"), s.cfg.GlobalSender),
		SMSCID:   resolveSMSC(t, q.Get("smsc")),
		MsgData:  body,
		UDHData:  udh,
		FlagUDH:  true,
		Flag8Bit: true,
		Time:     time.Now(),
	}

	s.dispatch(t, m)
	s.log.Info("ingress: sendota accepted", zap.String("otaid", otaID), zap.String("to", to))
	writeText(w, http.StatusAccepted, "Sent.")
}

// otaUDH returns the fixed port-addressed UDH the WAP-OTA payload is
// delivered under.
func otaUDH() []byte {
	return []byte{0x06, 0x05, 0x04, 0xC3, 0x4F, 0xC0, 0x02}
}

// buildOTABytecode renders cfg into the fixed WBXML-family tokenized
// template: a WAP Client Provisioning Content document encoded as
// CHARACTERISTIC/PARM tokens, one attribute per configured field.
func buildOTABytecode(cfg OTAConfig) []byte {
	var b []byte
	b = append(b, 0x01, 0x06, 0x04, 0x03, 0x94, 0x81, 0xEA, 0x00, 0x01)

	b = appendTokenAttr(b, 0x87, 0x12, byteStr(cfg.Bearer))
	b = appendStringAttr(b, 0x87, 0x13, cfg.IP)
	b = appendTokenAttr(b, 0x87, 0x14, byteStr(cfg.Connection))
	b = appendStringAttr(b, 0x87, 0x21, cfg.Phone)
	b = appendTokenAttr(b, 0x87, 0x22, byteStr(cfg.Auth))
	b = appendStringAttr(b, 0x87, 0x23, cfg.User)
	b = appendStringAttr(b, 0x87, 0x24, cfg.Passwd)
	b = appendTokenAttr(b, 0x87, 0x28, byteStr(cfg.CallType))
	b = appendTokenAttr(b, 0x87, 0x29, cfg.Speed)
	b = appendStringAttr(b, 0x86, 0x07, cfg.URL)
	b = appendStringAttr(b, 0x87, 0x15, cfg.Description)

	b = append(b, 0x01, 0x01)
	return b
}

func byteStr(b byte) string {
	return string([]byte{b})
}

// appendStringAttr writes an "11 03 ... 00 01" inline-string parameter:
// tag byte, sub-tag byte, 0x11 (string follows), 0x03 (length marker
// used by the real template), the string bytes, a NUL terminator, then
// a closing 0x01.
func appendStringAttr(b []byte, tag, sub byte, value string) []byte {
	b = append(b, tag, sub, 0x11, 0x03)
	b = append(b, []byte(value)...)
	b = append(b, 0x00, 0x01)
	return b
}

// appendTokenAttr writes a single-token-valued parameter: tag byte,
// sub-tag byte, then the raw token byte(s).
func appendTokenAttr(b []byte, tag, sub byte, token string) []byte {
	b = append(b, tag, sub)
	b = append(b, []byte(token)...)
	return b
}
