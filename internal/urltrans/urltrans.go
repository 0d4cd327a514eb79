// Package urltrans implements the URL-translation lookup: matching an
// incoming MO message to a configured service entry, and expanding its
// pattern's escape sequences against the message that triggered it.
package urltrans

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/kannel-go/smsbox/internal/msg"
)

// Type selects how a Translation's Pattern is interpreted.
type Type int

const (
	Text Type = iota
	File
	GetURL
	PostURL
	SendSMS
)

// Translation is a configured service entry. SMSCID, when non-empty,
// scopes the entry to a single upstream SMSC; an empty Keyword makes the
// entry a catch-all.
type Translation struct {
	Name     string
	Username string
	Password string

	SMSCID  string
	Keyword string
	Pattern string
	Type    Type

	FakedSender string
	ForcedSMSC  string
	DefaultSMSC string

	AllowIP []string
	DenyIP  []string

	WhiteList []string
	BlackList []string

	Header         string
	Footer         string
	SplitSuffix    string
	SplitChars     string
	Concatenation  bool
	MaxMessages    int
	Prefix, Suffix string

	AcceptXKannelHeaders bool
	SendSender           bool
	OmitEmpty            bool
	AssumePlainText      bool
}

// List is an immutable, read-only-after-init collection of translations.
type List struct {
	all []*Translation
}

// NewList builds a List from configured translations. The slice is not
// retained; later mutation of the passed entries is undefined.
func NewList(translations []*Translation) *List {
	return &List{all: append([]*Translation(nil), translations...)}
}

// Find matches msgdata and an optional smscID against the configured
// translations, preferring (in order): an SMSC-scoped keyword match, a
// global keyword match, an SMSC-scoped catch-all, and finally a global
// catch-all. Within a tier, the longest matching keyword wins.
func (l *List) Find(msgdata string, smscID string) (*Translation, bool) {
	var best *Translation
	bestTier := -1
	bestLen := -1

	for _, t := range l.all {
		tier, ok := matchTier(t, msgdata, smscID)
		if !ok {
			continue
		}
		if tier > bestTier || (tier == bestTier && len(t.Keyword) > bestLen) {
			best, bestTier, bestLen = t, tier, len(t.Keyword)
		}
	}
	if best == nil {
		return nil, false
	}
	return best, true
}

// All returns every configured translation, for admin introspection.
// The returned slice is a copy; callers must not mutate its elements.
func (l *List) All() []*Translation {
	return append([]*Translation(nil), l.all...)
}

// FindByUsername returns the translation configured with the given
// sendsms username, used by the HTTP ingress to authenticate a request
// before it ever reaches Find.
func (l *List) FindByUsername(username string) (*Translation, bool) {
	for _, t := range l.all {
		if t.Username != "" && t.Username == username {
			return t, true
		}
	}
	return nil, false
}

// matchTier returns a priority (higher wins) and whether t is a
// candidate match at all: 3 = smsc-scoped keyword, 2 = global keyword,
// 1 = smsc-scoped catch-all, 0 = global catch-all.
func matchTier(t *Translation, msgdata, smscID string) (int, bool) {
	scoped := t.SMSCID != "" && t.SMSCID == smscID
	unscoped := t.SMSCID == ""
	if t.SMSCID != "" && !scoped {
		return 0, false
	}

	if t.Keyword != "" {
		if !hasKeywordPrefix(msgdata, t.Keyword) {
			return 0, false
		}
		if scoped {
			return 3, true
		}
		if unscoped {
			return 2, true
		}
		return 0, false
	}

	// catch-all
	if scoped {
		return 1, true
	}
	if unscoped {
		return 0, true
	}
	return 0, false
}

func hasKeywordPrefix(msgdata, keyword string) bool {
	trimmed := strings.TrimLeft(msgdata, " \t")
	return len(trimmed) >= len(keyword) &&
		strings.EqualFold(trimmed[:len(keyword)], keyword)
}

// Expand substitutes pattern escapes against m: %s sender, %r receiver,
// %t submission time (RFC3339), %a message payload, %i smsc id,
// %k service/translation name, %% a literal percent sign. Unknown
// escapes are passed through unchanged.
func Expand(pattern string, t *Translation, m *msg.Message) string {
	var b strings.Builder
	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		if c != '%' || i == len(pattern)-1 {
			b.WriteByte(c)
			continue
		}
		i++
		switch pattern[i] {
		case 's':
			b.WriteString(m.Sender)
		case 'r':
			b.WriteString(m.Receiver)
		case 't':
			b.WriteString(m.Time.UTC().Format(time.RFC3339))
		case 'a':
			b.Write(m.MsgData)
		case 'i':
			b.WriteString(m.SMSCID)
		case 'k':
			if t != nil {
				b.WriteString(t.Name)
			}
		case '%':
			b.WriteByte('%')
		default:
			b.WriteByte('%')
			b.WriteByte(pattern[i])
		}
	}
	return b.String()
}

// IPAllowed reports whether ip passes t's allow_ip/deny_ip configuration.
// An empty AllowIP list means "allow all except DenyIP"; DenyIP always
// takes precedence over AllowIP.
func (t *Translation) IPAllowed(ip string) bool {
	if matchIPList(ip, t.DenyIP) {
		return false
	}
	if len(t.AllowIP) == 0 {
		return true
	}
	return matchIPList(ip, t.AllowIP)
}

// matchIPList supports exact addresses, CIDR blocks, and '*' wildcard
// octets (e.g. "10.0.0.*"), the three forms the configuration format
// historically accepts.
func matchIPList(ip string, patterns []string) bool {
	parsed := net.ParseIP(ip)
	for _, p := range patterns {
		if strings.Contains(p, "*") {
			if matchWildcard(ip, p) {
				return true
			}
			continue
		}
		if _, network, err := net.ParseCIDR(p); err == nil {
			if parsed != nil && network.Contains(parsed) {
				return true
			}
			continue
		}
		if p == ip {
			return true
		}
	}
	return false
}

func matchWildcard(ip, pattern string) bool {
	ipParts := strings.Split(ip, ".")
	patParts := strings.Split(pattern, ".")
	if len(ipParts) != len(patParts) {
		return false
	}
	for i, p := range patParts {
		if p == "*" {
			continue
		}
		if p != ipParts[i] {
			return false
		}
	}
	return true
}

// ListMatches reports whether msisdn matches any entry in list, where
// entries may be exact numbers or numbers followed by '*' as a prefix
// wildcard, matching the white_list/black_list configuration grammar.
func ListMatches(msisdn string, list []string) bool {
	for _, entry := range list {
		if strings.HasSuffix(entry, "*") {
			if strings.HasPrefix(msisdn, strings.TrimSuffix(entry, "*")) {
				return true
			}
			continue
		}
		if entry == msisdn {
			return true
		}
	}
	return false
}

// ParseBoolFlag parses the small {0,1} integer flags the ingress and
// translation expansion deal with (flash, unicode, …), returning an
// error string suitable for direct inclusion in an HTTP 400 body.
func ParseBoolFlag(s string) (bool, error) {
	switch s {
	case "", "0":
		return false, nil
	case "1":
		return true, nil
	default:
		return false, fmt.Errorf("value %q is not 0 or 1", s)
	}
}

// ParseNonNegativeInt parses fields like mwi/mwimessages/validity/deferred
// that must be non-negative integers.
func ParseNonNegativeInt(s string, max int) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("value %q is not an integer", s)
	}
	if n < 0 || (max >= 0 && n > max) {
		return 0, fmt.Errorf("value %d out of range [0,%d]", n, max)
	}
	return n, nil
}
