package urltrans

import (
	"testing"

	"github.com/kannel-go/smsbox/internal/msg"
)

func TestFindPrefersSMSCScopedKeyword(t *testing.T) {
	l := NewList([]*Translation{
		{Name: "global-ping", Keyword: "ping", Type: Text, Pattern: "pong-global"},
		{Name: "scoped-ping", Keyword: "ping", SMSCID: "smsc1", Type: Text, Pattern: "pong-scoped"},
		{Name: "catchall", Type: Text, Pattern: "fallback"},
	})

	tr, ok := l.Find("ping here", "smsc1")
	if !ok || tr.Name != "scoped-ping" {
		t.Fatalf("got %+v, want scoped-ping", tr)
	}

	tr, ok = l.Find("ping here", "smsc2")
	if !ok || tr.Name != "global-ping" {
		t.Fatalf("got %+v, want global-ping", tr)
	}

	tr, ok = l.Find("nothing matches", "smsc2")
	if !ok || tr.Name != "catchall" {
		t.Fatalf("got %+v, want catchall", tr)
	}
}

func TestFindNoMatch(t *testing.T) {
	l := NewList([]*Translation{
		{Name: "only-keyword", Keyword: "ping", Type: Text, Pattern: "pong"},
	})
	if _, ok := l.Find("pong", ""); ok {
		t.Fatal("expected no match")
	}
}

func TestExpand(t *testing.T) {
	tr := &Translation{Name: "echo"}
	m := &msg.Message{Sender: "+1", Receiver: "+2", MsgData: []byte("hi"), SMSCID: "S"}
	got := Expand("from %s to %r: %a via %i (%k) %%", tr, m)
	want := "from +1 to +2: hi via S (echo) %"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestIPAllowedDenyWins(t *testing.T) {
	tr := &Translation{AllowIP: []string{"10.0.0.*"}, DenyIP: []string{"10.0.0.5"}}
	if tr.IPAllowed("10.0.0.5") {
		t.Fatal("deny should win over allow")
	}
	if !tr.IPAllowed("10.0.0.6") {
		t.Fatal("expected 10.0.0.6 to be allowed")
	}
	if tr.IPAllowed("10.0.1.6") {
		t.Fatal("expected 10.0.1.6 to be denied (not in allow list)")
	}
}

func TestIPAllowedEmptyAllowListAllowsAll(t *testing.T) {
	tr := &Translation{DenyIP: []string{"10.0.0.5"}}
	if !tr.IPAllowed("1.2.3.4") {
		t.Fatal("expected allow when AllowIP is empty")
	}
	if tr.IPAllowed("10.0.0.5") {
		t.Fatal("expected deny to still apply")
	}
}

func TestListMatchesWildcardSuffix(t *testing.T) {
	list := []string{"4477*"}
	if !ListMatches("447712345", list) {
		t.Fatal("expected prefix wildcard match")
	}
	if ListMatches("449912345", list) {
		t.Fatal("unexpected match")
	}
}

func TestParseBoolFlag(t *testing.T) {
	cases := []struct {
		in      string
		want    bool
		wantErr bool
	}{
		{"", false, false},
		{"0", false, false},
		{"1", true, false},
		{"2", false, true},
	}
	for _, c := range cases {
		got, err := ParseBoolFlag(c.in)
		if (err != nil) != c.wantErr {
			t.Errorf("ParseBoolFlag(%q) error = %v, wantErr %v", c.in, err, c.wantErr)
		}
		if got != c.want {
			t.Errorf("ParseBoolFlag(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestParseNonNegativeInt(t *testing.T) {
	if _, err := ParseNonNegativeInt("9", 8); err == nil {
		t.Fatal("expected range error")
	}
	v, err := ParseNonNegativeInt("8", 8)
	if err != nil || v != 8 {
		t.Fatalf("got (%d, %v), want (8, nil)", v, err)
	}
}
