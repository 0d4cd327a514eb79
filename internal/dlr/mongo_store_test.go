package dlr

import (
	"testing"

	"go.mongodb.org/mongo-driver/bson"
)

// The remaining mongoStore methods all round-trip through a live
// *mongo.Collection and are not exercised by any test here; the
// sqlStore's equivalent methods are covered against a fake driver in
// sql_store_test.go. cond, stringOf and intOf are the back-end-agnostic
// pieces covered here in isolation.

func TestCondMatchesDestinationSuffix(t *testing.T) {
	filter := cond("smsc1", "ts1", "1234567")
	if filter["smsc"] != "smsc1" || filter["ts"] != "ts1" {
		t.Fatalf("unexpected key fields: %+v", filter)
	}
	dest, ok := filter["destination"].(bson.M)
	if !ok {
		t.Fatalf("destination filter not a regex map: %+v", filter["destination"])
	}
	pattern, _ := dest["$regex"].(string)
	if pattern != "1234567$" {
		t.Fatalf("regex = %q, want suffix-anchored 1234567$", pattern)
	}
}

func TestCondOmitsDestinationWhenEmpty(t *testing.T) {
	filter := cond("smsc1", "ts1", "")
	if _, ok := filter["destination"]; ok {
		t.Fatalf("expected no destination key when dst is empty, got %+v", filter)
	}
}

func TestCondEscapesRegexMetacharacters(t *testing.T) {
	filter := cond("smsc1", "ts1", "+1.555")
	dest := filter["destination"].(bson.M)
	pattern := dest["$regex"].(string)
	if pattern != `\+1\.555$` {
		t.Fatalf("regex = %q, want escaped metacharacters", pattern)
	}
}

func TestStringOfHandlesNilAndNonString(t *testing.T) {
	if stringOf(nil) != "" {
		t.Fatal("stringOf(nil) should be empty")
	}
	if stringOf(42) != "" {
		t.Fatal("stringOf(non-string) should be empty")
	}
	if stringOf("ok") != "ok" {
		t.Fatal("stringOf(string) should pass through")
	}
}

// TestIntOfCoversDriverNumericTypes guards Get's mask/status copy: the
// Mongo driver hands decoded documents back with int32 values, not the
// plain int a literal bson.M{"status": 2} would suggest.
func TestIntOfCoversDriverNumericTypes(t *testing.T) {
	cases := []struct {
		name string
		in   any
		want int
	}{
		{"int32", int32(2), 2},
		{"int64", int64(2), 2},
		{"float64", float64(2), 2},
		{"int", 2, 2},
		{"nil", nil, 0},
		{"string", "2", 0},
	}
	for _, c := range cases {
		if got := intOf(c.in); got != c.want {
			t.Errorf("%s: intOf(%v) = %d, want %d", c.name, c.in, got, c.want)
		}
	}
}
