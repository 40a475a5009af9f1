package utils

import (
	"reflect"
	"testing"
)

func TestAtoiDefault(t *testing.T) {
	cases := []struct {
		s    string
		def  int
		want int
	}{
		{"", 10, 10},
		{"42", 0, 42},
		{" 3 ", 1, 3},
		{"-13", 1, -13},
		{"x", 5, 5},
		{"999999999999999999999999", -1, -1},
	}
	for _, tc := range cases {
		if got := AtoiDefault(tc.s, tc.def); got != tc.want {
			t.Fatalf("AtoiDefault(%q, %d) = %d; want %d", tc.s, tc.def, got, tc.want)
		}
	}
}

func TestParseID(t *testing.T) {
	for in, want := range map[string]uint64{"7": 7, " 12 ": 12} {
		if got, ok := ParseID(in); !ok || got != want {
			t.Fatalf("ParseID(%q) = %d,%v", in, got, ok)
		}
	}
	for _, in := range []string{"", "0", "-1", "abc", "1.5"} {
		if _, ok := ParseID(in); ok {
			t.Fatalf("ParseID(%q) should fail", in)
		}
	}
}

func TestParseIDList(t *testing.T) {
	ids, _, ok := ParseIDList([]string{"1,2", " 3 ", "", "4,,"})
	if !ok || !reflect.DeepEqual(ids, []uint64{1, 2, 3, 4}) {
		t.Fatalf("ids = %v ok=%v", ids, ok)
	}
	if ids, _, ok := ParseIDList(nil); !ok || ids != nil {
		t.Fatalf("empty input: %v %v", ids, ok)
	}
	if _, bad, ok := ParseIDList([]string{"1,x"}); ok || bad != "x" {
		t.Fatalf("expected failure on x, got bad=%q ok=%v", bad, ok)
	}
}
