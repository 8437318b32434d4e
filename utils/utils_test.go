package utils

import "testing"

func TestPrefix(t *testing.T) {
	cases := []struct {
		in   string
		n    int
		want string
	}{
		{"hello", 10, "hello"},
		{"hello", 3, "hel"},
		{"héllo", 2, "hé"},
		{"abc", 0, ""},
		{"", 5, ""},
	}
	for _, tc := range cases {
		if got := Prefix(tc.in, tc.n); got != tc.want {
			t.Fatalf("Prefix(%q, %d) = %q, want %q", tc.in, tc.n, got, tc.want)
		}
	}
}

func TestUrlQuery(t *testing.T) {
	if got := UrlQuery("ai chips 2024"); got != "ai+chips+2024" {
		t.Fatalf("unexpected query %q", got)
	}
}
