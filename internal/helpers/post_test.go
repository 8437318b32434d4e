package helpers

import (
	"strings"
	"testing"
	"time"
)

func TestSlugify(t *testing.T) {
	now := time.UnixMilli(1700000000123)
	tests := []struct {
		in, want string
	}{
		{"Hello World", "hello-world-1700000000123"},
		{"Go 1.24: What's New?", "go-1-24-what-s-new--1700000000123"},
		{"", "-1700000000123"},
	}
	for _, tt := range tests {
		if got := Slugify(tt.in, now); got != tt.want {
			t.Fatalf("Slugify(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDeriveSummary(t *testing.T) {
	short := "<p>Short <em>post</em></p>"
	if got := DeriveSummary(short); got != "Short post" {
		t.Fatalf("unexpected short summary %q", got)
	}

	long := "<p>" + strings.Repeat("é", 200) + "</p>"
	got := DeriveSummary(long)
	if !strings.HasSuffix(got, "...") || len([]rune(got)) != SummaryLength+3 {
		t.Fatalf("expected %d runes plus ellipsis, got %d", SummaryLength, len([]rune(got)))
	}

	exact := strings.Repeat("a", SummaryLength)
	if got := DeriveSummary(exact); got != exact {
		t.Fatalf("exact-length content must not be truncated")
	}
}

func TestResolveSummary(t *testing.T) {
	if got := ResolveSummary("  Mine ", "<p>body</p>"); got != "Mine" {
		t.Fatalf("explicit summary should win, got %q", got)
	}
	for _, placeholder := range []string{"", "   ", "No summary", "No summary available"} {
		if got := ResolveSummary(placeholder, "<p>body</p>"); got != "body" {
			t.Fatalf("ResolveSummary(%q) = %q", placeholder, got)
		}
	}
}

func TestNormalizeImageURL(t *testing.T) {
	got, err := NormalizeImageURL("HTTPS://Cdn.Example.com/a.png?utm_source=x#frag")
	if err != nil || got != "https://cdn.example.com/a.png" {
		t.Fatalf("NormalizeImageURL: %q %v", got, err)
	}
	if got, err := NormalizeImageURL("  "); err != nil || got != "" {
		t.Fatalf("empty url should be accepted, got %q %v", got, err)
	}
	for _, bad := range []string{"javascript:alert(1)", "/relative.png", "ftp://x/y"} {
		if _, err := NormalizeImageURL(bad); err == nil {
			t.Fatalf("expected %q to be rejected", bad)
		}
	}
}
