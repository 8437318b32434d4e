package helpers

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// SummaryLength is the number of characters kept in a derived summary.
const SummaryLength = 150

// NoSummary is the placeholder some clients send instead of a real summary.
const NoSummary = "No summary"

var slugSeparator = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lowercases title, collapses every non-alphanumeric run into "-"
// and appends "-<unix millis>" so repeated titles stay unique.
func Slugify(title string, now time.Time) string {
	base := slugSeparator.ReplaceAllString(strings.ToLower(title), "-")
	return base + "-" + strconv.FormatInt(now.UnixMilli(), 10)
}

// NeedsSummary reports whether summary should be derived from content.
func NeedsSummary(summary string) bool {
	s := strings.TrimSpace(summary)
	return s == "" || strings.Contains(s, NoSummary)
}

// DeriveSummary turns HTML content into a plain-text summary of at most
// SummaryLength characters, with "..." appended when truncated.
func DeriveSummary(content string) string {
	text := []rune(PlainText(content))
	if len(text) <= SummaryLength {
		return string(text)
	}
	return string(text[:SummaryLength]) + "..."
}

// ResolveSummary returns summary unless it is empty or a placeholder.
func ResolveSummary(summary, content string) string {
	if NeedsSummary(summary) {
		return DeriveSummary(content)
	}
	return strings.TrimSpace(summary)
}
