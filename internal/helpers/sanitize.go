package helpers

import (
	"html"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

var (
	strictPolicyOnce sync.Once
	strictPolicy     *bluemonday.Policy

	contentPolicyOnce sync.Once
	contentPolicy     *bluemonday.Policy
)

// StrictHTMLPolicy strips every element and attribute.
func StrictHTMLPolicy() *bluemonday.Policy {
	strictPolicyOnce.Do(func() {
		strictPolicy = bluemonday.StrictPolicy()
	})
	return strictPolicy
}

// ContentHTMLPolicy allows the markup a post body or generated draft uses:
// headings, paragraphs, lists, emphasis, code, blockquotes, images and links.
// Scripts, event handlers and javascript: URLs are removed.
func ContentHTMLPolicy() *bluemonday.Policy {
	contentPolicyOnce.Do(func() {
		policy := bluemonday.UGCPolicy()
		policy.AllowElements("figure", "figcaption")
		policy.AllowAttrs("class").OnElements("code", "pre", "figure")
		policy.AllowURLSchemes("http", "https", "mailto")
		policy.AllowRelativeURLs(true)
		policy.RequireParseableURLs(true)
		policy.AddTargetBlankToFullyQualifiedLinks(true)
		contentPolicy = policy
	})
	return contentPolicy
}

// PlainText removes all markup from s and decodes entities.
func PlainText(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(StrictHTMLPolicy().Sanitize(s)))
}

// SanitizeContent cleans user or model supplied HTML for storage and display.
func SanitizeContent(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	return strings.TrimSpace(ContentHTMLPolicy().Sanitize(s))
}
