package helpers

import (
	"errors"
	"net/url"
	"strings"
)

var trackingQueryParams = map[string]struct{}{
	"utm_source":   {},
	"utm_medium":   {},
	"utm_campaign": {},
	"utm_term":     {},
	"utm_content":  {},
	"gclid":        {},
	"fbclid":       {},
}

// ErrInvalidImageURL is returned for cover image URLs that are not absolute http(s) links.
var ErrInvalidImageURL = errors.New("cover image must be an http(s) URL")

// NormalizeImageURL validates a cover image URL. Empty input is allowed and
// returns "". The scheme and host are lowercased, fragments and tracking
// parameters are dropped.
func NormalizeImageURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", ErrInvalidImageURL
	}
	parsed.Scheme = strings.ToLower(parsed.Scheme)
	if (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return "", ErrInvalidImageURL
	}
	parsed.Host = strings.ToLower(parsed.Host)
	parsed.Fragment = ""
	if parsed.RawQuery != "" {
		query := parsed.Query()
		for key := range query {
			if _, drop := trackingQueryParams[strings.ToLower(key)]; drop {
				query.Del(key)
			}
		}
		parsed.RawQuery = query.Encode()
	}
	return parsed.String(), nil
}
