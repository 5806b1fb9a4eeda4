// Package classify implements the tracker classification domain. It maps URLs,
// cookie names, and storage keys to a tracking platform and category using a
// static, ordered pattern table.
//
// Matching is a pure function of the table and the input string: repeated calls
// with the same input always return the same result, and the table is never
// mutated at runtime.
package classify

import (
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"
)

// Category groups platforms by what the matched signal is used for.
type Category string

const (
	CategoryAnalytics      Category = "analytics"
	CategoryAdvertising    Category = "advertising"
	CategorySocial         Category = "social"
	CategoryFingerprinting Category = "fingerprinting"
	CategoryDataBroker     Category = "data-broker"
	CategoryUnknown        Category = "unknown"
)

// Classification is the result of a successful match.
type Classification struct {
	Platform  string    `json:"platform"`
	Category  Category  `json:"category"`
	MatchedAt time.Time `json:"matched_at"`
}

// Match classifies the input (URL, cookie name, or storage key) against the
// pattern table. Matching is case-insensitive substring containment;
// iteration stops at the first matching platform, and within a platform at
// the first matching pattern. Returns nil when nothing matches; the empty
// string never matches.
func Match(input string) *Classification {
	if input == "" {
		return nil
	}
	lowered := strings.ToLower(input)

	for _, e := range table {
		for _, p := range e.patterns {
			if strings.Contains(lowered, p) {
				return &Classification{
					Platform:  e.platform,
					Category:  e.category,
					MatchedAt: time.Now(),
				}
			}
		}
	}
	return nil
}

// IsTrackingPixel reports whether the URL looks like a tracking pixel: a
// known collection endpoint path on a matched platform, or a generic beacon
// path fragment. Non-matching URLs are never pixels.
func IsTrackingPixel(rawURL string) bool {
	if Match(rawURL) == nil {
		return false
	}
	lowered := strings.ToLower(rawURL)
	for _, p := range pixelPaths {
		if strings.Contains(lowered, p) {
			return true
		}
	}
	return false
}

// ThirdParty reports whether requestURL resolves to a different registrable
// domain (eTLD+1) than pageDomain. Unparseable inputs are treated as
// first-party: a capture gap is preferable to a false tracker flag.
func ThirdParty(pageDomain, requestURL string) bool {
	u, err := url.Parse(requestURL)
	if err != nil || u.Hostname() == "" {
		return false
	}

	pageBase, err := publicsuffix.EffectiveTLDPlusOne(strings.ToLower(pageDomain))
	if err != nil {
		return false
	}
	reqBase, err := publicsuffix.EffectiveTLDPlusOne(strings.ToLower(u.Hostname()))
	if err != nil {
		return false
	}
	return pageBase != reqBase
}
