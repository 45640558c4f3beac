// Package rerank orders merged search candidates with a staged pipeline:
// an optional semantic bulk filter, pairwise relevance scoring, freshness
// decay, and a domain authority blend.
package rerank

import (
	"net/url"
	"strings"
)

// exactAuthority maps known domains to trust priors. Subdomains inherit the
// parent's score via suffix matching.
var exactAuthority = map[string]float64{
	"wikipedia.org":       0.95,
	"github.com":          0.9,
	"stackoverflow.com":   0.9,
	"arxiv.org":           0.9,
	"nature.com":          0.9,
	"reuters.com":         0.85,
	"apnews.com":          0.85,
	"bbc.com":             0.85,
	"bbc.co.uk":           0.85,
	"nytimes.com":         0.8,
	"theguardian.com":     0.8,
	"bloomberg.com":       0.8,
	"mozilla.org":         0.85,
	"docs.python.org":     0.9,
	"go.dev":              0.9,
	"developer.apple.com": 0.85,
	"medium.com":          0.55,
	"reddit.com":          0.5,
	"quora.com":           0.45,
	"pinterest.com":       0.3,
}

// tldAuthority gives a prior by top-level domain when the host is unknown.
var tldAuthority = map[string]float64{
	"gov": 0.9,
	"edu": 0.85,
	"org": 0.6,
	"io":  0.55,
	"dev": 0.55,
}

// lowTrustMarkers flag content-farm and aggregator hosts.
var lowTrustMarkers = []string{
	"answers.", "ehow.", "wikihow.", "slideshare.",
	"-blog.", "blogspot.", "wordpress.com",
}

const defaultAuthority = 0.5

// AuthorityScore returns a [0,1] trust prior for a result URL. Unknown
// hosts get a neutral 0.5 so authority nudges ranking without dominating it.
func AuthorityScore(rawURL string) float64 {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return defaultAuthority
	}
	host := strings.ToLower(strings.TrimPrefix(parsed.Host, "www."))

	if score, ok := exactAuthority[host]; ok {
		return score
	}
	for domain, score := range exactAuthority {
		if strings.HasSuffix(host, "."+domain) {
			return score
		}
	}

	for _, marker := range lowTrustMarkers {
		if strings.Contains(host, marker) {
			return 0.4
		}
	}

	if idx := strings.LastIndex(host, "."); idx >= 0 {
		if score, ok := tldAuthority[host[idx+1:]]; ok {
			return score
		}
	}

	return defaultAuthority
}
