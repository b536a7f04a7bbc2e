// Package whitelist guards which external sites may submit transactions.
//
// Callers identify themselves with a source URL; the guard reduces it to a
// registrable domain and compares against a configured allow-list. An empty
// allow-list denies everything (fail closed). Enforcement can be switched
// off wholesale, in which case every source passes.
package whitelist

import (
	"net/url"
	"strings"
)

// Guard checks source URLs against an allow-list of domains.
type Guard struct {
	enforce bool
	allowed map[string]struct{}
}

// NewGuard builds a guard from the configured allow-list. Entries are
// normalized with the same rule applied to incoming URLs, so full URLs and
// bare domains are both accepted in configuration.
func NewGuard(enforce bool, entries []string) *Guard {
	allowed := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if d := Normalize(e); d != "" {
			allowed[d] = struct{}{}
		}
	}
	return &Guard{enforce: enforce, allowed: allowed}
}

// Enforced reports whether the guard is actually checking sources.
func (g *Guard) Enforced() bool {
	return g.enforce
}

// Allowed reports whether the source URL may submit transactions.
// When enforcement is disabled every source passes. Otherwise the
// normalized domain must exactly match an allow-list entry; an empty
// allow-list rejects everything.
func (g *Guard) Allowed(sourceURL string) bool {
	if !g.enforce {
		return true
	}
	d := Normalize(sourceURL)
	if d == "" {
		return false
	}
	_, ok := g.allowed[d]
	return ok
}

// Normalize reduces a URL to its registrable domain: the last two
// dot-separated labels of the host, lowercased. A missing scheme defaults
// to https so bare domains parse. Returns "" when no host can be extracted.
//
// Normalize is idempotent: feeding its output back in yields the same
// domain.
func Normalize(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return ""
	}
	host = strings.Trim(host, ".")
	labels := strings.Split(host, ".")
	if len(labels) <= 2 {
		return host
	}
	return strings.Join(labels[len(labels)-2:], ".")
}
