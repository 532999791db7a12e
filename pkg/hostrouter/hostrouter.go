package hostrouter

import (
	"errors"
	"net/http"
	"strings"
)

// ErrInvalidPattern is returned for empty or malformed host patterns.
var ErrInvalidPattern = errors.New("hostrouter: invalid host pattern")

// Pattern is a compiled host pattern.
type Pattern struct {
	raw      string
	domain   string
	wildcard bool
}

// Compile parses an exact ("api.example.com") or wildcard ("*.example.com")
// host pattern.
func Compile(pattern string) (Pattern, error) {
	p := strings.ToLower(strings.TrimSpace(pattern))
	switch {
	case p == "", p == "*", p == "*.":
		return Pattern{}, errors.Join(ErrInvalidPattern, errors.New(pattern))
	case strings.HasPrefix(p, "*."):
		return Pattern{raw: p, domain: p[2:], wildcard: true}, nil
	case strings.Contains(p, "*"):
		return Pattern{}, errors.Join(ErrInvalidPattern, errors.New(pattern))
	}
	return Pattern{raw: p, domain: p}, nil
}

// Match reports whether host (as found in the Host header) matches the pattern.
func (p Pattern) Match(host string) bool {
	host = Normalize(host)
	if !p.wildcard {
		return host == p.domain
	}
	return strings.HasSuffix(host, "."+p.domain)
}

// Specificity ranks patterns: exact patterns beat wildcards, longer domains
// beat shorter ones.
func (p Pattern) Specificity() int {
	if p.wildcard {
		return len(p.domain)
	}
	return 1<<16 + len(p.domain)
}

// String returns the normalized pattern.
func (p Pattern) String() string { return p.raw }

// Normalize strips the port and lowercases host.
func Normalize(host string) string {
	if idx := strings.LastIndex(host, ":"); idx != -1 {
		// IPv6 addresses keep their closing bracket
		if !strings.Contains(host[idx:], "]") {
			host = host[:idx]
		}
	}
	return strings.ToLower(host)
}

// GetDomain returns the normalized domain from the request Host header.
//
// Examples:
//
//	"example.com:8080" -> "example.com"
//	"[::1]:8080" -> "[::1]"
//	"Example.COM" -> "example.com"
func GetDomain(r *http.Request) string {
	return Normalize(r.Host)
}
