// Package hostrouter matches request hosts against host patterns.
//
// Two pattern types are supported:
//
//   - Exact: "api.example.com" matches only that host
//   - Wildcard: "*.example.com" matches any subdomain (foo.example.com, bar.foo.example.com)
//
// Matching is case-insensitive and ports are stripped before matching.
// Exact patterns are more specific than wildcard ones; Specificity lets
// callers rank several matching patterns.
//
// # Usage
//
//	p, err := hostrouter.Compile("*.example.com")
//	if err != nil {
//	    return err
//	}
//	if p.Match(r.Host) {
//	    // serve tenant route
//	}
//
// # IPv6 Support
//
// Hosts like "[::1]:8080" keep their brackets during normalization.
package hostrouter
