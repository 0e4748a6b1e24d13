// Package urlnorm canonicalizes and resolves URLs so that equivalent links
// collapse onto a single frontier entry.
package urlnorm

import (
	"net/url"
	"strings"
)

const defaultScheme = "http"

// Canonicalize standardizes a URL: the scheme defaults to http, the host is
// lowercased, duplicate slashes in the path collapse, the path always has a
// leading slash, and the fragment and ;params are dropped. The query string is
// kept verbatim. Unparseable input degrades to a textual best effort.
func Canonicalize(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := parse(raw)
	if err != nil {
		return canonicalizeText(raw)
	}
	if u.Opaque != "" {
		// mailto:, tel: and friends have no hierarchical part to normalize.
		u.Fragment = ""
		u.RawFragment = ""
		return u.String()
	}
	if u.Scheme == "" {
		u.Scheme = defaultScheme
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)

	escaped := collapseSlashes(stripParams(u.EscapedPath()))
	if unescaped, err := url.PathUnescape(escaped); err == nil {
		u.Path = unescaped
		u.RawPath = escaped
	} else {
		u.Path = escaped
		u.RawPath = ""
	}
	u.Fragment = ""
	u.RawFragment = ""
	u.ForceQuery = false
	return u.String()
}

// Resolve resolves href against base and canonicalizes the result. It reports
// false for empty references and for targets that are not http(s).
func Resolve(base, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" {
		return "", false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	target := ref
	if b, err := url.Parse(strings.TrimSpace(base)); err == nil {
		target = b.ResolveReference(ref)
	}
	switch strings.ToLower(target.Scheme) {
	case "", "http", "https":
	default:
		return "", false
	}
	return Canonicalize(target.String()), true
}

// Host returns the lowercased host (with port, if any) of raw after
// canonicalization. It returns an empty string when no host is present.
func Host(raw string) string {
	u, err := url.Parse(Canonicalize(raw))
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Host)
}

// IsInternal reports whether target lives on baseDomain or one of its
// subdomains. Comparison is case-insensitive.
func IsInternal(target, baseDomain string) bool {
	base := strings.ToLower(strings.TrimSpace(baseDomain))
	if base == "" {
		return false
	}
	u, err := url.Parse(strings.TrimSpace(target))
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Host)
	return host == base || strings.HasSuffix(host, "."+base)
}

func parse(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err //nolint:wrapcheck // callers fall back to textual handling
	}
	// "example.com/docs" parses as a bare path; treat it as a host reference.
	if u.Scheme == "" && u.Host == "" && raw != "" && !strings.HasPrefix(raw, "/") {
		if withScheme, err := url.Parse(defaultScheme + "://" + raw); err == nil && withScheme.Host != "" {
			return withScheme, nil
		}
	}
	return u, nil
}

func canonicalizeText(raw string) string {
	if i := strings.IndexByte(raw, '#'); i >= 0 {
		raw = raw[:i]
	}
	scheme := defaultScheme
	rest := raw
	if i := strings.Index(raw, "://"); i >= 0 {
		scheme = strings.ToLower(raw[:i])
		rest = raw[i+3:]
	} else {
		rest = strings.TrimPrefix(rest, "//")
	}
	host, path := rest, "/"
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		host, path = rest[:i], rest[i:]
	}
	query := ""
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path, query = path[:i], path[i:]
	}
	return scheme + "://" + strings.ToLower(host) + collapseSlashes(stripParams(path)) + query
}

func collapseSlashes(path string) string {
	for strings.Contains(path, "//") {
		path = strings.ReplaceAll(path, "//", "/")
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return path
}

func stripParams(path string) string {
	last := strings.LastIndexByte(path, '/')
	if i := strings.IndexByte(path[last+1:], ';'); i >= 0 {
		return path[:last+1+i]
	}
	return path
}
