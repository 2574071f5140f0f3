package tenant

import (
	"net"
	"regexp"
	"strings"
)

var slugRegex = regexp.MustCompile(`^[a-z0-9-]{1,63}$`)

// NormalizeSlug lower-cases and validates a tenant slug.
func NormalizeSlug(s string) (string, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if !slugRegex.MatchString(s) {
		return "", false
	}
	return s, true
}

// Source holds the places a tenant slug can come from, in priority order.
type Source struct {
	Param     string // ?tenant= URL parameter
	Persisted string // slug saved by an earlier explicit switch
	Host      string // request or page hostname, port allowed
}

// Resolver picks a tenant slug from a Source.
type Resolver struct {
	BaseDomain string // e.g. "dobro.app"; subdomains of it name tenants
	Default    string
}

// Resolve returns the first valid slug from the URL parameter, persisted
// storage, then the hostname, falling back to the default tenant.
func (r Resolver) Resolve(src Source) string {
	if slug, ok := NormalizeSlug(src.Param); ok {
		return slug
	}
	if slug, ok := NormalizeSlug(src.Persisted); ok {
		return slug
	}
	if slug, ok := r.fromHost(src.Host); ok {
		return slug
	}
	return r.Default
}

func (r Resolver) fromHost(host string) (string, bool) {
	host = strings.ToLower(strings.TrimSpace(host))
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.TrimSuffix(host, ".")
	if host == "" || host == "localhost" || net.ParseIP(host) != nil {
		return "", false
	}

	var label string
	base := strings.ToLower(r.BaseDomain)
	switch {
	case base != "" && strings.HasSuffix(host, "."+base):
		prefix := strings.TrimSuffix(host, "."+base)
		labels := strings.Split(prefix, ".")
		label = labels[len(labels)-1]
	case base != "" && host == base:
		return "", false
	default:
		labels := strings.Split(host, ".")
		if len(labels) < 3 {
			return "", false
		}
		label = labels[0]
	}

	if label == "www" {
		return "", false
	}
	return NormalizeSlug(label)
}
