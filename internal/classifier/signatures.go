package classifier

import (
	"strings"

	"github.com/kleaSCM/tunnelscope/internal/model"
)

// domainPattern is a normalized, classified domain pattern ready for
// matching.
type domainPattern struct {
	label      string
	domain     string // lowercased, no leading "*."
	isWildcard bool
}

// compilePatterns flattens a normalized signature catalog into a flat list of
// (label, pattern) pairs for matching, preserving catalog order so
// earlier signatures win ties.
func compilePatterns(signatures []model.AppSignature) []domainPattern {
	var patterns []domainPattern
	for _, sig := range signatures {
		for _, d := range sig.Domains {
			if strings.HasPrefix(d, "*.") {
				patterns = append(patterns, domainPattern{label: sig.Label, domain: d[2:], isWildcard: true})
			} else {
				patterns = append(patterns, domainPattern{label: sig.Label, domain: d, isWildcard: false})
			}
		}
	}
	return patterns
}

// matchDomain returns the label of the first pattern matching
// hostname, and ok=true if any matched.
func matchDomain(patterns []domainPattern, hostname string) (string, bool) {
	hostname = strings.ToLower(hostname)
	for _, p := range patterns {
		if p.isWildcard {
			if matchesWildcard(hostname, p.domain) {
				return p.label, true
			}
			continue
		}
		if hostname == p.domain || strings.HasSuffix(hostname, "."+p.domain) {
			return p.label, true
		}
	}
	return "", false
}

// matchesWildcard implements "*.d" matching: hostname must have
// exactly one more label than d and end with d.
func matchesWildcard(hostname, domain string) bool {
	if !strings.HasSuffix(hostname, "."+domain) {
		return false
	}
	prefix := strings.TrimSuffix(hostname, "."+domain)
	return prefix != "" && !strings.Contains(prefix, ".")
}

// cdnEntry is one row of the built-in CDN/ASN inference table.
type cdnEntry struct {
	suffix string
	cdn    string
	asn    string
}

// builtinCDNTable maps well-known CDN hostnames to a CDN name and ASN.
// Not exhaustive; extend as new CDNs are observed in signature data.
var builtinCDNTable = []cdnEntry{
	{suffix: "edgekey.net", cdn: "akamai", asn: "AS20940"},
	{suffix: "akamai.net", cdn: "akamai", asn: "AS20940"},
	{suffix: "akamaiedge.net", cdn: "akamai", asn: "AS20940"},
	{suffix: "cloudfront.net", cdn: "cloudfront", asn: "AS16509"},
	{suffix: "fastly.net", cdn: "fastly", asn: "AS54113"},
	{suffix: "cloudflare.net", cdn: "cloudflare", asn: "AS13335"},
	{suffix: "googleusercontent.com", cdn: "google", asn: "AS15169"},
}

// lookupCDN finds the built-in CDN/ASN entry for a hostname, if any.
func lookupCDN(hostname string) (cdn, asn string, ok bool) {
	hostname = strings.ToLower(hostname)
	for _, e := range builtinCDNTable {
		if hostname == e.suffix || strings.HasSuffix(hostname, "."+e.suffix) {
			return e.cdn, e.asn, true
		}
	}
	return "", "", false
}
