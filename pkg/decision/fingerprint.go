package decision

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
)

// Fingerprint is a stable hash over the decision-relevant inputs of a
// context. Two logically identical requests always produce the same
// fingerprint; any input that can affect the policy outcome changes it.
type Fingerprint string

// FingerprintOf computes the fingerprint of a resolved context.
//
// The hash covers the normalized tuple (user identity, resource key,
// classification summary). Request metadata that cannot affect the policy
// outcome (request ID, timestamps, source) is deliberately excluded so
// that repeated identical requests hit the cache.
func FingerprintOf(ctx *Context) Fingerprint {
	h := sha256.New()

	h.Write([]byte(strings.ToLower(ctx.User.ID)))
	h.Write([]byte{0})
	h.Write([]byte(strings.ToLower(ctx.User.Email)))
	h.Write([]byte{0})
	h.Write([]byte(ctx.ResourceKey))
	h.Write([]byte{0})
	h.Write([]byte(classificationSummary(ctx.Findings)))

	return Fingerprint(hex.EncodeToString(h.Sum(nil)))
}

// classificationSummary produces a canonical, order-independent summary of
// classifier findings.
func classificationSummary(findings []Finding) string {
	if len(findings) == 0 {
		return ""
	}

	parts := make([]string, 0, len(findings))
	for _, f := range findings {
		parts = append(parts, f.Category+":"+f.Severity)
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}

// NormalizeResourceKey derives the canonical override/cache key for a
// resource: the lowercased service name when set, otherwise the lowercased
// host of the URL (with any port and "www." prefix stripped), otherwise the
// lowercased raw URL.
func NormalizeResourceKey(r Resource) string {
	if r.Service != "" {
		return strings.ToLower(strings.TrimSpace(r.Service))
	}

	raw := strings.TrimSpace(r.URL)
	if raw == "" {
		return ""
	}

	u, err := url.Parse(raw)
	if err == nil && u.Host == "" && !strings.Contains(raw, "://") {
		// Bare hostnames like "character.ai" parse with an empty host.
		u, err = url.Parse("https://" + raw)
	}
	if err != nil || u.Host == "" {
		return strings.ToLower(raw)
	}

	host := strings.ToLower(u.Hostname())
	host = strings.TrimPrefix(host, "www.")
	return host
}
