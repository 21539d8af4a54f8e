// Package jobref derives stable identifiers from job-posting URLs.
package jobref

import (
	"net/url"
	"regexp"
	"sort"
	"strings"
)

// trackingQueryKeys are stripped from canonical URLs. utm_* keys are
// handled separately by prefix.
var trackingQueryKeys = map[string]struct{}{
	"ref":          {},
	"source":       {},
	"src":          {},
	"gh_src":       {},
	"gh_jid":       {},
	"lever-source": {},
	"fbclid":       {},
	"gclid":        {},
}

// postingRule pairs a host pattern with an id-extraction pattern for one
// posting platform. Rules are checked in order; the first host match wins
// whether or not its id pattern captures.
type postingRule struct {
	host string
	id   *regexp.Regexp
}

var postingRules = []postingRule{
	{host: "greenhouse.io", id: regexp.MustCompile(`/jobs/(\d+)`)},
	{host: "lever.co", id: regexp.MustCompile(`/([0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12})`)},
	{host: "linkedin.com", id: regexp.MustCompile(`(?:/jobs/view/|currentJobId=)(\d+)`)},
	{host: "indeed.com", id: regexp.MustCompile(`[?&]jk=([0-9a-f]+)`)},
	{host: "myworkdayjobs.com", id: regexp.MustCompile(`_(JR[-_]?\d+|R-?\d+)\b`)},
	{host: "ashbyhq.com", id: regexp.MustCompile(`/([0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12})`)},
	{host: "wellfound.com", id: regexp.MustCompile(`/jobs/(\d+)`)},
	{host: "glassdoor.com", id: regexp.MustCompile(`jobListingId=(\d+)`)},
}

// CanonicalizeURL strips tracking parameters, sorts the surviving query for
// determinism and drops any trailing slash. Returns "" for unparseable
// input; callers treat the empty string as "no URL", not an error.
func CanonicalizeURL(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}

	parsed, err := url.Parse(trimmed)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return ""
	}

	query := parsed.Query()
	for key := range query {
		lower := strings.ToLower(key)
		if strings.HasPrefix(lower, "utm_") {
			query.Del(key)
			continue
		}
		if _, tracking := trackingQueryKeys[lower]; tracking {
			query.Del(key)
		}
	}

	if len(query) == 0 {
		parsed.RawQuery = ""
	} else {
		keys := make([]string, 0, len(query))
		for key := range query {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		var b strings.Builder
		for _, key := range keys {
			values := query[key]
			sort.Strings(values)
			for _, value := range values {
				if b.Len() > 0 {
					b.WriteByte('&')
				}
				b.WriteString(url.QueryEscape(key))
				b.WriteByte('=')
				b.WriteString(url.QueryEscape(value))
			}
		}
		parsed.RawQuery = b.String()
	}

	parsed.Fragment = ""
	parsed.Path = strings.TrimSuffix(parsed.Path, "/")

	return parsed.String()
}

// ExtractExternalID matches a URL against the known posting platforms and
// returns "{host}:{id}" so the same numeric id on two platforms never
// collides. Returns "" when no rule's host matches or the id pattern fails
// to capture.
func ExtractExternalID(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}

	parsed, err := url.Parse(trimmed)
	if err != nil || parsed.Host == "" {
		return ""
	}
	host := strings.ToLower(parsed.Host)

	for _, rule := range postingRules {
		if host != rule.host && !strings.HasSuffix(host, "."+rule.host) {
			continue
		}
		match := rule.id.FindStringSubmatch(trimmed)
		if len(match) < 2 || match[1] == "" {
			return ""
		}
		return rule.host + ":" + match[1]
	}
	return ""
}
