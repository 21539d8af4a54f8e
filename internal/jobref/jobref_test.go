package jobref

import "testing"

func TestCanonicalizeURL(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{
			"https://boards.greenhouse.io/acme/jobs/123?gh_src=newsletter&utm_source=email",
			"https://boards.greenhouse.io/acme/jobs/123",
		},
		{
			"https://jobs.lever.co/acme/abc/",
			"https://jobs.lever.co/acme/abc",
		},
		{
			"https://example.com/job?b=2&a=1#apply",
			"https://example.com/job?a=1&b=2",
		},
		{"not a url", ""},
		{"/relative/path", ""},
		{"", ""},
	}
	for _, tc := range cases {
		if got := CanonicalizeURL(tc.in); got != tc.want {
			t.Fatalf("CanonicalizeURL(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestCanonicalizeURLDeterministic(t *testing.T) {
	t.Parallel()

	a := CanonicalizeURL("https://example.com/job?a=1&b=2")
	b := CanonicalizeURL("https://example.com/job?b=2&a=1")
	if a != b {
		t.Fatalf("query order changed the canonical URL: %q vs %q", a, b)
	}
}

func TestExtractExternalID(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{"https://boards.greenhouse.io/acme/jobs/4567", "greenhouse.io:4567"},
		{"https://jobs.lever.co/acme/f47ac10b-58cc-4372-a567-0e02b2c3d479", "lever.co:f47ac10b-58cc-4372-a567-0e02b2c3d479"},
		{"https://www.linkedin.com/jobs/view/987654321", "linkedin.com:987654321"},
		{"https://www.linkedin.com/jobs/search/?currentJobId=987654321", "linkedin.com:987654321"},
		{"https://www.indeed.com/viewjob?jk=abc123def456", "indeed.com:abc123def456"},
		{"https://www.glassdoor.com/job-listing/?jobListingId=112233", "glassdoor.com:112233"},
		{"https://acme.com/careers/4567", ""},
		{"", ""},
	}
	for _, tc := range cases {
		if got := ExtractExternalID(tc.in); got != tc.want {
			t.Fatalf("ExtractExternalID(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestExtractExternalIDNamespacesByHost(t *testing.T) {
	t.Parallel()

	greenhouse := ExtractExternalID("https://boards.greenhouse.io/acme/jobs/4567")
	wellfound := ExtractExternalID("https://wellfound.com/jobs/4567")
	if greenhouse == wellfound {
		t.Fatalf("same numeric id on two platforms must not collide: %q", greenhouse)
	}
}

func TestExtractExternalIDHostMatchWithoutID(t *testing.T) {
	t.Parallel()

	// The host matches a known platform but the id pattern does not capture;
	// the first host match wins and yields no reference.
	if got := ExtractExternalID("https://boards.greenhouse.io/acme/careers"); got != "" {
		t.Fatalf("expected empty reference, got %q", got)
	}
}
