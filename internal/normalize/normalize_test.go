package normalize

import "testing"

func TestCompany(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{"Acme, Inc.", "acme"},
		{"ACME Incorporated", "acme"},
		{"Stripe", "stripe"},
		{"Datadog GmbH", "datadog"},
		{"Facebook", "meta"},
		{"Meta Platforms, Inc.", "meta"},
		{"Amazon Web Services LLC", "amazon"},
		{"AWS", "amazon"},
		{"  Spaced   Out  Co  ", "spaced out"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := Company(tc.in); got != tc.want {
			t.Fatalf("Company(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestCompanyIdempotent(t *testing.T) {
	t.Parallel()

	inputs := []string{"Acme, Inc.", "Facebook", "AWS", "Meta Platforms, Inc.", "Google Cloud"}
	for _, in := range inputs {
		once := Company(in)
		if twice := Company(once); twice != once {
			t.Fatalf("Company not idempotent for %q: first %q, second %q", in, once, twice)
		}
	}
}

func TestTitle(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{"Senior Software Engineer", "software engineer"},
		{"SDE II", "software engineer"},
		{"SWE", "software engineer"},
		{"Staff Developer", "software engineer"},
		{"Software Engineer (Remote)", "software engineer"},
		{"Entry Level Software Engineer", "software engineer"},
		{"Fullstack Developer", "full stack software engineer"},
		{"Sr. PM", "product manager"},
		{"Product Manager", "product manager"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := Title(tc.in); got != tc.want {
			t.Fatalf("Title(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestTitleKeepsDistinctRoles(t *testing.T) {
	t.Parallel()

	if Title("Senior Product Manager") == Title("Senior Software Engineer") {
		t.Fatalf("product manager and software engineer must not normalize to the same title")
	}
}
