package resolve

import (
	"strings"

	"candid.fyi/huntline/internal/db"
	"candid.fyi/huntline/internal/jobref"
	signalschema "candid.fyi/huntline/schema"
)

// FieldPolicy controls how a signal value lands on an existing application.
type FieldPolicy int

const (
	// PolicyOverwrite replaces the stored value whenever the signal carries
	// one. Used for lifecycle fields where the newest signal wins.
	PolicyOverwrite FieldPolicy = iota + 1
	// PolicyFillIfEmpty writes the signal value only when the stored column
	// is empty. Used for identity fields that should never flip once set.
	PolicyFillIfEmpty
)

// fieldPolicies is the single source of truth for merge behavior. Adding a
// column means adding one row here, not another if-chain in the resolver.
var fieldPolicies = map[string]FieldPolicy{
	"status":           PolicyOverwrite,
	"next_steps":       PolicyOverwrite,
	"sentiment_score":  PolicyOverwrite,
	"rejection_reason": PolicyOverwrite,
	"feedback":         PolicyOverwrite,
	"external_ref_id":  PolicyFillIfEmpty,
	"salary_range":     PolicyFillIfEmpty,
	"company_domain":   PolicyFillIfEmpty,
	"company_linkedin": PolicyFillIfEmpty,
	"job_post_url":     PolicyFillIfEmpty,
	"location":         PolicyFillIfEmpty,
	"recruiter_name":   PolicyFillIfEmpty,
	"recruiter_email":  PolicyFillIfEmpty,
	"hiring_manager":   PolicyFillIfEmpty,
	"thread_key":       PolicyFillIfEmpty,
}

// mergeString resolves one string column against the policy table. A nil
// return means the column is left untouched.
func mergeString(column string, existing, incoming *string) *string {
	if incoming == nil || strings.TrimSpace(*incoming) == "" {
		return nil
	}
	switch fieldPolicies[column] {
	case PolicyOverwrite:
		return incoming
	case PolicyFillIfEmpty:
		if existing == nil || strings.TrimSpace(*existing) == "" {
			return incoming
		}
	}
	return nil
}

func mergeFloat(column string, existing, incoming *float64) *float64 {
	if incoming == nil {
		return nil
	}
	switch fieldPolicies[column] {
	case PolicyOverwrite:
		return incoming
	case PolicyFillIfEmpty:
		if existing == nil {
			return incoming
		}
	}
	return nil
}

// mergeParams builds the update delta applied when a signal matches an
// existing application. Every column consults fieldPolicies; the signal's
// raw company and role never overwrite the stored spelling.
func mergeParams(existing *db.Application, sig *signalschema.Signal) db.UpdateApplicationParams {
	status := strings.ToLower(strings.TrimSpace(sig.Status))

	params := db.UpdateApplicationParams{
		NextSteps:       mergeString("next_steps", existing.NextSteps, sig.NextSteps),
		SentimentScore:  mergeFloat("sentiment_score", existing.SentimentScore, sig.SentimentScore),
		RejectionReason: mergeString("rejection_reason", existing.RejectionReason, sig.RejectionReason),
		Feedback:        mergeString("feedback", existing.Feedback, sig.Feedback),
		ExternalRefID:   mergeString("external_ref_id", existing.ExternalRefID, signalExternalRef(sig)),
		SalaryRange:     mergeString("salary_range", existing.SalaryRange, sig.SalaryRange),
		CompanyDomain:   mergeString("company_domain", existing.CompanyDomain, signalCompanyDomain(sig)),
		CompanyLinkedIn: mergeString("company_linkedin", existing.CompanyLinkedIn, signalCompanyLinkedIn(sig)),
		JobPostURL:      mergeString("job_post_url", existing.JobPostURL, signalJobPostURL(sig)),
		Location:        mergeString("location", existing.Location, sig.Location),
		RecruiterName:   mergeString("recruiter_name", existing.RecruiterName, signalPersonField(sig, personRecruiterName)),
		RecruiterEmail:  mergeString("recruiter_email", existing.RecruiterEmail, signalPersonField(sig, personRecruiterEmail)),
		HiringManager:   mergeString("hiring_manager", existing.HiringManager, signalPersonField(sig, personHiringManager)),
		ThreadKey:       mergeString("thread_key", existing.ThreadKey, sig.ThreadID),
	}
	if db.IsKnownStatus(status) {
		params.Status = mergeString("status", &existing.Status, &status)
	}
	return params
}

type personField int

const (
	personRecruiterName personField = iota
	personRecruiterEmail
	personHiringManager
)

func signalPersonField(sig *signalschema.Signal, field personField) *string {
	if sig.People == nil {
		return nil
	}
	switch field {
	case personRecruiterName:
		return sig.People.RecruiterName
	case personRecruiterEmail:
		return sig.People.RecruiterEmail
	case personHiringManager:
		return sig.People.HiringManager
	}
	return nil
}

// signalExternalRef prefers the extractor's explicit posting reference and
// falls back to parsing the job post URL.
func signalExternalRef(sig *signalschema.Signal) *string {
	if sig.ExternalRefID != nil && strings.TrimSpace(*sig.ExternalRefID) != "" {
		trimmed := strings.TrimSpace(*sig.ExternalRefID)
		return &trimmed
	}
	if sig.URLs != nil && sig.URLs.JobPost != nil {
		if ref := jobref.ExtractExternalID(*sig.URLs.JobPost); ref != "" {
			return &ref
		}
	}
	return nil
}

func signalCompanyDomain(sig *signalschema.Signal) *string {
	if sig.CompanyInfo == nil || sig.CompanyInfo.Domain == nil {
		return nil
	}
	domain := strings.ToLower(strings.TrimSpace(*sig.CompanyInfo.Domain))
	if domain == "" {
		return nil
	}
	return &domain
}

func signalCompanyLinkedIn(sig *signalschema.Signal) *string {
	if sig.CompanyInfo == nil {
		return nil
	}
	return sig.CompanyInfo.LinkedIn
}

func signalJobPostURL(sig *signalschema.Signal) *string {
	if sig.URLs == nil || sig.URLs.JobPost == nil {
		return nil
	}
	canonical := jobref.CanonicalizeURL(*sig.URLs.JobPost)
	if canonical == "" {
		return nil
	}
	return &canonical
}
