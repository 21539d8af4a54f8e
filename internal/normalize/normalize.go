package normalize

import "strings"

// legalSuffixes are corporate-entity tokens stripped from company names.
// Checked after punctuation removal, so "Inc." and "Inc" both match.
var legalSuffixes = map[string]struct{}{
	"inc":          {},
	"incorporated": {},
	"llc":          {},
	"llp":          {},
	"ltd":          {},
	"limited":      {},
	"corp":         {},
	"corporation":  {},
	"co":           {},
	"company":      {},
	"gmbh":         {},
	"plc":          {},
	"pvt":          {},
	"ag":           {},
	"sa":           {},
	"bv":           {},
	"holdings":     {},
	"group":        {},
}

// companyAliases folds well-known rebrands and abbreviations onto one
// canonical spelling. Applied to the fully cleaned string, and values must
// not themselves be alias keys so normalization stays idempotent.
var companyAliases = map[string]string{
	"facebook":            "meta",
	"meta platforms":      "meta",
	"aws":                 "amazon",
	"amazon web services": "amazon",
	"google cloud":        "google",
	"alphabet":            "google",
	"x":                   "twitter",
}

// titleLevelTokens are seniority markers dropped from role titles.
var titleLevelTokens = map[string]struct{}{
	"senior":    {},
	"staff":     {},
	"principal": {},
	"junior":    {},
	"jr":        {},
	"sr":        {},
	"lead":      {},
	"associate": {},
	"ii":        {},
	"iii":       {},
	"iv":        {},
	"v":         {},
}

// titleNoiseTokens are employment-type words that carry no role identity.
var titleNoiseTokens = map[string]struct{}{
	"remote":     {},
	"hybrid":     {},
	"onsite":     {},
	"contract":   {},
	"contractor": {},
}

// titleNoisePhrases are removed before tokenization.
var titleNoisePhrases = []string{
	"entry level",
	"full time",
	"part time",
}

// titleSynonyms folds per-token title abbreviations; multi-word replacements
// are allowed. Replacement tokens must not be synonym keys themselves.
var titleSynonyms = map[string]string{
	"sde":        "software engineer",
	"swe":        "software engineer",
	"developer":  "software engineer",
	"programmer": "software engineer",
	"fullstack":  "full stack",
	"frontend":   "front end",
	"backend":    "back end",
	"ml":         "machine learning",
	"pm":         "product manager",
}

// Company canonicalizes a company name for comparison: lowercase, strip
// punctuation and legal-entity suffixes, collapse whitespace, then fold
// known aliases. Idempotent: Company(Company(x)) == Company(x).
func Company(name string) string {
	cleaned := stripPunctuation(strings.ToLower(strings.TrimSpace(name)))

	fields := strings.Fields(cleaned)
	kept := make([]string, 0, len(fields))
	for _, word := range fields {
		if _, isSuffix := legalSuffixes[word]; isSuffix {
			continue
		}
		kept = append(kept, word)
	}
	result := strings.Join(kept, " ")

	if alias, ok := companyAliases[result]; ok {
		return alias
	}
	return result
}

// Title canonicalizes a role title: lowercase, strip punctuation, drop
// seniority and employment-type noise, and fold abbreviation synonyms
// word-by-word ("SDE II" and "Senior Software Engineer" both normalize to
// "software engineer").
func Title(title string) string {
	cleaned := stripPunctuation(strings.ToLower(strings.TrimSpace(title)))

	padded := " " + cleaned + " "
	for _, phrase := range titleNoisePhrases {
		padded = strings.ReplaceAll(padded, " "+phrase+" ", " ")
	}

	fields := strings.Fields(padded)
	kept := make([]string, 0, len(fields))
	for _, word := range fields {
		if _, isLevel := titleLevelTokens[word]; isLevel {
			continue
		}
		if _, isNoise := titleNoiseTokens[word]; isNoise {
			continue
		}
		if folded, ok := titleSynonyms[word]; ok {
			kept = append(kept, strings.Fields(folded)...)
			continue
		}
		kept = append(kept, word)
	}
	return strings.Join(kept, " ")
}

func stripPunctuation(value string) string {
	var b strings.Builder
	b.Grow(len(value))
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == ' ':
			b.WriteRune(r)
		case r > 127:
			// Non-ASCII letters pass through untouched.
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	return b.String()
}
