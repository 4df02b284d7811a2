package verifier

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"mailscout/models"
)

// templates lists local-part layouts, most common first. {fi} and {li} are
// the initials of the first and last name.
var templates = []string{
	"{f}{l}",
	"{fi}{l}",
	"{f}.{l}",
	"{f}_{l}",
	"{l}{f}",
	"{f}{li}",
	"{fi}.{l}",
	"{l}.{f}",
	"{li}{f}",
	"{l}{fi}",
	"{f}.{li}",
	"{l}.{fi}",
}

// TemplateCount is the number of candidates generated for a complete identity.
var TemplateCount = len(templates)

// Generate returns the candidate addresses for a person in fixed template
// order. An incomplete identity yields an empty slice.
func Generate(person models.PersonIdentity) []models.Candidate {
	first := sanitizeName(person.FirstName)
	last := sanitizeName(person.LastName)
	domain := NormalizeDomain(person.Domain)
	if first == "" || last == "" || domain == "" {
		return []models.Candidate{}
	}

	person.Domain = domain
	r := strings.NewReplacer("{fi}", first[:1], "{li}", last[:1], "{f}", first, "{l}", last)
	candidates := make([]models.Candidate, 0, len(templates))
	for i, tmpl := range templates {
		candidates = append(candidates, models.Candidate{
			Email:   r.Replace(tmpl) + "@" + domain,
			Pattern: i,
			Person:  person,
		})
	}
	return candidates
}

// NormalizeDomain lower-cases a domain and strips scheme, path, port,
// trailing dot and a leading "www.". It is idempotent.
func NormalizeDomain(domain string) string {
	d := strings.ToLower(strings.TrimSpace(domain))
	if i := strings.Index(d, "://"); i >= 0 {
		d = d[i+3:]
	}
	if i := strings.IndexAny(d, "/?#"); i >= 0 {
		d = d[:i]
	}
	if i := strings.LastIndex(d, "@"); i >= 0 {
		d = d[i+1:]
	}
	if i := strings.LastIndex(d, ":"); i >= 0 {
		d = d[:i]
	}
	d = strings.TrimSuffix(d, ".")
	for strings.HasPrefix(d, "www.") {
		d = strings.TrimPrefix(d, "www.")
	}
	return d
}

// sanitizeName folds diacritics and keeps only ASCII letters and digits,
// lower-cased.
func sanitizeName(name string) string {
	if folded, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), name); err == nil {
		name = folded
	}
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
