package verifier

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"mailscout/models"
)

const (
	atVariant  = `\s*(?:@|\[\s*at\s*\]|\(\s*at\s*\)|\{\s*at\s*\})\s*|\s+at\s+`
	dotVariant = `\.|\s*\[\s*dot\s*\]\s*|\s*\(\s*dot\s*\)\s*|\s*\{\s*dot\s*\}\s*|\s+dot\s+`

	// Characters that may not touch a mention on either side. A trailing dot
	// is sentence punctuation only when no further label follows it.
	leftEdge  = `(?:^|[^a-z0-9._%+\-])`
	rightEdge = `(?:$|\.(?:$|[^a-z0-9\-])|[^a-z0-9.\-])`
)

// Match is a mention of an address found in free text. Start and End are byte
// offsets of MatchedText.
type Match struct {
	Pattern     models.MentionPattern
	MatchedText string
	Start       int
	End         int
}

type family struct {
	pattern models.MentionPattern
	re      *regexp.Regexp
}

// Matcher looks for one address under the common obfuscation families.
// Build it once per candidate and reuse it across texts.
type Matcher struct {
	families []family
}

// NewMatcher compiles the families for email. The name families are skipped
// when first or last is empty.
func NewMatcher(email, firstName, lastName string) *Matcher {
	email = strings.ToLower(strings.TrimSpace(email))
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return &Matcher{}
	}
	local, domain := email[:at], email[at+1:]
	domainRe := splitOn(domain, ".", dotVariant)

	m := &Matcher{}
	m.add(models.PatternExact, regexp.QuoteMeta(email))
	m.add(models.PatternBasic, regexp.QuoteMeta(local)+"(?:"+atVariant+")"+regexp.QuoteMeta(domain))
	m.add(models.PatternSplit, splitOn(local, ".", dotVariant)+"(?:"+atVariant+")"+domainRe)

	first, last := sanitizeName(firstName), sanitizeName(lastName)
	if first != "" && last != "" {
		m.add(models.PatternFirstLast, regexp.QuoteMeta(first)+"(?:"+dotVariant+")"+regexp.QuoteMeta(last)+"(?:"+atVariant+")"+domainRe)
		m.add(models.PatternInitialLast, regexp.QuoteMeta(first[:1]+last)+"(?:"+atVariant+")"+domainRe)
	}
	return m
}

func (m *Matcher) add(p models.MentionPattern, core string) {
	m.families = append(m.families, family{
		pattern: p,
		re:      regexp.MustCompile(`(?i)` + leftEdge + `(` + core + `)` + rightEdge),
	})
}

// Find returns the first family that matches text, or nil.
func (m *Matcher) Find(text string) *Match {
	for _, f := range m.families {
		loc := f.re.FindStringSubmatchIndex(text)
		if loc == nil {
			continue
		}
		return &Match{
			Pattern:     f.pattern,
			MatchedText: text[loc[2]:loc[3]],
			Start:       loc[2],
			End:         loc[3],
		}
	}
	return nil
}

// FindMention scans text for email, trying exact, basic obfuscation, split
// obfuscation, first.last and initial+last in that order.
func FindMention(text, email, firstName, lastName string) *Match {
	return NewMatcher(email, firstName, lastName).Find(text)
}

// IsGenuine reports whether the pattern names the address itself rather than
// a naming convention at its domain.
func IsGenuine(p models.MentionPattern) bool {
	switch p {
	case models.PatternExact, models.PatternBasic, models.PatternSplit:
		return true
	}
	return false
}

// ContextWindow returns text around [start, end) widened by radius bytes on
// both sides, clipped to rune boundaries and collapsed to single spaces.
func ContextWindow(text string, start, end, radius int) string {
	lo, hi := start-radius, end+radius
	if lo < 0 {
		lo = 0
	}
	if hi > len(text) {
		hi = len(text)
	}
	for lo > 0 && !utf8.RuneStart(text[lo]) {
		lo--
	}
	for hi < len(text) && !utf8.RuneStart(text[hi]) {
		hi++
	}
	return strings.Join(strings.Fields(text[lo:hi]), " ")
}

// splitOn quotes each part of s and joins them with the sep alternatives.
func splitOn(s, sep, alternatives string) string {
	parts := strings.Split(s, sep)
	for i, p := range parts {
		parts[i] = regexp.QuoteMeta(p)
	}
	return strings.Join(parts, "(?:"+alternatives+")")
}
