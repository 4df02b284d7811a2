package models

import (
	"strings"
	"unicode"
)

// Profile is a row of the externally populated profiles table. The service
// only reads it.
type Profile struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	Name       string `gorm:"not null" json:"name"`
	Title      string `json:"title"`
	Company    string `json:"company"`
	Location   string `json:"location"`
	ProfileURL string `gorm:"column:profile_url" json:"profile_url"`
}

func (Profile) TableName() string {
	return "profiles"
}

// Identity converts the profile into a PersonIdentity. The first whitespace
// separated token of the name becomes the first name and the last token the
// last name. The domain is the company when it already looks like a domain,
// otherwise the company reduced to lower-case alphanumerics plus ".com".
func (p Profile) Identity() PersonIdentity {
	parts := strings.Fields(p.Name)
	id := PersonIdentity{
		Title:      p.Title,
		ProfileURL: p.ProfileURL,
		Domain:     DomainFromCompany(p.Company),
	}
	if len(parts) > 0 {
		id.FirstName = parts[0]
	}
	if len(parts) > 1 {
		id.LastName = parts[len(parts)-1]
	}
	return id
}

func DomainFromCompany(company string) string {
	company = strings.ToLower(strings.TrimSpace(company))
	if company == "" {
		return ""
	}
	if strings.Contains(company, ".") && !strings.ContainsAny(company, " \t") {
		return company
	}
	var b strings.Builder
	for _, r := range company {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return ""
	}
	return b.String() + ".com"
}
