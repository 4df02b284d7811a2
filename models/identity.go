package models

// PersonIdentity is the input to candidate generation. Domain is expected to be
// normalized (see verifier.NormalizeDomain) before generation.
type PersonIdentity struct {
	FirstName  string `json:"first_name" validate:"required,max=64"`
	LastName   string `json:"last_name" validate:"required,max=64"`
	Domain     string `json:"domain" validate:"required,max=253"`
	Title      string `json:"title,omitempty" validate:"max=256"`        // used for search queries only
	ProfileURL string `json:"profile_url,omitempty" validate:"max=2048"` // passed through, unused by verification
}

// FullName joins first and last name with a single space.
func (p PersonIdentity) FullName() string {
	switch {
	case p.FirstName == "":
		return p.LastName
	case p.LastName == "":
		return p.FirstName
	}
	return p.FirstName + " " + p.LastName
}

// Candidate is one generated address. Pattern is the index of the template
// that produced it and is used for ordering and display.
type Candidate struct {
	Email   string         `json:"email"`
	Pattern int            `json:"pattern"`
	Person  PersonIdentity `json:"person"`
}

// Local returns the part of the address before the last "@".
func (c Candidate) Local() string {
	local, _ := splitAddress(c.Email)
	return local
}

// Domain returns the part of the address after the last "@".
func (c Candidate) Domain() string {
	_, domain := splitAddress(c.Email)
	return domain
}

func splitAddress(email string) (string, string) {
	for i := len(email) - 1; i >= 0; i-- {
		if email[i] == '@' {
			return email[:i], email[i+1:]
		}
	}
	return email, ""
}
