package verifier

import (
	"strings"

	"github.com/badoux/checkmail"
)

const (
	maxAddressLength = 254
	maxLocalLength   = 64
	maxDomainLength  = 253
)

// CheckSyntax reports whether email has a valid address shape. Any parse
// problem means invalid. No network access.
func CheckSyntax(email string) bool {
	return syntaxError(email) == ""
}

// syntaxError returns the reason email is invalid, or "" when it is valid.
func syntaxError(email string) string {
	if email == "" {
		return "empty address"
	}
	if len(email) > maxAddressLength {
		return "address exceeds 254 characters"
	}
	if err := checkmail.ValidateFormat(email); err != nil {
		return "invalid format"
	}

	at := strings.LastIndex(email, "@")
	local, domain := email[:at], email[at+1:]
	switch {
	case len(local) > maxLocalLength:
		return "local part exceeds 64 characters"
	case len(domain) > maxDomainLength:
		return "domain exceeds 253 characters"
	case !strings.Contains(domain, "."):
		return "domain has no dot"
	case strings.Contains(local, ".."), strings.Contains(domain, ".."):
		return "consecutive dots"
	case strings.HasPrefix(local, "."), strings.HasSuffix(local, "."):
		return "local part starts or ends with a dot"
	case strings.HasPrefix(domain, "-"), strings.HasSuffix(domain, "-"),
		strings.HasPrefix(domain, "."), strings.HasSuffix(domain, "."):
		return "malformed domain"
	}
	return ""
}
