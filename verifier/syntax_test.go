package verifier

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckSyntax(t *testing.T) {
	valid := []string{
		"john.doe@example.com",
		"j_doe+tag@mail.example.co.uk",
		"doe.j@example.io",
	}
	for _, e := range valid {
		assert.True(t, CheckSyntax(e), e)
	}

	invalid := []string{
		"",
		"not-an-email",
		"john@localhost",
		"john..doe@example.com",
		".john@example.com",
		"john.@example.com",
		"john@example..com",
		"john@-example.com",
		"john doe@example.com",
		strings.Repeat("a", 65) + "@example.com",
		"a@" + strings.Repeat("b", 250) + ".com",
	}
	for _, e := range invalid {
		assert.False(t, CheckSyntax(e), e)
	}
}

func TestSyntaxError_reason(t *testing.T) {
	assert.Equal(t, "", syntaxError("john@example.com"))
	assert.Equal(t, "domain has no dot", syntaxError("john@example"))
	assert.Equal(t, "empty address", syntaxError(""))
}
