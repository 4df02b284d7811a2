package models

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStageResult_zeroValueIsNotAttempted(t *testing.T) {
	var r StageResult
	assert.Equal(t, StageNotAttempted, r.Status())
	assert.True(t, r.Is(StageNotAttempted))
	assert.Equal(t, "not_attempted", r.String())
}

func TestStageResult_errorCarriesDetail(t *testing.T) {
	r := Errored(errors.New("dial tcp: i/o timeout"))
	assert.Equal(t, StageError, r.Status())
	assert.Equal(t, "dial tcp: i/o timeout", r.Detail())
	assert.Equal(t, "error: dial tcp: i/o timeout", r.String())
	assert.Equal(t, "unknown error", Errored(nil).Detail())
}

func TestStageResult_JSON(t *testing.T) {
	b, err := json.Marshal(struct {
		A StageResult `json:"a"`
		B StageResult `json:"b"`
	}{A: Fail("550 user unknown"), B: NotAttempted()})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":{"status":"fail","detail":"550 user unknown"},"b":{"status":"not_attempted"}}`, string(b))

	var r StageResult
	require.NoError(t, json.Unmarshal([]byte(`{"status":"inconclusive","detail":"greylisted"}`), &r))
	assert.Equal(t, Inconclusive("greylisted"), r)

	assert.Error(t, json.Unmarshal([]byte(`{"status":"maybe"}`), &r))
}

func TestCandidateParts(t *testing.T) {
	c := Candidate{Email: "john.doe@example.com"}
	assert.Equal(t, "john.doe", c.Local())
	assert.Equal(t, "example.com", c.Domain())

	bad := Candidate{Email: "no-at"}
	assert.Equal(t, "no-at", bad.Local())
	assert.Equal(t, "", bad.Domain())
}

func TestFullName(t *testing.T) {
	assert.Equal(t, "John Doe", PersonIdentity{FirstName: "John", LastName: "Doe"}.FullName())
	assert.Equal(t, "Doe", PersonIdentity{LastName: "Doe"}.FullName())
	assert.Equal(t, "", PersonIdentity{}.FullName())
}

func TestProfileIdentity(t *testing.T) {
	p := Profile{
		Name:       "  Jane   Q.  Smith ",
		Title:      "Head of Tennis",
		Company:    "Acme Sports Club",
		ProfileURL: "https://linkedin.test/in/jane",
	}
	id := p.Identity()
	assert.Equal(t, "Jane", id.FirstName)
	assert.Equal(t, "Smith", id.LastName)
	assert.Equal(t, "acmesportsclub.com", id.Domain)
	assert.Equal(t, "Head of Tennis", id.Title)
	assert.Equal(t, "https://linkedin.test/in/jane", id.ProfileURL)

	assert.Equal(t, "acme.co.uk", Profile{Name: "A B", Company: "Acme.co.uk"}.Identity().Domain)
	assert.Equal(t, "", Profile{Name: "Cher", Company: "---"}.Identity().Domain)
	assert.Equal(t, "", Profile{Name: "Cher"}.Identity().LastName)
}

func TestErrorReport(t *testing.T) {
	c := Candidate{Email: "a@b.co"}
	r := ErrorReport(c, "search", errors.New("boom"))
	assert.Equal(t, c, r.Candidate)
	assert.Equal(t, "search", r.Backend)
	assert.Equal(t, StageError, r.Outcome.Status())
	assert.Equal(t, StageNotAttempted, r.SMTP.Status())
	assert.False(t, r.CheckedAt.IsZero())
}
