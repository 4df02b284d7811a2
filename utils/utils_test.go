package utils

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	token, err := GenerateToken("ops", time.Hour, "s3cret")
	require.NoError(t, err)

	claims, err := ParseToken(token, "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "ops", claims.Subject)
	assert.Equal(t, "mailscout", claims.Issuer)
}

func TestParseTokenRejectsWrongSecretAndExpiry(t *testing.T) {
	token, err := GenerateToken("ops", time.Hour, "s3cret")
	require.NoError(t, err)
	_, err = ParseToken(token, "other")
	assert.Error(t, err)

	expired, err := GenerateToken("ops", -time.Minute, "s3cret")
	require.NoError(t, err)
	_, err = ParseToken(expired, "s3cret")
	assert.Error(t, err)
}

func TestGenerateTokenRequiresSecret(t *testing.T) {
	_, err := GenerateToken("ops", time.Hour, "")
	assert.Error(t, err)
}

type sampleRequest struct {
	Name    string `validate:"required"`
	Backend string `validate:"omitempty,oneof=cascade search"`
	Width   int    `validate:"min=1,max=8"`
}

func TestValidateStruct(t *testing.T) {
	assert.NoError(t, ValidateStruct(sampleRequest{Name: "a", Width: 2}))

	err := ValidateStruct(sampleRequest{Backend: "smoke", Width: 9})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "name is required")
	assert.Contains(t, err.Error(), "backend must be one of: cascade search")
	assert.Contains(t, err.Error(), "width must be at most 8")
}

func TestErrorResponse(t *testing.T) {
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		return ErrorResponse(c, fiber.StatusBadGateway, "backend unavailable", errors.New("boom"))
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadGateway, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.JSONEq(t, `{"success":false,"error":"backend unavailable","details":"boom"}`, string(body))
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "250 ms", FormatDuration(250*time.Millisecond))
	assert.Equal(t, "1.5 minutes", FormatDuration(90*time.Second))
	assert.Equal(t, "2 days", FormatDuration(49*time.Hour))
}

func TestInitSentryWithoutDSN(t *testing.T) {
	flush, err := InitSentry("", "test")
	require.NoError(t, err)
	flush()
}
