package routes

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailscout/metrics"
	"mailscout/models"
	"mailscout/store"
	"mailscout/utils"
	"mailscout/verifier"
	"mailscout/worker"
)

const secret = "routes-secret"

type okBackend struct{}

func (okBackend) Name() string { return verifier.KindCascade }

func (okBackend) Verify(_ context.Context, c models.Candidate) models.VerificationReport {
	return models.VerificationReport{Candidate: c, Backend: verifier.KindCascade, Outcome: models.Pass("ok")}
}

func newApp(t *testing.T) *fiber.App {
	t.Helper()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	backends := verifier.NewRegistry(verifier.Dependencies{})
	backends.Register(okBackend{})
	runner := verifier.NewRunner(2, time.Second, m)
	batches := store.NewMemoryBatchStore()

	app := fiber.New()
	SetupRoutes(app, Services{
		JWTSecret:       secret,
		RateLimitVerify: 1,
		Gatherer:        reg,
		Backends:        backends,
		Runner:          runner,
		Batches:         batches,
		Worker:          worker.NewBatchWorker(batches, runner, 4),
	})
	return app
}

func authed(t *testing.T, method, path, body string) *http.Request {
	t.Helper()
	token, err := utils.GenerateToken("tester", time.Hour, secret)
	require.NoError(t, err)
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestHealth(t *testing.T) {
	resp, err := newApp(t).Test(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), `"backends":["cascade"]`)
}

func TestAPIRequiresToken(t *testing.T) {
	resp, err := newApp(t).Test(httptest.NewRequest(http.MethodPost, "/api/v1/candidates", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestVerifyIsRateLimited(t *testing.T) {
	app := newApp(t)
	body := `{"email":"jane@acme.io"}`

	resp, err := app.Test(authed(t, http.MethodPost, "/api/v1/verify", body), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = app.Test(authed(t, http.MethodPost, "/api/v1/verify", body), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	// candidates are not limited
	for i := 0; i < 3; i++ {
		resp, err = app.Test(authed(t, http.MethodPost, "/api/v1/candidates", `{"first_name":"Jane","last_name":"Smith","domain":"acme.io"}`))
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	app := newApp(t)
	_, err := app.Test(authed(t, http.MethodPost, "/api/v1/verify", `{"email":"jane@acme.io"}`), -1)
	require.NoError(t, err)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "mailscout_batches_total 1")
}

func TestProfilesRouteNeedsDatabase(t *testing.T) {
	resp, err := newApp(t).Test(authed(t, http.MethodPost, "/api/v1/batches/abc/profiles", `{"profile_ids":[1]}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
