package verifier

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"mailscout/metrics"
	"mailscout/models"
)

type DeliverabilityConfig struct {
	APIKey string
	APIURL string
	RPS    float64 // zero means unlimited
}

// DeliverabilityBackend asks a third-party scoring API about each candidate.
// An unreachable or misbehaving API yields Error, never Fail.
type DeliverabilityBackend struct {
	cfg     DeliverabilityConfig
	client  *http.Client
	limiter *rate.Limiter
	metrics *metrics.Metrics
	log     *logrus.Entry
}

// kickboxResponse is the verify endpoint payload.
type kickboxResponse struct {
	Result     string   `json:"result"` // deliverable, undeliverable, risky, unknown
	Reason     string   `json:"reason"`
	Role       bool     `json:"role"`
	Free       bool     `json:"free"`
	Disposable bool     `json:"disposable"`
	AcceptAll  bool     `json:"accept_all"`
	DidYouMean *string  `json:"did_you_mean"`
	Sendex     *float64 `json:"sendex"`
	Email      string   `json:"email"`
	Success    bool     `json:"success"`
	Message    *string  `json:"message"`
}

func NewDeliverabilityBackend(cfg DeliverabilityConfig, client *http.Client, m *metrics.Metrics) (*DeliverabilityBackend, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: deliverability api key", ErrMissingCredentials)
	}
	if cfg.APIURL == "" {
		cfg.APIURL = "https://api.kickbox.com/v2/verify"
	}
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &DeliverabilityBackend{
		cfg:     cfg,
		client:  client,
		limiter: newLimiter(cfg.RPS),
		metrics: m,
		log:     logrus.WithField("component", "deliverability"),
	}, nil
}

func (b *DeliverabilityBackend) Name() string { return KindDeliverability }

func (b *DeliverabilityBackend) Verify(ctx context.Context, candidate models.Candidate) models.VerificationReport {
	started := time.Now()
	report := models.VerificationReport{Candidate: candidate, Backend: KindDeliverability}
	defer func() {
		report.Timings.Total = time.Since(started)
		report.CheckedAt = time.Now()
		b.metrics.IncrementReport(KindDeliverability, string(report.Outcome.Status()))
	}()

	payload, err := b.fetch(ctx, candidate.Email)
	if err != nil {
		b.log.WithError(err).WithField("email", candidate.Email).Warn("deliverability lookup failed")
		report.Outcome = models.Errored(err)
		return report
	}

	applyKickbox(&report, payload)
	return report
}

func (b *DeliverabilityBackend) fetch(ctx context.Context, email string) (*kickboxResponse, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	}

	u, err := url.Parse(b.cfg.APIURL)
	if err != nil {
		return nil, fmt.Errorf("%w: bad api url: %w", ErrBackendUnavailable, err)
	}
	q := u.Query()
	q.Set("email", email)
	q.Set("apikey", b.cfg.APIKey)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		b.metrics.IncrementBackendRequest(KindDeliverability, "transport_error")
		return nil, fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b.metrics.IncrementBackendRequest(KindDeliverability, "http_error")
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: status %d", ErrBackendUnavailable, resp.StatusCode)
	}

	var payload kickboxResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&payload); err != nil {
		b.metrics.IncrementBackendRequest(KindDeliverability, "malformed")
		return nil, fmt.Errorf("%w: decode response: %w", ErrBackendUnavailable, err)
	}
	if !payload.Success {
		b.metrics.IncrementBackendRequest(KindDeliverability, "unsuccessful")
		msg := "success=false"
		if payload.Message != nil && *payload.Message != "" {
			msg = *payload.Message
		}
		return nil, fmt.Errorf("%w: %s", ErrBackendUnavailable, msg)
	}
	switch payload.Result {
	case "deliverable", "undeliverable", "risky", "unknown":
	default:
		b.metrics.IncrementBackendRequest(KindDeliverability, "malformed")
		return nil, fmt.Errorf("%w: unexpected result %q", ErrBackendUnavailable, payload.Result)
	}

	b.metrics.IncrementBackendRequest(KindDeliverability, "ok")
	return &payload, nil
}

// applyKickbox maps the API's reason onto stages and its result onto the outcome.
func applyKickbox(report *models.VerificationReport, p *kickboxResponse) {
	report.Reason = p.Reason
	report.Disposable = p.Disposable
	report.RoleAccount = p.Role
	report.AcceptAll = p.AcceptAll
	report.FreeProvider = p.Free
	report.Score = p.Sendex
	if p.DidYouMean != nil {
		report.DidYouMean = *p.DidYouMean
	}

	switch p.Reason {
	case "invalid_email":
		report.Syntax = models.Fail(p.Reason)
	case "invalid_domain":
		report.Syntax = models.Pass("")
		report.MX = models.Fail(p.Reason)
	case "rejected_email":
		report.Syntax, report.MX = models.Pass(""), models.Pass("")
		report.SMTP = models.Fail(p.Reason)
	case "accepted_email":
		report.Syntax, report.MX = models.Pass(""), models.Pass("")
		report.SMTP = models.Pass(p.Reason)
	case "low_quality", "low_deliverability":
		report.Syntax, report.MX = models.Pass(""), models.Pass("")
		report.SMTP = models.Inconclusive(p.Reason)
	case "no_connect", "timeout", "unavailable_smtp", "unexpected_error":
		report.Syntax = models.Pass("")
		report.SMTP = models.Inconclusive(p.Reason)
	}

	switch p.Result {
	case "deliverable":
		report.Outcome = models.Pass(p.Reason)
	case "undeliverable":
		report.Outcome = models.Fail(p.Reason)
	default:
		report.Outcome = models.Inconclusive(p.Result + ": " + p.Reason)
	}
}

func newLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}
