package verifier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"mailscout/metrics"
	"mailscout/models"
)

const (
	stageSyntax = "syntax"
	stageMX     = "mx"
	stageSMTP   = "smtp"
)

// Cascade runs syntax, MX and SMTP checks in order and stops at the first
// definitive rejection. It keeps no state between calls.
type Cascade struct {
	resolver MXLookup
	prober   MailboxProber
	metrics  *metrics.Metrics
	log      *logrus.Entry
}

func NewCascade(resolver MXLookup, prober MailboxProber, m *metrics.Metrics) *Cascade {
	return &Cascade{
		resolver: resolver,
		prober:   prober,
		metrics:  m,
		log:      logrus.WithField("component", "cascade"),
	}
}

func (c *Cascade) Name() string { return KindCascade }

func (c *Cascade) Verify(ctx context.Context, candidate models.Candidate) models.VerificationReport {
	started := time.Now()
	email := candidate.Email
	report := models.VerificationReport{
		Candidate:    candidate,
		Backend:      KindCascade,
		Disposable:   IsDisposableDomain(candidate.Domain()),
		RoleAccount:  IsRoleAccount(candidate.Local()),
		FreeProvider: IsFreeEmailProvider(candidate.Domain()),
		DidYouMean:   SuggestDomain(email),
	}
	defer func() {
		report.Timings.Total = time.Since(started)
		report.CheckedAt = time.Now()
		c.metrics.IncrementReport(KindCascade, string(report.Outcome.Status()))
	}()

	// Start -> SyntaxChecked
	t := time.Now()
	if reason := syntaxError(email); reason != "" {
		report.Syntax = models.Fail(reason)
	} else {
		report.Syntax = models.Pass("")
	}
	report.Timings.Syntax = c.observe(stageSyntax, email, report.Syntax, time.Since(t))
	if !report.Syntax.Is(models.StagePass) {
		report.Outcome = models.Fail("rejected at syntax: " + report.Syntax.Detail())
		return report
	}

	// SyntaxChecked -> MxChecked
	domain := candidate.Domain()
	t = time.Now()
	records, err := c.resolver.LookupMX(ctx, domain)
	switch {
	case err == nil && len(records) > 0:
		report.MX = models.Pass(fmt.Sprintf("%d record(s), primary %s", len(records), records[0].Host))
	case err == nil, errors.Is(err, ErrNoMailExchange):
		report.MX = models.Fail(mxDetail(err, domain))
	default:
		report.MX = models.Errored(err)
	}
	report.Timings.MX = c.observe(stageMX, email, report.MX, time.Since(t))
	if !report.MX.Is(models.StagePass) {
		if report.MX.Is(models.StageFail) {
			report.Outcome = models.Fail("rejected at mx: " + report.MX.Detail())
		} else {
			report.Outcome = models.Erroredf("mx lookup failed: %s", report.MX.Detail())
		}
		return report
	}

	// MxChecked -> SmtpChecked -> Done
	t = time.Now()
	probe := c.prober.Probe(ctx, email, domain)
	report.SMTP = probe.Result
	report.AcceptAll = probe.AcceptAll
	report.Timings.SMTP = c.observe(stageSMTP, email, report.SMTP, time.Since(t))
	report.Outcome = report.SMTP
	return report
}

func (c *Cascade) observe(stage, email string, result models.StageResult, d time.Duration) time.Duration {
	c.metrics.ObserveStage(stage, string(result.Status()), d)
	c.log.WithFields(logrus.Fields{
		"email":    email,
		"stage":    stage,
		"status":   result.Status(),
		"detail":   result.Detail(),
		"duration": d,
	}).Debug("stage finished")
	return d
}

func mxDetail(err error, domain string) string {
	if err == nil {
		return domain + " has no MX records"
	}
	return err.Error()
}
