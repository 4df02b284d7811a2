package verifier

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/textproto"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"mailscout/models"
)

// Dialer opens the TCP connection to a mail host.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

type ProbeConfig struct {
	Port          string
	Timeout       time.Duration // bounds connect plus the whole conversation
	HeloDomain    string
	MailFrom      string
	CatchAllProbe bool
}

// ProbeResult is the outcome of one RCPT probe.
type ProbeResult struct {
	Result    models.StageResult
	Host      string
	Code      int
	AcceptAll bool
}

// MailboxProber checks whether a mail server accepts a recipient.
type MailboxProber interface {
	Probe(ctx context.Context, email, domain string) ProbeResult
}

// SMTPProbe runs EHLO, MAIL FROM, RCPT TO and QUIT against the domain's
// preferred MX host. DATA is never sent.
type SMTPProbe struct {
	cfg      ProbeConfig
	resolver MXLookup
	dialer   Dialer
	log      *logrus.Entry
}

func NewSMTPProbe(cfg ProbeConfig, resolver MXLookup, dialer Dialer) *SMTPProbe {
	if cfg.Port == "" {
		cfg.Port = "25"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.HeloDomain == "" {
		cfg.HeloDomain = "probe.invalid"
	}
	if cfg.MailFrom == "" {
		cfg.MailFrom = "verify@" + cfg.HeloDomain
	}
	if dialer == nil {
		dialer = &net.Dialer{}
	}
	return &SMTPProbe{
		cfg:      cfg,
		resolver: resolver,
		dialer:   dialer,
		log:      logrus.WithField("component", "smtp_probe"),
	}
}

// ProbeMailbox returns the stage result for email at domain.
func (p *SMTPProbe) ProbeMailbox(ctx context.Context, email, domain string) models.StageResult {
	return p.Probe(ctx, email, domain).Result
}

func (p *SMTPProbe) Probe(ctx context.Context, email, domain string) ProbeResult {
	records, err := p.resolver.LookupMX(ctx, domain)
	if err != nil {
		return ProbeResult{Result: models.Errored(fmt.Errorf("%w: %w", ErrProbe, err))}
	}
	if len(records) == 0 {
		return ProbeResult{Result: models.Errored(fmt.Errorf("%w: no mail host for %s", ErrProbe, domain))}
	}

	host := records[0].Host
	res := p.converse(ctx, host, email, domain)
	res.Host = host

	p.log.WithFields(logrus.Fields{
		"email":      email,
		"host":       host,
		"code":       res.Code,
		"status":     res.Result.Status(),
		"accept_all": res.AcceptAll,
	}).Debug("SMTP probe finished")
	return res
}

func (p *SMTPProbe) converse(ctx context.Context, host, email, domain string) ProbeResult {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	conn, err := p.dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, p.cfg.Port))
	if err != nil {
		return ProbeResult{Result: models.Errored(fmt.Errorf("%w: connect %s: %w", ErrProbe, host, err))}
	}
	defer conn.Close()

	deadline, _ := ctx.Deadline()
	if err := conn.SetDeadline(deadline); err != nil {
		return ProbeResult{Result: models.Errored(fmt.Errorf("%w: %w", ErrProbe, err))}
	}

	tp := textproto.NewConn(conn)
	defer tp.Close()

	if _, _, err := tp.ReadResponse(220); err != nil {
		return ProbeResult{Result: protocolError("greeting", err)}
	}
	if err := hello(tp, p.cfg.HeloDomain); err != nil {
		return ProbeResult{Result: protocolError("EHLO", err)}
	}
	if _, _, err := cmd(tp, 250, "MAIL FROM:<%s>", p.cfg.MailFrom); err != nil {
		return ProbeResult{Result: protocolError("MAIL FROM", err)}
	}

	code, msg, err := cmd(tp, 0, "RCPT TO:<%s>", email)
	if err != nil {
		return ProbeResult{Result: protocolError("RCPT TO", err)}
	}
	res := ProbeResult{Code: code, Result: rcptResult(code, msg)}

	if p.cfg.CatchAllProbe && res.Result.Is(models.StagePass) {
		canary := canaryAddress(domain)
		if ccode, _, err := cmd(tp, 0, "RCPT TO:<%s>", canary); err == nil && ccode == 250 {
			res.AcceptAll = true
			res.Result = models.Inconclusive("accept-all domain")
		}
	}

	// Best effort; the verdict is already known.
	_, _, _ = cmd(tp, 221, "QUIT")
	return res
}

// rcptResult maps the RCPT TO reply code to a stage result.
func rcptResult(code int, msg string) models.StageResult {
	detail := fmt.Sprintf("%d %s", code, firstLine(msg))
	switch code {
	case 250:
		return models.Pass(detail)
	case 550, 553:
		return models.Fail(detail)
	default:
		return models.Inconclusive(detail)
	}
}

func hello(tp *textproto.Conn, domain string) error {
	_, _, err := cmd(tp, 250, "EHLO %s", domain)
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) && tpErr.Code >= 500 {
		_, _, err = cmd(tp, 250, "HELO %s", domain)
	}
	return err
}

func cmd(tp *textproto.Conn, expectCode int, format string, args ...any) (int, string, error) {
	if err := tp.PrintfLine(format, args...); err != nil {
		return 0, "", err
	}
	return tp.ReadResponse(expectCode)
}

func protocolError(step string, err error) models.StageResult {
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		return models.Errored(fmt.Errorf("%w: %s rejected: %d %s", ErrProbe, step, tpErr.Code, firstLine(tpErr.Msg)))
	}
	return models.Errored(fmt.Errorf("%w: %s: %w", ErrProbe, step, err))
}

// canaryAddress returns a local part no real mailbox should have.
func canaryAddress(domain string) string {
	return "mailscout-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:16] + "@" + domain
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
