package verifier

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/miekg/dns"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// MXRecord is one mail exchange host of a domain.
type MXRecord struct {
	Host string `json:"host"`
	Pref uint16 `json:"pref"`
}

// MXLookup resolves the mail exchange hosts of a domain, best preference first.
type MXLookup interface {
	LookupMX(ctx context.Context, domain string) ([]MXRecord, error)
}

type ResolverConfig struct {
	Server   string        // host:port of the recursive resolver
	Timeout  time.Duration // per query
	CacheTTL time.Duration // zero disables caching
}

type mxEntry struct {
	records []MXRecord
	err     error
	expires time.Time
}

// Resolver queries MX records with miekg/dns against a fixed server. Answers
// and confirmed absences are cached for CacheTTL; resolver failures are not.
type Resolver struct {
	cfg   ResolverConfig
	udp   *dns.Client
	tcp   *dns.Client
	group singleflight.Group
	log   *logrus.Entry
	now   func() time.Time

	cache struct {
		sync.RWMutex
		m map[string]mxEntry
	}
}

func NewResolver(cfg ResolverConfig) *Resolver {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Server == "" {
		cfg.Server = "1.1.1.1:53"
	}
	r := &Resolver{
		cfg: cfg,
		udp: &dns.Client{Net: "udp", Timeout: cfg.Timeout},
		tcp: &dns.Client{Net: "tcp", Timeout: cfg.Timeout},
		log: logrus.WithField("component", "resolver"),
		now: time.Now,
	}
	r.cache.m = make(map[string]mxEntry)
	return r
}

// HasMailExchange reports whether domain advertises at least one mail host.
// Any resolution error counts as false.
func (r *Resolver) HasMailExchange(ctx context.Context, domain string) bool {
	records, err := r.LookupMX(ctx, domain)
	return err == nil && len(records) > 0
}

// LookupMX returns the domain's MX records sorted by preference. The error
// wraps ErrNoMailExchange or ErrResolverFailure.
func (r *Resolver) LookupMX(ctx context.Context, domain string) ([]MXRecord, error) {
	domain = strings.TrimSuffix(strings.ToLower(domain), ".")
	if domain == "" {
		return nil, fmt.Errorf("%w: empty domain", ErrNoMailExchange)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrResolverFailure, domain, err)
	}

	if entry, ok := r.cached(domain); ok {
		return entry.records, entry.err
	}

	ch := r.group.DoChan(domain, func() (interface{}, error) {
		// Shared by every waiter, so one caller's cancellation must not fail the rest.
		qctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.Timeout)
		defer cancel()

		records, err := r.query(qctx, domain)
		if err == nil || errors.Is(err, ErrNoMailExchange) {
			r.store(domain, records, err)
		}
		return records, err
	})

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %s: %w", ErrResolverFailure, domain, ctx.Err())
	case res := <-ch:
		records, _ := res.Val.([]MXRecord)
		return records, res.Err
	}
}

func (r *Resolver) query(ctx context.Context, domain string) ([]MXRecord, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(domain), dns.TypeMX)
	msg.RecursionDesired = true

	start := r.now()
	in, _, err := r.udp.ExchangeContext(ctx, msg, r.cfg.Server)
	if err == nil && in.Truncated {
		in, _, err = r.tcp.ExchangeContext(ctx, msg, r.cfg.Server)
	}
	log := r.log.WithFields(logrus.Fields{
		"domain":   domain,
		"server":   r.cfg.Server,
		"duration": time.Since(start),
	})
	if err != nil {
		log.WithError(err).Debug("MX query failed")
		return nil, fmt.Errorf("%w: %s: %w", ErrResolverFailure, domain, err)
	}

	switch in.Rcode {
	case dns.RcodeSuccess:
	case dns.RcodeNameError:
		log.Debug("MX query returned NXDOMAIN")
		return nil, fmt.Errorf("%w: %s does not exist", ErrNoMailExchange, domain)
	default:
		log.WithField("rcode", dns.RcodeToString[in.Rcode]).Debug("MX query failed")
		return nil, fmt.Errorf("%w: %s: %s", ErrResolverFailure, domain, dns.RcodeToString[in.Rcode])
	}

	var records []MXRecord
	for _, rr := range in.Answer {
		mx, ok := rr.(*dns.MX)
		if !ok {
			continue
		}
		host := strings.TrimSuffix(mx.Mx, ".")
		if host == "" {
			// RFC 7505 null MX
			return nil, fmt.Errorf("%w: %s publishes a null MX", ErrNoMailExchange, domain)
		}
		records = append(records, MXRecord{Host: strings.ToLower(host), Pref: mx.Preference})
	}
	if len(records) == 0 {
		log.Debug("no MX records")
		return nil, fmt.Errorf("%w: %s has no MX records", ErrNoMailExchange, domain)
	}

	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Pref != records[j].Pref {
			return records[i].Pref < records[j].Pref
		}
		return records[i].Host < records[j].Host
	})
	log.WithField("records", len(records)).Debug("MX query succeeded")
	return records, nil
}

func (r *Resolver) cached(domain string) (mxEntry, bool) {
	if r.cfg.CacheTTL <= 0 {
		return mxEntry{}, false
	}
	r.cache.RLock()
	entry, ok := r.cache.m[domain]
	r.cache.RUnlock()
	if !ok || r.now().After(entry.expires) {
		return mxEntry{}, false
	}
	return entry, true
}

func (r *Resolver) store(domain string, records []MXRecord, err error) {
	if r.cfg.CacheTTL <= 0 {
		return
	}
	r.cache.Lock()
	r.cache.m[domain] = mxEntry{records: records, err: err, expires: r.now().Add(r.cfg.CacheTTL)}
	r.cache.Unlock()
}
