package verifier

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"mailscout/metrics"
	"mailscout/models"
)

const (
	KindCascade        = "cascade"
	KindDeliverability = "deliverability"
	KindSearch         = "search"
)

// Kinds lists the backends New accepts.
func Kinds() []string {
	return []string{KindCascade, KindDeliverability, KindSearch}
}

// Backend verifies one candidate. Failures are folded into the report; a
// Backend never returns an error for a single candidate.
type Backend interface {
	Name() string
	Verify(ctx context.Context, candidate models.Candidate) models.VerificationReport
}

// Dependencies carries everything a backend may need. Only the parts the
// selected kind uses have to be set.
type Dependencies struct {
	Resolver       MXLookup
	Prober         MailboxProber
	HTTPClient     *http.Client
	Metrics        *metrics.Metrics
	Deliverability DeliverabilityConfig
	Search         SearchConfig
}

// New builds the backend named by kind.
func New(kind string, deps Dependencies) (Backend, error) {
	client := deps.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}

	switch kind {
	case KindCascade, "":
		if deps.Resolver == nil || deps.Prober == nil {
			return nil, fmt.Errorf("cascade backend needs a resolver and a prober")
		}
		return NewCascade(deps.Resolver, deps.Prober, deps.Metrics), nil
	case KindDeliverability:
		return NewDeliverabilityBackend(deps.Deliverability, client, deps.Metrics)
	case KindSearch:
		return NewSearchBackend(deps.Search, client, deps.Metrics)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, kind)
	}
}

// Registry holds one instance per backend kind so that rate limiters and
// caches are shared between requests.
type Registry struct {
	backends map[string]Backend
	errs     map[string]error
}

// NewRegistry builds every kind it can. Kinds that fail, usually for lack of
// credentials, keep their error and report it from Get.
func NewRegistry(deps Dependencies) *Registry {
	r := &Registry{backends: make(map[string]Backend), errs: make(map[string]error)}
	for _, kind := range Kinds() {
		b, err := New(kind, deps)
		if err != nil {
			r.errs[kind] = err
			continue
		}
		r.backends[kind] = b
	}
	return r
}

// Get returns the backend for kind. An empty kind selects the cascade.
func (r *Registry) Get(kind string) (Backend, error) {
	if kind == "" {
		kind = KindCascade
	}
	if b, ok := r.backends[kind]; ok {
		return b, nil
	}
	if err, ok := r.errs[kind]; ok {
		return nil, err
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, kind)
}

// Register adds or replaces the backend under its own name.
func (r *Registry) Register(b Backend) {
	r.backends[b.Name()] = b
	delete(r.errs, b.Name())
}

// Available lists the kinds Get can serve.
func (r *Registry) Available() []string {
	var kinds []string
	for _, kind := range Kinds() {
		if _, ok := r.backends[kind]; ok {
			kinds = append(kinds, kind)
		}
	}
	return kinds
}
