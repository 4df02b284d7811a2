package verifier

import "errors"

var (
	// ErrNoMailExchange means the domain confirmed it has no mail service:
	// NXDOMAIN, no MX answers, or a null MX record.
	ErrNoMailExchange = errors.New("no mail exchange")

	// ErrResolverFailure means the lookup could not complete (timeout,
	// SERVFAIL, transport error). It says nothing about the domain.
	ErrResolverFailure = errors.New("resolver failure")

	ErrProbe              = errors.New("smtp probe failed")
	ErrBackendUnavailable = errors.New("backend unavailable")
	ErrPartialBatch       = errors.New("one or more candidates errored")
	ErrUnknownBackend     = errors.New("unknown verification backend")
	ErrMissingCredentials = errors.New("backend credentials not configured")
)
