package controller

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/likexian/whois"
	"github.com/sirupsen/logrus"

	"mailscout/models"
	"mailscout/utils"
	"mailscout/verifier"
)

type VerificationController struct {
	Backends *verifier.Registry
	Runner   *verifier.Runner
	Resolver verifier.MXLookup
	Logger   *logrus.Entry

	// Whois is swapped out in tests.
	Whois func(domain string, servers ...string) (string, error)
}

func NewVerificationController(backends *verifier.Registry, runner *verifier.Runner, resolver verifier.MXLookup) *VerificationController {
	return &VerificationController{
		Backends: backends,
		Runner:   runner,
		Resolver: resolver,
		Logger:   utils.Component("verification_controller"),
		Whois:    whois.Whois,
	}
}

type verifyRequest struct {
	Person  *models.PersonIdentity `json:"person" validate:"required_without=Email"`
	Email   string                 `json:"email" validate:"required_without=Person,omitempty,email,max=254"`
	Backend string                 `json:"backend" validate:"omitempty,oneof=cascade deliverability search"`
}

// GenerateCandidates returns the candidate addresses for one person.
func (vc *VerificationController) GenerateCandidates(c *fiber.Ctx) error {
	var person models.PersonIdentity
	if err := c.BodyParser(&person); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request format", err)
	}
	if err := utils.ValidateStruct(person); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	candidates := verifier.Generate(person)
	if len(candidates) == 0 {
		return utils.ErrorResponse(c, fiber.StatusUnprocessableEntity, "No candidates could be generated from this identity", nil)
	}
	return c.JSON(utils.SuccessResponse(fiber.Map{
		"candidates": candidates,
		"count":      len(candidates),
	}))
}

// Verify runs one backend over either a single address or every candidate
// generated for a person, and waits for the reports.
func (vc *VerificationController) Verify(c *fiber.Ctx) error {
	var request verifyRequest
	if err := c.BodyParser(&request); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request format", err)
	}
	if err := utils.ValidateStruct(request); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	backend, err := vc.Backends.Get(request.Backend)
	if err != nil {
		return backendError(c, err)
	}

	var candidates []models.Candidate
	if request.Email != "" {
		candidates = []models.Candidate{singleCandidate(request.Email, request.Person)}
	} else {
		candidates = verifier.Generate(*request.Person)
		if len(candidates) == 0 {
			return utils.ErrorResponse(c, fiber.StatusUnprocessableEntity, "No candidates could be generated from this identity", nil)
		}
	}

	started := time.Now()
	reports := vc.Runner.Run(c.UserContext(), candidates, backend, nil)
	summary, err := verifier.Summarize(reports)
	if err != nil {
		vc.Logger.WithError(err).WithField("backend", backend.Name()).Warn("verification finished with errors")
	}

	utils.LogEvent("verification_completed", map[string]interface{}{
		"backend":    backend.Name(),
		"candidates": len(candidates),
		"passed":     summary.Passed,
		"errored":    summary.Errored,
		"duration":   utils.FormatDuration(time.Since(started)),
	})

	return c.JSON(utils.SuccessResponse(fiber.Map{
		"backend": backend.Name(),
		"reports": reports,
		"summary": summary,
	}))
}

// DomainInfo reports the MX hosts of a domain along with its raw WHOIS record.
// Pass whois=false to skip the WHOIS lookup.
func (vc *VerificationController) DomainInfo(c *fiber.Ctx) error {
	domain := verifier.NormalizeDomain(c.Params("domain"))
	if domain == "" || !strings.Contains(domain, ".") {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "A valid domain is required", nil)
	}

	info := fiber.Map{
		"domain":        domain,
		"disposable":    verifier.IsDisposableDomain(domain),
		"free_provider": verifier.IsFreeEmailProvider(domain),
	}

	records, err := vc.Resolver.LookupMX(c.UserContext(), domain)
	switch {
	case err == nil:
		info["mx"] = records
		info["mx_status"] = models.StagePass
	case errors.Is(err, verifier.ErrNoMailExchange):
		info["mx"] = []verifier.MXRecord{}
		info["mx_status"] = models.StageFail
		info["mx_error"] = err.Error()
	default:
		info["mx"] = []verifier.MXRecord{}
		info["mx_status"] = models.StageError
		info["mx_error"] = err.Error()
	}

	if c.QueryBool("whois", true) && vc.Whois != nil {
		whoisInfo, err := vc.lookupWhois(c.UserContext(), domain)
		if err != nil {
			vc.Logger.WithError(err).WithField("domain", domain).Debug("whois lookup failed")
			info["whois_error"] = err.Error()
		} else {
			info["whois"] = whoisInfo
		}
	}

	return c.JSON(utils.SuccessResponse(info))
}

// lookupWhois bounds the blocking whois client by ctx.
func (vc *VerificationController) lookupWhois(ctx context.Context, domain string) (string, error) {
	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		text, err := vc.Whois(domain)
		done <- result{text, err}
	}()

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-done:
		return r.text, r.err
	}
}

func singleCandidate(email string, person *models.PersonIdentity) models.Candidate {
	email = strings.ToLower(strings.TrimSpace(email))
	cand := models.Candidate{Email: email, Pattern: -1}
	if person != nil {
		cand.Person = *person
	}
	cand.Person.Domain = cand.Domain()
	return cand
}

func backendError(c *fiber.Ctx, err error) error {
	if errors.Is(err, verifier.ErrUnknownBackend) {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Unknown verification backend", err)
	}
	return utils.ErrorResponse(c, fiber.StatusServiceUnavailable, "Verification backend is not configured", err)
}
