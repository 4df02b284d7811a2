package controller

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"mailscout/models"
)

var reportColumns = []string{
	"email", "pattern", "first_name", "last_name", "domain", "backend",
	"outcome", "outcome_detail", "syntax", "mx", "smtp",
	"disposable", "role_account", "free_provider", "accept_all",
	"score", "confidence", "source", "checked_at",
}

// writeReportsCSV writes one row per report.
func writeReportsCSV(w io.Writer, reports []models.VerificationReport) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(reportColumns); err != nil {
		return err
	}
	for _, r := range reports {
		score := ""
		if r.Score != nil {
			score = strconv.FormatFloat(*r.Score, 'f', -1, 64)
		}
		checked := ""
		if !r.CheckedAt.IsZero() {
			checked = r.CheckedAt.UTC().Format(time.RFC3339)
		}
		row := []string{
			r.Candidate.Email,
			strconv.Itoa(r.Candidate.Pattern),
			r.Candidate.Person.FirstName,
			r.Candidate.Person.LastName,
			r.Candidate.Domain(),
			r.Backend,
			string(r.Outcome.Status()),
			r.Outcome.Detail(),
			string(r.Syntax.Status()),
			string(r.MX.Status()),
			string(r.SMTP.Status()),
			strconv.FormatBool(r.Disposable),
			strconv.FormatBool(r.RoleAccount),
			strconv.FormatBool(r.FreeProvider),
			strconv.FormatBool(r.AcceptAll),
			score,
			r.Confidence,
			r.Source,
			checked,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
