package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// StageStatus is the tag of a StageResult.
type StageStatus string

const (
	StageNotAttempted StageStatus = "not_attempted"
	StagePass         StageStatus = "pass"
	StageFail         StageStatus = "fail"
	StageInconclusive StageStatus = "inconclusive"
	StageError        StageStatus = "error"
)

// StageResult is the outcome of one verification stage. The zero value is
// NotAttempted. Detail carries the reason for Fail, Inconclusive and Error.
type StageResult struct {
	status StageStatus
	detail string
}

func NotAttempted() StageResult { return StageResult{} }

func Pass(detail string) StageResult { return StageResult{status: StagePass, detail: detail} }

func Fail(detail string) StageResult { return StageResult{status: StageFail, detail: detail} }

func Inconclusive(detail string) StageResult {
	return StageResult{status: StageInconclusive, detail: detail}
}

func Errored(err error) StageResult {
	if err == nil {
		return StageResult{status: StageError, detail: "unknown error"}
	}
	return StageResult{status: StageError, detail: err.Error()}
}

func Erroredf(format string, args ...any) StageResult {
	return StageResult{status: StageError, detail: fmt.Sprintf(format, args...)}
}

// Status returns the tag, mapping the zero value to StageNotAttempted.
func (r StageResult) Status() StageStatus {
	if r.status == "" {
		return StageNotAttempted
	}
	return r.status
}

func (r StageResult) Detail() string { return r.detail }

func (r StageResult) Is(status StageStatus) bool { return r.Status() == status }

func (r StageResult) String() string {
	if r.detail == "" {
		return string(r.Status())
	}
	return string(r.Status()) + ": " + r.detail
}

type stageResultJSON struct {
	Status StageStatus `json:"status"`
	Detail string      `json:"detail,omitempty"`
}

func (r StageResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(stageResultJSON{Status: r.Status(), Detail: r.detail})
}

func (r *StageResult) UnmarshalJSON(b []byte) error {
	var v stageResultJSON
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch v.Status {
	case StageNotAttempted, "":
		*r = StageResult{detail: v.Detail}
	case StagePass, StageFail, StageInconclusive, StageError:
		*r = StageResult{status: v.Status, detail: v.Detail}
	default:
		return fmt.Errorf("unknown stage status %q", v.Status)
	}
	return nil
}

// MentionPattern names the obfuscation family a mention was found under.
type MentionPattern string

const (
	PatternExact       MentionPattern = "exact"
	PatternBasic       MentionPattern = "basic_obfuscation"
	PatternSplit       MentionPattern = "split_obfuscation"
	PatternFirstLast   MentionPattern = "first_dot_last"
	PatternInitialLast MentionPattern = "initial_last"
)

// Mention is a hit for the candidate inside scraped or searched text.
type Mention struct {
	Pattern     MentionPattern `json:"pattern"`
	MatchedText string         `json:"matched_text"`
	Context     string         `json:"context,omitempty"`
	Query       string         `json:"query,omitempty"`
	URL         string         `json:"url,omitempty"`
}

// StageTimings records wall-clock duration per cascade stage.
type StageTimings struct {
	Syntax time.Duration `json:"syntax"`
	MX     time.Duration `json:"mx"`
	SMTP   time.Duration `json:"smtp"`
	Total  time.Duration `json:"total"`
}

// VerificationReport is produced once per candidate per run and is never
// mutated afterwards.
type VerificationReport struct {
	Candidate Candidate    `json:"candidate"`
	Backend   string       `json:"backend"`
	Syntax    StageResult  `json:"syntax"`
	MX        StageResult  `json:"mx"`
	SMTP      StageResult  `json:"smtp"`
	Outcome   StageResult  `json:"outcome"`
	Timings   StageTimings `json:"timings"`

	// Backend specific
	Score        *float64  `json:"score,omitempty"`
	Reason       string    `json:"reason,omitempty"`
	DidYouMean   string    `json:"did_you_mean,omitempty"`
	Disposable   bool      `json:"disposable"`
	RoleAccount  bool      `json:"role_account"`
	AcceptAll    bool      `json:"accept_all"`
	FreeProvider bool      `json:"free_provider"`
	Confidence   string    `json:"confidence,omitempty"` // high, medium, low
	Mentions     []Mention `json:"mentions,omitempty"`
	Source       string    `json:"source,omitempty"`

	CheckedAt time.Time `json:"checked_at"`
}

// ErrorReport builds the report of a candidate whose verification could not run.
func ErrorReport(c Candidate, backend string, err error) VerificationReport {
	return VerificationReport{
		Candidate: c,
		Backend:   backend,
		Outcome:   Errored(err),
		CheckedAt: time.Now(),
	}
}
