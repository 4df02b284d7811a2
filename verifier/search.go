package verifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"mailscout/metrics"
	"mailscout/models"
)

const (
	contextRadius  = 50
	maxMentions    = 5
	resultSelector = "div.g, div.MjjYud, li.b_algo, div.result"
)

// Result blocks containing any of these are the engine saying it found
// nothing, and they often echo the query back.
var disclaimers = []string{
	"no results found",
	"did not match any documents",
	"did not match any results",
	"there are no results for",
	"no results for",
	"we did not find any results",
}

type SearchConfig struct {
	APIToken  string
	APIURL    string
	Zone      string
	Country   string
	EngineURL string // the query is appended URL-escaped
	RPS       float64
}

// SearchBackend looks for the candidate in search results fetched through an
// unblocking proxy API. It stops at the first query with a genuine match.
type SearchBackend struct {
	cfg     SearchConfig
	client  *http.Client
	limiter *rate.Limiter
	metrics *metrics.Metrics
	log     *logrus.Entry
}

type searchRequest struct {
	Zone    string `json:"zone,omitempty"`
	URL     string `json:"url"`
	Format  string `json:"format"`
	Method  string `json:"method"`
	Country string `json:"country,omitempty"`
}

type resultBlock struct {
	Text string
	URL  string
}

func NewSearchBackend(cfg SearchConfig, client *http.Client, m *metrics.Metrics) (*SearchBackend, error) {
	if cfg.APIToken == "" {
		return nil, fmt.Errorf("%w: search api token", ErrMissingCredentials)
	}
	if cfg.APIURL == "" {
		cfg.APIURL = "https://api.brightdata.com/request"
	}
	if cfg.EngineURL == "" {
		cfg.EngineURL = "https://www.google.com/search?hl=en&q="
	}
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &SearchBackend{
		cfg:     cfg,
		client:  client,
		limiter: newLimiter(cfg.RPS),
		metrics: m,
		log:     logrus.WithField("component", "search"),
	}, nil
}

func (b *SearchBackend) Name() string { return KindSearch }

// Queries returns the search queries for a candidate in the order they run.
func Queries(c models.Candidate) []string {
	queries := []string{`"` + c.Email + `"`}
	if name := strings.TrimSpace(c.Person.FullName()); name != "" {
		queries = append(queries, `"`+name+`" "`+c.Email+`"`)
	}
	return queries
}

func (b *SearchBackend) Verify(ctx context.Context, candidate models.Candidate) models.VerificationReport {
	started := time.Now()
	report := models.VerificationReport{Candidate: candidate, Backend: KindSearch}
	defer func() {
		report.Timings.Total = time.Since(started)
		report.CheckedAt = time.Now()
		b.metrics.IncrementReport(KindSearch, string(report.Outcome.Status()))
	}()

	matcher := NewMatcher(candidate.Email, candidate.Person.FirstName, candidate.Person.LastName)
	queries := Queries(candidate)
	failed := 0
	var weak *models.Mention

	for _, query := range queries {
		log := b.log.WithFields(logrus.Fields{"email": candidate.Email, "query": query})
		blocks, err := b.search(ctx, query)
		if err != nil {
			failed++
			log.WithError(err).Warn("search query skipped")
			continue
		}

		var genuine []models.Mention
		for _, block := range blocks {
			m := matcher.Find(block.Text)
			if m == nil {
				continue
			}
			mention := models.Mention{
				Pattern:     m.Pattern,
				MatchedText: m.MatchedText,
				Context:     ContextWindow(block.Text, m.Start, m.End, contextRadius),
				Query:       query,
				URL:         block.URL,
			}
			if !IsGenuine(m.Pattern) {
				if weak == nil {
					weak = &mention
				}
				continue
			}
			if len(genuine) < maxMentions {
				genuine = append(genuine, mention)
			}
		}

		if len(genuine) > 0 {
			log.WithField("mentions", len(genuine)).Debug("search corroborated candidate")
			report.Mentions = genuine
			report.Source = genuine[0].URL
			report.Confidence = confidenceFor(genuine)
			report.Outcome = models.Pass(fmt.Sprintf("%s match for query %s", genuine[0].Pattern, query))
			return report
		}
	}

	switch {
	case failed == len(queries):
		report.Outcome = models.Errored(fmt.Errorf("%w: all %d search queries failed", ErrBackendUnavailable, failed))
	case weak != nil:
		report.Mentions = []models.Mention{*weak}
		report.Source = weak.URL
		report.Confidence = "low"
		report.Outcome = models.Inconclusive("only a naming-convention match at the domain")
	default:
		report.Outcome = models.Inconclusive("no mention found")
	}
	return report
}

func confidenceFor(mentions []models.Mention) string {
	for _, m := range mentions {
		if m.Pattern == models.PatternExact {
			return "high"
		}
	}
	return "medium"
}

// search fetches one results page and returns its result blocks, minus
// no-results disclaimers.
func (b *SearchBackend) search(ctx context.Context, query string) ([]resultBlock, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	body, err := json.Marshal(searchRequest{
		Zone:    b.cfg.Zone,
		URL:     b.cfg.EngineURL + url.QueryEscape(query),
		Format:  "raw",
		Method:  http.MethodGet,
		Country: b.cfg.Country,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.cfg.APIURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+b.cfg.APIToken)

	resp, err := b.client.Do(req)
	if err != nil {
		b.metrics.IncrementBackendRequest(KindSearch, "transport_error")
		return nil, fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b.metrics.IncrementBackendRequest(KindSearch, "http_error")
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: status %d", ErrBackendUnavailable, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		b.metrics.IncrementBackendRequest(KindSearch, "malformed")
		return nil, fmt.Errorf("%w: parse results: %w", ErrBackendUnavailable, err)
	}
	b.metrics.IncrementBackendRequest(KindSearch, "ok")
	return extractBlocks(doc), nil
}

// extractBlocks returns the visible text of each result block. A page without
// recognizable blocks is treated as one block.
func extractBlocks(doc *goquery.Document) []resultBlock {
	doc.Find("script, style, noscript").Remove()

	var blocks []resultBlock
	doc.Find(resultSelector).Each(func(_ int, s *goquery.Selection) {
		text := collapse(s.Text())
		if text == "" || isDisclaimer(text) {
			return
		}
		href, _ := s.Find("a[href]").First().Attr("href")
		blocks = append(blocks, resultBlock{Text: text, URL: resultURL(href)})
	})
	if len(blocks) > 0 {
		return blocks
	}

	text := collapse(doc.Find("body").Text())
	if text == "" || isDisclaimer(text) {
		return nil
	}
	return []resultBlock{{Text: text}}
}

func isDisclaimer(text string) bool {
	lower := strings.ToLower(text)
	for _, d := range disclaimers {
		if strings.Contains(lower, d) {
			return true
		}
	}
	return false
}

// resultURL unwraps redirect links of the form /url?q=<target>.
func resultURL(href string) string {
	if strings.HasPrefix(href, "/url?") {
		if u, err := url.Parse(href); err == nil {
			if q := u.Query().Get("q"); q != "" {
				return q
			}
		}
	}
	return href
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
