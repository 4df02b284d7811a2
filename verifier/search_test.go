package verifier

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailscout/models"
)

const resultsWithExact = `<html><head><script>var q="john.doe@example.com";</script></head><body><div id="search">
<div class="g"><a href="/url?q=https://acme.io/team&amp;sa=U">Team</a><span>Questions? Contact John at John.Doe@example.com for anything sales related.</span></div>
<div class="g"><a href="https://other.test">Other</a><span>Unrelated result</span></div>
</div></body></html>`

const resultsWithObfuscation = `<html><body>
<li class="b_algo"><a href="https://blog.test/post">Post</a><p>ping john.doe (at) example.com</p></li>
</body></html>`

const resultsNamingOnly = `<html><body>
<div class="result"><a href="https://directory.test/acme">Acme staff</a><p>Addresses look like john.doe@example.com at Acme</p></div>
</body></html>`

const resultsDisclaimer = `<html><body><p>Your search - "jdoe@example.com" - did not match any documents.</p></body></html>`

const resultsNothing = `<html><body><div class="g"><a href="https://x.test">X</a><span>Nothing to see</span></div></body></html>`

type searchCall struct {
	Query string
	Req   searchRequest
}

// fakeSearchAPI answers each successive call with the next page or status.
func fakeSearchAPI(t *testing.T, pages ...any) (*SearchBackend, func() []searchCall) {
	t.Helper()
	var mu sync.Mutex
	var calls []searchCall

	client := httpClient(func(r *http.Request) (*http.Response, error) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req searchRequest
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &req))

		u, err := url.Parse(req.URL)
		require.NoError(t, err)

		mu.Lock()
		idx := len(calls)
		calls = append(calls, searchCall{Query: u.Query().Get("q"), Req: req})
		mu.Unlock()

		require.Less(t, idx, len(pages), "unexpected extra search request")
		switch p := pages[idx].(type) {
		case int:
			return htmlResponse(p, "upstream error"), nil
		case string:
			return htmlResponse(http.StatusOK, p), nil
		}
		t.Fatalf("bad fixture %T", pages[idx])
		return nil, nil
	})

	b, err := NewSearchBackend(SearchConfig{
		APIToken:  "test-token",
		APIURL:    "https://api.unblocker.test/request",
		Zone:      "serp",
		Country:   "us",
		EngineURL: "https://www.google.com/search?hl=en&q=",
	}, client, nil)
	require.NoError(t, err)

	return b, func() []searchCall {
		mu.Lock()
		defer mu.Unlock()
		return append([]searchCall(nil), calls...)
	}
}

func TestSearch_shortCircuitsOnFirstQuery(t *testing.T) {
	b, calls := fakeSearchAPI(t, resultsWithExact, resultsNothing)

	report := b.Verify(context.Background(), candidateFor("john.doe@example.com"))

	require.Len(t, calls(), 1, "second query must not be issued")
	call := calls()[0]
	assert.Equal(t, `"john.doe@example.com"`, call.Query)
	assert.Equal(t, searchRequest{
		Zone:    "serp",
		URL:     "https://www.google.com/search?hl=en&q=" + url.QueryEscape(`"john.doe@example.com"`),
		Format:  "raw",
		Method:  "GET",
		Country: "us",
	}, call.Req)

	assert.Equal(t, models.StagePass, report.Outcome.Status())
	assert.Equal(t, "high", report.Confidence)
	assert.Equal(t, "https://acme.io/team", report.Source)
	require.Len(t, report.Mentions, 1)
	m := report.Mentions[0]
	assert.Equal(t, models.PatternExact, m.Pattern)
	assert.Equal(t, "John.Doe@example.com", m.MatchedText)
	assert.Equal(t, `"john.doe@example.com"`, m.Query)
	assert.Contains(t, m.Context, "Contact John at John.Doe@example.com")
	assert.LessOrEqual(t, len(m.Context), len(m.MatchedText)+2*contextRadius)
}

func TestSearch_fallsBackToNameQuery(t *testing.T) {
	b, calls := fakeSearchAPI(t, resultsNothing, resultsWithObfuscation)

	report := b.Verify(context.Background(), candidateFor("john.doe@example.com"))

	require.Len(t, calls(), 2)
	assert.Equal(t, `"John Doe" "john.doe@example.com"`, calls()[1].Query)
	assert.Equal(t, models.StagePass, report.Outcome.Status())
	assert.Equal(t, "medium", report.Confidence)
	assert.Equal(t, models.PatternBasic, report.Mentions[0].Pattern)
	assert.Equal(t, "https://blog.test/post", report.Mentions[0].URL)
}

func TestSearch_failedQueryIsSkipped(t *testing.T) {
	b, calls := fakeSearchAPI(t, http.StatusBadGateway, resultsWithExact)

	report := b.Verify(context.Background(), candidateFor("john.doe@example.com"))

	assert.Len(t, calls(), 2)
	assert.Equal(t, models.StagePass, report.Outcome.Status())
}

func TestSearch_allQueriesFailIsError(t *testing.T) {
	b, _ := fakeSearchAPI(t, http.StatusInternalServerError, http.StatusTooManyRequests)

	report := b.Verify(context.Background(), candidateFor("john.doe@example.com"))

	assert.Equal(t, models.StageError, report.Outcome.Status())
	assert.Contains(t, report.Outcome.Detail(), ErrBackendUnavailable.Error())
}

func TestSearch_disclaimerIsNotAMatch(t *testing.T) {
	b, calls := fakeSearchAPI(t, resultsDisclaimer, resultsDisclaimer)

	report := b.Verify(context.Background(), candidateFor("jdoe@example.com"))

	assert.Len(t, calls(), 2)
	assert.Equal(t, models.StageInconclusive, report.Outcome.Status())
	assert.Empty(t, report.Mentions)
}

func TestSearch_namingConventionOnly(t *testing.T) {
	b, calls := fakeSearchAPI(t, resultsNamingOnly, resultsNamingOnly)

	report := b.Verify(context.Background(), candidateFor("jdoe@example.com"))

	assert.Len(t, calls(), 2, "weak evidence does not stop the search")
	assert.Equal(t, models.StageInconclusive, report.Outcome.Status())
	assert.Equal(t, "low", report.Confidence)
	require.Len(t, report.Mentions, 1)
	assert.Equal(t, models.PatternFirstLast, report.Mentions[0].Pattern)
	assert.Equal(t, "https://directory.test/acme", report.Source)
}

func TestQueries_withoutName(t *testing.T) {
	q := Queries(models.Candidate{Email: "a@b.co"})
	assert.Equal(t, []string{`"a@b.co"`}, q)
}

func TestSearch_requiresToken(t *testing.T) {
	_, err := NewSearchBackend(SearchConfig{}, nil, nil)
	assert.ErrorIs(t, err, ErrMissingCredentials)
}

func TestResultURL(t *testing.T) {
	assert.Equal(t, "https://acme.io/x", resultURL("/url?q=https://acme.io/x&sa=U"))
	assert.Equal(t, "https://acme.io/y", resultURL("https://acme.io/y"))
	assert.True(t, strings.HasPrefix(resultURL("/search?q=z"), "/search"))
}
