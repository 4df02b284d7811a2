package research

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	DefaultURL   = "https://deepsearch.jina.ai/v1/chat/completions"
	DefaultModel = "jina-deepsearch-v1"
)

var (
	ErrMissingAPIKey = errors.New("research api key not configured")
	ErrUpstream      = errors.New("research api request failed")

	emailPattern  = regexp.MustCompile(`[\w.-]+@[\w.-]+\.\w+`)
	sourcePattern = regexp.MustCompile(`(?i)source:(.+?)(?:\n|$)`)
)

type Config struct {
	APIKey         string
	APIURL         string
	MaxBudget      int
	MaxBadAttempts int
}

// Query describes the person to research.
type Query struct {
	FullName   string `json:"full_name" validate:"required,max=128"`
	Company    string `json:"company" validate:"required,max=256"`
	Title      string `json:"title" validate:"max=256"`
	ProfileURL string `json:"profile_url" validate:"omitempty,url,max=2048"`
}

// Finding is what the research agent reported. Email is empty when nothing
// address-like was found.
type Finding struct {
	Email       string `json:"email,omitempty"`
	Confidence  string `json:"confidence"` // high, medium, low
	Source      string `json:"source,omitempty"`
	RawResponse string `json:"raw_response"`
}

// Client asks a deep-research chat completion API for a person's work email.
type Client struct {
	cfg  Config
	http *http.Client
	log  *logrus.Entry
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	MaxBudget      int           `json:"max_budget"`
	MaxBadAttempts int           `json:"max_bad_attempts"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func NewClient(cfg Config, httpClient *http.Client) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultURL
	}
	if cfg.MaxBudget <= 0 {
		cfg.MaxBudget = 1000000
	}
	if cfg.MaxBadAttempts <= 0 {
		cfg.MaxBadAttempts = 3
	}
	if httpClient == nil {
		// Deep research runs for minutes.
		httpClient = &http.Client{Timeout: 5 * time.Minute}
	}
	return &Client{cfg: cfg, http: httpClient, log: logrus.WithField("component", "research")}, nil
}

// SearchEmail asks the agent for q's most likely work address. Transport and
// HTTP failures return an error; an unexpected payload returns a low
// confidence Finding carrying the raw body.
func (c *Client) SearchEmail(ctx context.Context, q Query) (*Finding, error) {
	raw, err := c.ask(ctx, prompt(q))
	if err != nil {
		return nil, err
	}

	var resp chatResponse
	if err := json.Unmarshal(raw, &resp); err != nil || len(resp.Choices) == 0 {
		c.log.WithField("person", q.FullName).Warn("unexpected research payload")
		return &Finding{Confidence: "low", RawResponse: string(raw)}, nil
	}
	return ParseFinding(resp.Choices[0].Message.Content), nil
}

// ParseFinding extracts the first address, the stated confidence and the
// source line from the agent's answer.
func ParseFinding(content string) *Finding {
	f := &Finding{Confidence: "low", RawResponse: content}
	if !strings.Contains(content, "@") {
		return f
	}

	f.Email = emailPattern.FindString(content)

	lower := strings.ToLower(content)
	switch {
	case strings.Contains(lower, "high confidence"):
		f.Confidence = "high"
	case strings.Contains(lower, "medium confidence"):
		f.Confidence = "medium"
	}

	if m := sourcePattern.FindStringSubmatch(content); m != nil {
		f.Source = strings.TrimSpace(m[1])
	}
	return f
}

func prompt(q Query) string {
	var b strings.Builder
	b.WriteString("Find the work email address for this person:\n")
	fmt.Fprintf(&b, "Name: %s\n", q.FullName)
	fmt.Fprintf(&b, "Company: %s\n", q.Company)
	fmt.Fprintf(&b, "Title: %s\n", q.Title)
	fmt.Fprintf(&b, "Profile: %s\n\n", q.ProfileURL)
	b.WriteString("Return only their most likely current work email address with a confidence level and the source.")
	return b.String()
}

func (c *Client) ask(ctx context.Context, question string) ([]byte, error) {
	body, err := json.Marshal(chatRequest{
		Model:          DefaultModel,
		Messages:       []chatMessage{{Role: "user", Content: question}},
		MaxBudget:      c.cfg.MaxBudget,
		MaxBadAttempts: c.cfg.MaxBadAttempts,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.APIURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", ErrUpstream, err)
	}
	c.log.WithFields(logrus.Fields{
		"status":   resp.StatusCode,
		"duration": time.Since(start),
	}).Debug("research request finished")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode)
	}
	return raw, nil
}
