package verifier

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"mailscout/models"
)

// rtFunc allows using a function as an http.RoundTripper.
type rtFunc func(*http.Request) (*http.Response, error)

func (f rtFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func httpClient(fn rtFunc) *http.Client {
	return &http.Client{Transport: fn}
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func htmlResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"text/html"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

// staticMX answers every lookup with the same records or error.
type staticMX struct {
	records []MXRecord
	err     error

	mu    sync.Mutex
	calls int
}

func (s *staticMX) LookupMX(_ context.Context, _ string) ([]MXRecord, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return s.records, s.err
}

// countingProber records how often it was asked and returns a fixed result.
type countingProber struct {
	result ProbeResult

	mu    sync.Mutex
	calls int
}

func (p *countingProber) Probe(_ context.Context, _, _ string) ProbeResult {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	return p.result
}

func (p *countingProber) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func candidateFor(email string) models.Candidate {
	return models.Candidate{
		Email:  email,
		Person: models.PersonIdentity{FirstName: "John", LastName: "Doe", Domain: "example.com"},
	}
}

// smtpRule answers commands starting with prefix (upper-cased) with reply.
// The first matching rule wins.
type smtpRule struct {
	prefix string
	reply  string
}

type smtpScript []smtpRule

// startSMTPServer runs a scripted SMTP server on 127.0.0.1 and returns its
// port and a func that returns the commands it received.
func startSMTPServer(t *testing.T, greeting string, script smtpScript) (string, func() []string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	var mu sync.Mutex
	var received []string

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(conn net.Conn) {
				defer conn.Close()
				w := bufio.NewWriter(conn)
				r := bufio.NewReader(conn)
				fmt.Fprintf(w, "%s\r\n", greeting)
				w.Flush()
				for {
					line, err := r.ReadString('\n')
					if err != nil {
						return
					}
					line = strings.TrimRight(line, "\r\n")
					mu.Lock()
					received = append(received, line)
					mu.Unlock()

					reply := "500 unrecognized"
					for _, rule := range script {
						if strings.HasPrefix(strings.ToUpper(line), rule.prefix) {
							reply = rule.reply
							break
						}
					}
					fmt.Fprintf(w, "%s\r\n", reply)
					w.Flush()
					if strings.HasPrefix(strings.ToUpper(line), "QUIT") {
						return
					}
				}
			}(conn)
		}
	}()

	_, port, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	return port, func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), received...)
	}
}
