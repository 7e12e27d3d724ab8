// Copyright 2025 The ToiletShare Authors
// SPDX-License-Identifier: Apache-2.0

// Package httputils provides the HTTP plumbing shared by the geocoding and
// land-check clients.
package httputils

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"regexp"
	"strings"
	"time"
)

/////////////////////////////////////////
/// RoundTrippers

// LoggingRoundTripper dumps every request and response to Writer. Credentials
// (Authorization/apikey headers and key= query parameters) are masked.
type LoggingRoundTripper struct {
	Transport http.RoundTripper
	Writer    io.Writer
	DumpBody  bool
}

var secretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^(authorization|apikey):\s*.*$`),
	regexp.MustCompile(`([?&]key=)[^&\s]+`),
}

func redact(line string) string {
	if m := secretPatterns[0].FindStringSubmatch(line); m != nil {
		return m[1] + ": ***"
	}

	return secretPatterns[1].ReplaceAllString(line, "${1}***")
}

// abbreviate keeps dumps readable: long lines and long bodies are cut.
func abbreviate(lines []string, prefix rune) []string {
	const maxLines, maxChars = 2048, 512

	for i, line := range lines {
		if i >= maxLines {
			break
		}

		lines[i] = fmt.Sprintf("%c %s", prefix, redact(strings.TrimRight(line, "\r")))
	}

	if len(lines) > maxLines {
		lines = lines[:maxLines]
		lines = append(lines, "…")
	}

	for i, line := range lines {
		if len(line) > maxChars {
			lines[i] = line[0:maxChars] + "…"
		}
	}

	return lines
}

func (t *LoggingRoundTripper) dumpRequest(req *http.Request) error {
	dump, err := httputil.DumpRequestOut(req, true)
	if err != nil {
		return fmt.Errorf("tracing HTTP request: %w", err)
	}

	lines := abbreviate(strings.Split(string(dump), "\n"), '>')
	lines = append(lines, "")
	_, err = fmt.Fprint(t.Writer, strings.Join(lines, "\n"))

	return err
}

func (t *LoggingRoundTripper) dumpResponse(resp *http.Response, duration time.Duration) error {
	dump, err := httputil.DumpResponse(resp, t.DumpBody)
	if err != nil {
		return fmt.Errorf("tracing HTTP request: %w", err)
	}

	lines := abbreviate(strings.Split(string(dump), "\n"), '<')

	_, err = fmt.Fprintf(t.Writer, "< RESPONSE: [%v]\n", duration)
	if err != nil {
		return fmt.Errorf("tracing HTTP request: %w", err)
	}

	lines = append(lines, "")
	_, err = fmt.Fprint(t.Writer, strings.Join(lines, "\n"))

	return err
}

// RoundTrip implements the http.RoundTripper interface.
func (t *LoggingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.Writer == nil {
		return t.Transport.RoundTrip(req)
	}

	if err := t.dumpRequest(req); err != nil {
		return nil, err
	}

	start := time.Now()

	resp, err := t.Transport.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	if err := t.dumpResponse(resp, time.Since(start)); err != nil {
		return nil, err
	}

	return resp, nil
}

// AppendRequestHeadersRoundTripper adds headers to the request.
type AppendRequestHeadersRoundTripper struct {
	Transport http.RoundTripper
	Headers   map[string]string
}

// RoundTrip implements the http.RoundTripper interface. The caller's request
// is cloned, as RoundTrippers must not modify it.
func (t *AppendRequestHeadersRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for k, v := range t.Headers {
		req.Header.Set(k, v)
	}

	return t.Transport.RoundTrip(req)
}

////////////////////////////////////////////////////

// ClientOptions configures NewClient.
type ClientOptions struct {
	Timeout time.Duration
	// Headers are added to every request (API keys, user agent).
	Headers map[string]string
	// Trace, when set, receives a dump of every exchange.
	Trace io.Writer
	// Transport is the innermost transport. Defaults to http.DefaultTransport.
	Transport http.RoundTripper
}

// NewClient builds an http.Client with the header and tracing round trippers
// chained in front of the transport.
func NewClient(opts ClientOptions) *http.Client {
	var rt http.RoundTripper = http.DefaultTransport
	if opts.Transport != nil {
		rt = opts.Transport
	}

	if opts.Trace != nil {
		rt = &LoggingRoundTripper{Transport: rt, Writer: opts.Trace, DumpBody: true}
	}

	if len(opts.Headers) > 0 {
		rt = &AppendRequestHeadersRoundTripper{Transport: rt, Headers: opts.Headers}
	}

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	return &http.Client{Transport: rt, Timeout: timeout}
}
