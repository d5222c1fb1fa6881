// Package network implements the network-gateway collaborator the
// shell's curl/wget builtins delegate to: a single host-mediated fetch
// call gated by an allowlist, since guest modules never get a real
// socket of their own.
package network

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Response is the gateway's result, matching the shell builtins'
// fetch(url, method, headers, body) → {status, headers, body} contract.
type Response struct {
	Status  int
	Headers http.Header
	Body    []byte
}

// ErrHostDenied is returned when the requested URL's host is not on the
// gateway's allowlist — a policy error, distinct from an I/O error.
type ErrHostDenied struct{ Host string }

func (e *ErrHostDenied) Error() string { return fmt.Sprintf("host not allowed: %s", e.Host) }

// Gateway is the contract the shell's curl/wget builtins use.
type Gateway interface {
	Fetch(ctx context.Context, rawURL, method string, headers map[string]string, body []byte) (*Response, error)
}

// AllowlistGateway is the default Gateway, backed by net/http and
// restricted to a fixed set of permitted hostnames.
type AllowlistGateway struct {
	Allowlist map[string]bool
	Client    *http.Client
}

// NewAllowlistGateway constructs a gateway permitting only the named
// hosts, with a bounded per-request timeout.
func NewAllowlistGateway(allowedHosts []string) *AllowlistGateway {
	allow := make(map[string]bool, len(allowedHosts))
	for _, h := range allowedHosts {
		allow[strings.ToLower(h)] = true
	}
	return &AllowlistGateway{
		Allowlist: allow,
		Client:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (g *AllowlistGateway) Fetch(ctx context.Context, rawURL, method string, headers map[string]string, body []byte) (*Response, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("network: invalid URL %q: %w", rawURL, err)
	}
	if !g.Allowlist[strings.ToLower(u.Hostname())] {
		return nil, &ErrHostDenied{Host: u.Hostname()}
	}
	if method == "" {
		method = http.MethodGet
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := g.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, err
	}
	return &Response{Status: resp.StatusCode, Headers: resp.Header, Body: data}, nil
}
