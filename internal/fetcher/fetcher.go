// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	ErrInvalidURL       = errors.New("invalid URL")
	ErrInvalidScheme    = errors.New("only http and https URLs are allowed")
	ErrTooManyRedirects = errors.New("too many redirects")
	ErrBodyTooLarge     = errors.New("response body too large")
	ErrBlockedAddress   = errors.New("address is blocked (private or internal range)")
	ErrTimeout          = errors.New("request timed out")
)

// StatusError is returned for any response outside 200-299.
type StatusError struct {
	Code   int
	Status string
	// Body holds the first bytes of the response body.
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return e.Status
	}
	return e.Status + ": " + e.Body
}

// maxErrorBody bounds how much of a failed response is kept in StatusError.
const maxErrorBody = 512

// =============================================================================
// CONFIGURATION
// =============================================================================

// Config holds fetch limits.
type Config struct {
	// Timeout applies when Get is given a zero timeout (default: 10s).
	Timeout time.Duration

	// MaxRedirects is the number of redirects followed (default: 5).
	MaxRedirects int

	// MaxBodyBytes caps the body read (default: 5MB).
	MaxBodyBytes int64

	// UserAgent is sent with every request.
	UserAgent string

	// BlockPrivate refuses non-public destination addresses.
	BlockPrivate bool
}

// DefaultConfig returns the default fetch limits.
func DefaultConfig() *Config {
	return &Config{
		Timeout:      10 * time.Second,
		MaxRedirects: 5,
		MaxBodyBytes: 5 * 1024 * 1024,
		UserAgent:    "rigrun-agent/1.0",
	}
}

// =============================================================================
// FETCHER
// =============================================================================

// Fetcher is stateless apart from its connection pool and safe for
// concurrent use.
type Fetcher struct {
	config *Config
	client *http.Client
}

// New creates a Fetcher. Zero fields in config take their defaults.
func New(config *Config) *Fetcher {
	if config == nil {
		config = DefaultConfig()
	}
	defaults := DefaultConfig()
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if config.MaxRedirects <= 0 {
		config.MaxRedirects = defaults.MaxRedirects
	}
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = defaults.MaxBodyBytes
	}
	if config.UserAgent == "" {
		config.UserAgent = defaults.UserAgent
	}

	f := &Fetcher{config: config}
	f.client = f.newClient()
	return f
}

// Get fetches rawURL and returns its body. timeout bounds the whole
// exchange including redirects and body read; zero means the configured
// default.
func (f *Fetcher) Get(ctx context.Context, rawURL string, timeout time.Duration) (string, error) {
	u, err := validateURL(rawURL)
	if err != nil {
		return "", err
	}
	if timeout <= 0 {
		timeout = f.config.Timeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	req.Header.Set("User-Agent", f.config.UserAgent)
	req.Header.Set("Accept", "text/html,application/json,text/plain;q=0.9,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w after %s", ErrTimeout, timeout)
		}
		return "", classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", &StatusError{
			Code:   resp.StatusCode,
			Status: resp.Status,
			Body:   strings.TrimSpace(string(snippet)),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.config.MaxBodyBytes+1))
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w after %s", ErrTimeout, timeout)
		}
		return "", fmt.Errorf("failed to read body: %w", err)
	}
	if int64(len(body)) > f.config.MaxBodyBytes {
		return "", ErrBodyTooLarge
	}

	return string(body), nil
}

// =============================================================================
// CLIENT
// =============================================================================

func (f *Fetcher) newClient() *http.Client {
	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          10,
		IdleConnTimeout:       30 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		DialContext:           dialer.DialContext,
	}

	if f.config.BlockPrivate {
		transport.Proxy = nil
		transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
			host, port, err := net.SplitHostPort(addr)
			if err != nil {
				return nil, err
			}
			ips, err := net.DefaultResolver.LookupIP(ctx, "ip", host)
			if err != nil {
				return nil, err
			}
			if len(ips) == 0 {
				return nil, fmt.Errorf("no addresses for %s", host)
			}
			for _, ip := range ips {
				if isBlockedIP(ip) {
					return nil, ErrBlockedAddress
				}
			}
			// Dial the vetted address, not the name, so a second lookup
			// cannot return something else.
			return dialer.DialContext(ctx, network, net.JoinHostPort(ips[0].String(), port))
		}
	}

	maxRedirects := f.config.MaxRedirects
	return &http.Client{
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) > maxRedirects {
				return ErrTooManyRedirects
			}
			_, err := validateURL(req.URL.String())
			return err
		},
	}
}

// validateURL accepts absolute http and https URLs with a host.
func validateURL(rawURL string) (*url.URL, error) {
	if strings.TrimSpace(rawURL) == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidURL)
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return nil, ErrInvalidScheme
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	return u, nil
}

// cgnat is the shared address space, which net.IP has no predicate for.
var cgnat = &net.IPNet{IP: net.IPv4(100, 64, 0, 0), Mask: net.CIDRMask(10, 32)}

func isBlockedIP(ip net.IP) bool {
	return ip.IsLoopback() ||
		ip.IsPrivate() ||
		ip.IsUnspecified() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsInterfaceLocalMulticast() ||
		ip.IsMulticast() ||
		cgnat.Contains(ip)
}

// classifyTransportError unwraps the url.Error layer so redirect and
// blocking sentinels stay matchable with errors.Is.
func classifyTransportError(err error) error {
	switch {
	case errors.Is(err, ErrTooManyRedirects):
		return ErrTooManyRedirects
	case errors.Is(err, ErrBlockedAddress):
		return ErrBlockedAddress
	case errors.Is(err, ErrInvalidScheme):
		return ErrInvalidScheme
	}
	return fmt.Errorf("request failed: %w", err)
}
