// Package httpc builds the HTTP clients used to reach the controller.
package httpc

import (
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/teslashibe/go-pilot/internal/log"
)

// UserAgent identifies the pilot to the controller.
const UserAgent = "go-pilot/1"

// Dialer and transport timeouts. None of them bounds a whole request.
const (
	connectTimeout = 5 * time.Second
	keepAlive      = 30 * time.Second
	idleTimeout    = 90 * time.Second
)

// NewClient creates an HTTP client for controller calls.
// A zero timeout leaves requests unbounded; callers still cancel through
// the request context.
func NewClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: NewTransport(nil),
	}
}

// NewTransport wraps next (http.DefaultTransport settings when nil) so every
// controller request carries the pilot user agent and is logged at debug
// level. Move commands arrive ten times a second per stick, so the idle pool
// keeps a few connections to the one controller host.
func NewTransport(next http.RoundTripper) http.RoundTripper {
	if next == nil {
		next = &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   connectTimeout,
				KeepAlive: keepAlive,
			}).DialContext,
			MaxIdleConns:        8,
			MaxIdleConnsPerHost: 4,
			IdleConnTimeout:     idleTimeout,
		}
	}
	return &transport{next: next, logger: log.Component("httpc")}
}

type transport struct {
	next   http.RoundTripper
	logger *slog.Logger
}

func (t *transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", UserAgent)
	}

	start := time.Now()
	resp, err := t.next.RoundTrip(req)
	if err != nil {
		t.logger.Debug("request failed", "method", req.Method, "path", req.URL.Path, "error", err)
		return nil, err
	}
	t.logger.Debug("request", "method", req.Method, "path", req.URL.Path,
		"status", resp.StatusCode, "elapsed", time.Since(start))
	return resp, nil
}
