// Package controller is the network boundary to the drone controller process.
//
// Every call is a single HTTP request. Nothing is retried: callers log
// failures and carry on.
package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/teslashibe/go-pilot/internal/httpc"
	"github.com/teslashibe/go-pilot/internal/log"
	"github.com/teslashibe/go-pilot/pkg/joystick"
)

// Endpoint paths on the controller.
const (
	PathConnect    = "/connect"
	PathDisconnect = "/disconnect"
	PathTakeoff    = "/takeoff"
	PathLand       = "/land"
	PathVideoOff   = "/videoOff"
	PathOffer      = "/offer"
)

// maxErrorBody bounds how much of an error response is kept in APIError.
const maxErrorBody = 512

// Description is a session description exchanged with /offer.
type Description struct {
	SDP  string `json:"sdp"`
	Type string `json:"type"`
}

// Client calls the controller over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger overrides the client logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a controller client for baseURL, e.g. "http://192.168.10.2:8080".
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, ErrNoBaseURL
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = httpc.NewClient(0)
	}
	if c.logger == nil {
		c.logger = log.Component("controller")
	}
	return c, nil
}

// BaseURL returns the controller base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// Connect asks the controller to connect to the drone.
func (c *Client) Connect(ctx context.Context) error {
	return c.simple(ctx, PathConnect)
}

// Disconnect asks the controller to land and shut down.
func (c *Client) Disconnect(ctx context.Context) error {
	return c.simple(ctx, PathDisconnect)
}

// Takeoff asks the drone to take off.
func (c *Client) Takeoff(ctx context.Context) error {
	return c.simple(ctx, PathTakeoff)
}

// Land asks the drone to land.
func (c *Client) Land(ctx context.Context) error {
	return c.simple(ctx, PathLand)
}

// VideoOff tells the controller the video session is over.
func (c *Client) VideoOff(ctx context.Context) error {
	return c.simple(ctx, PathVideoOff)
}

// Call performs a simple call by path. It is used by diagnostics.
func (c *Client) Call(ctx context.Context, path string) error {
	return c.simple(ctx, path)
}

// Move sends a normalized joystick command to the axes' endpoint.
func (c *Client) Move(ctx context.Context, axes joystick.Axes, v joystick.Vector) error {
	return c.postJSON(ctx, axes.Path, axes.Payload(v), nil)
}

// Offer sends the local description and returns the controller's answer.
// An empty response body yields an empty Description.
func (c *Client) Offer(ctx context.Context, offer Description) (Description, error) {
	var answer Description
	if err := c.postJSON(ctx, PathOffer, offer, &answer); err != nil {
		return Description{}, err
	}
	return answer, nil
}

// simple performs a bodyless GET and discards the response.
func (c *Client) simple(ctx context.Context, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("controller %s: %w", path, err)
	}
	_, err = c.do(req, path)
	return err
}

// postJSON posts body as JSON. When out is non-nil and the response has a
// body, it is decoded into out.
func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("controller %s: marshal: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("controller %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")

	respBody, err := c.do(req, path)
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrBadAnswer, path, err)
	}
	return nil
}

func (c *Client) do(req *http.Request, path string) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("controller %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("controller %s: read body: %w", path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := strings.TrimSpace(string(body))
		if len(msg) > maxErrorBody {
			msg = msg[:maxErrorBody]
		}
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Path: path, Message: msg}
	}

	c.logger.Debug("call ok", "path", path, "status", resp.StatusCode)
	return body, nil
}
