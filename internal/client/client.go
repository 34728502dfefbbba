// Package client talks to the clinical trials agent service: it runs
// streaming queries through the SSE endpoint, drives the per-query state
// machine with cooperative cancellation, and wraps the conversation
// management endpoints.
package client

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/bharatr21/clinical-trials-agent/internal/event"
	"github.com/bharatr21/clinical-trials-agent/internal/identity"
	"github.com/bharatr21/clinical-trials-agent/internal/logging"
)

const (
	headerClientID = "X-Client-ID"
	headerAPIKey   = "X-OpenAI-API-Key"

	apiPrefix = "/api/v1"

	// requestTimeout bounds non-streaming calls. Streaming requests carry
	// no timeout: a stalled stream blocks until the caller cancels.
	requestTimeout = 30 * time.Second
)

// Client is a client for the clinical trials agent service. At most one
// streaming query is active per Client at any time; starting a new one
// supersedes the previous.
type Client struct {
	baseURL  *url.URL
	http     *http.Client
	identity *identity.Provider
	apiKey   string
	bus      *event.Bus
	log      zerolog.Logger

	mu      sync.Mutex
	current *inflight // active streaming query; nil when idle
}

// inflight identifies one streaming query so a superseded query's cleanup
// cannot clobber its successor's cancellation handle.
type inflight struct {
	cancel context.CancelFunc
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithAPIKey sets a user-supplied OpenAI API key. The key is forwarded only
// to secure destinations; over plaintext transport to a non-loopback host it
// is silently withheld.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// WithBus attaches an event bus; query lifecycle events are published to it
// in framing order.
func WithBus(b *event.Bus) Option {
	return func(c *Client) { c.bus = b }
}

// New creates a Client for the service at baseURL.
func New(baseURL string, id *identity.Provider, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	c := &Client{
		baseURL:  u,
		http:     &http.Client{},
		identity: id,
		log:      logging.Component("client"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// endpoint builds a service URL under the API prefix.
func (c *Client) endpoint(path string) string {
	return c.baseURL.String() + apiPrefix + path
}

// secureDestination reports whether a user-supplied credential may travel to
// this base URL: HTTPS anywhere, or plain HTTP to a loopback address only.
func secureDestination(u *url.URL) bool {
	if u.Scheme == "https" {
		return true
	}
	host := u.Hostname()
	if host == "localhost" {
		return true
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback()
	}
	return false
}

// applyHeaders attaches the identity header and, when allowed, the user
// credential to an outgoing request.
func (c *Client) applyHeaders(ctx context.Context, req *http.Request) error {
	clientID, err := c.identity.Get(ctx)
	if err != nil {
		return fmt.Errorf("resolving client identity: %w", err)
	}
	req.Header.Set(headerClientID, clientID)

	if c.apiKey != "" {
		if secureDestination(c.baseURL) {
			req.Header.Set(headerAPIKey, c.apiKey)
		} else {
			c.log.Warn().Str("host", c.baseURL.Host).Msg("withholding API key from insecure destination")
		}
	}
	return nil
}

// adoptIdentity stores a server-issued client identity from a response
// header. A server-assigned value always overrides the derived one.
func (c *Client) adoptIdentity(ctx context.Context, resp *http.Response) {
	assigned := resp.Header.Get(headerClientID)
	if assigned == "" {
		return
	}
	current, err := c.identity.Get(ctx)
	if err == nil && current == assigned {
		return
	}
	if err := c.identity.Set(ctx, assigned); err != nil {
		c.log.Warn().Err(err).Msg("failed to store server-assigned identity")
		return
	}
	c.log.Info().Str("client_id", assigned).Msg("adopted server-assigned identity")
	c.publish(event.Event{Type: event.IdentityAssigned, Data: event.IdentityAssignedData{ClientID: assigned}})
}

// publish sends an event to the bus when one is attached. Synchronous, so
// subscribers observe events in the order they were framed.
func (c *Client) publish(ev event.Event) {
	if c.bus != nil {
		c.bus.PublishSync(ev)
	}
}
