// Package upstream issues provider HTTP calls and classifies failures
// into the gateway's error taxonomy. All provider traffic flows through
// one Caller so timeouts and logging are applied uniformly.
package upstream

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/modelrelay/modelrelay/gateway/internal/config"
	"github.com/rs/zerolog/log"
)

// maxErrorBody bounds how much of a failed upstream response is read
// for the error message.
const maxErrorBody = 8 << 10

// Caller sends provider requests with bounded timeouts. The client
// timeout covers the full stream, first byte to last; the transport's
// header timeout bounds dialing plus time-to-first-byte.
type Caller struct {
	client *http.Client
}

// New builds a Caller from the upstream configuration.
func New(cfg config.UpstreamConfig) *Caller {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = cfg.ConnectTimeout

	return &Caller{
		client: &http.Client{
			Timeout:   cfg.StreamTimeout,
			Transport: transport,
		},
	}
}

// Do sends the provider request and returns the streaming response.
// Non-2xx responses are drained (bounded), closed and returned as a
// *CallError; the caller owns resp.Body on success.
func (c *Caller) Do(ctx context.Context, providerID string, req *http.Request) (*http.Response, error) {
	start := time.Now()

	resp, err := c.client.Do(req.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", providerID, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		resp.Body.Close()

		log.Warn().
			Str("provider", providerID).
			Int("status", resp.StatusCode).
			Dur("duration", time.Since(start)).
			Msg("Provider call failed")

		return nil, &CallError{
			Provider: providerID,
			Status:   resp.StatusCode,
			Body:     strings.TrimSpace(string(body)),
		}
	}

	log.Debug().
		Str("provider", providerID).
		Dur("ttfb", time.Since(start)).
		Msg("Provider stream opened")

	return resp, nil
}

// CallError is a non-2xx upstream response.
type CallError struct {
	Provider string
	Status   int
	Body     string
}

func (e *CallError) Error() string {
	return fmt.Sprintf("provider %s: status %d: %s", e.Provider, e.Status, e.Body)
}

// HTTPStatus maps the upstream status onto the status the gateway
// returns to its caller. Clients rely on these codes, not message
// text, to distinguish failure classes.
func (e *CallError) HTTPStatus() int {
	switch e.Status {
	case http.StatusTooManyRequests:
		return http.StatusTooManyRequests
	case http.StatusUnauthorized, http.StatusForbidden:
		return http.StatusUnauthorized
	case http.StatusPaymentRequired:
		return http.StatusPaymentRequired
	default:
		return http.StatusInternalServerError
	}
}

// UserMessage returns the client-facing error text for the status.
func (e *CallError) UserMessage() string {
	switch e.Status {
	case http.StatusTooManyRequests:
		return "Rate limit exceeded, please try again later."
	case http.StatusUnauthorized, http.StatusForbidden:
		return "Invalid API key. Please check your provider credentials."
	case http.StatusPaymentRequired:
		return "Payment required. Please add credits to your provider account."
	default:
		if e.Body == "" {
			return fmt.Sprintf("Provider %s request failed with status %d.", e.Provider, e.Status)
		}
		return fmt.Sprintf("Provider %s error: %s", e.Provider, e.Body)
	}
}
