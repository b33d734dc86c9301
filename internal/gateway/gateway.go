// Package gateway reaches the financial-data provider and the lending venue.
// Timeouts and retries live here; callers see either a response or a
// *TransportError.
package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// RawResponse is the undecoded body returned by the financial-data provider
type RawResponse []byte

// Response is the lending venue's answer to a submission
type Response struct {
	StatusCode int
	Body       []byte
}

// TransportError reports a failure to talk to an external system
type TransportError struct {
	Op       string
	Endpoint string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Endpoint, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ErrBodyTooLarge is reported when a response exceeds the gateway's size limit
var ErrBodyTooLarge = errors.New("response body exceeds limit")

// Fetcher retrieves financial snapshots
type Fetcher interface {
	Fetch(ctx context.Context, endpoint, authToken string) (RawResponse, error)
}

// Submitter forwards loan requests
type Submitter interface {
	Submit(ctx context.Context, endpoint, idempotencyKey string, payload []byte) (Response, error)
}

// Options tune the HTTP gateway
type Options struct {
	Timeout      time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
}

// HTTPGateway implements Fetcher and Submitter over HTTP
type HTTPGateway struct {
	client  *http.Client
	opts    Options
	log     *logrus.Logger
	sleep   func(ctx context.Context, d time.Duration) error
	maxBody int64
}

// NewHTTPGateway initializes a new gateway
func NewHTTPGateway(opts Options, log *logrus.Logger) *HTTPGateway {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	return &HTTPGateway{
		client:  &http.Client{Timeout: opts.Timeout},
		opts:    opts,
		log:     log,
		sleep:   sleepContext,
		maxBody: 10 << 20,
	}
}

// Fetch performs a GET with the provider token. Anything but 200 is a transport failure.
func (g *HTTPGateway) Fetch(ctx context.Context, endpoint, authToken string) (RawResponse, error) {
	var lastErr error
	for attempt := 0; attempt <= g.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := g.backoff(ctx, attempt); err != nil {
				return nil, &TransportError{Op: "fetch", Endpoint: endpoint, Err: err}
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, &TransportError{Op: "fetch", Endpoint: endpoint, Err: fmt.Errorf("failed to create request: %w", err)}
		}
		req.Header.Set("Authorization", authToken)
		req.Header.Set("Accept", "application/json")

		status, body, err := g.do(req)
		if errors.Is(err, ErrBodyTooLarge) {
			return nil, &TransportError{Op: "fetch", Endpoint: endpoint, Err: err}
		}
		if err != nil {
			lastErr = err
			g.log.Warnf("Fetch attempt %d to %s failed: %v", attempt+1, endpoint, err)
			continue
		}
		if status == http.StatusOK {
			return RawResponse(body), nil
		}

		lastErr = fmt.Errorf("unexpected status code: %d", status)
		if status < http.StatusInternalServerError {
			break
		}
		g.log.Warnf("Fetch attempt %d to %s returned %d", attempt+1, endpoint, status)
	}
	return nil, &TransportError{Op: "fetch", Endpoint: endpoint, Err: lastErr}
}

// Submit POSTs a JSON payload. Any status code is returned to the caller;
// only network failures are retried, and the idempotency key makes that safe.
func (g *HTTPGateway) Submit(ctx context.Context, endpoint, idempotencyKey string, payload []byte) (Response, error) {
	var lastErr error
	for attempt := 0; attempt <= g.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := g.backoff(ctx, attempt); err != nil {
				return Response{}, &TransportError{Op: "submit", Endpoint: endpoint, Err: err}
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
		if err != nil {
			return Response{}, &TransportError{Op: "submit", Endpoint: endpoint, Err: fmt.Errorf("failed to create request: %w", err)}
		}
		req.Header.Set("Content-Type", "application/json")
		if idempotencyKey != "" {
			req.Header.Set("Idempotency-Key", idempotencyKey)
		}

		status, body, err := g.do(req)
		if errors.Is(err, ErrBodyTooLarge) {
			return Response{}, &TransportError{Op: "submit", Endpoint: endpoint, Err: err}
		}
		if err != nil {
			lastErr = err
			g.log.Warnf("Submit attempt %d to %s failed: %v", attempt+1, endpoint, err)
			continue
		}
		g.log.Debugf("Submit to %s returned %d", endpoint, status)
		return Response{StatusCode: status, Body: body}, nil
	}
	return Response{}, &TransportError{Op: "submit", Endpoint: endpoint, Err: lastErr}
}

func (g *HTTPGateway) do(req *http.Request) (int, []byte, error) {
	resp, err := g.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, g.maxBody+1))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read response: %w", err)
	}
	if int64(len(body)) > g.maxBody {
		return 0, nil, fmt.Errorf("%w: more than %d bytes", ErrBodyTooLarge, g.maxBody)
	}
	return resp.StatusCode, body, nil
}

func (g *HTTPGateway) backoff(ctx context.Context, attempt int) error {
	return g.sleep(ctx, time.Duration(attempt)*g.opts.RetryBackoff)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
