package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"goa.design/agentwire/protocol"
)

type (
	// HTTPAgent submits runs to an agent endpoint speaking the protocol over
	// HTTP: RunAgentInput as a JSON POST body, events back as SSE frames.
	HTTPAgent struct {
		endpoint string
		client   *http.Client
		limiter  *rate.Limiter
		headers  http.Header
	}

	// AgentOption configures an HTTPAgent.
	AgentOption func(*HTTPAgent)
)

// WithHTTPClient overrides the HTTP client used for run submissions.
func WithHTTPClient(c *http.Client) AgentOption {
	return func(a *HTTPAgent) { a.client = c }
}

// WithRateLimit bounds run submissions to rps requests per second with the
// given burst. Submissions beyond the limit block until a slot frees or the
// context is cancelled.
func WithRateLimit(rps float64, burst int) AgentOption {
	return func(a *HTTPAgent) { a.limiter = rate.NewLimiter(rate.Limit(rps), burst) }
}

// WithHeader adds a header to every run submission, e.g. for bearer tokens.
func WithHeader(key, value string) AgentOption {
	return func(a *HTTPAgent) { a.headers.Set(key, value) }
}

// NewHTTPAgent builds an agent client for the given endpoint URL.
func NewHTTPAgent(endpoint string, opts ...AgentOption) (*HTTPAgent, error) {
	if endpoint == "" {
		return nil, errors.New("endpoint is required")
	}
	a := &HTTPAgent{
		endpoint: endpoint,
		client:   http.DefaultClient,
		headers:  make(http.Header),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Start submits a run and returns the Source of its event stream. A missing
// RunID is filled with a fresh UUID so retries remain distinguishable per
// attempt. The response body stays open until the returned Source is closed.
func (a *HTTPAgent) Start(ctx context.Context, input protocol.RunAgentInput) (Source, error) {
	if input.RunID == "" {
		input.RunID = uuid.NewString()
	}
	if err := protocol.ValidateInput(input); err != nil {
		return nil, fmt.Errorf("invalid run input: %w", err)
	}
	if a.limiter != nil {
		if err := a.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	body, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("encode run input: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build run request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	for key, vals := range a.headers {
		for _, v := range vals {
			req.Header.Add(key, v)
		}
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("submit run: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close() //nolint:errcheck // error path
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("submit run: %s: %s", resp.Status, bytes.TrimSpace(msg))
	}
	return NewSSESource(ctx, resp.Body), nil
}
