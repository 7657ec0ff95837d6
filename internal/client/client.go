// Package client executes GraphQL queries over HTTP. It is the transport
// collaborator of the mirror: the mirror produces queries, this package
// runs them and hands back the raw response data.
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrGraphQL is returned when the remote answered with GraphQL-level
// errors. The wrapping error carries the messages.
var ErrGraphQL = errors.New("graphql error")

// Config configures a Client.
type Config struct {
	// Endpoint is the GraphQL HTTP endpoint.
	Endpoint string
	// Token, when set, is sent as a bearer token.
	Token string
	// HTTPClient defaults to one with a 30s timeout.
	HTTPClient *http.Client
	// Logger defaults to slog.Default().
	Logger *slog.Logger
	// MaxRetries bounds the total number of attempts, the first one
	// included, when failures are transient. Defaults to 3.
	MaxRetries int
}

// Client posts queries to a single GraphQL endpoint, retrying transient
// failures with capped exponential backoff.
type Client struct {
	endpoint   string
	token      string
	httpClient *http.Client
	log        *slog.Logger
	maxRetries int
}

// New creates a Client from the given configuration.
func New(cfg Config) *Client {
	c := &Client{
		endpoint:   cfg.Endpoint,
		token:      cfg.Token,
		httpClient: cfg.HTTPClient,
		log:        cfg.Logger,
		maxRetries: cfg.MaxRetries,
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if c.log == nil {
		c.log = slog.Default()
	}
	if c.maxRetries <= 0 {
		c.maxRetries = 3
	}
	return c
}

type request struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type response struct {
	Data   jsoniter.RawMessage `json:"data"`
	Errors []responseError     `json:"errors"`
}

type responseError struct {
	Message string `json:"message"`
}

// Execute posts the query with the given variables and returns the raw
// `data` payload. GraphQL-level errors surface as ErrGraphQL; transport
// failures and 5xx/429 responses are retried before giving up.
func (c *Client) Execute(ctx context.Context, query string, variables map[string]any) (jsoniter.RawMessage, error) {
	body, err := json.Marshal(request{Query: query, Variables: variables})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	requestID := uuid.NewString()
	start := time.Now()

	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, backoff(attempt)); err != nil {
				return nil, err
			}
		}

		data, retryable, err := c.post(ctx, requestID, body)
		if err == nil {
			c.log.Info("graphql round-trip",
				"request_id", requestID,
				"attempt", attempt+1,
				"duration", time.Since(start),
			)
			return data, nil
		}
		lastErr = err
		if !retryable {
			break
		}
		c.log.Warn("graphql request failed, retrying",
			"request_id", requestID,
			"attempt", attempt+1,
			"error", err,
		)
	}

	return nil, lastErr
}

// post performs one attempt. The second return value reports whether the
// failure is worth retrying.
func (c *Client) post(ctx context.Context, requestID string, body []byte) (jsoniter.RawMessage, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, false, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-Id", requestID)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("post query: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return nil, true, fmt.Errorf("remote returned status %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, false, fmt.Errorf("remote returned status %d", resp.StatusCode)
	}

	var parsed response
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return nil, false, fmt.Errorf("decode response: %w", err)
	}
	if len(parsed.Errors) > 0 {
		messages := make([]string, len(parsed.Errors))
		for i, e := range parsed.Errors {
			messages[i] = e.Message
		}
		return nil, false, fmt.Errorf("%w: %s", ErrGraphQL, strings.Join(messages, "; "))
	}

	return parsed.Data, false, nil
}

func backoff(attempt int) time.Duration {
	d := 500 * time.Millisecond << (attempt - 1)
	if d > 8*time.Second {
		d = 8 * time.Second
	}
	return d
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
