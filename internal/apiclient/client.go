package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"cpmsync/internal/metrics"

	"github.com/rs/zerolog/log"
)

const maxBodyBytes = 32 << 20

// Credentials is the part of the credential manager the client needs.
type Credentials interface {
	EnsureValid(ctx context.Context) error
	ForceRefresh(ctx context.Context) error
	Token() string
}

// HTTPError is returned for any non-2xx response that was not recovered.
type HTTPError struct {
	Method string
	URL    string
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	body := e.Body
	if len(body) > 512 {
		body = body[:512] + "..."
	}
	return fmt.Sprintf("%s %s failed: %d %s", e.Method, e.URL, e.Status, body)
}

// IsUnauthorized reports whether err is a 401 that survived the retry.
func IsUnauthorized(err error) bool {
	var e *HTTPError
	return errors.As(err, &e) && e.Status == http.StatusUnauthorized
}

type Client struct {
	BaseURL string
	Auth    Credentials
	HTTP    *http.Client

	// MaxTransactionPages bounds how many transaction pages one fetch follows.
	// Zero means no bound.
	MaxTransactionPages int
}

func New(baseURL string, auth Credentials, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		BaseURL:             strings.TrimRight(baseURL, "/"),
		Auth:                auth,
		HTTP:                &http.Client{Timeout: timeout},
		MaxTransactionPages: 5,
	}
}

func (c *Client) url(path string) string {
	return c.BaseURL + "/api/" + strings.TrimLeft(path, "/")
}

// getWithRetry fetches path and decodes the JSON body into out. A 401 forces
// one credential exchange and one retry; every other failure is returned as is.
func (c *Client) getWithRetry(ctx context.Context, resource, path string, out any) error {
	if err := c.Auth.EnsureValid(ctx); err != nil {
		return err
	}
	u := c.url(path)

	status, body, err := c.get(ctx, resource, u)
	if err != nil {
		return err
	}
	if status == http.StatusUnauthorized {
		log.Warn().Str("component", "apiclient").Str("resource", resource).Msg("Credential rejected, refreshing")
		if err := c.Auth.ForceRefresh(ctx); err != nil {
			return err
		}
		status, body, err = c.get(ctx, resource, u)
		if err != nil {
			return err
		}
	}
	if status < 200 || status > 299 {
		return &HTTPError{Method: http.MethodGet, URL: u, Status: status, Body: string(body)}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s: %w", resource, err)
	}
	return nil
}

func (c *Client) get(ctx context.Context, resource, u string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if tok := c.Auth.Token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		metrics.ObserveAPIRequest(resource, 0)
		return 0, nil, fmt.Errorf("GET %s: %w", u, err)
	}
	defer resp.Body.Close()
	metrics.ObserveAPIRequest(resource, resp.StatusCode)

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read %s: %w", u, err)
	}
	return resp.StatusCode, b, nil
}

// collection accepts either a bare JSON array or an object wrapping the
// array in a "data" field.
type collection[T any] []T

func (c *collection[T]) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '{' {
		var wrapped struct {
			Data []T `json:"data"`
		}
		if err := json.Unmarshal(b, &wrapped); err != nil {
			return err
		}
		*c = wrapped.Data
		return nil
	}
	var items []T
	if err := json.Unmarshal(b, &items); err != nil {
		return err
	}
	*c = items
	return nil
}

type validator interface {
	Validate() error
}

// keepValid drops records that fail validation, logging each one.
func keepValid[T validator](resource string, items []T) []T {
	out := items[:0]
	for _, it := range items {
		if err := it.Validate(); err != nil {
			log.Warn().Err(err).Str("component", "apiclient").Str("resource", resource).Msg("Dropping invalid record")
			continue
		}
		out = append(out, it)
	}
	return out
}
