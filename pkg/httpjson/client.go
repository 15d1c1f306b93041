// Package httpjson factors out the timeout+zerolog-logged JSON HTTP
// client shape used by every outbound provider client in this codebase
// (broker, market-data, notifier).
package httpjson

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Client wraps http.Client with a base URL and structured logging of
// failures. It does not retry; callers compose retry behavior (pkg/retry)
// around calls that need it.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Log     zerolog.Logger
}

// New builds a Client with the given timeout, scoped to componentName
// in its logger the way clients/tradernet and clients/yahoo do.
func New(baseURL string, timeout time.Duration, log zerolog.Logger, componentName string) *Client {
	return &Client{
		BaseURL: baseURL,
		HTTP:    &http.Client{Timeout: timeout},
		Log:     log.With().Str("client", componentName).Logger(),
	}
}

// DoJSON issues an HTTP request with an optional JSON body and decodes
// the JSON response body into out (if out is non-nil).
func (c *Client) DoJSON(ctx context.Context, method, path string, headers map[string]string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		c.Log.Error().Err(err).Str("path", path).Msg("request failed")
		return fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 300 {
		c.Log.Error().
			Int("status", resp.StatusCode).
			Str("path", path).
			Str("body", string(respBody)).
			Msg("non-2xx response")
		return fmt.Errorf("request to %s returned status %d: %s", path, resp.StatusCode, string(respBody))
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse response from %s: %w", path, err)
	}

	return nil
}
