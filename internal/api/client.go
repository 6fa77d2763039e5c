// Package api is the REST client for the board backend's notification,
// event and invitation endpoints.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

// DefaultTimeout bounds a request when the caller does not choose one.
const DefaultTimeout = 15 * time.Second

// Client is a thin HTTP client for the backend REST API. It handles Bearer
// token authentication, the client id header and JSON (de)serialization.
// Requests are never retried; callers decide whether to try again.
type Client struct {
	baseURL    string
	token      string
	clientID   string
	httpClient *http.Client
}

// NewClient creates a client for the API rooted at baseURL
// (e.g. http://localhost:5000/api). A zero timeout uses DefaultTimeout.
func NewClient(baseURL, token, clientID string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		token:    token,
		clientID: clientID,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// do builds the request, sets auth headers, and decodes a JSON response
// into result when one is given.
func (c *Client) do(
	ctx context.Context,
	method string,
	path string,
	body interface{},
	result interface{},
) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.clientID != "" {
		req.Header.Set("X-Client-Id", c.clientID)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return fmt.Errorf("executing request %s %s: %w: %w", method, path, ErrTimeout, err)
		}
		return fmt.Errorf("executing request %s %s: %w", method, path, err)
	}

	respBody, readErr := io.ReadAll(resp.Body)
	resp.Body.Close()
	if readErr != nil {
		if isTimeout(readErr) {
			return fmt.Errorf("reading response body: %w: %w", ErrTimeout, readErr)
		}
		return fmt.Errorf("reading response body: %w", readErr)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return &AuthError{Message: fmt.Sprintf("token rejected by %s", c.baseURL)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		se := &StatusError{
			Code:   resp.StatusCode,
			Method: method,
			Path:   path,
			Body:   respBody,
		}
		var apiErr errorResponse
		if json.Unmarshal(respBody, &apiErr) == nil {
			se.Message = apiErr.Message
			if se.Message == "" {
				se.Message = apiErr.Error
			}
		}
		return se
	}

	// No content to parse (e.g. 204).
	if result == nil || resp.StatusCode == http.StatusNoContent || len(respBody) == 0 {
		return nil
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("unmarshaling response from %s %s: %w", method, path, err)
	}

	return nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
