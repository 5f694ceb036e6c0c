// Package httputil holds the request helpers shared by the monitor's HTTP
// clients: endpoint resolution, bearer requests and error detail extraction.
package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/oshokin/alarm-monitor/internal/version"
)

// maxDetailBytes bounds how much of an error body is kept as detail.
const maxDetailBytes = 512

// ErrBaseURL is returned for a base URL that is not absolute http(s).
var ErrBaseURL = errors.New("api url must be an absolute http(s) url")

// JoinEndpoint resolves path against an absolute http(s) base URL.
func JoinEndpoint(baseURL, path string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", ErrBaseURL
	}

	return u.JoinPath(path).String(), nil
}

// NewBearerRequest builds a request carrying the user agent and, when token
// is not empty, an Authorization header.
func NewBearerRequest(ctx context.Context, method, endpoint, token string, body io.Reader) (*http.Request, error) {
	if body == nil {
		body = http.NoBody
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, err
	}

	req.Header.Set("User-Agent", version.UserAgent())

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	return req, nil
}

// IsSuccess reports whether code is 2xx.
func IsSuccess(code int) bool {
	return code >= 200 && code <= 299
}

// ReadDetail returns the trimmed start of an error body, or the status text when empty.
// FastAPI-style {"detail": "..."} bodies are unwrapped.
func ReadDetail(resp *http.Response) string {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxDetailBytes))

	detail := strings.TrimSpace(string(data))

	var envelope struct {
		Detail string `json:"detail"`
	}

	if err := json.Unmarshal([]byte(detail), &envelope); err == nil && envelope.Detail != "" {
		detail = envelope.Detail
	}

	if detail == "" {
		detail = http.StatusText(resp.StatusCode)
	}

	return detail
}

// Drain discards the rest of a body and closes it so the connection can be reused.
func Drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDetailBytes))
	_ = resp.Body.Close()
}
