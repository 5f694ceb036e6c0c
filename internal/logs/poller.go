package logs

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

	domain "github.com/oshokin/alarm-monitor/internal/domain/monitor"
	"github.com/oshokin/alarm-monitor/internal/httputil"
	"github.com/oshokin/alarm-monitor/internal/logger"
	"github.com/oshokin/alarm-monitor/internal/metrics"
)

const (
	// logsPath is the log endpoint relative to the API base URL.
	logsPath = "/api/logs"
	// maxBodyBytes bounds the accepted snapshot size.
	maxBodyBytes = 8 << 20
)

// errNotArray is returned when the body decodes to JSON null.
var errNotArray = errors.New("response is not a json array")

// Poller fetches log snapshots. It holds no per-fetch state, so concurrent
// Fetch calls are independent.
type Poller struct {
	// endpoint is the absolute /api/logs URL.
	endpoint string
	// httpClient performs requests.
	httpClient *http.Client
	// callTimeout is applied to each fetch when positive.
	callTimeout time.Duration
}

// Option configures a Poller.
type Option func(*Poller)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Poller) {
		if c != nil {
			p.httpClient = c
		}
	}
}

// WithCallTimeout sets a default timeout for each fetch.
func WithCallTimeout(timeout time.Duration) Option {
	return func(p *Poller) {
		if timeout > 0 {
			p.callTimeout = timeout
		}
	}
}

// NewPoller creates a poller for the API rooted at baseURL.
func NewPoller(baseURL string, opts ...Option) (*Poller, error) {
	endpoint, err := httputil.JoinEndpoint(baseURL, logsPath)
	if err != nil {
		return nil, err
	}

	p := &Poller{
		endpoint:   endpoint,
		httpClient: http.DefaultClient,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p, nil
}

// Fetch retrieves the current log snapshot using token.
func (p *Poller) Fetch(ctx context.Context, token string) ([]domain.LogEntry, error) {
	callCtx, cancel := p.callContext(ctx)
	defer cancel()

	entries, err := p.fetch(callCtx, token)

	switch {
	case err == nil:
		metrics.LogFetchesTotal.WithLabelValues(metrics.ResultOK).Inc()
	case errors.Is(err, ErrTimeout):
		metrics.LogFetchesTotal.WithLabelValues(metrics.ResultTimeout).Inc()
	default:
		metrics.LogFetchesTotal.WithLabelValues(metrics.ResultError).Inc()
	}

	return entries, err
}

// fetch performs the request.
func (p *Poller) fetch(ctx context.Context, token string) ([]domain.LogEntry, error) {
	req, err := httputil.NewBearerRequest(ctx, http.MethodGet, p.endpoint, token, nil)
	if err != nil {
		return nil, &FetchError{Detail: "build request", Err: err}
	}

	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, transportError(ctx, err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	if !httputil.IsSuccess(resp.StatusCode) {
		return nil, &FetchError{
			StatusCode: resp.StatusCode,
			Detail:     httputil.ReadDetail(resp),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, transportError(ctx, err)
	}

	entries, err := decodeEntries(body)
	if err != nil {
		return nil, &FetchError{Detail: "decode response", Err: err}
	}

	logger.DebugKV(ctx, "Fetched event log", "entries", len(entries))

	return entries, nil
}

// callContext applies the default timeout when configured.
func (p *Poller) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, p.callTimeout)
}

// wireEntry is the JSON shape of one log row; id may be a number or a string.
type wireEntry struct {
	ID    json.RawMessage `json:"id"`
	Time  string          `json:"time"`
	Event string          `json:"event"`
}

// decodeEntries parses the JSON array body.
func decodeEntries(body []byte) ([]domain.LogEntry, error) {
	var wire []wireEntry

	dec := json.NewDecoder(bytes.NewReader(body))
	if err := dec.Decode(&wire); err != nil {
		return nil, err
	}

	if wire == nil {
		return nil, errNotArray
	}

	entries := make([]domain.LogEntry, 0, len(wire))

	for _, w := range wire {
		entries = append(entries, domain.LogEntry{
			ID:    rawID(w.ID),
			Time:  w.Time,
			Event: w.Event,
		})
	}

	return entries, nil
}

// rawID renders a JSON id: strings are unquoted, numbers kept as written.
func rawID(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	return strings.TrimSpace(string(raw))
}

// transportError classifies a failure that produced no response.
func transportError(ctx context.Context, err error) *FetchError {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &FetchError{Detail: "request deadline exceeded", Err: fmt.Errorf("%w: %w", ErrTimeout, err)}
	}

	return &FetchError{Detail: "request failed", Err: err}
}
