package stream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/oshokin/alarm-monitor/internal/auth"
	domain "github.com/oshokin/alarm-monitor/internal/domain/monitor"
	"github.com/oshokin/alarm-monitor/internal/logger"
	"github.com/oshokin/alarm-monitor/internal/metrics"
)

// closeGracePeriod bounds the close frame written on Disconnect.
const closeGracePeriod = time.Second

var (
	// errFeedURL is returned for a feed URL that is not ws:// or wss://.
	errFeedURL = errors.New("feed url must use ws or wss scheme")
	// errNoTokenSource is returned when Connect gets a nil source.
	errNoTokenSource = errors.New("token source is required")
)

// Client dials the alert feed. Callbacks are registered before Connect and
// are invoked from a single goroutine per connection, so they never overlap.
type Client struct {
	// url is the feed endpoint.
	url string
	// dialer performs the WebSocket handshake.
	dialer *websocket.Dialer
	// policy is the reconnect schedule.
	policy Policy
	// parse turns frames into events.
	parse ParseFunc
	// now is the clock used for NextRetryAt.
	now func() time.Time
	// seq numbers events across every connection of this client.
	seq atomic.Uint64

	// mu guards the callbacks.
	mu      sync.Mutex
	onEvent func(domain.AlertEvent)
	onState func(domain.ConnectionState)
}

// Option configures a Client.
type Option func(*Client)

// WithPolicy sets the reconnect schedule.
func WithPolicy(p Policy) Option {
	return func(c *Client) {
		c.policy = p.normalized()
	}
}

// WithDialer replaces the WebSocket dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(c *Client) {
		if d != nil {
			c.dialer = d
		}
	}
}

// WithParser replaces the frame parser.
func WithParser(fn ParseFunc) Option {
	return func(c *Client) {
		if fn != nil {
			c.parse = fn
		}
	}
}

// NewClient creates a client for the feed at rawURL.
func NewClient(rawURL string, opts ...Option) *Client {
	dialer := *websocket.DefaultDialer

	c := &Client{
		url:    rawURL,
		dialer: &dialer,
		policy: DefaultPolicy(),
		parse:  ParseMessage,
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// OnEvent registers the alert callback used by subsequent Connect calls.
func (c *Client) OnEvent(fn func(domain.AlertEvent)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.onEvent = fn
}

// OnStateChange registers the connection state callback used by subsequent Connect calls.
func (c *Client) OnStateChange(fn func(domain.ConnectionState)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.onState = fn
}

// Handle is one live connection started by Connect.
type Handle struct {
	client   *Client
	tokens   auth.Source
	schedule *retrySchedule
	onEvent  func(domain.AlertEvent)
	onState  func(domain.ConnectionState)

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Connect starts a connection loop and returns immediately. The token is
// read from tokens on every dial. The loop runs until Disconnect or until
// ctx is done; failures are reported through the state callback only.
func (c *Client) Connect(ctx context.Context, tokens auth.Source) (*Handle, error) {
	if tokens == nil {
		return nil, errNoTokenSource
	}

	u, err := url.Parse(c.url)
	if err != nil {
		return nil, fmt.Errorf("parse feed url: %w", err)
	}

	if scheme := strings.ToLower(u.Scheme); (scheme != "ws" && scheme != "wss") || u.Host == "" {
		return nil, errFeedURL
	}

	c.mu.Lock()
	onEvent, onState := c.onEvent, c.onState
	c.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	runCtx = logger.WithKV(logger.WithName(runCtx, "stream"), "feed_url", u.Redacted())

	h := &Handle{
		client:   c,
		tokens:   tokens,
		schedule: newRetrySchedule(c.policy),
		onEvent:  onEvent,
		onState:  onState,
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	go h.run(runCtx)

	return h, nil
}

// Disconnect closes the connection and cancels any pending reconnect. It is
// idempotent; once it returns no callback fires for this handle. It must not
// be called from inside a callback.
func (h *Handle) Disconnect() {
	if h == nil {
		return
	}

	h.once.Do(h.cancel)
	<-h.done
}

// Done is closed when the connection loop has exited.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Attempt returns the number of consecutive failures since the last stable connection.
func (h *Handle) Attempt() int {
	return h.schedule.Attempt()
}

// run is the connection loop: dial, read until failure, wait, repeat.
func (h *Handle) run(ctx context.Context) {
	defer close(h.done)
	defer h.emitState(domain.DisconnectedState())

	for ctx.Err() == nil {
		h.emitState(domain.ConnectionState{Phase: domain.Connecting})

		err := h.session(ctx)
		if ctx.Err() != nil {
			return
		}

		attempt, delay := h.schedule.Next()
		metrics.StreamReconnectsTotal.Inc()

		logger.WarnKV(ctx, "Feed connection lost", "error", err, "attempt", attempt, "retry_in", delay)

		h.emitState(domain.ConnectionState{
			Phase:       domain.Backoff,
			Attempt:     attempt,
			NextRetryAt: h.client.now().Add(delay),
		})

		timer := time.NewTimer(delay)

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// session dials once and reads until the connection fails or ctx is done.
func (h *Handle) session(ctx context.Context) error {
	header := http.Header{}
	if token := h.tokens.Token(); token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	conn, resp, err := h.client.dialer.DialContext(ctx, h.client.url, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial feed: %s: %w", resp.Status, err)
		}

		return fmt.Errorf("dial feed: %w", err)
	}

	defer func() {
		_ = conn.Close()
	}()

	// Unblock ReadMessage on Disconnect, telling the server we are leaving.
	stopAfter := context.AfterFunc(ctx, func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGracePeriod))
		_ = conn.Close()
	})
	defer stopAfter()

	metrics.StreamConnected.Set(1)
	defer metrics.StreamConnected.Set(0)

	logger.Info(ctx, "Feed connected")
	h.emitState(domain.ConnectionState{Phase: domain.Connected})

	stable := time.AfterFunc(h.client.policy.Stable, h.schedule.Reset)
	defer stable.Stop()

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read feed: %w", err)
		}

		event, err := h.client.parse(messageType, data)
		if err != nil {
			metrics.StreamMessagesTotal.WithLabelValues(metrics.ResultDropped).Inc()
			logger.WarnKV(ctx, "Dropping feed message", "error", err, "size", len(data))

			continue
		}

		event.ReceivedAt = h.client.seq.Add(1)

		metrics.StreamMessagesTotal.WithLabelValues(metrics.ResultOK).Inc()

		if h.onEvent != nil {
			h.onEvent(event)
		}
	}
}

// emitState reports a state transition.
func (h *Handle) emitState(state domain.ConnectionState) {
	if h.onState != nil {
		h.onState(state)
	}
}
