package command

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	domain "github.com/oshokin/alarm-monitor/internal/domain/monitor"
	"github.com/oshokin/alarm-monitor/internal/httputil"
	"github.com/oshokin/alarm-monitor/internal/logger"
	"github.com/oshokin/alarm-monitor/internal/metrics"
)

// Command names and their endpoints.
const (
	Arm    = "arm"
	Disarm = "disarm"

	armPath    = "/api/arm"
	disarmPath = "/api/disarm"
)

// Ack confirms an accepted command.
type Ack struct {
	// Command is "arm" or "disarm".
	Command string
	// StatusCode is the 2xx status the backend answered with.
	StatusCode int
	// At is when the acknowledgement arrived.
	At time.Time
}

// Dispatcher sends commands and owns the command state.
type Dispatcher struct {
	// endpoints maps command names to absolute URLs.
	endpoints map[string]string
	// httpClient performs requests.
	httpClient *http.Client
	// callTimeout is applied to each command when positive.
	callTimeout time.Duration

	// mu guards state and onState.
	mu      sync.Mutex
	state   domain.CommandState
	onState func(domain.CommandState)
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(d *Dispatcher) {
		if c != nil {
			d.httpClient = c
		}
	}
}

// WithCallTimeout sets a default timeout for each command.
func WithCallTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.callTimeout = timeout
		}
	}
}

// NewDispatcher creates a dispatcher for the API rooted at baseURL.
func NewDispatcher(baseURL string, opts ...Option) (*Dispatcher, error) {
	armURL, err := httputil.JoinEndpoint(baseURL, armPath)
	if err != nil {
		return nil, err
	}

	disarmURL, err := httputil.JoinEndpoint(baseURL, disarmPath)
	if err != nil {
		return nil, err
	}

	d := &Dispatcher{
		endpoints: map[string]string{
			Arm:    armURL,
			Disarm: disarmURL,
		},
		httpClient: http.DefaultClient,
	}

	for _, opt := range opts {
		opt(d)
	}

	return d, nil
}

// OnStateChange registers a callback for command state transitions.
// It is called synchronously, outside the dispatcher lock.
func (d *Dispatcher) OnStateChange(fn func(domain.CommandState)) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.onState = fn
}

// State returns the current command state.
func (d *Dispatcher) State() domain.CommandState {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.state
}

// Arm sends POST /api/arm with token.
func (d *Dispatcher) Arm(ctx context.Context, token string) (Ack, error) {
	return d.send(ctx, Arm, token)
}

// Disarm sends POST /api/disarm with token.
func (d *Dispatcher) Disarm(ctx context.Context, token string) (Ack, error) {
	return d.send(ctx, Disarm, token)
}

// send runs one command through Sending to a terminal state.
func (d *Dispatcher) send(ctx context.Context, command, token string) (Ack, error) {
	ctx = logger.WithKV(ctx, "command", command)

	if !d.begin() {
		metrics.CommandsTotal.WithLabelValues(command, metrics.ResultBusy).Inc()
		logger.Warn(ctx, "Command rejected, another one is in flight")

		return Ack{}, &CommandError{Command: command, Kind: KindAlreadyInFlight}
	}

	ack, err := d.post(ctx, command, token)
	if err != nil {
		var cmdErr *CommandError

		reason := err.Error()
		if errors.As(err, &cmdErr) {
			reason = cmdErr.Reason()
			metrics.CommandsTotal.WithLabelValues(command, resultLabel(cmdErr.Kind)).Inc()
		}

		d.finish(domain.CommandState{Phase: domain.Failed, Reason: reason})
		logger.ErrorKV(ctx, "Command failed", "error", err)

		return Ack{}, err
	}

	metrics.CommandsTotal.WithLabelValues(command, metrics.ResultOK).Inc()
	d.finish(domain.CommandState{Phase: domain.Succeeded})
	logger.InfoKV(ctx, "Command accepted", "status", ack.StatusCode)

	return ack, nil
}

// begin moves to Sending unless a command is already in flight.
func (d *Dispatcher) begin() bool {
	d.mu.Lock()

	if d.state.Phase == domain.Sending {
		d.mu.Unlock()
		return false
	}

	d.state = domain.CommandState{Phase: domain.Sending}
	onState := d.onState
	d.mu.Unlock()

	if onState != nil {
		onState(domain.CommandState{Phase: domain.Sending})
	}

	return true
}

// finish records a terminal state.
func (d *Dispatcher) finish(state domain.CommandState) {
	d.mu.Lock()
	d.state = state
	onState := d.onState
	d.mu.Unlock()

	if onState != nil {
		onState(state)
	}
}

// post performs the HTTP request.
func (d *Dispatcher) post(ctx context.Context, command, token string) (Ack, error) {
	callCtx, cancel := d.callContext(ctx)
	defer cancel()

	req, err := httputil.NewBearerRequest(callCtx, http.MethodPost, d.endpoints[command], token, nil)
	if err != nil {
		return Ack{}, &CommandError{Command: command, Kind: KindUnreachable, Detail: "build request", Err: err}
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return Ack{}, &CommandError{Command: command, Kind: KindTimeout, Err: err}
		}

		return Ack{}, &CommandError{Command: command, Kind: KindUnreachable, Err: err}
	}

	if !httputil.IsSuccess(resp.StatusCode) {
		detail := httputil.ReadDetail(resp)
		_ = resp.Body.Close()

		return Ack{}, &CommandError{
			Command:    command,
			Kind:       KindBackendRejected,
			StatusCode: resp.StatusCode,
			Detail:     detail,
		}
	}

	// The body carries nothing we need.
	httputil.Drain(resp)

	return Ack{Command: command, StatusCode: resp.StatusCode, At: time.Now()}, nil
}

// callContext applies the default timeout when configured.
func (d *Dispatcher) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, d.callTimeout)
}

// resultLabel maps an error kind onto a metrics result.
func resultLabel(kind Kind) string {
	switch kind {
	case KindAlreadyInFlight:
		return metrics.ResultBusy
	case KindBackendRejected:
		return metrics.ResultRejected
	case KindTimeout:
		return metrics.ResultTimeout
	default:
		return metrics.ResultError
	}
}
