package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/oshokin/alarm-monitor/internal/httputil"
	"github.com/oshokin/alarm-monitor/internal/logger"
)

// SimulateOptions controls `alarm-hub simulate`.
type SimulateOptions struct {
	// APIURL is the hub base URL.
	APIURL string
	// Message is the alert text.
	Message string
	// Interval between alerts; a single alert is sent when zero.
	Interval time.Duration
	// Timeout bounds each request.
	Timeout time.Duration
	// HTTPClient overrides http.DefaultClient.
	HTTPClient *http.Client
}

// DefaultSimulatedAlert is the message a motion sensor posts.
const DefaultSimulatedAlert = "Motion detected!"

var errAlertRejected = errors.New("alert rejected")

// Simulate posts sensor alerts to the hub until ctx is done.
func Simulate(ctx context.Context, opts *SimulateOptions) error {
	ctx = logger.WithName(ctx, "simulator")

	endpoint, err := httputil.JoinEndpoint(opts.APIURL, "/alert")
	if err != nil {
		return err
	}

	message := opts.Message
	if message == "" {
		message = DefaultSimulatedAlert
	}

	client := opts.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	if err = postAlert(ctx, client, endpoint, message, opts.Timeout); err != nil || opts.Interval <= 0 {
		return err
	}

	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err = postAlert(ctx, client, endpoint, message, opts.Timeout); err != nil {
				logger.WarnKV(ctx, "Alert not delivered", "error", err)
			}
		}
	}
}

// postAlert sends one alert.
func postAlert(ctx context.Context, client *http.Client, endpoint, message string, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	body, err := json.Marshal(map[string]string{"message": message})
	if err != nil {
		return fmt.Errorf("encode alert: %w", err)
	}

	req, err := httputil.NewBearerRequest(ctx, http.MethodPost, endpoint, "", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("post alert: %w", err)
	}

	defer httputil.Drain(resp)

	if !httputil.IsSuccess(resp.StatusCode) {
		return fmt.Errorf("%w: %d %s", errAlertRejected, resp.StatusCode, httputil.ReadDetail(resp))
	}

	logger.InfoKV(ctx, "Alert sent", "message", message)

	return nil
}
