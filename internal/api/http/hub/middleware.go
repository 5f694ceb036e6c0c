package hub

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	domain "github.com/oshokin/alarm-monitor/internal/domain/alarm"
	"github.com/oshokin/alarm-monitor/internal/logger"
	"github.com/oshokin/alarm-monitor/internal/metrics"
)

type contextKey struct{}

// errNotHijacker is returned when the server does not support hijacking.
var errNotHijacker = errors.New("response writer does not support hijacking")

// actorKey stores the authenticated actor in the request context.
var actorKey = contextKey{}

// actorFrom returns the authenticated actor.
func actorFrom(ctx context.Context) *domain.Actor {
	actor, _ := ctx.Value(actorKey).(*domain.Actor)
	return actor
}

// authenticate requires a valid bearer token.
func (h *handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		scheme, raw, ok := strings.Cut(r.Header.Get("Authorization"), " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || raw == "" {
			w.Header().Set("WWW-Authenticate", "Bearer")
			writeDetail(w, http.StatusUnauthorized, "Not authenticated")

			return
		}

		actor, err := h.issuer.Validate(strings.TrimSpace(raw))
		if err != nil {
			detail := "Invalid token"
			if errors.Is(err, ErrTokenExpired) {
				detail = "Token expired"
			}

			logger.DebugKV(r.Context(), "Token rejected", "error", err)
			w.Header().Set("WWW-Authenticate", "Bearer")
			writeDetail(w, http.StatusUnauthorized, detail)

			return
		}

		ctx := context.WithValue(r.Context(), actorKey, actor)
		ctx = logger.WithKV(ctx, "actor", actor.Username)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// throttle limits requests per client address.
func (h *handler) throttle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !h.limiter.Allow(clientKey(r)) {
			w.Header().Set("Retry-After", "60")
			writeDetail(w, http.StatusTooManyRequests, "Too many login attempts")

			return
		}

		next.ServeHTTP(w, r)
	})
}

// requestLogger attaches a request id to the context logger and logs each request.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := logger.WithKV(r.Context(), "request_id", uuid.NewString())

		next.ServeHTTP(w, r.WithContext(ctx))

		logger.DebugKV(ctx, "Request served", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

// statusWriter captures the status code for metrics.
type statusWriter struct {
	http.ResponseWriter

	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// Hijack hands the connection to the feed upgrader.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errNotHijacker
	}

	// The upgrade answers 101 itself.
	w.status = http.StatusSwitchingProtocols

	return hijacker.Hijack()
}

// recordMetrics counts requests by route pattern and status.
func recordMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}

		metrics.HubRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(wrapped.status)).Inc()
	})
}
