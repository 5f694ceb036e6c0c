package hub

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/oshokin/alarm-monitor/internal/domain/alarm"
	"github.com/oshokin/alarm-monitor/internal/logger"
	"github.com/oshokin/alarm-monitor/internal/repository/eventlog"
)

const (
	// logsLimit is the number of rows /api/logs returns.
	logsLimit = 50
	// maxBodyBytes bounds JSON request bodies.
	maxBodyBytes = 1 << 16
)

// ErrForbidden is returned by the service when the actor lacks the role.
var ErrForbidden = errors.New("insufficient permissions")

// Service abstracts the business operations the transport layer depends on.
type Service interface {
	Authenticate(ctx context.Context, username, pin string) (*domain.Actor, error)
	Logs(ctx context.Context, limit int) ([]eventlog.Entry, error)
	SetArmed(ctx context.Context, actor *domain.Actor, armed bool) (*domain.State, error)
	Unlock(ctx context.Context, actor *domain.Actor) error
	Alert(ctx context.Context, message string) error
}

// Options configures the router.
type Options struct {
	// Issuer signs and checks access tokens.
	Issuer *Issuer
	// Feed serves /ws.
	Feed *Feed
	// LoginRate is the number of login attempts per minute per client.
	LoginRate int
}

// handler implements the routes.
type handler struct {
	service Service
	issuer  *Issuer
	limiter *clientLimiter
}

// NewRouter wires the service into the hub routes.
func NewRouter(service Service, opts Options) http.Handler {
	h := &handler{
		service: service,
		issuer:  opts.Issuer,
		limiter: newClientLimiter(opts.LoginRate),
	}

	r := chi.NewRouter()

	r.Use(requestLogger)
	r.Use(recordMetrics)

	r.With(h.throttle).Post("/login", h.login)
	r.Post("/alert", h.alert)

	r.Group(func(r chi.Router) {
		r.Use(h.authenticate)

		r.Get("/api/logs", h.logs)
		r.Post("/api/arm", h.setArmed(true))
		r.Post("/api/disarm", h.setArmed(false))
		r.Post("/unlock", h.unlock)

		if opts.Feed != nil {
			r.Handle("/ws", opts.Feed)
		}
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return r
}

// loginRequest is the /login body.
type loginRequest struct {
	Username string `json:"username"`
	PIN      string `json:"pin"`
}

// tokenResponse is the /login answer.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// logEntry is one /api/logs row.
type logEntry struct {
	ID    int64  `json:"id"`
	Time  string `json:"time"`
	Event string `json:"event"`
}

// alertRequest is the /alert body.
type alertRequest struct {
	Message string `json:"message"`
}

func (h *handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	actor, err := h.service.Authenticate(r.Context(), req.Username, req.PIN)

	switch {
	case errors.Is(err, eventlog.ErrInvalidCredentials):
		writeDetail(w, http.StatusUnauthorized, "Invalid credentials")
		return
	case err != nil:
		h.internalError(w, r, err)
		return
	}

	token, err := h.issuer.Issue(actor)
	if err != nil {
		h.internalError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{AccessToken: token, TokenType: "bearer"})
}

func (h *handler) logs(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.Logs(r.Context(), logsLimit)
	if err != nil {
		h.internalError(w, r, err)
		return
	}

	out := make([]logEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, logEntry{
			ID:    e.ID,
			Time:  e.Time.UTC().Format(time.RFC3339),
			Event: e.Event,
		})
	}

	writeJSON(w, http.StatusOK, out)
}

func (h *handler) setArmed(armed bool) http.HandlerFunc {
	status := "disarmed"
	if armed {
		status = "armed"
	}

	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := h.service.SetArmed(r.Context(), actorFrom(r.Context()), armed); err != nil {
			h.internalError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{"status": status})
	}
}

func (h *handler) unlock(w http.ResponseWriter, r *http.Request) {
	err := h.service.Unlock(r.Context(), actorFrom(r.Context()))

	switch {
	case errors.Is(err, ErrForbidden):
		writeDetail(w, http.StatusForbidden, "Insufficient permissions")
	case err != nil:
		h.internalError(w, r, err)
	default:
		writeJSON(w, http.StatusOK, map[string]string{"status": "unlocked"})
	}
}

func (h *handler) alert(w http.ResponseWriter, r *http.Request) {
	var req alertRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if strings.TrimSpace(req.Message) == "" {
		writeDetail(w, http.StatusUnprocessableEntity, "message is required")
		return
	}

	if err := h.service.Alert(r.Context(), req.Message); err != nil {
		h.internalError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "alerted"})
}

// internalError logs err and answers 500 without leaking it.
func (h *handler) internalError(w http.ResponseWriter, r *http.Request, err error) {
	logger.ErrorKV(r.Context(), "Request failed", "error", err)
	writeDetail(w, http.StatusInternalServerError, "Internal server error")
}

// decodeJSON reads a bounded JSON body, answering 422 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid request body")
		return false
	}

	return true
}

// writeDetail answers with a {"detail": ...} error body.
func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

// writeJSON encodes v with status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(v)
}
