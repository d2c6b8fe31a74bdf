// Package api is the HTTP surface of the engine: availability reads,
// booking writes, status transitions and the public booking page.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"zapis/internal/availability"
	"zapis/internal/booking"
	"zapis/internal/cache"
	"zapis/internal/database"
)

// HTTPServer serves the engine API.
type HTTPServer struct {
	availability *availability.Service
	booking      *booking.Service
	cache        *cache.Cache
	db           *database.DB
	limiter      *IPRateLimiter
	log          zerolog.Logger
	server       *http.Server
}

// Options configures the HTTP server.
type Options struct {
	Address         string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	PublicPerMinute int
	PublicBurst     int
}

// NewHTTPServer wires the API over the engine services. The cache may
// be a disabled instance; it is never nil-checked by handlers.
func NewHTTPServer(opts Options, avail *availability.Service, book *booking.Service, c *cache.Cache, db *database.DB, logger *zerolog.Logger) *HTTPServer {
	s := &HTTPServer{
		availability: avail,
		booking:      book,
		cache:        c,
		db:           db,
		limiter:      NewIPRateLimiter(opts.PublicPerMinute, opts.PublicBurst),
		log:          logger.With().Str("component", "api").Logger(),
	}
	s.server = &http.Server{
		Addr:         opts.Address,
		Handler:      s.Routes(),
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
	}
	return s
}

// Routes builds the route table.
func (s *HTTPServer) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)
	mux.HandleFunc("/api/v1/schedules/", s.handleSchedules)
	mux.HandleFunc("/api/v1/appointments", s.handleCreateAppointment)
	mux.HandleFunc("/api/v1/appointments/validate", s.handleValidateAppointment)
	mux.HandleFunc("/api/v1/appointments/", s.handleAppointmentActions)
	mux.Handle("/api/v1/book/", s.limiter.Middleware(http.HandlerFunc(s.handlePublicBooking)))
	return mux
}

// ListenAndServe runs the server until Shutdown.
func (s *HTTPServer) ListenAndServe() error {
	s.log.Info().Str("address", s.server.Addr).Msg("http server listening")
	return s.server.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if err := s.db.PingContext(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

// tenantFromHeader reads the authenticated tenant identity. The
// gateway in front terminates auth and forwards the tenant id.
func tenantFromHeader(r *http.Request) (int64, error) {
	raw := strings.TrimSpace(r.Header.Get("X-Tenant-ID"))
	if raw == "" {
		return 0, errors.New("X-Tenant-ID header is required")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid X-Tenant-ID header")
	}
	return id, nil
}

func parseOptionalID(raw string) (*int64, error) {
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return nil, errors.New("invalid id")
	}
	return &id, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}

// writeBookingError maps engine sentinels to HTTP statuses.
func writeBookingError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, booking.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, booking.ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, booking.ErrValidation):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, booking.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, booking.ErrQuotaExceeded):
		writeError(w, http.StatusPaymentRequired, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
