// Package httpapi is the HTTP surface: the voice-agent webhook plus the
// direct calendar endpoints the authorization flow and admin tooling use.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"showings/internal/domain"
	"showings/internal/service/availability"
	"showings/internal/service/booking"
	"showings/internal/service/credentials"
)

type AvailabilityService interface {
	GetAvailability(ctx context.Context, userID string, windowDays int, hours domain.BusinessHours) ([]domain.TimeSlot, error)
}

type BookingService interface {
	CreateAppointment(ctx context.Context, in booking.CreateInput) (domain.Appointment, error)
}

type CredentialService interface {
	StoreNewCredential(ctx context.Context, userID, accessToken, refreshToken string, expiresAt time.Time) error
	AuthorizationStatus(ctx context.Context, userID string) (bool, time.Time, error)
}

type Server struct {
	availability AvailabilityService
	booking      BookingService
	credentials  CredentialService
	windowDays   int
	log          *slog.Logger
	mux          *http.ServeMux
}

func NewServer(av AvailabilityService, bk BookingService, cm CredentialService, windowDays int, log *slog.Logger) *Server {
	if windowDays < 1 {
		windowDays = 7
	}
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		availability: av,
		booking:      bk,
		credentials:  cm,
		windowDays:   windowDays,
		log:          log.With(slog.String("component", "httpapi")),
		mux:          http.NewServeMux(),
	}

	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /calendar/auth/status", s.handleAuthStatus)
	s.mux.HandleFunc("POST /calendar/auth/credential", s.handleStoreCredential)
	s.mux.HandleFunc("GET /calendar/availability", s.handleAvailability)
	s.mux.HandleFunc("POST /vapi/webhook", s.handleWebhook)

	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

// TimeoutHandler cuts off requests that outlive timeout with the same JSON
// error surface the handlers use. Bare http.TimeoutHandler would serve the
// body with a sniffed text content type.
func TimeoutHandler(h http.Handler, timeout time.Duration) http.Handler {
	inner := http.TimeoutHandler(h, timeout, `{"error":"request timed out"}`)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		inner.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAuthStatus(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	authorized, expiresAt, err := s.credentials.AuthorizationStatus(r.Context(), userID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	resp := map[string]any{"authorized": authorized}
	if !expiresAt.IsZero() {
		resp["expires_at"] = expiresAt.UTC()
	}
	writeJSON(w, http.StatusOK, resp)
}

type storeCredentialRequest struct {
	UserID       string    `json:"user_id"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// handleStoreCredential is the intake point for the external
// authorization-code flow; it is the only way a credential is created outside
// of a refresh.
func (s *Server) handleStoreCredential(w http.ResponseWriter, r *http.Request) {
	var req storeCredentialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := s.credentials.StoreNewCredential(r.Context(), req.UserID, req.AccessToken, req.RefreshToken, req.ExpiresAt); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleAvailability(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	days := s.windowDays
	if raw := r.URL.Query().Get("days_ahead"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "days_ahead must be an integer")
			return
		}
		days = n
	}

	slots, err := s.availability.GetAvailability(r.Context(), userID, days, domain.BusinessHours{})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":         userID,
		"available_slots": slots,
		"total_slots":     len(slots),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFromError(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", slog.String("path", r.URL.Path), slog.Any("err", err))
	} else {
		s.log.Warn("request rejected", slog.String("path", r.URL.Path), slog.Any("err", err))
	}
	writeError(w, status, err.Error())
}

func statusFromError(err error) int {
	switch {
	case errors.Is(err, domain.ErrUnauthorized), errors.Is(err, domain.ErrReauthorizationRequired):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrProviderUnavailable):
		return http.StatusBadGateway
	case isValidation(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Each service declares its own ValidationError type; all map to 400.
func isValidation(err error) bool {
	var bookingErr *booking.ValidationError
	var availabilityErr *availability.ValidationError
	var credentialsErr *credentials.ValidationError
	var parameterErr *paramError
	return errors.As(err, &bookingErr) ||
		errors.As(err, &availabilityErr) ||
		errors.As(err, &credentialsErr) ||
		errors.As(err, &parameterErr)
}
