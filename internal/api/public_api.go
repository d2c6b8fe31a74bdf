package api

import (
	"errors"
	"net/http"
	"strings"

	"zapis/internal/booking"
	"zapis/internal/database"
	"zapis/internal/metrics"
)

// handlePublicBooking serves the unauthenticated booking page:
//
//	GET  /api/v1/book/{token}?schedule_id=&date=  slot list
//	POST /api/v1/book/{token}                     commit a booking
//
// The token is a public-id prefix (8+ characters) or a tenant slug.
func (s *HTTPServer) handlePublicBooking(w http.ResponseWriter, r *http.Request) {
	token := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/book/"), "/")
	if token == "" || strings.Contains(token, "/") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	tenant, err := s.booking.ResolveTenant(r.Context(), token)
	if err != nil {
		writeBookingError(w, err)
		return
	}
	if !tenant.IsActive || !tenant.OnlineBooking {
		writeError(w, http.StatusNotFound, "booking page is not available")
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.handlePublicAvailability(w, r, tenant.ID)
	case http.MethodPost:
		s.handlePublicCreate(w, r, tenant.ID)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *HTTPServer) handlePublicAvailability(w http.ResponseWriter, r *http.Request, tenantID int64) {
	scheduleID, err := parseOptionalID(r.URL.Query().Get("schedule_id"))
	if err != nil || scheduleID == nil {
		writeError(w, http.StatusBadRequest, "schedule_id is required")
		return
	}

	sched, err := s.db.GetSchedule(r.Context(), *scheduleID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			writeError(w, http.StatusNotFound, "schedule not found")
			return
		}
		s.log.Error().Err(err).Int64("schedule_id", *scheduleID).Msg("get schedule failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if sched.TenantID != tenantID {
		writeError(w, http.StatusNotFound, "schedule not found")
		return
	}

	s.handleAvailability(w, r, sched.ID, true)
}

func (s *HTTPServer) handlePublicCreate(w http.ResponseWriter, r *http.Request, tenantID int64) {
	metrics.IncHTTP("public_create")

	req, ok := decodeAppointmentRequest(w, r)
	if !ok {
		return
	}

	result, err := s.booking.Create(r.Context(), booking.CreateRequest{
		TenantID:    tenantID,
		ScheduleID:  req.ScheduleID,
		AgentID:     req.AgentID,
		ServiceID:   req.ServiceID,
		Date:        req.Date,
		Time:        req.Time,
		ClientName:  req.ClientName,
		ClientPhone: req.ClientPhone,
		Public:      true,
	})
	if err != nil {
		writeBookingError(w, err)
		return
	}

	s.cache.InvalidateDay(r.Context(), req.ScheduleID, req.Date)

	// Public clients get the reference, not internal ids or quota state.
	writeJSON(w, http.StatusCreated, map[string]any{
		"reference": result.Appointment.PublicRef,
		"status":    result.Appointment.Status,
		"start":     result.Appointment.StartTime.Format("2006-01-02 15:04"),
	})
}
