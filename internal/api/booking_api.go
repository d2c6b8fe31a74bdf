package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"zapis/internal/booking"
	"zapis/internal/metrics"
	"zapis/internal/models"
)

// AppointmentRequest is the request body for creating or validating
// an appointment.
type AppointmentRequest struct {
	ScheduleID  int64  `json:"schedule_id"`
	AgentID     *int64 `json:"agent_id,omitempty"`
	ServiceID   *int64 `json:"service_id,omitempty"`
	Date        string `json:"date"` // YYYY-MM-DD
	Time        string `json:"time"` // HH:MM
	DurationMin int    `json:"duration_min,omitempty"`
	ClientName  string `json:"client_name"`
	ClientPhone string `json:"client_phone,omitempty"`
}

// AppointmentResponse is the committed appointment plus quota advisories.
type AppointmentResponse struct {
	Appointment  *models.Appointment `json:"appointment"`
	ServiceName  string              `json:"service_name,omitempty"`
	AgentName    string              `json:"agent_name,omitempty"`
	QuotaUsed    int                 `json:"quota_used"`
	QuotaLimit   int                 `json:"quota_limit"`
	NearingLimit bool                `json:"nearing_limit,omitempty"`
}

// StatusRequest is the request body for a status transition.
type StatusRequest struct {
	Status string `json:"status"`
}

// handleCreateAppointment commits a booking for the authenticated tenant.
// POST /api/v1/appointments
func (s *HTTPServer) handleCreateAppointment(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("create_appointment")
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed; use POST")
		return
	}

	tenantID, err := tenantFromHeader(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}

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
		DurationMin: req.DurationMin,
		ClientName:  req.ClientName,
		ClientPhone: req.ClientPhone,
	})
	if err != nil {
		writeBookingError(w, err)
		return
	}

	s.cache.InvalidateDay(r.Context(), req.ScheduleID, req.Date)
	writeJSON(w, http.StatusCreated, AppointmentResponse{
		Appointment:  result.Appointment,
		ServiceName:  result.ServiceName,
		AgentName:    result.AgentName,
		QuotaUsed:    result.QuotaUsed,
		QuotaLimit:   result.QuotaLimit,
		NearingLimit: result.NearingLimit,
	})
}

// handleValidateAppointment dry-runs the booking checks.
// POST /api/v1/appointments/validate
func (s *HTTPServer) handleValidateAppointment(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("validate_appointment")
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed; use POST")
		return
	}

	tenantID, err := tenantFromHeader(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}

	req, ok := decodeAppointmentRequest(w, r)
	if !ok {
		return
	}

	result, err := s.booking.Validate(r.Context(), booking.CreateRequest{
		TenantID:    tenantID,
		ScheduleID:  req.ScheduleID,
		AgentID:     req.AgentID,
		ServiceID:   req.ServiceID,
		Date:        req.Date,
		Time:        req.Time,
		DurationMin: req.DurationMin,
	})
	if err != nil {
		writeBookingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleAppointmentActions routes /api/v1/appointments/{id}/status.
func (s *HTTPServer) handleAppointmentActions(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/appointments/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[1] != "status" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	appointmentID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || appointmentID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid appointment id")
		return
	}

	metrics.IncHTTP("appointment_status")
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed; use POST")
		return
	}

	tenantID, err := tenantFromHeader(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}

	var req StatusRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	appt, err := s.booking.Transition(r.Context(), tenantID, appointmentID, models.Status(req.Status))
	if err != nil {
		writeBookingError(w, err)
		return
	}

	// Cache keys carry the tenant-local date; the stored start is UTC.
	date := appt.StartTime.Format("2006-01-02")
	if tenant, err := s.db.GetTenant(r.Context(), tenantID); err == nil {
		date = appt.StartTime.In(tenant.Location()).Format("2006-01-02")
	}
	s.cache.InvalidateDay(r.Context(), appt.ScheduleID, date)
	writeJSON(w, http.StatusOK, map[string]any{"appointment": appt})
}

func decodeAppointmentRequest(w http.ResponseWriter, r *http.Request) (*AppointmentRequest, bool) {
	var req AppointmentRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return nil, false
	}
	if req.ScheduleID <= 0 {
		writeError(w, http.StatusBadRequest, "schedule_id is required")
		return nil, false
	}
	return &req, true
}
