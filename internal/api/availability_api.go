package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"zapis/internal/availability"
	"zapis/internal/cache"
	"zapis/internal/database"
	"zapis/internal/metrics"
)

// handleSchedules routes /api/v1/schedules/{id}/availability.
func (s *HTTPServer) handleSchedules(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/schedules/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[1] != "availability" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	scheduleID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || scheduleID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid schedule id")
		return
	}
	s.handleAvailability(w, r, scheduleID, false)
}

// handleAvailability serves the slot list for one schedule and date.
// GET ...?date=YYYY-MM-DD&agent_id=&service_id=
func (s *HTTPServer) handleAvailability(w http.ResponseWriter, r *http.Request, scheduleID int64, public bool) {
	metrics.IncHTTP("availability")
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if !public {
		tenantID, err := tenantFromHeader(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		sched, err := s.db.GetSchedule(r.Context(), scheduleID)
		if err != nil {
			if errors.Is(err, database.ErrNotFound) {
				writeError(w, http.StatusNotFound, "schedule not found")
				return
			}
			s.log.Error().Err(err).Int64("schedule_id", scheduleID).Msg("get schedule failed")
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		if sched.TenantID != tenantID {
			writeError(w, http.StatusNotFound, "schedule not found")
			return
		}
	}

	date := r.URL.Query().Get("date")
	if date == "" {
		writeError(w, http.StatusBadRequest, "date is required")
		return
	}
	if _, err := time.Parse("2006-01-02", date); err != nil {
		writeError(w, http.StatusBadRequest, "invalid date format; expected YYYY-MM-DD")
		return
	}

	agentID, err := parseOptionalID(r.URL.Query().Get("agent_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid agent_id")
		return
	}
	serviceID, err := parseOptionalID(r.URL.Query().Get("service_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid service_id")
		return
	}

	key := cache.AvailabilityKey(scheduleID, agentID, serviceID, date)
	var cached availability.DayAvailability
	if s.cache.Get(r.Context(), key, &cached) {
		writeJSON(w, http.StatusOK, cached)
		return
	}

	day, err := s.availability.QueryDay(r.Context(), availability.Query{
		ScheduleID: scheduleID,
		AgentID:    agentID,
		ServiceID:  serviceID,
		Date:       date,
	})
	if err != nil {
		switch {
		case errors.Is(err, database.ErrNotFound):
			writeError(w, http.StatusNotFound, "not found")
		case errors.Is(err, availability.ErrInvalidQuery):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			s.log.Error().Err(err).Int64("schedule_id", scheduleID).Str("date", date).
				Msg("availability query failed")
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	s.cache.Set(r.Context(), key, day)
	writeJSON(w, http.StatusOK, day)
}
