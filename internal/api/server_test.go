package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zapis/internal/availability"
	"zapis/internal/booking"
	"zapis/internal/cache"
	"zapis/internal/clock"
	"zapis/internal/database"
	"zapis/internal/events"
	"zapis/internal/models"
)

type fixture struct {
	db       *database.DB
	tenant   *models.Tenant
	schedule *models.Schedule
	handler  http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	db, err := database.NewDB(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	tenant := &models.Tenant{
		Name:          "Salon",
		Slug:          "salon",
		PublicID:      uuid.NewString(),
		Plan:          models.PlanStarter,
		OnlineBooking: true,
		Timezone:      "UTC",
		IsActive:      true,
	}
	require.NoError(t, db.CreateTenant(ctx, tenant))

	schedule := &models.Schedule{
		TenantID:       tenant.ID,
		Name:           "Main",
		WorkingDays:    []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday},
		OpenTime:       "09:00",
		CloseTime:      "18:00",
		SlotMinutes:    30,
		MaxAdvanceDays: 30,
		IsActive:       true,
	}
	require.NoError(t, db.CreateSchedule(ctx, schedule))

	logger := zerolog.New(io.Discard)
	clk := clock.Fixed{T: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}

	availService := availability.NewService(db, clk, &logger)
	quota := booking.NewQuotaEnforcer(db, clk)
	bookService := booking.NewService(db, availService, quota, events.NewBus(), clk, &logger)

	server := NewHTTPServer(Options{Address: ":0"}, availService, bookService, cache.New(nil, 0), db, &logger)
	return &fixture{db: db, tenant: tenant, schedule: schedule, handler: server.Routes()}
}

func (f *fixture) do(t *testing.T, method, path string, body any, tenantHeader bool) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if tenantHeader {
		req.Header.Set("X-Tenant-ID", fmt.Sprintf("%d", f.tenant.ID))
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rec.Body).Decode(out))
}

func TestAvailabilityEndpoint(t *testing.T) {
	f := newFixture(t)
	path := fmt.Sprintf("/api/v1/schedules/%d/availability?date=2026-03-02", f.schedule.ID)

	t.Run("requires tenant header", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, path, nil, false)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("returns the slot list", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, path, nil, true)
		require.Equal(t, http.StatusOK, rec.Code)

		var day availability.DayAvailability
		decodeBody(t, rec, &day)
		assert.Equal(t, "2026-03-02", day.Date)
		assert.Len(t, day.Slots, 18)
	})

	t.Run("missing date", func(t *testing.T) {
		rec := f.do(t, http.MethodGet,
			fmt.Sprintf("/api/v1/schedules/%d/availability", f.schedule.ID), nil, true)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("foreign schedule id", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/v1/schedules/999/availability?date=2026-03-02", nil, true)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("unassigned agent is a caller mistake", func(t *testing.T) {
		agent := &models.Agent{TenantID: f.tenant.ID, Name: "Ирина", IsActive: true}
		require.NoError(t, f.db.CreateAgent(context.Background(), agent))

		rec := f.do(t, http.MethodGet,
			fmt.Sprintf("%s&agent_id=%d", path, agent.ID), nil, true)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("store failure is internal", func(t *testing.T) {
		require.NoError(t, f.db.Close())

		rec := f.do(t, http.MethodGet, path, nil, true)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)

		var body map[string]any
		decodeBody(t, rec, &body)
		assert.Equal(t, "internal error", body["error"])
	})
}

func TestAppointmentEndpoints(t *testing.T) {
	f := newFixture(t)
	body := AppointmentRequest{
		ScheduleID: f.schedule.ID,
		Date:       "2026-03-02",
		Time:       "10:00",
		ClientName: "Анна",
	}

	t.Run("validate then create", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/api/v1/appointments/validate", body, true)
		require.Equal(t, http.StatusOK, rec.Code)
		var verdict booking.ValidationResult
		decodeBody(t, rec, &verdict)
		assert.True(t, verdict.Valid)

		rec = f.do(t, http.MethodPost, "/api/v1/appointments", body, true)
		require.Equal(t, http.StatusCreated, rec.Code)
		var created AppointmentResponse
		decodeBody(t, rec, &created)
		assert.Equal(t, models.StatusScheduled, created.Appointment.Status)
		assert.NotEmpty(t, created.Appointment.PublicRef)
	})

	t.Run("same slot is a conflict", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/api/v1/appointments", body, true)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("occupied slot disappears from availability", func(t *testing.T) {
		rec := f.do(t, http.MethodGet,
			fmt.Sprintf("/api/v1/schedules/%d/availability?date=2026-03-02", f.schedule.ID), nil, true)
		require.Equal(t, http.StatusOK, rec.Code)
		var day availability.DayAvailability
		decodeBody(t, rec, &day)
		for _, s := range day.Slots {
			if s.Start == "10:00" {
				assert.False(t, s.Available)
			}
		}
	})

	t.Run("status transition", func(t *testing.T) {
		next := body
		next.Time = "11:00"
		rec := f.do(t, http.MethodPost, "/api/v1/appointments", next, true)
		require.Equal(t, http.StatusCreated, rec.Code)
		var created AppointmentResponse
		decodeBody(t, rec, &created)

		statusPath := fmt.Sprintf("/api/v1/appointments/%d/status", created.Appointment.ID)
		rec = f.do(t, http.MethodPost, statusPath, StatusRequest{Status: "confirmed"}, true)
		assert.Equal(t, http.StatusOK, rec.Code)

		// completed -> cancelled is not a legal transition
		rec = f.do(t, http.MethodPost, statusPath, StatusRequest{Status: "completed"}, true)
		require.Equal(t, http.StatusOK, rec.Code)
		rec = f.do(t, http.MethodPost, statusPath, StatusRequest{Status: "cancelled"}, true)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("unknown body field", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/api/v1/appointments", map[string]any{"bogus": 1}, true)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestPublicBookingEndpoints(t *testing.T) {
	f := newFixture(t)

	t.Run("availability by slug", func(t *testing.T) {
		path := fmt.Sprintf("/api/v1/book/salon?schedule_id=%d&date=2026-03-02", f.schedule.ID)
		rec := f.do(t, http.MethodGet, path, nil, false)
		require.Equal(t, http.StatusOK, rec.Code)
		var day availability.DayAvailability
		decodeBody(t, rec, &day)
		assert.Len(t, day.Slots, 18)
	})

	t.Run("availability by public id prefix", func(t *testing.T) {
		path := fmt.Sprintf("/api/v1/book/%s?schedule_id=%d&date=2026-03-02",
			f.tenant.PublicID[:8], f.schedule.ID)
		rec := f.do(t, http.MethodGet, path, nil, false)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("booking returns the public reference only", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/api/v1/book/salon", AppointmentRequest{
			ScheduleID: f.schedule.ID,
			Date:       "2026-03-02",
			Time:       "12:00",
			ClientName: "Олег",
		}, false)
		require.Equal(t, http.StatusCreated, rec.Code)

		var out map[string]any
		decodeBody(t, rec, &out)
		assert.NotEmpty(t, out["reference"])
		assert.Equal(t, "scheduled", out["status"])
		assert.NotContains(t, out, "appointment")
	})

	t.Run("unknown token", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/v1/book/nosuchsalon?schedule_id=1&date=2026-03-02", nil, false)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("online booking off hides the page", func(t *testing.T) {
		ctx := context.Background()
		other := &models.Tenant{
			Name: "Closed", Slug: "closed", PublicID: uuid.NewString(),
			Plan: models.PlanFree, OnlineBooking: false, Timezone: "UTC", IsActive: true,
		}
		require.NoError(t, f.db.CreateTenant(ctx, other))

		rec := f.do(t, http.MethodGet, "/api/v1/book/closed?schedule_id=1&date=2026-03-02", nil, false)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestStatusInvalidationUsesTenantLocalDate(t *testing.T) {
	ctx := context.Background()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	mr := miniredis.RunT(t)
	availCache := cache.New(redis.NewClient(&redis.Options{Addr: mr.Addr()}), time.Minute)

	tenant := &models.Tenant{
		Name:          "Ночной салон",
		Slug:          "nochnoy",
		PublicID:      uuid.NewString(),
		Plan:          models.PlanStarter,
		OnlineBooking: true,
		Timezone:      "Europe/Moscow",
		IsActive:      true,
	}
	require.NoError(t, db.CreateTenant(ctx, tenant))

	schedule := &models.Schedule{
		TenantID:       tenant.ID,
		Name:           "Night",
		WorkingDays:    []time.Weekday{time.Monday},
		OpenTime:       "00:00",
		CloseTime:      "08:00",
		SlotMinutes:    30,
		MaxAdvanceDays: 30,
		IsActive:       true,
	}
	require.NoError(t, db.CreateSchedule(ctx, schedule))

	logger := zerolog.New(io.Discard)
	clk := clock.Fixed{T: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	availService := availability.NewService(db, clk, &logger)
	quota := booking.NewQuotaEnforcer(db, clk)
	bookService := booking.NewService(db, availService, quota, events.NewBus(), clk, &logger)
	handler := NewHTTPServer(Options{Address: ":0"}, availService, bookService, availCache, db, &logger).Routes()

	send := func(method, path string, payload any) *httptest.ResponseRecorder {
		data, err := json.Marshal(payload)
		require.NoError(t, err)
		req := httptest.NewRequest(method, path, bytes.NewReader(data))
		req.Header.Set("X-Tenant-ID", fmt.Sprintf("%d", tenant.ID))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	// Local 00:30 on 2026-03-02 lands on the prior UTC date.
	rec := send(http.MethodPost, "/api/v1/appointments", AppointmentRequest{
		ScheduleID: schedule.ID,
		Date:       "2026-03-02",
		Time:       "00:30",
		ClientName: "Анна",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created AppointmentResponse
	decodeBody(t, rec, &created)
	require.Equal(t, "2026-03-01", created.Appointment.StartTime.UTC().Format("2006-01-02"))

	key := cache.AvailabilityKey(schedule.ID, nil, nil, "2026-03-02")
	availCache.Set(ctx, key, availability.DayAvailability{Date: "2026-03-02"})
	require.True(t, mr.Exists(key))

	rec = send(http.MethodPost,
		fmt.Sprintf("/api/v1/appointments/%d/status", created.Appointment.ID),
		StatusRequest{Status: "confirmed"})
	require.Equal(t, http.StatusOK, rec.Code)

	assert.False(t, mr.Exists(key), "tenant-local day must be invalidated")
}

func TestHealthEndpoints(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/healthz", nil, false)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/readyz", nil, false)
	assert.Equal(t, http.StatusOK, rec.Code)
}
