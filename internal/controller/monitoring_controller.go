package controller

import (
	"net/http"
	"time"

	"github.com/felixhub/workshop/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

const (
	defaultWindowHours   = 1
	defaultFailuresLimit = 50
	defaultDeadLetters   = 50
)

type MonitoringController struct {
	monitoring *service.MonitoringService
	logger     zerolog.Logger
}

func NewMonitoringController(monitoring *service.MonitoringService, logger zerolog.Logger) *MonitoringController {
	return &MonitoringController{monitoring: monitoring, logger: logger}
}

func (h *MonitoringController) SuccessRate(w http.ResponseWriter, r *http.Request) {
	hours, err := queryInt(r, "hours", defaultWindowHours)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	q := windowQuery{Hours: hours}
	if err := validateStruct(q); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	rates, err := h.monitoring.SuccessRates(r.Context(), time.Duration(q.Hours)*time.Hour)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, SuccessRateResponse{Hours: q.Hours, Rates: rates})
}

func (h *MonitoringController) Failures(w http.ResponseWriter, r *http.Request) {
	hours, err := queryInt(r, "hours", defaultWindowHours)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	limit, err := queryInt(r, "limit", defaultFailuresLimit)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	q := failuresQuery{Hours: hours, Limit: limit}
	if err := validateStruct(q); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	records, err := h.monitoring.RecentFailures(r.Context(), time.Duration(q.Hours)*time.Hour, q.Limit)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	failures := make([]FailureResponse, 0, len(records))
	for _, rec := range records {
		failures = append(failures, FromFailure(rec))
	}
	writeJSON(w, http.StatusOK, FailuresResponse{Hours: q.Hours, Count: len(failures), Failures: failures})
}

// Alerts never fails: broken checks show up as error-severity alerts.
func (h *MonitoringController) Alerts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.monitoring.AlertReport(r.Context()))
}

func (h *MonitoringController) Summary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.monitoring.DailySummary(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *MonitoringController) CircuitBreakers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.monitoring.CircuitBreakers())
}

func (h *MonitoringController) ResetCircuitBreaker(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := h.monitoring.ResetCircuitBreaker(name); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"name": name, "state": "closed"})
}

func (h *MonitoringController) DeadLetters(w http.ResponseWriter, r *http.Request) {
	count, err := queryInt(r, "count", defaultDeadLetters)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	q := deadLetterQuery{Count: count}
	if err := validateStruct(q); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	letters, err := h.monitoring.RecentDeadLetters(r.Context(), q.Count)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	resp := make([]DeadLetterResponse, 0, len(letters))
	for _, d := range letters {
		resp = append(resp, FromDeadLetter(d))
	}
	writeJSON(w, http.StatusOK, resp)
}
