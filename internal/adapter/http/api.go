package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/couchcryptid/field-health-service/internal/domain"
	"github.com/gorilla/mux"
)

const (
	maxBodyBytes   = 1 << 20
	defaultHistory = 7 * 24 * time.Hour
	maxRiskScores  = 10000
)

type alertsResponse struct {
	Count  int            `json:"count"`
	Alerts []domain.Alert `json:"alerts"`
}

type riskRequest struct {
	Scores []float64 `json:"scores"`
}

type riskResponse struct {
	Tiers        []domain.RiskTier       `json:"tiers"`
	Distribution map[domain.RiskTier]int `json:"distribution"`
}

type historyResponse struct {
	FieldID string          `json:"field_id"`
	Metric  domain.Metric   `json:"metric"`
	Since   time.Time       `json:"since"`
	Samples []domain.Sample `json:"samples"`
}

func (s *Server) handleFleet(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Baseline.Summarize(s.deps.Aggregator))
}

func (s *Server) handleFields(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Aggregator.Summaries())
}

func (s *Server) handleField(w http.ResponseWriter, r *http.Request) {
	summary, err := s.deps.Aggregator.SummaryFor(mux.Vars(r)["id"])
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, domain.ErrNotFound) {
			status = http.StatusNotFound
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.deps.History == nil {
		writeError(w, http.StatusServiceUnavailable, "history is not enabled")
		return
	}

	q := r.URL.Query()
	metric, err := domain.ParseMetric(q.Get("metric"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	since := time.Now().Add(-defaultHistory)
	if v := q.Get("since"); v != "" {
		since, err = time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be an RFC 3339 timestamp")
			return
		}
	}

	id := mux.Vars(r)["id"]
	samples, err := s.deps.History.Series(r.Context(), id, metric, since)
	if err != nil {
		s.logger.Error("history query failed", "field_id", id, "metric", metric.String(), "error", err)
		writeError(w, http.StatusBadGateway, "history query failed")
		return
	}
	writeJSON(w, http.StatusOK, historyResponse{FieldID: id, Metric: metric, Since: since.UTC(), Samples: samples})
}

func (s *Server) handleSubmitReading(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body: "+err.Error())
		return
	}

	reading, err := domain.ParseRawReading(domain.RawEvent{Value: body, Timestamp: time.Now()})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.deps.Loader.LoadBatch(r.Context(), []domain.Reading{reading}); err != nil {
		s.logger.Error("submit reading failed", "field_id", reading.FieldID, "error", err)
		writeError(w, http.StatusServiceUnavailable, "reading could not be recorded")
		return
	}
	writeJSON(w, http.StatusAccepted, reading)
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	writeJSON(w, http.StatusOK, alertsResponse{
		Count:  s.deps.Alerts.Count(),
		Alerts: s.deps.Alerts.Snapshot(limit),
	})
}

func (s *Server) handleDismissAlert(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid alert id")
		return
	}

	dismissed := s.deps.Alerts.Dismiss(id)
	if dismissed && s.deps.Metrics != nil {
		s.deps.Metrics.AlertsDismissed.Inc()
		s.deps.Metrics.ActiveAlerts.Set(float64(s.deps.Alerts.Count()))
	}
	writeJSON(w, http.StatusOK, map[string]bool{"dismissed": dismissed})
}

func (s *Server) handleRisk(w http.ResponseWriter, r *http.Request) {
	var req riskRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(req.Scores) > maxRiskScores {
		writeError(w, http.StatusBadRequest, "too many scores")
		return
	}

	tiers := make([]domain.RiskTier, len(req.Scores))
	for i, score := range req.Scores {
		tiers[i] = domain.ClassifyRisk(score)
	}
	writeJSON(w, http.StatusOK, riskResponse{
		Tiers:        tiers,
		Distribution: domain.RiskDistribution(req.Scores),
	})
}
