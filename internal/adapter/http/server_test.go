package http_test

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	httpadapter "github.com/couchcryptid/field-health-service/internal/adapter/http"
	"github.com/couchcryptid/field-health-service/internal/adapter/identity"
	"github.com/couchcryptid/field-health-service/internal/alert"
	"github.com/couchcryptid/field-health-service/internal/domain"
	"github.com/couchcryptid/field-health-service/internal/field"
	"github.com/couchcryptid/field-health-service/internal/observability"
	"github.com/couchcryptid/field-health-service/internal/pipeline"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const dashboardOrigin = "http://dashboard.example"

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type mockReadiness struct {
	err error
}

func (m *mockReadiness) CheckReadiness(_ context.Context) error { return m.err }

type mockHistory struct {
	fieldID string
	metric  domain.Metric
	since   time.Time
	samples []domain.Sample
	err     error
}

func (m *mockHistory) Series(_ context.Context, fieldID string, metric domain.Metric, since time.Time) ([]domain.Sample, error) {
	m.fieldID, m.metric, m.since = fieldID, metric, since
	return m.samples, m.err
}

type mockIdentity struct {
	session identity.Session
	err     error
	name    string
}

func (m *mockIdentity) Login(_ context.Context, _, _ string) (identity.Session, error) {
	return m.session, m.err
}

func (m *mockIdentity) Signup(_ context.Context, name, _, _ string) (identity.Session, error) {
	m.name = name
	return m.session, m.err
}

type fixture struct {
	srv     *httpadapter.Server
	agg     *field.Aggregator
	alerts  *alert.Store
	history *mockHistory
	ident   *mockIdentity
	metrics *observability.Metrics
}

func newFixture(t *testing.T, opts ...func(*httpadapter.Deps)) *fixture {
	t.Helper()
	clock := clockwork.NewFakeClockAt(testNow)
	store := alert.NewStore(clock)
	agg := field.NewAggregator(store)
	metrics := observability.NewMetricsForTesting()
	rec := pipeline.NewRecorder(agg, alert.NewEvaluator(store, 0, clock), store, slog.Default(), metrics)

	f := &fixture{
		agg:     agg,
		alerts:  store,
		history: &mockHistory{},
		ident:   &mockIdentity{},
		metrics: metrics,
	}
	deps := httpadapter.Deps{
		Ready:      &mockReadiness{},
		Aggregator: agg,
		Baseline:   field.NewBaseline(7*24*time.Hour, clock),
		Alerts:     store,
		Loader:     rec,
		History:    f.history,
		Identity:   f.ident,
		Metrics:    metrics,
	}
	for _, opt := range opts {
		opt(&deps)
	}
	f.srv = httpadapter.NewServer(":0", deps, []string{dashboardOrigin}, slog.Default())
	return f
}

func (f *fixture) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) record(fieldID string, values map[domain.Metric]float64) {
	for m, v := range values {
		f.agg.RecordReading(domain.Reading{FieldID: fieldID, Metric: m, Value: v, Timestamp: testNow})
	}
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// --- health ---

func TestHealthzReturns200(t *testing.T) {
	rec := newFixture(t).do(t, http.MethodGet, "/healthz", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]string](t, rec)
	assert.Equal(t, "healthy", body["status"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestRequestIDIsPropagated(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()

	f.srv.ServeHTTP(rec, req)

	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))
}

func TestReadyzReturns200WhenReady(t *testing.T) {
	rec := newFixture(t).do(t, http.MethodGet, "/readyz", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ready", decode[map[string]string](t, rec)["status"])
}

func TestReadyzReturns503WhenNotReady(t *testing.T) {
	f := newFixture(t, func(d *httpadapter.Deps) { d.Ready = &mockReadiness{err: fmt.Errorf("not ready yet")} })
	rec := f.do(t, http.MethodGet, "/readyz", "")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decode[map[string]string](t, rec)
	assert.Equal(t, "not ready", body["status"])
	assert.Equal(t, "not ready yet", body["error"])
}

func TestMetricsEndpoint(t *testing.T) {
	rec := newFixture(t).do(t, http.MethodGet, "/metrics", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/alerts/1", nil)
	req.Header.Set("Origin", dashboardOrigin)
	req.Header.Set("Access-Control-Request-Method", http.MethodDelete)
	rec := httptest.NewRecorder()

	f.srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, dashboardOrigin, rec.Header().Get("Access-Control-Allow-Origin"))
}

// --- fields ---

func TestFleetSummary(t *testing.T) {
	f := newFixture(t)
	f.record("A-1", map[domain.Metric]float64{domain.MetricNDVI: 0.8, domain.MetricPH: 6.8, domain.MetricMoisture: 85, domain.MetricNitrogen: 78, domain.MetricPhosphorus: 92, domain.MetricPotassium: 88})
	f.record("B-2", map[domain.Metric]float64{domain.MetricNDVI: 0.6})
	f.alerts.Raise(domain.KindWarning, "Soil moisture below optimal threshold in field B-2", "B-2")

	rec := f.do(t, http.MethodGet, "/api/fleet", "")

	require.Equal(t, http.StatusOK, rec.Code)
	fleet := decode[field.FleetSummary](t, rec)
	assert.Equal(t, 2, fleet.FieldCount)
	assert.InDelta(t, 0.7, fleet.AvgNdvi, 1e-9)
	assert.Equal(t, 1, fleet.ActiveAlertCount)
}

func TestFields(t *testing.T) {
	f := newFixture(t)
	f.record("B-2", map[domain.Metric]float64{domain.MetricMoisture: 65})
	f.record("A-1", map[domain.Metric]float64{domain.MetricMoisture: 72})

	rec := f.do(t, http.MethodGet, "/api/fields", "")

	require.Equal(t, http.StatusOK, rec.Code)
	summaries := decode[[]field.Summary](t, rec)
	require.Len(t, summaries, 2)
	assert.Equal(t, "A-1", summaries[0].FieldID)
	assert.Equal(t, "B-2", summaries[1].FieldID)
}

func TestField(t *testing.T) {
	f := newFixture(t)
	f.record("A-1", map[domain.Metric]float64{domain.MetricPH: 6.8, domain.MetricMoisture: 85, domain.MetricNitrogen: 78, domain.MetricPhosphorus: 92, domain.MetricPotassium: 88})

	rec := f.do(t, http.MethodGet, "/api/fields/A-1", "")

	require.Equal(t, http.StatusOK, rec.Code)
	s := decode[field.Summary](t, rec)
	assert.Equal(t, domain.HealthGood, s.HealthTier)
	assert.InDelta(t, 85.0, s.Values[domain.MetricMoisture], 1e-9)
	assert.Contains(t, rec.Body.String(), `"moisture":85`)
}

func TestFieldNotFound(t *testing.T) {
	rec := newFixture(t).do(t, http.MethodGet, "/api/fields/Z-9", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHistory(t *testing.T) {
	f := newFixture(t)
	f.history.samples = []domain.Sample{{Timestamp: testNow, Value: 0.74}}

	rec := f.do(t, http.MethodGet, "/api/fields/A-1/history?metric=ndvi&since=2024-05-25T00:00:00Z", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "A-1", f.history.fieldID)
	assert.Equal(t, domain.MetricNDVI, f.history.metric)
	assert.Equal(t, time.Date(2024, 5, 25, 0, 0, 0, 0, time.UTC), f.history.since)
	assert.Contains(t, rec.Body.String(), `"metric":"ndvi"`)
	assert.Contains(t, rec.Body.String(), `"value":0.74`)
}

func TestHistoryBadRequest(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/fields/A-1/history", "").Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/fields/A-1/history?metric=salinity", "").Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/fields/A-1/history?metric=ph&since=yesterday", "").Code)
}

func TestHistoryDisabled(t *testing.T) {
	f := newFixture(t, func(d *httpadapter.Deps) { d.History = nil })
	rec := f.do(t, http.MethodGet, "/api/fields/A-1/history?metric=ph", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

// --- readings ---

func TestSubmitReading(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/api/readings",
		`{"field_id":"A-3","metric":"moisture","value":22,"timestamp":"2024-06-01T08:00:00Z"}`)

	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	s, err := f.agg.SummaryFor("A-3")
	require.NoError(t, err)
	assert.InDelta(t, 22.0, s.Values[domain.MetricMoisture], 1e-9)
	assert.Equal(t, 1, f.alerts.Count(), "drought alert should be raised")
}

func TestSubmitReadingInvalid(t *testing.T) {
	f := newFixture(t)
	tests := []string{
		`not json`,
		`{"field_id":"A-3","metric":"salinity","value":1}`,
		`{"field_id":"A-3","metric":"moisture","value":140}`,
		`{"metric":"moisture","value":40}`,
	}
	for _, body := range tests {
		rec := f.do(t, http.MethodPost, "/api/readings", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
	assert.Zero(t, f.agg.FieldCount())
}

// --- alerts ---

func TestAlertsMostRecentFirstWithLimit(t *testing.T) {
	f := newFixture(t)
	for i := range 5 {
		f.alerts.Raise(domain.KindInfo, fmt.Sprintf("alert %d", i+1), "A-1")
	}

	rec := f.do(t, http.MethodGet, "/api/alerts?limit=3", "")

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[struct {
		Count  int            `json:"count"`
		Alerts []domain.Alert `json:"alerts"`
	}](t, rec)
	assert.Equal(t, 5, body.Count)
	require.Len(t, body.Alerts, 3)
	assert.Equal(t, int64(5), body.Alerts[0].ID)
	assert.Equal(t, int64(3), body.Alerts[2].ID)
}

func TestAlertsInvalidLimit(t *testing.T) {
	rec := newFixture(t).do(t, http.MethodGet, "/api/alerts?limit=-1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDismissAlert(t *testing.T) {
	f := newFixture(t)
	a := f.alerts.Raise(domain.KindCritical, "Severe drought detected in field A-3 (moisture 22%)", "A-3")

	rec := f.do(t, http.MethodDelete, fmt.Sprintf("/api/alerts/%d", a.ID), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[map[string]bool](t, rec)["dismissed"])
	assert.Zero(t, f.alerts.Count())

	// Dismissing again is a no-op, not an error.
	rec = f.do(t, http.MethodDelete, fmt.Sprintf("/api/alerts/%d", a.ID), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[map[string]bool](t, rec)["dismissed"])
}

func TestDismissAlertNonNumericID(t *testing.T) {
	rec := newFixture(t).do(t, http.MethodDelete, "/api/alerts/abc", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// --- risk ---

func TestRisk(t *testing.T) {
	rec := newFixture(t).do(t, http.MethodPost, "/api/risk", `{"scores":[0.9,0.5,0.1,0.7]}`)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[struct {
		Tiers        []domain.RiskTier       `json:"tiers"`
		Distribution map[domain.RiskTier]int `json:"distribution"`
	}](t, rec)
	assert.Equal(t, []domain.RiskTier{domain.RiskHigh, domain.RiskMedium, domain.RiskLow, domain.RiskMedium}, body.Tiers)
	assert.Equal(t, map[domain.RiskTier]int{domain.RiskHigh: 1, domain.RiskMedium: 2, domain.RiskLow: 1}, body.Distribution)
}

func TestRiskEmpty(t *testing.T) {
	rec := newFixture(t).do(t, http.MethodPost, "/api/risk", `{"scores":[]}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"high":0`)
	assert.Contains(t, rec.Body.String(), `"medium":0`)
	assert.Contains(t, rec.Body.String(), `"low":0`)
}

// --- auth ---

func TestLogin(t *testing.T) {
	f := newFixture(t)
	f.ident.session = identity.Session{Token: "tok-1", User: identity.User{ID: "u-1", Email: "grower@example.com"}}

	rec := f.do(t, http.MethodPost, "/api/auth/login", `{"email":"grower@example.com","password":"pw"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "tok-1", body["token"])
}

func TestLoginValidation(t *testing.T) {
	rec := newFixture(t).do(t, http.MethodPost, "/api/auth/login", `{"email":"  ","password":"pw"}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "email and password are required", body["error"])
}

func TestLoginRejected(t *testing.T) {
	f := newFixture(t)
	f.ident.err = identity.ErrAuthFailed

	rec := f.do(t, http.MethodPost, "/api/auth/login", `{"email":"a@b.c","password":"wrong"}`)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "authentication failed", decode[map[string]any](t, rec)["error"])
}

func TestSignupPasswordMismatch(t *testing.T) {
	rec := newFixture(t).do(t, http.MethodPost, "/api/auth/signup",
		`{"name":"G","email":"a@b.c","password":"one","confirm_password":"two"}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "passwords do not match", decode[map[string]any](t, rec)["error"])
}

func TestSignup(t *testing.T) {
	f := newFixture(t)
	f.ident.session = identity.Session{Token: "tok-2", User: identity.User{ID: "u-2", Name: "New Grower"}}

	rec := f.do(t, http.MethodPost, "/api/auth/signup",
		`{"name":" New Grower ","email":"a@b.c","password":"pw","confirm_password":"pw"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "New Grower", f.ident.name)
	assert.Equal(t, "tok-2", decode[map[string]any](t, rec)["token"])
}

func TestAuthDisabled(t *testing.T) {
	f := newFixture(t, func(d *httpadapter.Deps) { d.Identity = nil })
	rec := f.do(t, http.MethodPost, "/api/auth/login", `{"email":"a@b.c","password":"pw"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
