package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"ProbDesk/internal/domain/models"
	"ProbDesk/internal/repository"
	"ProbDesk/internal/services/divergence"
	"ProbDesk/internal/services/history"
	"ProbDesk/internal/usecase"
	pkgmetrics "ProbDesk/pkg/metrics"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
)

type envelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type failingCheck struct{}

func (failingCheck) Health(context.Context) error { return errors.New("down") }

func newDashboardServer(t *testing.T) (*echo.Echo, *DashboardEchoHandler) {
	t.Helper()
	calc := divergence.NewCalculator()
	class, err := divergence.NewClassifier(models.AlertThresholds{Low: 5, Medium: 15, High: 30})
	if err != nil {
		t.Fatalf("classifier: %v", err)
	}
	book := repository.NewMemorySnapshotBook(divergence.MergeLatestTimestamp)
	tracker := history.NewTracker()
	rec := pkgmetrics.NewWithRegisterer(prometheus.NewRegistry())
	monitor := usecase.NewMonitor(divergence.NewIngestor(calc), class, book, tracker, rec)
	dash := usecase.NewDashboard(book, divergence.NewAggregator(calc, divergence.MergeLatestTimestamp), class, tracker)

	e := echo.New()
	h := NewDashboardEchoHandler(nil, monitor, dash)
	h.RegisterRoutes(e)
	return e, h
}

func do(e *echo.Echo, method, target, body string) (*httptest.ResponseRecorder, envelope) {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	var env envelope
	_ = json.Unmarshal(rec.Body.Bytes(), &env)
	return rec, env
}

const samplesBody = `{"samples":[
	{"market_id":"btc-100k","market_question":"BTC above 100k?","market_price":0.40,"ai_probability":0.55,"timestamp":"2024-05-01T12:00:00Z"},
	{"market_id":"fed-cut","market_price":0.50,"ai_probability":0.45,"timestamp":"2024-05-01T12:00:00Z"},
	{"market_question":"missing id","market_price":0.3}
]}`

func TestSamplesThenReadSide(t *testing.T) {
	e, _ := newDashboardServer(t)

	rec, env := do(e, http.MethodPost, "/api/samples", samplesBody)
	if rec.Code != http.StatusOK {
		t.Fatalf("samples status = %d body=%s", rec.Code, rec.Body.String())
	}
	var res models.IngestResult
	if err := json.Unmarshal(env.Data, &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Accepted != 2 || len(res.Rejected) != 1 || res.Rejected[0].Index != 2 {
		t.Fatalf("ingest result = %+v", res)
	}

	rec, env = do(e, http.MethodGet, "/api/heatmap", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("heatmap status = %d", rec.Code)
	}
	var heat models.HeatmapData
	_ = json.Unmarshal(env.Data, &heat)
	if heat.TotalMarkets != 2 || heat.Cells[0].MarketID != "btc-100k" || heat.Cells[1].MarketID != "fed-cut" {
		t.Fatalf("heatmap = %+v", heat)
	}

	rec, env = do(e, http.MethodGet, "/api/alerts", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("alerts status = %d", rec.Code)
	}
	var alerts models.AlertsResponse
	_ = json.Unmarshal(env.Data, &alerts)
	// btc-100k +37.5% HIGH, fed-cut -10% LOW
	if alerts.Count != 2 || alerts.Alerts[0].Severity != models.SeverityHigh || alerts.Alerts[1].Severity != models.SeverityLow {
		t.Fatalf("alerts = %+v", alerts)
	}
	if alerts.Alerts[1].Direction != models.DirectionBearish {
		t.Fatalf("direction = %s", alerts.Alerts[1].Direction)
	}

	rec, env = do(e, http.MethodGet, "/api/alerts?low=20&medium=25&high=40", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("override status = %d", rec.Code)
	}
	_ = json.Unmarshal(env.Data, &alerts)
	if alerts.Count != 1 || alerts.Alerts[0].Severity != models.SeverityMedium || alerts.Thresholds.Low != 20 {
		t.Fatalf("override alerts = %+v", alerts)
	}

	rec, env = do(e, http.MethodGet, "/api/markets", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("markets status = %d", rec.Code)
	}
	var list struct {
		Rows  []models.ProbabilitySnapshot `json:"rows"`
		Total int64                        `json:"total"`
	}
	_ = json.Unmarshal(env.Data, &list)
	if list.Total != 2 || len(list.Rows) != 2 {
		t.Fatalf("markets = %+v", list)
	}

	rec, env = do(e, http.MethodGet, "/api/markets/btc-100k/history?tf=7d", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("history status = %d", rec.Code)
	}
	var hist models.MarketProbabilityHistory
	_ = json.Unmarshal(env.Data, &hist)
	if hist.MarketID != "btc-100k" || hist.Timeframe != "7d" || len(hist.Points) != 1 {
		t.Fatalf("history = %+v", hist)
	}
}

func TestAlertsRejectsInvertedThresholds(t *testing.T) {
	e, _ := newDashboardServer(t)
	rec, env := do(e, http.MethodGet, "/api/alerts?low=30&medium=10&high=40", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if env.Status != http.StatusBadRequest {
		t.Fatalf("envelope status = %d", env.Status)
	}
}

func TestHistoryValidationAndNotFound(t *testing.T) {
	e, _ := newDashboardServer(t)

	rec, _ := do(e, http.MethodGet, "/api/markets/abc/history?tf=2d", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad tf status = %d, want 400", rec.Code)
	}
	rec, _ = do(e, http.MethodGet, "/api/markets/abc/history", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown market status = %d, want 404", rec.Code)
	}
}

func TestSamplesRequiresBatch(t *testing.T) {
	e, _ := newDashboardServer(t)
	rec, _ := do(e, http.MethodPost, "/api/samples", `{"samples":[]}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	e, h := newDashboardServer(t)
	rec, _ := do(e, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	h.AddHealthCheck("archive", failingCheck{})
	rec, _ = do(e, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestSamplesRejectsOnlyBadElements(t *testing.T) {
	e, _ := newDashboardServer(t)
	body := `{"samples":[
		{"market_id":"btc-100k","market_price":0.40,"ai_probability":0.55,"timestamp":"2024-05-01T12:00:00Z"},
		{"market_id":"bad-ts","market_price":0.50,"ai_probability":0.45,"timestamp":0},
		{"market_id":"bad-price","market_price":"0.4","ai_probability":0.45},
		{"market_id":"fed-cut","market_price":0.50,"ai_probability":0.45,"timestamp":"yesterday"}
	]}`

	rec, env := do(e, http.MethodPost, "/api/samples", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("samples status = %d body=%s", rec.Code, rec.Body.String())
	}
	var res models.IngestResult
	if err := json.Unmarshal(env.Data, &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Accepted != 3 || len(res.Rejected) != 1 {
		t.Fatalf("ingest result = %+v", res)
	}
	if r := res.Rejected[0]; r.Index != 2 || r.MarketID != "bad-price" {
		t.Fatalf("rejection = %+v", r)
	}

	rec, env = do(e, http.MethodGet, "/api/markets", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("markets status = %d", rec.Code)
	}
	var list struct {
		Total int64 `json:"total"`
	}
	_ = json.Unmarshal(env.Data, &list)
	if list.Total != 3 {
		t.Fatalf("markets total = %d, want 3", list.Total)
	}
}
