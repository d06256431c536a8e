package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"ProbDesk/internal/domain/models"
	domrepo "ProbDesk/internal/domain/repository"
	"ProbDesk/internal/service/metrics"
	"ProbDesk/internal/usecase"
	xhttp "ProbDesk/pkg/http"
	xlogger "ProbDesk/pkg/logger"

	"github.com/labstack/echo/v4"
)

// HealthChecker is anything /healthz should ping, e.g. the snapshot archive.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// DashboardEchoHandler serves ingestion and the read-side dashboard endpoints.
type DashboardEchoHandler struct {
	logger    *xlogger.Logger
	monitor   *usecase.Monitor
	dashboard *usecase.Dashboard
	checks    map[string]HealthChecker
}

func NewDashboardEchoHandler(logger *xlogger.Logger, monitor *usecase.Monitor, dashboard *usecase.Dashboard) *DashboardEchoHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	return &DashboardEchoHandler{logger: logger, monitor: monitor, dashboard: dashboard, checks: map[string]HealthChecker{}}
}

// AddHealthCheck registers a dependency reported by /healthz.
func (h *DashboardEchoHandler) AddHealthCheck(name string, hc HealthChecker) {
	if hc != nil {
		h.checks[name] = hc
	}
}

func (h *DashboardEchoHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)
	g := e.Group("/api")
	g.POST("/samples", h.Samples)
	g.GET("/heatmap", h.Heatmap)
	g.GET("/alerts", h.Alerts)
	g.GET("/markets", h.Markets)
	g.GET("/markets/:market_id/history", h.History)
}

func (h *DashboardEchoHandler) Samples(c echo.Context) error {
	defer observe("samples", time.Now())
	req := &models.SamplesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res := h.monitor.IngestEncoded(c.Request().Context(), "http", req.Samples)
	h.logger.Debug("samples ingested",
		xlogger.String("batch_id", res.BatchID),
		xlogger.Int("accepted", res.Accepted),
		xlogger.Int("rejected", len(res.Rejected)))
	return xhttp.SuccessResponse(c, res)
}

func (h *DashboardEchoHandler) Heatmap(c echo.Context) error {
	defer observe("heatmap", time.Now())
	data, err := h.dashboard.Heatmap(c.Request().Context())
	if err != nil {
		metrics.DashboardErrors.WithLabelValues("heatmap").Inc()
		h.logger.Error("heatmap usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, toAppError(err))
	}
	return xhttp.SuccessResponse(c, data)
}

func (h *DashboardEchoHandler) Alerts(c echo.Context) error {
	defer observe("alerts", time.Now())
	req := &models.AlertsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	alerts, used, err := h.dashboard.Alerts(c.Request().Context(), req.Overrides(h.dashboard.DefaultThresholds()))
	if err != nil {
		if !clientError(err) {
			metrics.DashboardErrors.WithLabelValues("alerts").Inc()
			h.logger.Error("alerts usecase error", xlogger.Error(err))
		}
		return xhttp.AppErrorResponse(c, toAppError(err))
	}
	return xhttp.SuccessResponse(c, models.AlertsResponse{Thresholds: used, Count: len(alerts), Alerts: alerts})
}

func (h *DashboardEchoHandler) Markets(c echo.Context) error {
	defer observe("markets", time.Now())
	rows := h.dashboard.Markets(c.Request().Context())
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *DashboardEchoHandler) History(c echo.Context) error {
	defer observe("history", time.Now())
	req := &models.HistoryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	tf := h.dashboard.DefaultTimeframe()
	if req.TF != "" {
		tf = domrepo.NormalizeTimeframe(req.TF)
	}

	res, err := h.dashboard.History(c.Request().Context(), req.MarketID, tf)
	if errors.Is(err, usecase.ErrMarketNotFound) {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("market %s has no history", req.MarketID).WithError(err))
	}
	if err != nil {
		if !clientError(err) {
			metrics.DashboardErrors.WithLabelValues("history").Inc()
			h.logger.Error("history usecase error",
				xlogger.String("market_id", req.MarketID),
				xlogger.Error(err))
		}
		return xhttp.AppErrorResponse(c, toAppError(err))
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=5")
	return xhttp.SuccessResponse(c, res)
}

func (h *DashboardEchoHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	deps := make(map[string]string, len(h.checks))
	status := http.StatusOK
	for name, hc := range h.checks {
		if err := hc.Health(ctx); err != nil {
			deps[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		deps[name] = "ok"
	}
	return c.JSON(status, map[string]interface{}{
		"status":  http.StatusText(status),
		"markets": len(h.dashboard.Markets(ctx)),
		"deps":    deps,
	})
}

func observe(endpoint string, start time.Time) {
	metrics.DashboardLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}
