package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	"ProbDesk/internal/domain/models"
	"ProbDesk/internal/service/metrics"
	"ProbDesk/internal/service/ratelimit"
	"ProbDesk/internal/services/relay"
	xlogger "ProbDesk/pkg/logger"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// relayError is the only error shape the relay returns on its own behalf.
type relayError struct {
	Error string `json:"error"`
}

var (
	internalErrorBody = relayError{Error: "Internal Server Error"}
	limitedBody       = relayError{Error: "Too Many Requests"}
)

// RelayEchoHandler streams chat completions from the inference backend.
type RelayEchoHandler struct {
	logger  *xlogger.Logger
	relay   *relay.Relay
	limiter *ratelimit.Limiter
	rps     float64
	burst   float64
}

type RelayHandlerOption func(*RelayEchoHandler)

// WithRateLimit limits relays per remote address. rps <= 0 disables it.
func WithRateLimit(l *ratelimit.Limiter, rps, burst float64) RelayHandlerOption {
	return func(h *RelayEchoHandler) {
		if rps <= 0 {
			return
		}
		h.limiter = l
		h.rps = rps
		h.burst = burst
	}
}

func NewRelayEchoHandler(logger *xlogger.Logger, r *relay.Relay, opts ...RelayHandlerOption) *RelayEchoHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	h := &RelayEchoHandler{logger: logger, relay: r}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *RelayEchoHandler) RegisterRoutes(e *echo.Echo) {
	e.POST("/api/chat/stream", h.Stream)
}

func (h *RelayEchoHandler) Stream(c echo.Context) error {
	start := time.Now()
	req := c.Request()
	res := c.Response()

	reqID := req.Header.Get(echo.HeaderXRequestID)
	if reqID == "" {
		reqID = uuid.NewString()
	}
	res.Header().Set(echo.HeaderXRequestID, reqID)
	log := h.logger.With(xlogger.String("request_id", reqID))

	if h.limiter != nil && !h.limiter.Allow(c.RealIP(), h.burst, h.rps) {
		h.done("limited", start)
		log.Warn("relay rate limited", xlogger.String("remote_ip", c.RealIP()))
		return c.JSON(http.StatusTooManyRequests, limitedBody)
	}

	body, err := h.relay.ReadBody(req.Body)
	if err != nil {
		h.done("failed", start)
		log.Error("relay request rejected", xlogger.Error(err))
		return c.JSON(http.StatusInternalServerError, internalErrorBody)
	}

	upstream, err := h.relay.Open(req.Context(), relay.Request{
		Body:          body,
		Authorization: req.Header.Get(echo.HeaderAuthorization),
		RequestID:     reqID,
	})
	if err != nil {
		var uerr *models.UpstreamError
		if errors.As(err, &uerr) && uerr.Passthrough() {
			return h.passthrough(c, log, uerr.Response, start)
		}
		h.done("failed", start)
		log.Error("relay upstream unreachable",
			xlogger.String("endpoint", h.relay.Endpoint()),
			xlogger.Error(err))
		return c.JSON(http.StatusInternalServerError, internalErrorBody)
	}
	defer upstream.Body.Close()

	metrics.RelayInFlight.Inc()
	defer metrics.RelayInFlight.Dec()

	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set(echo.HeaderCacheControl, "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.WriteHeader(http.StatusOK)
	res.Flush()

	n, err := h.relay.Pipe(res, upstream.Body)
	metrics.RelayBytes.Add(float64(n))
	h.done("streamed", start)
	if err != nil {
		// headers are already out; the stream just ends early
		log.Warn("relay stream interrupted",
			xlogger.Int64("bytes", n),
			xlogger.Error(err))
		return nil
	}
	log.Debug("relay stream complete",
		xlogger.Int64("bytes", n),
		xlogger.Duration("duration_ms", time.Since(start)))
	return nil
}

// passthrough forwards a non-success upstream answer unchanged.
func (h *RelayEchoHandler) passthrough(c echo.Context, log *xlogger.Logger, upstream *http.Response, start time.Time) error {
	defer upstream.Body.Close()
	res := c.Response()
	if ct := upstream.Header.Get(echo.HeaderContentType); ct != "" {
		res.Header().Set(echo.HeaderContentType, ct)
	}
	res.WriteHeader(upstream.StatusCode)
	n, err := io.Copy(res, upstream.Body)
	metrics.RelayBytes.Add(float64(n))
	h.done("passthrough", start)
	log.Warn("relay upstream error passed through",
		xlogger.Int("status", upstream.StatusCode),
		xlogger.Int64("bytes", n))
	if err != nil {
		log.Warn("relay passthrough copy failed", xlogger.Error(err))
	}
	return nil
}

func (h *RelayEchoHandler) done(outcome string, start time.Time) {
	metrics.RelayRequests.WithLabelValues(outcome).Inc()
	metrics.RelayDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
}
