package api

import (
	"time"

	"PairPulse/internal/domain/errs"
	models "PairPulse/internal/domain/models"
	"PairPulse/internal/service/metrics"
	"PairPulse/internal/service/ratelimit"
	"PairPulse/internal/usecase"
	xhttp "PairPulse/pkg/http"
	xlogger "PairPulse/pkg/logger"

	"github.com/labstack/echo/v4"
)

// AnalyticsHandler serves the on-demand pair analytics endpoints.
type AnalyticsHandler struct {
	logger  *xlogger.Logger
	uc      *usecase.PairAnalyticsUseCase
	rl      *ratelimit.Limiter
	metrics *metrics.Analytics
}

func NewAnalyticsHandler(logger *xlogger.Logger, uc *usecase.PairAnalyticsUseCase, rl *ratelimit.Limiter, m *metrics.Analytics) *AnalyticsHandler {
	return &AnalyticsHandler{logger: logger.With("api.analytics"), uc: uc, rl: rl, metrics: m}
}

func (h *AnalyticsHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/analytics")
	g.POST("/compute", h.Compute)
	g.POST("/adf-test", h.ADFTest)
	g.GET("/correlation-matrix", h.CorrelationMatrix)
	g.GET("/export", h.Export)
}

// allow applies the per-client limiter; false means a response was written.
func (h *AnalyticsHandler) allow(c echo.Context, endpoint string) bool {
	if h.rl.Allow(c.RealIP() + ":" + endpoint) {
		return true
	}
	h.metrics.RateLimited(endpoint)
	h.logger.Warn("rate limited", xlogger.String("endpoint", endpoint), xlogger.String("remote", c.RealIP()))
	return false
}

func (h *AnalyticsHandler) fail(c echo.Context, endpoint string, start time.Time, err error) error {
	h.metrics.Observe(endpoint, start, string(kindOf(err)))
	appErr := toAppError(err)
	if appErr.Status >= 500 {
		h.logger.Error(endpoint+" usecase error", xlogger.Error(err))
	} else {
		h.logger.Debug(endpoint+" rejected", xlogger.Error(err))
	}
	return xhttp.AppErrorResponse(c, appErr)
}

func (h *AnalyticsHandler) Compute(c echo.Context) error {
	const endpoint = "compute"
	start := time.Now()
	req := &models.ComputeAnalyticsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if !h.allow(c, endpoint) {
		return xhttp.TooManyRequestsResponse(c)
	}

	res, err := h.uc.Compute(c.Request().Context(), usecase.PairQuery{
		SymbolA:    req.SymbolA,
		SymbolB:    req.SymbolB,
		Timeframe:  models.Timeframe(req.Timeframe),
		Regression: models.RegressionType(req.RegressionType),
		Window:     req.Window,
	})
	if err != nil {
		return h.fail(c, endpoint, start, err)
	}
	h.metrics.Observe(endpoint, start, "")
	return xhttp.SuccessResponse(c, res)
}

func (h *AnalyticsHandler) ADFTest(c echo.Context) error {
	const endpoint = "adf_test"
	start := time.Now()
	req := &models.ADFTestRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if !h.allow(c, endpoint) {
		return xhttp.TooManyRequestsResponse(c)
	}

	res, err := h.uc.ADF(c.Request().Context(), usecase.PairQuery{
		SymbolA:    req.SymbolA,
		SymbolB:    req.SymbolB,
		Timeframe:  models.Timeframe(req.Timeframe),
		Regression: models.RegressionType(req.RegressionType),
	})
	if err != nil {
		return h.fail(c, endpoint, start, err)
	}
	h.metrics.Observe(endpoint, start, "")
	return xhttp.SuccessResponse(c, res)
}

func (h *AnalyticsHandler) CorrelationMatrix(c echo.Context) error {
	start := time.Now()
	m := h.uc.CorrelationMatrix(c.Request().Context())
	h.metrics.Observe("correlation_matrix", start, "")
	return xhttp.SuccessResponse(c, m)
}

func (h *AnalyticsHandler) Export(c echo.Context) error {
	const endpoint = "export"
	start := time.Now()
	req := &models.ExportRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if !h.allow(c, endpoint) {
		return xhttp.TooManyRequestsResponse(c)
	}

	body, name, err := h.uc.Export(c.Request().Context(), usecase.PairQuery{
		SymbolA:   req.SymbolA,
		SymbolB:   req.SymbolB,
		Timeframe: models.Timeframe(req.Timeframe),
	})
	if err != nil {
		return h.fail(c, endpoint, start, err)
	}
	h.metrics.Observe(endpoint, start, "")
	return xhttp.CSVResponse(c, name, body)
}

func kindOf(err error) errs.Kind {
	if k := errs.KindOf(err); k != "" {
		return k
	}
	return "Internal"
}
