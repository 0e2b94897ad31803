package api

import (
	models "PairPulse/internal/domain/models"
	"PairPulse/internal/usecase"
	xhttp "PairPulse/pkg/http"
	xlogger "PairPulse/pkg/logger"

	"github.com/labstack/echo/v4"
)

// AlertsHandler manages alert rule definitions.
type AlertsHandler struct {
	logger *xlogger.Logger
	uc     *usecase.AlertRulesUseCase
}

func NewAlertsHandler(logger *xlogger.Logger, uc *usecase.AlertRulesUseCase) *AlertsHandler {
	return &AlertsHandler{logger: logger.With("api.alerts"), uc: uc}
}

func (h *AlertsHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/alerts")
	g.GET("", h.List)
	g.POST("", h.Create)
	g.PATCH("/:id", h.Toggle)
	g.DELETE("/:id", h.Delete)
}

func (h *AlertsHandler) List(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.uc.List(c.Request().Context()))
}

func (h *AlertsHandler) Create(c echo.Context) error {
	req := &models.CreateAlertRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	rule, err := h.uc.Create(c.Request().Context(), usecase.CreateAlertParams{
		Name:       req.Name,
		Metric:     req.Metric,
		Operator:   req.Operator,
		Threshold:  req.Threshold,
		SymbolPair: req.SymbolPair,
		Enabled:    req.Enabled,
	})
	if err != nil {
		return h.fail(c, "create", err)
	}
	return xhttp.CreatedResponse(c, rule)
}

func (h *AlertsHandler) Toggle(c echo.Context) error {
	req := &models.ToggleAlertRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	rule, err := h.uc.SetEnabled(c.Request().Context(), req.ID, req.Enabled)
	if err != nil {
		return h.fail(c, "toggle", err)
	}
	return xhttp.SuccessResponse(c, rule)
}

func (h *AlertsHandler) Delete(c echo.Context) error {
	req := &models.AlertIDRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	if err := h.uc.Delete(c.Request().Context(), req.ID); err != nil {
		return h.fail(c, "delete", err)
	}
	return xhttp.NoContentResponse(c)
}

func (h *AlertsHandler) fail(c echo.Context, op string, err error) error {
	appErr := toAppError(err)
	if appErr.Status >= 500 {
		h.logger.Error(op+" usecase error", xlogger.Error(err))
	}
	return xhttp.AppErrorResponse(c, appErr)
}
