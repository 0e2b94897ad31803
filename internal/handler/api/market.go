package api

import (
	"net/http"

	models "PairPulse/internal/domain/models"
	"PairPulse/internal/usecase"
	xhttp "PairPulse/pkg/http"
	xlogger "PairPulse/pkg/logger"

	"github.com/labstack/echo/v4"
)

// MarketHandler exposes recent bars and service health.
type MarketHandler struct {
	logger *xlogger.Logger
	uc     *usecase.MarketUseCase
}

func NewMarketHandler(logger *xlogger.Logger, uc *usecase.MarketUseCase) *MarketHandler {
	return &MarketHandler{logger: logger.With("api.market"), uc: uc}
}

func (h *MarketHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Health)
	e.GET("/api/bars", h.Bars)
}

// Health is served without the response envelope so probes can read it directly.
func (h *MarketHandler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, h.uc.Health(c.Request().Context()))
}

func (h *MarketHandler) Bars(c echo.Context) error {
	req := &models.BarsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	res, err := h.uc.GetBars(c.Request().Context(), usecase.GetBarsParams{
		Symbol:    req.Symbol,
		Timeframe: models.Timeframe(req.TF),
		Limit:     req.N,
	})
	if err != nil {
		appErr := toAppError(err)
		if appErr.Status >= 500 {
			h.logger.Error("bars usecase error", xlogger.Error(err))
		}
		return xhttp.AppErrorResponse(c, appErr)
	}
	return xhttp.SuccessResponse(c, res)
}
