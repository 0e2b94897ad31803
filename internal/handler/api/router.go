package api

import (
	xhttp "PairPulse/pkg/http"

	"github.com/labstack/echo/v4"
)

// Router registers every API handler on one echo instance.
type Router struct {
	handlers []xhttp.Handler
}

func NewRouter(analytics *AnalyticsHandler, alerts *AlertsHandler, market *MarketHandler, stream *StreamHandler) *Router {
	return &Router{handlers: []xhttp.Handler{analytics, alerts, market, stream}}
}

func (r *Router) RegisterRoutes(e *echo.Echo) {
	for _, h := range r.handlers {
		h.RegisterRoutes(e)
	}
}

var _ xhttp.Handler = (*Router)(nil)
