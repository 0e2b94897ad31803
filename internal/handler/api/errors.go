package api

import (
	"context"
	"errors"
	"net/http"

	"PairPulse/internal/domain/errs"
	xhttp "PairPulse/pkg/http"
)

// toAppError maps analytics failures onto transport errors. Unknown errors
// become a 500 without leaking details.
func toAppError(err error) *xhttp.AppError {
	var appErr *xhttp.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	var e *errs.Error
	if !errors.As(err, &e) {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return xhttp.ServiceUnavailableError("request cancelled").WithError(err)
		}
		return xhttp.InternalError("internal error").WithError(err)
	}

	var out *xhttp.AppError
	switch e.Kind {
	case errs.KindInsufficientData:
		out = xhttp.UnprocessableError("ERR_INSUFFICIENT_DATA", e.Error())
	case errs.KindSingularInput:
		out = xhttp.UnprocessableError("ERR_SINGULAR_INPUT", e.Error())
	case errs.KindInvalidRequest, errs.KindInvalidTick:
		out = xhttp.BadRequestError(e.Error())
	case errs.KindNotFound:
		out = xhttp.NotFoundError(e.Error())
	case errs.KindUpstreamUnavailable:
		out = xhttp.ServiceUnavailableError(e.Error())
	default:
		out = xhttp.NewAppError("ERR_"+string(e.Kind), "", e.Error(), http.StatusInternalServerError)
	}
	return out.WithParams(e.Params()).WithError(err)
}
