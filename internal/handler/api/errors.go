package api

import (
	"errors"
	"net/http"

	"ProbDesk/internal/domain/models"
	"ProbDesk/internal/usecase"
	xhttp "ProbDesk/pkg/http"
)

// toAppError maps domain failures onto client-facing errors. Anything it
// does not recognise is returned unchanged and renders as a 500.
func toAppError(err error) error {
	var (
		cerr *models.ConfigurationError
		verr *models.ValidationError
	)
	switch {
	case errors.As(err, &cerr):
		return xhttp.NewAppError("ERR_INVALID_THRESHOLDS", cerr.Field, cerr.Reason, http.StatusBadRequest).WithError(err)
	case errors.As(err, &verr):
		return xhttp.BadRequestError(verr.Field, verr.Reason).WithError(err)
	case errors.Is(err, usecase.ErrMarketNotFound):
		return xhttp.NotFoundErrorf("market has no history").WithError(err)
	}
	return err
}

// clientError reports whether err maps onto a 4xx.
func clientError(err error) bool {
	var appErr *xhttp.AppError
	return errors.As(toAppError(err), &appErr) && appErr.Status < http.StatusInternalServerError
}
