package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/kart-coupons/internal/domain/cart"
	"github.com/xenking/kart-coupons/internal/domain/coupon"
	"github.com/xenking/kart-coupons/pkg/httpmiddleware"
)

// RequestError reports a request body or path that could not be decoded.
type RequestError struct {
	Err error
}

func (e *RequestError) Error() string {
	return "bad request: " + e.Err.Error()
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

func badRequest(err error, msg string) error {
	return &RequestError{Err: errors.Wrap(err, msg)}
}

// mapError converts domain errors into HTTP error responses.
func mapError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		reqErr *RequestError
		valErr *cart.ValidationError
	)
	switch {
	case errors.As(err, &reqErr), errors.As(err, &valErr), errors.Is(err, coupon.ErrInvalidVariant):
		httpmiddleware.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, coupon.ErrCouponNotFound):
		httpmiddleware.WriteError(w, http.StatusNotFound, "coupon not found")
	case errors.Is(err, coupon.ErrCouponNotApplicable):
		httpmiddleware.WriteError(w, http.StatusBadRequest, notApplicableMessage(err))
	case errors.Is(err, coupon.ErrMalformedVariant):
		zctx.From(r.Context()).Warn("Malformed coupon", zap.Error(err))
		httpmiddleware.WriteError(w, http.StatusUnprocessableEntity, "coupon details are malformed")
	case errors.Is(err, coupon.ErrStoreUnavailable):
		zctx.From(r.Context()).Error("Coupon store unavailable", zap.Error(err))
		httpmiddleware.WriteError(w, http.StatusServiceUnavailable, "coupon store unavailable")
	default:
		zctx.From(r.Context()).Error("Internal error", zap.Error(err))
		httpmiddleware.WriteError(w, http.StatusInternalServerError, "internal error")
	}
}

func notApplicableMessage(err error) string {
	var na *coupon.NotApplicableError
	if errors.As(err, &na) && na.Reason != coupon.ReasonNone {
		return "coupon cannot be applied: " + string(na.Reason)
	}
	return "coupon cannot be applied"
}
