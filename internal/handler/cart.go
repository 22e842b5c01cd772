package handler

import (
	"net/http"

	"github.com/go-faster/jx"
)

// ApplicableCoupons handles POST /applicable-coupons.
func (h *Handler) ApplicableCoupons(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		mapError(w, r, err)
		return
	}
	c, err := decodeCartRequest(body)
	if err != nil {
		mapError(w, r, err)
		return
	}
	found, err := h.service.ApplicableCoupons(r.Context(), c)
	if err != nil {
		mapError(w, r, err)
		return
	}

	var e jx.Encoder
	encodeApplicable(&e, found)
	writeJSON(w, http.StatusOK, e.Bytes())
}

// ApplyCoupon handles POST /apply-coupon/{id} and records one coupon use.
func (h *Handler) ApplyCoupon(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		mapError(w, r, err)
		return
	}
	body, err := readBody(w, r)
	if err != nil {
		mapError(w, r, err)
		return
	}
	c, err := decodeCartRequest(body)
	if err != nil {
		mapError(w, r, err)
		return
	}
	updated, err := h.service.ApplyCoupon(r.Context(), id, c)
	if err != nil {
		mapError(w, r, err)
		return
	}

	var e jx.Encoder
	encodeUpdatedCart(&e, updated)
	writeJSON(w, http.StatusOK, e.Bytes())
}
