package handler

import (
	"net/http"

	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/kart-coupons/internal/domain/coupon"
)

// CreateCoupon handles POST /coupons.
func (h *Handler) CreateCoupon(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		mapError(w, r, err)
		return
	}
	draft, err := coupon.UnmarshalDraft(body)
	if err != nil {
		mapError(w, r, err)
		return
	}
	rec, err := h.coupons.Create(r.Context(), draft)
	if err != nil {
		mapError(w, r, err)
		return
	}
	zctx.From(r.Context()).Info("Coupon created",
		zap.Int64("coupon_id", rec.ID),
		zap.String("type", string(rec.Kind)),
	)

	var e jx.Encoder
	encodeCoupon(&e, rec)
	writeJSON(w, http.StatusCreated, e.Bytes())
}

// ListCoupons handles GET /coupons. Only active coupons are listed.
func (h *Handler) ListCoupons(w http.ResponseWriter, r *http.Request) {
	recs, err := h.coupons.List(r.Context())
	if err != nil {
		mapError(w, r, err)
		return
	}

	var e jx.Encoder
	e.ArrStart()
	for _, rec := range recs {
		encodeCoupon(&e, rec)
	}
	e.ArrEnd()
	writeJSON(w, http.StatusOK, e.Bytes())
}

// GetCoupon handles GET /coupons/{id}.
func (h *Handler) GetCoupon(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		mapError(w, r, err)
		return
	}
	rec, err := h.coupons.Get(r.Context(), id)
	if err != nil {
		mapError(w, r, err)
		return
	}

	var e jx.Encoder
	encodeCoupon(&e, rec)
	writeJSON(w, http.StatusOK, e.Bytes())
}

// UpdateCoupon handles PUT /coupons/{id}. The usage count is kept.
func (h *Handler) UpdateCoupon(w http.ResponseWriter, r *http.Request) {
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
	draft, err := coupon.UnmarshalDraft(body)
	if err != nil {
		mapError(w, r, err)
		return
	}
	rec, err := h.coupons.Update(r.Context(), id, draft)
	if err != nil {
		mapError(w, r, err)
		return
	}

	var e jx.Encoder
	encodeCoupon(&e, rec)
	writeJSON(w, http.StatusOK, e.Bytes())
}

// DeleteCoupon handles DELETE /coupons/{id} as a soft delete.
func (h *Handler) DeleteCoupon(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		mapError(w, r, err)
		return
	}
	if err := h.coupons.Deactivate(r.Context(), id); err != nil {
		mapError(w, r, err)
		return
	}
	zctx.From(r.Context()).Info("Coupon deactivated", zap.Int64("coupon_id", id))

	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("message")
	e.Str("coupon deleted")
	e.ObjEnd()
	writeJSON(w, http.StatusOK, e.Bytes())
}
