// Package handler is the HTTP transport of the coupon API: a chi router with
// hand-written jx codecs over the coupon service and repository.
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/kart-coupons/internal/domain/coupon"
	"github.com/xenking/kart-coupons/pkg/httpmiddleware"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Handler serves coupon administration and cart pricing endpoints.
type Handler struct {
	coupons coupon.Repository
	service *coupon.Service
}

// NewHandler constructs a Handler. The service should read from the same
// repository, possibly through a cache.
func NewHandler(coupons coupon.Repository, service *coupon.Service) *Handler {
	return &Handler{
		coupons: coupons,
		service: service,
	}
}

// Mount registers the API routes on r. Cart endpoints additionally pass
// through cartLimit, which is typically a rate limiter; nil disables it.
func (h *Handler) Mount(r chi.Router, cartLimit httpmiddleware.Middleware) {
	r.Route("/coupons", func(r chi.Router) {
		r.Post("/", h.CreateCoupon)
		r.Get("/", h.ListCoupons)
		r.Get("/{id}", h.GetCoupon)
		r.Put("/{id}", h.UpdateCoupon)
		r.Delete("/{id}", h.DeleteCoupon)
	})

	r.Group(func(r chi.Router) {
		if cartLimit != nil {
			r.Use(cartLimit)
		}
		r.Post("/applicable-coupons", h.ApplicableCoupons)
		r.Post("/apply-coupon/{id}", h.ApplyCoupon)
	})
}

func writeJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
