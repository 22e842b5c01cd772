//go:build integration

package integration

import (
	"fmt"
	"net/http"
	"sync"
	"testing"
)

func TestCouponLifecycle(t *testing.T) {
	created := createCoupon(t, `{"type":"product-wise","details":{"product_id":501,"discount":20,"max_discount":15},"usage_limit":3}`)
	if created.ID == 0 || !created.IsActive || created.Type != "product-wise" {
		t.Fatalf("unexpected coupon: %+v", created)
	}
	if created.UsageLimit == nil || *created.UsageLimit != 3 {
		t.Fatalf("usage_limit: got %v, want 3", created.UsageLimit)
	}

	path := fmt.Sprintf("/coupons/%d", created.ID)

	resp := do(t, http.MethodGet, path, nil)
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = do(t, http.MethodPut, path, []byte(`x`))
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid body, got %d", resp.StatusCode)
	}

	resp = do(t, http.MethodDelete, path, nil)
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = do(t, http.MethodGet, path, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", resp.StatusCode)
	}

	list := do(t, http.MethodGet, "/coupons", nil)
	defer list.Body.Close()
	for _, c := range decodeJSON[[]couponResponse](t, list) {
		if c.ID == created.ID {
			t.Fatalf("deleted coupon %d still listed", c.ID)
		}
	}
}

func TestApplicableAndApply(t *testing.T) {
	pw := createCoupon(t, `{"type":"product-wise","details":{"product_id":601,"discount":20,"max_discount":15}}`)
	bxgy := createCoupon(t, `{"type":"bxgy","details":{"buy_products":[{"product_id":602,"quantity":2}],"get_products":[{"product_id":603,"quantity":1}],"repetition_limit":5}}`)

	cart := newCart(
		cartItem{ProductID: 601, Quantity: 2, Price: 50},
		cartItem{ProductID: 602, Quantity: 3, Price: 10},
		cartItem{ProductID: 603, Quantity: 1, Price: 10},
	)

	resp := do(t, http.MethodPost, "/applicable-coupons", cart)
	defer resp.Body.Close()
	expectStatus(t, resp, http.StatusOK)

	found := map[int64]float64{}
	for _, a := range decodeJSON[applicableResponse](t, resp).ApplicableCoupons {
		found[a.CouponID] = a.Discount
	}
	if got := found[pw.ID]; got != 15 {
		t.Errorf("product-wise discount: got %v, want 15", got)
	}
	if got := found[bxgy.ID]; got != 10 {
		t.Errorf("bxgy discount: got %v, want 10", got)
	}

	apply := do(t, http.MethodPost, fmt.Sprintf("/apply-coupon/%d", bxgy.ID), cart)
	defer apply.Body.Close()
	expectStatus(t, apply, http.StatusOK)

	updated := decodeJSON[updatedCartResponse](t, apply).UpdatedCart
	if updated.TotalPrice != 140 || updated.TotalDiscount != 10 || updated.FinalPrice != 130 {
		t.Fatalf("unexpected totals: %+v", updated)
	}
	if len(updated.Items) != 3 || updated.Items[2].TotalDiscount != 10 {
		t.Fatalf("unexpected items: %+v", updated.Items)
	}
}

func TestApplyRespectsUsageLimit(t *testing.T) {
	const (
		limit    = 5
		attempts = 30
	)
	created := createCoupon(t, fmt.Sprintf(`{"type":"product-wise","details":{"product_id":701,"discount":10},"usage_limit":%d}`, limit))
	cart := newCart(cartItem{ProductID: 701, Quantity: 1, Price: 100})
	path := fmt.Sprintf("/apply-coupon/%d", created.ID)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		statuses = map[int]int{}
	)
	for range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp := do(t, http.MethodPost, path, cart)
			resp.Body.Close()
			mu.Lock()
			statuses[resp.StatusCode]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	if statuses[http.StatusOK] != limit || statuses[http.StatusBadRequest] != attempts-limit {
		t.Fatalf("unexpected statuses: %v", statuses)
	}

	resp := do(t, http.MethodGet, fmt.Sprintf("/coupons/%d", created.ID), nil)
	defer resp.Body.Close()
	if got := decodeJSON[couponResponse](t, resp).UsedCount; got != limit {
		t.Fatalf("used_count: got %d, want %d", got, limit)
	}
}

func TestApplyErrors(t *testing.T) {
	cart := newCart(cartItem{ProductID: 801, Quantity: 1, Price: 10})

	for _, tt := range []struct {
		name string
		path string
		body any
		want int
	}{
		{name: "UnknownCoupon", path: "/apply-coupon/999999", body: cart, want: http.StatusNotFound},
		{name: "BadID", path: "/apply-coupon/abc", body: cart, want: http.StatusBadRequest},
		{name: "InvalidCart", path: "/applicable-coupons", body: newCart(cartItem{ProductID: 801, Quantity: -1, Price: 10}), want: http.StatusBadRequest},
	} {
		t.Run(tt.name, func(t *testing.T) {
			resp := do(t, http.MethodPost, tt.path, tt.body)
			defer resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, resp.StatusCode)
			}
			if body := decodeJSON[errorResponse](t, resp); body.Code != tt.want || body.Message == "" {
				t.Fatalf("unexpected error body: %+v", body)
			}
		})
	}
}
