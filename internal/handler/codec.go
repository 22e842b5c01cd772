package handler

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-coupons/internal/domain/cart"
	"github.com/xenking/kart-coupons/internal/domain/coupon"
)

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, badRequest(err, "read body")
	}
	return body, nil
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, &RequestError{Err: errors.Errorf("invalid coupon id %q", chi.URLParam(r, "id"))}
	}
	return id, nil
}

// decodeCartRequest parses {"cart":{"items":[...]}} and validates the cart.
func decodeCartRequest(data []byte) (cart.Cart, error) {
	var (
		c    cart.Cart
		seen bool
	)
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		if key != "cart" {
			return d.Skip()
		}
		seen = true
		return d.Obj(func(d *jx.Decoder, key string) error {
			if key != "items" {
				return d.Skip()
			}
			return d.Arr(func(d *jx.Decoder) error {
				item, err := decodeItem(d)
				if err != nil {
					return errors.Wrapf(err, "items[%d]", len(c.Items))
				}
				c.Items = append(c.Items, item)
				return nil
			})
		})
	})
	if err != nil {
		return cart.Cart{}, badRequest(err, "decode cart")
	}
	if !seen {
		return cart.Cart{}, &RequestError{Err: errors.New("cart is required")}
	}
	if err := c.Validate(); err != nil {
		return cart.Cart{}, err
	}
	return c, nil
}

func decodeItem(d *jx.Decoder) (cart.Item, error) {
	var (
		item                     cart.Item
		hasID, hasQty, hasPrice bool
	)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "product_id":
			hasID = true
			item.ProductID, err = d.Int64()
		case "quantity":
			hasQty = true
			item.Quantity, err = d.Int()
		case "price":
			hasPrice = true
			item.UnitPrice, err = readDecimal(d)
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, key)
		}
		return nil
	})
	if err != nil {
		return cart.Item{}, err
	}
	switch {
	case !hasID:
		return cart.Item{}, errors.New("product_id is required")
	case !hasQty:
		return cart.Item{}, errors.New("quantity is required")
	case !hasPrice:
		return cart.Item{}, errors.New("price is required")
	}
	return item, nil
}

// readDecimal accepts a JSON number or a numeric string within
// cart.MaxAmount.
func readDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	if d.Next() == jx.String {
		s, err := d.Str()
		if err != nil {
			return decimal.Decimal{}, err
		}
		return cart.ParseAmount(s)
	}
	n, err := d.Num()
	if err != nil {
		return decimal.Decimal{}, err
	}
	return cart.ParseAmount(n.String())
}

func encodeMoney(e *jx.Encoder, d decimal.Decimal) {
	e.Raw([]byte(d.StringFixed(cart.Precision)))
}

func encodeCoupon(e *jx.Encoder, rec coupon.Record) {
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(rec.ID)
	e.FieldStart("type")
	e.Str(string(rec.Kind))
	e.FieldStart("details")
	e.Raw(rec.Details)
	e.FieldStart("is_active")
	e.Bool(rec.IsActive)
	e.FieldStart("created_at")
	e.Str(rec.CreatedAt.UTC().Format(time.RFC3339))
	e.FieldStart("expires_at")
	if rec.ExpiresAt != nil {
		e.Str(rec.ExpiresAt.UTC().Format(time.RFC3339))
	} else {
		e.Null()
	}
	e.FieldStart("usage_limit")
	if rec.UsageLimit != nil {
		e.Int(*rec.UsageLimit)
	} else {
		e.Null()
	}
	e.FieldStart("used_count")
	e.Int(rec.UsedCount)
	e.ObjEnd()
}

func encodeApplicable(e *jx.Encoder, found []coupon.Applicable) {
	e.ObjStart()
	e.FieldStart("applicable_coupons")
	e.ArrStart()
	for _, a := range found {
		e.ObjStart()
		e.FieldStart("coupon_id")
		e.Int64(a.CouponID)
		e.FieldStart("type")
		e.Str(string(a.Kind))
		e.FieldStart("discount")
		encodeMoney(e, a.Discount)
		e.ObjEnd()
	}
	e.ArrEnd()
	e.ObjEnd()
}

func encodeUpdatedCart(e *jx.Encoder, u *coupon.UpdatedCart) {
	e.ObjStart()
	e.FieldStart("updated_cart")
	e.ObjStart()
	e.FieldStart("items")
	e.ArrStart()
	for _, line := range u.Items {
		e.ObjStart()
		e.FieldStart("product_id")
		e.Int64(line.ProductID)
		e.FieldStart("quantity")
		e.Int(line.Quantity)
		e.FieldStart("price")
		e.Raw([]byte(line.UnitPrice.String()))
		e.FieldStart("total_discount")
		encodeMoney(e, line.Discount)
		e.ObjEnd()
	}
	e.ArrEnd()
	e.FieldStart("total_price")
	encodeMoney(e, u.Subtotal)
	e.FieldStart("cart_discount")
	encodeMoney(e, u.CartDiscount)
	e.FieldStart("total_discount")
	encodeMoney(e, u.TotalDiscount)
	e.FieldStart("final_price")
	encodeMoney(e, u.FinalPrice)
	e.ObjEnd()
	e.ObjEnd()
}
