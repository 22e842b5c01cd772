package coupon

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-coupons/internal/domain/cart"
)

// UpdatedCart is a cart with a coupon applied.
//
// Cart-wise discounts are not attributed to items: they are reported in
// CartDiscount. TotalDiscount is CartDiscount plus the sum of item discounts.
type UpdatedCart struct {
	Items         []cart.LineItem
	Subtotal      decimal.Decimal
	CartDiscount  decimal.Decimal
	TotalDiscount decimal.Decimal
	FinalPrice    decimal.Decimal
}

// Apply applies c to a copy of crt. It fails with an error matching
// ErrCouponNotApplicable when the coupon is inactive, not valid at now, or
// gives no discount. crt is never modified.
func Apply(c Coupon, crt cart.Cart, now time.Time) (UpdatedCart, error) {
	if reason := Check(c, now); reason != ReasonNone {
		return UpdatedCart{}, &NotApplicableError{CouponID: c.ID, Reason: reason}
	}

	lines := crt.Lines()
	cartDiscount := cart.Zero
	switch v := c.Variant.(type) {
	case CartWise:
		cartDiscount = cartWiseDiscount(v, crt)
	case ProductWise:
		if idx, amount := productWiseDiscount(v, crt); idx >= 0 {
			lines[idx].Discount = amount
		}
	case BxGy:
		for _, g := range bxgyGrants(v, crt) {
			lines[g.index].Discount = lines[g.index].Discount.Add(g.amount)
		}
	default:
		return UpdatedCart{}, &MalformedVariantError{Err: errors.Errorf("unsupported variant %T", c.Variant)}
	}

	total := cartDiscount
	for _, line := range lines {
		total = total.Add(line.Discount)
	}
	if !total.IsPositive() {
		return UpdatedCart{}, &NotApplicableError{CouponID: c.ID, Reason: ReasonNoDiscount}
	}

	subtotal := crt.Subtotal()
	return UpdatedCart{
		Items:         lines,
		Subtotal:      subtotal,
		CartDiscount:  cartDiscount,
		TotalDiscount: total,
		FinalPrice:    cart.FloorAtZero(subtotal.Sub(total)),
	}, nil
}
