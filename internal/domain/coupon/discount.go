package coupon

import (
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-coupons/internal/domain/cart"
)

// ComputeDiscount returns the discount v yields for c. The result is never
// negative and is rounded to cart.Precision. It does not look at validity.
func ComputeDiscount(v Variant, c cart.Cart) decimal.Decimal {
	switch v := v.(type) {
	case CartWise:
		return cartWiseDiscount(v, c)
	case ProductWise:
		_, amount := productWiseDiscount(v, c)
		return amount
	case BxGy:
		sum := cart.Zero
		for _, g := range bxgyGrants(v, c) {
			sum = sum.Add(g.amount)
		}
		return sum
	default:
		return cart.Zero
	}
}

func cartWiseDiscount(v CartWise, c cart.Cart) decimal.Decimal {
	subtotal := c.Subtotal()
	if subtotal.LessThan(v.Threshold) {
		return cart.Zero
	}
	return cart.SettleWithin(cart.Cap(cart.Percent(subtotal, v.Percent), v.MaxDiscount), subtotal)
}

// productWiseDiscount returns the index of the discounted item and the
// discount, or -1 and zero when the product is not in the cart.
func productWiseDiscount(v ProductWise, c cart.Cart) (int, decimal.Decimal) {
	idx := c.Find(v.ProductID)
	if idx < 0 {
		return -1, cart.Zero
	}
	line := c.Items[idx].LineTotal()
	return idx, cart.SettleWithin(cart.Cap(cart.Percent(line, v.Percent), v.MaxDiscount), line)
}

// grant is the reward given on one cart item.
type grant struct {
	index  int
	units  int
	amount decimal.Decimal
}

// bxgyApplications returns how many times the offer applies to c.
func bxgyApplications(v BxGy, c cart.Cart) int {
	if len(v.Buy) == 0 {
		return 0
	}
	maxSets := -1
	for _, req := range v.Buy {
		sets := 0
		if idx := c.Find(req.ProductID); idx >= 0 && req.Quantity > 0 {
			sets = c.Items[idx].Quantity / req.Quantity
		}
		if maxSets < 0 || sets < maxSets {
			maxSets = sets
		}
	}
	return min(maxSets, v.RepetitionLimit)
}

// bxgyGrants returns the free units given per reward item. Rewards whose
// product is absent from the cart are omitted. A cart unit is given away at
// most once, even when several rewards name the same product.
func bxgyGrants(v BxGy, c cart.Cart) []grant {
	applications := bxgyApplications(v, c)
	if applications <= 0 {
		return nil
	}
	grants := make([]grant, 0, len(v.Get))
	remaining := make(map[int]int, len(v.Get))
	for _, reward := range v.Get {
		idx := c.Find(reward.ProductID)
		if idx < 0 {
			continue
		}
		item := c.Items[idx]
		avail, ok := remaining[idx]
		if !ok {
			avail = item.Quantity
		}
		units := rewardUnits(reward.Quantity, applications, avail)
		if units <= 0 {
			continue
		}
		remaining[idx] = avail - units
		raw := item.UnitPrice.Mul(decimal.NewFromInt(int64(units)))
		grants = append(grants, grant{
			index:  idx,
			units:  units,
			amount: cart.SettleWithin(raw, raw),
		})
	}
	return grants
}

// rewardUnits returns min(perApplication*applications, avail) without
// overflowing.
func rewardUnits(perApplication, applications, avail int) int {
	if perApplication <= 0 || avail <= 0 {
		return 0
	}
	if perApplication > avail/applications {
		return avail
	}
	return perApplication * applications
}
