package coupon

import "time"

// Reason explains why a coupon cannot be used.
type Reason string

const (
	ReasonNone       Reason = ""
	ReasonInactive   Reason = "inactive"
	ReasonExpired    Reason = "expired"
	ReasonExhausted  Reason = "usage limit reached"
	ReasonNoDiscount Reason = "no discount for cart"
)

// ValidAt reports whether the limits allow a use at now. A coupon expiring
// exactly at now is still valid. A usage limit of zero allows no uses.
func (l Limits) ValidAt(now time.Time) bool {
	return l.check(now) == ReasonNone
}

func (l Limits) check(now time.Time) Reason {
	if l.ExpiresAt != nil && now.After(*l.ExpiresAt) {
		return ReasonExpired
	}
	if l.UsageLimit != nil && l.UsedCount >= *l.UsageLimit {
		return ReasonExhausted
	}
	return ReasonNone
}

// IsValid reports whether c may be used at now with respect to its expiry and
// usage limit. It does not look at IsActive.
func IsValid(c Coupon, now time.Time) bool {
	return c.ValidAt(now)
}

// Check returns the first reason c cannot be used at now, or ReasonNone.
func Check(c Coupon, now time.Time) Reason {
	if !c.IsActive {
		return ReasonInactive
	}
	return c.check(now)
}

// Check returns the first reason the stored coupon cannot be used at now,
// without parsing its payload.
func (r Record) Check(now time.Time) Reason {
	if !r.IsActive {
		return ReasonInactive
	}
	return r.check(now)
}
