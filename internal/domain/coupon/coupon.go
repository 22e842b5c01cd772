package coupon

import (
	"context"
	"math"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrCouponNotFound is returned when the requested coupon id does not exist.
	ErrCouponNotFound = errors.New("coupon not found")
	// ErrCouponNotApplicable is returned when a coupon exists but fails validity
	// checks or yields no discount for the cart. It is an expected business
	// outcome, not a fault.
	ErrCouponNotApplicable = errors.New("coupon cannot be applied")
	// ErrMalformedVariant is returned when a stored coupon payload does not
	// decode into the shape its kind names.
	ErrMalformedVariant = errors.New("malformed coupon variant payload")
	// ErrInvalidVariant is returned when a variant violates its parameter
	// constraints (percent out of range, repetition limit below 1, ...).
	ErrInvalidVariant = errors.New("invalid coupon variant")
	// ErrStoreUnavailable marks failures of the coupon store itself.
	ErrStoreUnavailable = errors.New("coupon store unavailable")
)

// Limits holds the constraints that gate whether a coupon may still be used.
// Nil pointers mean "no constraint".
type Limits struct {
	ExpiresAt  *time.Time
	UsageLimit *int
	UsedCount  int
}

// Coupon is an immutable snapshot of a stored coupon with its variant parsed.
type Coupon struct {
	Limits

	ID        int64
	Variant   Variant
	IsActive  bool
	CreatedAt time.Time
}

// Kind returns the variant kind of the coupon.
func (c Coupon) Kind() Kind {
	return c.Variant.Kind()
}

// Record is a coupon row as the store holds it: the variant payload is raw
// JSON that has not been parsed yet.
type Record struct {
	Limits

	ID        int64
	Kind      Kind
	Details   []byte
	IsActive  bool
	CreatedAt time.Time
}

// Coupon parses the record payload. It returns an error wrapping
// ErrMalformedVariant when the payload does not match the record kind or
// violates the variant constraints.
func (r Record) Coupon() (Coupon, error) {
	v, err := DecodeVariant(r.Kind, r.Details)
	if err != nil {
		return Coupon{}, errors.Wrapf(err, "coupon %d", r.ID)
	}
	if err := ValidateVariant(v); err != nil {
		return Coupon{}, errors.Wrapf(&MalformedVariantError{Kind: r.Kind, Err: err}, "coupon %d", r.ID)
	}
	return Coupon{
		Limits:    r.Limits,
		ID:        r.ID,
		Variant:   v,
		IsActive:  r.IsActive,
		CreatedAt: r.CreatedAt,
	}, nil
}

// MaxUsageLimit is the largest usage limit a coupon may carry. It matches
// the INTEGER usage_limit column.
const MaxUsageLimit = math.MaxInt32

// Draft is the author-supplied part of a coupon, used to create or replace one.
type Draft struct {
	Variant    Variant
	ExpiresAt  *time.Time
	UsageLimit *int
}

// Validate checks the variant parameters and the usage limit.
func (d Draft) Validate() error {
	if d.Variant == nil {
		return &InvalidVariantError{Err: errors.New("variant is required")}
	}
	if d.UsageLimit != nil && (*d.UsageLimit < 0 || *d.UsageLimit > MaxUsageLimit) {
		return &InvalidVariantError{
			Kind: d.Variant.Kind(),
			Err:  errors.Errorf("usage_limit must be between 0 and %d", MaxUsageLimit),
		}
	}
	return ValidateVariant(d.Variant)
}

// Applicable describes a coupon that yields a positive discount for a cart.
type Applicable struct {
	CouponID int64
	Kind     Kind
	Discount decimal.Decimal
}

// Store is the narrow contract the engine needs from coupon persistence.
type Store interface {
	// FetchActive returns every active coupon in a stable order.
	FetchActive(ctx context.Context) ([]Record, error)
	// Fetch returns the coupon with the given id, active or not. It returns
	// ErrCouponNotFound when no such coupon exists.
	Fetch(ctx context.Context, id int64) (Record, error)
	// IncrementUsage adds one use to the coupon. Implementations must
	// serialize the check-and-increment per coupon: the coupon is re-checked
	// against now under the same lock, and ErrCouponNotApplicable is returned
	// when it is no longer active or valid.
	IncrementUsage(ctx context.Context, id int64, now time.Time) error
}

// Repository extends Store with authoring operations.
type Repository interface {
	Store

	Create(ctx context.Context, d Draft) (Record, error)
	// List returns active coupons ordered by id.
	List(ctx context.Context) ([]Record, error)
	// Get returns an active coupon. Inactive and unknown ids give
	// ErrCouponNotFound.
	Get(ctx context.Context, id int64) (Record, error)
	// Update replaces the variant, expiry and usage limit, keeping the usage
	// count. It returns ErrCouponNotFound for unknown ids.
	Update(ctx context.Context, id int64, d Draft) (Record, error)
	// Deactivate soft-deletes the coupon.
	Deactivate(ctx context.Context, id int64) error
}

// StoreError wraps a failure of the backing store. It matches
// ErrStoreUnavailable with errors.Is.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// Is reports ErrStoreUnavailable as a match.
func (e *StoreError) Is(target error) bool {
	return target == ErrStoreUnavailable
}

// InvalidVariantError reports a variant that violates its constraints.
type InvalidVariantError struct {
	Kind Kind
	Err  error
}

func (e *InvalidVariantError) Error() string {
	if e.Kind == "" {
		return "invalid coupon: " + e.Err.Error()
	}
	return "invalid " + string(e.Kind) + " coupon: " + e.Err.Error()
}

func (e *InvalidVariantError) Unwrap() error {
	return e.Err
}

// Is reports ErrInvalidVariant as a match.
func (e *InvalidVariantError) Is(target error) bool {
	return target == ErrInvalidVariant
}

// NotApplicableError carries the reason a coupon was rejected for a cart.
// It matches ErrCouponNotApplicable with errors.Is.
type NotApplicableError struct {
	CouponID int64
	Reason   Reason
}

func (e *NotApplicableError) Error() string {
	return "coupon cannot be applied: " + string(e.Reason)
}

// Is reports ErrCouponNotApplicable as a match.
func (e *NotApplicableError) Is(target error) bool {
	return target == ErrCouponNotApplicable
}
