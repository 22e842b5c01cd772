package coupon

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-coupons/internal/domain/cart"
)

// Kind names a coupon variant. The string values are the wire and storage
// representation.
type Kind string

const (
	// KindCartWise gives a percentage off the whole cart above a threshold.
	KindCartWise Kind = "cart-wise"
	// KindProductWise gives a percentage off one product's line.
	KindProductWise Kind = "product-wise"
	// KindBxGy gives reward units for free when purchase requirements are met.
	KindBxGy Kind = "bxgy"
)

// Kinds lists every supported kind.
var Kinds = []Kind{KindCartWise, KindProductWise, KindBxGy}

// ParseKind converts a wire string into a Kind.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindCartWise, KindProductWise, KindBxGy:
		return k, nil
	default:
		return "", errors.Errorf("unknown coupon type %q", s)
	}
}

// Variant is the kind-specific parameter set of a coupon. The set of
// implementations is closed: CartWise, ProductWise and BxGy.
type Variant interface {
	Kind() Kind
	variant()
}

// CartWise discounts the whole cart once its subtotal reaches Threshold.
type CartWise struct {
	Threshold   decimal.Decimal     `json:"threshold" validate:"gte=0,lte=1000000000000"`
	Percent     decimal.Decimal     `json:"discount" validate:"gte=0,lte=100"`
	MaxDiscount decimal.NullDecimal `json:"max_discount" validate:"omitempty,gte=0,lte=1000000000000"`
}

// ProductWise discounts the line of one product.
type ProductWise struct {
	ProductID   int64               `json:"product_id" validate:"gt=0"`
	Percent     decimal.Decimal     `json:"discount" validate:"gte=0,lte=100"`
	MaxDiscount decimal.NullDecimal `json:"max_discount" validate:"omitempty,gte=0,lte=1000000000000"`
}

// Requirement is a product and a quantity, used for both the purchase and
// the reward side of BxGy.
type Requirement struct {
	ProductID int64 `json:"product_id" validate:"gt=0"`
	Quantity  int   `json:"quantity" validate:"gt=0,lte=1000000"`
}

// BxGy grants reward units for free each time every Buy requirement is met,
// at most RepetitionLimit times. Requirement quantities and RepetitionLimit
// are bounded so their product always fits in an int.
type BxGy struct {
	Buy             []Requirement `json:"buy_products" validate:"dive"`
	Get             []Requirement `json:"get_products" validate:"dive"`
	RepetitionLimit int           `json:"repetition_limit" validate:"gte=1,lte=1000000"`
}

func (CartWise) Kind() Kind    { return KindCartWise }
func (ProductWise) Kind() Kind { return KindProductWise }
func (BxGy) Kind() Kind        { return KindBxGy }

func (CartWise) variant()    {}
func (ProductWise) variant() {}
func (BxGy) variant()        {}

// ValidateVariant checks v against its parameter constraints. The returned
// error matches ErrInvalidVariant.
func ValidateVariant(v Variant) error {
	switch v.(type) {
	case CartWise, ProductWise, BxGy:
	default:
		return &InvalidVariantError{Err: errors.Errorf("unsupported variant %T", v)}
	}
	if err := cart.Validator().Struct(v); err != nil {
		return &InvalidVariantError{Kind: v.Kind(), Err: err}
	}
	return nil
}
