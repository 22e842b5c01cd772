package coupon

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-coupons/internal/domain/cart"
)

// MalformedVariantError reports a variant payload that does not decode into
// the shape of its kind. It matches ErrMalformedVariant with errors.Is.
type MalformedVariantError struct {
	Kind Kind
	Err  error
}

func (e *MalformedVariantError) Error() string {
	return "malformed " + string(e.Kind) + " details: " + e.Err.Error()
}

func (e *MalformedVariantError) Unwrap() error {
	return e.Err
}

// Is reports ErrMalformedVariant as a match.
func (e *MalformedVariantError) Is(target error) bool {
	return target == ErrMalformedVariant
}

// DecodeVariant parses the JSON details payload of a coupon of the given kind.
// Unknown keys are ignored. For BxGy the legacy key "repition_limit" is
// accepted as an alias of "repetition_limit".
func DecodeVariant(kind Kind, data []byte) (Variant, error) {
	var (
		v   Variant
		err error
	)
	d := jx.DecodeBytes(data)
	switch kind {
	case KindCartWise:
		v, err = decodeCartWise(d)
	case KindProductWise:
		v, err = decodeProductWise(d)
	case KindBxGy:
		v, err = decodeBxGy(d)
	default:
		err = errors.Errorf("unknown coupon type %q", kind)
	}
	if err != nil {
		return nil, &MalformedVariantError{Kind: kind, Err: err}
	}
	return v, nil
}

func decodeCartWise(d *jx.Decoder) (CartWise, error) {
	var (
		v                    CartWise
		hasThreshold, hasPct bool
	)
	if err := d.Obj(func(d *jx.Decoder, key string) (err error) {
		switch key {
		case "threshold":
			hasThreshold = true
			v.Threshold, err = decodeDecimal(d)
		case "discount":
			hasPct = true
			v.Percent, err = decodeDecimal(d)
		case "max_discount":
			v.MaxDiscount, err = decodeNullDecimal(d)
		default:
			return d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, key)
		}
		return nil
	}); err != nil {
		return CartWise{}, err
	}
	switch {
	case !hasThreshold:
		return CartWise{}, errors.New("threshold is required")
	case !hasPct:
		return CartWise{}, errors.New("discount is required")
	}
	return v, nil
}

func decodeProductWise(d *jx.Decoder) (ProductWise, error) {
	var (
		v                  ProductWise
		hasProduct, hasPct bool
	)
	if err := d.Obj(func(d *jx.Decoder, key string) (err error) {
		switch key {
		case "product_id":
			hasProduct = true
			v.ProductID, err = d.Int64()
		case "discount":
			hasPct = true
			v.Percent, err = decodeDecimal(d)
		case "max_discount":
			v.MaxDiscount, err = decodeNullDecimal(d)
		default:
			return d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, key)
		}
		return nil
	}); err != nil {
		return ProductWise{}, err
	}
	switch {
	case !hasProduct:
		return ProductWise{}, errors.New("product_id is required")
	case !hasPct:
		return ProductWise{}, errors.New("discount is required")
	}
	return v, nil
}

func decodeBxGy(d *jx.Decoder) (BxGy, error) {
	var (
		v                      BxGy
		hasBuy, hasGet, hasRep bool
	)
	if err := d.Obj(func(d *jx.Decoder, key string) (err error) {
		switch key {
		case "buy_products":
			hasBuy = true
			v.Buy, err = decodeRequirements(d)
		case "get_products":
			hasGet = true
			v.Get, err = decodeRequirements(d)
		case "repetition_limit", "repition_limit":
			hasRep = true
			v.RepetitionLimit, err = d.Int()
		default:
			return d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, key)
		}
		return nil
	}); err != nil {
		return BxGy{}, err
	}
	switch {
	case !hasBuy:
		return BxGy{}, errors.New("buy_products is required")
	case !hasGet:
		return BxGy{}, errors.New("get_products is required")
	case !hasRep:
		return BxGy{}, errors.New("repetition_limit is required")
	}
	return v, nil
}

func decodeRequirements(d *jx.Decoder) ([]Requirement, error) {
	reqs := make([]Requirement, 0, 2)
	err := d.Arr(func(d *jx.Decoder) error {
		var (
			r                  Requirement
			hasProduct, hasQty bool
		)
		if err := d.Obj(func(d *jx.Decoder, key string) (err error) {
			switch key {
			case "product_id":
				hasProduct = true
				r.ProductID, err = d.Int64()
			case "quantity":
				hasQty = true
				r.Quantity, err = d.Int()
			default:
				return d.Skip()
			}
			if err != nil {
				return errors.Wrap(err, key)
			}
			return nil
		}); err != nil {
			return err
		}
		if !hasProduct || !hasQty {
			return errors.New("product_id and quantity are required")
		}
		reqs = append(reqs, r)
		return nil
	})
	return reqs, err
}

// decodeDecimal reads a JSON number or a numeric string, bounded by
// cart.ParseAmount.
func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	switch d.Next() {
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Decimal{}, err
		}
		return cart.ParseAmount(n.String())
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Decimal{}, err
		}
		return cart.ParseAmount(s)
	default:
		return decimal.Decimal{}, errors.Errorf("expected number, got %v", d.Next())
	}
}

func decodeNullDecimal(d *jx.Decoder) (decimal.NullDecimal, error) {
	if d.Next() == jx.Null {
		return decimal.NullDecimal{}, d.Null()
	}
	v, err := decodeDecimal(d)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(v), nil
}

// EncodeVariant writes v as a JSON details object. BxGy is written with
// the "repetition_limit" key.
func EncodeVariant(e *jx.Encoder, v Variant) {
	e.ObjStart()
	switch v := v.(type) {
	case CartWise:
		e.FieldStart("threshold")
		encodeDecimal(e, v.Threshold)
		e.FieldStart("discount")
		encodeDecimal(e, v.Percent)
		e.FieldStart("max_discount")
		encodeNullDecimal(e, v.MaxDiscount)
	case ProductWise:
		e.FieldStart("product_id")
		e.Int64(v.ProductID)
		e.FieldStart("discount")
		encodeDecimal(e, v.Percent)
		e.FieldStart("max_discount")
		encodeNullDecimal(e, v.MaxDiscount)
	case BxGy:
		e.FieldStart("buy_products")
		encodeRequirements(e, v.Buy)
		e.FieldStart("get_products")
		encodeRequirements(e, v.Get)
		e.FieldStart("repetition_limit")
		e.Int(v.RepetitionLimit)
	}
	e.ObjEnd()
}

// MarshalVariant returns the JSON details payload of v.
func MarshalVariant(v Variant) ([]byte, error) {
	if err := ValidateVariant(v); err != nil {
		return nil, err
	}
	var e jx.Encoder
	EncodeVariant(&e, v)
	return e.Bytes(), nil
}

func encodeRequirements(e *jx.Encoder, reqs []Requirement) {
	e.ArrStart()
	for _, r := range reqs {
		e.ObjStart()
		e.FieldStart("product_id")
		e.Int64(r.ProductID)
		e.FieldStart("quantity")
		e.Int(r.Quantity)
		e.ObjEnd()
	}
	e.ArrEnd()
}

func encodeDecimal(e *jx.Encoder, d decimal.Decimal) {
	e.Raw([]byte(d.String()))
}

func encodeNullDecimal(e *jx.Encoder, d decimal.NullDecimal) {
	if !d.Valid {
		e.Null()
		return
	}
	encodeDecimal(e, d.Decimal)
}

// UnmarshalDraft parses a coupon authoring payload:
//
//	{"type": "...", "details": {...}, "expires_at": "RFC3339"|null, "usage_limit": n|null}
//
// Every failure, including a details payload that does not decode, is
// reported as an *InvalidVariantError.
func UnmarshalDraft(data []byte) (Draft, error) {
	var (
		draft   Draft
		kind    string
		details []byte
	)
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "type":
			s, err := d.Str()
			if err != nil {
				return errors.Wrap(err, key)
			}
			kind = s
			return nil
		case "details":
			raw, err := d.Raw()
			if err != nil {
				return errors.Wrap(err, key)
			}
			details = append([]byte(nil), raw...)
			return nil
		case "expires_at":
			if d.Next() == jx.Null {
				return d.Null()
			}
			s, err := d.Str()
			if err != nil {
				return errors.Wrap(err, key)
			}
			t, err := time.Parse(time.RFC3339, s)
			if err != nil {
				return errors.Wrap(err, key)
			}
			t = t.UTC()
			draft.ExpiresAt = &t
			return nil
		case "usage_limit":
			if d.Next() == jx.Null {
				return d.Null()
			}
			n, err := d.Int()
			if err != nil {
				return errors.Wrap(err, key)
			}
			draft.UsageLimit = &n
			return nil
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return Draft{}, &InvalidVariantError{Err: errors.Wrap(err, "decode coupon")}
	}

	k, err := ParseKind(kind)
	if err != nil {
		return Draft{}, &InvalidVariantError{Err: err}
	}
	if details == nil {
		return Draft{}, &InvalidVariantError{Kind: k, Err: errors.New("details is required")}
	}
	v, err := DecodeVariant(k, details)
	if err != nil {
		return Draft{}, &InvalidVariantError{Kind: k, Err: err}
	}
	draft.Variant = v
	if err := draft.Validate(); err != nil {
		return Draft{}, err
	}
	return draft, nil
}
