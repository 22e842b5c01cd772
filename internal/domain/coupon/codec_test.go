package coupon

import (
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeVariant(t *testing.T) {
	tests := []struct {
		name string
		kind Kind
		raw  string
		want Variant
	}{
		{
			name: "cart-wise",
			kind: KindCartWise,
			raw:  `{"threshold": 100, "discount": 10}`,
			want: CartWise{Threshold: d("100"), Percent: d("10")},
		},
		{
			name: "cart-wise with max discount and string numbers",
			kind: KindCartWise,
			raw:  `{"threshold": "99.50", "discount": "12.5", "max_discount": 20}`,
			want: CartWise{Threshold: d("99.5"), Percent: d("12.5"), MaxDiscount: nd("20")},
		},
		{
			name: "cart-wise null max discount",
			kind: KindCartWise,
			raw:  `{"threshold": 0, "discount": 5, "max_discount": null}`,
			want: CartWise{Threshold: d("0"), Percent: d("5")},
		},
		{
			name: "product-wise ignores unknown keys",
			kind: KindProductWise,
			raw:  `{"product_id": 7, "discount": 15, "note": {"a": [1, 2]}}`,
			want: ProductWise{ProductID: 7, Percent: d("15")},
		},
		{
			name: "bxgy",
			kind: KindBxGy,
			raw:  `{"buy_products":[{"product_id":1,"quantity":2}],"get_products":[{"product_id":3,"quantity":1}],"repetition_limit":2}`,
			want: BxGy{
				Buy:             []Requirement{{ProductID: 1, Quantity: 2}},
				Get:             []Requirement{{ProductID: 3, Quantity: 1}},
				RepetitionLimit: 2,
			},
		},
		{
			name: "bxgy legacy repetition key",
			kind: KindBxGy,
			raw:  `{"buy_products":[{"product_id":1,"quantity":1}],"get_products":[],"repition_limit":4}`,
			want: BxGy{
				Buy:             []Requirement{{ProductID: 1, Quantity: 1}},
				Get:             []Requirement{},
				RepetitionLimit: 4,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeVariant(tt.kind, []byte(tt.raw))
			require.NoError(t, err)
			assertVariantEqual(t, tt.want, got)
		})
	}
}

func TestDecodeVariant_Malformed(t *testing.T) {
	tests := []struct {
		name string
		kind Kind
		raw  string
	}{
		{name: "unknown kind", kind: "free-shipping", raw: `{}`},
		{name: "not an object", kind: KindCartWise, raw: `[1, 2]`},
		{name: "missing threshold", kind: KindCartWise, raw: `{"discount": 10}`},
		{name: "missing discount", kind: KindProductWise, raw: `{"product_id": 1}`},
		{name: "threshold is not a number", kind: KindCartWise, raw: `{"threshold": true, "discount": 10}`},
		{name: "bad numeric string", kind: KindCartWise, raw: `{"threshold": "ten", "discount": 10}`},
		{name: "missing repetition limit", kind: KindBxGy, raw: `{"buy_products": [], "get_products": []}`},
		{name: "requirement missing quantity", kind: KindBxGy, raw: `{"buy_products": [{"product_id": 1}], "get_products": [], "repetition_limit": 1}`},
		{name: "truncated", kind: KindProductWise, raw: `{"product_id": 1, "discount":`},
		{name: "threshold exponent out of range", kind: KindCartWise, raw: `{"threshold": 1e20000000, "discount": 10}`},
		{name: "max discount exponent out of range", kind: KindCartWise, raw: `{"threshold": 0, "discount": 10, "max_discount": "1e-400"}`},
		{name: "threshold above max amount", kind: KindCartWise, raw: `{"threshold": 1000000000000.01, "discount": 10}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeVariant(tt.kind, []byte(tt.raw))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformedVariant), "got %v", err)
		})
	}
}

func TestMarshalVariant(t *testing.T) {
	variants := []Variant{
		CartWise{Threshold: d("200"), Percent: d("10")},
		CartWise{Threshold: d("0"), Percent: d("7.5"), MaxDiscount: nd("12.34")},
		ProductWise{ProductID: 5, Percent: d("20"), MaxDiscount: nd("15")},
		BxGy{
			Buy:             []Requirement{{ProductID: 1, Quantity: 2}, {ProductID: 4, Quantity: 1}},
			Get:             []Requirement{{ProductID: 3, Quantity: 1}},
			RepetitionLimit: 3,
		},
	}
	for _, v := range variants {
		raw, err := MarshalVariant(v)
		require.NoError(t, err)

		got, err := DecodeVariant(v.Kind(), raw)
		require.NoError(t, err, string(raw))
		assertVariantEqual(t, v, got)
	}

	raw, err := MarshalVariant(BxGy{Buy: []Requirement{}, Get: []Requirement{}, RepetitionLimit: 1})
	require.NoError(t, err)
	assert.JSONEq(t, `{"buy_products":[],"get_products":[],"repetition_limit":1}`, string(raw))
}

func TestValidateVariant(t *testing.T) {
	tests := []struct {
		name    string
		variant Variant
		wantErr bool
	}{
		{name: "valid cart-wise", variant: CartWise{Threshold: d("0"), Percent: d("100")}},
		{name: "percent above 100", variant: CartWise{Threshold: d("0"), Percent: d("100.01")}, wantErr: true},
		{name: "negative percent", variant: ProductWise{ProductID: 1, Percent: d("-1")}, wantErr: true},
		{name: "negative threshold", variant: CartWise{Threshold: d("-5"), Percent: d("10")}, wantErr: true},
		{name: "negative max discount", variant: CartWise{Threshold: d("0"), Percent: d("10"), MaxDiscount: nd("-1")}, wantErr: true},
		{name: "zero max discount", variant: ProductWise{ProductID: 1, Percent: d("10"), MaxDiscount: nd("0")}},
		{name: "missing product id", variant: ProductWise{Percent: d("10")}, wantErr: true},
		{
			name: "bxgy repetition limit zero",
			variant: BxGy{
				Buy:             []Requirement{{ProductID: 1, Quantity: 1}},
				Get:             []Requirement{{ProductID: 2, Quantity: 1}},
				RepetitionLimit: 0,
			},
			wantErr: true,
		},
		{
			name: "bxgy zero quantity requirement",
			variant: BxGy{
				Buy:             []Requirement{{ProductID: 1, Quantity: 0}},
				Get:             []Requirement{{ProductID: 2, Quantity: 1}},
				RepetitionLimit: 1,
			},
			wantErr: true,
		},
		{
			name:    "threshold above max amount",
			variant: CartWise{Threshold: d("1000000000001"), Percent: d("10")},
			wantErr: true,
		},
		{
			name: "bxgy requirement quantity above bound",
			variant: BxGy{
				Buy:             []Requirement{{ProductID: 1, Quantity: 1}},
				Get:             []Requirement{{ProductID: 2, Quantity: 1000001}},
				RepetitionLimit: 1,
			},
			wantErr: true,
		},
		{
			name: "bxgy repetition limit above bound",
			variant: BxGy{
				Buy:             []Requirement{{ProductID: 1, Quantity: 1}},
				Get:             []Requirement{{ProductID: 2, Quantity: 1}},
				RepetitionLimit: 1000001,
			},
			wantErr: true,
		},
		{
			name: "bxgy bounds inclusive",
			variant: BxGy{
				Buy:             []Requirement{{ProductID: 1, Quantity: 1000000}},
				Get:             []Requirement{{ProductID: 2, Quantity: 1000000}},
				RepetitionLimit: 1000000,
			},
		},
		{
			name:    "bxgy empty buy requirements",
			variant: BxGy{Get: []Requirement{{ProductID: 2, Quantity: 1}}, RepetitionLimit: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateVariant(tt.variant)
			if !tt.wantErr {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidVariant))
		})
	}
}

func TestRecordCoupon(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		rec := record(t, 11, ProductWise{ProductID: 5, Percent: d("20")})
		cp, err := rec.Coupon()
		require.NoError(t, err)
		assert.Equal(t, int64(11), cp.ID)
		assert.Equal(t, KindProductWise, cp.Kind())
	})
	t.Run("stored repetition limit of zero is malformed", func(t *testing.T) {
		rec := Record{
			ID:       12,
			Kind:     KindBxGy,
			Details:  []byte(`{"buy_products":[],"get_products":[],"repetition_limit":0}`),
			IsActive: true,
		}
		_, err := rec.Coupon()
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrMalformedVariant))
	})
	t.Run("kind mismatch", func(t *testing.T) {
		rec := Record{ID: 13, Kind: KindBxGy, Details: []byte(`{"threshold":1,"discount":2}`)}
		_, err := rec.Coupon()
		assert.True(t, errors.Is(err, ErrMalformedVariant))
	})
}

func assertVariantEqual(t *testing.T, want, got Variant) {
	t.Helper()
	require.Equal(t, want.Kind(), got.Kind())
	switch w := want.(type) {
	case CartWise:
		g := got.(CartWise)
		assert.True(t, w.Threshold.Equal(g.Threshold), "threshold %s != %s", w.Threshold, g.Threshold)
		assert.True(t, w.Percent.Equal(g.Percent), "percent %s != %s", w.Percent, g.Percent)
		assertNullDecimalEqual(t, w.MaxDiscount, g.MaxDiscount)
	case ProductWise:
		g := got.(ProductWise)
		assert.Equal(t, w.ProductID, g.ProductID)
		assert.True(t, w.Percent.Equal(g.Percent), "percent %s != %s", w.Percent, g.Percent)
		assertNullDecimalEqual(t, w.MaxDiscount, g.MaxDiscount)
	case BxGy:
		g := got.(BxGy)
		assert.ElementsMatch(t, w.Buy, g.Buy)
		assert.ElementsMatch(t, w.Get, g.Get)
		assert.Equal(t, w.RepetitionLimit, g.RepetitionLimit)
	}
}

func assertNullDecimalEqual(t *testing.T, want, got decimal.NullDecimal) {
	t.Helper()
	require.Equal(t, want.Valid, got.Valid)
	if want.Valid {
		assert.True(t, want.Decimal.Equal(got.Decimal), "max discount %s != %s", want.Decimal, got.Decimal)
	}
}

func TestUnmarshalDraft(t *testing.T) {
	draft, err := UnmarshalDraft([]byte(`{
		"type": "bxgy",
		"details": {"buy_products": [{"product_id": 1, "quantity": 2}], "get_products": [{"product_id": 2, "quantity": 1}], "repition_limit": 2},
		"expires_at": "2030-01-01T10:00:00+02:00",
		"usage_limit": 10,
		"note": "ignored"
	}`))
	require.NoError(t, err)
	assertVariantEqual(t, BxGy{
		Buy:             []Requirement{{ProductID: 1, Quantity: 2}},
		Get:             []Requirement{{ProductID: 2, Quantity: 1}},
		RepetitionLimit: 2,
	}, draft.Variant)
	require.NotNil(t, draft.ExpiresAt)
	assert.Equal(t, time.Date(2030, 1, 1, 8, 0, 0, 0, time.UTC), *draft.ExpiresAt)
	require.NotNil(t, draft.UsageLimit)
	assert.Equal(t, 10, *draft.UsageLimit)

	draft, err = UnmarshalDraft([]byte(`{"details": {"threshold": 0, "discount": 5}, "type": "cart-wise", "expires_at": null, "usage_limit": null}`))
	require.NoError(t, err)
	assert.Nil(t, draft.ExpiresAt)
	assert.Nil(t, draft.UsageLimit)
	assert.Equal(t, KindCartWise, draft.Variant.Kind())

	draft, err = UnmarshalDraft([]byte(`{"type": "cart-wise", "details": {"threshold": 0, "discount": 1}, "usage_limit": 2147483647}`))
	require.NoError(t, err)
	assert.Equal(t, MaxUsageLimit, *draft.UsageLimit)

	for _, raw := range []string{
		`{"type": "cart-wise"}`,
		`{"type": "tiered", "details": {}}`,
		`{"type": "cart-wise", "details": {"threshold": 0}}`,
		`{"type": "cart-wise", "details": {"threshold": 0, "discount": 101}}`,
		`{"type": "cart-wise", "details": {"threshold": 0, "discount": 1}, "usage_limit": -2}`,
		`{"type": "cart-wise", "details": {"threshold": 0, "discount": 1}, "expires_at": "soon"}`,
		`{"type": "cart-wise", "details": {"threshold": 0, "discount": 1}, "usage_limit": 2147483648}`,
		`{"type": "cart-wise", "details": {"threshold": 1e20000000, "discount": 1}}`,
		`[]`,
	} {
		_, err := UnmarshalDraft([]byte(raw))
		assert.True(t, errors.Is(err, ErrInvalidVariant), raw)
	}
}
