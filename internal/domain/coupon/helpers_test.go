package coupon

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/xenking/kart-coupons/internal/domain/cart"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func nd(v string) decimal.NullDecimal {
	return decimal.NewNullDecimal(d(v))
}

func ptr[T any](v T) *T {
	return &v
}

func items(it ...cart.Item) cart.Cart {
	return cart.Cart{Items: it}
}

func item(pid int64, qty int, price string) cart.Item {
	return cart.Item{ProductID: pid, Quantity: qty, UnitPrice: d(price)}
}

func record(t *testing.T, id int64, v Variant) Record {
	t.Helper()
	raw, err := MarshalVariant(v)
	require.NoError(t, err)
	return Record{ID: id, Kind: v.Kind(), Details: raw, IsActive: true}
}

type mockStore struct {
	mu           sync.Mutex
	records      map[int64]Record
	order        []int64
	fetchErr     error
	incrementErr error
	increments   int
}

func newMockStore(recs ...Record) *mockStore {
	s := &mockStore{records: make(map[int64]Record)}
	for _, r := range recs {
		s.records[r.ID] = r
		s.order = append(s.order, r.ID)
	}
	return s
}

func (m *mockStore) FetchActive(context.Context) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	var out []Record
	for _, id := range m.order {
		if r := m.records[id]; r.IsActive {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockStore) Fetch(_ context.Context, id int64) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fetchErr != nil {
		return Record{}, m.fetchErr
	}
	r, ok := m.records[id]
	if !ok {
		return Record{}, ErrCouponNotFound
	}
	return r, nil
}

func (m *mockStore) IncrementUsage(_ context.Context, id int64, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.incrementErr != nil {
		return m.incrementErr
	}
	r, ok := m.records[id]
	if !ok {
		return ErrCouponNotFound
	}
	if reason := r.Check(now); reason != ReasonNone {
		return &NotApplicableError{CouponID: id, Reason: reason}
	}
	r.UsedCount++
	m.records[id] = r
	m.increments++
	return nil
}
