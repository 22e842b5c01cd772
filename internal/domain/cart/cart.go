package cart

import "github.com/shopspring/decimal"

// Item is a single cart line as submitted by a client. Product IDs need not
// be unique within a cart.
type Item struct {
	ProductID int64           `json:"product_id" validate:"gt=0"`
	Quantity  int             `json:"quantity" validate:"gt=0"`
	UnitPrice decimal.Decimal `json:"price" validate:"gte=0,lte=1000000000000"`
}

// LineTotal returns quantity * unit price.
func (i Item) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Cart is an ordered sequence of items. Order is preserved in output but
// never affects discount math.
type Cart struct {
	Items []Item `json:"items" validate:"dive"`
}

// Subtotal returns the sum of all line totals.
func (c Cart) Subtotal() decimal.Decimal {
	sum := Zero
	for _, item := range c.Items {
		sum = sum.Add(item.LineTotal())
	}
	return sum
}

// Find returns the index of the first item carrying productID, or -1.
func (c Cart) Find(productID int64) int {
	for i, item := range c.Items {
		if item.ProductID == productID {
			return i
		}
	}
	return -1
}

// Validate checks item constraints: positive product IDs and quantities,
// prices between zero and MaxAmount.
func (c Cart) Validate() error {
	if err := Validator().Struct(c); err != nil {
		return &ValidationError{Err: err}
	}
	return nil
}

// LineItem is a cart item annotated with the discount attributed to it.
type LineItem struct {
	Item
	Discount decimal.Decimal
}

// Lines returns a deep copy of the cart items with zero discounts. The copy
// shares nothing with c.
func (c Cart) Lines() []LineItem {
	lines := make([]LineItem, len(c.Items))
	for i, item := range c.Items {
		lines[i] = LineItem{Item: item, Discount: Zero}
	}
	return lines
}

// ValidationError reports a cart or payload that violates field constraints.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string {
	return "invalid cart: " + e.Err.Error()
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}
