package totals

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"cartsync/internal/domain/model"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertDec(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.Truef(t, dec(want).Equal(got), "want %s, got %s", want, got)
}

func TestCalculate_DiscountAndTax(t *testing.T) {
	state := model.CartState{Lines: []model.CartLine{
		{ID: "a", VariantID: "v1", Quantity: 2, UnitPrice: dec("100")},
		{ID: "b", VariantID: "v2", Quantity: 1, UnitPrice: dec("50")},
	}}

	got := Calculate(state, DefaultOptions().WithDiscount(dec("10")))

	assertDec(t, "250", got.Subtotal)
	assertDec(t, "25", got.Discount)
	assertDec(t, "22.5", got.Tax)
	assertDec(t, "0", got.Shipping)
	assertDec(t, "247.5", got.Total)
	assert.Equal(t, int64(3), got.ItemCount)
}

func TestCalculate_EmptyCart(t *testing.T) {
	got := Calculate(model.CartState{}, DefaultOptions())

	assertDec(t, "0", got.Subtotal)
	assertDec(t, "0", got.Tax)
	assertDec(t, "0", got.Total)
	assert.Equal(t, int64(0), got.ItemCount)
}

func TestCalculate_Shipping(t *testing.T) {
	state := model.CartState{Lines: []model.CartLine{
		{ID: "a", VariantID: "v1", Quantity: 3, UnitPrice: dec("19.99")},
	}}
	opt := Options{TaxRate: dec("0.08"), Shipping: dec("5")}

	got := Calculate(state, opt)

	assertDec(t, "59.97", got.Subtotal)
	assertDec(t, "0", got.Discount)
	assertDec(t, "4.7976", got.Tax)
	assertDec(t, "69.7676", got.Total)
}

func TestCalculate_Deterministic(t *testing.T) {
	state := model.CartState{Lines: []model.CartLine{
		{ID: "a", VariantID: "v1", Quantity: 2, UnitPrice: dec("12.5")},
	}}
	opt := DefaultOptions().WithDiscount(dec("15"))

	assert.Equal(t, Calculate(state, opt), Calculate(state, opt))
}
