// Package totals computes the derived amounts of a cart.
package totals

import (
	"github.com/shopspring/decimal"

	"cartsync/internal/domain/model"
)

var hundred = decimal.NewFromInt(100)

// Options は計算の外部入力。
type Options struct {
	// クーポン適用後の割引率（%）
	DiscountPercent decimal.Decimal
	TaxRate         decimal.Decimal
	Shipping        decimal.Decimal
}

// DefaultOptions は税率 10%、割引・送料なし。
func DefaultOptions() Options {
	return Options{
		DiscountPercent: decimal.Zero,
		TaxRate:         decimal.RequireFromString("0.10"),
		Shipping:        decimal.Zero,
	}
}

type Totals struct {
	Subtotal  decimal.Decimal `json:"subtotal"`
	Discount  decimal.Decimal `json:"discount"`
	Tax       decimal.Decimal `json:"tax"`
	Shipping  decimal.Decimal `json:"shipping"`
	Total     decimal.Decimal `json:"total"`
	ItemCount int64           `json:"item_count"`
}

// Calculate は state と opt だけから決まる。
//
//	subtotal = Σ(unitPrice × quantity)
//	discount = subtotal × discountPercent / 100
//	tax      = (subtotal − discount) × taxRate
//	total    = subtotal − discount + tax + shipping
func Calculate(state model.CartState, opt Options) Totals {
	subtotal := decimal.Zero
	for _, l := range state.Lines {
		subtotal = subtotal.Add(l.Amount())
	}

	discount := subtotal.Mul(opt.DiscountPercent).Div(hundred)
	taxable := subtotal.Sub(discount)
	tax := taxable.Mul(opt.TaxRate)

	return Totals{
		Subtotal:  subtotal,
		Discount:  discount,
		Tax:       tax,
		Shipping:  opt.Shipping,
		Total:     taxable.Add(tax).Add(opt.Shipping),
		ItemCount: state.TotalQuantity(),
	}
}

// WithDiscount は割引率だけ差し替えたコピーを返す。
func (o Options) WithDiscount(percent decimal.Decimal) Options {
	o.DiscountPercent = percent
	return o
}
