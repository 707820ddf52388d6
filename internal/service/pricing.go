package service

import (
	"github.com/QubitCodes/ArmouredVehiclesApis-sub002/internal/model"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// PricedLine is one consolidated cart line after pricing. It is also the
// snapshot written into order_items.
type PricedLine struct {
	ProductID         uint64
	VendorID          *uint64
	CategoryID        *uint64
	Name              string
	SKU               string
	ImageURL          string
	Currency          string
	BasePrice         decimal.Decimal
	UnitPrice         decimal.Decimal
	CommissionPercent decimal.Decimal
	DiscountPercent   decimal.Decimal
	PackingCharge     decimal.Decimal
	Quantity          int32
	LineTotal         decimal.Decimal
	Commission        decimal.Decimal
}

// CommissionFor picks the commission rate: product override, then vendor
// override, then the platform default.
func CommissionFor(product *model.Product, vendor *model.Vendor, fallback decimal.Decimal) decimal.Decimal {
	if product.CommissionPercent != nil {
		return *product.CommissionPercent
	}
	if vendor != nil && vendor.CommissionPercent != nil {
		return *vendor.CommissionPercent
	}
	return fallback
}

// DiscountFor returns the buyer's discount for a vendor. A vendor-specific
// row wins over a general one.
func DiscountFor(discounts []*model.CustomerDiscount, vendorID *uint64) decimal.Decimal {
	general := decimal.Zero
	for _, d := range discounts {
		if d.VendorID == nil {
			general = d.Percent
			continue
		}
		if vendorID != nil && *d.VendorID == *vendorID {
			return d.Percent
		}
	}
	return general
}

// PriceLine marks the base price up by the commission, takes the buyer
// discount off the marked-up price and extends by quantity. The platform's
// share of the line never goes below zero.
func PriceLine(product *model.Product, quantity int32, commissionPercent, discountPercent decimal.Decimal) PricedLine {
	qty := decimal.NewFromInt32(quantity)

	marked := product.BasePrice.Mul(decimal.NewFromInt(1).Add(commissionPercent.Div(hundred)))
	unit := marked.Mul(decimal.NewFromInt(1).Sub(discountPercent.Div(hundred))).Round(2)
	if unit.IsNegative() {
		unit = decimal.Zero
	}

	commission := unit.Sub(product.BasePrice).Mul(qty)
	if commission.IsNegative() {
		commission = decimal.Zero
	}

	return PricedLine{
		ProductID:         product.ID,
		VendorID:          product.VendorID,
		CategoryID:        product.CategoryID,
		Name:              product.Name,
		SKU:               product.SKU,
		ImageURL:          product.ImageURL,
		Currency:          product.Currency,
		BasePrice:         product.BasePrice,
		UnitPrice:         unit,
		CommissionPercent: commissionPercent,
		DiscountPercent:   discountPercent,
		PackingCharge:     product.PackingCharge,
		Quantity:          quantity,
		LineTotal:         unit.Mul(qty),
		Commission:        commission,
	}
}

type GroupTotals struct {
	ProductTotal     decimal.Decimal
	ShippingTotal    decimal.Decimal
	PackingTotal     decimal.Decimal
	VatPercent       decimal.Decimal
	TaxAmount        decimal.Decimal
	CommissionAmount decimal.Decimal
	TotalAmount      decimal.Decimal
}

// TaxableBase is product + shipping + packing, before tax.
func (t GroupTotals) TaxableBase() decimal.Decimal {
	return t.ProductTotal.Add(t.ShippingTotal).Add(t.PackingTotal)
}

// ComputeGroupTotals sums one vendor group. Every figure is rounded to cents
// once, at group level, half away from zero.
func ComputeGroupTotals(lines []PricedLine, shipping, vatPercent decimal.Decimal) GroupTotals {
	product := decimal.Zero
	packing := decimal.Zero
	commission := decimal.Zero
	for _, line := range lines {
		qty := decimal.NewFromInt32(line.Quantity)
		product = product.Add(line.LineTotal)
		packing = packing.Add(line.PackingCharge.Mul(qty))
		commission = commission.Add(line.Commission)
	}

	totals := GroupTotals{
		ProductTotal:     product.Round(2),
		ShippingTotal:    shipping.Round(2),
		PackingTotal:     packing.Round(2),
		VatPercent:       vatPercent,
		CommissionAmount: commission.Round(2),
	}
	totals.TaxAmount = totals.TaxableBase().Mul(vatPercent).Div(hundred).Round(2)
	totals.TotalAmount = totals.TaxableBase().Add(totals.TaxAmount)

	return totals
}
