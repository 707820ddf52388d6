package service

import (
	"strings"

	"github.com/shopspring/decimal"
)

type VatScenario string

const (
	VatDomestic VatScenario = "domestic"
	VatExport   VatScenario = "export"
	VatImport   VatScenario = "import"
	VatOffshore VatScenario = "offshore"
)

// VatRates is the outcome of the jurisdiction-pair lookup. CustomerRate is
// charged to the buyer, VendorRate applies to what the vendor bills the
// platform.
type VatRates struct {
	Scenario     VatScenario
	CustomerRate decimal.Decimal
	VendorRate   decimal.Decimal
}

// IsHome reports whether country is the home jurisdiction. A missing country
// counts as foreign.
func IsHome(country, home string) bool {
	country = strings.TrimSpace(country)
	if country == "" {
		return false
	}
	return strings.EqualFold(country, strings.TrimSpace(home))
}

func ResolveVAT(vendorCountry, buyerCountry, home string, standardRate decimal.Decimal) VatRates {
	vendorHome := IsHome(vendorCountry, home)
	buyerHome := IsHome(buyerCountry, home)

	switch {
	case vendorHome && buyerHome:
		return VatRates{Scenario: VatDomestic, CustomerRate: standardRate, VendorRate: standardRate}
	case vendorHome:
		return VatRates{Scenario: VatExport, CustomerRate: decimal.Zero, VendorRate: standardRate}
	case buyerHome:
		return VatRates{Scenario: VatImport, CustomerRate: standardRate, VendorRate: decimal.Zero}
	default:
		return VatRates{Scenario: VatOffshore, CustomerRate: decimal.Zero, VendorRate: decimal.Zero}
	}
}
