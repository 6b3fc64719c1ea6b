package model

import (
	"fmt"
	"math"
)

// Money is an amount in minor currency units (kuruş).  The POS wire format
// carries decimal numbers; they are converted once at the API boundary.
type Money int64

// MoneyFromFloat converts a decimal amount such as 12.5 into Money, rounding
// half away from zero.
func MoneyFromFloat(v float64) Money {
	return Money(math.Round(v * 100))
}

// Float returns the decimal form used on the wire.
func (m Money) Float() float64 { return float64(m) / 100 }

// String formats the amount the way receipts show it, e.g. "12.50 TL".
func (m Money) String() string { return FormatMoney(m) }

// FormatMoney renders m with two decimals and the currency suffix.
func FormatMoney(m Money) string {
	sign := ""
	if m < 0 {
		sign = "-"
		m = -m
	}
	return fmt.Sprintf("%s%d.%02d TL", sign, int64(m)/100, int64(m)%100)
}

// CalculateTotal sums unit price times quantity over confirmed items.
func CalculateTotal(items []OrderItem) Money {
	var total Money
	for _, it := range items {
		total += it.UnitPrice * Money(it.Quantity)
	}
	return total
}

// DraftTotal sums unit price times quantity over draft lines.
func DraftTotal(items []DraftItem) Money {
	var total Money
	for _, it := range items {
		total += it.UnitPrice * Money(it.Quantity)
	}
	return total
}

// DefaultTaxRate is the VAT rate applied when none is configured.
const DefaultTaxRate = 0.18

// ApplyTax returns total with rate added on top.
func ApplyTax(total Money, rate float64) Money {
	return Money(math.Round(float64(total) * (1 + rate)))
}

// ApplyDiscount subtracts discount from total, never going below zero.
func ApplyDiscount(total, discount Money) Money {
	if discount >= total {
		return 0
	}
	return total - discount
}
