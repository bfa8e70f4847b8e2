// Package core provides money parsing and handling utilities.
//
// Amounts are decimal values end to end. Rounding to two decimals happens only
// when an amount is formatted for display; stored values and aggregates keep
// full precision.
package core

import (
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

var hundred = decimal.NewFromInt(100)

// ParseAmount converts a user-entered amount to a decimal.
//
// Both dot (12.34) and comma (12,34) decimal separators are accepted and
// grouping spaces are ignored. Negative values are rejected; zero is allowed
// because an expense may legitimately be free (a waived fee).
//
// Examples:
//
//	ParseAmount("12.34")  -> 12.34, nil
//	ParseAmount("12,34")  -> 12.34, nil
//	ParseAmount("1 000")  -> 1000, nil
//	ParseAmount("-1")     -> 0, ErrInvalidAmount
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return decimal.Zero, ErrInvalidAmount
	}
	if strings.Count(s, ".") > 1 {
		return decimal.Zero, ErrInvalidAmount
	}
	for _, r := range s {
		if r != '.' && !unicode.IsDigit(r) {
			return decimal.Zero, ErrInvalidAmount
		}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// ParseRate parses a percentage in [0,100].
func ParseRate(s string) (decimal.Decimal, error) {
	d, err := ParseAmount(s)
	if err != nil {
		return decimal.Zero, ErrInvalidTaxRate
	}
	if d.GreaterThan(hundred) {
		return decimal.Zero, ErrInvalidTaxRate
	}
	return d, nil
}

// Sum adds amounts without intermediate rounding.
func Sum(amounts ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}

var currencySymbols = map[string]string{
	"INR": "₹",
	"EUR": "€",
	"USD": "$",
	"GBP": "£",
}

// Formatter renders amounts for a currency using locale-aware grouping.
type Formatter struct {
	printer *message.Printer
	symbol  string
}

// NewFormatter returns a formatter for an ISO currency code. Unknown codes are
// rendered with the code itself as prefix.
func NewFormatter(currencyCode string) *Formatter {
	code := strings.ToUpper(strings.TrimSpace(currencyCode))
	tag := language.English
	if code == "INR" {
		tag = language.MustParse("en-IN")
	}
	symbol, ok := currencySymbols[code]
	if !ok {
		symbol = code + " "
	}
	return &Formatter{printer: message.NewPrinter(tag), symbol: symbol}
}

// Format rounds to two decimals and prints with the currency symbol.
func (f *Formatter) Format(d decimal.Decimal) string {
	neg := d.IsNegative()
	v := d.Abs().Round(2).InexactFloat64()
	s := f.printer.Sprint(number.Decimal(v, number.MinFractionDigits(2), number.MaxFractionDigits(2)))
	if neg {
		return "-" + f.symbol + s
	}
	return f.symbol + s
}

// Plain renders an amount with two decimals and no grouping, for exports.
func Plain(d decimal.Decimal) string {
	return d.StringFixed(2)
}
