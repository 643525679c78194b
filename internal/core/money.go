// Package core provides money parsing and handling utilities.
//
// This file contains functions for parsing monetary amounts from user input
// and rendering them for display in the currency's own precision.
package core

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Currency is an ISO 4217 code supported by the tracker.
type Currency string

const (
	USD Currency = "USD"
	CNY Currency = "CNY"
	JPY Currency = "JPY"
	KRW Currency = "KRW"
	VND Currency = "VND"
)

var (
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrInvalidCurrency = errors.New("invalid currency")
)

// Currencies lists the supported currencies in display order.
var Currencies = []Currency{USD, CNY, JPY, KRW, VND}

var amountPattern = regexp.MustCompile(`^\d+(\.\d+)?$`)

// Money is an amount in a given currency.
type Money struct {
	Amount   decimal.Decimal
	Currency Currency
}

// ParseCurrency validates a currency code (case-insensitive).
func ParseCurrency(s string) (Currency, error) {
	c := Currency(strings.ToUpper(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidCurrency, s)
	}
	return c, nil
}

func (c Currency) Valid() bool {
	for _, v := range Currencies {
		if v == c {
			return true
		}
	}
	return false
}

// Scale returns the number of minor-unit digits of the currency
// (2 for USD and CNY, 0 for JPY, KRW and VND).
func (c Currency) Scale() int32 {
	unit, err := currency.ParseISO(string(c))
	if err != nil {
		return 2
	}
	scale, _ := currency.Standard.Rounding(unit)
	return int32(scale)
}

// ParseAmount converts user input to Money with half-up rounding to the
// currency's scale.
//
// Both dot (12.34) and comma (12,34) decimal separators are accepted.
// Signs, exponents and thousands separators are rejected. The rounded
// amount must be at least one minor unit.
//
// Examples:
//
//	ParseAmount("12.345", USD) -> 12.35 USD
//	ParseAmount("1500.4", JPY) -> 1500 JPY
//	ParseAmount("0.001", USD)  -> ErrInvalidAmount
func ParseAmount(s string, c Currency) (Money, error) {
	if !c.Valid() {
		return Money{}, fmt.Errorf("%w: %q", ErrInvalidCurrency, c)
	}
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	if !amountPattern.MatchString(s) {
		return Money{}, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, ErrInvalidAmount
	}
	m := Money{Amount: d.Round(c.Scale()), Currency: c}
	if err := m.Validate(); err != nil {
		return Money{}, err
	}
	return m, nil
}

// MustMoney is ParseAmount for literals in tests and fixtures.
func MustMoney(s string, c Currency) Money {
	m, err := ParseAmount(s, c)
	if err != nil {
		panic(err)
	}
	return m
}

func (m Money) Validate() error {
	if !m.Currency.Valid() {
		return ErrInvalidCurrency
	}
	if !m.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	return nil
}

// Key is the canonical fixed-scale representation used for storage and
// duplicate detection ("12.50", "1500").
func (m Money) Key() string {
	return m.Amount.StringFixed(m.Currency.Scale())
}

// Equal compares amount and currency.
func (m Money) Equal(other Money) bool {
	return m.Currency == other.Currency && m.Amount.Equal(other.Amount)
}

// Format renders the amount with the currency symbol for the given language,
// e.g. "$ 1,234.50" for English.
func (m Money) Format(tag language.Tag) string {
	unit, err := currency.ParseISO(string(m.Currency))
	if err != nil {
		return m.String()
	}
	p := message.NewPrinter(tag)
	return p.Sprint(currency.Symbol(unit.Amount(m.Amount.InexactFloat64())))
}

func (m Money) String() string {
	return m.Key() + " " + string(m.Currency)
}
