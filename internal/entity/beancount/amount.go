package beancount

import (
	"regexp"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

var amountRe = regexp.MustCompile(`^([0-9.]+)\s*([A-Z][A-Z0-9'._-]{0,22}[A-Z0-9])?$`)

type Amount struct {
	Number   decimal.Decimal
	Currency string
}

// ParseAmount parses "12.50" or "12.50 USD". The currency falls back to def.
func ParseAmount(s, def string) (Amount, error) {
	caps := amountRe.FindStringSubmatch(s)
	if caps == nil {
		return Amount{}, errors.Errorf("Invalid amount %s", s)
	}
	number, err := decimal.NewFromString(caps[1])
	if err != nil {
		return Amount{}, errors.Errorf("Invalid amount %s", s)
	}
	currency := caps[2]
	if currency == "" {
		currency = def
	}
	return Amount{Number: number, Currency: currency}, nil
}

func (a Amount) Neg() Amount {
	return Amount{Number: a.Number.Neg(), Currency: a.Currency}
}

// String keeps the scale the number was written with: 10.50 stays 10.50.
func (a Amount) String() string {
	return formatNumber(a.Number) + " " + a.Currency
}

func formatNumber(d decimal.Decimal) string {
	if exp := d.Exponent(); exp < 0 {
		return d.StringFixed(-exp)
	}
	return d.String()
}
