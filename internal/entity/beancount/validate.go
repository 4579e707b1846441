package beancount

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

type Problem struct {
	File string
	Line int
	Msg  string
}

func (p Problem) String() string {
	return fmt.Sprintf("%s:%d: %s", p.File, p.Line, p.Msg)
}

// MonthFile identifies the month a ledger file is dedicated to. Zero means any.
type MonthFile struct {
	Year  int
	Month int
}

// Validate checks transactions of one file: postings must use accounts of chart that are
// active at the entry date (when chart is not nil), at most one amount may be elided,
// explicit amounts must balance per currency and each entry must be dated within the
// file's month.
func Validate(file string, month MonthFile, entries []Entry, chart Chart) []Problem {
	problems := make([]Problem, 0)
	report := func(line int, format string, args ...interface{}) {
		problems = append(problems, Problem{File: file, Line: line, Msg: fmt.Sprintf(format, args...)})
	}

	for _, e := range entries {
		if month.Year != 0 && (e.Date.Year() != month.Year || int(e.Date.Month()) != month.Month) {
			report(e.Line, "entry dated %s does not belong to %04d-%02d", e.Date.Format(DateLayout), month.Year, month.Month)
		}
		if !e.IsTransaction() {
			continue
		}
		if len(e.Postings) < 2 {
			report(e.Line, "transaction needs at least two postings")
			continue
		}

		elided, priced := 0, false
		sums := make(map[string]decimal.Decimal)
		for _, p := range e.Postings {
			if chart != nil {
				life, ok := chart[p.Account]
				switch {
				case !ok || e.Date.Before(life.Open):
					report(p.Line, "account %s is not open", p.Account)
				case !life.Active(e.Date):
					report(p.Line, "account %s is closed since %s", p.Account, life.Close.Format(DateLayout))
				}
			}
			if p.Amount == nil {
				elided++
				continue
			}
			priced = priced || p.Priced
			sums[p.Amount.Currency] = sums[p.Amount.Currency].Add(p.Amount.Number)
		}

		if elided > 1 {
			report(e.Line, "more than one posting without amount")
			continue
		}
		if elided == 1 || priced {
			continue
		}
		currencies := make([]string, 0, len(sums))
		for cur := range sums {
			currencies = append(currencies, cur)
		}
		sort.Strings(currencies)
		for _, cur := range currencies {
			if !sums[cur].IsZero() {
				report(e.Line, "transaction does not balance: %s %s", formatNumber(sums[cur]), cur)
			}
		}
	}
	return problems
}
