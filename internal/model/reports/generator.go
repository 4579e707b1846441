package reports

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jinzhu/now"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"max.ks1230/beancount-bot/internal/entity/beancount"
	"max.ks1230/beancount-bot/internal/logger"
)

const (
	PeriodWeek  = "week"
	PeriodMonth = "month"
	PeriodYear  = "year"

	noExpensesMessage = "No expenses in this period"
)

var periodStart = map[string]func(*now.Now) time.Time{
	PeriodWeek:  (*now.Now).BeginningOfWeek,
	PeriodMonth: (*now.Now).BeginningOfMonth,
	PeriodYear:  (*now.Now).BeginningOfYear,
}

var ErrUnknownPeriod = errors.New("report period is not supported")

type monthReader interface {
	ReadMonth(year, month int) (string, error)
}

type reportCache interface {
	GetReport(period string) (string, error)
	CacheReport(period string, report string) error
}

type Record struct {
	Account string
	Amount  beancount.Amount
}

type Report struct {
	Period  string
	Start   time.Time
	Records []Record
	Totals  []beancount.Amount
}

type Generator struct {
	reader monthReader
	cache  reportCache
	loc    *time.Location
	now    func() time.Time
}

// NewGenerator builds a generator; cache may be nil.
func NewGenerator(reader monthReader, cache reportCache, loc *time.Location) *Generator {
	return &Generator{
		reader: reader,
		cache:  cache,
		loc:    loc,
		now:    time.Now,
	}
}

func Periods() []string {
	return []string{PeriodWeek, PeriodMonth, PeriodYear}
}

// Text returns the formatted report for period, from the cache when possible.
func (g *Generator) Text(ctx context.Context, period string) (string, error) {
	if period == "" {
		period = PeriodMonth
	}
	if _, ok := periodStart[period]; !ok {
		return "", errors.Wrap(ErrUnknownPeriod, period)
	}

	if g.cache != nil {
		if text, err := g.cache.GetReport(period); err == nil {
			return text, nil
		}
	}

	report, err := g.Generate(ctx, period)
	if err != nil {
		return "", err
	}
	text := Format(report)

	if g.cache != nil {
		if err = g.cache.CacheReport(period, text); err != nil {
			logger.Error("failed to cache report", zap.String("period", period), zap.Error(err))
		}
	}
	return text, nil
}

// Generate sums the Expenses postings dated from the beginning of period until now.
func (g *Generator) Generate(ctx context.Context, period string) (*Report, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "generateReport")
	defer span.Finish()
	span.SetTag("period", period)

	logger.Info("GenerateReport - start", zap.String("period", period))
	defer logger.Info("GenerateReport - end")

	startOf, ok := periodStart[period]
	if !ok {
		return nil, errors.Wrap(ErrUnknownPeriod, period)
	}
	current := g.now().In(g.loc)
	start := startOf(now.With(current))
	from := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	to := time.Date(current.Year(), current.Month(), current.Day(), 0, 0, 0, 0, time.UTC)

	sums := make(map[string]map[string]decimal.Decimal)
	for m := time.Date(from.Year(), from.Month(), 1, 0, 0, 0, 0, time.UTC); !m.After(to); m = m.AddDate(0, 1, 0) {
		content, err := g.reader.ReadMonth(m.Year(), int(m.Month()))
		if err != nil {
			return nil, errors.Wrap(err, "generate report")
		}
		entries, err := beancount.ParseEntries(strings.NewReader(content))
		if err != nil {
			return nil, errors.Wrapf(err, "generate report: %04d-%02d", m.Year(), m.Month())
		}
		addExpenses(sums, entries, from, to)
	}

	report := group(sums)
	report.Period = period
	report.Start = from
	return report, nil
}

func addExpenses(sums map[string]map[string]decimal.Decimal, entries []beancount.Entry, from, to time.Time) {
	for _, e := range entries {
		if !e.IsTransaction() || e.Date.Before(from) || e.Date.After(to) {
			continue
		}
		for _, p := range e.Postings {
			if p.Amount == nil || !beancount.IsExpense(p.Account) {
				continue
			}
			if sums[p.Account] == nil {
				sums[p.Account] = make(map[string]decimal.Decimal)
			}
			sums[p.Account][p.Amount.Currency] = sums[p.Account][p.Amount.Currency].Add(p.Amount.Number)
		}
	}
}

func group(sums map[string]map[string]decimal.Decimal) *Report {
	records := make([]Record, 0)
	totals := make(map[string]decimal.Decimal)
	for account, byCurrency := range sums {
		for currency, amount := range byCurrency {
			records = append(records, Record{
				Account: account,
				Amount:  beancount.Amount{Number: amount, Currency: currency},
			})
			totals[currency] = totals[currency].Add(amount)
		}
	}
	sort.Slice(records, func(i, j int) bool {
		a, b := records[i].Amount, records[j].Amount
		if a.Currency != b.Currency {
			return a.Currency < b.Currency
		}
		if c := a.Number.Cmp(b.Number); c != 0 {
			return c > 0
		}
		return records[i].Account < records[j].Account
	})

	res := &Report{Records: records, Totals: make([]beancount.Amount, 0, len(totals))}
	for currency, amount := range totals {
		res.Totals = append(res.Totals, beancount.Amount{Number: amount, Currency: currency})
	}
	sort.Slice(res.Totals, func(i, j int) bool {
		return res.Totals[i].Currency < res.Totals[j].Currency
	})
	return res
}

func Format(report *Report) string {
	if len(report.Records) == 0 {
		return noExpensesMessage
	}
	res := make([]string, 0, len(report.Records)+len(report.Totals)+2)
	res = append(res, fmt.Sprintf("Expenses since %s", report.Start.Format(beancount.DateLayout)), "")
	for _, rec := range report.Records {
		res = append(res, fmt.Sprintf("%s: %s", rec.Account, rec.Amount))
	}
	res = append(res, "")
	for _, total := range report.Totals {
		res = append(res, fmt.Sprintf("Total: %s", total))
	}
	return strings.Join(res, "\n")
}
