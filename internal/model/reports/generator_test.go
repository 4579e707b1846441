package reports

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type fakeReader map[string]string

func (f fakeReader) ReadMonth(year, month int) (string, error) {
	return f[fmt.Sprintf("%04d-%02d", year, month)], nil
}

type cacheMock struct {
	mock.Mock
}

func (m *cacheMock) GetReport(period string) (string, error) {
	args := m.Called(period)
	return args.String(0), args.Error(1)
}

func (m *cacheMock) CacheReport(period string, report string) error {
	return m.Called(period, report).Error(0)
}

var ledger = fakeReader{
	"2023-12": `2023-12-31 * "last year"
    Expenses:Food 100 CNY
    Assets:Cash -100 CNY
`,
	"2024-02": `2024-02-10 * "february"
    Expenses:Home:Rent 1000 CNY
    Assets:Cash -1000 CNY
`,
	"2024-03": `2024-03-01 * "rent"
    Expenses:Home:Rent 1000 CNY
    Assets:Cash -1000 CNY

2024-03-15 * "shop" "groceries"
    Expenses:Food 12.30 CNY
    Assets:Cash -12.30 CNY

2024-03-16 * "shop" "more groceries"
    Expenses:Food 0.70 CNY
    Assets:Cash -0.70 CNY

2024-03-17 * "trip"
    Expenses:Travel 20 USD
    Liabilities:Card -20 USD

2024-03-25 * "future"
    Expenses:Food 999 CNY
    Assets:Cash -999 CNY
`,
}

func newTestGenerator(cache reportCache) *Generator {
	g := NewGenerator(ledger, cache, time.UTC)
	g.now = func() time.Time { return time.Date(2024, 3, 20, 10, 0, 0, 0, time.UTC) }
	return g
}

func Test_Generate_ShouldSumExpensesOfMonth(t *testing.T) {
	report, err := newTestGenerator(nil).Generate(context.Background(), PeriodMonth)
	require.NoError(t, err)

	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), report.Start)
	require.Len(t, report.Records, 3)
	assert.Equal(t, "Expenses:Home:Rent", report.Records[0].Account)
	assert.Equal(t, "1000 CNY", report.Records[0].Amount.String())
	assert.Equal(t, "Expenses:Food", report.Records[1].Account)
	assert.Equal(t, "13.00 CNY", report.Records[1].Amount.String())
	assert.Equal(t, "Expenses:Travel", report.Records[2].Account)
	assert.Equal(t, "20 USD", report.Records[2].Amount.String())

	require.Len(t, report.Totals, 2)
	assert.Equal(t, "1013.00 CNY", report.Totals[0].String())
	assert.Equal(t, "20 USD", report.Totals[1].String())
}

func Test_Generate_ShouldCoverWholeYear(t *testing.T) {
	report, err := newTestGenerator(nil).Generate(context.Background(), PeriodYear)
	require.NoError(t, err)

	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), report.Start)
	require.Len(t, report.Totals, 2)
	assert.Equal(t, "2013.00 CNY", report.Totals[0].String())
}

func Test_Text_ShouldRejectUnknownPeriod(t *testing.T) {
	_, err := newTestGenerator(nil).Text(context.Background(), "decade")
	assert.True(t, errors.Is(err, ErrUnknownPeriod))
}

func Test_Text_ShouldFormatAndCache(t *testing.T) {
	cache := &cacheMock{}
	cache.On("GetReport", PeriodMonth).Return("", errors.New("cache miss"))
	cache.On("CacheReport", PeriodMonth, mock.Anything).Return(nil)

	text, err := newTestGenerator(cache).Text(context.Background(), "")
	require.NoError(t, err)

	want := "Expenses since 2024-03-01\n\n" +
		"Expenses:Home:Rent: 1000 CNY\n" +
		"Expenses:Food: 13.00 CNY\n" +
		"Expenses:Travel: 20 USD\n" +
		"\n" +
		"Total: 1013.00 CNY\n" +
		"Total: 20 USD"
	assert.Equal(t, want, text)
	cache.AssertCalled(t, "CacheReport", PeriodMonth, want)
}

func Test_Text_ShouldServeFromCache(t *testing.T) {
	cache := &cacheMock{}
	cache.On("GetReport", PeriodWeek).Return("cached", nil)

	text, err := newTestGenerator(cache).Text(context.Background(), PeriodWeek)
	require.NoError(t, err)
	assert.Equal(t, "cached", text)
	cache.AssertNotCalled(t, "CacheReport", mock.Anything, mock.Anything)
}

func Test_Format_ShouldSayWhenEmpty(t *testing.T) {
	assert.Equal(t, noExpensesMessage, Format(&Report{}))
}
