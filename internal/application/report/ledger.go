package report

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/orchard/backend/internal/domain/farm"
	"github.com/orchard/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

const (
	uncategorized = "Uncategorized"
	unspecified   = "Unspecified"
)

var hundred = decimal.NewFromInt(100)

// bucket accumulates one group of a breakdown table at full precision
type bucket struct {
	count    int
	amount   decimal.Decimal
	quantity decimal.Decimal
}

// totals accumulates investments and sales for any scope. Nothing in here is
// rounded; rounding happens when values are placed into a payload.
type totals struct {
	invested     decimal.Decimal
	sold         decimal.Decimal
	quantity     decimal.Decimal
	investCount  int
	saleCount    int
	byCategory   map[string]*bucket
	byBuyer      map[string]*bucket
	investedByMo map[time.Time]decimal.Decimal
	soldByMo     map[time.Time]decimal.Decimal
	firstDate    time.Time
	lastDate     time.Time
}

func newTotals() *totals {
	return &totals{
		byCategory:   make(map[string]*bucket),
		byBuyer:      make(map[string]*bucket),
		investedByMo: make(map[time.Time]decimal.Decimal),
		soldByMo:     make(map[time.Time]decimal.Decimal),
	}
}

func (t *totals) addInvestment(inv farm.Investment) {
	t.invested = t.invested.Add(inv.Amount)
	t.investCount++

	category := inv.Category
	if category == "" {
		category = uncategorized
	}
	b := t.byCategory[category]
	if b == nil {
		b = &bucket{}
		t.byCategory[category] = b
	}
	b.count++
	b.amount = b.amount.Add(inv.Amount)

	m := monthOf(inv.Date)
	t.investedByMo[m] = t.investedByMo[m].Add(inv.Amount)
	t.observe(inv.Date)
}

func (t *totals) addSale(s farm.Sale) {
	t.sold = t.sold.Add(s.Amount)
	t.quantity = t.quantity.Add(s.Quantity)
	t.saleCount++

	buyer := s.Buyer
	if buyer == "" {
		buyer = unspecified
	}
	b := t.byBuyer[buyer]
	if b == nil {
		b = &bucket{}
		t.byBuyer[buyer] = b
	}
	b.count++
	b.amount = b.amount.Add(s.Amount)
	b.quantity = b.quantity.Add(s.Quantity)

	m := monthOf(s.Date)
	t.soldByMo[m] = t.soldByMo[m].Add(s.Amount)
	t.observe(s.Date)
}

func (t *totals) observe(d time.Time) {
	day := calendarDay(d)
	if t.firstDate.IsZero() || day.Before(t.firstDate) {
		t.firstDate = day
	}
	if day.After(t.lastDate) {
		t.lastDate = day
	}
}

// merge folds o into t
func (t *totals) merge(o *totals) {
	t.invested = t.invested.Add(o.invested)
	t.sold = t.sold.Add(o.sold)
	t.quantity = t.quantity.Add(o.quantity)
	t.investCount += o.investCount
	t.saleCount += o.saleCount
	mergeBuckets(t.byCategory, o.byCategory)
	mergeBuckets(t.byBuyer, o.byBuyer)
	for m, v := range o.investedByMo {
		t.investedByMo[m] = t.investedByMo[m].Add(v)
	}
	for m, v := range o.soldByMo {
		t.soldByMo[m] = t.soldByMo[m].Add(v)
	}
	if !o.firstDate.IsZero() {
		t.observe(o.firstDate)
		t.observe(o.lastDate)
	}
}

func mergeBuckets(dst, src map[string]*bucket) {
	for k, v := range src {
		b := dst[k]
		if b == nil {
			b = &bucket{}
			dst[k] = b
		}
		b.count += v.count
		b.amount = b.amount.Add(v.amount)
		b.quantity = b.quantity.Add(v.quantity)
	}
}

// margin is sold minus invested
func (t *totals) margin() decimal.Decimal {
	return t.sold.Sub(t.invested)
}

// marginPercent is margin over sold, in percent. Zero when nothing was sold.
func (t *totals) marginPercent() decimal.Decimal {
	if t.sold.IsZero() {
		return decimal.Zero
	}
	return t.margin().Mul(hundred).Div(t.sold)
}

// sortedKeys returns bucket names in ascending order
func sortedKeys(m map[string]*bucket) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// validateInvestment rejects records the aggregation cannot trust
func validateInvestment(inv farm.Investment, harvestID uuid.UUID) error {
	switch {
	case inv.HarvestID != harvestID:
		return computeErrorf("investment %s belongs to harvest %s, not %s", inv.ID, inv.HarvestID, harvestID)
	case inv.Date.IsZero():
		return computeErrorf("investment %s has no date", inv.ID)
	}
	return nil
}

// validateSale rejects records the aggregation cannot trust
func validateSale(s farm.Sale, harvestID uuid.UUID) error {
	switch {
	case s.HarvestID != harvestID:
		return computeErrorf("sale %s belongs to harvest %s, not %s", s.ID, s.HarvestID, harvestID)
	case s.Date.IsZero():
		return computeErrorf("sale %s has no date", s.ID)
	case s.Quantity.IsNegative():
		return computeErrorf("sale %s has a negative quantity", s.ID)
	}
	return nil
}

func computeErrorf(format string, args ...any) error {
	return shared.NewDomainError(shared.CodeComputeError, fmt.Sprintf(format, args...))
}

func calendarDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func monthOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// MaxSeriesMonths caps the number of monthly points in one series
const MaxSeriesMonths = 1200

// monthSpan counts the calendar months from start to end inclusive
func monthSpan(start, end time.Time) int {
	return (end.Year()-start.Year())*12 + int(end.Month()) - int(start.Month()) + 1
}

func rangeTooLong() error {
	return shared.InvalidParameterf("date range spans more than %d months", MaxSeriesMonths)
}

// monthsBetween lists the first day of every month from start to end inclusive
func monthsBetween(start, end time.Time) []time.Time {
	first := monthOf(start)
	last := monthOf(end)
	if last.Before(first) {
		return nil
	}
	var months []time.Time
	for m := first; !m.After(last); m = m.AddDate(0, 1, 0) {
		months = append(months, m)
	}
	return months
}
