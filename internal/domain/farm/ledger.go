package farm

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Investment is money spent on a harvest
type Investment struct {
	ID        uuid.UUID
	HarvestID uuid.UUID
	Amount    decimal.Decimal
	Category  string
	Date      time.Time
}

// Sale is revenue earned from a harvest
type Sale struct {
	ID        uuid.UUID
	HarvestID uuid.UUID
	Amount    decimal.Decimal
	Quantity  decimal.Decimal
	Buyer     string
	Date      time.Time
}

// DateRange is an inclusive calendar-date filter. A nil bound is open.
type DateRange struct {
	From *time.Time
	To   *time.Time
}

// IsZero returns true if neither bound is set
func (r DateRange) IsZero() bool {
	return r.From == nil && r.To == nil
}

// Contains reports whether the calendar date of t lies within the range
func (r DateRange) Contains(t time.Time) bool {
	d := calendarDate(t)
	if r.From != nil && d.Before(calendarDate(*r.From)) {
		return false
	}
	if r.To != nil && d.After(calendarDate(*r.To)) {
		return false
	}
	return true
}

// Validate returns false when From is after To
func (r DateRange) Validate() bool {
	if r.From == nil || r.To == nil {
		return true
	}
	return !calendarDate(*r.From).After(calendarDate(*r.To))
}

func calendarDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
