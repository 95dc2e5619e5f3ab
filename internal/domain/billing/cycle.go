package billing

import (
	"strings"
	"time"
)

// BillingCycle represents the recurrence unit of a bill template.
// Each cycle kind knows how to advance an anchor date by whole cycle
// units and how to derive the period end and due date for a period
// beginning at a given start date.
type BillingCycle string

const (
	CycleWeekly       BillingCycle = "WEEKLY"
	CycleMonthly      BillingCycle = "MONTHLY"
	CycleEvery2Months BillingCycle = "EVERY_2_MONTHS"
	CycleHalfYear     BillingCycle = "HALF_A_YEAR"
	CycleYearly       BillingCycle = "YEARLY"
)

// AllBillingCycles returns all supported billing cycles
func AllBillingCycles() []BillingCycle {
	return []BillingCycle{
		CycleWeekly,
		CycleMonthly,
		CycleEvery2Months,
		CycleHalfYear,
		CycleYearly,
	}
}

// ParseBillingCycle parses a stored cycle value. The second return
// value is false for unrecognized values; callers treat those as a
// data-integrity gap and skip the row rather than failing.
func ParseBillingCycle(s string) (BillingCycle, bool) {
	c := BillingCycle(strings.ToUpper(strings.TrimSpace(s)))
	if c.IsValid() {
		return c, true
	}
	return "", false
}

// IsValid checks if the cycle is a supported value
func (c BillingCycle) IsValid() bool {
	switch c {
	case CycleWeekly, CycleMonthly, CycleEvery2Months, CycleHalfYear, CycleYearly:
		return true
	}
	return false
}

// String returns the string representation of the cycle
func (c BillingCycle) String() string {
	return string(c)
}

// spanMonths returns the cycle length in months for the monthly family
// (including YEARLY as twelve months). WEEKLY has no month span.
func (c BillingCycle) spanMonths() (int, bool) {
	switch c {
	case CycleMonthly:
		return 1, true
	case CycleEvery2Months:
		return 2, true
	case CycleHalfYear:
		return 6, true
	case CycleYearly:
		return 12, true
	}
	return 0, false
}

// Advance returns the anchor date advanced by n whole cycle units.
// Month and year rollover use native calendar arithmetic; WEEKLY is a
// fixed 7-day unit.
func (c BillingCycle) Advance(anchor time.Time, n int) time.Time {
	switch c {
	case CycleWeekly:
		return anchor.AddDate(0, 0, 7*n)
	case CycleMonthly:
		return anchor.AddDate(0, n, 0)
	case CycleEvery2Months:
		return anchor.AddDate(0, 2*n, 0)
	case CycleHalfYear:
		return anchor.AddDate(0, 6*n, 0)
	case CycleYearly:
		return anchor.AddDate(n, 0, 0)
	}
	return anchor
}

// PeriodEnd returns the last day of the billing period beginning at
// start. The monthly family ends on the last calendar day of the final
// month of the period; WEEKLY ends six days after the start.
func (c BillingCycle) PeriodEnd(start time.Time) time.Time {
	if c == CycleWeekly {
		return start.AddDate(0, 0, 6)
	}
	months, ok := c.spanMonths()
	if !ok {
		return start
	}
	return lastDayOfMonth(start.AddDate(0, months-1, 0))
}

// DueDate returns the payment deadline for the period beginning at
// start. Payment is due by the end of the billed period.
func (c BillingCycle) DueDate(start time.Time) time.Time {
	return c.PeriodEnd(start)
}

// lastDayOfMonth returns midnight on the last calendar day of t's month
func lastDayOfMonth(t time.Time) time.Time {
	firstOfNext := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location()).AddDate(0, 1, 0)
	return firstOfNext.AddDate(0, 0, -1)
}
