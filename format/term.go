/*
Package format renders policy terms for display.

PURPOSE:
  Presentation helpers shared by the API: a coarse duration label
  ("7 Day Policy"), the remaining cover ("2 days, 3 hours"), the remaining
  fraction of the term, and a human date.

PRECISION:
  The remaining fraction uses decimal.Decimal so the API can round it
  predictably for progress bars.
*/
package format

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/policy-history/history"
)

const day = 24 * time.Hour

// TermFormatter formats policy terms. The zero value renders dates in UTC.
type TermFormatter struct {
	Location *time.Location
}

// DurationString labels a term length by whole days, else whole hours.
func (f TermFormatter) DurationString(d time.Duration) string {
	if days := int(d / day); days > 0 {
		return fmt.Sprintf("%d Day Policy", days)
	}
	if hours := int(d / time.Hour); hours > 0 {
		return fmt.Sprintf("%d Hour Policy", hours)
	}
	return "Unknown Policy"
}

// DurationRemainingString describes the cover left at date, using the two
// most significant units and skipping zero units. Expired terms render as
// "Expired".
func (f TermFormatter) DurationRemainingString(term history.PolicyTerm, date time.Time) string {
	remaining := term.EndDate().Sub(date)
	if remaining <= 0 {
		return "Expired"
	}

	units := []struct {
		size time.Duration
		name string
	}{
		{day, "day"},
		{time.Hour, "hour"},
		{time.Minute, "minute"},
		{time.Second, "second"},
	}

	var parts []string
	started := 0
	for _, u := range units {
		n := int64(remaining / u.size)
		remaining -= time.Duration(n) * u.size
		if n == 0 && started == 0 {
			continue
		}
		started++
		if n > 0 {
			parts = append(parts, plural(n, u.name))
		}
		if started == 2 {
			break
		}
	}
	if len(parts) == 0 {
		// Less than a second left.
		return "Expired"
	}
	return strings.Join(parts, ", ")
}

// DurationRemainingPercent is the fraction of the term still to run at
// date, clamped to [0, 1].
func (f TermFormatter) DurationRemainingPercent(term history.PolicyTerm, date time.Time) decimal.Decimal {
	if term.Duration <= 0 {
		return decimal.Zero
	}
	remaining := decimal.NewFromInt(int64(term.EndDate().Sub(date)))
	fraction := remaining.Div(decimal.NewFromInt(int64(term.Duration)))

	one := decimal.NewFromInt(1)
	switch {
	case fraction.LessThanOrEqual(decimal.Zero):
		return decimal.Zero
	case fraction.GreaterThanOrEqual(one):
		return one
	}
	return fraction
}

// PolicyDateString renders e.g. "Tuesday 31st August 2021 at 18:11".
func (f TermFormatter) PolicyDateString(t time.Time) string {
	loc := f.Location
	if loc == nil {
		loc = time.UTC
	}
	t = t.In(loc)
	return fmt.Sprintf("%s %s %s at %s",
		t.Format("Monday"), ordinal(t.Day()), t.Format("January 2006"), t.Format("15:04"))
}

func plural(n int64, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

func ordinal(n int) string {
	suffix := "th"
	switch n % 100 {
	case 11, 12, 13:
	default:
		switch n % 10 {
		case 1:
			suffix = "st"
		case 2:
			suffix = "nd"
		case 3:
			suffix = "rd"
		}
	}
	return fmt.Sprintf("%d%s", n, suffix)
}
