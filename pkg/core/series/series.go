// Package series expands recurrence rules into the dates of a shift series.
package series

import (
	"fmt"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/voreskerne/frivillig/pkg/db"
)

// MaxShifts caps how many shifts a single recurrence may create
const MaxShifts = 366

const dateLayout = "2006-01-02"

// Expand returns the YYYY-MM-DD dates of rule starting at start. count, when
// positive, overrides any COUNT in the rule. The rule must be bounded by COUNT
// or UNTIL, repeat at most daily and yield at most MaxShifts dates.
func Expand(rule, start string, count int) ([]string, error) {
	startDate, err := time.Parse(dateLayout, start)
	if err != nil {
		return nil, fmt.Errorf("series start %q must be YYYY-MM-DD: %w", start, db.ErrInvalidArgument)
	}

	opt, err := rrule.StrToROption(rule)
	if err != nil {
		return nil, fmt.Errorf("invalid rrule %q: %v: %w", rule, err, db.ErrInvalidArgument)
	}
	if opt.Freq > rrule.DAILY {
		return nil, fmt.Errorf("rrule %q repeats more often than daily: %w", rule, db.ErrInvalidArgument)
	}
	opt.Dtstart = startDate
	if count > 0 {
		opt.Count = count
	}
	if opt.Count == 0 && opt.Until.IsZero() {
		return nil, fmt.Errorf("rrule %q must set COUNT or UNTIL: %w", rule, db.ErrInvalidArgument)
	}
	if opt.Count > MaxShifts {
		return nil, fmt.Errorf("series of %d shifts exceeds the limit of %d: %w", opt.Count, MaxShifts, db.ErrInvalidArgument)
	}

	r, err := rrule.NewRRule(*opt)
	if err != nil {
		return nil, fmt.Errorf("invalid rrule %q: %v: %w", rule, err, db.ErrInvalidArgument)
	}

	// Occurrences arrive in order, so one lookback catches BYHOUR-style repeats
	var dates []string
	next := r.Iterator()
	for o, ok := next(); ok; o, ok = next() {
		date := o.UTC().Format(dateLayout)
		if n := len(dates); n > 0 && dates[n-1] == date {
			return nil, fmt.Errorf("rrule %q repeats within %s: %w", rule, date, db.ErrInvalidArgument)
		}
		if len(dates) == MaxShifts {
			return nil, fmt.Errorf("series exceeds the limit of %d shifts: %w", MaxShifts, db.ErrInvalidArgument)
		}
		dates = append(dates, date)
	}
	return dates, nil
}
