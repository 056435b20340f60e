package plans

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/qistas/qistas/internal/shared"
)

// ScheduleInput collects everything the generator needs. Exactly one of
// CustomAmounts / FirstAmount / neither may be supplied; CustomAmounts wins
// when both are present.
type ScheduleInput struct {
	Total         decimal.Decimal
	Count         int
	Frequency     Frequency
	StartDate     time.Time
	FirstAmount   *decimal.Decimal
	CustomAmounts []decimal.Decimal
	TermsAccepted bool
}

// GenerateSchedule produces the ordered (sequence, amount, due date) list for
// a plan. Amounts always sum to exactly Total: even splits round down to the
// cent and the remainder lands on the last installment. Due dates advance by
// 7 days (weekly), 14 days (biweekly) or one calendar month with the
// day-of-month preserved and clamped to month length (monthly).
func GenerateSchedule(in ScheduleInput, now time.Time) ([]ScheduleEntry, error) {
	if in.Count <= 0 {
		return nil, shared.NewError(shared.KindInvalidInstallmentCount)
	}
	if !in.Frequency.Valid() {
		return nil, shared.NewError(shared.KindInvalidFrequency)
	}
	if !in.StartDate.After(now) {
		return nil, shared.NewError(shared.KindInvalidStartDate)
	}
	if !in.TermsAccepted {
		return nil, shared.NewError(shared.KindTermsNotAccepted)
	}
	if in.Total.LessThanOrEqual(decimal.Zero) {
		return nil, shared.NewError(shared.KindInvalidAmount)
	}

	amounts, err := splitAmounts(in)
	if err != nil {
		return nil, err
	}

	entries := make([]ScheduleEntry, in.Count)
	for k := 1; k <= in.Count; k++ {
		entries[k-1] = ScheduleEntry{
			Sequence: k,
			Amount:   amounts[k-1],
			DueDate:  dueDate(in.StartDate, in.Frequency, k),
		}
	}
	return entries, nil
}

func splitAmounts(in ScheduleInput) ([]decimal.Decimal, error) {
	if len(in.CustomAmounts) > 0 {
		if len(in.CustomAmounts) != in.Count {
			return nil, shared.NewError(shared.KindAmountMismatch)
		}
		sum := decimal.Zero
		for _, a := range in.CustomAmounts {
			if a.LessThanOrEqual(decimal.Zero) {
				return nil, shared.NewError(shared.KindAmountMismatch)
			}
			sum = sum.Add(a)
		}
		// Tolerance of one cent per installment absorbs caller-side rounding.
		tolerance := decimal.New(int64(in.Count), -2)
		if sum.Sub(in.Total).Abs().GreaterThan(tolerance) {
			return nil, shared.NewError(shared.KindAmountMismatch)
		}
		out := make([]decimal.Decimal, in.Count)
		copy(out, in.CustomAmounts)
		return out, nil
	}

	if in.FirstAmount != nil {
		first := *in.FirstAmount
		if first.LessThanOrEqual(decimal.Zero) || first.GreaterThanOrEqual(in.Total) {
			return nil, shared.NewError(shared.KindAmountMismatch)
		}
		if in.Count == 1 {
			return nil, shared.NewError(shared.KindAmountMismatch)
		}
		rest, err := evenSplit(in.Total.Sub(first), in.Count-1)
		if err != nil {
			return nil, err
		}
		return append([]decimal.Decimal{first}, rest...), nil
	}

	return evenSplit(in.Total, in.Count)
}

// evenSplit divides total across n installments, rounding each share down to
// the cent and adding the remainder to the last one so the sum is exact.
func evenSplit(total decimal.Decimal, n int) ([]decimal.Decimal, error) {
	if total.LessThanOrEqual(decimal.Zero) {
		return nil, shared.NewError(shared.KindAmountMismatch)
	}
	base := total.Div(decimal.New(int64(n), 0)).RoundDown(2)
	out := make([]decimal.Decimal, n)
	running := decimal.Zero
	for i := 0; i < n-1; i++ {
		out[i] = base
		running = running.Add(base)
	}
	out[n-1] = total.Sub(running)
	return out, nil
}

// dueDate returns the due date of installment k (1-based).
func dueDate(start time.Time, freq Frequency, k int) time.Time {
	switch freq {
	case FrequencyWeekly:
		return start.AddDate(0, 0, 7*(k-1))
	case FrequencyBiweekly:
		return start.AddDate(0, 0, 14*(k-1))
	default:
		return addMonthsClamped(start, k-1)
	}
}

// addMonthsClamped advances by whole calendar months keeping the anchor
// day-of-month, clamped to the target month's length (Jan 31 +1mo = Feb 28/29).
func addMonthsClamped(start time.Time, months int) time.Time {
	y, m, d := start.Date()
	firstOfTarget := time.Date(y, m+time.Month(months), 1, 0, 0, 0, 0, start.Location())
	lastDay := firstOfTarget.AddDate(0, 1, -1).Day()
	if d > lastDay {
		d = lastDay
	}
	return time.Date(firstOfTarget.Year(), firstOfTarget.Month(), d,
		start.Hour(), start.Minute(), start.Second(), start.Nanosecond(), start.Location())
}
