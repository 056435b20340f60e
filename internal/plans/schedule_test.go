package plans

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/qistas/qistas/internal/shared"
)

var testNow = time.Date(2026, time.January, 15, 12, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestGenerateScheduleEvenSplitRemainderOnLast(t *testing.T) {
	start := time.Date(2026, time.February, 1, 0, 0, 0, 0, time.UTC)
	entries, err := GenerateSchedule(ScheduleInput{
		Total:         dec("1000.00"),
		Count:         3,
		Frequency:     FrequencyMonthly,
		StartDate:     start,
		TermsAccepted: true,
	}, testNow)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	require.True(t, entries[0].Amount.Equal(dec("333.33")), "got %s", entries[0].Amount)
	require.True(t, entries[1].Amount.Equal(dec("333.33")), "got %s", entries[1].Amount)
	require.True(t, entries[2].Amount.Equal(dec("333.34")), "got %s", entries[2].Amount)

	require.Equal(t, start, entries[0].DueDate)
	require.Equal(t, start.AddDate(0, 1, 0), entries[1].DueDate)
	require.Equal(t, start.AddDate(0, 2, 0), entries[2].DueDate)
}

func TestGenerateScheduleSumsExactly(t *testing.T) {
	start := time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		total string
		count int
	}{
		{"100.00", 3},
		{"999.99", 7},
		{"0.05", 2},
		{"4500.00", 12},
		{"1234.56", 5},
	}
	for _, tc := range cases {
		entries, err := GenerateSchedule(ScheduleInput{
			Total:         dec(tc.total),
			Count:         tc.count,
			Frequency:     FrequencyWeekly,
			StartDate:     start,
			TermsAccepted: true,
		}, testNow)
		require.NoError(t, err, "total=%s count=%d", tc.total, tc.count)
		require.Len(t, entries, tc.count)

		sum := decimal.Zero
		for i, e := range entries {
			require.Equal(t, i+1, e.Sequence)
			sum = sum.Add(e.Amount)
			if i > 0 {
				require.True(t, e.DueDate.After(entries[i-1].DueDate), "due dates must increase")
			}
		}
		require.True(t, sum.Equal(dec(tc.total)), "sum %s != total %s", sum, tc.total)
	}
}

func TestGenerateScheduleMonthlyClampsDayOfMonth(t *testing.T) {
	start := time.Date(2026, time.January, 31, 0, 0, 0, 0, time.UTC)
	entries, err := GenerateSchedule(ScheduleInput{
		Total:         dec("300.00"),
		Count:         3,
		Frequency:     FrequencyMonthly,
		StartDate:     start,
		TermsAccepted: true,
	}, testNow)
	require.NoError(t, err)

	require.Equal(t, time.Date(2026, time.January, 31, 0, 0, 0, 0, time.UTC), entries[0].DueDate)
	// 2026 is not a leap year.
	require.Equal(t, time.Date(2026, time.February, 28, 0, 0, 0, 0, time.UTC), entries[1].DueDate)
	require.Equal(t, time.Date(2026, time.March, 31, 0, 0, 0, 0, time.UTC), entries[2].DueDate)
}

func TestGenerateScheduleWeeklyAndBiweeklySpacing(t *testing.T) {
	start := time.Date(2026, time.February, 2, 0, 0, 0, 0, time.UTC)

	weekly, err := GenerateSchedule(ScheduleInput{
		Total: dec("100.00"), Count: 3, Frequency: FrequencyWeekly,
		StartDate: start, TermsAccepted: true,
	}, testNow)
	require.NoError(t, err)
	require.Equal(t, start.AddDate(0, 0, 7), weekly[1].DueDate)
	require.Equal(t, start.AddDate(0, 0, 14), weekly[2].DueDate)

	biweekly, err := GenerateSchedule(ScheduleInput{
		Total: dec("100.00"), Count: 3, Frequency: FrequencyBiweekly,
		StartDate: start, TermsAccepted: true,
	}, testNow)
	require.NoError(t, err)
	require.Equal(t, start.AddDate(0, 0, 14), biweekly[1].DueDate)
	require.Equal(t, start.AddDate(0, 0, 28), biweekly[2].DueDate)
}

func TestGenerateScheduleValidation(t *testing.T) {
	start := time.Date(2026, time.February, 1, 0, 0, 0, 0, time.UTC)
	base := ScheduleInput{
		Total:         dec("500.00"),
		Count:         5,
		Frequency:     FrequencyMonthly,
		StartDate:     start,
		TermsAccepted: true,
	}

	cases := []struct {
		name   string
		mutate func(*ScheduleInput)
		kind   shared.Kind
	}{
		{"zero count", func(in *ScheduleInput) { in.Count = 0 }, shared.KindInvalidInstallmentCount},
		{"negative count", func(in *ScheduleInput) { in.Count = -2 }, shared.KindInvalidInstallmentCount},
		{"bad frequency", func(in *ScheduleInput) { in.Frequency = "quarterly" }, shared.KindInvalidFrequency},
		{"past start", func(in *ScheduleInput) { in.StartDate = testNow.AddDate(0, 0, -1) }, shared.KindInvalidStartDate},
		{"terms not accepted", func(in *ScheduleInput) { in.TermsAccepted = false }, shared.KindTermsNotAccepted},
		{"zero total", func(in *ScheduleInput) { in.Total = decimal.Zero }, shared.KindInvalidAmount},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := base
			tc.mutate(&in)
			_, err := GenerateSchedule(in, testNow)
			require.Error(t, err)
			require.True(t, shared.IsKind(err, tc.kind), "want kind %s, got %v", tc.kind, err)

			engineErr, ok := shared.AsError(err)
			require.True(t, ok)
			require.NotEmpty(t, engineErr.MessageAR)
			require.NotEmpty(t, engineErr.MessageEN)
			require.NotEqual(t, engineErr.MessageAR, engineErr.MessageEN)
		})
	}
}

func TestGenerateScheduleCustomAmounts(t *testing.T) {
	start := time.Date(2026, time.February, 1, 0, 0, 0, 0, time.UTC)
	in := ScheduleInput{
		Total:         dec("300.00"),
		Count:         3,
		Frequency:     FrequencyMonthly,
		StartDate:     start,
		TermsAccepted: true,
		CustomAmounts: []decimal.Decimal{dec("100.00"), dec("50.00"), dec("150.00")},
	}
	entries, err := GenerateSchedule(in, testNow)
	require.NoError(t, err)
	require.True(t, entries[1].Amount.Equal(dec("50.00")))

	in.CustomAmounts = []decimal.Decimal{dec("100.00"), dec("100.00")}
	_, err = GenerateSchedule(in, testNow)
	require.True(t, shared.IsKind(err, shared.KindAmountMismatch))

	in.CustomAmounts = []decimal.Decimal{dec("100.00"), dec("100.00"), dec("200.00")}
	_, err = GenerateSchedule(in, testNow)
	require.True(t, shared.IsKind(err, shared.KindAmountMismatch))
}

func TestGenerateScheduleFirstAmountOverride(t *testing.T) {
	start := time.Date(2026, time.February, 1, 0, 0, 0, 0, time.UTC)
	first := dec("400.00")
	entries, err := GenerateSchedule(ScheduleInput{
		Total:         dec("1000.00"),
		Count:         4,
		Frequency:     FrequencyMonthly,
		StartDate:     start,
		TermsAccepted: true,
		FirstAmount:   &first,
	}, testNow)
	require.NoError(t, err)
	require.True(t, entries[0].Amount.Equal(dec("400.00")))

	sum := decimal.Zero
	for _, e := range entries {
		sum = sum.Add(e.Amount)
	}
	require.True(t, sum.Equal(dec("1000.00")))

	tooBig := dec("1000.00")
	_, err = GenerateSchedule(ScheduleInput{
		Total: dec("1000.00"), Count: 4, Frequency: FrequencyMonthly,
		StartDate: start, TermsAccepted: true, FirstAmount: &tooBig,
	}, testNow)
	require.True(t, shared.IsKind(err, shared.KindAmountMismatch))

	single := dec("10.00")
	_, err = GenerateSchedule(ScheduleInput{
		Total: dec("100.00"), Count: 1, Frequency: FrequencyMonthly,
		StartDate: start, TermsAccepted: true, FirstAmount: &single,
	}, testNow)
	require.True(t, shared.IsKind(err, shared.KindAmountMismatch))
}
