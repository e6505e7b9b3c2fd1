package main

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func halfHours(day time.Time, n int) []time.Time {
	times := make([]time.Time, n)
	for i := range times {
		times[i] = day.Add(time.Duration(i+1) * 30 * time.Minute)
	}
	return times
}

func openWindow(rate float64) []RateWindow {
	from := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	return []RateWindow{{ValueIncVAT: rate, ValidFrom: ptrTime(from)}}
}

func TestAggregateCost(t *testing.T) {
	day := time.Date(2025, 1, 7, 0, 0, 0, 0, time.UTC)
	ends := halfHours(day, 2)

	consumption := []ConsumptionPeriod{
		{ReadAt: ends[0], ConsumptionWh: 1000},
		{ReadAt: ends[1], ConsumptionWh: 500},
	}

	result, err := aggregateCost(consumption, openWindow(20.0), 40)
	require.NoError(t, err)

	// 1.0 kWh * 20p + 0.5 kWh * 20p = 30p consumption, + 40p standing.
	require.True(t, result.ConsumptionPence.Equal(decimal.NewFromInt(30)), "consumption %s", result.ConsumptionPence)
	require.True(t, result.TotalPence.Equal(decimal.NewFromInt(70)), "total %s", result.TotalPence)
	require.Len(t, result.Periods, 2)
	require.Equal(t, 20.0, result.Periods[0].RatePence)
}

func TestAggregateCostRoundsPerPeriod(t *testing.T) {
	day := time.Date(2025, 1, 7, 0, 0, 0, 0, time.UTC)
	ends := halfHours(day, 2)

	// 0.111 kWh * 30.003p = 3.330333p, which rounds to 3.3303 per period.
	// Summing the raw values first would give 6.660666 -> 6.6607, so the
	// total exposes where the rounding happens.
	consumption := []ConsumptionPeriod{
		{ReadAt: ends[0], ConsumptionWh: 111},
		{ReadAt: ends[1], ConsumptionWh: 111},
	}

	result, err := aggregateCost(consumption, openWindow(30.003), 0)
	require.NoError(t, err)

	perPeriod := decimal.RequireFromString("3.3303")
	require.True(t, result.Periods[0].CostPence.Equal(perPeriod), "period cost %s", result.Periods[0].CostPence)
	require.True(t, result.TotalPence.Equal(decimal.RequireFromString("6.6606")),
		"expected per-period rounding, got %s", result.TotalPence)
}

func TestAggregateCostIsLinear(t *testing.T) {
	day := time.Date(2025, 1, 7, 0, 0, 0, 0, time.UTC)
	ends := halfHours(day, 4)

	consumption := []ConsumptionPeriod{
		{ReadAt: ends[0], ConsumptionWh: 123},
		{ReadAt: ends[1], ConsumptionWh: 456},
		{ReadAt: ends[2], ConsumptionWh: 789},
		{ReadAt: ends[3], ConsumptionWh: 321},
	}
	windows := openWindow(27.417)

	whole, err := aggregateCost(consumption, windows, 0)
	require.NoError(t, err)

	firstHalf, err := aggregateCost(consumption[:2], windows, 0)
	require.NoError(t, err)
	secondHalf, err := aggregateCost(consumption[2:], windows, 0)
	require.NoError(t, err)

	sum := firstHalf.TotalPence.Add(secondHalf.TotalPence)
	require.True(t, whole.TotalPence.Equal(sum), "whole %s != halves %s", whole.TotalPence, sum)
}

func TestAggregateCostPropagatesRateFailure(t *testing.T) {
	day := time.Date(2025, 1, 7, 0, 0, 0, 0, time.UTC)
	ends := halfHours(day, 2)

	// Second period falls outside the only window.
	windows := []RateWindow{
		{ValueIncVAT: 20.0, ValidFrom: ptrTime(day), ValidTo: ptrTime(ends[0])},
	}
	consumption := []ConsumptionPeriod{
		{ReadAt: ends[0], ConsumptionWh: 100},
		{ReadAt: ends[1], ConsumptionWh: 100},
	}

	_, err := aggregateCost(consumption, windows, 10)
	require.ErrorIs(t, err, ErrNoMatchingRate)
}
