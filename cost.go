package main

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// aggregateCost prices a day's consumption against a tariff's rate
// schedule. Each period cost is rounded to four decimal places of pence
// before summing, matching how the supplier accumulates billing lines; the
// total is not re-rounded. A rate-matching failure for any period fails the
// whole tariff.
func aggregateCost(consumption []ConsumptionPeriod, windows []RateWindow, standingChargePence float64) (*CostResult, error) {
	wattHoursPerKWh := decimal.NewFromInt(1000)

	result := &CostResult{
		StandingChargePence: decimal.NewFromFloat(standingChargePence),
	}

	for _, period := range consumption {
		window, err := matchRate(period.ReadAt, windows)
		if err != nil {
			return nil, fmt.Errorf("period ending %s: %w", period.ReadAt.Format("15:04"), err)
		}

		kwh := decimal.NewFromFloat(period.ConsumptionWh).Div(wattHoursPerKWh)
		cost := kwh.Mul(decimal.NewFromFloat(window.ValueIncVAT)).Round(4)

		result.Periods = append(result.Periods, PeriodCost{
			PeriodEnd:      period.ReadAt,
			ConsumptionKWh: kwh,
			RatePence:      window.ValueIncVAT,
			CostPence:      cost,
		})
		result.ConsumptionPence = result.ConsumptionPence.Add(cost)
	}

	result.TotalPence = result.ConsumptionPence.Add(result.StandingChargePence)
	return result, nil
}
